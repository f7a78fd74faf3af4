// Package docingester consumes queued document ingestion requests, extracts
// their sources, stores the documents in the archive, and raises embed
// proposals on the owning collections.
package docingester

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/message"
	"github.com/c360studio/semstreams/natsclient"

	"github.com/c360studio/agora/archive"
	"github.com/c360studio/agora/assembly"
	"github.com/c360studio/agora/credits"
	"github.com/c360studio/agora/events"
	"github.com/c360studio/agora/extractor"
	"github.com/c360studio/agora/governance"
	"github.com/c360studio/agora/metrics"
	"github.com/c360studio/agora/storage"
	"github.com/c360studio/agora/token"
)

// Component implements the doc-ingester processor.
type Component struct {
	name       string
	config     Config
	natsClient *natsclient.Client
	logger     *slog.Logger
	platform   component.PlatformMeta

	// Lifecycle management
	running   bool
	startTime time.Time
	mu        sync.RWMutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	handler *Handler

	// Metrics
	docsIngested atomic.Int64
	errors       atomic.Int64

	lastActivityMu sync.RWMutex
	lastActivity   time.Time
}

// NewComponent creates a new doc-ingester processor component.
func NewComponent(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	var config Config
	if err := json.Unmarshal(rawConfig, &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Use default config if ports not set
	if config.Ports == nil {
		config = DefaultConfig()
		// Re-unmarshal to get user-provided values
		if err := json.Unmarshal(rawConfig, &config); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	c := &Component{
		name:       "doc-ingester",
		config:     config,
		natsClient: deps.NATSClient,
		logger:     deps.GetLogger(),
		platform:   deps.Platform,
	}

	return c, nil
}

// Initialize prepares the component.
func (c *Component) Initialize() error {
	return nil
}

// Start begins consuming ingestion requests.
func (c *Component) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("component already running")
	}
	if c.natsClient == nil {
		c.mu.Unlock()
		return fmt.Errorf("NATS client required")
	}
	c.running = true
	c.startTime = time.Now()
	c.mu.Unlock()

	handler, err := c.buildHandler(ctx)
	if err != nil {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		return err
	}
	c.handler = handler

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.consumeMessages(runCtx)
	}()

	c.logger.Info("Doc ingester started",
		"stream", c.config.StreamName,
		"consumer", c.config.ConsumerName)

	return nil
}

// buildHandler assembles the ingestion handler from the NATS client and the
// component's credit policy.
func (c *Component) buildHandler(ctx context.Context) (*Handler, error) {
	js, err := c.natsClient.JetStream()
	if err != nil {
		return nil, fmt.Errorf("get JetStream context: %w", err)
	}
	registry, err := storage.NewKVRegistry(ctx, js)
	if err != nil {
		return nil, fmt.Errorf("create collection registry: %w", err)
	}

	conn := c.natsClient.GetConnection()
	archiveClient, err := archive.NewClient(conn, archive.DefaultConfig(), c.logger)
	if err != nil {
		return nil, fmt.Errorf("create archive client: %w", err)
	}
	tokenClient, err := token.NewClient(conn, token.DefaultConfig(), c.logger)
	if err != nil {
		return nil, fmt.Errorf("create token client: %w", err)
	}
	assemblyClient, err := assembly.NewClient(conn, assembly.DefaultConfig(), c.logger)
	if err != nil {
		return nil, fmt.Errorf("create assembly client: %w", err)
	}

	balanceStore, err := credits.NewKVBalanceStore(ctx, js)
	if err != nil {
		return nil, fmt.Errorf("create balance store: %w", err)
	}
	meter, err := credits.NewMeter(balanceStore, archiveClient, credits.Policy{
		MinLocalBalance:   c.config.MinLocalBalance,
		MinArchiveBalance: c.config.MinArchiveBalance,
		CostPerDocument:   c.config.CostPerDocument,
		ReserveFloor:      c.config.ReserveFloor,
	}, c.logger)
	if err != nil {
		return nil, fmt.Errorf("create credit meter: %w", err)
	}

	engine, err := governance.NewEngine(governance.Options{
		Registry:    registry,
		Tokens:      tokenClient,
		Decisions:   assemblyClient,
		Archive:     archiveClient,
		Budget:      meter,
		Events:      events.NewPublisher(c.natsClient, c.logger),
		Logger:      c.logger,
		ProposalTTL: c.config.ProposalTTL(),
	})
	if err != nil {
		return nil, fmt.Errorf("create governance engine: %w", err)
	}

	urlExt := extractor.NewURLExtractor(c.config.GetFetchTimeout(), c.config.UserAgent, c.config.MaxContentSize)
	fileExt := extractor.NewFileExtractor(nil)
	return NewHandler(engine, archiveClient, urlExt, fileExt, c.logger)
}

// consumeMessages processes incoming ingestion requests.
func (c *Component) consumeMessages(ctx context.Context) {
	js, err := c.natsClient.JetStream()
	if err != nil {
		c.logger.Error("Failed to get JetStream context", "error", err)
		return
	}

	// Get or create consumer
	consumer, err := js.Consumer(ctx, c.config.StreamName, c.config.ConsumerName)
	if err != nil {
		c.logger.Error("Failed to get consumer", "error", err, "stream", c.config.StreamName, "consumer", c.config.ConsumerName)
		return
	}

	c.logger.Info("Consumer connected", "stream", c.config.StreamName, "consumer", c.config.ConsumerName)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Fetch next message with timeout
		msgs, err := consumer.Fetch(1, jetstream.FetchMaxWait(5*time.Second))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue // Timeout, try again
		}

		for msg := range msgs.Messages() {
			select {
			case <-ctx.Done():
				// NAK the current message so it can be redelivered
				_ = msg.Nak()
				// Drain remaining messages from this batch
				for remaining := range msgs.Messages() {
					_ = remaining.Nak()
				}
				return
			default:
				c.handleMessage(ctx, msg)
			}
		}
	}
}

// handleMessage processes a single ingestion request.
func (c *Component) handleMessage(ctx context.Context, msg jetstream.Msg) {
	c.updateLastActivity()

	var baseMsg message.BaseMessage
	if err := json.Unmarshal(msg.Data(), &baseMsg); err != nil {
		c.logger.Warn("Failed to parse message", "error", err)
		c.errors.Add(1)
		_ = msg.Nak()
		return
	}

	var req events.IngestRequestPayload
	payloadBytes, err := json.Marshal(baseMsg.Payload())
	if err != nil {
		c.logger.Warn("Failed to marshal payload", "error", err)
		c.errors.Add(1)
		_ = msg.Nak()
		return
	}
	if err := json.Unmarshal(payloadBytes, &req); err != nil {
		c.logger.Warn("Failed to unmarshal ingestion request", "error", err)
		c.errors.Add(1)
		_ = msg.Nak()
		return
	}

	c.logger.Info("Processing ingestion request",
		"collection", req.CollectionID,
		"source", req.Source(),
		"requested_by", req.RequestedBy)

	result, err := c.handler.Ingest(ctx, req)
	if err != nil {
		c.logger.Error("Failed to ingest document",
			"collection", req.CollectionID, "source", req.Source(), "error", err)
		c.errors.Add(1)
		// Bad requests will never succeed; redelivering them only loops.
		if errors.Is(err, governance.ErrInvalidInput) || errors.Is(err, governance.ErrNotFound) {
			_ = msg.Ack()
			return
		}
		_ = msg.Nak()
		return
	}

	c.docsIngested.Add(1)
	if req.URL != "" {
		metrics.DocumentsIngested.WithLabelValues("url").Inc()
	} else {
		metrics.DocumentsIngested.WithLabelValues("file").Inc()
	}
	_ = msg.Ack()

	c.logger.Info("Document ingested",
		"collection", req.CollectionID,
		"document", result.DocumentID,
		"proposal", result.Proposal.ID)
}

// updateLastActivity safely updates the last activity timestamp.
func (c *Component) updateLastActivity() {
	c.lastActivityMu.Lock()
	c.lastActivity = time.Now()
	c.lastActivityMu.Unlock()
}

// getLastActivity safely retrieves the last activity timestamp.
func (c *Component) getLastActivity() time.Time {
	c.lastActivityMu.RLock()
	defer c.lastActivityMu.RUnlock()
	return c.lastActivity
}

// Stop gracefully stops the component within the given timeout.
func (c *Component) Stop(timeout time.Duration) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		c.logger.Warn("Timed out waiting for consumer to stop")
	}

	c.logger.Info("Doc ingester stopped",
		"docs_ingested", c.docsIngested.Load(),
		"errors", c.errors.Load())
	return nil
}

// Discoverable interface implementation

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        "doc-ingester",
		Type:        "processor",
		Description: "Consumes queued ingestion requests and raises embed proposals",
		Version:     "0.1.0",
	}
}

// InputPorts returns configured input port definitions.
func (c *Component) InputPorts() []component.Port {
	if c.config.Ports == nil {
		return []component.Port{}
	}

	ports := make([]component.Port, len(c.config.Ports.Inputs))
	for i, portDef := range c.config.Ports.Inputs {
		ports[i] = buildPort(portDef, component.DirectionInput)
	}
	return ports
}

// OutputPorts returns configured output port definitions.
func (c *Component) OutputPorts() []component.Port {
	if c.config.Ports == nil {
		return []component.Port{}
	}

	ports := make([]component.Port, len(c.config.Ports.Outputs))
	for i, portDef := range c.config.Ports.Outputs {
		ports[i] = buildPort(portDef, component.DirectionOutput)
	}
	return ports
}

// buildPort creates a component.Port from a PortDefinition.
func buildPort(portDef component.PortDefinition, direction component.Direction) component.Port {
	port := component.Port{
		Name:        portDef.Name,
		Direction:   direction,
		Required:    portDef.Required,
		Description: portDef.Description,
	}
	if portDef.Type == "jetstream" {
		port.Config = component.JetStreamPort{
			StreamName: portDef.StreamName,
			Subjects:   []string{portDef.Subject},
		}
	} else {
		port.Config = component.NATSPort{
			Subject: portDef.Subject,
		}
	}
	return port
}

// ConfigSchema returns the configuration schema.
func (c *Component) ConfigSchema() component.ConfigSchema {
	return docIngesterSchema
}

// Health returns the current health status.
func (c *Component) Health() component.HealthStatus {
	c.mu.RLock()
	running := c.running
	startTime := c.startTime
	c.mu.RUnlock()

	status := "stopped"
	if running {
		status = "running"
	}
	return component.HealthStatus{
		Healthy:    running,
		LastCheck:  time.Now(),
		ErrorCount: int(c.errors.Load()),
		Uptime:     time.Since(startTime),
		Status:     status,
	}
}

// DataFlow returns current data flow metrics.
func (c *Component) DataFlow() component.FlowMetrics {
	return component.FlowMetrics{
		MessagesPerSecond: 0,
		BytesPerSecond:    0,
		ErrorRate:         0,
		LastActivity:      c.getLastActivity(),
	}
}
