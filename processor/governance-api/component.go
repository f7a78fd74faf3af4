// Package governanceapi exposes the proposal governance surface over HTTP:
// proposal creation, voting, execution, status, listing, and expiry cleanup.
package governanceapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/natsclient"

	"github.com/c360studio/agora/archive"
	"github.com/c360studio/agora/assembly"
	"github.com/c360studio/agora/credits"
	"github.com/c360studio/agora/events"
	"github.com/c360studio/agora/governance"
	"github.com/c360studio/agora/storage"
	"github.com/c360studio/agora/token"
)

// Component implements the governance-api processor.
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

	engine *governance.Engine

	// Metrics
	requestsServed atomic.Int64
	errors         atomic.Int64
	lastActivityMu sync.RWMutex
	lastActivity   time.Time
}

// NewComponent creates a new governance-api processor component.
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
		name:       "governance-api",
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

// Start wires the registry, collaborator clients, and governance engine.
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

	engine, err := buildEngine(ctx, c.natsClient, c.config, c.logger)
	if err != nil {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	c.engine = engine
	c.mu.Unlock()

	c.logger.Info("Governance API started", "proposal_ttl_hours", c.config.ProposalTTLHours)
	return nil
}

// buildEngine assembles a governance engine from the NATS client and the
// component's credit policy.
func buildEngine(ctx context.Context, nc *natsclient.Client, config Config, logger *slog.Logger) (*governance.Engine, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("get JetStream context: %w", err)
	}
	registry, err := storage.NewKVRegistry(ctx, js)
	if err != nil {
		return nil, fmt.Errorf("create collection registry: %w", err)
	}

	conn := nc.GetConnection()
	archiveClient, err := archive.NewClient(conn, archive.DefaultConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("create archive client: %w", err)
	}
	tokenClient, err := token.NewClient(conn, token.DefaultConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("create token client: %w", err)
	}
	assemblyClient, err := assembly.NewClient(conn, assembly.DefaultConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("create assembly client: %w", err)
	}

	balanceStore, err := credits.NewKVBalanceStore(ctx, js)
	if err != nil {
		return nil, fmt.Errorf("create balance store: %w", err)
	}
	meter, err := credits.NewMeter(balanceStore, archiveClient, credits.Policy{
		MinLocalBalance:   config.MinLocalBalance,
		MinArchiveBalance: config.MinArchiveBalance,
		CostPerDocument:   config.CostPerDocument,
		ReserveFloor:      config.ReserveFloor,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create credit meter: %w", err)
	}

	return governance.NewEngine(governance.Options{
		Registry:    registry,
		Tokens:      tokenClient,
		Decisions:   assemblyClient,
		Archive:     archiveClient,
		Budget:      meter,
		Events:      events.NewPublisher(nc, logger),
		Logger:      logger,
		ProposalTTL: config.ProposalTTL(),
	})
}

// getEngine returns the engine once Start has wired it, nil before.
func (c *Component) getEngine() *governance.Engine {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.engine
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
	c.engine = nil
	c.mu.Unlock()

	_ = timeout
	c.logger.Info("Governance API stopped",
		"requests_served", c.requestsServed.Load(),
		"errors", c.errors.Load())
	return nil
}

// Discoverable interface implementation

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        "governance-api",
		Type:        "processor",
		Description: "HTTP endpoints for collection governance: proposals, votes, execution",
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
	return governanceAPISchema
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
