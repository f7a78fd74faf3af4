// Package assembly is the NATS request/reply client for the external
// decision service governing assembly-model collections.
package assembly

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360studio/agora/governance"
	"github.com/c360studio/agora/metrics"
)

// Config holds the assembly client's subject and timeout.
type Config struct {
	StatusSubject  string        `json:"status_subject"`
	RequestTimeout time.Duration `json:"request_timeout"`
}

// DefaultConfig returns the standard assembly subject.
func DefaultConfig() Config {
	return Config{
		StatusSubject:  "assembly.proposal.status",
		RequestTimeout: 15 * time.Second,
	}
}

// Client implements governance.DecisionService over NATS request/reply.
type Client struct {
	conn   *nats.Conn
	config Config
	logger *slog.Logger
}

// NewClient creates an assembly client.
func NewClient(conn *nats.Conn, config Config, logger *slog.Logger) (*Client, error) {
	if conn == nil {
		return nil, fmt.Errorf("NATS connection required")
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultConfig().RequestTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{conn: conn, config: config, logger: logger}, nil
}

type statusRequest struct {
	AssemblyID  string `json:"assembly_id"`
	ProposalRef uint64 `json:"proposal_ref"`
}

// statusResponse carries the assembly's raw proposal record. The verdict is
// derived from the timestamps and the vote tally rather than trusted as a
// precomputed field.
type statusResponse struct {
	ExecutedAt int64  `json:"executed_at"`
	FailedAt   int64  `json:"failed_at"`
	DecidedAt  int64  `json:"decided_at"`
	YesVotes   uint64 `json:"yes_votes"`
	NoVotes    uint64 `json:"no_votes"`
	Error      string `json:"error,omitempty"`
}

// ProposalStatus implements governance.DecisionService.
func (c *Client) ProposalStatus(ctx context.Context, assemblyID string, proposalRef uint64) (governance.DecisionStatus, error) {
	data, err := json.Marshal(statusRequest{AssemblyID: assemblyID, ProposalRef: proposalRef})
	if err != nil {
		return "", fmt.Errorf("marshal status request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	start := time.Now()
	msg, err := c.conn.RequestWithContext(reqCtx, c.config.StatusSubject, data)
	metrics.CollaboratorLatency.WithLabelValues("assembly", "status").Observe(time.Since(start).Seconds())
	if err != nil {
		return "", fmt.Errorf("%w: assembly status: %v", governance.ErrExternalService, err)
	}

	var resp statusResponse
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return "", fmt.Errorf("%w: decode assembly status response: %v", governance.ErrExternalService, err)
	}
	if resp.Error != "" {
		return "", fmt.Errorf("%w: assembly status: %s", governance.ErrExternalService, resp.Error)
	}
	return deriveStatus(resp), nil
}

// deriveStatus maps the raw record to a verdict. Execution and failure
// timestamps dominate; a decided proposal resolves by tally; anything else
// is still open.
func deriveStatus(resp statusResponse) governance.DecisionStatus {
	switch {
	case resp.ExecutedAt > 0:
		return governance.DecisionExecuted
	case resp.FailedAt > 0:
		return governance.DecisionFailed
	case resp.DecidedAt > 0:
		if resp.YesVotes > resp.NoVotes {
			return governance.DecisionAdopted
		}
		return governance.DecisionRejected
	default:
		return governance.DecisionOpen
	}
}
