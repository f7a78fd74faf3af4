// Package token is the NATS request/reply client for the fungible token
// ledger backing token-weighted governance.
package token

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

// Config holds the token client's subjects and timeout.
type Config struct {
	BalanceSubject string        `json:"balance_subject"`
	SupplySubject  string        `json:"supply_subject"`
	RequestTimeout time.Duration `json:"request_timeout"`
}

// DefaultConfig returns the standard token subjects.
func DefaultConfig() Config {
	return Config{
		BalanceSubject: "token.balance",
		SupplySubject:  "token.supply",
		RequestTimeout: 10 * time.Second,
	}
}

// Client implements governance.TokenService over NATS request/reply.
type Client struct {
	conn   *nats.Conn
	config Config
	logger *slog.Logger
}

// NewClient creates a token client.
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

type balanceRequest struct {
	Token  string `json:"token"`
	Holder string `json:"holder"`
}

type supplyRequest struct {
	Token string `json:"token"`
}

type amountResponse struct {
	Amount uint64 `json:"amount"`
	Error  string `json:"error,omitempty"`
}

// BalanceOf implements governance.TokenService.
func (c *Client) BalanceOf(ctx context.Context, token, holder string) (uint64, error) {
	return c.amount(ctx, "balance", c.config.BalanceSubject, balanceRequest{Token: token, Holder: holder})
}

// TotalSupply implements governance.TokenService.
func (c *Client) TotalSupply(ctx context.Context, token string) (uint64, error) {
	return c.amount(ctx, "supply", c.config.SupplySubject, supplyRequest{Token: token})
}

func (c *Client) amount(ctx context.Context, op, subject string, req any) (uint64, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return 0, fmt.Errorf("marshal %s request: %w", op, err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	start := time.Now()
	msg, err := c.conn.RequestWithContext(reqCtx, subject, data)
	metrics.CollaboratorLatency.WithLabelValues("token", op).Observe(time.Since(start).Seconds())
	if err != nil {
		return 0, fmt.Errorf("%w: token %s: %v", governance.ErrExternalService, op, err)
	}

	var resp amountResponse
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return 0, fmt.Errorf("%w: decode token %s response: %v", governance.ErrExternalService, op, err)
	}
	if resp.Error != "" {
		return 0, fmt.Errorf("%w: token %s: %s", governance.ErrExternalService, op, resp.Error)
	}
	return resp.Amount, nil
}
