package credits

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/c360studio/agora/governance"
)

// Defaults for the credit policy.
const (
	DefaultMinLocalBalance   = 10_000_000
	DefaultMinArchiveBalance = 50_000_000
	DefaultCostPerDocument   = 10_000_000
	DefaultReserveFloor      = 5_000_000

	// bufferPercent pads the embedding cost estimate to absorb per-document
	// variance.
	bufferPercent = 10
)

// Policy holds the credit thresholds and pricing.
type Policy struct {
	// MinLocalBalance is the floor below which embedding is refused.
	MinLocalBalance uint64 `json:"min_local_balance"`

	// MinArchiveBalance is the archive-side health floor.
	MinArchiveBalance uint64 `json:"min_archive_balance"`

	// CostPerDocument is the estimated credit cost of embedding one
	// document.
	CostPerDocument uint64 `json:"cost_per_document"`

	// ReserveFloor is the balance that must remain after funding transfers.
	ReserveFloor uint64 `json:"reserve_floor"`
}

// DefaultPolicy returns the standard credit policy.
func DefaultPolicy() Policy {
	return Policy{
		MinLocalBalance:   DefaultMinLocalBalance,
		MinArchiveBalance: DefaultMinArchiveBalance,
		CostPerDocument:   DefaultCostPerDocument,
		ReserveFloor:      DefaultReserveFloor,
	}
}

// ArchiveAccount exposes the archive service's credit account.
type ArchiveAccount interface {
	Balance(ctx context.Context) (uint64, error)
	Deposit(ctx context.Context, amount uint64) error
}

// Meter implements governance.Budget over a BalanceStore and the archive's
// credit account.
type Meter struct {
	store   BalanceStore
	archive ArchiveAccount
	policy  Policy
	logger  *slog.Logger
}

// NewMeter creates a credit meter. archive may be nil when no archive-side
// checks are wanted (tests, embedded mode without an archive).
func NewMeter(store BalanceStore, archive ArchiveAccount, policy Policy, logger *slog.Logger) (*Meter, error) {
	if store == nil {
		return nil, fmt.Errorf("balance store required")
	}
	if policy.CostPerDocument == 0 {
		policy.CostPerDocument = DefaultCostPerDocument
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Meter{store: store, archive: archive, policy: policy, logger: logger}, nil
}

// EstimateEmbedCost returns the padded cost of embedding docs documents.
func (m *Meter) EstimateEmbedCost(docs int) uint64 {
	base := m.policy.CostPerDocument * uint64(docs)
	return base + base*bufferPercent/100
}

// PreflightEmbed implements governance.Budget. All checks are reads; nothing
// is debited here.
func (m *Meter) PreflightEmbed(ctx context.Context, docs int) error {
	if docs <= 0 {
		return fmt.Errorf("%w: document count must be positive", governance.ErrInvalidInput)
	}
	cost := m.EstimateEmbedCost(docs)

	local, err := m.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load local balance: %w", err)
	}
	if local < m.policy.MinLocalBalance {
		return fmt.Errorf("%w: local balance %d below minimum %d",
			governance.ErrInsufficientResources, local, m.policy.MinLocalBalance)
	}
	if local < cost {
		return fmt.Errorf("%w: local balance %d below estimated cost %d for %d documents",
			governance.ErrInsufficientResources, local, cost, docs)
	}

	if m.archive != nil {
		remote, err := m.archive.Balance(ctx)
		if err != nil {
			return err
		}
		if remote < m.policy.MinArchiveBalance {
			return fmt.Errorf("%w: archive balance %d below minimum %d",
				governance.ErrInsufficientResources, remote, m.policy.MinArchiveBalance)
		}
	}
	return nil
}

// RecordEmbed implements governance.Budget: it debits the unpadded cost of
// the embeddings that actually completed.
func (m *Meter) RecordEmbed(ctx context.Context, docs int) error {
	if docs <= 0 {
		return nil
	}
	spent := m.policy.CostPerDocument * uint64(docs)

	balance, err := m.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load local balance: %w", err)
	}
	if spent > balance {
		spent = balance
	}
	if err := m.store.Store(ctx, balance-spent); err != nil {
		return err
	}
	m.logger.Debug("Embedding spend recorded", "documents", docs, "spent", spent)
	return nil
}

// Balance returns the local credit balance.
func (m *Meter) Balance(ctx context.Context) (uint64, error) {
	return m.store.Load(ctx)
}

// Credit adds credits to the local balance.
func (m *Meter) Credit(ctx context.Context, amount uint64) error {
	balance, err := m.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load local balance: %w", err)
	}
	return m.store.Store(ctx, balance+amount)
}

// FundArchive transfers credits from the local balance into the archive's
// account, keeping the reserve floor intact. The local debit happens only
// after the deposit succeeds.
func (m *Meter) FundArchive(ctx context.Context, amount uint64) error {
	if amount == 0 {
		return fmt.Errorf("%w: transfer amount must be positive", governance.ErrInvalidInput)
	}
	if m.archive == nil {
		return fmt.Errorf("%w: archive account not configured", governance.ErrExternalService)
	}

	balance, err := m.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load local balance: %w", err)
	}
	if balance < amount || balance-amount < m.policy.ReserveFloor {
		return fmt.Errorf("%w: transfer of %d would break reserve floor %d (balance %d)",
			governance.ErrInsufficientResources, amount, m.policy.ReserveFloor, balance)
	}

	if err := m.archive.Deposit(ctx, amount); err != nil {
		return err
	}
	if err := m.store.Store(ctx, balance-amount); err != nil {
		// The deposit landed; an unrecorded debit overstates our balance
		// until the next reconciliation.
		m.logger.Error("Deposit succeeded but local debit failed",
			"amount", amount, "error", err)
		return err
	}

	m.logger.Info("Archive funded", "amount", amount, "remaining", balance-amount)
	return nil
}

// Report describes the credit position for status endpoints.
type Report struct {
	LocalBalance      uint64 `json:"local_balance"`
	ArchiveBalance    uint64 `json:"archive_balance,omitempty"`
	MinLocalBalance   uint64 `json:"min_local_balance"`
	MinArchiveBalance uint64 `json:"min_archive_balance"`
	CostPerDocument   uint64 `json:"cost_per_document"`
	ReserveFloor      uint64 `json:"reserve_floor"`
	Healthy           bool   `json:"healthy"`
}

// Status summarizes both balances against the policy floors. Archive errors
// degrade the report to unhealthy rather than failing it.
func (m *Meter) Status(ctx context.Context) (*Report, error) {
	local, err := m.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load local balance: %w", err)
	}

	report := &Report{
		LocalBalance:      local,
		MinLocalBalance:   m.policy.MinLocalBalance,
		MinArchiveBalance: m.policy.MinArchiveBalance,
		CostPerDocument:   m.policy.CostPerDocument,
		ReserveFloor:      m.policy.ReserveFloor,
		Healthy:           local >= m.policy.MinLocalBalance,
	}

	if m.archive != nil {
		remote, err := m.archive.Balance(ctx)
		if err != nil {
			m.logger.Warn("Archive balance unavailable", "error", err)
			report.Healthy = false
			return report, nil
		}
		report.ArchiveBalance = remote
		if remote < m.policy.MinArchiveBalance {
			report.Healthy = false
		}
	}
	return report, nil
}
