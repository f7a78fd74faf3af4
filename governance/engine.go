package governance

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/agora/metrics"
)

// DefaultProposalTTL is the voting window applied to new proposals.
const DefaultProposalTTL = 7 * 24 * time.Hour

// Options configures an Engine. Registry is required; collaborator services
// may be nil when no collection uses the corresponding model or action.
type Options struct {
	Registry  Registry
	Tokens    TokenService
	Decisions DecisionService
	Archive   Archive
	Budget    Budget
	Events    EventSink
	Logger    *slog.Logger

	// ProposalTTL overrides the default voting window.
	ProposalTTL time.Duration

	// Now overrides the clock. Tests use this to control expiry.
	Now func() time.Time

	// locks overrides the process-wide lock table. Tests only.
	locks *collectionLocks
}

// Engine implements the governance surface: collection registry access,
// proposal lifecycle, voting, and execution.
type Engine struct {
	registry  Registry
	tokens    TokenService
	decisions DecisionService
	archive   Archive
	budget    Budget
	events    EventSink
	eval      *Evaluator
	logger    *slog.Logger
	ttl       time.Duration
	now       func() time.Time
	locks     *collectionLocks
}

// NewEngine creates a governance engine from options.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("%w: registry required", ErrInvalidInput)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := opts.ProposalTTL
	if ttl <= 0 {
		ttl = DefaultProposalTTL
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	locks := opts.locks
	if locks == nil {
		locks = sharedLocks
	}
	return &Engine{
		registry:  opts.Registry,
		tokens:    opts.Tokens,
		decisions: opts.Decisions,
		archive:   opts.Archive,
		budget:    opts.Budget,
		events:    opts.Events,
		eval:      NewEvaluator(opts.Tokens, opts.Decisions),
		logger:    logger,
		ttl:       ttl,
		now:       now,
		locks:     locks,
	}, nil
}

// CreateCollectionRequest carries the inputs for a new collection.
type CreateCollectionRequest struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	Model           Model  `json:"governance_model"`
	Threshold       int    `json:"threshold"`
	QuorumThreshold int    `json:"quorum_threshold"`
	GovernanceToken string `json:"governance_token,omitempty"`
	AssemblyID      string `json:"assembly_id,omitempty"`
}

// CreateCollection provisions archive storage for the collection, then
// registers it with the creator as initial admin. A registry conflict after
// the archive call leaves the archive collection orphaned; that is logged
// and accepted rather than compensated.
func (e *Engine) CreateCollection(ctx context.Context, creator string, req CreateCollectionRequest) (*Collection, error) {
	if creator == "" {
		return nil, fmt.Errorf("%w: creator principal required", ErrInvalidInput)
	}

	now := e.now()
	c := &Collection{
		ID:              newCollectionID(creator, now),
		Name:            req.Name,
		Description:     req.Description,
		Creator:         creator,
		CreatedAt:       now,
		UpdatedAt:       now,
		Admins:          []string{creator},
		Threshold:       req.Threshold,
		QuorumThreshold: req.QuorumThreshold,
		Model:           req.Model,
		GovernanceToken: req.GovernanceToken,
		AssemblyID:      req.AssemblyID,
		Proposals:       make(map[string]*Proposal),
	}
	if c.Model == ModelMultisig && c.Threshold == 0 {
		c.Threshold = 1
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	if e.archive != nil {
		archiveID, err := e.archive.CreateCollection(ctx, c.Name)
		if err != nil {
			return nil, fmt.Errorf("create archive collection: %w", err)
		}
		c.ArchiveCollectionID = archiveID
	}

	if err := e.registry.Create(ctx, c); err != nil {
		if c.ArchiveCollectionID != "" {
			e.logger.Error("Collection registration failed after archive provisioning",
				"collection", c.ID, "archive_collection", c.ArchiveCollectionID, "error", err)
		}
		return nil, err
	}

	metrics.CollectionsCreated.WithLabelValues(string(c.Model)).Inc()
	e.logger.Info("Collection created", "collection", c.ID, "model", c.Model, "creator", creator)
	return c, nil
}

// GetCollection returns a collection by ID.
func (e *Engine) GetCollection(ctx context.Context, id string) (*Collection, error) {
	return e.registry.Get(ctx, id)
}

// ListCollections returns all collections sorted by creation time.
func (e *Engine) ListCollections(ctx context.Context) ([]*Collection, error) {
	cols, err := e.registry.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(cols, func(i, j int) bool { return cols[i].CreatedAt.Before(cols[j].CreatedAt) })
	return cols, nil
}

// CreateProposal opens a proposal on the collection. Standing to propose
// follows the governance model: multisig and assembly require an admin,
// token-weighted requires a positive balance, permissionless accepts anyone.
// Permissionless proposals are approved immediately but never auto-executed.
func (e *Engine) CreateProposal(ctx context.Context, collectionID, creator, description string, action Action) (*Proposal, error) {
	if creator == "" {
		return nil, fmt.Errorf("%w: creator principal required", ErrInvalidInput)
	}
	if action == nil {
		return nil, fmt.Errorf("%w: action required", ErrInvalidInput)
	}
	if err := action.Validate(); err != nil {
		return nil, err
	}

	unlock := e.locks.lock(collectionID)
	defer unlock()

	c, err := e.registry.Get(ctx, collectionID)
	if err != nil {
		return nil, err
	}

	if err := e.checkProposerStanding(ctx, c, creator); err != nil {
		return nil, err
	}

	now := e.now()
	c.ProposalCounter++
	p := &Proposal{
		ID:           nextProposalID(c),
		CollectionID: c.ID,
		Action:       action,
		Creator:      creator,
		Description:  description,
		CreatedAt:    now,
		ExpiresAt:    now.Add(e.ttl),
		Status:       StatusActive,
		Votes:        make(map[string]Choice),
		Threshold:    c.Threshold,
	}
	if c.Model == ModelTokenWeighted {
		p.TokenVotes = make(map[string]uint64)
	}
	if c.Model == ModelPermissionless {
		p.Status = StatusApproved
		p.ThresholdMet = true
	}

	c.Proposals[p.ID] = p
	c.UpdatedAt = now
	if err := e.registry.Put(ctx, c); err != nil {
		return nil, err
	}

	metrics.ProposalsCreated.WithLabelValues(string(c.Model), string(action.Kind())).Inc()
	e.emit(ctx, ProposalEvent{
		CollectionID: c.ID, ProposalID: p.ID,
		Kind: EventProposalCreated, Status: p.Status, Principal: creator,
	})
	e.logger.Info("Proposal created",
		"collection", c.ID, "proposal", p.ID, "action", action.Kind(), "status", p.Status)
	return p, nil
}

// checkProposerStanding validates that creator may open proposals under the
// collection's model.
func (e *Engine) checkProposerStanding(ctx context.Context, c *Collection, creator string) error {
	switch c.Model {
	case ModelPermissionless:
		return nil
	case ModelMultisig, ModelAssembly:
		if !c.IsAdmin(creator) {
			return fmt.Errorf("%w: %s is not an admin of %s", ErrNotAuthorized, creator, c.ID)
		}
		return nil
	case ModelTokenWeighted:
		balance, err := e.holderBalance(ctx, c, creator)
		if err != nil {
			return err
		}
		if balance == 0 {
			return fmt.Errorf("%w: %s holds no %s", ErrNotAuthorized, creator, c.GovernanceToken)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown governance model %q", ErrInvalidInput, c.Model)
}

// Vote records a vote and evaluates the threshold. When the threshold is
// met, the approval is persisted in the same registry write as the vote.
func (e *Engine) Vote(ctx context.Context, collectionID, proposalID, voter string, choice Choice) (*Proposal, error) {
	if voter == "" {
		return nil, fmt.Errorf("%w: voter principal required", ErrInvalidInput)
	}
	if !choice.Valid() {
		return nil, fmt.Errorf("%w: unknown vote choice %q", ErrInvalidInput, choice)
	}

	unlock := e.locks.lock(collectionID)
	defer unlock()

	c, err := e.registry.Get(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	p, ok := c.Proposals[proposalID]
	if !ok {
		return nil, fmt.Errorf("%w: proposal %s", ErrNotFound, proposalID)
	}

	if p.Status == StatusExpired {
		return nil, fmt.Errorf("%w: proposal %s", ErrExpired, p.ID)
	}
	if p.Status != StatusActive {
		return nil, fmt.Errorf("%w: proposal %s is %s", ErrInvalidState, p.ID, p.Status)
	}
	if p.ExpiredAt(e.now()) {
		if err := e.markExpired(ctx, c, p); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: proposal %s", ErrExpired, p.ID)
	}
	if _, voted := p.Votes[voter]; voted {
		return nil, fmt.Errorf("%w: %s already voted on %s", ErrAlreadyExists, voter, p.ID)
	}

	weight, err := e.checkVoterStanding(ctx, c, voter)
	if err != nil {
		return nil, err
	}

	p.Votes[voter] = choice
	if c.Model == ModelTokenWeighted {
		if p.TokenVotes == nil {
			p.TokenVotes = make(map[string]uint64)
		}
		p.TokenVotes[voter] = weight
	}

	// An evaluation failure fails the whole vote before anything persists;
	// a decisive vote recorded without its approval would strand the
	// proposal behind the double-vote guard.
	met, err := e.eval.Met(ctx, c, p)
	if err != nil {
		return nil, fmt.Errorf("evaluate threshold for %s: %w", p.ID, err)
	}
	if met {
		p.Status = StatusApproved
		p.ThresholdMet = true
	}

	c.UpdatedAt = e.now()
	if err := e.registry.Put(ctx, c); err != nil {
		return nil, err
	}

	metrics.VotesCast.WithLabelValues(string(c.Model), string(choice)).Inc()
	e.emit(ctx, ProposalEvent{
		CollectionID: c.ID, ProposalID: p.ID,
		Kind: EventVoteCast, Status: p.Status, Principal: voter,
	})
	if p.Status == StatusApproved {
		e.emit(ctx, ProposalEvent{
			CollectionID: c.ID, ProposalID: p.ID,
			Kind: EventProposalApproved, Status: p.Status,
		})
		e.logger.Info("Proposal approved", "collection", c.ID, "proposal", p.ID)
	}
	return p, nil
}

// checkVoterStanding validates eligibility and returns the vote weight for
// token-weighted collections (zero otherwise).
func (e *Engine) checkVoterStanding(ctx context.Context, c *Collection, voter string) (uint64, error) {
	switch c.Model {
	case ModelMultisig:
		if !c.IsAdmin(voter) {
			return 0, fmt.Errorf("%w: %s is not an admin of %s", ErrNotAuthorized, voter, c.ID)
		}
		return 0, nil
	case ModelTokenWeighted:
		balance, err := e.holderBalance(ctx, c, voter)
		if err != nil {
			return 0, err
		}
		if balance == 0 {
			return 0, fmt.Errorf("%w: %s holds no %s", ErrNotAuthorized, voter, c.GovernanceToken)
		}
		return balance, nil
	case ModelPermissionless:
		return 0, fmt.Errorf("%w: permissionless collections do not vote", ErrInvalidState)
	case ModelAssembly:
		return 0, fmt.Errorf("%w: assembly-governed collections decide externally", ErrInvalidState)
	}
	return 0, fmt.Errorf("%w: unknown governance model %q", ErrInvalidInput, c.Model)
}

func (e *Engine) holderBalance(ctx context.Context, c *Collection, holder string) (uint64, error) {
	if c.GovernanceToken == "" {
		return 0, fmt.Errorf("%w: collection %s has no governance token", ErrInvalidState, c.ID)
	}
	if e.tokens == nil {
		return 0, fmt.Errorf("%w: token service not configured", ErrExternalService)
	}
	balance, err := e.tokens.BalanceOf(ctx, c.GovernanceToken, holder)
	if err != nil {
		return 0, fmt.Errorf("%w: balance of %s: %v", ErrExternalService, holder, err)
	}
	return balance, nil
}

// GetStatus returns the proposal. An Active proposal past its expiry is
// reported as Expired without persisting; the write happens lazily on the
// next vote, execute, or cleanup.
func (e *Engine) GetStatus(ctx context.Context, collectionID, proposalID string) (*Proposal, error) {
	c, err := e.registry.Get(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	p, ok := c.Proposals[proposalID]
	if !ok {
		return nil, fmt.Errorf("%w: proposal %s", ErrNotFound, proposalID)
	}
	if p.Status == StatusActive && p.ExpiredAt(e.now()) {
		view := *p
		view.Status = StatusExpired
		return &view, nil
	}
	return p, nil
}

// ListActiveProposals returns open proposals that have not passed expiry,
// sorted by creation time.
func (e *Engine) ListActiveProposals(ctx context.Context, collectionID string) ([]*Proposal, error) {
	c, err := e.registry.Get(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	now := e.now()
	active := make([]*Proposal, 0, len(c.Proposals))
	for _, p := range c.Proposals {
		if p.Status == StatusActive && !p.ExpiredAt(now) {
			active = append(active, p)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].CreatedAt.Before(active[j].CreatedAt) })
	return active, nil
}

// CleanupExpired marks and removes proposals past their voting window,
// returning the number removed.
func (e *Engine) CleanupExpired(ctx context.Context, collectionID string) (int, error) {
	unlock := e.locks.lock(collectionID)
	defer unlock()

	c, err := e.registry.Get(ctx, collectionID)
	if err != nil {
		return 0, err
	}

	now := e.now()
	removed := 0
	newlyExpired := 0
	for id, p := range c.Proposals {
		alreadyExpired := p.Status == StatusExpired
		if !alreadyExpired && (p.Status.Terminal() || !p.ExpiredAt(now)) {
			continue
		}
		p.Status = StatusExpired
		delete(c.Proposals, id)
		removed++
		// Lazily-expired entries already emitted their event when marked.
		if !alreadyExpired {
			newlyExpired++
			e.emit(ctx, ProposalEvent{
				CollectionID: c.ID, ProposalID: p.ID,
				Kind: EventProposalExpired, Status: StatusExpired,
			})
		}
	}
	if removed == 0 {
		return 0, nil
	}

	c.UpdatedAt = now
	if err := e.registry.Put(ctx, c); err != nil {
		return 0, err
	}
	if newlyExpired > 0 {
		metrics.ProposalsExpired.Add(float64(newlyExpired))
	}
	e.logger.Info("Expired proposals removed", "collection", c.ID, "count", removed)
	return removed, nil
}

// LinkAssemblyProposal attaches the external assembly's proposal reference.
// Admin-only; the link is write-once while the proposal is active.
func (e *Engine) LinkAssemblyProposal(ctx context.Context, collectionID, proposalID, caller string, assemblyRef uint64) (*Proposal, error) {
	if assemblyRef == 0 {
		return nil, fmt.Errorf("%w: assembly proposal reference required", ErrInvalidInput)
	}

	unlock := e.locks.lock(collectionID)
	defer unlock()

	c, err := e.registry.Get(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	if !c.IsAdmin(caller) {
		return nil, fmt.Errorf("%w: %s is not an admin of %s", ErrNotAuthorized, caller, c.ID)
	}
	if c.Model != ModelAssembly {
		return nil, fmt.Errorf("%w: collection %s is not assembly-governed", ErrInvalidState, c.ID)
	}
	p, ok := c.Proposals[proposalID]
	if !ok {
		return nil, fmt.Errorf("%w: proposal %s", ErrNotFound, proposalID)
	}
	if p.Status != StatusActive {
		return nil, fmt.Errorf("%w: proposal %s is %s", ErrInvalidState, p.ID, p.Status)
	}
	if p.AssemblyProposalID != 0 {
		return nil, fmt.Errorf("%w: proposal %s already linked to assembly proposal %d",
			ErrAlreadyExists, p.ID, p.AssemblyProposalID)
	}

	p.AssemblyProposalID = assemblyRef
	c.UpdatedAt = e.now()
	if err := e.registry.Put(ctx, c); err != nil {
		return nil, err
	}
	e.logger.Info("Assembly proposal linked",
		"collection", c.ID, "proposal", p.ID, "assembly_ref", assemblyRef)
	return p, nil
}

// SyncAssemblyStatus re-evaluates an assembly-governed proposal against the
// external verdict, approving or rejecting it accordingly.
func (e *Engine) SyncAssemblyStatus(ctx context.Context, collectionID, proposalID string) (*Proposal, error) {
	unlock := e.locks.lock(collectionID)
	defer unlock()

	c, err := e.registry.Get(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	if c.Model != ModelAssembly {
		return nil, fmt.Errorf("%w: collection %s is not assembly-governed", ErrInvalidState, c.ID)
	}
	p, ok := c.Proposals[proposalID]
	if !ok {
		return nil, fmt.Errorf("%w: proposal %s", ErrNotFound, proposalID)
	}
	if p.Status == StatusExpired {
		return nil, fmt.Errorf("%w: proposal %s", ErrExpired, p.ID)
	}
	if p.Status != StatusActive {
		return nil, fmt.Errorf("%w: proposal %s is %s", ErrInvalidState, p.ID, p.Status)
	}
	if p.ExpiredAt(e.now()) {
		if err := e.markExpired(ctx, c, p); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: proposal %s", ErrExpired, p.ID)
	}
	if p.AssemblyProposalID == 0 {
		return nil, fmt.Errorf("%w: proposal %s has no assembly link", ErrInvalidState, p.ID)
	}
	if e.decisions == nil {
		return nil, fmt.Errorf("%w: decision service not configured", ErrExternalService)
	}

	status, err := e.decisions.ProposalStatus(ctx, c.AssemblyID, p.AssemblyProposalID)
	if err != nil {
		return nil, fmt.Errorf("%w: assembly status for %d: %v", ErrExternalService, p.AssemblyProposalID, err)
	}

	switch {
	case status.Approved():
		p.Status = StatusApproved
		p.ThresholdMet = true
		e.emit(ctx, ProposalEvent{
			CollectionID: c.ID, ProposalID: p.ID,
			Kind: EventProposalApproved, Status: p.Status,
		})
	case status == DecisionRejected || status == DecisionFailed:
		p.Status = StatusRejected
		delete(c.Proposals, p.ID)
		e.emit(ctx, ProposalEvent{
			CollectionID: c.ID, ProposalID: p.ID,
			Kind: EventProposalRejected, Status: StatusRejected,
		})
	default:
		// Still open at the assembly; nothing to record.
		return p, nil
	}

	c.UpdatedAt = e.now()
	if err := e.registry.Put(ctx, c); err != nil {
		return nil, err
	}
	e.logger.Info("Assembly status synced",
		"collection", c.ID, "proposal", p.ID, "assembly_status", status, "status", p.Status)
	return p, nil
}

// markExpired persists the expired status in place. The proposal stays in
// the collection's map so later calls keep reporting Expired; CleanupExpired
// prunes it. Idempotent: an already-expired proposal is left untouched.
func (e *Engine) markExpired(ctx context.Context, c *Collection, p *Proposal) error {
	if p.Status == StatusExpired {
		return nil
	}
	p.Status = StatusExpired
	c.UpdatedAt = e.now()
	if err := e.registry.Put(ctx, c); err != nil {
		return err
	}
	metrics.ProposalsExpired.Inc()
	e.emit(ctx, ProposalEvent{
		CollectionID: c.ID, ProposalID: p.ID,
		Kind: EventProposalExpired, Status: StatusExpired,
	})
	return nil
}

func (e *Engine) emit(ctx context.Context, ev ProposalEvent) {
	if e.events == nil {
		return
	}
	e.events.ProposalEvent(ctx, ev)
}

// newCollectionID builds a collection ID from a creator prefix, timestamp
// tail, and random suffix.
func newCollectionID(creator string, now time.Time) string {
	prefix := sanitizeIDPart(creator)
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	ts := fmt.Sprintf("%d", now.Unix())
	if len(ts) > 4 {
		ts = ts[len(ts)-4:]
	}
	return fmt.Sprintf("col_%s_%s_%s", prefix, ts, uuid.New().String()[:4])
}

// nextProposalID derives a proposal ID from the collection's counter plus a
// random suffix so IDs stay unique even if the counter is ever reset.
func nextProposalID(c *Collection) string {
	return fmt.Sprintf("prop_%s_%d_%s", c.ID, c.ProposalCounter, uuid.New().String()[:4])
}

func sanitizeIDPart(s string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		if r >= 'A' && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return '-'
	}, s)
}
