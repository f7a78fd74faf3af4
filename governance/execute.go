package governance

import (
	"context"
	"fmt"
	"time"

	"github.com/c360studio/agora/metrics"
)

// Execute applies an approved proposal. The phases run in a fixed order:
// authorization, state validation, threshold re-confirmation, resource
// preflight, and action preconditions are all read-only; only the dispatch
// phase touches collaborators with side effects, and the commit phase
// persists the outcome. A dispatch failure commits Rejected and surfaces the
// collaborator's error; effects already applied before the failure are not
// rolled back.
func (e *Engine) Execute(ctx context.Context, collectionID, proposalID, caller string) (*Proposal, error) {
	unlock := e.locks.lock(collectionID)
	defer unlock()

	// Phase 1: load and authorize.
	c, err := e.registry.Get(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	p, ok := c.Proposals[proposalID]
	if !ok {
		return nil, fmt.Errorf("%w: proposal %s", ErrNotFound, proposalID)
	}
	if !c.IsAdmin(caller) {
		return nil, fmt.Errorf("%w: %s is not an admin of %s", ErrNotAuthorized, caller, c.ID)
	}

	// Phase 2: state validation.
	if p.Executed {
		return nil, fmt.Errorf("%w: proposal %s already executed", ErrInvalidState, p.ID)
	}
	if p.Status == StatusExpired || p.ExpiredAt(e.now()) {
		if err := e.markExpired(ctx, c, p); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: proposal %s", ErrExpired, p.ID)
	}
	if p.Status != StatusApproved {
		return nil, fmt.Errorf("%w: proposal %s is %s, expected %s",
			ErrInvalidState, p.ID, p.Status, StatusApproved)
	}

	// Phase 3: threshold re-confirmation. Balances and external verdicts may
	// have moved since approval.
	met, err := e.eval.Met(ctx, c, p)
	if err != nil {
		return nil, err
	}
	if !met {
		return nil, fmt.Errorf("%w: proposal %s no longer meets its threshold", ErrThresholdNotMet, p.ID)
	}

	// Phase 4: resource preflight for credit-consuming actions.
	if docs, billable := Billable(p.Action); billable {
		if e.budget == nil {
			return nil, fmt.Errorf("%w: budget service not configured", ErrExternalService)
		}
		if err := e.budget.PreflightEmbed(ctx, docs); err != nil {
			return nil, err
		}
	}

	// Phase 5: action-specific preconditions.
	if err := checkPreconditions(c, p); err != nil {
		return nil, err
	}

	// Phase 6: dispatch.
	dispatchErr := e.dispatch(ctx, c, p)

	// Phase 7: commit the outcome. A rejected proposal is never left
	// approved, even when the registry write itself fails.
	now := e.now()
	if dispatchErr != nil {
		p.Status = StatusRejected
		delete(c.Proposals, p.ID)
		c.UpdatedAt = now
		if err := e.registry.Put(ctx, c); err != nil {
			e.logger.Error("Failed to persist rejection",
				"collection", c.ID, "proposal", p.ID, "error", err)
		}
		metrics.Executions.WithLabelValues(string(p.Action.Kind()), "rejected").Inc()
		e.emit(ctx, ProposalEvent{
			CollectionID: c.ID, ProposalID: p.ID,
			Kind: EventProposalRejected, Status: StatusRejected, Principal: caller,
		})
		e.logger.Warn("Proposal execution failed",
			"collection", c.ID, "proposal", p.ID, "action", p.Action.Kind(), "error", dispatchErr)
		return p, dispatchErr
	}

	p.Status = StatusExecuted
	p.Executed = true
	p.ExecutedAt = &now
	p.ExecutedBy = caller
	delete(c.Proposals, p.ID)
	c.UpdatedAt = now

	// DeleteCollection removed the registry entry during dispatch; there is
	// nothing left to persist.
	if p.Action.Kind() != ActionKindDeleteCollection {
		if err := e.registry.Put(ctx, c); err != nil {
			return nil, fmt.Errorf("persist execution outcome: %w", err)
		}
	}

	metrics.Executions.WithLabelValues(string(p.Action.Kind()), "executed").Inc()
	e.emit(ctx, ProposalEvent{
		CollectionID: c.ID, ProposalID: p.ID,
		Kind: EventProposalExecuted, Status: StatusExecuted, Principal: caller,
	})
	e.logger.Info("Proposal executed",
		"collection", c.ID, "proposal", p.ID, "action", p.Action.Kind(), "by", caller)
	return p, nil
}

// checkPreconditions validates that the collection can absorb the action.
// All checks are read-only.
func checkPreconditions(c *Collection, p *Proposal) error {
	switch a := p.Action.(type) {
	case AddAdmin:
		if c.IsAdmin(a.Admin) {
			return fmt.Errorf("%w: %s is already an admin", ErrInvalidInput, a.Admin)
		}
	case RemoveAdmin:
		if !c.IsAdmin(a.Admin) {
			return fmt.Errorf("%w: %s is not an admin", ErrInvalidInput, a.Admin)
		}
		if len(c.Admins) <= 1 {
			return fmt.Errorf("%w: cannot remove the last admin", ErrInvalidInput)
		}
	case ChangeThreshold:
		if a.NewThreshold < 1 || a.NewThreshold > len(c.Admins) {
			return fmt.Errorf("%w: threshold must be between 1 and %d, got %d",
				ErrInvalidInput, len(c.Admins), a.NewThreshold)
		}
	case UpdateQuorum:
		if a.NewPercentage > 100 {
			return fmt.Errorf("%w: quorum percentage must not exceed 100, got %d",
				ErrInvalidInput, a.NewPercentage)
		}
	case ChangeModel:
		if a.Model == ModelTokenWeighted && c.GovernanceToken == "" {
			return fmt.Errorf("%w: token-weighted model requires a governance token", ErrInvalidInput)
		}
		if a.Model == ModelAssembly && c.AssemblyID == "" {
			return fmt.Errorf("%w: assembly model requires an assembly reference", ErrInvalidInput)
		}
	case DeleteCollection:
		for id, other := range c.Proposals {
			if id == p.ID {
				continue
			}
			if !other.Status.Terminal() {
				return fmt.Errorf("%w: collection %s has other open proposals", ErrInvalidState, c.ID)
			}
		}
	case EmbedDocuments, BatchEmbed:
		if c.ArchiveCollectionID == "" {
			return fmt.Errorf("%w: collection %s has no archive storage", ErrInvalidState, c.ID)
		}
	case UpdateConfig:
		// Input validation at creation suffices.
	}
	return nil
}

// dispatch applies the action. Local mutations edit the in-memory collection
// and are persisted by the commit phase; archive calls take effect
// immediately and are not undone on later failure.
func (e *Engine) dispatch(ctx context.Context, c *Collection, p *Proposal) error {
	switch a := p.Action.(type) {
	case EmbedDocuments:
		return e.embedDocuments(ctx, c, a.DocumentIDs)
	case BatchEmbed:
		return e.embedDocuments(ctx, c, a.DocumentIDs)

	case AddAdmin:
		c.Admins = append(c.Admins, a.Admin)
	case RemoveAdmin:
		admins := make([]string, 0, len(c.Admins)-1)
		for _, admin := range c.Admins {
			if admin != a.Admin {
				admins = append(admins, admin)
			}
		}
		c.Admins = admins
		if c.Model == ModelMultisig && c.Threshold > len(c.Admins) {
			c.Threshold = len(c.Admins)
		}
	case ChangeThreshold:
		c.Threshold = a.NewThreshold
	case UpdateQuorum:
		c.QuorumThreshold = a.NewPercentage
	case UpdateConfig:
		c.Name = a.Config.Name
		c.Description = a.Config.Description
	case ChangeModel:
		c.Model = a.Model

	case DeleteCollection:
		if e.archive != nil && c.ArchiveCollectionID != "" {
			if err := e.archive.DeleteCollection(ctx, c.ArchiveCollectionID); err != nil {
				return fmt.Errorf("delete archive collection: %w", err)
			}
		}
		if err := e.registry.Delete(ctx, c.ID); err != nil {
			return fmt.Errorf("delete collection %s: %w", c.ID, err)
		}

	default:
		return fmt.Errorf("%w: unsupported action %q", ErrInvalidInput, p.Action.Kind())
	}
	return nil
}

// embedDocuments embeds each document in order. The first failure stops the
// batch; earlier embeddings stay applied and later documents are never
// attempted.
func (e *Engine) embedDocuments(ctx context.Context, c *Collection, docIDs []string) error {
	if e.archive == nil {
		return fmt.Errorf("%w: archive service not configured", ErrExternalService)
	}

	start := time.Now()
	embedded := 0
	for _, docID := range docIDs {
		chunks, err := e.archive.EmbedDocument(ctx, c.ArchiveCollectionID, docID)
		if err != nil {
			return fmt.Errorf("embed document %s (%d of %d applied): %w",
				docID, embedded, len(docIDs), err)
		}
		embedded++
		e.logger.Debug("Document embedded",
			"collection", c.ID, "document", docID, "chunks", chunks)
	}

	if e.budget != nil {
		if err := e.budget.RecordEmbed(ctx, embedded); err != nil {
			e.logger.Warn("Failed to record embedding spend",
				"collection", c.ID, "documents", embedded, "error", err)
		}
	}
	metrics.DocumentsEmbedded.Add(float64(embedded))
	e.logger.Info("Documents embedded",
		"collection", c.ID, "count", embedded, "elapsed", time.Since(start))
	return nil
}
