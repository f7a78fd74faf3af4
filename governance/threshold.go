package governance

import (
	"context"
	"fmt"
)

// Evaluator decides whether a proposal's approval threshold currently holds.
// Evaluation is read-only: the only collaborator calls are the total-supply
// read for token-weighted collections and the status read for
// assembly-governed ones.
type Evaluator struct {
	tokens    TokenService
	decisions DecisionService
}

// NewEvaluator creates a threshold evaluator. Either service may be nil when
// no collection of the corresponding model exists; evaluation for that model
// then fails with ErrExternalService.
func NewEvaluator(tokens TokenService, decisions DecisionService) *Evaluator {
	return &Evaluator{tokens: tokens, decisions: decisions}
}

// Met reports whether the proposal's threshold holds for the collection's
// governance model. A false result with nil error means "not yet"; errors
// are reserved for misconfiguration and collaborator failures.
func (e *Evaluator) Met(ctx context.Context, c *Collection, p *Proposal) (bool, error) {
	switch c.Model {
	case ModelPermissionless:
		return true, nil

	case ModelMultisig:
		threshold := p.Threshold
		if threshold < 1 {
			threshold = c.Threshold
		}
		return p.YesVotes() >= threshold, nil

	case ModelTokenWeighted:
		return e.tokenThresholdMet(ctx, c, p)

	case ModelAssembly:
		return e.assemblyApproved(ctx, c, p)

	default:
		return false, fmt.Errorf("%w: unknown governance model %q", ErrInvalidInput, c.Model)
	}
}

// tokenThresholdMet checks yes_weight * 100 >= total_supply * quorum using
// integer arithmetic so rounding always favors not-met. A zero supply never
// meets quorum.
func (e *Evaluator) tokenThresholdMet(ctx context.Context, c *Collection, p *Proposal) (bool, error) {
	if c.GovernanceToken == "" {
		return false, nil
	}
	if e.tokens == nil {
		return false, fmt.Errorf("%w: token service not configured", ErrExternalService)
	}

	supply, err := e.tokens.TotalSupply(ctx, c.GovernanceToken)
	if err != nil {
		return false, fmt.Errorf("%w: total supply for %s: %v", ErrExternalService, c.GovernanceToken, err)
	}
	if supply == 0 {
		return false, nil
	}

	return p.YesWeight()*100 >= supply*uint64(c.QuorumThreshold), nil
}

// assemblyApproved delegates the verdict to the external assembly. An
// unlinked proposal is simply not approved yet; a missing assembly reference
// on the collection is a configuration error.
func (e *Evaluator) assemblyApproved(ctx context.Context, c *Collection, p *Proposal) (bool, error) {
	if p.AssemblyProposalID == 0 {
		return false, nil
	}
	if c.AssemblyID == "" {
		return false, fmt.Errorf("%w: collection %s has no assembly configured", ErrExternalService, c.ID)
	}
	if e.decisions == nil {
		return false, fmt.Errorf("%w: decision service not configured", ErrExternalService)
	}

	status, err := e.decisions.ProposalStatus(ctx, c.AssemblyID, p.AssemblyProposalID)
	if err != nil {
		return false, fmt.Errorf("%w: assembly status for %d: %v", ErrExternalService, p.AssemblyProposalID, err)
	}
	return status.Approved(), nil
}
