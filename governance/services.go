package governance

import "context"

// TokenService reads balances from the token ledger backing token-weighted
// collections.
type TokenService interface {
	// BalanceOf returns holder's balance of the given token.
	BalanceOf(ctx context.Context, token, holder string) (uint64, error)

	// TotalSupply returns the token's total supply.
	TotalSupply(ctx context.Context, token string) (uint64, error)
}

// DecisionStatus is the verdict of an external assembly on a linked proposal.
type DecisionStatus string

const (
	DecisionOpen     DecisionStatus = "open"
	DecisionAdopted  DecisionStatus = "adopted"
	DecisionRejected DecisionStatus = "rejected"
	DecisionExecuted DecisionStatus = "executed"
	DecisionFailed   DecisionStatus = "failed"
)

// Approved reports whether the status counts as an affirmative decision.
func (s DecisionStatus) Approved() bool {
	return s == DecisionAdopted || s == DecisionExecuted
}

// DecisionService queries the external assembly that governs
// assembly-model collections.
type DecisionService interface {
	// ProposalStatus returns the assembly's current verdict on the
	// referenced proposal.
	ProposalStatus(ctx context.Context, assemblyID string, proposalRef uint64) (DecisionStatus, error)
}

// Archive is the document store collaborator. Embedding and deletion calls
// are side-effecting; balance reads are not.
type Archive interface {
	// CreateCollection provisions archive storage and returns the archive's
	// collection identifier.
	CreateCollection(ctx context.Context, name string) (string, error)

	// DeleteCollection removes the collection and all its documents.
	DeleteCollection(ctx context.Context, archiveCollectionID string) error

	// AddDocument stores a document and returns its identifier.
	AddDocument(ctx context.Context, archiveCollectionID, title, content string) (string, error)

	// EmbedDocument generates embeddings for a stored document and returns
	// the number of chunks embedded.
	EmbedDocument(ctx context.Context, archiveCollectionID, documentID string) (int, error)

	// DeleteDocument removes a single document.
	DeleteDocument(ctx context.Context, archiveCollectionID, documentID string) error
}

// Budget guards execution of credit-consuming actions.
type Budget interface {
	// PreflightEmbed verifies that local and archive credit balances cover
	// embedding docs documents. It returns an error wrapping
	// ErrInsufficientResources when they do not.
	PreflightEmbed(ctx context.Context, docs int) error

	// RecordEmbed accounts for a completed embedding of docs documents.
	RecordEmbed(ctx context.Context, docs int) error
}

// EventSink receives proposal lifecycle events. Implementations must not
// block the caller for long; publish failures are logged, not surfaced.
type EventSink interface {
	ProposalEvent(ctx context.Context, event ProposalEvent)
}

// ProposalEvent describes a lifecycle transition for downstream consumers.
type ProposalEvent struct {
	CollectionID string `json:"collection_id"`
	ProposalID   string `json:"proposal_id"`
	Kind         string `json:"kind"`
	Status       Status `json:"status"`
	Principal    string `json:"principal,omitempty"`
}

// Event kinds emitted by the engine.
const (
	EventProposalCreated  = "proposal.created"
	EventVoteCast         = "vote.cast"
	EventProposalApproved = "proposal.approved"
	EventProposalExecuted = "proposal.executed"
	EventProposalRejected = "proposal.rejected"
	EventProposalExpired  = "proposal.expired"
)
