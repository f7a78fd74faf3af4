// Package governance implements proposal-based governance over document
// collections: proposal lifecycle, vote ledger, threshold evaluation, and
// the execution coordinator that applies approved proposals.
package governance

import (
	"encoding/json"
	"fmt"
	"time"
)

// Model identifies how a collection reaches decisions.
type Model string

const (
	// ModelPermissionless auto-approves proposals at creation; there is no
	// local voting.
	ModelPermissionless Model = "permissionless"

	// ModelMultisig approves when enough distinct admins vote yes.
	ModelMultisig Model = "multisig"

	// ModelTokenWeighted approves when yes votes, weighted by token balance
	// snapshots, reach the quorum percentage of total supply.
	ModelTokenWeighted Model = "token_weighted"

	// ModelAssembly delegates the decision to an external assembly; local
	// voting is disabled and approval follows the assembly's verdict.
	ModelAssembly Model = "assembly"
)

// Valid reports whether m is a known governance model.
func (m Model) Valid() bool {
	switch m {
	case ModelPermissionless, ModelMultisig, ModelTokenWeighted, ModelAssembly:
		return true
	}
	return false
}

// Status is a proposal lifecycle state.
type Status string

const (
	StatusActive   Status = "active"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusExecuted Status = "executed"
	StatusExpired  Status = "expired"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusExecuted || s == StatusExpired
}

// Choice is a single vote value.
type Choice string

const (
	ChoiceYes     Choice = "yes"
	ChoiceNo      Choice = "no"
	ChoiceAbstain Choice = "abstain"
)

// Valid reports whether c is a known vote choice.
func (c Choice) Valid() bool {
	return c == ChoiceYes || c == ChoiceNo || c == ChoiceAbstain
}

// CollectionConfig carries the mutable descriptive fields of a collection,
// applied by an update-collection proposal.
type CollectionConfig struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Collection is a governed document collection. The Proposals map holds open
// proposals only; terminal proposals are pruned when their outcome commits.
type Collection struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Creator     string    `json:"creator"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Admins          []string `json:"admins"`
	Threshold       int      `json:"threshold"`
	QuorumThreshold int      `json:"quorum_threshold"`
	Model           Model    `json:"governance_model"`

	// GovernanceToken names the token ledger account backing token-weighted
	// voting. Empty for other models.
	GovernanceToken string `json:"governance_token,omitempty"`

	// AssemblyID references the external decision body for assembly-governed
	// collections. Empty for other models.
	AssemblyID string `json:"assembly_id,omitempty"`

	// ArchiveCollectionID is the collection's identity in the document
	// archive service.
	ArchiveCollectionID string `json:"archive_collection_id,omitempty"`

	Proposals       map[string]*Proposal `json:"proposals"`
	ProposalCounter uint64               `json:"proposal_counter"`
}

// IsAdmin reports whether principal is an admin of the collection.
func (c *Collection) IsAdmin(principal string) bool {
	for _, a := range c.Admins {
		if a == principal {
			return true
		}
	}
	return false
}

// Validate checks structural invariants on the collection.
func (c *Collection) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: collection id required", ErrInvalidInput)
	}
	if c.Name == "" {
		return fmt.Errorf("%w: collection name required", ErrInvalidInput)
	}
	if !c.Model.Valid() {
		return fmt.Errorf("%w: unknown governance model %q", ErrInvalidInput, c.Model)
	}
	if len(c.Admins) == 0 {
		return fmt.Errorf("%w: at least one admin required", ErrInvalidInput)
	}
	if c.QuorumThreshold < 0 || c.QuorumThreshold > 100 {
		return fmt.Errorf("%w: quorum threshold must be 0-100, got %d", ErrInvalidInput, c.QuorumThreshold)
	}
	if c.Model == ModelMultisig && (c.Threshold < 1 || c.Threshold > len(c.Admins)) {
		return fmt.Errorf("%w: multisig threshold must be between 1 and %d, got %d",
			ErrInvalidInput, len(c.Admins), c.Threshold)
	}
	if c.Model == ModelTokenWeighted && c.GovernanceToken == "" {
		return fmt.Errorf("%w: token-weighted collection requires a governance token", ErrInvalidInput)
	}
	return nil
}

// Proposal is a single governance proposal within a collection.
type Proposal struct {
	ID           string `json:"id"`
	CollectionID string `json:"collection_id"`
	Action       Action `json:"-"`
	Creator      string `json:"creator"`
	Description  string `json:"description"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Status    Status    `json:"status"`

	// Votes records one choice per principal.
	Votes map[string]Choice `json:"votes"`

	// TokenVotes records the voter's balance snapshot taken at vote time.
	// Populated for token-weighted collections only.
	TokenVotes map[string]uint64 `json:"token_votes,omitempty"`

	// Threshold is the collection threshold snapshot taken at creation.
	Threshold    int  `json:"threshold"`
	ThresholdMet bool `json:"threshold_met"`

	Executed   bool       `json:"executed"`
	ExecutedAt *time.Time `json:"executed_at,omitempty"`
	ExecutedBy string     `json:"executed_by,omitempty"`

	// AssemblyProposalID links to the external assembly's proposal for
	// assembly-governed collections. Zero when unlinked.
	AssemblyProposalID uint64 `json:"assembly_proposal_id,omitempty"`
}

// ExpiredAt reports whether the proposal's voting window had closed at t.
func (p *Proposal) ExpiredAt(t time.Time) bool {
	return t.After(p.ExpiresAt)
}

// YesVotes counts yes choices in the ledger.
func (p *Proposal) YesVotes() int {
	n := 0
	for _, c := range p.Votes {
		if c == ChoiceYes {
			n++
		}
	}
	return n
}

// YesWeight sums token snapshots of principals that voted yes.
func (p *Proposal) YesWeight() uint64 {
	var total uint64
	for principal, c := range p.Votes {
		if c == ChoiceYes {
			total += p.TokenVotes[principal]
		}
	}
	return total
}

// proposalJSON mirrors Proposal with the action as a raw envelope so the
// sealed Action sum type survives JSON round trips.
type proposalJSON struct {
	ID                 string            `json:"id"`
	CollectionID       string            `json:"collection_id"`
	Action             json.RawMessage   `json:"action"`
	Creator            string            `json:"creator"`
	Description        string            `json:"description"`
	CreatedAt          time.Time         `json:"created_at"`
	ExpiresAt          time.Time         `json:"expires_at"`
	Status             Status            `json:"status"`
	Votes              map[string]Choice `json:"votes"`
	TokenVotes         map[string]uint64 `json:"token_votes,omitempty"`
	Threshold          int               `json:"threshold"`
	ThresholdMet       bool              `json:"threshold_met"`
	Executed           bool              `json:"executed"`
	ExecutedAt         *time.Time        `json:"executed_at,omitempty"`
	ExecutedBy         string            `json:"executed_by,omitempty"`
	AssemblyProposalID uint64            `json:"assembly_proposal_id,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (p *Proposal) MarshalJSON() ([]byte, error) {
	action, err := MarshalAction(p.Action)
	if err != nil {
		return nil, fmt.Errorf("marshal proposal action: %w", err)
	}
	return json.Marshal(proposalJSON{
		ID:                 p.ID,
		CollectionID:       p.CollectionID,
		Action:             action,
		Creator:            p.Creator,
		Description:        p.Description,
		CreatedAt:          p.CreatedAt,
		ExpiresAt:          p.ExpiresAt,
		Status:             p.Status,
		Votes:              p.Votes,
		TokenVotes:         p.TokenVotes,
		Threshold:          p.Threshold,
		ThresholdMet:       p.ThresholdMet,
		Executed:           p.Executed,
		ExecutedAt:         p.ExecutedAt,
		ExecutedBy:         p.ExecutedBy,
		AssemblyProposalID: p.AssemblyProposalID,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Proposal) UnmarshalJSON(data []byte) error {
	var raw proposalJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	action, err := UnmarshalAction(raw.Action)
	if err != nil {
		return fmt.Errorf("unmarshal proposal action: %w", err)
	}
	*p = Proposal{
		ID:                 raw.ID,
		CollectionID:       raw.CollectionID,
		Action:             action,
		Creator:            raw.Creator,
		Description:        raw.Description,
		CreatedAt:          raw.CreatedAt,
		ExpiresAt:          raw.ExpiresAt,
		Status:             raw.Status,
		Votes:              raw.Votes,
		TokenVotes:         raw.TokenVotes,
		Threshold:          raw.Threshold,
		ThresholdMet:       raw.ThresholdMet,
		Executed:           raw.Executed,
		ExecutedAt:         raw.ExecutedAt,
		ExecutedBy:         raw.ExecutedBy,
		AssemblyProposalID: raw.AssemblyProposalID,
	}
	return nil
}
