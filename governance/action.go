package governance

import (
	"encoding/json"
	"fmt"
)

// ActionKind discriminates the proposal action envelope.
type ActionKind string

const (
	ActionKindEmbedDocuments   ActionKind = "embed_documents"
	ActionKindBatchEmbed       ActionKind = "batch_embed"
	ActionKindAddAdmin         ActionKind = "add_admin"
	ActionKindRemoveAdmin      ActionKind = "remove_admin"
	ActionKindChangeThreshold  ActionKind = "change_threshold"
	ActionKindUpdateQuorum     ActionKind = "update_quorum"
	ActionKindUpdateConfig     ActionKind = "update_collection"
	ActionKindChangeModel      ActionKind = "change_governance_model"
	ActionKindDeleteCollection ActionKind = "delete_collection"
)

// Action is the sealed set of operations a proposal can authorize. Each
// variant validates its own input; execution preconditions live with the
// execution coordinator.
type Action interface {
	Kind() ActionKind
	Validate() error
}

// EmbedDocuments requests embedding of documents already stored in the
// archive.
type EmbedDocuments struct {
	DocumentIDs []string `json:"document_ids"`
}

// BatchEmbed requests embedding of a batch of documents. It is kept distinct
// from EmbedDocuments so batch ingestion flows carry their own provenance.
type BatchEmbed struct {
	DocumentIDs []string `json:"document_ids"`
}

// AddAdmin adds a principal to the collection's admin set.
type AddAdmin struct {
	Admin string `json:"admin"`
}

// RemoveAdmin removes a principal from the collection's admin set.
type RemoveAdmin struct {
	Admin string `json:"admin"`
}

// ChangeThreshold sets the multisig approval threshold.
type ChangeThreshold struct {
	NewThreshold int `json:"new_threshold"`
}

// UpdateQuorum sets the token-weighted quorum percentage.
type UpdateQuorum struct {
	NewPercentage int `json:"new_percentage"`
}

// UpdateConfig applies new descriptive fields to the collection.
type UpdateConfig struct {
	Config CollectionConfig `json:"config"`
}

// ChangeModel switches the collection's governance model.
type ChangeModel struct {
	Model Model `json:"model"`
}

// DeleteCollection removes the collection and its archive contents.
type DeleteCollection struct{}

func (EmbedDocuments) Kind() ActionKind   { return ActionKindEmbedDocuments }
func (BatchEmbed) Kind() ActionKind       { return ActionKindBatchEmbed }
func (AddAdmin) Kind() ActionKind         { return ActionKindAddAdmin }
func (RemoveAdmin) Kind() ActionKind      { return ActionKindRemoveAdmin }
func (ChangeThreshold) Kind() ActionKind  { return ActionKindChangeThreshold }
func (UpdateQuorum) Kind() ActionKind     { return ActionKindUpdateQuorum }
func (UpdateConfig) Kind() ActionKind     { return ActionKindUpdateConfig }
func (ChangeModel) Kind() ActionKind      { return ActionKindChangeModel }
func (DeleteCollection) Kind() ActionKind { return ActionKindDeleteCollection }

// Validate implements Action.
func (a EmbedDocuments) Validate() error {
	if len(a.DocumentIDs) == 0 {
		return fmt.Errorf("%w: at least one document required", ErrInvalidInput)
	}
	return validateDocumentIDs(a.DocumentIDs)
}

// Validate implements Action.
func (a BatchEmbed) Validate() error {
	if len(a.DocumentIDs) == 0 {
		return fmt.Errorf("%w: at least one document required", ErrInvalidInput)
	}
	return validateDocumentIDs(a.DocumentIDs)
}

// Validate implements Action.
func (a AddAdmin) Validate() error {
	if a.Admin == "" {
		return fmt.Errorf("%w: admin principal required", ErrInvalidInput)
	}
	return nil
}

// Validate implements Action.
func (a RemoveAdmin) Validate() error {
	if a.Admin == "" {
		return fmt.Errorf("%w: admin principal required", ErrInvalidInput)
	}
	return nil
}

// Validate implements Action.
func (a ChangeThreshold) Validate() error {
	if a.NewThreshold < 1 {
		return fmt.Errorf("%w: threshold must be at least 1, got %d", ErrInvalidInput, a.NewThreshold)
	}
	return nil
}

// Validate implements Action.
func (a UpdateQuorum) Validate() error {
	if a.NewPercentage < 0 || a.NewPercentage > 100 {
		return fmt.Errorf("%w: quorum percentage must be 0-100, got %d", ErrInvalidInput, a.NewPercentage)
	}
	return nil
}

// Validate implements Action.
func (a UpdateConfig) Validate() error {
	if a.Config.Name == "" {
		return fmt.Errorf("%w: collection name required", ErrInvalidInput)
	}
	return nil
}

// Validate implements Action.
func (a ChangeModel) Validate() error {
	if !a.Model.Valid() {
		return fmt.Errorf("%w: unknown governance model %q", ErrInvalidInput, a.Model)
	}
	return nil
}

// Validate implements Action.
func (DeleteCollection) Validate() error { return nil }

func validateDocumentIDs(ids []string) error {
	for _, id := range ids {
		if id == "" {
			return fmt.Errorf("%w: empty document id", ErrInvalidInput)
		}
	}
	return nil
}

// actionEnvelope is the wire form of an Action: a kind discriminator plus the
// variant's own fields.
type actionEnvelope struct {
	Type    ActionKind      `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MarshalAction encodes an action into its JSON envelope.
func MarshalAction(a Action) ([]byte, error) {
	if a == nil {
		return nil, fmt.Errorf("%w: nil action", ErrInvalidInput)
	}
	payload, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return json.Marshal(actionEnvelope{Type: a.Kind(), Payload: payload})
}

// UnmarshalAction decodes a JSON envelope into its concrete action variant.
func UnmarshalAction(data []byte) (Action, error) {
	var env actionEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}

	var a Action
	switch env.Type {
	case ActionKindEmbedDocuments:
		a = &EmbedDocuments{}
	case ActionKindBatchEmbed:
		a = &BatchEmbed{}
	case ActionKindAddAdmin:
		a = &AddAdmin{}
	case ActionKindRemoveAdmin:
		a = &RemoveAdmin{}
	case ActionKindChangeThreshold:
		a = &ChangeThreshold{}
	case ActionKindUpdateQuorum:
		a = &UpdateQuorum{}
	case ActionKindUpdateConfig:
		a = &UpdateConfig{}
	case ActionKindChangeModel:
		a = &ChangeModel{}
	case ActionKindDeleteCollection:
		a = &DeleteCollection{}
	default:
		return nil, fmt.Errorf("%w: unknown action type %q", ErrInvalidInput, env.Type)
	}

	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, a); err != nil {
			return nil, err
		}
	}
	return deref(a), nil
}

// deref returns the value form so comparisons in tests behave predictably.
func deref(a Action) Action {
	switch v := a.(type) {
	case *EmbedDocuments:
		return *v
	case *BatchEmbed:
		return *v
	case *AddAdmin:
		return *v
	case *RemoveAdmin:
		return *v
	case *ChangeThreshold:
		return *v
	case *UpdateQuorum:
		return *v
	case *UpdateConfig:
		return *v
	case *ChangeModel:
		return *v
	case *DeleteCollection:
		return *v
	}
	return a
}

// Billable reports whether the action consumes embedding credits and thus
// requires a resource preflight before execution.
func Billable(a Action) (docs int, billable bool) {
	switch v := a.(type) {
	case EmbedDocuments:
		return len(v.DocumentIDs), true
	case BatchEmbed:
		return len(v.DocumentIDs), true
	}
	return 0, false
}
