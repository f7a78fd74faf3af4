// Package events publishes governance lifecycle events to the GOVERNANCE
// stream for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/message"
	"github.com/c360studio/semstreams/natsclient"

	"github.com/c360studio/agora/governance"
)

func init() {
	err := component.RegisterPayload(&component.PayloadRegistration{
		Domain:      "governance",
		Category:    "proposal",
		Version:     "v1",
		Description: "Proposal lifecycle event",
		Factory:     func() any { return &ProposalEventPayload{} },
	})
	if err != nil {
		panic("failed to register ProposalEventPayload: " + err.Error())
	}
}

// ProposalEventType is the message type for proposal lifecycle events.
var ProposalEventType = message.Type{Domain: "governance", Category: "proposal", Version: "v1"}

// ProposalEventSubject is the stream subject lifecycle events publish to.
const ProposalEventSubject = "governance.events.proposal"

// ProposalEventPayload implements message.Payload for proposal lifecycle
// events.
type ProposalEventPayload struct {
	CollectionID string            `json:"collection_id"`
	ProposalID   string            `json:"proposal_id"`
	Kind         string            `json:"kind"`
	Status       governance.Status `json:"status"`
	Principal    string            `json:"principal,omitempty"`
	OccurredAt   time.Time         `json:"occurred_at"`
}

// Schema returns the message type for Payload interface.
func (p *ProposalEventPayload) Schema() message.Type { return ProposalEventType }

// Validate validates the payload for Payload interface.
func (p *ProposalEventPayload) Validate() error {
	if p.CollectionID == "" {
		return errors.New("collection ID is required")
	}
	if p.ProposalID == "" {
		return errors.New("proposal ID is required")
	}
	if p.Kind == "" {
		return errors.New("event kind is required")
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (p *ProposalEventPayload) MarshalJSON() ([]byte, error) {
	type Alias ProposalEventPayload
	return json.Marshal((*Alias)(p))
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *ProposalEventPayload) UnmarshalJSON(data []byte) error {
	type Alias ProposalEventPayload
	return json.Unmarshal(data, (*Alias)(p))
}

// Publisher implements governance.EventSink over a NATS stream. Publish
// failures are logged and dropped; lifecycle state is already persisted by
// the time an event fires.
type Publisher struct {
	natsClient *natsclient.Client
	logger     *slog.Logger
}

// NewPublisher creates an event publisher.
func NewPublisher(natsClient *natsclient.Client, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{natsClient: natsClient, logger: logger}
}

// ProposalEvent implements governance.EventSink.
func (p *Publisher) ProposalEvent(ctx context.Context, ev governance.ProposalEvent) {
	payload := &ProposalEventPayload{
		CollectionID: ev.CollectionID,
		ProposalID:   ev.ProposalID,
		Kind:         ev.Kind,
		Status:       ev.Status,
		Principal:    ev.Principal,
		OccurredAt:   time.Now(),
	}

	msg := message.NewBaseMessage(ProposalEventType, payload, "agora")
	data, err := json.Marshal(msg)
	if err != nil {
		p.logger.Warn("Failed to marshal proposal event", "proposal", ev.ProposalID, "error", err)
		return
	}
	if err := p.natsClient.PublishToStream(ctx, ProposalEventSubject, data); err != nil {
		p.logger.Warn("Failed to publish proposal event",
			"proposal", ev.ProposalID, "kind", ev.Kind, "error", err)
	}
}
