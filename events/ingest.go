package events

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/message"
)

func init() {
	err := component.RegisterPayload(&component.PayloadRegistration{
		Domain:      "agora",
		Category:    "ingest",
		Version:     "v1",
		Description: "Document ingestion request",
		Factory:     func() any { return &IngestRequestPayload{} },
	})
	if err != nil {
		panic("failed to register IngestRequestPayload: " + err.Error())
	}
}

// IngestRequestType is the message type for document ingestion requests.
var IngestRequestType = message.Type{Domain: "agora", Category: "ingest", Version: "v1"}

// IngestRequestSubject is the stream subject ingestion requests publish to.
const IngestRequestSubject = "docs.ingest.request"

// IngestRequestPayload implements message.Payload for asynchronous document
// ingestion. Exactly one of URL or Content is set: URL sources are fetched
// and extracted, Content sources carry the raw file body with Filename
// naming the original file.
type IngestRequestPayload struct {
	CollectionID string    `json:"collection_id"`
	URL          string    `json:"url,omitempty"`
	Filename     string    `json:"filename,omitempty"`
	Content      string    `json:"content,omitempty"`
	RequestedBy  string    `json:"requested_by"`
	RequestedAt  time.Time `json:"requested_at"`
}

// Schema returns the message type for Payload interface.
func (p *IngestRequestPayload) Schema() message.Type { return IngestRequestType }

// Validate validates the payload for Payload interface.
func (p *IngestRequestPayload) Validate() error {
	if p.CollectionID == "" {
		return errors.New("collection ID is required")
	}
	if p.RequestedBy == "" {
		return errors.New("requester is required")
	}
	if p.URL == "" && p.Content == "" {
		return errors.New("either url or content is required")
	}
	if p.URL != "" && p.Content != "" {
		return errors.New("url and content are mutually exclusive")
	}
	if p.Content != "" && p.Filename == "" {
		return errors.New("filename is required for content sources")
	}
	return nil
}

// Source names the ingestion source for progress tracking.
func (p *IngestRequestPayload) Source() string {
	if p.URL != "" {
		return p.URL
	}
	return p.Filename
}

// MarshalJSON implements json.Marshaler.
func (p *IngestRequestPayload) MarshalJSON() ([]byte, error) {
	type Alias IngestRequestPayload
	return json.Marshal((*Alias)(p))
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *IngestRequestPayload) UnmarshalJSON(data []byte) error {
	type Alias IngestRequestPayload
	return json.Unmarshal(data, (*Alias)(p))
}
