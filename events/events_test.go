package events

import (
	"testing"

	"github.com/c360studio/agora/governance"
)

func TestProposalEventPayloadValidate(t *testing.T) {
	valid := ProposalEventPayload{
		CollectionID: "col_1",
		ProposalID:   "prop_1",
		Kind:         governance.EventProposalCreated,
		Status:       governance.StatusActive,
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid payload: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*ProposalEventPayload)
	}{
		{"missing collection", func(p *ProposalEventPayload) { p.CollectionID = "" }},
		{"missing proposal", func(p *ProposalEventPayload) { p.ProposalID = "" }},
		{"missing kind", func(p *ProposalEventPayload) { p.Kind = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			if err := p.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestIngestRequestPayloadValidate(t *testing.T) {
	tests := []struct {
		name    string
		payload IngestRequestPayload
		wantErr bool
	}{
		{"url source", IngestRequestPayload{CollectionID: "c", RequestedBy: "alice", URL: "https://example.com"}, false},
		{"file source", IngestRequestPayload{CollectionID: "c", RequestedBy: "alice", Filename: "a.md", Content: "# A"}, false},
		{"missing collection", IngestRequestPayload{RequestedBy: "alice", URL: "https://example.com"}, true},
		{"missing requester", IngestRequestPayload{CollectionID: "c", URL: "https://example.com"}, true},
		{"no source", IngestRequestPayload{CollectionID: "c", RequestedBy: "alice"}, true},
		{"both sources", IngestRequestPayload{CollectionID: "c", RequestedBy: "alice", URL: "https://example.com", Content: "x", Filename: "a.md"}, true},
		{"content without filename", IngestRequestPayload{CollectionID: "c", RequestedBy: "alice", Content: "x"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.payload.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestIngestRequestPayloadSource(t *testing.T) {
	url := IngestRequestPayload{URL: "https://example.com/a"}
	if url.Source() != "https://example.com/a" {
		t.Errorf("source = %q", url.Source())
	}
	file := IngestRequestPayload{Filename: "notes.md", Content: "x"}
	if file.Source() != "notes.md" {
		t.Errorf("source = %q", file.Source())
	}
}
