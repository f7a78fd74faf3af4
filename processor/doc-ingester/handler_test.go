package docingester

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/c360studio/agora/events"
	"github.com/c360studio/agora/extractor"
	"github.com/c360studio/agora/governance"
	"github.com/c360studio/agora/storage"
)

type countingArchive struct {
	addCalls    int
	addErr      error
	deletedDocs []string
}

func (a *countingArchive) CreateCollection(context.Context, string) (string, error) {
	return "arch-1", nil
}
func (a *countingArchive) DeleteCollection(context.Context, string) error { return nil }
func (a *countingArchive) AddDocument(context.Context, string, string, string) (string, error) {
	a.addCalls++
	if a.addErr != nil {
		return "", a.addErr
	}
	return fmt.Sprintf("doc-%d", a.addCalls), nil
}
func (a *countingArchive) EmbedDocument(context.Context, string, string) (int, error) {
	return 1, nil
}
func (a *countingArchive) DeleteDocument(_ context.Context, _, docID string) error {
	a.deletedDocs = append(a.deletedDocs, docID)
	return nil
}

type handlerFixture struct {
	handler *Handler
	archive *countingArchive
	engine  *governance.Engine
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()

	arch := &countingArchive{}
	engine, err := governance.NewEngine(governance.Options{
		Registry: storage.NewMemoryRegistry(),
		Archive:  arch,
	})
	if err != nil {
		t.Fatal(err)
	}

	h, err := NewHandler(engine, arch,
		extractor.NewURLExtractor(time.Second, "", 0),
		extractor.NewFileExtractor(nil), nil)
	if err != nil {
		t.Fatal(err)
	}
	return &handlerFixture{handler: h, archive: arch, engine: engine}
}

func (f *handlerFixture) createCollection(t *testing.T) *governance.Collection {
	t.Helper()
	c, err := f.engine.CreateCollection(context.Background(), "alice", governance.CreateCollectionRequest{
		Name:      "notes",
		Model:     governance.ModelPermissionless,
	})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestIngestFileSource(t *testing.T) {
	f := newHandlerFixture(t)
	col := f.createCollection(t)

	result, err := f.handler.Ingest(context.Background(), events.IngestRequestPayload{
		CollectionID: col.ID,
		Filename:     "release-plan.md",
		Content:      "# Release Plan\n\nShip in Q3.",
		RequestedBy:  "alice",
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.DocumentID != "doc-1" {
		t.Errorf("document = %q, want doc-1", result.DocumentID)
	}
	if result.Proposal == nil {
		t.Fatal("no proposal raised")
	}

	// The embed proposal targets the stored document.
	batch, ok := result.Proposal.Action.(governance.BatchEmbed)
	if !ok {
		t.Fatalf("action = %T, want BatchEmbed", result.Proposal.Action)
	}
	if len(batch.DocumentIDs) != 1 || batch.DocumentIDs[0] != "doc-1" {
		t.Errorf("batch targets %v, want [doc-1]", batch.DocumentIDs)
	}
}

func TestIngestInvalidRequest(t *testing.T) {
	f := newHandlerFixture(t)
	col := f.createCollection(t)

	tests := []struct {
		name string
		req  events.IngestRequestPayload
	}{
		{"no source", events.IngestRequestPayload{CollectionID: col.ID, RequestedBy: "alice"}},
		{"content without filename", events.IngestRequestPayload{CollectionID: col.ID, RequestedBy: "alice", Content: "x"}},
		{"unsupported file type", events.IngestRequestPayload{CollectionID: col.ID, RequestedBy: "alice", Filename: "a.zip", Content: "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.handler.Ingest(context.Background(), tt.req)
			if !errors.Is(err, governance.ErrInvalidInput) {
				t.Errorf("err = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestIngestUnknownCollection(t *testing.T) {
	f := newHandlerFixture(t)

	_, err := f.handler.Ingest(context.Background(), events.IngestRequestPayload{
		CollectionID: "col_missing",
		RequestedBy:  "alice",
		Filename:     "a.md",
		Content:      "# A",
	})
	if !errors.Is(err, governance.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if f.archive.addCalls != 0 {
		t.Error("document stored for unknown collection")
	}
}

func TestIngestRemovesDocumentWhenProposalFails(t *testing.T) {
	f := newHandlerFixture(t)

	// Multisig standing check rejects non-admin proposers after the document
	// is stored.
	col, err := f.engine.CreateCollection(context.Background(), "alice", governance.CreateCollectionRequest{
		Name:      "notes",
		Model:     governance.ModelMultisig,
		Threshold: 1,
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = f.handler.Ingest(context.Background(), events.IngestRequestPayload{
		CollectionID: col.ID,
		RequestedBy:  "mallory",
		Filename:     "a.md",
		Content:      "# A",
	})
	if !errors.Is(err, governance.ErrNotAuthorized) {
		t.Fatalf("err = %v, want ErrNotAuthorized", err)
	}
	if len(f.archive.deletedDocs) != 1 || f.archive.deletedDocs[0] != "doc-1" {
		t.Errorf("deleted docs = %v, want [doc-1]", f.archive.deletedDocs)
	}
}
