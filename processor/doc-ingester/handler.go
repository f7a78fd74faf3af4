package docingester

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/c360studio/agora/events"
	"github.com/c360studio/agora/extractor"
	"github.com/c360studio/agora/governance"
)

// Handler turns ingestion requests into archived documents with embed
// proposals raised for them.
type Handler struct {
	engine        *governance.Engine
	archive       governance.Archive
	urlExtractor  *extractor.URLExtractor
	fileExtractor *extractor.FileExtractor
	logger        *slog.Logger
}

// NewHandler creates a new ingestion handler.
func NewHandler(engine *governance.Engine, arch governance.Archive,
	urlExt *extractor.URLExtractor, fileExt *extractor.FileExtractor, logger *slog.Logger) (*Handler, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if arch == nil {
		return nil, fmt.Errorf("archive is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		engine:        engine,
		archive:       arch,
		urlExtractor:  urlExt,
		fileExtractor: fileExt,
		logger:        logger,
	}, nil
}

// IngestResult reports the stored document and its embed proposal.
type IngestResult struct {
	DocumentID string
	Proposal   *governance.Proposal
}

// Ingest extracts the request's source, stores the document in the archive,
// and raises an embed proposal on the collection. The archive write lands
// before governance approval; embedding is what the vote gates.
func (h *Handler) Ingest(ctx context.Context, req events.IngestRequestPayload) (*IngestResult, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", governance.ErrInvalidInput, err)
	}

	col, err := h.engine.GetCollection(ctx, req.CollectionID)
	if err != nil {
		return nil, err
	}
	if col.ArchiveCollectionID == "" {
		return nil, fmt.Errorf("%w: collection has no archive backing", governance.ErrInvalidState)
	}

	var doc *extractor.Document
	if req.URL != "" {
		doc, err = h.urlExtractor.Extract(ctx, req.URL)
	} else {
		doc, err = h.fileExtractor.Extract(req.Filename, []byte(req.Content))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: extract %s: %v", governance.ErrInvalidInput, req.Source(), err)
	}

	docID, err := h.archive.AddDocument(ctx, col.ArchiveCollectionID, doc.Title, doc.Content)
	if err != nil {
		return nil, err
	}

	description := fmt.Sprintf("Embed document %q", doc.Title)
	proposal, err := h.engine.CreateProposal(ctx, req.CollectionID, req.RequestedBy, description,
		governance.BatchEmbed{DocumentIDs: []string{docID}})
	if err != nil {
		if delErr := h.archive.DeleteDocument(ctx, col.ArchiveCollectionID, docID); delErr != nil {
			h.logger.Warn("Failed to remove document after proposal failure",
				"document", docID, "error", delErr)
		}
		return nil, err
	}

	return &IngestResult{DocumentID: docID, Proposal: proposal}, nil
}
