package collectionapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/c360studio/semstreams/message"

	"github.com/c360studio/agora/credits"
	"github.com/c360studio/agora/events"
	"github.com/c360studio/agora/extractor"
	"github.com/c360studio/agora/governance"
	"github.com/c360studio/agora/metrics"
)

// PrincipalHeader carries the caller's identity. Authentication happens at
// the edge; this component trusts the header.
const PrincipalHeader = "X-Agora-Principal"

// RegisterHTTPHandlers registers HTTP handlers for the collection-api
// component. The prefix includes the trailing slash (e.g., "/collection-api/").
func (c *Component) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	mux.HandleFunc(prefix+"collections", c.handleCollectionsRoot)
	mux.HandleFunc(prefix+"collections/", c.handleCollection)
	mux.HandleFunc(prefix+"credits/status", c.handleCreditsStatus)
	mux.HandleFunc(prefix+"credits/fund", c.handleCreditsFund)
}

// createCollectionRequest is the body for collection creation.
type createCollectionRequest struct {
	Name            string           `json:"name"`
	Description     string           `json:"description"`
	Model           governance.Model `json:"governance_model"`
	Threshold       int              `json:"threshold,omitempty"`
	QuorumThreshold int              `json:"quorum_threshold,omitempty"`
	GovernanceToken string           `json:"governance_token,omitempty"`
	AssemblyID      string           `json:"assembly_id,omitempty"`
}

// addDocumentRequest is the body for direct document addition.
type addDocumentRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// addDocumentResponse reports the stored document and the embed proposal
// raised for it.
type addDocumentResponse struct {
	DocumentID string                `json:"document_id"`
	Proposal   *governance.Proposal  `json:"proposal"`
	Progress   []*extractor.Progress `json:"progress,omitempty"`
}

// extractURLRequest is the body for synchronous URL extraction.
type extractURLRequest struct {
	URL string `json:"url"`
}

// extractFileRequest is the body for synchronous file extraction.
type extractFileRequest struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// batchSource is one entry of a batch extraction request.
type batchSource struct {
	URL      string `json:"url,omitempty"`
	Filename string `json:"filename,omitempty"`
	Content  string `json:"content,omitempty"`
}

// extractBatchRequest queues sources for asynchronous ingestion.
type extractBatchRequest struct {
	Sources []batchSource `json:"sources"`
}

// extractBatchResponse reports how many sources were queued.
type extractBatchResponse struct {
	Queued int `json:"queued"`
}

// adminCheckResponse reports membership for one principal.
type adminCheckResponse struct {
	Principal string `json:"principal"`
	IsAdmin   bool   `json:"is_admin"`
}

// fundRequest is the body for credit transfers to the archive account.
type fundRequest struct {
	Amount uint64 `json:"amount"`
}

// cleanupResponse reports removed progress entry count.
type cleanupResponse struct {
	Removed int `json:"removed"`
}

func (c *Component) handleCollectionsRoot(w http.ResponseWriter, r *http.Request) {
	c.updateLastActivity()
	c.requestsServed.Add(1)

	engine := c.getEngine()
	if engine == nil {
		http.Error(w, "Engine not ready", http.StatusServiceUnavailable)
		return
	}

	switch r.Method {
	case http.MethodGet:
		cols, err := engine.ListCollections(r.Context())
		if err != nil {
			c.writeError(w, err)
			return
		}
		if cols == nil {
			cols = []*governance.Collection{}
		}
		c.writeJSON(w, http.StatusOK, cols)

	case http.MethodPost:
		creator := principal(r)
		if creator == "" {
			http.Error(w, "Principal header required", http.StatusUnauthorized)
			return
		}
		var req createCollectionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		col, err := engine.CreateCollection(r.Context(), creator, governance.CreateCollectionRequest{
			Name:            req.Name,
			Description:     req.Description,
			Model:           req.Model,
			Threshold:       req.Threshold,
			QuorumThreshold: req.QuorumThreshold,
			GovernanceToken: req.GovernanceToken,
			AssemblyID:      req.AssemblyID,
		})
		if err != nil {
			c.writeError(w, err)
			return
		}
		c.writeJSON(w, http.StatusCreated, col)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleCollection dispatches requests under collections/{cid}/...
func (c *Component) handleCollection(w http.ResponseWriter, r *http.Request) {
	c.updateLastActivity()
	c.requestsServed.Add(1)

	engine := c.getEngine()
	if engine == nil {
		http.Error(w, "Engine not ready", http.StatusServiceUnavailable)
		return
	}

	collectionID, rest := splitCollectionPath(r.URL.Path)
	if collectionID == "" {
		http.Error(w, "Collection ID required", http.StatusBadRequest)
		return
	}

	switch {
	case rest == "":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		col, err := engine.GetCollection(r.Context(), collectionID)
		if err != nil {
			c.writeError(w, err)
			return
		}
		c.writeJSON(w, http.StatusOK, col)

	case strings.HasPrefix(rest, "admins/"):
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		target := strings.TrimPrefix(rest, "admins/")
		col, err := engine.GetCollection(r.Context(), collectionID)
		if err != nil {
			c.writeError(w, err)
			return
		}
		c.writeJSON(w, http.StatusOK, adminCheckResponse{
			Principal: target,
			IsAdmin:   col.IsAdmin(target),
		})

	case rest == "documents":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		c.handleAddDocument(w, r, collectionID)

	case rest == "extract/url":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		c.handleExtractURL(w, r, collectionID)

	case rest == "extract/file":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		c.handleExtractFile(w, r, collectionID)

	case rest == "extract/batch":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		c.handleExtractBatch(w, r, collectionID)

	case rest == "extract/progress":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		c.handleProgress(w, r, collectionID)

	case rest == "extract/cleanup":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		removed := c.tracker.Cleanup(c.config.ProgressMaxAge())
		c.writeJSON(w, http.StatusOK, cleanupResponse{Removed: removed})

	default:
		http.Error(w, "Unknown endpoint", http.StatusNotFound)
	}
}

func (c *Component) handleAddDocument(w http.ResponseWriter, r *http.Request, collectionID string) {
	caller := principal(r)
	if caller == "" {
		http.Error(w, "Principal header required", http.StatusUnauthorized)
		return
	}
	var req addDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Title == "" || req.Content == "" {
		http.Error(w, "Title and content are required", http.StatusBadRequest)
		return
	}

	docID, proposal, err := c.storeAndPropose(r.Context(), collectionID, caller, req.Title, req.Content)
	if err != nil {
		c.writeError(w, err)
		return
	}
	metrics.DocumentsIngested.WithLabelValues("api").Inc()
	c.writeJSON(w, http.StatusCreated, addDocumentResponse{DocumentID: docID, Proposal: proposal})
}

func (c *Component) handleExtractURL(w http.ResponseWriter, r *http.Request, collectionID string) {
	caller := principal(r)
	if caller == "" {
		http.Error(w, "Principal header required", http.StatusUnauthorized)
		return
	}
	var req extractURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.URL == "" {
		http.Error(w, "URL is required", http.StatusBadRequest)
		return
	}

	c.tracker.Start(collectionID, req.URL)
	doc, err := c.urlExtractor.Extract(r.Context(), req.URL)
	if err != nil {
		c.tracker.Fail(collectionID, req.URL, err)
		c.writeError(w, fmt.Errorf("%w: %v", governance.ErrInvalidInput, err))
		return
	}

	docID, proposal, err := c.storeAndPropose(r.Context(), collectionID, caller, doc.Title, doc.Content)
	if err != nil {
		c.tracker.Fail(collectionID, req.URL, err)
		c.writeError(w, err)
		return
	}
	c.tracker.Complete(collectionID, req.URL, docID)
	metrics.DocumentsIngested.WithLabelValues("url").Inc()
	c.writeJSON(w, http.StatusCreated, addDocumentResponse{DocumentID: docID, Proposal: proposal})
}

func (c *Component) handleExtractFile(w http.ResponseWriter, r *http.Request, collectionID string) {
	caller := principal(r)
	if caller == "" {
		http.Error(w, "Principal header required", http.StatusUnauthorized)
		return
	}
	var req extractFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Filename == "" || req.Content == "" {
		http.Error(w, "Filename and content are required", http.StatusBadRequest)
		return
	}

	c.tracker.Start(collectionID, req.Filename)
	doc, err := c.fileExtractor.Extract(req.Filename, []byte(req.Content))
	if err != nil {
		c.tracker.Fail(collectionID, req.Filename, err)
		c.writeError(w, fmt.Errorf("%w: %v", governance.ErrInvalidInput, err))
		return
	}

	docID, proposal, err := c.storeAndPropose(r.Context(), collectionID, caller, doc.Title, doc.Content)
	if err != nil {
		c.tracker.Fail(collectionID, req.Filename, err)
		c.writeError(w, err)
		return
	}
	c.tracker.Complete(collectionID, req.Filename, docID)
	metrics.DocumentsIngested.WithLabelValues("file").Inc()
	c.writeJSON(w, http.StatusCreated, addDocumentResponse{DocumentID: docID, Proposal: proposal})
}

func (c *Component) handleExtractBatch(w http.ResponseWriter, r *http.Request, collectionID string) {
	caller := principal(r)
	if caller == "" {
		http.Error(w, "Principal header required", http.StatusUnauthorized)
		return
	}
	var req extractBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Sources) == 0 {
		http.Error(w, "At least one source is required", http.StatusBadRequest)
		return
	}

	queued := 0
	for _, src := range req.Sources {
		payload := &events.IngestRequestPayload{
			CollectionID: collectionID,
			URL:          src.URL,
			Filename:     src.Filename,
			Content:      src.Content,
			RequestedBy:  caller,
			RequestedAt:  time.Now(),
		}
		if err := payload.Validate(); err != nil {
			c.logger.Warn("Skipping invalid batch source", "error", err)
			continue
		}

		msg := message.NewBaseMessage(events.IngestRequestType, payload, "agora")
		data, err := json.Marshal(msg)
		if err != nil {
			c.logger.Warn("Failed to marshal ingest request", "source", payload.Source(), "error", err)
			continue
		}
		if err := c.natsClient.PublishToStream(r.Context(), c.config.IngestSubject, data); err != nil {
			c.writeError(w, fmt.Errorf("%w: publish ingest request: %v", governance.ErrExternalService, err))
			return
		}
		c.tracker.Start(collectionID, payload.Source())
		queued++
	}

	if queued == 0 {
		http.Error(w, "No valid sources in batch", http.StatusBadRequest)
		return
	}
	c.writeJSON(w, http.StatusAccepted, extractBatchResponse{Queued: queued})
}

func (c *Component) handleProgress(w http.ResponseWriter, r *http.Request, collectionID string) {
	if source := r.URL.Query().Get("source"); source != "" {
		p := c.tracker.Get(collectionID, source)
		if p == nil {
			c.writeError(w, fmt.Errorf("%w: no extraction tracked for source", governance.ErrNotFound))
			return
		}
		c.writeJSON(w, http.StatusOK, p)
		return
	}

	list := c.tracker.List(collectionID)
	if list == nil {
		list = []*extractor.Progress{}
	}
	c.writeJSON(w, http.StatusOK, list)
}

// storeAndPropose adds a document to the archive and raises the embed
// proposal for it. The archive write lands before governance approval;
// embedding is what the vote gates. A failed proposal removes the stored
// document best effort.
func (c *Component) storeAndPropose(ctx context.Context, collectionID, caller, title, content string) (string, *governance.Proposal, error) {
	engine := c.getEngine()
	col, err := engine.GetCollection(ctx, collectionID)
	if err != nil {
		return "", nil, err
	}
	if col.ArchiveCollectionID == "" {
		return "", nil, fmt.Errorf("%w: collection has no archive backing", governance.ErrInvalidState)
	}

	docID, err := c.archiveClient.AddDocument(ctx, col.ArchiveCollectionID, title, content)
	if err != nil {
		return "", nil, err
	}

	description := fmt.Sprintf("Embed document %q", title)
	proposal, err := engine.CreateProposal(ctx, collectionID, caller, description,
		governance.BatchEmbed{DocumentIDs: []string{docID}})
	if err != nil {
		if delErr := c.archiveClient.DeleteDocument(ctx, col.ArchiveCollectionID, docID); delErr != nil {
			c.logger.Warn("Failed to remove document after proposal failure",
				"document", docID, "error", delErr)
		}
		return "", nil, err
	}
	return docID, proposal, nil
}

func (c *Component) handleCreditsStatus(w http.ResponseWriter, r *http.Request) {
	c.updateLastActivity()
	c.requestsServed.Add(1)

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	meter := c.getMeter()
	if meter == nil {
		http.Error(w, "Credit meter not ready", http.StatusServiceUnavailable)
		return
	}
	report, err := meter.Status(r.Context())
	if err != nil {
		c.writeError(w, err)
		return
	}
	c.writeJSON(w, http.StatusOK, report)
}

func (c *Component) handleCreditsFund(w http.ResponseWriter, r *http.Request) {
	c.updateLastActivity()
	c.requestsServed.Add(1)

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	meter := c.getMeter()
	if meter == nil {
		http.Error(w, "Credit meter not ready", http.StatusServiceUnavailable)
		return
	}
	var req fundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Amount == 0 {
		http.Error(w, "Amount must be positive", http.StatusBadRequest)
		return
	}
	if err := meter.FundArchive(r.Context(), req.Amount); err != nil {
		c.writeError(w, err)
		return
	}
	report, err := meter.Status(r.Context())
	if err != nil {
		c.writeError(w, err)
		return
	}
	c.writeJSON(w, http.StatusOK, report)
}

// getEngine returns the engine once Start has wired it, nil before.
func (c *Component) getEngine() *governance.Engine {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.engine
}

// getMeter returns the credit meter once Start has wired it, nil before.
func (c *Component) getMeter() *credits.Meter {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.meter
}

// principal extracts the caller identity from the request.
func principal(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(PrincipalHeader))
}

// splitCollectionPath extracts the collection ID and the remainder from a
// path like /collection-api/collections/{cid}/extract/url.
func splitCollectionPath(path string) (collectionID, rest string) {
	idx := strings.Index(path, "/collections/")
	if idx == -1 {
		return "", ""
	}
	remainder := path[idx+len("/collections/"):]
	parts := strings.SplitN(remainder, "/", 2)
	collectionID = parts[0]
	if len(parts) > 1 {
		rest = strings.TrimSuffix(parts[1], "/")
	}
	return collectionID, rest
}

// writeJSON writes a JSON response body.
func (c *Component) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		c.logger.Warn("Failed to write response", "error", err)
	}
}

// writeError maps domain errors to HTTP status codes.
func (c *Component) writeError(w http.ResponseWriter, err error) {
	c.errors.Add(1)
	http.Error(w, err.Error(), statusFor(err))
}

// statusFor maps the governance error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, governance.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, governance.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, governance.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, governance.ErrInvalidState),
		errors.Is(err, governance.ErrExpired),
		errors.Is(err, governance.ErrThresholdNotMet):
		return http.StatusConflict
	case errors.Is(err, governance.ErrInsufficientResources):
		return http.StatusPaymentRequired
	case errors.Is(err, governance.ErrExternalService):
		return http.StatusBadGateway
	case errors.Is(err, governance.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
