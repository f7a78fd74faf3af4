package governanceapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/c360studio/agora/governance"
)

// PrincipalHeader carries the caller's identity. Authentication happens at
// the edge; this component trusts the header.
const PrincipalHeader = "X-Agora-Principal"

// RegisterHTTPHandlers registers HTTP handlers for the governance-api
// component. The prefix includes the trailing slash (e.g., "/governance-api/").
func (c *Component) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	mux.HandleFunc(prefix+"collections/", c.handleCollections)
}

// createProposalRequest is the body for proposal creation. The action uses
// the governance action envelope.
type createProposalRequest struct {
	Description string          `json:"description"`
	Action      json.RawMessage `json:"action"`
}

// voteRequest is the body for vote submission.
type voteRequest struct {
	Choice governance.Choice `json:"choice"`
}

// linkRequest is the body for assembly proposal linking.
type linkRequest struct {
	AssemblyProposalID uint64 `json:"assembly_proposal_id"`
}

// cleanupResponse reports removed proposal count.
type cleanupResponse struct {
	Removed int `json:"removed"`
}

// handleCollections dispatches requests under collections/{cid}/proposals.
func (c *Component) handleCollections(w http.ResponseWriter, r *http.Request) {
	c.updateLastActivity()
	c.requestsServed.Add(1)

	engine := c.getEngine()
	if engine == nil {
		http.Error(w, "Governance engine not ready", http.StatusServiceUnavailable)
		return
	}

	collectionID, rest := splitCollectionPath(r.URL.Path)
	if collectionID == "" || rest == "" || !strings.HasPrefix(rest, "proposals") {
		http.Error(w, "Unknown endpoint", http.StatusNotFound)
		return
	}
	rest = strings.Trim(strings.TrimPrefix(rest, "proposals"), "/")

	switch {
	case rest == "":
		switch r.Method {
		case http.MethodGet:
			c.handleListActive(w, r, engine, collectionID)
		case http.MethodPost:
			c.handleCreateProposal(w, r, engine, collectionID)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}

	case rest == "cleanup":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		c.handleCleanup(w, r, engine, collectionID)

	default:
		proposalID, endpoint := splitProposalPath(rest)
		if proposalID == "" {
			http.Error(w, "Proposal ID required", http.StatusBadRequest)
			return
		}
		c.handleProposal(w, r, engine, collectionID, proposalID, endpoint)
	}
}

func (c *Component) handleProposal(w http.ResponseWriter, r *http.Request, engine *governance.Engine, collectionID, proposalID, endpoint string) {
	switch endpoint {
	case "":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		p, err := engine.GetStatus(r.Context(), collectionID, proposalID)
		if err != nil {
			c.writeError(w, err)
			return
		}
		c.writeJSON(w, http.StatusOK, p)

	case "votes":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		voter := principal(r)
		if voter == "" {
			http.Error(w, "Principal header required", http.StatusUnauthorized)
			return
		}
		var req voteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		p, err := engine.Vote(r.Context(), collectionID, proposalID, voter, req.Choice)
		if err != nil {
			c.writeError(w, err)
			return
		}
		c.writeJSON(w, http.StatusOK, p)

	case "execute":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		caller := principal(r)
		if caller == "" {
			http.Error(w, "Principal header required", http.StatusUnauthorized)
			return
		}
		p, err := engine.Execute(r.Context(), collectionID, proposalID, caller)
		if err != nil {
			// A rejected proposal is still a committed outcome; return it
			// alongside the error classification.
			if p != nil && p.Status == governance.StatusRejected {
				c.writeJSON(w, statusFor(err), p)
				return
			}
			c.writeError(w, err)
			return
		}
		c.writeJSON(w, http.StatusOK, p)

	case "assembly-link":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		caller := principal(r)
		if caller == "" {
			http.Error(w, "Principal header required", http.StatusUnauthorized)
			return
		}
		var req linkRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		p, err := engine.LinkAssemblyProposal(r.Context(), collectionID, proposalID, caller, req.AssemblyProposalID)
		if err != nil {
			c.writeError(w, err)
			return
		}
		c.writeJSON(w, http.StatusOK, p)

	case "assembly-sync":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		p, err := engine.SyncAssemblyStatus(r.Context(), collectionID, proposalID)
		if err != nil {
			c.writeError(w, err)
			return
		}
		c.writeJSON(w, http.StatusOK, p)

	default:
		http.Error(w, "Unknown endpoint", http.StatusNotFound)
	}
}

func (c *Component) handleListActive(w http.ResponseWriter, r *http.Request, engine *governance.Engine, collectionID string) {
	proposals, err := engine.ListActiveProposals(r.Context(), collectionID)
	if err != nil {
		c.writeError(w, err)
		return
	}
	if proposals == nil {
		proposals = []*governance.Proposal{}
	}
	c.writeJSON(w, http.StatusOK, proposals)
}

func (c *Component) handleCreateProposal(w http.ResponseWriter, r *http.Request, engine *governance.Engine, collectionID string) {
	creator := principal(r)
	if creator == "" {
		http.Error(w, "Principal header required", http.StatusUnauthorized)
		return
	}

	var req createProposalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	action, err := governance.UnmarshalAction(req.Action)
	if err != nil {
		c.writeError(w, err)
		return
	}

	p, err := engine.CreateProposal(r.Context(), collectionID, creator, req.Description, action)
	if err != nil {
		c.writeError(w, err)
		return
	}
	c.writeJSON(w, http.StatusCreated, p)
}

func (c *Component) handleCleanup(w http.ResponseWriter, r *http.Request, engine *governance.Engine, collectionID string) {
	removed, err := engine.CleanupExpired(r.Context(), collectionID)
	if err != nil {
		c.writeError(w, err)
		return
	}
	c.writeJSON(w, http.StatusOK, cleanupResponse{Removed: removed})
}

// principal extracts the caller identity from the request.
func principal(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(PrincipalHeader))
}

// splitCollectionPath extracts the collection ID and the remainder from a
// path like /governance-api/collections/{cid}/proposals/...
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

// splitProposalPath splits "{pid}" or "{pid}/{endpoint}".
func splitProposalPath(rest string) (proposalID, endpoint string) {
	parts := strings.SplitN(rest, "/", 2)
	proposalID = parts[0]
	if len(parts) > 1 {
		endpoint = parts[1]
	}
	return proposalID, endpoint
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
