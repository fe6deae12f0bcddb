package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MokshitBindal/Aegis-sub000/internal/models"
)

// handleClaim is POST /api/alerts/{id}/claim (§4.8): admin/owner only,
// enforced again inside the state machine since an admin may claim but an
// assignee-restricted transition later in the lifecycle may not apply to them.
func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	actor := userFromContext(r.Context())
	assignment, err := s.triage.Claim(r.Context(), chi.URLParam(r, "id"), actor)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assignment)
}

type setStatusRequest struct {
	Resolution models.Resolution `json:"resolution"`
}

// handleSetStatus is PUT /api/alerts/{id}/status: the only externally
// reachable target is "resolved" with a resolution classification.
func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	actor := userFromContext(r.Context())
	var req setStatusRequest
	if err := decodeJSON(r, &req); err != nil || req.Resolution == "" {
		writeError(w, http.StatusBadRequest, "resolution is required")
		return
	}
	assignment, err := s.triage.SetStatus(r.Context(), chi.URLParam(r, "id"), actor, req.Resolution)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assignment)
}

type escalateRequest struct {
	OwnerID string `json:"owner_id"`
	Notes   string `json:"notes"`
}

// handleEscalate is POST /api/alerts/{id}/escalate: the assignee hands an
// investigating alert to a named owner.
func (s *Server) handleEscalate(w http.ResponseWriter, r *http.Request) {
	actor := userFromContext(r.Context())
	var req escalateRequest
	if err := decodeJSON(r, &req); err != nil || req.OwnerID == "" {
		writeError(w, http.StatusBadRequest, "owner_id is required")
		return
	}
	assignment, err := s.triage.Escalate(r.Context(), chi.URLParam(r, "id"), actor, req.OwnerID, req.Notes)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assignment)
}

type commentRequest struct {
	Note string `json:"note"`
}

// handleComment is POST /api/alerts/{id}/comment.
func (s *Server) handleComment(w http.ResponseWriter, r *http.Request) {
	actor := userFromContext(r.Context())
	var req commentRequest
	if err := decodeJSON(r, &req); err != nil || req.Note == "" {
		writeError(w, http.StatusBadRequest, "note is required")
		return
	}
	assignment, err := s.triage.Comment(r.Context(), chi.URLParam(r, "id"), actor, req.Note)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assignment)
}

type bulkAssignRequest struct {
	UserID string `json:"user_id"`
}

// handleBulkAssign is POST /api/alerts/{id}/bulk_assign (§4.8): like claim,
// but the assignee may differ from the actor — an owner may target any
// admin, an admin may only target themselves (enforced in the state machine).
func (s *Server) handleBulkAssign(w http.ResponseWriter, r *http.Request) {
	actor := userFromContext(r.Context())
	var req bulkAssignRequest
	if err := decodeJSON(r, &req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	assignment, err := s.triage.BulkAssign(r.Context(), chi.URLParam(r, "id"), actor, req.UserID)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assignment)
}
