package handler

import (
	"net/http"

	"github.com/alanyoungcy/solanabot/internal/domain"
)

// CandidateLister exposes the tracked candidate tokens.
type CandidateLister interface {
	Candidates() []domain.CandidateToken
}

// CandidateHandler serves the scanner's current candidates.
type CandidateHandler struct {
	registry CandidateLister
}

// NewCandidateHandler creates a CandidateHandler.
func NewCandidateHandler(registry CandidateLister) *CandidateHandler {
	return &CandidateHandler{registry: registry}
}

// ListCandidates returns every unexpired candidate with its last verdict.
// GET /api/candidates
func (h *CandidateHandler) ListCandidates(w http.ResponseWriter, r *http.Request) {
	out := h.registry.Candidates()
	if out == nil {
		out = []domain.CandidateToken{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"candidates": out, "count": len(out)})
}
