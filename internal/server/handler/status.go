package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/solanabot/internal/domain"
)

// SummaryProvider derives the performance summary.
type SummaryProvider interface {
	Summary(ctx context.Context) (domain.Summary, error)
}

// StatusHandler serves the combined dashboard snapshot.
type StatusHandler struct {
	positions PositionService
	metrics   SummaryProvider
	mode      string
	startedAt time.Time
	logger    *slog.Logger
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(positions PositionService, metrics SummaryProvider, mode string, startedAt time.Time, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		positions: positions,
		metrics:   metrics,
		mode:      mode,
		startedAt: startedAt,
		logger:    logger,
	}
}

type statusResponse struct {
	Mode            string                     `json:"mode"`
	UptimeSeconds   int64                      `json:"uptime_seconds"`
	Metrics         domain.Summary             `json:"metrics"`
	ActivePositions map[string]domain.Position `json:"active_positions"`
	PositionHistory []domain.ClosedPosition    `json:"position_history"`
}

// GetStatus returns the metrics, open positions keyed by token address and
// the most recent closed positions.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	summary, err := h.metrics.Summary(ctx)
	if err != nil {
		writeServiceError(w, r, h.logger, "summary failed", err)
		return
	}
	open, err := h.positions.ListOpen(ctx)
	if err != nil {
		writeServiceError(w, r, h.logger, "list positions failed", err)
		return
	}
	history, err := h.positions.ListClosed(ctx, domain.ListOpts{Limit: 100})
	if err != nil {
		writeServiceError(w, r, h.logger, "list history failed", err)
		return
	}

	active := make(map[string]domain.Position, len(open))
	for _, p := range open {
		active[p.TokenAddress] = p
	}
	if history == nil {
		history = []domain.ClosedPosition{}
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Mode:            h.mode,
		UptimeSeconds:   int64(time.Since(h.startedAt).Seconds()),
		Metrics:         summary,
		ActivePositions: active,
		PositionHistory: history,
	})
}
