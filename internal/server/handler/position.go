package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/solanabot/internal/domain"
	"github.com/alanyoungcy/solanabot/internal/service"
)

// PositionService is the part of the position controller the API uses.
type PositionService interface {
	Get(ctx context.Context, id string) (domain.Position, error)
	ListOpen(ctx context.Context) ([]domain.Position, error)
	ListClosed(ctx context.Context, opts domain.ListOpts) ([]domain.ClosedPosition, error)
	Close(ctx context.Context, id string) (service.TickResult, error)
}

// PositionHandler serves the open position endpoints.
type PositionHandler struct {
	positions PositionService
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(positions PositionService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{positions: positions, logger: logger}
}

type listPositionsResponse struct {
	Positions []domain.Position `json:"positions"`
}

// ListPositions returns every open position.
// GET /api/positions
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.positions.ListOpen(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "list positions failed", err)
		return
	}
	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: positions})
}

// GetPosition returns one open position.
// GET /api/positions/{id}
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	pos, err := h.positions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get position failed", err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

type closePositionResponse struct {
	Position domain.Position        `json:"position"`
	Actions  []domain.Action        `json:"actions"`
	Closed   *domain.ClosedPosition `json:"closed,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

// ClosePosition liquidates a position. A sell that fails is queued for retry
// and reported with 202; an already closed position returns its final
// snapshot.
// POST /api/positions/{id}/close
func (h *PositionHandler) ClosePosition(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	res, err := h.positions.Close(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrExecutionFailed) && res.Position.IsOpen() {
			h.logger.WarnContext(r.Context(), "handler: manual close pending",
				slog.String("position_id", id),
				slog.String("error", err.Error()),
			)
			writeJSON(w, http.StatusAccepted, closePositionResponse{
				Position: res.Position,
				Actions:  res.Actions,
				Error:    err.Error(),
			})
			return
		}
		writeServiceError(w, r, h.logger, "close position failed", err)
		return
	}

	h.logger.InfoContext(r.Context(), "handler: manual close requested",
		slog.String("position_id", id),
		slog.Bool("closed", res.Closed != nil),
	)
	status := http.StatusOK
	if res.Closed == nil && res.Position.IsOpen() {
		status = http.StatusAccepted
	}
	writeJSON(w, status, closePositionResponse{
		Position: res.Position,
		Actions:  res.Actions,
		Closed:   res.Closed,
	})
}
