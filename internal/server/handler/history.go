package handler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/solanabot/internal/domain"
	"github.com/alanyoungcy/solanabot/internal/report"
	"github.com/alanyoungcy/solanabot/internal/service"
)

// ArchiveStore lists and opens the cold-storage history archives.
type ArchiveStore interface {
	Archives(ctx context.Context) ([]domain.BlobInfo, error)
	Open(ctx context.Context, name string) (io.ReadCloser, string, error)
}

// HistoryHandler serves the closed position history.
type HistoryHandler struct {
	positions PositionService
	archives  ArchiveStore
	logger    *slog.Logger
}

// NewHistoryHandler creates a HistoryHandler. archives may be nil when
// object storage is disabled.
func NewHistoryHandler(positions PositionService, archives ArchiveStore, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{positions: positions, archives: archives, logger: logger}
}

type listHistoryResponse struct {
	History []domain.ClosedPosition `json:"history"`
}

// ListHistory returns closed positions, most recent exit first.
// GET /api/history?limit=&offset=&since=&until=
func (h *HistoryHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	closed, err := h.positions.ListClosed(r.Context(), opts)
	if err != nil {
		writeServiceError(w, r, h.logger, "list history failed", err)
		return
	}
	if closed == nil {
		closed = []domain.ClosedPosition{}
	}
	writeJSON(w, http.StatusOK, listHistoryResponse{History: closed})
}

// ExportHistory streams the closed history in the time range as an XLSX
// workbook. Pagination is ignored.
// GET /api/history/export?since=&until=
func (h *HistoryHandler) ExportHistory(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	opts.Limit, opts.Offset = 0, 0

	closed, err := h.positions.ListClosed(r.Context(), opts)
	if err != nil {
		writeServiceError(w, r, h.logger, "export history failed", err)
		return
	}

	name := fmt.Sprintf("solbot-history-%s.xlsx", time.Now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if err := report.WriteHistoryXLSX(w, closed, service.Summarize(nil, closed, 0)); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: write workbook failed", slog.String("error", err.Error()))
	}
}

type listArchivesResponse struct {
	Archives []domain.BlobInfo `json:"archives"`
}

// ListArchives returns the archived history objects.
// GET /api/history/archives
func (h *HistoryHandler) ListArchives(w http.ResponseWriter, r *http.Request) {
	if h.archives == nil {
		writeError(w, http.StatusNotFound, "archiving is disabled")
		return
	}
	infos, err := h.archives.Archives(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "list archives failed", err)
		return
	}
	if infos == nil {
		infos = []domain.BlobInfo{}
	}
	writeJSON(w, http.StatusOK, listArchivesResponse{Archives: infos})
}

// GetArchive streams one archive object.
// GET /api/history/archives/{name}
func (h *HistoryHandler) GetArchive(w http.ResponseWriter, r *http.Request) {
	if h.archives == nil {
		writeError(w, http.StatusNotFound, "archiving is disabled")
		return
	}
	name := r.PathValue("name")
	rc, contentType, err := h.archives.Open(r.Context(), name)
	if err != nil {
		writeServiceError(w, r, h.logger, "get archive failed", err)
		return
	}
	defer rc.Close()

	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.WarnContext(r.Context(), "handler: archive copy interrupted", slog.String("error", err.Error()))
	}
}
