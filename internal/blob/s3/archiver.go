package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/alanyoungcy/solanabot/internal/domain"
	"github.com/alanyoungcy/solanabot/internal/report"
)

// ArchivePrefix is the key prefix of every history archive object.
const ArchivePrefix = "archive/closed_positions/"

const (
	contentTypeJSONL = "application/x-ndjson"
	contentTypeXLSX  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// HistorySource lists closed positions.
type HistorySource interface {
	ListClosed(ctx context.Context, opts domain.ListOpts) ([]domain.ClosedPosition, error)
}

// SummarizeFunc derives the workbook summary from a batch of closed positions.
type SummarizeFunc func(closed []domain.ClosedPosition) domain.Summary

// HistoryArchiver implements domain.Archiver. Each run archives the closed
// positions of one UTC day as a JSONL file and an XLSX workbook:
//
//	archive/closed_positions/2026-03-01.jsonl
//	archive/closed_positions/2026-03-01.xlsx
//
// A day whose JSONL object already exists is skipped. Records stay in the
// primary store.
type HistoryArchiver struct {
	writer    domain.BlobWriter
	reader    domain.BlobReader
	history   HistorySource
	audit     domain.AuditStore
	summarize SummarizeFunc
	logger    *slog.Logger

	multipartThreshold int64
}

// NewArchiver creates a HistoryArchiver. audit may be nil.
func NewArchiver(
	writer domain.BlobWriter,
	reader domain.BlobReader,
	history HistorySource,
	audit domain.AuditStore,
	summarize SummarizeFunc,
	logger *slog.Logger,
) *HistoryArchiver {
	return &HistoryArchiver{
		writer:    writer,
		reader:    reader,
		history:   history,
		audit:     audit,
		summarize: summarize,
		logger:    logger.With(slog.String("component", "archiver")),

		multipartThreshold: 2 * minPartSize,
	}
}

// ArchiveHistory archives the UTC day before the day containing before and
// returns how many closed positions were written.
func (a *HistoryArchiver) ArchiveHistory(ctx context.Context, before time.Time) (int64, error) {
	end := before.UTC().Truncate(24 * time.Hour)
	start := end.Add(-24 * time.Hour)
	base := ArchivePrefix + start.Format("2006-01-02")

	done, err := a.reader.Exists(ctx, base+".jsonl")
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive check %s: %w", base, err)
	}
	if done {
		return 0, nil
	}

	listed, err := a.history.ListClosed(ctx, domain.ListOpts{Since: &start, Until: &end})
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive query: %w", err)
	}
	var closed []domain.ClosedPosition
	for _, c := range listed {
		if c.ExitTime.Before(end) {
			closed = append(closed, c)
		}
	}
	if len(closed) == 0 {
		return 0, nil
	}

	// The workbook goes first so a present JSONL object marks a finished day.
	var xlsx bytes.Buffer
	if err := report.WriteHistoryXLSX(&xlsx, closed, a.summarize(closed)); err != nil {
		return 0, fmt.Errorf("s3blob: archive workbook: %w", err)
	}
	if err := a.upload(ctx, base+".xlsx", xlsx.Bytes(), contentTypeXLSX); err != nil {
		return 0, fmt.Errorf("s3blob: archive upload workbook: %w", err)
	}

	lines, err := marshalJSONL(closed)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive marshal: %w", err)
	}
	if err := a.upload(ctx, base+".jsonl", lines, contentTypeJSONL); err != nil {
		return 0, fmt.Errorf("s3blob: archive upload: %w", err)
	}

	count := int64(len(closed))
	a.logger.InfoContext(ctx, "archiver: history archived",
		slog.String("path", base),
		slog.Int64("count", count),
	)
	if a.audit != nil {
		if err := a.audit.Log(ctx, "history_archived", map[string]any{
			"path":  base,
			"count": count,
			"day":   start.Format("2006-01-02"),
		}); err != nil {
			a.logger.WarnContext(ctx, "archiver: audit log failed", slog.String("error", err.Error()))
		}
	}
	return count, nil
}

// upload switches to a multipart upload above multipartThreshold.
func (a *HistoryArchiver) upload(ctx context.Context, key string, data []byte, contentType string) error {
	if int64(len(data)) > a.multipartThreshold {
		return a.writer.PutMultipart(ctx, key, bytes.NewReader(data), contentType, minPartSize)
	}
	return a.writer.Put(ctx, key, bytes.NewReader(data), contentType)
}

// Archives lists stored archive objects.
func (a *HistoryArchiver) Archives(ctx context.Context) ([]domain.BlobInfo, error) {
	infos, err := a.reader.List(ctx, ArchivePrefix)
	if err != nil {
		return nil, fmt.Errorf("s3blob: list archives: %w", err)
	}
	return infos, nil
}

// Open returns one archive object by file name, e.g. "2026-03-01.xlsx".
func (a *HistoryArchiver) Open(ctx context.Context, name string) (io.ReadCloser, string, error) {
	if name == "" || strings.ContainsAny(name, "/\\") || strings.HasPrefix(name, ".") {
		return nil, "", fmt.Errorf("s3blob: archive name %q: %w", name, domain.ErrNotFound)
	}
	rc, err := a.reader.Get(ctx, ArchivePrefix+name)
	if err != nil {
		return nil, "", err
	}
	return rc, contentTypeFor(name), nil
}

func contentTypeFor(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".jsonl":
		return contentTypeJSONL
	case ".xlsx":
		return contentTypeXLSX
	default:
		return ""
	}
}

// marshalJSONL encodes one compact JSON document per line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*HistoryArchiver)(nil)
