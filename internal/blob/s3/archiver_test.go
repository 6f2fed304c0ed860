package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/solanabot/internal/domain"
)

type memBlob struct {
	mu        sync.Mutex
	objects   map[string][]byte
	types     map[string]string
	putErr    error
	multipart int
}

func newMemBlob() *memBlob {
	return &memBlob{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memBlob) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	if m.putErr != nil {
		return m.putErr
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = b
	m.types[path] = contentType
	return nil
}

func (m *memBlob) PutMultipart(ctx context.Context, path string, data io.Reader, contentType string, _ int64) error {
	m.mu.Lock()
	m.multipart++
	m.mu.Unlock()
	return m.Put(ctx, path, data, contentType)
}

func (m *memBlob) Get(_ context.Context, path string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memBlob) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.BlobInfo
	for k, v := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, domain.BlobInfo{Path: k, Size: int64(len(v)), ContentType: m.types[k]})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (m *memBlob) Exists(_ context.Context, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[path]
	return ok, nil
}

type staticHistory []domain.ClosedPosition

func (h staticHistory) ListClosed(_ context.Context, opts domain.ListOpts) ([]domain.ClosedPosition, error) {
	var out []domain.ClosedPosition
	for _, c := range h {
		if opts.Since != nil && c.ExitTime.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && c.ExitTime.After(*opts.Until) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

type memAudit struct{ events []string }

func (a *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.events = append(a.events, event)
	return nil
}

func (a *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func closedAt(id string, at time.Time, pnl float64) domain.ClosedPosition {
	return domain.ClosedPosition{
		PositionID: id, Symbol: "TKN", TokenAddress: "Mint" + id,
		EntryPrice: 1, ExitPrice: 1 + pnl/100, AvgExitPrice: 1 + pnl/100,
		EntryTime: at.Add(-time.Hour), ExitTime: at, InitialSize: 100,
		ExitReason: domain.ExitReasonTakeProfit, ProfitLossPct: pnl,
	}
}

func summarizeCount(closed []domain.ClosedPosition) domain.Summary {
	return domain.Summary{ClosedPositions: len(closed)}
}

func TestArchiveHistoryWritesPreviousDay(t *testing.T) {
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	// Only b and c exited on March 1.
	history := staticHistory{
		closedAt("a", day.Add(-time.Minute), 10),
		closedAt("b", day.Add(3*time.Hour), 50),
		closedAt("c", day.Add(23*time.Hour), -12),
		closedAt("d", day.Add(24*time.Hour), 5),
	}
	blob := newMemBlob()
	audit := &memAudit{}
	a := NewArchiver(blob, blob, history, audit, summarizeCount, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	n, err := a.ArchiveHistory(ctx, day.Add(24*time.Hour+5*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	jsonl := blob.objects[ArchivePrefix+"2026-03-01.jsonl"]
	require.NotEmpty(t, jsonl)
	var ids []string
	sc := bufio.NewScanner(bytes.NewReader(jsonl))
	for sc.Scan() {
		var c domain.ClosedPosition
		require.NoError(t, json.Unmarshal(sc.Bytes(), &c))
		ids = append(ids, c.PositionID)
	}
	assert.ElementsMatch(t, []string{"b", "c"}, ids)
	assert.NotEmpty(t, blob.objects[ArchivePrefix+"2026-03-01.xlsx"])
	assert.Equal(t, []string{"history_archived"}, audit.events)

	// Second run for the same day is skipped.
	n, err = a.ArchiveHistory(ctx, day.Add(30*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	infos, err := a.Archives(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, contentTypeJSONL, infos[0].ContentType)
	assert.Equal(t, contentTypeXLSX, infos[1].ContentType)
}

func TestArchiveHistoryEmptyDay(t *testing.T) {
	blob := newMemBlob()
	a := NewArchiver(blob, blob, staticHistory{}, nil, summarizeCount, slog.New(slog.NewTextHandler(io.Discard, nil)))

	n, err := a.ArchiveHistory(context.Background(), time.Date(2026, 3, 2, 1, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, blob.objects)
}

func TestArchiveHistoryUploadFailure(t *testing.T) {
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	blob := newMemBlob()
	blob.putErr = errors.New("connection reset")
	a := NewArchiver(blob, blob, staticHistory{closedAt("b", day.Add(time.Hour), 5)}, nil, summarizeCount,
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := a.ArchiveHistory(context.Background(), day.Add(25*time.Hour))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestArchiveHistoryLargeDayUsesMultipart(t *testing.T) {
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	blob := newMemBlob()
	a := NewArchiver(blob, blob, staticHistory{closedAt("b", day.Add(time.Hour), 5)}, nil, summarizeCount,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	a.multipartThreshold = 64

	_, err := a.ArchiveHistory(context.Background(), day.Add(25*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, blob.multipart)
	assert.Equal(t, contentTypeJSONL, blob.types[ArchivePrefix+"2026-03-01.jsonl"])
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "http://localhost:9000", normaliseEndpoint("localhost:9000", false))
	assert.Equal(t, "https://s3.example.com", normaliseEndpoint("s3.example.com", true))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("http://minio:9000", true))
}

func TestKeyPrefix(t *testing.T) {
	c := &Client{prefix: cleanPrefix(" /live/wallet-a/ ")}
	assert.Equal(t, "live/wallet-a/"+ArchivePrefix+"x.jsonl", c.key("/"+ArchivePrefix+"x.jsonl"))
	assert.Equal(t, ArchivePrefix+"x.jsonl", c.path("live/wallet-a/"+ArchivePrefix+"x.jsonl"))

	bare := &Client{}
	assert.Equal(t, "a/b", bare.key("a/b"))
	assert.Equal(t, "a/b", bare.path("a/b"))
}

func TestArchiveOpen(t *testing.T) {
	blob := newMemBlob()
	blob.objects[ArchivePrefix+"2026-03-01.jsonl"] = []byte("{}\n")
	a := NewArchiver(blob, blob, staticHistory{}, nil, summarizeCount, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	rc, ct, err := a.Open(ctx, "2026-03-01.jsonl")
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, contentTypeJSONL, ct)

	for _, name := range []string{"", "../secrets", ".env", "a/b.jsonl"} {
		_, _, err := a.Open(ctx, name)
		assert.ErrorIs(t, err, domain.ErrNotFound, name)
	}
}
