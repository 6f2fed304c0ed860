// Package memory holds the authoritative in-process position table.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/alanyoungcy/solanabot/internal/domain"
)

// record is one open position. mu orders writers; snap is the last published
// state and is never mutated after Store, so readers only need an atomic load.
type record struct {
	mu   sync.Mutex
	snap atomic.Pointer[domain.Position]
}

// PositionStore is an in-memory implementation of domain.PositionStore.
type PositionStore struct {
	mu          sync.RWMutex
	open        map[string]*record
	byToken     map[string]string // token address -> open position id
	closed      []domain.ClosedPosition
	closedIdx   map[string]int
	closedFinal map[string]domain.Position
}

// NewPositionStore creates an empty store.
func NewPositionStore() *PositionStore {
	return &PositionStore{
		open:        make(map[string]*record),
		byToken:     make(map[string]string),
		closedIdx:   make(map[string]int),
		closedFinal: make(map[string]domain.Position),
	}
}

// Insert adds an OPEN position. Only one open position per token is allowed.
func (s *PositionStore) Insert(_ context.Context, pos domain.Position) error {
	if pos.ID == "" || pos.TokenAddress == "" {
		return fmt.Errorf("memory: insert position: missing id or token: %w", domain.ErrInvalidState)
	}
	if !pos.IsOpen() {
		return fmt.Errorf("memory: insert position %s: status %s: %w", pos.ID, pos.Status, domain.ErrInvalidState)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.open[pos.ID]; ok {
		return fmt.Errorf("memory: insert position %s: %w", pos.ID, domain.ErrAlreadyExists)
	}
	if _, ok := s.closedIdx[pos.ID]; ok {
		return fmt.Errorf("memory: insert position %s: %w", pos.ID, domain.ErrAlreadyExists)
	}
	if id, ok := s.byToken[pos.TokenAddress]; ok {
		return fmt.Errorf("memory: insert position: token %s already held by %s: %w",
			pos.TokenAddress, id, domain.ErrAlreadyExists)
	}

	cp := pos.Clone()
	rec := &record{}
	rec.snap.Store(&cp)
	s.open[pos.ID] = rec
	s.byToken[pos.TokenAddress] = pos.ID
	return nil
}

// Get returns a snapshot of an open or closed position.
func (s *PositionStore) Get(_ context.Context, id string) (domain.Position, error) {
	s.mu.RLock()
	rec, ok := s.open[id]
	final, closed := s.closedFinal[id]
	s.mu.RUnlock()

	switch {
	case ok:
		return rec.snap.Load().Clone(), nil
	case closed:
		return final.Clone(), nil
	}
	return domain.Position{}, domain.ErrNotFound
}

// GetByToken returns the open position holding tokenAddress.
func (s *PositionStore) GetByToken(_ context.Context, tokenAddress string) (domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byToken[tokenAddress]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return s.open[id].snap.Load().Clone(), nil
}

// ListOpen returns snapshots of every open position, oldest first.
func (s *PositionStore) ListOpen(_ context.Context) ([]domain.Position, error) {
	s.mu.RLock()
	out := make([]domain.Position, 0, len(s.open))
	for _, rec := range s.open {
		out = append(out, rec.snap.Load().Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].EntryTime.Equal(out[j].EntryTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].EntryTime.Before(out[j].EntryTime)
	})
	return out, nil
}

// ListClosed returns closed positions, most recent exit first.
func (s *PositionStore) ListClosed(_ context.Context, opts domain.ListOpts) ([]domain.ClosedPosition, error) {
	s.mu.RLock()
	var out []domain.ClosedPosition
	for i := len(s.closed) - 1; i >= 0; i-- {
		c := s.closed[i]
		if opts.Since != nil && c.ExitTime.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && c.ExitTime.After(*opts.Until) {
			continue
		}
		c.LevelsHit = append([]float64(nil), c.LevelsHit...)
		out = append(out, c)
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ExitTime.After(out[j].ExitTime)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// Apply runs fn on a private copy of the open position while holding that
// position's writer lock. The copy is published only if fn succeeds. When fn
// returns a ClosedPosition the record moves from open to closed in one step.
//
// Callers queued behind a writer that closed the position get
// domain.ErrPositionClosed, so a close can never be applied twice.
func (s *PositionStore) Apply(ctx context.Context, id string, fn domain.MutateFunc) (domain.Position, *domain.ClosedPosition, error) {
	s.mu.RLock()
	rec, ok := s.open[id]
	_, closed := s.closedIdx[id]
	s.mu.RUnlock()
	if !ok {
		if closed {
			return domain.Position{}, nil, domain.ErrPositionClosed
		}
		return domain.Position{}, nil, domain.ErrNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	cur := rec.snap.Load()
	if !cur.IsOpen() {
		return cur.Clone(), nil, domain.ErrPositionClosed
	}
	if err := ctx.Err(); err != nil {
		return cur.Clone(), nil, err
	}

	next := cur.Clone()
	cp, err := fn(&next)
	if err != nil {
		return cur.Clone(), nil, err
	}
	next.ID = cur.ID
	next.TokenAddress = cur.TokenAddress

	if cp == nil {
		if !next.IsOpen() {
			return cur.Clone(), nil, fmt.Errorf("memory: apply %s: status changed without close: %w", id, domain.ErrInvalidState)
		}
		rec.snap.Store(&next)
		return next.Clone(), nil, nil
	}

	next.Status = domain.PositionStatusClosed
	next.Size = 0
	next.PendingExits = nil
	closedRec := *cp
	closedRec.LevelsHit = append([]float64(nil), cp.LevelsHit...)

	s.mu.Lock()
	if _, dup := s.closedIdx[id]; dup {
		s.mu.Unlock()
		return cur.Clone(), nil, domain.ErrPositionClosed
	}
	delete(s.open, id)
	if s.byToken[next.TokenAddress] == id {
		delete(s.byToken, next.TokenAddress)
	}
	s.closedIdx[id] = len(s.closed)
	s.closed = append(s.closed, closedRec)
	s.closedFinal[id] = next
	s.mu.Unlock()

	rec.snap.Store(&next)
	return next.Clone(), &closedRec, nil
}

// RestoreClosed loads closed history recorded by a previous run. Entries
// already present are skipped.
func (s *PositionStore) RestoreClosed(_ context.Context, history []domain.ClosedPosition) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	sorted := append([]domain.ClosedPosition(nil), history...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ExitTime.Before(sorted[j].ExitTime) })

	n := 0
	for _, c := range sorted {
		if _, ok := s.closedIdx[c.PositionID]; ok {
			continue
		}
		s.closedIdx[c.PositionID] = len(s.closed)
		s.closed = append(s.closed, c)
		n++
	}
	return n
}

// Counts returns the number of open and closed positions.
func (s *PositionStore) Counts() (open, closed int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.open), len(s.closed)
}

// Compile-time interface check.
var _ domain.PositionStore = (*PositionStore)(nil)
