package scanner

import (
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/solanabot/internal/domain"
)

type entry struct {
	candidate domain.CandidateToken
	seen      time.Time
}

// Registry holds scan candidates waiting on the safety gate. Candidates expire
// ttl after discovery. Rejected tokens are remembered for the same ttl so a
// re-listing does not re-enter the gate straight away. It is safe for
// concurrent use.
type Registry struct {
	mu       sync.Mutex
	pending  map[string]*entry    // token address -> candidate
	rejected map[string]time.Time // token address -> rejected at
	ttl      time.Duration
	now      func() time.Time
}

// NewRegistry creates a Registry with the given candidate ttl.
func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		pending:  make(map[string]*entry),
		rejected: make(map[string]time.Time),
		ttl:      ttl,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Track records c as a candidate and reports whether it is new. A token
// already pending keeps its discovery time but takes the latest market data.
// Recently rejected tokens are ignored.
func (r *Registry) Track(c domain.CandidateToken) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if at, ok := r.rejected[c.Address]; ok {
		if now.Sub(at) < r.ttl {
			return false
		}
		delete(r.rejected, c.Address)
	}

	if e, ok := r.pending[c.Address]; ok && now.Sub(e.seen) < r.ttl {
		c.DiscoveredAt = e.candidate.DiscoveredAt
		c.Verdict = e.candidate.Verdict
		e.candidate = c
		return false
	}
	if c.DiscoveredAt.IsZero() {
		c.DiscoveredAt = now
	}
	r.pending[c.Address] = &entry{candidate: c, seen: now}
	return true
}

// SetVerdict attaches the latest safety verdict to a pending candidate.
func (r *Registry) SetVerdict(address string, v domain.SafetyVerdict) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.pending[address]; ok {
		e.candidate.Verdict = &v
	}
}

// Reject drops a candidate and remembers the token for ttl.
func (r *Registry) Reject(address string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, address)
	r.rejected[address] = r.now()
}

// Remove drops a candidate without remembering it, e.g. once a position is
// opened for it.
func (r *Registry) Remove(address string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, address)
}

// Candidates returns the unexpired candidates, oldest first.
func (r *Registry) Candidates() []domain.CandidateToken {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	out := make([]domain.CandidateToken, 0, len(r.pending))
	for _, e := range r.pending {
		if now.Sub(e.seen) < r.ttl {
			out = append(out, e.candidate)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DiscoveredAt.Equal(out[j].DiscoveredAt) {
			return out[i].Address < out[j].Address
		}
		return out[i].DiscoveredAt.Before(out[j].DiscoveredAt)
	})
	return out
}

// Pending returns the number of unexpired candidates.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	n := 0
	for _, e := range r.pending {
		if now.Sub(e.seen) < r.ttl {
			n++
		}
	}
	return n
}

// Cleanup removes expired candidates and rejections. Call it periodically to
// bound memory.
func (r *Registry) Cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for addr, e := range r.pending {
		if now.Sub(e.seen) >= r.ttl {
			delete(r.pending, addr)
		}
	}
	for addr, at := range r.rejected {
		if now.Sub(at) >= r.ttl {
			delete(r.rejected, addr)
		}
	}
}
