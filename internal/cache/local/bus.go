// Package local provides an in-process SignalBus for single-instance runs
// without Redis.
package local

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/alanyoungcy/solanabot/internal/domain"
)

const (
	subscriberBuffer = 128
	streamMaxLen     = 10000
)

type entry struct {
	seq     uint64
	payload []byte
}

// Bus implements domain.SignalBus with channels and capped in-memory
// streams. Slow subscribers drop messages, like Redis Pub/Sub.
type Bus struct {
	mu      sync.RWMutex
	subs    map[string]map[chan []byte]struct{}
	streams map[string][]entry
	seq     uint64
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{
		subs:    make(map[string]map[chan []byte]struct{}),
		streams: make(map[string][]entry),
	}
}

// Publish delivers payload to every current subscriber of channel.
func (b *Bus) Publish(_ context.Context, channel string, payload []byte) error {
	msg := append([]byte(nil), payload...)
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[channel] {
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel of payloads for channel, closed when ctx ends.
func (b *Bus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, subscriberBuffer)
	b.mu.Lock()
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[chan []byte]struct{})
	}
	b.subs[channel][ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs[channel], ch)
		close(ch)
		b.mu.Unlock()
	}()
	return ch, nil
}

// StreamAppend appends payload to stream, keeping the newest entries.
func (b *Bus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	s := append(b.streams[stream], entry{seq: b.seq, payload: append([]byte(nil), payload...)})
	if len(s) > streamMaxLen {
		s = append([]entry(nil), s[len(s)-streamMaxLen:]...)
	}
	b.streams[stream] = s
	return nil
}

// StreamRead returns up to count entries after lastID ("0" for all).
func (b *Bus) StreamRead(_ context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	after, err := parseID(lastID)
	if err != nil {
		return nil, fmt.Errorf("local: stream read %s: %w", stream, err)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []domain.StreamMessage
	for _, e := range b.streams[stream] {
		if e.seq <= after {
			continue
		}
		out = append(out, domain.StreamMessage{
			ID:      strconv.FormatUint(e.seq, 10) + "-0",
			Payload: append([]byte(nil), e.payload...),
		})
		if count > 0 && len(out) == count {
			break
		}
	}
	return out, nil
}

func parseID(id string) (uint64, error) {
	if id == "" || id == "0" {
		return 0, nil
	}
	head, _, _ := strings.Cut(id, "-")
	return strconv.ParseUint(head, 10, 64)
}

// Compile-time interface check.
var _ domain.SignalBus = (*Bus)(nil)
