// Package scanner discovers newly listed tokens. It lists the chain's latest
// pairs, applies the market filters, and keeps the survivors in a registry
// until they are gated, bought or expire.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/solanabot/internal/domain"
	"github.com/alanyoungcy/solanabot/internal/platform/dexscreener"
	"github.com/alanyoungcy/solanabot/internal/platform/solana"
)

// PairSource lists the latest pairs on a chain.
type PairSource interface {
	NewPairs(ctx context.Context) ([]dexscreener.Pair, error)
}

// Scanner implements domain.Scanner over a pair source.
type Scanner struct {
	source    PairSource
	filters   Filters
	sentiment domain.SentimentProvider
	logger    *slog.Logger
	now       func() time.Time
	scans     atomic.Int64
}

// New creates a Scanner. sentiment may be nil.
func New(source PairSource, filters Filters, sentiment domain.SentimentProvider, logger *slog.Logger) *Scanner {
	return &Scanner{
		source:    source,
		filters:   filters,
		sentiment: sentiment,
		logger:    logger.With(slog.String("component", "scanner")),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Scan returns the pairs of this listing that pass the filters, one
// candidate per token.
func (s *Scanner) Scan(ctx context.Context) ([]domain.CandidateToken, error) {
	pairs, err := s.source.NewPairs(ctx)
	if err != nil {
		return nil, fmt.Errorf("scanner: %w", err)
	}
	scan := s.scans.Add(1)
	now := s.now()

	seen := make(map[string]bool, len(pairs))
	var out []domain.CandidateToken
	rejected := 0
	for _, p := range pairs {
		addr, sym := p.BaseToken.Address, p.BaseToken.Symbol
		if addr == "" || sym == "" || seen[addr] {
			continue
		}
		if !solana.IsValidAddress(addr) {
			s.logger.DebugContext(ctx, "skipping pair with invalid mint",
				slog.String("pair", p.PairAddress),
				slog.String("mint", addr),
			)
			continue
		}
		if reason := s.filters.Check(p, now); reason != "" {
			rejected++
			s.logger.DebugContext(ctx, "pair filtered",
				slog.String("symbol", sym),
				slog.String("pair", p.PairAddress),
				slog.String("reason", reason),
			)
			continue
		}
		if p.PriceUSD <= 0 {
			continue
		}
		seen[addr] = true

		c := p.Candidate(now)
		if s.sentiment != nil {
			if snt, err := s.sentiment.Sentiment(ctx, sym); err == nil {
				c.Sentiment = &snt
			}
		}
		out = append(out, c)
		s.logger.InfoContext(ctx, "candidate found",
			slog.String("symbol", sym),
			slog.String("mint", addr),
			slog.Float64("price_usd", c.PriceUSD),
			slog.Float64("market_cap", c.Metrics.MarketCap),
		)
	}

	s.logger.InfoContext(ctx, "scan complete",
		slog.Int64("scan", scan),
		slog.Int("pairs", len(pairs)),
		slog.Int("filtered", rejected),
		slog.Int("candidates", len(out)),
	)
	return out, nil
}

// Compile-time interface check.
var _ domain.Scanner = (*Scanner)(nil)
