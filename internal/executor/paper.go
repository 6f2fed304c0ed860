// Package executor implements domain.ExecutionGateway: a paper gateway that
// fills at the feed price and a live gateway that swaps through Jupiter.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/solanabot/internal/domain"
)

// PaperGateway simulates swaps at the current feed price against an
// in-memory SOL balance.
type PaperGateway struct {
	feed   domain.PriceFeed
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	balance float64
}

// NewPaperGateway creates a paper gateway starting with balance SOL.
func NewPaperGateway(feed domain.PriceFeed, balance float64, logger *slog.Logger) *PaperGateway {
	return &PaperGateway{
		feed:    feed,
		balance: balance,
		logger:  logger.With(slog.String("component", "paper_gateway")),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Buy spends quoteSize SOL at the current native price.
func (g *PaperGateway) Buy(ctx context.Context, tokenAddress string, quoteSize float64) (domain.Fill, error) {
	if quoteSize <= 0 {
		return domain.Fill{}, fmt.Errorf("%w: non-positive quote size %v", domain.ErrExecutionFailed, quoteSize)
	}
	q, err := g.quote(ctx, tokenAddress)
	if err != nil {
		return domain.Fill{}, err
	}

	g.mu.Lock()
	if quoteSize > g.balance {
		g.mu.Unlock()
		return domain.Fill{}, fmt.Errorf("%w: insufficient paper balance %.4f < %.4f", domain.ErrExecutionFailed, g.balance, quoteSize)
	}
	g.balance -= quoteSize
	g.mu.Unlock()

	fill := domain.Fill{
		ExecutedPrice: q.PriceUSD,
		ExecutedSize:  quoteSize / q.PriceNative,
		Signature:     "paper-" + uuid.NewString(),
		ExecutedAt:    g.now(),
	}
	g.logger.InfoContext(ctx, "paper buy",
		slog.String("token", tokenAddress),
		slog.Float64("sol", quoteSize),
		slog.Float64("size", fill.ExecutedSize),
		slog.Float64("price", fill.ExecutedPrice),
	)
	return fill, nil
}

// Sell sells size tokens at the current native price.
func (g *PaperGateway) Sell(ctx context.Context, tokenAddress string, size float64) (domain.Fill, error) {
	if size <= 0 {
		return domain.Fill{}, fmt.Errorf("%w: non-positive size %v", domain.ErrExecutionFailed, size)
	}
	q, err := g.quote(ctx, tokenAddress)
	if err != nil {
		return domain.Fill{}, err
	}

	g.mu.Lock()
	g.balance += size * q.PriceNative
	g.mu.Unlock()

	fill := domain.Fill{
		ExecutedPrice: q.PriceUSD,
		ExecutedSize:  size,
		Signature:     "paper-" + uuid.NewString(),
		ExecutedAt:    g.now(),
	}
	g.logger.InfoContext(ctx, "paper sell",
		slog.String("token", tokenAddress),
		slog.Float64("size", size),
		slog.Float64("price", fill.ExecutedPrice),
	)
	return fill, nil
}

// Balance implements domain.BalanceProvider.
func (g *PaperGateway) Balance(_ context.Context) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.balance, nil
}

func (g *PaperGateway) quote(ctx context.Context, tokenAddress string) (domain.Quote, error) {
	quotes, err := g.feed.Quotes(ctx, []string{tokenAddress})
	if err != nil {
		return domain.Quote{}, fmt.Errorf("%w: %w: %w", domain.ErrExecutionFailed, domain.ErrPriceFeedUnavailable, err)
	}
	q, ok := quotes[tokenAddress]
	if !ok || q.PriceUSD <= 0 || q.PriceNative <= 0 {
		return domain.Quote{}, fmt.Errorf("%w: %w: no price for %s", domain.ErrExecutionFailed, domain.ErrPriceFeedUnavailable, tokenAddress)
	}
	return q, nil
}

// Compile-time interface checks.
var (
	_ domain.ExecutionGateway = (*PaperGateway)(nil)
	_ domain.BalanceProvider  = (*PaperGateway)(nil)
)
