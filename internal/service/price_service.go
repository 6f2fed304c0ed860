package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/solanabot/internal/domain"
	"github.com/alanyoungcy/solanabot/internal/monitoring"
)

// PriceService fetches quote batches from the price feed, caches the latest
// price per token and publishes price events.
type PriceService struct {
	feed       domain.PriceFeed
	priceCache domain.PriceCache
	bus        domain.SignalBus
	logger     *slog.Logger
}

// NewPriceService creates a PriceService. priceCache and bus may be nil.
func NewPriceService(
	feed domain.PriceFeed,
	priceCache domain.PriceCache,
	bus domain.SignalBus,
	logger *slog.Logger,
) *PriceService {
	return &PriceService{
		feed:       feed,
		priceCache: priceCache,
		bus:        bus,
		logger:     logger.With(slog.String("component", "price_service")),
	}
}

// Fetch returns one quote per token the feed could price. Tokens without a
// usable quote are listed in missing and must be skipped for this tick.
func (s *PriceService) Fetch(ctx context.Context, tokens []string) (quotes map[string]domain.Quote, missing []string, err error) {
	if len(tokens) == 0 {
		return map[string]domain.Quote{}, nil, nil
	}

	got, err := s.feed.Quotes(ctx, tokens)
	if err != nil {
		return nil, tokens, fmt.Errorf("price_service: fetch %d quotes: %w: %w", len(tokens), domain.ErrPriceFeedUnavailable, err)
	}

	quotes = make(map[string]domain.Quote, len(got))
	for _, token := range tokens {
		q, ok := got[token]
		if !ok || q.PriceUSD <= 0 {
			missing = append(missing, token)
			monitoring.RecordFeedMiss()
			continue
		}
		quotes[token] = q
		s.record(ctx, q)
	}
	return quotes, missing, nil
}

func (s *PriceService) record(ctx context.Context, q domain.Quote) {
	ts := q.ObservedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	if s.priceCache != nil {
		if err := s.priceCache.SetPrice(ctx, q.TokenAddress, q.PriceUSD, ts); err != nil {
			s.logger.WarnContext(ctx, "price_service: cache price failed",
				slog.String("token", q.TokenAddress),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.bus == nil {
		return
	}
	evt, _ := json.Marshal(map[string]any{
		"event":         "price_update",
		"token":         q.TokenAddress,
		"symbol":        q.Symbol,
		"price_usd":     q.PriceUSD,
		"price_native":  q.PriceNative,
		"liquidity_usd": q.Metrics.LiquidityUSD,
		"volume_24h":    q.Metrics.Volume24h,
		"timestamp":     ts.Format(time.RFC3339Nano),
	})
	if pubErr := s.bus.Publish(ctx, domain.ChannelPrices, evt); pubErr != nil {
		s.logger.WarnContext(ctx, "price_service: publish price event failed",
			slog.String("token", q.TokenAddress),
			slog.String("error", pubErr.Error()),
		)
	}
}

// LastPrice returns the most recent cached price for a token.
func (s *PriceService) LastPrice(ctx context.Context, token string) (float64, time.Time, error) {
	if s.priceCache == nil {
		return 0, time.Time{}, domain.ErrNotFound
	}
	price, ts, err := s.priceCache.GetPrice(ctx, token)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("price_service: get price %s: %w", token, err)
	}
	return price, ts, nil
}
