package scanner

import (
	"fmt"
	"time"

	"github.com/alanyoungcy/solanabot/internal/platform/dexscreener"
)

// Filters are the market thresholds a new pair must meet before it is
// considered a candidate.
type Filters struct {
	MinMarketCap    float64
	MaxMarketCap    float64
	MaxAge          time.Duration
	MinLiquidityUSD float64
	MinTxns1h       int
	MinBuySellRatio float64
	VolumeSpike     float64
	MaxPriceDrop1h  float64 // percent, positive
	MinHolders      int
}

// DefaultFilters returns the stock thresholds.
func DefaultFilters() Filters {
	return Filters{
		MinMarketCap:    50_000,
		MaxMarketCap:    750_000,
		MaxAge:          6 * time.Hour,
		MinLiquidityUSD: 25_000,
		MinTxns1h:       75,
		MinBuySellRatio: 0.65,
		VolumeSpike:     2.5,
		MaxPriceDrop1h:  10,
		MinHolders:      100,
	}
}

// Check returns an empty string when the pair passes every filter, otherwise
// the reason for the first failed one. Checks run in a fixed order: market
// cap, age, liquidity, transactions, buy/sell ratio, volume spike, 1h price
// change, holders.
func (f Filters) Check(p dexscreener.Pair, now time.Time) string {
	if p.FDV == nil {
		return "missing FDV"
	}
	mc := float64(*p.FDV)
	if mc < f.MinMarketCap {
		return fmt.Sprintf("market cap $%.0f < min $%.0f", mc, f.MinMarketCap)
	}
	if f.MaxMarketCap > 0 && mc > f.MaxMarketCap {
		return fmt.Sprintf("market cap $%.0f > max $%.0f", mc, f.MaxMarketCap)
	}

	created, ok := p.CreatedAt()
	if !ok {
		return "missing pair creation time"
	}
	if age := now.Sub(created); f.MaxAge > 0 && age > f.MaxAge {
		return fmt.Sprintf("pair too old: %.1fh > %.1fh", age.Hours(), f.MaxAge.Hours())
	}

	if p.Liquidity == nil || p.Liquidity.USD == nil {
		return "missing liquidity"
	}
	if liq := p.LiquidityUSD(); liq < f.MinLiquidityUSD {
		return fmt.Sprintf("liquidity $%.0f < min $%.0f", liq, f.MinLiquidityUSD)
	}

	h1 := p.Txns.H1
	if n := h1.Buys + h1.Sells; n < f.MinTxns1h {
		return fmt.Sprintf("1h txns %d < min %d", n, f.MinTxns1h)
	}
	if h1.Sells > 0 {
		if ratio := float64(h1.Buys) / float64(h1.Sells); ratio < f.MinBuySellRatio {
			return fmt.Sprintf("buy/sell ratio %.2f < min %.2f", ratio, f.MinBuySellRatio)
		}
	}

	vol1h, vol24h := float64(p.Volume.H1), float64(p.Volume.H24)
	switch {
	case vol1h <= 0 && f.VolumeSpike > 0:
		return "no 1h volume"
	case vol24h > 0 && vol1h/vol24h*24 < f.VolumeSpike:
		return fmt.Sprintf("no volume spike: %.1fx < %.1fx", vol1h/vol24h*24, f.VolumeSpike)
	}

	if change := float64(p.PriceChange.H1); change < -f.MaxPriceDrop1h {
		return fmt.Sprintf("1h price drop %.1f%%", change)
	}

	if p.Holders != nil && p.Holders.Total < f.MinHolders {
		return fmt.Sprintf("holders %d < min %d", p.Holders.Total, f.MinHolders)
	}
	return ""
}
