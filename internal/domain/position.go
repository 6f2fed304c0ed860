package domain

import (
	"fmt"
	"time"
)

// PositionStatus tracks whether a position is open or closed. A position only
// ever moves from OPEN to CLOSED.
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "OPEN"
	PositionStatusClosed PositionStatus = "CLOSED"
)

// ExitReason records why (part of) a position was sold.
type ExitReason string

const (
	ExitReasonStopLoss   ExitReason = "stop_loss"
	ExitReasonTakeProfit ExitReason = "take_profit"
	ExitReasonManual     ExitReason = "manual"
)

// sizeEpsilon is the remaining size below which a position counts as flat.
const sizeEpsilon = 1e-9

// TakeProfitLevel is one price multiple of the entry price at which profit is
// taken. Hit never goes back to false once set.
type TakeProfitLevel struct {
	Multiplier float64    `json:"multiplier"`
	Hit        bool       `json:"hit"`
	HitAt      *time.Time `json:"hit_at,omitempty"`
}

// MarketMetrics is the market snapshot attached to a position at its last
// evaluation.
type MarketMetrics struct {
	LiquidityUSD  float64   `json:"liquidity_usd"`
	Volume24h     float64   `json:"volume_24h"`
	Volume1h      float64   `json:"volume_1h"`
	HolderCount   int       `json:"holder_count"`
	BuySellRatio  float64   `json:"buy_sell_ratio"`
	MarketCap     float64   `json:"market_cap"`
	PriceChange1h float64   `json:"price_change_1h"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Exit is a realised sale of part or all of a position.
type Exit struct {
	Reason ExitReason `json:"reason"`
	Level  float64    `json:"level,omitempty"`
	Price  float64    `json:"price"`
	Size   float64    `json:"size"`
	At     time.Time  `json:"at"`
}

// Position is a live holding of a token.
type Position struct {
	ID               string            `json:"id"`
	Symbol           string            `json:"symbol"`
	TokenAddress     string            `json:"token_address"`
	PairAddress      string            `json:"pair_address,omitempty"`
	EntryPrice       float64           `json:"entry_price"`
	EntryTime        time.Time         `json:"entry_time"`
	InitialSize      float64           `json:"initial_size"`
	Size             float64           `json:"size"`
	CurrentPrice     float64           `json:"current_price"`
	HighestPrice     float64           `json:"highest_price"`
	StopLossPrice    float64           `json:"stop_loss_price"`
	TakeProfitLevels []TakeProfitLevel `json:"take_profit_levels"`
	Status           PositionStatus    `json:"status"`
	Metrics          MarketMetrics     `json:"metrics"`
	Exits            []Exit            `json:"exits,omitempty"`
	PendingExits     []Action          `json:"pending_exits,omitempty"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// PositionID builds the identifier of a position opened on token at t.
func PositionID(tokenAddress string, t time.Time) string {
	return fmt.Sprintf("%s-%d", tokenAddress, t.UnixMilli())
}

// Clone returns a deep copy so callers can mutate it without touching a
// published snapshot.
func (p Position) Clone() Position {
	out := p
	out.TakeProfitLevels = make([]TakeProfitLevel, len(p.TakeProfitLevels))
	for i, l := range p.TakeProfitLevels {
		if l.HitAt != nil {
			at := *l.HitAt
			l.HitAt = &at
		}
		out.TakeProfitLevels[i] = l
	}
	if p.Exits != nil {
		out.Exits = append([]Exit(nil), p.Exits...)
	}
	if p.PendingExits != nil {
		out.PendingExits = append([]Action(nil), p.PendingExits...)
	}
	return out
}

// IsOpen reports whether the position is still held.
func (p Position) IsOpen() bool {
	return p.Status == PositionStatusOpen
}

// IsFlat reports whether nothing is left to sell.
func (p Position) IsFlat() bool {
	return p.Size <= sizeEpsilon
}

// ProfitLossPct is the unrealised return of the remaining size at the
// current price, in percent.
func (p Position) ProfitLossPct() float64 {
	if p.EntryPrice <= 0 {
		return 0
	}
	return (p.CurrentPrice - p.EntryPrice) / p.EntryPrice * 100
}

// LevelsHit returns the multipliers of every level already taken, ascending.
func (p Position) LevelsHit() []float64 {
	var out []float64
	for _, l := range p.TakeProfitLevels {
		if l.Hit {
			out = append(out, l.Multiplier)
		}
	}
	return out
}

// ClosedPosition is the immutable record of a fully exited position.
type ClosedPosition struct {
	PositionID    string     `json:"position_id"`
	Symbol        string     `json:"symbol"`
	TokenAddress  string     `json:"token_address"`
	EntryPrice    float64    `json:"entry_price"`
	ExitPrice     float64    `json:"exit_price"`
	AvgExitPrice  float64    `json:"avg_exit_price"`
	EntryTime     time.Time  `json:"entry_time"`
	ExitTime      time.Time  `json:"exit_time"`
	InitialSize   float64    `json:"initial_size"`
	LevelsHit     []float64  `json:"levels_hit"`
	ExitReason    ExitReason `json:"exit_reason"`
	ProfitLossPct float64    `json:"profit_loss_pct"`
}

// Duration is how long the position was held.
func (c ClosedPosition) Duration() time.Duration {
	return c.ExitTime.Sub(c.EntryTime)
}

// NewClosedPosition summarises p once its last exit has been recorded. The
// realised return uses the size-weighted average of all exits.
func NewClosedPosition(p Position, reason ExitReason, exitPrice float64, at time.Time) ClosedPosition {
	avg := exitPrice
	var notional, size float64
	for _, e := range p.Exits {
		notional += e.Price * e.Size
		size += e.Size
	}
	if size > sizeEpsilon {
		avg = notional / size
	}

	var pnl float64
	if p.EntryPrice > 0 {
		pnl = (avg - p.EntryPrice) / p.EntryPrice * 100
	}

	return ClosedPosition{
		PositionID:    p.ID,
		Symbol:        p.Symbol,
		TokenAddress:  p.TokenAddress,
		EntryPrice:    p.EntryPrice,
		ExitPrice:     exitPrice,
		AvgExitPrice:  avg,
		EntryTime:     p.EntryTime,
		ExitTime:      at,
		InitialSize:   p.InitialSize,
		LevelsHit:     p.LevelsHit(),
		ExitReason:    reason,
		ProfitLossPct: pnl,
	}
}
