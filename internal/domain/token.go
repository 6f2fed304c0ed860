package domain

import "time"

// Quote is one observation of a token's market from the price feed.
type Quote struct {
	TokenAddress string        `json:"token_address"`
	PairAddress  string        `json:"pair_address,omitempty"`
	Symbol       string        `json:"symbol"`
	PriceUSD     float64       `json:"price_usd"`
	PriceNative  float64       `json:"price_native"`
	Metrics      MarketMetrics `json:"metrics"`
	ObservedAt   time.Time     `json:"observed_at"`
}

// CandidateToken is a newly listed token that passed the market filters and
// is waiting on the safety gate.
type CandidateToken struct {
	Address       string         `json:"address"`
	PairAddress   string         `json:"pair_address"`
	Symbol        string         `json:"symbol"`
	Name          string         `json:"name,omitempty"`
	PriceUSD      float64        `json:"price_usd"`
	PriceNative   float64        `json:"price_native"`
	Metrics       MarketMetrics  `json:"metrics"`
	PairCreatedAt time.Time      `json:"pair_created_at"`
	DiscoveredAt  time.Time      `json:"discovered_at"`
	Verdict       *SafetyVerdict `json:"verdict,omitempty"`
	Sentiment     *Sentiment     `json:"sentiment,omitempty"`
}

// Quote converts the candidate's scan data into a price observation.
func (c CandidateToken) Quote() Quote {
	return Quote{
		TokenAddress: c.Address,
		PairAddress:  c.PairAddress,
		Symbol:       c.Symbol,
		PriceUSD:     c.PriceUSD,
		PriceNative:  c.PriceNative,
		Metrics:      c.Metrics,
		ObservedAt:   c.Metrics.UpdatedAt,
	}
}

// SafetyVerdict is the outcome of the safety gate for one token.
//
// Transient is set when the verdict comes from a failed call rather than a
// real assessment; such tokens are rejected now and re-assessed later.
type SafetyVerdict struct {
	Score             float64   `json:"score"`
	CriticalRiskNames []string  `json:"critical_risk_names,omitempty"`
	RiskNames         []string  `json:"risk_names,omitempty"`
	Passed            bool      `json:"passed"`
	Reasons           []string  `json:"reasons,omitempty"`
	APIError          string    `json:"api_error,omitempty"`
	Transient         bool      `json:"transient,omitempty"`
	CheckedAt         time.Time `json:"checked_at"`
}

// Sentiment is a social sentiment reading. It never influences a decision.
type Sentiment struct {
	Score  float64 `json:"score"`
	Label  string  `json:"label"`
	Posts  int     `json:"posts"`
	Source string  `json:"source"`
}

// Fill is the result of an executed buy or sell.
type Fill struct {
	ExecutedPrice float64   `json:"executed_price"`
	ExecutedSize  float64   `json:"executed_size"`
	Signature     string    `json:"signature,omitempty"`
	ExecutedAt    time.Time `json:"executed_at"`
}

// Summary is the derived performance view over the position store.
type Summary struct {
	WinRate         float64 `json:"win_rate"`
	TotalProfitLoss float64 `json:"total_profit_loss"`
	OpenPositions   int     `json:"open_positions"`
	ClosedPositions int     `json:"closed_positions"`
	Wins            int     `json:"wins"`
	Losses          int     `json:"losses"`
	PotentialTrades int     `json:"potential_trades"`
	UnrealizedPnL   float64 `json:"unrealized_pnl_pct"`
}
