package dexscreener

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/solanabot/internal/domain"
)

// flexFloat unmarshals from a JSON number, a numeric string or null. The API
// sends prices as strings and most other figures as numbers.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		*f = 0
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		s = str
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// Token is one side of a pair.
type Token struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

// TxnCount is the number of buys and sells in a window.
type TxnCount struct {
	Buys  int `json:"buys"`
	Sells int `json:"sells"`
}

// Window holds a figure per time window.
type Window struct {
	M5  flexFloat `json:"m5"`
	H1  flexFloat `json:"h1"`
	H6  flexFloat `json:"h6"`
	H24 flexFloat `json:"h24"`
}

// Liquidity is the pooled liquidity of a pair.
type Liquidity struct {
	USD   *flexFloat `json:"usd"`
	Base  flexFloat  `json:"base"`
	Quote flexFloat  `json:"quote"`
}

// Holders is an optional holder summary some listings carry.
type Holders struct {
	Total int `json:"total"`
}

// Pair is a DEX pair as returned by the DexScreener API.
type Pair struct {
	ChainID     string     `json:"chainId"`
	DexID       string     `json:"dexId"`
	URL         string     `json:"url"`
	PairAddress string     `json:"pairAddress"`
	BaseToken   Token      `json:"baseToken"`
	QuoteToken  Token      `json:"quoteToken"`
	PriceNative flexFloat  `json:"priceNative"`
	PriceUSD    flexFloat  `json:"priceUsd"`
	Txns        struct {
		M5  TxnCount `json:"m5"`
		H1  TxnCount `json:"h1"`
		H6  TxnCount `json:"h6"`
		H24 TxnCount `json:"h24"`
	} `json:"txns"`
	Volume        Window     `json:"volume"`
	PriceChange   Window     `json:"priceChange"`
	Liquidity     *Liquidity `json:"liquidity"`
	FDV           *flexFloat `json:"fdv"`
	MarketCap     *flexFloat `json:"marketCap"`
	PairCreatedAt *flexFloat `json:"pairCreatedAt"`
	Holders       *Holders   `json:"holders"`
}

type pairsResponse struct {
	SchemaVersion string `json:"schemaVersion"`
	Pairs         []Pair `json:"pairs"`
}

// LiquidityUSD returns the pooled USD liquidity, zero when unknown.
func (p Pair) LiquidityUSD() float64 {
	if p.Liquidity == nil || p.Liquidity.USD == nil {
		return 0
	}
	return float64(*p.Liquidity.USD)
}

// CreatedAt returns the pair creation time.
func (p Pair) CreatedAt() (time.Time, bool) {
	if p.PairCreatedAt == nil || *p.PairCreatedAt <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(int64(*p.PairCreatedAt)).UTC(), true
}

// BuySellRatio is 1h buys over sells. With no sells it is the buy count.
func (p Pair) BuySellRatio() float64 {
	h1 := p.Txns.H1
	if h1.Sells == 0 {
		return float64(h1.Buys)
	}
	return float64(h1.Buys) / float64(h1.Sells)
}

// Metrics converts the pair's market figures.
func (p Pair) Metrics(now time.Time) domain.MarketMetrics {
	m := domain.MarketMetrics{
		LiquidityUSD:  p.LiquidityUSD(),
		Volume24h:     float64(p.Volume.H24),
		Volume1h:      float64(p.Volume.H1),
		BuySellRatio:  p.BuySellRatio(),
		PriceChange1h: float64(p.PriceChange.H1),
		UpdatedAt:     now,
	}
	if p.Holders != nil {
		m.HolderCount = p.Holders.Total
	}
	switch {
	case p.FDV != nil:
		m.MarketCap = float64(*p.FDV)
	case p.MarketCap != nil:
		m.MarketCap = float64(*p.MarketCap)
	}
	return m
}

// Quote converts the pair into a price observation of its base token.
func (p Pair) Quote(now time.Time) domain.Quote {
	return domain.Quote{
		TokenAddress: p.BaseToken.Address,
		PairAddress:  p.PairAddress,
		Symbol:       p.BaseToken.Symbol,
		PriceUSD:     float64(p.PriceUSD),
		PriceNative:  float64(p.PriceNative),
		Metrics:      p.Metrics(now),
		ObservedAt:   now,
	}
}

// Candidate converts the pair into a scan candidate.
func (p Pair) Candidate(now time.Time) domain.CandidateToken {
	created, _ := p.CreatedAt()
	return domain.CandidateToken{
		Address:       p.BaseToken.Address,
		PairAddress:   p.PairAddress,
		Symbol:        p.BaseToken.Symbol,
		Name:          p.BaseToken.Name,
		PriceUSD:      float64(p.PriceUSD),
		PriceNative:   float64(p.PriceNative),
		Metrics:       p.Metrics(now),
		PairCreatedAt: created,
		DiscoveredAt:  now,
	}
}
