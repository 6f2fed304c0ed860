package domain

import "context"

// PriceFeed returns the latest quote for each requested token. Tokens it has
// no data for are absent from the result.
type PriceFeed interface {
	Quotes(ctx context.Context, tokenAddresses []string) (map[string]Quote, error)
}

// Scanner lists newly listed tokens that pass the market filters.
type Scanner interface {
	Scan(ctx context.Context) ([]CandidateToken, error)
}

// SafetyChecker fetches a raw safety assessment for a token. It does not
// decide; the gate applies the threshold and critical-risk policy.
type SafetyChecker interface {
	Assess(ctx context.Context, tokenAddress string) (SafetyVerdict, error)
}

// ExecutionGateway executes swaps. quoteSize is denominated in the quote
// currency (SOL); size in token units. Failures wrap ErrExecutionFailed.
type ExecutionGateway interface {
	Buy(ctx context.Context, tokenAddress string, quoteSize float64) (Fill, error)
	Sell(ctx context.Context, tokenAddress string, size float64) (Fill, error)
}

// SentimentProvider returns a sentiment reading for a token symbol.
type SentimentProvider interface {
	Sentiment(ctx context.Context, symbol string) (Sentiment, error)
}

// BalanceProvider returns the spendable quote balance (SOL).
type BalanceProvider interface {
	Balance(ctx context.Context) (float64, error)
}
