// Package sentiment provides social sentiment readings. Only a neutral
// placeholder exists; readings are logged and shown but never used in a
// trading decision.
package sentiment

import (
	"context"

	"github.com/alanyoungcy/solanabot/internal/domain"
)

// Placeholder returns a constant neutral reading.
type Placeholder struct{}

// Sentiment implements domain.SentimentProvider.
func (Placeholder) Sentiment(ctx context.Context, _ string) (domain.Sentiment, error) {
	if err := ctx.Err(); err != nil {
		return domain.Sentiment{}, err
	}
	return domain.Sentiment{Score: 0.5, Label: "neutral", Posts: 0, Source: "placeholder"}, nil
}

var _ domain.SentimentProvider = Placeholder{}
