package service

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/solanabot/internal/domain"
	"github.com/alanyoungcy/solanabot/internal/monitoring"
)

// Summarize derives the performance view from the store contents. It keeps no
// state, so repeated calls over the same inputs always agree.
func Summarize(open []domain.Position, closed []domain.ClosedPosition, potential int) domain.Summary {
	s := domain.Summary{
		OpenPositions:   len(open),
		ClosedPositions: len(closed),
		PotentialTrades: potential,
	}
	for _, c := range closed {
		s.TotalProfitLoss += c.ProfitLossPct
		if c.ProfitLossPct > 0 {
			s.Wins++
		} else {
			s.Losses++
		}
	}
	if len(closed) > 0 {
		s.WinRate = float64(s.Wins) / float64(len(closed))
	}
	for _, p := range open {
		s.UnrealizedPnL += p.ProfitLossPct()
	}
	return s
}

// CandidateCounter reports how many candidates are waiting on the safety gate.
type CandidateCounter interface {
	Pending() int
}

// MetricsService recomputes the summary on every query.
type MetricsService struct {
	store      domain.PositionStore
	candidates CandidateCounter
}

// NewMetricsService creates a MetricsService. candidates may be nil.
func NewMetricsService(store domain.PositionStore, candidates CandidateCounter) *MetricsService {
	return &MetricsService{store: store, candidates: candidates}
}

// Summary returns the current derived metrics.
func (s *MetricsService) Summary(ctx context.Context) (domain.Summary, error) {
	open, err := s.store.ListOpen(ctx)
	if err != nil {
		return domain.Summary{}, fmt.Errorf("metrics_service: list open: %w", err)
	}
	closed, err := s.store.ListClosed(ctx, domain.ListOpts{})
	if err != nil {
		return domain.Summary{}, fmt.Errorf("metrics_service: list closed: %w", err)
	}
	potential := 0
	if s.candidates != nil {
		potential = s.candidates.Pending()
	}

	sum := Summarize(open, closed, potential)
	monitoring.UpdateSummary(sum.OpenPositions, sum.PotentialTrades, sum.WinRate)
	return sum, nil
}
