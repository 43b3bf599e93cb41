package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"reviewpulse/internal/domain"
)

// AggregateService is the sole writer of dashboard aggregates. Rollups
// are always recomputed from review rows, never edited in place.
type AggregateService struct {
	repo  domain.Repository
	cache domain.Cache
}

func NewAggregateService(repo domain.Repository, cache domain.Cache) *AggregateService {
	return &AggregateService{repo: repo, cache: cache}
}

// Recompute rebuilds the (source, day) rollup from that day's
// non-retired reviews. Idempotent: unchanged reviews yield an identical
// rollup, only calculated_at moves.
func (s *AggregateService) Recompute(ctx context.Context, sourceID int64, day time.Time) (domain.DashboardAggregate, error) {
	day = domain.Day(day)
	reviews, err := s.repo.ListReviewsForDay(ctx, sourceID, day)
	if err != nil {
		return domain.DashboardAggregate{}, err
	}

	agg := domain.DashboardAggregate{
		SourceID:     sourceID,
		Day:          day,
		Total:        len(reviews),
		CalculatedAt: time.Now().UTC(),
	}
	var sum int
	for _, rv := range reviews {
		sum += rv.Rating
		switch rv.Sentiment {
		case domain.SentimentPositive:
			agg.Positive++
		case domain.SentimentNegative:
			agg.Negative++
		default:
			agg.Neutral++
		}
	}
	if agg.Total > 0 {
		agg.AvgRating = float64(sum) / float64(agg.Total)
	}

	if err := s.repo.UpsertAggregate(ctx, agg); err != nil {
		return domain.DashboardAggregate{}, err
	}
	if s.cache != nil {
		_ = s.cache.Del(ctx, dashboardKey(sourceID, day))
	}
	return agg, nil
}

// OnReviewsChanged recomputes every touched day bucket. Per-day failures
// are logged and do not block the remaining days; the stale bucket is
// visible via its old calculated_at.
func (s *AggregateService) OnReviewsChanged(ctx context.Context, sourceID int64, days []time.Time) {
	for _, day := range days {
		if _, err := s.Recompute(ctx, sourceID, day); err != nil {
			log.Error().Int64("source", sourceID).Time("day", day).Err(err).Msg("aggregate recompute failed")
		}
	}
}

func dashboardKey(sourceID int64, day time.Time) string {
	return fmt.Sprintf("dashboard:%d:%s", sourceID, domain.Day(day).Format("2006-01-02"))
}
