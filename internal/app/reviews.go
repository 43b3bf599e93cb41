package app

import (
	"context"
	"fmt"
	"time"

	"reviewpulse/internal/domain"
)

// ReviewService handles the synchronous sentiment-correction path. It
// appends to the same audit trail the sync pipeline writes; corrections
// racing a REANALYSIS stay consistent because "current" is derived from
// the latest change row.
type ReviewService struct {
	repo domain.Repository
	aggs *AggregateService
}

func NewReviewService(repo domain.Repository, aggs *AggregateService) *ReviewService {
	return &ReviewService{repo: repo, aggs: aggs}
}

// UpdateSentiment applies a user correction. The review must belong to
// the caller's brand; a foreign or missing review is ErrNotFound either
// way, so the API leaks no existence information across brands.
func (s *ReviewService) UpdateSentiment(ctx context.Context, brandID, reviewID int64, label domain.SentimentLabel, actorUserID string) error {
	if !label.Valid() {
		return fmt.Errorf("invalid sentiment label %q", label)
	}

	rv, err := s.repo.GetReview(ctx, reviewID)
	if err != nil {
		return err
	}
	src, err := s.repo.GetSource(ctx, rv.SourceID)
	if err != nil {
		return err
	}
	if src.BrandID != brandID {
		return domain.ErrNotFound
	}

	old := rv.Sentiment
	ch := domain.SentimentChange{
		ReviewID:  reviewID,
		Old:       &old,
		New:       label,
		Actor:     actorUserID,
		Reason:    domain.ReasonUserCorrection,
		ChangedAt: time.Now().UTC(),
	}
	// a human call outranks any classifier guess
	if err := s.repo.SetSentiment(ctx, reviewID, label, 1.0, ch); err != nil {
		return err
	}

	s.aggs.OnReviewsChanged(ctx, rv.SourceID, []time.Time{domain.Day(rv.PublishedAt)})
	return nil
}
