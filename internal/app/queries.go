package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"reviewpulse/internal/domain"
)

// QueryService serves the read-only projections. Job status reads go
// straight to storage (they change while a job runs); dashboard and
// review pages are cached.
type QueryService struct {
	repo     domain.Repository
	cache    domain.Cache
	cacheTTL time.Duration
}

func NewQueryService(r domain.Repository, c domain.Cache, ttl time.Duration) *QueryService {
	return &QueryService{repo: r, cache: c, cacheTTL: ttl}
}

func (s *QueryService) GetJobStatus(ctx context.Context, jobID string) (domain.SyncJob, error) {
	return s.repo.GetJob(ctx, jobID)
}

func (s *QueryService) ListJobs(ctx context.Context, sourceID int64, pg domain.PageQuery) (domain.JobsPage, error) {
	return s.repo.ListJobs(ctx, sourceID, pg)
}

// ListStaleJobs surfaces jobs stuck past the threshold for operator
// action: IN_PROGRESS runs that never finished and PENDING jobs whose
// run never started (both keep holding the per-source admission slot).
// Nothing here auto-remediates them.
func (s *QueryService) ListStaleJobs(ctx context.Context, olderThan time.Duration) ([]domain.SyncJob, error) {
	return s.repo.ListStaleJobs(ctx, time.Now().UTC().Add(-olderThan))
}

func (s *QueryService) GetDashboard(ctx context.Context, sourceID int64, day time.Time) (domain.DashboardAggregate, error) {
	key := dashboardKey(sourceID, day)
	var agg domain.DashboardAggregate
	if ok, _ := s.cache.Get(ctx, key, &agg); ok {
		return agg, nil
	}
	agg, err := s.repo.GetAggregate(ctx, sourceID, day)
	if err != nil {
		return domain.DashboardAggregate{}, err
	}
	_ = s.cache.Set(ctx, key, agg, int(s.cacheTTL.Seconds()))
	return agg, nil
}

func (s *QueryService) ListReviews(ctx context.Context, sourceID int64, pg domain.PageQuery) (domain.ReviewsPage, error) {
	key := fmt.Sprintf("reviews:%d:%d:%d", sourceID, pg.Limit, pg.Offset)
	var out domain.ReviewsPage
	if ok, _ := s.cache.Get(ctx, key, &out); ok {
		return out, nil
	}

	rs, err := s.repo.ListReviews(ctx, sourceID, pg)
	if err != nil {
		return domain.ReviewsPage{}, err
	}

	// copy slice to avoid aliasing the repo's backing array
	copyRS := deepCopyReviewsPage(rs)

	// optional size guard
	if b, _ := json.Marshal(copyRS); len(b) < 1_000_000 {
		_ = s.cache.Set(ctx, key, copyRS, int(s.cacheTTL.Seconds()))
	}
	return copyRS, nil
}

func (s *QueryService) ListSentimentHistory(ctx context.Context, reviewID int64) ([]domain.SentimentChange, error) {
	return s.repo.ListSentimentChanges(ctx, reviewID)
}

func deepCopyReviewsPage(in domain.ReviewsPage) domain.ReviewsPage {
	out := domain.ReviewsPage{}
	if n := len(in.Items); n > 0 {
		out.Items = make([]domain.Review, n)
		copy(out.Items, in.Items)
	}
	return out
}
