package domain

import (
	"context"
	"time"
)

type Repository interface {
	// Sources
	GetSource(ctx context.Context, id int64) (ReviewSource, error)
	ListBrandSources(ctx context.Context, brandID int64) ([]ReviewSource, error)
	ListDueSources(ctx context.Context, now time.Time) ([]ReviewSource, error)
	AdvanceNextSync(ctx context.Context, sourceID int64, next time.Time) error
	SetLastSync(ctx context.Context, sourceID int64, state string, at time.Time) error

	// Jobs. AdmitJob is the single atomic admission primitive: it
	// evaluates the MANUAL cooldown (cooldown > 0) and the one-active-job
	// rule and creates the PENDING job in one transaction. Returns
	// *RateLimitedError or ErrSyncInProgress on rejection.
	AdmitJob(ctx context.Context, sourceID int64, kind JobKind, cooldown time.Duration) (SyncJob, error)
	StartJob(ctx context.Context, jobID string) error
	CompleteJob(ctx context.Context, jobID string, c JobCounters) error
	FailJob(ctx context.Context, jobID string, msg string, c JobCounters) error
	GetJob(ctx context.Context, jobID string) (SyncJob, error)
	ListJobs(ctx context.Context, sourceID int64, pg PageQuery) (JobsPage, error)
	ListStaleJobs(ctx context.Context, startedBefore time.Time) ([]SyncJob, error)

	// Reviews. Insert/Update write the review row and its sentiment
	// change in one transaction. InsertReview returns ErrDuplicate when
	// it loses a (source, external_id) race.
	GetReview(ctx context.Context, reviewID int64) (Review, error)
	GetReviewByExternalID(ctx context.Context, sourceID int64, externalID string) (Review, error)
	InsertReview(ctx context.Context, r Review, ch SentimentChange) (int64, error)
	UpdateReview(ctx context.Context, r Review, ch SentimentChange) error
	SetSentiment(ctx context.Context, reviewID int64, label SentimentLabel, confidence float64, ch SentimentChange) error
	ListReviews(ctx context.Context, sourceID int64, pg PageQuery) (ReviewsPage, error)
	ListReviewsForDay(ctx context.Context, sourceID int64, day time.Time) ([]Review, error)
	ListSentimentChanges(ctx context.Context, reviewID int64) ([]SentimentChange, error)

	// Aggregates
	UpsertAggregate(ctx context.Context, a DashboardAggregate) error
	GetAggregate(ctx context.Context, sourceID int64, day time.Time) (DashboardAggregate, error)
}

// Window bounds a provider fetch.
type Window struct{ From, To time.Time }

// ProviderAdapter fetches raw reviews for one profile. Implementations
// must bound their own network timeouts; a hung fetch turns into a
// FAILED job, never an eternal IN_PROGRESS one.
type ProviderAdapter interface {
	FetchReviews(ctx context.Context, profileID string, w Window) ([]RawReview, error)
}

// ProviderSet resolves the adapter for a source's provider tag.
type ProviderSet interface {
	Adapter(t ProviderType) (ProviderAdapter, bool)
}

type SentimentClassifier interface {
	Classify(ctx context.Context, rating int, text string) (SentimentLabel, float64, error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

// Read models & queries

type PageQuery struct {
	Limit  int
	Offset int
}

type JobsPage struct {
	Items []SyncJob
}

type ReviewsPage struct {
	Items []Review
}
