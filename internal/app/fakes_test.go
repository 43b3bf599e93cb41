package app_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"reviewpulse/internal/domain"
)

// ---- fakes ----

// fakeRepo is an in-memory Repository honoring the admission semantics
// the MySQL repo enforces transactionally.
type fakeRepo struct {
	mu      sync.Mutex
	clock   func() time.Time
	sources map[int64]domain.ReviewSource
	jobs    map[string]domain.SyncJob
	jobSeq  int

	reviews  map[int64]domain.Review
	nextRev  int64
	changes  []domain.SentimentChange
	nextChg  int64
	aggs     map[string]domain.DashboardAggregate
	aggCalls int

	failOnExternalID  string              // storage failure injection for one review
	hiddenExternalIDs map[string]struct{} // make lookups miss to force insert races
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		clock:   func() time.Time { return time.Now().UTC() },
		sources: map[int64]domain.ReviewSource{},
		jobs:    map[string]domain.SyncJob{},
		reviews: map[int64]domain.Review{},
		aggs:    map[string]domain.DashboardAggregate{},
	}
}

func (f *fakeRepo) addSource(s domain.ReviewSource) { f.sources[s.ID] = s }

func (f *fakeRepo) GetSource(_ context.Context, id int64) (domain.ReviewSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sources[id]
	if !ok {
		return domain.ReviewSource{}, domain.ErrNotFound
	}
	return s, nil
}

func (f *fakeRepo) ListBrandSources(_ context.Context, brandID int64) ([]domain.ReviewSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ReviewSource
	for _, s := range f.sources {
		if s.BrandID == brandID && !s.Retired {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListDueSources(_ context.Context, now time.Time) ([]domain.ReviewSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ReviewSource
	for _, s := range f.sources {
		if !s.Retired && s.Active && s.NextSyncAt != nil && !s.NextSyncAt.After(now) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeRepo) AdvanceNextSync(_ context.Context, sourceID int64, next time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.sources[sourceID]
	s.NextSyncAt = &next
	f.sources[sourceID] = s
	return nil
}

func (f *fakeRepo) SetLastSync(_ context.Context, sourceID int64, state string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.sources[sourceID]
	s.LastSyncState = &state
	s.LastSyncAt = &at
	f.sources[sourceID] = s
	return nil
}

func (f *fakeRepo) AdmitJob(_ context.Context, sourceID int64, kind domain.JobKind, cooldown time.Duration) (domain.SyncJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.clock()

	if kind == domain.KindManual && cooldown > 0 {
		var last time.Time
		for _, j := range f.jobs {
			if j.SourceID == sourceID && j.Kind == domain.KindManual && j.CreatedAt.After(last) {
				last = j.CreatedAt
			}
		}
		if !last.IsZero() {
			if elapsed := now.Sub(last); elapsed < cooldown {
				return domain.SyncJob{}, &domain.RateLimitedError{RetryAfter: cooldown - elapsed}
			}
		}
	}
	for _, j := range f.jobs {
		if j.SourceID == sourceID && !j.Status.Terminal() {
			return domain.SyncJob{}, domain.ErrSyncInProgress
		}
	}

	f.jobSeq++
	job := domain.SyncJob{
		ID:        fmt.Sprintf("job-%d", f.jobSeq),
		SourceID:  sourceID,
		Kind:      kind,
		Status:    domain.JobPending,
		CreatedAt: now,
	}
	f.jobs[job.ID] = job
	return job, nil
}

func (f *fakeRepo) StartJob(_ context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[jobID]
	if !ok || j.Status != domain.JobPending {
		return domain.ErrNotFound
	}
	now := f.clock()
	j.Status = domain.JobInProgress
	j.StartedAt = &now
	f.jobs[jobID] = j
	return nil
}

func (f *fakeRepo) CompleteJob(_ context.Context, jobID string, c domain.JobCounters) error {
	return f.finishJob(jobID, domain.JobCompleted, "", c)
}

func (f *fakeRepo) FailJob(_ context.Context, jobID string, msg string, c domain.JobCounters) error {
	return f.finishJob(jobID, domain.JobFailed, msg, c)
}

func (f *fakeRepo) finishJob(jobID string, status domain.JobStatus, msg string, c domain.JobCounters) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[jobID]
	if !ok || j.Status != domain.JobInProgress {
		return domain.ErrNotFound
	}
	now := f.clock()
	j.Status = status
	j.CompletedAt = &now
	j.Counters = c
	if msg != "" {
		j.ErrorMsg = &msg
	}
	f.jobs[jobID] = j
	return nil
}

func (f *fakeRepo) GetJob(_ context.Context, jobID string) (domain.SyncJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[jobID]
	if !ok {
		return domain.SyncJob{}, domain.ErrNotFound
	}
	return j, nil
}

func (f *fakeRepo) ListJobs(_ context.Context, sourceID int64, _ domain.PageQuery) (domain.JobsPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.SyncJob
	for _, j := range f.jobs {
		if j.SourceID == sourceID {
			out = append(out, j)
		}
	}
	return domain.JobsPage{Items: out}, nil
}

func (f *fakeRepo) ListStaleJobs(_ context.Context, startedBefore time.Time) ([]domain.SyncJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.SyncJob
	for _, j := range f.jobs {
		switch {
		case j.Status == domain.JobInProgress && j.StartedAt != nil && j.StartedAt.Before(startedBefore):
			out = append(out, j)
		case j.Status == domain.JobPending && j.CreatedAt.Before(startedBefore):
			out = append(out, j)
		}
	}
	return out, nil
}

func (f *fakeRepo) GetReview(_ context.Context, reviewID int64) (domain.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rv, ok := f.reviews[reviewID]
	if !ok {
		return domain.Review{}, domain.ErrNotFound
	}
	return rv, nil
}

func (f *fakeRepo) GetReviewByExternalID(_ context.Context, sourceID int64, externalID string) (domain.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, hidden := f.hiddenExternalIDs[externalID]; !hidden {
		for _, rv := range f.reviews {
			if rv.SourceID == sourceID && rv.ExternalID == externalID && !rv.Retired {
				return rv, nil
			}
		}
	}
	return domain.Review{}, domain.ErrNotFound
}

func (f *fakeRepo) InsertReview(_ context.Context, rv domain.Review, ch domain.SentimentChange) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOnExternalID != "" && rv.ExternalID == f.failOnExternalID {
		return 0, fmt.Errorf("storage down")
	}
	for _, existing := range f.reviews {
		if existing.SourceID == rv.SourceID && existing.ExternalID == rv.ExternalID && !existing.Retired {
			return 0, domain.ErrDuplicate
		}
	}
	f.nextRev++
	rv.ID = f.nextRev
	f.reviews[rv.ID] = rv
	ch.ReviewID = rv.ID
	f.appendChange(ch)
	return rv.ID, nil
}

func (f *fakeRepo) UpdateReview(_ context.Context, rv domain.Review, ch domain.SentimentChange) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOnExternalID != "" && rv.ExternalID == f.failOnExternalID {
		return fmt.Errorf("storage down")
	}
	if _, ok := f.reviews[rv.ID]; !ok {
		return domain.ErrNotFound
	}
	f.reviews[rv.ID] = rv
	f.appendChange(ch)
	return nil
}

func (f *fakeRepo) SetSentiment(_ context.Context, reviewID int64, label domain.SentimentLabel, confidence float64, ch domain.SentimentChange) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rv, ok := f.reviews[reviewID]
	if !ok {
		return domain.ErrNotFound
	}
	rv.Sentiment = label
	rv.Confidence = confidence
	f.reviews[reviewID] = rv
	f.appendChange(ch)
	return nil
}

func (f *fakeRepo) appendChange(ch domain.SentimentChange) {
	f.nextChg++
	ch.ID = f.nextChg
	f.changes = append(f.changes, ch)
}

func (f *fakeRepo) ListReviews(_ context.Context, sourceID int64, _ domain.PageQuery) (domain.ReviewsPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Review
	for _, rv := range f.reviews {
		if rv.SourceID == sourceID && !rv.Retired {
			out = append(out, rv)
		}
	}
	return domain.ReviewsPage{Items: out}, nil
}

func (f *fakeRepo) ListReviewsForDay(_ context.Context, sourceID int64, day time.Time) ([]domain.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	day = domain.Day(day)
	var out []domain.Review
	for _, rv := range f.reviews {
		if rv.SourceID == sourceID && !rv.Retired && domain.Day(rv.PublishedAt).Equal(day) {
			out = append(out, rv)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListSentimentChanges(_ context.Context, reviewID int64) ([]domain.SentimentChange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.SentimentChange
	for i := len(f.changes) - 1; i >= 0; i-- {
		if f.changes[i].ReviewID == reviewID {
			out = append(out, f.changes[i])
		}
	}
	return out, nil
}

func (f *fakeRepo) UpsertAggregate(_ context.Context, a domain.DashboardAggregate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aggCalls++
	f.aggs[aggKey(a.SourceID, a.Day)] = a
	return nil
}

func (f *fakeRepo) GetAggregate(_ context.Context, sourceID int64, day time.Time) (domain.DashboardAggregate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.aggs[aggKey(sourceID, domain.Day(day))]
	if !ok {
		return domain.DashboardAggregate{}, domain.ErrNotFound
	}
	return a, nil
}

func aggKey(sourceID int64, day time.Time) string {
	return fmt.Sprintf("%d:%s", sourceID, day.Format("2006-01-02"))
}

// latestChange returns the newest change row for a review.
func (f *fakeRepo) latestChange(reviewID int64) (domain.SentimentChange, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best domain.SentimentChange
	found := false
	for _, ch := range f.changes {
		if ch.ReviewID != reviewID {
			continue
		}
		if !found || !ch.ChangedAt.Before(best.ChangedAt) {
			best = ch
			found = true
		}
	}
	return best, found
}

// fakeProvider serves a fixed batch or a fixed error.
type fakeProvider struct {
	raws []domain.RawReview
	err  error
}

func (p *fakeProvider) FetchReviews(context.Context, string, domain.Window) ([]domain.RawReview, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.raws, nil
}

type fakeProviders struct{ a domain.ProviderAdapter }

func (f fakeProviders) Adapter(domain.ProviderType) (domain.ProviderAdapter, bool) {
	return f.a, f.a != nil
}

// failingClassifier always errors, exercising the heuristic fallback.
type failingClassifier struct{}

func (failingClassifier) Classify(context.Context, int, string) (domain.SentimentLabel, float64, error) {
	return "", 0, fmt.Errorf("model unavailable")
}

type fakeCache struct {
	store map[string][]byte
	dels  []string
}

func (c *fakeCache) Get(_ context.Context, key string, dst any) (bool, error) {
	if c.store == nil {
		return false, nil
	}
	b, ok := c.store[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (c *fakeCache) Set(_ context.Context, key string, v any, _ int) error {
	if c.store == nil {
		c.store = map[string][]byte{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.store[key] = b
	return nil
}

func (c *fakeCache) Del(_ context.Context, key string) error {
	c.dels = append(c.dels, key)
	delete(c.store, key)
	return nil
}
