package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"reviewpulse/internal/adapters/sentiment"
	"reviewpulse/internal/app"
	"reviewpulse/internal/domain"
)

// stubRepo answers just what the HTTP tests exercise; everything else is
// a miss. Admission outcome and read models are injected per test.
type stubRepo struct {
	source   domain.ReviewSource
	admitErr error
	job      *domain.SyncJob
	review   *domain.Review
	agg      *domain.DashboardAggregate
	reviews  []domain.Review
	stale    []domain.SyncJob

	sentimentSet *domain.SentimentChange
}

func (s *stubRepo) GetSource(_ context.Context, id int64) (domain.ReviewSource, error) {
	if s.source.ID != id {
		return domain.ReviewSource{}, domain.ErrNotFound
	}
	return s.source, nil
}

func (s *stubRepo) ListBrandSources(context.Context, int64) ([]domain.ReviewSource, error) {
	return nil, domain.ErrNotFound
}

func (s *stubRepo) ListDueSources(context.Context, time.Time) ([]domain.ReviewSource, error) {
	return nil, nil
}

func (s *stubRepo) AdvanceNextSync(context.Context, int64, time.Time) error { return nil }

func (s *stubRepo) SetLastSync(context.Context, int64, string, time.Time) error { return nil }

func (s *stubRepo) AdmitJob(_ context.Context, sourceID int64, kind domain.JobKind, _ time.Duration) (domain.SyncJob, error) {
	if s.admitErr != nil {
		return domain.SyncJob{}, s.admitErr
	}
	return domain.SyncJob{ID: "job-1", SourceID: sourceID, Kind: kind, Status: domain.JobPending, CreatedAt: time.Now().UTC()}, nil
}

func (s *stubRepo) StartJob(context.Context, string) error { return nil }

func (s *stubRepo) CompleteJob(context.Context, string, domain.JobCounters) error { return nil }

func (s *stubRepo) FailJob(context.Context, string, string, domain.JobCounters) error { return nil }

func (s *stubRepo) GetJob(_ context.Context, jobID string) (domain.SyncJob, error) {
	if s.job == nil || s.job.ID != jobID {
		return domain.SyncJob{}, domain.ErrNotFound
	}
	return *s.job, nil
}

func (s *stubRepo) ListJobs(context.Context, int64, domain.PageQuery) (domain.JobsPage, error) {
	return domain.JobsPage{}, nil
}

func (s *stubRepo) ListStaleJobs(context.Context, time.Time) ([]domain.SyncJob, error) {
	return s.stale, nil
}

func (s *stubRepo) GetReview(_ context.Context, reviewID int64) (domain.Review, error) {
	if s.review == nil || s.review.ID != reviewID {
		return domain.Review{}, domain.ErrNotFound
	}
	return *s.review, nil
}

func (s *stubRepo) GetReviewByExternalID(context.Context, int64, string) (domain.Review, error) {
	return domain.Review{}, domain.ErrNotFound
}

func (s *stubRepo) InsertReview(context.Context, domain.Review, domain.SentimentChange) (int64, error) {
	return 1, nil
}

func (s *stubRepo) UpdateReview(context.Context, domain.Review, domain.SentimentChange) error {
	return nil
}

func (s *stubRepo) SetSentiment(_ context.Context, _ int64, _ domain.SentimentLabel, _ float64, ch domain.SentimentChange) error {
	s.sentimentSet = &ch
	return nil
}

func (s *stubRepo) ListReviews(context.Context, int64, domain.PageQuery) (domain.ReviewsPage, error) {
	return domain.ReviewsPage{Items: s.reviews}, nil
}

func (s *stubRepo) ListReviewsForDay(context.Context, int64, time.Time) ([]domain.Review, error) {
	return nil, nil
}

func (s *stubRepo) ListSentimentChanges(context.Context, int64) ([]domain.SentimentChange, error) {
	return nil, nil
}

func (s *stubRepo) UpsertAggregate(context.Context, domain.DashboardAggregate) error { return nil }

func (s *stubRepo) GetAggregate(_ context.Context, sourceID int64, day time.Time) (domain.DashboardAggregate, error) {
	if s.agg == nil || s.agg.SourceID != sourceID || !s.agg.Day.Equal(domain.Day(day)) {
		return domain.DashboardAggregate{}, domain.ErrNotFound
	}
	return *s.agg, nil
}

type stubProviders struct{}

func (stubProviders) Adapter(domain.ProviderType) (domain.ProviderAdapter, bool) {
	return stubAdapter{}, true
}

type stubAdapter struct{}

func (stubAdapter) FetchReviews(context.Context, string, domain.Window) ([]domain.RawReview, error) {
	return nil, nil
}

type nopCache struct{}

func (nopCache) Get(context.Context, string, any) (bool, error) { return false, nil }
func (nopCache) Set(context.Context, string, any, int) error    { return nil }
func (nopCache) Del(context.Context, string) error              { return nil }

func newTestServer(repo *stubRepo) *httptest.Server {
	heuristic := sentiment.NewHeuristic()
	aggs := app.NewAggregateService(repo, nopCache{})
	sync := app.NewSyncService(repo, stubProviders{}, heuristic, heuristic, aggs, nil, 24*time.Hour, 30, 24*time.Hour)

	srv := New()
	srv.MountHandlers(&Handlers{
		Sync:       sync,
		Reviews:    app.NewReviewService(repo, aggs),
		Q:          app.NewQueryService(repo, nopCache{}, time.Minute),
		StaleAfter: time.Hour,
	})
	return httptest.NewServer(srv.Mux())
}

func TestTriggerSync_Accepted(t *testing.T) {
	repo := &stubRepo{source: domain.ReviewSource{ID: 1, BrandID: 10, Provider: domain.ProviderGoogle, Active: true}}
	ts := newTestServer(repo)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/brands/10/sync?source_id=1", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status %d, want 202", resp.StatusCode)
	}
	var body struct {
		JobIDs         []string  `json:"job_ids"`
		NextEligibleAt time.Time `json:"next_eligible_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.JobIDs) != 1 || body.JobIDs[0] != "job-1" {
		t.Fatalf("job ids: %v", body.JobIDs)
	}
	if body.NextEligibleAt.IsZero() {
		t.Fatal("missing next_eligible_at")
	}
}

func TestTriggerSync_RateLimited(t *testing.T) {
	repo := &stubRepo{
		source:   domain.ReviewSource{ID: 1, BrandID: 10, Provider: domain.ProviderGoogle, Active: true},
		admitErr: &domain.RateLimitedError{RetryAfter: 2 * time.Hour},
	}
	ts := newTestServer(repo)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/brands/10/sync?source_id=1", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status %d, want 429", resp.StatusCode)
	}
	if got := resp.Header.Get("Retry-After"); got != "7200" {
		t.Fatalf("Retry-After %q, want 7200", got)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/problem+json" {
		t.Fatalf("content type %q", ct)
	}
	var prob struct {
		Detail string `json:"detail"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&prob); err != nil {
		t.Fatalf("decode problem: %v", err)
	}
	// the detail reflects the configured cooldown, not a fixed 24h
	if prob.Detail != "manual sync cooldown active, retry in 2h0m0s" {
		t.Fatalf("unexpected detail %q", prob.Detail)
	}
}

func TestTriggerSync_Conflict(t *testing.T) {
	repo := &stubRepo{
		source:   domain.ReviewSource{ID: 1, BrandID: 10, Provider: domain.ProviderGoogle, Active: true},
		admitErr: domain.ErrSyncInProgress,
	}
	ts := newTestServer(repo)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/brands/10/sync?source_id=1", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status %d, want 409", resp.StatusCode)
	}
}

func TestTriggerSync_UnknownSource(t *testing.T) {
	ts := newTestServer(&stubRepo{})
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/brands/10/sync?source_id=5", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d, want 404", resp.StatusCode)
	}
}

func TestGetJob(t *testing.T) {
	started := time.Now().UTC().Add(-time.Minute)
	repo := &stubRepo{job: &domain.SyncJob{
		ID: "7f3d", SourceID: 1, Kind: domain.KindManual, Status: domain.JobInProgress,
		CreatedAt: started, StartedAt: &started,
		Counters: domain.JobCounters{Fetched: 12, New: 4, Updated: 1},
	}}
	ts := newTestServer(repo)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/sync-jobs/7f3d")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d, want 200", resp.StatusCode)
	}
	var body struct {
		Status  string `json:"status"`
		Fetched int    `json:"reviews_fetched"`
		New     int    `json:"reviews_new"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "IN_PROGRESS" || body.Fetched != 12 || body.New != 4 {
		t.Fatalf("unexpected body: %+v", body)
	}

	resp2, err := http.Get(ts.URL + "/v1/sync-jobs/nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d, want 404", resp2.StatusCode)
	}
}

func TestUpdateSentiment(t *testing.T) {
	repo := &stubRepo{
		source: domain.ReviewSource{ID: 1, BrandID: 10, Provider: domain.ProviderGoogle, Active: true},
		review: &domain.Review{ID: 3, SourceID: 1, Sentiment: domain.SentimentPositive, Rating: 5, PublishedAt: time.Now().UTC()},
	}
	ts := newTestServer(repo)
	defer ts.Close()

	do := func(brand, actor, body string) *http.Response {
		t.Helper()
		req, _ := http.NewRequest(http.MethodPatch, ts.URL+"/v1/reviews/3/sentiment", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		if brand != "" {
			req.Header.Set("X-Brand-ID", brand)
		}
		if actor != "" {
			req.Header.Set("X-Actor-ID", actor)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("patch: %v", err)
		}
		return resp
	}

	resp := do("10", "user-42", `{"sentiment":"NEGATIVE"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status %d, want 204", resp.StatusCode)
	}
	if repo.sentimentSet == nil || repo.sentimentSet.Actor != "user-42" || repo.sentimentSet.Reason != domain.ReasonUserCorrection {
		t.Fatalf("change not recorded: %+v", repo.sentimentSet)
	}

	resp = do("", "user-42", `{"sentiment":"NEGATIVE"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing brand header: status %d, want 400", resp.StatusCode)
	}

	resp = do("10", "", `{"sentiment":"NEGATIVE"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing actor header: status %d, want 400", resp.StatusCode)
	}

	resp = do("10", "user-42", `{"sentiment":"MEH"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid label: status %d, want 400", resp.StatusCode)
	}
}

func TestGetDashboard(t *testing.T) {
	day := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	repo := &stubRepo{agg: &domain.DashboardAggregate{
		SourceID: 1, Day: day, Total: 9, AvgRating: 4.1, Positive: 6, Neutral: 2, Negative: 1,
		CalculatedAt: time.Now().UTC(),
	}}
	ts := newTestServer(repo)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/sources/1/dashboard?date=2024-05-10")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d, want 200", resp.StatusCode)
	}
	var body struct {
		Day   string  `json:"day"`
		Total int     `json:"total_reviews"`
		Avg   float64 `json:"average_rating"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Day != "2024-05-10" || body.Total != 9 || body.Avg != 4.1 {
		t.Fatalf("unexpected body: %+v", body)
	}

	resp2, err := http.Get(ts.URL + "/v1/sources/1/dashboard?date=yesterday")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad date: status %d, want 400", resp2.StatusCode)
	}
}

func TestListReviews_ETagRoundTrip(t *testing.T) {
	repo := &stubRepo{reviews: []domain.Review{{
		ID: 1, SourceID: 1, ExternalID: "g-1", Text: "lovely", Rating: 5,
		Sentiment: domain.SentimentPositive, Confidence: 0.9,
		PublishedAt: time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC),
	}}}
	ts := newTestServer(repo)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/sources/1/reviews")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d, want 200", resp.StatusCode)
	}
	etag := resp.Header.Get("ETag")
	if etag == "" {
		t.Fatal("missing ETag")
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/v1/sources/1/reviews", nil)
	req.Header.Set("If-None-Match", etag)
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("conditional get: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotModified {
		t.Fatalf("status %d, want 304", resp2.StatusCode)
	}
}

func TestListStaleJobs(t *testing.T) {
	started := time.Now().UTC().Add(-3 * time.Hour)
	repo := &stubRepo{stale: []domain.SyncJob{{
		ID: "stuck", SourceID: 1, Kind: domain.KindScheduled, Status: domain.JobInProgress,
		CreatedAt: started, StartedAt: &started,
	}}}
	ts := newTestServer(repo)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/sync-jobs/stale")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d, want 200", resp.StatusCode)
	}
	var body struct {
		Jobs []struct {
			ID string `json:"id"`
		} `json:"jobs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Jobs) != 1 || body.Jobs[0].ID != "stuck" {
		t.Fatalf("unexpected jobs: %+v", body.Jobs)
	}

	resp2, err := http.Get(ts.URL + "/v1/sync-jobs/stale?threshold_minutes=zero")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad threshold: status %d, want 400", resp2.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(&stubRepo{})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d, want 200", resp.StatusCode)
	}
}
