package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"reviewpulse/internal/adapters/observability"
	"reviewpulse/internal/domain"
)

const initialWindowDays = 90

// SyncService is the coordinator: it admits sync jobs (rate limit +
// single-active-job, atomically in the repository), dispatches them to
// the worker pool, and drives the fetch/upsert run itself.
type SyncService struct {
	repo       domain.Repository
	providers  domain.ProviderSet
	classifier domain.SentimentClassifier
	fallback   domain.SentimentClassifier
	aggs       *AggregateService
	runner     *Runner // nil runs jobs inline (tests)

	cooldown     time.Duration
	windowDays   int // trailing window for SCHEDULED/MANUAL jobs
	syncInterval time.Duration
}

func NewSyncService(
	repo domain.Repository,
	providers domain.ProviderSet,
	classifier, fallback domain.SentimentClassifier,
	aggs *AggregateService,
	runner *Runner,
	cooldown time.Duration,
	windowDays int,
	syncInterval time.Duration,
) *SyncService {
	if windowDays <= 0 {
		windowDays = 30
	}
	return &SyncService{
		repo:         repo,
		providers:    providers,
		classifier:   classifier,
		fallback:     fallback,
		aggs:         aggs,
		runner:       runner,
		cooldown:     cooldown,
		windowDays:   windowDays,
		syncInterval: syncInterval,
	}
}

type TriggerResult struct {
	JobIDs         []string
	NextEligibleAt time.Time
}

// TriggerManualSync admits one MANUAL job per target source and returns
// immediately; the runs happen on the worker pool. With a sourceID the
// source must belong to the brand (reported as ErrNotFound otherwise);
// without one, every source of the brand is targeted and per-source
// admission failures are skipped as long as at least one job is admitted.
func (s *SyncService) TriggerManualSync(ctx context.Context, brandID int64, sourceID *int64) (TriggerResult, error) {
	var targets []domain.ReviewSource
	if sourceID != nil {
		src, err := s.repo.GetSource(ctx, *sourceID)
		if err != nil {
			return TriggerResult{}, err
		}
		if src.BrandID != brandID || src.Retired {
			return TriggerResult{}, domain.ErrNotFound
		}
		targets = []domain.ReviewSource{src}
	} else {
		var err error
		targets, err = s.repo.ListBrandSources(ctx, brandID)
		if err != nil {
			return TriggerResult{}, err
		}
		if len(targets) == 0 {
			return TriggerResult{}, domain.ErrNotFound
		}
	}

	res := TriggerResult{NextEligibleAt: time.Now().UTC().Add(s.cooldown)}
	var firstErr error
	for _, src := range targets {
		job, err := s.repo.AdmitJob(ctx, src.ID, domain.KindManual, s.cooldown)
		if err != nil {
			observability.ObserveJob(string(domain.KindManual), admissionOutcome(err))
			if sourceID != nil {
				return TriggerResult{}, err
			}
			if firstErr == nil {
				firstErr = err
			}
			log.Info().Int64("source", src.ID).Err(err).Msg("manual sync not admitted")
			continue
		}
		res.JobIDs = append(res.JobIDs, job.ID)
		s.dispatch(job)
	}
	if len(res.JobIDs) == 0 && firstErr != nil {
		return TriggerResult{}, firstErr
	}
	return res, nil
}

// TriggerInitialSync admits the INITIAL backfill job for a freshly
// registered source. No cooldown applies.
func (s *SyncService) TriggerInitialSync(ctx context.Context, sourceID int64) (string, error) {
	job, err := s.repo.AdmitJob(ctx, sourceID, domain.KindInitial, 0)
	if err != nil {
		observability.ObserveJob(string(domain.KindInitial), admissionOutcome(err))
		return "", err
	}
	s.dispatch(job)
	return job.ID, nil
}

// RunScheduledPass enqueues SCHEDULED jobs for every due source. A
// source with an active job is skipped, not failed; its next-sync time
// is only advanced when a job was actually admitted.
func (s *SyncService) RunScheduledPass(ctx context.Context, now time.Time) error {
	due, err := s.repo.ListDueSources(ctx, now)
	if err != nil {
		return err
	}
	for _, src := range due {
		job, err := s.repo.AdmitJob(ctx, src.ID, domain.KindScheduled, 0)
		if err != nil {
			if errors.Is(err, domain.ErrSyncInProgress) {
				log.Info().Int64("source", src.ID).Msg("scheduled sync skipped, job already active")
				observability.ObserveJob(string(domain.KindScheduled), "in_progress")
				continue
			}
			return fmt.Errorf("admit scheduled job for source %d: %w", src.ID, err)
		}
		if err := s.repo.AdvanceNextSync(ctx, src.ID, now.Add(s.syncInterval)); err != nil {
			log.Error().Int64("source", src.ID).Err(err).Msg("advance next sync failed")
		}
		s.dispatch(job)
	}
	return nil
}

func admissionOutcome(err error) string {
	var rl *domain.RateLimitedError
	switch {
	case errors.As(err, &rl):
		return "rate_limited"
	case errors.Is(err, domain.ErrSyncInProgress):
		return "in_progress"
	default:
		return "error"
	}
}

func (s *SyncService) dispatch(job domain.SyncJob) {
	if s.runner == nil {
		s.Run(context.Background(), job)
		return
	}
	s.runner.Go(func(ctx context.Context) { s.Run(ctx, job) })
}

// Run executes one admitted job to its terminal state. Partial progress
// is preserved on failure: counters reflect work actually done and
// aggregates are recomputed for every day touched before the error.
func (s *SyncService) Run(ctx context.Context, job domain.SyncJob) {
	if err := s.repo.StartJob(ctx, job.ID); err != nil {
		log.Error().Str("job", job.ID).Err(err).Msg("start job failed")
		return
	}

	counters, days, runErr := s.syncOne(ctx, job)

	now := time.Now().UTC()
	if runErr != nil {
		if err := s.repo.FailJob(ctx, job.ID, jobErrorMessage(runErr), counters); err != nil {
			log.Error().Str("job", job.ID).Err(err).Msg("fail job failed")
		}
		_ = s.repo.SetLastSync(ctx, job.SourceID, string(domain.JobFailed), now)
		observability.ObserveJob(string(job.Kind), "failed")
		log.Warn().Str("job", job.ID).Int64("source", job.SourceID).Err(runErr).
			Int("fetched", counters.Fetched).Msg("sync failed")
	} else {
		if err := s.repo.CompleteJob(ctx, job.ID, counters); err != nil {
			log.Error().Str("job", job.ID).Err(err).Msg("complete job failed")
		}
		_ = s.repo.SetLastSync(ctx, job.SourceID, string(domain.JobCompleted), now)
		observability.ObserveJob(string(job.Kind), "completed")
		log.Info().Str("job", job.ID).Int64("source", job.SourceID).
			Int("fetched", counters.Fetched).Int("new", counters.New).Int("updated", counters.Updated).
			Msg("sync completed")
	}

	s.aggs.OnReviewsChanged(ctx, job.SourceID, days)
}

// syncOne is the upsert loop: fetch, then per record dedupe by
// (source, external id) and fingerprint.
func (s *SyncService) syncOne(ctx context.Context, job domain.SyncJob) (domain.JobCounters, []time.Time, error) {
	var counters domain.JobCounters
	touched := map[time.Time]struct{}{}

	src, err := s.repo.GetSource(ctx, job.SourceID)
	if err != nil {
		return counters, nil, fmt.Errorf("load source: %w", err)
	}

	adapter, ok := s.providers.Adapter(src.Provider)
	if !ok {
		return counters, nil, fmt.Errorf("no adapter for provider %q", src.Provider)
	}

	raws, err := adapter.FetchReviews(ctx, src.ProfileID, s.window(job.Kind))
	if err != nil {
		return counters, nil, fmt.Errorf("fetch reviews: %w", err)
	}

	for _, raw := range raws {
		counters.Fetched++
		fp := Fingerprint(raw.Text)

		existing, err := s.repo.GetReviewByExternalID(ctx, job.SourceID, raw.ExternalID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			label, conf := s.classify(ctx, raw.Rating, raw.Text)
			now := time.Now().UTC()
			rv := domain.Review{
				SourceID:    job.SourceID,
				ExternalID:  raw.ExternalID,
				Author:      optional(raw.Author),
				Text:        raw.Text,
				Fingerprint: fp,
				Rating:      raw.Rating,
				Sentiment:   label,
				Confidence:  conf,
				PublishedAt: raw.PublishedAt.UTC(),
				FetchedAt:   now,
			}
			ch := domain.SentimentChange{
				New:       label,
				Actor:     domain.ActorSystem,
				Reason:    domain.ReasonInitial,
				ChangedAt: now,
			}
			if _, err := s.repo.InsertReview(ctx, rv, ch); err != nil {
				if errors.Is(err, domain.ErrDuplicate) {
					// lost a concurrent-insert race; the stored row wins
					observability.ObserveUpsert("duplicate_race")
					continue
				}
				return counters, daysOf(touched), fmt.Errorf("insert review %s: %w", raw.ExternalID, err)
			}
			counters.New++
			touched[domain.Day(raw.PublishedAt)] = struct{}{}
			observability.ObserveUpsert("new")

		case err != nil:
			return counters, daysOf(touched), fmt.Errorf("lookup review %s: %w", raw.ExternalID, err)

		case existing.Fingerprint != fp:
			label, conf := s.classify(ctx, raw.Rating, raw.Text)
			now := time.Now().UTC()
			old := existing.Sentiment
			updated := existing
			updated.Author = optional(raw.Author)
			updated.Text = raw.Text
			updated.Fingerprint = fp
			updated.Rating = raw.Rating
			updated.Sentiment = label
			updated.Confidence = conf
			updated.FetchedAt = now
			ch := domain.SentimentChange{
				ReviewID:  existing.ID,
				Old:       &old,
				New:       label,
				Actor:     domain.ActorSystem,
				Reason:    domain.ReasonReanalysis,
				ChangedAt: now,
			}
			if err := s.repo.UpdateReview(ctx, updated, ch); err != nil {
				return counters, daysOf(touched), fmt.Errorf("update review %s: %w", raw.ExternalID, err)
			}
			counters.Updated++
			touched[domain.Day(existing.PublishedAt)] = struct{}{}
			observability.ObserveUpsert("updated")

		default:
			// fingerprint match: true duplicate, nothing to do
			observability.ObserveUpsert("unchanged")
		}
	}

	return counters, daysOf(touched), nil
}

// window: INITIAL always backfills 90 days; SCHEDULED/MANUAL use the
// configured trailing window.
func (s *SyncService) window(kind domain.JobKind) domain.Window {
	now := time.Now().UTC()
	days := s.windowDays
	if kind == domain.KindInitial {
		days = initialWindowDays
	}
	return domain.Window{From: now.AddDate(0, 0, -days), To: now}
}

// classify prefers the configured classifier and falls back to the
// rating heuristic on failure: a sync never aborts on classification.
func (s *SyncService) classify(ctx context.Context, rating int, text string) (domain.SentimentLabel, float64) {
	label, conf, err := s.classifier.Classify(ctx, rating, text)
	if err == nil {
		return label, conf
	}
	log.Warn().Err(err).Msg("classifier failed, using rating heuristic")
	label, conf, _ = s.fallback.Classify(ctx, rating, text)
	return label, conf
}

// jobErrorMessage keeps stored messages bounded; provider errors carry
// no credentials or payloads by construction.
func jobErrorMessage(err error) string {
	msg := err.Error()
	if len(msg) > 512 {
		msg = msg[:512]
	}
	return msg
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func daysOf(m map[time.Time]struct{}) []time.Time {
	out := make([]time.Time, 0, len(m))
	for d := range m {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
