package mysql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"reviewpulse/internal/domain"
)

func valStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func valLabel(p *domain.SentimentLabel) any {
	if p == nil {
		return nil
	}
	return string(*p)
}

const mysqlDupEntry = 1062

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDupEntry
}

type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

// ---- sources ----

func (r *Repo) GetSource(ctx context.Context, id int64) (domain.ReviewSource, error) {
	return scanSource(r.db.QueryRowContext(ctx, getSourceSQL, id))
}

func (r *Repo) ListBrandSources(ctx context.Context, brandID int64) ([]domain.ReviewSource, error) {
	return r.querySources(ctx, listBrandSourcesSQL, brandID)
}

func (r *Repo) ListDueSources(ctx context.Context, now time.Time) ([]domain.ReviewSource, error) {
	return r.querySources(ctx, listDueSourcesSQL, now.UTC())
}

func (r *Repo) AdvanceNextSync(ctx context.Context, sourceID int64, next time.Time) error {
	_, err := r.db.ExecContext(ctx, advanceNextSyncSQL, next.UTC(), sourceID)
	return err
}

func (r *Repo) SetLastSync(ctx context.Context, sourceID int64, state string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, setLastSyncSQL, state, at.UTC(), sourceID)
	return err
}

func (r *Repo) querySources(ctx context.Context, q string, args ...any) ([]domain.ReviewSource, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ReviewSource
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type rowScanner interface{ Scan(dst ...any) error }

func scanSource(row rowScanner) (domain.ReviewSource, error) {
	var s domain.ReviewSource
	var credRef, lastState sql.NullString
	var live sql.NullInt64
	var lastAt, nextAt sql.NullTime
	if err := row.Scan(
		&s.ID, &s.BrandID, &s.Provider, &s.ProfileID,
		&credRef, &s.Active, &live, &lastState, &lastAt, &nextAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return domain.ReviewSource{}, domain.ErrNotFound
		}
		return domain.ReviewSource{}, err
	}
	s.Retired = !live.Valid
	if credRef.Valid {
		v := credRef.String
		s.CredentialRef = &v
	}
	if lastState.Valid {
		v := lastState.String
		s.LastSyncState = &v
	}
	if lastAt.Valid {
		v := lastAt.Time
		s.LastSyncAt = &v
	}
	if nextAt.Valid {
		v := nextAt.Time
		s.NextSyncAt = &v
	}
	return s, nil
}

// ---- jobs ----

// AdmitJob runs the whole admission check inside one transaction. The
// FOR UPDATE read serializes concurrent manual triggers on the cooldown
// check; the unique (source_id, active) key turns the one-active-job
// rule into a conditional insert, so a racing scheduled trigger loses
// with a duplicate-key error rather than slipping past a stale read.
func (r *Repo) AdmitJob(ctx context.Context, sourceID int64, kind domain.JobKind, cooldown time.Duration) (domain.SyncJob, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.SyncJob{}, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if kind == domain.KindManual && cooldown > 0 {
		var last time.Time
		err := tx.QueryRowContext(ctx, lastManualJobSQL, sourceID).Scan(&last)
		switch {
		case err == sql.ErrNoRows:
			// first manual job for this source
		case err != nil:
			return domain.SyncJob{}, err
		default:
			if elapsed := now.Sub(last); elapsed < cooldown {
				return domain.SyncJob{}, &domain.RateLimitedError{RetryAfter: cooldown - elapsed}
			}
		}
	}

	job := domain.SyncJob{
		ID:        uuid.NewString(),
		SourceID:  sourceID,
		Kind:      kind,
		Status:    domain.JobPending,
		CreatedAt: now,
	}
	if _, err := tx.ExecContext(ctx, insertJobSQL, job.ID, sourceID, string(kind), now); err != nil {
		if isDuplicate(err) {
			return domain.SyncJob{}, domain.ErrSyncInProgress
		}
		return domain.SyncJob{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.SyncJob{}, err
	}
	return job, nil
}

func (r *Repo) StartJob(ctx context.Context, jobID string) error {
	return r.transition(ctx, startJobSQL, time.Now().UTC(), jobID)
}

func (r *Repo) CompleteJob(ctx context.Context, jobID string, c domain.JobCounters) error {
	return r.transition(ctx, completeJobSQL, time.Now().UTC(), c.Fetched, c.New, c.Updated, jobID)
}

func (r *Repo) FailJob(ctx context.Context, jobID string, msg string, c domain.JobCounters) error {
	return r.transition(ctx, failJobSQL, time.Now().UTC(), msg, c.Fetched, c.New, c.Updated, jobID)
}

// transition guards monotonic status moves: the WHERE clause matches the
// expected prior status, so a repeated or out-of-order call affects zero
// rows and reports ErrNotFound.
func (r *Repo) transition(ctx context.Context, q string, args ...any) error {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *Repo) GetJob(ctx context.Context, jobID string) (domain.SyncJob, error) {
	return scanJob(r.db.QueryRowContext(ctx, getJobSQL, jobID))
}

func (r *Repo) ListJobs(ctx context.Context, sourceID int64, pg domain.PageQuery) (domain.JobsPage, error) {
	items, err := r.queryJobs(ctx, listJobsSQL, sourceID, pg.Limit, pg.Offset)
	if err != nil {
		return domain.JobsPage{}, err
	}
	return domain.JobsPage{Items: items}, nil
}

func (r *Repo) ListStaleJobs(ctx context.Context, startedBefore time.Time) ([]domain.SyncJob, error) {
	cutoff := startedBefore.UTC()
	return r.queryJobs(ctx, listStaleJobsSQL, cutoff, cutoff)
}

func (r *Repo) queryJobs(ctx context.Context, q string, args ...any) ([]domain.SyncJob, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SyncJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func scanJob(row rowScanner) (domain.SyncJob, error) {
	var j domain.SyncJob
	var started, completed sql.NullTime
	var errMsg sql.NullString
	if err := row.Scan(
		&j.ID, &j.SourceID, &j.Kind, &j.Status, &j.CreatedAt,
		&started, &completed,
		&j.Counters.Fetched, &j.Counters.New, &j.Counters.Updated,
		&errMsg,
	); err != nil {
		if err == sql.ErrNoRows {
			return domain.SyncJob{}, domain.ErrNotFound
		}
		return domain.SyncJob{}, err
	}
	if started.Valid {
		v := started.Time
		j.StartedAt = &v
	}
	if completed.Valid {
		v := completed.Time
		j.CompletedAt = &v
	}
	if errMsg.Valid {
		v := errMsg.String
		j.ErrorMsg = &v
	}
	return j, nil
}

// ---- reviews ----

func (r *Repo) GetReview(ctx context.Context, reviewID int64) (domain.Review, error) {
	return scanReview(r.db.QueryRowContext(ctx, getReviewSQL, reviewID))
}

func (r *Repo) GetReviewByExternalID(ctx context.Context, sourceID int64, externalID string) (domain.Review, error) {
	return scanReview(r.db.QueryRowContext(ctx, getReviewByExternalIDSQL, sourceID, externalID))
}

// InsertReview writes the review and its INITIAL sentiment change in one
// transaction. A lost (source_id, external_id) race surfaces as
// ErrDuplicate; the caller treats the pre-existing row as authoritative.
func (r *Repo) InsertReview(ctx context.Context, rv domain.Review, ch domain.SentimentChange) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, insertReviewSQL,
		rv.SourceID, rv.ExternalID, valStr(rv.Author), rv.Text, rv.Fingerprint,
		rv.Rating, string(rv.Sentiment), rv.Confidence,
		rv.PublishedAt.UTC(), rv.FetchedAt.UTC(),
	)
	if err != nil {
		if isDuplicate(err) {
			return 0, domain.ErrDuplicate
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, insertChangeSQL,
		id, valLabel(ch.Old), string(ch.New), ch.Actor, string(ch.Reason), ch.ChangedAt.UTC(),
	); err != nil {
		return 0, err
	}
	return id, tx.Commit()
}

func (r *Repo) UpdateReview(ctx context.Context, rv domain.Review, ch domain.SentimentChange) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, updateReviewSQL,
		valStr(rv.Author), rv.Text, rv.Fingerprint, rv.Rating,
		string(rv.Sentiment), rv.Confidence, rv.FetchedAt.UTC(), rv.ID,
	); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, insertChangeSQL,
		rv.ID, valLabel(ch.Old), string(ch.New), ch.Actor, string(ch.Reason), ch.ChangedAt.UTC(),
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *Repo) SetSentiment(ctx context.Context, reviewID int64, label domain.SentimentLabel, confidence float64, ch domain.SentimentChange) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, setSentimentSQL, string(label), confidence, reviewID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, insertChangeSQL,
		reviewID, valLabel(ch.Old), string(ch.New), ch.Actor, string(ch.Reason), ch.ChangedAt.UTC(),
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *Repo) ListReviews(ctx context.Context, sourceID int64, pg domain.PageQuery) (domain.ReviewsPage, error) {
	items, err := r.queryReviews(ctx, listReviewsSQL, sourceID, pg.Limit, pg.Offset)
	if err != nil {
		return domain.ReviewsPage{}, err
	}
	return domain.ReviewsPage{Items: items}, nil
}

func (r *Repo) ListReviewsForDay(ctx context.Context, sourceID int64, day time.Time) ([]domain.Review, error) {
	start := domain.Day(day)
	return r.queryReviews(ctx, listReviewsForDaySQL, sourceID, start, start.AddDate(0, 0, 1))
}

func (r *Repo) queryReviews(ctx context.Context, q string, args ...any) ([]domain.Review, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Review
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rv)
	}
	return out, rows.Err()
}

func scanReview(row rowScanner) (domain.Review, error) {
	var rv domain.Review
	var author sql.NullString
	var live sql.NullInt64
	if err := row.Scan(
		&rv.ID, &rv.SourceID, &rv.ExternalID, &author, &rv.Text, &rv.Fingerprint,
		&rv.Rating, &rv.Sentiment, &rv.Confidence, &rv.PublishedAt, &rv.FetchedAt, &live,
	); err != nil {
		if err == sql.ErrNoRows {
			return domain.Review{}, domain.ErrNotFound
		}
		return domain.Review{}, err
	}
	rv.Retired = !live.Valid
	if author.Valid {
		v := author.String
		rv.Author = &v
	}
	return rv, nil
}

func (r *Repo) ListSentimentChanges(ctx context.Context, reviewID int64) ([]domain.SentimentChange, error) {
	rows, err := r.db.QueryContext(ctx, listChangesSQL, reviewID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SentimentChange
	for rows.Next() {
		var ch domain.SentimentChange
		var old sql.NullString
		if err := rows.Scan(&ch.ID, &ch.ReviewID, &old, &ch.New, &ch.Actor, &ch.Reason, &ch.ChangedAt); err != nil {
			return nil, err
		}
		if old.Valid {
			v := domain.SentimentLabel(old.String)
			ch.Old = &v
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// ---- aggregates ----

func (r *Repo) UpsertAggregate(ctx context.Context, a domain.DashboardAggregate) error {
	_, err := r.db.ExecContext(ctx, upsertAggregateSQL,
		a.SourceID, a.Day.Format("2006-01-02"),
		a.Total, a.AvgRating, a.Positive, a.Neutral, a.Negative,
		a.CalculatedAt.UTC(),
	)
	return err
}

func (r *Repo) GetAggregate(ctx context.Context, sourceID int64, day time.Time) (domain.DashboardAggregate, error) {
	row := r.db.QueryRowContext(ctx, getAggregateSQL, sourceID, domain.Day(day).Format("2006-01-02"))

	var a domain.DashboardAggregate
	var d time.Time
	if err := row.Scan(&a.SourceID, &d, &a.Total, &a.AvgRating, &a.Positive, &a.Neutral, &a.Negative, &a.CalculatedAt); err != nil {
		if err == sql.ErrNoRows {
			return domain.DashboardAggregate{}, domain.ErrNotFound
		}
		return domain.DashboardAggregate{}, err
	}
	a.Day = domain.Day(d)
	return a, nil
}
