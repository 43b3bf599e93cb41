package mysql

// Sources.
// A `live` column (1 for non-retired, NULL for retired) backs the
// uniqueness-among-non-retired invariant: MySQL unique keys ignore NULL
// participants, so any number of retired rows may share a profile.

const getSourceSQL = `
SELECT id, brand_id, provider, profile_id, credential_ref, active, live,
       last_sync_state, last_sync_at, next_sync_at
FROM review_sources
WHERE id = ?
`

const listBrandSourcesSQL = `
SELECT id, brand_id, provider, profile_id, credential_ref, active, live,
       last_sync_state, last_sync_at, next_sync_at
FROM review_sources
WHERE brand_id = ? AND live = 1
ORDER BY id
`

const listDueSourcesSQL = `
SELECT id, brand_id, provider, profile_id, credential_ref, active, live,
       last_sync_state, last_sync_at, next_sync_at
FROM review_sources
WHERE live = 1 AND active = 1 AND next_sync_at IS NOT NULL AND next_sync_at <= ?
ORDER BY next_sync_at
`

const advanceNextSyncSQL = `
UPDATE review_sources SET next_sync_at = ? WHERE id = ?
`

const setLastSyncSQL = `
UPDATE review_sources SET last_sync_state = ?, last_sync_at = ? WHERE id = ?
`

// Jobs.
// `active` is 1 while PENDING/IN_PROGRESS and NULL once terminal; the
// unique key (source_id, active) makes "one active job per source" a
// conditional insert rather than a read-then-write.

const lastManualJobSQL = `
SELECT created_at FROM sync_jobs
WHERE source_id = ? AND kind = 'MANUAL'
ORDER BY created_at DESC
LIMIT 1
FOR UPDATE
`

const insertJobSQL = `
INSERT INTO sync_jobs (id, source_id, kind, status, active, created_at)
VALUES (?, ?, ?, 'PENDING', 1, ?)
`

const startJobSQL = `
UPDATE sync_jobs SET status = 'IN_PROGRESS', started_at = ?
WHERE id = ? AND status = 'PENDING'
`

const completeJobSQL = `
UPDATE sync_jobs
SET status = 'COMPLETED', active = NULL, completed_at = ?,
    fetched = ?, new_count = ?, updated_count = ?
WHERE id = ? AND status = 'IN_PROGRESS'
`

const failJobSQL = `
UPDATE sync_jobs
SET status = 'FAILED', active = NULL, completed_at = ?, error_msg = ?,
    fetched = ?, new_count = ?, updated_count = ?
WHERE id = ? AND status = 'IN_PROGRESS'
`

const getJobSQL = `
SELECT id, source_id, kind, status, created_at, started_at, completed_at,
       fetched, new_count, updated_count, error_msg
FROM sync_jobs
WHERE id = ?
`

const listJobsSQL = `
SELECT id, source_id, kind, status, created_at, started_at, completed_at,
       fetched, new_count, updated_count, error_msg
FROM sync_jobs
WHERE source_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ? OFFSET ?
`

// A PENDING job whose run never started still holds the (source_id,
// active) slot, so it must surface here alongside stuck IN_PROGRESS runs.
const listStaleJobsSQL = `
SELECT id, source_id, kind, status, created_at, started_at, completed_at,
       fetched, new_count, updated_count, error_msg
FROM sync_jobs
WHERE (status = 'IN_PROGRESS' AND started_at < ?)
   OR (status = 'PENDING' AND created_at < ?)
ORDER BY COALESCE(started_at, created_at)
`

// Reviews. `text` is reserved; keep it quoted everywhere.

const getReviewSQL = `
SELECT id, source_id, external_id, author, ` + "`text`" + `, fingerprint, rating,
       sentiment, confidence, published_at, fetched_at, live
FROM reviews
WHERE id = ?
`

const getReviewByExternalIDSQL = `
SELECT id, source_id, external_id, author, ` + "`text`" + `, fingerprint, rating,
       sentiment, confidence, published_at, fetched_at, live
FROM reviews
WHERE source_id = ? AND external_id = ? AND live = 1
`

const insertReviewSQL = `
INSERT INTO reviews
  (source_id, external_id, author, ` + "`text`" + `, fingerprint, rating,
   sentiment, confidence, published_at, fetched_at, live)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
`

const updateReviewSQL = `
UPDATE reviews
SET author = ?, ` + "`text`" + ` = ?, fingerprint = ?, rating = ?,
    sentiment = ?, confidence = ?, fetched_at = ?
WHERE id = ?
`

const setSentimentSQL = `
UPDATE reviews SET sentiment = ?, confidence = ? WHERE id = ?
`

const insertChangeSQL = `
INSERT INTO sentiment_changes (review_id, old_sentiment, new_sentiment, actor, reason, changed_at)
VALUES (?, ?, ?, ?, ?, ?)
`

const listChangesSQL = `
SELECT id, review_id, old_sentiment, new_sentiment, actor, reason, changed_at
FROM sentiment_changes
WHERE review_id = ?
ORDER BY changed_at DESC, id DESC
`

const listReviewsSQL = `
SELECT id, source_id, external_id, author, ` + "`text`" + `, fingerprint, rating,
       sentiment, confidence, published_at, fetched_at, live
FROM reviews
WHERE source_id = ? AND live = 1
ORDER BY published_at DESC, id DESC
LIMIT ? OFFSET ?
`

const listReviewsForDaySQL = `
SELECT id, source_id, external_id, author, ` + "`text`" + `, fingerprint, rating,
       sentiment, confidence, published_at, fetched_at, live
FROM reviews
WHERE source_id = ? AND live = 1 AND published_at >= ? AND published_at < ?
ORDER BY published_at, id
`

// Aggregates.

const upsertAggregateSQL = `
INSERT INTO dashboard_aggregates
  (source_id, day, total, avg_rating, positive, neutral, negative, calculated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  total         = VALUES(total),
  avg_rating    = VALUES(avg_rating),
  positive      = VALUES(positive),
  neutral       = VALUES(neutral),
  negative      = VALUES(negative),
  calculated_at = VALUES(calculated_at)
`

const getAggregateSQL = `
SELECT source_id, day, total, avg_rating, positive, neutral, negative, calculated_at
FROM dashboard_aggregates
WHERE source_id = ? AND day = ?
`
