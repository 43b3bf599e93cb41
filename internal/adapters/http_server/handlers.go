package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"reviewpulse/internal/app"
	"reviewpulse/internal/domain"
)

// Handlers is the thin HTTP edge over the application services. Auth and
// ownership live in the upstream gateway; it forwards the acting user in
// X-Actor-ID and the brand scope in X-Brand-ID.
type Handlers struct {
	Sync    *app.SyncService
	Reviews *app.ReviewService
	Q       *app.QueryService

	StaleAfter time.Duration // default threshold for /v1/sync-jobs/stale
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })
	s.mux.Post("/v1/brands/{brandID}/sync", h.triggerSync)
	s.mux.Get("/v1/sync-jobs/stale", h.listStaleJobs)
	s.mux.Get("/v1/sync-jobs/{jobID}", h.getJob)
	s.mux.Get("/v1/sources/{sourceID}/jobs", h.listJobs)
	s.mux.Get("/v1/sources/{sourceID}/dashboard", h.getDashboard)
	s.mux.Get("/v1/sources/{sourceID}/reviews", h.listReviews)
	s.mux.Patch("/v1/reviews/{reviewID}/sentiment", h.updateSentiment)
	s.mux.Get("/v1/reviews/{reviewID}/sentiment/history", h.sentimentHistory)
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%s must be a positive number", name)
	}
	return id, nil
}

func pageQuery(r *http.Request) (domain.PageQuery, error) {
	pg := domain.PageQuery{Limit: 50}
	if ls := r.URL.Query().Get("limit"); ls != "" {
		l, err := strconv.Atoi(ls)
		if err != nil || l <= 0 || l > 200 {
			return pg, errors.New("limit must be an integer between 1 and 200")
		}
		pg.Limit = l
	}
	if os := r.URL.Query().Get("offset"); os != "" {
		o, err := strconv.Atoi(os)
		if err != nil || o < 0 {
			return pg, errors.New("offset must be a non-negative integer")
		}
		pg.Offset = o
	}
	return pg, nil
}

// ---- sync triggering ----

type triggerResponse struct {
	JobIDs         []string  `json:"job_ids"`
	NextEligibleAt time.Time `json:"next_eligible_at"`
}

func (h *Handlers) triggerSync(w http.ResponseWriter, r *http.Request) {
	brandID, err := pathID(r, "brandID")
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	var sourceID *int64
	if ss := r.URL.Query().Get("source_id"); ss != "" {
		id, err := strconv.ParseInt(ss, 10, 64)
		if err != nil || id <= 0 {
			writeProblem(w, http.StatusBadRequest, "Invalid source_id", "source_id must be a positive number")
			return
		}
		sourceID = &id
	}

	res, err := h.Sync.TriggerManualSync(r.Context(), brandID, sourceID)
	if err != nil {
		var rl *domain.RateLimitedError
		switch {
		case errors.As(err, &rl):
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.RetryAfter.Seconds())))
			writeProblem(w, http.StatusTooManyRequests, "Rate Limited",
				fmt.Sprintf("manual sync cooldown active, retry in %s", rl.RetryAfter.Round(time.Second)))
		case errors.Is(err, domain.ErrSyncInProgress):
			writeProblem(w, http.StatusConflict, "Sync In Progress", "a sync job is already running for this source")
		case errors.Is(err, domain.ErrNotFound):
			writeProblem(w, http.StatusNotFound, "Not Found", "source not found")
		default:
			writeProblem(w, http.StatusInternalServerError, "Internal Error", "could not trigger sync")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, triggerResponse{JobIDs: res.JobIDs, NextEligibleAt: res.NextEligibleAt})
}

// ---- job reads ----

type jobView struct {
	ID          string     `json:"id"`
	SourceID    int64      `json:"source_id"`
	Kind        string     `json:"kind"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Fetched     int        `json:"reviews_fetched"`
	New         int        `json:"reviews_new"`
	Updated     int        `json:"reviews_updated"`
	Error       *string    `json:"error,omitempty"`
}

func toJobView(j domain.SyncJob) jobView {
	return jobView{
		ID:          j.ID,
		SourceID:    j.SourceID,
		Kind:        string(j.Kind),
		Status:      string(j.Status),
		CreatedAt:   j.CreatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
		Fetched:     j.Counters.Fetched,
		New:         j.Counters.New,
		Updated:     j.Counters.Updated,
		Error:       j.ErrorMsg,
	}
}

func (h *Handlers) getJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job, err := h.Q.GetJobStatus(r.Context(), jobID)
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Not Found", "sync job not found")
		return
	}
	writeJSON(w, http.StatusOK, toJobView(job))
}

func (h *Handlers) listJobs(w http.ResponseWriter, r *http.Request) {
	sourceID, err := pathID(r, "sourceID")
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	pg, err := pageQuery(r)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid page", err.Error())
		return
	}

	page, err := h.Q.ListJobs(r.Context(), sourceID, pg)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "could not list jobs")
		return
	}
	out := make([]jobView, 0, len(page.Items))
	for _, j := range page.Items {
		out = append(out, toJobView(j))
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": out})
}

func (h *Handlers) listStaleJobs(w http.ResponseWriter, r *http.Request) {
	threshold := h.StaleAfter
	if ts := r.URL.Query().Get("threshold_minutes"); ts != "" {
		m, err := strconv.Atoi(ts)
		if err != nil || m <= 0 {
			writeProblem(w, http.StatusBadRequest, "Invalid threshold", "threshold_minutes must be a positive integer")
			return
		}
		threshold = time.Duration(m) * time.Minute
	}

	jobs, err := h.Q.ListStaleJobs(r.Context(), threshold)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "could not list stale jobs")
		return
	}
	out := make([]jobView, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, toJobView(j))
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": out})
}

// ---- sentiment correction + history ----

type sentimentPatch struct {
	Sentiment string `json:"sentiment"`
}

func (h *Handlers) updateSentiment(w http.ResponseWriter, r *http.Request) {
	reviewID, err := pathID(r, "reviewID")
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	brandID, err := strconv.ParseInt(r.Header.Get("X-Brand-ID"), 10, 64)
	if err != nil || brandID <= 0 {
		writeProblem(w, http.StatusBadRequest, "Missing brand", "X-Brand-ID header is required")
		return
	}
	actor := r.Header.Get("X-Actor-ID")
	if actor == "" {
		writeProblem(w, http.StatusBadRequest, "Missing actor", "X-Actor-ID header is required")
		return
	}

	var body sentimentPatch
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid body", "body must be JSON with a sentiment field")
		return
	}
	label := domain.SentimentLabel(body.Sentiment)
	if !label.Valid() {
		writeProblem(w, http.StatusBadRequest, "Invalid sentiment", "sentiment must be POSITIVE, NEUTRAL or NEGATIVE")
		return
	}

	if err := h.Reviews.UpdateSentiment(r.Context(), brandID, reviewID, label, actor); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Not Found", "review not found")
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "could not update sentiment")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type changeView struct {
	Old       *string   `json:"old_sentiment"`
	New       string    `json:"new_sentiment"`
	Actor     string    `json:"actor"`
	Reason    string    `json:"reason"`
	ChangedAt time.Time `json:"changed_at"`
}

func (h *Handlers) sentimentHistory(w http.ResponseWriter, r *http.Request) {
	reviewID, err := pathID(r, "reviewID")
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	changes, err := h.Q.ListSentimentHistory(r.Context(), reviewID)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "could not list changes")
		return
	}
	out := make([]changeView, 0, len(changes))
	for _, ch := range changes {
		v := changeView{New: string(ch.New), Actor: ch.Actor, Reason: string(ch.Reason), ChangedAt: ch.ChangedAt}
		if ch.Old != nil {
			old := string(*ch.Old)
			v.Old = &old
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, map[string]any{"changes": out})
}

// ---- dashboard + reviews ----

type dashboardView struct {
	SourceID     int64     `json:"source_id"`
	Day          string    `json:"day"`
	Total        int       `json:"total_reviews"`
	AvgRating    float64   `json:"average_rating"`
	Positive     int       `json:"positive"`
	Neutral      int       `json:"neutral"`
	Negative     int       `json:"negative"`
	CalculatedAt time.Time `json:"calculated_at"`
}

func (h *Handlers) getDashboard(w http.ResponseWriter, r *http.Request) {
	sourceID, err := pathID(r, "sourceID")
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	day := domain.Day(time.Now().UTC())
	if ds := r.URL.Query().Get("date"); ds != "" {
		d, err := time.Parse("2006-01-02", ds)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid date", "date must be YYYY-MM-DD")
			return
		}
		day = d
	}

	agg, err := h.Q.GetDashboard(r.Context(), sourceID, day)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Not Found", "no aggregate for that day")
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "could not read dashboard")
		return
	}
	writeJSON(w, http.StatusOK, dashboardView{
		SourceID:     agg.SourceID,
		Day:          agg.Day.Format("2006-01-02"),
		Total:        agg.Total,
		AvgRating:    agg.AvgRating,
		Positive:     agg.Positive,
		Neutral:      agg.Neutral,
		Negative:     agg.Negative,
		CalculatedAt: agg.CalculatedAt,
	})
}

type reviewView struct {
	ID          int64     `json:"id"`
	ExternalID  string    `json:"external_id"`
	Author      *string   `json:"author,omitempty"`
	Text        string    `json:"text"`
	Rating      int       `json:"rating"`
	Sentiment   string    `json:"sentiment"`
	Confidence  float64   `json:"confidence"`
	PublishedAt time.Time `json:"published_at"`
}

func (h *Handlers) listReviews(w http.ResponseWriter, r *http.Request) {
	sourceID, err := pathID(r, "sourceID")
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	pg, err := pageQuery(r)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid page", err.Error())
		return
	}

	page, err := h.Q.ListReviews(r.Context(), sourceID, pg)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "could not list reviews")
		return
	}
	out := make([]reviewView, 0, len(page.Items))
	for _, rv := range page.Items {
		out = append(out, reviewView{
			ID:          rv.ID,
			ExternalID:  rv.ExternalID,
			Author:      rv.Author,
			Text:        rv.Text,
			Rating:      rv.Rating,
			Sentiment:   string(rv.Sentiment),
			Confidence:  rv.Confidence,
			PublishedAt: rv.PublishedAt,
		})
	}

	etag, body := calcETagAndBody(map[string]any{"reviews": out})
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write listReviews body")
	}
}
