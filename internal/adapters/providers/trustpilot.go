package providers

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"reviewpulse/internal/domain"
)

// Trustpilot pulls business-unit reviews.
type Trustpilot struct {
	base string
	t    *transport
}

func NewTrustpilot(base, key string, rps int) (*Trustpilot, error) {
	t, err := newTransport("trustpilot", key, "apikey", rps)
	if err != nil {
		return nil, err
	}
	return &Trustpilot{base: base, t: t}, nil
}

type trustpilotReview struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	Stars    int    `json:"stars"`
	Consumer struct {
		DisplayName string `json:"displayName"`
	} `json:"consumer"`
	CreatedAt time.Time `json:"createdAt"`
}

type trustpilotReviewsResponse struct {
	Reviews []trustpilotReview `json:"reviews"`
}

func (tp *Trustpilot) FetchReviews(ctx context.Context, profileID string, w domain.Window) ([]domain.RawReview, error) {
	u := fmt.Sprintf("%s/business-units/%s/reviews?startDateTime=%s&endDateTime=%s",
		tp.base,
		url.PathEscape(profileID),
		url.QueryEscape(w.From.UTC().Format(time.RFC3339)),
		url.QueryEscape(w.To.UTC().Format(time.RFC3339)),
	)
	var resp trustpilotReviewsResponse
	if err := tp.t.getJSON(ctx, u, &resp); err != nil {
		return nil, err
	}

	out := make([]domain.RawReview, 0, len(resp.Reviews))
	for _, rv := range resp.Reviews {
		if !inWindow(rv.CreatedAt, w) {
			continue
		}
		out = append(out, domain.RawReview{
			ExternalID:  rv.ID,
			Author:      rv.Consumer.DisplayName,
			Text:        rv.Text,
			Rating:      clampRating(rv.Stars),
			PublishedAt: rv.CreatedAt,
		})
	}
	return out, nil
}
