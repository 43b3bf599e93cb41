package providers

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"reviewpulse/internal/domain"
)

// Google pulls location reviews from the Business Profile reviews API.
// This is the reference adapter; Facebook and Trustpilot follow the same
// shape over their own endpoints.
type Google struct {
	base string
	t    *transport
}

func NewGoogle(base, key string, rps int) (*Google, error) {
	t, err := newTransport("google", key, "X-Goog-Api-Key", rps)
	if err != nil {
		return nil, err
	}
	return &Google{base: base, t: t}, nil
}

type googleReview struct {
	ReviewID   string `json:"reviewId"`
	Comment    string `json:"comment"`
	StarRating int    `json:"starRating"`
	Reviewer   struct {
		DisplayName string `json:"displayName"`
	} `json:"reviewer"`
	CreateTime time.Time `json:"createTime"`
}

type googleReviewsResponse struct {
	Reviews []googleReview `json:"reviews"`
}

func (g *Google) FetchReviews(ctx context.Context, profileID string, w domain.Window) ([]domain.RawReview, error) {
	u := fmt.Sprintf("%s/locations/%s/reviews?minCreateTime=%s&maxCreateTime=%s",
		g.base,
		url.PathEscape(profileID),
		url.QueryEscape(w.From.UTC().Format(time.RFC3339)),
		url.QueryEscape(w.To.UTC().Format(time.RFC3339)),
	)
	var resp googleReviewsResponse
	if err := g.t.getJSON(ctx, u, &resp); err != nil {
		return nil, err
	}

	out := make([]domain.RawReview, 0, len(resp.Reviews))
	for _, rv := range resp.Reviews {
		// server-side window params are advisory; filter again locally
		if !inWindow(rv.CreateTime, w) {
			continue
		}
		out = append(out, domain.RawReview{
			ExternalID:  rv.ReviewID,
			Author:      rv.Reviewer.DisplayName,
			Text:        rv.Comment,
			Rating:      clampRating(rv.StarRating),
			PublishedAt: rv.CreateTime,
		})
	}
	return out, nil
}

func inWindow(t time.Time, w domain.Window) bool {
	if !w.From.IsZero() && t.Before(w.From) {
		return false
	}
	if !w.To.IsZero() && t.After(w.To) {
		return false
	}
	return true
}

func clampRating(r int) int {
	if r < 1 {
		return 1
	}
	if r > 5 {
		return 5
	}
	return r
}
