package providers

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"reviewpulse/internal/domain"
)

// Facebook pulls page ratings from the Graph API.
type Facebook struct {
	base string
	t    *transport
}

func NewFacebook(base, token string, rps int) (*Facebook, error) {
	t, err := newTransport("facebook", token, "Authorization", rps)
	if err != nil {
		return nil, err
	}
	t.key = "Bearer " + token
	return &Facebook{base: base, t: t}, nil
}

type facebookRating struct {
	ID         string `json:"id"`
	ReviewText string `json:"review_text"`
	Rating     int    `json:"rating"`
	Reviewer   struct {
		Name string `json:"name"`
	} `json:"reviewer"`
	CreatedTime time.Time `json:"created_time"`
}

type facebookRatingsResponse struct {
	Data []facebookRating `json:"data"`
}

func (f *Facebook) FetchReviews(ctx context.Context, profileID string, w domain.Window) ([]domain.RawReview, error) {
	u := fmt.Sprintf("%s/%s/ratings?fields=reviewer,review_text,rating,created_time&since=%d&until=%d",
		f.base, url.PathEscape(profileID), w.From.Unix(), w.To.Unix())
	var resp facebookRatingsResponse
	if err := f.t.getJSON(ctx, u, &resp); err != nil {
		return nil, err
	}

	out := make([]domain.RawReview, 0, len(resp.Data))
	for _, rv := range resp.Data {
		if !inWindow(rv.CreatedTime, w) {
			continue
		}
		out = append(out, domain.RawReview{
			ExternalID:  rv.ID,
			Author:      rv.Reviewer.Name,
			Text:        rv.ReviewText,
			Rating:      clampRating(rv.Rating),
			PublishedAt: rv.CreatedTime,
		})
	}
	return out, nil
}
