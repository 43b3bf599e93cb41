package sentiment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"reviewpulse/internal/domain"
)

// Remote calls an AI-backed classification endpoint. Failures are
// reported to the caller, which falls back to the heuristic — a sync run
// never aborts on classification quality.
type Remote struct {
	base string
	key  string
	hc   *http.Client
}

func NewRemote(base, key string) (*Remote, error) {
	if base == "" {
		return nil, fmt.Errorf("sentiment: base URL is required")
	}
	return &Remote{
		base: base,
		key:  key,
		hc:   &http.Client{Timeout: 10 * time.Second},
	}, nil
}

type classifyRequest struct {
	Rating int    `json:"rating"`
	Text   string `json:"text"`
}

type classifyResponse struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

func (r *Remote) Classify(ctx context.Context, rating int, text string) (domain.SentimentLabel, float64, error) {
	body, _ := json.Marshal(classifyRequest{Rating: rating, Text: text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.base+"/v1/classify", bytes.NewReader(body))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.key != "" {
		req.Header.Set("X-API-Key", r.key)
	}

	resp, err := r.hc.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return "", 0, fmt.Errorf("sentiment: remote %d", resp.StatusCode)
	}

	var out classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", 0, err
	}
	label := domain.SentimentLabel(out.Label)
	if !label.Valid() {
		return "", 0, fmt.Errorf("sentiment: unknown label %q", out.Label)
	}
	return label, out.Confidence, nil
}
