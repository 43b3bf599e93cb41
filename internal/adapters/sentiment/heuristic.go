package sentiment

import (
	"context"

	"reviewpulse/internal/domain"
)

// Heuristic is the default rating-based classifier: rating>=4 POSITIVE,
// =3 NEUTRAL, <=2 NEGATIVE. Confidence reflects how far the rating sits
// from the middle of the scale.
type Heuristic struct{}

func NewHeuristic() Heuristic { return Heuristic{} }

func (Heuristic) Classify(_ context.Context, rating int, _ string) (domain.SentimentLabel, float64, error) {
	label := domain.SentimentNeutral
	switch {
	case rating >= 4:
		label = domain.SentimentPositive
	case rating <= 2:
		label = domain.SentimentNegative
	}
	return label, confidence(rating), nil
}

func confidence(rating int) float64 {
	switch rating {
	case 1, 5:
		return 0.90
	case 2, 4:
		return 0.75
	default:
		return 0.60
	}
}
