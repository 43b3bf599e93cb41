package domain

import "time"

type SentimentLabel string

const (
	SentimentPositive SentimentLabel = "POSITIVE"
	SentimentNeutral  SentimentLabel = "NEUTRAL"
	SentimentNegative SentimentLabel = "NEGATIVE"
)

func (l SentimentLabel) Valid() bool {
	switch l {
	case SentimentPositive, SentimentNeutral, SentimentNegative:
		return true
	}
	return false
}

// Review is one customer review pulled from a provider.
// (source_id, external_id) is unique among non-retired reviews.
type Review struct {
	ID          int64
	SourceID    int64
	ExternalID  string
	Author      *string
	Text        string
	Fingerprint string // stable hash of Text, see app.Fingerprint
	Rating      int    // 1..5
	Sentiment   SentimentLabel
	Confidence  float64
	PublishedAt time.Time
	FetchedAt   time.Time
	Retired     bool
}

// RawReview is a provider record before it is merged into storage.
type RawReview struct {
	ExternalID  string
	Author      string
	Text        string
	Rating      int
	PublishedAt time.Time
}

type ChangeReason string

const (
	ReasonInitial        ChangeReason = "INITIAL"
	ReasonUserCorrection ChangeReason = "USER_CORRECTION"
	ReasonReanalysis     ChangeReason = "REANALYSIS"
)

// ActorSystem marks sentiment changes written by the sync pipeline itself.
const ActorSystem = "system"

// SentimentChange is an append-only audit row. A review's current
// sentiment always equals New of its latest change.
type SentimentChange struct {
	ID        int64
	ReviewID  int64
	Old       *SentimentLabel // nil for INITIAL
	New       SentimentLabel
	Actor     string // ActorSystem or a user id
	Reason    ChangeReason
	ChangedAt time.Time
}
