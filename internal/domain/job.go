package domain

import "time"

type JobKind string

const (
	KindInitial   JobKind = "INITIAL"
	KindScheduled JobKind = "SCHEDULED"
	KindManual    JobKind = "MANUAL"
)

type JobStatus string

const (
	JobPending    JobStatus = "PENDING"
	JobInProgress JobStatus = "IN_PROGRESS"
	JobCompleted  JobStatus = "COMPLETED"
	JobFailed     JobStatus = "FAILED"
)

func (s JobStatus) Terminal() bool { return s == JobCompleted || s == JobFailed }

// JobCounters is owned exclusively by the running job until it reaches a
// terminal state.
type JobCounters struct {
	Fetched int
	New     int
	Updated int
}

// SyncJob is one synchronization attempt for a source. Transitions are
// monotonic: PENDING -> IN_PROGRESS -> {COMPLETED, FAILED}.
type SyncJob struct {
	ID          string // uuid
	SourceID    int64
	Kind        JobKind
	Status      JobStatus
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	Counters    JobCounters
	ErrorMsg    *string
}
