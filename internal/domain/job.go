package domain

import "time"

// JobKind enumerates supported generation categories.
type JobKind string

const (
	JobKindImage         JobKind = "IMAGE_GEN"
	JobKindVideo         JobKind = "VIDEO_GEN"
	JobKindAvatarLipsync JobKind = "AVATAR_LIPSYNC"
	JobKindSpeech        JobKind = "SPEECH_GEN"
)

// Valid reports whether the kind is one of the supported categories.
func (k JobKind) Valid() bool {
	switch k {
	case JobKindImage, JobKindVideo, JobKindAvatarLipsync, JobKindSpeech:
		return true
	}
	return false
}

// JobStatus enumerates persisted job lifecycle states. The admission phases
// (validation, moderation, quota, concurrency, reservation) are transient and
// never produce a job record; a record exists only once credits are held.
type JobStatus string

const (
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

// Terminal reports whether the status admits no further transition.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job is one admitted, credit-backed generation request. ReservedBase and
// ReservedBonus record the exact per-pool split deducted at admission so a
// refund restores both pools individually, never a recomputed total.
type Job struct {
	ID             string
	OwnerID        string
	Kind           JobKind
	ProviderKey    string
	Units          int
	ReservedBase   int64
	ReservedBonus  int64
	ProviderHandle string
	Status         JobStatus
	ResultJSON     []byte
	FailureReason  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastPolledAt   time.Time
	CompletedAt    time.Time
}

// CreditsReserved is the total held against the ledger for this job.
func (j *Job) CreditsReserved() int64 {
	return j.ReservedBase + j.ReservedBonus
}

// UsageEvent records one settlement outcome for analytics and audit.
type UsageEvent struct {
	UserID     string
	JobID      string
	EventType  string
	Success    bool
	LatencyMS  int64
	Properties map[string]any
}
