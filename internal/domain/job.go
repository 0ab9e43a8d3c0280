package domain

import "time"

// JobState represents the lifecycle state of an update job.
type JobState string

const (
	JobStatePending            JobState = "pending"
	JobStateRunning            JobState = "running"
	JobStateSucceeded          JobState = "succeeded"
	JobStateGeneratorFailed    JobState = "generator_failed"
	JobStateRegistrationFailed JobState = "registration_failed"
)

// Job represents one queued repository-update request. The queue owns the
// Job for its whole lifetime; callers only ever see copies.
type Job struct {
	ID         string        `json:"id"`
	Sequence   uint64        `json:"sequence"`
	Ref        RepositoryRef `json:"repository"`
	State      JobState      `json:"state"`
	EnqueuedAt time.Time     `json:"enqueued_at"`
	StartedAt  *time.Time    `json:"started_at,omitempty"`
}

// QueueStatus is a point-in-time snapshot of the update queue. Size always
// equals len(Jobs), and the active job never appears in Jobs.
type QueueStatus struct {
	Size      int    `json:"size"`
	ActiveJob *Job   `json:"active_job,omitempty"`
	Jobs      []*Job `json:"jobs"`
}

// GeneratorResult represents the parsed output of one external generator run.
type GeneratorResult struct {
	Stdout        string `json:"-"`
	Stderr        string `json:"-"`
	OutputPath    string `json:"output_path,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// Outcome is the terminal, typed result of a job. Exactly one of the three
// terminal states is set; Result is present whenever the generator ran to
// completion, and Entry only when registration succeeded for a produced file.
type Outcome struct {
	Job    *Job             `json:"job"`
	State  JobState         `json:"state"`
	Result *GeneratorResult `json:"result,omitempty"`
	Entry  *SummaryEntry    `json:"entry,omitempty"`
	Err    error            `json:"-"`
}
