package types

import (
	"encoding/json"
	"time"
)

// JobStatus is the lifecycle status of an asynchronous job record.
type JobStatus string

// Job status constants
const (
	// JobQueued is the status of a freshly created job
	JobQueued JobStatus = "queued"

	// JobProcessing means a worker picked the job up
	JobProcessing JobStatus = "processing"

	// JobCompleted means the worker finished successfully
	JobCompleted JobStatus = "completed"

	// JobFailed means the worker gave up
	JobFailed JobStatus = "failed"

	// JobRetrying means the worker failed and will try again
	JobRetrying JobStatus = "retrying"
)

// IsValidJobStatus reports whether s is a known job status.
func IsValidJobStatus(s JobStatus) bool {
	switch s {
	case JobQueued, JobProcessing, JobCompleted, JobFailed, JobRetrying:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are expected.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Job is a unit of asynchronous work. Only the record lives here; execution
// belongs to an external worker that drives status through UpdateJobStatus.
type Job struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	Kind        string          `json:"kind"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Status      JobStatus       `json:"status"`
	Attempts    int             `json:"attempts"`
	LastError   string          `json:"last_error,omitempty"`
	BatchID     string          `json:"batch_id,omitempty"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// JobPatch changes mutable job fields other than status.
type JobPatch struct {
	Kind    *string
	Payload *json.RawMessage
	BatchID *string
}

// JobFilter narrows a job listing.
type JobFilter struct {
	Statuses []JobStatus
	Kind     string
	BatchID  string
}

// JobStatusCounts maps each status to the number of jobs in it.
type JobStatusCounts map[JobStatus]int
