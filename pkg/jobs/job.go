// Package jobs tracks background decomposition jobs — long-running backend
// operations that expand a task into subtasks — from submission to a
// terminal state.
package jobs

import "time"

// Status is the lifecycle state of a decomposition job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// String implements fmt.Stringer.
func (s Status) String() string { return string(s) }

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// rank orders statuses along the queued→running→terminal progression.
// Unknown statuses rank below queued so they can never displace real state.
func (s Status) rank() int {
	switch s {
	case StatusQueued:
		return 1
	case StatusRunning:
		return 2
	case StatusSucceeded, StatusFailed:
		return 3
	default:
		return 0
	}
}

// Snapshot is one observation of a job, as returned by the backend
// status-fetch operation.
type Snapshot struct {
	JobID   string   `json:"job_id"`
	JobType string   `json:"job_type,omitempty"`
	Status  Status   `json:"status"`
	PlanID  *int64   `json:"plan_id,omitempty"`
	TaskID  string   `json:"task_id,omitempty"`
	Logs    []string `json:"logs,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// Job is the locally tracked decomposition job record. It is created at
// submission, mutated only by applying poll snapshots, and immutable once
// terminal.
type Job struct {
	JobID   string   `json:"job_id"`
	JobType string   `json:"job_type,omitempty"`
	Status  Status   `json:"status"`
	PlanID  *int64   `json:"plan_id,omitempty"`
	TaskID  string   `json:"task_id,omitempty"`
	Logs    []string `json:"logs,omitempty"`
	Error   string   `json:"error,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// NewJob creates a queued job record.
func NewJob(jobID, jobType string, planID *int64, taskID string) *Job {
	return &Job{
		JobID:     jobID,
		JobType:   jobType,
		Status:    StatusQueued,
		PlanID:    planID,
		TaskID:    taskID,
		CreatedAt: time.Now().UTC(),
	}
}

// Apply folds a poll snapshot into the record. A terminal record never
// changes, logs included. Otherwise status is monotonic: a snapshot that
// would move backwards (running→queued) is ignored for status while its
// logs are still appended. It returns true when the snapshot changed the
// record.
func (j *Job) Apply(snap Snapshot, at time.Time) bool {
	if j.Status.Terminal() {
		return false
	}

	changed := j.appendLogs(snap.Logs)
	if snap.Status.rank() < j.Status.rank() {
		return changed
	}

	if snap.Status != j.Status {
		changed = true
		j.Status = snap.Status
		switch {
		case snap.Status == StatusRunning && j.StartedAt == nil:
			t := at.UTC()
			j.StartedAt = &t
		case snap.Status.Terminal() && j.FinishedAt == nil:
			t := at.UTC()
			j.FinishedAt = &t
		}
	}
	if snap.Error != "" && snap.Error != j.Error {
		j.Error = snap.Error
		changed = true
	}
	if snap.PlanID != nil && j.PlanID == nil {
		j.PlanID = snap.PlanID
		changed = true
	}
	if snap.TaskID != "" && j.TaskID == "" {
		j.TaskID = snap.TaskID
		changed = true
	}
	return changed
}

// appendLogs extends the append-only log sequence. Backends resend the
// full log on every poll, so only the suffix beyond what we already hold
// is appended.
func (j *Job) appendLogs(logs []string) bool {
	if len(logs) <= len(j.Logs) {
		return false
	}
	j.Logs = append(j.Logs, logs[len(j.Logs):]...)
	return true
}
