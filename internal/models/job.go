package models

import "encoding/json"

// JobStatus is the lifecycle state reported for a background job.
type JobStatus string

const (
	StatusQueued   JobStatus = "queued"
	StatusRunning  JobStatus = "running"
	StatusFinished JobStatus = "finished"
	StatusError    JobStatus = "error"
	StatusUnknown  JobStatus = "unknown"
)

// Valid reports whether s is one of the five known statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case StatusQueued, StatusRunning, StatusFinished, StatusError, StatusUnknown:
		return true
	default:
		return false
	}
}

// Terminal reports whether s is absorbing.
func (s JobStatus) Terminal() bool {
	return s == StatusFinished || s == StatusError
}

// StatusRecord is the canonical view of one status observation, whichever
// channel it arrived through.
type StatusRecord struct {
	JobID    string    `json:"job_id"`
	Status   JobStatus `json:"status"`
	Progress *int      `json:"progress,omitempty"` // 0..100
	Stage    string    `json:"stage,omitempty"`
	Message  string    `json:"message,omitempty"`

	// Result is set when the server pushed the full result payload
	// instead of a status record.
	Result json.RawMessage `json:"result,omitempty"`
}

// DisplayProgress returns the reported progress, or 100 for a finished job
// and 0 otherwise when none was reported.
func (r StatusRecord) DisplayProgress() int {
	if r.Progress != nil {
		return *r.Progress
	}
	if r.Status == StatusFinished {
		return 100
	}
	return 0
}

// IntPtr is a small helper for building records with a progress value.
func IntPtr(v int) *int { return &v }

// EnqueueResponse is what the enqueue endpoint returns once normalized.
// On success Status is "queued" and JobID/Topic are set; otherwise Status is
// "error" and Message explains why.
type EnqueueResponse struct {
	Status  JobStatus `json:"status"`
	JobID   string    `json:"job_id,omitempty"`
	Topic   string    `json:"topic,omitempty"`
	Message string    `json:"message,omitempty"`
}

// Queued reports whether the job was accepted.
func (e EnqueueResponse) Queued() bool {
	return e.Status == StatusQueued && e.JobID != "" && e.Topic != ""
}

// Slot names a tracking context holding at most one job at a time.
type Slot string

const (
	SlotPreview Slot = "preview"
	SlotImport  Slot = "import"
)
