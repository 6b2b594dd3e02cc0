package model

// JobStatus is the lifecycle state of a face-swap job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further transition can happen.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job is the persisted record for one face-swap request. It is created once
// with status pending and mutated only through the store's SetStatus path.
type Job struct {
	ReferenceID  string    `json:"reference_id"`
	Status       JobStatus `json:"status"`
	CreatedAtMs  int64     `json:"created_at_ms"`
	UpdatedAtMs  int64     `json:"updated_at_ms"`
	ResultPath   *string   `json:"result_path,omitempty"`
	Error        *string   `json:"error,omitempty"`
	ProcessingMs *int64    `json:"processing_ms,omitempty"`
}

// CreateJobResponse is returned immediately on job submission.
type CreateJobResponse struct {
	ReferenceID string    `json:"reference_id"`
	Status      JobStatus `json:"status"`
	Message     string    `json:"message"`
}

// JobStatusResponse is the polled view of a job record. Result and error
// fields are only present in the matching terminal state.
type JobStatusResponse struct {
	ReferenceID    string    `json:"reference_id"`
	Status         JobStatus `json:"status"`
	ResultImageURL *string   `json:"result_image_url,omitempty"`
	ProcessingMs   *int64    `json:"processing_ms,omitempty"`
	Error          *string   `json:"error,omitempty"`
}
