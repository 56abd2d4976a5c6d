package models

import "time"

type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobDone       JobStatus = "done"
	JobFailed     JobStatus = "failed"
)

// Finished reports whether the job reached a terminal state.
func (s JobStatus) Finished() bool {
	return s == JobDone || s == JobFailed
}

// Job is one queued meditation request.
type Job struct {
	ID           string     `json:"id" db:"id"`
	UserID       int        `json:"user_id" db:"user_id"`
	Situation    string     `json:"situation" db:"situation"`
	Status       JobStatus  `json:"status" db:"status"`
	Error        string     `json:"error,omitempty" db:"error"`
	MeditationID *string    `json:"meditation_id,omitempty" db:"meditation_id"`
	Attempts     int        `json:"attempts" db:"attempts"`
	Worker       string     `json:"-" db:"worker"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty" db:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty" db:"finished_at"`
}

// CreateMeditationRequest is the body of POST /api/v1/meditations.
type CreateMeditationRequest struct {
	Situation string `json:"situation"`
}

// JobStatusResponse is what polling clients receive.
type JobStatusResponse struct {
	JobID    string    `json:"job_id"`
	Status   JobStatus `json:"status"`
	AudioURL string    `json:"audio_url,omitempty"`
	Error    string    `json:"error,omitempty"`
}
