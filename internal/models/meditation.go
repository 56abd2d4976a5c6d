package models

import "time"

// Meditation is the metadata row for a finished artifact. The audio bytes
// live in the artifact store under StorageKey.
type Meditation struct {
	ID              string    `json:"id" db:"id"`
	JobID           string    `json:"job_id" db:"job_id"`
	UserID          int       `json:"user_id" db:"user_id"`
	Situation       string    `json:"situation" db:"situation"`
	StorageKey      string    `json:"-" db:"storage_key"`
	ContentType     string    `json:"content_type" db:"content_type"`
	DurationMs      int64     `json:"duration_ms" db:"duration_ms"`
	SizeBytes       int64     `json:"size_bytes" db:"size_bytes"`
	Fallback        bool      `json:"fallback" db:"fallback"`
	SkippedSegments int       `json:"skipped_segments" db:"skipped_segments"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// CreditTransaction is one ledger entry. Positive amounts grant credits,
// negative amounts spend them.
type CreditTransaction struct {
	ID        int       `json:"id" db:"id"`
	UserID    int       `json:"user_id" db:"user_id"`
	Amount    int       `json:"amount" db:"amount"`
	Reason    string    `json:"reason" db:"reason"`
	JobID     *string   `json:"job_id,omitempty" db:"job_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
