package services

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/tahcohcat/gocalm-web/internal/credits"
	"github.com/tahcohcat/gocalm-web/internal/database"
	"github.com/tahcohcat/gocalm-web/internal/logger"
	"github.com/tahcohcat/gocalm-web/internal/models"
)

const maxSituationLength = 500

var (
	ErrJobNotFound      = errors.New("job not found")
	ErrInvalidSituation = errors.New("situation must be between 1 and 500 characters")
)

// JobService is the meditation queue. Jobs live in SQLite so the web
// server and any number of worker processes share one queue.
type JobService struct {
	db     *database.DB
	ledger *credits.Service
	logger *logger.Log
}

func NewJobService(db *database.DB, ledger *credits.Service) *JobService {
	return &JobService{db: db, ledger: ledger, logger: logger.New()}
}

const jobColumns = `id, user_id, situation, status, error, meditation_id, attempts, worker, created_at, started_at, finished_at`

// Enqueue charges the user and queues a job in one transaction. It returns
// credits.ErrInsufficientCredits when the balance does not cover the run.
func (s *JobService) Enqueue(userID int, situation string) (*models.Job, error) {
	situation = strings.TrimSpace(situation)
	if situation == "" || utf8.RuneCountInString(situation) > maxSituationLength {
		return nil, ErrInvalidSituation
	}

	job := &models.Job{
		ID:        uuid.NewString(),
		UserID:    userID,
		Situation: situation,
		Status:    models.JobQueued,
		CreatedAt: time.Now().UTC(),
	}

	tx, err := s.db.Beginx()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if s.ledger != nil {
		if err := s.ledger.SpendForJob(tx, userID, job.ID); err != nil {
			return nil, err
		}
	}

	_, err = tx.NamedExec(`INSERT INTO jobs (id, user_id, situation, status, created_at)
		VALUES (:id, :user_id, :situation, :status, :created_at)`, job)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.logger.WithField("job_id", job.ID).WithField("user_id", userID).Info("Meditation job queued")
	return job, nil
}

func (s *JobService) Get(id string) (*models.Job, error) {
	var job models.Job
	err := s.db.Get(&job, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// GetForUser hides other users' jobs behind ErrJobNotFound.
func (s *JobService) GetForUser(id string, userID int) (*models.Job, error) {
	job, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, ErrJobNotFound
	}
	return job, nil
}

func (s *JobService) ListForUser(userID, limit int) ([]models.Job, error) {
	if limit <= 0 {
		limit = 20
	}
	var jobs []models.Job
	err := s.db.Select(&jobs, `SELECT `+jobColumns+` FROM jobs WHERE user_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`, userID, limit)
	return jobs, err
}

// ClaimNext moves the oldest queued job to processing and returns it, or
// returns nil when the queue is empty. The claim is a single write
// transaction, so two workers never get the same job.
func (s *JobService) ClaimNext(worker string) (*models.Job, error) {
	tx, err := s.db.Beginx()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var id string
	err = tx.Get(&id, `SELECT id FROM jobs WHERE status = ? ORDER BY created_at, rowid LIMIT 1`, models.JobQueued)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to poll queue: %w", err)
	}

	res, err := tx.Exec(`UPDATE jobs SET status = ?, started_at = ?, attempts = attempts + 1, worker = ?
		WHERE id = ? AND status = ?`, models.JobProcessing, time.Now().UTC(), worker, id, models.JobQueued)
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}

	var job models.Job
	if err := tx.Get(&job, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &job, nil
}

// ClaimByID moves one specific queued job to processing. The synchronous
// endpoint uses it to run its own job in the request goroutine.
func (s *JobService) ClaimByID(id, worker string) (*models.Job, error) {
	res, err := s.db.Exec(`UPDATE jobs SET status = ?, started_at = ?, attempts = attempts + 1, worker = ?
		WHERE id = ? AND status = ?`, models.JobProcessing, time.Now().UTC(), worker, id, models.JobQueued)
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("job %s is not queued", id)
	}
	return s.Get(id)
}

func (s *JobService) Complete(id, meditationID string) error {
	res, err := s.db.Exec(`UPDATE jobs SET status = ?, meditation_id = ?, error = '', finished_at = ?
		WHERE id = ? AND status = ?`, models.JobDone, meditationID, time.Now().UTC(), id, models.JobProcessing)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("job %s is not processing", id)
	}
	return nil
}

// Fail marks the job failed and refunds its charge.
func (s *JobService) Fail(id, message string) error {
	res, err := s.db.Exec(`UPDATE jobs SET status = ?, error = ?, finished_at = ?
		WHERE id = ? AND status IN (?, ?)`, models.JobFailed, message, time.Now().UTC(), id, models.JobQueued, models.JobProcessing)
	if err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("job %s already finished", id)
	}
	if s.ledger != nil {
		if err := s.ledger.RefundJob(id); err != nil {
			s.logger.WithError(err).WithField("job_id", id).Error("Failed to refund credits")
		}
	}
	return nil
}

// MarkInterrupted fails jobs that have been processing for longer than
// staleAfter, typically because their worker died. Callers pass the run
// timeout plus some slack so live jobs in other processes are left alone.
func (s *JobService) MarkInterrupted(staleAfter time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-staleAfter)

	var ids []string
	if err := s.db.Select(&ids, `SELECT id FROM jobs WHERE status = ? AND started_at < ?`, models.JobProcessing, cutoff); err != nil {
		return 0, err
	}

	marked := 0
	for _, id := range ids {
		if err := s.Fail(id, "interrupted by restart"); err != nil {
			continue
		}
		marked++
	}
	if marked > 0 {
		s.logger.Warn(fmt.Sprintf("Marked %d interrupted jobs as failed", marked))
	}
	return marked, nil
}
