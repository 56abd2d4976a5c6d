package services

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tahcohcat/gocalm-web/internal/database"
	"github.com/tahcohcat/gocalm-web/internal/models"
)

var ErrMeditationNotFound = errors.New("meditation not found")

// MeditationService records finished artifacts. Rows are written once and
// never updated.
type MeditationService struct {
	db *database.DB
}

func NewMeditationService(db *database.DB) *MeditationService {
	return &MeditationService{db: db}
}

const meditationColumns = `id, job_id, user_id, situation, storage_key, content_type, duration_ms, size_bytes, fallback, skipped_segments, created_at`

func (s *MeditationService) Create(m *models.Meditation) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.NamedExec(`INSERT INTO meditations (`+meditationColumns+`)
		VALUES (:id, :job_id, :user_id, :situation, :storage_key, :content_type, :duration_ms, :size_bytes, :fallback, :skipped_segments, :created_at)`, m)
	if err != nil {
		return fmt.Errorf("failed to record meditation: %w", err)
	}
	return nil
}

func (s *MeditationService) Get(id string) (*models.Meditation, error) {
	var m models.Meditation
	err := s.db.Get(&m, `SELECT `+meditationColumns+` FROM meditations WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, ErrMeditationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *MeditationService) GetByJobID(jobID string) (*models.Meditation, error) {
	var m models.Meditation
	err := s.db.Get(&m, `SELECT `+meditationColumns+` FROM meditations WHERE job_id = ?`, jobID)
	if err == sql.ErrNoRows {
		return nil, ErrMeditationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *MeditationService) ListForUser(userID, limit int) ([]models.Meditation, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []models.Meditation
	err := s.db.Select(&out, `SELECT `+meditationColumns+` FROM meditations WHERE user_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`, userID, limit)
	return out, err
}
