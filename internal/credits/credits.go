// Package credits keeps the per-user meditation balance. Every change goes
// through the credit_transactions ledger together with the running balance
// on the users row, inside one transaction.
package credits

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/tahcohcat/gocalm-web/internal/database"
	"github.com/tahcohcat/gocalm-web/internal/logger"
	"github.com/tahcohcat/gocalm-web/internal/models"
)

var ErrInsufficientCredits = errors.New("insufficient credits")

const (
	ReasonSignup     = "signup_bonus"
	ReasonMeditation = "meditation"
	ReasonRefund     = "refund"
	ReasonGrant      = "grant"
)

type Service struct {
	db     *database.DB
	cost   int
	logger *logger.Log
}

func NewService(db *database.DB, costPerMeditation int) *Service {
	if costPerMeditation < 0 {
		costPerMeditation = 0
	}
	return &Service{db: db, cost: costPerMeditation, logger: logger.New()}
}

// Cost is the price of one meditation.
func (s *Service) Cost() int {
	return s.cost
}

func (s *Service) Balance(userID int) (int, error) {
	var balance int
	err := s.db.Get(&balance, `SELECT credits FROM users WHERE id = ?`, userID)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("user not found")
	}
	return balance, err
}

// CanAfford is the capability check made before a run is accepted.
func (s *Service) CanAfford(userID int) (bool, error) {
	balance, err := s.Balance(userID)
	if err != nil {
		return false, err
	}
	return balance >= s.cost, nil
}

// Grant adds credits outside of any job (sign-up bonus, operator top-up).
func (s *Service) Grant(userID, amount int, reason string) error {
	if amount <= 0 {
		return fmt.Errorf("grant amount must be positive")
	}
	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.apply(tx, userID, amount, reason, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// SpendForJob charges one meditation inside tx. It fails with
// ErrInsufficientCredits without touching the balance when the user cannot
// pay.
func (s *Service) SpendForJob(tx *sqlx.Tx, userID int, jobID string) error {
	if s.cost == 0 {
		return nil
	}
	res, err := tx.Exec(`UPDATE users SET credits = credits - ?, updated_at = ? WHERE id = ? AND credits >= ?`,
		s.cost, time.Now(), userID, s.cost)
	if err != nil {
		return fmt.Errorf("failed to charge credits: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInsufficientCredits
	}
	_, err = tx.Exec(`INSERT INTO credit_transactions (user_id, amount, reason, job_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		userID, -s.cost, ReasonMeditation, jobID, time.Now())
	return err
}

// RefundJob returns whatever was charged for jobID. Calling it twice for
// the same job refunds once.
func (s *Service) RefundJob(jobID string) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var refunded int
	if err := tx.Get(&refunded, `SELECT COUNT(*) FROM credit_transactions WHERE job_id = ? AND reason = ?`, jobID, ReasonRefund); err != nil {
		return err
	}
	if refunded > 0 {
		return nil
	}

	var charge struct {
		UserID int `db:"user_id"`
		Amount int `db:"amount"`
	}
	err = tx.Get(&charge, `SELECT user_id, amount FROM credit_transactions WHERE job_id = ? AND reason = ?`, jobID, ReasonMeditation)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return err
	}

	jid := jobID
	if err := s.apply(tx, charge.UserID, -charge.Amount, ReasonRefund, &jid); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	s.logger.WithField("job_id", jobID).Info(fmt.Sprintf("Refunded %d credits to user %d", -charge.Amount, charge.UserID))
	return nil
}

func (s *Service) History(userID, limit int) ([]models.CreditTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	var txs []models.CreditTransaction
	err := s.db.Select(&txs, `SELECT id, user_id, amount, reason, job_id, created_at FROM credit_transactions
		WHERE user_id = ? ORDER BY id DESC LIMIT ?`, userID, limit)
	return txs, err
}

func (s *Service) apply(tx *sqlx.Tx, userID, amount int, reason string, jobID *string) error {
	res, err := tx.Exec(`UPDATE users SET credits = credits + ?, updated_at = ? WHERE id = ?`, amount, time.Now(), userID)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user not found")
	}
	_, err = tx.Exec(`INSERT INTO credit_transactions (user_id, amount, reason, job_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		userID, amount, reason, jobID, time.Now())
	return err
}
