package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/medsim/clerksim-backend/internal/model"
)

// CaseSessionRepository handles case session rows. Sessions are never
// deleted; deactivation and expiry leave them inert as an audit trail.
type CaseSessionRepository struct {
	pool *pgxpool.Pool
}

// NewCaseSessionRepository creates a new CaseSessionRepository.
func NewCaseSessionRepository(pool *pgxpool.Pool) *CaseSessionRepository {
	return &CaseSessionRepository{pool: pool}
}

// Insert creates a new active session row.
func (r *CaseSessionRepository) Insert(ctx context.Context, s *model.CaseSession) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO case_sessions (session_id, case_id, user_id, is_active, expires_at)
		 VALUES ($1, $2, $3, TRUE, $4)
		 RETURNING created_at, updated_at`,
		s.SessionID, s.CaseID, s.UserID, s.ExpiresAt,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
}

// Get retrieves a session by its id.
func (r *CaseSessionRepository) Get(ctx context.Context, sessionID string) (*model.CaseSession, error) {
	s := &model.CaseSession{}
	err := r.pool.QueryRow(ctx,
		`SELECT session_id, case_id, user_id, is_active, expires_at, created_at, updated_at
		 FROM case_sessions WHERE session_id = $1`, sessionID,
	).Scan(&s.SessionID, &s.CaseID, &s.UserID, &s.IsActive, &s.ExpiresAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Deactivate flips a session to inactive. Idempotent; the row is kept.
func (r *CaseSessionRepository) Deactivate(ctx context.Context, sessionID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE case_sessions SET is_active = FALSE, updated_at = $1 WHERE session_id = $2`,
		time.Now(), sessionID)
	return err
}

// DeactivateForCase deactivates every active session a user holds for a
// case. Used on create to enforce the single-active-session rule.
func (r *CaseSessionRepository) DeactivateForCase(ctx context.Context, caseID, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE case_sessions SET is_active = FALSE, updated_at = $1
		 WHERE case_id = $2 AND user_id = $3 AND is_active`,
		time.Now(), caseID, userID)
	return err
}

// ListActive retrieves a user's live sessions, newest first.
func (r *CaseSessionRepository) ListActive(ctx context.Context, userID uuid.UUID) ([]model.CaseSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT session_id, case_id, user_id, is_active, expires_at, created_at, updated_at
		 FROM case_sessions
		 WHERE user_id = $1 AND is_active AND expires_at > $2
		 ORDER BY created_at DESC`, userID, time.Now(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.CaseSession
	for rows.Next() {
		var s model.CaseSession
		if err := rows.Scan(&s.SessionID, &s.CaseID, &s.UserID, &s.IsActive, &s.ExpiresAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// NewestActiveForCase retrieves the most recent live session for a case.
// This is the rebuild anchor for the primary-context cache.
func (r *CaseSessionRepository) NewestActiveForCase(ctx context.Context, caseID uuid.UUID) (*model.CaseSession, error) {
	s := &model.CaseSession{}
	err := r.pool.QueryRow(ctx,
		`SELECT session_id, case_id, user_id, is_active, expires_at, created_at, updated_at
		 FROM case_sessions
		 WHERE case_id = $1 AND is_active AND expires_at > $2
		 ORDER BY created_at DESC
		 LIMIT 1`, caseID, time.Now(),
	).Scan(&s.SessionID, &s.CaseID, &s.UserID, &s.IsActive, &s.ExpiresAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}
