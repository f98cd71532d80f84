package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/medsim/clerksim-backend/internal/model"
)

// CaseRepository handles clinical case data access. The cases table is the
// durable backing source for the primary-context cache.
type CaseRepository struct {
	pool *pgxpool.Pool
}

// NewCaseRepository creates a new CaseRepository.
func NewCaseRepository(pool *pgxpool.Pool) *CaseRepository {
	return &CaseRepository{pool: pool}
}

// Create inserts a new case record.
func (r *CaseRepository) Create(ctx context.Context, c *model.ClinicalCase) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO cases
		   (user_id, diagnosis, primary_info, opening_line, patient_profile,
		    pediatric_profile, is_pediatric, department, difficulty_level, is_osce)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id, created_at`,
		c.UserID, c.Diagnosis, c.PrimaryInfo, c.OpeningLine, c.PatientProfile,
		c.PediatricProfile, c.IsPediatric, c.Department, c.DifficultyLevel, c.IsOSCE,
	).Scan(&c.ID, &c.CreatedAt)
}

// GetByID retrieves a case by its UUID, including the diagnosis half.
// Callers must never forward the result to a client unprojected.
func (r *CaseRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ClinicalCase, error) {
	c := &model.ClinicalCase{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, diagnosis, primary_info, opening_line, patient_profile,
		        pediatric_profile, is_pediatric, department, difficulty_level, is_osce,
		        completed_at, created_at
		 FROM cases WHERE id = $1`, id,
	).Scan(&c.ID, &c.UserID, &c.Diagnosis, &c.PrimaryInfo, &c.OpeningLine, &c.PatientProfile,
		&c.PediatricProfile, &c.IsPediatric, &c.Department, &c.DifficultyLevel, &c.IsOSCE,
		&c.CompletedAt, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// MarkCompleted stamps a case as finished. Idempotent: re-completing keeps
// the original completion time.
func (r *CaseRepository) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE cases SET completed_at = COALESCE(completed_at, $1) WHERE id = $2`,
		time.Now(), id)
	return err
}
