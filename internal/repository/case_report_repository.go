package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/medsim/clerksim-backend/internal/model"
)

// CaseReportRepository persists the secondary-context snapshot taken at
// case completion. One report per case.
type CaseReportRepository struct {
	pool *pgxpool.Pool
}

// NewCaseReportRepository creates a new CaseReportRepository.
func NewCaseReportRepository(pool *pgxpool.Pool) *CaseReportRepository {
	return &CaseReportRepository{pool: pool}
}

// Upsert writes the report for a case, overwriting a duplicate submission
// with the newer snapshot.
func (r *CaseReportRepository) Upsert(ctx context.Context, rep *model.CaseReport) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO case_reports (case_id, user_id, report)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (case_id) DO UPDATE SET report = EXCLUDED.report
		 RETURNING id, created_at`,
		rep.CaseID, rep.UserID, rep.Report,
	).Scan(&rep.ID, &rep.CreatedAt)
}

// GetByCase retrieves the report for a completed case.
func (r *CaseReportRepository) GetByCase(ctx context.Context, caseID uuid.UUID) (*model.CaseReport, error) {
	rep := &model.CaseReport{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, case_id, user_id, report, created_at
		 FROM case_reports WHERE case_id = $1`, caseID,
	).Scan(&rep.ID, &rep.CaseID, &rep.UserID, &rep.Report, &rep.CreatedAt)
	if err != nil {
		return nil, err
	}
	return rep, nil
}
