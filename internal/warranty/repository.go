package warranty

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dgyard/backend/internal/apperr"
	"github.com/dgyard/backend/internal/models"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

const holdColumns = `id, job_id, technician_id, dealer_id, amount_paise, hold_percent, warranty_days,
	status, start_date, end_date, is_frozen, freeze_reason, frozen_at,
	release_reason, released_at, forfeit_reason, forfeited_at, closed_by_id, created_at, updated_at`

func scanHold(row pgx.Row) (*models.WarrantyHold, error) {
	var h models.WarrantyHold
	err := row.Scan(&h.ID, &h.JobID, &h.TechnicianID, &h.DealerID, &h.AmountPaise, &h.HoldPercent, &h.WarrantyDays,
		&h.Status, &h.StartDate, &h.EndDate, &h.IsFrozen, &h.FreezeReason, &h.FrozenAt,
		&h.ReleaseReason, &h.ReleasedAt, &h.ForfeitReason, &h.ForfeitedAt, &h.ClosedByID, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFoundf("warranty hold not found")
		}
		return nil, err
	}
	return &h, nil
}

func (r *Repository) Create(ctx context.Context, tx pgx.Tx, h *models.WarrantyHold) error {
	return tx.QueryRow(ctx, `
		INSERT INTO warranty_holds (id, job_id, technician_id, dealer_id, amount_paise, hold_percent, warranty_days, status, start_date, end_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`, h.ID, h.JobID, h.TechnicianID, h.DealerID, h.AmountPaise, h.HoldPercent, h.WarrantyDays, h.Status, h.StartDate, h.EndDate).
		Scan(&h.CreatedAt, &h.UpdatedAt)
}

func (r *Repository) GetByID(ctx context.Context, holdID uuid.UUID) (*models.WarrantyHold, error) {
	return scanHold(r.pool.QueryRow(ctx, `SELECT `+holdColumns+` FROM warranty_holds WHERE id = $1`, holdID))
}

func (r *Repository) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, holdID uuid.UUID) (*models.WarrantyHold, error) {
	return scanHold(tx.QueryRow(ctx, `SELECT `+holdColumns+` FROM warranty_holds WHERE id = $1 FOR UPDATE`, holdID))
}

// ActiveByJob returns the job's LOCKED or FROZEN hold, or nil. Used to block
// withdrawals against held funds.
func (r *Repository) ActiveByJob(ctx context.Context, jobID uuid.UUID) (*models.WarrantyHold, error) {
	h, err := scanHold(r.pool.QueryRow(ctx, `
		SELECT `+holdColumns+` FROM warranty_holds
		WHERE job_id = $1 AND status IN ('LOCKED', 'FROZEN')
		LIMIT 1
	`, jobID))
	if apperr.IsKind(err, apperr.NotFound) {
		return nil, nil
	}
	return h, err
}

func (r *Repository) ListByTechnician(ctx context.Context, technicianID uuid.UUID) ([]*models.WarrantyHold, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+holdColumns+` FROM warranty_holds WHERE technician_id = $1 ORDER BY created_at DESC
	`, technicianID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectHolds(rows)
}

// ListExpired returns LOCKED holds past their effective end date, eligible
// for auto-release by the sweep.
func (r *Repository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*models.WarrantyHold, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+holdColumns+` FROM warranty_holds
		WHERE status = 'LOCKED' AND end_date < $1
		ORDER BY end_date ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectHolds(rows)
}

func collectHolds(rows pgx.Rows) ([]*models.WarrantyHold, error) {
	var list []*models.WarrantyHold
	for rows.Next() {
		h, err := scanHold(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, h)
	}
	return list, rows.Err()
}

func (r *Repository) SetFrozen(ctx context.Context, tx pgx.Tx, holdID uuid.UUID, reason string) error {
	_, err := tx.Exec(ctx, `
		UPDATE warranty_holds SET status = 'FROZEN', is_frozen = TRUE, freeze_reason = $2, frozen_at = now(), updated_at = now()
		WHERE id = $1
	`, holdID, reason)
	return err
}

func (r *Repository) SetUnfrozen(ctx context.Context, tx pgx.Tx, holdID uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE warranty_holds SET status = 'LOCKED', is_frozen = FALSE, freeze_reason = NULL, frozen_at = NULL, updated_at = now()
		WHERE id = $1
	`, holdID)
	return err
}

func (r *Repository) SetReleased(ctx context.Context, tx pgx.Tx, holdID uuid.UUID, reason string, by uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE warranty_holds SET status = 'RELEASED', release_reason = $2, released_at = now(), closed_by_id = $3, updated_at = now()
		WHERE id = $1
	`, holdID, reason, by)
	return err
}

func (r *Repository) SetForfeited(ctx context.Context, tx pgx.Tx, holdID uuid.UUID, reason string, by uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE warranty_holds SET status = 'FORFEITED', is_frozen = FALSE, forfeit_reason = $2, forfeited_at = now(), closed_by_id = $3, updated_at = now()
		WHERE id = $1
	`, holdID, reason, by)
	return err
}
