package withdrawals

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
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

const withdrawalColumns = `id, technician_id, job_id, amount_paise, bank_details, status,
	approved_by_id, approved_at, rejection_reason, processed_by_id, processed_at,
	transaction_ref, failure_reason, created_at, updated_at`

func scanWithdrawal(row pgx.Row) (*models.Withdrawal, error) {
	var w models.Withdrawal
	var bank []byte
	err := row.Scan(&w.ID, &w.TechnicianID, &w.JobID, &w.AmountPaise, &bank, &w.Status,
		&w.ApprovedByID, &w.ApprovedAt, &w.RejectionReason, &w.ProcessedByID, &w.ProcessedAt,
		&w.TransactionRef, &w.FailureReason, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("withdrawal not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scanning withdrawal: %w", err)
	}
	if len(bank) > 0 {
		if err := json.Unmarshal(bank, &w.Bank); err != nil {
			return nil, fmt.Errorf("decoding bank details: %w", err)
		}
	}
	return &w, nil
}

func (r *Repository) Create(ctx context.Context, tx pgx.Tx, w *models.Withdrawal) error {
	bank, err := json.Marshal(w.Bank)
	if err != nil {
		return fmt.Errorf("encoding bank details: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO withdrawals (id, technician_id, job_id, amount_paise, bank_details, status)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		w.ID, w.TechnicianID, w.JobID, w.AmountPaise, bank, w.Status)
	if err != nil {
		return fmt.Errorf("inserting withdrawal: %w", err)
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1`, id)
	return scanWithdrawal(row)
}

func (r *Repository) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Withdrawal, error) {
	row := tx.QueryRow(ctx, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1 FOR UPDATE`, id)
	return scanWithdrawal(row)
}

func (r *Repository) ListByTechnician(ctx context.Context, technicianID uuid.UUID) ([]*models.Withdrawal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+withdrawalColumns+` FROM withdrawals
		WHERE technician_id = $1
		ORDER BY created_at DESC`, technicianID)
	if err != nil {
		return nil, fmt.Errorf("listing withdrawals: %w", err)
	}
	defer rows.Close()
	return collect(rows)
}

func (r *Repository) ListByStatus(ctx context.Context, status models.WithdrawalStatus) ([]*models.Withdrawal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+withdrawalColumns+` FROM withdrawals
		WHERE status = $1
		ORDER BY created_at ASC`, status)
	if err != nil {
		return nil, fmt.Errorf("listing withdrawals: %w", err)
	}
	defer rows.Close()
	return collect(rows)
}

// OpenAmountForJob sums requests that have not terminally failed or been
// rejected, so a second request cannot double-spend the same balance.
func (r *Repository) OpenAmountForJob(ctx context.Context, tx pgx.Tx, technicianID, jobID uuid.UUID) (int64, error) {
	var total int64
	err := tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount_paise), 0) FROM withdrawals
		WHERE technician_id = $1 AND job_id = $2
		  AND status IN ('PENDING', 'APPROVED', 'PROCESSING')`,
		technicianID, jobID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("summing open withdrawals: %w", err)
	}
	return total, nil
}

func (r *Repository) SetApproved(ctx context.Context, tx pgx.Tx, id, by uuid.UUID) error {
	return r.exec(ctx, tx, `
		UPDATE withdrawals SET status = $2, approved_by_id = $3, approved_at = now(), updated_at = now()
		WHERE id = $1`, id, models.WithdrawalStatusApproved, by)
}

func (r *Repository) SetRejected(ctx context.Context, tx pgx.Tx, id, by uuid.UUID, reason string) error {
	return r.exec(ctx, tx, `
		UPDATE withdrawals SET status = $2, approved_by_id = $3, rejection_reason = $4, updated_at = now()
		WHERE id = $1`, id, models.WithdrawalStatusRejected, by, reason)
}

func (r *Repository) SetProcessing(ctx context.Context, tx pgx.Tx, id, by uuid.UUID) error {
	return r.exec(ctx, tx, `
		UPDATE withdrawals SET status = $2, processed_by_id = $3, updated_at = now()
		WHERE id = $1`, id, models.WithdrawalStatusProcessing, by)
}

func (r *Repository) SetCompleted(ctx context.Context, tx pgx.Tx, id uuid.UUID, txnRef string, at time.Time) error {
	return r.exec(ctx, tx, `
		UPDATE withdrawals SET status = $2, transaction_ref = $3, processed_at = $4, updated_at = now()
		WHERE id = $1`, id, models.WithdrawalStatusCompleted, txnRef, at)
}

func (r *Repository) SetFailed(ctx context.Context, tx pgx.Tx, id uuid.UUID, reason string) error {
	return r.exec(ctx, tx, `
		UPDATE withdrawals SET status = $2, failure_reason = $3, updated_at = now()
		WHERE id = $1`, id, models.WithdrawalStatusFailed, reason)
}

func (r *Repository) exec(ctx context.Context, tx pgx.Tx, sql string, args ...any) error {
	tag, err := tx.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("updating withdrawal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("withdrawal not found")
	}
	return nil
}

func collect(rows pgx.Rows) ([]*models.Withdrawal, error) {
	var out []*models.Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
