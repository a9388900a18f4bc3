package jobs

import (
	"context"
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

const jobColumns = `id, job_number, status, dealer_id, assigned_technician_id, title, description,
	estimated_cost_paise, final_price_paise, negotiation_rounds, warranty_start_date,
	cancellation_reason, cancellation_penalty_paise, cancelled_by_id, cancelled_by_role,
	created_at, updated_at, started_at, completed_at, cancelled_at`

func scanJob(row pgx.Row) (*models.JobPost, error) {
	var j models.JobPost
	err := row.Scan(&j.ID, &j.JobNumber, &j.Status, &j.DealerID, &j.AssignedTechnicianID, &j.Title, &j.Description,
		&j.EstimatedCostPaise, &j.FinalPricePaise, &j.NegotiationRounds, &j.WarrantyStartDate,
		&j.CancellationReason, &j.CancellationPenaltyPaise, &j.CancelledByID, &j.CancelledByRole,
		&j.CreatedAt, &j.UpdatedAt, &j.StartedAt, &j.CompletedAt, &j.CancelledAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFoundf("job not found")
		}
		return nil, err
	}
	return &j, nil
}

func (r *Repository) Create(ctx context.Context, j *models.JobPost) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO jobs (id, job_number, status, dealer_id, title, description, estimated_cost_paise)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`, j.ID, j.JobNumber, j.Status, j.DealerID, j.Title, j.Description, j.EstimatedCostPaise).
		Scan(&j.CreatedAt, &j.UpdatedAt)
}

func (r *Repository) GetByID(ctx context.Context, jobID uuid.UUID) (*models.JobPost, error) {
	return scanJob(r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, jobID))
}

// GetByIDForUpdate locks the job row for the duration of the caller's
// transaction. Every lifecycle operation reads through this so that
// read-validate-write runs against a stable status.
func (r *Repository) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, jobID uuid.UUID) (*models.JobPost, error) {
	return scanJob(tx.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1 FOR UPDATE`, jobID))
}

func (r *Repository) ListByDealer(ctx context.Context, dealerID uuid.UUID) ([]*models.JobPost, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+jobColumns+` FROM jobs WHERE dealer_id = $1 ORDER BY created_at DESC`, dealerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJobs(rows)
}

func (r *Repository) ListByTechnician(ctx context.Context, technicianID uuid.UUID) ([]*models.JobPost, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+jobColumns+` FROM jobs WHERE assigned_technician_id = $1 ORDER BY created_at DESC`, technicianID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJobs(rows)
}

func collectJobs(rows pgx.Rows) ([]*models.JobPost, error) {
	var list []*models.JobPost
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, j)
	}
	return list, rows.Err()
}

func (r *Repository) UpdateStatus(ctx context.Context, tx pgx.Tx, jobID uuid.UUID, status models.JobStatus) error {
	_, err := tx.Exec(ctx, `UPDATE jobs SET status = $2, updated_at = now() WHERE id = $1`, jobID, status)
	return err
}

// RevertStatus is the compensating write after a failed financial posting.
// It runs on the pool, outside the rolled-back transaction.
func (r *Repository) RevertStatus(ctx context.Context, jobID uuid.UUID, status models.JobStatus) error {
	_, err := r.pool.Exec(ctx, `UPDATE jobs SET status = $2, updated_at = now() WHERE id = $1`, jobID, status)
	return err
}

func (r *Repository) SetAssignment(ctx context.Context, tx pgx.Tx, jobID, technicianID uuid.UUID, finalPricePaise int64, status models.JobStatus) error {
	_, err := tx.Exec(ctx, `
		UPDATE jobs SET status = $2, assigned_technician_id = $3, final_price_paise = $4, updated_at = now()
		WHERE id = $1
	`, jobID, status, technicianID, finalPricePaise)
	return err
}

func (r *Repository) SetStarted(ctx context.Context, tx pgx.Tx, jobID uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE jobs SET status = $2, started_at = now(), updated_at = now() WHERE id = $1
	`, jobID, models.JobStatusInProgress)
	return err
}

func (r *Repository) SetCompletionRequested(ctx context.Context, tx pgx.Tx, jobID uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE jobs SET status = $2, updated_at = now() WHERE id = $1
	`, jobID, models.JobStatusCompletionPendingApproval)
	return err
}

func (r *Repository) SetCompleted(ctx context.Context, tx pgx.Tx, jobID uuid.UUID, warrantyStart time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE jobs SET status = $2, completed_at = now(), warranty_start_date = $3, updated_at = now()
		WHERE id = $1
	`, jobID, models.JobStatusCompleted, warrantyStart)
	return err
}

// SetCancelled records cancellation metadata. clearAssignment is set when the
// technician cancelled, so the job can be reassigned.
func (r *Repository) SetCancelled(ctx context.Context, tx pgx.Tx, jobID uuid.UUID, reason string, penaltyPaise int64, by uuid.UUID, byRole models.Role, clearAssignment bool) error {
	_, err := tx.Exec(ctx, `
		UPDATE jobs SET status = $2, cancellation_reason = $3, cancellation_penalty_paise = $4,
			cancelled_by_id = $5, cancelled_by_role = $6,
			assigned_technician_id = CASE WHEN $7 THEN NULL ELSE assigned_technician_id END,
			cancelled_at = now(), updated_at = now()
		WHERE id = $1
	`, jobID, models.JobStatusCancelled, reason, penaltyPaise, by, byRole, clearAssignment)
	return err
}

func (r *Repository) IncrementNegotiationRounds(ctx context.Context, tx pgx.Tx, jobID uuid.UUID) (int, error) {
	var rounds int
	err := tx.QueryRow(ctx, `
		UPDATE jobs SET negotiation_rounds = negotiation_rounds + 1, updated_at = now()
		WHERE id = $1
		RETURNING negotiation_rounds
	`, jobID).Scan(&rounds)
	return rounds, err
}

// NextJobNumber produces the human-readable job number, e.g. JOB-20260829-0042.
func (r *Repository) NextJobNumber(ctx context.Context, now time.Time) (string, error) {
	var seq int64
	if err := r.pool.QueryRow(ctx, `SELECT nextval('job_number_seq')`).Scan(&seq); err != nil {
		return "", err
	}
	return fmt.Sprintf("JOB-%s-%04d", now.Format("20060102"), seq), nil
}
