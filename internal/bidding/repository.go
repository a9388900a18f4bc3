package bidding

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

const bidColumns = `id, job_id, technician_id, amount_paise, status, is_counter_offer, round,
	previous_bid_id, expires_at, distance_km, technician_rating, created_at, updated_at`

func scanBid(row pgx.Row) (*models.JobBid, error) {
	var b models.JobBid
	err := row.Scan(&b.ID, &b.JobID, &b.TechnicianID, &b.AmountPaise, &b.Status, &b.IsCounterOffer, &b.Round,
		&b.PreviousBidID, &b.ExpiresAt, &b.DistanceKM, &b.TechnicianRating, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFoundf("bid not found")
		}
		return nil, err
	}
	return &b, nil
}

func (r *Repository) Create(ctx context.Context, tx pgx.Tx, b *models.JobBid) error {
	return tx.QueryRow(ctx, `
		INSERT INTO job_bids (id, job_id, technician_id, amount_paise, status, is_counter_offer, round,
			previous_bid_id, expires_at, distance_km, technician_rating)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`, b.ID, b.JobID, b.TechnicianID, b.AmountPaise, b.Status, b.IsCounterOffer, b.Round,
		b.PreviousBidID, b.ExpiresAt, b.DistanceKM, b.TechnicianRating).
		Scan(&b.CreatedAt, &b.UpdatedAt)
}

func (r *Repository) GetByID(ctx context.Context, bidID uuid.UUID) (*models.JobBid, error) {
	return scanBid(r.pool.QueryRow(ctx, `SELECT `+bidColumns+` FROM job_bids WHERE id = $1`, bidID))
}

func (r *Repository) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, bidID uuid.UUID) (*models.JobBid, error) {
	return scanBid(tx.QueryRow(ctx, `SELECT `+bidColumns+` FROM job_bids WHERE id = $1 FOR UPDATE`, bidID))
}

func (r *Repository) ListByJob(ctx context.Context, jobID uuid.UUID) ([]*models.JobBid, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+bidColumns+` FROM job_bids WHERE job_id = $1 ORDER BY created_at ASC`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.JobBid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, b)
	}
	return list, rows.Err()
}

// LiveBid returns the technician's PENDING or COUNTERED bid on the job, or
// nil when there is none.
func (r *Repository) LiveBid(ctx context.Context, tx pgx.Tx, jobID, technicianID uuid.UUID) (*models.JobBid, error) {
	b, err := scanBid(tx.QueryRow(ctx, `
		SELECT `+bidColumns+` FROM job_bids
		WHERE job_id = $1 AND technician_id = $2 AND status IN ('PENDING', 'COUNTERED')
		ORDER BY round DESC LIMIT 1
	`, jobID, technicianID))
	if apperr.IsKind(err, apperr.NotFound) {
		return nil, nil
	}
	return b, err
}

// MaxRound returns the highest round number the technician has reached on
// the job, 0 when they have never bid.
func (r *Repository) MaxRound(ctx context.Context, tx pgx.Tx, jobID, technicianID uuid.UUID) (int, error) {
	var round int
	err := tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(round), 0) FROM job_bids WHERE job_id = $1 AND technician_id = $2
	`, jobID, technicianID).Scan(&round)
	return round, err
}

func (r *Repository) UpdateStatus(ctx context.Context, tx pgx.Tx, bidID uuid.UUID, status models.BidStatus) error {
	_, err := tx.Exec(ctx, `UPDATE job_bids SET status = $2, updated_at = now() WHERE id = $1`, bidID, status)
	return err
}

func (r *Repository) MarkAccepted(ctx context.Context, tx pgx.Tx, bidID uuid.UUID) error {
	return r.UpdateStatus(ctx, tx, bidID, models.BidStatusAccepted)
}

// RejectOpenBids closes out every still-live bid on the job except the
// accepted one.
func (r *Repository) RejectOpenBids(ctx context.Context, tx pgx.Tx, jobID uuid.UUID, exceptBidID uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE job_bids SET status = 'REJECTED', updated_at = now()
		WHERE job_id = $1 AND id <> $2 AND status IN ('PENDING', 'COUNTERED')
	`, jobID, exceptBidID)
	return err
}

// ExpireStale marks live bids past their expiry EXPIRED. Run by the
// background sweep; readers treat stale bids as dead regardless.
func (r *Repository) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE job_bids SET status = 'EXPIRED', updated_at = now()
		WHERE status IN ('PENDING', 'COUNTERED') AND expires_at < $1
	`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
