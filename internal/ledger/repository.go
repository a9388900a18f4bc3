package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
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

// InsertPair writes both legs of a posting inside the caller's transaction
// and cross-links their counter-entry ids. A unique-violation on the
// idempotency index surfaces as a DuplicatePosting error.
func (r *Repository) InsertPair(ctx context.Context, tx pgx.Tx, debit, credit *models.LedgerEntry) error {
	for _, e := range []*models.LedgerEntry{debit, credit} {
		err := tx.QueryRow(ctx, `
			INSERT INTO ledger_entries (id, job_id, account_type, user_id, amount_paise, entry_type, category, description, metadata, created_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING created_at
		`, e.ID, e.JobID, e.AccountType, e.UserID, e.AmountPaise, e.EntryType, e.Category, e.Description, e.Metadata, e.CreatedBy).Scan(&e.CreatedAt)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return apperr.Wrap(apperr.DuplicatePosting, err,
					"posting already exists for job %s category %s", e.JobID, e.Category)
			}
			return err
		}
	}
	debit.CounterEntryID = &credit.ID
	credit.CounterEntryID = &debit.ID
	if _, err := tx.Exec(ctx, `
		UPDATE ledger_entries SET counter_entry_id = $2 WHERE id = $1
	`, debit.ID, credit.ID); err != nil {
		return err
	}
	_, err := tx.Exec(ctx, `
		UPDATE ledger_entries SET counter_entry_id = $2 WHERE id = $1
	`, credit.ID, debit.ID)
	return err
}

// Balance computes sum(credits) - sum(debits) for entries matching the
// given account and optional job/user scope. Balances are always derived,
// never stored.
func (r *Repository) Balance(ctx context.Context, jobID, userID *uuid.UUID, account models.AccountType) (int64, error) {
	var balance int64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(CASE WHEN entry_type = 'CREDIT' THEN amount_paise ELSE -amount_paise END), 0)
		FROM ledger_entries
		WHERE account_type = $1
		  AND ($2::uuid IS NULL OR job_id = $2)
		  AND ($3::uuid IS NULL OR user_id = $3)
	`, account, jobID, userID).Scan(&balance)
	return balance, err
}

// HasPosting reports whether an entry with the given idempotency signature
// already exists. Callers pre-check before posting; the engine itself never
// deduplicates.
func (r *Repository) HasPosting(ctx context.Context, jobID uuid.UUID, category models.EntryCategory, entryType models.EntryType, account models.AccountType) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM ledger_entries
			WHERE job_id = $1 AND category = $2 AND entry_type = $3 AND account_type = $4
		)
	`, jobID, category, entryType, account).Scan(&exists)
	return exists, err
}

func (r *Repository) ListByJob(ctx context.Context, jobID uuid.UUID) ([]*models.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, job_id, account_type, user_id, amount_paise, entry_type, category, description, counter_entry_id, metadata, created_by, created_at
		FROM ledger_entries WHERE job_id = $1 ORDER BY created_at ASC
	`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, job_id, account_type, user_id, amount_paise, entry_type, category, description, counter_entry_id, metadata, created_by, created_at
		FROM ledger_entries WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows pgx.Rows) ([]*models.LedgerEntry, error) {
	var list []*models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		err := rows.Scan(&e.ID, &e.JobID, &e.AccountType, &e.UserID, &e.AmountPaise, &e.EntryType, &e.Category,
			&e.Description, &e.CounterEntryID, &e.Metadata, &e.CreatedBy, &e.CreatedAt)
		if err != nil {
			return nil, err
		}
		list = append(list, &e)
	}
	return list, rows.Err()
}
