// Package ledger is the double-entry bookkeeping engine. Every money
// movement in the system is a balanced pair of entries posted through
// PostDoubleEntry; balances are derived by summation on read.
package ledger

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dgyard/backend/internal/apperr"
	"github.com/dgyard/backend/internal/models"
)

// Leg specifies one side of a posting. UserID is nil for system accounts.
type Leg struct {
	Account     models.AccountType
	UserID      *uuid.UUID
	AmountPaise int64
	Category    models.EntryCategory
	Description string
	Metadata    json.RawMessage
}

// entryStore is the persistence surface the engine needs.
type entryStore interface {
	InsertPair(ctx context.Context, tx pgx.Tx, debit, credit *models.LedgerEntry) error
	Balance(ctx context.Context, jobID, userID *uuid.UUID, account models.AccountType) (int64, error)
	HasPosting(ctx context.Context, jobID uuid.UUID, category models.EntryCategory, entryType models.EntryType, account models.AccountType) (bool, error)
	ListByJob(ctx context.Context, jobID uuid.UUID) ([]*models.LedgerEntry, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.LedgerEntry, error)
}

type Service interface {
	// PostDoubleEntry writes a balanced debit/credit pair inside the
	// caller's transaction. It performs no deduplication: callers pre-check
	// with HasPosting, and a uniqueness violation comes back as a
	// DuplicatePosting error to be treated as "already processed".
	PostDoubleEntry(ctx context.Context, tx pgx.Tx, jobID uuid.UUID, debit, credit Leg, createdBy uuid.UUID) (*models.LedgerEntry, *models.LedgerEntry, error)
	AccountBalance(ctx context.Context, jobID, userID *uuid.UUID, account models.AccountType) (int64, error)
	HasPosting(ctx context.Context, jobID uuid.UUID, category models.EntryCategory, entryType models.EntryType, account models.AccountType) (bool, error)
	EntriesForJob(ctx context.Context, jobID uuid.UUID) ([]*models.LedgerEntry, error)
	EntriesForUser(ctx context.Context, userID uuid.UUID) ([]*models.LedgerEntry, error)
}

type service struct {
	store entryStore
}

func NewService(store entryStore) Service {
	return &service{store: store}
}

var _ Service = (*service)(nil)

func (s *service) PostDoubleEntry(ctx context.Context, tx pgx.Tx, jobID uuid.UUID, debit, credit Leg, createdBy uuid.UUID) (*models.LedgerEntry, *models.LedgerEntry, error) {
	if debit.AmountPaise <= 0 || credit.AmountPaise <= 0 {
		return nil, nil, apperr.Validationf("posting amounts must be positive (debit %d, credit %d)", debit.AmountPaise, credit.AmountPaise)
	}
	if debit.AmountPaise != credit.AmountPaise {
		return nil, nil, apperr.Validationf("unbalanced posting: debit %d != credit %d", debit.AmountPaise, credit.AmountPaise)
	}
	d := newEntry(jobID, debit, models.EntryDebit, createdBy)
	c := newEntry(jobID, credit, models.EntryCredit, createdBy)
	if err := s.store.InsertPair(ctx, tx, d, c); err != nil {
		return nil, nil, err
	}
	return d, c, nil
}

func newEntry(jobID uuid.UUID, leg Leg, entryType models.EntryType, createdBy uuid.UUID) *models.LedgerEntry {
	return &models.LedgerEntry{
		ID:          uuid.New(),
		JobID:       jobID,
		AccountType: leg.Account,
		UserID:      leg.UserID,
		AmountPaise: leg.AmountPaise,
		EntryType:   entryType,
		Category:    leg.Category,
		Description: leg.Description,
		Metadata:    leg.Metadata,
		CreatedBy:   createdBy,
	}
}

func (s *service) AccountBalance(ctx context.Context, jobID, userID *uuid.UUID, account models.AccountType) (int64, error) {
	return s.store.Balance(ctx, jobID, userID, account)
}

func (s *service) HasPosting(ctx context.Context, jobID uuid.UUID, category models.EntryCategory, entryType models.EntryType, account models.AccountType) (bool, error) {
	return s.store.HasPosting(ctx, jobID, category, entryType, account)
}

func (s *service) EntriesForJob(ctx context.Context, jobID uuid.UUID) ([]*models.LedgerEntry, error) {
	return s.store.ListByJob(ctx, jobID)
}

func (s *service) EntriesForUser(ctx context.Context, userID uuid.UUID) ([]*models.LedgerEntry, error) {
	return s.store.ListByUser(ctx, userID)
}
