package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dgyard/backend/internal/apperr"
	"github.com/dgyard/backend/internal/models"
)

// memStore keeps postings in a slice and enforces the same once-per-event
// uniqueness as the database's partial index.
type memStore struct {
	mu      sync.Mutex
	entries []*models.LedgerEntry
}

func (m *memStore) InsertPair(_ context.Context, _ pgx.Tx, debit, credit *models.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, in := range []*models.LedgerEntry{debit, credit} {
		if in.Category == models.CategoryWithdrawal {
			continue
		}
		for _, e := range m.entries {
			if e.JobID == in.JobID && e.Category == in.Category && e.EntryType == in.EntryType && e.AccountType == in.AccountType {
				return apperr.Duplicatef("posting already recorded for job %s category %s", in.JobID, in.Category)
			}
		}
	}
	counter := credit.ID
	debit.CounterEntryID = &counter
	counter2 := debit.ID
	credit.CounterEntryID = &counter2
	m.entries = append(m.entries, debit, credit)
	return nil
}

func (m *memStore) Balance(_ context.Context, jobID, userID *uuid.UUID, account models.AccountType) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum int64
	for _, e := range m.entries {
		if e.AccountType != account {
			continue
		}
		if jobID != nil && e.JobID != *jobID {
			continue
		}
		if userID != nil && (e.UserID == nil || *e.UserID != *userID) {
			continue
		}
		if e.EntryType == models.EntryCredit {
			sum += e.AmountPaise
		} else {
			sum -= e.AmountPaise
		}
	}
	return sum, nil
}

func (m *memStore) HasPosting(_ context.Context, jobID uuid.UUID, category models.EntryCategory, entryType models.EntryType, account models.AccountType) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.JobID == jobID && e.Category == category && e.EntryType == entryType && e.AccountType == account {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) ListByJob(_ context.Context, jobID uuid.UUID) ([]*models.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.LedgerEntry
	for _, e := range m.entries {
		if e.JobID == jobID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) ListByUser(_ context.Context, userID uuid.UUID) ([]*models.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.LedgerEntry
	for _, e := range m.entries {
		if e.UserID != nil && *e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------

func TestPostDoubleEntry_BuildsBalancedPair(t *testing.T) {
	store := &memStore{}
	svc := NewService(store)
	jobID := uuid.New()
	dealer := uuid.New()
	actor := uuid.New()

	d, c, err := svc.PostDoubleEntry(context.Background(), nil, jobID,
		Leg{Account: models.AccountPlatformSettlement, AmountPaise: 500_000, Category: models.CategoryJobPayment, Description: "gateway pay-in"},
		Leg{Account: models.AccountEscrow, UserID: &dealer, AmountPaise: 500_000, Category: models.CategoryJobPayment, Description: "escrow lock"},
		actor)
	if err != nil {
		t.Fatalf("PostDoubleEntry: %v", err)
	}
	if d.EntryType != models.EntryDebit || c.EntryType != models.EntryCredit {
		t.Errorf("entry types: got %s/%s", d.EntryType, c.EntryType)
	}
	if d.AmountPaise != c.AmountPaise {
		t.Error("pair must balance")
	}
	if d.JobID != jobID || c.JobID != jobID {
		t.Error("both legs carry the job id")
	}
	if d.CreatedBy != actor || c.CreatedBy != actor {
		t.Error("both legs carry the posting actor")
	}
	if d.CounterEntryID == nil || *d.CounterEntryID != c.ID {
		t.Error("debit should link its credit counterpart")
	}
	if c.CounterEntryID == nil || *c.CounterEntryID != d.ID {
		t.Error("credit should link its debit counterpart")
	}
	if c.UserID == nil || *c.UserID != dealer {
		t.Error("user scoping on the credit leg should survive")
	}
}

func TestPostDoubleEntry_RejectsNonPositiveAmounts(t *testing.T) {
	svc := NewService(&memStore{})
	jobID := uuid.New()

	cases := []struct {
		name          string
		debit, credit int64
	}{
		{"zero debit", 0, 100},
		{"zero credit", 100, 0},
		{"negative", -100, -100},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := svc.PostDoubleEntry(context.Background(), nil, jobID,
				Leg{Account: models.AccountEscrow, AmountPaise: tc.debit, Category: models.CategoryRefund},
				Leg{Account: models.AccountDealerWallet, AmountPaise: tc.credit, Category: models.CategoryRefund},
				uuid.New())
			if !apperr.IsKind(err, apperr.Validation) {
				t.Errorf("want Validation error, got %v", err)
			}
		})
	}
}

func TestPostDoubleEntry_RejectsUnbalancedPair(t *testing.T) {
	svc := NewService(&memStore{})
	_, _, err := svc.PostDoubleEntry(context.Background(), nil, uuid.New(),
		Leg{Account: models.AccountEscrow, AmountPaise: 100, Category: models.CategoryRefund},
		Leg{Account: models.AccountDealerWallet, AmountPaise: 99, Category: models.CategoryRefund},
		uuid.New())
	if !apperr.IsKind(err, apperr.Validation) {
		t.Errorf("want Validation error, got %v", err)
	}
}

func TestPostDoubleEntry_DuplicateSurfacesAsAlreadyProcessed(t *testing.T) {
	store := &memStore{}
	svc := NewService(store)
	jobID := uuid.New()
	post := func() error {
		_, _, err := svc.PostDoubleEntry(context.Background(), nil, jobID,
			Leg{Account: models.AccountPlatformSettlement, AmountPaise: 250_000, Category: models.CategoryJobPayment},
			Leg{Account: models.AccountEscrow, AmountPaise: 250_000, Category: models.CategoryJobPayment},
			uuid.New())
		return err
	}
	if err := post(); err != nil {
		t.Fatalf("first posting: %v", err)
	}
	if err := post(); !apperr.IsKind(err, apperr.DuplicatePosting) {
		t.Errorf("second posting: want DuplicatePosting, got %v", err)
	}
	if len(store.entries) != 2 {
		t.Errorf("entries after duplicate: got %d, want 2", len(store.entries))
	}
}

func TestAccountBalance_SumsCreditsMinusDebits(t *testing.T) {
	store := &memStore{}
	svc := NewService(store)
	jobID := uuid.New()
	tech := uuid.New()

	mustPost := func(debit, credit Leg) {
		t.Helper()
		if _, _, err := svc.PostDoubleEntry(context.Background(), nil, jobID, debit, credit, uuid.New()); err != nil {
			t.Fatalf("posting: %v", err)
		}
	}

	// Fund escrow with 1000, release 800 to the technician, hold nothing.
	mustPost(
		Leg{Account: models.AccountPlatformSettlement, AmountPaise: 1000, Category: models.CategoryJobPayment},
		Leg{Account: models.AccountEscrow, AmountPaise: 1000, Category: models.CategoryJobPayment})
	mustPost(
		Leg{Account: models.AccountEscrow, AmountPaise: 800, Category: models.CategoryPaymentRelease},
		Leg{Account: models.AccountTechnicianPayable, UserID: &tech, AmountPaise: 800, Category: models.CategoryPaymentRelease})

	escrow, err := svc.AccountBalance(context.Background(), &jobID, nil, models.AccountEscrow)
	if err != nil {
		t.Fatalf("AccountBalance: %v", err)
	}
	if escrow != 200 {
		t.Errorf("escrow: got %d, want 200", escrow)
	}

	payable, err := svc.AccountBalance(context.Background(), &jobID, &tech, models.AccountTechnicianPayable)
	if err != nil {
		t.Fatalf("AccountBalance: %v", err)
	}
	if payable != 800 {
		t.Errorf("technician payable: got %d, want 800", payable)
	}

	// Scoping to an unrelated user sees nothing.
	stranger := uuid.New()
	other, _ := svc.AccountBalance(context.Background(), &jobID, &stranger, models.AccountTechnicianPayable)
	if other != 0 {
		t.Errorf("stranger's payable: got %d, want 0", other)
	}
}
