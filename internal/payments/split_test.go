package payments

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgyard/backend/internal/apperr"
	"github.com/dgyard/backend/internal/jobs"
	"github.com/dgyard/backend/internal/ledger"
	"github.com/dgyard/backend/internal/models"
)

type memLedger struct {
	mu      sync.Mutex
	entries []*models.LedgerEntry
}

func (m *memLedger) PostDoubleEntry(_ context.Context, _ pgx.Tx, jobID uuid.UUID, debit, credit ledger.Leg, createdBy uuid.UUID) (*models.LedgerEntry, *models.LedgerEntry, error) {
	if debit.AmountPaise <= 0 || debit.AmountPaise != credit.AmountPaise {
		return nil, nil, apperr.Validationf("unbalanced posting")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d := &models.LedgerEntry{ID: uuid.New(), JobID: jobID, AccountType: debit.Account, UserID: debit.UserID,
		AmountPaise: debit.AmountPaise, EntryType: models.EntryDebit, Category: debit.Category, CreatedBy: createdBy}
	c := &models.LedgerEntry{ID: uuid.New(), JobID: jobID, AccountType: credit.Account, UserID: credit.UserID,
		AmountPaise: credit.AmountPaise, EntryType: models.EntryCredit, Category: credit.Category, CreatedBy: createdBy}
	m.entries = append(m.entries, d, c)
	return d, c, nil
}

func (m *memLedger) AccountBalance(_ context.Context, jobID, userID *uuid.UUID, account models.AccountType) (int64, error) {
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

func (m *memLedger) HasPosting(_ context.Context, jobID uuid.UUID, category models.EntryCategory, entryType models.EntryType, account models.AccountType) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.JobID == jobID && e.Category == category && e.EntryType == entryType && e.AccountType == account {
			return true, nil
		}
	}
	return false, nil
}

func (m *memLedger) EntriesForJob(context.Context, uuid.UUID) ([]*models.LedgerEntry, error) {
	return nil, nil
}

func (m *memLedger) EntriesForUser(context.Context, uuid.UUID) ([]*models.LedgerEntry, error) {
	return nil, nil
}

func (m *memLedger) fund(jobID uuid.UUID, amount int64) {
	_, _, _ = m.PostDoubleEntry(context.Background(), nil, jobID,
		ledger.Leg{Account: models.AccountPlatformSettlement, AmountPaise: amount, Category: models.CategoryJobPayment},
		ledger.Leg{Account: models.AccountEscrow, AmountPaise: amount, Category: models.CategoryJobPayment},
		uuid.New())
}

func (m *memLedger) byCategory(cat models.EntryCategory) []*models.LedgerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.LedgerEntry
	for _, e := range m.entries {
		if e.Category == cat {
			out = append(out, e)
		}
	}
	return out
}

type memJobs struct {
	mu        sync.Mutex
	completed map[uuid.UUID]time.Time
}

func (m *memJobs) SetCompleted(_ context.Context, _ pgx.Tx, jobID uuid.UUID, warrantyStart time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.completed == nil {
		m.completed = make(map[uuid.UUID]time.Time)
	}
	m.completed[jobID] = warrantyStart
	return nil
}

type memHolds struct {
	mu    sync.Mutex
	holds []*models.WarrantyHold
}

func (m *memHolds) Create(_ context.Context, _ pgx.Tx, h *models.WarrantyHold) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *h
	m.holds = append(m.holds, &cp)
	return nil
}

// ---------------------------------------------------------------------------

func splitJob(total int64) *models.JobPost {
	tech := uuid.New()
	return &models.JobPost{
		ID:                   uuid.New(),
		JobNumber:            "JOB-20260829-0042",
		Status:               models.JobStatusCompletionPendingApproval,
		DealerID:             uuid.New(),
		AssignedTechnicianID: &tech,
		EstimatedCostPaise:   total,
	}
}

func TestSettle_EscrowPathDefaults(t *testing.T) {
	led := &memLedger{}
	jobsRepo := &memJobs{}
	holds := &memHolds{}
	svc := NewService(led, jobsRepo, holds, nil, 0, nil)

	job := splitJob(1_000_000) // ₹10,000
	led.fund(job.ID, 1_000_000)

	out, err := svc.Settle(context.Background(), nil, job, jobs.SplitRequest{})
	require.NoError(t, err)

	// 20% hold, then 10% commission on the remainder.
	assert.Equal(t, int64(1_000_000), out.TotalPaise)
	assert.Equal(t, int64(200_000), out.HeldPaise)
	assert.Equal(t, int64(80_000), out.CommissionPaise)
	assert.Equal(t, int64(720_000), out.ImmediatePaise)
	assert.True(t, out.EscrowReleased)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, models.DefaultWarrantyDays), out.WarrantyEnd, 5*time.Second)

	// Immediate and commission leave escrow; the held portion stays put.
	assert.Len(t, led.byCategory(models.CategoryPaymentRelease), 2)
	assert.Len(t, led.byCategory(models.CategoryCommission), 2)
	assert.Empty(t, led.byCategory(models.CategoryWarrantyHold))

	escrow, err := led.AccountBalance(context.Background(), &job.ID, nil, models.AccountEscrow)
	require.NoError(t, err)
	assert.Equal(t, int64(200_000), escrow, "escrow residual must back the hold exactly")

	payable, err := led.AccountBalance(context.Background(), &job.ID, job.AssignedTechnicianID, models.AccountTechnicianPayable)
	require.NoError(t, err)
	assert.Equal(t, int64(720_000), payable)

	require.Len(t, holds.holds, 1)
	h := holds.holds[0]
	assert.Equal(t, models.HoldStatusLocked, h.Status)
	assert.Equal(t, int64(200_000), h.AmountPaise)
	assert.Equal(t, models.DefaultHoldPercent, h.HoldPercent)
	assert.Equal(t, models.DefaultWarrantyDays, h.WarrantyDays)
	assert.Equal(t, h.ID, out.WarrantyHoldID)

	_, ok := jobsRepo.completed[job.ID]
	assert.True(t, ok, "job must be marked completed")
}

func TestSettle_DirectPathBacksHoldWithEscrow(t *testing.T) {
	led := &memLedger{}
	svc := NewService(led, &memJobs{}, &memHolds{}, nil, 0, nil)

	job := splitJob(1_000_000)
	// No escrow funding: the split draws on the dealer wallet directly.
	out, err := svc.Settle(context.Background(), nil, job, jobs.SplitRequest{})
	require.NoError(t, err)
	assert.False(t, out.EscrowReleased)

	assert.Len(t, led.byCategory(models.CategoryJobPayment), 2)
	assert.Len(t, led.byCategory(models.CategoryWarrantyHold), 2)

	escrow, err := led.AccountBalance(context.Background(), &job.ID, nil, models.AccountEscrow)
	require.NoError(t, err)
	assert.Equal(t, int64(200_000), escrow, "held portion must be moved into escrow")
}

func TestSettle_Overrides(t *testing.T) {
	led := &memLedger{}
	holds := &memHolds{}
	svc := NewService(led, &memJobs{}, holds, nil, 0, nil)

	job := splitJob(1_000_000)
	led.fund(job.ID, 1_000_000)
	holdPct, days := 30, 15

	out, err := svc.Settle(context.Background(), nil, job, jobs.SplitRequest{HoldPercent: &holdPct, WarrantyDays: &days})
	require.NoError(t, err)

	assert.Equal(t, int64(300_000), out.HeldPaise)
	assert.Equal(t, int64(70_000), out.CommissionPaise)
	assert.Equal(t, int64(630_000), out.ImmediatePaise)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 15), out.WarrantyEnd, 5*time.Second)
	require.Len(t, holds.holds, 1)
	assert.Equal(t, 15, holds.holds[0].WarrantyDays)
}

func TestSettle_OutOfRangeHoldFallsBack(t *testing.T) {
	led := &memLedger{}
	svc := NewService(led, &memJobs{}, &memHolds{}, nil, 0, nil)

	job := splitJob(1_000_000)
	led.fund(job.ID, 1_000_000)
	bad := 150

	out, err := svc.Settle(context.Background(), nil, job, jobs.SplitRequest{HoldPercent: &bad})
	require.NoError(t, err)
	assert.Equal(t, int64(200_000), out.HeldPaise)
}

func TestSettle_RecommenderFillsMissingHold(t *testing.T) {
	led := &memLedger{}
	recommend := func(*models.JobPost) int { return 25 }
	svc := NewService(led, &memJobs{}, &memHolds{}, recommend, 0, nil)

	job := splitJob(1_000_000)
	led.fund(job.ID, 1_000_000)

	out, err := svc.Settle(context.Background(), nil, job, jobs.SplitRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(250_000), out.HeldPaise)
}

func TestSettle_RequiresAssignedTechnician(t *testing.T) {
	svc := NewService(&memLedger{}, &memJobs{}, &memHolds{}, nil, 0, nil)

	job := splitJob(1_000_000)
	job.AssignedTechnicianID = nil

	_, err := svc.Settle(context.Background(), nil, job, jobs.SplitRequest{})
	assert.True(t, apperr.IsKind(err, apperr.Validation), "got %v", err)
}

func TestSettle_FullHoldSkipsPayout(t *testing.T) {
	led := &memLedger{}
	holds := &memHolds{}
	svc := NewService(led, &memJobs{}, holds, nil, 0, nil)

	job := splitJob(1_000_000)
	led.fund(job.ID, 1_000_000)
	all := 100

	out, err := svc.Settle(context.Background(), nil, job, jobs.SplitRequest{HoldPercent: &all})
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000), out.HeldPaise)
	assert.Zero(t, out.ImmediatePaise)
	assert.Zero(t, out.CommissionPaise)
	assert.Empty(t, led.byCategory(models.CategoryPaymentRelease))
	assert.Empty(t, led.byCategory(models.CategoryCommission))
	require.Len(t, holds.holds, 1)
}
