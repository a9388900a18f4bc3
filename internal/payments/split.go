// Package payments computes and posts the technician-immediate vs.
// warranty-hold split of a job's final price on completion approval.
package payments

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dgyard/backend/internal/apperr"
	"github.com/dgyard/backend/internal/jobs"
	"github.com/dgyard/backend/internal/ledger"
	"github.com/dgyard/backend/internal/models"
)

// DefaultCommissionPercent is the platform's cut of the immediate portion.
const DefaultCommissionPercent = 10

type jobStore interface {
	SetCompleted(ctx context.Context, tx pgx.Tx, jobID uuid.UUID, warrantyStart time.Time) error
}

type holdStore interface {
	Create(ctx context.Context, tx pgx.Tx, h *models.WarrantyHold) error
}

// HoldRecommender suggests a hold percentage for a job when the caller gave
// none. Returning 0 means no recommendation and the default applies.
type HoldRecommender func(job *models.JobPost) int

// Service implements jobs.PaymentSplitter.
type Service struct {
	ledger            ledger.Service
	jobs              jobStore
	holds             holdStore
	recommend         HoldRecommender
	commissionPercent int
	log               *slog.Logger
	now               func() time.Time
}

func NewService(ledgerSvc ledger.Service, jobStore jobStore, holds holdStore, recommend HoldRecommender, commissionPercent int, log *slog.Logger) *Service {
	if commissionPercent <= 0 || commissionPercent >= 100 {
		commissionPercent = DefaultCommissionPercent
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		ledger: ledgerSvc, jobs: jobStore, holds: holds,
		recommend: recommend, commissionPercent: commissionPercent,
		log: log, now: time.Now,
	}
}

var _ jobs.PaymentSplitter = (*Service)(nil)

// Settle resolves the split inputs, posts the money movements inside the
// caller's transaction, creates the warranty hold, and marks the job
// completed. Two paths: release from escrow when the job's escrow balance is
// positive, or a fresh direct split from the dealer wallet otherwise
// (backward compat for jobs paid outside escrow).
func (s *Service) Settle(ctx context.Context, tx pgx.Tx, job *models.JobPost, req jobs.SplitRequest) (*jobs.SplitOutcome, error) {
	if job.AssignedTechnicianID == nil {
		return nil, apperr.Validationf("job %s has no assigned technician to pay", job.JobNumber)
	}
	technicianID := *job.AssignedTechnicianID

	total := req.TotalPaise
	if total <= 0 {
		total = job.TotalAmountPaise()
	}
	if total <= 0 {
		return nil, apperr.Validationf("no positive amount to split for job %s", job.JobNumber)
	}

	holdPercent := models.DefaultHoldPercent
	if req.HoldPercent != nil {
		holdPercent = *req.HoldPercent
	} else if s.recommend != nil {
		if rec := s.recommend(job); rec > 0 {
			holdPercent = rec
		}
	}
	// An out-of-range percentage falls back to the default instead of
	// failing the approval.
	if holdPercent < 0 || holdPercent > 100 {
		s.log.Warn("hold percentage out of range, using default", "job", job.JobNumber, "hold_percent", holdPercent)
		holdPercent = models.DefaultHoldPercent
	}
	warrantyDays := models.DefaultWarrantyDays
	if req.WarrantyDays != nil && *req.WarrantyDays > 0 {
		warrantyDays = *req.WarrantyDays
	}

	held := total * int64(holdPercent) / 100
	gross := total - held
	commission := gross * int64(s.commissionPercent) / 100
	immediate := gross - commission

	escrowBalance, err := s.ledger.AccountBalance(ctx, &job.ID, nil, models.AccountEscrow)
	if err != nil {
		return nil, err
	}
	fromEscrow := escrowBalance > 0

	now := s.now()
	outcome := &jobs.SplitOutcome{
		TotalPaise:      total,
		ImmediatePaise:  immediate,
		CommissionPaise: commission,
		HeldPaise:       held,
		WarrantyEnd:     now.AddDate(0, 0, warrantyDays),
		EscrowReleased:  fromEscrow,
	}

	if err := s.postSplit(ctx, tx, job, technicianID, immediate, commission, held, fromEscrow, req.Actor.ID); err != nil {
		return nil, err
	}

	if held > 0 {
		hold := &models.WarrantyHold{
			ID:           uuid.New(),
			JobID:        job.ID,
			TechnicianID: technicianID,
			DealerID:     job.DealerID,
			AmountPaise:  held,
			HoldPercent:  holdPercent,
			WarrantyDays: warrantyDays,
			Status:       models.HoldStatusLocked,
			StartDate:    now,
			EndDate:      outcome.WarrantyEnd,
		}
		if err := s.holds.Create(ctx, tx, hold); err != nil {
			return nil, err
		}
		outcome.WarrantyHoldID = hold.ID
	}

	if err := s.jobs.SetCompleted(ctx, tx, job.ID, now); err != nil {
		return nil, err
	}
	return outcome, nil
}

func (s *Service) postSplit(ctx context.Context, tx pgx.Tx, job *models.JobPost, technicianID uuid.UUID, immediate, commission, held int64, fromEscrow bool, actorID uuid.UUID) error {
	// The source account differs per path; the held portion always ends up
	// in escrow so warranty release and forfeiture post identically later.
	source := ledger.Leg{Account: models.AccountDealerWallet, UserID: &job.DealerID}
	category := models.CategoryJobPayment
	if fromEscrow {
		source = ledger.Leg{Account: models.AccountEscrow}
		category = models.CategoryPaymentRelease
	}

	if immediate > 0 {
		debit := source
		debit.AmountPaise = immediate
		debit.Category = category
		debit.Description = "technician payout for " + job.JobNumber
		_, _, err := s.ledger.PostDoubleEntry(ctx, tx, job.ID, debit,
			ledger.Leg{Account: models.AccountTechnicianPayable, UserID: &technicianID, AmountPaise: immediate, Category: category, Description: "technician payout for " + job.JobNumber},
			actorID)
		if err != nil {
			return err
		}
	}
	if commission > 0 {
		debit := source
		debit.AmountPaise = commission
		debit.Category = models.CategoryCommission
		debit.Description = "platform commission for " + job.JobNumber
		_, _, err := s.ledger.PostDoubleEntry(ctx, tx, job.ID, debit,
			ledger.Leg{Account: models.AccountPlatformCommission, AmountPaise: commission, Category: models.CategoryCommission, Description: "platform commission for " + job.JobNumber},
			actorID)
		if err != nil {
			return err
		}
	}
	// Escrow path: the held portion simply stays in escrow. Direct path:
	// move it in so the hold is escrow-backed.
	if !fromEscrow && held > 0 {
		_, _, err := s.ledger.PostDoubleEntry(ctx, tx, job.ID,
			ledger.Leg{Account: models.AccountDealerWallet, UserID: &job.DealerID, AmountPaise: held, Category: models.CategoryWarrantyHold, Description: "warranty hold for " + job.JobNumber},
			ledger.Leg{Account: models.AccountEscrow, AmountPaise: held, Category: models.CategoryWarrantyHold, Description: "warranty hold for " + job.JobNumber},
			actorID)
		if err != nil {
			return err
		}
	}
	return nil
}
