package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dgyard/backend/internal/apperr"
	"github.com/dgyard/backend/internal/authz"
	"github.com/dgyard/backend/internal/ledger"
	"github.com/dgyard/backend/internal/models"
)

// jobStore is the persistence surface the lifecycle service needs.
type jobStore interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Create(ctx context.Context, j *models.JobPost) error
	GetByID(ctx context.Context, jobID uuid.UUID) (*models.JobPost, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, jobID uuid.UUID) (*models.JobPost, error)
	ListByDealer(ctx context.Context, dealerID uuid.UUID) ([]*models.JobPost, error)
	ListByTechnician(ctx context.Context, technicianID uuid.UUID) ([]*models.JobPost, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, jobID uuid.UUID, status models.JobStatus) error
	RevertStatus(ctx context.Context, jobID uuid.UUID, status models.JobStatus) error
	SetAssignment(ctx context.Context, tx pgx.Tx, jobID, technicianID uuid.UUID, finalPricePaise int64, status models.JobStatus) error
	SetStarted(ctx context.Context, tx pgx.Tx, jobID uuid.UUID) error
	SetCompletionRequested(ctx context.Context, tx pgx.Tx, jobID uuid.UUID) error
	SetCancelled(ctx context.Context, tx pgx.Tx, jobID uuid.UUID, reason string, penaltyPaise int64, by uuid.UUID, byRole models.Role, clearAssignment bool) error
	NextJobNumber(ctx context.Context, now time.Time) (string, error)
}

// bidStore is the slice of the bidding repository Assign needs.
type bidStore interface {
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, bidID uuid.UUID) (*models.JobBid, error)
	MarkAccepted(ctx context.Context, tx pgx.Tx, bidID uuid.UUID) error
	RejectOpenBids(ctx context.Context, tx pgx.Tx, jobID uuid.UUID, exceptBidID uuid.UUID) error
}

// technicianRater docks a technician's rating on self-cancellation.
type technicianRater interface {
	AdjustTechnicianRating(ctx context.Context, tx pgx.Tx, technicianID uuid.UUID, delta float64) error
}

// Notifier is fire-and-forget: implementations log and swallow failures so
// notification problems can never fail a financial operation.
type Notifier interface {
	Send(ctx context.Context, userID uuid.UUID, jobID *uuid.UUID, typ models.NotificationType, title, message string, channels []string)
}

// Auditor is best-effort append-only compliance logging.
type Auditor interface {
	Record(ctx context.Context, jobID *uuid.UUID, userID uuid.UUID, role models.Role, action, description string, amountPaise int64, metadata map[string]any)
}

// SplitRequest carries approval-time overrides for the payment split.
// Zero/nil fields are resolved by the splitter (job price, 20% hold,
// 10 warranty days).
type SplitRequest struct {
	TotalPaise   int64
	HoldPercent  *int
	WarrantyDays *int
	Actor        authz.Actor
}

// SplitOutcome is what the payment split produced on approval.
type SplitOutcome struct {
	TotalPaise      int64
	ImmediatePaise  int64
	CommissionPaise int64
	HeldPaise       int64
	WarrantyHoldID  uuid.UUID
	WarrantyEnd     time.Time
	EscrowReleased  bool
}

// PaymentSplitter settles an approved job inside the caller's transaction.
type PaymentSplitter interface {
	Settle(ctx context.Context, tx pgx.Tx, job *models.JobPost, req SplitRequest) (*SplitOutcome, error)
}

// LockPaymentResult reports whether the call posted fresh entries or found
// the payment already locked (idempotent no-op).
type LockPaymentResult struct {
	AmountPaise      int64
	AlreadyProcessed bool
}

// CancelResult summarizes a cancellation's financial effect.
type CancelResult struct {
	PenaltyPaise int64
	RefundPaise  int64
}

type Service interface {
	Create(ctx context.Context, actor authz.Actor, title, description string, estimatedCostPaise int64) (*models.JobPost, error)
	Get(ctx context.Context, jobID uuid.UUID) (*models.JobPost, error)
	ListByDealer(ctx context.Context, dealerID uuid.UUID) ([]*models.JobPost, error)
	ListByTechnician(ctx context.Context, technicianID uuid.UUID) ([]*models.JobPost, error)
	Assign(ctx context.Context, actor authz.Actor, jobID, bidID uuid.UUID) (*models.JobPost, error)
	LockPayment(ctx context.Context, actor authz.Actor, jobID uuid.UUID) (*LockPaymentResult, error)
	Start(ctx context.Context, actor authz.Actor, jobID uuid.UUID) error
	Complete(ctx context.Context, actor authz.Actor, jobID uuid.UUID) error
	Approve(ctx context.Context, actor authz.Actor, jobID uuid.UUID, req SplitRequest) (*SplitOutcome, error)
	Cancel(ctx context.Context, actor authz.Actor, jobID uuid.UUID, reason string, explicitPenaltyPaise *int64) (*CancelResult, error)
}

type service struct {
	repo     jobStore
	bids     bidStore
	ledger   ledger.Service
	splitter PaymentSplitter
	raters   technicianRater
	notify   Notifier
	audit    Auditor
	log      *slog.Logger
	now      func() time.Time
}

func NewService(repo jobStore, bids bidStore, ledgerSvc ledger.Service, splitter PaymentSplitter, raters technicianRater, notify Notifier, audit Auditor, log *slog.Logger) Service {
	if log == nil {
		log = slog.Default()
	}
	return &service{
		repo: repo, bids: bids, ledger: ledgerSvc, splitter: splitter,
		raters: raters, notify: notify, audit: audit, log: log,
		now: time.Now,
	}
}

var _ Service = (*service)(nil)

func (s *service) Create(ctx context.Context, actor authz.Actor, title, description string, estimatedCostPaise int64) (*models.JobPost, error) {
	if actor.Role != models.RoleDealer && !actor.IsAdmin() {
		return nil, apperr.Authorizationf("only dealers may post jobs")
	}
	if title == "" {
		return nil, apperr.Validationf("title is required")
	}
	if estimatedCostPaise <= 0 {
		return nil, apperr.Validationf("estimated cost must be positive")
	}
	number, err := s.repo.NextJobNumber(ctx, s.now())
	if err != nil {
		return nil, err
	}
	job := &models.JobPost{
		ID:                 uuid.New(),
		JobNumber:          number,
		Status:             models.JobStatusPending,
		DealerID:           actor.ID,
		Title:              title,
		Description:        description,
		EstimatedCostPaise: estimatedCostPaise,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, &job.ID, actor.ID, actor.Role, "job.create", "job posted", estimatedCostPaise, nil)
	return job, nil
}

func (s *service) Get(ctx context.Context, jobID uuid.UUID) (*models.JobPost, error) {
	return s.repo.GetByID(ctx, jobID)
}

func (s *service) ListByDealer(ctx context.Context, dealerID uuid.UUID) ([]*models.JobPost, error) {
	return s.repo.ListByDealer(ctx, dealerID)
}

func (s *service) ListByTechnician(ctx context.Context, technicianID uuid.UUID) ([]*models.JobPost, error) {
	return s.repo.ListByTechnician(ctx, technicianID)
}

// Assign accepts a bid: the job gets its technician and final price, every
// other live bid is rejected, and the job moves on to await payment.
func (s *service) Assign(ctx context.Context, actor authz.Actor, jobID, bidID uuid.UUID) (*models.JobPost, error) {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	job, err := s.repo.GetByIDForUpdate(ctx, tx, jobID)
	if err != nil {
		return nil, err
	}
	if err := authz.CanPerform(actor, models.OpAssign, job); err != nil {
		return nil, err
	}
	if err := ValidateOperation(job.Status, models.OpAssign); err != nil {
		return nil, err
	}
	if err := ValidateTransition(job.Status, models.JobStatusAssigned); err != nil {
		return nil, err
	}

	bid, err := s.bids.GetByIDForUpdate(ctx, tx, bidID)
	if err != nil {
		return nil, err
	}
	if bid.JobID != jobID {
		return nil, apperr.Validationf("bid %s does not belong to job %s", bidID, job.JobNumber)
	}
	if bid.Status != models.BidStatusPending {
		return nil, apperr.Conflictf("bid is %s, only a pending bid can be accepted", bid.Status)
	}
	if bid.Stale(s.now()) {
		return nil, apperr.Conflictf("bid expired at %s", bid.ExpiresAt.Format(time.RFC3339))
	}

	if err := s.bids.MarkAccepted(ctx, tx, bid.ID); err != nil {
		return nil, err
	}
	if err := s.bids.RejectOpenBids(ctx, tx, jobID, bid.ID); err != nil {
		return nil, err
	}
	if err := s.repo.SetAssignment(ctx, tx, jobID, bid.TechnicianID, bid.AmountPaise, models.JobStatusAssigned); err != nil {
		return nil, err
	}
	// Second hop in the same unit of work: the assigned job immediately
	// waits for the dealer's payment.
	if err := ValidateTransition(models.JobStatusAssigned, models.JobStatusWaitingForPayment); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, tx, jobID, models.JobStatusWaitingForPayment); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.notify.Send(ctx, bid.TechnicianID, &jobID, models.NotificationJobAssigned,
		"Job assigned",
		fmt.Sprintf("You were assigned job %s at ₹%s.", job.JobNumber, rupees(bid.AmountPaise)),
		[]string{models.ChannelInApp, models.ChannelWhatsApp})
	s.audit.Record(ctx, &jobID, actor.ID, actor.Role, "job.assign", "bid accepted, technician assigned", bid.AmountPaise,
		map[string]any{"bid_id": bid.ID.String(), "technician_id": bid.TechnicianID.String()})

	return s.repo.GetByID(ctx, jobID)
}

// LockPayment records the upstream gateway success by moving the job total
// into escrow. It is the idempotency-critical operation: a duplicate request
// finds the existing JOB_PAYMENT posting and short-circuits.
func (s *service) LockPayment(ctx context.Context, actor authz.Actor, jobID uuid.UUID) (*LockPaymentResult, error) {
	exists, err := s.ledger.HasPosting(ctx, jobID, models.CategoryJobPayment, models.EntryCredit, models.AccountEscrow)
	if err != nil {
		return nil, err
	}
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := authz.CanPerform(actor, models.OpLockPayment, job); err != nil {
		return nil, err
	}
	if exists {
		return &LockPaymentResult{AmountPaise: job.TotalAmountPaise(), AlreadyProcessed: true}, nil
	}

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	job, err = s.repo.GetByIDForUpdate(ctx, tx, jobID)
	if err != nil {
		return nil, err
	}
	if err := ValidateOperation(job.Status, models.OpLockPayment); err != nil {
		return nil, err
	}
	if job.Status != models.JobStatusAssigned {
		if err := ValidateTransition(job.Status, models.JobStatusAssigned); err != nil {
			return nil, err
		}
	}
	amount := job.TotalAmountPaise()
	if amount <= 0 {
		return nil, apperr.Validationf("job %s has no payable amount", job.JobNumber)
	}

	dealerID := job.DealerID
	_, _, err = s.ledger.PostDoubleEntry(ctx, tx, jobID,
		ledger.Leg{Account: models.AccountPlatformSettlement, AmountPaise: amount, Category: models.CategoryJobPayment, Description: "gateway pay-in for " + job.JobNumber},
		ledger.Leg{Account: models.AccountEscrow, AmountPaise: amount, Category: models.CategoryJobPayment, Description: "escrow lock for " + job.JobNumber},
		actor.ID)
	if err != nil {
		if apperr.IsKind(err, apperr.DuplicatePosting) {
			// Lost a race with a concurrent lock; the money is in escrow.
			return &LockPaymentResult{AmountPaise: amount, AlreadyProcessed: true}, nil
		}
		return nil, err
	}
	if job.Status != models.JobStatusAssigned {
		if err := s.repo.UpdateStatus(ctx, tx, jobID, models.JobStatusAssigned); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	if job.AssignedTechnicianID != nil {
		s.notify.Send(ctx, *job.AssignedTechnicianID, &jobID, models.NotificationPaymentLocked,
			"Payment secured",
			fmt.Sprintf("Payment of ₹%s for job %s is locked in escrow. You can start the work.", rupees(amount), job.JobNumber),
			[]string{models.ChannelInApp})
	}
	s.audit.Record(ctx, &jobID, actor.ID, actor.Role, "job.lock_payment", "payment locked in escrow", amount,
		map[string]any{"dealer_id": dealerID.String()})

	return &LockPaymentResult{AmountPaise: amount}, nil
}

func (s *service) Start(ctx context.Context, actor authz.Actor, jobID uuid.UUID) error {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	job, err := s.repo.GetByIDForUpdate(ctx, tx, jobID)
	if err != nil {
		return err
	}
	if err := authz.CanPerform(actor, models.OpStart, job); err != nil {
		return err
	}
	if err := ValidateOperation(job.Status, models.OpStart); err != nil {
		return err
	}
	if err := ValidateTransition(job.Status, models.JobStatusInProgress); err != nil {
		return err
	}
	if err := s.repo.SetStarted(ctx, tx, jobID); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.audit.Record(ctx, &jobID, actor.ID, actor.Role, "job.start", "work started", 0, nil)
	return nil
}

func (s *service) Complete(ctx context.Context, actor authz.Actor, jobID uuid.UUID) error {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	job, err := s.repo.GetByIDForUpdate(ctx, tx, jobID)
	if err != nil {
		return err
	}
	if err := authz.CanPerform(actor, models.OpComplete, job); err != nil {
		return err
	}
	if err := ValidateOperation(job.Status, models.OpComplete); err != nil {
		return err
	}
	if err := ValidateTransition(job.Status, models.JobStatusCompletionPendingApproval); err != nil {
		return err
	}
	if err := s.repo.SetCompletionRequested(ctx, tx, jobID); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.notify.Send(ctx, job.DealerID, &jobID, models.NotificationPaymentSplit,
		"Completion approval requested",
		fmt.Sprintf("The technician marked job %s as done. Review and approve to release payment.", job.JobNumber),
		[]string{models.ChannelInApp, models.ChannelEmail})
	s.audit.Record(ctx, &jobID, actor.ID, actor.Role, "job.complete", "completion requested", 0, nil)
	return nil
}

// Approve runs the payment split as a saga: the forward action (mark
// COMPLETED + settle) commits atomically; the compensating action (revert to
// COMPLETION_PENDING_APPROVAL) runs best-effort if anything fails after the
// status write, so a failed split never leaves the job looking approved.
func (s *service) Approve(ctx context.Context, actor authz.Actor, jobID uuid.UUID, req SplitRequest) (*SplitOutcome, error) {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	job, err := s.repo.GetByIDForUpdate(ctx, tx, jobID)
	if err != nil {
		return nil, err
	}
	if err := authz.CanPerform(actor, models.OpApprove, job); err != nil {
		return nil, err
	}
	if err := ValidateOperation(job.Status, models.OpApprove); err != nil {
		return nil, err
	}
	if err := ValidateTransition(job.Status, models.JobStatusCompleted); err != nil {
		return nil, err
	}
	priorStatus := job.Status
	req.Actor = actor

	outcome, err := s.splitter.Settle(ctx, tx, job, req)
	if err != nil {
		s.compensateApprove(ctx, jobID, priorStatus, err)
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		s.compensateApprove(ctx, jobID, priorStatus, err)
		return nil, err
	}

	if job.AssignedTechnicianID != nil {
		s.notify.Send(ctx, *job.AssignedTechnicianID, &jobID, models.NotificationPaymentSplit,
			"Payment released",
			fmt.Sprintf("Job %s approved: ₹%s released now, ₹%s held until %s.",
				job.JobNumber, rupees(outcome.ImmediatePaise), rupees(outcome.HeldPaise),
				outcome.WarrantyEnd.Format("02 Jan 2006")),
			[]string{models.ChannelInApp, models.ChannelWhatsApp})
	}
	s.audit.Record(ctx, &jobID, actor.ID, actor.Role, "job.approve", "completion approved, payment split", outcome.TotalPaise,
		map[string]any{
			"immediate_paise": outcome.ImmediatePaise,
			"held_paise":      outcome.HeldPaise,
			"escrow_released": outcome.EscrowReleased,
		})
	return outcome, nil
}

// compensateApprove reverts the job to its pre-approval status. The
// transaction rollback already undoes committed-nothing cases; this explicit
// write covers partial infrastructure failures and is best-effort: its own
// failure is logged and never masks the original error.
func (s *service) compensateApprove(ctx context.Context, jobID uuid.UUID, priorStatus models.JobStatus, cause error) {
	if err := s.repo.RevertStatus(ctx, jobID, priorStatus); err != nil {
		s.log.Error("approve compensation failed", "job_id", jobID, "revert_to", priorStatus, "error", err, "cause", cause)
	}
}

func (s *service) Cancel(ctx context.Context, actor authz.Actor, jobID uuid.UUID, reason string, explicitPenaltyPaise *int64) (*CancelResult, error) {
	if reason == "" {
		return nil, apperr.Validationf("cancellation reason is required")
	}
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	job, err := s.repo.GetByIDForUpdate(ctx, tx, jobID)
	if err != nil {
		return nil, err
	}
	if err := authz.CanPerform(actor, models.OpCancel, job); err != nil {
		return nil, err
	}
	if err := ValidateOperation(job.Status, models.OpCancel); err != nil {
		return nil, err
	}
	if err := ValidateTransition(job.Status, models.JobStatusCancelled); err != nil {
		return nil, err
	}

	total := job.TotalAmountPaise()
	penalty := PenaltyAmount(total, PenaltyPercent(job.Status))
	if explicitPenaltyPaise != nil {
		if *explicitPenaltyPaise < 0 || *explicitPenaltyPaise > total {
			return nil, apperr.Validationf("explicit penalty %d out of range [0, %d]", *explicitPenaltyPaise, total)
		}
		penalty = *explicitPenaltyPaise
	}

	var refund int64
	escrowBalance, err := s.ledger.AccountBalance(ctx, &jobID, nil, models.AccountEscrow)
	if err != nil {
		return nil, err
	}
	if escrowBalance > 0 {
		refund = escrowBalance - penalty
		if refund < 0 {
			refund = 0
		}
		if refund > 0 {
			_, _, err = s.ledger.PostDoubleEntry(ctx, tx, jobID,
				ledger.Leg{Account: models.AccountEscrow, AmountPaise: refund, Category: models.CategoryRefund, Description: "cancellation refund for " + job.JobNumber},
				ledger.Leg{Account: models.AccountDealerWallet, UserID: &job.DealerID, AmountPaise: refund, Category: models.CategoryRefund, Description: "cancellation refund for " + job.JobNumber},
				actor.ID)
			if err != nil && !apperr.IsKind(err, apperr.DuplicatePosting) {
				return nil, err
			}
		}
		if penalty > 0 {
			_, _, err = s.ledger.PostDoubleEntry(ctx, tx, jobID,
				ledger.Leg{Account: models.AccountEscrow, AmountPaise: penalty, Category: models.CategoryCancellationPenalty, Description: "cancellation penalty for " + job.JobNumber},
				ledger.Leg{Account: models.AccountPlatformCommission, AmountPaise: penalty, Category: models.CategoryCancellationPenalty, Description: "cancellation penalty for " + job.JobNumber},
				actor.ID)
			if err != nil && !apperr.IsKind(err, apperr.DuplicatePosting) {
				return nil, err
			}
		}
	}

	technicianCancelled := actor.Role == models.RoleTechnician
	if err := s.repo.SetCancelled(ctx, tx, jobID, reason, penalty, actor.ID, actor.Role, technicianCancelled); err != nil {
		return nil, err
	}
	if technicianCancelled {
		if err := s.raters.AdjustTechnicianRating(ctx, tx, actor.ID, -0.5); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	msg := fmt.Sprintf("Job %s was cancelled (%s). Penalty ₹%s, refund ₹%s.",
		job.JobNumber, reason, rupees(penalty), rupees(refund))
	s.notify.Send(ctx, job.DealerID, &jobID, models.NotificationJobCancelled, "Job cancelled", msg,
		[]string{models.ChannelInApp, models.ChannelEmail})
	if job.AssignedTechnicianID != nil {
		s.notify.Send(ctx, *job.AssignedTechnicianID, &jobID, models.NotificationJobCancelled, "Job cancelled", msg,
			[]string{models.ChannelInApp})
	}
	s.audit.Record(ctx, &jobID, actor.ID, actor.Role, "job.cancel", reason, penalty,
		map[string]any{"refund_paise": refund, "penalty_paise": penalty, "status_at_cancel": string(job.Status)})

	return &CancelResult{PenaltyPaise: penalty, RefundPaise: refund}, nil
}

// rupees renders paise as a whole-rupee string for user-facing messages.
func rupees(paise int64) string {
	if paise%100 == 0 {
		return fmt.Sprintf("%d", paise/100)
	}
	return fmt.Sprintf("%d.%02d", paise/100, paise%100)
}
