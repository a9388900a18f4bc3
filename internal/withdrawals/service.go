// Package withdrawals handles technician payout requests against their
// ledger-derived payable balance, with an admin approve/process flow.
package withdrawals

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dgyard/backend/internal/apperr"
	"github.com/dgyard/backend/internal/authz"
	"github.com/dgyard/backend/internal/jobs"
	"github.com/dgyard/backend/internal/ledger"
	"github.com/dgyard/backend/internal/models"
)

type withdrawalStore interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Create(ctx context.Context, tx pgx.Tx, w *models.Withdrawal) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Withdrawal, error)
	ListByTechnician(ctx context.Context, technicianID uuid.UUID) ([]*models.Withdrawal, error)
	ListByStatus(ctx context.Context, status models.WithdrawalStatus) ([]*models.Withdrawal, error)
	OpenAmountForJob(ctx context.Context, tx pgx.Tx, technicianID, jobID uuid.UUID) (int64, error)
	SetApproved(ctx context.Context, tx pgx.Tx, id, by uuid.UUID) error
	SetRejected(ctx context.Context, tx pgx.Tx, id, by uuid.UUID, reason string) error
	SetProcessing(ctx context.Context, tx pgx.Tx, id, by uuid.UUID) error
	SetCompleted(ctx context.Context, tx pgx.Tx, id uuid.UUID, txnRef string, at time.Time) error
	SetFailed(ctx context.Context, tx pgx.Tx, id uuid.UUID, reason string) error
}

// holdChecker answers whether a job still has a live warranty hold.
type holdChecker interface {
	ActiveByJob(ctx context.Context, jobID uuid.UUID) (*models.WarrantyHold, error)
}

type Service interface {
	Request(ctx context.Context, actor authz.Actor, jobID uuid.UUID, amountPaise int64, bank models.BankDetails) (*models.Withdrawal, error)
	Get(ctx context.Context, actor authz.Actor, id uuid.UUID) (*models.Withdrawal, error)
	ListMine(ctx context.Context, actor authz.Actor) ([]*models.Withdrawal, error)
	ListPending(ctx context.Context, actor authz.Actor) ([]*models.Withdrawal, error)
	Approve(ctx context.Context, actor authz.Actor, id uuid.UUID) error
	Reject(ctx context.Context, actor authz.Actor, id uuid.UUID, reason string) error
	// Process posts the payout pair and marks the withdrawal completed with
	// the gateway transaction reference.
	Process(ctx context.Context, actor authz.Actor, id uuid.UUID, transactionRef string) error
	MarkFailed(ctx context.Context, actor authz.Actor, id uuid.UUID, reason string) error
}

type service struct {
	repo   withdrawalStore
	holds  holdChecker
	ledger ledger.Service
	notify jobs.Notifier
	audit  jobs.Auditor
	log    *slog.Logger
	now    func() time.Time
}

func NewService(repo withdrawalStore, holds holdChecker, ledgerSvc ledger.Service, notify jobs.Notifier, audit jobs.Auditor, log *slog.Logger) Service {
	if log == nil {
		log = slog.Default()
	}
	return &service{repo: repo, holds: holds, ledger: ledgerSvc, notify: notify, audit: audit, log: log, now: time.Now}
}

var _ Service = (*service)(nil)

func (s *service) Request(ctx context.Context, actor authz.Actor, jobID uuid.UUID, amountPaise int64, bank models.BankDetails) (*models.Withdrawal, error) {
	if actor.Role != models.RoleTechnician {
		return nil, apperr.Authorizationf("only technicians can request withdrawals")
	}
	if amountPaise <= 0 {
		return nil, apperr.Validationf("withdrawal amount must be positive")
	}
	if bank.AccountHolder == "" || bank.AccountNumber == "" || bank.IFSC == "" {
		return nil, apperr.Validationf("bank details are incomplete")
	}

	if err := s.checkNoActiveHold(ctx, jobID); err != nil {
		return nil, err
	}

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	balance, err := s.ledger.AccountBalance(ctx, &jobID, &actor.ID, models.AccountTechnicianPayable)
	if err != nil {
		return nil, err
	}
	open, err := s.repo.OpenAmountForJob(ctx, tx, actor.ID, jobID)
	if err != nil {
		return nil, err
	}
	available := balance - open
	if amountPaise > available {
		return nil, apperr.Validationf("insufficient balance: requested ₹%d but only ₹%d is available",
			amountPaise/100, available/100)
	}

	w := &models.Withdrawal{
		ID:           uuid.New(),
		TechnicianID: actor.ID,
		JobID:        jobID,
		AmountPaise:  amountPaise,
		Bank:         bank,
		Status:       models.WithdrawalStatusPending,
	}
	if err := s.repo.Create(ctx, tx, w); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, &jobID, actor.ID, actor.Role, "withdrawal.request", "payout requested", amountPaise,
		map[string]any{"withdrawal_id": w.ID.String()})
	return w, nil
}

func (s *service) Get(ctx context.Context, actor authz.Actor, id uuid.UUID) (*models.Withdrawal, error) {
	w, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && w.TechnicianID != actor.ID {
		return nil, apperr.Authorizationf("not your withdrawal")
	}
	return w, nil
}

func (s *service) ListMine(ctx context.Context, actor authz.Actor) ([]*models.Withdrawal, error) {
	return s.repo.ListByTechnician(ctx, actor.ID)
}

func (s *service) ListPending(ctx context.Context, actor authz.Actor) ([]*models.Withdrawal, error) {
	if err := authz.CanManageWithdrawal(actor); err != nil {
		return nil, err
	}
	return s.repo.ListByStatus(ctx, models.WithdrawalStatusPending)
}

// checkNoActiveHold rejects the payout while the job still carries a live
// (LOCKED or FROZEN) warranty hold. Checked at request time and again before
// approval and processing, so a hold raised after the request still blocks
// the money leaving.
func (s *service) checkNoActiveHold(ctx context.Context, jobID uuid.UUID) error {
	hold, err := s.holds.ActiveByJob(ctx, jobID)
	if err != nil {
		return err
	}
	if hold == nil {
		return nil
	}
	if hold.IsFrozen {
		return apperr.Conflictf("withdrawals for this job are blocked while a complaint is under review")
	}
	return apperr.Conflictf("withdrawals for this job are blocked until the warranty hold closes")
}

func (s *service) Approve(ctx context.Context, actor authz.Actor, id uuid.UUID) error {
	return s.transition(ctx, actor, id, models.WithdrawalStatusPending, func(ctx context.Context, tx pgx.Tx, w *models.Withdrawal) error {
		if err := s.checkNoActiveHold(ctx, w.JobID); err != nil {
			return err
		}
		if err := s.repo.SetApproved(ctx, tx, id, actor.ID); err != nil {
			return err
		}
		s.audit.Record(ctx, &w.JobID, actor.ID, actor.Role, "withdrawal.approve", "payout approved", w.AmountPaise,
			map[string]any{"withdrawal_id": id.String()})
		return nil
	})
}

func (s *service) Reject(ctx context.Context, actor authz.Actor, id uuid.UUID, reason string) error {
	if reason == "" {
		return apperr.Validationf("rejection reason is required")
	}
	return s.transition(ctx, actor, id, models.WithdrawalStatusPending, func(ctx context.Context, tx pgx.Tx, w *models.Withdrawal) error {
		if err := s.repo.SetRejected(ctx, tx, id, actor.ID, reason); err != nil {
			return err
		}
		s.notify.Send(ctx, w.TechnicianID, &w.JobID, models.NotificationWithdrawal,
			"Withdrawal rejected",
			fmt.Sprintf("Your ₹%d withdrawal was rejected: %s", w.AmountPaise/100, reason),
			[]string{models.ChannelInApp, models.ChannelEmail})
		s.audit.Record(ctx, &w.JobID, actor.ID, actor.Role, "withdrawal.reject", reason, w.AmountPaise,
			map[string]any{"withdrawal_id": id.String()})
		return nil
	})
}

func (s *service) Process(ctx context.Context, actor authz.Actor, id uuid.UUID, transactionRef string) error {
	if transactionRef == "" {
		return apperr.Validationf("transaction reference is required")
	}
	return s.transition(ctx, actor, id, models.WithdrawalStatusApproved, func(ctx context.Context, tx pgx.Tx, w *models.Withdrawal) error {
		if err := s.checkNoActiveHold(ctx, w.JobID); err != nil {
			return err
		}
		meta := fmt.Sprintf(`{"withdrawal_id":%q,"transaction_ref":%q}`, w.ID, transactionRef)
		_, _, err := s.ledger.PostDoubleEntry(ctx, tx, w.JobID,
			ledger.Leg{Account: models.AccountTechnicianPayable, UserID: &w.TechnicianID, AmountPaise: w.AmountPaise, Category: models.CategoryWithdrawal, Description: "payout to bank account", Metadata: []byte(meta)},
			ledger.Leg{Account: models.AccountPlatformSettlement, AmountPaise: w.AmountPaise, Category: models.CategoryWithdrawal, Description: "payout to bank account", Metadata: []byte(meta)},
			actor.ID)
		if err != nil {
			return err
		}
		if err := s.repo.SetCompleted(ctx, tx, id, transactionRef, s.now()); err != nil {
			return err
		}
		s.notify.Send(ctx, w.TechnicianID, &w.JobID, models.NotificationWithdrawal,
			"Withdrawal completed",
			fmt.Sprintf("₹%d has been transferred to your %s account (ref %s).", w.AmountPaise/100, w.Bank.BankName, transactionRef),
			[]string{models.ChannelInApp, models.ChannelWhatsApp})
		s.audit.Record(ctx, &w.JobID, actor.ID, actor.Role, "withdrawal.process", "payout transferred", w.AmountPaise,
			map[string]any{"withdrawal_id": id.String(), "transaction_ref": transactionRef})
		return nil
	})
}

func (s *service) MarkFailed(ctx context.Context, actor authz.Actor, id uuid.UUID, reason string) error {
	if reason == "" {
		return apperr.Validationf("failure reason is required")
	}
	if err := authz.CanManageWithdrawal(actor); err != nil {
		return err
	}
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	w, err := s.repo.GetByIDForUpdate(ctx, tx, id)
	if err != nil {
		return err
	}
	if w.Status != models.WithdrawalStatusApproved && w.Status != models.WithdrawalStatusProcessing {
		return apperr.Conflictf("cannot fail a withdrawal in status %s", w.Status)
	}
	if err := s.repo.SetFailed(ctx, tx, id, reason); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.audit.Record(ctx, &w.JobID, actor.ID, actor.Role, "withdrawal.fail", reason, w.AmountPaise,
		map[string]any{"withdrawal_id": id.String()})
	return nil
}

// transition runs fn against a row locked in the expected status.
func (s *service) transition(ctx context.Context, actor authz.Actor, id uuid.UUID, want models.WithdrawalStatus, fn func(context.Context, pgx.Tx, *models.Withdrawal) error) error {
	if err := authz.CanManageWithdrawal(actor); err != nil {
		return err
	}
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	w, err := s.repo.GetByIDForUpdate(ctx, tx, id)
	if err != nil {
		return err
	}
	if w.Status != want {
		return apperr.Conflictf("withdrawal is %s, expected %s", w.Status, want)
	}
	if err := fn(ctx, tx, w); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
