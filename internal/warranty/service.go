// Package warranty owns the lifecycle of held job payments: LOCKED holds
// freeze on complaint, unfreeze on resolution, and close terminally by
// release (to the technician) or forfeiture (back to the dealer).
package warranty

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

type holdStore interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	GetByID(ctx context.Context, holdID uuid.UUID) (*models.WarrantyHold, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, holdID uuid.UUID) (*models.WarrantyHold, error)
	ActiveByJob(ctx context.Context, jobID uuid.UUID) (*models.WarrantyHold, error)
	ListByTechnician(ctx context.Context, technicianID uuid.UUID) ([]*models.WarrantyHold, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*models.WarrantyHold, error)
	SetFrozen(ctx context.Context, tx pgx.Tx, holdID uuid.UUID, reason string) error
	SetUnfrozen(ctx context.Context, tx pgx.Tx, holdID uuid.UUID) error
	SetReleased(ctx context.Context, tx pgx.Tx, holdID uuid.UUID, reason string, by uuid.UUID) error
	SetForfeited(ctx context.Context, tx pgx.Tx, holdID uuid.UUID, reason string, by uuid.UUID) error
}

type Service interface {
	Get(ctx context.Context, holdID uuid.UUID) (*models.WarrantyHold, error)
	ActiveByJob(ctx context.Context, jobID uuid.UUID) (*models.WarrantyHold, error)
	ListByTechnician(ctx context.Context, technicianID uuid.UUID) ([]*models.WarrantyHold, error)
	// Freeze blocks release and withdrawal eligibility. It moves no funds.
	Freeze(ctx context.Context, actor authz.Actor, holdID uuid.UUID, reason string) error
	Unfreeze(ctx context.Context, actor authz.Actor, holdID uuid.UUID) error
	// Release pays the held amount out of escrow to the technician. Terminal.
	Release(ctx context.Context, actor authz.Actor, holdID uuid.UUID, reason string) error
	// Forfeit returns the held amount to the dealer. Terminal.
	Forfeit(ctx context.Context, actor authz.Actor, holdID uuid.UUID, reason string) error
	// AutoReleaseExpired releases LOCKED holds past their end date. Run by
	// the background sweep, never inline in a request.
	AutoReleaseExpired(ctx context.Context) (int, error)
}

type service struct {
	holds  holdStore
	ledger ledger.Service
	notify jobs.Notifier
	audit  jobs.Auditor
	log    *slog.Logger
	now    func() time.Time
}

func NewService(holds holdStore, ledgerSvc ledger.Service, notify jobs.Notifier, audit jobs.Auditor, log *slog.Logger) Service {
	if log == nil {
		log = slog.Default()
	}
	return &service{holds: holds, ledger: ledgerSvc, notify: notify, audit: audit, log: log, now: time.Now}
}

var _ Service = (*service)(nil)

func (s *service) Get(ctx context.Context, holdID uuid.UUID) (*models.WarrantyHold, error) {
	return s.holds.GetByID(ctx, holdID)
}

func (s *service) ActiveByJob(ctx context.Context, jobID uuid.UUID) (*models.WarrantyHold, error) {
	return s.holds.ActiveByJob(ctx, jobID)
}

func (s *service) ListByTechnician(ctx context.Context, technicianID uuid.UUID) ([]*models.WarrantyHold, error) {
	return s.holds.ListByTechnician(ctx, technicianID)
}

func (s *service) Freeze(ctx context.Context, actor authz.Actor, holdID uuid.UUID, reason string) error {
	if reason == "" {
		return apperr.Validationf("freeze reason is required")
	}
	tx, err := s.holds.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	hold, err := s.holds.GetByIDForUpdate(ctx, tx, holdID)
	if err != nil {
		return err
	}
	if err := authz.CanFreezeHold(actor, hold); err != nil {
		return err
	}
	if hold.Status != models.HoldStatusLocked {
		return apperr.Conflictf("only a locked hold can be frozen, hold is %s", hold.Status)
	}
	if err := s.holds.SetFrozen(ctx, tx, holdID, reason); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.audit.Record(ctx, &hold.JobID, actor.ID, actor.Role, "warranty.freeze", reason, hold.AmountPaise,
		map[string]any{"hold_id": holdID.String()})
	return nil
}

func (s *service) Unfreeze(ctx context.Context, actor authz.Actor, holdID uuid.UUID) error {
	tx, err := s.holds.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	hold, err := s.holds.GetByIDForUpdate(ctx, tx, holdID)
	if err != nil {
		return err
	}
	if err := authz.CanUnfreezeHold(actor, hold); err != nil {
		return err
	}
	if hold.Status != models.HoldStatusFrozen {
		return apperr.Conflictf("hold is not frozen, it is %s", hold.Status)
	}
	if err := s.holds.SetUnfrozen(ctx, tx, holdID); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.audit.Record(ctx, &hold.JobID, actor.ID, actor.Role, "warranty.unfreeze", "complaint resolved", hold.AmountPaise,
		map[string]any{"hold_id": holdID.String()})
	return nil
}

func (s *service) Release(ctx context.Context, actor authz.Actor, holdID uuid.UUID, reason string) error {
	if err := authz.CanCloseHold(actor); err != nil {
		return err
	}
	tx, err := s.holds.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	hold, err := s.holds.GetByIDForUpdate(ctx, tx, holdID)
	if err != nil {
		return err
	}
	// A frozen hold must be explicitly unfrozen before release.
	if hold.Status != models.HoldStatusLocked {
		return apperr.Conflictf("only a locked hold can be released, hold is %s", hold.Status)
	}

	_, _, err = s.ledger.PostDoubleEntry(ctx, tx, hold.JobID,
		ledger.Leg{Account: models.AccountEscrow, AmountPaise: hold.AmountPaise, Category: models.CategoryWarrantyRelease, Description: "warranty hold release"},
		ledger.Leg{Account: models.AccountTechnicianPayable, UserID: &hold.TechnicianID, AmountPaise: hold.AmountPaise, Category: models.CategoryWarrantyRelease, Description: "warranty hold release"},
		actor.ID)
	if err != nil && !apperr.IsKind(err, apperr.DuplicatePosting) {
		return err
	}
	if err := s.holds.SetReleased(ctx, tx, holdID, reason, actor.ID); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	s.notify.Send(ctx, hold.TechnicianID, &hold.JobID, models.NotificationWarrantyReleased,
		"Warranty hold released",
		fmt.Sprintf("₹%d held under warranty has been released to your payable balance.", hold.AmountPaise/100),
		[]string{models.ChannelInApp, models.ChannelWhatsApp})
	s.audit.Record(ctx, &hold.JobID, actor.ID, actor.Role, "warranty.release", reason, hold.AmountPaise,
		map[string]any{"hold_id": holdID.String()})
	return nil
}

func (s *service) Forfeit(ctx context.Context, actor authz.Actor, holdID uuid.UUID, reason string) error {
	if reason == "" {
		return apperr.Validationf("forfeit reason is required")
	}
	if err := authz.CanCloseHold(actor); err != nil {
		return err
	}
	tx, err := s.holds.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	hold, err := s.holds.GetByIDForUpdate(ctx, tx, holdID)
	if err != nil {
		return err
	}
	// Forfeiture is the complaint-upheld outcome, so it is allowed straight
	// from FROZEN as well as from LOCKED.
	if hold.Status.Terminal() {
		return apperr.Conflictf("hold already closed as %s", hold.Status)
	}

	_, _, err = s.ledger.PostDoubleEntry(ctx, tx, hold.JobID,
		ledger.Leg{Account: models.AccountEscrow, AmountPaise: hold.AmountPaise, Category: models.CategoryRefund, Description: "warranty hold forfeited to dealer"},
		ledger.Leg{Account: models.AccountDealerWallet, UserID: &hold.DealerID, AmountPaise: hold.AmountPaise, Category: models.CategoryRefund, Description: "warranty hold forfeited to dealer"},
		actor.ID)
	if err != nil && !apperr.IsKind(err, apperr.DuplicatePosting) {
		return err
	}
	if err := s.holds.SetForfeited(ctx, tx, holdID, reason, actor.ID); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	s.notify.Send(ctx, hold.TechnicianID, &hold.JobID, models.NotificationWarrantyForfeited,
		"Warranty hold forfeited",
		fmt.Sprintf("The ₹%d warranty hold was forfeited: %s", hold.AmountPaise/100, reason),
		[]string{models.ChannelInApp, models.ChannelEmail})
	s.audit.Record(ctx, &hold.JobID, actor.ID, actor.Role, "warranty.forfeit", reason, hold.AmountPaise,
		map[string]any{"hold_id": holdID.String()})
	return nil
}

func (s *service) AutoReleaseExpired(ctx context.Context) (int, error) {
	expired, err := s.holds.ListExpired(ctx, s.now(), 100)
	if err != nil {
		return 0, err
	}
	systemActor := authz.Actor{ID: models.SystemActorID, Role: models.RoleAdmin}
	released := 0
	for _, hold := range expired {
		if err := s.Release(ctx, systemActor, hold.ID, "warranty period elapsed"); err != nil {
			// An admin may have closed or frozen the hold since the list
			// query; skip and keep sweeping.
			s.log.Warn("auto-release skipped", "hold_id", hold.ID, "error", err)
			continue
		}
		released++
	}
	return released, nil
}
