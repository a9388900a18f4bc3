// Package dashboard is the read side: profile, balances derived from the
// ledger, statements, and the notification inbox.
package dashboard

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/dgyard/backend/internal/apperr"
	"github.com/dgyard/backend/internal/audit"
	"github.com/dgyard/backend/internal/httpx"
	"github.com/dgyard/backend/internal/ledger"
	"github.com/dgyard/backend/internal/middleware"
	"github.com/dgyard/backend/internal/models"
)

type userStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetTechnicianProfile(ctx context.Context, userID uuid.UUID) (*models.TechnicianProfile, error)
	GetDealerProfile(ctx context.Context, userID uuid.UUID) (*models.DealerProfile, error)
}

type holdLister interface {
	ListByTechnician(ctx context.Context, technicianID uuid.UUID) ([]*models.WarrantyHold, error)
}

type inbox interface {
	ListForUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]*models.Notification, error)
	MarkRead(ctx context.Context, userID, id uuid.UUID) error
}

type auditTrail interface {
	ListByJob(ctx context.Context, jobID uuid.UUID) ([]*audit.Entry, error)
}

type Handler struct {
	users  userStore
	ledger ledger.Service
	holds  holdLister
	inbox  inbox
	trail  auditTrail
	log    *slog.Logger
}

func NewHandler(users userStore, ledgerSvc ledger.Service, holds holdLister, inbox inbox, trail auditTrail, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{users: users, ledger: ledgerSvc, holds: holds, inbox: inbox, trail: trail, log: log}
}

type MeResponse struct {
	User       *models.User              `json:"user"`
	Technician *models.TechnicianProfile `json:"technician_profile,omitempty"`
	Dealer     *models.DealerProfile     `json:"dealer_profile,omitempty"`
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		httpx.WriteError(w, h.log, apperr.Authorizationf("unauthenticated"))
		return
	}
	u, err := h.users.GetByID(r.Context(), actor.ID)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	resp := MeResponse{User: u}
	switch u.Role {
	case models.RoleTechnician:
		if p, err := h.users.GetTechnicianProfile(r.Context(), actor.ID); err == nil {
			resp.Technician = p
		}
	case models.RoleDealer:
		if p, err := h.users.GetDealerProfile(r.Context(), actor.ID); err == nil {
			resp.Dealer = p
		}
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

type BalanceResponse struct {
	PayablePaise      int64 `json:"payable_paise"`
	HeldPaise         int64 `json:"held_paise"`
	WithdrawablePaise int64 `json:"withdrawable_paise"`
	WalletPaise       int64 `json:"wallet_paise"`
}

// Balance derives the caller's money position from the ledger. Payable and
// withdrawable cover technicians; wallet covers dealers.
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		httpx.WriteError(w, h.log, apperr.Authorizationf("unauthenticated"))
		return
	}
	var resp BalanceResponse
	var err error
	resp.PayablePaise, err = h.ledger.AccountBalance(r.Context(), nil, &actor.ID, models.AccountTechnicianPayable)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	resp.WalletPaise, err = h.ledger.AccountBalance(r.Context(), nil, &actor.ID, models.AccountDealerWallet)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	holds, err := h.holds.ListByTechnician(r.Context(), actor.ID)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	for _, hold := range holds {
		if !hold.Status.Terminal() {
			resp.HeldPaise += hold.AmountPaise
		}
	}
	resp.WithdrawablePaise = resp.PayablePaise
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// Statement returns the caller's ledger entries, newest first.
func (h *Handler) Statement(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		httpx.WriteError(w, h.log, apperr.Authorizationf("unauthenticated"))
		return
	}
	entries, err := h.ledger.EntriesForUser(r.Context(), actor.ID)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, entries)
}

// JobLedger returns all postings for a job. Admin-only route.
func (h *Handler) JobLedger(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, h.log, apperr.Validationf("invalid job id"))
		return
	}
	entries, err := h.ledger.EntriesForJob(r.Context(), jobID)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, entries)
}

// JobAudit returns the compliance trail for a job, oldest first. Admin-only
// route.
func (h *Handler) JobAudit(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, h.log, apperr.Validationf("invalid job id"))
		return
	}
	entries, err := h.trail.ListByJob(r.Context(), jobID)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, entries)
}

func (h *Handler) Notifications(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		httpx.WriteError(w, h.log, apperr.Authorizationf("unauthenticated"))
		return
	}
	unreadOnly := r.URL.Query().Get("unread") == "true"
	list, err := h.inbox.ListForUser(r.Context(), actor.ID, unreadOnly, 0)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		httpx.WriteError(w, h.log, apperr.Authorizationf("unauthenticated"))
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, h.log, apperr.Validationf("invalid notification id"))
		return
	}
	if err := h.inbox.MarkRead(r.Context(), actor.ID, id); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
