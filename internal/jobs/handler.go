package jobs

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/dgyard/backend/internal/apperr"
	"github.com/dgyard/backend/internal/authz"
	"github.com/dgyard/backend/internal/httpx"
	"github.com/dgyard/backend/internal/middleware"
	"github.com/dgyard/backend/internal/models"
)

type Handler struct {
	svc Service
	log *slog.Logger
}

func NewHandler(svc Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

type CreateJobRequest struct {
	Title              string `json:"title"`
	Description        string `json:"description"`
	EstimatedCostPaise int64  `json:"estimated_cost_paise"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		httpx.WriteError(w, h.log, apperr.Authorizationf("unauthenticated"))
		return
	}
	var req CreateJobRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	job, err := h.svc.Create(r.Context(), actor, req.Title, req.Description, req.EstimatedCostPaise)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, job)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	jobID, err := pathID(r)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	job, err := h.svc.Get(r.Context(), jobID)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, job)
}

// ListMine returns the caller's jobs: posted jobs for dealers, assigned jobs
// for technicians.
func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		httpx.WriteError(w, h.log, apperr.Authorizationf("unauthenticated"))
		return
	}
	var (
		list []*models.JobPost
		err  error
	)
	if actor.Role == models.RoleTechnician {
		list, err = h.svc.ListByTechnician(r.Context(), actor.ID)
	} else {
		list, err = h.svc.ListByDealer(r.Context(), actor.ID)
	}
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}

type AssignRequest struct {
	BidID uuid.UUID `json:"bid_id"`
}

func (h *Handler) Assign(w http.ResponseWriter, r *http.Request) {
	actor, jobID, err := actorAndID(r)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	var req AssignRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	job, err := h.svc.Assign(r.Context(), actor, jobID, req.BidID)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, job)
}

func (h *Handler) LockPayment(w http.ResponseWriter, r *http.Request) {
	actor, jobID, err := actorAndID(r)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	res, err := h.svc.LockPayment(r.Context(), actor, jobID)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"amount_paise":      res.AmountPaise,
		"already_processed": res.AlreadyProcessed,
	})
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	h.simpleTransition(w, r, h.svc.Start)
}

func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	h.simpleTransition(w, r, h.svc.Complete)
}

type ApproveRequest struct {
	// TotalAmountPaise overrides the stored job price, for jobs whose final
	// amount was renegotiated off-platform before approval.
	TotalAmountPaise int64 `json:"total_amount_paise,omitempty"`
	HoldPercent      *int  `json:"hold_percent,omitempty"`
	WarrantyDays     *int  `json:"warranty_days,omitempty"`
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	actor, jobID, err := actorAndID(r)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	var req ApproveRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	outcome, err := h.svc.Approve(r.Context(), actor, jobID, SplitRequest{
		TotalPaise:   req.TotalAmountPaise,
		HoldPercent:  req.HoldPercent,
		WarrantyDays: req.WarrantyDays,
		Actor:        actor,
	})
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"total_paise":      outcome.TotalPaise,
		"immediate_paise":  outcome.ImmediatePaise,
		"commission_paise": outcome.CommissionPaise,
		"held_paise":       outcome.HeldPaise,
		"warranty_hold_id": outcome.WarrantyHoldID,
		"warranty_end":     outcome.WarrantyEnd,
	})
}

type CancelRequest struct {
	Reason       string `json:"reason"`
	PenaltyPaise *int64 `json:"penalty_paise,omitempty"`
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	actor, jobID, err := actorAndID(r)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	var req CancelRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	res, err := h.svc.Cancel(r.Context(), actor, jobID, req.Reason, req.PenaltyPaise)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"penalty_paise": res.PenaltyPaise,
		"refund_paise":  res.RefundPaise,
	})
}

func (h *Handler) simpleTransition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, actor authz.Actor, jobID uuid.UUID) error) {
	actor, jobID, err := actorAndID(r)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	if err := fn(r.Context(), actor, jobID); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	job, err := h.svc.Get(r.Context(), jobID)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, job)
}

func actorAndID(r *http.Request) (authz.Actor, uuid.UUID, error) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		return authz.Actor{}, uuid.Nil, apperr.Authorizationf("unauthenticated")
	}
	jobID, err := pathID(r)
	if err != nil {
		return authz.Actor{}, uuid.Nil, err
	}
	return actor, jobID, nil
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, apperr.Validationf("invalid id in path")
	}
	return id, nil
}
