package withdrawals

import (
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

type RequestWithdrawalRequest struct {
	JobID       uuid.UUID          `json:"job_id"`
	AmountPaise int64              `json:"amount_paise"`
	Bank        models.BankDetails `json:"bank"`
}

func (h *Handler) Request(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		httpx.WriteError(w, h.log, apperr.Authorizationf("unauthenticated"))
		return
	}
	var req RequestWithdrawalRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	wd, err := h.svc.Request(r.Context(), actor, req.JobID, req.AmountPaise, req.Bank)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, wd)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	actor, id, err := actorAndID(r)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	wd, err := h.svc.Get(r.Context(), actor, id)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, wd)
}

func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		httpx.WriteError(w, h.log, apperr.Authorizationf("unauthenticated"))
		return
	}
	list, err := h.svc.ListMine(r.Context(), actor)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		httpx.WriteError(w, h.log, apperr.Authorizationf("unauthenticated"))
		return
	}
	list, err := h.svc.ListPending(r.Context(), actor)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	actor, id, err := actorAndID(r)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	if err := h.svc.Approve(r.Context(), actor, id); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	h.respondWith(w, r, actor, id)
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	actor, id, err := actorAndID(r)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	var req reasonRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	if err := h.svc.Reject(r.Context(), actor, id, req.Reason); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	h.respondWith(w, r, actor, id)
}

type ProcessRequest struct {
	TransactionRef string `json:"transaction_ref"`
}

func (h *Handler) Process(w http.ResponseWriter, r *http.Request) {
	actor, id, err := actorAndID(r)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	var req ProcessRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	if err := h.svc.Process(r.Context(), actor, id, req.TransactionRef); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	h.respondWith(w, r, actor, id)
}

func (h *Handler) MarkFailed(w http.ResponseWriter, r *http.Request) {
	actor, id, err := actorAndID(r)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	var req reasonRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	if err := h.svc.MarkFailed(r.Context(), actor, id, req.Reason); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	h.respondWith(w, r, actor, id)
}

func (h *Handler) respondWith(w http.ResponseWriter, r *http.Request, actor authz.Actor, id uuid.UUID) {
	wd, err := h.svc.Get(r.Context(), actor, id)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, wd)
}

func actorAndID(r *http.Request) (authz.Actor, uuid.UUID, error) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		return authz.Actor{}, uuid.Nil, apperr.Authorizationf("unauthenticated")
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return authz.Actor{}, uuid.Nil, apperr.Validationf("invalid withdrawal id")
	}
	return actor, id, nil
}
