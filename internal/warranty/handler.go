package warranty

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/dgyard/backend/internal/apperr"
	"github.com/dgyard/backend/internal/authz"
	"github.com/dgyard/backend/internal/httpx"
	"github.com/dgyard/backend/internal/middleware"
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

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	_, holdID, err := actorAndID(r)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	hold, err := h.svc.Get(r.Context(), holdID)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, hold)
}

func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		httpx.WriteError(w, h.log, apperr.Authorizationf("unauthenticated"))
		return
	}
	holds, err := h.svc.ListByTechnician(r.Context(), actor.ID)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, holds)
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) Freeze(w http.ResponseWriter, r *http.Request) {
	h.withReason(w, r, h.svc.Freeze)
}

func (h *Handler) Unfreeze(w http.ResponseWriter, r *http.Request) {
	actor, holdID, err := actorAndID(r)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	if err := h.svc.Unfreeze(r.Context(), actor, holdID); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	h.respondWithHold(w, r, holdID)
}

func (h *Handler) Release(w http.ResponseWriter, r *http.Request) {
	h.withReason(w, r, h.svc.Release)
}

func (h *Handler) Forfeit(w http.ResponseWriter, r *http.Request) {
	h.withReason(w, r, h.svc.Forfeit)
}

func (h *Handler) withReason(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, actor authz.Actor, holdID uuid.UUID, reason string) error) {
	actor, holdID, err := actorAndID(r)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	var req reasonRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	if err := fn(r.Context(), actor, holdID, req.Reason); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	h.respondWithHold(w, r, holdID)
}

func (h *Handler) respondWithHold(w http.ResponseWriter, r *http.Request, holdID uuid.UUID) {
	hold, err := h.svc.Get(r.Context(), holdID)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, hold)
}

func actorAndID(r *http.Request) (authz.Actor, uuid.UUID, error) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		return authz.Actor{}, uuid.Nil, apperr.Authorizationf("unauthenticated")
	}
	holdID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return authz.Actor{}, uuid.Nil, apperr.Validationf("invalid hold id")
	}
	return actor, holdID, nil
}
