package bidding

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/dgyard/backend/internal/apperr"
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

type PlaceBidRequest struct {
	AmountPaise      int64    `json:"amount_paise"`
	IsCounterOffer   bool     `json:"is_counter_offer"`
	DistanceKM       *float64 `json:"distance_km,omitempty"`
	TechnicianRating *float64 `json:"technician_rating,omitempty"`
}

// PlaceBid handles POST /v1/jobs/{id}/bids.
func (h *Handler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		httpx.WriteError(w, h.log, apperr.Authorizationf("unauthenticated"))
		return
	}
	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, h.log, apperr.Validationf("invalid job id"))
		return
	}
	var req PlaceBidRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	bid, err := h.svc.CreateBid(r.Context(), actor, jobID, req.AmountPaise, req.IsCounterOffer,
		Snapshot{DistanceKM: req.DistanceKM, TechnicianRating: req.TechnicianRating})
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, bid)
}

type CounterOfferRequest struct {
	AmountPaise int64 `json:"amount_paise"`
}

// CounterOffer handles POST /v1/jobs/{id}/bids/{bidID}/counter.
func (h *Handler) CounterOffer(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		httpx.WriteError(w, h.log, apperr.Authorizationf("unauthenticated"))
		return
	}
	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, h.log, apperr.Validationf("invalid job id"))
		return
	}
	bidID, err := uuid.Parse(r.PathValue("bidID"))
	if err != nil {
		httpx.WriteError(w, h.log, apperr.Validationf("invalid bid id"))
		return
	}
	var req CounterOfferRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	counter, err := h.svc.CounterOffer(r.Context(), actor, jobID, bidID, req.AmountPaise)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, counter)
}

// ListForJob handles GET /v1/jobs/{id}/bids.
func (h *Handler) ListForJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, h.log, apperr.Validationf("invalid job id"))
		return
	}
	bids, err := h.svc.ListByJob(r.Context(), jobID)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, bids)
}
