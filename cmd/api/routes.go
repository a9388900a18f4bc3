package main

import (
	"net/http"

	"github.com/dgyard/backend/internal/auth"
	"github.com/dgyard/backend/internal/bidding"
	"github.com/dgyard/backend/internal/dashboard"
	"github.com/dgyard/backend/internal/jobs"
	"github.com/dgyard/backend/internal/middleware"
	"github.com/dgyard/backend/internal/models"
	"github.com/dgyard/backend/internal/warranty"
	"github.com/dgyard/backend/internal/withdrawals"
)

// registerRoutes wires the /v1/ API. Middleware chain: JWTAuth -> (RequireRole
// where the route is role-bound) -> handler. Ownership checks live in the
// services, not here.
func registerRoutes(
	mux *http.ServeMux,
	authSvc auth.Service,
	authHandler *auth.Handler,
	jobsHandler *jobs.Handler,
	bidsHandler *bidding.Handler,
	warrantyHandler *warranty.Handler,
	withdrawalsHandler *withdrawals.Handler,
	dashHandler *dashboard.Handler,
) {
	mux.HandleFunc("POST /v1/auth/register", authHandler.Register)
	mux.HandleFunc("POST /v1/auth/login", authHandler.Login)

	authed := middleware.JWTAuth(authSvc)
	dealer := middleware.RequireRole(models.RoleDealer)
	technician := middleware.RequireRole(models.RoleTechnician)
	// RequireRole with no roles passes admins only.
	admin := middleware.RequireRole()

	// Jobs
	mux.Handle("POST /v1/jobs", authed(dealer(http.HandlerFunc(jobsHandler.Create))))
	mux.Handle("GET /v1/jobs", authed(http.HandlerFunc(jobsHandler.ListMine)))
	mux.Handle("GET /v1/jobs/{id}", authed(http.HandlerFunc(jobsHandler.Get)))
	mux.Handle("POST /v1/jobs/{id}/assign", authed(http.HandlerFunc(jobsHandler.Assign)))
	mux.Handle("POST /v1/jobs/{id}/lock-payment", authed(http.HandlerFunc(jobsHandler.LockPayment)))
	mux.Handle("POST /v1/jobs/{id}/start", authed(http.HandlerFunc(jobsHandler.Start)))
	mux.Handle("POST /v1/jobs/{id}/complete", authed(http.HandlerFunc(jobsHandler.Complete)))
	mux.Handle("POST /v1/jobs/{id}/approve", authed(http.HandlerFunc(jobsHandler.Approve)))
	mux.Handle("POST /v1/jobs/{id}/cancel", authed(http.HandlerFunc(jobsHandler.Cancel)))

	// Bidding
	mux.Handle("POST /v1/jobs/{id}/bids", authed(technician(http.HandlerFunc(bidsHandler.PlaceBid))))
	mux.Handle("GET /v1/jobs/{id}/bids", authed(http.HandlerFunc(bidsHandler.ListForJob)))
	mux.Handle("POST /v1/jobs/{id}/bids/{bidID}/counter", authed(http.HandlerFunc(bidsHandler.CounterOffer)))

	// Warranty holds
	mux.Handle("GET /v1/warranty-holds", authed(technician(http.HandlerFunc(warrantyHandler.ListMine))))
	mux.Handle("GET /v1/warranty-holds/{id}", authed(http.HandlerFunc(warrantyHandler.Get)))
	mux.Handle("POST /v1/warranty-holds/{id}/freeze", authed(http.HandlerFunc(warrantyHandler.Freeze)))
	mux.Handle("POST /v1/warranty-holds/{id}/unfreeze", authed(http.HandlerFunc(warrantyHandler.Unfreeze)))
	mux.Handle("POST /v1/warranty-holds/{id}/release", authed(admin(http.HandlerFunc(warrantyHandler.Release))))
	mux.Handle("POST /v1/warranty-holds/{id}/forfeit", authed(admin(http.HandlerFunc(warrantyHandler.Forfeit))))

	// Withdrawals
	mux.Handle("POST /v1/withdrawals", authed(technician(http.HandlerFunc(withdrawalsHandler.Request))))
	mux.Handle("GET /v1/withdrawals", authed(http.HandlerFunc(withdrawalsHandler.ListMine)))
	mux.Handle("GET /v1/withdrawals/pending", authed(admin(http.HandlerFunc(withdrawalsHandler.ListPending))))
	mux.Handle("GET /v1/withdrawals/{id}", authed(http.HandlerFunc(withdrawalsHandler.Get)))
	mux.Handle("POST /v1/withdrawals/{id}/approve", authed(admin(http.HandlerFunc(withdrawalsHandler.Approve))))
	mux.Handle("POST /v1/withdrawals/{id}/reject", authed(admin(http.HandlerFunc(withdrawalsHandler.Reject))))
	mux.Handle("POST /v1/withdrawals/{id}/process", authed(admin(http.HandlerFunc(withdrawalsHandler.Process))))
	mux.Handle("POST /v1/withdrawals/{id}/fail", authed(admin(http.HandlerFunc(withdrawalsHandler.MarkFailed))))

	// Dashboard
	mux.Handle("GET /v1/me", authed(http.HandlerFunc(dashHandler.Me)))
	mux.Handle("GET /v1/me/balance", authed(http.HandlerFunc(dashHandler.Balance)))
	mux.Handle("GET /v1/me/ledger", authed(http.HandlerFunc(dashHandler.Statement)))
	mux.Handle("GET /v1/jobs/{id}/ledger", authed(admin(http.HandlerFunc(dashHandler.JobLedger))))
	mux.Handle("GET /v1/jobs/{id}/audit", authed(admin(http.HandlerFunc(dashHandler.JobAudit))))
	mux.Handle("GET /v1/me/notifications", authed(http.HandlerFunc(dashHandler.Notifications)))
	mux.Handle("POST /v1/notifications/{id}/read", authed(http.HandlerFunc(dashHandler.MarkNotificationRead)))
}
