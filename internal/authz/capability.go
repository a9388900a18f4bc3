// Package authz centralizes the permission matrix for job lifecycle
// operations. Role checks live in one table here instead of inline role
// comparisons scattered through handlers and services.
package authz

import (
	"github.com/google/uuid"

	"github.com/dgyard/backend/internal/apperr"
	"github.com/dgyard/backend/internal/models"
)

// Actor is the authenticated identity supplied by the auth collaborator.
// The core trusts it for permission checks.
type Actor struct {
	ID   uuid.UUID
	Role models.Role
}

func (a Actor) IsAdmin() bool { return a.Role == models.RoleAdmin }

// capabilities lists which roles may trigger each job operation at all.
// Ownership is checked separately by CanPerform.
var capabilities = map[models.Operation]map[models.Role]bool{
	models.OpBid:         {models.RoleTechnician: true},
	models.OpAssign:      {models.RoleDealer: true, models.RoleAdmin: true},
	models.OpLockPayment: {models.RoleDealer: true, models.RoleAdmin: true},
	models.OpStart:       {models.RoleTechnician: true},
	models.OpComplete:    {models.RoleTechnician: true},
	models.OpApprove:     {models.RoleDealer: true, models.RoleAdmin: true},
	models.OpCancel:      {models.RoleDealer: true, models.RoleTechnician: true, models.RoleAdmin: true},
}

// CanPerform checks the capability table and, for non-admin actors, that the
// actor is the relevant party on the job: dealers must own it, technicians
// must be assigned to it (except when bidding).
func CanPerform(actor Actor, op models.Operation, job *models.JobPost) error {
	allowed, ok := capabilities[op]
	if !ok {
		return apperr.Validationf("unknown operation %q", op)
	}
	if !allowed[actor.Role] {
		return apperr.Authorizationf("role %s may not perform %s", actor.Role, op)
	}
	if actor.IsAdmin() {
		return nil
	}
	switch actor.Role {
	case models.RoleDealer:
		if job.DealerID != actor.ID {
			return apperr.Authorizationf("not the dealer for job %s", job.JobNumber)
		}
	case models.RoleTechnician:
		if op == models.OpBid {
			return nil
		}
		if job.AssignedTechnicianID == nil || *job.AssignedTechnicianID != actor.ID {
			return apperr.Authorizationf("not the assigned technician for job %s", job.JobNumber)
		}
	}
	return nil
}

// CanFreezeHold: any party to the hold, or an admin.
func CanFreezeHold(actor Actor, hold *models.WarrantyHold) error {
	if actor.IsAdmin() || actor.ID == hold.DealerID || actor.ID == hold.TechnicianID {
		return nil
	}
	return apperr.Authorizationf("role %s may not freeze this hold", actor.Role)
}

// CanUnfreezeHold: admin or the hold's technician.
func CanUnfreezeHold(actor Actor, hold *models.WarrantyHold) error {
	if actor.IsAdmin() || actor.ID == hold.TechnicianID {
		return nil
	}
	return apperr.Authorizationf("role %s may not unfreeze this hold", actor.Role)
}

// CanCloseHold gates release and forfeiture: admin only. The auto-release
// sweep acts as the system actor, which is admin-equivalent.
func CanCloseHold(actor Actor) error {
	if actor.IsAdmin() || actor.ID == models.SystemActorID {
		return nil
	}
	return apperr.Authorizationf("only admin may release or forfeit a hold")
}

// CanManageWithdrawal gates approve/reject/process: admin only.
func CanManageWithdrawal(actor Actor) error {
	if actor.IsAdmin() {
		return nil
	}
	return apperr.Authorizationf("only admin may manage withdrawals")
}
