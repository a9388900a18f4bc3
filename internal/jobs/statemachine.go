package jobs

import (
	"github.com/dgyard/backend/internal/apperr"
	"github.com/dgyard/backend/internal/models"
)

// The state machine is two data-driven tables. Callers apply both gates
// independently before any mutation: ValidateOperation (may this operation
// run from the current status) and ValidateTransition (is the target status
// reachable from the source). An operation can pass one gate and fail the
// other, and the two produce distinct errors.

var operationStatuses = map[models.Operation][]models.JobStatus{
	models.OpBid: {
		models.JobStatusPending,
		models.JobStatusOpenForBidding,
		models.JobStatusNegotiationPending,
	},
	models.OpAssign: {
		models.JobStatusPending,
		models.JobStatusNegotiationPending,
	},
	models.OpLockPayment: {
		models.JobStatusWaitingForPayment,
		models.JobStatusAssigned,
	},
	models.OpStart: {
		models.JobStatusAssigned,
	},
	models.OpComplete: {
		models.JobStatusInProgress,
	},
	models.OpApprove: {
		models.JobStatusCompletionPendingApproval,
		models.JobStatusInProgress,
	},
	models.OpCancel: {
		models.JobStatusPending,
		models.JobStatusOpenForBidding,
		models.JobStatusNegotiationPending,
		models.JobStatusAssigned,
		models.JobStatusWaitingForPayment,
		models.JobStatusInProgress,
		models.JobStatusCompletionPendingApproval,
	},
}

var transitions = map[models.JobStatus][]models.JobStatus{
	models.JobStatusPending: {
		models.JobStatusOpenForBidding,
		models.JobStatusNegotiationPending,
		models.JobStatusAssigned,
		models.JobStatusCancelled,
		models.JobStatusRejected,
	},
	models.JobStatusOpenForBidding: {
		models.JobStatusNegotiationPending,
		models.JobStatusCancelled,
		models.JobStatusRejected,
	},
	models.JobStatusNegotiationPending: {
		models.JobStatusAssigned,
		models.JobStatusCancelled,
		models.JobStatusRejected,
	},
	models.JobStatusAssigned: {
		models.JobStatusWaitingForPayment,
		models.JobStatusInProgress,
		models.JobStatusCancelled,
		models.JobStatusRejected,
	},
	models.JobStatusWaitingForPayment: {
		models.JobStatusAssigned,
		models.JobStatusCancelled,
		models.JobStatusRejected,
	},
	models.JobStatusInProgress: {
		models.JobStatusCompletionPendingApproval,
		models.JobStatusCompleted,
		models.JobStatusCancelled,
	},
	models.JobStatusCompletionPendingApproval: {
		models.JobStatusCompleted,
		models.JobStatusCancelled,
	},
	// COMPLETED, CANCELLED, REJECTED: terminal, no outgoing edges.
}

// ValidateOperation checks the operation's status whitelist.
func ValidateOperation(current models.JobStatus, op models.Operation) error {
	allowed, ok := operationStatuses[op]
	if !ok {
		return apperr.Validationf("unknown operation %q", op)
	}
	for _, s := range allowed {
		if s == current {
			return nil
		}
	}
	return apperr.Conflictf("operation %s not allowed while job is %s", op, current)
}

// ValidateTransition checks the target status is reachable from the source.
func ValidateTransition(from, to models.JobStatus) error {
	for _, s := range transitions[from] {
		if s == to {
			return nil
		}
	}
	return apperr.Conflictf("illegal status transition %s -> %s", from, to)
}
