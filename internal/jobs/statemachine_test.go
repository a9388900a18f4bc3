package jobs

import (
	"testing"

	"github.com/dgyard/backend/internal/apperr"
	"github.com/dgyard/backend/internal/models"
)

func TestValidateOperation(t *testing.T) {
	cases := []struct {
		status models.JobStatus
		op     models.Operation
		ok     bool
	}{
		{models.JobStatusPending, models.OpBid, true},
		{models.JobStatusOpenForBidding, models.OpBid, true},
		{models.JobStatusNegotiationPending, models.OpBid, true},
		{models.JobStatusAssigned, models.OpBid, false},
		{models.JobStatusCompleted, models.OpBid, false},

		{models.JobStatusPending, models.OpAssign, true},
		{models.JobStatusNegotiationPending, models.OpAssign, true},
		{models.JobStatusInProgress, models.OpAssign, false},

		{models.JobStatusWaitingForPayment, models.OpLockPayment, true},
		{models.JobStatusAssigned, models.OpLockPayment, true},
		{models.JobStatusPending, models.OpLockPayment, false},

		{models.JobStatusAssigned, models.OpStart, true},
		{models.JobStatusWaitingForPayment, models.OpStart, false},

		{models.JobStatusInProgress, models.OpComplete, true},
		{models.JobStatusAssigned, models.OpComplete, false},

		{models.JobStatusCompletionPendingApproval, models.OpApprove, true},
		{models.JobStatusInProgress, models.OpApprove, true},
		{models.JobStatusCompleted, models.OpApprove, false},

		{models.JobStatusInProgress, models.OpCancel, true},
		{models.JobStatusCompletionPendingApproval, models.OpCancel, true},
		{models.JobStatusCompleted, models.OpCancel, false},
		{models.JobStatusCancelled, models.OpCancel, false},
		{models.JobStatusRejected, models.OpCancel, false},
	}
	for _, c := range cases {
		err := ValidateOperation(c.status, c.op)
		if c.ok && err != nil {
			t.Errorf("%s from %s: unexpected error %v", c.op, c.status, err)
		}
		if !c.ok {
			if err == nil {
				t.Errorf("%s from %s: expected rejection", c.op, c.status)
			} else if !apperr.IsKind(err, apperr.StateConflict) {
				t.Errorf("%s from %s: want StateConflict, got %v", c.op, c.status, err)
			}
		}
	}
}

func TestValidateOperation_Unknown(t *testing.T) {
	err := ValidateOperation(models.JobStatusPending, models.Operation("teleport"))
	if !apperr.IsKind(err, apperr.Validation) {
		t.Errorf("unknown operation: want Validation error, got %v", err)
	}
}

func TestValidateTransition(t *testing.T) {
	cases := []struct {
		from, to models.JobStatus
		ok       bool
	}{
		{models.JobStatusPending, models.JobStatusOpenForBidding, true},
		{models.JobStatusPending, models.JobStatusAssigned, true},
		{models.JobStatusPending, models.JobStatusInProgress, false},
		{models.JobStatusNegotiationPending, models.JobStatusAssigned, true},
		{models.JobStatusAssigned, models.JobStatusWaitingForPayment, true},
		{models.JobStatusWaitingForPayment, models.JobStatusAssigned, true},
		{models.JobStatusAssigned, models.JobStatusInProgress, true},
		{models.JobStatusInProgress, models.JobStatusCompletionPendingApproval, true},
		{models.JobStatusCompletionPendingApproval, models.JobStatusCompleted, true},
		{models.JobStatusInProgress, models.JobStatusCompleted, true},
		{models.JobStatusCompleted, models.JobStatusInProgress, false},
		{models.JobStatusCancelled, models.JobStatusPending, false},
		{models.JobStatusRejected, models.JobStatusOpenForBidding, false},
		{models.JobStatusWaitingForPayment, models.JobStatusCompleted, false},
	}
	for _, c := range cases {
		err := ValidateTransition(c.from, c.to)
		if c.ok && err != nil {
			t.Errorf("%s -> %s: unexpected error %v", c.from, c.to, err)
		}
		if !c.ok && err == nil {
			t.Errorf("%s -> %s: expected rejection", c.from, c.to)
		}
	}
}

// Terminal statuses must have no outgoing edges at all.
func TestTerminalStatusesHaveNoEdges(t *testing.T) {
	for _, s := range []models.JobStatus{models.JobStatusCompleted, models.JobStatusCancelled, models.JobStatusRejected} {
		if !s.Terminal() {
			t.Errorf("%s should report Terminal()", s)
		}
		if edges := transitions[s]; len(edges) != 0 {
			t.Errorf("%s has outgoing transitions %v", s, edges)
		}
	}
}

func TestPenaltyTiers(t *testing.T) {
	cases := []struct {
		status  models.JobStatus
		percent int
	}{
		{models.JobStatusPending, 0},
		{models.JobStatusOpenForBidding, 0},
		{models.JobStatusNegotiationPending, 0},
		{models.JobStatusAssigned, 5},
		{models.JobStatusWaitingForPayment, 5},
		{models.JobStatusInProgress, 20},
		{models.JobStatusCompletionPendingApproval, 50},
	}
	for _, c := range cases {
		if got := PenaltyPercent(c.status); got != c.percent {
			t.Errorf("penalty at %s: got %d%%, want %d%%", c.status, got, c.percent)
		}
	}
	// ₹10,000 cancelled in progress costs ₹2,000.
	if got := PenaltyAmount(1_000_000, 20); got != 200_000 {
		t.Errorf("penalty amount: got %d, want 200000", got)
	}
	// Truncation, not rounding.
	if got := PenaltyAmount(999, 5); got != 49 {
		t.Errorf("penalty amount: got %d, want 49", got)
	}
}
