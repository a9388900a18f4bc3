package models

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending                   JobStatus = "PENDING"
	JobStatusOpenForBidding            JobStatus = "OPEN_FOR_BIDDING"
	JobStatusNegotiationPending        JobStatus = "NEGOTIATION_PENDING"
	JobStatusAssigned                  JobStatus = "ASSIGNED"
	JobStatusWaitingForPayment         JobStatus = "WAITING_FOR_PAYMENT"
	JobStatusInProgress                JobStatus = "IN_PROGRESS"
	JobStatusCompletionPendingApproval JobStatus = "COMPLETION_PENDING_APPROVAL"
	JobStatusCompleted                 JobStatus = "COMPLETED"
	JobStatusCancelled                 JobStatus = "CANCELLED"
	JobStatusRejected                  JobStatus = "REJECTED"
)

// Terminal reports whether no further lifecycle operation may run on a job
// in this status.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusCancelled || s == JobStatusRejected
}

// Operation is an externally-triggered job lifecycle mutation. Every
// operation is gated twice before any write: by the capability matrix
// (who may do it) and by the state machine (which statuses it may run from).
type Operation string

const (
	OpBid         Operation = "bid"
	OpAssign      Operation = "assign"
	OpLockPayment Operation = "lock_payment"
	OpStart       Operation = "start"
	OpComplete    Operation = "complete"
	OpApprove     Operation = "approve"
	OpCancel      Operation = "cancel"
)

// JobPost is a unit of field-service work posted by a dealer. Cancelled jobs
// are retained for audit, never hard-deleted.
type JobPost struct {
	ID                   uuid.UUID  `json:"id"`
	JobNumber            string     `json:"job_number"`
	Status               JobStatus  `json:"status"`
	DealerID             uuid.UUID  `json:"dealer_id"`
	AssignedTechnicianID *uuid.UUID `json:"assigned_technician_id,omitempty"`
	Title                string     `json:"title"`
	Description          string     `json:"description,omitempty"`
	EstimatedCostPaise   int64      `json:"estimated_cost_paise"`
	FinalPricePaise      *int64     `json:"final_price_paise,omitempty"`
	NegotiationRounds    int        `json:"negotiation_rounds"`
	WarrantyStartDate    *time.Time `json:"warranty_start_date,omitempty"`

	CancellationReason      *string    `json:"cancellation_reason,omitempty"`
	CancellationPenaltyPaise *int64    `json:"cancellation_penalty_paise,omitempty"`
	CancelledByID           *uuid.UUID `json:"cancelled_by_id,omitempty"`
	CancelledByRole         *Role      `json:"cancelled_by_role,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

// TotalAmountPaise is the job's effective price: final price when agreed,
// else the dealer's estimate.
func (j *JobPost) TotalAmountPaise() int64 {
	if j.FinalPricePaise != nil && *j.FinalPricePaise > 0 {
		return *j.FinalPricePaise
	}
	return j.EstimatedCostPaise
}
