package models

import (
	"time"

	"github.com/google/uuid"
)

type WithdrawalStatus string

const (
	WithdrawalStatusPending    WithdrawalStatus = "PENDING"
	WithdrawalStatusApproved   WithdrawalStatus = "APPROVED"
	WithdrawalStatusRejected   WithdrawalStatus = "REJECTED"
	WithdrawalStatusProcessing WithdrawalStatus = "PROCESSING"
	WithdrawalStatusCompleted  WithdrawalStatus = "COMPLETED"
	WithdrawalStatusFailed     WithdrawalStatus = "FAILED"
)

// Terminal reports whether the withdrawal can no longer change state.
func (s WithdrawalStatus) Terminal() bool {
	return s == WithdrawalStatusCompleted || s == WithdrawalStatusRejected || s == WithdrawalStatusFailed
}

// BankDetails is the payout destination snapshot taken at request time.
type BankDetails struct {
	AccountHolder string `json:"account_holder"`
	AccountNumber string `json:"account_number"`
	IFSC          string `json:"ifsc"`
	BankName      string `json:"bank_name,omitempty"`
}

// Withdrawal is a technician payout request against their available (non-held)
// payable balance.
type Withdrawal struct {
	ID           uuid.UUID        `json:"id"`
	TechnicianID uuid.UUID        `json:"technician_id"`
	JobID        uuid.UUID        `json:"job_id"`
	AmountPaise  int64            `json:"amount_paise"`
	Bank         BankDetails      `json:"bank"`
	Status       WithdrawalStatus `json:"status"`

	ApprovedByID    *uuid.UUID `json:"approved_by_id,omitempty"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	RejectionReason *string    `json:"rejection_reason,omitempty"`
	ProcessedByID   *uuid.UUID `json:"processed_by_id,omitempty"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	TransactionRef  *string    `json:"transaction_ref,omitempty"`
	FailureReason   *string    `json:"failure_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
