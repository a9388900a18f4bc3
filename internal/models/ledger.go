package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AccountType names a logical ledger account. User-scoped accounts
// (DEALER_WALLET, TECHNICIAN_PAYABLE) carry a user id on each entry; system
// accounts do not. PLATFORM_SETTLEMENT is the contra account for money
// crossing the platform boundary (gateway pay-ins, bank payouts).
type AccountType string

const (
	AccountEscrow             AccountType = "ESCROW"
	AccountDealerWallet       AccountType = "DEALER_WALLET"
	AccountTechnicianPayable  AccountType = "TECHNICIAN_PAYABLE"
	AccountPlatformCommission AccountType = "PLATFORM_COMMISSION"
	AccountPlatformSettlement AccountType = "PLATFORM_SETTLEMENT"
)

type EntryType string

const (
	EntryDebit  EntryType = "DEBIT"
	EntryCredit EntryType = "CREDIT"
)

type EntryCategory string

const (
	CategoryJobPayment          EntryCategory = "JOB_PAYMENT"
	CategoryPaymentRelease      EntryCategory = "PAYMENT_RELEASE"
	CategoryCommission          EntryCategory = "COMMISSION"
	CategoryWarrantyHold        EntryCategory = "WARRANTY_HOLD"
	CategoryWarrantyRelease     EntryCategory = "WARRANTY_RELEASE"
	CategoryRefund              EntryCategory = "REFUND"
	CategoryCancellationPenalty EntryCategory = "CANCELLATION_PENALTY"
	CategoryWithdrawal          EntryCategory = "WITHDRAWAL"
)

// LedgerEntry is one leg of a double-entry posting. Entries are append-only:
// corrections are new offsetting postings, never edits. CounterEntryID links
// the paired opposite leg.
type LedgerEntry struct {
	ID             uuid.UUID       `json:"id"`
	JobID          uuid.UUID       `json:"job_id"`
	AccountType    AccountType     `json:"account_type"`
	UserID         *uuid.UUID      `json:"user_id,omitempty"`
	AmountPaise    int64           `json:"amount_paise"`
	EntryType      EntryType       `json:"entry_type"`
	Category       EntryCategory   `json:"category"`
	Description    string          `json:"description,omitempty"`
	CounterEntryID *uuid.UUID      `json:"counter_entry_id,omitempty"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	CreatedBy      uuid.UUID       `json:"created_by"`
	CreatedAt      time.Time       `json:"created_at"`
}
