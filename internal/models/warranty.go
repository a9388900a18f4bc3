package models

import (
	"time"

	"github.com/google/uuid"
)

type HoldStatus string

const (
	HoldStatusLocked    HoldStatus = "LOCKED"
	HoldStatusFrozen    HoldStatus = "FROZEN"
	HoldStatusReleased  HoldStatus = "RELEASED"
	HoldStatusForfeited HoldStatus = "FORFEITED"
)

// Terminal reports whether the hold can no longer change state.
func (s HoldStatus) Terminal() bool {
	return s == HoldStatusReleased || s == HoldStatusForfeited
}

// Defaults applied when the payment split is not given explicit values.
const (
	DefaultHoldPercent  = 20
	DefaultWarrantyDays = 10
)

// WarrantyHold is the retained portion of a job payment pending the warranty
// window. Created at payment-split time with status LOCKED; a complaint
// freezes it, resolution unfreezes it, and an admin (or the auto-release
// sweep once EndDate passes) closes it terminally.
type WarrantyHold struct {
	ID           uuid.UUID  `json:"id"`
	JobID        uuid.UUID  `json:"job_id"`
	TechnicianID uuid.UUID  `json:"technician_id"`
	DealerID     uuid.UUID  `json:"dealer_id"`
	AmountPaise  int64      `json:"amount_paise"`
	HoldPercent  int        `json:"hold_percent"`
	WarrantyDays int        `json:"warranty_days"`
	Status       HoldStatus `json:"status"`
	StartDate    time.Time  `json:"start_date"`
	EndDate      time.Time  `json:"end_date"`

	IsFrozen     bool       `json:"is_frozen"`
	FreezeReason *string    `json:"freeze_reason,omitempty"`
	FrozenAt     *time.Time `json:"frozen_at,omitempty"`

	ReleaseReason *string    `json:"release_reason,omitempty"`
	ReleasedAt    *time.Time `json:"released_at,omitempty"`
	ForfeitReason *string    `json:"forfeit_reason,omitempty"`
	ForfeitedAt   *time.Time `json:"forfeited_at,omitempty"`
	ClosedByID    *uuid.UUID `json:"closed_by_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Expired reports whether the hold is past its effective end date
// (StartDate + WarrantyDays) and still LOCKED, making it eligible for
// auto-release by the background sweep.
func (h *WarrantyHold) Expired(now time.Time) bool {
	return h.Status == HoldStatusLocked && now.After(h.EndDate)
}
