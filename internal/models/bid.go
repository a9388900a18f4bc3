package models

import (
	"time"

	"github.com/google/uuid"
)

type BidStatus string

const (
	BidStatusPending   BidStatus = "PENDING"
	BidStatusCountered BidStatus = "COUNTERED"
	BidStatusAccepted  BidStatus = "ACCEPTED"
	BidStatusRejected  BidStatus = "REJECTED"
	BidStatusExpired   BidStatus = "EXPIRED"
)

// BidExpiry is how long a new bid or counter-offer stays actionable.
const BidExpiry = 5 * time.Minute

// MaxNegotiationRounds caps bid/counter exchanges per job.
const MaxNegotiationRounds = 2

// JobBid is a technician price offer on a job, or a dealer counter-offer.
// Superseded bids move to COUNTERED and are kept; bids are never deleted.
type JobBid struct {
	ID             uuid.UUID  `json:"id"`
	JobID          uuid.UUID  `json:"job_id"`
	TechnicianID   uuid.UUID  `json:"technician_id"`
	AmountPaise    int64      `json:"amount_paise"`
	Status         BidStatus  `json:"status"`
	IsCounterOffer bool       `json:"is_counter_offer"`
	Round          int        `json:"round"`
	PreviousBidID  *uuid.UUID `json:"previous_bid_id,omitempty"`
	ExpiresAt      time.Time  `json:"expires_at"`

	// Snapshots taken at bid time; counter-offers copy them from the
	// original rather than recomputing.
	DistanceKM       *float64 `json:"distance_km,omitempty"`
	TechnicianRating *float64 `json:"technician_rating,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Stale reports whether the bid is past its expiry. Expiry is advisory: the
// background sweep marks stale bids EXPIRED, but readers must treat a bid
// past ExpiresAt as dead even before the sweep runs.
func (b *JobBid) Stale(now time.Time) bool {
	return now.After(b.ExpiresAt)
}
