package models

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationBidReceived       NotificationType = "BID_RECEIVED"
	NotificationCounterOffer      NotificationType = "COUNTER_OFFER"
	NotificationJobAssigned       NotificationType = "JOB_ASSIGNED"
	NotificationPaymentLocked     NotificationType = "PAYMENT_LOCKED"
	NotificationPaymentSplit      NotificationType = "PAYMENT_SPLIT"
	NotificationWarrantyReleased  NotificationType = "WARRANTY_RELEASED"
	NotificationWarrantyForfeited NotificationType = "WARRANTY_FORFEITED"
	NotificationJobCancelled      NotificationType = "JOB_CANCELLED"
	NotificationWithdrawal        NotificationType = "WITHDRAWAL"
)

// Notification channels. The in-app row is the source of truth; other
// channels are delivered best-effort by the background worker.
const (
	ChannelInApp    = "in_app"
	ChannelEmail    = "email"
	ChannelWhatsApp = "whatsapp"
)

type Notification struct {
	ID        uuid.UUID        `json:"id"`
	UserID    uuid.UUID        `json:"user_id"`
	JobID     *uuid.UUID       `json:"job_id,omitempty"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Channels  []string         `json:"channels"`
	ReadAt    *time.Time       `json:"read_at,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}
