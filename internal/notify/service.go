// Package notify persists in-app notifications and hands off email/WhatsApp
// delivery to a background worker. Sending never returns an error: a broken
// notification pipeline must not fail the financial operation that triggered
// it.
package notify

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dgyard/backend/internal/models"
)

// EnqueueDeliveryFunc schedules out-of-band delivery for a stored
// notification. Provided by main as a closure over river.Client.Insert.
type EnqueueDeliveryFunc func(ctx context.Context, args DeliverNotificationArgs) error

type notificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Notification, error)
	ListByUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]*models.Notification, error)
	MarkRead(ctx context.Context, userID, id uuid.UUID) error
}

type Service struct {
	repo    notificationStore
	enqueue EnqueueDeliveryFunc
	log     *slog.Logger
}

func NewService(repo notificationStore, enqueue EnqueueDeliveryFunc, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, enqueue: enqueue, log: log}
}

// Send stores the in-app row and enqueues delivery for any other channels.
// All failures are logged and swallowed.
func (s *Service) Send(ctx context.Context, userID uuid.UUID, jobID *uuid.UUID, typ models.NotificationType, title, message string, channels []string) {
	if len(channels) == 0 {
		channels = []string{models.ChannelInApp}
	}
	n := &models.Notification{
		ID:       uuid.New(),
		UserID:   userID,
		JobID:    jobID,
		Type:     typ,
		Title:    title,
		Message:  message,
		Channels: channels,
	}
	if err := s.repo.Create(ctx, n); err != nil {
		s.log.Error("storing notification failed", "user_id", userID, "type", typ, "error", err)
		return
	}

	external := externalChannels(channels)
	if len(external) == 0 || s.enqueue == nil {
		return
	}
	if err := s.enqueue(ctx, DeliverNotificationArgs{NotificationID: n.ID, Channels: external}); err != nil {
		s.log.Error("enqueueing notification delivery failed", "notification_id", n.ID, "error", err)
	}
}

func externalChannels(channels []string) []string {
	var out []string
	for _, c := range channels {
		if c != models.ChannelInApp {
			out = append(out, c)
		}
	}
	return out
}

func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]*models.Notification, error) {
	return s.repo.ListByUser(ctx, userID, unreadOnly, limit)
}

func (s *Service) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	return s.repo.MarkRead(ctx, userID, id)
}
