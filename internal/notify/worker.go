package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/dgyard/backend/internal/models"
)

type DeliverNotificationArgs struct {
	NotificationID uuid.UUID `json:"notification_id"`
	Channels       []string  `json:"channels"`
}

func (DeliverNotificationArgs) Kind() string { return "deliver_notification" }

// Sender pushes a notification over one external channel (email, WhatsApp).
type Sender interface {
	Deliver(ctx context.Context, channel string, n *models.Notification) error
}

type DeliverWorker struct {
	river.WorkerDefaults[DeliverNotificationArgs]
	repo   notificationStore
	sender Sender
	log    *slog.Logger
}

func NewDeliverWorker(repo notificationStore, sender Sender, log *slog.Logger) *DeliverWorker {
	if log == nil {
		log = slog.Default()
	}
	return &DeliverWorker{repo: repo, sender: sender, log: log}
}

func (w *DeliverWorker) Work(ctx context.Context, job *river.Job[DeliverNotificationArgs]) error {
	n, err := w.repo.GetByID(ctx, job.Args.NotificationID)
	if err != nil {
		// The row is gone; retrying will not bring it back.
		w.log.Warn("notification vanished before delivery", "notification_id", job.Args.NotificationID, "error", err)
		return nil
	}
	for _, channel := range job.Args.Channels {
		if err := w.sender.Deliver(ctx, channel, n); err != nil {
			return fmt.Errorf("delivering notification %s over %s: %w", n.ID, channel, err)
		}
	}
	return nil
}

// LogSender is the default Sender: it logs instead of calling a provider.
// Swapped for a real email/WhatsApp gateway in production configuration.
type LogSender struct {
	Log *slog.Logger
}

func (s LogSender) Deliver(_ context.Context, channel string, n *models.Notification) error {
	log := s.Log
	if log == nil {
		log = slog.Default()
	}
	log.Info("notification delivered", "channel", channel, "user_id", n.UserID, "type", n.Type, "title", n.Title)
	return nil
}
