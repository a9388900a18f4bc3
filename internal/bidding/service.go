// Package bidding implements the bid/counter-offer negotiation protocol:
// technician bids, dealer counters, a two-round ceiling, and short advisory
// expiry to keep the marketplace responsive.
package bidding

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dgyard/backend/internal/apperr"
	"github.com/dgyard/backend/internal/authz"
	"github.com/dgyard/backend/internal/jobs"
	"github.com/dgyard/backend/internal/models"
)

type bidStore interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Create(ctx context.Context, tx pgx.Tx, b *models.JobBid) error
	GetByID(ctx context.Context, bidID uuid.UUID) (*models.JobBid, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, bidID uuid.UUID) (*models.JobBid, error)
	ListByJob(ctx context.Context, jobID uuid.UUID) ([]*models.JobBid, error)
	LiveBid(ctx context.Context, tx pgx.Tx, jobID, technicianID uuid.UUID) (*models.JobBid, error)
	MaxRound(ctx context.Context, tx pgx.Tx, jobID, technicianID uuid.UUID) (int, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, bidID uuid.UUID, status models.BidStatus) error
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}

type jobStore interface {
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, jobID uuid.UUID) (*models.JobPost, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, jobID uuid.UUID, status models.JobStatus) error
	IncrementNegotiationRounds(ctx context.Context, tx pgx.Tx, jobID uuid.UUID) (int, error)
}

// Snapshot carries the distance/rating taken at bid time. Counter-offers
// copy the original bid's snapshot instead of recomputing.
type Snapshot struct {
	DistanceKM       *float64
	TechnicianRating *float64
}

type Service interface {
	// CreateBid places a technician's offer. isCounterOffer marks the
	// technician's reply to a dealer counter, superseding their countered bid.
	CreateBid(ctx context.Context, actor authz.Actor, jobID uuid.UUID, amountPaise int64, isCounterOffer bool, snap Snapshot) (*models.JobBid, error)
	// CounterOffer is the dealer's reply to a bid.
	CounterOffer(ctx context.Context, actor authz.Actor, jobID, bidID uuid.UUID, amountPaise int64) (*models.JobBid, error)
	GetBid(ctx context.Context, bidID uuid.UUID) (*models.JobBid, error)
	ListByJob(ctx context.Context, jobID uuid.UUID) ([]*models.JobBid, error)
	// ExpireStale is the background sweep entry point.
	ExpireStale(ctx context.Context) (int64, error)
}

type service struct {
	bids   bidStore
	jobs   jobStore
	notify jobs.Notifier
	audit  jobs.Auditor
	log    *slog.Logger
	now    func() time.Time
}

func NewService(bids bidStore, jobStore jobStore, notify jobs.Notifier, audit jobs.Auditor, log *slog.Logger) Service {
	if log == nil {
		log = slog.Default()
	}
	return &service{bids: bids, jobs: jobStore, notify: notify, audit: audit, log: log, now: time.Now}
}

var _ Service = (*service)(nil)

func (s *service) CreateBid(ctx context.Context, actor authz.Actor, jobID uuid.UUID, amountPaise int64, isCounterOffer bool, snap Snapshot) (*models.JobBid, error) {
	if amountPaise <= 0 {
		return nil, apperr.Validationf("bid amount must be positive")
	}
	tx, err := s.bids.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	job, err := s.jobs.GetByIDForUpdate(ctx, tx, jobID)
	if err != nil {
		return nil, err
	}
	if err := authz.CanPerform(actor, models.OpBid, job); err != nil {
		return nil, err
	}
	if err := jobs.ValidateOperation(job.Status, models.OpBid); err != nil {
		return nil, err
	}

	live, err := s.bids.LiveBid(ctx, tx, jobID, actor.ID)
	if err != nil {
		return nil, err
	}
	bid := &models.JobBid{
		ID:               uuid.New(),
		JobID:            jobID,
		TechnicianID:     actor.ID,
		AmountPaise:      amountPaise,
		Status:           models.BidStatusPending,
		IsCounterOffer:   isCounterOffer,
		ExpiresAt:        s.now().Add(models.BidExpiry),
		DistanceKM:       snap.DistanceKM,
		TechnicianRating: snap.TechnicianRating,
	}

	if isCounterOffer {
		// The reply supersedes the dealer's pending counter, which is the
		// live bid at this point.
		if live == nil || !live.IsCounterOffer || live.Status != models.BidStatusPending {
			return nil, apperr.Conflictf("no counter-offer to reply to on this job")
		}
		if live.Stale(s.now()) {
			return nil, apperr.Conflictf("counter-offer expired at %s", live.ExpiresAt.Format(time.RFC3339))
		}
		bid.Round = live.Round + 1
		if bid.Round > models.MaxNegotiationRounds {
			return nil, apperr.Conflictf("maximum negotiation rounds (%d) reached", models.MaxNegotiationRounds)
		}
		if err := s.bids.UpdateStatus(ctx, tx, live.ID, models.BidStatusCountered); err != nil {
			return nil, err
		}
		bid.PreviousBidID = &live.ID
		// Keep the original snapshot rather than recomputing.
		bid.DistanceKM = live.DistanceKM
		bid.TechnicianRating = live.TechnicianRating
		if _, err := s.jobs.IncrementNegotiationRounds(ctx, tx, jobID); err != nil {
			return nil, err
		}
	} else {
		if job.Status != models.JobStatusPending && job.Status != models.JobStatusOpenForBidding {
			return nil, apperr.Conflictf("first bid only allowed on a pending job, job is %s", job.Status)
		}
		if live != nil {
			return nil, apperr.Conflictf("technician already has an active bid on this job")
		}
		maxRound, err := s.bids.MaxRound(ctx, tx, jobID, actor.ID)
		if err != nil {
			return nil, err
		}
		bid.Round = maxRound + 1
	}

	if err := s.bids.Create(ctx, tx, bid); err != nil {
		return nil, err
	}
	if job.Status != models.JobStatusNegotiationPending {
		if err := jobs.ValidateTransition(job.Status, models.JobStatusNegotiationPending); err != nil {
			return nil, err
		}
		if err := s.jobs.UpdateStatus(ctx, tx, jobID, models.JobStatusNegotiationPending); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.notify.Send(ctx, job.DealerID, &jobID, models.NotificationBidReceived,
		"New bid",
		fmt.Sprintf("A technician bid ₹%d on job %s.", amountPaise/100, job.JobNumber),
		[]string{models.ChannelInApp})
	s.audit.Record(ctx, &jobID, actor.ID, actor.Role, "bid.create", "bid placed", amountPaise,
		map[string]any{"bid_id": bid.ID.String(), "round": bid.Round, "counter": isCounterOffer})
	return bid, nil
}

func (s *service) CounterOffer(ctx context.Context, actor authz.Actor, jobID, bidID uuid.UUID, amountPaise int64) (*models.JobBid, error) {
	if amountPaise <= 0 {
		return nil, apperr.Validationf("counter-offer amount must be positive")
	}
	tx, err := s.bids.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	job, err := s.jobs.GetByIDForUpdate(ctx, tx, jobID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && (actor.Role != models.RoleDealer || job.DealerID != actor.ID) {
		return nil, apperr.Authorizationf("only the job's dealer may counter-offer")
	}
	if err := jobs.ValidateOperation(job.Status, models.OpBid); err != nil {
		return nil, err
	}

	orig, err := s.bids.GetByIDForUpdate(ctx, tx, bidID)
	if err != nil {
		return nil, err
	}
	if orig.JobID != jobID {
		return nil, apperr.Validationf("bid %s does not belong to job %s", bidID, job.JobNumber)
	}
	if orig.Status != models.BidStatusPending {
		return nil, apperr.Conflictf("only a pending bid can be countered, bid is %s", orig.Status)
	}
	if orig.Stale(s.now()) {
		return nil, apperr.Conflictf("bid expired at %s", orig.ExpiresAt.Format(time.RFC3339))
	}

	round := orig.Round + 1
	if round > models.MaxNegotiationRounds {
		return nil, apperr.Conflictf("maximum negotiation rounds (%d) reached", models.MaxNegotiationRounds)
	}
	if _, err := s.jobs.IncrementNegotiationRounds(ctx, tx, jobID); err != nil {
		return nil, err
	}
	if err := s.bids.UpdateStatus(ctx, tx, orig.ID, models.BidStatusCountered); err != nil {
		return nil, err
	}

	counter := &models.JobBid{
		ID:             uuid.New(),
		JobID:          jobID,
		TechnicianID:   orig.TechnicianID,
		AmountPaise:    amountPaise,
		Status:         models.BidStatusPending,
		IsCounterOffer: true,
		Round:          round,
		PreviousBidID:  &orig.ID,
		ExpiresAt:      s.now().Add(models.BidExpiry),
		// Snapshots are copied from the original bid, not recomputed.
		DistanceKM:       orig.DistanceKM,
		TechnicianRating: orig.TechnicianRating,
	}
	if err := s.bids.Create(ctx, tx, counter); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.notify.Send(ctx, orig.TechnicianID, &jobID, models.NotificationCounterOffer,
		"Counter-offer received",
		fmt.Sprintf("The dealer countered with ₹%d on job %s.", amountPaise/100, job.JobNumber),
		[]string{models.ChannelInApp, models.ChannelWhatsApp})
	s.audit.Record(ctx, &jobID, actor.ID, actor.Role, "bid.counter", "counter-offer placed", amountPaise,
		map[string]any{"bid_id": counter.ID.String(), "previous_bid_id": orig.ID.String(), "round": round})
	return counter, nil
}

func (s *service) GetBid(ctx context.Context, bidID uuid.UUID) (*models.JobBid, error) {
	return s.bids.GetByID(ctx, bidID)
}

func (s *service) ListByJob(ctx context.Context, jobID uuid.UUID) ([]*models.JobBid, error) {
	return s.bids.ListByJob(ctx, jobID)
}

func (s *service) ExpireStale(ctx context.Context) (int64, error) {
	n, err := s.bids.ExpireStale(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("expired stale bids", "count", n)
	}
	return n, nil
}
