package bidding

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgyard/backend/internal/apperr"
	"github.com/dgyard/backend/internal/authz"
	"github.com/dgyard/backend/internal/models"
)

type fakeTx struct{ pgx.Tx }

func (fakeTx) Commit(context.Context) error   { return nil }
func (fakeTx) Rollback(context.Context) error { return nil }

type memBidStore struct {
	mu   sync.Mutex
	bids map[uuid.UUID]*models.JobBid
}

func newMemBidStore() *memBidStore {
	return &memBidStore{bids: make(map[uuid.UUID]*models.JobBid)}
}

func (m *memBidStore) Begin(context.Context) (pgx.Tx, error) { return fakeTx{}, nil }

func (m *memBidStore) Create(_ context.Context, _ pgx.Tx, b *models.JobBid) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *b
	m.bids[b.ID] = &cp
	return nil
}

func (m *memBidStore) get(id uuid.UUID) (*models.JobBid, error) {
	b, ok := m.bids[id]
	if !ok {
		return nil, apperr.NotFoundf("bid not found")
	}
	cp := *b
	return &cp, nil
}

func (m *memBidStore) GetByID(_ context.Context, id uuid.UUID) (*models.JobBid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(id)
}

func (m *memBidStore) GetByIDForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.JobBid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(id)
}

func (m *memBidStore) ListByJob(_ context.Context, jobID uuid.UUID) ([]*models.JobBid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.JobBid
	for _, b := range m.bids {
		if b.JobID == jobID {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memBidStore) LiveBid(_ context.Context, _ pgx.Tx, jobID, technicianID uuid.UUID) (*models.JobBid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var live *models.JobBid
	for _, b := range m.bids {
		if b.JobID != jobID || b.TechnicianID != technicianID {
			continue
		}
		if b.Status != models.BidStatusPending && b.Status != models.BidStatusCountered {
			continue
		}
		if live == nil || b.Round > live.Round {
			live = b
		}
	}
	if live == nil {
		return nil, nil
	}
	cp := *live
	return &cp, nil
}

func (m *memBidStore) MaxRound(_ context.Context, _ pgx.Tx, jobID, technicianID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	max := 0
	for _, b := range m.bids {
		if b.JobID == jobID && b.TechnicianID == technicianID && b.Round > max {
			max = b.Round
		}
	}
	return max, nil
}

func (m *memBidStore) UpdateStatus(_ context.Context, _ pgx.Tx, id uuid.UUID, status models.BidStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bids[id]
	if !ok {
		return apperr.NotFoundf("bid not found")
	}
	b.Status = status
	return nil
}

func (m *memBidStore) ExpireStale(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, b := range m.bids {
		if b.Status == models.BidStatusPending && now.After(b.ExpiresAt) {
			b.Status = models.BidStatusExpired
			n++
		}
	}
	return n, nil
}

type memJobStore struct {
	mu     sync.Mutex
	jobs   map[uuid.UUID]*models.JobPost
	rounds int
}

func newMemJobStore(js ...*models.JobPost) *memJobStore {
	m := &memJobStore{jobs: make(map[uuid.UUID]*models.JobPost)}
	for _, j := range js {
		cp := *j
		m.jobs[j.ID] = &cp
	}
	return m
}

func (m *memJobStore) GetByIDForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.JobPost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, apperr.NotFoundf("job not found")
	}
	cp := *j
	return &cp, nil
}

func (m *memJobStore) UpdateStatus(_ context.Context, _ pgx.Tx, id uuid.UUID, status models.JobStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[id].Status = status
	return nil
}

func (m *memJobStore) IncrementNegotiationRounds(_ context.Context, _ pgx.Tx, _ uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rounds++
	return m.rounds, nil
}

type nopNotifier struct {
	mu   sync.Mutex
	sent []models.NotificationType
}

func (n *nopNotifier) Send(_ context.Context, _ uuid.UUID, _ *uuid.UUID, typ models.NotificationType, _, _ string, _ []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, typ)
}

type nopAuditor struct{}

func (nopAuditor) Record(context.Context, *uuid.UUID, uuid.UUID, models.Role, string, string, int64, map[string]any) {
}

// ---------------------------------------------------------------------------

func negotiationFixture(t *testing.T) (Service, *memBidStore, *memJobStore, *nopNotifier, *models.JobPost, authz.Actor, authz.Actor) {
	t.Helper()
	dealer := authz.Actor{ID: uuid.New(), Role: models.RoleDealer}
	tech := authz.Actor{ID: uuid.New(), Role: models.RoleTechnician}
	job := &models.JobPost{
		ID:                 uuid.New(),
		JobNumber:          "JOB-20260829-0007",
		Status:             models.JobStatusPending,
		DealerID:           dealer.ID,
		Title:              "DVR replacement",
		EstimatedCostPaise: 1_500_000,
	}
	bids := newMemBidStore()
	jobsRepo := newMemJobStore(job)
	notifier := &nopNotifier{}
	svc := NewService(bids, jobsRepo, notifier, nopAuditor{}, nil)
	return svc, bids, jobsRepo, notifier, job, dealer, tech
}

func TestCreateBid_FirstBid(t *testing.T) {
	svc, _, jobsRepo, notifier, job, _, tech := negotiationFixture(t)
	dist := 4.2

	bid, err := svc.CreateBid(context.Background(), tech, job.ID, 1_200_000, false, Snapshot{DistanceKM: &dist})
	require.NoError(t, err)

	assert.Equal(t, 1, bid.Round)
	assert.Equal(t, models.BidStatusPending, bid.Status)
	assert.False(t, bid.IsCounterOffer)
	require.NotNil(t, bid.DistanceKM)
	assert.Equal(t, dist, *bid.DistanceKM)
	assert.WithinDuration(t, time.Now().Add(models.BidExpiry), bid.ExpiresAt, 5*time.Second)

	j, err := jobsRepo.GetByIDForUpdate(context.Background(), nil, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusNegotiationPending, j.Status)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, models.NotificationBidReceived, notifier.sent[0])
}

func TestCreateBid_RejectsDuplicateLiveBid(t *testing.T) {
	svc, _, _, _, job, _, tech := negotiationFixture(t)

	_, err := svc.CreateBid(context.Background(), tech, job.ID, 1_200_000, false, Snapshot{})
	require.NoError(t, err)

	_, err = svc.CreateBid(context.Background(), tech, job.ID, 1_100_000, false, Snapshot{})
	assert.True(t, apperr.IsKind(err, apperr.StateConflict), "got %v", err)
}

func TestCreateBid_TechnicianOnly(t *testing.T) {
	svc, _, _, _, job, dealer, _ := negotiationFixture(t)

	_, err := svc.CreateBid(context.Background(), dealer, job.ID, 1_200_000, false, Snapshot{})
	assert.True(t, apperr.IsKind(err, apperr.Authorization), "got %v", err)
}

func TestCreateBid_RejectsNonPositiveAmount(t *testing.T) {
	svc, _, _, _, job, _, tech := negotiationFixture(t)

	_, err := svc.CreateBid(context.Background(), tech, job.ID, 0, false, Snapshot{})
	assert.True(t, apperr.IsKind(err, apperr.Validation), "got %v", err)
}

func TestCounterOffer_SupersedesBidAndCopiesSnapshot(t *testing.T) {
	svc, bids, _, notifier, job, dealer, tech := negotiationFixture(t)
	dist, rating := 7.5, 4.8

	orig, err := svc.CreateBid(context.Background(), tech, job.ID, 1_200_000, false,
		Snapshot{DistanceKM: &dist, TechnicianRating: &rating})
	require.NoError(t, err)

	counter, err := svc.CounterOffer(context.Background(), dealer, job.ID, orig.ID, 1_000_000)
	require.NoError(t, err)

	assert.Equal(t, 2, counter.Round)
	assert.True(t, counter.IsCounterOffer)
	assert.Equal(t, tech.ID, counter.TechnicianID)
	require.NotNil(t, counter.PreviousBidID)
	assert.Equal(t, orig.ID, *counter.PreviousBidID)
	require.NotNil(t, counter.DistanceKM)
	assert.Equal(t, dist, *counter.DistanceKM)
	require.NotNil(t, counter.TechnicianRating)
	assert.Equal(t, rating, *counter.TechnicianRating)

	got, err := bids.GetByID(context.Background(), orig.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BidStatusCountered, got.Status)

	require.Len(t, notifier.sent, 2)
	assert.Equal(t, models.NotificationCounterOffer, notifier.sent[1])
}

func TestCounterOffer_EnforcesRoundCap(t *testing.T) {
	svc, _, _, _, job, dealer, tech := negotiationFixture(t)

	orig, err := svc.CreateBid(context.Background(), tech, job.ID, 1_200_000, false, Snapshot{})
	require.NoError(t, err)
	counter, err := svc.CounterOffer(context.Background(), dealer, job.ID, orig.ID, 1_000_000)
	require.NoError(t, err)

	// Countering the round-2 bid would open round 3.
	_, err = svc.CounterOffer(context.Background(), dealer, job.ID, counter.ID, 900_000)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.StateConflict), "got %v", err)
	assert.Contains(t, err.Error(), "maximum negotiation rounds")
}

func TestCreateBid_ReplyToCounterHitsRoundCap(t *testing.T) {
	svc, _, _, _, job, dealer, tech := negotiationFixture(t)

	orig, err := svc.CreateBid(context.Background(), tech, job.ID, 1_200_000, false, Snapshot{})
	require.NoError(t, err)
	_, err = svc.CounterOffer(context.Background(), dealer, job.ID, orig.ID, 1_000_000)
	require.NoError(t, err)

	// Replying to the dealer's round-2 counter would open round 3.
	_, err = svc.CreateBid(context.Background(), tech, job.ID, 1_100_000, true, Snapshot{})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.StateConflict), "got %v", err)
	assert.Contains(t, err.Error(), "maximum negotiation rounds")
}

func TestCreateBid_ReplyWithoutCounterConflicts(t *testing.T) {
	svc, _, _, _, job, _, tech := negotiationFixture(t)

	// No bid at all yet.
	_, err := svc.CreateBid(context.Background(), tech, job.ID, 1_100_000, true, Snapshot{})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.StateConflict), "got %v", err)
	assert.Contains(t, err.Error(), "no counter-offer to reply to")

	// The live bid is the technician's own offer, not a dealer counter.
	_, err = svc.CreateBid(context.Background(), tech, job.ID, 1_200_000, false, Snapshot{})
	require.NoError(t, err)
	_, err = svc.CreateBid(context.Background(), tech, job.ID, 1_100_000, true, Snapshot{})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.StateConflict), "got %v", err)
	assert.Contains(t, err.Error(), "no counter-offer to reply to")
}

func TestCounterOffer_WrongDealerForbidden(t *testing.T) {
	svc, _, _, _, job, _, tech := negotiationFixture(t)

	orig, err := svc.CreateBid(context.Background(), tech, job.ID, 1_200_000, false, Snapshot{})
	require.NoError(t, err)

	other := authz.Actor{ID: uuid.New(), Role: models.RoleDealer}
	_, err = svc.CounterOffer(context.Background(), other, job.ID, orig.ID, 1_000_000)
	assert.True(t, apperr.IsKind(err, apperr.Authorization), "got %v", err)
}

func TestCounterOffer_RejectsExpiredBid(t *testing.T) {
	svc, bids, _, _, job, dealer, tech := negotiationFixture(t)

	orig, err := svc.CreateBid(context.Background(), tech, job.ID, 1_200_000, false, Snapshot{})
	require.NoError(t, err)

	// Age the bid past its window.
	bids.mu.Lock()
	bids.bids[orig.ID].ExpiresAt = time.Now().Add(-time.Second)
	bids.mu.Unlock()

	_, err = svc.CounterOffer(context.Background(), dealer, job.ID, orig.ID, 1_000_000)
	assert.True(t, apperr.IsKind(err, apperr.StateConflict), "got %v", err)
}

func TestExpireStale(t *testing.T) {
	svc, bids, _, _, job, _, tech := negotiationFixture(t)

	orig, err := svc.CreateBid(context.Background(), tech, job.ID, 1_200_000, false, Snapshot{})
	require.NoError(t, err)

	bids.mu.Lock()
	bids.bids[orig.ID].ExpiresAt = time.Now().Add(-time.Minute)
	bids.mu.Unlock()

	n, err := svc.ExpireStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := bids.GetByID(context.Background(), orig.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BidStatusExpired, got.Status)
}
