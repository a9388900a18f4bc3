// Package sweep holds the periodic background jobs: expiring stale bids and
// auto-releasing warranty holds whose period has elapsed.
package sweep

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/riverqueue/river"
)

type BidExpiryArgs struct{}

func (BidExpiryArgs) Kind() string { return "bid_expiry_sweep" }

// BidExpirer is the bidding surface the sweep needs.
type BidExpirer interface {
	ExpireStale(ctx context.Context) (int64, error)
}

type BidExpiryWorker struct {
	river.WorkerDefaults[BidExpiryArgs]
	bids BidExpirer
	log  *slog.Logger
}

func NewBidExpiryWorker(bids BidExpirer, log *slog.Logger) *BidExpiryWorker {
	if log == nil {
		log = slog.Default()
	}
	return &BidExpiryWorker{bids: bids, log: log}
}

func (w *BidExpiryWorker) Work(ctx context.Context, _ *river.Job[BidExpiryArgs]) error {
	n, err := w.bids.ExpireStale(ctx)
	if err != nil {
		return fmt.Errorf("expiring stale bids: %w", err)
	}
	if n > 0 {
		w.log.Info("expired stale bids", "count", n)
	}
	return nil
}

type WarrantyReleaseArgs struct{}

func (WarrantyReleaseArgs) Kind() string { return "warranty_release_sweep" }

// HoldReleaser releases holds past their warranty end date.
type HoldReleaser interface {
	AutoReleaseExpired(ctx context.Context) (int, error)
}

type WarrantyReleaseWorker struct {
	river.WorkerDefaults[WarrantyReleaseArgs]
	holds HoldReleaser
	log   *slog.Logger
}

func NewWarrantyReleaseWorker(holds HoldReleaser, log *slog.Logger) *WarrantyReleaseWorker {
	if log == nil {
		log = slog.Default()
	}
	return &WarrantyReleaseWorker{holds: holds, log: log}
}

func (w *WarrantyReleaseWorker) Work(ctx context.Context, _ *river.Job[WarrantyReleaseArgs]) error {
	n, err := w.holds.AutoReleaseExpired(ctx)
	if err != nil {
		return fmt.Errorf("auto-releasing warranty holds: %w", err)
	}
	if n > 0 {
		w.log.Info("auto-released warranty holds", "count", n)
	}
	return nil
}
