package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"model-marketplace/internal/blockchain"
	"model-marketplace/internal/services"
)

// ListingRefresher reloads the listing read model of a marketplace
type ListingRefresher interface {
	RefreshListings(ctx context.Context, ref blockchain.MarketplaceRef) ([]*services.Nft, error)
}

// ListingWarmer periodically rescans the marketplace so listing reads are
// served from cache
type ListingWarmer struct {
	refresher ListingRefresher
	ref       blockchain.MarketplaceRef
	interval  time.Duration
	timeout   time.Duration
	stopChan  chan struct{}
	stopOnce  sync.Once
	log       *zap.Logger
}

// NewListingWarmer creates a new listing warmer job. Each refresh is
// bounded by timeout.
func NewListingWarmer(refresher ListingRefresher, ref blockchain.MarketplaceRef, interval, timeout time.Duration) *ListingWarmer {
	return &ListingWarmer{
		refresher: refresher,
		ref:       ref,
		interval:  interval,
		timeout:   timeout,
		stopChan:  make(chan struct{}),
		log:       zap.L().Named("listing_warmer"),
	}
}

// Start refreshes once, then on every tick until Stop is called. It blocks.
func (w *ListingWarmer) Start() {
	w.log.Info("starting listing warmer",
		zap.String("marketplace", w.ref.String()),
		zap.Duration("interval", w.interval))

	w.refresh()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.refresh()
		case <-w.stopChan:
			w.log.Info("stopping listing warmer")
			return
		}
	}
}

// Stop stops the refresh loop
func (w *ListingWarmer) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
}

func (w *ListingWarmer) refresh() {
	ctx := context.Background()
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	started := time.Now()
	listings, err := w.refresher.RefreshListings(ctx, w.ref)
	if err != nil {
		w.log.Warn("failed to refresh listings", zap.Error(err))
		return
	}
	w.log.Debug("listings refreshed",
		zap.Int("count", len(listings)),
		zap.Duration("took", time.Since(started)))
}
