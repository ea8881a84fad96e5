package coinsync

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Allamymp/coinApiPortfolio/pkg/logger"
	"github.com/Allamymp/coinApiPortfolio/pkg/metrics"
	"github.com/Allamymp/coinApiPortfolio/pkg/models"
)

// PriceSource provides batched quotes for the tracked coin universe.
type PriceSource interface {
	FetchQuotes(ctx context.Context) ([]models.CoinQuote, error)
}

// CoinStore is the durable side of a sync cycle.
type CoinStore interface {
	FindAll(ctx context.Context) ([]models.Coin, error)
	Create(ctx context.Context, coin *models.Coin) error
	Update(ctx context.Context, coin models.Coin) error
}

// Cache is invalidated after rows change so readers never serve stale prices
// past one cycle.
type Cache interface {
	EvictAll(ctx context.Context) error
}

// Scheduler drives the periodic price refresh. Cycles never overlap: the
// delay timer is armed only after the previous cycle finishes, so a slow
// source stretches the period instead of stacking requests.
type Scheduler struct {
	source   PriceSource
	store    CoinStore
	cache    Cache
	interval time.Duration
}

func NewScheduler(source PriceSource, store CoinStore, cache Cache, interval time.Duration) *Scheduler {
	return &Scheduler{
		source:   source,
		store:    store,
		cache:    cache,
		interval: interval,
	}
}

// Run blocks until ctx is cancelled. On startup it bootstraps an empty store
// with the full coin universe, or runs an immediate refresh when rows already
// exist, then settles into the fixed-delay loop.
func (s *Scheduler) Run(ctx context.Context) {
	logger.Log.Info("price sync starting", zap.Duration("interval", s.interval))

	s.runCycle(ctx)

	timer := time.NewTimer(s.interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("price sync stopping")
			return
		case <-timer.C:
			s.runCycle(ctx)
			timer.Reset(s.interval)
		}
	}
}

// runCycle performs one fetch-diff-apply pass. Fetch failures abort the cycle
// with the store untouched; per-coin write failures are logged and skipped so
// one bad row never stalls the rest of the batch.
func (s *Scheduler) runCycle(ctx context.Context) {
	start := time.Now()
	defer func() {
		metrics.SyncCycleLatency.Observe(time.Since(start).Seconds())
	}()

	quotes, err := s.source.FetchQuotes(ctx)
	if err != nil {
		logger.Log.Warn("quote fetch failed, keeping last known prices", zap.Error(err))
		metrics.SyncCycles.WithLabelValues("fetch_failed").Inc()
		return
	}

	stored, err := s.store.FindAll(ctx)
	if err != nil {
		logger.Log.Error("failed to load stored coins", zap.Error(err))
		metrics.SyncCycles.WithLabelValues("store_failed").Inc()
		return
	}

	existing := make(map[string]models.Coin, len(stored))
	for _, c := range stored {
		existing[c.Name] = c
	}

	plan := Reconcile(quotes, existing)
	written, failed := s.apply(ctx, plan)

	metrics.SyncCoinsUnchanged.Add(float64(len(plan.Unchanged)))

	if written > 0 {
		// invalidate only after the rows are durable, and only once
		if err := s.cache.EvictAll(ctx); err != nil {
			logger.Log.Warn("cache eviction failed", zap.Error(err))
		}
	}

	outcome := "ok"
	if failed > 0 {
		outcome = "partial"
	}
	logger.Log.Info("sync cycle complete",
		zap.Int("inserted", len(plan.Inserts)),
		zap.Int("updated", len(plan.Updates)),
		zap.Int("unchanged", len(plan.Unchanged)),
		zap.Int("written", written),
		zap.Int("failed", failed))
	metrics.SyncCycles.WithLabelValues(outcome).Inc()
}

// apply executes the plan and returns how many rows were durably written and
// how many writes failed.
func (s *Scheduler) apply(ctx context.Context, plan Plan) (written, failed int) {
	for _, coin := range plan.Inserts {
		c := coin
		if err := s.store.Create(ctx, &c); err != nil {
			logger.Log.Error("failed to insert coin",
				zap.String("coin", coin.Name), zap.Error(err))
			metrics.SyncApplyErrors.Inc()
			failed++
			continue
		}
		metrics.SyncCoinsInserted.Inc()
		written++
	}
	for _, upd := range plan.Updates {
		if err := s.store.Update(ctx, upd.Coin); err != nil {
			logger.Log.Error("failed to update coin",
				zap.String("coin", upd.Coin.Name), zap.Error(err))
			metrics.SyncApplyErrors.Inc()
			failed++
			continue
		}
		logger.Log.Debug("coin updated",
			zap.String("coin", upd.Coin.Name),
			zap.Strings("fields", upd.ChangedFields))
		metrics.SyncCoinsUpdated.Inc()
		written++
	}
	return written, failed
}
