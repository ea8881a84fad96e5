package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Allamymp/coinApiPortfolio/pkg/logger"
	"github.com/Allamymp/coinApiPortfolio/pkg/metrics"
	"github.com/Allamymp/coinApiPortfolio/pkg/models"
	"github.com/Allamymp/coinApiPortfolio/pkg/redisclient"
)

// coinsKey holds the serialized coin list served to query endpoints.
// The refresh scheduler evicts it after every applied cycle.
const coinsKey = "coins:all"

// Store is the slice of the redis client the cache depends on.
// *redisclient.Client satisfies it.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// CoinCache is the read cache over the persisted coin set. It replaces
// declarative cache annotations with an explicit get / put / evict port.
type CoinCache struct {
	store Store
	ttl   time.Duration
}

// New constructs a CoinCache with the given TTL.
func New(store Store, ttl time.Duration) *CoinCache {
	return &CoinCache{store: store, ttl: ttl}
}

// Get returns the cached coin list, or ok=false on a miss. Redis errors are
// treated as misses so a degraded cache never breaks the read path.
func (c *CoinCache) Get(ctx context.Context) ([]models.Coin, bool) {
	raw, err := c.store.Get(ctx, coinsKey)
	if err != nil {
		if !errors.Is(err, redisclient.ErrCacheMiss) {
			logger.Log.Warn("coin cache read failed", zap.Error(err))
		}
		metrics.CacheMisses.Inc()
		return nil, false
	}

	var coins []models.Coin
	if err := json.Unmarshal([]byte(raw), &coins); err != nil {
		logger.Log.Warn("coin cache payload corrupt, evicting", zap.Error(err))
		_ = c.store.Del(ctx, coinsKey)
		metrics.CacheMisses.Inc()
		return nil, false
	}

	metrics.CacheHits.Inc()
	return coins, true
}

// Put stores the coin list for subsequent reads.
func (c *CoinCache) Put(ctx context.Context, coins []models.Coin) error {
	payload, err := json.Marshal(coins)
	if err != nil {
		return fmt.Errorf("failed to marshal coins: %w", err)
	}
	if err := c.store.Set(ctx, coinsKey, string(payload), c.ttl); err != nil {
		return fmt.Errorf("failed to write coin cache: %w", err)
	}
	return nil
}

// EvictAll drops the cached coin set so the next read observes fresh rows.
func (c *CoinCache) EvictAll(ctx context.Context) error {
	if err := c.store.Del(ctx, coinsKey); err != nil {
		return fmt.Errorf("failed to evict coin cache: %w", err)
	}
	metrics.CacheEvictions.Inc()
	return nil
}
