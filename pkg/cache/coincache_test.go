package cache

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Allamymp/coinApiPortfolio/pkg/models"
	"github.com/Allamymp/coinApiPortfolio/pkg/redisclient"
)

// fakeStore is an in-memory Store for cache tests.
type fakeStore struct {
	data map[string]string
	dels int
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string)}
}

func (f *fakeStore) Get(ctx context.Context, key string) (string, error) {
	v, ok := f.data[key]
	if !ok {
		return "", redisclient.ErrCacheMiss
	}
	return v, nil
}

func (f *fakeStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	f.data[key] = value
	return nil
}

func (f *fakeStore) Del(ctx context.Context, keys ...string) error {
	f.dels++
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func sampleCoins() []models.Coin {
	return []models.Coin{
		{
			ID:            1,
			Name:          "bitcoin",
			Price:         decimal.RequireFromString("61000.5"),
			MarketValue:   decimal.RequireFromString("1200000000000"),
			Last24hChange: decimal.RequireFromString("2.1"),
			LastUpdate:    time.Unix(1719400000, 0).UTC(),
		},
	}
}

func TestCoinCache_PutGetRoundTrip(t *testing.T) {
	store := newFakeStore()
	c := New(store, time.Minute)
	ctx := context.Background()

	if _, ok := c.Get(ctx); ok {
		t.Fatal("expected miss on empty cache")
	}

	if err := c.Put(ctx, sampleCoins()); err != nil {
		t.Fatalf("Put: %v", err)
	}

	coins, ok := c.Get(ctx)
	if !ok {
		t.Fatal("expected hit after Put")
	}
	if len(coins) != 1 || coins[0].Name != "bitcoin" {
		t.Errorf("coins = %+v; want one bitcoin entry", coins)
	}
	if !coins[0].Price.Equal(decimal.RequireFromString("61000.5")) {
		t.Errorf("Price = %v; want 61000.5", coins[0].Price)
	}
}

func TestCoinCache_EvictAll(t *testing.T) {
	store := newFakeStore()
	c := New(store, time.Minute)
	ctx := context.Background()

	if err := c.Put(ctx, sampleCoins()); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := c.EvictAll(ctx); err != nil {
		t.Fatalf("EvictAll: %v", err)
	}
	if _, ok := c.Get(ctx); ok {
		t.Fatal("expected miss after EvictAll")
	}
	if store.dels == 0 {
		t.Error("expected at least one Del call")
	}
}

func TestCoinCache_CorruptPayloadEvicts(t *testing.T) {
	store := newFakeStore()
	store.data["coins:all"] = "{not json"
	c := New(store, time.Minute)

	if _, ok := c.Get(context.Background()); ok {
		t.Fatal("expected miss on corrupt payload")
	}
	if _, present := store.data["coins:all"]; present {
		t.Error("corrupt entry should have been evicted")
	}
}
