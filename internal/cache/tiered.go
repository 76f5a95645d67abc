package cache

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// TieredStore layers stores from fastest to slowest. Reads fall through
// the tiers and backfill the faster ones; writes and deletes go to all.
type TieredStore struct {
	logger *logrus.Logger
	tiers  []Store
}

// NewTieredStore creates a tiered store; tiers[0] is consulted first
func NewTieredStore(logger *logrus.Logger, tiers ...Store) *TieredStore {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &TieredStore{logger: logger, tiers: tiers}
}

// Get returns the value from the fastest tier holding key. A failed
// backfill is logged; the value is still returned.
func (t *TieredStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	for i, tier := range t.tiers {
		value, found, err := tier.Get(ctx, key)
		if err != nil {
			return nil, false, err
		}
		if !found {
			continue
		}
		for j, faster := range t.tiers[:i] {
			if err := faster.Set(ctx, key, value); err != nil {
				t.logger.WithError(err).WithFields(logrus.Fields{
					"key":  key,
					"tier": j,
				}).Warn("Failed to backfill cache tier")
			}
		}
		return value, true, nil
	}
	return nil, false, nil
}

func (t *TieredStore) Set(ctx context.Context, key string, value []byte) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, tier := range t.tiers {
		tier := tier
		g.Go(func() error { return tier.Set(ctx, key, value) })
	}
	return g.Wait()
}

// Delete invalidates keys in every tier concurrently
func (t *TieredStore) Delete(ctx context.Context, keys ...string) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, tier := range t.tiers {
		tier := tier
		g.Go(func() error { return tier.Delete(ctx, keys...) })
	}
	return g.Wait()
}

func (t *TieredStore) Close() error {
	var firstErr error
	for _, tier := range t.tiers {
		if err := tier.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close cache tier: %w", err)
		}
	}
	return firstErr
}
