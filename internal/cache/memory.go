package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// MemoryStore keeps snapshots in process memory with a TTL
type MemoryStore struct {
	logger *logrus.Logger
	cache  *gocache.Cache
}

// NewMemoryStore creates a store whose entries expire after ttl. A zero ttl
// keeps entries until they are deleted.
func NewMemoryStore(ttl time.Duration, logger *logrus.Logger) *MemoryStore {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	expiration := ttl
	cleanup := 2 * ttl
	if ttl <= 0 {
		expiration = gocache.NoExpiration
		cleanup = 10 * time.Minute
	}
	return &MemoryStore{
		logger: logger,
		cache:  gocache.New(expiration, cleanup),
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	cached, found := m.cache.Get(key)
	if !found {
		return nil, false, nil
	}
	data, _ := cached.([]byte)
	return append([]byte(nil), data...), true, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	m.cache.Set(key, append([]byte(nil), value...), gocache.DefaultExpiration)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		m.cache.Delete(key)
	}
	return nil
}

// Len returns the number of unexpired entries
func (m *MemoryStore) Len() int {
	return m.cache.ItemCount()
}

// Clear drops every entry
func (m *MemoryStore) Clear() {
	m.logger.Info("Clearing snapshot cache")
	m.cache.Flush()
}

func (m *MemoryStore) Close() error {
	m.cache.Flush()
	return nil
}
