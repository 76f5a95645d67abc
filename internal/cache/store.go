// Package cache stores element snapshots between operations. Values are
// opaque bytes; the session encodes snapshots as JSON.
package cache

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/ogm/internal/errors"
)

// Store is a snapshot store. Get reports a miss with found=false and a
// nil error.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// Key generates a standardized cache key.
// Format: "prefix:part1:part2", e.g. "ogm:snapshot:n42"
func Key(prefix string, parts ...string) string {
	return strings.Join(append([]string{prefix}, parts...), ":")
}

// Backends accepted by NewStore
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendBolt   = "bolt"
	BackendTiered = "tiered"
)

// Options select and configure a backend
type Options struct {
	Backend  string
	TTL      time.Duration
	Redis    RedisOptions
	BoltPath string
}

// NewStore builds the store named by opts.Backend. The tiered backend puts
// memory in front of redis when an address is configured, otherwise in
// front of bolt.
func NewStore(ctx context.Context, opts Options, logger *logrus.Logger) (Store, error) {
	switch opts.Backend {
	case "", BackendMemory:
		return NewMemoryStore(opts.TTL, logger), nil
	case BackendRedis:
		if opts.Redis.TTL == 0 {
			opts.Redis.TTL = opts.TTL
		}
		s, err := NewRedisStore(ctx, opts.Redis)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendBolt:
		s, err := OpenBoltStore(opts.BoltPath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendTiered:
		var slow Store
		var err error
		if opts.Redis.Addr != "" {
			if opts.Redis.TTL == 0 {
				opts.Redis.TTL = opts.TTL
			}
			slow, err = NewRedisStore(ctx, opts.Redis)
		} else {
			slow, err = OpenBoltStore(opts.BoltPath)
		}
		if err != nil {
			return nil, err
		}
		return NewTieredStore(logger, NewMemoryStore(opts.TTL, logger), slow), nil
	default:
		return nil, errors.ConfigErrorf("unknown cache backend %q", opts.Backend).
			WithContext("backends", []string{BackendMemory, BackendRedis, BackendBolt, BackendTiered})
	}
}
