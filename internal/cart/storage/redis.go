package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ruddro420/storefront-cart/internal/cart"
	pkgredis "github.com/ruddro420/storefront-cart/pkg/redis"
)

type redisStore interface {
	Get(ctx context.Context, key string) (string, error)
	SetIfNewer(ctx context.Context, key string, version uint64, value string, ttl time.Duration) (bool, error)
	CartKey(sessionID string) string
}

// RedisPersister keeps each cart record under sf:cart:<session> with a sliding TTL.
type RedisPersister struct {
	client redisStore
	ttl    time.Duration
}

func NewRedisPersister(client redisStore, ttl time.Duration) (*RedisPersister, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client required")
	}
	return &RedisPersister{client: client, ttl: ttl}, nil
}

func (p *RedisPersister) Name() string {
	return BackendRedis
}

func (p *RedisPersister) Load(ctx context.Context, sessionID string) ([]byte, error) {
	value, err := p.client.Get(ctx, p.client.CartKey(sessionID))
	if errors.Is(err, pkgredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cart record: %w", err)
	}
	return []byte(value), nil
}

// Save rewrites the record and refreshes its TTL unless redis already holds the same or
// a newer version.
func (p *RedisPersister) Save(ctx context.Context, sessionID string, version uint64, record []byte) error {
	written, err := p.client.SetIfNewer(ctx, p.client.CartKey(sessionID), version, string(record), p.ttl)
	if err != nil {
		return fmt.Errorf("save cart record: %w", err)
	}
	if !written {
		return cart.ErrStaleRecord
	}
	return nil
}
