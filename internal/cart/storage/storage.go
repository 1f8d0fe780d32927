// Package storage holds the durable cart record backends.
package storage

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/ruddro420/storefront-cart/internal/cart"
	"github.com/ruddro420/storefront-cart/pkg/config"
)

const (
	BackendMemory = config.CartBackendMemory
	BackendRedis  = config.CartBackendRedis
	BackendDB     = config.CartBackendDB
)

// Deps carries the clients a backend may need; only the selected one must be set.
type Deps struct {
	Redis redisStore
	DB    *gorm.DB
	TTL   time.Duration
}

// New selects the persister for backend.
func New(backend string, deps Deps) (cart.Persister, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case BackendMemory:
		return cart.NewMemoryPersister(), nil
	case BackendRedis:
		if deps.Redis == nil {
			return nil, fmt.Errorf("redis backend requires a redis client")
		}
		return NewRedisPersister(deps.Redis, deps.TTL)
	case BackendDB:
		if deps.DB == nil {
			return nil, fmt.Errorf("db backend requires a database")
		}
		return NewDBPersister(deps.DB, deps.TTL)
	default:
		return nil, fmt.Errorf("unknown cart backend %q", backend)
	}
}
