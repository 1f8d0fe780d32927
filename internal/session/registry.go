package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/ruddro420/storefront-cart/internal/cart"
	pkgerrors "github.com/ruddro420/storefront-cart/pkg/errors"
	"github.com/ruddro420/storefront-cart/pkg/logger"
	"github.com/ruddro420/storefront-cart/pkg/metrics"
)

const maxSessionIDLength = 128

// Options configures a Registry.
type Options struct {
	Persister      cart.Persister
	Logger         *logger.Logger
	Metrics        *metrics.CartMetrics
	MaxSessions    int
	PersistTimeout time.Duration
}

// Registry keeps one cart store per session in a bounded LRU. A store stays pinned while
// any caller holds it, so eviction never splits a session across two live stores; an
// unpinned evicted store is dropped because its state is already durable.
type Registry struct {
	cache          *lru.Cache[string, *cart.Store]
	group          singleflight.Group
	persister      cart.Persister
	logg           *logger.Logger
	metrics        *metrics.CartMetrics
	persistTimeout time.Duration

	mu     sync.Mutex
	pinned map[string]*pin
}

type pin struct {
	store *cart.Store
	refs  int
}

func NewRegistry(opts Options) (*Registry, error) {
	if opts.MaxSessions <= 0 {
		return nil, fmt.Errorf("max sessions must be positive")
	}
	r := &Registry{
		persister:      opts.Persister,
		logg:           opts.Logger,
		metrics:        opts.Metrics,
		persistTimeout: opts.PersistTimeout,
		pinned:         map[string]*pin{},
	}
	if r.logg == nil {
		r.logg = logger.Nop()
	}
	cache, err := lru.NewWithEvict[string, *cart.Store](opts.MaxSessions, r.onEvict)
	if err != nil {
		return nil, fmt.Errorf("create session cache: %w", err)
	}
	r.cache = cache
	return r, nil
}

// Acquire returns the store for sessionID, hydrating it at most once even under
// concurrent first requests. The store is pinned until release is called; release is
// safe to call more than once.
func (r *Registry) Acquire(ctx context.Context, sessionID string) (*cart.Store, func(), error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" || len(sessionID) > maxSessionIDLength {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid cart session")
	}
	if store := r.pin(sessionID, nil); store != nil {
		return store, r.releaser(sessionID), nil
	}

	v, err, _ := r.group.Do(sessionID, func() (any, error) {
		store := cart.NewStore(context.WithoutCancel(ctx), cart.Options{
			Key:            sessionID,
			Persister:      r.persister,
			Logger:         r.logg,
			Metrics:        r.metrics,
			PersistTimeout: r.persistTimeout,
		})
		if err := store.HydrationErr(); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cart storage unavailable")
		}
		return store, nil
	})
	if err != nil {
		return nil, nil, err
	}
	store := r.pin(sessionID, v.(*cart.Store))
	return store, r.releaser(sessionID), nil
}

// pin takes a reference on the live store for sessionID. A pinned or cached store always
// wins over candidate, which is only adopted when neither exists. With a nil candidate
// pin returns nil instead of adopting.
func (r *Registry) pin(sessionID string, candidate *cart.Store) *cart.Store {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.pinned[sessionID]; ok {
		p.refs++
		r.cache.ContainsOrAdd(sessionID, p.store)
		r.metrics.SetSessions(r.cache.Len())
		return p.store
	}
	store, ok := r.cache.Get(sessionID)
	if !ok {
		if candidate == nil {
			return nil
		}
		store = candidate
		r.cache.Add(sessionID, store)
		r.metrics.SetSessions(r.cache.Len())
	}
	r.pinned[sessionID] = &pin{store: store, refs: 1}
	return store
}

func (r *Registry) releaser(sessionID string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			p, ok := r.pinned[sessionID]
			if !ok {
				return
			}
			p.refs--
			if p.refs <= 0 {
				delete(r.pinned, sessionID)
			}
		})
	}
}

// Len reports how many stores are resident in the LRU.
func (r *Registry) Len() int {
	return r.cache.Len()
}

// Pinned reports how many sessions are currently held by callers.
func (r *Registry) Pinned() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pinned)
}

// Forget drops a resident store, forcing the next Acquire to rehydrate unless the store
// is still pinned.
func (r *Registry) Forget(sessionID string) {
	r.cache.Remove(sessionID)
	r.metrics.SetSessions(r.cache.Len())
}

func (r *Registry) onEvict(sessionID string, _ *cart.Store) {
	r.logg.Debug(r.logg.WithSessionID(context.Background(), sessionID), "session.evicted")
}
