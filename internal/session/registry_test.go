package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/ruddro420/storefront-cart/internal/cart"
	pkgerrors "github.com/ruddro420/storefront-cart/pkg/errors"
	"github.com/ruddro420/storefront-cart/pkg/metrics"
)

type countingPersister struct {
	*cart.MemoryPersister
	loads   atomic.Int32
	loadErr error
}

func (c *countingPersister) Load(ctx context.Context, key string) ([]byte, error) {
	c.loads.Add(1)
	if c.loadErr != nil {
		return nil, c.loadErr
	}
	return c.MemoryPersister.Load(ctx, key)
}

func TestRegistryReturnsSameStore(t *testing.T) {
	t.Parallel()

	persister := &countingPersister{MemoryPersister: cart.NewMemoryPersister()}
	reg, err := NewRegistry(Options{Persister: persister, MaxSessions: 4, Metrics: metrics.NewCartMetrics(prometheus.NewRegistry())})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	ctx := context.Background()
	var wg sync.WaitGroup
	stores := make([]*cart.Store, 20)
	for i := range stores {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			store, release, err := reg.Acquire(ctx, "abc")
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			defer release()
			stores[i] = store
		}(i)
	}
	wg.Wait()

	for _, store := range stores {
		if store != stores[0] {
			t.Fatalf("expected a single shared store per session")
		}
	}
	if got := persister.loads.Load(); got != 1 {
		t.Fatalf("expected one hydration, got %d", got)
	}
	if reg.Pinned() != 0 {
		t.Fatalf("expected no pins after release, got %d", reg.Pinned())
	}
}

func TestRegistryEvictsAndRehydrates(t *testing.T) {
	t.Parallel()

	persister := &countingPersister{MemoryPersister: cart.NewMemoryPersister()}
	reg, err := NewRegistry(Options{Persister: persister, MaxSessions: 1})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	ctx := context.Background()

	first, release, err := reg.Acquire(ctx, "a")
	if err != nil {
		t.Fatalf("acquire a: %v", err)
	}
	first.AddItem(ctx, cart.LineInput{ProductID: "1"}, 3)
	release()

	_, releaseB, err := reg.Acquire(ctx, "b")
	if err != nil {
		t.Fatalf("acquire b: %v", err)
	}
	releaseB()
	if reg.Len() != 1 {
		t.Fatalf("expected bounded registry, got %d", reg.Len())
	}

	again, releaseAgain, err := reg.Acquire(ctx, "a")
	if err != nil {
		t.Fatalf("acquire a again: %v", err)
	}
	defer releaseAgain()
	if again == first {
		t.Fatalf("expected evicted store to be rebuilt")
	}
	if line, ok := again.Line("1::base"); !ok || line.Qty != 3 {
		t.Fatalf("expected rehydrated line qty 3, got %+v", line)
	}
}

func TestRegistryKeepsHeldStoreAcrossEviction(t *testing.T) {
	t.Parallel()

	persister := cart.NewMemoryPersister()
	reg, err := NewRegistry(Options{Persister: persister, MaxSessions: 1})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	ctx := context.Background()

	held, releaseHeld, err := reg.Acquire(ctx, "a")
	if err != nil {
		t.Fatalf("acquire a: %v", err)
	}
	var mu sync.Mutex
	var seen []int
	unsubscribe := held.Subscribe(func(state cart.State) {
		mu.Lock()
		seen = append(seen, len(state.Lines))
		mu.Unlock()
	})
	defer unsubscribe()
	held.AddItem(ctx, cart.LineInput{ProductID: "1"}, 1)

	_, releaseB, err := reg.Acquire(ctx, "b")
	if err != nil {
		t.Fatalf("acquire b: %v", err)
	}
	releaseB()

	other, releaseOther, err := reg.Acquire(ctx, "a")
	if err != nil {
		t.Fatalf("acquire a again: %v", err)
	}
	if other != held {
		t.Fatalf("expected the held store to be reused after eviction")
	}
	other.AddItem(ctx, cart.LineInput{ProductID: "2"}, 1)
	releaseOther()

	// The original holder keeps writing; it must not clobber the second line.
	held.AddItem(ctx, cart.LineInput{ProductID: "1"}, 1)

	mu.Lock()
	got := append([]int(nil), seen...)
	mu.Unlock()
	if len(got) != 3 || got[2] != 2 {
		t.Fatalf("expected subscriber to see every update, got %v", got)
	}

	payload, err := persister.Load(ctx, "a")
	if err != nil || payload == nil {
		t.Fatalf("load: %v", err)
	}
	state, ok := cart.DecodeState(payload)
	if !ok || len(state.Lines) != 2 {
		t.Fatalf("expected both lines persisted, got %+v", state.Lines)
	}

	if reg.Pinned() != 1 {
		t.Fatalf("expected only the original holder pinned, got %d", reg.Pinned())
	}
	releaseHeld()
	releaseHeld()
	if reg.Pinned() != 0 {
		t.Fatalf("expected no pins after release, got %d", reg.Pinned())
	}
}

func TestRegistryRejectsBadSession(t *testing.T) {
	t.Parallel()

	reg, err := NewRegistry(Options{MaxSessions: 2})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	_, _, err = reg.Acquire(context.Background(), "  ")
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRegistryDoesNotCacheFailedHydration(t *testing.T) {
	t.Parallel()

	persister := &countingPersister{MemoryPersister: cart.NewMemoryPersister(), loadErr: errors.New("redis down")}
	reg, err := NewRegistry(Options{Persister: persister, MaxSessions: 2})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	ctx := context.Background()

	_, _, err = reg.Acquire(ctx, "a")
	if !pkgerrors.HasCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if reg.Len() != 0 {
		t.Fatalf("expected failed store not cached")
	}

	if reg.Pinned() != 0 {
		t.Fatalf("expected failed acquire to leave no pin")
	}

	persister.loadErr = nil
	_, release, err := reg.Acquire(ctx, "a")
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	release()
	if got := persister.loads.Load(); got != 2 {
		t.Fatalf("expected a second hydration attempt, got %d", got)
	}
}

func TestRegistryForget(t *testing.T) {
	t.Parallel()

	reg, err := NewRegistry(Options{MaxSessions: 2})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	_, release, err := reg.Acquire(context.Background(), "a")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	release()
	reg.Forget("a")
	if reg.Len() != 0 {
		t.Fatalf("expected store forgotten")
	}
}

func TestNewRegistryRequiresCapacity(t *testing.T) {
	t.Parallel()

	if _, err := NewRegistry(Options{}); err == nil {
		t.Fatalf("expected error for zero capacity")
	}
}
