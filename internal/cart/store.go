package cart

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/ruddro420/storefront-cart/pkg/enums"
	"github.com/ruddro420/storefront-cart/pkg/logger"
	"github.com/shopspring/decimal"
)

const (
	defaultPersistTimeout = 2 * time.Second
	maxCommitAttempts     = 3
)

// Recorder receives cart activity; *metrics.CartMetrics satisfies it.
type Recorder interface {
	IncMutation(op string)
	IncWarning(kind string)
	IncPersistFailure(backend, phase string)
	ObservePersist(backend string, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) IncMutation(string)                   {}
func (nopRecorder) IncWarning(string)                    {}
func (nopRecorder) IncPersistFailure(string, string)     {}
func (nopRecorder) ObservePersist(string, time.Duration) {}

// Options configures a Store. Persister may be nil for a purely in-memory cart.
type Options struct {
	Key            string
	Persister      Persister
	Logger         *logger.Logger
	Metrics        Recorder
	PersistTimeout time.Duration
}

type subscription struct {
	id uint64
	fn Listener
}

// Store is the shared cart for one shopper. All methods are safe for concurrent use.
// Mutations are applied and written through one at a time; listeners run outside every
// lock, in subscription order, and always end on the latest state.
type Store struct {
	key            string
	persister      Persister
	logg           *logger.Logger
	metrics        Recorder
	persistTimeout time.Duration

	writeMu sync.Mutex

	mu        sync.RWMutex
	state     State
	index     map[string]int
	version   uint64
	seq       uint64
	listeners []subscription
	nextSubID uint64

	notifyMu      sync.Mutex
	dispatching   bool
	notifyPending bool
	deliveredSeq  uint64

	hydrateErr error
}

// NewStore builds a store and performs its single hydration read. Missing or malformed
// records start an empty cart; read failures are logged and never returned.
func NewStore(ctx context.Context, opts Options) *Store {
	s := &Store{
		key:            opts.Key,
		persister:      opts.Persister,
		logg:           opts.Logger,
		metrics:        opts.Metrics,
		persistTimeout: opts.PersistTimeout,
		state:          State{Lines: []Line{}},
		index:          map[string]int{},
	}
	if s.logg == nil {
		s.logg = logger.Nop()
	}
	if s.metrics == nil {
		s.metrics = nopRecorder{}
	}
	if s.persistTimeout <= 0 {
		s.persistTimeout = defaultPersistTimeout
	}
	s.hydrate(ctx)
	return s
}

func (s *Store) hydrate(ctx context.Context) {
	if s.persister == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	loadCtx, cancel := context.WithTimeout(ctx, s.persistTimeout)
	defer cancel()

	payload, err := s.persister.Load(loadCtx, s.key)
	if err != nil {
		s.hydrateErr = err
		s.metrics.IncPersistFailure(s.persister.Name(), "load")
		s.logg.Error(s.logCtx(ctx), "cart.hydrate.load_failed", err)
		return
	}
	state, version, ok := decodeRecord(payload)
	if !ok {
		s.metrics.IncPersistFailure(s.persister.Name(), "decode")
		s.logg.Warn(s.logCtx(ctx), "cart.hydrate.malformed_record")
	}
	s.state = state
	s.version = version
	s.reindex()
}

// HydrationErr returns the read error hit during construction, if any. The store is
// usable either way; it simply started empty.
func (s *Store) HydrationErr() error {
	return s.hydrateErr
}

// Key is the session key the store persists under.
func (s *Store) Key() string {
	return s.key
}

// Version is the record version of the current state. It grows with every committed
// mutation and jumps forward when a newer record is adopted from storage.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// AddItem merges by line id: an existing line gains qty and takes the new display
// snapshot, otherwise a line is appended. Quantities are kept within [1, MaxQty] and
// known stock caps the result. A blank product id adds nothing and is reported as a
// missing_product warning.
func (s *Store) AddItem(ctx context.Context, in LineInput, qty int) Result {
	lineID := MakeLineID(in.ProductID, in.VariantID)
	if strings.TrimSpace(in.ProductID) == "" {
		s.logg.Warn(s.logCtx(ctx), "cart.add_item.missing_product_id")
		warnings := []Warning{{LineID: lineID, Type: enums.CartItemWarningTypeMissingProduct, Requested: qty}}
		s.recordWarnings(warnings)
		return Result{Warnings: warnings}
	}
	qty, clamped := clampQty(lineID, qty, nil)

	return s.mutate(ctx, "add_item", func(state *State) (bool, []Warning) {
		warnings := append([]Warning(nil), clamped...)
		if pos, ok := s.index[lineID]; ok {
			line := &state.Lines[pos]
			line.applySnapshot(in)
			total, saturated := addQty(line.Qty, qty)
			if saturated {
				warnings = append(warnings, Warning{LineID: lineID, Type: enums.CartItemWarningTypeClampedToMax, Requested: qty, Applied: MaxQty})
			}
			line.Qty, warnings = capToStock(lineID, total, line.Stock, warnings)
			return true, warnings
		}
		line := in.toLine(qty)
		line.Qty, warnings = capToStock(lineID, line.Qty, line.Stock, warnings)
		state.Lines = append(state.Lines, line)
		return true, warnings
	})
}

// RemoveItem deletes the line if present; unknown ids are a no-op.
func (s *Store) RemoveItem(ctx context.Context, lineID string) Result {
	return s.mutate(ctx, "remove_item", func(state *State) (bool, []Warning) {
		pos, ok := s.index[lineID]
		if !ok {
			return false, nil
		}
		state.Lines = append(state.Lines[:pos], state.Lines[pos+1:]...)
		return true, nil
	})
}

// SetQty sets the quantity of an existing line, kept within [1, MaxQty]. It never
// removes the line; callers wanting removal use RemoveItem.
func (s *Store) SetQty(ctx context.Context, lineID string, qty int) Result {
	return s.mutate(ctx, "set_qty", func(state *State) (bool, []Warning) {
		pos, ok := s.index[lineID]
		if !ok {
			return false, nil
		}
		requested, warnings := clampQty(lineID, qty, nil)
		line := &state.Lines[pos]
		applied, warnings := capToStock(lineID, requested, line.Stock, warnings)
		if applied == line.Qty {
			return false, warnings
		}
		line.Qty = applied
		return true, warnings
	})
}

// ApplyCoupon replaces any active coupon.
func (s *Store) ApplyCoupon(ctx context.Context, coupon Coupon) Result {
	return s.mutate(ctx, "apply_coupon", func(state *State) (bool, []Warning) {
		state.Coupon = coupon.clone()
		return true, nil
	})
}

func (s *Store) RemoveCoupon(ctx context.Context) Result {
	return s.mutate(ctx, "remove_coupon", func(state *State) (bool, []Warning) {
		if state.Coupon == nil {
			return false, nil
		}
		state.Coupon = nil
		return true, nil
	})
}

// ClearCart resets to an empty cart and always notifies.
func (s *Store) ClearCart(ctx context.Context) Result {
	return s.mutate(ctx, "clear_cart", func(state *State) (bool, []Warning) {
		state.Lines = []Line{}
		state.Coupon = nil
		return true, nil
	})
}

// Subscribe registers fn and returns a function that removes it. Calling the returned
// function more than once is harmless.
func (s *Store) Subscribe(fn Listener) func() {
	if fn == nil {
		return func() {}
	}
	s.mu.Lock()
	s.nextSubID++
	id := s.nextSubID
	s.listeners = append(s.listeners, subscription{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.listeners {
				if sub.id == id {
					s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// State returns a deep copy of the current cart.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

func (s *Store) Lines() []Line {
	return s.State().Lines
}

func (s *Store) Coupon() *Coupon {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Coupon.clone()
}

func (s *Store) Has(lineID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[lineID]
	return ok
}

// Line returns a copy of the line with the given id.
func (s *Store) Line(lineID string) (Line, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.index[lineID]
	if !ok {
		return Line{}, false
	}
	return s.state.Lines[pos].clone(), true
}

func (s *Store) Totals(shipping decimal.Decimal) Totals {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ComputeTotals(s.state.Lines, s.state.Coupon, shipping)
}

func (s *Store) OrderSnapshot(shipping decimal.Decimal) OrderSnapshot {
	return NewOrderSnapshot(s.State(), shipping)
}

// mutate commits fn and then notifies listeners when the state moved.
func (s *Store) mutate(ctx context.Context, op string, fn func(*State) (bool, []Warning)) Result {
	s.writeMu.Lock()
	result, moved := s.commit(ctx, op, fn)
	s.writeMu.Unlock()
	if moved {
		s.dispatch()
	}
	return result
}

// commit applies fn under the state lock and writes the result through. When storage
// already holds a newer record, written by another store for the same session, the
// record is adopted and fn replayed on top of it so neither write is lost.
func (s *Store) commit(ctx context.Context, op string, fn func(*State) (bool, []Warning)) (Result, bool) {
	reloaded := false
	for attempt := 1; ; attempt++ {
		s.mu.Lock()
		changed, warnings := fn(&s.state)
		if !changed {
			s.mu.Unlock()
			s.recordWarnings(warnings)
			return Result{Warnings: warnings}, reloaded
		}
		s.reindex()
		s.version++
		s.seq++
		version := s.version
		snapshot := s.state.Clone()
		s.mu.Unlock()

		err := s.persist(ctx, version, snapshot)
		if errors.Is(err, ErrStaleRecord) {
			if attempt < maxCommitAttempts && s.reload(ctx) {
				reloaded = true
				continue
			}
			s.metrics.IncPersistFailure(s.persister.Name(), "conflict")
			s.logg.Error(s.logCtx(ctx), "cart.persist.conflict_unresolved", err)
		}
		s.metrics.IncMutation(op)
		s.recordWarnings(warnings)
		return Result{Changed: true, Warnings: warnings}, true
	}
}

// persist writes snapshot as record version. Failures other than ErrStaleRecord are
// logged and counted here; the mutation itself stands.
func (s *Store) persist(ctx context.Context, version uint64, snapshot State) error {
	if s.persister == nil {
		return nil
	}
	backend := s.persister.Name()
	payload, err := EncodeState(snapshot, version)
	if err != nil {
		s.metrics.IncPersistFailure(backend, "encode")
		s.logg.Error(s.logCtx(ctx), "cart.persist.encode_failed", err)
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.persistTimeout)
	defer cancel()

	start := time.Now()
	err = s.persister.Save(saveCtx, s.key, version, payload)
	s.metrics.ObservePersist(backend, time.Since(start))
	switch {
	case errors.Is(err, ErrStaleRecord):
		s.logg.Warn(s.logCtx(ctx), "cart.persist.stale_record")
		return err
	case err != nil:
		s.metrics.IncPersistFailure(backend, "save")
		s.logg.Error(s.logCtx(ctx), "cart.persist.save_failed", err)
		return err
	}
	return nil
}

// reload adopts the stored record after a conflicting write. A record that vanished in
// the meantime leaves the local state in place so the next attempt recreates it.
func (s *Store) reload(ctx context.Context) bool {
	if ctx == nil {
		ctx = context.Background()
	}
	loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.persistTimeout)
	defer cancel()

	payload, err := s.persister.Load(loadCtx, s.key)
	if err != nil {
		s.metrics.IncPersistFailure(s.persister.Name(), "load")
		s.logg.Error(s.logCtx(ctx), "cart.persist.reload_failed", err)
		return false
	}
	if payload == nil {
		return true
	}
	state, version, _ := decodeRecord(payload)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	if version > s.version {
		s.version = version
	}
	s.seq++
	s.reindex()
	return true
}

// dispatch hands the latest state to listeners. One goroutine delivers at a time; a
// mutation landing meanwhile, including one made from inside a listener, marks the
// dispatcher pending so it makes another pass. Listeners therefore never finish on a
// snapshot older than the current state.
func (s *Store) dispatch() {
	s.notifyMu.Lock()
	if s.dispatching {
		s.notifyPending = true
		s.notifyMu.Unlock()
		return
	}
	s.dispatching = true
	defer func() {
		if r := recover(); r != nil {
			s.notifyMu.Lock()
			s.dispatching = false
			s.notifyMu.Unlock()
			panic(r)
		}
	}()
	for {
		s.notifyPending = false
		s.notifyMu.Unlock()

		s.deliver()

		s.notifyMu.Lock()
		if !s.notifyPending {
			s.dispatching = false
			s.notifyMu.Unlock()
			return
		}
	}
}

// deliver is only called by the active dispatcher, which owns deliveredSeq.
func (s *Store) deliver() {
	s.mu.RLock()
	seq := s.seq
	snapshot := s.state.Clone()
	listeners := append([]subscription(nil), s.listeners...)
	s.mu.RUnlock()

	if seq == s.deliveredSeq {
		return
	}
	s.deliveredSeq = seq
	for _, sub := range listeners {
		sub.fn(snapshot.Clone())
	}
}

func (s *Store) recordWarnings(warnings []Warning) {
	for _, w := range warnings {
		s.metrics.IncWarning(w.Type.String())
	}
}

func (s *Store) reindex() {
	index := make(map[string]int, len(s.state.Lines))
	for i, line := range s.state.Lines {
		index[line.LineID] = i
	}
	s.index = index
}

func (s *Store) logCtx(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.logg.WithSessionID(ctx, s.key)
}

// clampQty keeps a requested quantity within [1, MaxQty].
func clampQty(lineID string, qty int, warnings []Warning) (int, []Warning) {
	switch {
	case qty < 1:
		return 1, append(warnings, Warning{LineID: lineID, Type: enums.CartItemWarningTypeClampedToMin, Requested: qty, Applied: 1})
	case qty > MaxQty:
		return MaxQty, append(warnings, Warning{LineID: lineID, Type: enums.CartItemWarningTypeClampedToMax, Requested: qty, Applied: MaxQty})
	}
	return qty, warnings
}

// capToStock applies the soft stock ceiling: quantities above known stock are clamped,
// and a line whose stock is exhausted keeps a quantity of one.
func capToStock(lineID string, qty int, stock *int, warnings []Warning) (int, []Warning) {
	if stock == nil {
		return qty, warnings
	}
	if *stock <= 0 {
		warnings = append(warnings, Warning{LineID: lineID, Type: enums.CartItemWarningTypeOutOfStock, Requested: qty, Applied: 1})
		return 1, warnings
	}
	if qty > *stock {
		warnings = append(warnings, Warning{LineID: lineID, Type: enums.CartItemWarningTypeClampedToStock, Requested: qty, Applied: *stock})
		return *stock, warnings
	}
	return qty, warnings
}
