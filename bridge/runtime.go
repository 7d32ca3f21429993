package bridge

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/petermattis/goid"
)

// DefaultDrainInterval is the Run period used for non-positive intervals.
const DefaultDrainInterval = 16 * time.Millisecond

// DrainStats holds statistics from a single drain.
type DrainStats struct {
	Values    int
	Objects   int
	Failed    int
	Duration  time.Duration
	Timestamp time.Time
}

type pendingEntry struct {
	value  Value
	object ObjectID
}

// Runtime owns the engine side of the bridge. The goroutine that creates it
// is its owner; only the owner touches the engine. Releases requested from
// other goroutines are queued and performed in FIFO order by Drain.
type Runtime struct {
	ID uuid.UUID

	engine Engine
	cache  *ObjectCache
	owner  int64

	mu      sync.Mutex // protects pending
	pending []pendingEntry

	closed     atomic.Bool
	drainCount atomic.Uint64
	lastStats  atomic.Value // *DrainStats
}

// NewRuntime creates a runtime owned by the calling goroutine. A nil cache
// gets a default one.
func NewRuntime(engine Engine, cache *ObjectCache) *Runtime {
	if cache == nil {
		cache = NewObjectCache(nil)
	}
	return &Runtime{
		ID:     uuid.New(),
		engine: engine,
		cache:  cache,
		owner:  goid.Get(),
	}
}

// Cache returns the identity cache.
func (r *Runtime) Cache() *ObjectCache { return r.cache }

// IsOwner reports whether the caller runs on the owning goroutine.
func (r *Runtime) IsOwner() bool { return goid.Get() == r.owner }

// Pending is the number of queued releases.
func (r *Runtime) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// enqueue checks closed under mu so that Close, which sets closed before
// taking mu, sees every accepted entry.
func (r *Runtime) enqueue(e pendingEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed.Load() {
		return ErrClosed
	}
	r.pending = append(r.pending, e)
	return nil
}

// FreeValue releases a script value. On the owner it is freed immediately;
// elsewhere it is queued for the next Drain.
func (r *Runtime) FreeValue(v Value) error {
	if r.closed.Load() {
		log.Debugf("runtime %s: dropping free of value %d after close", r.ID, v)
		return ErrClosed
	}
	if !r.IsOwner() {
		return r.enqueue(pendingEntry{value: v})
	}
	if err := r.engine.FreeValue(v); err != nil {
		log.Errorf("runtime %s: freeing value %d: %s", r.ID, v, err)
		return err
	}
	return nil
}

// ReleaseObject releases slot id together with its bound wrapper. Off the
// owner the record becomes PendingFree until drained; a repeated release of a
// pending record is ignored.
func (r *Runtime) ReleaseObject(id ObjectID) error {
	if r.closed.Load() {
		return ErrClosed
	}
	if !r.IsOwner() {
		if !r.cache.markPending(id) {
			if r.cache.State(id) == StatePendingFree {
				log.Debugf("runtime %s: object %d already pending", r.ID, id)
				return nil
			}
			return fmt.Errorf("%w: %d", ErrUnknownObject, id)
		}
		return r.enqueue(pendingEntry{object: id})
	}
	return r.releaseObject(id)
}

func (r *Runtime) releaseObject(id ObjectID) error {
	v, bound := r.cache.boundValue(id)
	if !r.cache.RemoveObject(id) {
		return fmt.Errorf("%w: %d", ErrUnknownObject, id)
	}
	if bound {
		if err := r.engine.FreeValue(v); err != nil {
			return fmt.Errorf("freeing wrapper of object %d: %w", id, err)
		}
	}
	return nil
}

// Drain performs every queued release in request order and returns how many
// entries were processed. Failures are logged and not requeued. It does
// nothing when called off the owning goroutine.
func (r *Runtime) Drain() int {
	if !r.IsOwner() {
		log.Warningf("runtime %s: %s", r.ID, ErrNotOwner)
		return 0
	}
	s := r.drain()
	return s.Values + s.Objects
}

func (r *Runtime) drain() *DrainStats {
	start := time.Now()
	stats := &DrainStats{Timestamp: start}

	r.mu.Lock()
	queue := r.pending
	r.pending = nil
	r.mu.Unlock()

	for _, e := range queue {
		if e.object != 0 {
			stats.Objects++
			if err := r.releaseObject(e.object); err != nil {
				stats.Failed++
				log.Errorf("runtime %s: draining object %d: %s", r.ID, e.object, err)
			}
			continue
		}
		stats.Values++
		if err := r.engine.FreeValue(e.value); err != nil {
			stats.Failed++
			log.Errorf("runtime %s: draining value %d: %s", r.ID, e.value, err)
		}
	}

	stats.Duration = time.Since(start)
	r.drainCount.Add(1)
	r.lastStats.Store(stats)
	return stats
}

// DrainCount returns the number of drains performed.
func (r *Runtime) DrainCount() uint64 { return r.drainCount.Load() }

// LastDrain returns statistics from the most recent drain, or nil.
func (r *Runtime) LastDrain() *DrainStats {
	v := r.lastStats.Load()
	if v == nil {
		return nil
	}
	return v.(*DrainStats)
}

// Run drains the queue every interval until ctx is done or the runtime is
// closed. It must be called on the owning goroutine and blocks it, so it
// suits hosts whose owner goroutine has no frame loop of its own.
func (r *Runtime) Run(ctx context.Context, interval time.Duration) error {
	if !r.IsOwner() {
		return ErrNotOwner
	}
	if interval <= 0 {
		interval = DefaultDrainInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.drain()
			return ctx.Err()
		case <-ticker.C:
			if r.closed.Load() {
				return ErrClosed
			}
			r.drain()
		}
	}
}

// NewObject creates the script wrapper of host, reusing the existing one
// when host is already wrapped and that wrapper is not pending release. With
// makeRef the wrapper is bound in the cache so later pushes of host return it.
func (r *Runtime) NewObject(host any, disposable, makeRef bool) (Value, error) {
	if r.closed.Load() {
		return 0, ErrClosed
	}
	if !r.IsOwner() {
		return 0, ErrNotOwner
	}
	if !hashable(host) {
		return 0, fmt.Errorf("%w: %T", ErrUnhashable, host)
	}
	if v, ok := r.cache.TryGetScriptValue(host); ok {
		return v, nil
	}
	id, existed := r.cache.add(host, disposable)
	v, err := r.engine.NewObject(id)
	if err != nil {
		if !existed {
			r.cache.forget(id)
		}
		return 0, fmt.Errorf("creating wrapper of object %d: %w", id, err)
	}
	if makeRef {
		r.cache.AddScriptValue(host, v)
	}
	return v, nil
}

// Push converts a host value to a script value. Byte slices become buffers;
// other hosts are wrapped once and the wrapper is reused afterwards. Pushed
// hosts stay owned by the host side.
func (r *Runtime) Push(host any) (Value, error) {
	switch h := host.(type) {
	case nil:
		return 0, nil
	case []byte:
		if r.closed.Load() {
			return 0, ErrClosed
		}
		if !r.IsOwner() {
			return 0, ErrNotOwner
		}
		return r.engine.NewBuffer(h)
	}
	return r.NewObject(host, false, true)
}

// SetModuleLoader registers loader with the engine.
func (r *Runtime) SetModuleLoader(loader ModuleLoader) error {
	if r.closed.Load() {
		return ErrClosed
	}
	return r.engine.SetModuleLoader(loader)
}

// Close tears the runtime down. On the owner, queued releases are drained
// first; off the owner they are counted as leaked and logged. The cache is
// cleared and later requests fail with ErrClosed.
func (r *Runtime) Close() error {
	if r.closed.Swap(true) {
		return ErrClosed
	}
	if r.IsOwner() {
		stats := r.drain()
		log.Debugf("runtime %s: drained %d values and %d objects on close", r.ID, stats.Values, stats.Objects)
	} else {
		r.mu.Lock()
		leaked := len(r.pending)
		r.pending = nil
		r.mu.Unlock()
		if leaked > 0 {
			log.Warningf("runtime %s: closed off the owning goroutine, leaking %d pending releases", r.ID, leaked)
		}
	}
	if n := r.cache.Clear(); n > 0 {
		log.Infof("runtime %s: cleared %d live objects", r.ID, n)
	}
	return nil
}
