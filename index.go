package afli

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Index is the top-level facade (SPEC_FULL.md §4.5/§6): a model node tree
// plus an optional numerical-flow Transform, a background rebuild Pool, and
// the logger/back-pressure knobs supplied at construction. It corresponds
// to original_source/src/core/nfl_para.h's NFLPara, generalized from its
// hardcoded double-key transform index to the generic Transform[K]
// collaborator (SPEC_FULL.md §6).
type Index[K Number, V any] struct {
	hp     HyperParameters
	logger *zap.Logger
	pool   Pool

	ids atomic.Uint32

	mu         sync.RWMutex
	loaded     bool
	closed     bool
	enableFlow bool

	root      *node[K, V]
	tran      *node[float64, KV[K, V]]
	transform Transform[K]
}

// New constructs an empty Index. Call BulkLoad before any other method; a
// zero-value tree answers every lookup as not-found but panics on Insert,
// matching the spec's "bulk-load is a precondition of use" framing
// (SPEC_FULL.md §4.5 expansion).
func New[K Number, V any](opts ...Option) *Index[K, V] {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	pool := o.pool
	if pool == nil {
		if o.hp.MaxBackgroundWorkers == 0 {
			pool = inlinePool{}
		} else {
			pool = NewPool(o.hp.MaxBackgroundWorkers)
		}
	}
	return &Index[K, V]{
		hp:     o.hp,
		logger: o.logger,
		pool:   pool,
	}
}

// BulkLoad builds the index from kvs, which must be sorted strictly
// increasing by key with no duplicates (SPEC_FULL.md §4.2 precondition); a
// violation panics with ErrUnsorted/ErrDuplicateKey, mirroring the spec's
// classification of malformed bulk-load input as a programmer error rather
// than a recoverable runtime condition (SPEC_FULL.md §7).
//
// tr may be nil. When non-nil, BulkLoad decides whether to route all keys
// through tr before indexing them, following the tail-conflict comparison
// in shouldEnableTransform (original_source/src/core/nfl_para_impl.h's
// auto_switch).
func (ix *Index[K, V]) BulkLoad(kvs []KV[K, V], tr Transform[K]) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.loaded {
		panic(ErrNotEmpty)
	}
	if err := Validate(kvs); err != nil {
		panic(err)
	}

	if len(kvs) == 0 {
		ix.root = newNode[K, V](ix.ids.Add(1) - 1)
		ix.root.allocate(1)
		ix.loaded = true
		return
	}

	if tr != nil && shouldEnableTransform(kvs, tr, ix.hp) {
		ix.enableFlow = true
		ix.transform = tr
		wrapped := make([]KV[float64, KV[K, V]], len(kvs))
		for i, kv := range kvs {
			tkey, _ := tr.Transform(kv.Key)
			wrapped[i] = KV[float64, KV[K, V]]{Key: tkey, Value: kv}
		}
		sortKVs(wrapped)
		ix.tran = newNode[float64, KV[K, V]](ix.ids.Add(1) - 1)
		ix.tran.build(wrapped, 0, &ix.hp, &ix.ids)
	} else {
		ix.root = newNode[K, V](ix.ids.Add(1) - 1)
		ix.root.build(kvs, 0, &ix.hp, &ix.ids)
	}
	ix.loaded = true
}

// Find reports the value stored for key, if any.
func (ix *Index[K, V]) Find(key K) (V, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if !ix.loaded {
		var zero V
		return zero, false
	}
	if ix.enableFlow {
		tkey, ok := ix.transform.Transform(key)
		if !ok {
			var zero V
			return zero, false
		}
		wrapped, found := ix.tran.find(tkey)
		if !found || wrapped.Key != key {
			var zero V
			return zero, false
		}
		return wrapped.Value, true
	}
	return ix.root.find(key)
}

// Update overwrites the value for an existing key, reporting whether the
// key was present. It never changes the tree's shape, so it can run
// concurrently with Find/Insert without taking the facade write lock.
func (ix *Index[K, V]) Update(key K, value V) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if !ix.loaded {
		return false
	}
	if ix.enableFlow {
		tkey, ok := ix.transform.Transform(key)
		if !ok {
			return false
		}
		return ix.tran.update(KV[float64, KV[K, V]]{Key: tkey, Value: KV[K, V]{Key: key, Value: value}})
	}
	return ix.root.update(KV[K, V]{Key: key, Value: value})
}

// Remove deletes key from the index, reporting whether it was present.
func (ix *Index[K, V]) Remove(key K) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if !ix.loaded {
		return false
	}
	if ix.enableFlow {
		tkey, ok := ix.transform.Transform(key)
		if !ok {
			return false
		}
		return ix.tran.remove(tkey)
	}
	return ix.root.remove(key)
}

// Insert adds a new key-value pair. If the insert saturates a bucket, the
// resulting subtree rebuild is posted to the background Pool; once the
// pool's queued depth exceeds MaxQueuedRebuilds, Insert blocks via
// SubmitAndWait instead of continuing to fire-and-forget, the back-pressure
// rule from SPEC_FULL.md §4.5/§6.
func (ix *Index[K, V]) Insert(key K, value V) {
	ix.mu.RLock()
	loaded := ix.loaded
	enableFlow := ix.enableFlow
	ix.mu.RUnlock()
	if !loaded {
		panicf("afli: Insert called before BulkLoad")
	}

	if enableFlow {
		tkey, ok := ix.transform.Transform(key)
		if !ok {
			tkey = toFloat64(key)
		}
		wrapped := KV[float64, KV[K, V]]{Key: tkey, Value: KV[K, V]{Key: key, Value: value}}
		desc := ix.tran.insert(wrapped, 0, &ix.hp, &ix.ids)
		if desc != nil {
			ix.schedule(func() { desc.run(&ix.hp, &ix.ids, ix.logger) })
		}
		return
	}

	desc := ix.root.insert(KV[K, V]{Key: key, Value: value}, 0, &ix.hp, &ix.ids)
	if desc != nil {
		ix.schedule(func() { desc.run(&ix.hp, &ix.ids, ix.logger) })
	}
}

// schedule posts a rebuild closure to the background pool, blocking on
// SubmitAndWait once the queue is past MaxQueuedRebuilds rather than
// growing it without bound (SPEC_FULL.md §4.5/§6).
func (ix *Index[K, V]) schedule(run func()) {
	if ix.pool.QueuedDepth() > ix.hp.MaxQueuedRebuilds {
		ix.pool.SubmitAndWait(run)
		return
	}
	if err := ix.pool.Submit(run); err != nil {
		run()
	}
}

// Scan always returns an empty slice: range scans are explicitly out of
// scope (SPEC_FULL.md §1 Non-goals), kept as a method only so callers that
// expect the original's full surface get a well-defined, documented no-op
// instead of a missing symbol.
func (ix *Index[K, V]) Scan(begin, end K) []KV[K, V] {
	return []KV[K, V]{}
}

// ModelSize reports the size in bytes of the fitted models and slot
// bitmaps/tags, excluding bucket payloads (SPEC_FULL.md §6).
func (ix *Index[K, V]) ModelSize() uint64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if !ix.loaded {
		return 0
	}
	if ix.enableFlow {
		return ix.tran.sizeBytes(false)
	}
	return ix.root.sizeBytes(false)
}

// IndexSize reports the total size in bytes, models plus bucket payloads.
func (ix *Index[K, V]) IndexSize() uint64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if !ix.loaded {
		return 0
	}
	if ix.enableFlow {
		return ix.tran.sizeBytes(true)
	}
	return ix.root.sizeBytes(true)
}

// Close drains the background pool and tears down the tree, reporting how
// many buckets and child nodes were released (SPEC_FULL.md §5 resolves this
// as a synchronous drain-then-free, not a fire-and-forget shutdown). Callers
// must stop issuing Insert/Find/Update/Remove before calling Close; it does
// not itself quiesce in-flight operations.
func (ix *Index[K, V]) Close(ctx context.Context) (buckets, children int, err error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed {
		return 0, 0, nil
	}
	ix.closed = true

	err = ix.pool.Shutdown(ctx)
	if !ix.loaded {
		return 0, 0, err
	}
	if ix.enableFlow {
		buckets, children = ix.tran.teardown()
	} else {
		buckets, children = ix.root.teardown()
	}
	return buckets, children, err
}
