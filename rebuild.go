package afli

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// rebuildDescriptor is the handoff record a saturated bucket insert returns:
// the owning node, the idx whose lock is still held by the caller, and the
// depth the replacement child should be built at.
type rebuildDescriptor[K Number, V any] struct {
	node  *node[K, V]
	depth uint32
	idx   uint32
}

// run executes the rebuild protocol described in SPEC_FULL.md §4.6. It
// assumes the slot's lock is already held (by the foreground goroutine that
// detected saturation) and releases it itself once the handoff completes.
// The child's bulk build runs while that lock is held, so readers arriving
// at this slot spin for the whole rebuild.
func (d *rebuildDescriptor[K, V]) run(hp *HyperParameters, ids *atomic.Uint32, logger *zap.Logger) {
	n, idx := d.node, d.idx
	b := n.entries[idx].bucket
	mustf(b != nil, ErrDegenerateKeyspace, "rebuild: node %d slot %d has no bucket", n.id, idx)
	mustf(b.nodeID == n.id && b.slotIdx == idx, ErrDegenerateKeyspace,
		"rebuild: node %d slot %d bucket cross-check failed (got node %d slot %d)",
		n.id, idx, b.nodeID, b.slotIdx)

	sorted := b.copySorted()

	child := newNode[K, V](ids.Add(1) - 1)
	buildChild(child, sorted, d.depth+1, hp, ids, logger)

	// Atomic handoff: still holding the slot lock from insert's saturation
	// detection, swap the bucket pointer for the child pointer and flip the
	// tag, then release.
	n.entries[idx].child = child
	n.setEntryType(idx, entryChild)
	n.entries[idx].bucket = nil
	n.unlockEntry(idx)
}

// buildChild runs node.build, promoting to the direct-index fallback and
// logging if the fit is irrecoverably non-monotone (SPEC_FULL.md §4.6: "A
// rebuild that discovers a non-monotone model fit ... must log and promote
// the child to the builder's direct-index fallback").
func buildChild[K Number, V any](child *node[K, V], kvs []KV[K, V], depth uint32, hp *HyperParameters, ids *atomic.Uint32, logger *zap.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("rebuild: model fit failed, promoting to direct-index fallback",
				zap.Uint32("nodeID", child.id),
				zap.Uint32("depth", depth),
				zap.Int("entries", len(kvs)),
				zap.Any("panic", r),
			)
			directIndexBuild(child, kvs)
		}
	}()
	child.build(kvs, depth, hp, ids)
}

// directIndexBuild lays kvs out one-per-slot with a simple direct-index
// model (slope = n/(k_max-k_min)), the fallback path the original source
// reaches for when even the spline-adjusted fit collides every key onto one
// slot (original_source/src/core/conflicts.h's direct-index branch).
func directIndexBuild[K Number, V any](child *node[K, V], kvs []KV[K, V]) {
	n := uint32(len(kvs))
	if n == 0 {
		child.allocate(1)
		return
	}
	minKey := toFloat64(kvs[0].Key)
	maxKey := toFloat64(kvs[n-1].Key)
	child.allocate(n)
	if maxKey == minKey {
		child.model = linearModel{slope: 0, intercept: 0}
	} else {
		slope := float64(n) / (maxKey - minKey)
		child.model = linearModel{slope: slope, intercept: -slope * minKey}
	}
	for _, kv := range kvs {
		idx := clampIndex(child.model.predict(toFloat64(kv.Key)), child.capacity)
		if child.entryType(idx) == entryNone {
			child.entries[idx].kv = kv
			child.setEntryType(idx, entryData)
			continue
		}
		// Position collision under the direct-index fallback: escalate to
		// a bucket rather than silently dropping the entry.
		if child.entryType(idx) == entryData {
			stored := child.entries[idx].kv
			b := newBucket([]KV[K, V]{stored}, uint32(n), child.id, idx)
			child.entries[idx].bucket = b
			child.setEntryType(idx, entryBucket)
		}
		child.entries[idx].bucket.insert(kv, uint32(n)+1)
	}
}
