package afli

import "sync/atomic"

// Slot tags, packed 2 bits per slot across bitmap0/bitmap1, matching
// original_source/src/core/afli_node_para.h's EntryType enum.
const (
	entryNone   uint8 = 0
	entryData   uint8 = 1
	entryBucket uint8 = 2
	entryChild  uint8 = 3
)

const bitsPerWord = 32

// slotEntry is the tagged-union payload for one slot: exactly one of kv,
// bucket, child is meaningful, selected by the slot's 2-bit tag in the
// owning node's bitmaps. Kept as a plain struct (not an unsafe.Pointer
// union) since Go has no raw unions and nothing in the spec requires the
// memory layout to beat one cache line (SPEC_FULL.md §3).
type slotEntry[K Number, V any] struct {
	kv     KV[K, V]
	bucket *bucket[K, V]
	child  *node[K, V]
}

// node is a model node: a fitted linear model, a slot array, two packed
// bitmaps encoding each slot's tag, and a per-slot spinlock array. A child
// pointer may be duplicated across a contiguous run of slots when the
// conflict analyzer aggregates several high-conflict positions into one
// subtree (SPEC_FULL.md §3/§4.4); the leftmost slot of that run owns it.
type node[K Number, V any] struct {
	id       uint32
	model    linearModel
	capacity uint32

	bitmap0 []atomic.Uint32
	bitmap1 []atomic.Uint32

	entries   []slotEntry[K, V]
	entryLock []spinlock
}

func newNode[K Number, V any](id uint32) *node[K, V] {
	return &node[K, V]{id: id}
}

func (n *node[K, V]) allocate(capacity uint32) {
	n.capacity = capacity
	words := (capacity + bitsPerWord - 1) / bitsPerWord
	n.bitmap0 = make([]atomic.Uint32, words)
	n.bitmap1 = make([]atomic.Uint32, words)
	n.entries = make([]slotEntry[K, V], capacity)
	n.entryLock = make([]spinlock, capacity)
}

func (n *node[K, V]) lockEntry(idx uint32)   { n.entryLock[idx].Lock() }
func (n *node[K, V]) unlockEntry(idx uint32) { n.entryLock[idx].Unlock() }

// entryType reads a slot's 2-bit tag. The bitmap words are shared by up to
// bitsPerWord adjacent slots, so this always goes through an atomic load
// even though the slot itself is additionally protected by its own lock
// (SPEC_FULL.md §4.4).
func (n *node[K, V]) entryType(idx uint32) uint8 {
	wordIdx, bitPos := idx/bitsPerWord, idx%bitsPerWord
	w0 := n.bitmap0[wordIdx].Load()
	w1 := n.bitmap1[wordIdx].Load()
	bit0 := (w0 >> bitPos) & 1
	bit1 := (w1 >> bitPos) & 1
	return uint8(bit0 | (bit1 << 1))
}

// setEntryType flips only the bits that differ, via a CAS retry loop on the
// shared bitmap word (SPEC_FULL.md §4.4: "the bitmap words themselves ...
// MUST be mutated with atomic read-modify-write").
func (n *node[K, V]) setEntryType(idx uint32, t uint8) {
	wordIdx, bitPos := idx/bitsPerWord, idx%bitsPerWord
	setBit(&n.bitmap0[wordIdx], bitPos, t&1)
	setBit(&n.bitmap1[wordIdx], bitPos, (t>>1)&1)
}

func setBit(word *atomic.Uint32, pos uint32, bit uint8) {
	for {
		old := word.Load()
		want := (old >> pos) & 1
		if uint8(want) == bit {
			return
		}
		next := old ^ (1 << pos)
		if word.CompareAndSwap(old, next) {
			return
		}
	}
}

func (n *node[K, V]) index(key K) uint32 {
	return clampIndex(n.model.predict(toFloat64(key)), n.capacity)
}

// find descends for key, returning its value if present.
func (n *node[K, V]) find(key K) (V, bool) {
	idx := n.index(key)
	n.lockEntry(idx)
	switch n.entryType(idx) {
	case entryNone:
		n.unlockEntry(idx)
		var zero V
		return zero, false
	case entryData:
		kv := n.entries[idx].kv
		n.unlockEntry(idx)
		if kv.Key == key {
			return kv.Value, true
		}
		var zero V
		return zero, false
	case entryBucket:
		b := n.entries[idx].bucket
		mustf(b != nil, ErrDegenerateKeyspace, "node %d slot %d: bucket tag with nil bucket", n.id, idx)
		v, ok := b.find(key)
		n.unlockEntry(idx)
		return v, ok
	default: // entryChild
		child := n.entries[idx].child
		mustf(child != nil, ErrDegenerateKeyspace, "node %d slot %d: child tag with nil child", n.id, idx)
		n.unlockEntry(idx)
		return child.find(key)
	}
}

// update overwrites the value for key if present anywhere in the subtree
// rooted here, returning whether it was found.
func (n *node[K, V]) update(kv KV[K, V]) bool {
	idx := n.index(kv.Key)
	n.lockEntry(idx)
	switch n.entryType(idx) {
	case entryNone:
		n.unlockEntry(idx)
		return false
	case entryData:
		found := n.entries[idx].kv.Key == kv.Key
		if found {
			n.entries[idx].kv = kv
		}
		n.unlockEntry(idx)
		return found
	case entryBucket:
		b := n.entries[idx].bucket
		res := b.update(kv)
		n.unlockEntry(idx)
		return res
	default:
		child := n.entries[idx].child
		n.unlockEntry(idx)
		return child.update(kv)
	}
}

// remove deletes key if present anywhere in the subtree rooted here.
func (n *node[K, V]) remove(key K) bool {
	idx := n.index(key)
	n.lockEntry(idx)
	switch n.entryType(idx) {
	case entryNone:
		n.unlockEntry(idx)
		return false
	case entryData:
		found := n.entries[idx].kv.Key == key
		if found {
			n.setEntryType(idx, entryNone)
		}
		n.unlockEntry(idx)
		return found
	case entryBucket:
		b := n.entries[idx].bucket
		res := b.remove(key)
		n.unlockEntry(idx)
		return res
	default:
		child := n.entries[idx].child
		n.unlockEntry(idx)
		return child.remove(key)
	}
}

// insert descends for kv.Key. On success it returns nil; a key that is
// already stored in a data slot or bucket has its value overwritten instead
// of being added a second time. If the insert saturates a bucket, the slot
// lock is retained (not released) and a rebuildDescriptor is returned for
// the caller to post to the background pool or execute inline.
func (n *node[K, V]) insert(kv KV[K, V], depth uint32, hp *HyperParameters, ids *atomic.Uint32) *rebuildDescriptor[K, V] {
	idx := n.index(kv.Key)
	n.lockEntry(idx)
	switch n.entryType(idx) {
	case entryNone:
		n.entries[idx].kv = kv
		n.setEntryType(idx, entryData)
		n.unlockEntry(idx)
		return nil

	case entryData:
		stored := n.entries[idx].kv
		if stored.Key == kv.Key {
			n.entries[idx].kv = kv
			n.unlockEntry(idx)
			return nil
		}
		b := newBucket([]KV[K, V]{stored}, hp.MaxBucketSize, n.id, idx)
		n.entries[idx].bucket = b
		n.setEntryType(idx, entryBucket)
		fallthrough

	case entryBucket:
		b := n.entries[idx].bucket
		if b.update(kv) {
			n.unlockEntry(idx)
			return nil
		}
		needRebuild := b.insert(kv, hp.MaxBucketSize)
		if needRebuild {
			// Slot lock intentionally retained across the handoff to the
			// background rebuild (SPEC_FULL.md §4.6/§9).
			return &rebuildDescriptor[K, V]{node: n, depth: depth, idx: idx}
		}
		n.unlockEntry(idx)
		return nil

	default: // entryChild
		child := n.entries[idx].child
		n.unlockEntry(idx)
		return child.insert(kv, depth+1, hp, ids)
	}
}

// build performs the recursive bulk build described in SPEC_FULL.md §4.4:
// fit a model, compute the conflict table, then lay out each conflicted
// position as a data slot, a bucket, or an aggregated child subtree.
func (n *node[K, V]) build(kvs []KV[K, V], depth uint32, hp *HyperParameters, ids *atomic.Uint32) {
	size := uint32(len(kvs))
	if size == 1 {
		// A legitimately single-key node: conflict analysis requires two
		// distinct keys to fit a slope against, so this trivial case is
		// handled directly rather than routed through buildModel.
		n.allocate(1)
		n.entries[0].kv = kvs[0]
		n.setEntryType(0, entryData)
		return
	}

	keys := keysOf(kvs)
	model, ci, ok := buildModel(keys, hp.SizeAmplification)
	if !ok {
		panicf("%w: failed to fit a linear model over %d keys", ErrDegenerateKeyspace, size)
	}
	n.model = model
	n.allocate(ci.capacity)

	j := uint32(0)
	entries := ci.entries
	for i := 0; i < len(entries); i++ {
		p := entries[i].position
		c := entries[i].occupancy
		switch {
		case c == 0:
			continue
		case c == 1:
			n.entries[p].kv = kvs[j]
			n.setEntryType(p, entryData)
			j += c
		case c <= hp.MaxBucketSize:
			n.entries[p].bucket = newBucket(kvs[j:j+c], hp.MaxBucketSize, n.id, p)
			n.setEntryType(p, entryBucket)
			j += c
		default:
			k := i + 1
			segSize := c
			end := len(entries)
			if hp.AggregateSize != 0 {
				if lookahead := k + int(hp.AggregateSize); lookahead < end {
					end = lookahead
				}
			}
			for k < end &&
				entries[k].position-entries[k-1].position == 1 &&
				entries[k].occupancy > hp.MaxBucketSize+1 {
				segSize += entries[k].occupancy
				k++
			}

			if segSize == size {
				// No aggregation benefit possible: split rather than
				// recurse on the same input, building one child per
				// conflicted position in the run.
				for u := i; u < k; u++ {
					pu, cu := entries[u].position, entries[u].occupancy
					child := newNode[K, V](ids.Add(1) - 1)
					child.build(kvs[j:j+cu], depth+1, hp, ids)
					n.entries[pu].child = child
					n.setEntryType(pu, entryChild)
					j += cu
				}
			} else {
				child := newNode[K, V](ids.Add(1) - 1)
				child.build(kvs[j:j+segSize], depth+1, hp, ids)
				for u := i; u < k; u++ {
					pu := entries[u].position
					n.entries[pu].child = child
					n.setEntryType(pu, entryChild)
				}
				j += segSize
			}
			i = k - 1
		}
	}
}

// teardown walks every slot, recursing into children exactly once even when
// fanned-in across a run, and reports the number of buckets and child nodes
// it released. Go's GC reclaims the memory; this exists so destruction
// uniqueness (no double-free, no leak) is directly observable/testable
// (property P9), and so Index.Close can wait for in-flight rebuilds to
// settle before letting the tree go.
func (n *node[K, V]) teardown() (buckets, children int) {
	for i := uint32(0); i < n.capacity; i++ {
		switch n.entryType(i) {
		case entryBucket:
			n.entries[i].bucket = nil
			buckets++
		case entryChild:
			child := n.entries[i].child
			j := i
			for j < n.capacity && n.entryType(j) == entryChild && n.entries[j].child == child {
				j++
			}
			cb, cc := child.teardown()
			buckets += cb
			children += cc + 1
			i = j - 1
		}
	}
	return buckets, children
}

// sizeBytes estimates the node's own memory footprint plus everything it
// owns, for Index.ModelSize/IndexSize.
func (n *node[K, V]) sizeBytes(includeBuckets bool) uint64 {
	var sz uint64
	sz += uint64(len(n.bitmap0)+len(n.bitmap1)) * 4
	sz += uint64(len(n.entries)) * sizeOfSlotEntry[K, V]()
	sz += uint64(len(n.entryLock))

	for i := uint32(0); i < n.capacity; i++ {
		switch n.entryType(i) {
		case entryBucket:
			if includeBuckets {
				b := n.entries[i].bucket
				sz += uint64(len(b.data)) * sizeOfKV[K, V]()
			}
		case entryChild:
			child := n.entries[i].child
			j := i
			for j < n.capacity && n.entryType(j) == entryChild && n.entries[j].child == child {
				j++
			}
			sz += child.sizeBytes(includeBuckets)
			i = j - 1
		}
	}
	return sz
}
