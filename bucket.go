package afli

// bucket is a small unordered leaf holding at most maxBucketSize entries for
// a single slot. Every operation runs under the bucket's own spinlock; the
// node holding the slot additionally holds that slot's lock for the
// duration, per SPEC_FULL.md §3 invariant 4.
//
// data is sized maxBucketSize+1: insert always writes unconditionally at
// data[size] and then checks whether size reached maxBucketSize, rather than
// gating the write on a size test first (SPEC_FULL.md §4.3).
type bucket[K Number, V any] struct {
	lock spinlock

	data []KV[K, V]
	size uint8

	// nodeID/slotIdx cross-check the rebuild handoff's assumption that this
	// bucket is still the one the rebuilding goroutine thinks it is; purely
	// a debug assertion per SPEC_FULL.md/§9 ("can be dropped in release
	// builds"), kept here since the cost is two words per bucket.
	nodeID  uint32
	slotIdx uint32
}

// newBucket creates a bucket preloaded with kvs (which must already fit
// within maxBucketSize), owned by the slot (nodeID, slotIdx).
func newBucket[K Number, V any](kvs []KV[K, V], maxBucketSize uint32, nodeID, slotIdx uint32) *bucket[K, V] {
	b := &bucket[K, V]{
		data:    make([]KV[K, V], maxBucketSize+1),
		nodeID:  nodeID,
		slotIdx: slotIdx,
	}
	n := copy(b.data, kvs)
	b.size = uint8(n)
	return b
}

// find performs a linear scan for key under the bucket's spinlock.
func (b *bucket[K, V]) find(key K) (V, bool) {
	b.lock.Lock()
	defer b.lock.Unlock()
	for i := uint8(0); i < b.size; i++ {
		if b.data[i].Key == key {
			return b.data[i].Value, true
		}
	}
	var zero V
	return zero, false
}

// update overwrites the value for key if present, returning whether it was
// found.
func (b *bucket[K, V]) update(kv KV[K, V]) bool {
	b.lock.Lock()
	defer b.lock.Unlock()
	for i := uint8(0); i < b.size; i++ {
		if b.data[i].Key == kv.Key {
			b.data[i] = kv
			return true
		}
	}
	return false
}

// remove deletes key if present, left-shifting the suffix into the vacated
// position.
func (b *bucket[K, V]) remove(key K) bool {
	b.lock.Lock()
	defer b.lock.Unlock()
	found := false
	for i := uint8(0); i < b.size; i++ {
		if !found && b.data[i].Key == key {
			found = true
		}
		if found && i+1 < b.size {
			b.data[i] = b.data[i+1]
		}
	}
	if found {
		b.size--
	}
	return found
}

// insert appends kv and reports whether the bucket now needs rebuilding
// (size reached maxBucketSize). The caller (node.insert) guarantees key is
// not already present, since the node's tag dispatch only reaches here
// after a find-equivalent check; insert itself does not scan for
// duplicates, per SPEC_FULL.md §4.3/§9.
func (b *bucket[K, V]) insert(kv KV[K, V], maxBucketSize uint32) (needRebuild bool) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.data[b.size] = kv
	b.size++
	return uint32(b.size) >= maxBucketSize
}

// copySorted returns a freshly allocated, key-sorted copy of the bucket's
// current contents. Used by the rebuild protocol, which reads the bucket
// while still holding the owning slot's lock.
func (b *bucket[K, V]) copySorted() []KV[K, V] {
	b.lock.Lock()
	out := make([]KV[K, V], b.size)
	copy(out, b.data[:b.size])
	b.lock.Unlock()

	sortKVs(out)
	return out
}

func (b *bucket[K, V]) len() uint8 {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.size
}
