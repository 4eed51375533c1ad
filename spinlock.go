package afli

import "sync/atomic"

// spinlock is a CAS spinlock on an atomic.Bool (a 32-bit word, not a
// single byte), generalizing the CAS-loop idiom
// absir-cmap uses for its single resize flag (atomic.CompareAndSwapUint32)
// into a per-slot primitive: one spinlock sits in every bucket and in every
// entry of a node's entryLock array, one struct per slot (not packed into a
// shared word the way the tag bitmaps are). SPEC_FULL.md §3/§9 only
// requires a byte-per-slot lock, not cache-line isolation between slots:
// several adjacent spinlock structs still land on the same line, so
// contention on one slot can cost its neighbors a coherence bounce.
type spinlock struct {
	state atomic.Bool
}

// Lock busy-spins until the lock is acquired. The acquire succeeds via a
// CAS from false (unlocked) to true (locked); Go's memory model gives the
// acquire/release fences the spec requires for free on atomic.Bool.
func (s *spinlock) Lock() {
	for !s.state.CompareAndSwap(false, true) {
	}
}

// Unlock releases the lock via a plain atomic store, acting as a release
// fence.
func (s *spinlock) Unlock() {
	s.state.Store(false)
}
