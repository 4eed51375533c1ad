package afli

import (
	"errors"
	"fmt"
)

// Sentinel errors for the handful of call sites that surface a recoverable
// Go error instead of panicking (BulkLoad's precondition pre-check and the
// pool's closed-pool case). Everything else in the descent path returns
// bool/zero-value per SPEC_FULL.md §7 and never allocates an error at all.
var (
	ErrNotEmpty           = errors.New("afli: index is not empty")
	ErrUnsorted           = errors.New("afli: keys are not strictly sorted")
	ErrDuplicateKey       = errors.New("afli: duplicate key in bulk-load input")
	ErrClosed             = errors.New("afli: pool is closed")
	ErrDegenerateKeyspace = errors.New("afli: degenerate keyspace")
)

// panicf panics with a formatted message, used at the precondition and
// invariant-violation sites the spec classifies as programmer errors
// (all-equal keys in buildModel, a failed fit in node.build, Insert before
// BulkLoad, mismatched calibration lengths). Unsorted or duplicate bulk-load
// input panics with Validate's error instead, and slot-tag/payload
// inconsistency goes through mustf.
func panicf(format string, args ...any) {
	panic(fmt.Errorf(format, args...))
}

// mustf panics with err wrapped by a formatted message if cond is false.
func mustf(cond bool, err error, format string, args ...any) {
	if !cond {
		panic(fmt.Errorf(format+": %w", append(args, err)...))
	}
}

// Validate reports whether kvs is strictly sorted by key with no duplicates,
// the precondition BulkLoad requires. It lets callers check in advance
// instead of relying on BulkLoad's panic.
func Validate[K Number, V any](kvs []KV[K, V]) error {
	if isSortedUnique(kvs) {
		return nil
	}
	for i := 1; i < len(kvs); i++ {
		if !(kvs[i-1].Key < kvs[i].Key) {
			if kvs[i-1].Key == kvs[i].Key {
				return fmt.Errorf("index %d: %w: %v", i, ErrDuplicateKey, kvs[i].Key)
			}
			return fmt.Errorf("index %d: %w", i, ErrUnsorted)
		}
	}
	return nil
}
