package afli

// HyperParameters are the tunable knobs from SPEC_FULL.md §6. They are
// read-only after construction, with one exception noted on the facade:
// the background-assigned node id counter is not part of this struct, it
// lives alongside it as an atomic counter incremented under the parent
// slot's lock during build.
type HyperParameters struct {
	// MaxBucketSize is the leaf bucket capacity B. Default 6.
	MaxBucketSize uint32
	// AggregateSize bounds how many adjacent high-conflict positions the
	// bulk build may fold into one child subtree; 0 means unbounded.
	AggregateSize uint32
	// MaxBackgroundWorkers sizes the default rebuild pool. Default 2.
	MaxBackgroundWorkers uint32
	// SizeAmplification is the slack factor applied to the position grid
	// during conflict analysis; 1.0-2.0 per the spec.
	SizeAmplification float64
	// TailPercent is the percentile used by AdaptBucketSize to pick B from
	// empirical conflicts. Default 0.99.
	TailPercent float64
	// MaxQueuedRebuilds is the back-pressure threshold: once the pool's
	// queued depth exceeds this, Insert runs its rebuild through
	// Pool.SubmitAndWait and blocks until that rebuild completes
	// (SPEC_FULL.md §4.5/§6 expansion).
	MaxQueuedRebuilds int
}

// DefaultHyperParameters returns the defaults named throughout the spec.
func DefaultHyperParameters() HyperParameters {
	return HyperParameters{
		MaxBucketSize:        6,
		AggregateSize:        0,
		MaxBackgroundWorkers: 2,
		SizeAmplification:    1.0,
		TailPercent:          0.99,
		MaxQueuedRebuilds:    64,
	}
}

// AdaptBucketSize picks MaxBucketSize from the tail-conflict distribution of
// kvs, clamped to [kMinBucketSize, kMaxBucketSize] the way
// original_source/src/core/afli_para_impl.h's adapt_bucket_size does. It is
// not called automatically by BulkLoad (the original leaves the call site
// commented out); callers that want adaptive sizing call it themselves
// before constructing the Index.
func AdaptBucketSize[K Number, V any](kvs []KV[K, V], hp HyperParameters) uint32 {
	const (
		kMinBucketSize = 1
		kMaxBucketSize = 6
	)
	keys := keysOf(kvs)
	tail := tailConflicts(keys, hp.SizeAmplification, hp.TailPercent)
	if tail > kMaxBucketSize {
		tail = kMaxBucketSize
	}
	if tail < kMinBucketSize {
		tail = kMinBucketSize
	}
	return tail
}
