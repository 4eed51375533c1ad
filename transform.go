package afli

import "sort"

// Transform is the numerical-flow collaborator interface from
// SPEC_FULL.md §6: a monotone non-decreasing key remapping, computed
// upstream of the core. Its training and internal math are explicitly out
// of scope (SPEC_FULL.md §1) — the core only ever calls Transform/
// TransformBatch.
type Transform[K Number] interface {
	// Transform maps k into the transformed key space. ok is false if k
	// falls outside the transform's training support.
	Transform(k K) (float64, bool)
	// TransformBatch maps every key in ks, returning the transformed keys
	// in a new slice in the same order; ks itself is left unchanged.
	TransformBatch(ks []K) []float64
}

// IdentityTransform is the no-op Transform: transformed key equals the
// original key's float64 value. BulkLoad does not substitute it for a nil
// Transform: with nil, keys are indexed untransformed.
type IdentityTransform[K Number] struct{}

func (IdentityTransform[K]) Transform(k K) (float64, bool) { return toFloat64(k), true }

func (IdentityTransform[K]) TransformBatch(ks []K) []float64 {
	out := make([]float64, len(ks))
	for i, k := range ks {
		out[i] = toFloat64(k)
	}
	return out
}

// CalibratedTransform is a monotone piecewise-linear remap built from sorted
// calibration keypoints. It stands in for the upstream numerical-flow MLP's
// forward pass: the spec excludes the MLP's training and linear-algebra
// kernels from core scope (SPEC_FULL.md §1), so this exercises the
// Transform interface's shape (a deterministic, monotone, precomputed
// remapping) without implementing a neural net.
type CalibratedTransform[K Number] struct {
	keys []K
	vals []float64
}

// NewCalibratedTransform builds a transform from sorted, distinct
// calibration points (key, transformedKey). Keys outside [keys[0],
// keys[len-1]] are clamped to the nearest endpoint.
func NewCalibratedTransform[K Number](keys []K, transformed []float64) *CalibratedTransform[K] {
	if len(keys) != len(transformed) {
		panicf("afli: calibration keys/values length mismatch: %d vs %d", len(keys), len(transformed))
	}
	return &CalibratedTransform[K]{keys: keys, vals: transformed}
}

func (c *CalibratedTransform[K]) Transform(k K) (float64, bool) {
	n := len(c.keys)
	if n == 0 {
		return toFloat64(k), false
	}
	if k <= c.keys[0] {
		return c.vals[0], k == c.keys[0]
	}
	if k >= c.keys[n-1] {
		return c.vals[n-1], k == c.keys[n-1]
	}
	i := sort.Search(n, func(i int) bool { return c.keys[i] >= k })
	if c.keys[i] == k {
		return c.vals[i], true
	}
	lo, hi := i-1, i
	frac := (toFloat64(k) - toFloat64(c.keys[lo])) / (toFloat64(c.keys[hi]) - toFloat64(c.keys[lo]))
	return c.vals[lo] + frac*(c.vals[hi]-c.vals[lo]), true
}

func (c *CalibratedTransform[K]) TransformBatch(ks []K) []float64 {
	out := make([]float64, len(ks))
	for i, k := range ks {
		out[i], _ = c.Transform(k)
	}
	return out
}

// shouldEnableTransform decides, at bulk-load time, whether a supplied
// Transform is worth using: compare tail-conflict counts on the raw keys
// against the transformed keys and prefer the transform only if it reduces
// tail conflicts by more than a kConflictsDecay fraction of the raw count,
// mirroring
// original_source/src/core/nfl_para.h's NFLPara bulk_load policy.
func shouldEnableTransform[K Number, V any](kvs []KV[K, V], tr Transform[K], hp HyperParameters) bool {
	const kConflictsDecay = 0.1

	keys := keysOf(kvs)
	before := tailConflicts(keys, hp.SizeAmplification, hp.TailPercent)
	if before == 0 {
		return false
	}

	transformed := tr.TransformBatch(keys)
	after := tailConflicts(transformed, hp.SizeAmplification, hp.TailPercent)

	return float64(before-minU32(after, before)) > kConflictsDecay*float64(before)
}

func minU32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}
