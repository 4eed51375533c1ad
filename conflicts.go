package afli

import "sort"

// conflictEntry pairs a clamped slot position with the number of sorted
// input keys that predicted into it.
type conflictEntry struct {
	position  uint32
	occupancy uint32
}

// conflictsInfo is the output of conflict analysis: one entry per distinct
// predicted position (in input order), plus the chosen node capacity.
type conflictsInfo struct {
	entries  []conflictEntry
	capacity uint32
}

// buildModel fits a linear model over n sorted, distinct keys and computes
// the conflict table that drives node layout, following
// original_source/src/core/conflicts.h build_linear_model. keys must have
// length >= 2 with keys[0] != keys[len(keys)-1]; callers are responsible for
// handling the single-key case before calling this (see node.build).
func buildModel[K Number](keys []K, sizeAmp float64) (linearModel, conflictsInfo, bool) {
	n := uint32(len(keys))
	minKeyK := keys[0]
	maxKeyK := keys[n-1]
	if minKeyK == maxKeyK {
		panicf("%w: all %d keys used to build the linear model are equal (%v)",
			ErrDegenerateKeyspace, n, minKeyK)
	}
	// The subtractive metric is computed in K itself, not float64, before
	// converting to the regression's double domain: two large integer keys
	// a few ulps apart round to the same float64 (ulp(1e18) is 128), which
	// would otherwise collapse minKey == maxKey and panic spuriously
	// (original_source/src/core/conflicts.h: "KT key_space = max_key -
	// min_key").
	keySpaceK := maxKeyK - minKeyK
	keySpace := toFloat64(keySpaceK)
	minKey := toFloat64(minKeyK)
	maxKey := toFloat64(maxKeyK)

	capacityHint := uint32(float64(n) * sizeAmp)
	if capacityHint < 1 {
		capacityHint = 1
	}

	var b modelBuilder
	for i, k := range keys {
		offsetK := k - minKeyK
		x := toFloat64(offsetK) * float64(n) / keySpace
		b.add(x, float64(i))
	}
	var model linearModel
	b.build(&model)

	if model.slope == 0 {
		// Pathological fit: the key space could not be resolved into a
		// useful slope even after the spline fallback.
		return linearModel{}, conflictsInfo{}, false
	}

	model.slope = model.slope * float64(n) / keySpace
	model.intercept = -model.slope*minKey + 0.5

	capacity := capacityHint
	predictedSize := model.predict(maxKey) + 1
	if predictedSize > 1 && uint32(predictedSize) < capacity {
		capacity = uint32(predictedSize)
	}
	if capacity < 1 {
		capacity = 1
	}

	firstPos := clampIndex(model.predict(minKey), capacity)
	lastPos := clampIndex(model.predict(maxKey), capacity)
	if lastPos == firstPos {
		// Every key rounds to the same slot: fall back to a direct-index
		// model, matching original_source's direct-index fallback exactly
		// (intercept reset to 0, not re-anchored to minKey).
		model.slope = float64(n) / keySpace
		model.intercept = 0
	}

	entries := make([]conflictEntry, 0, n)
	pLast := uint32(0)
	conflict := uint32(1)
	for i := uint32(1); i < n; i++ {
		p := clampIndex(model.predict(toFloat64(keys[i])), capacity)
		if p == pLast {
			conflict++
		} else {
			entries = append(entries, conflictEntry{position: pLast, occupancy: conflict})
			pLast = p
			conflict = 1
		}
	}
	if conflict > 0 {
		entries = append(entries, conflictEntry{position: pLast, occupancy: conflict})
	}

	return model, conflictsInfo{entries: entries, capacity: capacity}, true
}

// tailConflicts returns the occupancy at the percentile-th percentile of
// the conflict distribution, minus one; it is how the index picks a bucket
// capacity that bounds tail cost while keeping average cost low.
func tailConflicts[K Number](keys []K, sizeAmp float64, percentile float64) uint32 {
	if len(keys) < 2 {
		return 0
	}
	_, ci, ok := buildModel(keys, sizeAmp)
	if !ok || len(ci.entries) == 0 {
		return 0
	}
	occupancies := make([]uint32, len(ci.entries))
	for i, e := range ci.entries {
		occupancies[i] = e.occupancy
	}
	sort.Slice(occupancies, func(i, j int) bool { return occupancies[i] < occupancies[j] })

	idx := int(float64(len(occupancies))*percentile) - 1
	if idx < 0 {
		idx = 0
	}
	return occupancies[idx] - 1
}
