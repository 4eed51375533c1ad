package afli

import "math"

// linearModel is a fitted y = slope*x + intercept used to project a key
// into a slot position.
type linearModel struct {
	slope     float64
	intercept float64
}

// predict returns floor(slope*key + intercept). Callers must clamp the
// result into [0, capacity-1]; out-of-range values at the tails are normal.
func (m *linearModel) predict(key float64) int64 {
	return int64(math.Floor(m.slope*key + m.intercept))
}

// modelBuilder accumulates the sums needed for a closed-form ordinary
// least-squares fit of (x, y) pairs, plus the extrema used by the two-point
// spline fallback.
type modelBuilder struct {
	count                        uint32
	xSum, ySum, xxSum, xySum     float64
	xMin, xMax, yMin, yMax       float64
	sawAny                       bool
}

func (b *modelBuilder) add(x, y float64) {
	b.count++
	b.xSum += x
	b.ySum += y
	b.xxSum += x * x
	b.xySum += x * y
	if !b.sawAny {
		b.xMin, b.xMax = x, x
		b.yMin, b.yMax = y, y
		b.sawAny = true
	} else {
		if x < b.xMin {
			b.xMin = x
		}
		if x > b.xMax {
			b.xMax = x
		}
		if y < b.yMin {
			b.yMin = y
		}
		if y > b.yMax {
			b.yMax = y
		}
	}
}

// build fits the accumulated points into m, applying the degenerate-input
// and non-positive-slope fallbacks described in SPEC_FULL.md §4.1.
func (b *modelBuilder) build(m *linearModel) {
	if b.count <= 1 {
		m.slope = 0
		m.intercept = b.ySum
		return
	}

	n := float64(b.count)
	if equalF(n*b.xxSum, b.xSum*b.xSum) {
		// All x values identical: no useful slope can be extracted.
		m.slope = 0
		m.intercept = b.ySum / n
		return
	}

	slope := (n*b.xySum - b.xSum*b.ySum) / (n*b.xxSum - b.xSum*b.xSum)
	intercept := (b.ySum - slope*b.xSum) / n
	m.slope = slope
	m.intercept = intercept

	if m.slope <= 0 {
		// Floating point underflow or pathological input: fall back to the
		// two-point spline through the observed extrema.
		dx := b.xMax - b.xMin
		m.slope = (b.yMax - b.yMin) / dx
		m.intercept = b.yMin - b.xMin*m.slope
	}
}

// equalF reports whether a and b are close enough to be treated as equal
// floating point values, guarding against accumulated rounding error in the
// degenerate-all-equal-x check.
func equalF(a, b float64) bool {
	const eps = 1e-9
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= eps*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}
