package afli

// Number is the set of key types the index can build a linear model over:
// every built-in signed/unsigned integer kind and both float kinds. It plays
// the role golang.org/x/exp/constraints.Integer|Float would; it is defined
// locally because the set is fixed by the data model (numeric, totally
// ordered, subtractive metric) and will never need to grow.
type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr |
		~float32 | ~float64
}

// toFloat64 converts a key into the float64 domain the model fitting and
// prediction math operates in.
func toFloat64[K Number](k K) float64 {
	return float64(k)
}

// clampIndex clamps a raw model prediction into [0, capacity-1]. Predictions
// outside this range are an expected consequence of extrapolating past the
// training keys' extrema, not an error.
func clampIndex(predicted int64, capacity uint32) uint32 {
	if predicted < 0 {
		return 0
	}
	if predicted >= int64(capacity) {
		return capacity - 1
	}
	return uint32(predicted)
}
