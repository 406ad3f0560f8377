package chronos

import "math"

// Sample is a single observation: a millisecond timestamp and a value.
type Sample struct {
	Timestamp int64
	Value     float64
}

// roundToSignificantFigures rounds f to the given number of significant
// decimal digits. Zero or 18+ digits leave the value untouched since a
// float64 cannot hold more than 17 significant digits anyway.
func roundToSignificantFigures(f float64, digits uint8) float64 {
	if digits == 0 || digits >= 18 {
		return f
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f == 0 {
		return f
	}
	magnitude := math.Ceil(math.Log10(math.Abs(f)))
	scale := math.Pow(10, float64(digits)-magnitude)
	return math.Round(f*scale) / scale
}

// sameValue compares sample values treating NaN as equal to NaN.
func sameValue(a, b float64) bool {
	return a == b || (math.IsNaN(a) && math.IsNaN(b))
}
