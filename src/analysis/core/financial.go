package core

import "math"

// -----------------------------------------------------------------------------

// MovingAverage computes the simple mean of the last `period` values.
// Returns false when fewer than `period` values exist; the average is then
// undefined, not zero.
func MovingAverage(values []float64, period int) (float64, bool) {
	if period <= 0 || len(values) < period {
		return 0, false
	}
	return Mean(values[len(values)-period:]), true
}

// -----------------------------------------------------------------------------

// HighLow returns the maximum and minimum of the values.
func HighLow(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}

	high := -math.MaxFloat64
	low := math.MaxFloat64
	for _, v := range values {
		if v > high {
			high = v
		}
		if v < low {
			low = v
		}
	}
	return high, low
}

// -----------------------------------------------------------------------------

// Sum totals the values.
func Sum(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total
}
