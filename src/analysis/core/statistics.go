package core

import "math"

// -----------------------------------------------------------------------------

// Mean computes the arithmetic mean.
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}

// -----------------------------------------------------------------------------

// SampleStdDev computes the sample standard deviation (N-1 denominator).
// A single observation has no variance; returns 0 for fewer than 2 values.
func SampleStdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}

	mean := Mean(data)
	varianceSum := 0.0
	for _, v := range data {
		varianceSum += (v - mean) * (v - mean)
	}
	return math.Sqrt(varianceSum / float64(len(data)-1))
}

// -----------------------------------------------------------------------------

// PercentChanges returns the sequence of percentage changes between
// consecutive values. Zero predecessors contribute a 0 change.
func PercentChanges(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}

	changes := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		changes = append(changes, ChangePercent(values[i], values[i-1]))
	}
	return changes
}

// -----------------------------------------------------------------------------

// ChangePercent calculates percentage change.
func ChangePercent(current, previous float64) float64 {
	if previous == 0 {
		return 0.0
	}
	return (current - previous) / previous
}
