package analysis

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// mean returns the arithmetic mean of xs, or 0 when empty.
func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}

// stddev returns the population standard deviation of xs, or 0 with fewer
// than two values.
func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	_, sd := stat.PopMeanStdDev(xs, nil)
	return sd
}

// slope fits y = a + b·x by least squares and returns b. A degenerate fit
// (all x equal) has slope 0.
func slope(xs, ys []float64) float64 {
	if len(xs) < 2 || len(xs) != len(ys) || floats.Min(xs) == floats.Max(xs) {
		return 0
	}
	_, b := stat.LinearRegression(xs, ys, nil, false)
	return b
}

// rollingCV returns the mean coefficient of variation over consecutive
// windows of size w. Series shorter than w form one window.
func rollingCV(xs []float64, w int) float64 {
	if len(xs) < 2 {
		return 0
	}
	if len(xs) <= w {
		if m := mean(xs); m > 0 {
			return stddev(xs) / m
		}
		return 0
	}
	var total float64
	n := 0
	for i := 0; i+w <= len(xs); i++ {
		win := xs[i : i+w]
		if m := mean(win); m > 0 {
			total += stddev(win) / m
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return neutral
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// finite replaces NaN and infinities with the neutral score.
func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return neutral
	}
	return v
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}
