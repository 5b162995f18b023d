package analysis

import "math"

// pearson computes the Pearson correlation coefficient of two equal-length
// series. Degenerate inputs (short series, zero variance) yield 0 rather than
// NaN.
func pearson(xs, ys []float64) float64 {
	n := len(xs)
	if n < 2 || len(ys) != n {
		return 0
	}

	var sumX, sumY float64
	for i := 0; i < n; i++ {
		sumX += xs[i]
		sumY += ys[i]
	}
	meanX := sumX / float64(n)
	meanY := sumY / float64(n)

	var cov, varX, varY float64
	for i := 0; i < n; i++ {
		dx := xs[i] - meanX
		dy := ys[i] - meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return 0
	}

	r := cov / math.Sqrt(varX*varY)
	if r > 1 {
		r = 1
	}
	if r < -1 {
		r = -1
	}
	return r
}

// linearFit performs an ordinary least-squares fit of ys against the point
// index and returns the slope and coefficient of determination. A
// zero-variance series yields slope 0 and R squared 0.
func linearFit(ys []float64) (slope, rSquared float64) {
	n := len(ys)
	if n < 2 {
		return 0, 0
	}

	var sumX, sumY float64
	for i, y := range ys {
		sumX += float64(i)
		sumY += y
	}
	meanX := sumX / float64(n)
	meanY := sumY / float64(n)

	var cov, varX, varY float64
	for i, y := range ys {
		dx := float64(i) - meanX
		dy := y - meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return 0, 0
	}

	slope = cov / varX
	rSquared = (cov * cov) / (varX * varY)
	return slope, rSquared
}

// meanStddev returns the mean and population standard deviation of the series.
func meanStddev(values []float64) (mean, stddev float64) {
	n := len(values)
	if n == 0 {
		return 0, 0
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean = sum / float64(n)

	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(n)
	return mean, math.Sqrt(variance)
}
