package analysis

import (
	"math"
	"testing"
)

func TestPearsonPerfectCorrelation(t *testing.T) {
	xs := []float64{1, 2, 3, 4, 5}
	ys := []float64{2, 4, 6, 8, 10}
	if r := pearson(xs, ys); math.Abs(r-1) > 1e-9 {
		t.Fatalf("expected r=1, got %f", r)
	}

	neg := []float64{10, 8, 6, 4, 2}
	if r := pearson(xs, neg); math.Abs(r+1) > 1e-9 {
		t.Fatalf("expected r=-1, got %f", r)
	}
}

func TestPearsonNoisyLinearSeries(t *testing.T) {
	xs := make([]float64, 50)
	ys := make([]float64, 50)
	for i := range xs {
		x := float64(i)
		xs[i] = x
		ys[i] = 2*x + math.Sin(x)*0.5
	}
	r := pearson(xs, ys)
	if r <= 0.9 {
		t.Fatalf("expected strong positive correlation, got %f", r)
	}
}

func TestPearsonDegenerateInputs(t *testing.T) {
	if r := pearson([]float64{1, 1, 1}, []float64{1, 2, 3}); r != 0 {
		t.Fatalf("expected 0 for zero-variance series, got %f", r)
	}
	if r := pearson([]float64{1}, []float64{2}); r != 0 {
		t.Fatalf("expected 0 for single-point series, got %f", r)
	}
	if r := pearson([]float64{1, 2}, []float64{1, 2, 3}); r != 0 {
		t.Fatalf("expected 0 for mismatched lengths, got %f", r)
	}
}

func TestLinearFit(t *testing.T) {
	slope, rSquared := linearFit([]float64{1, 2, 3, 4, 5})
	if math.Abs(slope-1) > 1e-9 {
		t.Fatalf("expected slope 1, got %f", slope)
	}
	if math.Abs(rSquared-1) > 1e-9 {
		t.Fatalf("expected R²=1, got %f", rSquared)
	}

	slope, rSquared = linearFit([]float64{3, 3, 3, 3})
	if slope != 0 || rSquared != 0 {
		t.Fatalf("expected flat fit for constant series, got slope=%f r2=%f", slope, rSquared)
	}
}

func TestMeanStddev(t *testing.T) {
	mean, stddev := meanStddev([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	if math.Abs(mean-5) > 1e-9 {
		t.Fatalf("expected mean 5, got %f", mean)
	}
	if math.Abs(stddev-2) > 1e-9 {
		t.Fatalf("expected stddev 2, got %f", stddev)
	}

	mean, stddev = meanStddev(nil)
	if mean != 0 || stddev != 0 {
		t.Fatalf("expected zeros for empty input")
	}
}
