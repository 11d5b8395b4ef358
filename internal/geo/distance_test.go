package geo

import (
	"math"
	"testing"

	"standwatch/internal/domain"
)

var samples = []domain.Coordinate{
	{0, 0},
	{1, 1},
	{24.800665, 59.414902},
	{-73.771385, 40.6328888},
	{180, 0},
	{-180, 0},
	{0, 90},
	{0, -90},
	{151.177, -33.946},
}

func TestDistanceZero(t *testing.T) {
	for _, c := range samples {
		if d := DistanceKm(c, c); d != 0 {
			t.Errorf("DistanceKm(%v, %v) = %v, want 0", c, c, d)
		}
	}
}

func TestDistanceSymmetric(t *testing.T) {
	for _, a := range samples {
		for _, b := range samples {
			ab, ba := DistanceKm(a, b), DistanceKm(b, a)
			if ab != ba {
				t.Errorf("DistanceKm(%v, %v) = %v but reverse is %v", a, b, ab, ba)
			}
			if ab < 0 || math.IsNaN(ab) {
				t.Errorf("DistanceKm(%v, %v) = %v", a, b, ab)
			}
		}
	}
}

func TestDistanceKnownValues(t *testing.T) {
	tests := []struct {
		a, b domain.Coordinate
		want float64
		tol  float64
	}{
		// One degree of latitude.
		{domain.Coordinate{0, 0}, domain.Coordinate{0, 1}, math.Pi * EarthRadiusKm / 180, 1e-9},
		{domain.Coordinate{0, 0}, domain.Coordinate{1, 1}, 157.249, 0.01},
		// Antipodes are half the circumference.
		{domain.Coordinate{0, 0}, domain.Coordinate{180, 0}, math.Pi * EarthRadiusKm, 1e-6},
		{domain.Coordinate{0, 90}, domain.Coordinate{0, -90}, math.Pi * EarthRadiusKm, 1e-6},
	}

	for _, tt := range tests {
		got := DistanceKm(tt.a, tt.b)
		if math.Abs(got-tt.want) > tt.tol {
			t.Errorf("DistanceKm(%v, %v) = %.6f, want %.6f", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestDistanceTiny(t *testing.T) {
	a := domain.Coordinate{24.8, 59.4}
	b := domain.Coordinate{24.8, 59.4 + 1e-7}
	got := DistanceM(a, b)
	if got <= 0 || got > 0.02 {
		t.Errorf("DistanceM for 1e-7° = %v, want ~0.011m", got)
	}
}
