package feature

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMean(t *testing.T) {
	tests := []struct {
		name string
		xs   []float64
		want float64
	}{
		{"empty", nil, 0},
		{"single", []float64{4200}, 4200},
		{"several", []float64{1000, 2000, 3000}, 2000},
		{"negative mix", []float64{-100, 100}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Mean(tt.xs), 1e-9)
		})
	}
}

func TestPopStd(t *testing.T) {
	tests := []struct {
		name string
		xs   []float64
		want float64
	}{
		{"empty", nil, 0},
		{"single", []float64{5000}, 0},
		{"constant", []float64{3000, 3000, 3000}, 0},
		// population convention: sqrt(((2-3)^2+(4-3)^2)/2) = 1
		{"two values", []float64{2, 4}, 1},
		{"spread", []float64{1, 2, 3, 4, 5}, 1.4142135623},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, PopStd(tt.xs), 1e-9)
		})
	}
}

func TestPercentile(t *testing.T) {
	xs := []float64{1000, 2000, 3000, 4000, 5000}

	tests := []struct {
		name string
		xs   []float64
		q    float64
		want float64
	}{
		{"empty", nil, 0.5, 0},
		{"single", []float64{4200}, 0.1, 4200},
		{"min", xs, 0, 1000},
		{"max", xs, 1, 5000},
		{"median odd", xs, 0.5, 3000},
		{"p10 interpolated", xs, 0.10, 1400},
		{"p90 interpolated", xs, 0.90, 4600},
		{"median even", []float64{1000, 2000, 3000, 4000}, 0.5, 2500},
		{"unsorted input", []float64{5000, 1000, 3000, 2000, 4000}, 0.5, 3000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Percentile(tt.xs, tt.q), 1e-9)
		})
	}
}

func TestPercentileDoesNotMutateInput(t *testing.T) {
	xs := []float64{3, 1, 2}
	Percentile(xs, 0.5)
	assert.Equal(t, []float64{3, 1, 2}, xs)
}

func TestSafeRatio(t *testing.T) {
	assert.Equal(t, 0.0, SafeRatio(5, 0))
	assert.Equal(t, 0.0, SafeRatio(0, 0))
	assert.InDelta(t, 2.5, SafeRatio(5, 2), 1e-9)
}
