package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPeriodKey(t *testing.T) {
	p := Period{Year: 2025, Month: 9, Week: 4}
	assert.Equal(t, "2025-09-W4", p.Key())
}

func TestPeriodLess(t *testing.T) {
	tests := []struct {
		name string
		a, b Period
		want bool
	}{
		{"earlier year", Period{2024, 12, 4}, Period{2025, 1, 1}, true},
		{"earlier month", Period{2025, 8, 4}, Period{2025, 9, 1}, true},
		{"earlier week", Period{2025, 9, 1}, Period{2025, 9, 2}, true},
		{"equal", Period{2025, 9, 2}, Period{2025, 9, 2}, false},
		{"later", Period{2025, 9, 3}, Period{2025, 9, 2}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Less(tt.b))
		})
	}
}

func TestPeriodIsZero(t *testing.T) {
	assert.True(t, Period{}.IsZero())
	assert.False(t, Period{Year: 2025, Month: 9, Week: 1}.IsZero())
}

func TestProductValid(t *testing.T) {
	assert.True(t, ProductLender.Valid())
	assert.True(t, Product3PL.Valid())
	assert.False(t, Product("payday_loan").Valid())
}
