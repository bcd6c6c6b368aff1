package constants

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		in   string
		want Category
		ok   bool
	}{
		{"Meals", Meals, true},
		{" meals ", Meals, true},
		{"Uber", TravelExpenses, true},
		{"hotel", Lodging, true},
		{"", Other, false},
		{"spaceships", Other, false},
	}
	for _, tt := range tests {
		got, ok := Canonicalize(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
	}
	assert.Contains(t, AsStringSlice(), "Other")
}
