package docsearch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "ball", 4},
		{"ball", "", 4},
		{"ball", "ball", 0},
		{"ball", "balll", 1},
		{"ball", "bell", 1},
		{"kitten", "sitting", 3},
		{"flaw", "lawn", 2},
		{"paddle", "padle", 1},
		{"größe", "grosse", 3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Distance(tt.a, tt.b), "Distance(%q, %q)", tt.a, tt.b)
	}
}

func TestDistanceProperties(t *testing.T) {
	words := []string{"", "a", "ball", "balll", "paddle", "physics ball", "reset", "größe", "xyz123"}
	for _, a := range words {
		assert.Equal(t, 0, Distance(a, a), "identity for %q", a)
		assert.Equal(t, runeLen(a), Distance("", a), "empty source for %q", a)
		for _, b := range words {
			assert.Equal(t, Distance(a, b), Distance(b, a), "symmetry for %q/%q", a, b)
		}
	}
}

func TestWithin(t *testing.T) {
	assert.True(t, within("ball", "balll", 2))
	assert.False(t, within("physics ball", "ball", 2))
	assert.False(t, within("ab", "abcdef", 2))
	assert.True(t, within("reset", "reset", 0))
}
