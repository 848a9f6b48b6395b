package tokenizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimate(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"blank", "   \n", 0},
		{"single rune", "a", 1},
		{"chars dominate", strings.Repeat("x", 400), 100},
		{"words dominate", "a b c d e f g h", 8},
		{"multibyte counts runes", strings.Repeat("é", 40), 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Estimate(tt.text))
		})
	}
}

func TestNew_Heuristic(t *testing.T) {
	for _, name := range []string{"", "heuristic", "  heuristic "} {
		c := New(name)
		assert.Equal(t, Heuristic, c.Name())
		assert.Equal(t, 100, c.Count(strings.Repeat("y", 400)))
	}
}

func TestNew_UnknownEncodingFallsBack(t *testing.T) {
	c := New("no_such_encoding")
	assert.Equal(t, Heuristic, c.Name())
	assert.Equal(t, 3, c.Count("one two three"))
}
