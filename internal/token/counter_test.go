package token

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/treesum-io/treesum/constants"
)

func TestCountEmpty(t *testing.T) {
	c := NewHeuristicCounter()
	assert.Equal(t, 0, c.Count("", constants.EncodingO200K))
}

func TestCountDeterministic(t *testing.T) {
	c := NewHeuristicCounter()
	text := "the quick brown fox jumps over the lazy dog"
	assert.Equal(t, c.Count(text, constants.EncodingO200K), c.Count(text, constants.EncodingO200K))
}

func TestCountMonotone(t *testing.T) {
	c := NewHeuristicCounter()
	base := "some prose about nothing in particular"
	longer := base + " and then some more of it"
	assert.GreaterOrEqual(t,
		c.Count(longer, constants.EncodingO200K),
		c.Count(base, constants.EncodingO200K),
	)
}

func TestCountByteDivisorPerEncoding(t *testing.T) {
	c := NewHeuristicCounter()
	// A 12-byte single word: ceil(12/4)=3 for o200k, ceil(12/3)=4 for cl100k.
	word := strings.Repeat("a", 12)
	assert.Equal(t, 3, c.Count(word, constants.EncodingO200K))
	assert.Equal(t, 4, c.Count(word, constants.EncodingCL100K))
}

func TestCountWordFloor(t *testing.T) {
	c := NewHeuristicCounter()
	// Ten one-letter words are 19 bytes (ceil 5 by bytes) but still ten tokens.
	text := "a b c d e f g h i j"
	assert.Equal(t, 10, c.Count(text, constants.EncodingO200K))
}
