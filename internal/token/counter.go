// Package token estimates token counts for budget admission. Estimates are
// deterministic and monotone: adding text never decreases the count.
package token

import (
	"strings"

	"github.com/treesum-io/treesum/constants"
)

// Counter counts tokens in text for a given encoding.
type Counter interface {
	Count(text string, encoding constants.Encoding) int
}

// HeuristicCounter approximates tokenizer output from UTF-8 byte length and
// whitespace structure. The per-encoding divisor reflects that o200k packs
// slightly more bytes per token than cl100k on English prose.
type HeuristicCounter struct{}

func NewHeuristicCounter() *HeuristicCounter {
	return &HeuristicCounter{}
}

func (HeuristicCounter) Count(text string, encoding constants.Encoding) int {
	if text == "" {
		return 0
	}
	bytesPerToken := 4
	if encoding == constants.EncodingCL100K {
		bytesPerToken = 3
	}
	byTokens := (len(text) + bytesPerToken - 1) / bytesPerToken
	// A word is at least one token regardless of its byte length.
	words := len(strings.Fields(text))
	if words > byTokens {
		return words
	}
	return byTokens
}
