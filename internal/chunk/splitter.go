// Package chunk turns arbitrary input text into an ordered list of segments
// sized to a token target, with a configurable token overlap carried from each
// segment into the next.
package chunk

import (
	"strings"

	"github.com/treesum-io/treesum/constants"
	"github.com/treesum-io/treesum/internal/token"
)

// Segment is one ordered slice of the input text.
type Segment struct {
	Index        int
	Text         string
	ApproxTokens int
}

// Split segments text into word-aligned chunks of roughly chunkTokens tokens.
// The last overlapTokens worth of words of each segment is repeated at the
// head of the next one so no sentence loses its context at a boundary.
// chunkTokens must be > 0 and overlapTokens must be smaller than chunkTokens;
// both are enforced at config validation.
func Split(text string, chunkTokens, overlapTokens int, counter token.Counter, encoding constants.Encoding) []Segment {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var segments []Segment
	start := 0
	for start < len(words) {
		end := start
		used := 0
		for end < len(words) {
			w := counter.Count(words[end], encoding) + 1 // +1 for the joining space
			if used > 0 && used+w > chunkTokens {
				break
			}
			used += w
			end++
		}

		segText := strings.Join(words[start:end], " ")
		segments = append(segments, Segment{
			Index:        len(segments),
			Text:         segText,
			ApproxTokens: counter.Count(segText, encoding),
		})
		if end >= len(words) {
			break
		}

		// Walk back from the cut point until the overlap token budget is spent.
		next := end
		carried := 0
		for next > start+1 && carried < overlapTokens {
			next--
			carried += counter.Count(words[next], encoding) + 1
		}
		start = next
	}
	return segments
}
