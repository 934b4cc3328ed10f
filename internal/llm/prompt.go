package llm

import (
	"strings"
)

// BuildMapPrompt composes the per-segment summarization request.
func BuildMapPrompt(segment string) string {
	parts := []string{
		"You are a careful summarizer. Summarize the passage below.",
		"Keep every concrete fact, name, and number that carries meaning.",
		"Write plain prose, no headings or bullet lists.",
		"Do not mention that this is a summary or refer to 'the passage'.",
	}
	return strings.Join(parts, " ") + "\n\nPassage:\n" + segment
}

// BuildReducePrompt composes the combine request for one reduction group.
// The group members arrive already joined into a single blob.
func BuildReducePrompt(joined string) string {
	parts := []string{
		"You are a careful summarizer. The sections below are summaries of",
		"consecutive parts of one document. Merge them into a single coherent",
		"summary, preserving chronology and every concrete fact that carries",
		"meaning. Remove repetition introduced by the section boundaries.",
		"Write plain prose, no headings or bullet lists.",
	}
	return strings.Join(parts, " ") + "\n\nSections:\n" + joined
}
