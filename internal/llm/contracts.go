package llm

import (
	"context"
	"fmt"
	"time"
)

// Usage is the provider-reported token accounting for one call. All three
// fields are optional; providers differ in what they report.
type Usage struct {
	InputTokens  *int `json:"input_tokens,omitempty"`
	OutputTokens *int `json:"output_tokens,omitempty"`
	TotalTokens  *int `json:"total_tokens,omitempty"`
}

// Billed resolves the tokens to charge against the budget window.
// Precedence: input+output, then total, then nothing (caller falls back to
// its pre-submission estimate).
func (u *Usage) Billed() (int, bool) {
	if u == nil {
		return 0, false
	}
	if u.InputTokens != nil && u.OutputTokens != nil {
		return *u.InputTokens + *u.OutputTokens, true
	}
	if u.TotalTokens != nil {
		return *u.TotalTokens, true
	}
	return 0, false
}

// Options tunes a single model invocation.
type Options struct {
	MaxOutputTokens int
	Temperature     float32
}

// Response is one completed model invocation.
type Response struct {
	Content string
	Usage   *Usage
}

// Invoker is the interface the pipeline depends on.
type Invoker interface {
	Invoke(ctx context.Context, prompt string, opts Options) (Response, error)
}

// ProviderError is a failed remote call carrying the HTTP-like status the
// retry policy classifies on. RetryAfter is the provider's backoff hint for
// status 429, zero when absent.
type ProviderError struct {
	Status     int
	RetryAfter time.Duration
	Body       string
}

func (e *ProviderError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("provider status %d (retry after %s)", e.Status, e.RetryAfter)
	}
	return fmt.Sprintf("provider status %d", e.Status)
}

// Transient reports whether the retry policy may re-execute after this error.
func (e *ProviderError) Transient() bool {
	return e.Status == 429 || e.Status >= 500
}
