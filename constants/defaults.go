package constants

import "time"

// Encoding identifies the tokenizer family used for token estimates.
type Encoding string

const (
	EncodingO200K  Encoding = "o200k"
	EncodingCL100K Encoding = "cl100k"
)

// ValidEncoding reports whether e is a supported encoding id.
func ValidEncoding(e Encoding) bool {
	return e == EncodingO200K || e == EncodingCL100K
}

const (
	// DefaultBudgetPollInterval is how often a waiter re-checks the token budget.
	DefaultBudgetPollInterval = 3 * time.Second

	// DefaultMaxRetryAttempts is the number of re-executions after the first try.
	DefaultMaxRetryAttempts = 7

	// RetryBackoffCap bounds the exponential backoff between attempts.
	RetryBackoffCap = 8 * time.Second

	// GroupJoinSeparator joins the members of one reduction group into a single blob.
	GroupJoinSeparator = "\n\n"
)
