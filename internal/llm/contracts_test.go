package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func intp(n int) *int { return &n }

func TestBilledPrefersInputPlusOutput(t *testing.T) {
	u := &Usage{InputTokens: intp(120), OutputTokens: intp(30), TotalTokens: intp(999)}
	billed, ok := u.Billed()
	assert.True(t, ok)
	assert.Equal(t, 150, billed)
}

func TestBilledFallsBackToTotal(t *testing.T) {
	u := &Usage{TotalTokens: intp(200)}
	billed, ok := u.Billed()
	assert.True(t, ok)
	assert.Equal(t, 200, billed)

	// One half of the pair is not enough.
	u = &Usage{InputTokens: intp(120), TotalTokens: intp(200)}
	billed, ok = u.Billed()
	assert.True(t, ok)
	assert.Equal(t, 200, billed)
}

func TestBilledAbsent(t *testing.T) {
	_, ok := (&Usage{}).Billed()
	assert.False(t, ok)

	var u *Usage
	_, ok = u.Billed()
	assert.False(t, ok)
}

func TestProviderErrorTransient(t *testing.T) {
	assert.True(t, (&ProviderError{Status: 429}).Transient())
	assert.True(t, (&ProviderError{Status: 500}).Transient())
	assert.True(t, (&ProviderError{Status: 503}).Transient())
	assert.False(t, (&ProviderError{Status: 400}).Transient())
	assert.False(t, (&ProviderError{Status: 404}).Transient())
}

func TestProviderErrorMessage(t *testing.T) {
	e := &ProviderError{Status: 429, RetryAfter: 2 * time.Second}
	assert.Contains(t, e.Error(), "429")
	assert.Contains(t, e.Error(), "retry after")
}
