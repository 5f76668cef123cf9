package parser

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"bankparse/internal/domain"
)

// ProviderError carries a backend failure: transport, auth, bad status or truncated output.
type ProviderError struct {
	Provider   string
	StatusCode int
	Detail     string
	Err        error
}

func (e *ProviderError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, truncate(e.Detail, 500))
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Detail, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Provider, e.Detail)
	}
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Is makes every ProviderError match domain.ErrProvider.
func (e *ProviderError) Is(target error) bool {
	return target == domain.ErrProvider
}

// NewProviderError wraps err as a provider failure.
func NewProviderError(provider, detail string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Detail: detail, Err: err}
}

// NewStatusError reports a non-200 response from a provider.
func NewStatusError(provider string, status int, body []byte) *ProviderError {
	return &ProviderError{Provider: provider, StatusCode: status, Detail: string(body)}
}

// RateLimitError indicates a provider returned HTTP 429.
type RateLimitError struct {
	Err        error
	RetryAfter time.Duration
	Provider   string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s rate limited (retry after %s): %v", e.Provider, e.RetryAfter, e.Err)
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// Is makes a RateLimitError match domain.ErrProvider.
func (e *RateLimitError) Is(target error) bool {
	return target == domain.ErrProvider
}

// NewRateLimitError creates a RateLimitError. If retryAfterSecs is 0, defaults to 60s.
func NewRateLimitError(provider string, err error, retryAfterSecs int) *RateLimitError {
	if retryAfterSecs <= 0 {
		retryAfterSecs = 60
	}
	return &RateLimitError{
		Err:        err,
		RetryAfter: time.Duration(retryAfterSecs) * time.Second,
		Provider:   provider,
	}
}

// IsRateLimited reports whether err is or wraps a RateLimitError.
func IsRateLimited(err error) bool {
	var rlErr *RateLimitError
	return errors.As(err, &rlErr)
}

// ParseRetryAfterHeader parses a Retry-After header value into seconds.
// Returns 0 if the value is empty or not a valid integer.
func ParseRetryAfterHeader(val string) int {
	if val == "" {
		return 0
	}
	secs, err := strconv.Atoi(val)
	if err != nil {
		return 0
	}
	return secs
}
