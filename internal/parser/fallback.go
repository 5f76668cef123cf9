package parser

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"bankparse/internal/port"
)

// circuitState tracks rate-limit backoff for a single provider.
type circuitState struct {
	mu      sync.RWMutex
	resetAt time.Time // zero value = closed (healthy)
}

func (c *circuitState) isOpenWithReset(now time.Time) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.resetAt, !c.resetAt.IsZero() && now.Before(c.resetAt)
}

func (c *circuitState) open(resetAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetAt = resetAt
}

// FallbackProvider fails over across providers in order, skipping those with open circuits.
// Only a rate-limit error moves a call on to the next provider; any other failure is
// returned as-is. No provider is called twice for one Call.
type FallbackProvider struct {
	providers []port.LLMProvider
	circuits  []*circuitState
	now       func() time.Time
}

// NewFallbackProvider creates a FallbackProvider from an ordered list of providers.
func NewFallbackProvider(providers []port.LLMProvider) *FallbackProvider {
	circuits := make([]*circuitState, len(providers))
	for i := range circuits {
		circuits[i] = &circuitState{}
	}
	return &FallbackProvider{
		providers: providers,
		circuits:  circuits,
		now:       time.Now,
	}
}

func (f *FallbackProvider) Name() string {
	names := make([]string, len(f.providers))
	for i, p := range f.providers {
		names[i] = p.Name()
	}
	return "fallback(" + strings.Join(names, ",") + ")"
}

func (f *FallbackProvider) Call(ctx context.Context, req port.CallRequest) (string, error) {
	now := f.now()
	var lastErr error
	var earliestReset time.Time

	for i, p := range f.providers {
		if resetAt, open := f.circuits[i].isOpenWithReset(now); open {
			log.Printf("parser.FallbackProvider: skipping %s (circuit open until %s)", p.Name(), resetAt.Format(time.RFC3339))
			if earliestReset.IsZero() || resetAt.Before(earliestReset) {
				earliestReset = resetAt
			}
			continue
		}

		out, err := p.Call(ctx, req)
		if err == nil {
			return out, nil
		}
		lastErr = err

		var rlErr *RateLimitError
		if !errors.As(err, &rlErr) {
			return "", err
		}
		log.Printf("parser.FallbackProvider: %s rate limited, trying next provider", p.Name())
		resetAt := now.Add(rlErr.RetryAfter)
		f.circuits[i].open(resetAt)
		if earliestReset.IsZero() || resetAt.Before(earliestReset) {
			earliestReset = resetAt
		}
	}

	retryAfter := earliestReset.Sub(now)
	if retryAfter < time.Second {
		retryAfter = time.Second
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("all providers rate limited")
	}
	return "", NewRateLimitError("all", lastErr, int(retryAfter.Seconds()))
}
