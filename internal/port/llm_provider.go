package port

import (
	"context"

	"bankparse/internal/domain"
)

// Unit is one bounded piece of document input sent to the LLM in a single call.
type Unit struct {
	Index       int
	Kind        domain.UnitKind
	Text        string
	ImageBase64 string
	MediaType   string
	// Page is the 1-based source page for image units, 0 for text chunks.
	Page int
}

// CallRequest carries everything a provider needs for one round trip.
type CallRequest struct {
	Unit   Unit
	Prompt string
	// Hint is the continuation hint from the previous chunk; empty on the first call.
	Hint string
}

// LLMProvider sends one request to a model and returns its raw text. Adapters make exactly
// one network call per Call; a failover chain makes at most one call per member provider.
type LLMProvider interface {
	Name() string
	Call(ctx context.Context, req CallRequest) (string, error)
}
