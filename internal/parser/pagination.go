package parser

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"bankparse/internal/domain"
	"bankparse/internal/port"
)

// EngineConfig tunes a pagination run.
type EngineConfig struct {
	Prompt string
	// MaxContinuations caps follow-up calls made because a chunk reported has_more.
	MaxContinuations int
	// Concurrency bounds in-flight calls for image units. Text units are always sequential.
	Concurrency     int
	DefaultCurrency string
}

// Engine drives provider calls over a document's units and merges the partial results.
type Engine struct {
	provider port.LLMProvider
	cfg      EngineConfig
}

// Result is a merged statement plus run diagnostics.
type Result struct {
	Statement *domain.BankStatement
	Calls     int
	Conflicts []FieldConflict
}

// NewEngine creates an Engine bound to one provider.
func NewEngine(provider port.LLMProvider, cfg EngineConfig) *Engine {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.MaxContinuations < 0 {
		cfg.MaxContinuations = 0
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "USD"
	}
	return &Engine{provider: provider, cfg: cfg}
}

// Run parses every unit and returns the merged statement. Any failing call fails the run.
func (e *Engine) Run(ctx context.Context, units []port.Unit) (*Result, error) {
	if len(units) == 0 {
		return nil, domain.ErrNoExtractableContent
	}
	if units[0].Kind == domain.UnitImage {
		return e.runImages(ctx, units)
	}
	return e.runText(ctx, units)
}

type runState int

const (
	stateFetching runState = iota
	stateMerging
	stateDone
	stateFailed
)

// runText walks units in order. A chunk answering has_more re-reads the same unit with
// its continuation hint; has_more=false moves on to the next unit.
func (e *Engine) runText(ctx context.Context, units []port.Unit) (*Result, error) {
	acc := NewAccumulator()
	var (
		state         = stateFetching
		unit          int
		hint          string
		continuations int
		calls         int
		chunk         *ChunkResult
		err           error
	)

	for {
		switch state {
		case stateFetching:
			if err = ctx.Err(); err != nil {
				state = stateFailed
				continue
			}
			calls++
			chunk, err = e.callUnit(ctx, units[unit], hint)
			if err != nil {
				state = stateFailed
				continue
			}
			state = stateMerging

		case stateMerging:
			acc.Merge(chunk)
			if !chunk.HasMore {
				unit++
				hint = ""
				if unit >= len(units) {
					state = stateDone
				} else {
					state = stateFetching
				}
				continue
			}
			if continuations >= e.cfg.MaxContinuations {
				err = fmt.Errorf("%w: still has_more after %d continuation calls", domain.ErrPaginationNotTerminated, continuations)
				state = stateFailed
				continue
			}
			continuations++
			hint = continuationHint(chunk, acc, continuations)
			log.Printf("parser.Engine: unit %d has more, continuing from %q", units[unit].Index, hint)
			state = stateFetching

		case stateDone:
			return e.finish(acc, calls)

		case stateFailed:
			log.Printf("parser.Engine: text run failed after %d calls: %v", calls, err)
			return nil, err
		}
	}
}

// runImages parses pages independently with bounded concurrency. Results are merged in
// unit order once every call has finished, so completion order never affects output.
func (e *Engine) runImages(ctx context.Context, units []port.Unit) (*Result, error) {
	chunks := make([]*ChunkResult, len(units))
	var calls atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for i, u := range units {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			calls.Add(1)
			chunk, err := e.callUnit(gctx, u, "")
			if err != nil {
				return fmt.Errorf("page %d: %w", u.Page, err)
			}
			chunks[i] = chunk
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Printf("parser.Engine: image run failed: %v", err)
		return nil, err
	}

	acc := NewAccumulator()
	for _, chunk := range chunks {
		acc.Merge(chunk)
	}
	return e.finish(acc, int(calls.Load()))
}

func (e *Engine) callUnit(ctx context.Context, unit port.Unit, hint string) (*ChunkResult, error) {
	raw, err := e.provider.Call(ctx, port.CallRequest{Unit: unit, Prompt: e.cfg.Prompt, Hint: hint})
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", e.provider.Name(), err)
	}
	chunk, err := ParseChunk(raw)
	if err != nil {
		return nil, fmt.Errorf("unit %d: %w", unit.Index, err)
	}
	return chunk, nil
}

func (e *Engine) finish(acc *Accumulator, calls int) (*Result, error) {
	stmt, err := acc.Statement(e.cfg.DefaultCurrency)
	if err != nil {
		return nil, err
	}
	for _, c := range acc.Conflicts() {
		log.Printf("parser.Engine: header conflict %s", c)
	}
	return &Result{Statement: stmt, Calls: calls, Conflicts: acc.Conflicts()}, nil
}

// continuationHint prefers the model's own hint and otherwise points at the last
// transaction merged so far.
func continuationHint(chunk *ChunkResult, acc *Accumulator, n int) string {
	if chunk.NextPageHint != "" {
		return chunk.NextPageHint
	}
	if last, ok := acc.LastTransaction(); ok {
		return fmt.Sprintf("after the transaction dated %s %q for %s", last.Date, last.Description, last.Amount.String())
	}
	return fmt.Sprintf("continuation %d", n)
}
