package service

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"bankparse/internal/config"
	"bankparse/internal/domain"
	"bankparse/internal/pagesource"
	"bankparse/internal/parser"
	"bankparse/internal/port"
)

// StatementParser runs the full extraction pipeline for one PDF.
type StatementParser interface {
	Parse(ctx context.Context, document []byte, strategy domain.Strategy, provider domain.Provider) domain.ParsedOutcome
}

// PageSourceFactory returns the page source for an extraction strategy.
type PageSourceFactory func(strategy domain.Strategy) (port.PageSource, error)

// ProviderResolver returns the LLM provider for a selector.
type ProviderResolver func(name domain.Provider) (port.LLMProvider, error)

type statementParser struct {
	validator port.DocumentValidator
	sources   PageSourceFactory
	providers ProviderResolver
	engineCfg parser.EngineConfig
	defaults  struct {
		strategy domain.Strategy
		provider domain.Provider
	}
}

// NewStatementParser creates a StatementParser. The prompt is built once and shared by every call.
func NewStatementParser(
	cfg *config.Config,
	validator port.DocumentValidator,
	sources PageSourceFactory,
	providers ProviderResolver,
) StatementParser {
	prompt := parser.BuildStatementPrompt(parser.PromptOptions{DefaultCurrency: cfg.Parser.Currency})
	s := &statementParser{
		validator: validator,
		sources:   sources,
		providers: providers,
		engineCfg: parser.EngineConfig{
			Prompt:           prompt,
			MaxContinuations: cfg.Pagination.MaxContinuations,
			Concurrency:      cfg.Pagination.ImageConcurrency,
			DefaultCurrency:  cfg.Parser.Currency,
		},
	}
	s.defaults.strategy = domain.Strategy(cfg.Parser.DefaultStrategy)
	s.defaults.provider = domain.Provider(cfg.Parser.DefaultProvider)
	return s
}

// NewPageSourceFactory returns a factory building page sources from PDF settings.
func NewPageSourceFactory(cfg config.PDFConfig) PageSourceFactory {
	return func(strategy domain.Strategy) (port.PageSource, error) {
		return pagesource.New(strategy, cfg)
	}
}

// NewProviderResolver returns a resolver that builds registered providers from config.
// Providers are created once per name; the fallback chain keeps its circuit state across calls.
func NewProviderResolver(cfg *config.ParserConfig) ProviderResolver {
	var (
		mu    sync.Mutex
		cache = map[domain.Provider]port.LLMProvider{}
	)

	var build func(name domain.Provider) (port.LLMProvider, error)
	build = func(name domain.Provider) (port.LLMProvider, error) {
		if name == domain.ProviderFallback {
			chain := cfg.FallbackChain()
			if len(chain) == 0 {
				return nil, fmt.Errorf("%w: fallback chain is empty", domain.ErrUnknownProvider)
			}
			members := make([]port.LLMProvider, 0, len(chain))
			for _, member := range chain {
				if domain.Provider(member) == domain.ProviderFallback {
					return nil, fmt.Errorf("%w: fallback chain cannot contain %q", domain.ErrUnknownProvider, member)
				}
				p, err := build(domain.Provider(member))
				if err != nil {
					return nil, fmt.Errorf("building fallback member %s: %w", member, err)
				}
				members = append(members, p)
			}
			return parser.NewFallbackProvider(members), nil
		}

		pcfg := cfg.ProviderConfig(string(name))
		if pcfg == nil {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnknownProvider, name)
		}
		return parser.NewProvider(pcfg)
	}

	return func(name domain.Provider) (port.LLMProvider, error) {
		mu.Lock()
		defer mu.Unlock()
		if p, ok := cache[name]; ok {
			return p, nil
		}
		p, err := build(name)
		if err != nil {
			return nil, err
		}
		cache[name] = p
		return p, nil
	}
}

func (s *statementParser) Parse(ctx context.Context, document []byte, strategy domain.Strategy, provider domain.Provider) domain.ParsedOutcome {
	start := time.Now()
	if strategy == "" {
		strategy = s.defaults.strategy
	}
	if provider == "" {
		provider = s.defaults.provider
	}
	log.Printf("statementParser.Parse: starting (%d bytes, strategy=%s, provider=%s)", len(document), strategy, provider)

	result, err := s.run(ctx, document, strategy, provider)
	elapsed := time.Since(start)
	if err != nil {
		kind := domain.KindOf(err)
		log.Printf("statementParser.Parse: failed after %s (kind=%s): %v", elapsed, kind, err)
		return domain.ParsedOutcome{
			Success:        false,
			Error:          err.Error(),
			ErrorKind:      kind,
			RawResponse:    parser.RawResponse(err),
			ProcessingTime: elapsed.Seconds(),
		}
	}

	var warnings []string
	for _, c := range result.Conflicts {
		warnings = append(warnings, c.String())
	}
	log.Printf("statementParser.Parse: done in %s (%d transactions, %d calls, %d warnings)",
		elapsed, len(result.Statement.Transactions), result.Calls, len(warnings))

	return domain.ParsedOutcome{
		Success:        true,
		Data:           result.Statement,
		ProcessingTime: elapsed.Seconds(),
		Warnings:       warnings,
	}
}

func (s *statementParser) run(ctx context.Context, document []byte, strategy domain.Strategy, provider domain.Provider) (*parser.Result, error) {
	if !strategy.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedStrategy, strategy)
	}
	if err := s.validator.Validate(document); err != nil {
		return nil, err
	}

	llm, err := s.providers(provider)
	if err != nil {
		return nil, err
	}

	source, err := s.sources(strategy)
	if err != nil {
		return nil, err
	}
	units, err := source.Units(ctx, document)
	if err != nil {
		return nil, fmt.Errorf("extracting %s units: %w", strategy, err)
	}

	return parser.NewEngine(llm, s.engineCfg).Run(ctx, units)
}
