// Package pagesource converts PDF bytes into the ordered units sent to an LLM.
package pagesource

import (
	"fmt"

	"bankparse/internal/config"
	"bankparse/internal/domain"
	"bankparse/internal/port"
)

// New returns the page source for the given strategy.
func New(strategy domain.Strategy, cfg config.PDFConfig) (port.PageSource, error) {
	switch strategy {
	case domain.StrategyText:
		return NewTextSource(cfg), nil
	case domain.StrategyVision:
		return NewImageSource(cfg), nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedStrategy, strategy)
	}
}
