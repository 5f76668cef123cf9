package pagesource

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/ledongthuc/pdf"

	"bankparse/internal/config"
	"bankparse/internal/domain"
	"bankparse/internal/port"
)

// PageTextExtractor returns the plain text of every page of a PDF, in page order.
type PageTextExtractor func(ctx context.Context, data []byte, maxPages int) ([]string, error)

// TextSource turns the embedded text layer of a PDF into one or more text units.
type TextSource struct {
	maxChunkChars int
	maxPages      int
	extract       PageTextExtractor
}

// NewTextSource creates a TextSource backed by ledongthuc/pdf.
func NewTextSource(cfg config.PDFConfig) *TextSource {
	return NewTextSourceWithExtractor(cfg, extractPageText)
}

// NewTextSourceWithExtractor creates a TextSource with a custom page extractor (for testing).
func NewTextSourceWithExtractor(cfg config.PDFConfig, extract PageTextExtractor) *TextSource {
	return &TextSource{
		maxChunkChars: cfg.MaxChunkChars,
		maxPages:      cfg.MaxPages,
		extract:       extract,
	}
}

func (s *TextSource) Units(ctx context.Context, data []byte) ([]port.Unit, error) {
	pages, err := s.extract(ctx, data, s.maxPages)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	for _, page := range pages {
		page = strings.TrimSpace(page)
		if page == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(page)
	}
	text := sb.String()
	if text == "" {
		return nil, fmt.Errorf("%w: PDF has no text layer", domain.ErrNoExtractableContent)
	}

	chunks := splitChunks(text, s.maxChunkChars)
	units := make([]port.Unit, len(chunks))
	for i, chunk := range chunks {
		units[i] = port.Unit{Index: i, Kind: domain.UnitText, Text: chunk}
	}
	if len(units) > 1 {
		log.Printf("pagesource.TextSource: split %d chars into %d chunks", len(text), len(units))
	}
	return units, nil
}

// splitChunks breaks text into pieces of at most max bytes, cutting on line boundaries.
// A single line longer than max is hard-split. max <= 0 returns the text whole.
func splitChunks(text string, max int) []string {
	if max <= 0 || len(text) <= max {
		return []string{text}
	}

	var chunks []string
	var cur strings.Builder
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			chunks = append(chunks, s)
		}
		cur.Reset()
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		for len(line) > max {
			flush()
			cut := runeBoundary(line, max)
			cur.WriteString(line[:cut])
			flush()
			line = line[cut:]
		}
		if cur.Len()+len(line) > max {
			flush()
		}
		cur.WriteString(line)
	}
	flush()
	return chunks
}

// runeBoundary returns the largest index <= n that does not split a UTF-8 sequence.
func runeBoundary(s string, n int) int {
	for n > 0 && n < len(s) && !isRuneStart(s[n]) {
		n--
	}
	if n == 0 {
		return 1
	}
	return n
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// extractPageText reads every page's plain text with ledongthuc/pdf.
func extractPageText(ctx context.Context, data []byte, maxPages int) (pages []string, err error) {
	// The reader panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("%w: %v", domain.ErrInvalidDocument, r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: opening pdf: %v", domain.ErrInvalidDocument, err)
	}

	n := r.NumPage()
	if maxPages > 0 && n > maxPages {
		return nil, fmt.Errorf("%w: %d pages, limit is %d", domain.ErrTooManyPages, n, maxPages)
	}

	pages = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			log.Printf("pagesource.TextSource: page %d text extraction failed: %v", i, err)
			continue
		}
		pages = append(pages, text)
	}
	return pages, nil
}
