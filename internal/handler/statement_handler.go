package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"bankparse/internal/config"
	"bankparse/internal/domain"
	"bankparse/internal/parser"
	"bankparse/internal/service"
	"bankparse/internal/validator"
)

// ParseResponse is the body of a parse request: the outcome plus the stored result ID, if any.
type ParseResponse struct {
	domain.ParsedOutcome
	ResultID *uuid.UUID `json:"result_id,omitempty"`
}

// StatementHandler handles statement parsing endpoints.
type StatementHandler struct {
	statementService service.StatementService
	maxBytes         int64
	parserCfg        config.ParserConfig
}

// NewStatementHandler creates a new StatementHandler.
func NewStatementHandler(statementService service.StatementService, cfg *config.Config) *StatementHandler {
	return &StatementHandler{
		statementService: statementService,
		maxBytes:         cfg.Upload.MaxBytes(),
		parserCfg:        cfg.Parser,
	}
}

// Parse handles POST /api/v1/parse-statement
func (h *StatementHandler) Parse(c *gin.Context) {
	strategy, provider, err := parseSelectors(c)
	if err != nil {
		HandleError(c, err)
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			HandleError(c, domain.ErrFileTooLarge)
			return
		}
		RespondError(c, http.StatusBadRequest, "MISSING_FILE", "file field is required")
		return
	}
	defer func() { _ = file.Close() }()

	if err := validator.ValidateFileName(header.Filename); err != nil {
		HandleError(c, err)
		return
	}
	if h.maxBytes > 0 && header.Size > h.maxBytes {
		HandleError(c, domain.ErrFileTooLarge)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		HandleError(c, fmt.Errorf("reading upload: %w", err))
		return
	}

	result, outcome := h.statementService.ParseAndStore(c.Request.Context(), service.ParseStatementInput{
		FileName: header.Filename,
		Data:     data,
		Strategy: strategy,
		Provider: provider,
	})
	respondOutcome(c, result, outcome)
}

// SupportedFormats handles GET /api/v1/supported-formats
func (h *StatementHandler) SupportedFormats(c *gin.Context) {
	caps := parser.ProviderCapabilities()
	providers := make([]gin.H, 0, len(domain.Providers))
	for _, p := range domain.Providers {
		entry := gin.H{"name": p}
		if cp, ok := caps[string(p)]; ok {
			entry["text"], entry["vision"], entry["json_mode"] = cp.Text, cp.Vision, cp.JSONMode
		} else if p == domain.ProviderFallback {
			entry["chain"] = h.parserCfg.FallbackChain()
		} else {
			continue
		}
		providers = append(providers, entry)
	}

	RespondOK(c, gin.H{
		"formats":          []string{"pdf"},
		"max_file_size_mb": h.maxBytes / (1024 * 1024),
		"strategies":       []domain.Strategy{domain.StrategyText, domain.StrategyVision},
		"default_strategy": h.parserCfg.DefaultStrategy,
		"default_provider": h.parserCfg.DefaultProvider,
		"providers":        providers,
		"export_formats":   []domain.ExportFormat{domain.ExportCSV, domain.ExportXLSX},
	})
}

// parseSelectors reads strategy and provider from the query. use_vision and
// llm_provider are accepted when strategy and provider are absent.
func parseSelectors(c *gin.Context) (domain.Strategy, domain.Provider, error) {
	strategy := domain.Strategy(c.Query("strategy"))
	if strategy == "" {
		if raw := c.Query("use_vision"); raw != "" {
			useVision, err := strconv.ParseBool(raw)
			if err != nil {
				return "", "", fmt.Errorf("%w: use_vision=%q", domain.ErrUnsupportedStrategy, raw)
			}
			strategy = domain.StrategyText
			if useVision {
				strategy = domain.StrategyVision
			}
		}
	}
	if strategy != "" && !strategy.Valid() {
		return "", "", fmt.Errorf("%w: %q", domain.ErrUnsupportedStrategy, strategy)
	}

	provider := domain.Provider(c.Query("provider"))
	if provider == "" {
		provider = domain.Provider(c.Query("llm_provider"))
	}
	if provider != "" && !slices.Contains(domain.Providers, provider) {
		return "", "", fmt.Errorf("%w: %q", domain.ErrUnknownProvider, provider)
	}
	return strategy, provider, nil
}

// respondOutcome writes a parse outcome: 200 on success, 400 for input errors, 422 otherwise.
func respondOutcome(c *gin.Context, result *domain.ParseResult, outcome domain.ParsedOutcome) {
	body := ParseResponse{ParsedOutcome: outcome}
	if result != nil {
		id := result.ID
		body.ResultID = &id
	}

	status := http.StatusOK
	if !outcome.Success {
		status = http.StatusUnprocessableEntity
		if outcome.ErrorKind == domain.ErrorKindInput {
			status = http.StatusBadRequest
		}
	}
	c.JSON(status, body)
}
