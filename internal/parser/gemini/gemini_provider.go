package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"bankparse/internal/config"
	"bankparse/internal/domain"
	"bankparse/internal/parser"
	"bankparse/internal/port"
)

const (
	apiBaseURL   = "https://generativelanguage.googleapis.com/v1beta/models"
	providerName = "gemini"
)

func init() {
	parser.RegisterProvider(providerName, parser.Capabilities{Text: true, Vision: true, JSONMode: true},
		func(cfg *config.ParserProviderConfig) (port.LLMProvider, error) {
			return NewProvider(cfg), nil
		})
}

// Provider implements port.LLMProvider using Google's Gemini API.
type Provider struct {
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	jsonMode    bool
	endpoint    string
	client      *http.Client
}

// NewProvider creates a Gemini provider.
func NewProvider(cfg *config.ParserProviderConfig) *Provider {
	return newProvider(cfg, cfg.Endpoint)
}

// NewProviderWithEndpoint creates a provider pointing at a custom API endpoint (for testing).
func NewProviderWithEndpoint(cfg *config.ParserProviderConfig, endpoint string) *Provider {
	return newProvider(cfg, endpoint)
}

func newProvider(cfg *config.ParserProviderConfig, endpoint string) *Provider {
	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4000
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	if endpoint == "" {
		endpoint = fmt.Sprintf("%s/%s:generateContent", apiBaseURL, model)
	}
	return &Provider{
		apiKey:      cfg.APIKey,
		model:       model,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		jsonMode:    cfg.JSONMode,
		endpoint:    endpoint,
		client:      &http.Client{Timeout: timeout},
	}
}

func (p *Provider) Name() string { return providerName }

func (p *Provider) Call(ctx context.Context, creq port.CallRequest) (string, error) {
	generationConfig := map[string]interface{}{
		"maxOutputTokens": p.maxTokens,
		"temperature":     p.temperature,
	}
	if p.jsonMode {
		generationConfig["responseMimeType"] = "application/json"
	}

	reqBody := map[string]interface{}{
		"systemInstruction": map[string]interface{}{
			"parts": []map[string]interface{}{
				{"text": creq.Prompt},
			},
		},
		"contents": []map[string]interface{}{
			{
				"role":  "user",
				"parts": buildParts(creq),
			},
		},
		"generationConfig": generationConfig,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", parser.NewProviderError(providerName, "calling gemini API", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", parser.NewProviderError(providerName, "reading response", err)
	}

	if resp.StatusCode != http.StatusOK {
		baseErr := parser.NewStatusError(providerName, resp.StatusCode, respBody)
		if resp.StatusCode == http.StatusTooManyRequests {
			retryAfter := parser.ParseRetryAfterHeader(resp.Header.Get("Retry-After"))
			return "", parser.NewRateLimitError(providerName, baseErr, retryAfter)
		}
		return "", baseErr
	}

	return parseResponse(respBody)
}

func buildParts(creq port.CallRequest) []map[string]interface{} {
	var parts []map[string]interface{}
	if creq.Unit.Kind == domain.UnitImage {
		parts = append(parts, map[string]interface{}{
			"inline_data": map[string]interface{}{
				"mime_type": creq.Unit.MediaType,
				"data":      creq.Unit.ImageBase64,
			},
		})
	} else {
		parts = append(parts, map[string]interface{}{
			"text": creq.Unit.Text,
		})
	}
	return append(parts, map[string]interface{}{
		"text": parser.BuildUserMessage(creq.Unit, creq.Hint),
	})
}

// geminiResponse models the Gemini API response.
type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
}

func parseResponse(body []byte) (string, error) {
	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", parser.NewProviderError(providerName, "unmarshaling response", err)
	}

	if len(resp.Candidates) == 0 {
		return "", parser.NewProviderError(providerName, "empty response from API: no candidates", nil)
	}

	if resp.Candidates[0].FinishReason == "MAX_TOKENS" {
		return "", parser.NewProviderError(providerName, "output truncated (finishReason: MAX_TOKENS): response exceeded output token limit", nil)
	}

	if len(resp.Candidates[0].Content.Parts) == 0 {
		return "", parser.NewProviderError(providerName, "empty response from API: no parts", nil)
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}
