package openai

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
	apiURL       = "https://api.openai.com/v1/chat/completions"
	providerName = "openai"
)

func init() {
	parser.RegisterProvider(providerName, parser.Capabilities{Text: true, Vision: true, JSONMode: true},
		func(cfg *config.ParserProviderConfig) (port.LLMProvider, error) {
			return NewProvider(cfg), nil
		})
}

// Provider implements port.LLMProvider using the OpenAI Chat Completions API.
type Provider struct {
	apiKey          string
	model           string
	maxTokens       int
	temperature     float64
	jsonMode        bool
	reasoningEffort string
	endpoint        string
	client          *http.Client
}

// NewProvider creates an OpenAI provider from a provider config.
func NewProvider(cfg *config.ParserProviderConfig) *Provider {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = apiURL
	}
	return newProvider(cfg, endpoint)
}

// NewProviderWithEndpoint creates a provider pointing at a custom API endpoint (for testing).
func NewProviderWithEndpoint(cfg *config.ParserProviderConfig, endpoint string) *Provider {
	return newProvider(cfg, endpoint)
}

func newProvider(cfg *config.ParserProviderConfig, endpoint string) *Provider {
	model := cfg.Model
	if model == "" {
		model = "gpt-5-mini"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4000
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	effort := cfg.ReasoningEffort
	if effort == "" {
		effort = "low"
	}
	return &Provider{
		apiKey:          cfg.APIKey,
		model:           model,
		maxTokens:       maxTokens,
		temperature:     cfg.Temperature,
		jsonMode:        cfg.JSONMode,
		reasoningEffort: effort,
		endpoint:        endpoint,
		client:          &http.Client{Timeout: timeout},
	}
}

func (p *Provider) Name() string { return providerName }

// SupportsJSONMode reports whether model accepts response_format json_object.
func SupportsJSONMode(model string) bool {
	m := strings.ToLower(model)
	for _, family := range []string{"gpt-4o", "gpt-4.1", "gpt-5"} {
		if strings.Contains(m, family) {
			return true
		}
	}
	return false
}

// isReasoningModel reports whether model takes max_completion_tokens and rejects temperature.
func isReasoningModel(model string) bool {
	m := strings.ToLower(model)
	return strings.HasPrefix(m, "gpt-5") || strings.HasPrefix(m, "o1") || strings.HasPrefix(m, "o3") || strings.HasPrefix(m, "o4")
}

func (p *Provider) Call(ctx context.Context, creq port.CallRequest) (string, error) {
	reqBody := map[string]interface{}{
		"model": p.model,
		"messages": []map[string]interface{}{
			{
				"role":    "system",
				"content": creq.Prompt,
			},
			{
				"role":    "user",
				"content": buildContentBlocks(creq),
			},
		},
	}
	if isReasoningModel(p.model) {
		reqBody["max_completion_tokens"] = p.maxTokens
		reqBody["reasoning_effort"] = p.reasoningEffort
	} else {
		reqBody["max_tokens"] = p.maxTokens
		reqBody["temperature"] = p.temperature
	}
	if p.jsonMode && SupportsJSONMode(p.model) {
		reqBody["response_format"] = map[string]interface{}{
			"type": "json_object",
		}
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
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", parser.NewProviderError(providerName, "calling openai API", err)
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

func buildContentBlocks(creq port.CallRequest) []map[string]interface{} {
	blocks := []map[string]interface{}{
		{
			"type": "text",
			"text": parser.BuildUserMessage(creq.Unit, creq.Hint),
		},
	}
	if creq.Unit.Kind == domain.UnitImage {
		dataURI := fmt.Sprintf("data:%s;base64,%s", creq.Unit.MediaType, creq.Unit.ImageBase64)
		return append(blocks, map[string]interface{}{
			"type": "image_url",
			"image_url": map[string]interface{}{
				"url":    dataURI,
				"detail": "high",
			},
		})
	}
	return append(blocks, map[string]interface{}{
		"type": "text",
		"text": creq.Unit.Text,
	})
}

// apiResponse models the OpenAI Chat Completions API response.
type apiResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func parseResponse(body []byte) (string, error) {
	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", parser.NewProviderError(providerName, "unmarshaling response", err)
	}

	if len(resp.Choices) == 0 {
		return "", parser.NewProviderError(providerName, "empty response from API: no choices", nil)
	}

	if resp.Choices[0].FinishReason == "length" {
		return "", parser.NewProviderError(providerName, "output truncated (finish_reason: length): response exceeded output token limit", nil)
	}

	return resp.Choices[0].Message.Content, nil
}
