package claude

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
	apiURL       = "https://api.anthropic.com/v1/messages"
	apiVersion   = "2023-06-01"
	providerName = "claude"
)

func init() {
	parser.RegisterProvider(providerName, parser.Capabilities{Text: true, Vision: true},
		func(cfg *config.ParserProviderConfig) (port.LLMProvider, error) {
			return NewProvider(cfg), nil
		})
}

// Provider implements port.LLMProvider using the Anthropic Messages API.
// The Messages API has no JSON output mode, so json_mode is ignored.
type Provider struct {
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	endpoint    string
	client      *http.Client
}

// NewProvider creates a Claude provider from a provider config.
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
		model = "claude-sonnet-4-20250514"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4000
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &Provider{
		apiKey:      cfg.APIKey,
		model:       model,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		endpoint:    endpoint,
		client:      &http.Client{Timeout: timeout},
	}
}

func (p *Provider) Name() string { return providerName }

func (p *Provider) Call(ctx context.Context, creq port.CallRequest) (string, error) {
	reqBody := map[string]interface{}{
		"model":       p.model,
		"max_tokens":  p.maxTokens,
		"temperature": p.temperature,
		"system":      creq.Prompt,
		"messages": []map[string]interface{}{
			{
				"role":    "user",
				"content": buildContentBlocks(creq),
			},
		},
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
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", parser.NewProviderError(providerName, "calling anthropic API", err)
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
	var blocks []map[string]interface{}
	if creq.Unit.Kind == domain.UnitImage {
		blocks = append(blocks, map[string]interface{}{
			"type": "image",
			"source": map[string]interface{}{
				"type":       "base64",
				"media_type": creq.Unit.MediaType,
				"data":       creq.Unit.ImageBase64,
			},
		})
	} else {
		blocks = append(blocks, map[string]interface{}{
			"type": "text",
			"text": creq.Unit.Text,
		})
	}
	return append(blocks, map[string]interface{}{
		"type": "text",
		"text": parser.BuildUserMessage(creq.Unit, creq.Hint),
	})
}

// apiResponse models the Anthropic Messages API response.
type apiResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

func parseResponse(body []byte) (string, error) {
	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", parser.NewProviderError(providerName, "unmarshaling response", err)
	}

	if len(resp.Content) == 0 {
		return "", parser.NewProviderError(providerName, "empty response from API", nil)
	}

	if resp.StopReason == "max_tokens" {
		return "", parser.NewProviderError(providerName, "output truncated (stop_reason: max_tokens): response exceeded output token limit", nil)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}
