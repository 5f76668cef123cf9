package claude_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bankparse/internal/config"
	"bankparse/internal/domain"
	"bankparse/internal/parser"
	"bankparse/internal/parser/claude"
	"bankparse/internal/port"
)

func newTestProvider(serverURL string) *claude.Provider {
	cfg := &config.ParserProviderConfig{
		Provider:    "claude",
		APIKey:      "test-api-key",
		Model:       "claude-sonnet-4-20250514",
		MaxTokens:   4000,
		JSONMode:    true,
		TimeoutSecs: 30,
	}
	return claude.NewProviderWithEndpoint(cfg, serverURL)
}

func successResponse(text, stopReason string) map[string]interface{} {
	return map[string]interface{}{
		"content": []map[string]interface{}{
			{"type": "text", "text": text},
		},
		"stop_reason": stopReason,
	}
}

func TestClaudeProvider_Call_Text_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-api-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))

		var reqBody map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&reqBody))
		assert.Equal(t, "claude-sonnet-4-20250514", reqBody["model"])
		assert.Equal(t, float64(4000), reqBody["max_tokens"])
		assert.Equal(t, "the prompt", reqBody["system"])

		messages := reqBody["messages"].([]interface{})
		assert.Len(t, messages, 1)
		content := messages[0].(map[string]interface{})["content"].([]interface{})
		assert.Len(t, content, 2)
		assert.Equal(t, "statement text", content[0].(map[string]interface{})["text"])
		assert.Contains(t, content[1].(map[string]interface{})["text"], "starting from: after 2024-01-05")

		_ = json.NewEncoder(w).Encode(successResponse(`{"transactions":[]}`, "end_turn"))
	}))
	defer server.Close()

	out, err := newTestProvider(server.URL).Call(context.Background(), port.CallRequest{
		Unit:   port.Unit{Kind: domain.UnitText, Text: "statement text"},
		Prompt: "the prompt",
		Hint:   "after 2024-01-05",
	})

	require.NoError(t, err)
	assert.Equal(t, `{"transactions":[]}`, out)
}

func TestClaudeProvider_Call_Image(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var reqBody map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&reqBody))
		messages := reqBody["messages"].([]interface{})
		content := messages[0].(map[string]interface{})["content"].([]interface{})
		img := content[0].(map[string]interface{})
		assert.Equal(t, "image", img["type"])
		source := img["source"].(map[string]interface{})
		assert.Equal(t, "base64", source["type"])
		assert.Equal(t, "image/png", source["media_type"])
		assert.Equal(t, "aGVsbG8=", source["data"])

		_ = json.NewEncoder(w).Encode(successResponse(`{"transactions":[]}`, "end_turn"))
	}))
	defer server.Close()

	_, err := newTestProvider(server.URL).Call(context.Background(), port.CallRequest{
		Unit: port.Unit{Kind: domain.UnitImage, ImageBase64: "aGVsbG8=", MediaType: "image/png", Page: 1},
	})
	require.NoError(t, err)
}

func TestClaudeProvider_Call_NoJSONModeField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var reqBody map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&reqBody))
		assert.NotContains(t, reqBody, "response_format")
		_ = json.NewEncoder(w).Encode(successResponse(`{}`, "end_turn"))
	}))
	defer server.Close()

	_, err := newTestProvider(server.URL).Call(context.Background(), port.CallRequest{Unit: port.Unit{Kind: domain.UnitText}})
	require.NoError(t, err)
}

func TestClaudeProvider_Call_ConcatenatesTextBlocks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"content": []map[string]interface{}{
				{"type": "text", "text": `{"transactions":`},
				{"type": "text", "text": `[]}`},
			},
			"stop_reason": "end_turn",
		})
	}))
	defer server.Close()

	out, err := newTestProvider(server.URL).Call(context.Background(), port.CallRequest{Unit: port.Unit{Kind: domain.UnitText}})
	require.NoError(t, err)
	assert.Equal(t, `{"transactions":[]}`, out)
}

func TestClaudeProvider_Call_MaxTokens(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(successResponse(`{"transactions":[`, "max_tokens"))
	}))
	defer server.Close()

	_, err := newTestProvider(server.URL).Call(context.Background(), port.CallRequest{Unit: port.Unit{Kind: domain.UnitText}})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProvider)
	assert.Contains(t, err.Error(), "max_tokens")
}

func TestClaudeProvider_Call_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"overloaded"}`))
	}))
	defer server.Close()

	_, err := newTestProvider(server.URL).Call(context.Background(), port.CallRequest{Unit: port.Unit{Kind: domain.UnitText}})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProvider)
	assert.False(t, parser.IsRateLimited(err))
	assert.Contains(t, err.Error(), "status 500")
}

func TestClaudeProvider_Call_RateLimited_DefaultRetryAfter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := newTestProvider(server.URL).Call(context.Background(), port.CallRequest{Unit: port.Unit{Kind: domain.UnitText}})

	var rlErr *parser.RateLimitError
	require.True(t, errors.As(err, &rlErr))
	assert.Equal(t, "claude", rlErr.Provider)
	assert.Equal(t, float64(60), rlErr.RetryAfter.Seconds())
}
