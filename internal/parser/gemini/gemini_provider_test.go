package gemini_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bankparse/internal/config"
	"bankparse/internal/domain"
	"bankparse/internal/parser"
	"bankparse/internal/parser/gemini"
	"bankparse/internal/port"
)

func newTestProvider(serverURL string, jsonMode bool) *gemini.Provider {
	cfg := &config.ParserProviderConfig{
		Provider:    "gemini",
		APIKey:      "test-gemini-key",
		Model:       "gemini-2.0-flash",
		MaxTokens:   2048,
		Temperature: 0,
		JSONMode:    jsonMode,
		TimeoutSecs: 30,
	}
	return gemini.NewProviderWithEndpoint(cfg, serverURL)
}

func successResponse(text, finishReason string) map[string]interface{} {
	return map[string]interface{}{
		"candidates": []map[string]interface{}{
			{
				"content": map[string]interface{}{
					"parts": []map[string]interface{}{{"text": text}},
				},
				"finishReason": finishReason,
			},
		},
	}
}

func TestGeminiProvider_Call_Text_JSONMode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-gemini-key", r.Header.Get("x-goog-api-key"))

		var reqBody map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&reqBody))

		genCfg := reqBody["generationConfig"].(map[string]interface{})
		assert.Equal(t, "application/json", genCfg["responseMimeType"])
		assert.Equal(t, float64(2048), genCfg["maxOutputTokens"])

		sys := reqBody["systemInstruction"].(map[string]interface{})
		sysParts := sys["parts"].([]interface{})
		assert.Equal(t, "prompt", sysParts[0].(map[string]interface{})["text"])

		contents := reqBody["contents"].([]interface{})
		parts := contents[0].(map[string]interface{})["parts"].([]interface{})
		assert.Len(t, parts, 2)
		assert.Equal(t, "page text", parts[0].(map[string]interface{})["text"])

		_ = json.NewEncoder(w).Encode(successResponse(`{"transactions":[]}`, "STOP"))
	}))
	defer server.Close()

	out, err := newTestProvider(server.URL, true).Call(context.Background(), port.CallRequest{
		Unit:   port.Unit{Kind: domain.UnitText, Text: "page text"},
		Prompt: "prompt",
	})

	require.NoError(t, err)
	assert.Equal(t, `{"transactions":[]}`, out)
}

func TestGeminiProvider_Call_NoJSONMode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var reqBody map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&reqBody))
		genCfg := reqBody["generationConfig"].(map[string]interface{})
		assert.NotContains(t, genCfg, "responseMimeType")
		_ = json.NewEncoder(w).Encode(successResponse(`{}`, "STOP"))
	}))
	defer server.Close()

	_, err := newTestProvider(server.URL, false).Call(context.Background(), port.CallRequest{Unit: port.Unit{Kind: domain.UnitText}})
	require.NoError(t, err)
}

func TestGeminiProvider_Call_Image(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var reqBody map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&reqBody))
		contents := reqBody["contents"].([]interface{})
		parts := contents[0].(map[string]interface{})["parts"].([]interface{})
		inline := parts[0].(map[string]interface{})["inline_data"].(map[string]interface{})
		assert.Equal(t, "image/png", inline["mime_type"])
		assert.Equal(t, "aGVsbG8=", inline["data"])
		_ = json.NewEncoder(w).Encode(successResponse(`{"transactions":[]}`, "STOP"))
	}))
	defer server.Close()

	_, err := newTestProvider(server.URL, true).Call(context.Background(), port.CallRequest{
		Unit: port.Unit{Kind: domain.UnitImage, ImageBase64: "aGVsbG8=", MediaType: "image/png", Page: 2},
	})
	require.NoError(t, err)
}

func TestGeminiProvider_Call_MaxTokens(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(successResponse(`{"transac`, "MAX_TOKENS"))
	}))
	defer server.Close()

	_, err := newTestProvider(server.URL, true).Call(context.Background(), port.CallRequest{Unit: port.Unit{Kind: domain.UnitText}})
	assert.ErrorIs(t, err, domain.ErrProvider)
}

func TestGeminiProvider_Call_NoCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer server.Close()

	_, err := newTestProvider(server.URL, true).Call(context.Background(), port.CallRequest{Unit: port.Unit{Kind: domain.UnitText}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no candidates")
}

func TestGeminiProvider_Call_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "5")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := newTestProvider(server.URL, true).Call(context.Background(), port.CallRequest{Unit: port.Unit{Kind: domain.UnitText}})
	assert.True(t, parser.IsRateLimited(err))
}
