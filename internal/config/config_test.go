package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bankparse/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, int64(10), cfg.Upload.MaxFileSizeMB)
	assert.Equal(t, int64(10*1024*1024), cfg.Upload.MaxBytes())
	assert.Equal(t, 3, cfg.Pagination.MaxContinuations)
	assert.Equal(t, 4, cfg.Pagination.ImageConcurrency)
	assert.Equal(t, "openai", cfg.Parser.DefaultProvider)
	assert.Equal(t, "vision", cfg.Parser.DefaultStrategy)
	assert.Equal(t, "USD", cfg.Parser.Currency)
	assert.False(t, cfg.DB.Enabled)
	assert.Empty(t, cfg.S3.Bucket)

	openai := cfg.Parser.ProviderConfig("openai")
	require.NotNil(t, openai)
	assert.Equal(t, "gpt-5-mini", openai.Model)
	assert.Equal(t, 4000, openai.MaxTokens)
	assert.InDelta(t, 0.1, openai.Temperature, 1e-9)
	assert.True(t, openai.JSONMode)
	assert.Equal(t, 120, openai.TimeoutSecs)
	assert.Equal(t, "low", openai.ReasoningEffort)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("BANKPARSE_UPLOAD_MAX_FILE_SIZE_MB", "25")
	t.Setenv("BANKPARSE_PAGINATION_MAX_CONTINUATIONS", "7")
	t.Setenv("BANKPARSE_PARSER_CLAUDE_API_KEY", "sk-ant")
	t.Setenv("BANKPARSE_PARSER_CLAUDE_MAX_TOKENS", "8000")
	t.Setenv("BANKPARSE_PARSER_PRIMARY", "claude")
	t.Setenv("BANKPARSE_PARSER_SECONDARY", "gemini")
	t.Setenv("BANKPARSE_CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, int64(25), cfg.Upload.MaxFileSizeMB)
	assert.Equal(t, 7, cfg.Pagination.MaxContinuations)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)

	claude := cfg.Parser.ProviderConfig("claude")
	require.NotNil(t, claude)
	assert.Equal(t, "sk-ant", claude.APIKey)
	assert.Equal(t, 8000, claude.MaxTokens)
	assert.Equal(t, []string{"claude", "gemini"}, cfg.Parser.FallbackChain())
}

func TestLoad_ProviderJSONModeOverridesShared(t *testing.T) {
	t.Setenv("BANKPARSE_PARSER_JSON_MODE", "true")
	t.Setenv("BANKPARSE_PARSER_GEMINI_JSON_MODE", "false")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.False(t, cfg.Parser.ProviderConfig("gemini").JSONMode)
	assert.True(t, cfg.Parser.ProviderConfig("openai").JSONMode)
}

func TestLoad_PortFromPlatform(t *testing.T) {
	t.Setenv("PORT", "9090")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Port)
}

func TestLoad_RejectsBadStrategy(t *testing.T) {
	t.Setenv("BANKPARSE_PARSER_DEFAULT_STRATEGY", "ocr")

	_, err := config.Load()
	assert.Error(t, err)
}

func TestParserConfig_ProviderConfig_Unknown(t *testing.T) {
	cfg := config.ParserConfig{}
	assert.Nil(t, cfg.ProviderConfig("mistral"))
}

func TestParserConfig_ProviderConfig_SharedFallbacks(t *testing.T) {
	cfg := config.ParserConfig{
		MaxTokens:   2000,
		Temperature: 0.3,
		JSONMode:    true,
		TimeoutSecs: 45,
		Gemini: config.ParserProviderConfig{
			Model:       "gemini-2.0-flash",
			Temperature: -1,
		},
	}

	gemini := cfg.ProviderConfig("gemini")
	require.NotNil(t, gemini)
	assert.Equal(t, "gemini", gemini.Provider)
	assert.Equal(t, 2000, gemini.MaxTokens)
	assert.InDelta(t, 0.3, gemini.Temperature, 1e-9)
	assert.True(t, gemini.JSONMode)
	assert.Equal(t, 45, gemini.TimeoutSecs)
}

func TestParserConfig_ProviderConfig_BlockDisablesJSONMode(t *testing.T) {
	cfg := config.ParserConfig{
		JSONMode: true,
		Claude:   config.ParserProviderConfig{JSONMode: false, JSONModeSet: true},
	}

	assert.False(t, cfg.ProviderConfig("claude").JSONMode)
	assert.True(t, cfg.ProviderConfig("gemini").JSONMode)
}

func TestParserConfig_ProviderConfig_BlockWins(t *testing.T) {
	cfg := config.ParserConfig{
		MaxTokens: 2000,
		OpenAI: config.ParserProviderConfig{
			Model:       "gpt-4o",
			MaxTokens:   6000,
			Temperature: 0,
		},
	}

	openai := cfg.ProviderConfig("openai")
	require.NotNil(t, openai)
	assert.Equal(t, 6000, openai.MaxTokens)
	assert.Zero(t, openai.Temperature)
}

func TestParserConfig_FallbackChain_SkipsBlanks(t *testing.T) {
	cfg := config.ParserConfig{Primary: "openai", Tertiary: "gemini"}
	assert.Equal(t, []string{"openai", "gemini"}, cfg.FallbackChain())
}

func TestDBConfig_DSN(t *testing.T) {
	db := config.DBConfig{User: "u", Password: "p", Host: "h", Port: 5432, Name: "n", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@h:5432/n?sslmode=disable", db.DSN())
}
