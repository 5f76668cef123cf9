package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig
	DB         DBConfig
	S3         S3Config
	CORS       CORSConfig
	Upload     UploadConfig
	PDF        PDFConfig
	Pagination PaginationConfig
	Parser     ParserConfig
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// UploadConfig holds document upload limits.
type UploadConfig struct {
	MaxFileSizeMB int64 `mapstructure:"max_file_size_mb"`
}

// MaxBytes returns the upload limit in bytes.
func (u *UploadConfig) MaxBytes() int64 {
	return u.MaxFileSizeMB * 1024 * 1024
}

// PDFConfig holds page extraction settings.
type PDFConfig struct {
	MaxChunkChars int `mapstructure:"max_chunk_chars"`
	DPI           int `mapstructure:"dpi"`
	MaxPages      int `mapstructure:"max_pages"`
}

// PaginationConfig bounds the number of provider calls per request.
type PaginationConfig struct {
	MaxContinuations int `mapstructure:"max_continuations"`
	ImageConcurrency int `mapstructure:"image_concurrency"`
}

// ParserProviderConfig holds settings for a single LLM provider.
type ParserProviderConfig struct {
	Provider        string  `mapstructure:"provider"`
	APIKey          string  `mapstructure:"api_key"`
	Model           string  `mapstructure:"model"`
	MaxTokens       int     `mapstructure:"max_tokens"`
	Temperature     float64 `mapstructure:"temperature"`
	JSONMode        bool    `mapstructure:"json_mode"`
	ReasoningEffort string  `mapstructure:"reasoning_effort"`
	TimeoutSecs     int     `mapstructure:"timeout_secs"`
	Endpoint        string  `mapstructure:"endpoint"`

	// JSONModeSet marks json_mode as set on this block, so false overrides the shared value.
	JSONModeSet bool `mapstructure:"-"`
}

// ParserConfig holds LLM settings with per-provider blocks and a failover chain.
type ParserConfig struct {
	DefaultProvider string `mapstructure:"default_provider"`
	DefaultStrategy string `mapstructure:"default_strategy"`
	Currency        string `mapstructure:"currency"`

	// Shared fallbacks applied to any provider block that leaves them unset.
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
	JSONMode    bool    `mapstructure:"json_mode"`
	TimeoutSecs int     `mapstructure:"timeout_secs"`

	OpenAI ParserProviderConfig `mapstructure:"openai"`
	Claude ParserProviderConfig `mapstructure:"claude"`
	Gemini ParserProviderConfig `mapstructure:"gemini"`

	// Failover chain used by the "fallback" provider selector.
	Primary   string `mapstructure:"primary"`
	Secondary string `mapstructure:"secondary"`
	Tertiary  string `mapstructure:"tertiary"`
}

// ProviderConfig returns the resolved config for a named provider, or nil if the name is unknown.
func (p *ParserConfig) ProviderConfig(name string) *ParserProviderConfig {
	var base ParserProviderConfig
	switch name {
	case "openai":
		base = p.OpenAI
	case "claude":
		base = p.Claude
	case "gemini":
		base = p.Gemini
	default:
		return nil
	}
	base.Provider = name
	if base.MaxTokens == 0 {
		base.MaxTokens = p.MaxTokens
	}
	if base.TimeoutSecs == 0 {
		base.TimeoutSecs = p.TimeoutSecs
	}
	if !base.JSONModeSet {
		base.JSONMode = p.JSONMode
	}
	if base.Temperature < 0 {
		base.Temperature = p.Temperature
	}
	return &base
}

// FallbackChain returns the configured failover provider names in order, skipping blanks.
func (p *ParserConfig) FallbackChain() []string {
	var chain []string
	for _, name := range []string{p.Primary, p.Secondary, p.Tertiary} {
		if name != "" {
			chain = append(chain, name)
		}
	}
	return chain
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Environment  string        `mapstructure:"environment"`
}

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxOpen  int    `mapstructure:"max_open"`
	MaxIdle  int    `mapstructure:"max_idle"`
}

// DSN returns the PostgreSQL connection string.
func (d *DBConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// S3Config holds settings for archiving uploaded statements. An empty bucket disables archiving.
type S3Config struct {
	Region        string `mapstructure:"region"`
	Bucket        string `mapstructure:"bucket"`
	Endpoint      string `mapstructure:"endpoint"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	PresignExpiry int64  `mapstructure:"presign_expiry"`
}

var providerKeys = []string{"api_key", "model", "max_tokens", "temperature", "json_mode", "reasoning_effort", "timeout_secs", "endpoint"}

// Load reads configuration from environment variables with the BANKPARSE_ prefix.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BANKPARSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Server defaults
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "300s")
	v.SetDefault("server.environment", "development")

	// DB defaults
	v.SetDefault("db.enabled", false)
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "bankparse")
	v.SetDefault("db.password", "bankparse_secret")
	v.SetDefault("db.name", "bankparse_db")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_open", 25)
	v.SetDefault("db.max_idle", 10)

	// S3 defaults
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.presign_expiry", 3600)

	v.SetDefault("cors.allowed_origins", "http://localhost:3000,http://127.0.0.1:3000")

	v.SetDefault("upload.max_file_size_mb", 10)

	v.SetDefault("pdf.max_chunk_chars", 0)
	v.SetDefault("pdf.dpi", 150)
	v.SetDefault("pdf.max_pages", 50)

	v.SetDefault("pagination.max_continuations", 3)
	v.SetDefault("pagination.image_concurrency", 4)

	// Parser defaults
	v.SetDefault("parser.default_provider", "openai")
	v.SetDefault("parser.default_strategy", "vision")
	v.SetDefault("parser.currency", "USD")
	v.SetDefault("parser.max_tokens", 4000)
	v.SetDefault("parser.temperature", 0.1)
	v.SetDefault("parser.json_mode", true)
	v.SetDefault("parser.timeout_secs", 120)
	v.SetDefault("parser.openai.model", "gpt-5-mini")
	v.SetDefault("parser.openai.reasoning_effort", "low")
	v.SetDefault("parser.claude.model", "claude-sonnet-4-20250514")
	v.SetDefault("parser.gemini.model", "gemini-2.0-flash")
	for _, p := range []string{"openai", "claude", "gemini"} {
		v.SetDefault("parser."+p+".temperature", -1)
	}
	v.SetDefault("parser.primary", "")
	v.SetDefault("parser.secondary", "")
	v.SetDefault("parser.tertiary", "")

	// Bind environment variables explicitly for nested keys
	envBindings := map[string]string{
		"server.port":                  "BANKPARSE_SERVER_PORT",
		"server.read_timeout":          "BANKPARSE_SERVER_READ_TIMEOUT",
		"server.write_timeout":         "BANKPARSE_SERVER_WRITE_TIMEOUT",
		"server.environment":           "BANKPARSE_SERVER_ENVIRONMENT",
		"db.enabled":                   "BANKPARSE_DB_ENABLED",
		"db.host":                      "BANKPARSE_DB_HOST",
		"db.port":                      "BANKPARSE_DB_PORT",
		"db.user":                      "BANKPARSE_DB_USER",
		"db.password":                  "BANKPARSE_DB_PASSWORD",
		"db.name":                      "BANKPARSE_DB_NAME",
		"db.sslmode":                   "BANKPARSE_DB_SSLMODE",
		"db.max_open":                  "BANKPARSE_DB_MAX_OPEN",
		"db.max_idle":                  "BANKPARSE_DB_MAX_IDLE",
		"s3.region":                    "BANKPARSE_S3_REGION",
		"s3.bucket":                    "BANKPARSE_S3_BUCKET",
		"s3.endpoint":                  "BANKPARSE_S3_ENDPOINT",
		"s3.access_key":                "BANKPARSE_S3_ACCESS_KEY",
		"s3.secret_key":                "BANKPARSE_S3_SECRET_KEY",
		"s3.presign_expiry":            "BANKPARSE_S3_PRESIGN_EXPIRY",
		"cors.allowed_origins":         "BANKPARSE_CORS_ALLOWED_ORIGINS",
		"upload.max_file_size_mb":      "BANKPARSE_UPLOAD_MAX_FILE_SIZE_MB",
		"pdf.max_chunk_chars":          "BANKPARSE_PDF_MAX_CHUNK_CHARS",
		"pdf.dpi":                      "BANKPARSE_PDF_DPI",
		"pdf.max_pages":                "BANKPARSE_PDF_MAX_PAGES",
		"pagination.max_continuations": "BANKPARSE_PAGINATION_MAX_CONTINUATIONS",
		"pagination.image_concurrency": "BANKPARSE_PAGINATION_IMAGE_CONCURRENCY",
		"parser.default_provider":      "BANKPARSE_PARSER_DEFAULT_PROVIDER",
		"parser.default_strategy":      "BANKPARSE_PARSER_DEFAULT_STRATEGY",
		"parser.currency":              "BANKPARSE_PARSER_CURRENCY",
		"parser.max_tokens":            "BANKPARSE_PARSER_MAX_TOKENS",
		"parser.temperature":           "BANKPARSE_PARSER_TEMPERATURE",
		"parser.json_mode":             "BANKPARSE_PARSER_JSON_MODE",
		"parser.timeout_secs":          "BANKPARSE_PARSER_TIMEOUT_SECS",
		"parser.primary":               "BANKPARSE_PARSER_PRIMARY",
		"parser.secondary":             "BANKPARSE_PARSER_SECONDARY",
		"parser.tertiary":              "BANKPARSE_PARSER_TERTIARY",
	}
	for _, p := range []string{"openai", "claude", "gemini"} {
		for _, k := range providerKeys {
			key := "parser." + p + "." + k
			envBindings[key] = "BANKPARSE_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		}
	}
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	cfg := &Config{}

	// Railway/Heroku/Render set a PORT env var. Use it if BANKPARSE_SERVER_PORT is not explicitly set.
	serverPort := v.GetString("server.port")
	if port := os.Getenv("PORT"); port != "" && os.Getenv("BANKPARSE_SERVER_PORT") == "" {
		serverPort = ":" + port
	}

	cfg.Server = ServerConfig{
		Port:         serverPort,
		ReadTimeout:  v.GetDuration("server.read_timeout"),
		WriteTimeout: v.GetDuration("server.write_timeout"),
		Environment:  v.GetString("server.environment"),
	}
	cfg.DB = DBConfig{
		Enabled:  v.GetBool("db.enabled"),
		Host:     v.GetString("db.host"),
		Port:     v.GetInt("db.port"),
		User:     v.GetString("db.user"),
		Password: v.GetString("db.password"),
		Name:     v.GetString("db.name"),
		SSLMode:  v.GetString("db.sslmode"),
		MaxOpen:  v.GetInt("db.max_open"),
		MaxIdle:  v.GetInt("db.max_idle"),
	}
	cfg.S3 = S3Config{
		Region:        v.GetString("s3.region"),
		Bucket:        v.GetString("s3.bucket"),
		Endpoint:      v.GetString("s3.endpoint"),
		AccessKey:     v.GetString("s3.access_key"),
		SecretKey:     v.GetString("s3.secret_key"),
		PresignExpiry: v.GetInt64("s3.presign_expiry"),
	}
	cfg.CORS = CORSConfig{
		AllowedOrigins: splitList(v.GetString("cors.allowed_origins")),
	}
	cfg.Upload = UploadConfig{
		MaxFileSizeMB: v.GetInt64("upload.max_file_size_mb"),
	}
	cfg.PDF = PDFConfig{
		MaxChunkChars: v.GetInt("pdf.max_chunk_chars"),
		DPI:           v.GetInt("pdf.dpi"),
		MaxPages:      v.GetInt("pdf.max_pages"),
	}
	cfg.Pagination = PaginationConfig{
		MaxContinuations: v.GetInt("pagination.max_continuations"),
		ImageConcurrency: v.GetInt("pagination.image_concurrency"),
	}

	cfg.Parser = ParserConfig{
		DefaultProvider: v.GetString("parser.default_provider"),
		DefaultStrategy: v.GetString("parser.default_strategy"),
		Currency:        v.GetString("parser.currency"),
		MaxTokens:       v.GetInt("parser.max_tokens"),
		Temperature:     v.GetFloat64("parser.temperature"),
		JSONMode:        v.GetBool("parser.json_mode"),
		TimeoutSecs:     v.GetInt("parser.timeout_secs"),
		OpenAI:          loadProvider(v, "openai"),
		Claude:          loadProvider(v, "claude"),
		Gemini:          loadProvider(v, "gemini"),
		Primary:         v.GetString("parser.primary"),
		Secondary:       v.GetString("parser.secondary"),
		Tertiary:        v.GetString("parser.tertiary"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadProvider(v *viper.Viper, name string) ParserProviderConfig {
	prefix := "parser." + name + "."
	return ParserProviderConfig{
		Provider:        name,
		APIKey:          v.GetString(prefix + "api_key"),
		Model:           v.GetString(prefix + "model"),
		MaxTokens:       v.GetInt(prefix + "max_tokens"),
		Temperature:     v.GetFloat64(prefix + "temperature"),
		JSONMode:        v.GetBool(prefix + "json_mode"),
		JSONModeSet:     v.IsSet(prefix + "json_mode"),
		ReasoningEffort: v.GetString(prefix + "reasoning_effort"),
		TimeoutSecs:     v.GetInt(prefix + "timeout_secs"),
		Endpoint:        v.GetString(prefix + "endpoint"),
	}
}

// Validate checks settings that would otherwise fail deep inside a request.
func (c *Config) Validate() error {
	if c.Upload.MaxFileSizeMB <= 0 {
		return fmt.Errorf("upload.max_file_size_mb must be positive, got %d", c.Upload.MaxFileSizeMB)
	}
	if c.Pagination.MaxContinuations < 0 {
		return fmt.Errorf("pagination.max_continuations must not be negative, got %d", c.Pagination.MaxContinuations)
	}
	if c.Pagination.ImageConcurrency < 1 {
		return fmt.Errorf("pagination.image_concurrency must be at least 1, got %d", c.Pagination.ImageConcurrency)
	}
	switch c.Parser.DefaultStrategy {
	case "text", "vision":
	default:
		return fmt.Errorf("parser.default_strategy must be text or vision, got %q", c.Parser.DefaultStrategy)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			out = append(out, o)
		}
	}
	return out
}
