package domain

// Strategy selects how a PDF is turned into extraction units.
type Strategy string

const (
	StrategyText   Strategy = "text"
	StrategyVision Strategy = "vision"
)

// Valid reports whether s names a known strategy.
func (s Strategy) Valid() bool {
	return s == StrategyText || s == StrategyVision
}

// Provider names an LLM backend.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderClaude Provider = "claude"
	ProviderGemini Provider = "gemini"
	// ProviderFallback walks the configured primary, secondary and tertiary providers in order.
	ProviderFallback Provider = "fallback"
)

// Providers lists the selectable providers in display order.
var Providers = []Provider{ProviderOpenAI, ProviderClaude, ProviderGemini, ProviderFallback}

// TransactionType is the direction of a transaction.
type TransactionType string

const (
	TransactionDebit  TransactionType = "debit"
	TransactionCredit TransactionType = "credit"
)

// UnitKind is the payload kind of an extraction unit.
type UnitKind string

const (
	UnitText  UnitKind = "text"
	UnitImage UnitKind = "image"
)

// ExportFormat is a supported statement export format.
type ExportFormat string

const (
	ExportCSV  ExportFormat = "csv"
	ExportXLSX ExportFormat = "xlsx"
)

// AllowedExtensions maps upload file extensions (without dot) to MIME content type.
var AllowedExtensions = map[string]string{
	"pdf": "application/pdf",
}
