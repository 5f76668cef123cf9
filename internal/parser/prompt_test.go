package parser_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"bankparse/internal/config"
	"bankparse/internal/domain"
	"bankparse/internal/parser"
	"bankparse/internal/port"
)

func TestBuildStatementPrompt(t *testing.T) {
	prompt := parser.BuildStatementPrompt(parser.PromptOptions{DefaultCurrency: "GBP"})

	for _, field := range []string{
		"account_holder", "bank_name", "account_number", "statement_period",
		"opening_balance", "closing_balance", "currency", "transactions",
		"has_more", "next_page_hint", "balance", "category",
	} {
		assert.Contains(t, prompt, `"`+field+`"`)
	}
	assert.Contains(t, prompt, `"transactions": []`)
	assert.Contains(t, prompt, "no thousands separators")
	assert.Contains(t, prompt, `"GBP"`)
	assert.Equal(t, prompt, parser.BuildStatementPrompt(parser.PromptOptions{DefaultCurrency: "GBP"}))
}

func TestBuildStatementPrompt_DefaultCurrency(t *testing.T) {
	assert.Contains(t, parser.BuildStatementPrompt(parser.PromptOptions{}), `"USD"`)
}

func TestBuildUserMessage(t *testing.T) {
	text := port.Unit{Kind: domain.UnitText}
	img := port.Unit{Kind: domain.UnitImage, Page: 4}

	assert.Equal(t, "Parse this bank statement text and return the JSON object.", parser.BuildUserMessage(text, ""))
	assert.Contains(t, parser.BuildUserMessage(text, "after row 12"), "starting from: after row 12")
	assert.Contains(t, parser.BuildUserMessage(img, ""), "page 4 of this bank statement")
}

func TestFactory_UnknownProvider(t *testing.T) {
	_, err := parser.NewProvider(&config.ParserProviderConfig{Provider: "mistral"})
	assert.ErrorIs(t, err, domain.ErrUnknownProvider)
}

func TestFactory_RegisterAndCreate(t *testing.T) {
	parser.RegisterProvider("test-fake", parser.Capabilities{Text: true}, func(cfg *config.ParserProviderConfig) (port.LLMProvider, error) {
		return parser.NewFallbackProvider(nil), nil
	})

	p, err := parser.NewProvider(&config.ParserProviderConfig{Provider: "test-fake"})
	assert.NoError(t, err)
	assert.NotNil(t, p)
	assert.Contains(t, parser.RegisteredProviders(), "test-fake")
	assert.True(t, parser.ProviderCapabilities()["test-fake"].Text)
}
