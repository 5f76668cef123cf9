package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/shopspring/decimal"

	"bankparse/internal/domain"
)

// ChunkResult is the partial statement produced by one provider call.
// Empty strings and nil pointers mean the chunk did not supply the field.
type ChunkResult struct {
	AccountHolder   string
	BankName        string
	AccountNumber   string
	Currency        string
	StatementPeriod domain.StatementPeriod
	OpeningBalance  *decimal.Decimal
	ClosingBalance  *decimal.Decimal
	Transactions    []domain.Transaction
	HasMore         bool
	NextPageHint    string
}

func nullable(t string) []string { return []string{t, "null"} }

// chunkSchema is the shape a recovered object must have before it is trusted.
var chunkSchema = map[string]any{
	"type":     "object",
	"required": []string{"transactions"},
	"properties": map[string]any{
		"account_holder": map[string]any{"type": nullable("string")},
		"bank_name":      map[string]any{"type": nullable("string")},
		"account_number": map[string]any{"type": nullable("string")},
		"currency":       map[string]any{"type": nullable("string")},
		"statement_period": map[string]any{
			"type": nullable("object"),
			"properties": map[string]any{
				"start_date": map[string]any{"type": nullable("string")},
				"end_date":   map[string]any{"type": nullable("string")},
			},
		},
		"opening_balance": map[string]any{"type": nullable("number")},
		"closing_balance": map[string]any{"type": nullable("number")},
		"transactions": map[string]any{
			"type": nullable("array"),
			"items": map[string]any{
				"type":     "object",
				"required": []string{"date", "description", "amount"},
				"properties": map[string]any{
					"date":        map[string]any{"type": "string"},
					"description": map[string]any{"type": "string"},
					"amount":      map[string]any{"type": "number"},
					"type":        map[string]any{"type": nullable("string")},
					"category":    map[string]any{"type": nullable("string")},
					"balance":     map[string]any{"type": nullable("number")},
				},
			},
		},
		"has_more":       map[string]any{"type": nullable("boolean")},
		"next_page_hint": map[string]any{"type": nullable("string")},
	},
}

var (
	compiledChunkSchema *jsonschema.Schema
	compileChunkOnce    sync.Once
	compileChunkErr     error
)

func chunkValidator() (*jsonschema.Schema, error) {
	compileChunkOnce.Do(func() {
		b, err := json.Marshal(chunkSchema)
		if err != nil {
			compileChunkErr = fmt.Errorf("marshal schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("chunk.json", bytes.NewReader(b)); err != nil {
			compileChunkErr = fmt.Errorf("add schema: %w", err)
			return
		}
		compiledChunkSchema, compileChunkErr = compiler.Compile("chunk.json")
	})
	return compiledChunkSchema, compileChunkErr
}

type periodWire struct {
	StartDate *string `json:"start_date"`
	EndDate   *string `json:"end_date"`
}

type transactionWire struct {
	Date        string           `json:"date"`
	Description string           `json:"description"`
	Amount      decimal.Decimal  `json:"amount"`
	Type        *string          `json:"type"`
	Category    *string          `json:"category"`
	Balance     *decimal.Decimal `json:"balance"`
}

type chunkWire struct {
	AccountHolder   *string           `json:"account_holder"`
	BankName        *string           `json:"bank_name"`
	AccountNumber   *string           `json:"account_number"`
	Currency        *string           `json:"currency"`
	StatementPeriod *periodWire       `json:"statement_period"`
	OpeningBalance  *decimal.Decimal  `json:"opening_balance"`
	ClosingBalance  *decimal.Decimal  `json:"closing_balance"`
	Transactions    []transactionWire `json:"transactions"`
	HasMore         *bool             `json:"has_more"`
	NextPageHint    *string           `json:"next_page_hint"`
}

// ParseChunk recovers, validates and decodes one raw model response.
func ParseChunk(raw string) (*ChunkResult, error) {
	obj, err := Recover(raw)
	if err != nil {
		return nil, err
	}
	return DecodeChunk(obj, raw)
}

// DecodeChunk validates a recovered object against the chunk schema and converts it.
// A missing transactions field reads as an empty list.
// raw is kept on any returned RecoveryError for diagnostics.
func DecodeChunk(obj map[string]any, raw string) (*ChunkResult, error) {
	schema, err := chunkValidator()
	if err != nil {
		return nil, fmt.Errorf("compiling chunk schema: %w", err)
	}
	if _, ok := obj["transactions"]; !ok {
		obj["transactions"] = []any{}
	}
	if err := schema.Validate(any(obj)); err != nil {
		return nil, &RecoveryError{Raw: raw, Reason: fmt.Sprintf("json does not match schema: %v", err)}
	}

	b, err := canonicalJSON(obj)
	if err != nil {
		return nil, &RecoveryError{Raw: raw, Reason: err.Error()}
	}
	var w chunkWire
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, &RecoveryError{Raw: raw, Reason: err.Error()}
	}
	return w.toChunk(), nil
}

func (w *chunkWire) toChunk() *ChunkResult {
	c := &ChunkResult{
		AccountHolder:  str(w.AccountHolder),
		BankName:       str(w.BankName),
		AccountNumber:  str(w.AccountNumber),
		Currency:       strings.ToUpper(str(w.Currency)),
		OpeningBalance: w.OpeningBalance,
		ClosingBalance: w.ClosingBalance,
		NextPageHint:   str(w.NextPageHint),
		Transactions:   make([]domain.Transaction, 0, len(w.Transactions)),
	}
	if w.StatementPeriod != nil {
		c.StatementPeriod = domain.StatementPeriod{
			StartDate: str(w.StatementPeriod.StartDate),
			EndDate:   str(w.StatementPeriod.EndDate),
		}
	}
	if w.HasMore != nil {
		c.HasMore = *w.HasMore
	}
	for _, t := range w.Transactions {
		c.Transactions = append(c.Transactions, t.toTransaction())
	}
	return c
}

func (t transactionWire) toTransaction() domain.Transaction {
	amount := t.Amount
	txType := normalizeTransactionType(str(t.Type))
	if amount.IsNegative() {
		if txType == "" {
			txType = domain.TransactionDebit
		}
		amount = amount.Abs()
	}
	return domain.Transaction{
		Date:        strings.TrimSpace(t.Date),
		Description: strings.TrimSpace(t.Description),
		Amount:      amount,
		Type:        txType,
		Category:    str(t.Category),
		Balance:     t.Balance,
	}
}

func normalizeTransactionType(s string) domain.TransactionType {
	switch strings.ToLower(s) {
	case "credit", "cr", "deposit":
		return domain.TransactionCredit
	case "debit", "dr", "db", "withdrawal":
		return domain.TransactionDebit
	default:
		return ""
	}
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}
