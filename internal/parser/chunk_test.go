package parser_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bankparse/internal/domain"
	"bankparse/internal/parser"
)

func TestParseChunk_FullHeader(t *testing.T) {
	raw := `{
		"account_holder": "Jane Doe",
		"bank_name": "First Bank",
		"account_number": "****1234",
		"statement_period": {"start_date": "2024-01-01", "end_date": "2024-01-31"},
		"opening_balance": 1000.00,
		"closing_balance": null,
		"currency": "usd",
		"transactions": [
			{"date": "2024-01-02", "description": "  COFFEE ", "amount": 4.5, "type": "DEBIT", "category": "food", "balance": 995.5},
			{"date": "2024-01-03", "description": "SALARY", "amount": 2000, "type": "CR"}
		],
		"has_more": true,
		"next_page_hint": "after 2024-01-03 SALARY"
	}`

	chunk, err := parser.ParseChunk(raw)
	require.NoError(t, err)

	assert.Equal(t, "Jane Doe", chunk.AccountHolder)
	assert.Equal(t, "First Bank", chunk.BankName)
	assert.Equal(t, "****1234", chunk.AccountNumber)
	assert.Equal(t, "USD", chunk.Currency)
	assert.Equal(t, domain.StatementPeriod{StartDate: "2024-01-01", EndDate: "2024-01-31"}, chunk.StatementPeriod)
	require.NotNil(t, chunk.OpeningBalance)
	assert.True(t, chunk.OpeningBalance.Equal(decimal.NewFromInt(1000)))
	assert.Nil(t, chunk.ClosingBalance)
	assert.True(t, chunk.HasMore)
	assert.Equal(t, "after 2024-01-03 SALARY", chunk.NextPageHint)

	require.Len(t, chunk.Transactions, 2)
	first := chunk.Transactions[0]
	assert.Equal(t, "COFFEE", first.Description)
	assert.Equal(t, domain.TransactionDebit, first.Type)
	assert.Equal(t, "food", first.Category)
	require.NotNil(t, first.Balance)
	assert.Equal(t, "995.5", first.Balance.String())
	assert.Equal(t, domain.TransactionCredit, chunk.Transactions[1].Type)
}

func TestParseChunk_NegativeAmountInfersDebit(t *testing.T) {
	chunk, err := parser.ParseChunk(`{"transactions": [{"date": "2024-01-02", "description": "ATM", "amount": -60}]}`)
	require.NoError(t, err)

	require.Len(t, chunk.Transactions, 1)
	assert.Equal(t, domain.TransactionDebit, chunk.Transactions[0].Type)
	assert.Equal(t, "60", chunk.Transactions[0].Amount.String())
}

func TestParseChunk_NonStatementPage(t *testing.T) {
	chunk, err := parser.ParseChunk(`{"account_holder": null, "transactions": [], "has_more": false}`)
	require.NoError(t, err)

	assert.Empty(t, chunk.AccountHolder)
	assert.Empty(t, chunk.Transactions)
	assert.False(t, chunk.HasMore)
}

func TestParseChunk_MissingTransactionsField(t *testing.T) {
	chunk, err := parser.ParseChunk(`{"bank_name": "First Bank"}`)
	require.NoError(t, err)

	assert.Equal(t, "First Bank", chunk.BankName)
	assert.Empty(t, chunk.Transactions)
}

func TestParseChunk_TransactionsNotAList(t *testing.T) {
	_, err := parser.ParseChunk(`{"bank_name": "First Bank", "transactions": "none"}`)
	assert.ErrorIs(t, err, domain.ErrResponseNotParseable)
}

func TestParseChunk_SchemaMismatch(t *testing.T) {
	tests := map[string]string{
		"amount not numeric":  `{"transactions": [{"date": "2024-01-02", "description": "X", "amount": "lots"}]}`,
		"missing description": `{"transactions": [{"date": "2024-01-02", "amount": 1}]}`,
		"has_more not bool":   `{"transactions": [], "has_more": 3}`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := parser.ParseChunk(raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrResponseNotParseable)
			assert.Equal(t, raw, parser.RawResponse(err))
		})
	}
}

func TestParseChunk_NotJSON(t *testing.T) {
	_, err := parser.ParseChunk("I cannot process this document")
	assert.ErrorIs(t, err, domain.ErrResponseNotParseable)
}
