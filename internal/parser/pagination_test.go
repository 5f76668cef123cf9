package parser_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"bankparse/internal/domain"
	"bankparse/internal/parser"
	"bankparse/internal/port"
	"bankparse/mocks"
)

func newMockProvider() *mocks.MockLLMProvider {
	m := new(mocks.MockLLMProvider)
	m.On("Name").Return("fake").Maybe()
	return m
}

func textUnits(n int) []port.Unit {
	units := make([]port.Unit, n)
	for i := range units {
		units[i] = port.Unit{Index: i, Kind: domain.UnitText, Text: fmt.Sprintf("chunk %d", i)}
	}
	return units
}

func imageUnits(n int) []port.Unit {
	units := make([]port.Unit, n)
	for i := range units {
		units[i] = port.Unit{Index: i, Kind: domain.UnitImage, ImageBase64: fmt.Sprintf("img%d", i), MediaType: "image/png", Page: i + 1}
	}
	return units
}

func hintIs(hint string) interface{} {
	return mock.MatchedBy(func(r port.CallRequest) bool { return r.Hint == hint })
}

func unitIs(index int) interface{} {
	return mock.MatchedBy(func(r port.CallRequest) bool { return r.Unit.Index == index })
}

func TestEngine_TwoPageTextStatement(t *testing.T) {
	page1 := `{
		"account_holder": "Jane Doe",
		"bank_name": "First Bank",
		"account_number": "****1234",
		"statement_period": {"start_date": "2024-01-01", "end_date": "2024-01-31"},
		"opening_balance": 1000.00,
		"closing_balance": null,
		"transactions": [
			{"date": "2024-01-02", "description": "COFFEE", "amount": 4.50, "type": "debit"},
			{"date": "2024-01-05", "description": "SALARY", "amount": 2500.00, "type": "credit"}
		],
		"has_more": true,
		"next_page_hint": "after 2024-01-05 SALARY"
	}`
	page2 := "```json\n" + `{
		"closing_balance": "3,395.50",
		"transactions": [
			{"date": "2024-01-20", "description": "RENT", "amount": 100.00, "type": "debit"},
		],
		"has_more": false
	}` + "\n```"

	provider := newMockProvider()
	provider.On("Call", mock.Anything, hintIs("")).Return(page1, nil).Once()
	provider.On("Call", mock.Anything, hintIs("after 2024-01-05 SALARY")).Return(page2, nil).Once()

	engine := parser.NewEngine(provider, parser.EngineConfig{Prompt: "p", MaxContinuations: 3})
	result, err := engine.Run(context.Background(), textUnits(1))

	require.NoError(t, err)
	stmt := result.Statement
	assert.Equal(t, "Jane Doe", stmt.AccountHolder)
	assert.Equal(t, "First Bank", stmt.BankName)
	assert.Equal(t, "****1234", stmt.AccountNumber)
	assert.Equal(t, "2024-01-01", stmt.StatementPeriod.StartDate)
	assert.Equal(t, "2024-01-31", stmt.StatementPeriod.EndDate)
	assert.Equal(t, "1000", stmt.OpeningBalance.String())
	assert.Equal(t, "3395.5", stmt.ClosingBalance.String())
	assert.Equal(t, "USD", stmt.Currency)

	require.Len(t, stmt.Transactions, 3)
	assert.Equal(t, "COFFEE", stmt.Transactions[0].Description)
	assert.Equal(t, "SALARY", stmt.Transactions[1].Description)
	assert.Equal(t, "RENT", stmt.Transactions[2].Description)
	assert.Equal(t, 2, result.Calls)
	provider.AssertExpectations(t)
}

func TestEngine_ContinuationDropsRepeatedTransactions(t *testing.T) {
	first := `{"transactions": [{"date": "2024-01-02", "description": "A", "amount": 1}, {"date": "2024-01-03", "description": "B", "amount": 2}], "has_more": true, "next_page_hint": "after B"}`
	second := `{"transactions": [{"date": "2024-01-03", "description": "B", "amount": 2.00}, {"date": "2024-01-04", "description": "C", "amount": 3}], "has_more": false}`

	provider := newMockProvider()
	provider.On("Call", mock.Anything, mock.Anything).Return(first, nil).Once()
	provider.On("Call", mock.Anything, mock.Anything).Return(second, nil).Once()

	result, err := parser.NewEngine(provider, parser.EngineConfig{MaxContinuations: 3}).Run(context.Background(), textUnits(1))

	require.NoError(t, err)
	descs := make([]string, 0, len(result.Statement.Transactions))
	for _, tx := range result.Statement.Transactions {
		descs = append(descs, tx.Description)
	}
	assert.Equal(t, []string{"A", "B", "C"}, descs)
}

func TestEngine_PaginationTerminatesAfterNCalls(t *testing.T) {
	responses := []string{
		`{"transactions": [{"date": "2024-01-01", "description": "one", "amount": 1}], "has_more": true, "next_page_hint": "h1"}`,
		`{"transactions": [{"date": "2024-01-02", "description": "two", "amount": 2}], "has_more": true, "next_page_hint": "h2"}`,
		`{"transactions": [{"date": "2024-01-03", "description": "three", "amount": 3}], "has_more": false}`,
	}
	provider := newMockProvider()
	for _, r := range responses {
		provider.On("Call", mock.Anything, mock.Anything).Return(r, nil).Once()
	}

	result, err := parser.NewEngine(provider, parser.EngineConfig{MaxContinuations: 10}).Run(context.Background(), textUnits(1))

	require.NoError(t, err)
	assert.Equal(t, 3, result.Calls)
	assert.Len(t, result.Statement.Transactions, 3)
	provider.AssertNumberOfCalls(t, "Call", 3)
}

func TestEngine_PaginationCapExceeded(t *testing.T) {
	provider := newMockProvider()
	provider.On("Call", mock.Anything, mock.Anything).
		Return(`{"transactions": [], "has_more": true, "next_page_hint": "again"}`, nil)

	_, err := parser.NewEngine(provider, parser.EngineConfig{MaxContinuations: 2}).Run(context.Background(), textUnits(1))

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPaginationNotTerminated)
	assert.Equal(t, domain.ErrorKindPagination, domain.KindOf(err))
	provider.AssertNumberOfCalls(t, "Call", 3)
}

func TestEngine_SynthesizesHintWhenModelOmitsIt(t *testing.T) {
	provider := newMockProvider()
	provider.On("Call", mock.Anything, hintIs("")).
		Return(`{"transactions": [{"date": "2024-01-09", "description": "GROCERY", "amount": 52.10}], "has_more": true}`, nil).Once()
	provider.On("Call", mock.Anything, mock.MatchedBy(func(r port.CallRequest) bool {
		return strings.Contains(r.Hint, "2024-01-09") && strings.Contains(r.Hint, "GROCERY")
	})).Return(`{"transactions": [], "has_more": false}`, nil).Once()

	_, err := parser.NewEngine(provider, parser.EngineConfig{MaxContinuations: 3}).Run(context.Background(), textUnits(1))

	require.NoError(t, err)
	provider.AssertExpectations(t)
}

func TestEngine_MultipleTextUnitsAdvance(t *testing.T) {
	provider := newMockProvider()
	provider.On("Call", mock.Anything, unitIs(0)).
		Return(`{"bank_name": "First Bank", "transactions": [{"date": "2024-01-02", "description": "A", "amount": 1}], "has_more": false}`, nil).Once()
	provider.On("Call", mock.Anything, unitIs(1)).
		Return(`{"bank_name": "Other Bank", "transactions": [{"date": "2024-01-03", "description": "B", "amount": 2}], "has_more": false}`, nil).Once()

	result, err := parser.NewEngine(provider, parser.EngineConfig{}).Run(context.Background(), textUnits(2))

	require.NoError(t, err)
	assert.Equal(t, "First Bank", result.Statement.BankName)
	assert.Len(t, result.Statement.Transactions, 2)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, "bank_name", result.Conflicts[0].Field)
	provider.AssertExpectations(t)
}

func TestEngine_ImageOrderStableUnderConcurrency(t *testing.T) {
	delays := [][]time.Duration{
		{40 * time.Millisecond, 30 * time.Millisecond, 20 * time.Millisecond, 0},
		{0, 30 * time.Millisecond, 10 * time.Millisecond, 40 * time.Millisecond},
	}

	var outputs [][]string
	for _, pattern := range delays {
		provider := newMockProvider()
		for i, d := range pattern {
			body := fmt.Sprintf(`{"transactions": [{"date": "2024-01-0%d", "description": "page %d", "amount": %d}], "has_more": false}`, i+1, i+1, i+1)
			provider.On("Call", mock.Anything, unitIs(i)).
				Run(func(mock.Arguments) { time.Sleep(d) }).
				Return(body, nil).Once()
		}

		engine := parser.NewEngine(provider, parser.EngineConfig{Concurrency: 4})
		result, err := engine.Run(context.Background(), imageUnits(4))
		require.NoError(t, err)
		assert.Equal(t, 4, result.Calls)

		var descs []string
		for _, tx := range result.Statement.Transactions {
			descs = append(descs, tx.Description)
		}
		outputs = append(outputs, descs)
	}

	assert.Equal(t, []string{"page 1", "page 2", "page 3", "page 4"}, outputs[0])
	assert.Equal(t, outputs[0], outputs[1])
}

func TestEngine_ImageUnitsSendNoHint(t *testing.T) {
	provider := newMockProvider()
	provider.On("Call", mock.Anything, mock.MatchedBy(func(r port.CallRequest) bool {
		return r.Hint == "" && r.Unit.Kind == domain.UnitImage
	})).Return(`{"transactions": [], "has_more": true, "next_page_hint": "ignored"}`, nil).Twice()

	result, err := parser.NewEngine(provider, parser.EngineConfig{}).Run(context.Background(), imageUnits(2))

	require.NoError(t, err)
	assert.Equal(t, 2, result.Calls)
	provider.AssertExpectations(t)
}

func TestEngine_ImageFailureFailsWholeRun(t *testing.T) {
	provider := newMockProvider()
	provider.On("Call", mock.Anything, unitIs(0)).Return(`{"transactions": []}`, nil).Maybe()
	provider.On("Call", mock.Anything, unitIs(1)).Return("", parser.NewProviderError("fake", "boom", errors.New("connection reset")))
	provider.On("Call", mock.Anything, unitIs(2)).Return(`{"transactions": []}`, nil).Maybe()

	result, err := parser.NewEngine(provider, parser.EngineConfig{Concurrency: 1}).Run(context.Background(), imageUnits(3))

	assert.Nil(t, result)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProvider)
	assert.Contains(t, err.Error(), "page 2")
}

func TestEngine_UnparseableResponse(t *testing.T) {
	provider := newMockProvider()
	provider.On("Call", mock.Anything, mock.Anything).Return("I cannot process this document", nil).Once()

	_, err := parser.NewEngine(provider, parser.EngineConfig{}).Run(context.Background(), textUnits(1))

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrResponseNotParseable)
	assert.Equal(t, "I cannot process this document", parser.RawResponse(err))
}

func TestEngine_NoUnits(t *testing.T) {
	provider := newMockProvider()

	_, err := parser.NewEngine(provider, parser.EngineConfig{}).Run(context.Background(), nil)

	assert.ErrorIs(t, err, domain.ErrNoExtractableContent)
	provider.AssertNotCalled(t, "Call", mock.Anything, mock.Anything)
}

func TestEngine_CanceledContext(t *testing.T) {
	provider := newMockProvider()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := parser.NewEngine(provider, parser.EngineConfig{}).Run(ctx, textUnits(1))

	assert.ErrorIs(t, err, context.Canceled)
	provider.AssertNotCalled(t, "Call", mock.Anything, mock.Anything)
}

func TestEngine_PromptPassedThrough(t *testing.T) {
	provider := newMockProvider()
	provider.On("Call", mock.Anything, mock.MatchedBy(func(r port.CallRequest) bool {
		return r.Prompt == "the prompt"
	})).Return(`{"transactions": []}`, nil).Once()

	_, err := parser.NewEngine(provider, parser.EngineConfig{Prompt: "the prompt"}).Run(context.Background(), textUnits(1))

	require.NoError(t, err)
	provider.AssertExpectations(t)
}
