package parser

import (
	"fmt"

	"github.com/shopspring/decimal"

	"bankparse/internal/domain"
)

// FieldConflict records a later chunk disagreeing with a header value already taken.
type FieldConflict struct {
	Field    string
	Kept     string
	Rejected string
	Chunk    int
}

func (c FieldConflict) String() string {
	return fmt.Sprintf("%s: kept %q, chunk %d reported %q", c.Field, c.Kept, c.Chunk, c.Rejected)
}

// Accumulator merges chunk results into one statement.
// Header fields are first-wins; transactions are appended in arrival order without duplicates.
type Accumulator struct {
	statement domain.BankStatement
	seen      map[domain.TransactionKey]struct{}
	conflicts []FieldConflict
	chunks    int
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		statement: domain.BankStatement{Transactions: []domain.Transaction{}},
		seen:      make(map[domain.TransactionKey]struct{}),
	}
}

// Merge folds one chunk into the accumulator.
func (a *Accumulator) Merge(c *ChunkResult) {
	a.chunks++
	s := &a.statement

	a.mergeString(&s.AccountHolder, c.AccountHolder, "account_holder")
	a.mergeString(&s.BankName, c.BankName, "bank_name")
	a.mergeString(&s.AccountNumber, c.AccountNumber, "account_number")
	a.mergeString(&s.Currency, c.Currency, "currency")
	a.mergeString(&s.StatementPeriod.StartDate, c.StatementPeriod.StartDate, "statement_period.start_date")
	a.mergeString(&s.StatementPeriod.EndDate, c.StatementPeriod.EndDate, "statement_period.end_date")
	a.mergeDecimal(&s.OpeningBalance, c.OpeningBalance, "opening_balance")
	a.mergeDecimal(&s.ClosingBalance, c.ClosingBalance, "closing_balance")

	for _, t := range c.Transactions {
		key := t.Key()
		if _, dup := a.seen[key]; dup {
			continue
		}
		a.seen[key] = struct{}{}
		s.Transactions = append(s.Transactions, t)
	}
}

func (a *Accumulator) mergeString(dst *string, v, field string) {
	switch {
	case v == "":
	case *dst == "":
		*dst = v
	case *dst != v:
		a.conflicts = append(a.conflicts, FieldConflict{Field: field, Kept: *dst, Rejected: v, Chunk: a.chunks})
	}
}

func (a *Accumulator) mergeDecimal(dst **decimal.Decimal, v *decimal.Decimal, field string) {
	switch {
	case v == nil:
	case *dst == nil:
		d := *v
		*dst = &d
	case !(*dst).Equal(*v):
		a.conflicts = append(a.conflicts, FieldConflict{Field: field, Kept: (*dst).String(), Rejected: v.String(), Chunk: a.chunks})
	}
}

// Len returns the number of distinct transactions merged so far.
func (a *Accumulator) Len() int {
	return len(a.statement.Transactions)
}

// LastTransaction returns the most recently merged transaction.
func (a *Accumulator) LastTransaction() (domain.Transaction, bool) {
	n := len(a.statement.Transactions)
	if n == 0 {
		return domain.Transaction{}, false
	}
	return a.statement.Transactions[n-1], true
}

// Conflicts returns header disagreements seen so far.
func (a *Accumulator) Conflicts() []FieldConflict {
	return a.conflicts
}

// Statement returns a copy of the merged statement with defaults applied.
func (a *Accumulator) Statement(defaultCurrency string) (*domain.BankStatement, error) {
	out := a.statement
	out.Transactions = make([]domain.Transaction, len(a.statement.Transactions))
	copy(out.Transactions, a.statement.Transactions)
	if out.Currency == "" {
		out.Currency = defaultCurrency
	}
	if err := out.StatementPeriod.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s to %s", err, out.StatementPeriod.StartDate, out.StatementPeriod.EndDate)
	}
	return &out, nil
}
