package domain

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func init() {
	// Money leaves the service as JSON numbers, not quoted strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// DateLayout is the calendar date format used throughout statements.
const DateLayout = "2006-01-02"

// Transaction is a single statement line.
type Transaction struct {
	Date        string           `json:"date"`
	Description string           `json:"description"`
	Amount      decimal.Decimal  `json:"amount"`
	Type        TransactionType  `json:"type"`
	Category    string           `json:"category,omitempty"`
	Balance     *decimal.Decimal `json:"balance,omitempty"`
}

// TransactionKey identifies a real-world transaction across chunks.
type TransactionKey struct {
	Date        string
	Description string
	Amount      string
}

// Key returns the dedup key. Amounts compare by value, so 1000.00 and 1000 match.
func (t Transaction) Key() TransactionKey {
	return TransactionKey{
		Date:        t.Date,
		Description: t.Description,
		Amount:      t.Amount.String(),
	}
}

// StatementPeriod is the date range a statement covers.
type StatementPeriod struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// Validate returns ErrInvalidPeriod when both dates parse and end precedes start.
// Unparseable or missing dates are left alone; the model may legitimately omit them.
func (p StatementPeriod) Validate() error {
	start, err := time.Parse(DateLayout, p.StartDate)
	if err != nil {
		return nil
	}
	end, err := time.Parse(DateLayout, p.EndDate)
	if err != nil {
		return nil
	}
	if end.Before(start) {
		return ErrInvalidPeriod
	}
	return nil
}

// IsZero reports whether neither date is set.
func (p StatementPeriod) IsZero() bool {
	return p.StartDate == "" && p.EndDate == ""
}

// BankStatement is the merged extraction result for one document.
type BankStatement struct {
	AccountHolder   string           `json:"account_holder"`
	BankName        string           `json:"bank_name"`
	AccountNumber   string           `json:"account_number"`
	StatementPeriod StatementPeriod  `json:"statement_period"`
	OpeningBalance  *decimal.Decimal `json:"opening_balance"`
	ClosingBalance  *decimal.Decimal `json:"closing_balance"`
	Currency        string           `json:"currency"`
	Transactions    []Transaction    `json:"transactions"`
}

// SortedByDate returns a copy of the transactions in chronological order.
// Transactions on the same date keep their extraction order.
func (s *BankStatement) SortedByDate() []Transaction {
	out := make([]Transaction, len(s.Transactions))
	copy(out, s.Transactions)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date < out[j].Date
	})
	return out
}

// Totals sums debit and credit amounts.
func (s *BankStatement) Totals() (debits, credits decimal.Decimal) {
	for _, t := range s.Transactions {
		switch t.Type {
		case TransactionDebit:
			debits = debits.Add(t.Amount)
		case TransactionCredit:
			credits = credits.Add(t.Amount)
		}
	}
	return debits, credits
}

// ParsedOutcome is the result of one parse request. Failures are carried as data.
type ParsedOutcome struct {
	Success        bool           `json:"success"`
	Data           *BankStatement `json:"data"`
	Error          string         `json:"error,omitempty"`
	ErrorKind      ErrorKind      `json:"error_kind,omitempty"`
	RawResponse    string         `json:"raw_response,omitempty"`
	ProcessingTime float64        `json:"processing_time"`
	Warnings       []string       `json:"warnings,omitempty"`
}

// ParseResult is the persisted record of a parse request.
type ParseResult struct {
	ID               uuid.UUID       `db:"id" json:"id"`
	FileName         string          `db:"file_name" json:"file_name"`
	FileSize         int64           `db:"file_size" json:"file_size"`
	Provider         Provider        `db:"provider" json:"provider"`
	Strategy         Strategy        `db:"strategy" json:"strategy"`
	Success          bool            `db:"success" json:"success"`
	ErrorMessage     string          `db:"error_message" json:"error_message,omitempty"`
	ErrorKind        ErrorKind       `db:"error_kind" json:"error_kind,omitempty"`
	ProcessingTimeMs int64           `db:"processing_time_ms" json:"processing_time_ms"`
	TransactionCount int             `db:"transaction_count" json:"transaction_count"`
	Statement        json.RawMessage `db:"statement" json:"statement,omitempty"`
	ArchiveKey       string          `db:"archive_key" json:"archive_key,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
}

// DecodeStatement unmarshals the stored statement, returning nil when none was stored.
func (r *ParseResult) DecodeStatement() (*BankStatement, error) {
	if len(r.Statement) == 0 || string(r.Statement) == "null" {
		return nil, nil
	}
	var s BankStatement
	if err := json.Unmarshal(r.Statement, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
