package export

import (
	"encoding/csv"
	"io"

	"github.com/shopspring/decimal"

	"bankparse/internal/domain"
)

// UTF-8 BOM bytes for Excel compatibility on Windows.
var BOM = []byte{0xEF, 0xBB, 0xBF}

// columns defines the transaction header row shared by CSV and XLSX exports.
var columns = []string{
	"Date",
	"Description",
	"Type",
	"Amount",
	"Balance",
	"Category",
	"Currency",
}

// CSVWriter wraps csv.Writer for exporting statement transactions.
type CSVWriter struct {
	csv *csv.Writer
}

// NewCSVWriter creates a CSVWriter that writes to w.
func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{csv: csv.NewWriter(w)}
}

// WriteHeader writes the column header row.
func (w *CSVWriter) WriteHeader() error {
	return w.csv.Write(columns)
}

// WriteTransactions writes one row per transaction in the given order.
func (w *CSVWriter) WriteTransactions(currency string, txns []domain.Transaction) error {
	for i := range txns {
		if err := w.csv.Write(transactionToRow(currency, &txns[i])); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes the underlying csv.Writer buffer.
func (w *CSVWriter) Flush() {
	w.csv.Flush()
}

// Error returns any error from the underlying csv.Writer.
func (w *CSVWriter) Error() error {
	return w.csv.Error()
}

func transactionToRow(currency string, t *domain.Transaction) []string {
	return []string{
		t.Date,
		t.Description,
		string(t.Type),
		formatMoney(t.Amount),
		formatOptionalMoney(t.Balance),
		t.Category,
		currency,
	}
}

func formatMoney(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func formatOptionalMoney(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.StringFixed(2)
}
