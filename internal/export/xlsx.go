package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"bankparse/internal/domain"
)

const (
	transactionsSheet = "Transactions"
	summarySheet      = "Summary"
)

// WriteXLSX writes a workbook with a summary sheet and a transactions sheet.
func WriteXLSX(w io.Writer, stmt *domain.BankStatement) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", transactionsSheet); err != nil {
		return fmt.Errorf("renaming sheet: %w", err)
	}
	for i, h := range columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(transactionsSheet, cell, h)
	}
	for r, t := range stmt.Transactions {
		row := r + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(transactionsSheet, cell, v)
		}
		write(1, t.Date)
		write(2, t.Description)
		write(3, string(t.Type))
		write(4, t.Amount.InexactFloat64())
		if t.Balance != nil {
			write(5, t.Balance.InexactFloat64())
		}
		write(6, t.Category)
		write(7, stmt.Currency)
	}
	_ = f.SetColWidth(transactionsSheet, "A", "A", 12)
	_ = f.SetColWidth(transactionsSheet, "B", "B", 48)
	_ = f.SetColWidth(transactionsSheet, "D", "E", 14)
	_ = f.SetColWidth(transactionsSheet, "F", "F", 20)

	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("creating summary sheet: %w", err)
	}
	debits, credits := stmt.Totals()
	summary := [][2]any{
		{"Account Holder", stmt.AccountHolder},
		{"Bank", stmt.BankName},
		{"Account Number", stmt.AccountNumber},
		{"Period Start", stmt.StatementPeriod.StartDate},
		{"Period End", stmt.StatementPeriod.EndDate},
		{"Currency", stmt.Currency},
		{"Opening Balance", formatOptionalMoney(stmt.OpeningBalance)},
		{"Closing Balance", formatOptionalMoney(stmt.ClosingBalance)},
		{"Total Debits", formatMoney(debits)},
		{"Total Credits", formatMoney(credits)},
		{"Transactions", len(stmt.Transactions)},
	}
	for i, kv := range summary {
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", i+1), kv[0])
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", i+1), kv[1])
	}
	_ = f.SetColWidth(summarySheet, "A", "A", 18)
	_ = f.SetColWidth(summarySheet, "B", "B", 36)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}
