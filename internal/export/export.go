// Package export renders parsed statements as downloadable files.
package export

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"bankparse/internal/domain"
)

// ContentType returns the MIME type for an export format.
func ContentType(format domain.ExportFormat) string {
	switch format {
	case domain.ExportXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/csv; charset=utf-8"
	}
}

// Write renders stmt in the given format.
func Write(w io.Writer, format domain.ExportFormat, stmt *domain.BankStatement) error {
	switch format {
	case domain.ExportCSV:
		return WriteCSV(w, stmt)
	case domain.ExportXLSX:
		return WriteXLSX(w, stmt)
	default:
		return fmt.Errorf("%w: %q", domain.ErrUnsupportedExport, format)
	}
}

// WriteCSV writes a BOM-prefixed CSV of the statement's transactions.
func WriteCSV(w io.Writer, stmt *domain.BankStatement) error {
	if _, err := w.Write(BOM); err != nil {
		return err
	}
	cw := NewCSVWriter(w)
	if err := cw.WriteHeader(); err != nil {
		return err
	}
	if err := cw.WriteTransactions(stmt.Currency, stmt.Transactions); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// nonAlphanumeric matches characters that are not alphanumeric, hyphen, or underscore.
var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// multiUnderscore matches consecutive underscores.
var multiUnderscore = regexp.MustCompile(`_{2,}`)

// SanitizeFilename cleans a name for use in Content-Disposition.
func SanitizeFilename(name string) string {
	s := nonAlphanumeric.ReplaceAllString(name, "_")
	s = multiUnderscore.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if len(s) > 100 {
		s = s[:100]
	}
	if s == "" {
		s = "statement"
	}
	return s
}

// BuildFilename returns {sanitized_name}.{format} for the uploaded file name.
func BuildFilename(uploadName string, format domain.ExportFormat) string {
	base := strings.TrimSuffix(uploadName, ".pdf")
	base = strings.TrimSuffix(base, ".PDF")
	return fmt.Sprintf("%s.%s", SanitizeFilename(base), format)
}
