package validator

import (
	"bytes"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"bankparse/internal/domain"
)

var pdfMagic = []byte("%PDF-")

// PDFValidator checks uploaded bytes before they reach the extraction pipeline.
type PDFValidator struct {
	MaxBytes int64
}

// NewPDFValidator creates a PDFValidator. maxBytes <= 0 disables the size check.
func NewPDFValidator(maxBytes int64) *PDFValidator {
	return &PDFValidator{MaxBytes: maxBytes}
}

// Validate rejects empty, oversized and non-PDF payloads.
func (v *PDFValidator) Validate(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty file", domain.ErrInvalidDocument)
	}
	if v.MaxBytes > 0 && int64(len(data)) > v.MaxBytes {
		return fmt.Errorf("%w: %d bytes, limit is %d", domain.ErrFileTooLarge, len(data), v.MaxBytes)
	}

	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	if http.DetectContentType(head) != "application/pdf" && !bytes.Contains(head, pdfMagic) {
		return fmt.Errorf("%w: missing PDF header", domain.ErrInvalidDocument)
	}
	return nil
}

// ValidateFileName checks the upload's extension against the allowed types.
func ValidateFileName(name string) error {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if _, ok := domain.AllowedExtensions[ext]; !ok {
		return fmt.Errorf("%w: %q", domain.ErrUnsupportedFileType, filepath.Ext(name))
	}
	return nil
}
