package domain

import "errors"

var (
	ErrNotFound                = errors.New("resource not found")
	ErrInvalidDocument         = errors.New("document is not a readable PDF")
	ErrUnsupportedFileType     = errors.New("unsupported file type")
	ErrFileTooLarge            = errors.New("file exceeds maximum allowed size")
	ErrNoExtractableContent    = errors.New("document has no extractable content")
	ErrTooManyPages            = errors.New("document exceeds maximum page count")
	ErrUnsupportedStrategy     = errors.New("unsupported extraction strategy")
	ErrUnknownProvider         = errors.New("unknown llm provider")
	ErrProvider                = errors.New("llm provider call failed")
	ErrResponseNotParseable    = errors.New("llm response could not be parsed as a statement")
	ErrPaginationNotTerminated = errors.New("pagination did not terminate")
	ErrInvalidPeriod           = errors.New("statement period ends before it starts")
	ErrUnsupportedExport       = errors.New("unsupported export format")
)

// ErrorKind classifies a failed parse for callers of the pipeline.
type ErrorKind string

const (
	ErrorKindNone       ErrorKind = ""
	ErrorKindInput      ErrorKind = "input"
	ErrorKindProvider   ErrorKind = "provider"
	ErrorKindRecovery   ErrorKind = "recovery"
	ErrorKindPagination ErrorKind = "pagination"
)

// KindOf maps an error chain onto an ErrorKind. Errors that match no known
// sentinel are reported as provider failures, since everything else in the
// pipeline wraps one of the sentinels above.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ErrorKindNone
	case errors.Is(err, ErrInvalidDocument),
		errors.Is(err, ErrUnsupportedFileType),
		errors.Is(err, ErrFileTooLarge),
		errors.Is(err, ErrNoExtractableContent),
		errors.Is(err, ErrTooManyPages),
		errors.Is(err, ErrUnsupportedStrategy),
		errors.Is(err, ErrUnknownProvider):
		return ErrorKindInput
	case errors.Is(err, ErrResponseNotParseable), errors.Is(err, ErrInvalidPeriod):
		return ErrorKindRecovery
	case errors.Is(err, ErrPaginationNotTerminated):
		return ErrorKindPagination
	default:
		return ErrorKindProvider
	}
}
