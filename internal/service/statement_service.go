package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"

	"github.com/google/uuid"

	"bankparse/internal/config"
	"bankparse/internal/domain"
	"bankparse/internal/export"
	"bankparse/internal/port"
)

var (
	errResultsDisabled = fmt.Errorf("%w: result storage is disabled", domain.ErrNotFound)
	errArchiveDisabled = fmt.Errorf("%w: statement archive is disabled", domain.ErrNotFound)
)

// ParseStatementInput is the DTO for parsing an uploaded statement.
type ParseStatementInput struct {
	FileName string
	Data     []byte
	Strategy domain.Strategy
	Provider domain.Provider
}

// StatementService wraps the parser with result persistence, archiving and export.
type StatementService interface {
	ParseAndStore(ctx context.Context, input ParseStatementInput) (*domain.ParseResult, domain.ParsedOutcome)
	GetResult(ctx context.Context, id uuid.UUID) (*domain.ParseResult, error)
	ListResults(ctx context.Context, offset, limit int) ([]domain.ParseResult, int, error)
	DeleteResult(ctx context.Context, id uuid.UUID) error
	SourceURL(ctx context.Context, id uuid.UUID) (string, error)
	Reparse(ctx context.Context, id uuid.UUID, strategy domain.Strategy, provider domain.Provider) (*domain.ParseResult, domain.ParsedOutcome, error)
	ExportResult(ctx context.Context, id uuid.UUID, format domain.ExportFormat, w io.Writer) (string, error)
	Ready(ctx context.Context) error
}

type statementService struct {
	parser  StatementParser
	repo    port.ParseResultRepository
	storage port.ObjectStorage
	cfg     *config.Config
}

// NewStatementService creates a StatementService. repo and storage may be nil, which
// disables result persistence and PDF archiving respectively.
func NewStatementService(
	parser StatementParser,
	repo port.ParseResultRepository,
	storage port.ObjectStorage,
	cfg *config.Config,
) StatementService {
	if cfg.S3.Bucket == "" {
		storage = nil
	}
	return &statementService{
		parser:  parser,
		repo:    repo,
		storage: storage,
		cfg:     cfg,
	}
}

func (s *statementService) ParseAndStore(ctx context.Context, input ParseStatementInput) (*domain.ParseResult, domain.ParsedOutcome) {
	return s.parseAndStore(ctx, input, "")
}

// parseAndStore runs the parser and records the outcome. archiveKey is set when the PDF
// is already archived; otherwise a successful record archives it.
func (s *statementService) parseAndStore(ctx context.Context, input ParseStatementInput, archiveKey string) (*domain.ParseResult, domain.ParsedOutcome) {
	strategy, provider := s.resolveDefaults(input.Strategy, input.Provider)
	outcome := s.parser.Parse(ctx, input.Data, strategy, provider)
	if s.repo == nil {
		return nil, outcome
	}

	record := &domain.ParseResult{
		ID:               uuid.New(),
		FileName:         input.FileName,
		FileSize:         int64(len(input.Data)),
		Provider:         provider,
		Strategy:         strategy,
		Success:          outcome.Success,
		ErrorMessage:     outcome.Error,
		ErrorKind:        outcome.ErrorKind,
		ProcessingTimeMs: int64(outcome.ProcessingTime * 1000),
		ArchiveKey:       archiveKey,
	}
	if outcome.Data != nil {
		record.TransactionCount = len(outcome.Data.Transactions)
		raw, err := json.Marshal(outcome.Data)
		if err != nil {
			log.Printf("statementService.ParseAndStore: encoding statement: %v", err)
		} else {
			record.Statement = raw
		}
	}

	// Storage failures never change the parse outcome returned to the caller.
	if err := s.repo.Create(ctx, record); err != nil {
		log.Printf("statementService.ParseAndStore: failed to persist result for %s: %v", input.FileName, err)
		return nil, outcome
	}
	log.Printf("statementService.ParseAndStore: stored result %s (success=%v, %d transactions)",
		record.ID, record.Success, record.TransactionCount)

	if archiveKey == "" && s.storage != nil && !isInputFailure(outcome) {
		key := fmt.Sprintf("statements/%s/%s", record.ID, export.SanitizeFilename(input.FileName)+".pdf")
		if _, err := s.storage.Upload(ctx, port.UploadInput{
			Bucket:      s.cfg.S3.Bucket,
			Key:         key,
			Body:        bytes.NewReader(input.Data),
			ContentType: domain.AllowedExtensions["pdf"],
			Size:        int64(len(input.Data)),
		}); err != nil {
			log.Printf("statementService.ParseAndStore: archive upload failed for %s: %v", record.ID, err)
			return record, outcome
		}
		if err := s.repo.UpdateArchiveKey(ctx, record.ID, key); err != nil {
			log.Printf("statementService.ParseAndStore: recording archive key for %s: %v", record.ID, err)
			return record, outcome
		}
		record.ArchiveKey = key
	}
	return record, outcome
}

func (s *statementService) resolveDefaults(strategy domain.Strategy, provider domain.Provider) (domain.Strategy, domain.Provider) {
	if strategy == "" {
		strategy = domain.Strategy(s.cfg.Parser.DefaultStrategy)
	}
	if provider == "" {
		provider = domain.Provider(s.cfg.Parser.DefaultProvider)
	}
	return strategy, provider
}

// isInputFailure reports outcomes for documents that were never readable PDFs.
func isInputFailure(outcome domain.ParsedOutcome) bool {
	return !outcome.Success && outcome.ErrorKind == domain.ErrorKindInput
}

func (s *statementService) GetResult(ctx context.Context, id uuid.UUID) (*domain.ParseResult, error) {
	if s.repo == nil {
		return nil, errResultsDisabled
	}
	return s.repo.GetByID(ctx, id)
}

func (s *statementService) ListResults(ctx context.Context, offset, limit int) ([]domain.ParseResult, int, error) {
	if s.repo == nil {
		return nil, 0, errResultsDisabled
	}
	return s.repo.List(ctx, offset, limit)
}

func (s *statementService) DeleteResult(ctx context.Context, id uuid.UUID) error {
	record, err := s.GetResult(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if record.ArchiveKey != "" && s.storage != nil {
		if err := s.storage.Delete(ctx, s.cfg.S3.Bucket, record.ArchiveKey); err != nil {
			log.Printf("statementService.DeleteResult: failed to delete archive %s: %v", record.ArchiveKey, err)
		}
	}
	log.Printf("statementService.DeleteResult: deleted result %s", id)
	return nil
}

func (s *statementService) SourceURL(ctx context.Context, id uuid.UUID) (string, error) {
	record, err := s.archivedRecord(ctx, id)
	if err != nil {
		return "", err
	}
	return s.storage.GetPresignedURL(ctx, s.cfg.S3.Bucket, record.ArchiveKey, s.cfg.S3.PresignExpiry)
}

func (s *statementService) Reparse(ctx context.Context, id uuid.UUID, strategy domain.Strategy, provider domain.Provider) (*domain.ParseResult, domain.ParsedOutcome, error) {
	record, err := s.archivedRecord(ctx, id)
	if err != nil {
		return nil, domain.ParsedOutcome{}, err
	}
	data, err := s.storage.Download(ctx, s.cfg.S3.Bucket, record.ArchiveKey)
	if err != nil {
		return nil, domain.ParsedOutcome{}, fmt.Errorf("downloading archived statement: %w", err)
	}

	log.Printf("statementService.Reparse: re-parsing result %s (%s)", id, record.FileName)
	result, outcome := s.parseAndStore(ctx, ParseStatementInput{
		FileName: record.FileName,
		Data:     data,
		Strategy: strategy,
		Provider: provider,
	}, record.ArchiveKey)
	return result, outcome, nil
}

func (s *statementService) archivedRecord(ctx context.Context, id uuid.UUID) (*domain.ParseResult, error) {
	if s.storage == nil {
		return nil, errArchiveDisabled
	}
	record, err := s.GetResult(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.ArchiveKey == "" {
		return nil, fmt.Errorf("%w: result %s has no archived statement", domain.ErrNotFound, id)
	}
	return record, nil
}

// ExportResult writes the stored statement in the given format and returns a download file name.
func (s *statementService) ExportResult(ctx context.Context, id uuid.UUID, format domain.ExportFormat, w io.Writer) (string, error) {
	if format != domain.ExportCSV && format != domain.ExportXLSX {
		return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedExport, format)
	}
	record, err := s.GetResult(ctx, id)
	if err != nil {
		return "", err
	}
	stmt, err := record.DecodeStatement()
	if err != nil {
		return "", fmt.Errorf("decoding stored statement: %w", err)
	}
	if stmt == nil {
		return "", fmt.Errorf("%w: result %s has no statement", domain.ErrNotFound, id)
	}
	if err := export.Write(w, format, stmt); err != nil {
		return "", fmt.Errorf("exporting %s: %w", format, err)
	}
	return export.BuildFilename(record.FileName, format), nil
}

// Ready checks the configured backing stores.
func (s *statementService) Ready(ctx context.Context) error {
	if s.repo != nil {
		if err := s.repo.Ping(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if s.storage != nil {
		if err := s.storage.Ping(ctx, s.cfg.S3.Bucket); err != nil {
			return fmt.Errorf("archive: %w", err)
		}
	}
	return nil
}
