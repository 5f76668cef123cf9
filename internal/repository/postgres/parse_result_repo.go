package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"bankparse/internal/domain"
	"bankparse/internal/port"
)

const parseResultColumns = `id, file_name, file_size, provider, strategy, success, error_message,
	error_kind, processing_time_ms, transaction_count, statement, archive_key, created_at`

type parseResultRepo struct {
	db *sqlx.DB
}

// NewParseResultRepo creates a PostgreSQL-backed ParseResultRepository.
func NewParseResultRepo(db *sqlx.DB) port.ParseResultRepository {
	return &parseResultRepo{db: db}
}

func (r *parseResultRepo) Create(ctx context.Context, result *domain.ParseResult) error {
	if result.ID == uuid.Nil {
		result.ID = uuid.New()
	}
	result.CreatedAt = time.Now().UTC()

	var statement any
	if len(result.Statement) > 0 {
		statement = []byte(result.Statement)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO parse_results (`+parseResultColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		result.ID, result.FileName, result.FileSize, result.Provider, result.Strategy,
		result.Success, result.ErrorMessage, result.ErrorKind, result.ProcessingTimeMs,
		result.TransactionCount, statement, result.ArchiveKey, result.CreatedAt)
	if err != nil {
		return fmt.Errorf("parseResultRepo.Create: %w", err)
	}
	return nil
}

func (r *parseResultRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.ParseResult, error) {
	var result domain.ParseResult
	err := r.db.GetContext(ctx, &result,
		"SELECT "+parseResultColumns+" FROM parse_results WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("parseResultRepo.GetByID: %w", err)
	}
	return &result, nil
}

// List returns results newest first without the statement payload.
func (r *parseResultRepo) List(ctx context.Context, offset, limit int) ([]domain.ParseResult, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM parse_results"); err != nil {
		return nil, 0, fmt.Errorf("parseResultRepo.List count: %w", err)
	}

	var results []domain.ParseResult
	err := r.db.SelectContext(ctx, &results,
		`SELECT id, file_name, file_size, provider, strategy, success, error_message, error_kind,
		        processing_time_ms, transaction_count, archive_key, created_at
		 FROM parse_results
		 ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("parseResultRepo.List: %w", err)
	}
	return results, total, nil
}

func (r *parseResultRepo) UpdateArchiveKey(ctx context.Context, id uuid.UUID, key string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE parse_results SET archive_key = $1 WHERE id = $2", key, id)
	if err != nil {
		return fmt.Errorf("parseResultRepo.UpdateArchiveKey: %w", err)
	}
	return requireOneRow(res, "parseResultRepo.UpdateArchiveKey")
}

func (r *parseResultRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM parse_results WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("parseResultRepo.Delete: %w", err)
	}
	return requireOneRow(res, "parseResultRepo.Delete")
}

func (r *parseResultRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func requireOneRow(res sql.Result, op string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}
