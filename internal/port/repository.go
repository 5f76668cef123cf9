package port

import (
	"context"

	"github.com/google/uuid"

	"bankparse/internal/domain"
)

// ParseResultRepository defines the contract for parse result persistence.
type ParseResultRepository interface {
	Create(ctx context.Context, result *domain.ParseResult) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.ParseResult, error)
	List(ctx context.Context, offset, limit int) ([]domain.ParseResult, int, error)
	UpdateArchiveKey(ctx context.Context, id uuid.UUID, key string) error
	Delete(ctx context.Context, id uuid.UUID) error
	Ping(ctx context.Context) error
}
