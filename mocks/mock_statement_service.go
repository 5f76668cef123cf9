package mocks

import (
	"context"
	"io"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"bankparse/internal/domain"
	"bankparse/internal/service"
)

// MockStatementService is a mock implementation of service.StatementService.
type MockStatementService struct {
	mock.Mock
}

func (m *MockStatementService) ParseAndStore(ctx context.Context, input service.ParseStatementInput) (*domain.ParseResult, domain.ParsedOutcome) {
	args := m.Called(ctx, input)
	var result *domain.ParseResult
	if args.Get(0) != nil {
		result = args.Get(0).(*domain.ParseResult)
	}
	return result, args.Get(1).(domain.ParsedOutcome)
}

func (m *MockStatementService) GetResult(ctx context.Context, id uuid.UUID) (*domain.ParseResult, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ParseResult), args.Error(1)
}

func (m *MockStatementService) ListResults(ctx context.Context, offset, limit int) ([]domain.ParseResult, int, error) {
	args := m.Called(ctx, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.ParseResult), args.Int(1), args.Error(2)
}

func (m *MockStatementService) DeleteResult(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockStatementService) SourceURL(ctx context.Context, id uuid.UUID) (string, error) {
	args := m.Called(ctx, id)
	return args.String(0), args.Error(1)
}

func (m *MockStatementService) Reparse(ctx context.Context, id uuid.UUID, strategy domain.Strategy, provider domain.Provider) (*domain.ParseResult, domain.ParsedOutcome, error) {
	args := m.Called(ctx, id, strategy, provider)
	var result *domain.ParseResult
	if args.Get(0) != nil {
		result = args.Get(0).(*domain.ParseResult)
	}
	return result, args.Get(1).(domain.ParsedOutcome), args.Error(2)
}

func (m *MockStatementService) ExportResult(ctx context.Context, id uuid.UUID, format domain.ExportFormat, w io.Writer) (string, error) {
	args := m.Called(ctx, id, format, w)
	return args.String(0), args.Error(1)
}

func (m *MockStatementService) Ready(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
