package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"bankparse/internal/port"
)

// MockLLMProvider is a mock implementation of port.LLMProvider.
type MockLLMProvider struct {
	mock.Mock
}

func (m *MockLLMProvider) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockLLMProvider) Call(ctx context.Context, req port.CallRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}
