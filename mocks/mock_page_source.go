package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"bankparse/internal/port"
)

// MockPageSource is a mock implementation of port.PageSource.
type MockPageSource struct {
	mock.Mock
}

func (m *MockPageSource) Units(ctx context.Context, pdf []byte) ([]port.Unit, error) {
	args := m.Called(ctx, pdf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]port.Unit), args.Error(1)
}
