package mocks

import (
	"context"

	"intensityapi/internal/model"

	"github.com/stretchr/testify/mock"
)

type MockClient struct {
	mock.Mock
}

func (m *MockClient) Analyze(ctx context.Context, image []byte, allowedFormats []string) (*model.AnalysisResult, error) {
	args := m.Called(ctx, image, allowedFormats)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AnalysisResult), args.Error(1)
}

func (m *MockClient) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockClient) Close() error {
	args := m.Called()
	return args.Error(0)
}
