package mocks

import (
	"context"

	"intensityapi/internal/model"
	"intensityapi/internal/service"

	"github.com/stretchr/testify/mock"
)

type MockIntensityService struct {
	mock.Mock
}

func (m *MockIntensityService) Analyze(ctx context.Context, req service.UploadRequest) (*model.IntensityResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.IntensityResponse), args.Error(1)
}

func (m *MockIntensityService) Drain() {
	m.Called()
}
