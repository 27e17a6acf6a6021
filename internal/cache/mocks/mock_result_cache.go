package mocks

import (
	"context"

	"intensityapi/internal/cache"
	"intensityapi/internal/model"

	"github.com/stretchr/testify/mock"
)

type MockResultCache struct {
	mock.Mock
}

func (m *MockResultCache) Get(ctx context.Context, fp cache.Fingerprint) (*model.AnalysisResult, bool) {
	args := m.Called(ctx, fp)
	if args.Get(0) == nil {
		return nil, args.Bool(1)
	}
	return args.Get(0).(*model.AnalysisResult), args.Bool(1)
}

func (m *MockResultCache) Put(ctx context.Context, fp cache.Fingerprint, res *model.AnalysisResult) {
	m.Called(ctx, fp, res)
}
