package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"medindex/internal/model"
)

type MockTextExtractor struct {
	mock.Mock
}

func (m *MockTextExtractor) ExtractText(ctx context.Context, content []byte, contentType string) (string, float64, error) {
	args := m.Called(ctx, content, contentType)
	return args.String(0), args.Get(1).(float64), args.Error(2)
}

type MockEntityExtractor struct {
	mock.Mock
}

func (m *MockEntityExtractor) ExtractEntities(ctx context.Context, text string) ([]model.Entity, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Entity), args.Error(1)
}

type MockEmbedder struct {
	mock.Mock
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}
