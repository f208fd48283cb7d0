package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"medindex/internal/vectorstore"
)

type MockVectorStore struct {
	mock.Mock
}

func (m *MockVectorStore) Upsert(ctx context.Context, docID string, vector []float32, payload map[string]string) error {
	args := m.Called(ctx, docID, vector, payload)
	return args.Error(0)
}

func (m *MockVectorStore) Query(ctx context.Context, vector []float32, limit int) ([]vectorstore.Match, error) {
	args := m.Called(ctx, vector, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]vectorstore.Match), args.Error(1)
}

func (m *MockVectorStore) Delete(ctx context.Context, docID string) error {
	args := m.Called(ctx, docID)
	return args.Error(0)
}
