package mocks

import (
	"context"
	"io"

	"contentapi/internal/model"
	"contentapi/internal/service"

	"github.com/stretchr/testify/mock"
)

type MockContentService struct {
	mock.Mock
}

func (m *MockContentService) Ingest(ctx context.Context, req service.IngestRequest) (*model.StoredItem, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.StoredItem), args.Error(1)
}

func (m *MockContentService) List(ctx context.Context, categoryTag string) ([]model.StoredItem, error) {
	args := m.Called(ctx, categoryTag)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.StoredItem), args.Error(1)
}

func (m *MockContentService) Open(ctx context.Context, categoryTag, filename string) (io.ReadCloser, *model.StoredItem, error) {
	args := m.Called(ctx, categoryTag, filename)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(io.ReadCloser), args.Get(1).(*model.StoredItem), args.Error(2)
}

func (m *MockContentService) Delete(ctx context.Context, categoryTag, filename string) error {
	args := m.Called(ctx, categoryTag, filename)
	return args.Error(0)
}

func (m *MockContentService) Activity(ctx context.Context, limit, offset int) (*service.ActivityListResult, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ActivityListResult), args.Error(1)
}
