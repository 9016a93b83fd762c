package registry

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// mockBackend implements Backend for testing.
type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) GetOrCreateRun(ctx context.Context, name, version string, description *string) (int64, error) {
	args := m.Called(ctx, name, version, description)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockBackend) StartActivity(ctx context.Context, runID int64) (int64, error) {
	args := m.Called(ctx, runID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockBackend) EndActivity(ctx context.Context, activityID int64, errorCode, errorText *string) error {
	args := m.Called(ctx, activityID, errorCode, errorText)
	return args.Error(0)
}
