package sourcemock

import (
	"context"
	"time"

	"github.com/gridtally/gridtally/pkg/source"
	"github.com/gridtally/gridtally/pkg/types"
	"github.com/stretchr/testify/mock"
)

type MockProvider struct {
	mock.Mock
}

var _ source.Provider = (*MockProvider)(nil)

func (m *MockProvider) CurrentPower(ctx context.Context, entityID string) (float64, error) {
	args := m.Called(ctx, entityID)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockProvider) History(ctx context.Context, entityID string, start, end time.Time, res types.Resolution) ([]types.HistoryPoint, error) {
	args := m.Called(ctx, entityID, start, end, res)
	if v := args.Get(0); v != nil {
		return v.([]types.HistoryPoint), args.Error(1)
	}
	return nil, args.Error(1)
}
