package stats

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"unsafe-stats/internal/database"
	"unsafe-stats/internal/model"
)

type MockQuerier struct {
	mock.Mock
}

func (m *MockQuerier) ListCurrentStats(ctx context.Context, arg database.ListCurrentStatsParams) (model.StatsPage, error) {
	args := m.Called(ctx, arg)
	return args.Get(0).(model.StatsPage), args.Error(1)
}

func TestReader_List(t *testing.T) {
	ctx := context.Background()

	t.Run("translates page index to offset", func(t *testing.T) {
		q := new(MockQuerier)
		want := model.StatsPage{Items: []model.StatsItem{{RepositoryID: 7, Name: "name_7"}}, Total: 9}
		q.On("ListCurrentStats", mock.Anything, database.ListCurrentStatsParams{Name: "", Limit: 3, Offset: 6}).
			Return(want, nil).Once()

		got, err := NewReader(q).List(ctx, "", 3, 2)

		require.NoError(t, err)
		assert.Equal(t, want, got)
		q.AssertExpectations(t)
	})

	t.Run("empty result is an empty list", func(t *testing.T) {
		q := new(MockQuerier)
		q.On("ListCurrentStats", mock.Anything, mock.Anything).Return(model.StatsPage{Total: 9}, nil)

		got, err := NewReader(q).List(ctx, "", 8, 5)

		require.NoError(t, err)
		assert.NotNil(t, got.Items)
		assert.Empty(t, got.Items)
		assert.Equal(t, int64(9), got.Total)
	})

	t.Run("huge page index saturates the offset", func(t *testing.T) {
		q := new(MockQuerier)
		q.On("ListCurrentStats", mock.Anything, database.ListCurrentStatsParams{Name: "", Limit: 50, Offset: math.MaxInt64}).
			Return(model.StatsPage{Total: 9}, nil).Once()

		got, err := NewReader(q).List(ctx, "", 50, math.MaxInt64/40)

		require.NoError(t, err)
		assert.Empty(t, got.Items)
		assert.Equal(t, int64(9), got.Total)
		q.AssertExpectations(t)
	})

	t.Run("rejects invalid pages", func(t *testing.T) {
		q := new(MockQuerier)
		r := NewReader(q)

		_, err := r.List(ctx, "", 0, 0)
		assert.ErrorIs(t, err, ErrInvalidPage)
		_, err = r.List(ctx, "", 10, -1)
		assert.ErrorIs(t, err, ErrInvalidPage)
		q.AssertNotCalled(t, "ListCurrentStats", mock.Anything, mock.Anything)
	})

	t.Run("returns storage errors", func(t *testing.T) {
		q := new(MockQuerier)
		dbErr := errors.New("connection reset")
		q.On("ListCurrentStats", mock.Anything, mock.Anything).Return(model.StatsPage{}, dbErr)

		_, err := NewReader(q).List(ctx, "foo", 3, 0)

		assert.ErrorIs(t, err, dbErr)
	})
}

func TestPageOffset(t *testing.T) {
	assert.Equal(t, int64(0), pageOffset(50, 0))
	assert.Equal(t, int64(6), pageOffset(3, 2))
	assert.Equal(t, int64(math.MaxInt64/50*50), pageOffset(50, math.MaxInt64/50))
	assert.Equal(t, int64(math.MaxInt64), pageOffset(50, math.MaxInt64/50+1))
	assert.Equal(t, int64(math.MaxInt64), pageOffset(1, math.MaxInt64))
}
