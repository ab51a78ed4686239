package errlog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockWriter struct {
	mock.Mock
}

func (m *MockWriter) InsertErrorLog(ctx context.Context, message string) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

func TestLogger_Log(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("writes to the database", func(t *testing.T) {
		dir := t.TempDir()
		w := new(MockWriter)
		w.On("InsertErrorLog", ctx, "reconcile failed for 7").Return(nil).Once()

		New(w, dir, logger).Log(ctx, "reconcile failed for %d", 7)

		w.AssertExpectations(t)
		_, err := os.Stat(filepath.Join(dir, fallbackFile))
		assert.True(t, os.IsNotExist(err), "no fallback file should be written")
	})

	t.Run("falls back to the filesystem", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "logs")
		w := new(MockWriter)
		w.On("InsertErrorLog", ctx, mock.Anything).Return(errors.New("connection refused"))

		l := New(w, dir, logger)
		l.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
		l.Log(ctx, "foo")
		l.Log(ctx, "bar")

		content, err := os.ReadFile(filepath.Join(dir, fallbackFile))
		require.NoError(t, err)
		assert.Contains(t, string(content), "2024-01-02T03:04:05Z: error log write failed: connection refused, for initial error: foo\n")
		assert.Contains(t, string(content), "for initial error: bar")
	})
}
