// internal/refresher/refresher_test.go
package refresher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"unsafe-stats/internal/database"
	"unsafe-stats/internal/model"
)

// MockStore is a mock of the Store interface.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) ListRepositoriesWithURL(ctx context.Context) ([]model.RepositoryWithURL, error) {
	args := m.Called(ctx)
	return args.Get(0).([]model.RepositoryWithURL), args.Error(1)
}

func (m *MockStore) ReconcileSnapshot(ctx context.Context, arg database.ReconcileSnapshotParams) error {
	return m.Called(ctx, arg).Error(0)
}

type MockExtractor struct {
	mock.Mock
}

func (m *MockExtractor) Extract(ctx context.Context, repoKey, cloneURL string) (model.Metrics, error) {
	args := m.Called(ctx, repoKey, cloneURL)
	return args.Get(0).(model.Metrics), args.Error(1)
}

type MockFlusher struct {
	mock.Mock
}

func (m *MockFlusher) Flush(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type recordingErrLog struct {
	mu       sync.Mutex
	messages []string
}

func (l *recordingErrLog) Log(ctx context.Context, msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf(msg, args...))
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var (
	repoA = model.RepositoryWithURL{ID: 1, Namespace: "rust-lang", Name: "regex", ProviderURL: "https://github.com"}
	repoB = model.RepositoryWithURL{ID: 2, Namespace: "tokio-rs", Name: "tokio", ProviderURL: "https://github.com"}
)

func TestRefresher_RefreshAll(t *testing.T) {
	ctx := context.Background()

	t.Run("reconciles every successful extraction and flushes the cache", func(t *testing.T) {
		store, ext, flusher := new(MockStore), new(MockExtractor), new(MockFlusher)
		store.On("ListRepositoriesWithURL", mock.Anything).Return([]model.RepositoryWithURL{repoA, repoB}, nil)
		ext.On("Extract", mock.Anything, "regex", "https://github.com/rust-lang/regex").Return(model.Metrics{CodeLines: 100, UnsafeLines: 5}, nil)
		ext.On("Extract", mock.Anything, "tokio", "https://github.com/tokio-rs/tokio").Return(model.Metrics{CodeLines: 120, UnsafeLines: 7}, nil)
		store.On("ReconcileSnapshot", mock.Anything, database.ReconcileSnapshotParams{RepositoryID: 1, CodeLines: 100, UnsafeLines: 5}).Return(nil).Once()
		store.On("ReconcileSnapshot", mock.Anything, database.ReconcileSnapshotParams{RepositoryID: 2, CodeLines: 120, UnsafeLines: 7}).Return(nil).Once()
		flusher.On("Flush", mock.Anything).Return(nil).Once()

		r, err := NewRefresher(store, ext, flusher, &recordingErrLog{}, testLogger(), 2, 0)
		require.NoError(t, err)

		require.NoError(t, r.RefreshAll(ctx))
		store.AssertExpectations(t)
		ext.AssertExpectations(t)
		flusher.AssertExpectations(t)
	})

	t.Run("a failed extraction does not block the others", func(t *testing.T) {
		store, ext, flusher := new(MockStore), new(MockExtractor), new(MockFlusher)
		store.On("ListRepositoriesWithURL", mock.Anything).Return([]model.RepositoryWithURL{repoA, repoB}, nil)
		ext.On("Extract", mock.Anything, "regex", mock.Anything).Return(model.Metrics{}, errors.New("clone failed"))
		ext.On("Extract", mock.Anything, "tokio", mock.Anything).Return(model.Metrics{CodeLines: 120, UnsafeLines: 7}, nil)
		store.On("ReconcileSnapshot", mock.Anything, database.ReconcileSnapshotParams{RepositoryID: 2, CodeLines: 120, UnsafeLines: 7}).Return(nil).Once()
		flusher.On("Flush", mock.Anything).Return(nil)

		r, err := NewRefresher(store, ext, flusher, &recordingErrLog{}, testLogger(), 4, 0)
		require.NoError(t, err)

		assert.NoError(t, r.RefreshAll(ctx))
		store.AssertExpectations(t)
		store.AssertNumberOfCalls(t, "ReconcileSnapshot", 1)
	})

	t.Run("a failed reconciliation is logged and the rest continue", func(t *testing.T) {
		store, ext, flusher := new(MockStore), new(MockExtractor), new(MockFlusher)
		errlog := &recordingErrLog{}
		store.On("ListRepositoriesWithURL", mock.Anything).Return([]model.RepositoryWithURL{repoA, repoB}, nil)
		ext.On("Extract", mock.Anything, "regex", mock.Anything).Return(model.Metrics{CodeLines: 100, UnsafeLines: 5}, nil)
		ext.On("Extract", mock.Anything, "tokio", mock.Anything).Return(model.Metrics{CodeLines: 120, UnsafeLines: 7}, nil)
		store.On("ReconcileSnapshot", mock.Anything, database.ReconcileSnapshotParams{RepositoryID: 1, CodeLines: 100, UnsafeLines: 5}).Return(errors.New("deadlock detected"))
		store.On("ReconcileSnapshot", mock.Anything, database.ReconcileSnapshotParams{RepositoryID: 2, CodeLines: 120, UnsafeLines: 7}).Return(nil).Once()
		flusher.On("Flush", mock.Anything).Return(nil)

		r, err := NewRefresher(store, ext, flusher, errlog, testLogger(), 1, 0)
		require.NoError(t, err)

		assert.NoError(t, r.RefreshAll(ctx))
		store.AssertExpectations(t)
		require.Len(t, errlog.messages, 1)
		assert.Contains(t, errlog.messages[0], "deadlock detected")
	})

	t.Run("a failed listing is returned", func(t *testing.T) {
		store, ext, flusher := new(MockStore), new(MockExtractor), new(MockFlusher)
		store.On("ListRepositoriesWithURL", mock.Anything).Return([]model.RepositoryWithURL(nil), errors.New("db down"))

		r, err := NewRefresher(store, ext, flusher, &recordingErrLog{}, testLogger(), 1, 0)
		require.NoError(t, err)

		assert.ErrorContains(t, r.RefreshAll(ctx), "db down")
		ext.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything, mock.Anything)
		flusher.AssertNotCalled(t, "Flush", mock.Anything)
	})

	t.Run("a failed cache flush does not fail the run", func(t *testing.T) {
		store, ext, flusher := new(MockStore), new(MockExtractor), new(MockFlusher)
		errlog := &recordingErrLog{}
		store.On("ListRepositoriesWithURL", mock.Anything).Return([]model.RepositoryWithURL{}, nil)
		flusher.On("Flush", mock.Anything).Return(errors.New("redis unavailable"))

		r, err := NewRefresher(store, ext, flusher, errlog, testLogger(), 1, 0)
		require.NoError(t, err)

		assert.NoError(t, r.RefreshAll(ctx))
		require.Len(t, errlog.messages, 1)
		assert.Contains(t, errlog.messages[0], "redis unavailable")
	})
}

// gatedExtractor records the highest number of extractions in flight.
type gatedExtractor struct {
	inFlight, peak int32
}

func (g *gatedExtractor) Extract(ctx context.Context, repoKey, cloneURL string) (model.Metrics, error) {
	n := atomic.AddInt32(&g.inFlight, 1)
	for {
		peak := atomic.LoadInt32(&g.peak)
		if n <= peak || atomic.CompareAndSwapInt32(&g.peak, peak, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	atomic.AddInt32(&g.inFlight, -1)
	return model.Metrics{CodeLines: 1}, nil
}

func TestRefresher_RefreshAll_BoundsConcurrency(t *testing.T) {
	repos := make([]model.RepositoryWithURL, 12)
	for i := range repos {
		repos[i] = model.RepositoryWithURL{ID: int32(i + 1), Namespace: "ns", Name: fmt.Sprintf("repo_%d", i), ProviderURL: "https://github.com"}
	}
	store, flusher := new(MockStore), new(MockFlusher)
	store.On("ListRepositoriesWithURL", mock.Anything).Return(repos, nil)
	store.On("ReconcileSnapshot", mock.Anything, mock.Anything).Return(nil)
	flusher.On("Flush", mock.Anything).Return(nil)
	ext := &gatedExtractor{}

	r, err := NewRefresher(store, ext, flusher, &recordingErrLog{}, testLogger(), 3, 0)
	require.NoError(t, err)

	require.NoError(t, r.RefreshAll(context.Background()))
	assert.LessOrEqual(t, atomic.LoadInt32(&ext.peak), int32(3))
	store.AssertNumberOfCalls(t, "ReconcileSnapshot", 12)
}

func TestNewRefresher_RejectsZeroConcurrency(t *testing.T) {
	_, err := NewRefresher(new(MockStore), new(MockExtractor), new(MockFlusher), &recordingErrLog{}, testLogger(), 0, time.Hour)
	assert.Error(t, err)
}

func TestRefresher_Start(t *testing.T) {
	store, ext, flusher := new(MockStore), new(MockExtractor), new(MockFlusher)
	store.On("ListRepositoriesWithURL", mock.Anything).Return([]model.RepositoryWithURL{}, nil)
	flushed := make(chan struct{})
	var once sync.Once
	flusher.On("Flush", mock.Anything).Return(nil).Run(func(mock.Arguments) {
		once.Do(func() { close(flushed) })
	})

	r, err := NewRefresher(store, ext, flusher, &recordingErrLog{}, testLogger(), 1, time.Hour)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Start(ctx)
		close(done)
	}()

	select {
	case <-flushed:
	case <-time.After(time.Second):
		t.Fatal("initial refresh did not run")
	}
	cancel()
	<-done
	store.AssertNumberOfCalls(t, "ListRepositoriesWithURL", 1)
}
