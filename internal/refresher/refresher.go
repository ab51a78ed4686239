// internal/refresher/refresher.go
package refresher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"unsafe-stats/internal/database"
	"unsafe-stats/internal/model"
)

// Store is the storage the refresh pipeline reads from and reconciles into.
type Store interface {
	ListRepositoriesWithURL(ctx context.Context) ([]model.RepositoryWithURL, error)
	ReconcileSnapshot(ctx context.Context, arg database.ReconcileSnapshotParams) error
}

// Extractor computes metrics for one repository.
type Extractor interface {
	Extract(ctx context.Context, repoKey, cloneURL string) (model.Metrics, error)
}

// Flusher drops cached pages that a refresh may have made stale.
type Flusher interface {
	Flush(ctx context.Context) error
}

// ErrorLogger records failures that must not abort the batch.
type ErrorLogger interface {
	Log(ctx context.Context, msg string, args ...any)
}

// result is what a worker hands back for one repository.
type result struct {
	repo    model.RepositoryWithURL
	metrics model.Metrics
	err     error
}

// Refresher orchestrates the extraction and reconciliation of every tracked repository.
type Refresher struct {
	store       Store
	extractor   Extractor
	cache       Flusher
	errlog      ErrorLogger
	logger      *slog.Logger
	concurrency int
	interval    time.Duration
}

// NewRefresher creates a new Refresher. concurrency bounds the number of
// extractions running at once.
func NewRefresher(store Store, extractor Extractor, cache Flusher, errlog ErrorLogger, logger *slog.Logger, concurrency int, interval time.Duration) (*Refresher, error) {
	if concurrency <= 0 {
		return nil, fmt.Errorf("concurrency must be positive, got %d", concurrency)
	}
	return &Refresher{
		store:       store,
		extractor:   extractor,
		cache:       cache,
		errlog:      errlog,
		logger:      logger,
		concurrency: concurrency,
		interval:    interval,
	}, nil
}

// Start runs a refresh immediately and then on every interval tick until ctx is done.
func (r *Refresher) Start(ctx context.Context) {
	if r.interval <= 0 {
		r.logger.Info("Scheduled refresh disabled")
		return
	}
	r.logger.Info("Starting refresher", "interval", r.interval.String(), "concurrency", r.concurrency)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.runScheduled(ctx) // Initial refresh

	for {
		select {
		case <-ticker.C:
			r.runScheduled(ctx)
		case <-ctx.Done():
			r.logger.Info("Refresher shutting down", "reason", ctx.Err())
			return
		}
	}
}

func (r *Refresher) runScheduled(ctx context.Context) {
	if err := r.RefreshAll(ctx); err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Error("Scheduled refresh failed", "error", err)
	}
}

// RefreshAll extracts metrics for every tracked repository and reconciles the
// successful ones. Individual extraction or reconciliation failures are logged
// and skipped; only a failure to list the repositories is returned.
func (r *Refresher) RefreshAll(ctx context.Context) error {
	ctx, span := otel.Tracer("unsafe-stats/refresher").Start(ctx, "Refresher.RefreshAll")
	defer span.End()

	repos, err := r.store.ListRepositoriesWithURL(ctx)
	if err != nil {
		r.errlog.Log(ctx, "Refresher.RefreshAll failed to list repositories: %v", err)
		return fmt.Errorf("list repositories: %w", err)
	}
	span.SetAttributes(attribute.Int("repositories", len(repos)))
	r.logger.Info("Starting refresh", "repositories", len(repos))

	results := r.extractAll(ctx, repos)

	reconciled, failed := 0, 0
	for _, res := range results {
		logger := r.logger.With("repo", res.repo.Name, "repo_id", res.repo.ID)
		if res.err != nil {
			failed++
			logger.Warn("Extraction failed, keeping previous stats", "error", res.err)
			continue
		}
		if err := r.reconcile(ctx, res); err != nil {
			failed++
			r.errlog.Log(ctx, "Failed to reconcile stats for repository %d (%s): %v", res.repo.ID, res.repo.Name, err)
			continue
		}
		reconciled++
		logger.Debug("Stats reconciled", "code_lines", res.metrics.CodeLines, "unsafe_lines", res.metrics.UnsafeLines)
	}

	if err := r.cache.Flush(ctx); err != nil {
		r.errlog.Log(ctx, "Refresher.RefreshAll failed to flush cache: %v", err)
	}

	span.SetAttributes(attribute.Int("reconciled", reconciled), attribute.Int("failed", failed))
	r.logger.Info("Refresh finished", "reconciled", reconciled, "failed", failed)
	return nil
}

// extractAll runs one extraction per repository on a bounded pool and
// collects every outcome, successful or not.
func (r *Refresher) extractAll(ctx context.Context, repos []model.RepositoryWithURL) []result {
	var (
		mu      sync.Mutex
		results = make([]result, 0, len(repos))
	)

	g := new(errgroup.Group)
	g.SetLimit(r.concurrency)

	for _, repo := range repos {
		g.Go(func() error {
			metrics, err := r.extractor.Extract(ctx, repo.Name, repo.CloneURL())
			mu.Lock()
			results = append(results, result{repo: repo, metrics: metrics, err: err})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // workers never return an error

	return results
}

func (r *Refresher) reconcile(ctx context.Context, res result) error {
	m := res.metrics
	if m.CodeLines < 0 || m.UnsafeLines < 0 || m.CodeLines > math.MaxInt32 || m.UnsafeLines > math.MaxInt32 {
		return fmt.Errorf("metrics out of range: code_lines=%d unsafe_lines=%d", m.CodeLines, m.UnsafeLines)
	}
	return r.store.ReconcileSnapshot(ctx, database.ReconcileSnapshotParams{
		RepositoryID: res.repo.ID,
		CodeLines:    int32(m.CodeLines),
		UnsafeLines:  int32(m.UnsafeLines),
	})
}
