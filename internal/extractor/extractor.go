// Package extractor computes line-count metrics for a repository from a local
// working copy kept under a shared scratch directory.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	custom_errors "unsafe-stats/internal/errors"
	"unsafe-stats/internal/model"
)

var repoKeyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Syncer creates or updates a working copy.
type Syncer interface {
	Clone(ctx context.Context, dir, url string) error
	Pull(ctx context.Context, dir string) error
}

// LineCounter counts source lines of the target language below dir.
type LineCounter interface {
	CountLines(ctx context.Context, dir string) (int, error)
}

// Extractor produces (code lines, unsafe lines) for one repository at a time.
// It is safe for concurrent use on distinct repository keys.
type Extractor struct {
	workDir string
	timeout time.Duration
	syncer  Syncer
	counter LineCounter
	logger  *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithSyncer replaces the go-git based syncer.
func WithSyncer(s Syncer) Option {
	return func(e *Extractor) { e.syncer = s }
}

// WithLineCounter replaces the cloc based line counter.
func WithLineCounter(c LineCounter) Option {
	return func(e *Extractor) { e.counter = c }
}

// WithTimeout bounds a single extraction. Zero means no timeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Extractor) { e.timeout = d }
}

func New(workDir string, logger *slog.Logger, opts ...Option) *Extractor {
	e := &Extractor{
		workDir: workDir,
		syncer:  &GitSyncer{},
		counter: NewClocCounter(),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract synchronizes the working copy for repoKey with cloneURL and scans it.
// Any error means the repository must be treated as unchanged.
func (e *Extractor) Extract(ctx context.Context, repoKey, cloneURL string) (model.Metrics, error) {
	ctx, span := otel.Tracer("unsafe-stats/extractor").Start(ctx, "Extractor.Extract")
	span.SetAttributes(attribute.String("repo", repoKey))
	defer span.End()

	metrics, err := e.extract(ctx, repoKey, cloneURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return metrics, err
}

func (e *Extractor) extract(ctx context.Context, repoKey, cloneURL string) (model.Metrics, error) {
	if !repoKeyPattern.MatchString(repoKey) {
		return model.Metrics{}, &custom_errors.ErrUnsafeRepoKey{Key: repoKey}
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	if err := os.MkdirAll(e.workDir, 0o755); err != nil {
		return model.Metrics{}, fmt.Errorf("create work dir: %w", err)
	}
	dir := filepath.Join(e.workDir, repoKey)
	logger := e.logger.With("repo", repoKey)

	if err := e.sync(ctx, dir, cloneURL, logger); err != nil {
		return model.Metrics{}, err
	}

	unsafeLines, err := CountUnsafeLines(dir)
	if err != nil {
		return model.Metrics{}, fmt.Errorf("scan unsafe lines: %w", err)
	}
	codeLines, err := e.counter.CountLines(ctx, dir)
	if err != nil {
		return model.Metrics{}, fmt.Errorf("count code lines: %w", err)
	}

	logger.Debug("Extracted metrics", "code_lines", codeLines, "unsafe_lines", unsafeLines)
	return model.Metrics{CodeLines: codeLines, UnsafeLines: unsafeLines}, nil
}

func (e *Extractor) sync(ctx context.Context, dir, cloneURL string, logger *slog.Logger) error {
	_, err := os.Stat(dir)
	switch {
	case err == nil:
		logger.Debug("Updating working copy")
		if err := e.syncer.Pull(ctx, dir); err != nil {
			return fmt.Errorf("pull %s: %w", dir, err)
		}
		return nil
	case errors.Is(err, fs.ErrNotExist):
		logger.Debug("Cloning working copy", "url", cloneURL)
		if err := e.syncer.Clone(ctx, dir, cloneURL); err != nil {
			// A partial clone would be mistaken for a working copy next time.
			_ = os.RemoveAll(dir)
			return fmt.Errorf("clone %s: %w", cloneURL, err)
		}
		return nil
	default:
		return fmt.Errorf("stat %s: %w", dir, err)
	}
}
