// Package catalog imports tracked repositories from a flat file or a GitHub search.
package catalog

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"unsafe-stats/internal/database"
	custom_errors "unsafe-stats/internal/errors"
)

// TxRunner runs a unit of work in a single transaction.
type TxRunner interface {
	ExecTx(ctx context.Context, fn func(database.Querier) error) error
}

// Searcher finds repositories on GitHub and returns them as catalog lines.
type Searcher interface {
	SearchRustRepositories(ctx context.Context, query string, limit int) ([]string, error)
}

// Entry is one parsed catalog line.
type Entry struct {
	ProviderURL string
	Namespace   string
	Name        string
}

// ImportResult summarizes an import run.
type ImportResult struct {
	Imported  int `json:"imported"`
	Skipped   int `json:"skipped"`
	Malformed int `json:"malformed"`
}

// ParseLine parses a '<scheme>//<host>/<namespace>/<name>' line.
func ParseLine(line string) (Entry, error) {
	parts := strings.Split(strings.TrimSpace(line), "/")
	if len(parts) != 5 || parts[1] != "" {
		return Entry{}, &custom_errors.ErrInvalidCatalogLine{Line: line}
	}
	for _, i := range []int{0, 2, 3, 4} {
		if parts[i] == "" {
			return Entry{}, &custom_errors.ErrInvalidCatalogLine{Line: line}
		}
	}
	return Entry{
		ProviderURL: parts[0] + "//" + parts[2],
		Namespace:   parts[3],
		Name:        parts[4],
	}, nil
}

// Importer adds catalog entries to storage, creating providers as needed.
type Importer struct {
	store  TxRunner
	github Searcher
	logger *slog.Logger
}

// NewImporter creates an Importer. github may be nil, in which case
// ImportGitHub is unavailable.
func NewImporter(store TxRunner, github Searcher, logger *slog.Logger) *Importer {
	return &Importer{store: store, github: github, logger: logger}
}

// ImportFile imports every line of the catalog file at path.
func (i *Importer) ImportFile(ctx context.Context, path string) (ImportResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return ImportResult{}, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()

	return i.Import(ctx, f)
}

// Import reads newline-delimited catalog entries from r. Blank lines are
// ignored, malformed lines are logged and skipped, and repositories whose
// name is already tracked are left untouched.
func (i *Importer) Import(ctx context.Context, r io.Reader) (ImportResult, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return ImportResult{}, fmt.Errorf("read catalog: %w", err)
	}
	return i.importLines(ctx, lines)
}

// ImportGitHub imports up to limit Rust repositories matching query.
func (i *Importer) ImportGitHub(ctx context.Context, query string, limit int) (ImportResult, error) {
	if i.github == nil {
		return ImportResult{}, errors.New("github import is not configured")
	}
	lines, err := i.github.SearchRustRepositories(ctx, query, limit)
	if err != nil {
		return ImportResult{}, err
	}
	return i.importLines(ctx, lines)
}

func (i *Importer) importLines(ctx context.Context, lines []string) (ImportResult, error) {
	var res ImportResult
	for n, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		entry, err := ParseLine(line)
		if err != nil {
			res.Malformed++
			i.logger.Warn("Skipping malformed catalog line", "line_number", n+1, "error", err)
			continue
		}

		created, err := i.importEntry(ctx, entry)
		if err != nil {
			return res, fmt.Errorf("import %s/%s: %w", entry.Namespace, entry.Name, err)
		}
		if created {
			res.Imported++
			i.logger.Debug("Repository imported", "repo", entry.Name, "provider", entry.ProviderURL)
		} else {
			res.Skipped++
		}
	}

	i.logger.Info("Catalog import finished", "imported", res.Imported, "skipped", res.Skipped, "malformed", res.Malformed)
	return res, nil
}

func (i *Importer) importEntry(ctx context.Context, e Entry) (bool, error) {
	var created bool
	err := i.store.ExecTx(ctx, func(q database.Querier) error {
		providerID, err := q.UpsertProvider(ctx, e.ProviderURL)
		if err != nil {
			return fmt.Errorf("upsert provider: %w", err)
		}
		created, err = q.CreateRepository(ctx, database.CreateRepositoryParams{
			ProviderID: providerID,
			Namespace:  e.Namespace,
			Name:       e.Name,
		})
		return err
	})
	return created, err
}
