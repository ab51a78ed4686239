package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"unsafe-stats/internal/model"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Querier is the storage contract used by the rest of the service.
type Querier interface {
	ListProviders(ctx context.Context) ([]model.Provider, error)
	GetProviderByID(ctx context.Context, id int32) ([]model.Provider, error)
	UpsertProvider(ctx context.Context, url string) (int32, error)
	ListRepositories(ctx context.Context) ([]model.Repository, error)
	GetRepositoryByID(ctx context.Context, id int32) ([]model.Repository, error)
	ListRepositoriesWithURL(ctx context.Context) ([]model.RepositoryWithURL, error)
	CreateRepository(ctx context.Context, arg CreateRepositoryParams) (bool, error)
	ReconcileSnapshot(ctx context.Context, arg ReconcileSnapshotParams) error
	GetSnapshotsByRepositoryID(ctx context.Context, repositoryID int32) ([]model.Snapshot, error)
	ListCurrentStats(ctx context.Context, arg ListCurrentStatsParams) (model.StatsPage, error)
	InsertErrorLog(ctx context.Context, message string) error
}

type CreateRepositoryParams struct {
	ProviderID int32
	Namespace  string
	Name       string
}

type ReconcileSnapshotParams struct {
	RepositoryID int32
	CodeLines    int32
	UnsafeLines  int32
}

type ListCurrentStatsParams struct {
	Name   string
	Limit  int32
	Offset int64
}

type Queries struct {
	db DBTX
}

var _ Querier = (*Queries)(nil)

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

func (q *Queries) ListProviders(ctx context.Context) ([]model.Provider, error) {
	return q.queryProviders(ctx, listProviders)
}

func (q *Queries) GetProviderByID(ctx context.Context, id int32) ([]model.Provider, error) {
	return q.queryProviders(ctx, getProviderByID, id)
}

func (q *Queries) queryProviders(ctx context.Context, query string, args ...any) ([]model.Provider, error) {
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	items, err := pgx.CollectRows(rows, pgx.RowToStructByPos[model.Provider])
	if err != nil {
		return nil, err
	}
	return nonNil(items), nil
}

func (q *Queries) UpsertProvider(ctx context.Context, url string) (int32, error) {
	var id int32
	err := q.db.QueryRow(ctx, upsertProvider, url).Scan(&id)
	return id, err
}

func (q *Queries) ListRepositories(ctx context.Context) ([]model.Repository, error) {
	return q.queryRepositories(ctx, listRepositories)
}

func (q *Queries) GetRepositoryByID(ctx context.Context, id int32) ([]model.Repository, error) {
	return q.queryRepositories(ctx, getRepositoryByID, id)
}

func (q *Queries) queryRepositories(ctx context.Context, query string, args ...any) ([]model.Repository, error) {
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	items, err := pgx.CollectRows(rows, pgx.RowToStructByPos[model.Repository])
	if err != nil {
		return nil, err
	}
	return nonNil(items), nil
}

func (q *Queries) ListRepositoriesWithURL(ctx context.Context) ([]model.RepositoryWithURL, error) {
	rows, err := q.db.Query(ctx, listRepositoriesWithURL)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[model.RepositoryWithURL])
}

// CreateRepository inserts the repository unless one with the same name exists.
// It reports whether a row was inserted.
func (q *Queries) CreateRepository(ctx context.Context, arg CreateRepositoryParams) (bool, error) {
	tag, err := q.db.Exec(ctx, createRepository, arg.ProviderID, arg.Namespace, arg.Name)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ReconcileSnapshot refreshes the snapshot matching (repository, unsafe lines)
// in place, or inserts a new one. It is a single conditional upsert.
func (q *Queries) ReconcileSnapshot(ctx context.Context, arg ReconcileSnapshotParams) error {
	_, err := q.db.Exec(ctx, reconcileSnapshot, arg.RepositoryID, arg.CodeLines, arg.UnsafeLines)
	return err
}

func (q *Queries) GetSnapshotsByRepositoryID(ctx context.Context, repositoryID int32) ([]model.Snapshot, error) {
	rows, err := q.db.Query(ctx, getSnapshotsByRepositoryID, repositoryID)
	if err != nil {
		return nil, err
	}
	items, err := pgx.CollectRows(rows, pgx.RowToStructByPos[model.Snapshot])
	if err != nil {
		return nil, err
	}
	return nonNil(items), nil
}

func (q *Queries) ListCurrentStats(ctx context.Context, arg ListCurrentStatsParams) (model.StatsPage, error) {
	rows, err := q.db.Query(ctx, listCurrentStats, arg.Name, arg.Limit, arg.Offset)
	if err != nil {
		return model.StatsPage{}, err
	}
	defer rows.Close()

	page := model.StatsPage{Items: []model.StatsItem{}}
	for rows.Next() {
		var (
			repositoryID, codeLines, unsafeLines *int32
			name, url, createdAt, updatedAt      *string
		)
		if err := rows.Scan(&repositoryID, &name, &url, &codeLines, &unsafeLines, &createdAt, &updatedAt, &page.Total); err != nil {
			return model.StatsPage{}, err
		}
		if repositoryID == nil {
			continue
		}
		page.Items = append(page.Items, model.StatsItem{
			RepositoryID: *repositoryID,
			Name:         *name,
			URL:          *url,
			CodeLines:    *codeLines,
			UnsafeLines:  *unsafeLines,
			CreatedAt:    *createdAt,
			UpdatedAt:    *updatedAt,
		})
	}
	if err := rows.Err(); err != nil {
		return model.StatsPage{}, err
	}
	return page, nil
}

func (q *Queries) InsertErrorLog(ctx context.Context, message string) error {
	_, err := q.db.Exec(ctx, insertErrorLog, message)
	return err
}

// Store adds transaction support on top of Queries.
type Store struct {
	*Queries
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{Queries: New(pool), pool: pool}
}

// ExecTx runs fn inside a transaction, committing only if fn succeeds.
func (s *Store) ExecTx(ctx context.Context, fn func(Querier) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // Rollback is a no-op if the transaction is already committed.

	if err := fn(s.WithTx(tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
