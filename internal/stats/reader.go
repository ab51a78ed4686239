// Package stats serves the current-metrics listing: one latest snapshot per
// repository, filtered, paginated and fronted by a cache-aside layer.
package stats

import (
	"context"
	"errors"
	"math"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"unsafe-stats/internal/database"
	"unsafe-stats/internal/model"
)

// ErrInvalidPage is returned for a non-positive page size or a negative page index.
var ErrInvalidPage = errors.New("page size must be positive and page index non-negative")

// Querier is the storage call the reader depends on.
type Querier interface {
	ListCurrentStats(ctx context.Context, arg database.ListCurrentStatsParams) (model.StatsPage, error)
}

// Lister returns one page of current stats.
type Lister interface {
	List(ctx context.Context, name string, pageSize, pageIndex int) (model.StatsPage, error)
}

// Reader is the uncached Lister backed by storage.
type Reader struct {
	db Querier
}

func NewReader(db Querier) *Reader {
	return &Reader{db: db}
}

// List returns the current snapshots of the repositories whose name contains
// name (case-insensitive, empty matches all), ordered by name, sliced to
// [pageIndex*pageSize, pageIndex*pageSize+pageSize). Total counts the whole
// filtered set.
func (r *Reader) List(ctx context.Context, name string, pageSize, pageIndex int) (model.StatsPage, error) {
	ctx, span := otel.Tracer("unsafe-stats/stats").Start(ctx, "Reader.List")
	span.SetAttributes(
		attribute.String("name", name),
		attribute.Int("page_size", pageSize),
		attribute.Int("page_index", pageIndex),
	)
	defer span.End()

	if pageSize <= 0 || pageSize > math.MaxInt32 || pageIndex < 0 {
		return model.StatsPage{}, ErrInvalidPage
	}
	page, err := r.db.ListCurrentStats(ctx, database.ListCurrentStatsParams{
		Name:   name,
		Limit:  int32(pageSize),
		Offset: pageOffset(pageSize, pageIndex),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return model.StatsPage{}, err
	}
	if page.Items == nil {
		page.Items = []model.StatsItem{}
	}
	return page, nil
}

// pageOffset is pageSize*pageIndex, saturated at math.MaxInt64 so that a huge
// page index reads past the end instead of wrapping negative.
func pageOffset(pageSize, pageIndex int) int64 {
	if int64(pageIndex) > math.MaxInt64/int64(pageSize) {
		return math.MaxInt64
	}
	return int64(pageSize) * int64(pageIndex)
}
