package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"unsafe-stats/internal/cache"
)

const keyPrefix = "repository-stats"

// ErrorLogger records failures that must not fail the caller.
type ErrorLogger interface {
	Log(ctx context.Context, msg string, args ...any)
}

// Service is the cache-aside front of a Lister.
type Service struct {
	reader Lister
	cache  cache.Cache
	errlog ErrorLogger
	logger *slog.Logger
}

func NewService(reader Lister, c cache.Cache, errlog ErrorLogger, logger *slog.Logger) *Service {
	return &Service{reader: reader, cache: c, errlog: errlog, logger: logger}
}

// PageKey is the cache key of a page. The name goes last so that no
// delimiter it may contain can make two distinct inputs collide.
func PageKey(name string, pageSize, pageIndex int) string {
	return fmt.Sprintf("%s:%d:%d:%s", keyPrefix, pageIndex, pageSize, name)
}

// GetPage returns the serialized page, from the cache when present. On a miss
// the page is computed, stored and returned; a failed store is logged only.
func (s *Service) GetPage(ctx context.Context, name string, pageSize, pageIndex int) ([]byte, error) {
	key := PageKey(name, pageSize, pageIndex)

	cached, err := s.cache.Get(ctx, key)
	switch {
	case err == nil:
		s.logger.Debug("Stats page served from cache", "key", key)
		return cached, nil
	case !errors.Is(err, cache.ErrMiss):
		s.logger.Warn("Cache read failed, computing page", "key", key, "error", err)
	}

	page, err := s.reader.List(ctx, name, pageSize, pageIndex)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(page)
	if err != nil {
		return nil, fmt.Errorf("encode stats page: %w", err)
	}
	if err := s.cache.Set(ctx, key, body); err != nil {
		s.errlog.Log(ctx, "stats.Service.GetPage failed to save %s to cache: %v", key, err)
	}
	return body, nil
}

// Flush drops every cached page.
func (s *Service) Flush(ctx context.Context) error {
	return s.cache.Flush(ctx)
}
