// internal/api/handler.go
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"unsafe-stats/internal/catalog"
	"unsafe-stats/internal/database"
	"unsafe-stats/internal/stats"
)

const (
	defaultPageSize    = 50
	maxPageSize        = 1000
	defaultImportLimit = 30
	readTimeout        = 60 * time.Second
)

// StatsService serves cached stats pages.
type StatsService interface {
	GetPage(ctx context.Context, name string, pageSize, pageIndex int) ([]byte, error)
	Flush(ctx context.Context) error
}

// Refresher runs the refresh pipeline.
type Refresher interface {
	RefreshAll(ctx context.Context) error
}

// Importer adds repositories to the catalog.
type Importer interface {
	ImportFile(ctx context.Context, path string) (catalog.ImportResult, error)
	ImportGitHub(ctx context.Context, query string, limit int) (catalog.ImportResult, error)
}

// ErrorLogger records failures in the persistent error log.
type ErrorLogger interface {
	Log(ctx context.Context, msg string, args ...any)
}

// Dependencies are the collaborators the API is built from.
type Dependencies struct {
	DB             database.Querier
	Stats          StatsService
	Refresher      Refresher
	Importer       Importer
	ErrLog         ErrorLogger
	Logger         *slog.Logger
	CatalogFile    string
	AllowedOrigins []string
}

// Handler is the container for API dependencies.
type Handler struct {
	Dependencies
}

// NewRouter creates and configures a new chi router with all API routes.
func NewRouter(deps Dependencies) http.Handler {
	h := &Handler{Dependencies: deps}

	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger) // Chi's default logger
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)
	r.Use(corsHandler(deps.AllowedOrigins))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health_check", h.healthCheck)
		r.Post("/cache/flush", h.flushCache)

		r.Route("/v1", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(readTimeout))
				r.Get("/providers", h.listProviders)
				r.Get("/providers/{id}", h.getProvider)
				r.Get("/repositories", h.listRepositories)
				r.Get("/repositories/{id}", h.getRepository)
				r.Get("/repository-stats", h.listStats)
				r.Get("/repository-stats/{id}", h.getStatsHistory)
			})

			// Long running batch operations.
			r.Post("/repositories/import", h.importCatalog)
			r.Post("/repositories/import/github", h.importGitHub)
			r.Post("/repository-stats/update", h.refreshStats)
		})
	})

	return otelhttp.NewHandler(r, "unsafe-stats-api")
}

// healthCheck is a simple health endpoint.
func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// GET /api/v1/providers
func (h *Handler) listProviders(w http.ResponseWriter, r *http.Request) {
	providers, err := h.DB.ListProviders(r.Context())
	if err != nil {
		h.internalError(w, r, "Failed to list providers", err)
		return
	}
	respondWithJSON(w, http.StatusOK, providers)
}

// GET /api/v1/providers/{id}
func (h *Handler) getProvider(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	providers, err := h.DB.GetProviderByID(r.Context(), id)
	if err != nil {
		h.internalError(w, r, "Failed to get provider", err)
		return
	}
	respondWithJSON(w, http.StatusOK, providers)
}

// GET /api/v1/repositories
func (h *Handler) listRepositories(w http.ResponseWriter, r *http.Request) {
	repos, err := h.DB.ListRepositories(r.Context())
	if err != nil {
		h.internalError(w, r, "Failed to list repositories", err)
		return
	}
	respondWithJSON(w, http.StatusOK, repos)
}

// GET /api/v1/repositories/{id}
func (h *Handler) getRepository(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	repos, err := h.DB.GetRepositoryByID(r.Context(), id)
	if err != nil {
		h.internalError(w, r, "Failed to get repository", err)
		return
	}
	respondWithJSON(w, http.StatusOK, repos)
}

// listStats serves the current stats of every repository, one page at a time.
// GET /api/v1/repository-stats?page=N&limit=N&name=S
func (h *Handler) listStats(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	page, err := intParam(query.Get("page"), 1)
	if err != nil || page < 1 {
		respondWithError(w, http.StatusBadRequest, "Invalid 'page' parameter. Must be a positive integer.")
		return
	}
	limit, err := intParam(query.Get("limit"), defaultPageSize)
	if err != nil || limit < 1 || limit > maxPageSize {
		respondWithError(w, http.StatusBadRequest, "Invalid 'limit' parameter. Must be an integer between 1 and 1000.")
		return
	}

	body, err := h.Stats.GetPage(r.Context(), query.Get("name"), limit, page-1)
	if err != nil {
		if errors.Is(err, stats.ErrInvalidPage) {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.internalError(w, r, "Failed to get repository stats", err)
		return
	}
	respondWithRawJSON(w, http.StatusOK, body)
}

// getStatsHistory returns every snapshot recorded for a repository, newest first.
// GET /api/v1/repository-stats/{id}
func (h *Handler) getStatsHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	snapshots, err := h.DB.GetSnapshotsByRepositoryID(r.Context(), id)
	if err != nil {
		h.internalError(w, r, "Failed to get repository stats history", err)
		return
	}
	respondWithJSON(w, http.StatusOK, snapshots)
}

// refreshStats runs the refresh pipeline to completion, even if the client
// goes away. Per-repository failures do not fail the request.
// POST /api/v1/repository-stats/update
func (h *Handler) refreshStats(w http.ResponseWriter, r *http.Request) {
	if err := h.Refresher.RefreshAll(context.WithoutCancel(r.Context())); err != nil {
		h.internalError(w, r, "Failed to refresh repository stats", err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// POST /api/cache/flush
func (h *Handler) flushCache(w http.ResponseWriter, r *http.Request) {
	if err := h.Stats.Flush(r.Context()); err != nil {
		h.internalError(w, r, "Failed to flush cache", err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// POST /api/v1/repositories/import
func (h *Handler) importCatalog(w http.ResponseWriter, r *http.Request) {
	res, err := h.Importer.ImportFile(context.WithoutCancel(r.Context()), h.CatalogFile)
	if err != nil {
		h.internalError(w, r, "Failed to import catalog", err)
		return
	}
	respondWithJSON(w, http.StatusOK, res)
}

// POST /api/v1/repositories/import/github?q=S&limit=N
func (h *Handler) importGitHub(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, err := intParam(query.Get("limit"), defaultImportLimit)
	if err != nil || limit < 1 || limit > maxPageSize {
		respondWithError(w, http.StatusBadRequest, "Invalid 'limit' parameter. Must be an integer between 1 and 1000.")
		return
	}

	res, err := h.Importer.ImportGitHub(context.WithoutCancel(r.Context()), query.Get("q"), limit)
	if err != nil {
		h.internalError(w, r, "Failed to import GitHub repositories", err)
		return
	}
	respondWithJSON(w, http.StatusOK, res)
}

// internalError records err in the error log and answers with a 500.
func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.ErrLog.Log(r.Context(), "%s (%s %s): %v", msg, r.Method, r.URL.Path, err)
	respondWithError(w, http.StatusInternalServerError, "Internal server error")
}

func parseID(w http.ResponseWriter, r *http.Request) (int32, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 32)
	if err != nil || id < 1 {
		respondWithError(w, http.StatusBadRequest, "Invalid 'id' parameter. Must be a positive integer.")
		return 0, false
	}
	return int32(id), true
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
