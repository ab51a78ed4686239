package database

const listProviders = `-- name: ListProviders :many
SELECT id, url FROM providers ORDER BY id`

const getProviderByID = `-- name: GetProviderByID :many
SELECT id, url FROM providers WHERE id = $1`

const upsertProvider = `-- name: UpsertProvider :one
INSERT INTO providers (url) VALUES ($1)
ON CONFLICT (url) DO UPDATE SET url = EXCLUDED.url
RETURNING id`

const listRepositories = `-- name: ListRepositories :many
SELECT id, provider_id, namespace, name FROM repositories ORDER BY id`

const getRepositoryByID = `-- name: GetRepositoryByID :many
SELECT id, provider_id, namespace, name FROM repositories WHERE id = $1`

const listRepositoriesWithURL = `-- name: ListRepositoriesWithURL :many
SELECT r.id, r.namespace, r.name, p.url
FROM repositories AS r
INNER JOIN providers AS p ON p.id = r.provider_id
ORDER BY r.id`

const createRepository = `-- name: CreateRepository :execrows
INSERT INTO repositories (provider_id, namespace, name) VALUES ($1, $2, $3)
ON CONFLICT (name) DO NOTHING`

const reconcileSnapshot = `-- name: ReconcileSnapshot :exec
INSERT INTO repository_stats (repository_id, code_lines, unsafe_lines)
VALUES ($1, $2, $3)
ON CONFLICT (repository_id, unsafe_lines)
DO UPDATE SET code_lines = EXCLUDED.code_lines, updated_at = NOW()`

const getSnapshotsByRepositoryID = `-- name: GetSnapshotsByRepositoryID :many
SELECT repository_id
     , code_lines
     , unsafe_lines
     , COALESCE(CAST(created_at AS TEXT), '') AS created_at
     , COALESCE(CAST(updated_at AS TEXT), '') AS updated_at
FROM repository_stats
WHERE repository_id = $1
ORDER BY created_at DESC, id DESC`

// listCurrentStats keeps only the latest snapshot per repository. The count
// CTE is left-joined to the page so the filtered total is returned even when
// the requested page is past the end; such a row has NULL page columns.
const listCurrentStats = `-- name: ListCurrentStats :many
WITH ranked AS (
    SELECT ROW_NUMBER() OVER (PARTITION BY rs.repository_id ORDER BY rs.created_at DESC, rs.id DESC) AS rank_order
         , rs.repository_id
         , r.name
         , p.url || '/' || r.namespace || '/' || r.name AS url
         , rs.code_lines
         , rs.unsafe_lines
         , COALESCE(CAST(rs.created_at AS TEXT), '') AS created_at
         , COALESCE(CAST(rs.updated_at AS TEXT), '') AS updated_at
    FROM repository_stats AS rs
    INNER JOIN repositories AS r ON r.id = rs.repository_id
    INNER JOIN providers AS p ON p.id = r.provider_id
    WHERE $1::text = '' OR strpos(lower(r.name), lower($1::text)) > 0
), current_stats AS (
    SELECT * FROM ranked WHERE rank_order = 1
), counted AS (
    SELECT COUNT(*) AS total FROM current_stats
)
SELECT page.repository_id
     , page.name
     , page.url
     , page.code_lines
     , page.unsafe_lines
     , page.created_at
     , page.updated_at
     , counted.total
FROM counted
LEFT JOIN LATERAL (
    SELECT * FROM current_stats ORDER BY name, repository_id LIMIT $2 OFFSET $3
) AS page ON TRUE
ORDER BY page.name, page.repository_id`

const insertErrorLog = `-- name: InsertErrorLog :exec
INSERT INTO error_log (error) VALUES ($1)`
