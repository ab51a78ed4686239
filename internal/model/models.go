// internal/model/models.go
package model

// Provider is a hosting origin (e.g. https://github.com) for tracked repositories.
type Provider struct {
	ID  int32  `json:"id"`
	URL string `json:"url"`
}

// Repository is a tracked source-code project.
type Repository struct {
	ID         int32  `json:"id"`
	ProviderID int32  `json:"provider_id"`
	Namespace  string `json:"namespace"`
	Name       string `json:"name"`
}

// RepositoryWithURL carries the provider URL instead of the provider id.
// It is what the refresh pipeline works from.
type RepositoryWithURL struct {
	ID          int32
	Namespace   string
	Name        string
	ProviderURL string
}

// CloneURL derives the clone URL as provider.url/namespace/name.
func (r RepositoryWithURL) CloneURL() string {
	return r.ProviderURL + "/" + r.Namespace + "/" + r.Name
}

// Snapshot is one dedup'd observation of a repository's line counts.
// Timestamps are rendered as text, empty when null.
type Snapshot struct {
	RepositoryID int32  `json:"project_id"`
	CodeLines    int32  `json:"code_lines"`
	UnsafeLines  int32  `json:"unsafe_lines"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// StatsItem is the current snapshot of a repository as surfaced in listings.
type StatsItem struct {
	RepositoryID int32  `json:"project_id"`
	Name         string `json:"name"`
	URL          string `json:"url"`
	CodeLines    int32  `json:"code_lines"`
	UnsafeLines  int32  `json:"unsafe_lines"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// StatsPage is one page of the current-stats listing plus the filtered total.
type StatsPage struct {
	Items []StatsItem `json:"projectStats"`
	Total int64       `json:"meta"`
}

// Metrics is the output of a single extraction.
type Metrics struct {
	CodeLines   int
	UnsafeLines int
}
