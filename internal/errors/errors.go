// internal/errors/errors.go
package errors

import "fmt"

// ErrInvalidCatalogLine is returned when a catalog line is not in 'scheme//host/namespace/name' format.
type ErrInvalidCatalogLine struct {
	Line string
}

func (e *ErrInvalidCatalogLine) Error() string {
	return fmt.Sprintf("invalid catalog line: %q, expected 'scheme//host/namespace/name'", e.Line)
}

// ErrUnsafeRepoKey is returned when a repository key cannot be used as a directory name.
type ErrUnsafeRepoKey struct {
	Key string
}

func (e *ErrUnsafeRepoKey) Error() string {
	return fmt.Sprintf("repository key %q is not filesystem-safe", e.Key)
}

// ErrExtractorOutput is returned when the line counter output cannot be decoded.
type ErrExtractorOutput struct {
	Output string
	Err    error
}

func (e *ErrExtractorOutput) Error() string {
	return fmt.Sprintf("cannot parse line counter output %q: %v", e.Output, e.Err)
}

func (e *ErrExtractorOutput) Unwrap() error {
	return e.Err
}
