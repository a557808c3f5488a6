// Package registry remembers which artifacts each notebook has produced so
// stale output can be removed when a notebook is renamed, re-slugged or
// deleted.
package registry

import "github.com/starford/nbhugo/internal/models"

// Registry maps notebook paths to their rendered artifacts. Implementations
// are safe for concurrent use.
type Registry interface {
	// Record stores a, replacing an existing entry for the same notebook and
	// markdown path and appending otherwise.
	Record(a models.Artifact) error
	// Lookup returns the artifacts recorded for notebook, oldest first.
	Lookup(notebook string) ([]models.Artifact, error)
	// Forget drops every artifact recorded for notebook.
	Forget(notebook string) error
	// All returns every recorded artifact ordered by notebook path.
	All() ([]models.Artifact, error)
	Close() error
}

// Open returns an in-memory registry for an empty dsn and a SQLite-backed one
// otherwise.
func Open(dsn string) (Registry, error) {
	if dsn == "" {
		return NewMemory(), nil
	}
	return OpenSQLite(dsn)
}
