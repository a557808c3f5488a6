package registry

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/nbhugo/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS artifacts (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	notebook     TEXT NOT NULL,
	slug         TEXT NOT NULL DEFAULT '',
	markdown     TEXT NOT NULL,
	resource_dir TEXT NOT NULL DEFAULT '',
	resources    INTEGER NOT NULL DEFAULT 0,
	checksum     TEXT NOT NULL DEFAULT '',
	rendered_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(notebook, markdown)
);

CREATE INDEX IF NOT EXISTS idx_artifacts_notebook ON artifacts(notebook);
`

// SQLite persists the registry so stale output is still found after a
// restart.
type SQLite struct {
	conn *sql.DB
}

var _ Registry = (*SQLite)(nil)

// OpenSQLite opens (or creates) the database at dsn and applies the schema.
func OpenSQLite(dsn string) (*SQLite, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("registry: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("registry: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("registry: apply schema: %w", err)
	}
	return &SQLite{conn: conn}, nil
}

func (s *SQLite) Record(a models.Artifact) error {
	_, err := s.conn.Exec(`
		INSERT INTO artifacts (notebook, slug, markdown, resource_dir, resources, checksum, rendered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(notebook, markdown) DO UPDATE SET
			slug         = excluded.slug,
			resource_dir = excluded.resource_dir,
			resources    = excluded.resources,
			checksum     = excluded.checksum,
			rendered_at  = excluded.rendered_at
	`, a.Notebook, a.Slug, a.Markdown, a.ResourceDir, a.Resources, a.Checksum, a.RenderedAt.UTC())
	if err != nil {
		return fmt.Errorf("registry: record: %w", err)
	}
	return nil
}

func (s *SQLite) Lookup(notebook string) ([]models.Artifact, error) {
	return s.query(`WHERE notebook = ? ORDER BY id`, notebook)
}

func (s *SQLite) Forget(notebook string) error {
	if _, err := s.conn.Exec(`DELETE FROM artifacts WHERE notebook = ?`, notebook); err != nil {
		return fmt.Errorf("registry: forget: %w", err)
	}
	return nil
}

func (s *SQLite) All() ([]models.Artifact, error) {
	return s.query(`ORDER BY notebook, id`)
}

func (s *SQLite) Close() error {
	return s.conn.Close()
}

func (s *SQLite) query(where string, args ...any) ([]models.Artifact, error) {
	rows, err := s.conn.Query(`
		SELECT notebook, slug, markdown, resource_dir, resources, checksum, rendered_at
		FROM artifacts `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("registry: query: %w", err)
	}
	defer rows.Close()

	var out []models.Artifact
	for rows.Next() {
		var a models.Artifact
		if err := rows.Scan(&a.Notebook, &a.Slug, &a.Markdown, &a.ResourceDir, &a.Resources, &a.Checksum, &a.RenderedAt); err != nil {
			return nil, fmt.Errorf("registry: scan: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
