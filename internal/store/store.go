// Package store persists member fingerprints across invocations in a
// sqlite database, keyed by (revision, path, content-hash). Repeated CI
// runs over unchanged revisions skip refingerprinting. The cache never
// changes selection output: every failure degrades to recomputation.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure-Go sqlite driver

	"tia/internal/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS member_fingerprints (
	revision     TEXT NOT NULL,
	path         TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	member       TEXT NOT NULL,
	fingerprint  TEXT NOT NULL,
	PRIMARY KEY (revision, path, content_hash, member)
);
`

// Store is a persistent fingerprint cache.
type Store struct {
	db     *sql.DB
	logger *logging.Logger
}

// Open opens (creating if necessary) the cache database at path.
func Open(path string, logger *logging.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set journal mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the cached member fingerprint map for a file revision, or
// ok=false on a miss. Errors degrade to a miss.
func (s *Store) Get(revision, path, contentHash string) (map[string]string, bool) {
	rows, err := s.db.Query(`
		SELECT member, fingerprint
		FROM member_fingerprints
		WHERE revision = ? AND path = ? AND content_hash = ?
	`, revision, path, contentHash)
	if err != nil {
		s.logger.Warn("fingerprint cache read failed", map[string]interface{}{
			"path": path, "error": err.Error(),
		})
		return nil, false
	}
	defer rows.Close() //nolint:errcheck // Best effort cleanup

	fps := map[string]string{}
	for rows.Next() {
		var member, fp string
		if err := rows.Scan(&member, &fp); err != nil {
			return nil, false
		}
		fps[member] = fp
	}
	if err := rows.Err(); err != nil || len(fps) == 0 {
		return nil, false
	}
	return fps, true
}

// Put stores a file revision's member fingerprint map. Errors are logged
// and swallowed; the cache is advisory.
func (s *Store) Put(revision, path, contentHash string, fps map[string]string) {
	if len(fps) == 0 {
		return
	}

	tx, err := s.db.Begin()
	if err != nil {
		s.logger.Warn("fingerprint cache write failed", map[string]interface{}{
			"path": path, "error": err.Error(),
		})
		return
	}

	for member, fp := range fps {
		if _, err := tx.Exec(`
			INSERT OR REPLACE INTO member_fingerprints
				(revision, path, content_hash, member, fingerprint)
			VALUES (?, ?, ?, ?, ?)
		`, revision, path, contentHash, member, fp); err != nil {
			_ = tx.Rollback()
			s.logger.Warn("fingerprint cache write failed", map[string]interface{}{
				"path": path, "error": err.Error(),
			})
			return
		}
	}

	if err := tx.Commit(); err != nil {
		s.logger.Warn("fingerprint cache commit failed", map[string]interface{}{
			"path": path, "error": err.Error(),
		})
	}
}

// Prune deletes every entry whose revision is not in keep. Bounds cache
// growth across long-lived checkouts.
func (s *Store) Prune(keep []string) error {
	if len(keep) == 0 {
		_, err := s.db.Exec(`DELETE FROM member_fingerprints`)
		return err
	}

	query := `DELETE FROM member_fingerprints WHERE revision NOT IN (?` +
		repeat(",?", len(keep)-1) + `)`
	args := make([]interface{}, len(keep))
	for i, rev := range keep {
		args[i] = rev
	}
	_, err := s.db.Exec(query, args...)
	return err
}

func repeat(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}
