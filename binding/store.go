package binding

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zeebo/xxh3"
	_ "modernc.org/sqlite"
)

// ErrFileNotFound indicates the store has no record of a path.
var ErrFileNotFound = errors.New("generated file not found")

// FileRecord is the last recorded generation of an output file.
type FileRecord struct {
	Path    string
	Hash    uint64
	RunID   string
	Updated time.Time
}

// Store remembers the content hash of every generated file so unchanged
// output is not rewritten between runs.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// OpenStore opens or creates the sqlite store at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set busy timeout for concurrent generators
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS files (
		path TEXT PRIMARY KEY,
		hash INTEGER NOT NULL,
		run_id TEXT NOT NULL,
		updated INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// HashContent is the content hash recorded for generated files.
func HashContent(data []byte) uint64 {
	return xxh3.Hash(data)
}

// Record stores the hash of the content written to path.
func (s *Store) Record(path string, hash uint64, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO files (path, hash, run_id, updated) VALUES (?, ?, ?, ?)",
		path, int64(hash), runID, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("recording %s: %w", path, err)
	}
	return nil
}

// Lookup returns the record of path.
func (s *Store) Lookup(path string) (*FileRecord, error) {
	var (
		hash    int64
		updated int64
		rec     = FileRecord{Path: path}
	)
	err := s.db.QueryRow("SELECT hash, run_id, updated FROM files WHERE path = ?", path).
		Scan(&hash, &rec.RunID, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("querying %s: %w", path, err)
	}
	rec.Hash = uint64(hash)
	rec.Updated = time.Unix(updated, 0)
	return &rec, nil
}

// Unchanged reports whether path was last recorded with the same content hash.
func (s *Store) Unchanged(path string, hash uint64) bool {
	rec, err := s.Lookup(path)
	return err == nil && rec.Hash == hash
}

// Forget removes the record of path.
func (s *Store) Forget(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM files WHERE path = ?", path); err != nil {
		return fmt.Errorf("deleting %s: %w", path, err)
	}
	return nil
}

// Paths lists every recorded path in order.
func (s *Store) Paths() ([]string, error) {
	rows, err := s.db.Query("SELECT path FROM files ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scanning path: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}
