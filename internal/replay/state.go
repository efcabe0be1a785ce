package replay

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// StateDB tracks which recordings have been replayed to avoid re-sending.
type StateDB struct {
	db *sql.DB
}

// OpenStateDB opens (or creates) the SQLite state database at dir/state.db.
func OpenStateDB(dir string) (*StateDB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state dir %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "state.db"))
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS replayed_recordings (
		path        TEXT PRIMARY KEY,
		size        INTEGER NOT NULL,
		hash        TEXT NOT NULL,
		session_id  TEXT NOT NULL,
		reps        INTEGER NOT NULL,
		points      INTEGER NOT NULL,
		replayed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating state table: %w", err)
	}

	return &StateDB{db: db}, nil
}

// IsReplayed checks if a file has already been replayed with the same size and hash.
func (s *StateDB) IsReplayed(relPath string, size int64, hash string) (bool, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM replayed_recordings WHERE path = ? AND size = ? AND hash = ?`,
		relPath, size, hash,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking %s: %w", relPath, err)
	}
	return count > 0, nil
}

// MarkReplayed records that a file was replayed into sessionID.
func (s *StateDB) MarkReplayed(relPath string, size int64, hash string, sessionID uuid.UUID, reps, points int) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO replayed_recordings (path, size, hash, session_id, reps, points)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		relPath, size, hash, sessionID.String(), reps, points,
	)
	if err != nil {
		return fmt.Errorf("marking %s: %w", relPath, err)
	}
	return nil
}

// Close closes the state database.
func (s *StateDB) Close() error {
	return s.db.Close()
}

// HashFile computes the SHA-256 hash of a file.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
