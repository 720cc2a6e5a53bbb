// Package store persists recent-files and settings across process
// restarts -- the desktop shell's recent-files list reads this, though
// the shell itself (and its consumer-side behavior) is an excluded
// collaborator; this package only owns the storage contract.
//
// Grounded on original_source/core/src/storage.rs (rusqlite-backed):
// same schema, same upsert/order-by semantics. The teacher has no
// equivalent (it persists UI settings as a YAML file,
// app/settings/settings.go); modernc.org/sqlite is the pure-Go, cgo-free
// driver substituted for rusqlite so this module stays cgo-free like the
// rest of the pack.
package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"runtime"

	_ "modernc.org/sqlite"

	"github.com/sec-view/datalens/internal/coreerr"
)

const schema = `
CREATE TABLE IF NOT EXISTS recent_files (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	path TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL,
	last_opened_at INTEGER NOT NULL,
	exists_flag INTEGER NOT NULL,
	pinned INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value_json TEXT NOT NULL
);
`

// RecentFile is one row of the recent-files list.
type RecentFile struct {
	Path         string
	DisplayName  string
	LastOpenedAt int64
	Exists       bool
	Pinned       bool
}

// Store owns the sqlite connection backing recent-files and settings.
type Store struct {
	db *sql.DB
}

// DefaultPath mirrors original_source's default_sqlite_path:
// $HOME/.datasets-helper/storage.sqlite ($USERPROFILE% on Windows, "."
// as a last resort if neither is set).
func DefaultPath() string {
	home := os.Getenv("HOME")
	if runtime.GOOS == "windows" {
		home = os.Getenv("USERPROFILE")
	}
	if home == "" {
		home = "."
	}
	return filepath.Join(home, ".datasets-helper", "storage.sqlite")
}

// Open creates the parent directory if needed, opens (or creates) the
// sqlite database at path, and applies the schema migration.
func Open(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, coreerr.Storagef(err, "creating storage directory for %s", path)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, coreerr.Storagef(err, "opening storage database %s", path)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, coreerr.Storagef(err, "migrating storage database %s", path)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// TouchRecent upserts a recent-file entry. pinned, when non-nil, updates
// the pinned flag; when nil the existing pinned value (or its default of
// false for a brand new row) is left untouched.
func (s *Store) TouchRecent(path, displayName string, lastOpenedAtMs int64, existsFlag bool, pinned *bool) error {
	pinnedVal := 0
	if pinned != nil && *pinned {
		pinnedVal = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO recent_files (path, display_name, last_opened_at, exists_flag, pinned)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			display_name = excluded.display_name,
			last_opened_at = excluded.last_opened_at,
			exists_flag = excluded.exists_flag,
			pinned = CASE WHEN ? THEN excluded.pinned ELSE recent_files.pinned END
	`, path, displayName, lastOpenedAtMs, boolToInt(existsFlag), pinnedVal, pinned != nil)
	if err != nil {
		return coreerr.Storagef(err, "touching recent file %s", path)
	}
	return nil
}

// ListRecent returns up to limit recent files, pinned first, then most
// recently opened first.
func (s *Store) ListRecent(limit int) ([]RecentFile, error) {
	rows, err := s.db.Query(`
		SELECT path, display_name, last_opened_at, exists_flag, pinned
		FROM recent_files
		ORDER BY pinned DESC, last_opened_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, coreerr.Storagef(err, "listing recent files")
	}
	defer rows.Close()

	var out []RecentFile
	for rows.Next() {
		var rf RecentFile
		var existsFlag, pinned int
		if err := rows.Scan(&rf.Path, &rf.DisplayName, &rf.LastOpenedAt, &existsFlag, &pinned); err != nil {
			return nil, coreerr.Storagef(err, "scanning recent file row")
		}
		rf.Exists = existsFlag != 0
		rf.Pinned = pinned != 0
		out = append(out, rf)
	}
	if err := rows.Err(); err != nil {
		return nil, coreerr.Storagef(err, "iterating recent files")
	}
	return out, nil
}

// SetSettingJSON upserts a single settings key with a raw JSON value.
func (s *Store) SetSettingJSON(key, valueJSON string) error {
	_, err := s.db.Exec(`
		INSERT INTO settings (key, value_json) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value_json = excluded.value_json
	`, key, valueJSON)
	if err != nil {
		return coreerr.Storagef(err, "setting %s", key)
	}
	return nil
}

// GetSettingJSON returns the raw JSON value for key, and ok=false if unset.
func (s *Store) GetSettingJSON(key string) (value string, ok bool, err error) {
	row := s.db.QueryRow(`SELECT value_json FROM settings WHERE key = ?`, key)
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, coreerr.Storagef(err, "getting setting %s", key)
	}
	return value, true, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
