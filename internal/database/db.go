// internal/database/db.go
package database

import (
	"database/sql"
	"encoding/json"
	"time"

	_ "modernc.org/sqlite"
)

// Database wraps the SQLite database connection
type Database struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at the given path
func Open(path string) (*Database, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}

	d := &Database{db: db}
	if err := d.init(); err != nil {
		db.Close()
		return nil, err
	}

	return d, nil
}

// init creates the database schema
func (d *Database) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS current_version_pointers (
		project_id TEXT PRIMARY KEY,
		version_id TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS project_cache (
		id TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := d.db.Exec(schema)
	return err
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// SetCurrentVersion records which version a project's workspace currently
// shows. A project with no pointer is implicitly at its latest version.
func (d *Database) SetCurrentVersion(projectID, versionID string) error {
	_, err := d.db.Exec(`
		INSERT OR REPLACE INTO current_version_pointers (project_id, version_id, updated_at)
		VALUES (?, ?, ?)`, projectID, versionID, time.Now())
	return err
}

// GetCurrentVersion returns the pointed-at version id for a project, or ""
// when no pointer is set.
func (d *Database) GetCurrentVersion(projectID string) (string, error) {
	var versionID string
	err := d.db.QueryRow(
		"SELECT version_id FROM current_version_pointers WHERE project_id = ?", projectID).Scan(&versionID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return versionID, nil
}

// ClearCurrentVersion removes a project's pointer, returning it to the
// implicit latest-version state.
func (d *Database) ClearCurrentVersion(projectID string) error {
	_, err := d.db.Exec("DELETE FROM current_version_pointers WHERE project_id = ?", projectID)
	return err
}

// ResetPointers drops all version pointers. Run at daemon startup so stale
// pointers from a previous run never mask newly generated versions.
func (d *Database) ResetPointers() error {
	_, err := d.db.Exec("DELETE FROM current_version_pointers")
	return err
}

// SaveSetting saves or updates a setting
func (d *Database) SaveSetting(key, value string) error {
	_, err := d.db.Exec(`
		INSERT OR REPLACE INTO settings (key, value, updated_at)
		VALUES (?, ?, ?)`, key, value, time.Now())
	return err
}

// GetSetting retrieves a setting by key
func (d *Database) GetSetting(key string) (string, error) {
	var value string
	err := d.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	return value, err
}

// SaveProjectCache stores a project summary for offline listing.
func (d *Database) SaveProjectCache(entry *ProjectCacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	_, err = d.db.Exec(`
		INSERT OR REPLACE INTO project_cache (id, data, updated_at)
		VALUES (?, ?, ?)`, entry.ID, string(data), time.Now())
	return err
}

// GetProjectCache retrieves a cached project summary by id.
func (d *Database) GetProjectCache(id string) (*ProjectCacheEntry, error) {
	var data string
	err := d.db.QueryRow("SELECT data FROM project_cache WHERE id = ?", id).Scan(&data)
	if err != nil {
		return nil, err
	}

	entry := &ProjectCacheEntry{}
	if err := json.Unmarshal([]byte(data), entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// ListProjectCache returns all cached project summaries, most recently
// updated first.
func (d *Database) ListProjectCache() ([]*ProjectCacheEntry, error) {
	rows, err := d.db.Query("SELECT data FROM project_cache ORDER BY updated_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*ProjectCacheEntry
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		entry := &ProjectCacheEntry{}
		if err := json.Unmarshal([]byte(data), entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// DeleteProjectCache removes a cached project summary.
func (d *Database) DeleteProjectCache(id string) error {
	_, err := d.db.Exec("DELETE FROM project_cache WHERE id = ?", id)
	return err
}
