package sqlite

import (
	"database/sql"

	// Import the SQLite driver.
	_ "github.com/mattn/go-sqlite3"
)

// InitDB opens the SQLite database at path and creates the cache tables if
// they don't exist.
func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS catalog_entries (
		id INTEGER PRIMARY KEY,
		title TEXT,
		source_url TEXT,
		declared_size INTEGER,
		position INTEGER
	);
	CREATE TABLE IF NOT EXISTS catalog_meta (
		key TEXT PRIMARY KEY,
		value TEXT
	);
	CREATE TABLE IF NOT EXISTS disc_keys (
		id INTEGER PRIMARY KEY,
		title TEXT UNIQUE,
		match_title TEXT,
		payload BLOB,
		source_url TEXT,
		resolved_at DATETIME
	)`)

	if err != nil {
		db.Close()

		return nil, err
	}

	return db, nil
}
