package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/italolelis/redump_downloader/internal/storage"
)

const updatedAtKey = "catalog_updated_at"

type CatalogRepository struct {
	db *sql.DB
}

func NewCatalogRepository(dbConn *sql.DB) *CatalogRepository {
	return &CatalogRepository{db: dbConn}
}

// ReplaceEntries rewrites the catalog cache wholesale and stamps the refresh
// time. A refresh that fails mid-way leaves the previous cache untouched.
func (r *CatalogRepository) ReplaceEntries(records []storage.CatalogRecord) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM catalog_entries`); err != nil {
		return fmt.Errorf("failed to clear catalog cache: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO catalog_entries (title, source_url, declared_size, position) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.Exec(rec.Title, rec.SourceURL, rec.DeclaredSize, rec.Position); err != nil {
			return fmt.Errorf("failed to insert catalog entry %q: %w", rec.Title, err)
		}
	}

	_, err = tx.Exec(`INSERT INTO catalog_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		updatedAtKey, time.Now().Format(time.RFC3339))
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (r *CatalogRepository) Entries() ([]storage.CatalogRecord, error) {
	rows, err := r.db.Query(`SELECT title, source_url, declared_size, position FROM catalog_entries ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []storage.CatalogRecord

	for rows.Next() {
		var rec storage.CatalogRecord

		if err := rows.Scan(&rec.Title, &rec.SourceURL, &rec.DeclaredSize, &rec.Position); err != nil {
			return nil, err
		}

		records = append(records, rec)
	}

	return records, rows.Err()
}

// UpdatedAt reports when the cache was last refreshed. Returns
// storage.ErrNotFound when the cache has never been written.
func (r *CatalogRepository) UpdatedAt() (time.Time, error) {
	var value string

	err := r.db.QueryRow(`SELECT value FROM catalog_meta WHERE key = ?`, updatedAtKey).Scan(&value)
	if err == sql.ErrNoRows {
		return time.Time{}, storage.ErrNotFound
	}

	if err != nil {
		return time.Time{}, err
	}

	return time.Parse(time.RFC3339, value)
}
