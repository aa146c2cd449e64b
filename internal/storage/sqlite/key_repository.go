package sqlite

import (
	"database/sql"
	"time"

	"github.com/italolelis/redump_downloader/internal/storage"
)

type KeyRepository struct {
	db *sql.DB
}

func NewKeyRepository(dbConn *sql.DB) *KeyRepository {
	return &KeyRepository{db: dbConn}
}

// Key looks up a cached key by the original catalog title.
func (r *KeyRepository) Key(title string) (*storage.KeyRecord, error) {
	var (
		rec        storage.KeyRecord
		resolvedAt string
	)

	err := r.db.QueryRow(`SELECT title, match_title, payload, source_url, resolved_at FROM disc_keys WHERE title = ?`, title).
		Scan(&rec.Title, &rec.MatchTitle, &rec.Payload, &rec.SourceURL, &resolvedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}

	if err != nil {
		return nil, err
	}

	if t, err := time.Parse(time.RFC3339, resolvedAt); err == nil {
		rec.ResolvedAt = t
	}

	return &rec, nil
}

// SaveKey upserts a resolved key. Repeat resolutions for the same title
// overwrite the previous record.
func (r *KeyRepository) SaveKey(record *storage.KeyRecord) error {
	resolvedAt := record.ResolvedAt
	if resolvedAt.IsZero() {
		resolvedAt = time.Now()
	}

	_, err := r.db.Exec(`INSERT INTO disc_keys (title, match_title, payload, source_url, resolved_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(title) DO UPDATE SET
			match_title = excluded.match_title,
			payload = excluded.payload,
			source_url = excluded.source_url,
			resolved_at = excluded.resolved_at`,
		record.Title, record.MatchTitle, record.Payload, record.SourceURL, resolvedAt.Format(time.RFC3339))

	return err
}
