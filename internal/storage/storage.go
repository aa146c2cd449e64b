package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a cache lookup has no matching record.
var ErrNotFound = errors.New("storage: record not found")

// CatalogRecord is one cached catalog entry. Position preserves the
// upstream listing order so search results stay stable across restarts.
type CatalogRecord struct {
	Title        string
	SourceURL    string
	DeclaredSize int64 // bytes, 0 when the listing declared no size
	Position     int
}

// KeyRecord is a resolved disc key, cached by the original catalog title.
type KeyRecord struct {
	Title      string
	MatchTitle string // the key-listing title the resolver matched against
	Payload    []byte
	SourceURL  string
	ResolvedAt time.Time
}

// CatalogRepository persists the scraped catalog. The cache is rewritten
// wholesale on refresh.
type CatalogRepository interface {
	ReplaceEntries(records []CatalogRecord) error
	Entries() ([]CatalogRecord, error)
	UpdatedAt() (time.Time, error)
}

// KeyRepository persists resolved keys incrementally.
type KeyRepository interface {
	Key(title string) (*KeyRecord, error)
	SaveKey(record *KeyRecord) error
}
