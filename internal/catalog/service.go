package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/italolelis/redump_downloader/internal/logctx"
	"github.com/italolelis/redump_downloader/internal/storage"
)

// ErrCatalogUnavailable is returned when the listing cannot be fetched and
// no usable cache exists.
var ErrCatalogUnavailable = errors.New("catalog: listing unavailable")

// Fetcher produces the raw listing entries.
type Fetcher interface {
	FetchEntries(ctx context.Context) ([]Entry, error)
}

// Service loads the catalog index, preferring a fresh fetch but falling back
// to the persistent cache when the upstream is unreachable.
type Service struct {
	fetcher Fetcher
	repo    storage.CatalogRepository
	ttl     time.Duration
}

func NewService(fetcher Fetcher, repo storage.CatalogRepository, ttl time.Duration) *Service {
	return &Service{
		fetcher: fetcher,
		repo:    repo,
		ttl:     ttl,
	}
}

// Load builds the index. A cache younger than the TTL is served without any
// network access; otherwise the listing is re-fetched and the cache replaced.
// A failed fetch falls back to the cache (logging its staleness) and only
// fails with ErrCatalogUnavailable when no cache exists either.
func (s *Service) Load(ctx context.Context) (*Index, error) {
	logger := logctx.LoggerFromContext(ctx)

	cached, updatedAt, cacheErr := s.cached()

	if cacheErr == nil && time.Since(updatedAt) <= s.ttl {
		logger.Info("loaded catalog from cache", "entry_count", len(cached), "updated_at", updatedAt)

		return NewIndex(cached), nil
	}

	index, fetchErr := s.Refresh(ctx)
	if fetchErr == nil {
		return index, nil
	}

	if cacheErr == nil {
		logger.Warn("catalog fetch failed, serving stale cache",
			"err", fetchErr,
			"cache_age", time.Since(updatedAt).String(),
			"entry_count", len(cached),
		)

		return NewIndex(cached), nil
	}

	return nil, fmt.Errorf("%w: %w", ErrCatalogUnavailable, fetchErr)
}

// Refresh re-fetches the listing and replaces the cache wholesale,
// invalidating previous entries.
func (s *Service) Refresh(ctx context.Context) (*Index, error) {
	entries, err := s.fetcher.FetchEntries(ctx)
	if err != nil {
		return nil, err
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("listing parsed to zero entries")
	}

	records := make([]storage.CatalogRecord, len(entries))
	for i, entry := range entries {
		records[i] = storage.CatalogRecord{
			Title:        entry.Title,
			SourceURL:    entry.SourceURL,
			DeclaredSize: entry.DeclaredSize,
			Position:     i,
		}
	}

	if err := s.repo.ReplaceEntries(records); err != nil {
		logctx.LoggerFromContext(ctx).Error("failed to persist catalog cache", "err", err)
	}

	return NewIndex(entries), nil
}

func (s *Service) cached() ([]Entry, time.Time, error) {
	updatedAt, err := s.repo.UpdatedAt()
	if err != nil {
		return nil, time.Time{}, err
	}

	records, err := s.repo.Entries()
	if err != nil {
		return nil, time.Time{}, err
	}

	if len(records) == 0 {
		return nil, time.Time{}, storage.ErrNotFound
	}

	entries := make([]Entry, len(records))
	for i, rec := range records {
		entries[i] = Entry{
			Title:        rec.Title,
			SourceURL:    rec.SourceURL,
			DeclaredSize: rec.DeclaredSize,
		}
	}

	return entries, updatedAt, nil
}
