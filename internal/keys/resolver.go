package keys

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/italolelis/redump_downloader/internal/catalog"
	"github.com/italolelis/redump_downloader/internal/logctx"
	"github.com/italolelis/redump_downloader/internal/storage"
)

// ErrKeyNotFound is returned when no key-listing entry clears the matching
// threshold for a title, or when the matched record holds no usable key.
// Conversion must never silently proceed without a key, so this is a
// distinguishable error rather than an empty payload.
var ErrKeyNotFound = errors.New("keys: no decryption key found")

const maxKeyPayloadSize = 1 << 20

// Resolver maps catalog titles to cached decryption keys, fetching and
// matching against the key listing on cache misses.
type Resolver struct {
	fetcher    catalog.Fetcher
	repo       storage.KeyRepository
	httpClient *http.Client

	listing []catalog.Entry
}

func NewResolver(fetcher catalog.Fetcher, repo storage.KeyRepository) *Resolver {
	return &Resolver{
		fetcher:    fetcher,
		repo:       repo,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Warm fetches the key listing ahead of time so the first resolution doesn't
// pay for it. Safe to skip; Find fetches lazily.
func (r *Resolver) Warm(ctx context.Context) error {
	_, err := r.keyListing(ctx)

	return err
}

// Find resolves the decryption key for a catalog title. Cached resolutions
// are served without network access, keyed by the original catalog title.
func (r *Resolver) Find(ctx context.Context, title string) (*storage.KeyRecord, error) {
	logger := logctx.LoggerFromContext(ctx).With("title", title)

	if record, err := r.repo.Key(title); err == nil {
		logger.Debug("key served from cache", "match_title", record.MatchTitle)

		return record, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to read key cache: %w", err)
	}

	listing, err := r.keyListing(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load key listing: %w", err)
	}

	candidates := make([]string, len(listing))
	for i, entry := range listing {
		candidates[i] = entry.Title
	}

	matched, ok := bestMatch(title, candidates)
	if !ok {
		return nil, fmt.Errorf("%w for %q", ErrKeyNotFound, title)
	}

	entry := listing[matched]
	logger.Info("matched key record", "match_title", entry.Title, "key_url", entry.SourceURL)

	payload, err := r.fetchPayload(ctx, entry.SourceURL)
	if err != nil {
		return nil, err
	}

	key, ok := parseKeyPayload(payload)
	if !ok {
		return nil, fmt.Errorf("%w: record %q holds no key material", ErrKeyNotFound, entry.Title)
	}

	record := &storage.KeyRecord{
		Title:      title,
		MatchTitle: entry.Title,
		Payload:    []byte(key),
		SourceURL:  entry.SourceURL,
		ResolvedAt: time.Now(),
	}

	if err := r.repo.SaveKey(record); err != nil {
		logger.Error("failed to persist key cache", "err", err)
	}

	return record, nil
}

func (r *Resolver) keyListing(ctx context.Context) ([]catalog.Entry, error) {
	if r.listing != nil {
		return r.listing, nil
	}

	listing, err := r.fetcher.FetchEntries(ctx)
	if err != nil {
		return nil, err
	}

	r.listing = listing

	return listing, nil
}

func (r *Resolver) fetchPayload(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create key request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch key record: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("key record request failed: HTTP %d", resp.StatusCode)
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxKeyPayloadSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read key record: %w", err)
	}

	return payload, nil
}

// parseKeyPayload scans the fetched record for a 32-hex-digit key line.
func parseKeyPayload(payload []byte) (string, bool) {
	for _, line := range strings.Split(string(payload), "\n") {
		line = strings.TrimSpace(line)
		if len(line) == 32 && isHex(line) {
			return line, true
		}
	}

	return "", false
}

func isHex(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}

	return true
}
