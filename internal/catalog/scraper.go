package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/dustin/go-humanize"
	"github.com/italolelis/redump_downloader/internal/logctx"
)

// Scraper fetches an HTML directory listing and parses it into entries.
type Scraper struct {
	baseURL    string
	extension  string
	httpClient *http.Client
}

func NewScraper(baseURL, extension string) *Scraper {
	return &Scraper{
		baseURL:    baseURL,
		extension:  extension,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// FetchEntries downloads the listing page and extracts every link with the
// configured extension, in page order.
func (s *Scraper) FetchEntries(ctx context.Context) ([]Entry, error) {
	logger := logctx.LoggerFromContext(ctx).With("base_url", s.baseURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create listing request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch listing: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listing request failed: HTTP %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing: %w", err)
	}

	base, err := url.Parse(s.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	var entries []Entry

	// Directory listings come as table rows with link and size cells.
	// Listings without size cells still yield entries, just without a
	// declared size.
	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		link := row.Find("td a").First()

		href, ok := link.Attr("href")
		if !ok || !strings.HasSuffix(href, s.extension) {
			return
		}

		ref, err := url.Parse(href)
		if err != nil {
			logger.Warn("skipping unparsable listing link", "href", href, "err", err)

			return
		}

		title := strings.TrimSpace(link.Text())
		if title == "" {
			title = pathBase(href)
		}

		entries = append(entries, Entry{
			Title:        title,
			SourceURL:    base.ResolveReference(ref).String(),
			DeclaredSize: parseDeclaredSize(row.Find("td.size").Text()),
		})
	})

	// Plain listings (no table) fall back to scanning anchors directly.
	if len(entries) == 0 {
		doc.Find("a").Each(func(_ int, link *goquery.Selection) {
			href, ok := link.Attr("href")
			if !ok || !strings.HasSuffix(href, s.extension) {
				return
			}

			ref, err := url.Parse(href)
			if err != nil {
				return
			}

			title := strings.TrimSpace(link.Text())
			if title == "" {
				title = pathBase(href)
			}

			entries = append(entries, Entry{
				Title:     title,
				SourceURL: base.ResolveReference(ref).String(),
			})
		})
	}

	logger.Debug("parsed listing", "entry_count", len(entries))

	return entries, nil
}

func parseDeclaredSize(text string) int64 {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}

	size, err := humanize.ParseBytes(text)
	if err != nil {
		return 0
	}

	return int64(size)
}

func pathBase(href string) string {
	href = strings.TrimSuffix(href, "/")
	if i := strings.LastIndex(href, "/"); i >= 0 {
		href = href[i+1:]
	}

	if unescaped, err := url.PathUnescape(href); err == nil {
		return unescaped
	}

	return href
}
