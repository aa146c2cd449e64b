package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/italolelis/redump_downloader/internal/logctx"
	"github.com/italolelis/redump_downloader/internal/transfer/progress"
)

// EventKind identifies a progress event.
type EventKind int

const (
	// EventBytes reports the absolute byte position within the remote file.
	EventBytes EventKind = iota
	// EventRetrying is emitted before waiting out the inter-retry delay.
	EventRetrying
	// EventRestarted warns that the partial file was discarded and the
	// download restarted from byte zero.
	EventRestarted
	// EventCompleted is the terminal success event.
	EventCompleted
	// EventFailed is the terminal failure event; Err carries the cause.
	EventFailed
)

// Event is one element of the progress stream emitted during a download.
type Event struct {
	Kind    EventKind
	Bytes   int64
	Total   int64 // -1 when the remote length is unknown
	Attempt int
	Delay   time.Duration
	Message string
	Err     error
}

// Options configures the downloader.
type Options struct {
	// MaxRetries is the total number of attempts before giving up.
	MaxRetries int
	// RetryDelay is the fixed wait between attempts.
	RetryDelay time.Duration
	// RequestTimeout bounds the wall clock of a single attempt,
	// independent of the retry budget.
	RequestTimeout time.Duration
	// ProgressInterval is how many bytes pass between EventBytes emissions.
	ProgressInterval int64
}

const defaultProgressInterval = 1 << 20

// Downloader performs byte-range-aware HTTP fetches with resume. The on-disk
// partial file is the only resume checkpoint: no separate journal is kept.
type Downloader struct {
	opts   Options
	client *http.Client
}

func NewDownloader(opts Options) *Downloader {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 5
	}

	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 5 * time.Second
	}

	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Minute
	}

	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = defaultProgressInterval
	}

	return &Downloader{
		opts: opts,
		client: &http.Client{
			Timeout: opts.RequestTimeout,
		},
	}
}

// Download fetches url into destPath, resuming from whatever partial content
// already exists. Transient failures are retried with a fixed delay up to the
// retry ceiling; exhausting it returns a *TransferError and leaves the
// partial file intact. Progress is reported through the emit callback.
func (d *Downloader) Download(ctx context.Context, url, destPath string, emit func(Event)) error {
	logger := logctx.LoggerFromContext(ctx).With("url", url)

	if emit == nil {
		emit = func(Event) {}
	}

	total, err := d.probeSize(ctx, url)
	if err != nil {
		logger.Warn("could not determine remote size, resume disabled", "err", err)

		total = -1
	}

	var lastErr error

	for attempt := 1; attempt <= d.opts.MaxRetries; attempt++ {
		if attempt > 1 {
			emit(Event{Kind: EventRetrying, Attempt: attempt, Delay: d.opts.RetryDelay})

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.opts.RetryDelay):
			}
		}

		err := d.attempt(ctx, url, destPath, &total, emit)
		if err == nil {
			size, _ := fileSize(destPath)
			emit(Event{Kind: EventCompleted, Bytes: size, Total: total})

			return nil
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			emit(Event{Kind: EventFailed, Err: perm.Err})

			return perm.Err
		}

		logger.Warn("download attempt failed", "attempt", attempt, "max_retries", d.opts.MaxRetries, "err", err)

		lastErr = err
	}

	ferr := &TransferError{URL: url, Attempts: d.opts.MaxRetries, Err: lastErr}
	emit(Event{Kind: EventFailed, Err: ferr})

	return ferr
}

// attempt performs one ranged request, appending to the existing partial
// file. It mutates *total when the server reveals a different content length.
func (d *Downloader) attempt(ctx context.Context, url, destPath string, total *int64, emit func(Event)) error {
	offset, err := fileSize(destPath)
	if err != nil {
		return fmt.Errorf("failed to stat partial file: %w", err)
	}

	if *total >= 0 {
		if offset == *total {
			// Already complete, no bytes requested.
			return nil
		}

		if offset > *total {
			// Partial is larger than the remote file; it cannot belong
			// to this content.
			if err := restartFromZero(destPath, &offset, emit, "partial file exceeds remote size"); err != nil {
				return err
			}
		}
	} else if offset > 0 {
		// Unknown remote length makes the partial unverifiable.
		if err := restartFromZero(destPath, &offset, emit, "remote size unknown"); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &permanentError{Err: fmt.Errorf("failed to create request: %w", err)}
	}

	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent:
		// Verify the server is still serving the same content.
		if _, _, respTotal, err := parseContentRange(resp.Header.Get("Content-Range")); err == nil && respTotal >= 0 {
			if *total >= 0 && respTotal != *total {
				*total = respTotal

				if err := restartFromZero(destPath, &offset, emit, "remote content length changed"); err != nil {
					return err
				}

				return fmt.Errorf("remote content changed, restarting from zero")
			}

			*total = respTotal
		}
	case http.StatusOK:
		if offset > 0 {
			// Server ignored the range request; degrade to a full
			// re-download rather than risk corruption.
			if err := restartFromZero(destPath, &offset, emit, "server does not honor range requests"); err != nil {
				return err
			}
		}

		if resp.ContentLength >= 0 {
			*total = resp.ContentLength
		}
	case http.StatusRequestedRangeNotSatisfiable:
		if err := restartFromZero(destPath, &offset, emit, "range rejected by server"); err != nil {
			return err
		}

		return fmt.Errorf("range not satisfiable, restarting from zero")
	default:
		if resp.StatusCode >= 500 {
			return fmt.Errorf("server error: HTTP %d", resp.StatusCode)
		}

		return &permanentError{Err: fmt.Errorf("unexpected status: HTTP %d", resp.StatusCode)}
	}

	file, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open partial file: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek partial file: %w", err)
	}

	reader := progress.NewReader(resp.Body, offset, *total, d.opts.ProgressInterval, func(written, total int64) {
		emit(Event{Kind: EventBytes, Bytes: written, Total: total})
	})

	if _, err := io.Copy(file, reader); err != nil {
		return fmt.Errorf("copy interrupted after %d bytes: %w", reader.BytesRead(), err)
	}

	if *total >= 0 {
		if written := offset + reader.BytesRead(); written < *total {
			return fmt.Errorf("short body: got %d of %d bytes", written, *total)
		}
	}

	return nil
}

// probeSize asks the server for the total content length using a one-byte
// range request, falling back to a HEAD request.
func (d *Downloader) probeSize(ctx context.Context, url string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return -1, err
	}

	req.Header.Set("Range", "bytes=0-0")

	resp, err := d.client.Do(req)
	if err != nil {
		return -1, err
	}

	io.Copy(io.Discard, io.LimitReader(resp.Body, 2))
	resp.Body.Close()

	if _, _, total, err := parseContentRange(resp.Header.Get("Content-Range")); err == nil && total >= 0 {
		return total, nil
	}

	if resp.StatusCode == http.StatusOK && resp.ContentLength >= 0 {
		return resp.ContentLength, nil
	}

	head, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return -1, err
	}

	headResp, err := d.client.Do(head)
	if err != nil {
		return -1, err
	}
	headResp.Body.Close()

	if headResp.ContentLength >= 0 {
		return headResp.ContentLength, nil
	}

	return -1, fmt.Errorf("server reported no content length")
}

func restartFromZero(destPath string, offset *int64, emit func(Event), reason string) error {
	if *offset == 0 {
		return nil
	}

	if err := os.Truncate(destPath, 0); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to discard partial file: %w", err)
	}

	*offset = 0

	emit(Event{Kind: EventRestarted, Message: reason})

	return nil
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return 0, nil
	}

	if err != nil {
		return 0, err
	}

	return info.Size(), nil
}

// parseContentRange parses a Content-Range header value such as
// "bytes 0-0/4000000". Total is -1 for "*".
func parseContentRange(header string) (start, end, total int64, err error) {
	if header == "" {
		return 0, 0, -1, fmt.Errorf("empty Content-Range")
	}

	header = strings.TrimPrefix(header, "bytes ")

	rangePart, totalPart, found := strings.Cut(header, "/")
	if !found {
		return 0, 0, -1, fmt.Errorf("invalid Content-Range: %s", header)
	}

	startStr, endStr, found := strings.Cut(rangePart, "-")
	if found {
		start, _ = strconv.ParseInt(startStr, 10, 64)
		end, _ = strconv.ParseInt(endStr, 10, 64)
	}

	if totalPart == "*" {
		return start, end, -1, nil
	}

	total, err = strconv.ParseInt(totalPart, 10, 64)
	if err != nil {
		return 0, 0, -1, fmt.Errorf("invalid Content-Range total: %w", err)
	}

	return start, end, total, nil
}
