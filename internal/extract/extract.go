package extract

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/italolelis/redump_downloader/internal/logctx"
)

// ErrCorruptArchive is returned when the container's structure cannot be
// read, typically because the upstream transfer was incomplete. Callers use
// it as the signal to redo the download+extract cycle.
var ErrCorruptArchive = errors.New("extract: corrupt or truncated archive")

// ErrUnsupportedLayout is returned when the archive does not hold exactly
// one candidate payload entry. Guessing between entries is never attempted.
var ErrUnsupportedLayout = errors.New("extract: unsupported archive layout")

const copyChunkSize = 256 * 1024

// Extract streams the single expected payload entry of the zip at
// archivePath into destPath, reporting progress by bytes written. When the
// archive holds several files, payloadExt (e.g. ".iso") selects the payload;
// anything still ambiguous fails with ErrUnsupportedLayout.
func Extract(ctx context.Context, archivePath, destPath, payloadExt string, emit func(written, total int64)) error {
	logger := logctx.LoggerFromContext(ctx).With("archive", archivePath)

	if emit == nil {
		emit = func(int64, int64) {}
	}

	info, err := os.Stat(archivePath)
	if err != nil {
		return fmt.Errorf("failed to stat archive: %w", err)
	}

	if info.Size() == 0 {
		return fmt.Errorf("%w: archive is empty", ErrCorruptArchive)
	}

	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		// The central directory lives at the end of the file, so a
		// truncated transfer surfaces here.
		return fmt.Errorf("%w: %v", ErrCorruptArchive, err)
	}
	defer reader.Close()

	payload, err := selectPayload(reader.File, payloadExt)
	if err != nil {
		return err
	}

	total := int64(payload.UncompressedSize64)
	logger.Debug("extracting payload", "entry", payload.Name, "size", total)

	src, err := payload.Open()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptArchive, err)
	}
	defer src.Close()

	dst, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer dst.Close()

	var written int64

	buf := make([]byte, copyChunkSize)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return fmt.Errorf("failed to write output: %w", werr)
			}

			written += int64(n)
			emit(written, total)
		}

		if err == io.EOF {
			break
		}

		if err != nil {
			// Checksum and format failures mean the container is bad.
			if errors.Is(err, zip.ErrChecksum) || errors.Is(err, zip.ErrFormat) {
				return fmt.Errorf("%w: %v", ErrCorruptArchive, err)
			}

			return fmt.Errorf("failed to read archive entry: %w", err)
		}
	}

	if written != total {
		return fmt.Errorf("%w: entry %q yielded %d of %d bytes", ErrCorruptArchive, payload.Name, written, total)
	}

	return nil
}

// selectPayload finds the single expected payload entry: the only file in
// the archive, or the only file carrying the expected extension.
func selectPayload(files []*zip.File, payloadExt string) (*zip.File, error) {
	var entries []*zip.File

	for _, f := range files {
		if f.FileInfo().IsDir() {
			continue
		}

		entries = append(entries, f)
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: archive holds no files", ErrUnsupportedLayout)
	}

	if len(entries) == 1 {
		return entries[0], nil
	}

	var candidates []*zip.File

	for _, f := range entries {
		if strings.EqualFold(payloadExt, extOf(f.Name)) {
			candidates = append(candidates, f)
		}
	}

	if len(candidates) != 1 {
		return nil, fmt.Errorf("%w: %d entries, %d matching %q", ErrUnsupportedLayout, len(entries), len(candidates), payloadExt)
	}

	return candidates[0], nil
}

func extOf(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i:]
	}

	return ""
}
