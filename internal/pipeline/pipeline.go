package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/italolelis/redump_downloader/internal/catalog"
	"github.com/italolelis/redump_downloader/internal/decrypt"
	"github.com/italolelis/redump_downloader/internal/extract"
	"github.com/italolelis/redump_downloader/internal/logctx"
	"github.com/italolelis/redump_downloader/internal/sfo"
	"github.com/italolelis/redump_downloader/internal/storage"
	"github.com/italolelis/redump_downloader/internal/transfer"
)

const (
	dirPerm    = 0o755
	payloadExt = ".iso"
)

// KeyResolver resolves a catalog title to its decryption key.
type KeyResolver interface {
	Find(ctx context.Context, title string) (*storage.KeyRecord, error)
}

// Options configures the pipeline.
type Options struct {
	// WorkDir is where job directories are created.
	WorkDir string
	// RetryCycles is how many extra download+extract cycles a corrupt
	// archive may trigger before the job fails.
	RetryCycles int
}

// Pipeline sequences key resolution, download, extraction and decryption
// into one job. A single job is live at a time; stages run sequentially.
type Pipeline struct {
	keys       KeyResolver
	downloader *transfer.Downloader
	runner     *decrypt.Runner
	params     *sfo.Extractor
	opts       Options

	// Events carries stage transitions and progress. Sends never block:
	// a slow consumer loses progress granularity, never terminal state,
	// which always comes from Run's return values.
	Events chan Event
}

func NewPipeline(keys KeyResolver, downloader *transfer.Downloader, runner *decrypt.Runner, params *sfo.Extractor, opts Options) *Pipeline {
	return &Pipeline{
		keys:       keys,
		downloader: downloader,
		runner:     runner,
		params:     params,
		opts:       opts,
		Events:     make(chan Event, 256),
	}
}

func (p *Pipeline) Close() {
	close(p.Events)
}

// Run executes the full pipeline for one catalog entry. The returned job is
// terminal: StageDone, or StageFailed with FailureCause set to the
// originating component's error (also returned). Intermediate files are
// deleted only once the next stage has durably produced its output; nothing
// is deleted on failure, so a later run can resume or recover manually.
func (p *Pipeline) Run(ctx context.Context, entry catalog.Entry) (*Job, error) {
	job := &Job{
		ID:        uuid.New(),
		Entry:     entry,
		Stage:     StageResolvingKey,
		Dir:       filepath.Join(p.opts.WorkDir, entry.CleanTitle()),
		StartedAt: time.Now(),
	}
	job.OutputPath = filepath.Join(job.Dir, entry.OutputISOName())

	logger := logctx.LoggerFromContext(ctx).With("job_id", job.ID.String(), "title", entry.Title)
	ctx = logctx.WithLogger(ctx, logger)

	if err := os.MkdirAll(job.Dir, dirPerm); err != nil {
		return p.fail(job, fmt.Errorf("failed to create job directory: %w", err))
	}

	// A decrypted artifact may carry either the region-name form or the
	// renamed metadata form, so any other .iso in the job directory counts.
	if existing := finishedOutput(job.Dir, entry.CleanTitle()); existing != "" {
		logger.Info("output already present, nothing to do", "output", existing)

		job.Stage = StageDone
		job.OutputPath = existing
		p.emit(Event{JobID: job.ID, Stage: StageDone, Message: "already decrypted"})

		return job, nil
	}

	// Surfaced early as a warning only: the job still runs, and the
	// converting stage reports the failure with the extracted payload
	// kept on disk for a later retry.
	if err := p.runner.Validate(); err != nil {
		logger.Warn("decryptor unavailable, conversion will fail", "err", err)
	}

	key, err := p.resolveKey(ctx, job)
	if err != nil {
		return p.fail(job, err)
	}

	job.Key = key

	encryptedPath, err := p.fetchPayload(ctx, job)
	if err != nil {
		return p.fail(job, err)
	}

	if err := p.convert(ctx, job, encryptedPath); err != nil {
		return p.fail(job, err)
	}

	job.Stage = StageDone
	p.emit(Event{JobID: job.ID, Stage: StageDone, Bytes: job.BytesDone, Total: job.TotalBytes})
	logger.Info("job finished", "output", job.OutputPath, "elapsed", time.Since(job.StartedAt).String())

	return job, nil
}

func (p *Pipeline) resolveKey(ctx context.Context, job *Job) (*storage.KeyRecord, error) {
	job.Stage = StageResolvingKey
	p.emit(Event{JobID: job.ID, Stage: StageResolvingKey})

	// The key must be in hand before any transfer starts: a title without
	// a key fails here, with no bandwidth spent.
	return p.keys.Find(ctx, job.Entry.Title)
}

// fetchPayload runs the download+extract cycle, redoing the whole cycle when
// extraction reports a corrupt container, up to the configured ceiling.
func (p *Pipeline) fetchPayload(ctx context.Context, job *Job) (string, error) {
	logger := logctx.LoggerFromContext(ctx)

	archivePath := filepath.Join(job.Dir, job.Entry.CleanTitle()+".zip")
	encryptedPath := filepath.Join(job.Dir, job.Entry.CleanTitle()+payloadExt)

	for cycle := 0; ; cycle++ {
		job.Stage = StageDownloading
		p.emit(Event{JobID: job.ID, Stage: StageDownloading})

		err := p.downloader.Download(ctx, job.Entry.SourceURL, archivePath, func(ev transfer.Event) {
			p.forwardTransferEvent(job, ev)
		})
		if err != nil {
			return "", err
		}

		job.Stage = StageExtracting
		p.emit(Event{JobID: job.ID, Stage: StageExtracting})

		err = extract.Extract(ctx, archivePath, encryptedPath, payloadExt, func(written, total int64) {
			p.emit(Event{JobID: job.ID, Stage: StageExtracting, Bytes: written, Total: total})
		})
		if err == nil {
			break
		}

		if !errors.Is(err, extract.ErrCorruptArchive) || cycle >= p.opts.RetryCycles {
			return "", err
		}

		// The archive cannot be resumed once its structure is bad; drop
		// it so the next cycle downloads from scratch.
		logger.Warn("corrupt archive, redoing download cycle", "cycle", cycle+1, "err", err)
		p.emit(Event{JobID: job.ID, Stage: StageDownloading, Attempt: cycle + 2, Message: "corrupt archive, redownloading"})

		if err := os.Remove(archivePath); err != nil && !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to discard corrupt archive: %w", err)
		}
	}

	// The extracted payload is durable; the archive is no longer needed.
	if err := os.Remove(archivePath); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to remove downloaded archive", "archive", archivePath, "err", err)
	}

	return encryptedPath, nil
}

func (p *Pipeline) convert(ctx context.Context, job *Job, encryptedPath string) error {
	logger := logctx.LoggerFromContext(ctx)

	job.Stage = StageConverting
	p.emit(Event{JobID: job.ID, Stage: StageConverting})

	result, err := p.runner.Decrypt(ctx, encryptedPath, job.OutputPath, string(job.Key.Payload))
	if err != nil {
		// Conversion is never retried here: the coordinator surfaces the
		// failure and leaves the extracted payload on disk.
		return err
	}

	logger.Info("decryption finished", "elapsed", result.Elapsed.String())

	// The final artifact is durable; drop the encrypted intermediate.
	if err := os.Remove(encryptedPath); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to remove encrypted payload", "path", encryptedPath, "err", err)
	}

	p.renameOutput(ctx, job)

	return nil
}

// renameOutput renames the decrypted image to <TITLE_ID>-<Title>.iso using
// the PARAM.SFO embedded in it. Best effort: any failure keeps the
// region-name form.
func (p *Pipeline) renameOutput(ctx context.Context, job *Job) {
	logger := logctx.LoggerFromContext(ctx)

	if p.params == nil {
		return
	}

	params, err := p.params.ExtractParams(ctx, job.OutputPath, job.Dir)
	if err != nil {
		logger.Warn("could not read PARAM.SFO, keeping filename", "err", err)

		return
	}

	newName := metadataISOName(params)

	newPath := filepath.Join(job.Dir, newName)
	if newPath == job.OutputPath {
		return
	}

	if err := os.Rename(job.OutputPath, newPath); err != nil {
		logger.Warn("failed to rename decrypted image", "to", newPath, "err", err)

		return
	}

	job.OutputPath = newPath
	logger.Info("renamed decrypted image", "output", newPath)
	p.emit(Event{JobID: job.ID, Stage: StageConverting, Message: "renamed output to " + newName})
}

// metadataISOName derives <TITLE_ID>-<Title>.iso, with every non-alphanumeric
// title character folded to an underscore.
func metadataISOName(params sfo.Params) string {
	var title strings.Builder

	for _, r := range params.Title() {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			title.WriteRune(r)
		} else {
			title.WriteByte('_')
		}
	}

	return params.TitleID() + "-" + title.String() + ".iso"
}

func (p *Pipeline) forwardTransferEvent(job *Job, ev transfer.Event) {
	out := Event{JobID: job.ID, Stage: StageDownloading}

	switch ev.Kind {
	case transfer.EventBytes, transfer.EventCompleted:
		job.BytesDone = ev.Bytes
		job.TotalBytes = ev.Total
		out.Bytes = ev.Bytes
		out.Total = ev.Total
	case transfer.EventRetrying:
		out.Attempt = ev.Attempt
		out.Delay = ev.Delay
		out.Message = "retrying download"
	case transfer.EventRestarted:
		job.BytesDone = 0
		out.Message = ev.Message
	case transfer.EventFailed:
		out.Err = ev.Err
	}

	p.emit(out)
}

func (p *Pipeline) fail(job *Job, err error) (*Job, error) {
	job.Stage = StageFailed
	job.FailureCause = err

	p.emit(Event{JobID: job.ID, Stage: StageFailed, Err: err})

	return job, err
}

func (p *Pipeline) emit(ev Event) {
	select {
	case p.Events <- ev:
	default:
	}
}

// finishedOutput returns the decrypted artifact in the job directory, if any:
// the first .iso that is not the encrypted intermediate named after the raw
// title.
func finishedOutput(dir, title string) string {
	files, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}

	encrypted := title + ".iso"

	for _, f := range files {
		if f.IsDir() {
			continue
		}

		if strings.HasSuffix(f.Name(), ".iso") && f.Name() != encrypted {
			return filepath.Join(dir, f.Name())
		}
	}

	return ""
}
