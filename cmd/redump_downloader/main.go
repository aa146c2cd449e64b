package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/redump_downloader/internal/catalog"
	"github.com/italolelis/redump_downloader/internal/cleanup"
	"github.com/italolelis/redump_downloader/internal/config"
	"github.com/italolelis/redump_downloader/internal/decrypt"
	"github.com/italolelis/redump_downloader/internal/keys"
	"github.com/italolelis/redump_downloader/internal/logctx"
	"github.com/italolelis/redump_downloader/internal/notifier"
	"github.com/italolelis/redump_downloader/internal/pipeline"
	"github.com/italolelis/redump_downloader/internal/sfo"
	"github.com/italolelis/redump_downloader/internal/storage/sqlite"
	"github.com/italolelis/redump_downloader/internal/transfer"
	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("redump downloader starting...", "log_level", cfg.LogLevel, "work_dir", cfg.WorkDir)

	if err := run(logctx.WithLogger(ctx, logger), cfg); err != nil {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)

	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		return fmt.Errorf("failed to create work dir: %w", err)
	}

	// =========================================================================
	// Start Database
	database, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("DB error: %w", err)
	}
	defer database.Close()

	catalogRepo := sqlite.NewCatalogRepository(database)
	keyRepo := sqlite.NewKeyRepository(database)

	// =========================================================================
	// Prune leftovers from finished jobs
	if err := cleanup.PruneIntermediates(ctx, cfg.WorkDir); err != nil {
		logger.Warn("failed to prune intermediates", "err", err)
	}

	// =========================================================================
	// Warm both catalogs
	catalogSvc := catalog.NewService(
		catalog.NewScraper(cfg.CatalogBaseURL, ".zip"),
		catalogRepo,
		cfg.CatalogCacheTTL,
	)
	resolver := keys.NewResolver(catalog.NewScraper(cfg.KeysBaseURL, ".txt"), keyRepo)

	var index *catalog.Index

	wg, warmCtx := errgroup.WithContext(ctx)
	wg.Go(func() error {
		var err error
		index, err = catalogSvc.Load(warmCtx)

		return err
	})
	wg.Go(func() error {
		if err := resolver.Warm(warmCtx); err != nil {
			// Not fatal: resolution retries lazily per job.
			logger.Warn("failed to warm key listing", "err", err)
		}

		return nil
	})

	if err := wg.Wait(); err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	logger.Info("catalog ready", "title_count", index.Len())

	// =========================================================================
	// Start Pipeline
	pipe := pipeline.NewPipeline(
		resolver,
		transfer.NewDownloader(transfer.Options{
			MaxRetries:     cfg.MaxRetries,
			RetryDelay:     cfg.RetryDelay,
			RequestTimeout: cfg.RequestTimeout,
		}),
		decrypt.NewRunner(cfg.DecryptorPath, cfg.DecryptTimeout),
		sfo.NewExtractor(cfg.SFOToolPath),
		pipeline.Options{
			WorkDir:     cfg.WorkDir,
			RetryCycles: cfg.JobRetryCycles,
		},
	)
	defer pipe.Close()

	go printEvents(pipe.Events)

	var notify notifier.Notifier
	if cfg.DiscordWebhookURL != "" {
		notify = &notifier.DiscordNotifier{WebhookURL: cfg.DiscordWebhookURL}
	}

	return mainLoop(ctx, index, pipe, notify)
}

// mainLoop prompts for a search, lists matches and runs one job at a time.
func mainLoop(ctx context.Context, index *catalog.Index, pipe *pipeline.Pipeline, notify notifier.Notifier) error {
	logger := logctx.LoggerFromContext(ctx)
	scanner := bufio.NewScanner(os.Stdin)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		fmt.Print("Find title to download (leave empty to exit): ")

		if !scanner.Scan() {
			return scanner.Err()
		}

		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			fmt.Println("Exiting...")

			return nil
		}

		matches := index.Resolve(query)
		if len(matches) == 0 {
			fmt.Println("No titles found")

			continue
		}

		printMatches(matches)

		fmt.Printf("Enter title number [1-%d]: ", len(matches))

		if !scanner.Scan() {
			return scanner.Err()
		}

		choice, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
		if err != nil || choice < 1 || choice > len(matches) {
			fmt.Printf("Number not in valid range (1-%d)\n", len(matches))

			continue
		}

		entry := matches[choice-1]
		fmt.Printf("\nSelected %s\n", entry.CleanTitle())

		job, err := pipe.Run(ctx, entry)
		if err != nil {
			logger.Error("job failed", "job_id", job.ID, "stage", job.Stage.String(), "err", err)
			fmt.Printf("Failed: %v\n\n", err)

			sendNotification(logger, notify, "❌ Download failed for "+entry.CleanTitle()+": "+err.Error())

			continue
		}

		fmt.Printf("\n%s downloaded and decrypted :)\n\n", entry.CleanTitle())
		sendNotification(logger, notify, "✅ Downloaded and decrypted "+entry.CleanTitle())
	}
}

func printMatches(matches []catalog.Entry) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"#", "Title", "Size"})

	for i, entry := range matches {
		size := "unknown"
		if entry.DeclaredSize > 0 {
			size = humanize.IBytes(uint64(entry.DeclaredSize))
		}

		t.AppendRow(table.Row{i + 1, entry.CleanTitle(), size})
	}

	t.Render()
}

func printEvents(events <-chan pipeline.Event) {
	for ev := range events {
		switch {
		case ev.Err != nil && ev.Stage == pipeline.StageFailed:
			// Terminal errors are reported by the main loop.
		case ev.Attempt > 0:
			fmt.Printf("  %s: retrying (attempt %d, waiting %s)\n", ev.Stage, ev.Attempt, ev.Delay)
		case ev.Message != "":
			fmt.Printf("  %s: %s\n", ev.Stage, ev.Message)
		case ev.Total > 0:
			fmt.Printf("\r  %s: %s / %s", ev.Stage, humanize.IBytes(uint64(ev.Bytes)), humanize.IBytes(uint64(ev.Total)))
		case ev.Bytes > 0:
			fmt.Printf("\r  %s: %s", ev.Stage, humanize.IBytes(uint64(ev.Bytes)))
		default:
			fmt.Printf("\n# %s\n", ev.Stage)
		}
	}
}

func sendNotification(logger *slog.Logger, notify notifier.Notifier, content string) {
	if notify == nil {
		return
	}

	if err := notify.Notify(content); err != nil {
		logger.Error("failed to send notification", "err", err)
	}
}
