package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/italolelis/redump_downloader/internal/logctx"
)

// PruneIntermediates removes leftover archives and encrypted payloads from
// job directories whose decrypted artifact already exists. Directories
// without a finished artifact are left alone: their partials are resume
// state, never garbage.
func PruneIntermediates(ctx context.Context, workDir string) error {
	logger := logctx.LoggerFromContext(ctx)

	entries, err := os.ReadDir(workDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		jobDir := filepath.Join(workDir, entry.Name())

		if !hasFinishedArtifact(jobDir, entry.Name()) {
			continue
		}

		for _, leftover := range intermediates(jobDir, entry.Name()) {
			if err := os.Remove(leftover); err != nil {
				if !os.IsNotExist(err) {
					logger.Error("failed to prune intermediate file", "file", leftover, "err", err)
				}

				continue
			}

			logger.Info("pruned superseded intermediate", "file", leftover)
		}
	}

	return nil
}

// hasFinishedArtifact reports whether the job directory holds a decrypted
// ISO, i.e. any .iso file other than the encrypted intermediate named after
// the raw title.
func hasFinishedArtifact(jobDir, title string) bool {
	files, err := os.ReadDir(jobDir)
	if err != nil {
		return false
	}

	encrypted := title + ".iso"

	for _, f := range files {
		if f.IsDir() {
			continue
		}

		if strings.HasSuffix(f.Name(), ".iso") && f.Name() != encrypted {
			return true
		}
	}

	return false
}

func intermediates(jobDir, title string) []string {
	return []string{
		filepath.Join(jobDir, title+".zip"),
		filepath.Join(jobDir, title+".iso"),
	}
}
