package cleanup_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/italolelis/redump_downloader/internal/cleanup"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestPruneIntermediates(t *testing.T) {
	workDir := t.TempDir()

	// Finished job: decrypted artifact plus leftover intermediates.
	finished := filepath.Join(workDir, "Example Game (USA)")
	touch(t, filepath.Join(finished, "example-game.iso"))
	touch(t, filepath.Join(finished, "Example Game (USA).iso"))
	touch(t, filepath.Join(finished, "Example Game (USA).zip"))

	// In-flight job: only a partial archive. Must be left alone.
	inflight := filepath.Join(workDir, "Another Title (Japan)")
	touch(t, filepath.Join(inflight, "Another Title (Japan).zip"))

	// Extracted but not yet decrypted. Must also be left alone.
	extracted := filepath.Join(workDir, "Third Game (Europe)")
	touch(t, filepath.Join(extracted, "Third Game (Europe).iso"))

	require.NoError(t, cleanup.PruneIntermediates(context.Background(), workDir))

	assert.FileExists(t, filepath.Join(finished, "example-game.iso"))
	assert.NoFileExists(t, filepath.Join(finished, "Example Game (USA).iso"))
	assert.NoFileExists(t, filepath.Join(finished, "Example Game (USA).zip"))

	assert.FileExists(t, filepath.Join(inflight, "Another Title (Japan).zip"))
	assert.FileExists(t, filepath.Join(extracted, "Third Game (Europe).iso"))
}

func TestPruneIntermediates_MissingWorkDir(t *testing.T) {
	err := cleanup.PruneIntermediates(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.NoError(t, err)
}
