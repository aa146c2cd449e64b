package decrypt_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/italolelis/redump_downloader/internal/decrypt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "ps3dec")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))

	return path
}

func TestRunner_Validate(t *testing.T) {
	t.Run("missing binary", func(t *testing.T) {
		runner := decrypt.NewRunner(filepath.Join(t.TempDir(), "nope"), time.Second)
		assert.ErrorIs(t, runner.Validate(), decrypt.ErrToolNotFound)
	})

	t.Run("not executable", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ps3dec")
		require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o644))

		runner := decrypt.NewRunner(path, time.Second)
		assert.ErrorIs(t, runner.Validate(), decrypt.ErrToolNotFound)
	})

	t.Run("directory", func(t *testing.T) {
		runner := decrypt.NewRunner(t.TempDir(), time.Second)
		assert.ErrorIs(t, runner.Validate(), decrypt.ErrToolNotFound)
	})

	t.Run("ok", func(t *testing.T) {
		runner := decrypt.NewRunner(writeScript(t, "exit 0"), time.Second)
		assert.NoError(t, runner.Validate())
	})
}

func TestRunner_Decrypt(t *testing.T) {
	// The stand-in tool copies input to output and appends the key, so the
	// test can verify the argument order contract end to end.
	script := writeScript(t, `cp "$1" "$2" && printf '%s' "$3" >> "$2"`)
	runner := decrypt.NewRunner(script, 5*time.Second)

	dir := t.TempDir()
	input := filepath.Join(dir, "game.iso")
	output := filepath.Join(dir, "game-out.iso")
	require.NoError(t, os.WriteFile(input, []byte("encrypted-"), 0o644))

	result, err := runner.Decrypt(context.Background(), input, output, "deadbeef")
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)

	got, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "encrypted-deadbeef", string(got))
}

func TestRunner_Run_NonZeroExit(t *testing.T) {
	runner := decrypt.NewRunner(writeScript(t, `echo "bad key" >&2; exit 3`), 5*time.Second)

	result, err := runner.Run(context.Background(), "in.iso", "out.iso", "deadbeef")

	var exitErr *decrypt.ToolExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 3, exitErr.ExitCode)
	assert.Contains(t, exitErr.StderrTail, "bad key")
	assert.Equal(t, 3, result.ExitCode)
}

func TestRunner_Run_Timeout(t *testing.T) {
	runner := decrypt.NewRunner(writeScript(t, "exec sleep 5"), 100*time.Millisecond)

	started := time.Now()
	_, err := runner.Run(context.Background(), "in.iso", "out.iso", "deadbeef")

	assert.ErrorIs(t, err, decrypt.ErrToolTimedOut)
	assert.Less(t, time.Since(started), 3*time.Second, "the process must be killed, not waited out")
}

func TestRunner_Run_CancelledContext(t *testing.T) {
	runner := decrypt.NewRunner(writeScript(t, "exec sleep 5"), 10*time.Second)

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := runner.Run(ctx, "in.iso", "out.iso", "deadbeef")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunner_Run_CapturesStdoutTail(t *testing.T) {
	runner := decrypt.NewRunner(writeScript(t, `echo "decrypting sectors"`), 5*time.Second)

	result, err := runner.Run(context.Background(), "in.iso", "out.iso", "deadbeef")
	require.NoError(t, err)
	assert.Contains(t, result.StdoutTail, "decrypting sectors")
}
