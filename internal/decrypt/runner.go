package decrypt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"time"

	"github.com/italolelis/redump_downloader/internal/logctx"
)

// ErrToolNotFound is returned when the decryptor binary is missing or not
// executable.
var ErrToolNotFound = errors.New("decrypt: decryptor binary not found")

// ErrToolTimedOut is returned when the decryptor ran past its wall-clock
// budget and was killed.
var ErrToolTimedOut = errors.New("decrypt: decryptor timed out")

// ToolExitError reports a decryptor run that exited non-zero.
type ToolExitError struct {
	ExitCode   int
	StderrTail string
}

func (e *ToolExitError) Error() string {
	if e.StderrTail != "" {
		return fmt.Sprintf("decryptor exited with code %d: %s", e.ExitCode, e.StderrTail)
	}

	return fmt.Sprintf("decryptor exited with code %d", e.ExitCode)
}

// Result captures the observable outcome of a decryptor run.
type Result struct {
	ExitCode   int
	StdoutTail string
	StderrTail string
	Elapsed    time.Duration
}

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, stdout, stderr io.Writer) error
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, stdout, stderr io.Writer) error {
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	return cmd.Run()
}

// Option configures the runner.
type Option func(*Runner)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(executor Executor) Option {
	return func(r *Runner) {
		if executor != nil {
			r.exec = executor
		}
	}
}

// Runner supervises the external decryptor. The tool is a black box: only
// its argument and exit-code contract is relied on, and it is never retried
// automatically.
type Runner struct {
	binary  string
	timeout time.Duration
	exec    Executor
}

func NewRunner(binary string, timeout time.Duration, opts ...Option) *Runner {
	r := &Runner{
		binary:  binary,
		timeout: timeout,
		exec:    commandExecutor{},
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Validate checks that the decryptor exists and is executable, without
// running it. Worth doing before any expensive network work starts.
func (r *Runner) Validate() error {
	info, err := os.Stat(r.binary)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrToolNotFound, r.binary)
	}

	if info.IsDir() || info.Mode().Perm()&0o111 == 0 {
		return fmt.Errorf("%w: %s is not executable", ErrToolNotFound, r.binary)
	}

	return nil
}

// Decrypt runs the decryptor as <input> <output> <key>.
func (r *Runner) Decrypt(ctx context.Context, inputPath, outputPath, key string) (*Result, error) {
	return r.Run(ctx, inputPath, outputPath, key)
}

// Run spawns the decryptor with the given arguments under the configured
// timeout. On expiry the process is killed and ErrToolTimedOut returned.
func (r *Runner) Run(ctx context.Context, args ...string) (*Result, error) {
	logger := logctx.LoggerFromContext(ctx).With("binary", r.binary)

	if err := r.Validate(); err != nil {
		return nil, err
	}

	runCtx := ctx

	var cancel context.CancelFunc
	if r.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	stdout := newTailWriter(4096)
	stderr := newTailWriter(4096)

	started := time.Now()
	err := r.exec.Run(runCtx, r.binary, args, stdout, stderr)
	elapsed := time.Since(started)

	result := &Result{
		StdoutTail: stdout.String(),
		StderrTail: stderr.String(),
		Elapsed:    elapsed,
	}

	if err == nil {
		logger.Debug("decryptor finished", "elapsed", elapsed.String())

		return result, nil
	}

	if ctx.Err() != nil {
		return result, ctx.Err()
	}

	if runCtx.Err() == context.DeadlineExceeded {
		return result, fmt.Errorf("%w after %s", ErrToolTimedOut, r.timeout)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()

		return result, &ToolExitError{ExitCode: exitErr.ExitCode(), StderrTail: result.StderrTail}
	}

	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return result, fmt.Errorf("%w: %s", ErrToolNotFound, r.binary)
	}

	return result, fmt.Errorf("failed to run decryptor: %w", err)
}

// tailWriter keeps the last n bytes written through it.
type tailWriter struct {
	limit int
	buf   []byte
}

func newTailWriter(limit int) *tailWriter {
	return &tailWriter{limit: limit}
}

func (w *tailWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	if len(w.buf) > w.limit {
		w.buf = w.buf[len(w.buf)-w.limit:]
	}

	return len(p), nil
}

func (w *tailWriter) String() string {
	return string(w.buf)
}
