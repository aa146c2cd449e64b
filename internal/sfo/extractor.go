package sfo

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
)

const payloadEntry = "PS3_GAME/PARAM.SFO"

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

// Option configures the extractor.
type Option func(*Extractor)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(executor Executor) Option {
	return func(e *Extractor) {
		if executor != nil {
			e.exec = executor
		}
	}
}

// Extractor pulls the PARAM.SFO table out of a disc image by shelling out to
// an archive tool (7z by default), which reads ISO9660 images natively.
type Extractor struct {
	binary string
	exec   Executor
}

func NewExtractor(binary string, opts ...Option) *Extractor {
	e := &Extractor{
		binary: binary,
		exec:   commandExecutor{},
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// ExtractParams extracts and parses PS3_GAME/PARAM.SFO from the image at
// isoPath, using destDir as scratch space. The extracted file is removed
// after parsing.
func (e *Extractor) ExtractParams(ctx context.Context, isoPath, destDir string) (Params, error) {
	args := []string{"e", isoPath, payloadEntry, "-o" + destDir, "-y"}

	if err := e.exec.Run(ctx, e.binary, args, io.Discard, io.Discard); err != nil {
		return nil, fmt.Errorf("failed to run %s: %w", e.binary, err)
	}

	paramPath := filepath.Join(destDir, "PARAM.SFO")

	data, err := os.ReadFile(paramPath)
	if err != nil {
		return nil, fmt.Errorf("no PARAM.SFO extracted: %w", err)
	}
	defer os.Remove(paramPath)

	return Parse(data)
}
