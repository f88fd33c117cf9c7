package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/blackwell-systems/shipwatch/internal/toolexec"
)

// ZipTool shells out to `zip -e -P <passphrase>`.
type ZipTool struct {
	Tool    string // executable, default "zip"
	Timeout time.Duration
	Runner  *toolexec.Runner

	// Stdout and Stderr receive zip's own output; nil discards it.
	Stdout io.Writer
	Stderr io.Writer
}

// Extension implements Archiver.
func (z *ZipTool) Extension() string { return ".zip" }

// Archive implements Archiver. Errors wrap toolexec.ErrToolMissing,
// toolexec.ErrTimedOut, toolexec.ErrInterrupted or *toolexec.ExitError.
func (z *ZipTool) Archive(ctx context.Context, src, dst, passphrase string) error {
	tool := z.Tool
	if tool == "" {
		tool = "zip"
	}
	runner := z.Runner
	if runner == nil {
		runner = &toolexec.Runner{}
	}

	// zip updates an existing archive in place, so it always writes a fresh
	// file in a private directory.
	tmpDir, err := os.MkdirTemp(filepath.Dir(dst), ".shipwatch-zip-*")
	if err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	staged := filepath.Join(tmpDir, filepath.Base(dst))

	err = runner.Run(ctx, toolexec.Invocation{
		Name:    tool,
		Args:    []string{"-e", "-P", passphrase, staged, src},
		Timeout: z.Timeout,
		Stdout:  z.Stdout,
		Stderr:  z.Stderr,
	})
	if err != nil {
		return fmt.Errorf("zip %s: %w", src, err)
	}

	// zip appends ".zip" when the name has no extension.
	if _, err := os.Stat(staged); os.IsNotExist(err) {
		staged += ".zip"
	}

	if err := os.Rename(staged, dst); err != nil {
		return fmt.Errorf("failed to move archive into place: %w", err)
	}
	return nil
}
