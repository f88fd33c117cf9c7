// Package transfer copies archives to a remote host over scp.
package transfer

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/blackwell-systems/shipwatch/internal/toolexec"
)

// remoteNameLayout renders as YYYYMMDD_HHMMSS.
const remoteNameLayout = "20060102_150405"

// Destination is where an archive lands on the remote host.
type Destination struct {
	User string
	Host string
	Port int    // 0 means the client default
	Dir  string // must end with "/"
	Name string
}

// Target renders the scp target "user@host:/dir/name".
func (d Destination) Target() string {
	host := d.Host
	if d.User != "" {
		host = d.User + "@" + host
	}
	return host + ":" + d.Dir + d.Name
}

// RemoteName derives the remote object name from t, e.g. backup_20240131_235959.zip.
// An empty ext defaults to ".zip".
func RemoteName(t time.Time, ext string) string {
	if ext == "" {
		ext = ".zip"
	}
	return "backup_" + t.Format(remoteNameLayout) + ext
}

// Copier ships a local file to a remote destination.
type Copier interface {
	Copy(ctx context.Context, local string, dst Destination) error
}

// SCP copies with the OpenSSH scp client using a private key in batch mode,
// so a missing or rejected key fails fast instead of prompting.
type SCP struct {
	Tool    string // executable, default "scp"
	KeyPath string
	Timeout time.Duration
	Runner  *toolexec.Runner

	Stdout io.Writer
	Stderr io.Writer
}

// Args returns the scp argument list for copying local to dst.
func (s *SCP) Args(local string, dst Destination) []string {
	args := []string{}
	if s.KeyPath != "" {
		args = append(args, "-i", s.KeyPath)
	}
	args = append(args, "-o", "BatchMode=yes")
	if dst.Port > 0 && dst.Port != 22 {
		args = append(args, "-P", strconv.Itoa(dst.Port))
	}
	return append(args, local, dst.Target())
}

// Copy implements Copier. Errors wrap toolexec.ErrToolMissing,
// toolexec.ErrTimedOut, toolexec.ErrInterrupted or *toolexec.ExitError.
func (s *SCP) Copy(ctx context.Context, local string, dst Destination) error {
	if dst.Host == "" {
		return fmt.Errorf("remote host is required")
	}
	if !strings.HasSuffix(dst.Dir, "/") {
		return fmt.Errorf("remote path %q must end with /", dst.Dir)
	}

	tool := s.Tool
	if tool == "" {
		tool = "scp"
	}
	runner := s.Runner
	if runner == nil {
		runner = &toolexec.Runner{}
	}

	err := runner.Run(ctx, toolexec.Invocation{
		Name:    tool,
		Args:    s.Args(local, dst),
		Timeout: s.Timeout,
		Stdout:  s.Stdout,
		Stderr:  s.Stderr,
	})
	if err != nil {
		return fmt.Errorf("scp to %s: %w", dst.Host, err)
	}
	return nil
}
