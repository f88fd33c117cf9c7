// Package archive packages a single file into a passphrase-protected archive.
//
// Two formats are supported:
//   - "zip": the external zip tool with its built-in (legacy ZipCrypto) encryption.
//     Readable by any unzip, but not a strong cryptographic guarantee.
//   - "age": a native zip container encrypted with age's scrypt passphrase
//     recipient (authenticated encryption). Needs `age -d` to open.
//
// Both formats write into a temporary location beside the destination and only
// rename into place on success, so a failed run never leaves a partial archive
// at the destination path.
package archive

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// Format names accepted in configuration.
const (
	FormatZip = "zip"
	FormatAge = "age"
)

// Archiver produces an encrypted archive containing exactly one source file.
type Archiver interface {
	Archive(ctx context.Context, src, dst, passphrase string) error

	// Extension is appended to remote object names (".zip", ".zip.age").
	Extension() string
}

// Checksum returns the hex BLAKE3-256 digest of the file at path.
func Checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash archive: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ctxReader aborts a long copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
