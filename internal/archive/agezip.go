package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"filippo.io/age"
	"github.com/klauspost/compress/zip"
)

// AgeZip writes a single-entry zip and encrypts the whole stream to an age
// scrypt recipient derived from the passphrase.
type AgeZip struct {
	// WorkFactor is the scrypt log2(N); zero keeps age's default.
	WorkFactor int
}

// Extension implements Archiver.
func (a *AgeZip) Extension() string { return ".zip.age" }

// Archive implements Archiver.
func (a *AgeZip) Archive(ctx context.Context, src, dst, passphrase string) error {
	if passphrase == "" {
		return fmt.Errorf("age archive requires a passphrase")
	}

	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt recipient: %w", err)
	}
	if a.WorkFactor > 0 {
		recipient.SetWorkFactor(a.WorkFactor)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat source: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return fmt.Errorf("failed to create staging file: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	enc, err := age.Encrypt(tmp, recipient)
	if err != nil {
		return fmt.Errorf("creating age encryptor: %w", err)
	}

	zw := zip.NewWriter(enc)
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("building zip header: %w", err)
	}
	header.Name = filepath.Base(src)
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("creating zip entry: %w", err)
	}
	if _, err := io.Copy(w, &ctxReader{ctx: ctx, r: in}); err != nil {
		return fmt.Errorf("writing zip entry: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalizing zip: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalizing age encryption: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close archive: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("archive aborted: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("failed to move archive into place: %w", err)
	}
	committed = true
	return nil
}

// Open decrypts an AgeZip archive and returns the name and contents of its
// single entry.
func Open(path, passphrase string) (string, []byte, error) {
	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return "", nil, fmt.Errorf("creating scrypt identity: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	reader, err := age.Decrypt(f, identity)
	if err != nil {
		return "", nil, fmt.Errorf("decrypting: %w", err)
	}
	plain, err := io.ReadAll(reader)
	if err != nil {
		return "", nil, fmt.Errorf("reading decrypted archive: %w", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(plain), int64(len(plain)))
	if err != nil {
		return "", nil, fmt.Errorf("reading zip: %w", err)
	}
	if len(zr.File) != 1 {
		return "", nil, fmt.Errorf("archive has %d entries, want 1", len(zr.File))
	}

	entry := zr.File[0]
	rc, err := entry.Open()
	if err != nil {
		return "", nil, fmt.Errorf("opening entry %s: %w", entry.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", nil, fmt.Errorf("reading entry %s: %w", entry.Name, err)
	}
	return entry.Name, data, nil
}

// New returns the Archiver for a configured format.
func New(format string, zipTool *ZipTool) (Archiver, error) {
	switch format {
	case "", FormatZip:
		if zipTool == nil {
			zipTool = &ZipTool{}
		}
		return zipTool, nil
	case FormatAge:
		return &AgeZip{}, nil
	default:
		return nil, fmt.Errorf("unknown archive format %q (want %q or %q)", format, FormatZip, FormatAge)
	}
}
