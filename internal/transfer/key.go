package transfer

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/ssh"
)

// KeyReport describes a private key as seen before a batch-mode copy.
type KeyReport struct {
	Path        string
	Type        string // e.g. "ssh-ed25519"; empty if the key is encrypted
	Encrypted   bool
	LoosePerms  bool // group or other can read the key; OpenSSH will refuse it
	Fingerprint string
}

// Problems lists reasons scp in batch mode would reject this key.
func (r *KeyReport) Problems() []string {
	var problems []string
	if r.Encrypted {
		problems = append(problems, "key is passphrase-protected; batch mode cannot unlock it (use ssh-agent or an unencrypted deploy key)")
	}
	if r.LoosePerms {
		problems = append(problems, "key permissions are too open; run chmod 600 "+r.Path)
	}
	return problems
}

// CheckKey reads and parses the private key at path.
func CheckKey(path string) (*KeyReport, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat key: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("key path %s is a directory", path)
	}

	report := &KeyReport{
		Path:       path,
		LoosePerms: info.Mode().Perm()&0o077 != 0,
	}

	pemBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key: %w", err)
	}

	signer, err := ssh.ParsePrivateKey(pemBytes)
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			report.Encrypted = true
			if missing.PublicKey != nil {
				report.Type = missing.PublicKey.Type()
				report.Fingerprint = ssh.FingerprintSHA256(missing.PublicKey)
			}
			return report, nil
		}
		return nil, fmt.Errorf("failed to parse key: %w", err)
	}

	report.Type = signer.PublicKey().Type()
	report.Fingerprint = ssh.FingerprintSHA256(signer.PublicKey())
	return report, nil
}
