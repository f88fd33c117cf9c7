package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Template is the starter config written by `shipwatch init`.
const Template = `# shipwatch configuration
#
# The archive passphrase is never stored here. Export it instead:
#   export SHIPWATCH_PASSPHRASE='...'
# or point archive.passphrase_file at a file readable only by you.

process:
  name: myapp            # exact process name (pgrep -x)
  checker: pgrep         # pgrep | pidfile
  # pid_file: /run/myapp.pid
  strict: false          # true: abort if the checker itself is unavailable

source: /var/lib/myapp/state.db

archive:
  path: moveme.zip
  format: zip            # zip (ZipCrypto, any unzip) | age (authenticated, needs age -d)
  passphrase_env: SHIPWATCH_PASSPHRASE
  # passphrase_file: ~/.shipwatch/passphrase

remote:
  user: backup
  host: 192.0.2.10
  port: 22
  path: /srv/backups/    # must end with /
  key_path: ~/.ssh/id_ed25519

timeouts:
  check: 10s
  archive: 2m
  transfer: 10m

# journal: ~/.shipwatch/runs.db
# log_file: ~/.shipwatch/shipwatch.log
exit_zero: false
`

// WriteTemplate writes Template to path, refusing to overwrite unless force is set.
func WriteTemplate(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(Template), 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
