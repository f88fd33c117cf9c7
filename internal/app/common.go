package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/blackwell-systems/shipwatch/internal/config"
)

// getShipwatchDir returns $HOME/.shipwatch, creating it if needed.
func getShipwatchDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	dir := filepath.Join(home, ".shipwatch")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create shipwatch directory: %w", err)
	}
	return dir, nil
}

// getConfigPath returns the config path and whether the user chose it.
// An explicit path must exist; the default one may be absent when the
// environment supplies everything.
func getConfigPath() (string, bool, error) {
	if configPath != "" {
		return config.ExpandHome(configPath), true, nil
	}
	if env := os.Getenv("SHIPWATCH_CONFIG"); env != "" {
		return config.ExpandHome(env), true, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", false, fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".shipwatch", "config.yaml"), false, nil
}

// loadConfig reads the configuration without validating it.
func loadConfig() (*config.Config, string, error) {
	path, explicit, err := getConfigPath()
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(path, !explicit)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// getJournalPath returns the run journal location for cfg.
func getJournalPath(cfg *config.Config) (string, error) {
	if cfg != nil && cfg.Journal != "" {
		return cfg.Journal, nil
	}
	dir, err := getShipwatchDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "runs.db"), nil
}

// getHostname never fails; the banner prints "unknown" instead.
func getHostname() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "unknown"
	}
	return name
}
