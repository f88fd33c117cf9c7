// Package config loads shipwatch's run configuration from YAML and the
// environment. The archive passphrase is never read from the YAML file itself;
// only the name of the variable (or file) holding it is.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Checker names.
const (
	CheckerPgrep   = "pgrep"
	CheckerPIDFile = "pidfile"
)

// DefaultPassphraseEnv is consulted when archive.passphrase_env is unset.
const DefaultPassphraseEnv = "SHIPWATCH_PASSPHRASE"

// Config is the full set of run parameters.
type Config struct {
	Process  Process  `yaml:"process"`
	Source   string   `yaml:"source"`
	Archive  Archive  `yaml:"archive"`
	Remote   Remote   `yaml:"remote"`
	Tools    Tools    `yaml:"tools"`
	Timeouts Timeouts `yaml:"timeouts"`
	Journal  string   `yaml:"journal"`
	LogFile  string   `yaml:"log_file"`
	ExitZero bool     `yaml:"exit_zero"`
}

// Process selects what to monitor.
type Process struct {
	Name    string `yaml:"name"`
	Checker string `yaml:"checker"`
	PIDFile string `yaml:"pid_file"`
	// Strict aborts the run when the checker itself is unavailable instead
	// of assuming the process is not running.
	Strict bool `yaml:"strict"`
}

// Archive describes the local artifact.
type Archive struct {
	Path           string `yaml:"path"`
	Format         string `yaml:"format"`
	PassphraseEnv  string `yaml:"passphrase_env"`
	PassphraseFile string `yaml:"passphrase_file"`
}

// Remote describes the copy destination.
type Remote struct {
	User    string `yaml:"user"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
	KeyPath string `yaml:"key_path"`
}

// Tools names the external helpers.
type Tools struct {
	Pgrep string `yaml:"pgrep"`
	Zip   string `yaml:"zip"`
	SCP   string `yaml:"scp"`
}

// Timeouts bound each external step.
type Timeouts struct {
	Check    Duration `yaml:"check"`
	Archive  Duration `yaml:"archive"`
	Transfer Duration `yaml:"transfer"`
}

// Duration unmarshals Go duration strings ("90s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// Default returns a Config with every optional field filled in.
func Default() *Config {
	return &Config{
		Process: Process{Checker: CheckerPgrep},
		Archive: Archive{
			Path:          "moveme.zip",
			Format:        "zip",
			PassphraseEnv: DefaultPassphraseEnv,
		},
		Remote: Remote{Port: 22},
		Tools:  Tools{Pgrep: "pgrep", Zip: "zip", SCP: "scp"},
		Timeouts: Timeouts{
			Check:    Duration{10 * time.Second},
			Archive:  Duration{2 * time.Minute},
			Transfer: Duration{10 * time.Minute},
		},
	}
}

// Load reads path over the defaults and applies environment overrides.
// A missing file is not an error when allowMissing is set; Validate will
// catch anything the environment did not supply.
func Load(path string, allowMissing bool) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case os.IsNotExist(err) && allowMissing:
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.expandPaths()
	return cfg, nil
}

// envOverrides maps environment variables onto string fields.
func (c *Config) envOverrides() map[string]*string {
	return map[string]*string{
		"SHIPWATCH_PROCESS":     &c.Process.Name,
		"SHIPWATCH_SOURCE":      &c.Source,
		"SHIPWATCH_ARCHIVE":     &c.Archive.Path,
		"SHIPWATCH_REMOTE_USER": &c.Remote.User,
		"SHIPWATCH_REMOTE_HOST": &c.Remote.Host,
		"SHIPWATCH_REMOTE_PATH": &c.Remote.Path,
		"SHIPWATCH_KEY":         &c.Remote.KeyPath,
		"SHIPWATCH_JOURNAL":     &c.Journal,
	}
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	for name, field := range c.envOverrides() {
		if v, ok := lookup(name); ok && v != "" {
			*field = v
		}
	}
	if v, ok := lookup("SHIPWATCH_REMOTE_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SHIPWATCH_REMOTE_PORT %q: %w", v, err)
		}
		c.Remote.Port = port
	}
	return nil
}

func (c *Config) expandPaths() {
	c.Source = ExpandHome(c.Source)
	c.Archive.Path = ExpandHome(c.Archive.Path)
	c.Remote.KeyPath = ExpandHome(c.Remote.KeyPath)
	c.Archive.PassphraseFile = ExpandHome(c.Archive.PassphraseFile)
	c.Process.PIDFile = ExpandHome(c.Process.PIDFile)
	c.Journal = ExpandHome(c.Journal)
	c.LogFile = ExpandHome(c.LogFile)
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	switch c.Process.Checker {
	case "", CheckerPgrep:
		if strings.TrimSpace(c.Process.Name) == "" {
			add("process.name is required")
		}
	case CheckerPIDFile:
		if c.Process.PIDFile == "" {
			add("process.pid_file is required when process.checker is %q", CheckerPIDFile)
		}
	default:
		add("process.checker %q is not one of %q, %q", c.Process.Checker, CheckerPgrep, CheckerPIDFile)
	}

	if c.Source == "" {
		add("source is required")
	}
	if c.Archive.Path == "" {
		add("archive.path is required")
	}
	switch c.Archive.Format {
	case "", "zip", "age":
	default:
		add("archive.format %q is not one of \"zip\", \"age\"", c.Archive.Format)
	}

	if c.Remote.Host == "" {
		add("remote.host is required")
	}
	if c.Remote.Path == "" {
		add("remote.path is required")
	} else if !strings.HasSuffix(c.Remote.Path, "/") {
		add("remote.path %q must end with /", c.Remote.Path)
	}
	if c.Remote.KeyPath == "" {
		add("remote.key_path is required")
	}
	if c.Remote.Port < 0 || c.Remote.Port > 65535 {
		add("remote.port %d is out of range", c.Remote.Port)
	}

	for name, d := range map[string]time.Duration{
		"timeouts.check":    c.Timeouts.Check.Duration,
		"timeouts.archive":  c.Timeouts.Archive.Duration,
		"timeouts.transfer": c.Timeouts.Transfer.Duration,
	} {
		if d < 0 {
			add("%s cannot be negative", name)
		}
	}

	if _, err := c.Passphrase(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Passphrase resolves the archive passphrase from its file or environment variable.
func (c *Config) Passphrase() (string, error) {
	if c.Archive.PassphraseFile != "" {
		data, err := os.ReadFile(c.Archive.PassphraseFile)
		if err != nil {
			return "", fmt.Errorf("failed to read passphrase file: %w", err)
		}
		pass := strings.TrimRight(string(data), "\r\n")
		if pass == "" {
			return "", fmt.Errorf("passphrase file %s is empty", c.Archive.PassphraseFile)
		}
		return pass, nil
	}

	envName := c.Archive.PassphraseEnv
	if envName == "" {
		envName = DefaultPassphraseEnv
	}
	pass := os.Getenv(envName)
	if pass == "" {
		return "", fmt.Errorf("archive passphrase not set: export %s or set archive.passphrase_file", envName)
	}
	return pass, nil
}
