package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// DoctorConfig holds doctor-related configuration
type DoctorConfig struct {
	IgnoredProblemKinds []string `toml:"ignored_problem_kinds"` // problem kind names to skip entirely
	MinSeverity         string   `toml:"min_severity"`          // "all", "advice", "potentially-serious", "error", "meltdown"
	InodeCountThreshold uint64   `toml:"inode_count_threshold"` // loaded+unloaded inodes per mount before invalidation is suggested
	SlowImportMillis    int64    `toml:"slow_import_millis"`    // backing-store import latency before a warning
}

// ExtensionsConfig holds the hg extension allow/block/warn lists
type ExtensionsConfig struct {
	Allow []string `toml:"allow"` // known good, never reported
	Block []string `toml:"block"` // must not be enabled in a vireo checkout
	Warn  []string `toml:"warn"`  // known to degrade performance
}

// CheckoutConfig describes one configured checkout
type CheckoutConfig struct {
	StateDir      string   `toml:"state_dir"`      // per-checkout daemon state (SNAPSHOT lives here)
	BackingRepo   string   `toml:"backing_repo"`   // backing hg repository path
	CaseSensitive bool     `toml:"case_sensitive"` // filesystem case sensitivity of the mount
	Redirections  []string `toml:"redirections"`   // repo-relative paths redirected to local storage
}

// Config holds the vireo configuration
type Config struct {
	StateDir   string                    `toml:"state_dir"` // vireod state directory
	Doctor     DoctorConfig              `toml:"doctor"`
	Extensions ExtensionsConfig          `toml:"extensions"`
	Checkouts  map[string]CheckoutConfig `toml:"checkouts"` // keyed by mount path
}

// Defaults applied when the config file is missing or partial.
const (
	DefaultMinSeverity         = "all"
	DefaultInodeCountThreshold = 1_000_000
	DefaultSlowImportMillis    = 500
)

// Path returns the config file location: $VIREO_CONFIG if set,
// otherwise ~/.config/vireo/config.toml.
func Path() (string, error) {
	if p := os.Getenv("VIREO_CONFIG"); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", "vireo", "config.toml"), nil
}

// Load reads the config file. A missing file yields the defaults.
func Load() (Config, error) {
	path, err := Path()
	if err != nil {
		return defaults(), err
	}
	return LoadFile(path)
}

// LoadFile reads the config from an explicit path.
func LoadFile(path string) (Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func defaults() Config {
	home, _ := os.UserHomeDir()
	return Config{
		StateDir: filepath.Join(home, ".vireo"),
		Doctor: DoctorConfig{
			MinSeverity:         DefaultMinSeverity,
			InodeCountThreshold: DefaultInodeCountThreshold,
			SlowImportMillis:    DefaultSlowImportMillis,
		},
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Doctor.MinSeverity == "" {
		cfg.Doctor.MinSeverity = DefaultMinSeverity
	}
	if cfg.Doctor.InodeCountThreshold == 0 {
		cfg.Doctor.InodeCountThreshold = DefaultInodeCountThreshold
	}
	if cfg.Doctor.SlowImportMillis == 0 {
		cfg.Doctor.SlowImportMillis = DefaultSlowImportMillis
	}
}
