package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alexanderramin/kanban/internal/store"
	"github.com/spf13/viper"
)

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"

	ExporterNone   = "none"
	ExporterStdout = "stdout"
)

// TeamConfig declares a board owner and the item id prefix it allocates.
type TeamConfig struct {
	Key    string `mapstructure:"key"`
	Prefix string `mapstructure:"prefix"`
	Name   string `mapstructure:"name"`
}

// LockConfig is the retry policy applied while waiting for a busy lock.
type LockConfig struct {
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	MaxElapsed      time.Duration `mapstructure:"max_elapsed"`
}

func (c LockConfig) RetryPolicy() store.RetryPolicy {
	return store.RetryPolicy{
		InitialInterval: c.InitialInterval,
		MaxInterval:     c.MaxInterval,
		MaxElapsed:      c.MaxElapsed,
	}
}

type WorktreeConfig struct {
	Root         string `mapstructure:"root"`
	BranchPrefix string `mapstructure:"branch_prefix"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// SlogLevel parses Level ("debug", "info", "warn", "error").
func (c LogConfig) SlogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return l, nil
}

type MetricsConfig struct {
	// Textfile, when set, receives the store metrics in the Prometheus text
	// format after every command.
	Textfile string `mapstructure:"textfile"`
}

type TracingConfig struct {
	Exporter string `mapstructure:"exporter"`
}

// Config holds everything the kanban binary reads from the config file and
// KANBAN_* environment variables.
type Config struct {
	DataDir     string         `mapstructure:"data_dir"`
	Backend     string         `mapstructure:"backend"`
	DefaultTeam string         `mapstructure:"default_team"`
	Teams       []TeamConfig   `mapstructure:"teams"`
	Lock        LockConfig     `mapstructure:"lock"`
	Worktree    WorktreeConfig `mapstructure:"worktree"`
	Log         LogConfig      `mapstructure:"log"`
	Metrics     MetricsConfig  `mapstructure:"metrics"`
	Tracing     TracingConfig  `mapstructure:"tracing"`
}

// HomeDir returns ~/.kanban, or .kanban when no home directory is known.
func HomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".kanban"
	}
	return filepath.Join(home, ".kanban")
}

// DefaultPath is the config file read when neither --config nor
// KANBAN_CONFIG names one.
func DefaultPath() string {
	return filepath.Join(HomeDir(), "config.yaml")
}

func DefaultConfig() *Config {
	retry := store.DefaultRetryPolicy()
	return &Config{
		DataDir: filepath.Join(HomeDir(), "data"),
		Backend: BackendFile,
		Lock: LockConfig{
			InitialInterval: retry.InitialInterval,
			MaxInterval:     retry.MaxInterval,
			MaxElapsed:      retry.MaxElapsed,
		},
		Worktree: WorktreeConfig{
			Root:         filepath.Join(HomeDir(), "worktrees"),
			BranchPrefix: "feature/",
		},
		Log:     LogConfig{Level: "warn"},
		Tracing: TracingConfig{Exporter: ExporterNone},
	}
}

// Load reads path over the defaults and applies KANBAN_* overrides. An empty
// path falls back to KANBAN_CONFIG, then DefaultPath; only an explicitly
// named file must exist.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		if env := os.Getenv("KANBAN_CONFIG"); env != "" {
			path, explicit = env, true
		} else {
			path = DefaultPath()
		}
	}

	v := viper.New()
	setDefaults(v, cfg)
	v.SetEnvPrefix("KANBAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if explicit || !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config %s: %w", path, err)
	}
	cfg.DataDir = expandHome(cfg.DataDir)
	cfg.Worktree.Root = expandHome(cfg.Worktree.Root)
	cfg.Metrics.Textfile = expandHome(cfg.Metrics.Textfile)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("backend", cfg.Backend)
	v.SetDefault("default_team", cfg.DefaultTeam)
	v.SetDefault("lock.initial_interval", cfg.Lock.InitialInterval)
	v.SetDefault("lock.max_interval", cfg.Lock.MaxInterval)
	v.SetDefault("lock.max_elapsed", cfg.Lock.MaxElapsed)
	v.SetDefault("worktree.root", cfg.Worktree.Root)
	v.SetDefault("worktree.branch_prefix", cfg.Worktree.BranchPrefix)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("metrics.textfile", cfg.Metrics.Textfile)
	v.SetDefault("tracing.exporter", cfg.Tracing.Exporter)
}

func (c *Config) Validate() error {
	switch c.Backend {
	case BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("backend must be %q or %q, got %q", BackendFile, BackendSQLite, c.Backend)
	}
	switch c.Tracing.Exporter {
	case "", ExporterNone, ExporterStdout:
	default:
		return fmt.Errorf("tracing.exporter must be %q or %q, got %q", ExporterNone, ExporterStdout, c.Tracing.Exporter)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	if c.Lock.MaxElapsed < 0 || c.Lock.InitialInterval < 0 || c.Lock.MaxInterval < 0 {
		return fmt.Errorf("lock intervals must not be negative")
	}
	return nil
}

// StorePath is where the selected backend keeps its documents.
func (c *Config) StorePath() string {
	if c.Backend == BackendSQLite {
		return filepath.Join(c.DataDir, "kanban.db")
	}
	return c.DataDir
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
