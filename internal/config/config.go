// Package config loads ctxkeeper's runtime configuration.
//
// Values come from, in increasing precedence: built-in defaults, the
// optional project file .ctxkeeper/config.yaml, and CTXKEEPER_* environment
// variables (nested keys use "_", e.g. CTXKEEPER_SCOPE_MEMORY_CEILING).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// ProjectDir is the per-project directory holding definitions and config.
	ProjectDir = ".ctxkeeper"
	// ConfigFile is the config filename inside ProjectDir.
	ConfigFile = "config.yaml"
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "CTXKEEPER"
)

// Config is the typed runtime configuration.
type Config struct {
	ProjectRoot    string        `mapstructure:"project_root"`
	DefinitionsDir string        `mapstructure:"definitions_dir"`
	DirectivesDir  string        `mapstructure:"directives_dir"`
	HeuristicsFile string        `mapstructure:"heuristics_file"`
	DataDir        string        `mapstructure:"data_dir"`
	StoreTimeout   time.Duration `mapstructure:"store_timeout"`
	TierCacheTTL   time.Duration `mapstructure:"tier_cache_ttl"`

	Metadata MetadataConfig `mapstructure:"metadata"`
	Log      LogConfig      `mapstructure:"log"`
	Scope    ScopeConfig    `mapstructure:"scope"`
}

// MetadataConfig controls the optional persisted store.
type MetadataConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LogConfig controls the zap logger and its rotation.
type LogConfig struct {
	File       string `mapstructure:"file"`
	Level      string `mapstructure:"level"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// ScopeConfig holds the scope selector's tunables.
type ScopeConfig struct {
	DescriptionBudget int      `mapstructure:"description_budget"`
	MemoryCeiling     int      `mapstructure:"memory_ceiling"`
	GlobalFiles       []string `mapstructure:"global_files"`
	GlobalPaths       []string `mapstructure:"global_paths"`
}

// FindProjectRoot walks up from dir looking for a .ctxkeeper/ directory.
// If none is found, dir itself is returned.
func FindProjectRoot(dir string) string {
	current := dir
	for {
		if info, err := os.Stat(filepath.Join(current, ProjectDir)); err == nil && info.IsDir() {
			return current
		}
		parent := filepath.Dir(current)
		if parent == current {
			return dir
		}
		current = parent
	}
}

func setDefaults(v *viper.Viper, projectRoot string) {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ProjectDir)

	v.SetDefault("project_root", projectRoot)
	v.SetDefault("definitions_dir", ProjectDir)
	v.SetDefault("directives_dir", filepath.Join(ProjectDir, "directives"))
	v.SetDefault("heuristics_file", "")
	v.SetDefault("data_dir", dataDir)
	v.SetDefault("store_timeout", 2*time.Second)
	v.SetDefault("tier_cache_ttl", 30*time.Minute)

	v.SetDefault("metadata.enabled", true)

	v.SetDefault("log.file", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)

	v.SetDefault("scope.description_budget", 200)
	v.SetDefault("scope.memory_ceiling", 512*1024)
	v.SetDefault("scope.global_files", []string{"go.mod", "package.json", "pyproject.toml", "Cargo.toml", "Makefile", "README.md"})
	v.SetDefault("scope.global_paths", []string{"src", "config", ".config", "configs"})
}

// Load builds the configuration for the project rooted at projectRoot.
// A missing config file is not an error.
func Load(projectRoot string) (*Config, error) {
	v := viper.New()
	setDefaults(v, projectRoot)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigFile(filepath.Join(projectRoot, ProjectDir, ConfigFile))
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.resolvePaths()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// resolvePaths makes project-relative directories absolute.
func (c *Config) resolvePaths() {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(c.ProjectRoot, p)
	}
	c.DefinitionsDir = abs(c.DefinitionsDir)
	c.DirectivesDir = abs(c.DirectivesDir)
	c.HeuristicsFile = abs(c.HeuristicsFile)
	if c.Log.File == "" {
		c.Log.File = filepath.Join(c.DataDir, "ctxkeeper.log")
	}
}

// Validate rejects values the components cannot work with.
func (c *Config) Validate() error {
	if c.ProjectRoot == "" {
		return fmt.Errorf("config: project_root is required")
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("config: store_timeout must be positive, got %s", c.StoreTimeout)
	}
	if c.TierCacheTTL < 0 {
		return fmt.Errorf("config: tier_cache_ttl must not be negative, got %s", c.TierCacheTTL)
	}
	if c.Scope.DescriptionBudget <= 0 {
		return fmt.Errorf("config: scope.description_budget must be positive, got %d", c.Scope.DescriptionBudget)
	}
	if c.Scope.MemoryCeiling <= 0 {
		return fmt.Errorf("config: scope.memory_ceiling must be positive, got %d", c.Scope.MemoryCeiling)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q must be one of debug, info, warn, error", c.Log.Level)
	}
	return nil
}

// ThemesDir is where theme definition documents live.
func (c *Config) ThemesDir() string { return filepath.Join(c.DefinitionsDir, "themes") }

// FlowsDir is where flow definition documents live.
func (c *Config) FlowsDir() string { return filepath.Join(c.DefinitionsDir, "flows") }
