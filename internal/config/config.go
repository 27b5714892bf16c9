package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	defaultWorkdir       = "."
	defaultWorktreesRoot = "~/.agentrix/worktrees"
	defaultBind          = "0.0.0.0"
	defaultPort          = 4567
	defaultLogLevel      = "info"
	defaultGitBinary     = "git"
)

type Config struct {
	Workdir       string        `yaml:"workdir"`
	WorktreesRoot string        `yaml:"worktrees_root"`
	Web           WebConfig     `yaml:"web"`
	LogLevel      string        `yaml:"log_level"`
	LogFile       LogFileConfig `yaml:"log_file"`
	GitBinary     string        `yaml:"git_binary"`
	TargetLocks   bool          `yaml:"target_locks"`
	Watch         bool          `yaml:"watch"`
}

type WebConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

// LogFileConfig controls rotation of agentrix.log.
type LogFileConfig struct {
	MaxSizeMB  int `yaml:"max_size_mb"`
	MaxBackups int `yaml:"max_backups"`
	MaxAgeDays int `yaml:"max_age_days"`
}

// LookPathFunc is the function signature for looking up executables.
type LookPathFunc func(name string) (string, error)

func DefaultConfig() Config {
	return Config{
		Workdir:       defaultWorkdir,
		WorktreesRoot: defaultWorktreesRoot,
		Web:           WebConfig{Bind: defaultBind, Port: defaultPort},
		LogLevel:      defaultLogLevel,
		LogFile:       LogFileConfig{MaxSizeMB: 10, MaxBackups: 3, MaxAgeDays: 7},
		GitBinary:     defaultGitBinary,
		Watch:         true,
	}
}

func Load() (Config, error) {
	return LoadFrom(getConfigPath())
}

// LoadFromDir loads config.yaml from dir (the --config-dir flag).
func LoadFromDir(dir string) (Config, error) {
	return LoadFrom(filepath.Join(dir, "config.yaml"))
}

func LoadFrom(configPath string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("parse %s: %w", configPath, err)
	}

	// Keys present but left blank fall back to defaults.
	if cfg.Workdir == "" {
		cfg.Workdir = defaultWorkdir
	}
	if cfg.WorktreesRoot == "" {
		cfg.WorktreesRoot = defaultWorktreesRoot
	}
	if cfg.Web.Bind == "" {
		cfg.Web.Bind = defaultBind
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}
	if cfg.GitBinary == "" {
		cfg.GitBinary = defaultGitBinary
	}

	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Workdir) == "" {
		return errors.New("workdir must not be empty")
	}
	if strings.TrimSpace(c.WorktreesRoot) == "" {
		return errors.New("worktrees_root must not be empty")
	}
	if c.Web.Port < 0 || c.Web.Port > 65535 {
		return fmt.Errorf("web.port %d out of range", c.Web.Port)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	if strings.TrimSpace(c.GitBinary) == "" {
		return errors.New("git_binary must not be empty")
	}
	return nil
}

// ResolveWorkdir returns the working root as an absolute path.
func (c *Config) ResolveWorkdir() (string, error) {
	return resolvePath(c.Workdir)
}

// ResolveWorktreesRoot returns the worktrees root as an absolute path.
// Fails when the root is home-relative and no home directory is known.
func (c *Config) ResolveWorktreesRoot() (string, error) {
	return resolvePath(c.WorktreesRoot)
}

// ResolveGitBinary returns the configured git binary's location on PATH.
func (c *Config) ResolveGitBinary() (string, error) {
	return c.ResolveGitBinaryWith(exec.LookPath)
}

// ResolveGitBinaryWith resolves the git binary using the provided lookup
// function.
func (c *Config) ResolveGitBinaryWith(lookPath LookPathFunc) (string, error) {
	path, err := lookPath(c.GitBinary)
	if err != nil {
		return "", fmt.Errorf("git binary %q not found: %w", c.GitBinary, err)
	}
	return path, nil
}

// resolvePath expands a leading ~ and makes p absolute.
func resolvePath(p string) (string, error) {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home := os.Getenv("HOME")
		if home == "" {
			return "", fmt.Errorf("cannot expand %q: HOME is not set", p)
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", p, err)
	}
	return abs, nil
}

// DataDir returns the directory holding the lock, port and log files:
// configDir when set, otherwise the directory config.yaml is read from.
func DataDir(configDir string) string {
	if configDir != "" {
		return configDir
	}
	return filepath.Dir(getConfigPath())
}

func getConfigPath() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "agentrix", "config.yaml")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "agentrix", "config.yaml")
	}

	return filepath.Join(home, ".config", "agentrix", "config.yaml")
}
