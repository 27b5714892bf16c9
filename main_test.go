package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	flag "github.com/spf13/pflag"

	"agentrix/internal/config"
	"agentrix/internal/logging"
	"agentrix/internal/process"
)

func TestLogManagerInitialization(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "test.log")

	lm, err := logging.NewManager(logging.Config{
		FilePath:   logPath,
		MaxSizeMB:  1,
		MaxBackups: 1,
		MaxAgeDays: 1,
		Level:      "debug",
	})
	if err != nil {
		t.Fatalf("failed to create LogManager: %v", err)
	}
	defer lm.Close()

	logger := lm.For("app")
	logger.Info("test message")

	lm.Sync()

	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		t.Error("log file was not created")
	}

	recent := lm.Recent("app", 10)
	if len(recent) != 1 {
		t.Fatalf("expected 1 recent entry, got %d", len(recent))
	}
	if recent[0].Scope != "app" {
		t.Errorf("expected scope 'app', got %q", recent[0].Scope)
	}
	if recent[0].Message != "test message" {
		t.Errorf("expected message 'test message', got %q", recent[0].Message)
	}
}

func newOverrideFlags() (*flag.FlagSet, overrides) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	ov := overrides{
		host:          fs.String("host", "", ""),
		port:          fs.IntP("port", "p", 0, ""),
		workdir:       fs.StringP("workdir", "w", "", ""),
		worktreesRoot: fs.String("worktrees-root", "", ""),
		logLevel:      fs.String("log-level", "", ""),
	}
	return fs, ov
}

func TestApplyOverrides_OnlyChangedFlags(t *testing.T) {
	fs, ov := newOverrideFlags()
	if err := fs.Parse([]string{"--port", "9000", "-w", "/srv/work"}); err != nil {
		t.Fatal(err)
	}

	cfg := config.DefaultConfig()
	applyOverrides(&cfg, fs, ov)

	if cfg.Web.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Web.Port)
	}
	if cfg.Workdir != "/srv/work" {
		t.Errorf("workdir = %q", cfg.Workdir)
	}
	// Untouched flags keep the configured values.
	if cfg.Web.Bind != "0.0.0.0" {
		t.Errorf("bind = %q, want default", cfg.Web.Bind)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("log level = %q, want default", cfg.LogLevel)
	}
}

func TestApplyOverrides_ExplicitZeroPort(t *testing.T) {
	fs, ov := newOverrideFlags()
	if err := fs.Parse([]string{"--port=0", "--host", "127.0.0.1", "--worktrees-root", "/wt", "--log-level", "debug"}); err != nil {
		t.Fatal(err)
	}

	cfg := config.DefaultConfig()
	applyOverrides(&cfg, fs, ov)

	if cfg.Web.Port != 0 {
		t.Errorf("port = %d, want 0 (ephemeral)", cfg.Web.Port)
	}
	if cfg.Web.Bind != "127.0.0.1" || cfg.WorktreesRoot != "/wt" || cfg.LogLevel != "debug" {
		t.Errorf("overrides not applied: %+v", cfg)
	}
}

func TestNewOrchestrators_WithTargetLocks(t *testing.T) {
	dataDir := t.TempDir()
	lm := logging.NewTestLogManager(10)
	defer lm.Close()

	cfg := config.DefaultConfig()
	cfg.TargetLocks = true

	cloner, creator, err := newOrchestrators(cfg, dataDir, &process.FakeRunner{}, lm)
	if err != nil {
		t.Fatalf("newOrchestrators failed: %v", err)
	}
	if cloner == nil || creator == nil {
		t.Fatal("expected both orchestrators")
	}
	if _, err := os.Stat(filepath.Join(dataDir, "locks")); err != nil {
		t.Errorf("locks directory not created: %v", err)
	}

	// An invalid URL fails before any lock or git call.
	if _, err := cloner.Clone(context.Background(), "", t.TempDir()); err == nil {
		t.Error("expected error for empty url")
	}
}

func TestNewOrchestrators_WithoutTargetLocks(t *testing.T) {
	dataDir := t.TempDir()
	lm := logging.NewTestLogManager(10)
	defer lm.Close()

	_, _, err := newOrchestrators(config.DefaultConfig(), dataDir, &process.FakeRunner{}, lm)
	if err != nil {
		t.Fatalf("newOrchestrators failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dataDir, "locks")); !os.IsNotExist(err) {
		t.Errorf("locks directory should not exist, stat err = %v", err)
	}
}
