// pattern: Imperative Shell
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"agentrix/internal/cli"
	"agentrix/internal/config"
	"agentrix/internal/discovery"
	"agentrix/internal/instance"
	"agentrix/internal/logging"
	"agentrix/internal/process"
	"agentrix/internal/repo"
	"agentrix/internal/watch"
	"agentrix/internal/web"
	"agentrix/internal/worktree"
)

var version = "dev"

// overrides holds command-line values that take precedence over config.yaml.
type overrides struct {
	host          *string
	port          *int
	workdir       *string
	worktreesRoot *string
	logLevel      *string
}

func main() {
	// Stop parsing flags after the first non-flag arg (the subcommand),
	// so that --help after a subcommand is handled by the subcommand.
	flag.CommandLine.SetInterspersed(false)

	configDir := flag.StringP("config-dir", "c", "", "config directory (default: ~/.config/agentrix)")
	agentHelp := flag.Bool("agent-help", false, "print workspace guide for agents")
	ov := overrides{
		host:          flag.String("host", "", "address to bind the API server to"),
		port:          flag.IntP("port", "p", 0, "port for the API server"),
		workdir:       flag.StringP("workdir", "w", "", "working root holding <workspace>/<repository> checkouts"),
		worktreesRoot: flag.String("worktrees-root", "", "root directory for git worktrees"),
		logLevel:      flag.String("log-level", "", "minimum log level (debug, info, warn, error)"),
	}

	// Override flag.Usage before Parse so --help uses the CLI app's help
	flag.Usage = func() {
		app := cli.BuildApp(version, *configDir)
		app.PrintHelp(os.Stderr)
		flag.PrintDefaults()
	}

	flag.Parse()

	app := cli.BuildApp(version, *configDir)

	if *agentHelp {
		app.PrintAgentHelp(os.Stdout)
		return
	}

	if app.Execute(flag.Args()) {
		if err := runServer(*configDir, flag.CommandLine, ov); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
}

// loadConfig loads the configuration from the specified directory or default location.
func loadConfig(configDir string) (config.Config, error) {
	if configDir != "" {
		return config.LoadFromDir(configDir)
	}
	return config.Load()
}

// applyOverrides copies explicitly set flags onto cfg.
func applyOverrides(cfg *config.Config, fs *flag.FlagSet, ov overrides) {
	if fs.Changed("host") {
		cfg.Web.Bind = *ov.host
	}
	if fs.Changed("port") {
		cfg.Web.Port = *ov.port
	}
	if fs.Changed("workdir") {
		cfg.Workdir = *ov.workdir
	}
	if fs.Changed("worktrees-root") {
		cfg.WorktreesRoot = *ov.worktreesRoot
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = *ov.logLevel
	}
}

// runServer starts the API server and blocks until SIGINT or SIGTERM.
func runServer(configDir string, fs *flag.FlagSet, ov overrides) error {
	cfg, err := loadConfig(configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config: %v\n", err)
	}
	applyOverrides(&cfg, fs, ov)

	if err := cfg.Validate(); err != nil {
		return err
	}

	workdir, err := cfg.ResolveWorkdir()
	if err != nil {
		return err
	}
	worktreesRoot, err := cfg.ResolveWorktreesRoot()
	if err != nil {
		return err
	}

	dataDir := cli.ResolveDataDir(configDir)

	// Acquire single-instance lock
	fl, err := instance.Lock(dataDir)
	if err != nil {
		return err
	}
	defer instance.Cleanup(dataDir, fl)

	logManager, err := logging.NewManager(logging.Config{
		FilePath:   filepath.Join(dataDir, "agentrix.log"),
		MaxSizeMB:  cfg.LogFile.MaxSizeMB,
		MaxBackups: cfg.LogFile.MaxBackups,
		MaxAgeDays: cfg.LogFile.MaxAgeDays,
		Level:      cfg.LogLevel,
		Console:    true,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer func() { _ = logManager.Close() }()

	appLogger := logManager.For("app")
	appLogger.Info("agentrix starting", "version", version, "workdir", workdir, "worktrees_root", worktreesRoot)

	gitBinary, err := cfg.ResolveGitBinary()
	if err != nil {
		appLogger.Error("git not available", "error", err)
		return err
	}
	runner := process.NewExecRunner(gitBinary, logManager.For("git"))

	cloner, creator, err := newOrchestrators(cfg, dataDir, runner, logManager)
	if err != nil {
		return err
	}

	server := web.New(
		web.Config{Bind: cfg.Web.Bind, Port: cfg.Web.Port, Workdir: workdir, WorktreesRoot: worktreesRoot},
		web.Services{
			Cloner:   cloner,
			Worktree: creator,
			Scanner:  discovery.NewScanner(logManager.For("discovery")),
			Logs:     logManager,
		},
		logManager,
	)
	ln, err := server.Listen()
	if err != nil {
		appLogger.Error("web server listen error", "error", err)
		return err
	}

	// Write port file for CLI discovery
	if err := instance.WritePort(dataDir, server.Addr()); err != nil {
		appLogger.Error("failed to write port file", "error", err)
	}
	appLogger.Info("listening", "addr", server.Addr())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Watch {
		w, err := watch.New(
			watch.Config{Roots: []string{workdir, worktreesRoot}},
			func() { server.Notify("fs") },
			logManager.For("watch"),
		)
		if err != nil {
			appLogger.Warn("filesystem watch disabled", "error", err)
		} else {
			go func() {
				if err := w.Run(ctx); err != nil {
					appLogger.Warn("filesystem watch stopped", "error", err)
				}
			}()
		}
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		appLogger.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			appLogger.Error("web server error", "error", err)
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("web server shutdown error", "error", err)
	}

	appLogger.Info("agentrix stopped")
	return nil
}

// newOrchestrators builds the clone and worktree orchestrators, sharing
// cross-process target locks when cfg.TargetLocks is set.
func newOrchestrators(cfg config.Config, dataDir string, runner process.Runner, lp logging.LoggerProvider) (*repo.Cloner, *worktree.Creator, error) {
	if !cfg.TargetLocks {
		return repo.NewCloner(runner, lp.For("repo"), nil), worktree.NewCreator(runner, lp.For("worktree"), nil), nil
	}

	locks, err := instance.NewTargetLocks(dataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up target locks: %w", err)
	}
	return repo.NewCloner(runner, lp.For("repo"), locks), worktree.NewCreator(runner, lp.For("worktree"), locks), nil
}
