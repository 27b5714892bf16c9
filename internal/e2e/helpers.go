//go:build e2e
// +build e2e

package e2e

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"agentrix/internal/discovery"
	"agentrix/internal/instance"
	"agentrix/internal/logging"
	"agentrix/internal/process"
	"agentrix/internal/repo"
	"agentrix/internal/watch"
	"agentrix/internal/web"
	"agentrix/internal/worktree"
)

// SkipIfGitMissing skips the test if git is not available.
func SkipIfGitMissing(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("Skipping test: git not found in PATH")
	}
}

// TestLogManager creates a log manager for E2E tests.
func TestLogManager(t *testing.T) *logging.TestLogManager {
	t.Helper()
	lm := logging.NewTestLogManager(1000)
	t.Cleanup(func() { _ = lm.Close() })
	return lm
}

// OriginRepo creates a repository with one commit at <tmp>/<workspace>/<repository>
// and returns a file:// URL for cloning it.
func OriginRepo(t *testing.T, workspace, repository string) string {
	t.Helper()

	dir := filepath.Join(t.TempDir(), workspace, repository)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("Failed to create origin dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("# "+repository+"\n"), 0644); err != nil {
		t.Fatalf("Failed to write README: %v", err)
	}

	for _, args := range [][]string{
		{"init", "-q"},
		{"add", "."},
		{"-c", "user.email=e2e@example.com", "-c", "user.name=E2E", "commit", "-q", "-m", "initial"},
	} {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	return "file://" + dir
}

// Stack is a running API server wired to real git, the scanner and the watcher.
type Stack struct {
	Server        *web.Server
	Client        *instance.Client
	URL           string
	Workdir       string
	WorktreesRoot string
	Logs          *logging.TestLogManager
}

// StartStack starts the full server stack on an ephemeral port.
func StartStack(t *testing.T) *Stack {
	t.Helper()

	logs := TestLogManager(t)
	workdir := t.TempDir()
	worktreesRoot := filepath.Join(t.TempDir(), "worktrees")

	locks, err := instance.NewTargetLocks(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create target locks: %v", err)
	}

	runner := process.NewExecRunner("git", logs.For("git"))
	server := web.New(
		web.Config{Bind: "127.0.0.1", Port: 0, Workdir: workdir, WorktreesRoot: worktreesRoot},
		web.Services{
			Cloner:   repo.NewCloner(runner, logs.For("repo"), locks),
			Worktree: worktree.NewCreator(runner, logs.For("worktree"), locks),
			Scanner:  discovery.NewScanner(logs.For("discovery")),
			Logs:     logs,
		},
		logs,
	)

	ln, err := server.Listen()
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Errorf("serve: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	w, err := watch.New(watch.Config{
		Roots:        []string{workdir, worktreesRoot},
		Debounce:     50 * time.Millisecond,
		PollInterval: 200 * time.Millisecond,
	}, func() { server.Notify("fs") }, logs.For("watch"))
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		_ = w.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		<-watchDone
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = server.Shutdown(shutdownCtx)
	})

	url := "http://" + server.Addr()
	return &Stack{
		Server:        server,
		Client:        instance.NewClientWithTimeout(url, time.Minute),
		URL:           url,
		Workdir:       workdir,
		WorktreesRoot: worktreesRoot,
		Logs:          logs,
	}
}
