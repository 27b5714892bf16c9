package worktree

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentrix/internal/failure"
	"agentrix/internal/logging"
	"agentrix/internal/process"
)

func TestSanitizeBranch(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"feat/new-feature", "feat_new-feature"},
		{"fix/horrible-bug", "fix_horrible-bug"},
		{"  spaced  ", "spaced"},
		{"a/b c!", "a_b_c_"},
		{"weird chars!*", "weird_chars__"},
		{"release/v1.2", "release_v1_2"},
		{"ünïcode", "_n_code"},
		{"UPPER-lower-123", "UPPER-lower-123"},
		{"../escape", "___escape"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeBranch(tt.input))
		})
	}
}

func TestDir(t *testing.T) {
	got := Dir("/home/user/.agentrix/worktrees", "acme", "api", "feat/x")
	assert.Equal(t, "/home/user/.agentrix/worktrees/acme/api/feat_x", got)
}

// newGitDir creates a directory that passes the git metadata check.
func newGitDir(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "acme", "api")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0755))
	return dir
}

func newTestCreator(t *testing.T, runner process.Runner) *Creator {
	t.Helper()
	lm := logging.NewTestLogManager(100)
	t.Cleanup(func() { _ = lm.Close() })
	return NewCreator(runner, lm.For("worktree"), nil)
}

func TestCreate_Success(t *testing.T) {
	repoPath := newGitDir(t)
	root := filepath.Join(t.TempDir(), "worktrees")
	runner := &process.FakeRunner{}
	c := newTestCreator(t, runner)

	got, err := c.Create(context.Background(), Request{
		RepoPath:      repoPath,
		Workspace:     "acme",
		Repository:    "api",
		Branch:        "  feat/new-feature ",
		WorktreesRoot: root,
	})
	require.NoError(t, err)

	want := filepath.Join(root, "acme", "api", "feat_new-feature")
	assert.Equal(t, want, got)
	assert.DirExists(t, filepath.Dir(want), "parent directory is created")

	calls := runner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, repoPath, calls[0].Dir)
	// git gets the trimmed but unsanitized branch name
	assert.Equal(t, []string{"worktree", "add", "-b", "feat/new-feature", want}, calls[0].Args)
}

func TestCreate_EmptyBranch(t *testing.T) {
	for _, branch := range []string{"", "   ", "\t\n"} {
		t.Run("branch="+branch, func(t *testing.T) {
			root := filepath.Join(t.TempDir(), "worktrees")
			runner := &process.FakeRunner{}
			c := newTestCreator(t, runner)

			_, err := c.Create(context.Background(), Request{
				RepoPath:      newGitDir(t),
				Workspace:     "acme",
				Repository:    "api",
				Branch:        branch,
				WorktreesRoot: root,
			})
			assert.ErrorIs(t, err, ErrEmptyBranch)
			assert.Equal(t, failure.BadInput, failure.HintOf(err))
			assert.Empty(t, runner.Calls())
			assert.NoDirExists(t, root, "no filesystem writes for an empty branch")
		})
	}
}

func TestCreate_NotAGitRepository(t *testing.T) {
	repoPath := t.TempDir()
	root := filepath.Join(t.TempDir(), "worktrees")
	runner := &process.FakeRunner{}
	c := newTestCreator(t, runner)

	_, err := c.Create(context.Background(), Request{
		RepoPath:      repoPath,
		Workspace:     "acme",
		Repository:    "api",
		Branch:        "feat/x",
		WorktreesRoot: root,
	})
	assert.ErrorIs(t, err, ErrNotAGitRepository)
	assert.Equal(t, failure.NotFound, failure.HintOf(err))
	assert.Contains(t, err.Error(), repoPath)
	assert.Empty(t, runner.Calls(), "git must not run for a non-git directory")
	assert.NoDirExists(t, root)
}

func TestCreate_MissingRepository(t *testing.T) {
	runner := &process.FakeRunner{}
	c := newTestCreator(t, runner)

	_, err := c.Create(context.Background(), Request{
		RepoPath:      filepath.Join(t.TempDir(), "nope"),
		Workspace:     "acme",
		Repository:    "nope",
		Branch:        "main-2",
		WorktreesRoot: t.TempDir(),
	})
	assert.ErrorIs(t, err, ErrNotAGitRepository)
	assert.Empty(t, runner.Calls())
}

func TestCreate_GitFailure(t *testing.T) {
	runner := &process.FakeRunner{
		Result: process.Result{ExitCode: 128, Stderr: "fatal: a branch named 'feat/x' already exists\n"},
	}
	c := newTestCreator(t, runner)

	_, err := c.Create(context.Background(), Request{
		RepoPath:      newGitDir(t),
		Workspace:     "acme",
		Repository:    "api",
		Branch:        "feat/x",
		WorktreesRoot: t.TempDir(),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCreationFailed)
	assert.Equal(t, failure.Internal, failure.HintOf(err))
	assert.Contains(t, err.Error(), "already exists")

	var werr *Error
	require.True(t, errors.As(err, &werr))
	assert.Equal(t, "fatal: a branch named 'feat/x' already exists\n", werr.Stderr)
}

func TestCreate_SpawnError(t *testing.T) {
	runner := &process.FakeRunner{Err: errors.New("exec: \"git\": executable file not found in $PATH")}
	c := newTestCreator(t, runner)

	_, err := c.Create(context.Background(), Request{
		RepoPath:      newGitDir(t),
		Workspace:     "acme",
		Repository:    "api",
		Branch:        "feat/x",
		WorktreesRoot: t.TempDir(),
	})
	assert.ErrorIs(t, err, ErrCreationFailed)
	assert.Contains(t, err.Error(), "executable file not found")
}

func TestCreate_ParentCreationFailed(t *testing.T) {
	root := t.TempDir()
	// A file where the workspace directory should go
	require.NoError(t, os.WriteFile(filepath.Join(root, "acme"), nil, 0644))
	runner := &process.FakeRunner{}
	c := newTestCreator(t, runner)

	_, err := c.Create(context.Background(), Request{
		RepoPath:      newGitDir(t),
		Workspace:     "acme",
		Repository:    "api",
		Branch:        "feat/x",
		WorktreesRoot: root,
	})
	assert.ErrorIs(t, err, ErrDirCreation)
	assert.Empty(t, runner.Calls())
}

type heldLocker struct{}

func (heldLocker) TryLock(...string) (func(), bool, error) { return nil, false, nil }

func TestCreate_TargetBusy(t *testing.T) {
	runner := &process.FakeRunner{}
	c := NewCreator(runner, nil, heldLocker{})

	_, err := c.Create(context.Background(), Request{
		RepoPath:      newGitDir(t),
		Workspace:     "acme",
		Repository:    "api",
		Branch:        "feat/x",
		WorktreesRoot: t.TempDir(),
	})
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, failure.Conflict, failure.HintOf(err))
	assert.Empty(t, runner.Calls())
}

func git(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))
}

func TestCreate_RealGit(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	repoPath := filepath.Join(t.TempDir(), "repo")
	require.NoError(t, os.MkdirAll(repoPath, 0755))
	git(t, repoPath, "init", "-q")
	git(t, repoPath, "config", "user.email", "test@example.com")
	git(t, repoPath, "config", "user.name", "Agentrix")
	require.NoError(t, os.WriteFile(filepath.Join(repoPath, "README.md"), []byte("hello"), 0644))
	git(t, repoPath, "add", ".")
	git(t, repoPath, "commit", "-q", "-m", "initial")

	root := filepath.Join(t.TempDir(), "worktrees")
	c := newTestCreator(t, process.NewExecRunner("git", nil))
	req := Request{
		RepoPath:      repoPath,
		Workspace:     "afx-hedge-fund",
		Repository:    "platform",
		Branch:        "feat/new-feature",
		WorktreesRoot: root,
	}

	created, err := c.Create(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "afx-hedge-fund", "platform", "feat_new-feature"), created)
	assert.FileExists(t, filepath.Join(created, "README.md"))

	// Same branch again: git refuses and the failure surfaces.
	_, err = c.Create(context.Background(), req)
	assert.ErrorIs(t, err, ErrCreationFailed)
}
