// pattern: Imperative Shell

package worktree

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"agentrix/internal/failure"
	"agentrix/internal/logging"
	"agentrix/internal/process"
)

// ErrorKind enumerates the failure modes of Creator.Create.
type ErrorKind int

const (
	EmptyBranch ErrorKind = iota + 1
	NotAGitRepository
	WorktreeDirCreationFailed
	WorktreeCreationFailed
	TargetBusy
)

// Error is returned by Creator.Create.
type Error struct {
	Kind   ErrorKind
	Path   string // repository path or worktree target, depending on Kind
	Stderr string
	Err    error
}

// Sentinels for errors.Is; only Kind is compared.
var (
	ErrEmptyBranch       = &Error{Kind: EmptyBranch}
	ErrNotAGitRepository = &Error{Kind: NotAGitRepository}
	ErrDirCreation       = &Error{Kind: WorktreeDirCreationFailed}
	ErrCreationFailed    = &Error{Kind: WorktreeCreationFailed}
	ErrBusy              = &Error{Kind: TargetBusy}
)

func (e *Error) Error() string {
	switch e.Kind {
	case EmptyBranch:
		return "branch name cannot be empty"
	case NotAGitRepository:
		return fmt.Sprintf("%s is not a git repository", e.Path)
	case WorktreeDirCreationFailed:
		return fmt.Sprintf("failed to create worktree parent %s: %v", filepath.Dir(e.Path), e.Err)
	case WorktreeCreationFailed:
		if e.Err != nil {
			return fmt.Sprintf("git worktree add failed: %v", e.Err)
		}
		return fmt.Sprintf("git worktree add failed: %s", strings.TrimSpace(e.Stderr))
	case TargetBusy:
		return fmt.Sprintf("another operation is in progress for %s", e.Path)
	default:
		return "worktree creation failed"
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Hint implements failure.Hinter.
func (e *Error) Hint() failure.Hint {
	switch e.Kind {
	case EmptyBranch:
		return failure.BadInput
	case NotAGitRepository:
		return failure.NotFound
	case TargetBusy:
		return failure.Conflict
	default:
		return failure.Internal
	}
}

// SanitizeBranch turns a branch name into a single directory segment:
// ASCII letters, digits and '-' are kept, everything else becomes '_'.
func SanitizeBranch(branch string) string {
	trimmed := strings.TrimSpace(branch)
	var sb strings.Builder
	sb.Grow(len(trimmed))
	for _, r := range trimmed {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	return sb.String()
}

// Dir returns where the worktree for branch lives:
// <worktreesRoot>/<workspace>/<repository>/<sanitized branch>.
func Dir(worktreesRoot, workspace, repository, branch string) string {
	return filepath.Join(worktreesRoot, workspace, repository, SanitizeBranch(branch))
}

// Request describes a worktree to create.
type Request struct {
	RepoPath      string // main checkout, used as git's working directory
	Workspace     string
	Repository    string
	Branch        string // new branch name, passed to git unsanitized
	WorktreesRoot string
}

// TargetLocker grants exclusive, non-blocking access to a worktree target.
type TargetLocker interface {
	TryLock(keys ...string) (unlock func(), acquired bool, err error)
}

// Creator adds git worktrees on new branches.
type Creator struct {
	runner process.Runner
	logger *logging.ScopedLogger
	locks  TargetLocker
}

// NewCreator creates a Creator. locks may be nil.
func NewCreator(runner process.Runner, logger *logging.ScopedLogger, locks TargetLocker) *Creator {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Creator{runner: runner, logger: logger, locks: locks}
}

// Create runs `git worktree add -b <branch> <target>` inside req.RepoPath and
// returns the target directory. Nothing is cleaned up on failure; git does
// not leave a usable worktree behind when it fails.
func (c *Creator) Create(ctx context.Context, req Request) (string, error) {
	branch := strings.TrimSpace(req.Branch)
	if branch == "" {
		return "", &Error{Kind: EmptyBranch}
	}

	if _, err := os.Stat(filepath.Join(req.RepoPath, ".git")); err != nil {
		return "", &Error{Kind: NotAGitRepository, Path: req.RepoPath, Err: err}
	}

	target := Dir(req.WorktreesRoot, req.Workspace, req.Repository, branch)
	logger := c.logger.With("target", target, "branch", branch)

	if c.locks != nil {
		unlock, acquired, err := c.locks.TryLock(req.Workspace, req.Repository, SanitizeBranch(branch))
		if err != nil {
			logger.Error("failed to acquire target lock", "error", err)
			return "", &Error{Kind: WorktreeCreationFailed, Path: target, Err: err}
		}
		if !acquired {
			return "", &Error{Kind: TargetBusy, Path: target}
		}
		defer unlock()
	}

	parent := filepath.Dir(target)
	if err := os.MkdirAll(parent, 0755); err != nil {
		logger.Error("failed to create worktree parent", "dir", parent, "error", err)
		return "", &Error{Kind: WorktreeDirCreationFailed, Path: target, Err: err}
	}

	logger.Info("creating worktree", "repo_path", req.RepoPath)

	res, err := c.runner.Run(ctx, req.RepoPath, "worktree", "add", "-b", branch, target)
	if err != nil || !res.Success() {
		logger.Error("git worktree add failed", "stderr", strings.TrimSpace(res.Stderr), "exit_code", res.ExitCode, "error", err)
		return "", &Error{Kind: WorktreeCreationFailed, Path: target, Stderr: res.Stderr, Err: err}
	}

	logger.Info("worktree created")
	return target, nil
}
