// pattern: Imperative Shell

package repo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"agentrix/internal/failure"
	"agentrix/internal/logging"
	"agentrix/internal/process"
)

// CloneErrorKind enumerates the failure modes of Cloner.Clone.
type CloneErrorKind int

const (
	InvalidURL CloneErrorKind = iota + 1
	AlreadyExists
	InspectionFailed
	WorkspaceDirCreationFailed
	CloneFailed
	TargetBusy
)

// CloneError is returned by Cloner.Clone. Path is the clone target when one
// had been computed; Stderr carries git's output for CloneFailed.
type CloneError struct {
	Kind   CloneErrorKind
	Path   string
	Stderr string
	Err    error
}

// Sentinels for errors.Is; only Kind is compared.
var (
	ErrInvalidURL     = &CloneError{Kind: InvalidURL}
	ErrAlreadyExists  = &CloneError{Kind: AlreadyExists}
	ErrCloneFailed    = &CloneError{Kind: CloneFailed}
	ErrCloneDirFailed = &CloneError{Kind: WorkspaceDirCreationFailed}
	ErrCloneBusy      = &CloneError{Kind: TargetBusy}
)

func (e *CloneError) Error() string {
	switch e.Kind {
	case InvalidURL:
		return fmt.Sprintf("invalid repository url: %v", e.Err)
	case AlreadyExists:
		return fmt.Sprintf("repository already exists at %s", e.Path)
	case InspectionFailed:
		return fmt.Sprintf("failed to inspect %s: %v", e.Path, e.Err)
	case WorkspaceDirCreationFailed:
		return fmt.Sprintf("failed to create workspace directory %s: %v", filepath.Dir(e.Path), e.Err)
	case CloneFailed:
		if e.Err != nil {
			return fmt.Sprintf("git clone failed: %v", e.Err)
		}
		return fmt.Sprintf("git clone failed: %s", strings.TrimSpace(e.Stderr))
	case TargetBusy:
		return fmt.Sprintf("another operation is in progress for %s", e.Path)
	default:
		return "clone failed"
	}
}

func (e *CloneError) Unwrap() error { return e.Err }

// Is matches any *CloneError of the same Kind.
func (e *CloneError) Is(target error) bool {
	t, ok := target.(*CloneError)
	return ok && t.Kind == e.Kind
}

// Hint implements failure.Hinter.
func (e *CloneError) Hint() failure.Hint {
	switch e.Kind {
	case InvalidURL:
		return failure.BadInput
	case AlreadyExists, TargetBusy:
		return failure.Conflict
	default:
		return failure.Internal
	}
}

// Cloned describes a freshly cloned repository.
type Cloned struct {
	Coordinates
	Path string `json:"path"`
}

// TargetLocker grants exclusive, non-blocking access to a clone or worktree
// target. Acquired is false when another holder has it.
type TargetLocker interface {
	TryLock(keys ...string) (unlock func(), acquired bool, err error)
}

// Cloner clones repositories into <workdir>/<workspace>/<repository>.
type Cloner struct {
	runner process.Runner
	logger *logging.ScopedLogger
	locks  TargetLocker
}

// NewCloner creates a Cloner. locks may be nil, in which case concurrent
// clones of the same target race on the existence check.
func NewCloner(runner process.Runner, logger *logging.ScopedLogger, locks TargetLocker) *Cloner {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Cloner{runner: runner, logger: logger, locks: locks}
}

// Clone parses repositoryURL, refuses to touch an existing target, runs
// `git clone <url> <target>` and removes the target again if git fails.
// The URL is handed to git as given (whitespace-trimmed), not rebuilt from
// its coordinates.
func (c *Cloner) Clone(ctx context.Context, repositoryURL, workdir string) (Cloned, error) {
	coords, err := ParseURL(repositoryURL)
	if err != nil {
		return Cloned{}, &CloneError{Kind: InvalidURL, Err: err}
	}
	if isDotSegment(coords.Workspace) || isDotSegment(coords.Repository) {
		return Cloned{}, &CloneError{
			Kind: InvalidURL,
			Err:  fmt.Errorf("%q resolves outside the working directory", repositoryURL),
		}
	}

	target := filepath.Join(workdir, coords.Workspace, coords.Repository)
	logger := c.logger.With("target", target)

	if c.locks != nil {
		unlock, acquired, err := c.locks.TryLock(coords.Workspace, coords.Repository)
		if err != nil {
			logger.Error("failed to acquire target lock", "error", err)
			return Cloned{}, &CloneError{Kind: InspectionFailed, Path: target, Err: err}
		}
		if !acquired {
			return Cloned{}, &CloneError{Kind: TargetBusy, Path: target}
		}
		defer unlock()
	}

	if _, err := os.Lstat(target); err == nil {
		return Cloned{}, &CloneError{Kind: AlreadyExists, Path: target}
	} else if !errors.Is(err, fs.ErrNotExist) {
		logger.Error("failed to inspect clone target", "error", err)
		return Cloned{}, &CloneError{Kind: InspectionFailed, Path: target, Err: err}
	}

	parent := filepath.Dir(target)
	if err := os.MkdirAll(parent, 0755); err != nil {
		logger.Error("failed to create workspace directory", "dir", parent, "error", err)
		return Cloned{}, &CloneError{Kind: WorkspaceDirCreationFailed, Path: target, Err: err}
	}

	url := strings.TrimSpace(repositoryURL)
	logger.Info("cloning repository", "url", url)

	res, runErr := c.runner.Run(ctx, parent, "clone", url, target)
	if runErr != nil || !res.Success() {
		// Cleanup is best-effort and never replaces the clone error.
		if err := os.RemoveAll(target); err != nil {
			logger.Warn("failed to remove partial clone", "error", err)
		}
		logger.Error("git clone failed", "stderr", strings.TrimSpace(res.Stderr), "exit_code", res.ExitCode, "error", runErr)
		return Cloned{}, &CloneError{Kind: CloneFailed, Path: target, Stderr: res.Stderr, Err: runErr}
	}

	logger.Info("repository cloned", "workspace", coords.Workspace, "repository", coords.Repository)
	return Cloned{Coordinates: coords, Path: target}, nil
}

func isDotSegment(s string) bool {
	return s == "." || s == ".."
}
