// pattern: Imperative Shell

package discovery

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"syscall"

	"agentrix/internal/logging"
)

// Scanner builds the workspace tree from the filesystem. It holds no state
// between scans and is safe for concurrent use.
type Scanner struct {
	logger *logging.ScopedLogger
}

// NewScanner creates a new workspace scanner. logger may be nil.
func NewScanner(logger *logging.ScopedLogger) *Scanner {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Scanner{logger: logger}
}

// Scan walks <workdir>/<workspace>/<repository> and attaches the worktrees
// found under <worktreesRoot>/<workspace>/<repository>/. Every level is
// sorted by name and only directories are considered. A missing workdir
// yields an empty tree; any other read error is returned.
func (s *Scanner) Scan(workdir, worktreesRoot string) ([]Workspace, error) {
	wsNames, err := listDirs(workdir)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Debug("working directory does not exist", "workdir", workdir)
		return []Workspace{}, nil
	}
	if err != nil {
		s.logger.Error("failed to read working directory", "workdir", workdir, "error", err)
		return nil, err
	}

	workspaces := make([]Workspace, 0, len(wsNames))
	for _, wsName := range wsNames {
		repoNames, err := listDirs(filepath.Join(workdir, wsName))
		if err != nil {
			s.logger.Error("failed to read workspace", "workspace", wsName, "error", err)
			return nil, fmt.Errorf("scanning workspace %s: %w", wsName, err)
		}

		repos := make([]Repository, 0, len(repoNames))
		for _, repoName := range repoNames {
			worktrees, err := scanWorktrees(filepath.Join(worktreesRoot, wsName, repoName))
			if err != nil {
				s.logger.Error("failed to read worktrees", "workspace", wsName, "repository", repoName, "error", err)
				return nil, fmt.Errorf("scanning worktrees of %s/%s: %w", wsName, repoName, err)
			}
			repos = append(repos, Repository{
				Name:      repoName,
				Plans:     []Plan{},
				Worktrees: worktrees,
			})
		}

		workspaces = append(workspaces, Workspace{Name: wsName, Repositories: repos})
	}

	s.logger.Debug("scan complete", "workdir", workdir, "workspaces", len(workspaces))
	return workspaces, nil
}

// scanWorktrees lists the worktrees of one repository. A directory that is
// missing, or a path blocked by a regular file, means the repository has none.
func scanWorktrees(dir string) ([]Worktree, error) {
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) || (err == nil && !info.IsDir()) {
		return []Worktree{}, nil
	}
	if err != nil {
		return nil, err
	}

	names, err := listDirs(dir)
	if err != nil {
		return nil, err
	}

	worktrees := make([]Worktree, 0, len(names))
	for _, name := range names {
		worktrees = append(worktrees, Worktree{Name: name, Terminals: []Terminal{}})
	}
	return worktrees, nil
}

// listDirs returns the sorted names of the immediate subdirectories of dir.
// Symlinks and regular files are skipped.
func listDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
