// pattern: Imperative Shell
package instance

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
)

// TargetLocks hands out non-blocking advisory locks on clone and worktree
// targets. Locks are files under <dataDir>/locks, so they also exclude
// other processes using the same data directory.
type TargetLocks struct {
	dir string
}

// NewTargetLocks creates the lock directory and returns a TargetLocks.
func NewTargetLocks(dataDir string) (*TargetLocks, error) {
	dir := filepath.Join(dataDir, "locks")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	return &TargetLocks{dir: dir}, nil
}

// TryLock locks the target identified by keys. acquired is false when the
// lock is already held, by this process or another one.
func (t *TargetLocks) TryLock(keys ...string) (func(), bool, error) {
	fl := flock.New(t.path(keys))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, false, fmt.Errorf("failed to lock %s: %w", fl.Path(), err)
	}
	if !locked {
		return nil, false, nil
	}
	// The file stays behind; unlinking it would let a concurrent opener
	// lock an orphaned inode.
	return func() { _ = fl.Unlock() }, true, nil
}

// keyEscaper percent-encodes the separator and path characters, so escaped
// keys never contain '_' and distinct key tuples get distinct file names.
var keyEscaper = strings.NewReplacer("%", "%25", "_", "%5F", "/", "%2F", "\\", "%5C")

func (t *TargetLocks) path(keys []string) string {
	escaped := make([]string, len(keys))
	for i, k := range keys {
		escaped[i] = keyEscaper.Replace(k)
	}
	return filepath.Join(t.dir, strings.Join(escaped, "__")+".lock")
}
