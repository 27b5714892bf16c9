// pattern: Imperative Shell
package instance

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

const healthTimeout = 2 * time.Second

// ErrNoInstance is returned by Discover when nothing holds the instance lock.
var ErrNoInstance = errors.New("no running agentrix instance found (start agentrix first)")

// Discover checks whether a running agentrix instance exists and returns
// its base URL (e.g. "http://127.0.0.1:4567"). Returns ErrNoInstance if no
// instance is running, or another error if the port file is missing or the
// health check fails.
func Discover(dataDir string) (string, error) {
	// If we can take the lock, no instance is running.
	fl := flock.New(filepath.Join(dataDir, lockFileName))
	locked, err := fl.TryLock()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNoInstance
		}
		return "", fmt.Errorf("failed to check lock: %w", err)
	}
	if locked {
		_ = fl.Unlock()
		return "", ErrNoInstance
	}

	data, err := os.ReadFile(filepath.Join(dataDir, portFileName))
	if err != nil {
		return "", fmt.Errorf("agentrix instance detected but port file missing (try 'agentrix cleanup'): %w", err)
	}

	addr := strings.TrimSpace(string(data))
	if addr == "" {
		return "", fmt.Errorf("agentrix port file is empty (try 'agentrix cleanup')")
	}

	baseURL := "http://" + dialAddr(addr)

	client := &http.Client{Timeout: healthTimeout}
	resp, err := client.Get(baseURL + "/api/health")
	if err != nil {
		return "", fmt.Errorf("agentrix instance not responding (try 'agentrix cleanup'): %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("agentrix health check failed (status %d)", resp.StatusCode)
	}

	return baseURL, nil
}

// dialAddr rewrites a wildcard listen address into one a client can dial.
func dialAddr(addr string) string {
	for _, wildcard := range []string{"0.0.0.0:", "[::]:"} {
		if port, ok := strings.CutPrefix(addr, wildcard); ok {
			return "127.0.0.1:" + port
		}
	}
	return addr
}
