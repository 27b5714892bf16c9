// pattern: Imperative Shell
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"agentrix/internal/instance"
)

const defaultClientTimeout = 10 * time.Second

// NoClientTimeout disables the HTTP client deadline. The server cancels git
// when the client disconnects.
const NoClientTimeout time.Duration = -1

// Delegate coordinates discovering a running agentrix instance and delegating
// a CLI command to it via HTTP. It handles error classification (no instance vs
// other errors) and exit code logic.
type Delegate struct {
	// ConfigDir is the config directory for lock/port file discovery.
	ConfigDir string

	// ExitFunc is called to exit the process. Defaults to os.Exit.
	// Overridable for testing.
	ExitFunc func(int)

	// Stdout receives command output. Defaults to os.Stdout.
	Stdout io.Writer

	// Stderr is where error messages are written. Defaults to os.Stderr.
	// Overridable for testing.
	Stderr io.Writer

	// ClientTimeout is the HTTP client timeout. Defaults to 10 seconds;
	// NoClientTimeout waits indefinitely.
	ClientTimeout time.Duration

	// Discover finds the running instance. Defaults to instance.Discover.
	Discover func(dataDir string) (string, error)
}

func (d *Delegate) setDefaults() {
	if d.ExitFunc == nil {
		d.ExitFunc = os.Exit
	}
	if d.Stdout == nil {
		d.Stdout = os.Stdout
	}
	if d.Stderr == nil {
		d.Stderr = os.Stderr
	}
	if d.ClientTimeout == 0 {
		d.ClientTimeout = defaultClientTimeout
	}
	if d.Discover == nil {
		d.Discover = instance.Discover
	}
}

// discover initializes defaults, discovers the running instance, and returns an HTTP client.
// On discovery error, prints error message, calls ExitFunc, and returns nil.
func (d *Delegate) discover() *instance.Client {
	d.setDefaults()

	baseURL, err := d.Discover(ResolveDataDir(d.ConfigDir))
	if err != nil {
		fmt.Fprintf(d.Stderr, "error: %v\n", err)
		if errors.Is(err, instance.ErrNoInstance) {
			d.ExitFunc(2)
		} else {
			d.ExitFunc(1)
		}
		return nil
	}

	return instance.NewClientWithTimeout(baseURL, d.httpTimeout())
}

// httpTimeout is the http.Client timeout for ClientTimeout; 0 means none.
func (d *Delegate) httpTimeout() time.Duration {
	if d.ClientTimeout < 0 {
		return 0
	}
	return d.ClientTimeout
}

// Run executes a delegated command by discovering the running instance and
// invoking fn with an HTTP client targeting it.
//
// Exit codes:
// - 2: no running agentrix instance found
// - 1: any other error (connection, client method failed, etc.)
// - 0: success (fn returned nil)
func (d *Delegate) Run(fn func(*instance.Client) error) {
	client := d.discover()
	if client == nil {
		return
	}

	if err := fn(client); err != nil {
		var se *instance.StatusError
		if errors.As(err, &se) {
			fmt.Fprintf(d.Stderr, "error: %s\n", se.Message)
		} else {
			fmt.Fprintf(d.Stderr, "error: %v\n", err)
		}
		d.ExitFunc(1)
	}
}

// PrintJSON pretty-prints JSON data to d.Stdout.
func (d *Delegate) PrintJSON(data []byte) error {
	return PrintJSON(d.Stdout, data)
}

// PrintJSON writes JSON data to w. When w is a terminal the output is
// indented for readability; otherwise the raw bytes are written.
func PrintJSON(w io.Writer, data []byte) error {
	if !isTerminal(w) {
		_, err := w.Write(data)
		return err
	}

	var obj any
	if err := json.Unmarshal(data, &obj); err != nil {
		_, err := w.Write(data)
		return err
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(obj)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
