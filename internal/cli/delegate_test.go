// pattern: Imperative Shell
package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"agentrix/internal/instance"
)

// startFakeInstance serves handler and makes it discoverable from the
// returned data dir, the same way a running agentrix instance would be.
func startFakeInstance(t *testing.T, handler http.HandlerFunc) string {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	tmpDir := t.TempDir()
	fl, err := instance.Lock(tmpDir)
	if err != nil {
		t.Fatalf("failed to lock: %v", err)
	}
	t.Cleanup(func() { fl.Unlock() })

	portFile := filepath.Join(tmpDir, "agentrix.port")
	if err := os.WriteFile(portFile, []byte(server.Listener.Addr().String()), 0600); err != nil {
		t.Fatalf("failed to write port file: %v", err)
	}
	return tmpDir
}

// testDelegate returns a Delegate that records its exit code and output.
func testDelegate(dataDir string) (*Delegate, *int, *bytes.Buffer, *bytes.Buffer) {
	exitCode := -1
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	d := &Delegate{
		ConfigDir: dataDir,
		ExitFunc:  func(code int) { exitCode = code },
		Stdout:    stdout,
		Stderr:    stderr,
	}
	return d, &exitCode, stdout, stderr
}

func TestDelegate_Run_NoInstance_ExitsCode2(t *testing.T) {
	d, exitCode, _, stderr := testDelegate(t.TempDir())

	d.Run(func(client *instance.Client) error {
		return fmt.Errorf("should not be called")
	})

	if *exitCode != 2 {
		t.Errorf("exit code = %d, want 2", *exitCode)
	}
	if !strings.Contains(stderr.String(), "no running agentrix instance found") {
		t.Errorf("stderr should mention the missing instance, got: %s", stderr.String())
	}
}

func TestDelegate_Run_DiscoverFailure_ExitsCode1(t *testing.T) {
	d, exitCode, _, stderr := testDelegate(t.TempDir())
	d.Discover = func(string) (string, error) {
		return "", errors.New("instance is running but not responding")
	}

	d.Run(func(client *instance.Client) error {
		t.Error("client function should not be called")
		return nil
	})

	if *exitCode != 1 {
		t.Errorf("exit code = %d, want 1", *exitCode)
	}
	if !strings.Contains(stderr.String(), "not responding") {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestDelegate_Run_Success(t *testing.T) {
	dataDir := startFakeInstance(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/sessions" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[]}`))
	})

	d, exitCode, stdout, stderr := testDelegate(dataDir)
	clientCalled := false

	d.Run(func(client *instance.Client) error {
		clientCalled = true
		data, err := client.Sessions()
		if err != nil {
			return err
		}
		return d.PrintJSON(data)
	})

	if !clientCalled {
		t.Error("client function was not called")
	}
	if *exitCode != -1 {
		t.Errorf("exit code = %d, want no exit call", *exitCode)
	}
	if stderr.Len() > 0 {
		t.Errorf("stderr should be empty on success, got: %s", stderr.String())
	}
	if strings.TrimSpace(stdout.String()) != `{"data":[]}` {
		t.Errorf("stdout = %q", stdout.String())
	}
}

func TestDelegate_Run_ClientError_ExitsCode1(t *testing.T) {
	dataDir := startFakeInstance(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":"repository already exists at /work/acme/api"}`))
	})

	d, exitCode, _, stderr := testDelegate(dataDir)

	d.Run(func(client *instance.Client) error {
		_, err := client.Clone("acme/api")
		return err
	})

	if *exitCode != 1 {
		t.Errorf("exit code = %d, want 1", *exitCode)
	}
	// The server's message is printed without the status prefix.
	if got := stderr.String(); got != "error: repository already exists at /work/acme/api\n" {
		t.Errorf("stderr = %q", got)
	}
}

func TestPrintJSON_NonTerminal_WritesRaw(t *testing.T) {
	data := []byte(`{"key":"value","number":42}`)
	buf := &bytes.Buffer{}

	if err := PrintJSON(buf, data); err != nil {
		t.Fatalf("PrintJSON returned error: %v", err)
	}
	if buf.String() != string(data) {
		t.Errorf("PrintJSON output = %q, want %q", buf.String(), data)
	}
}

func TestPrintJSON_Pipe_IsValidJSON(t *testing.T) {
	data := []byte(`{"key":"value","number":42}`)

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	err = PrintJSON(w, data)
	w.Close()
	if err != nil {
		t.Fatalf("PrintJSON returned error: %v", err)
	}

	buf := &bytes.Buffer{}
	buf.ReadFrom(r)

	var parsed map[string]any
	if err := json.Unmarshal(buf.Bytes(), &parsed); err != nil {
		t.Fatalf("PrintJSON output is not valid JSON: %v\nOutput: %s", err, buf.String())
	}
	if parsed["key"] != "value" || parsed["number"] != float64(42) {
		t.Errorf("PrintJSON output has wrong content: %v", parsed)
	}
}

func TestPrintJSON_InvalidJSON_WritesRaw(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := PrintJSON(buf, []byte(`not json`)); err != nil {
		t.Errorf("PrintJSON returned error: %v", err)
	}
	if buf.String() != "not json" {
		t.Errorf("PrintJSON output = %q, want %q", buf.String(), "not json")
	}
}

func TestDelegate_HTTPTimeout(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
		want    time.Duration
	}{
		{"default", 0, defaultClientTimeout},
		{"custom", 30 * time.Second, 30 * time.Second},
		{"none", NoClientTimeout, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Delegate{ClientTimeout: tt.timeout}
			d.setDefaults()
			if got := d.httpTimeout(); got != tt.want {
				t.Errorf("httpTimeout() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGitDelegate_HasNoDeadline(t *testing.T) {
	d := gitDelegate("/data")
	d.setDefaults()
	if d.ConfigDir != "/data" {
		t.Errorf("ConfigDir = %q", d.ConfigDir)
	}
	if got := d.httpTimeout(); got != 0 {
		t.Errorf("httpTimeout() = %v, want no deadline", got)
	}
}
