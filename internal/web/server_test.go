package web_test

import (
	"context"
	"io"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"agentrix/internal/discovery"
	"agentrix/internal/logging"
	"agentrix/internal/process"
	"agentrix/internal/repo"
	"agentrix/internal/web"
	"agentrix/internal/worktree"
)

// testEnv is a running server wired to real orchestrators over a FakeRunner.
type testEnv struct {
	baseURL       string
	workdir       string
	worktreesRoot string
	runner        *process.FakeRunner
	logs          *logging.TestLogManager
	server        *web.Server
}

// startServer starts the server on an ephemeral port. svc fields left nil
// are filled with orchestrators backed by runner.
func startServer(t *testing.T, runner *process.FakeRunner, svc web.Services) *testEnv {
	t.Helper()
	lm := logging.NewTestLogManager(200)
	t.Cleanup(func() { _ = lm.Close() })

	env := &testEnv{
		workdir:       t.TempDir(),
		worktreesRoot: t.TempDir(),
		runner:        runner,
		logs:          lm,
	}
	if svc.Cloner == nil {
		svc.Cloner = repo.NewCloner(runner, lm.For("repo"), nil)
	}
	if svc.Worktree == nil {
		svc.Worktree = worktree.NewCreator(runner, lm.For("worktree"), nil)
	}
	if svc.Scanner == nil {
		svc.Scanner = discovery.NewScanner(lm.For("discovery"))
	}
	if svc.Logs == nil {
		svc.Logs = lm
	}

	s := web.New(web.Config{
		Bind:          "127.0.0.1",
		Port:          0,
		Workdir:       env.workdir,
		WorktreesRoot: env.worktreesRoot,
	}, svc, lm)

	ln, err := s.Listen()
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- s.Serve(ln)
	}()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
		<-done
	})

	env.server = s
	env.baseURL = "http://" + s.Addr()
	return env
}

func TestHandleHealth(t *testing.T) {
	env := startServer(t, &process.FakeRunner{}, web.Services{})

	t.Run("returns 200 with JSON body", func(t *testing.T) {
		resp, err := http.Get(env.baseURL + "/api/health")
		if err != nil {
			t.Fatalf("GET /api/health error = %v", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			t.Fatalf("reading body error = %v", err)
		}

		want := `{"status":"ok"}`
		if string(body) != want {
			t.Errorf("body = %q, want %q", string(body), want)
		}
	})

	t.Run("content-type is application/json", func(t *testing.T) {
		resp, err := http.Get(env.baseURL + "/api/health")
		if err != nil {
			t.Fatalf("GET /api/health error = %v", err)
		}
		defer func() { _ = resp.Body.Close() }()

		ct := resp.Header.Get("Content-Type")
		if ct != "application/json" {
			t.Errorf("Content-Type = %q, want %q", ct, "application/json")
		}
	})
}

func TestRequestID(t *testing.T) {
	env := startServer(t, &process.FakeRunner{}, web.Services{})

	t.Run("generated when absent", func(t *testing.T) {
		resp, err := http.Get(env.baseURL + "/api/health")
		if err != nil {
			t.Fatal(err)
		}
		_ = resp.Body.Close()

		if id := resp.Header.Get("X-Request-Id"); len(id) != 36 {
			t.Errorf("X-Request-Id = %q, want a uuid", id)
		}
	})

	t.Run("caller id is echoed", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, env.baseURL+"/api/health", nil)
		req.Header.Set("X-Request-Id", "trace-123")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		_ = resp.Body.Close()

		if id := resp.Header.Get("X-Request-Id"); id != "trace-123" {
			t.Errorf("X-Request-Id = %q, want trace-123", id)
		}
	})

	t.Run("access log line written", func(t *testing.T) {
		// The line is written after the response, so allow it a moment.
		deadline := time.Now().Add(time.Second)
		for time.Now().Before(deadline) {
			for _, e := range env.logs.Entries() {
				if e.Scope == "web" && e.Message == "request" && e.Fields["request_id"] == "trace-123" {
					if e.Fields["path"] != "/api/health" {
						t.Errorf("path field = %v", e.Fields["path"])
					}
					return
				}
			}
			time.Sleep(10 * time.Millisecond)
		}
		t.Error("no access log entry for trace-123")
	})
}

func TestServer_Lifecycle(t *testing.T) {
	lm := logging.NewTestLogManager(10)
	t.Cleanup(func() { _ = lm.Close() })

	s := web.New(web.Config{Bind: "127.0.0.1", Port: 0}, web.Services{}, lm)

	ln, err := s.Listen()
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- s.Serve(ln)
	}()

	addr := s.Addr()
	if addr == "" {
		t.Fatal("Addr() returned empty string after Listen()")
	}

	resp, err := http.Get("http://" + addr + "/api/health")
	if err != nil {
		t.Fatalf("GET health error = %v", err)
	}
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}

	select {
	case err := <-done:
		if err != nil && err != http.ErrServerClosed {
			t.Errorf("Serve() returned unexpected error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Error("server did not stop after Shutdown()")
	}
}

func TestServer_AddrBeforeListen(t *testing.T) {
	lm := logging.NewTestLogManager(10)
	t.Cleanup(func() { _ = lm.Close() })

	s := web.New(web.Config{Bind: "127.0.0.1", Port: 8765}, web.Services{}, lm)

	if got := s.Addr(); got != "127.0.0.1:8765" {
		t.Errorf("Addr() = %q, want %q", got, "127.0.0.1:8765")
	}
}

func TestServer_ListenTwiceOnSamePortFails(t *testing.T) {
	env := startServer(t, &process.FakeRunner{}, web.Services{})

	lm := logging.NewTestLogManager(10)
	t.Cleanup(func() { _ = lm.Close() })

	_, portStr, err := net.SplitHostPort(env.server.Addr())
	if err != nil {
		t.Fatal(err)
	}
	port, _ := strconv.Atoi(portStr)
	s := web.New(web.Config{Bind: "127.0.0.1", Port: port}, web.Services{}, lm)
	if _, err := s.Listen(); err == nil {
		t.Fatal("Listen() on a bound port should fail")
	}
}
