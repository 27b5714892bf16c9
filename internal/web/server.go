// pattern: Imperative Shell

package web

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"agentrix/internal/discovery"
	"agentrix/internal/logging"
	"agentrix/internal/repo"
	"agentrix/internal/worktree"
)

// Cloner clones a repository into the working directory.
type Cloner interface {
	Clone(ctx context.Context, repositoryURL, workdir string) (repo.Cloned, error)
}

// WorktreeCreator adds a worktree on a new branch.
type WorktreeCreator interface {
	Create(ctx context.Context, req worktree.Request) (string, error)
}

// TreeScanner builds the workspace tree.
type TreeScanner interface {
	Scan(workdir, worktreesRoot string) ([]discovery.Workspace, error)
}

// Config holds web server configuration.
type Config struct {
	Bind          string
	Port          int
	Workdir       string // resolved working root
	WorktreesRoot string // resolved worktrees root
}

// Services are the operations the API exposes. Logs may be nil, in which
// case GET /api/logs returns an empty list.
type Services struct {
	Cloner   Cloner
	Worktree WorktreeCreator
	Scanner  TreeScanner
	Logs     logging.RecentProvider
}

// Server is the HTTP API server.
type Server struct {
	httpServer *http.Server
	cfg        Config
	svc        Services
	logger     *logging.ScopedLogger
	addr       string
	listener   net.Listener
	events     *eventBroker
}

// New creates a web server.
// logProvider must implement logging.LoggerProvider (both *logging.Manager and
// *logging.TestLogManager satisfy this interface).
func New(cfg Config, svc Services, logProvider logging.LoggerProvider) *Server {
	logger := logProvider.For("web")
	addr := net.JoinHostPort(cfg.Bind, fmt.Sprint(cfg.Port))

	mux := http.NewServeMux()

	s := &Server{
		cfg:    cfg,
		svc:    svc,
		logger: logger,
		addr:   addr,
		events: newEventBroker(),
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.withRequestLogging(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("GET /api/logs", s.handleListLogs)
	mux.HandleFunc("POST /api/repos", s.handleCloneRepository)
	mux.HandleFunc("POST /api/worktrees", s.handleCreateWorktree)

	return s
}

// Listen binds the server to its configured address and returns the listener.
// Call Serve() after Listen() to start accepting connections.
// This two-step approach allows callers to obtain the actual bound address
// (useful for ephemeral port 0 in tests) before the server blocks on Serve().
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, fmt.Errorf("web server listen: %w", err)
	}
	s.listener = ln
	return ln, nil
}

// Serve accepts connections on the listener. Blocks until the server stops.
// Must call Listen() first.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("web server started", "addr", ln.Addr().String(), "workdir", s.cfg.Workdir, "worktrees_root", s.cfg.WorktreesRoot)
	return s.httpServer.Serve(ln)
}

// Addr returns the address the server is listening on.
// Only valid after Listen() has been called.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Shutdown gracefully stops the server. Open SSE streams are ended first;
// http.Server.Shutdown would otherwise wait on them until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("web server shutting down")
	s.events.Close()
	return s.httpServer.Shutdown(ctx)
}

// Notify pushes a refresh event to every SSE subscriber.
func (s *Server) Notify(reason string) {
	s.events.Notify(reason)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// statusRecorder captures the response status for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush keeps SSE streaming working through the wrapper.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// withRequestLogging tags each request with an X-Request-Id (reusing the
// caller's if present) and writes one access log line when it completes.
func (s *Server) withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		s.logger.Info("request",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
