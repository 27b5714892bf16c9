// pattern: Imperative Shell

package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"agentrix/internal/failure"
	"agentrix/internal/logging"
	"agentrix/internal/worktree"
)

const (
	defaultLogLimit = 100
	maxRequestBody  = 1 << 20
)

// dataResponse is the success envelope for every API payload.
type dataResponse struct {
	Data any `json:"data"`
}

// CloneRequest is the body of POST /api/repos.
type CloneRequest struct {
	RepositoryURL string `json:"repository_url"`
}

// CreateWorktreeRequest is the body of POST /api/worktrees.
type CreateWorktreeRequest struct {
	Workspace  string `json:"workspace"`
	Repository string `json:"repository"`
	Branch     string `json:"branch"`
}

// WorktreeResponse describes a created worktree. Name is the directory
// name derived from the branch.
type WorktreeResponse struct {
	Workspace  string `json:"workspace"`
	Repository string `json:"repository"`
	Branch     string `json:"branch"`
	Name       string `json:"name"`
	Path       string `json:"path"`
}

// handleListSessions handles GET /api/sessions.
// Returns the workspace → repository → worktree tree.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	tree, err := s.svc.Scanner.Scan(s.cfg.Workdir, s.cfg.WorktreesRoot)
	if err != nil {
		s.writeFailure(w, fmt.Errorf("failed to scan workspaces: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: tree})
}

// handleCloneRepository handles POST /api/repos.
// Returns 400 for an unparseable URL, 409 when the target exists, 500 when git fails.
func (s *Server) handleCloneRepository(w http.ResponseWriter, r *http.Request) {
	var req CloneRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cloned, err := s.svc.Cloner.Clone(r.Context(), req.RepositoryURL, s.cfg.Workdir)
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	s.events.Notify("clone")
	writeJSON(w, http.StatusCreated, dataResponse{Data: cloned})
}

// handleCreateWorktree handles POST /api/worktrees.
// Returns 400 for an empty branch or bad coordinates, 404 when the
// repository is not a git checkout, 500 when git fails.
func (s *Server) handleCreateWorktree(w http.ResponseWriter, r *http.Request) {
	var req CreateWorktreeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := validateSegment("workspace", req.Workspace); err != nil {
		s.writeFailure(w, err)
		return
	}
	if err := validateSegment("repository", req.Repository); err != nil {
		s.writeFailure(w, err)
		return
	}

	path, err := s.svc.Worktree.Create(r.Context(), worktree.Request{
		RepoPath:      filepath.Join(s.cfg.Workdir, req.Workspace, req.Repository),
		Workspace:     req.Workspace,
		Repository:    req.Repository,
		Branch:        req.Branch,
		WorktreesRoot: s.cfg.WorktreesRoot,
	})
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	s.events.Notify("worktree")
	writeJSON(w, http.StatusCreated, dataResponse{Data: WorktreeResponse{
		Workspace:  req.Workspace,
		Repository: req.Repository,
		Branch:     strings.TrimSpace(req.Branch),
		Name:       filepath.Base(path),
		Path:       path,
	}})
}

// handleListLogs handles GET /api/logs?scope=<prefix>&limit=<n>.
func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	limit := defaultLogLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	entries := []logging.LogEntry{}
	if s.svc.Logs != nil {
		if recent := s.svc.Logs.Recent(r.URL.Query().Get("scope"), limit); recent != nil {
			entries = recent
		}
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: entries})
}

// validateSegment rejects names that would escape or flatten the
// <workdir>/<workspace>/<repository> layout.
func validateSegment(field, value string) error {
	switch {
	case value == "":
		return failure.New(failure.BadInput, field+" is required")
	case value == "." || value == "..":
		return failure.New(failure.BadInput, field+" must not be . or ..")
	case strings.ContainsAny(value, `/\`):
		return failure.New(failure.BadInput, field+" must be a single path segment")
	}
	return nil
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// writeFailure maps err to a status via its failure hint and writes it.
// Only internal failures are logged here.
func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	hint := failure.HintOf(err)
	if hint == failure.Internal {
		s.logger.Error("request failed", "error", err)
	}
	writeError(w, hint.HTTPStatus(), err.Error())
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
