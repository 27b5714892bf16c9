// pattern: Imperative Shell
package instance

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client is a thin HTTP client for communicating with a running agentrix instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Client targeting the given base URL.
func NewClient(baseURL string) *Client {
	return NewClientWithTimeout(baseURL, 10*time.Second)
}

// NewClientWithTimeout creates a Client with a custom timeout. A zero
// timeout means no deadline, which clones and worktree creation use.
func NewClientWithTimeout(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Sessions fetches the workspace tree. Returns raw JSON bytes from
// GET /api/sessions.
func (c *Client) Sessions() ([]byte, error) {
	return c.get("/api/sessions")
}

// Logs fetches recent log entries whose scope starts with scope.
// limit <= 0 leaves the server default in place.
func (c *Client) Logs(scope string, limit int) ([]byte, error) {
	q := url.Values{}
	if scope != "" {
		q.Set("scope", scope)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/logs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	return c.get(path)
}

// Clone clones repositoryURL into the instance's working directory.
func (c *Client) Clone(repositoryURL string) ([]byte, error) {
	return c.postJSON("/api/repos", map[string]string{"repository_url": repositoryURL})
}

// CreateWorktree creates a worktree on a new branch of workspace/repository.
func (c *Client) CreateWorktree(workspace, repository, branch string) ([]byte, error) {
	return c.postJSON("/api/worktrees", map[string]string{
		"workspace":  workspace,
		"repository": repository,
		"branch":     branch,
	})
}

// get performs a GET request and returns the response body.
func (c *Client) get(path string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req)
}

// postJSON performs a POST request with a JSON body and returns the response body.
func (c *Client) postJSON(path string, body any) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to agentrix: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Message: extractErrorMessage(body)}
	}

	return body, nil
}

// StatusError is returned when the instance answers with a non-2xx status.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("agentrix returned status %d: %s", e.Code, e.Message)
}

// extractErrorMessage attempts to extract the error message from a JSON response body.
// If the body is not valid JSON or doesn't have an "error" field, returns the raw body string.
func extractErrorMessage(body []byte) string {
	var errResp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return errResp.Error
	}
	return string(body)
}
