// pattern: Functional Core

package discovery

// Workspace is a top-level directory under the working root.
type Workspace struct {
	Name         string       `json:"name"`
	Repositories []Repository `json:"repositories"`
}

// Repository is a directory under a workspace.
type Repository struct {
	Name      string     `json:"name"`
	Plans     []Plan     `json:"plans"`     // always empty; kept for the session tree schema
	Worktrees []Worktree `json:"worktrees"` // directories under <worktrees_root>/<workspace>/<repository>
}

// Plan is a planning document attached to a repository.
type Plan struct {
	Name         string `json:"name"`
	SessionID    string `json:"session_id"`
	RelatedIssue *int   `json:"related_issue,omitempty"`
}

// Worktree is a git worktree checked out under the worktrees root.
type Worktree struct {
	Name      string     `json:"name"`
	Terminals []Terminal `json:"terminals"` // always empty
}

// Terminal is an interactive session attached to a worktree.
type Terminal struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Dangerous *bool  `json:"dangerous,omitempty"` // nil when unknown
	SessionID string `json:"session_id"`
}
