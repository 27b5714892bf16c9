// pattern: Functional Core

package repo

import (
	"strings"

	"agentrix/internal/failure"
)

// Coordinates locate a repository inside the working directory as
// <workspace>/<repository>.
type Coordinates struct {
	Workspace  string `json:"workspace"`
	Repository string `json:"repository"`
}

// ParseErrorKind enumerates the ways a repository reference can be malformed.
type ParseErrorKind int

const (
	EmptyInput ParseErrorKind = iota + 1
	InvalidSSHURL
	MissingPath
	MissingWorkspaceOrRepository
	EmptyRepositoryName
)

// ParseError reports why ParseURL rejected its input.
type ParseError struct {
	Kind  ParseErrorKind
	Input string
}

func (e *ParseError) Error() string {
	switch e.Kind {
	case EmptyInput:
		return "repository url cannot be empty"
	case InvalidSSHURL:
		return "invalid ssh repository url: expected git@host:workspace/repository"
	case MissingPath:
		return "repository url is missing a path"
	case MissingWorkspaceOrRepository:
		return "repository url must include a workspace and a repository"
	case EmptyRepositoryName:
		return "repository name cannot be empty"
	default:
		return "invalid repository url"
	}
}

// Hint implements failure.Hinter. Malformed input is always the caller's fault.
func (e *ParseError) Hint() failure.Hint {
	return failure.BadInput
}

// ParseURL extracts workspace and repository coordinates from an SSH
// (git@host:ws/repo.git), URL (https://host/ws/repo.git) or bare
// (ws/repo) reference. It performs no I/O.
func ParseURL(raw string) (Coordinates, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(raw), "/")
	if trimmed == "" {
		return Coordinates{}, &ParseError{Kind: EmptyInput, Input: raw}
	}

	var path string
	switch {
	case strings.HasPrefix(trimmed, "git@"):
		_, rest, ok := strings.Cut(trimmed, ":")
		if !ok {
			return Coordinates{}, &ParseError{Kind: InvalidSSHURL, Input: raw}
		}
		path = rest
	case strings.Contains(trimmed, "://"):
		_, afterScheme, _ := strings.Cut(trimmed, "://")
		_, rest, ok := strings.Cut(afterScheme, "/")
		if !ok {
			return Coordinates{}, &ParseError{Kind: MissingPath, Input: raw}
		}
		path = rest
	default:
		path = trimmed
	}

	segments := make([]string, 0, 4)
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	if len(segments) < 2 {
		return Coordinates{}, &ParseError{Kind: MissingWorkspaceOrRepository, Input: raw}
	}

	repository := strings.TrimSuffix(segments[len(segments)-1], ".git")
	if repository == "" {
		return Coordinates{}, &ParseError{Kind: EmptyRepositoryName, Input: raw}
	}

	return Coordinates{
		Workspace:  segments[len(segments)-2],
		Repository: repository,
	}, nil
}
