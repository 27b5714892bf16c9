// pattern: Functional Core
package cli

import (
	"fmt"
	"io"
	"maps"
	"slices"
)

// PrintAgentHelp prints a guide for driving agentrix from scripts and agents.
// It combines static prose with dynamic command reference pulled from registered commands.
func (a *App) PrintAgentHelp(w io.Writer) {
	fmt.Fprintln(w, "AGENTRIX WORKSPACE GUIDE")
	fmt.Fprintln(w, "========================")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "OVERVIEW")
	fmt.Fprintln(w, "--------")
	fmt.Fprintln(w, "Agentrix organizes git repositories into workspaces and creates isolated git")
	fmt.Fprintln(w, "worktrees for each task. It runs as an API server; a single instance runs at a")
	fmt.Fprintln(w, "time (enforced by file lock).")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "All CLI commands other than 'serve', 'cleanup' and 'version' delegate to the")
	fmt.Fprintln(w, "running instance via HTTP and print its JSON response.")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "WORKFLOW")
	fmt.Fprintln(w, "--------")
	fmt.Fprintln(w, "  1. Clone a repository into its workspace:")
	fmt.Fprintln(w, "     agentrix clone git@github.com:acme/api.git")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "     The workspace and repository names come from the last two path")
	fmt.Fprintln(w, "     segments of the URL (here: acme/api).")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  2. Create a worktree on a new branch for the task:")
	fmt.Fprintln(w, "     agentrix worktree create acme api feat/new-feature")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "     The response carries the worktree path to work in.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  3. Inspect the tree of workspaces, repositories and worktrees:")
	fmt.Fprintln(w, "     agentrix sessions")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  4. Check what the server did:")
	fmt.Fprintln(w, "     agentrix logs --scope repo --follow")
	fmt.Fprintln(w)

	a.printCommandReference(w)

	fmt.Fprintln(w, "LAYOUT")
	fmt.Fprintln(w, "------")
	fmt.Fprintln(w, "  <workdir>/<workspace>/<repository>              main checkout")
	fmt.Fprintln(w, "  <worktrees-root>/<workspace>/<repository>/<branch>  worktrees")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Branch directories are sanitized: characters other than letters, digits and")
	fmt.Fprintln(w, "'-' become '_' (feat/new-feature -> feat_new-feature). The git branch itself")
	fmt.Fprintln(w, "keeps its original name.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Cloning refuses to overwrite an existing directory, and a failed clone")
	fmt.Fprintln(w, "removes its partial checkout.")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "EXIT CODES")
	fmt.Fprintln(w, "----------")
	fmt.Fprintln(w, "  0  Success")
	fmt.Fprintln(w, "  1  Error (invalid arguments, command failed, etc.)")
	fmt.Fprintln(w, "  2  No running agentrix instance found")
}

// printCommandReference prints the dynamic command reference section
// by iterating registered commands and groups.
func (a *App) printCommandReference(w io.Writer) {
	fmt.Fprintln(w, "COMMAND REFERENCE")
	fmt.Fprintln(w, "-----------------")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Top-level commands:")
	for _, name := range topLevelOrder {
		if cmd, ok := a.commands[name]; ok {
			fmt.Fprintf(w, "  %-16s %s\n", cmd.Name, cmd.Summary)
			fmt.Fprintf(w, "                   %s\n", cmd.Usage)
		}
	}
	fmt.Fprintln(w)

	for _, groupName := range slices.Sorted(maps.Keys(a.groups)) {
		group := a.groups[groupName]
		fmt.Fprintf(w, "%s commands (%s):\n", group.Name, group.Summary)
		for _, name := range slices.Sorted(maps.Keys(group.Commands)) {
			cmd := group.Commands[name]
			fmt.Fprintf(w, "  %-16s %s\n", groupName+" "+cmd.Name, cmd.Summary)
			fmt.Fprintf(w, "                   %s\n", cmd.Usage)
		}
		fmt.Fprintln(w)
	}
}
