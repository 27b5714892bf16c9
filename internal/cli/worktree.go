// pattern: Imperative Shell
package cli

import (
	"fmt"
	"os"

	"agentrix/internal/instance"
)

const worktreeCreateUsage = "Usage: agentrix worktree create <workspace> <repository> <branch>"

// RegisterWorktreeCommands registers the worktree command group commands.
// Requires configDir for discovering the running agentrix instance.
func RegisterWorktreeCommands(group *Group, configDir string) {
	group.AddCommand(&Command{
		Name:             "create",
		Summary:          "Create a worktree on a new branch",
		Usage:            worktreeCreateUsage,
		RequiresInstance: true,
		Run: func(args []string) error {
			if len(args) != 3 {
				fmt.Fprintln(os.Stderr, worktreeCreateUsage)
				os.Exit(1)
			}

			d := gitDelegate(configDir)
			runWorktreeCreate(&d, args[0], args[1], args[2])
			return nil
		},
	})
}

func runWorktreeCreate(d *Delegate, workspace, repository, branch string) {
	d.Run(func(client *instance.Client) error {
		data, err := client.CreateWorktree(workspace, repository, branch)
		if err != nil {
			return err
		}
		return d.PrintJSON(data)
	})
}
