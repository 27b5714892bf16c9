// pattern: Imperative Shell
package cli

import (
	"fmt"
	"io"
	"os"

	"agentrix/internal/config"
	"agentrix/internal/instance"
)

// ResolveDataDir returns the data directory for lock/port files.
// If configDir is specified, uses that; otherwise the agentrix config directory.
func ResolveDataDir(configDir string) string {
	return config.DataDir(configDir)
}

// BuildApp creates and configures the CLI application with all commands and groups.
func BuildApp(version string, configDir string) *App {
	app := NewApp(version)

	app.AddCommand(&Command{
		Name:             "sessions",
		Summary:          "Output the workspace tree as JSON",
		Usage:            "Usage: agentrix sessions",
		RequiresInstance: true,
		Run: func(args []string) error {
			d := Delegate{ConfigDir: configDir}
			d.Run(func(client *instance.Client) error {
				data, err := client.Sessions()
				if err != nil {
					return err
				}
				return d.PrintJSON(data)
			})
			return nil
		},
	})

	app.AddCommand(&Command{
		Name:             "clone",
		Summary:          "Clone a repository into <workdir>/<workspace>/<repository>",
		Usage:            "Usage: agentrix clone <repository-url>",
		RequiresInstance: true,
		Run: func(args []string) error {
			if len(args) != 1 {
				fmt.Fprintln(os.Stderr, "Usage: agentrix clone <repository-url>")
				os.Exit(1)
			}
			d := gitDelegate(configDir)
			runClone(&d, args[0])
			return nil
		},
	})

	app.AddCommand(&Command{
		Name:             "logs",
		Summary:          "Print recent log entries from the running instance",
		Usage:            logsUsage,
		RequiresInstance: true,
		Run: func(args []string) error {
			return runLogsCommand(configDir, args)
		},
	})

	app.AddCommand(&Command{
		Name:    "cleanup",
		Summary: "Remove stale lock/port files from a crashed instance",
		Usage:   "Usage: agentrix cleanup",
		Run: func(args []string) error {
			if err := runCleanupCommand(configDir, os.Stdout); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				os.Exit(1)
			}
			return nil
		},
	})

	app.AddCommand(&Command{
		Name:    "version",
		Summary: "Print version and exit",
		Usage:   "Usage: agentrix version",
		Run: func(args []string) error {
			fmt.Println(version)
			return nil
		},
	})

	worktreeGroup := app.AddGroup("worktree", "Manage git worktrees")
	RegisterWorktreeCommands(worktreeGroup, configDir)

	return app
}

// gitDelegate returns a Delegate for requests that wait on git. They have no
// client deadline.
func gitDelegate(configDir string) Delegate {
	return Delegate{ConfigDir: configDir, ClientTimeout: NoClientTimeout}
}

func runClone(d *Delegate, repositoryURL string) {
	d.Run(func(client *instance.Client) error {
		data, err := client.Clone(repositoryURL)
		if err != nil {
			return err
		}
		return d.PrintJSON(data)
	})
}

// runCleanupCommand removes stale lock and port files from a crashed instance.
func runCleanupCommand(configDir string, out io.Writer) error {
	dataDir := ResolveDataDir(configDir)

	// Taking the lock proves no instance is running.
	fl, err := instance.Lock(dataDir)
	if err != nil {
		return fmt.Errorf("an agentrix instance appears to be running, stop it first: %w", err)
	}
	instance.Cleanup(dataDir, fl)
	fmt.Fprintln(out, "Cleaned up stale lock and port files.")
	return nil
}
