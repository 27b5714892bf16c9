// pattern: Imperative Shell
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"agentrix/internal/instance"
	"agentrix/internal/logging"
)

const logsUsage = "Usage: agentrix logs [--scope <prefix>] [--limit <n>] [--follow] [--json]"

// LogsConfig configures the logs command output and polling behavior.
type LogsConfig struct {
	Scope    string
	Limit    int
	Follow   bool
	JSON     bool
	Interval time.Duration
	Writer   io.Writer
}

func runLogsCommand(configDir string, args []string) error {
	fs := pflag.NewFlagSet("logs", pflag.ContinueOnError)
	scope := fs.String("scope", "", "Only show entries whose scope starts with this prefix")
	limit := fs.IntP("limit", "n", 0, "Number of entries to fetch (server default when 0)")
	follow := fs.BoolP("follow", "f", false, "Keep polling for new entries")
	asJSON := fs.Bool("json", false, "Print the raw JSON response")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(os.Stderr, logsUsage)
		os.Exit(1)
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, logsUsage)
		os.Exit(1)
	}

	d := Delegate{ConfigDir: configDir}
	d.Run(func(client *instance.Client) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return FollowLogs(ctx, client, LogsConfig{
			Scope:    *scope,
			Limit:    *limit,
			Follow:   *follow,
			JSON:     *asJSON,
			Interval: time.Second,
			Writer:   os.Stdout,
		})
	})
	return nil
}

// FollowLogs prints recent log entries and, when cfg.Follow is set, keeps
// polling for newer ones until ctx is cancelled. Entries are deduplicated by
// timestamp: only entries newer than the last printed one are written.
func FollowLogs(ctx context.Context, client *instance.Client, cfg LogsConfig) error {
	if cfg.JSON && !cfg.Follow {
		data, err := client.Logs(cfg.Scope, cfg.Limit)
		if err != nil {
			return err
		}
		return PrintJSON(cfg.Writer, data)
	}

	var last time.Time
	poll := func() error {
		entries, err := fetchLogs(client, cfg.Scope, cfg.Limit)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if !e.Timestamp.After(last) {
				continue
			}
			if err := writeEntry(cfg.Writer, e, cfg.JSON); err != nil {
				return err
			}
			last = e.Timestamp
		}
		return nil
	}

	if err := poll(); err != nil {
		return err
	}
	if !cfg.Follow {
		return nil
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	retryCount := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := poll(); err != nil {
				// A 4xx won't change on retry.
				var se *instance.StatusError
				if errors.As(err, &se) && se.Code < 500 {
					return err
				}
				retryCount++
				if retryCount > 1 {
					return err
				}
				continue
			}
			retryCount = 0
		}
	}
}

func fetchLogs(client *instance.Client, scope string, limit int) ([]logging.LogEntry, error) {
	data, err := client.Logs(scope, limit)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Data []logging.LogEntry `json:"data"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse logs response: %w", err)
	}
	return resp.Data, nil
}

func writeEntry(w io.Writer, e logging.LogEntry, asJSON bool) error {
	if asJSON {
		line, err := json.Marshal(e)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%s\n", line)
		return err
	}
	_, err := fmt.Fprintln(w, e.String())
	return err
}
