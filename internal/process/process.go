// pattern: Imperative Shell

package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"agentrix/internal/logging"
)

// Result is the outcome of a command that was started successfully.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Success reports whether the command exited with status zero.
func (r Result) Success() bool {
	return r.ExitCode == 0
}

// Runner invokes the external version-control executable.
// A non-nil error means the process could not be spawned at all; a process
// that ran and exited non-zero is reported through Result.ExitCode.
type Runner interface {
	Run(ctx context.Context, dir string, args ...string) (Result, error)
}

// ExecRunner runs a fixed binary through os/exec.
type ExecRunner struct {
	Binary string
	logger *logging.ScopedLogger
}

// NewExecRunner creates a runner for binary. An empty binary means "git".
func NewExecRunner(binary string, logger *logging.ScopedLogger) *ExecRunner {
	if binary == "" {
		binary = "git"
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &ExecRunner{Binary: binary, logger: logger}
}

// Run executes the binary with args in dir and waits for it to exit.
// There is no deadline beyond ctx; a hanging command blocks until ctx ends.
func (r *ExecRunner) Run(ctx context.Context, dir string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, r.Binary, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Debug("running command", "binary", r.Binary, "args", strings.Join(args, " "), "dir", dir)
	start := time.Now()

	err := cmd.Run()
	res := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			r.logger.Error("failed to start command", "binary", r.Binary, "error", err, "dir", dir)
			return res, fmt.Errorf("running %s %s: %w", r.Binary, strings.Join(args, " "), err)
		}
		// -1 when the process was killed by a signal (e.g. ctx cancelled).
		res.ExitCode = exitErr.ExitCode()
		r.logger.Warn("command exited with failure",
			"binary", r.Binary,
			"args", strings.Join(args, " "),
			"exit_code", res.ExitCode,
			"stderr", strings.TrimSpace(res.Stderr),
			"duration", time.Since(start),
		)
		return res, nil
	}

	r.logger.Debug("command finished", "binary", r.Binary, "duration", time.Since(start))
	return res, nil
}
