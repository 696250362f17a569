// Package executor runs operator-supplied shell command lines on the host.
//
// Commands run with the full privileges and environment of the bot process.
// No timeout is applied: a command such as a reboot may never return, and
// callers that need bounded latency must wrap the context themselves.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultShell interprets command lines when none is configured.
const DefaultShell = "/bin/bash"

// Result is the outcome of one shell invocation.
type Result struct {
	Command  string
	Stdout   string
	Stderr   string
	ExitCode int
}

// OK reports a zero exit status.
func (r Result) OK() bool {
	return r.ExitCode == 0
}

// ErrorText describes a failed run: stderr when present, the exit code otherwise.
func (r Result) ErrorText() string {
	if r.Stderr != "" {
		return r.Stderr
	}
	return fmt.Sprintf("command returned code %d", r.ExitCode)
}

// Runner executes command lines through a POSIX shell. It holds no mutable
// state and is safe for concurrent use.
type Runner struct {
	shell  string
	logger *zap.Logger
}

func New(shell string, logger *zap.Logger) *Runner {
	if shell == "" {
		shell = DefaultShell
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{shell: shell, logger: logger}
}

// Run executes command as "shell -c command". It never returns an error:
// a process that could not be started is reported with ExitCode -1 and the
// failure in Stderr.
func (r *Runner) Run(ctx context.Context, command string) Result {
	res := Result{Command: command, ExitCode: -1}

	cmd := exec.CommandContext(ctx, r.shell, "-c", command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	err := cmd.Run()
	res.Stdout = clean(stdout.String())
	res.Stderr = clean(stderr.String())

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.ExitCode = 0
	case errors.As(err, &exitErr) && exitErr.ExitCode() >= 0:
		res.ExitCode = exitErr.ExitCode()
	default:
		// never started, or killed by a signal
		if res.Stderr != "" {
			res.Stderr += "\n"
		}
		res.Stderr += err.Error()
	}

	r.logger.Debug("command finished",
		zap.String("command", command),
		zap.Int("exit_code", res.ExitCode),
		zap.Duration("elapsed", time.Since(started)))
	return res
}

// clean makes process output safe to forward as text.
func clean(s string) string {
	return strings.TrimRight(strings.ToValidUTF8(s, "\uFFFD"), " \t\r\n")
}
