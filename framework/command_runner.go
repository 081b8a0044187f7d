package framework

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"
	"time"
)

// ErrCommandTimeout is returned when a command outlives its timeout and is killed.
var ErrCommandTimeout = errors.New("command timeout")

// CommandRequest captures process execution metadata.
type CommandRequest struct {
	Workdir string
	Args    []string
	Env     []string
	Input   string
	Timeout time.Duration
}

// CommandOutput is the captured result of a finished process.
type CommandOutput struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// CommandRunner describes a primitive capable of executing commands. Args are
// passed straight to the binary; no shell ever sees them.
type CommandRunner interface {
	Run(ctx context.Context, req CommandRequest) (CommandOutput, error)
}

// LocalCommandRunner launches commands on the host in their own process group
// so a timeout or cancellation kills the interpreter and anything it spawned.
type LocalCommandRunner struct {
	Logger *slog.Logger
	// WaitDelay bounds how long Run waits for output pipes after a kill.
	WaitDelay time.Duration

	terminations atomic.Int64
}

// NewLocalCommandRunner builds a runner with sane defaults.
func NewLocalCommandRunner(logger *slog.Logger) *LocalCommandRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalCommandRunner{Logger: logger, WaitDelay: 2 * time.Second}
}

// Terminations reports how many processes were forcibly killed.
func (r *LocalCommandRunner) Terminations() int64 {
	return r.terminations.Load()
}

// Run executes the command and waits for it. A deadline hit yields
// ErrCommandTimeout; a canceled parent context yields its error.
func (r *LocalCommandRunner) Run(ctx context.Context, req CommandRequest) (CommandOutput, error) {
	if len(req.Args) == 0 {
		return CommandOutput{}, errors.New("command arguments required")
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	execCtx := ctx
	cancel := func() {}
	if req.Timeout > 0 {
		execCtx, cancel = context.WithTimeout(ctx, req.Timeout)
	}
	defer cancel()

	cmd := exec.CommandContext(execCtx, req.Args[0], req.Args[1:]...)
	cmd.Dir = req.Workdir
	if len(req.Env) > 0 {
		cmd.Env = append(os.Environ(), req.Env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if req.Input != "" {
		cmd.Stdin = strings.NewReader(req.Input)
	}
	configureProcessGroup(cmd)
	cmd.Cancel = func() error {
		r.terminations.Add(1)
		logger.Warn("killing process group", "binary", req.Args[0], "pid", cmd.Process.Pid, "reason", execCtx.Err())
		return killProcessGroup(cmd)
	}
	waitDelay := r.WaitDelay
	if waitDelay <= 0 {
		waitDelay = 2 * time.Second
	}
	cmd.WaitDelay = waitDelay

	err := cmd.Run()
	out := CommandOutput{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: cmd.ProcessState.ExitCode(),
	}
	if ctxErr := execCtx.Err(); ctxErr != nil && err != nil {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		return out, fmt.Errorf("%s after %s: %w", req.Args[0], req.Timeout, ErrCommandTimeout)
	}
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return out, fmt.Errorf("%s not found in PATH: %w", req.Args[0], err)
		}
		return out, err
	}
	return out, nil
}
