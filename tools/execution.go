package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/lexcodex/reactchat/framework"
	"github.com/lexcodex/reactchat/framework/codesafety"
)

// Interpreter describes how to run a snippet for one language.
type Interpreter struct {
	// DisplayName is used in user-facing errors.
	DisplayName string
	Binary      string
	// Flag introduces the code argument, e.g. "-c" or "-e".
	Flag    string
	Timeout time.Duration
}

// CodeExecTool runs analyzer-approved snippets in an external interpreter.
// The code is passed as a single argv entry, never through a shell.
type CodeExecTool struct {
	name        string
	description string
	Language    codesafety.Language
	Interpreter Interpreter
	Workdir     string
	Runner      framework.CommandRunner
	Analyzer    *codesafety.Analyzer
	Logger      *slog.Logger
}

// NewPythonExecTool builds the python_exec tool.
func NewPythonExecTool(cfg framework.ToolsConfig, runner framework.CommandRunner, analyzer *codesafety.Analyzer, logger *slog.Logger) *CodeExecTool {
	return &CodeExecTool{
		name:        "python_exec",
		description: fmt.Sprintf("Execute Python code (timeout: %s, read-only mode). Use single quotes for strings inside code.", cfg.PythonTimeout),
		Language:    codesafety.Python,
		Interpreter: Interpreter{DisplayName: "Python", Binary: cfg.PythonBinary, Flag: "-c", Timeout: cfg.PythonTimeout},
		Workdir:     cfg.WorkingDirectory,
		Runner:      runner,
		Analyzer:    analyzer,
		Logger:      logger,
	}
}

// NewJSExecTool builds the js_exec tool.
func NewJSExecTool(cfg framework.ToolsConfig, runner framework.CommandRunner, analyzer *codesafety.Analyzer, logger *slog.Logger) *CodeExecTool {
	return &CodeExecTool{
		name:        "js_exec",
		description: fmt.Sprintf("Execute JavaScript code (timeout: %s, read-only mode)", cfg.JavaScriptTimeout),
		Language:    codesafety.JavaScript,
		Interpreter: Interpreter{DisplayName: "Node.js", Binary: cfg.NodeBinary, Flag: "-e", Timeout: cfg.JavaScriptTimeout},
		Workdir:     cfg.WorkingDirectory,
		Runner:      runner,
		Analyzer:    analyzer,
		Logger:      logger,
	}
}

func (t *CodeExecTool) Name() string        { return t.name }
func (t *CodeExecTool) Description() string { return t.description }
func (t *CodeExecTool) Parameters() []framework.ToolParameter {
	desc := "JavaScript code to execute"
	if t.Language == codesafety.Python {
		desc = "Python code to execute (prefer single quotes for internal strings)"
	}
	return []framework.ToolParameter{{Name: "code", Type: "string", Description: desc, Required: true}}
}

func (t *CodeExecTool) Execute(ctx context.Context, args map[string]interface{}) framework.ToolResult {
	logger := t.logger()
	code := stringArg(args, "code")
	if code == "" {
		return framework.Fail("Code is required")
	}
	if t.Analyzer == nil || t.Runner == nil {
		return framework.Fail("%s execution is not configured", t.Interpreter.DisplayName)
	}
	verdict, err := t.Analyzer.Analyze(code, t.Language)
	if err != nil {
		return framework.Fail("%v", err)
	}
	if !verdict.Safe {
		logger.Warn("blocked code execution", "tool", t.name, "reason", verdict.Reason)
		return framework.Fail("%s", verdict.Reason)
	}

	out, err := t.Runner.Run(ctx, framework.CommandRequest{
		Workdir: t.Workdir,
		Args:    []string{t.Interpreter.Binary, t.Interpreter.Flag, code},
		Timeout: t.Interpreter.Timeout,
	})
	switch {
	case errors.Is(err, framework.ErrCommandTimeout):
		logger.Warn("code execution timed out", "tool", t.name, "timeout", t.Interpreter.Timeout)
		return framework.Fail("Execution timeout (%s)", t.Interpreter.Timeout)
	case errors.Is(err, exec.ErrNotFound):
		return framework.Fail("%s not found in PATH", t.Interpreter.DisplayName)
	case err != nil:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			msg := strings.TrimSpace(out.Stderr)
			if msg == "" {
				msg = fmt.Sprintf("exit status %d", out.ExitCode)
			}
			logger.Info("code exited with error", "tool", t.name, "exit_code", out.ExitCode)
			return framework.ToolResult{Success: false, Error: msg, Result: map[string]interface{}{
				"stdout": out.Stdout,
				"stderr": out.Stderr,
			}}
		}
		logger.Error("code execution failed", "tool", t.name, "error", err)
		return framework.Fail("%v", err)
	}

	logger.Info("code executed", "tool", t.name)
	if t.Language == codesafety.JavaScript {
		if out.Stderr != "" {
			return framework.Fail("%s", out.Stderr)
		}
		return framework.Ok(map[string]interface{}{"result": out.Stdout})
	}
	return framework.Ok(map[string]interface{}{"stdout": out.Stdout, "stderr": out.Stderr})
}

func (t *CodeExecTool) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.Default()
}

// RegisterBuiltins installs the file and code execution tools.
func RegisterBuiltins(registry *framework.ToolRegistry, cfg framework.ToolsConfig, runner framework.CommandRunner, analyzer *codesafety.Analyzer, logger *slog.Logger) error {
	builtins := []framework.Tool{
		NewFileReadTool(cfg.WorkingDirectory, logger),
		NewFileWriteTool(cfg.WorkingDirectory, logger),
		NewFileListTool(cfg.WorkingDirectory, logger),
		NewFileSearchTool(cfg.WorkingDirectory, logger),
		NewPythonExecTool(cfg, runner, analyzer, logger),
		NewJSExecTool(cfg, runner, analyzer, logger),
	}
	for _, tool := range builtins {
		if err := registry.Register(tool); err != nil {
			return fmt.Errorf("register %s: %w", tool.Name(), err)
		}
	}
	return nil
}
