package tools

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/lexcodex/reactchat/framework"
)

// ErrOutsideWorkspace is returned when a path resolves outside the root.
var ErrOutsideWorkspace = errors.New("path outside working directory")

const maxSearchMatches = 200

// ResolvePath maps path onto root and returns the symlink-free absolute
// path. Relative paths are joined to root; absolute paths are accepted only
// when they already point inside it. Missing trailing components are allowed
// so callers can create new files.
func ResolvePath(root, path string) (string, error) {
	base, err := resolveRoot(root)
	if err != nil {
		return "", err
	}
	target := path
	if !filepath.IsAbs(target) {
		target = filepath.Join(base, target)
	}
	resolved, err := resolveExisting(filepath.Clean(target))
	if err != nil {
		return "", err
	}
	if resolved != base && !strings.HasPrefix(resolved, base+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideWorkspace, path)
	}
	return resolved, nil
}

func resolveRoot(root string) (string, error) {
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("invalid working directory %q: %w", root, err)
	}
	return resolveExisting(abs)
}

// resolveExisting evaluates symlinks on the deepest existing ancestor and
// re-appends the components that do not exist yet.
func resolveExisting(path string) (string, error) {
	var rest []string
	current := path
	for {
		resolved, err := filepath.EvalSymlinks(current)
		if err == nil {
			return filepath.Join(append([]string{resolved}, rest...)...), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(current)
		if parent == current {
			return path, nil
		}
		rest = append([]string{filepath.Base(current)}, rest...)
		current = parent
	}
}

// workspaceTool carries what every file tool needs.
type workspaceTool struct {
	Root   string
	Logger *slog.Logger
}

func (w workspaceTool) logger() *slog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return slog.Default()
}

// resolve turns a path argument into a contained absolute path or a
// user-facing failure.
func (w workspaceTool) resolve(path string) (string, *framework.ToolResult) {
	if path == "" {
		res := framework.Fail("Path is required")
		return "", &res
	}
	resolved, err := ResolvePath(w.Root, path)
	if errors.Is(err, ErrOutsideWorkspace) {
		w.logger().Warn("blocked path outside working directory", "path", path)
		res := framework.Fail("Access denied: Path outside working directory: %s", path)
		return "", &res
	}
	if err != nil {
		res := framework.Fail("%v", err)
		return "", &res
	}
	return resolved, nil
}

// FileReadTool reads a UTF-8 file below the working directory.
type FileReadTool struct {
	workspaceTool
}

// NewFileReadTool builds a read tool confined to root.
func NewFileReadTool(root string, logger *slog.Logger) *FileReadTool {
	return &FileReadTool{workspaceTool{Root: root, Logger: logger}}
}

func (t *FileReadTool) Name() string        { return "file_read" }
func (t *FileReadTool) Description() string { return "Read a file from the filesystem" }
func (t *FileReadTool) Parameters() []framework.ToolParameter {
	return []framework.ToolParameter{
		{Name: "path", Type: "string", Description: "Path to the file (relative to working directory)", Required: true},
	}
}
func (t *FileReadTool) Execute(ctx context.Context, args map[string]interface{}) framework.ToolResult {
	path := stringArg(args, "path")
	full, fail := t.resolve(path)
	if fail != nil {
		return *fail
	}
	info, err := os.Stat(full)
	if errors.Is(err, fs.ErrNotExist) {
		return framework.Fail("File not found: %s", path)
	}
	if err != nil {
		return framework.Fail("%v", err)
	}
	if !info.Mode().IsRegular() {
		return framework.Fail("Not a file: %s", path)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		t.logger().Error("read file", "path", path, "error", err)
		return framework.Fail("%v", err)
	}
	if !utf8.Valid(data) {
		return framework.Fail("File is not valid UTF-8 text: %s", path)
	}
	t.logger().Info("file read", "path", path, "bytes", len(data))
	return framework.Ok(map[string]interface{}{"path": path, "content": string(data)})
}

// FileWriteTool writes a file below the working directory, creating parent
// directories as needed.
type FileWriteTool struct {
	workspaceTool
}

// NewFileWriteTool builds a write tool confined to root.
func NewFileWriteTool(root string, logger *slog.Logger) *FileWriteTool {
	return &FileWriteTool{workspaceTool{Root: root, Logger: logger}}
}

func (t *FileWriteTool) Name() string        { return "file_write" }
func (t *FileWriteTool) Description() string { return "Write content to a file" }
func (t *FileWriteTool) Parameters() []framework.ToolParameter {
	return []framework.ToolParameter{
		{Name: "path", Type: "string", Description: "Path to the file (relative to working directory)", Required: true},
		{Name: "content", Type: "string", Description: "Content to write", Required: true},
	}
}
func (t *FileWriteTool) Execute(ctx context.Context, args map[string]interface{}) framework.ToolResult {
	path := stringArg(args, "path")
	full, fail := t.resolve(path)
	if fail != nil {
		return *fail
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return framework.Fail("%v", err)
	}
	content := stringArg(args, "content")
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.logger().Error("write file", "path", path, "error", err)
		return framework.Fail("%v", err)
	}
	t.logger().Info("file written", "path", path, "bytes", len(content))
	return framework.Ok(map[string]interface{}{"path": path, "success": true})
}

// FileListTool lists files under a directory of the workspace.
type FileListTool struct {
	workspaceTool
}

// NewFileListTool builds a listing tool confined to root.
func NewFileListTool(root string, logger *slog.Logger) *FileListTool {
	return &FileListTool{workspaceTool{Root: root, Logger: logger}}
}

func (t *FileListTool) Name() string { return "file_list" }
func (t *FileListTool) Description() string {
	return "List files recursively, optionally filtered by a glob (\"*.go\", \"src/**/*.py\")"
}
func (t *FileListTool) Parameters() []framework.ToolParameter {
	return []framework.ToolParameter{
		{Name: "directory", Type: "string", Description: "Directory relative to working directory", Default: "."},
		{Name: "pattern", Type: "string", Description: "Glob matched against file names, or against relative paths when it contains a slash", Default: "*"},
	}
}
func (t *FileListTool) Execute(ctx context.Context, args map[string]interface{}) framework.ToolResult {
	dir, fail := t.resolve(stringArgDefault(args, "directory", "."))
	if fail != nil {
		return *fail
	}
	pattern := stringArgDefault(args, "pattern", "*")
	glob, err := framework.CompileGlob(pattern)
	if err != nil {
		return framework.Fail("Invalid pattern: %s", pattern)
	}
	base, _ := resolveRoot(t.Root)
	files := []string{}
	err = walkWorkspace(ctx, dir, func(path string) error {
		inDir, err := filepath.Rel(dir, path)
		if err != nil || !glob.Match(inDir) {
			return err
		}
		rel, err := filepath.Rel(base, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return framework.Fail("%v", err)
	}
	return framework.Ok(map[string]interface{}{"files": files})
}

// FileSearchTool finds lines containing a literal string.
type FileSearchTool struct {
	workspaceTool
}

// NewFileSearchTool builds a search tool confined to root.
func NewFileSearchTool(root string, logger *slog.Logger) *FileSearchTool {
	return &FileSearchTool{workspaceTool{Root: root, Logger: logger}}
}

type searchMatch struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Content string `json:"content"`
}

func (t *FileSearchTool) Name() string        { return "file_search" }
func (t *FileSearchTool) Description() string { return "Search for a literal string inside text files" }
func (t *FileSearchTool) Parameters() []framework.ToolParameter {
	return []framework.ToolParameter{
		{Name: "pattern", Type: "string", Description: "Text to look for", Required: true},
		{Name: "directory", Type: "string", Description: "Directory relative to working directory", Default: "."},
	}
}
func (t *FileSearchTool) Execute(ctx context.Context, args map[string]interface{}) framework.ToolResult {
	pattern := stringArg(args, "pattern")
	if pattern == "" {
		return framework.Fail("Pattern is required")
	}
	dir, fail := t.resolve(stringArgDefault(args, "directory", "."))
	if fail != nil {
		return *fail
	}
	base, _ := resolveRoot(t.Root)
	matches := []searchMatch{}
	truncated := false
	err := walkWorkspace(ctx, dir, func(path string) error {
		if truncated {
			return fs.SkipAll
		}
		rel, _ := filepath.Rel(base, path)
		found, err := searchFile(path, pattern)
		if err != nil {
			t.logger().Debug("skipping unreadable file", "path", rel, "error", err)
			return nil
		}
		for _, m := range found {
			m.File = filepath.ToSlash(rel)
			matches = append(matches, m)
			if len(matches) >= maxSearchMatches {
				truncated = true
				return fs.SkipAll
			}
		}
		return nil
	})
	if err != nil {
		return framework.Fail("%v", err)
	}
	return framework.Ok(map[string]interface{}{"matches": matches, "truncated": truncated})
}

func searchFile(path, pattern string) ([]searchMatch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []searchMatch
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if !utf8.ValidString(text) {
			return nil, nil
		}
		if strings.Contains(text, pattern) {
			out = append(out, searchMatch{Line: line, Content: text})
		}
	}
	return out, scanner.Err()
}

// walkWorkspace visits regular files below dir, skipping VCS metadata.
func walkWorkspace(ctx context.Context, dir string, visit func(path string) error) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".git") {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return visit(path)
	})
}

func stringArg(args map[string]interface{}, key string) string {
	switch v := args[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func stringArgDefault(args map[string]interface{}, key, def string) string {
	if v := stringArg(args, key); v != "" {
		return v
	}
	return def
}
