package tools

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadWriteFileTools(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	write := NewFileWriteTool(dir, nil)
	res := write.Execute(ctx, map[string]interface{}{
		"path":    "notes/hello.txt",
		"content": "hi reactchat",
	})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, map[string]interface{}{"path": "notes/hello.txt", "success": true}, res.Result)

	read := NewFileReadTool(dir, nil)
	res = read.Execute(ctx, map[string]interface{}{"path": "notes/hello.txt"})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "hi reactchat", res.Result.(map[string]interface{})["content"])
}

func TestFileReadFailures(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bin.dat"), []byte{0xff, 0xfe, 0x00}, 0o644))
	read := NewFileReadTool(dir, nil)
	ctx := context.Background()

	cases := map[string]string{
		"":             "Path is required",
		"missing.txt":  "File not found: missing.txt",
		"sub":          "Not a file: sub",
		"bin.dat":      "File is not valid UTF-8 text: bin.dat",
		"../etc/hosts": "Access denied: Path outside working directory: ../etc/hosts",
	}
	for path, want := range cases {
		res := read.Execute(ctx, map[string]interface{}{"path": path})
		assert.False(t, res.Success, path)
		assert.Equal(t, want, res.Error, path)
	}
}

func TestResolvePathContainment(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "escape")))

	resolvedRoot, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)

	got, err := ResolvePath(root, "a/b/new.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(resolvedRoot, "a", "b", "new.txt"), got)

	got, err = ResolvePath(root, filepath.Join(root, "inside.txt"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(resolvedRoot, "inside.txt"), got)

	for _, bad := range []string{"../x", "escape/secret.txt", outside, "a/../../x"} {
		_, err := ResolvePath(root, bad)
		assert.True(t, errors.Is(err, ErrOutsideWorkspace), bad)
	}
}

func TestFileWriteRejectsEscape(t *testing.T) {
	dir := t.TempDir()
	res := NewFileWriteTool(filepath.Join(dir, "ws"), nil).Execute(context.Background(), map[string]interface{}{
		"path":    "../owned.txt",
		"content": "x",
	})
	assert.False(t, res.Success)
	_, err := os.Stat(filepath.Join(dir, "owned.txt"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestListAndSearchTools(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "pkg"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pkg", "main.go"), []byte("package main\n// TODO: fix bug\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("nothing here\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".git", "HEAD"), []byte("TODO\n"), 0o644))
	ctx := context.Background()

	list := NewFileListTool(dir, nil).Execute(ctx, map[string]interface{}{"pattern": "*.go"})
	require.True(t, list.Success, list.Error)
	assert.Equal(t, []string{"pkg/main.go"}, list.Result.(map[string]interface{})["files"])

	list = NewFileListTool(dir, nil).Execute(ctx, map[string]interface{}{"pattern": "**/*.txt"})
	require.True(t, list.Success, list.Error)
	assert.Equal(t, []string{"readme.txt"}, list.Result.(map[string]interface{})["files"])

	list = NewFileListTool(dir, nil).Execute(ctx, map[string]interface{}{"directory": "pkg", "pattern": "main.*"})
	require.True(t, list.Success, list.Error)
	assert.Equal(t, []string{"pkg/main.go"}, list.Result.(map[string]interface{})["files"])

	bad := NewFileListTool(dir, nil).Execute(ctx, map[string]interface{}{"pattern": "[a-"})
	assert.Equal(t, "Invalid pattern: [a-", bad.Error)

	search := NewFileSearchTool(dir, nil).Execute(ctx, map[string]interface{}{"pattern": "TODO"})
	require.True(t, search.Success, search.Error)
	matches := search.Result.(map[string]interface{})["matches"].([]searchMatch)
	require.Len(t, matches, 1)
	assert.Equal(t, searchMatch{File: "pkg/main.go", Line: 2, Content: "// TODO: fix bug"}, matches[0])

	missing := NewFileSearchTool(dir, nil).Execute(ctx, map[string]interface{}{})
	assert.Equal(t, "Pattern is required", missing.Error)
}
