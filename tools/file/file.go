// Package file provides the workspace-rooted file tools: read_file,
// list_dir, grep (read-only) and write_file (write).
package file

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	tunacode "github.com/ryumacodes/tunacode"
)

const maxReadBytes = 32_000

// resolve joins a workspace-relative path and rejects escapes.
func resolve(workspace, rel string) (string, error) {
	if rel == "" || rel == "." {
		return workspace, nil
	}
	abs := filepath.Join(workspace, filepath.Clean(rel))
	if !strings.HasPrefix(abs, filepath.Clean(workspace)+string(filepath.Separator)) && abs != filepath.Clean(workspace) {
		return "", fmt.Errorf("path escapes workspace: %s", rel)
	}
	return abs, nil
}

// --- read_file ---

// ReadFile reads a file from the workspace.
type ReadFile struct {
	Workspace string
}

func (t *ReadFile) Schema() tunacode.ToolSchema {
	return tunacode.ToolSchema{
		Name:        "read_file",
		Description: "Read a file from the workspace. Large files are truncated.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"path":{"type":"string","description":"File path relative to workspace"}},"required":["path"]}`),
	}
}

func (t *ReadFile) Class() tunacode.ToolClass { return tunacode.ClassReadOnly }
func (t *ReadFile) PlanSafe() bool            { return true }

func (t *ReadFile) Invoke(_ context.Context, args json.RawMessage) (string, error) {
	var params struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return "", &tunacode.ToolError{Tool: "read_file", Message: "invalid args: " + err.Error()}
	}
	if params.Path == "" {
		return "", &tunacode.ToolError{Tool: "read_file", Message: "path is required"}
	}
	abs, err := resolve(t.Workspace, params.Path)
	if err != nil {
		return "", &tunacode.ToolError{Tool: "read_file", Message: err.Error()}
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", &tunacode.ToolError{Tool: "read_file", Message: err.Error()}
	}
	if len(data) > maxReadBytes {
		return string(data[:maxReadBytes]) + "\n... (truncated)", nil
	}
	return string(data), nil
}

// --- list_dir ---

// ListDir lists a workspace directory.
type ListDir struct {
	Workspace string
}

func (t *ListDir) Schema() tunacode.ToolSchema {
	return tunacode.ToolSchema{
		Name:        "list_dir",
		Description: "List files and directories. One entry per line with a file/dir prefix.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"path":{"type":"string","description":"Directory path relative to workspace (empty or '.' for root)"}}}`),
	}
}

func (t *ListDir) Class() tunacode.ToolClass { return tunacode.ClassReadOnly }
func (t *ListDir) PlanSafe() bool            { return true }

func (t *ListDir) Invoke(_ context.Context, args json.RawMessage) (string, error) {
	var params struct {
		Path string `json:"path"`
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &params); err != nil {
			return "", &tunacode.ToolError{Tool: "list_dir", Message: "invalid args: " + err.Error()}
		}
	}
	abs, err := resolve(t.Workspace, params.Path)
	if err != nil {
		return "", &tunacode.ToolError{Tool: "list_dir", Message: err.Error()}
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return "", &tunacode.ToolError{Tool: "list_dir", Message: err.Error()}
	}
	if len(entries) == 0 {
		return "(empty)", nil
	}
	var b strings.Builder
	for _, e := range entries {
		kind := "file"
		if e.IsDir() {
			kind = "dir"
		}
		fmt.Fprintf(&b, "%s %s\n", kind, e.Name())
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// --- grep ---

// Grep searches workspace files for a literal substring.
type Grep struct {
	Workspace string
}

func (t *Grep) Schema() tunacode.ToolSchema {
	return tunacode.ToolSchema{
		Name:        "grep",
		Description: "Search workspace files for a literal string. Returns path:line matches.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"pattern":{"type":"string","description":"Literal text to search for"},"path":{"type":"string","description":"Directory to search, relative to workspace"}},"required":["pattern"]}`),
	}
}

func (t *Grep) Class() tunacode.ToolClass { return tunacode.ClassReadOnly }
func (t *Grep) PlanSafe() bool            { return true }

func (t *Grep) Invoke(ctx context.Context, args json.RawMessage) (string, error) {
	var params struct {
		Pattern string `json:"pattern"`
		Path    string `json:"path"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return "", &tunacode.ToolError{Tool: "grep", Message: "invalid args: " + err.Error()}
	}
	if params.Pattern == "" {
		return "", &tunacode.ToolError{Tool: "grep", Message: "pattern is required"}
	}
	root, err := resolve(t.Workspace, params.Path)
	if err != nil {
		return "", &tunacode.ToolError{Tool: "grep", Message: err.Error()}
	}

	const maxMatches = 200
	var matches []string
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || ctx.Err() != nil || len(matches) >= maxMatches {
			return filepath.SkipAll
		}
		if d.IsDir() {
			if name := d.Name(); name == ".git" || name == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return nil
		}
		defer f.Close()
		rel, _ := filepath.Rel(t.Workspace, path)
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for line := 1; scanner.Scan() && len(matches) < maxMatches; line++ {
			if strings.Contains(scanner.Text(), params.Pattern) {
				matches = append(matches, fmt.Sprintf("%s:%d: %s", rel, line, strings.TrimSpace(scanner.Text())))
			}
		}
		return nil
	})
	if err != nil {
		return "", &tunacode.ToolError{Tool: "grep", Message: err.Error()}
	}
	if len(matches) == 0 {
		return "no matches", nil
	}
	sort.Strings(matches)
	return strings.Join(matches, "\n"), nil
}

// --- write_file ---

// WriteFile writes content to a workspace file, creating parents as needed.
type WriteFile struct {
	Workspace string
}

func (t *WriteFile) Schema() tunacode.ToolSchema {
	return tunacode.ToolSchema{
		Name:        "write_file",
		Description: "Write content to a file in the workspace. Creates parent directories if needed.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"path":{"type":"string","description":"File path relative to workspace"},"content":{"type":"string","description":"Content to write"}},"required":["path","content"]}`),
	}
}

func (t *WriteFile) Class() tunacode.ToolClass { return tunacode.ClassWrite }
func (t *WriteFile) PlanSafe() bool            { return false }

func (t *WriteFile) Invoke(_ context.Context, args json.RawMessage) (string, error) {
	var params struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return "", &tunacode.ToolError{Tool: "write_file", Message: "invalid args: " + err.Error()}
	}
	if params.Path == "" {
		return "", &tunacode.ToolError{Tool: "write_file", Message: "path is required"}
	}
	abs, err := resolve(t.Workspace, params.Path)
	if err != nil {
		return "", &tunacode.ToolError{Tool: "write_file", Message: err.Error()}
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", &tunacode.ToolError{Tool: "write_file", Message: err.Error()}
	}
	if err := os.WriteFile(abs, []byte(params.Content), 0o644); err != nil {
		return "", &tunacode.ToolError{Tool: "write_file", Message: err.Error()}
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(params.Content), params.Path), nil
}
