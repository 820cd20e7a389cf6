package file

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tunacode "github.com/ryumacodes/tunacode"
)

func workspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n\nfunc main() {}\n"), 0o644)
	os.MkdirAll(filepath.Join(dir, "internal"), 0o755)
	os.WriteFile(filepath.Join(dir, "internal", "util.go"), []byte("package internal\n// helper func\n"), 0o644)
	return dir
}

func TestReadFile(t *testing.T) {
	ws := workspace(t)
	tool := &ReadFile{Workspace: ws}

	if tool.Class() != tunacode.ClassReadOnly || !tool.PlanSafe() {
		t.Error("read_file must be read-only and plan-safe")
	}

	out, err := tool.Invoke(context.Background(), json.RawMessage(`{"path":"main.go"}`))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "package main") {
		t.Errorf("out = %q", out)
	}
}

func TestReadFileEscapeBlocked(t *testing.T) {
	tool := &ReadFile{Workspace: workspace(t)}
	_, err := tool.Invoke(context.Background(), json.RawMessage(`{"path":"../../etc/passwd"}`))
	if err == nil {
		t.Fatal("workspace escape allowed")
	}
}

func TestListDir(t *testing.T) {
	tool := &ListDir{Workspace: workspace(t)}
	out, err := tool.Invoke(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "file main.go") || !strings.Contains(out, "dir internal") {
		t.Errorf("out = %q", out)
	}
}

func TestGrep(t *testing.T) {
	tool := &Grep{Workspace: workspace(t)}
	out, err := tool.Invoke(context.Background(), json.RawMessage(`{"pattern":"helper"}`))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "util.go:2") {
		t.Errorf("out = %q", out)
	}

	out, err = tool.Invoke(context.Background(), json.RawMessage(`{"pattern":"nothing-matches-this"}`))
	if err != nil {
		t.Fatal(err)
	}
	if out != "no matches" {
		t.Errorf("out = %q", out)
	}
}

func TestWriteFile(t *testing.T) {
	ws := workspace(t)
	tool := &WriteFile{Workspace: ws}

	if tool.Class() != tunacode.ClassWrite || tool.PlanSafe() {
		t.Error("write_file must be write-class and not plan-safe")
	}

	_, err := tool.Invoke(context.Background(), json.RawMessage(`{"path":"new/dir/out.txt","content":"hello"}`))
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(ws, "new", "dir", "out.txt"))
	if err != nil || string(data) != "hello" {
		t.Errorf("data = %q, err = %v", data, err)
	}
}
