package shell

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tunacode "github.com/ryumacodes/tunacode"
)

func newBash(t *testing.T) *Bash {
	t.Helper()
	return &Bash{Workspace: t.TempDir(), DefaultTimeout: 5}
}

func TestBashEcho(t *testing.T) {
	tool := newBash(t)
	if tool.Class() != tunacode.ClassExecute || tool.PlanSafe() {
		t.Error("bash must be execute-class and not plan-safe")
	}

	out, err := tool.Invoke(context.Background(), json.RawMessage(`{"command":"echo hello"}`))
	if err != nil {
		t.Fatal(err)
	}
	if out != "hello\n" {
		t.Errorf("out = %q, want 'hello\\n'", out)
	}
}

func TestBashRunsInWorkspace(t *testing.T) {
	tool := newBash(t)
	os.WriteFile(filepath.Join(tool.Workspace, "test.txt"), []byte("content"), 0o644)

	out, err := tool.Invoke(context.Background(), json.RawMessage(`{"command":"ls test.txt"}`))
	if err != nil {
		t.Fatal(err)
	}
	if out != "test.txt\n" {
		t.Errorf("out = %q, want test.txt", out)
	}
}

func TestBashBlocklist(t *testing.T) {
	tool := newBash(t)
	blocked := []string{
		"rm -rf /",
		"SUDO reboot",
		"mkfs.ext4 /dev/sda",
		"echo test > /dev/null && dd if=/dev/zero of=/tmp/x",
	}
	for _, cmd := range blocked {
		args, _ := json.Marshal(map[string]any{"command": cmd})
		_, err := tool.Invoke(context.Background(), args)
		var toolErr *tunacode.ToolError
		if !errors.As(err, &toolErr) {
			t.Errorf("%q: err = %v, want ToolError", cmd, err)
			continue
		}
		if !strings.Contains(toolErr.Message, "blocked") {
			t.Errorf("%q: message = %q, want blocked", cmd, toolErr.Message)
		}
	}
}

func TestBashTimeout(t *testing.T) {
	tool := newBash(t)
	_, err := tool.Invoke(context.Background(), json.RawMessage(`{"command":"sleep 10","timeout":1}`))
	var toolErr *tunacode.ToolError
	if !errors.As(err, &toolErr) || !strings.Contains(toolErr.Message, "timed out") {
		t.Errorf("err = %v, want timeout ToolError", err)
	}
}

func TestBashTimeoutCapped(t *testing.T) {
	tool := newBash(t)
	// timeout=999 is capped to 300, but the command finishes fast anyway.
	out, err := tool.Invoke(context.Background(), json.RawMessage(`{"command":"echo hi","timeout":999}`))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "hi") {
		t.Errorf("out = %q", out)
	}
}

func TestBashMergesStderr(t *testing.T) {
	tool := newBash(t)
	out, err := tool.Invoke(context.Background(), json.RawMessage(`{"command":"echo out && echo err >&2"}`))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "out") || !strings.Contains(out, "err") {
		t.Errorf("out = %q, want stdout and stderr content", out)
	}
	if !strings.Contains(out, "stderr") {
		t.Errorf("out = %q, want stderr separator", out)
	}
}

func TestBashExitCodeIsError(t *testing.T) {
	tool := newBash(t)
	_, err := tool.Invoke(context.Background(), json.RawMessage(`{"command":"exit 1"}`))
	var toolErr *tunacode.ToolError
	if !errors.As(err, &toolErr) {
		t.Errorf("err = %v, want ToolError on non-zero exit", err)
	}
}

func TestBashEmptyCommand(t *testing.T) {
	tool := newBash(t)
	_, err := tool.Invoke(context.Background(), json.RawMessage(`{}`))
	var toolErr *tunacode.ToolError
	if !errors.As(err, &toolErr) || !strings.Contains(toolErr.Message, "required") {
		t.Errorf("err = %v, want required-command ToolError", err)
	}
}

func TestBashNoOutput(t *testing.T) {
	tool := newBash(t)
	out, err := tool.Invoke(context.Background(), json.RawMessage(`{"command":"true"}`))
	if err != nil {
		t.Fatal(err)
	}
	if out != "(no output)" {
		t.Errorf("out = %q, want '(no output)'", out)
	}
}

func TestBashTruncatesLongOutput(t *testing.T) {
	tool := newBash(t)
	// ~10k chars of output must be cut to 8000 plus the truncation mark.
	out, err := tool.Invoke(context.Background(), json.RawMessage(`{"command":"yes x | head -c 10000"}`))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(out, "... (truncated)") {
		t.Errorf("output not truncated: len=%d tail=%q", len(out), out[max(0, len(out)-30):])
	}
	if len(out) > 8000+len("\n... (truncated)") {
		t.Errorf("truncated output still %d chars", len(out))
	}
}
