// Package shell provides the bash tool: arbitrary command execution in the
// workspace directory.
package shell

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	tunacode "github.com/ryumacodes/tunacode"
)

// Bash executes shell commands in the workspace.
type Bash struct {
	Workspace      string
	DefaultTimeout int // seconds; 0 = 30
}

func (t *Bash) Schema() tunacode.ToolSchema {
	return tunacode.ToolSchema{
		Name:        "bash",
		Description: "Execute a shell command in the workspace directory. Returns stdout + stderr.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"command":{"type":"string","description":"Shell command to execute"},"timeout":{"type":"integer","description":"Timeout in seconds (default 30)"}},"required":["command"]}`),
	}
}

func (t *Bash) Class() tunacode.ToolClass { return tunacode.ClassExecute }
func (t *Bash) PlanSafe() bool            { return false }

func (t *Bash) Invoke(ctx context.Context, args json.RawMessage) (string, error) {
	var params struct {
		Command string `json:"command"`
		Timeout int    `json:"timeout"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return "", &tunacode.ToolError{Tool: "bash", Message: "invalid args: " + err.Error()}
	}
	if params.Command == "" {
		return "", &tunacode.ToolError{Tool: "bash", Message: "command is required"}
	}

	// Basic blocklist
	lower := strings.ToLower(params.Command)
	blocked := []string{"rm -rf /", "sudo ", "mkfs", "> /dev/", "dd if="}
	for _, b := range blocked {
		if strings.Contains(lower, b) {
			return "", &tunacode.ToolError{Tool: "bash", Message: "command blocked for safety: " + b}
		}
	}

	timeout := t.DefaultTimeout
	if timeout <= 0 {
		timeout = 30
	}
	if params.Timeout > 0 {
		timeout = params.Timeout
	}
	if timeout > 300 {
		timeout = 300
	}

	cmdCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, "sh", "-c", params.Command)
	cmd.Dir = t.Workspace

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	var output string
	if stdout.Len() > 0 {
		output = stdout.String()
	}
	if stderr.Len() > 0 {
		if output != "" {
			output += "\n--- stderr ---\n"
		}
		output += stderr.String()
	}
	if len(output) > 8000 {
		output = output[:8000] + "\n... (truncated)"
	}

	if err != nil {
		if cmdCtx.Err() == context.DeadlineExceeded {
			return "", &tunacode.ToolError{Tool: "bash", Message: fmt.Sprintf("command timed out after %ds", timeout)}
		}
		if output == "" {
			output = err.Error()
		}
		return "", &tunacode.ToolError{Tool: "bash", Message: output}
	}
	if output == "" {
		output = "(no output)"
	}
	return output, nil
}
