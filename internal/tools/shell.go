package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/localclaw/claw/internal/security"
)

const (
	shellTimeoutSeconds = 30
	shellTimeout        = shellTimeoutSeconds * time.Second
)

// ShellTool runs a shell command whose first whitespace-delimited token
// (basename-matched) is in the policy's command whitelist. Unlike the
// teacher's ExecTool, this is allow-list-first: there is no supplementary
// deny-pattern regex layer (see DESIGN.md's internal/tools entry for why).
type ShellTool struct {
	workspaceDir string
}

func NewShellTool(workspaceDir string) *ShellTool {
	return &ShellTool{workspaceDir: workspaceDir}
}

func (t *ShellTool) Name() string        { return "shell" }
func (t *ShellTool) Description() string { return "Execute a whitelisted shell command in the workspace directory." }

func (t *ShellTool) ParametersSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"command": map[string]interface{}{
				"type":        "string",
				"description": "The shell command to execute",
			},
		},
		"required": []string{"command"},
	}
}

type shellArgs struct {
	Command string `json:"command"`
}

func (t *ShellTool) parseArgs(args json.RawMessage) (shellArgs, error) {
	var a shellArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return a, fmt.Errorf("invalid arguments: %w", err)
	}
	if a.Command == "" {
		return a, fmt.Errorf("missing command parameter")
	}
	return a, nil
}

func (t *ShellTool) PreValidate(args json.RawMessage, policy security.Policy) string {
	a, err := t.parseArgs(args)
	if err != nil {
		return err.Error()
	}
	if !policy.AllowsExecution() {
		return "read-only mode: command execution is not allowed"
	}
	if !policy.IsCommandAllowed(a.Command) {
		return fmt.Sprintf("command not in whitelist: %s", a.Command)
	}
	return ""
}

func (t *ShellTool) Execute(ctx context.Context, args json.RawMessage, policy security.Policy) (Result, error) {
	a, err := t.parseArgs(args)
	if err != nil {
		return Result{Success: false, Error: err.Error()}, nil
	}
	if !policy.AllowsExecution() {
		return Result{Success: false, Error: "read-only mode: command execution is not allowed"}, nil
	}
	if !policy.IsCommandAllowed(a.Command) {
		return Result{Success: false, Error: fmt.Sprintf("command not in whitelist: %s", a.Command)}, nil
	}

	runCtx, cancel := context.WithTimeout(ctx, shellTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", a.Command)
	cmd.Dir = t.workspaceDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	if runCtx.Err() == context.DeadlineExceeded {
		return Result{Success: false, Error: fmt.Sprintf("command timed out after %ds", shellTimeoutSeconds)}, nil
	}

	if runErr != nil {
		exitCode := -1
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		return Result{
			Success: false,
			Output:  stdout.String(),
			Error:   fmt.Sprintf("exit code %d\n%s", exitCode, stderr.String()),
		}, nil
	}

	return Result{
		Success: true,
		Output:  stdout.String(),
		Error:   stderr.String(),
	}, nil
}
