package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/google/shlex"
	"github.com/localclaw/claw/internal/security"
)

var gitValidActions = map[string]struct{}{
	"status": {}, "diff": {}, "log": {}, "add": {}, "commit": {},
	"branch": {}, "checkout": {}, "push": {},
}

// GitTool is the recommended, safer alternative to raw shell for version
// control: an action whitelist plus a hard block on force-push and
// force-checkout, regardless of the shell whitelist's own configuration.
type GitTool struct {
	workspaceDir string
}

func NewGitTool(workspaceDir string) *GitTool {
	return &GitTool{workspaceDir: workspaceDir}
}

func (t *GitTool) Name() string { return "git" }
func (t *GitTool) Description() string {
	return "Git version control (safer than shell: action whitelist, force push/checkout blocked). " +
		"Supported actions: status, diff, log, add, commit, branch, checkout, push."
}

func (t *GitTool) ParametersSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"status", "diff", "log", "add", "commit", "branch", "checkout", "push"},
				"description": "Git operation to perform",
			},
			"args": map[string]interface{}{
				"type":        "string",
				"description": "Extra arguments, e.g. the -m \"message\" for commit, a file list for add, or origin main for push. May be left empty.",
			},
		},
		"required": []string{"action"},
	}
}

type gitArgs struct {
	Action string `json:"action"`
	Args   string `json:"args"`
}

func (t *GitTool) PreValidate(args json.RawMessage, policy security.Policy) string {
	var a gitArgs
	_ = json.Unmarshal(args, &a)

	if !policy.AllowsExecution() {
		return "read-only mode: git operations are not allowed"
	}
	if a.Action == "push" && (strings.Contains(a.Args, "--force") || strings.Contains(a.Args, "-f")) {
		return "force push is forbidden; run it manually if you intend it"
	}
	if a.Action == "checkout" && (strings.Contains(a.Args, "--force") || strings.Contains(a.Args, "-f")) {
		return "force checkout is forbidden; run it manually if you intend it"
	}
	return ""
}

func buildGitArgs(action, extra string) ([]string, error) {
	if _, ok := gitValidActions[action]; !ok {
		return nil, fmt.Errorf("unknown git action: %q", action)
	}
	out := []string{action}
	if extra != "" {
		extraArgs, err := shlex.Split(extra)
		if err != nil {
			return nil, fmt.Errorf("failed to parse args: %w", err)
		}
		out = append(out, extraArgs...)
	}
	return out, nil
}

func (t *GitTool) Execute(ctx context.Context, args json.RawMessage, policy security.Policy) (Result, error) {
	var a gitArgs
	if err := json.Unmarshal(args, &a); err != nil || a.Action == "" {
		return Result{Success: false, Error: "missing action parameter"}, nil
	}
	if msg := t.PreValidate(args, policy); msg != "" {
		return Result{Success: false, Error: msg}, nil
	}

	gitArgsList, err := buildGitArgs(a.Action, a.Args)
	if err != nil {
		return Result{Success: false, Error: err.Error()}, nil
	}

	cmd := exec.CommandContext(ctx, "git", gitArgsList...)
	cmd.Dir = t.workspaceDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if runErr != nil {
		if stderr.Len() > 0 {
			return Result{Success: false, Output: stdout.String(), Error: stderr.String()}, nil
		}
		exitCode := -1
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		return Result{Success: false, Output: stdout.String(), Error: fmt.Sprintf("git exit code: %d", exitCode)}, nil
	}

	out := stdout.String()
	if out == "" {
		out = stderr.String()
	}
	return Result{Success: true, Output: out}, nil
}
