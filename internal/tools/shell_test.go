package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/localclaw/claw/internal/security"
)

func testPolicy(t *testing.T, autonomy security.AutonomyLevel, allowedCmds ...string) security.Policy {
	t.Helper()
	return security.New(autonomy, allowedCmds, t.TempDir(), nil, nil, true)
}

func TestShellToolReadOnlyRejected(t *testing.T) {
	tool := NewShellTool(t.TempDir())
	policy := testPolicy(t, security.ReadOnly, "echo")
	args, _ := json.Marshal(map[string]string{"command": "echo hello"})

	if reason := tool.PreValidate(args, policy); !strings.Contains(reason, "read-only") {
		t.Fatalf("expected read-only rejection, got %q", reason)
	}
}

func TestShellToolWhitelistRejected(t *testing.T) {
	tool := NewShellTool(t.TempDir())
	policy := testPolicy(t, security.Full, "echo")
	args, _ := json.Marshal(map[string]string{"command": "rm -rf /"})

	reason := tool.PreValidate(args, policy)
	if !strings.Contains(reason, "whitelist") && !strings.Contains(reason, "not in") {
		t.Fatalf("expected whitelist rejection, got %q", reason)
	}

	res, err := tool.Execute(context.Background(), args, policy)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success {
		t.Fatal("expected execution to be rejected, not run")
	}
}

func TestShellToolAllowedCommandRuns(t *testing.T) {
	tool := NewShellTool(t.TempDir())
	policy := testPolicy(t, security.Full, "echo")
	args, _ := json.Marshal(map[string]string{"command": "echo hello"})

	if reason := tool.PreValidate(args, policy); reason != "" {
		t.Fatalf("unexpected rejection: %s", reason)
	}

	res, err := tool.Execute(context.Background(), args, policy)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got error %q", res.Error)
	}
	if !strings.Contains(res.Output, "hello") {
		t.Fatalf("expected output to contain hello, got %q", res.Output)
	}
}

func TestShellToolNonZeroExit(t *testing.T) {
	tool := NewShellTool(t.TempDir())
	policy := testPolicy(t, security.Full, "false")
	args, _ := json.Marshal(map[string]string{"command": "false"})

	res, err := tool.Execute(context.Background(), args, policy)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success {
		t.Fatal("expected failure for nonzero exit")
	}
	if !strings.Contains(res.Error, "exit code") {
		t.Fatalf("expected exit code in error, got %q", res.Error)
	}
}

func TestShellToolWhitespaceOnlyOutputStillSucceeds(t *testing.T) {
	tool := NewShellTool(t.TempDir())
	policy := testPolicy(t, security.Full, "printf")
	args, _ := json.Marshal(map[string]string{"command": "printf '   \\n'"})

	res, err := tool.Execute(context.Background(), args, policy)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got error %q", res.Error)
	}
}

func TestShellToolEmptyCommandNeverAllowed(t *testing.T) {
	policy := testPolicy(t, security.Full, "echo")
	if policy.IsCommandAllowed("") {
		t.Fatal("empty command must never be allowed")
	}
}
