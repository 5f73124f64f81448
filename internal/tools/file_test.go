package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/localclaw/claw/internal/security"
)

func TestFileWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	policy := security.New(security.Full, nil, dir, nil, nil, true)

	writeTool := NewFileWriteTool(dir)
	args, _ := json.Marshal(map[string]string{"path": "notes/todo.txt", "content": "buy milk"})

	if reason := writeTool.PreValidate(args, policy); reason != "" {
		t.Fatalf("unexpected rejection: %s", reason)
	}
	res, err := writeTool.Execute(context.Background(), args, policy)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success {
		t.Fatalf("write failed: %s", res.Error)
	}
	if !strings.Contains(res.Output, "8 bytes") {
		t.Fatalf("expected byte count in output, got %q", res.Output)
	}

	readTool := NewFileReadTool(dir)
	readArgs, _ := json.Marshal(map[string]string{"path": "notes/todo.txt"})
	readRes, err := readTool.Execute(context.Background(), readArgs, policy)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if readRes.Output != "buy milk" {
		t.Fatalf("expected roundtrip content, got %q", readRes.Output)
	}
}

func TestFileWriteRejectedReadOnly(t *testing.T) {
	dir := t.TempDir()
	policy := security.New(security.ReadOnly, nil, dir, nil, nil, true)

	tool := NewFileWriteTool(dir)
	args, _ := json.Marshal(map[string]string{"path": "x.txt", "content": "y"})

	if reason := tool.PreValidate(args, policy); !strings.Contains(reason, "read-only") {
		t.Fatalf("expected read-only rejection, got %q", reason)
	}
}

func TestFileToolsRejectPathOutsideWorkspace(t *testing.T) {
	dir := t.TempDir()
	policy := security.New(security.Full, nil, dir, nil, nil, true)

	readTool := NewFileReadTool(dir)
	args, _ := json.Marshal(map[string]string{"path": "/etc/passwd"})
	if reason := readTool.PreValidate(args, policy); reason == "" {
		t.Fatal("expected rejection for path outside workspace")
	}
}

func TestFileToolsRejectBlockedPath(t *testing.T) {
	dir := t.TempDir()
	blocked := filepath.Join(dir, "secrets")
	if err := os.Mkdir(blocked, 0o755); err != nil {
		t.Fatal(err)
	}
	policy := security.New(security.Full, nil, dir, []string{blocked}, nil, true)

	readTool := NewFileReadTool(dir)
	args, _ := json.Marshal(map[string]string{"path": filepath.Join(blocked, "key.pem")})
	if reason := readTool.PreValidate(args, policy); reason == "" {
		t.Fatal("expected rejection for blocked path descendant")
	}
}
