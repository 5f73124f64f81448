package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/localclaw/claw/internal/security"
)

func resolvePath(pathStr, workspaceDir string) string {
	if filepath.IsAbs(pathStr) {
		return pathStr
	}
	return filepath.Join(workspaceDir, pathStr)
}

// FileReadTool reads a file's contents. The path must fall inside the
// workspace (or otherwise pass the security policy's path allow-list).
type FileReadTool struct {
	workspaceDir string
}

func NewFileReadTool(workspaceDir string) *FileReadTool {
	return &FileReadTool{workspaceDir: workspaceDir}
}

func (t *FileReadTool) Name() string        { return "file_read" }
func (t *FileReadTool) Description() string { return "Read a file's contents. The path must be within the allowed workspace." }

func (t *FileReadTool) ParametersSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Path of the file to read",
			},
		},
		"required": []string{"path"},
	}
}

type fileReadArgs struct {
	Path string `json:"path"`
}

func (t *FileReadTool) PreValidate(args json.RawMessage, policy security.Policy) string {
	var a fileReadArgs
	if err := json.Unmarshal(args, &a); err != nil || a.Path == "" {
		return "missing path parameter"
	}
	path := resolvePath(a.Path, t.workspaceDir)
	if !policy.IsPathAllowed(path) {
		return fmt.Sprintf("path not in allowed scope: %s", path)
	}
	return ""
}

func (t *FileReadTool) Execute(ctx context.Context, args json.RawMessage, policy security.Policy) (Result, error) {
	var a fileReadArgs
	if err := json.Unmarshal(args, &a); err != nil || a.Path == "" {
		return Result{Success: false, Error: "missing path parameter"}, nil
	}

	path := resolvePath(a.Path, t.workspaceDir)
	if !policy.IsPathAllowed(path) {
		return Result{Success: false, Error: fmt.Sprintf("path not in allowed scope: %s", path)}, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return Result{Success: false, Error: fmt.Sprintf("failed to read file: %v", err)}, nil
	}
	return Result{Success: true, Output: string(content)}, nil
}

// FileWriteTool writes file contents, creating parent directories as
// needed. Rejected outright under a ReadOnly policy.
type FileWriteTool struct {
	workspaceDir string
}

func NewFileWriteTool(workspaceDir string) *FileWriteTool {
	return &FileWriteTool{workspaceDir: workspaceDir}
}

func (t *FileWriteTool) Name() string        { return "file_write" }
func (t *FileWriteTool) Description() string { return "Write content to a file. The path must be within the allowed workspace." }

func (t *FileWriteTool) ParametersSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Path of the file to write",
			},
			"content": map[string]interface{}{
				"type":        "string",
				"description": "Content to write",
			},
		},
		"required": []string{"path", "content"},
	}
}

type fileWriteArgs struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func (t *FileWriteTool) parseArgs(args json.RawMessage) (fileWriteArgs, string) {
	var a fileWriteArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return a, "invalid arguments"
	}
	if a.Path == "" {
		return a, "missing path parameter"
	}
	if a.Content == "" {
		return a, "missing content parameter"
	}
	return a, ""
}

func (t *FileWriteTool) PreValidate(args json.RawMessage, policy security.Policy) string {
	a, errMsg := t.parseArgs(args)
	if errMsg != "" {
		return errMsg
	}
	if !policy.AllowsExecution() {
		return "read-only mode: file writes are not allowed"
	}
	path := resolvePath(a.Path, t.workspaceDir)
	if !policy.IsPathAllowed(path) {
		return fmt.Sprintf("path not in allowed scope: %s", path)
	}
	return ""
}

func (t *FileWriteTool) Execute(ctx context.Context, args json.RawMessage, policy security.Policy) (Result, error) {
	a, errMsg := t.parseArgs(args)
	if errMsg != "" {
		return Result{Success: false, Error: errMsg}, nil
	}
	if !policy.AllowsExecution() {
		return Result{Success: false, Error: "read-only mode: file writes are not allowed"}, nil
	}

	path := resolvePath(a.Path, t.workspaceDir)
	if !policy.IsPathAllowed(path) {
		return Result{Success: false, Error: fmt.Sprintf("path not in allowed scope: %s", path)}, nil
	}

	if parent := filepath.Dir(path); parent != "." {
		if _, err := os.Stat(parent); os.IsNotExist(err) {
			if err := os.MkdirAll(parent, 0o755); err != nil {
				return Result{}, fmt.Errorf("create parent directory: %w", err)
			}
		}
	}

	if err := os.WriteFile(path, []byte(a.Content), 0o644); err != nil {
		return Result{Success: false, Error: fmt.Sprintf("failed to write file: %v", err)}, nil
	}

	return Result{Success: true, Output: fmt.Sprintf("wrote %d bytes to %s", len(a.Content), path)}, nil
}
