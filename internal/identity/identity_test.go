package identity

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	full := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad_NoFilesReturnsEmpty(t *testing.T) {
	ws, data := t.TempDir(), t.TempDir()
	if got := Load(ws, data); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}

func TestLoad_UserMDFromDataDir(t *testing.T) {
	ws, data := t.TempDir(), t.TempDir()
	writeFile(t, data, "USER.md", "prefers Go")

	got := Load(ws, data)
	if !strings.Contains(got, "prefers Go") || !strings.Contains(got, "User preferences") {
		t.Fatalf("unexpected content: %q", got)
	}
}

func TestLoad_AgentMDFromWorkspace(t *testing.T) {
	ws, data := t.TempDir(), t.TempDir()
	writeFile(t, ws, ".claw/AGENT.md", "all commits must pass lint")

	got := Load(ws, data)
	if !strings.Contains(got, "all commits must pass lint") || !strings.Contains(got, "Project behavior rules") {
		t.Fatalf("unexpected content: %q", got)
	}
}

func TestLoad_GlobalSoulUsedWithoutProjectSoul(t *testing.T) {
	ws, data := t.TempDir(), t.TempDir()
	writeFile(t, data, "SOUL.md", "you are terse")

	got := Load(ws, data)
	if !strings.Contains(got, "you are terse") || strings.Contains(got, "project") {
		t.Fatalf("unexpected content: %q", got)
	}
}

func TestLoad_ProjectSoulOverridesGlobal(t *testing.T) {
	ws, data := t.TempDir(), t.TempDir()
	writeFile(t, data, "SOUL.md", "global persona")
	writeFile(t, ws, ".claw/SOUL.md", "project persona: strict reviewer")

	got := Load(ws, data)
	if !strings.Contains(got, "project persona") || strings.Contains(got, "global persona") {
		t.Fatalf("project soul should override global: %q", got)
	}
}

func TestLoad_EmptyOrWhitespaceFileOmitted(t *testing.T) {
	ws, data := t.TempDir(), t.TempDir()
	writeFile(t, data, "USER.md", "   \n\n  ")
	if got := Load(ws, data); got != "" {
		t.Fatalf("whitespace-only file should be omitted, got %q", got)
	}
}

func TestLoad_TruncatesAt8KiB(t *testing.T) {
	ws, data := t.TempDir(), t.TempDir()
	writeFile(t, data, "USER.md", strings.Repeat("a", maxFileBytes+1000))

	got := Load(ws, data)
	if !strings.Contains(got, "[content truncated]") {
		t.Fatalf("expected truncation marker, got len=%d", len(got))
	}
}

func TestLoad_ExactlyEightKiBNotTruncated(t *testing.T) {
	ws, data := t.TempDir(), t.TempDir()
	writeFile(t, data, "USER.md", strings.Repeat("a", maxFileBytes))

	got := Load(ws, data)
	if strings.Contains(got, "[content truncated]") {
		t.Fatalf("exact 8 KiB should not be truncated")
	}
}
