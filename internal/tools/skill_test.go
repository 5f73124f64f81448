package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/localclaw/claw/internal/security"
	"github.com/localclaw/claw/internal/skills"
)

func writeTestSkill(t *testing.T, dir, name, desc, body string) {
	t.Helper()
	skillDir := filepath.Join(dir, name)
	if err := os.MkdirAll(skillDir, 0o755); err != nil {
		t.Fatal(err)
	}
	content := "---\nname: " + name + "\ndescription: " + desc + "\ntags: []\n---\n\n" + body
	if err := os.WriteFile(filepath.Join(skillDir, "SKILL.md"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestSkillTool_ExecuteBuiltin(t *testing.T) {
	tool := NewSkillTool(skills.Builtin())
	args, _ := json.Marshal(map[string]string{"name": "code-review"})

	result, err := tool.Execute(context.Background(), args, security.Default("/workspace"))
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success || result.Output == "" {
		t.Fatalf("expected success with content, got %+v", result)
	}
}

func TestSkillTool_UnknownSkill(t *testing.T) {
	tool := NewSkillTool(skills.Builtin())
	args, _ := json.Marshal(map[string]string{"name": "nonexistent-skill"})

	result, err := tool.Execute(context.Background(), args, security.Default("/workspace"))
	if err != nil {
		t.Fatal(err)
	}
	if result.Success {
		t.Fatal("expected failure")
	}
	if !containsAll(result.Error, "nonexistent-skill") {
		t.Fatalf("unexpected error: %q", result.Error)
	}
}

func TestSkillTool_MissingName(t *testing.T) {
	tool := NewSkillTool(nil)
	result, err := tool.Execute(context.Background(), json.RawMessage(`{}`), security.Default("/workspace"))
	if err != nil {
		t.Fatal(err)
	}
	if result.Success || !containsAll(result.Error, "name") {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestSkillTool_FilesystemSkillWithResources(t *testing.T) {
	dir := t.TempDir()
	skillDir := filepath.Join(dir, "rich-skill")
	if err := os.MkdirAll(skillDir, 0o755); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(skillDir, "SKILL.md"), []byte("---\nname: rich-skill\ndescription: rich skill, for testing.\ntags: []\n---\n\ninstruction content."), 0o644)
	os.WriteFile(filepath.Join(skillDir, "guide.md"), []byte("reference guide content"), 0o644)

	metas := skills.ScanDir(dir, skills.SourceGlobal)
	tool := NewSkillTool(metas)
	args, _ := json.Marshal(map[string]string{"name": "rich-skill"})

	result, err := tool.Execute(context.Background(), args, security.Default("/workspace"))
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success || !containsAll(result.Output, "guide.md") {
		t.Fatalf("expected resource listing, got %+v", result)
	}
}

func TestSkillTool_NameAndDescription(t *testing.T) {
	tool := NewSkillTool(nil)
	if tool.Name() != "skill" {
		t.Fatalf("unexpected name: %s", tool.Name())
	}
	if tool.Description() == "" {
		t.Fatal("expected non-empty description")
	}
}

func TestSkillTool_SkillsAccessor(t *testing.T) {
	metas := skills.Builtin()
	tool := NewSkillTool(metas)
	if len(tool.Skills()) != len(metas) {
		t.Fatalf("expected %d skills, got %d", len(metas), len(tool.Skills()))
	}
}

func containsAll(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if !contains(s, sub) {
			return false
		}
	}
	return true
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
