package skills

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSkill(t *testing.T, dir, name, desc, body string) {
	t.Helper()
	skillDir := filepath.Join(dir, name)
	if err := os.MkdirAll(skillDir, 0o755); err != nil {
		t.Fatal(err)
	}
	content := "---\nname: " + name + "\ndescription: " + desc + "\ntags: [test]\n---\n\n" + body
	if err := os.WriteFile(filepath.Join(skillDir, "SKILL.md"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestParseSkillMD_Valid(t *testing.T) {
	content := "---\nname: my-skill\ndescription: does a thing, use when needed.\ntags: [dev, test]\n---\n\n# Instructions\ndo this then that."
	name, desc, tags, body, err := ParseSkillMD(content)
	if err != nil {
		t.Fatal(err)
	}
	if name != "my-skill" || desc != "does a thing, use when needed." {
		t.Fatalf("unexpected name/desc: %q %q", name, desc)
	}
	if len(tags) != 2 || tags[0] != "dev" || tags[1] != "test" {
		t.Fatalf("unexpected tags: %v", tags)
	}
	if !strings.Contains(body, "# Instructions") {
		t.Fatalf("unexpected body: %q", body)
	}
}

func TestParseSkillMD_MissingFrontmatterDelimiter(t *testing.T) {
	if _, _, _, _, err := ParseSkillMD("name: my-skill\ndescription: test"); err == nil {
		t.Fatal("expected error")
	}
}

func TestParseSkillMD_UnclosedFrontmatter(t *testing.T) {
	if _, _, _, _, err := ParseSkillMD("---\nname: my-skill\ndescription: test\n"); err == nil {
		t.Fatal("expected error")
	}
}

func TestParseSkillMD_MissingName(t *testing.T) {
	if _, _, _, _, err := ParseSkillMD("---\ndescription: something\n---\n\nbody"); err == nil {
		t.Fatal("expected error")
	}
}

func TestParseSkillMD_MissingDescription(t *testing.T) {
	if _, _, _, _, err := ParseSkillMD("---\nname: my-skill\n---\n\nbody"); err == nil {
		t.Fatal("expected error")
	}
}

func TestParseSkillMD_EmptyTags(t *testing.T) {
	_, _, tags, _, err := ParseSkillMD("---\nname: my-skill\ndescription: test desc\ntags: []\n---\n\nbody")
	if err != nil {
		t.Fatal(err)
	}
	if len(tags) != 0 {
		t.Fatalf("expected no tags, got %v", tags)
	}
}

func TestValidateName_Valid(t *testing.T) {
	for _, n := range []string{"code-review", "go-dev", "abc123", "a"} {
		if err := ValidateName(n); err != nil {
			t.Fatalf("expected %q valid, got %v", n, err)
		}
	}
}

func TestValidateName_Invalid(t *testing.T) {
	cases := []string{"", "-starts-with-dash", "HasUpperCase", "has space", "has_underscore", strings.Repeat("a", 65)}
	for _, n := range cases {
		if err := ValidateName(n); err == nil {
			t.Fatalf("expected %q invalid", n)
		}
	}
}

func TestScanDir_Empty(t *testing.T) {
	dir := t.TempDir()
	if got := ScanDir(dir, SourceGlobal); len(got) != 0 {
		t.Fatalf("expected empty, got %v", got)
	}
}

func TestScanDir_WithSkills(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "skill-a", "desc a, use for a.", "instructions a")
	writeSkill(t, dir, "skill-b", "desc b, use for b.", "instructions b")

	got := ScanDir(dir, SourceGlobal)
	if len(got) != 2 {
		t.Fatalf("expected 2 skills, got %d", len(got))
	}
	names := map[string]bool{}
	for _, m := range got {
		names[m.Name] = true
	}
	if !names["skill-a"] || !names["skill-b"] {
		t.Fatalf("missing expected names: %v", got)
	}
}

func TestScanDir_IgnoresDirsWithoutSkillMD(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "empty-dir"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeSkill(t, dir, "valid-skill", "valid skill, for testing.", "instructions")

	got := ScanDir(dir, SourceGlobal)
	if len(got) != 1 {
		t.Fatalf("expected 1 skill, got %d", len(got))
	}
}

func TestLoad_ProjectOverridesGlobal(t *testing.T) {
	globalDir := t.TempDir()
	workspaceDir := t.TempDir()

	writeSkill(t, globalDir, "my-skill", "global version, for testing.", "global instructions")

	projectSkillsDir := filepath.Join(workspaceDir, ".claw", "skills")
	if err := os.MkdirAll(projectSkillsDir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeSkill(t, projectSkillsDir, "my-skill", "project version, for testing.", "project instructions")

	got := Load(workspaceDir, globalDir)
	if want := len(Builtin()) + 1; len(got) != want {
		t.Fatalf("expected %d merged skills (builtins plus one my-skill), got %d", want, len(got))
	}
	var mine *Meta
	for i := range got {
		if got[i].Name == "my-skill" {
			mine = &got[i]
		}
	}
	if mine == nil || mine.Description != "project version, for testing." || mine.Source != SourceProject {
		t.Fatalf("project skill should win: %+v", mine)
	}
}

func TestLoad_MultipleSourcesMerged(t *testing.T) {
	globalDir := t.TempDir()
	workspaceDir := t.TempDir()

	writeSkill(t, globalDir, "global-only", "global only, for testing.", "instructions")

	projectDir := filepath.Join(workspaceDir, ".claw", "skills")
	if err := os.MkdirAll(projectDir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeSkill(t, projectDir, "project-only", "project only, for testing.", "instructions")

	got := Load(workspaceDir, globalDir)
	names := map[string]bool{}
	for _, m := range got {
		names[m.Name] = true
	}
	if !names["global-only"] || !names["project-only"] || !names["code-review"] {
		t.Fatalf("expected builtin + global + project merged: %v", got)
	}
}

func TestBuiltin_ReturnsFour(t *testing.T) {
	got := Builtin()
	if len(got) != 4 {
		t.Fatalf("expected 4 builtin skills, got %d", len(got))
	}
	names := map[string]bool{}
	for _, m := range got {
		if m.Description == "" {
			t.Fatalf("skill %q has empty description", m.Name)
		}
		names[m.Name] = true
	}
	for _, want := range []string{"code-review", "git-commit", "go-dev", "remote-tool-install"} {
		if !names[want] {
			t.Fatalf("missing builtin skill %q", want)
		}
	}
}

func TestLoadContent_Builtin(t *testing.T) {
	metas := Builtin()
	content, err := LoadContent("code-review", metas)
	if err != nil {
		t.Fatal(err)
	}
	if content.Meta.Name != "code-review" || content.Instructions == "" {
		t.Fatalf("unexpected content: %+v", content)
	}
	if content.Meta.Source != SourceBuiltin {
		t.Fatalf("expected builtin source, got %v", content.Meta.Source)
	}
}

func TestLoadContent_UnknownSkill(t *testing.T) {
	metas := Builtin()
	_, err := LoadContent("nonexistent", metas)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "not found") || !strings.Contains(err.Error(), "nonexistent") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadContent_Filesystem(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "test-skill", "test skill, for testing.", "detailed instructions here.")

	metas := ScanDir(dir, SourceGlobal)
	content, err := LoadContent("test-skill", metas)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(content.Instructions, "detailed instructions here.") {
		t.Fatalf("unexpected instructions: %q", content.Instructions)
	}
}
