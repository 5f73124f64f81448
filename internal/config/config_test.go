package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestFlexibleStringSliceAcceptsStringsAndNumbers(t *testing.T) {
	var f FlexibleStringSlice
	if err := json.Unmarshal([]byte(`["a", "b"]`), &f); err != nil {
		t.Fatalf("strings: %v", err)
	}
	if len(f) != 2 || f[0] != "a" {
		t.Fatalf("got %+v", f)
	}

	var g FlexibleStringSlice
	if err := json.Unmarshal([]byte(`[1, 2, 3]`), &g); err != nil {
		t.Fatalf("numbers: %v", err)
	}
	if len(g) != 3 || g[0] != "1" {
		t.Fatalf("got %+v", g)
	}
}

func TestLoadAndReloadHotKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	initial := `{"default": {"language": "en"}, "security": {"http_allowed_hosts": ["a.example.com"]}}`
	if err := os.WriteFile(path, []byte(initial), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Language() != "en" {
		t.Fatalf("expected en, got %s", cfg.Language())
	}

	updated := `{"default": {"language": "zh"}, "security": {"http_allowed_hosts": ["b.example.com", "c.example.com"]}}`
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := cfg.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if cfg.Language() != "zh" {
		t.Fatalf("expected hot-reloaded language zh, got %s", cfg.Language())
	}
	hosts := cfg.HTTPAllowedHosts()
	if len(hosts) != 2 || hosts[0] != "b.example.com" {
		t.Fatalf("expected hot-reloaded host list, got %+v", hosts)
	}
}

func TestDefaultConfigMatchesSecurityDefault(t *testing.T) {
	cfg := Default()
	if cfg.Security.Autonomy != "supervised" {
		t.Errorf("expected default autonomy supervised, got %s", cfg.Security.Autonomy)
	}
	if !cfg.Security.InjectionCheck {
		t.Error("expected injection_check true by default")
	}
	if len(cfg.Security.AllowedCommands) == 0 {
		t.Error("expected a non-empty default allowed_commands list")
	}
}
