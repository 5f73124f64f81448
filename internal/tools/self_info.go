package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/localclaw/claw/internal/config"
	"github.com/localclaw/claw/internal/security"
)

// SelfInfoTool answers questions about the agent's own configuration and
// runtime layout. Pure read, no side effects.
type SelfInfoTool struct {
	cfg        *config.Config
	dataDir    string
	logDir     string
	configPath string
}

func NewSelfInfoTool(cfg *config.Config, dataDir, logDir, configPath string) *SelfInfoTool {
	return &SelfInfoTool{cfg: cfg, dataDir: dataDir, logDir: logDir, configPath: configPath}
}

func (t *SelfInfoTool) Name() string { return "self_info" }
func (t *SelfInfoTool) Description() string {
	return "Query the agent's own information (config, paths, provider, stats, help). " +
		"Use only when you actually need to know your own state — don't call it every turn."
}

func (t *SelfInfoTool) ParametersSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"config", "paths", "provider", "stats", "help"},
				"description": "config=overview, paths=file locations, provider=current provider details, stats=counters, help=available commands",
			},
		},
		"required": []string{"query"},
	}
}

func (t *SelfInfoTool) PreValidate(args json.RawMessage, policy security.Policy) string { return "" }

func (t *SelfInfoTool) Execute(ctx context.Context, args json.RawMessage, policy security.Policy) (Result, error) {
	var a struct {
		Query string `json:"query"`
	}
	_ = json.Unmarshal(args, &a)
	if a.Query == "" {
		a.Query = "help"
	}

	switch a.Query {
	case "config":
		return Result{Success: true, Output: t.queryConfig()}, nil
	case "paths":
		return Result{Success: true, Output: t.queryPaths()}, nil
	case "provider":
		return Result{Success: true, Output: t.queryProvider()}, nil
	case "stats":
		return Result{Success: true, Output: t.queryStats()}, nil
	case "help":
		return Result{Success: true, Output: queryHelp()}, nil
	default:
		return Result{Success: false, Error: fmt.Sprintf("unknown query type: %q. choices: config, paths, provider, stats, help", a.Query)}, nil
	}
}

func (t *SelfInfoTool) queryConfig() string {
	var lines []string
	lines = append(lines, fmt.Sprintf("current provider: %s", t.cfg.Default.Provider))
	lines = append(lines, fmt.Sprintf("current model: %s", t.cfg.Default.Model))
	lines = append(lines, fmt.Sprintf("temperature: %v", t.cfg.Default.Temperature))
	lines = append(lines, fmt.Sprintf("autonomy: %s", t.cfg.Security.Autonomy))
	lines = append(lines, fmt.Sprintf("command whitelist: [%s]", strings.Join(t.cfg.Security.AllowedCommands, ", ")))
	lines = append(lines, fmt.Sprintf("workspace-only: %t", t.cfg.Security.WorkspaceOnly))

	lines = append(lines, "", "configured providers:")
	names := make([]string, 0, len(t.cfg.Providers))
	for name := range t.cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		pc := t.cfg.Providers[name]
		lines = append(lines, fmt.Sprintf("  - %s: model=%s, base_url=%s, api_key=%s", name, pc.Model, pc.BaseURL, maskAPIKeyHelp(pc.APIKey)))
	}
	return strings.Join(lines, "\n")
}

func (t *SelfInfoTool) queryPaths() string {
	dbPath := t.dataDir + "/memory.db"
	lines := []string{
		fmt.Sprintf("config file: %s", t.configPath),
		fmt.Sprintf("data dir: %s", t.dataDir),
		fmt.Sprintf("sqlite database: %s", dbPath),
		fmt.Sprintf("log dir: %s", t.logDir),
		"log output: standard error (no log file is written)",
	}
	return strings.Join(lines, "\n")
}

func (t *SelfInfoTool) queryProvider() string {
	name := t.cfg.Default.Provider
	lines := []string{
		fmt.Sprintf("current provider: %s", name),
		fmt.Sprintf("current model: %s", t.cfg.Default.Model),
	}
	if pc, ok := t.cfg.Providers[name]; ok {
		lines = append(lines, fmt.Sprintf("base url: %s", pc.BaseURL))
		authStyle := pc.AuthStyle
		if authStyle == "" {
			authStyle = "Bearer token"
		}
		lines = append(lines, fmt.Sprintf("auth style: %s", authStyle))
	} else {
		lines = append(lines, fmt.Sprintf("(provider %q not found in config)", name))
	}
	return strings.Join(lines, "\n")
}

func (t *SelfInfoTool) queryStats() string {
	dbPath := t.dataDir + "/memory.db"
	dbSize := "database does not exist"
	if info, err := os.Stat(dbPath); err == nil {
		dbSize = formatBytes(info.Size())
	}
	lines := []string{
		fmt.Sprintf("database size: %s", dbSize),
		fmt.Sprintf("configured providers: %d", len(t.cfg.Providers)),
	}
	return strings.Join(lines, "\n")
}

func queryHelp() string {
	lines := []string{
		"terminal chat controls (there are no slash commands):",
		"  exit / quit / Ctrl-D — quit",
		"  Ctrl-C — interrupt the current turn and end the session",
	}
	return strings.Join(lines, "\n")
}

func maskAPIKeyHelp(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return key[:4] + "****"
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	if n < unit*unit {
		return fmt.Sprintf("%.1f KB", float64(n)/unit)
	}
	return fmt.Sprintf("%.1f MB", float64(n)/(unit*unit))
}
