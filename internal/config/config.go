// Package config is the process-wide configuration facade: a JSON struct,
// dotted-path accessible, with a handful of hot keys re-read from disk on
// demand — language and http_allowed_hosts are the two named hot keys;
// everything else is read once at startup and otherwise owned by an
// agent or a store.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// FlexibleStringSlice accepts both ["str"] and [123, ...] JSON shapes,
// tolerating config fields that sometimes arrive as numbers in
// hand-edited JSON.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, strconv.FormatFloat(val, 'f', -1, 64))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

// DefaultConfig holds default.{provider,model,temperature,language}.
type DefaultConfig struct {
	Provider    string  `json:"provider"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	Language    string  `json:"language"` // "en" or "zh", drives memory tokenizer selection
}

// ProviderConfig holds one providers.<name> entry. APIKey is never
// persisted to the on-disk JSON file — it is read from the environment
// at load time and kept only in memory, following the same
// env-only-secret convention as other credential fields.
type ProviderConfig struct {
	BaseURL   string `json:"base_url"`
	APIKey    string `json:"-"`
	Model     string `json:"model"`
	AuthStyle string `json:"auth_style,omitempty"`
}

// SecurityConfig holds security.*.
type SecurityConfig struct {
	Autonomy             string              `json:"autonomy"`
	AllowedCommands      FlexibleStringSlice `json:"allowed_commands"`
	WorkspaceOnly        bool                `json:"workspace_only"`
	HTTPAllowedHosts     FlexibleStringSlice `json:"http_allowed_hosts"`
	InjectionCheck       bool                `json:"injection_check"`
	HTTPStripThresholdKB int                 `json:"http_strip_threshold_kb"`
}

// MemoryConfig holds memory.*.
type MemoryConfig struct {
	Backend  string `json:"backend"` // "sqlite" (only supported backend)
	AutoSave bool   `json:"auto_save"`
}

// ReliabilityConfig holds reliability.*, feeding providers.RetryConfig.
type ReliabilityConfig struct {
	MaxRetries        int                 `json:"max_retries"`
	InitialBackoffMs  int                 `json:"initial_backoff_ms"`
	FallbackProviders FlexibleStringSlice `json:"fallback_providers"`
	// RateLimitRPS caps outbound provider calls (requests per second,
	// token-bucket burst of ceil(RPS) or 1). Zero disables limiting.
	RateLimitRPS float64 `json:"rate_limit_rps"`
}

// RoutineJobConfig is one static routines.jobs[] entry (a Config-source Routine).
type RoutineJobConfig struct {
	Name     string `json:"name"`
	Schedule string `json:"schedule"`
	Message  string `json:"message"`
	Channel  string `json:"channel"`
	Enabled  bool   `json:"enabled"`
}

// RemoteToolServerConfig is one <remote-tool-servers>.servers.<name> entry.
type RemoteToolServerConfig struct {
	Transport string            `json:"transport"` // "stdio" or "http"
	Command   string            `json:"command,omitempty"`
	Args      []string          `json:"args,omitempty"`
	URL       string            `json:"url,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
}

// RoutinesConfig holds routines.*.
type RoutinesConfig struct {
	Jobs []RoutineJobConfig `json:"jobs"`
}

// BotConfig holds bot.* — the single chat-bot front end is an
// out-of-scope thin shell, wired here only far enough to let the
// "bot" channel route somewhere instead of degrading to terminal on every
// run. Token is env-only, matching ProviderConfig's convention.
type BotConfig struct {
	Token          string              `json:"-"`
	AllowedChatIDs FlexibleStringSlice `json:"allowed_chat_ids"`
}

// Config is the root configuration document.
type Config struct {
	Default           DefaultConfig                     `json:"default"`
	Providers         map[string]ProviderConfig         `json:"providers"`
	Security          SecurityConfig                    `json:"security"`
	Memory            MemoryConfig                      `json:"memory"`
	Reliability       ReliabilityConfig                 `json:"reliability"`
	Routines          RoutinesConfig                    `json:"routines"`
	RemoteToolServers map[string]RemoteToolServerConfig `json:"remote_tool_servers"`
	Bot               BotConfig                         `json:"bot"`

	path string
	mu   sync.RWMutex
}

// Default returns a Config with the same conservative defaults as
// security.Default, suitable for a fresh install.
func Default() *Config {
	return &Config{
		Default: DefaultConfig{Provider: "anthropic", Model: "", Temperature: 0.7, Language: "en"},
		Security: SecurityConfig{
			Autonomy:        "supervised",
			AllowedCommands: []string{"ls", "cat", "grep", "find", "echo", "pwd", "git", "head", "tail", "wc"},
			InjectionCheck:  true,
		},
		Memory:      MemoryConfig{Backend: "sqlite", AutoSave: true},
		Reliability: ReliabilityConfig{MaxRetries: 3, InitialBackoffMs: 500},
		Providers:   map[string]ProviderConfig{},
	}
}

// Load reads path as JSON into a new Config, then overlays provider API
// keys from the environment (GOCLAW_<PROVIDER>_API_KEY, uppercased).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.path = path
	cfg.overlayEnvSecrets()
	return cfg, nil
}

func (c *Config) overlayEnvSecrets() {
	for name, p := range c.Providers {
		envKey := "GOCLAW_" + strings.ToUpper(name) + "_API_KEY"
		if v := os.Getenv(envKey); v != "" {
			p.APIKey = v
			c.Providers[name] = p
		}
	}
	if v := os.Getenv("GOCLAW_BOT_TOKEN"); v != "" {
		c.Bot.Token = v
	}
}

// Reload re-reads the hot keys (default.language, security.http_allowed_hosts)
// from disk without disturbing any other in-memory state.
func (c *Config) Reload() error {
	if c.path == "" {
		return nil
	}
	data, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("reload config: %w", err)
	}
	var onDisk Config
	if err := json.Unmarshal(data, &onDisk); err != nil {
		return fmt.Errorf("reload parse: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Default.Language = onDisk.Default.Language
	c.Security.HTTPAllowedHosts = onDisk.Security.HTTPAllowedHosts
	return nil
}

// Language returns the current (possibly hot-reloaded) interface language.
func (c *Config) Language() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Default.Language == "" {
		return "en"
	}
	return c.Default.Language
}

// HTTPAllowedHosts returns the current (possibly hot-reloaded) host allow-list.
func (c *Config) HTTPAllowedHosts() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.Security.HTTPAllowedHosts...)
}

// Snapshot serializes the current config as JSON for the config tool
// (internal/tools.ConfigTool). API keys never appear (json:"-").
func (c *Config) Snapshot() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return json.Marshal(c)
}

// Apply overlays doc's exported fields onto the config and persists the
// result, used by the config tool's set action. Unexported fields (path,
// mu) are left untouched since json.Unmarshal never reaches them.
func (c *Config) Apply(doc []byte) error {
	c.mu.Lock()
	if err := json.Unmarshal(doc, c); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("apply config: %w", err)
	}
	c.mu.Unlock()
	return c.Save()
}

// Save writes the config back to its source path as indented JSON. API
// keys (tagged json:"-") are never written out.
func (c *Config) Save() error {
	if c.path == "" {
		return fmt.Errorf("config has no source path to save to")
	}
	c.mu.RLock()
	data, err := json.MarshalIndent(c, "", "  ")
	c.mu.RUnlock()
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0o644)
}
