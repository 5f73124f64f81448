package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/localclaw/claw/internal/security"
)

// ConfigAccessor is the surface ConfigTool needs from *config.Config. It is
// defined here (not imported from internal/config) so the tools package
// never depends on config, matching the dependency direction the agent
// loop wires components in.
type ConfigAccessor interface {
	// Snapshot returns the current config serialized as JSON (secrets excluded).
	Snapshot() ([]byte, error)
	// Apply replaces exported fields from the given JSON document and
	// persists the result to disk.
	Apply(doc []byte) error
}

// ConfigTool lets the agent read and adjust its own configuration.
// Changing security.autonomy is always rejected — autonomy escalation
// must happen outside the model's control.
type ConfigTool struct {
	cfg ConfigAccessor
}

func NewConfigTool(cfg ConfigAccessor) *ConfigTool {
	return &ConfigTool{cfg: cfg}
}

func (t *ConfigTool) Name() string { return "config" }
func (t *ConfigTool) Description() string {
	return "Read or modify the agent's configuration. Actions: get (read one key), set (modify one key), " +
		"list (list the whole config). Dotted paths like 'default.model' or 'providers.deepseek.model'. " +
		"Some changes only take effect after a restart."
}

func (t *ConfigTool) ParametersSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"get", "set", "list"},
				"description": "get reads a key, set changes a key, list shows the whole config",
			},
			"key": map[string]interface{}{
				"type":        "string",
				"description": "dotted config path, e.g. 'default.model', 'security.autonomy'",
			},
			"value": map[string]interface{}{
				"type":        "string",
				"description": "new value, required for set",
			},
		},
		"required": []string{"action"},
	}
}

type configToolArgs struct {
	Action string `json:"action"`
	Key    string `json:"key"`
	Value  string `json:"value"`
}

func (t *ConfigTool) PreValidate(args json.RawMessage, policy security.Policy) string {
	var a configToolArgs
	_ = json.Unmarshal(args, &a)
	if a.Action == "set" && a.Key == "security.autonomy" {
		return "changing the security level via the agent is not allowed; edit the config file directly"
	}
	return ""
}

func (t *ConfigTool) Execute(ctx context.Context, args json.RawMessage, policy security.Policy) (Result, error) {
	var a configToolArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return Result{Success: false, Error: "invalid arguments"}, nil
	}
	if msg := t.PreValidate(args, policy); msg != "" {
		return Result{Success: false, Error: msg}, nil
	}

	switch a.Action {
	case "list", "":
		return t.list()
	case "get":
		return t.get(a.Key)
	case "set":
		return t.set(a.Key, a.Value)
	default:
		return Result{Success: false, Error: fmt.Sprintf("unknown action: %s", a.Action)}, nil
	}
}

func (t *ConfigTool) snapshot() (map[string]interface{}, error) {
	raw, err := t.cfg.Snapshot()
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func (t *ConfigTool) list() (Result, error) {
	raw, err := t.cfg.Snapshot()
	if err != nil {
		return Result{}, err
	}
	var pretty map[string]interface{}
	if err := json.Unmarshal(raw, &pretty); err != nil {
		return Result{}, err
	}
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		return Result{}, err
	}
	return Result{Success: true, Output: string(out)}, nil
}

func navigateConfig(m map[string]interface{}, parts []string) (interface{}, bool) {
	var cur interface{} = m
	for _, p := range parts {
		asMap, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		v, ok := asMap[p]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

func (t *ConfigTool) get(key string) (Result, error) {
	if key == "" {
		return Result{Success: false, Error: "missing key parameter"}, nil
	}
	m, err := t.snapshot()
	if err != nil {
		return Result{}, err
	}
	v, ok := navigateConfig(m, strings.Split(key, "."))
	if !ok {
		return Result{Success: false, Error: fmt.Sprintf("config key %q does not exist", key)}, nil
	}
	display := fmt.Sprintf("%v", v)
	if strings.HasSuffix(key, "api_key") {
		display = maskAPIKey(display)
	}
	return Result{Success: true, Output: fmt.Sprintf("%s = %s", key, display)}, nil
}

func (t *ConfigTool) set(key, value string) (Result, error) {
	if key == "" {
		return Result{Success: false, Error: "missing key parameter"}, nil
	}
	if value == "" {
		return Result{Success: false, Error: "missing value parameter"}, nil
	}

	m, err := t.snapshot()
	if err != nil {
		return Result{}, err
	}
	parts := strings.Split(key, ".")
	if !setConfigValue(m, parts, value) {
		return Result{Success: false, Error: fmt.Sprintf("cannot set config key %q: path does not exist", key)}, nil
	}

	doc, err := json.Marshal(m)
	if err != nil {
		return Result{}, err
	}
	if err := t.cfg.Apply(doc); err != nil {
		return Result{Success: false, Error: fmt.Sprintf("failed to save config: %v", err)}, nil
	}

	return Result{Success: true, Output: fmt.Sprintf("set %s = %s. some settings take effect after a restart.", key, value)}, nil
}

// setConfigValue navigates to parts[:-1], requiring every intermediate
// segment already exist, and overwrites the leaf — converting value to
// match the existing leaf's JSON type (bool/float/string).
func setConfigValue(m map[string]interface{}, parts []string, value string) bool {
	if len(parts) == 0 {
		return false
	}
	cur := m
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p]
		if !ok {
			return false
		}
		nextMap, ok := next.(map[string]interface{})
		if !ok {
			return false
		}
		cur = nextMap
	}

	last := parts[len(parts)-1]
	existing, ok := cur[last]
	if !ok {
		return false
	}

	switch existing.(type) {
	case bool:
		switch strings.ToLower(value) {
		case "true":
			cur[last] = true
		case "false":
			cur[last] = false
		default:
			cur[last] = value
		}
	case float64:
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			cur[last] = f
		} else {
			cur[last] = value
		}
	default:
		cur[last] = value
	}
	return true
}

func maskAPIKey(key string) string {
	key = strings.Trim(key, "\"")
	if len(key) <= 4 {
		return "***"
	}
	return key[:4] + "***"
}
