package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/localclaw/claw/internal/memory"
	"github.com/localclaw/claw/internal/security"
)

// MemoryStore is the surface MemoryStoreTool/MemoryRecallTool/MemoryForgetTool
// need from *memory.Store.
type MemoryStore interface {
	StoreEntry(key, content string, category memory.Category) error
	Recall(query string, limit int) ([]memory.Entry, error)
	Forget(key string) (bool, error)
}

func truncateForSummary(s string, max int) string {
	if len(s) <= max {
		return s
	}
	end := max
	for end > 0 && !utf8.RuneStart(s[end]) {
		end--
	}
	return s[:end] + "..."
}

// MemoryStoreTool lets the model proactively record information worth
// remembering across sessions.
type MemoryStoreTool struct {
	store MemoryStore
}

func NewMemoryStoreTool(store MemoryStore) *MemoryStoreTool {
	return &MemoryStoreTool{store: store}
}

func (t *MemoryStoreTool) Name() string { return "memory_store" }
func (t *MemoryStoreTool) Description() string {
	return "Store a memory. Use this to save user preferences, project conventions, or learned " +
		"facts worth remembering long-term. Parameters: key (unique id), content, category (core/daily/custom)."
}

func (t *MemoryStoreTool) ParametersSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"key": map[string]interface{}{
				"type":        "string",
				"description": "unique identifier, e.g. 'user_preference_language'",
			},
			"content": map[string]interface{}{
				"type":        "string",
				"description": "the content to remember",
			},
			"category": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"core", "daily", "custom"},
				"description": "core (lasting knowledge/preferences), daily (day-to-day notes), custom",
			},
		},
		"required": []string{"key", "content"},
	}
}

func (t *MemoryStoreTool) PreValidate(args json.RawMessage, policy security.Policy) string { return "" }

func (t *MemoryStoreTool) Execute(ctx context.Context, args json.RawMessage, policy security.Policy) (Result, error) {
	var a struct {
		Key      string `json:"key"`
		Content  string `json:"content"`
		Category string `json:"category"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return Result{Success: false, Error: "invalid arguments"}, nil
	}
	if a.Key == "" {
		return Result{Success: false, Error: "missing key parameter"}, nil
	}
	if a.Content == "" {
		return Result{Success: false, Error: "missing content parameter"}, nil
	}

	category := memory.CategoryCore
	switch a.Category {
	case "daily":
		category = memory.CategoryDaily
	case "custom":
		category = memory.CategoryCustom("custom")
	}

	if err := t.store.StoreEntry(a.Key, a.Content, category); err != nil {
		return Result{Success: false, Error: fmt.Sprintf("failed to store: %v", err)}, nil
	}
	return Result{Success: true, Output: fmt.Sprintf("remembered: [%s] %s", a.Key, truncateForSummary(a.Content, 100))}, nil
}

// MemoryRecallTool lets the model search prior memories by keyword.
type MemoryRecallTool struct {
	store MemoryStore
}

func NewMemoryRecallTool(store MemoryStore) *MemoryRecallTool {
	return &MemoryRecallTool{store: store}
}

func (t *MemoryRecallTool) Name() string { return "memory_recall" }
func (t *MemoryRecallTool) Description() string {
	return "Search memory for related entries. Use this when you need to recall a user preference, " +
		"project detail, or a prior agreement. Parameters: query, limit (default 5)."
}

func (t *MemoryRecallTool) ParametersSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "search keywords",
			},
			"limit": map[string]interface{}{
				"type":        "integer",
				"description": "max results, default 5",
				"default":     5,
			},
		},
		"required": []string{"query"},
	}
}

func (t *MemoryRecallTool) PreValidate(args json.RawMessage, policy security.Policy) string { return "" }

func (t *MemoryRecallTool) Execute(ctx context.Context, args json.RawMessage, policy security.Policy) (Result, error) {
	var a struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return Result{Success: false, Error: "invalid arguments"}, nil
	}
	if a.Query == "" {
		return Result{Success: false, Error: "missing query parameter"}, nil
	}
	limit := a.Limit
	if limit <= 0 {
		limit = 5
	}

	entries, err := t.store.Recall(a.Query, limit)
	if err != nil {
		return Result{Success: false, Error: fmt.Sprintf("search failed: %v", err)}, nil
	}
	if len(entries) == 0 {
		return Result{Success: true, Output: fmt.Sprintf("no memories found related to %q.", a.Query)}, nil
	}

	out := fmt.Sprintf("found %d related memories:\n\n", len(entries))
	for i, e := range entries {
		out += fmt.Sprintf("%d. [%s] (%s)\n%s\nupdated: %s\n\n", i+1, e.Key, e.Category, e.Content, e.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"))
	}
	return Result{Success: true, Output: out}, nil
}

// MemoryForgetTool lets the model remove a stored memory, e.g. when the
// user asks to forget something or a memory is known to be stale.
type MemoryForgetTool struct {
	store MemoryStore
}

func NewMemoryForgetTool(store MemoryStore) *MemoryForgetTool {
	return &MemoryForgetTool{store: store}
}

func (t *MemoryForgetTool) Name() string { return "memory_forget" }
func (t *MemoryForgetTool) Description() string {
	return "Delete a memory. Use this when the user asks to forget something, or a memory has gone stale."
}

func (t *MemoryForgetTool) ParametersSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"key": map[string]interface{}{
				"type":        "string",
				"description": "key of the memory to delete",
			},
		},
		"required": []string{"key"},
	}
}

func (t *MemoryForgetTool) PreValidate(args json.RawMessage, policy security.Policy) string { return "" }

func (t *MemoryForgetTool) Execute(ctx context.Context, args json.RawMessage, policy security.Policy) (Result, error) {
	var a struct {
		Key string `json:"key"`
	}
	if err := json.Unmarshal(args, &a); err != nil || a.Key == "" {
		return Result{Success: false, Error: "missing key parameter"}, nil
	}

	found, err := t.store.Forget(a.Key)
	if err != nil {
		return Result{Success: false, Error: fmt.Sprintf("delete failed: %v", err)}, nil
	}
	if found {
		return Result{Success: true, Output: fmt.Sprintf("deleted memory: %s", a.Key)}, nil
	}
	return Result{Success: true, Output: fmt.Sprintf("memory not found: %s (may already be deleted)", a.Key)}, nil
}
