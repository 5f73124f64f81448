package tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/localclaw/claw/internal/security"
	"github.com/localclaw/claw/internal/skills"
)

// SkillTool lets the agent load a skill's L2 instructions on demand. L1
// metadata (name, description, tags) is assumed to already be resident in
// the system prompt; this tool fetches the full body plus any L3 resource
// file listing.
type SkillTool struct {
	skills []skills.Meta
}

func NewSkillTool(s []skills.Meta) *SkillTool {
	return &SkillTool{skills: s}
}

// Skills returns the metadata list this tool was constructed with, for
// building the system prompt's L1 skill listing.
func (t *SkillTool) Skills() []skills.Meta { return t.skills }

func (t *SkillTool) Name() string { return "skill" }
func (t *SkillTool) Description() string {
	return "Load a skill's detailed instructions. Call this when you judge that a skill applies to the " +
		"current task to get its full operating guide."
}

func (t *SkillTool) ParametersSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"name": map[string]interface{}{
				"type":        "string",
				"description": "Name of the skill to load",
			},
		},
		"required": []string{"name"},
	}
}

type skillToolArgs struct {
	Name string `json:"name"`
}

func (t *SkillTool) PreValidate(args json.RawMessage, policy security.Policy) string {
	return ""
}

func (t *SkillTool) Execute(ctx context.Context, args json.RawMessage, policy security.Policy) (Result, error) {
	var a skillToolArgs
	_ = json.Unmarshal(args, &a)
	if a.Name == "" {
		return Result{Success: false, Error: "missing name parameter"}, nil
	}

	content, err := skills.LoadContent(a.Name, t.skills)
	if err != nil {
		return Result{Success: false, Error: err.Error()}, nil
	}

	output := content.Instructions
	if len(content.Resources) > 0 {
		var b strings.Builder
		b.WriteString(output)
		b.WriteString("\n\n---\nAttached resource files (use file_read to view):\n")
		for _, r := range content.Resources {
			b.WriteString("- ")
			b.WriteString(r)
			b.WriteString("\n")
		}
		output = b.String()
	}

	return Result{Success: true, Output: output}, nil
}
