// Package tools implements the uniform tool-registry surface: a single
// capability interface every tool implements, and the concrete variants
// (Shell, FileRead, FileWrite, Git, HttpRequest, Config, SelfInfo,
// Memory{Store,Recall,Forget}, Skill, Routine, RemoteAdapter) that plug
// into it.
package tools

import (
	"context"
	"encoding/json"

	"github.com/localclaw/claw/internal/security"
)

// Spec is the JSON-Schema-described tool signature handed to a provider.
type Spec struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// Result is the uniform ToolResult(exec) contract.
type Result struct {
	Success          bool
	Output           string
	Error            string
	ConfigSuggestion string
}

// Tool is the polymorphism-over-tools capability surface.
type Tool interface {
	Name() string
	Description() string
	ParametersSchema() map[string]interface{}

	// PreValidate checks the security policy before a Supervised confirm
	// prompt (if any) or execution. An empty string means the call passes.
	PreValidate(args json.RawMessage, policy security.Policy) string

	// Execute runs the tool. A returned error means the tool itself threw
	// unexpectedly (surfaced as "[ERROR] ..." by
	// the loop); a normal failure is expressed via Result.Success=false
	// and Result.Error, not a Go error.
	Execute(ctx context.Context, args json.RawMessage, policy security.Policy) (Result, error)
}

// Registry holds the set of tools available to an agent.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry builds a registry from an ordered tool list (order is
// preserved for Specs and All so tool listings are deterministic).
func NewRegistry(toolList ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(toolList))}
	for _, t := range toolList {
		r.tools[t.Name()] = t
		r.order = append(r.order, t.Name())
	}
	return r
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Register adds a tool to the registry, appending it to registration
// order unless a tool by that name is already present.
func (r *Registry) Register(t Tool) {
	if _, exists := r.tools[t.Name()]; !exists {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = t
}

// Unregister removes a tool by name, if present.
func (r *Registry) Unregister(name string) {
	if _, ok := r.tools[name]; !ok {
		return
	}
	delete(r.tools, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// All returns every registered tool in registration order.
func (r *Registry) All() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Without returns a new Registry with the named tool excluded — used by
// the scheduler to exclude the Routine tool from an ephemeral agent's
// registry, excluding the Routine tool itself to prevent recursive
// scheduling.
func (r *Registry) Without(name string) *Registry {
	out := NewRegistry()
	for _, t := range r.All() {
		if t.Name() == name {
			continue
		}
		out.tools[t.Name()] = t
		out.order = append(out.order, t.Name())
	}
	return out
}

// Specs returns the provider-facing tool listing for every tool in names;
// if names is nil, every registered tool is returned ("no match →
// expose all tools").
func (r *Registry) Specs(names []string) []Spec {
	if names == nil {
		out := make([]Spec, 0, len(r.order))
		for _, name := range r.order {
			t := r.tools[name]
			out = append(out, Spec{Name: t.Name(), Description: t.Description(), Parameters: t.ParametersSchema()})
		}
		return out
	}
	out := make([]Spec, 0, len(names))
	for _, name := range names {
		t, ok := r.tools[name]
		if !ok {
			continue
		}
		out = append(out, Spec{Name: t.Name(), Description: t.Description(), Parameters: t.ParametersSchema()})
	}
	return out
}
