package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/localclaw/claw/internal/injection"
	"github.com/localclaw/claw/internal/memory"
	"github.com/localclaw/claw/internal/providers"
	"github.com/localclaw/claw/internal/security"
	"github.com/localclaw/claw/internal/skills"
	"github.com/localclaw/claw/internal/tools"
	"github.com/localclaw/claw/internal/tracing"
)

// MaxToolIterations bounds how many provider round-trips a single turn may
// take. If the last allowed round-trip still requests tools, the loop
// stops and returns a fixed "[reached the maximum number of tool
// iterations for this turn]" reply. This is fixed at 10, intentionally
// lower than some comparable agent loops default to.
const MaxToolIterations = 10

// History management thresholds.
const (
	compactionThreshold = 40 // compact once history reaches this many messages
	keepLastOnCompact   = 8  // messages kept verbatim after the summary
	hardTrimLimit       = 50 // absolute ceiling enforced after compaction
	recallLimit         = 5  // top-N memories recalled per turn
)

// ConfirmFunc is consulted before a side-effecting tool call runs under
// Supervised autonomy. argsSummary is a short human-readable rendering of
// the call's arguments. A nil ConfirmFunc means no interactive gate is
// available (e.g. an ephemeral routine agent) — Supervised calls then run
// unconfirmed, matching the scheduler's "autonomy forced to Full" usage;
// callers that want Supervised to actually block must supply one.
type ConfirmFunc func(toolName, argsSummary string) bool

// Phase1Func implements the optional clarification gate: given the user
// message, it may request zero or more skills to preload, mark the turn
// as directly answerable, or ask a clarifying question. A nil Phase1Func
// skips the gate entirely.
type Phase1Func func(ctx context.Context, userMsg string) (Phase1Decision, error)

// Phase1Decision is the structured result of the clarification gate.
type Phase1Decision struct {
	Direct   bool
	Skills   []string
	Question string
}

// ToolRouteFunc implements the optional deterministic tool-routing gate:
// a keyword-to-toolgroup table that narrows which tools are exposed to
// the model this turn. Returning nil means "no match, expose all tools".
type ToolRouteFunc func(userMsg string) []string

// StreamEventKind discriminates the stream event union.
type StreamEventKind string

const (
	EventThinking   StreamEventKind = "thinking"
	EventText       StreamEventKind = "text"
	EventToolStatus StreamEventKind = "tool_status"
	EventDone       StreamEventKind = "done"
)

// ToolStatusPhase is the lifecycle state carried by a ToolStatus event.
type ToolStatusPhase string

const (
	ToolRunning ToolStatusPhase = "running"
	ToolSuccess ToolStatusPhase = "success"
	ToolFailed  ToolStatusPhase = "failed"
)

// StreamEvent is one element of the lazy event sequence a streaming turn
// emits. Tool-call-delta events from the provider are deliberately not
// represented here — they are suppressed, never surfaced to the caller.
type StreamEvent struct {
	Kind StreamEventKind

	Text string // EventText

	ToolName   string          // EventToolStatus
	ToolStatus ToolStatusPhase // EventToolStatus
	ToolDetail string          // EventToolStatus: brief cmd / summary / failure head

	Done string // EventDone: the full final response text
}

// StreamSender receives events in emission order. A well-formed stream
// ends with at most one EventDone.
type StreamSender func(StreamEvent)

// Loop carries all per-agent state a turn needs: the provider,
// tool registry, memory store, security policy, model parameters, owned
// history, and the optional collaborators (confirm callback, identity
// context, phase-1/1.5 gates, routine-context flag).
type Loop struct {
	Provider    providers.Provider
	Tools       *tools.Registry
	Memory      *memory.Store
	Policy      security.Policy
	Model       string
	Temperature float64

	history *History

	Identity    string
	Confirm     ConfirmFunc
	Phase1      Phase1Func
	ToolRoute   ToolRouteFunc
	IsRoutine   bool
	RoutineName string
}

// NewLoop constructs a Loop with an empty history.
func NewLoop(provider providers.Provider, reg *tools.Registry, mem *memory.Store, policy security.Policy, model string, temperature float64) *Loop {
	return &Loop{
		Provider:    provider,
		Tools:       reg,
		Memory:      mem,
		Policy:      policy,
		Model:       model,
		Temperature: temperature,
		history:     NewHistory(),
	}
}

// History exposes the owned history (read-only from the caller's view).
func (l *Loop) History() *History { return l.history }

// SetHistory replaces history wholesale, sanitizing to drop orphaned
// ToolResult messages.
func (l *Loop) SetHistory(messages []Message) { l.history.SetHistory(messages) }

// ClearHistory empties the history.
func (l *Loop) ClearHistory() { l.history.ClearHistory() }

// SetAutonomy widens or narrows the autonomy level mid-session; history is
// preserved.
func (l *Loop) SetAutonomy(level security.AutonomyLevel) {
	l.Policy = l.Policy.WithAutonomy(level)
}

// ProcessMessage runs one non-streaming turn and returns the final reply
// text.
func (l *Loop) ProcessMessage(ctx context.Context, userMsg string) (string, error) {
	return l.run(ctx, userMsg, nil)
}

// ProcessMessageStream runs one turn, emitting Thinking/ToolStatus events
// to sender as it goes, and returns the final reply text.
func (l *Loop) ProcessMessageStream(ctx context.Context, userMsg string, sender StreamSender) (string, error) {
	final, err := l.run(ctx, userMsg, sender)
	if sender != nil {
		sender(StreamEvent{Kind: EventDone, Done: final})
	}
	return final, err
}

func (l *Loop) run(ctx context.Context, userMsg string, sender StreamSender) (string, error) {
	streaming := sender != nil

	runID := uuid.NewString()
	ctx, turnSpan := tracing.Tracer("claw.agent").Start(ctx, tracing.SpanAgentTurn)
	turnSpan.SetAttributes(attribute.String("run_id", runID), attribute.Bool("routine", l.IsRoutine))
	defer turnSpan.End()

	// Step 1: recall.
	recalled := l.recall(ctx, userMsg)

	// Step 2: optional clarification gate. A direct-answerable turn skips
	// tool routing entirely; named skills are preloaded into the system
	// prompt so the model has them without first calling the skill tool.
	forceNoTools := false
	var preloadedSkills []string
	if l.Phase1 != nil {
		decision, err := l.Phase1(ctx, userMsg)
		if err != nil {
			slog.Warn("phase-1 clarification gate failed, proceeding without it", "error", err)
		} else if decision.Question != "" {
			// Surfaced without mutating history and without calling tools.
			return decision.Question, nil
		} else {
			forceNoTools = decision.Direct
			preloadedSkills = l.loadPreloadedSkills(decision.Skills)
		}
	}

	// Step 3: optional deterministic tool routing.
	var toolNames []string
	switch {
	case forceNoTools:
		toolNames = []string{}
	case l.ToolRoute != nil:
		toolNames = l.ToolRoute(userMsg)
	}
	specs := l.Tools.Specs(toolNames)

	// Step 4: build system prompt.
	systemPrompt := BuildSystemPrompt(PromptConfig{
		Identity:        l.Identity,
		Tools:           specs,
		Policy:          l.Policy,
		Memories:        recalled,
		Workspace:       l.Policy.WorkspaceDir,
		IsRoutine:       l.IsRoutine,
		RoutineName:     l.RoutineName,
		PreloadedSkills: preloadedSkills,
	})

	// Step 5: push user message to history.
	l.history.Append(NewChat(RoleUser, userMsg))

	toolDefs := toolDefinitions(specs)

	var finalText string
	for iter := 0; iter < MaxToolIterations; iter++ {
		if streaming {
			sender(StreamEvent{Kind: EventThinking})
		}

		reqMessages := append([]providers.Message{{Role: "system", Content: systemPrompt}}, toMessages(l.history.Messages())...)
		req := providers.ChatRequest{
			Messages:    reqMessages,
			Tools:       toolDefs,
			Model:       l.Model,
			Temperature: l.Temperature,
		}

		pctx, pspan := tracing.StartProviderSpan(ctx, runID, l.Provider.Name(), l.Model, iter)
		var resp *providers.ChatResponse
		var err error
		if streaming {
			resp, err = l.Provider.ChatStream(pctx, req, func(chunk providers.StreamChunk) {
				if chunk.Thinking != "" {
					sender(StreamEvent{Kind: EventThinking})
				}
				if chunk.Content != "" {
					sender(StreamEvent{Kind: EventText, Text: chunk.Content})
				}
			})
		} else {
			resp, err = l.Provider.Chat(pctx, req)
		}
		tracing.EndWithError(pspan, err)
		if err != nil {
			return "", fmt.Errorf("provider call failed: %w", err)
		}

		if len(resp.ToolCalls) == 0 {
			finalText = SanitizeAssistantText(resp.Content)
			l.history.Append(NewChat(RoleAssistant, finalText))
			break
		}

		calls := toAgentToolCalls(resp.ToolCalls)
		l.history.Append(NewAssistantToolCalls(resp.Content, "", calls))

		for _, tc := range calls {
			l.dispatchToolCall(ctx, runID, tc, sender)
		}

		if iter == MaxToolIterations-1 {
			finalText = "[reached the maximum number of tool iterations for this turn]"
			l.history.Append(NewChat(RoleAssistant, finalText))
		}
	}

	// Step 7: persist a conversation summary in memory under a
	// monotonically timestamped key.
	l.persistTurnSummary(userMsg, finalText)

	// Step 8: compact, step 9: trim.
	l.compactIfNeeded(ctx)
	if l.history.Len() >= hardTrimLimit {
		l.history.Trim(hardTrimLimit)
	}

	return finalText, nil
}

// dispatchToolCall executes a single tool call and pushes its ToolResult,
// following pre_validate → confirm → execute → injection-filter, in that
// order.
func (l *Loop) dispatchToolCall(ctx context.Context, runID string, tc ToolCall, sender StreamSender) {
	ctx, span := tracing.StartToolSpan(ctx, runID, tc.Name)
	defer span.End()

	if sender != nil {
		sender(StreamEvent{Kind: EventToolStatus, ToolName: tc.Name, ToolStatus: ToolRunning, ToolDetail: briefArgs(tc.Arguments)})
	}

	tool, ok := l.Tools.Get(tc.Name)
	if !ok {
		content := fmt.Sprintf("[FAIL] unknown tool %q", tc.Name)
		l.history.Append(NewToolResult(tc.ID, content))
		if sender != nil {
			sender(StreamEvent{Kind: EventToolStatus, ToolName: tc.Name, ToolStatus: ToolFailed, ToolDetail: "unknown tool"})
		}
		return
	}

	if reason := tool.PreValidate(tc.Arguments, l.Policy); reason != "" {
		content := "[FAIL] " + reason
		l.history.Append(NewToolResult(tc.ID, content))
		if sender != nil {
			sender(StreamEvent{Kind: EventToolStatus, ToolName: tc.Name, ToolStatus: ToolFailed, ToolDetail: reason})
		}
		return
	}

	if l.Policy.RequiresConfirmation() && l.Confirm != nil {
		if !l.Confirm(tc.Name, briefArgs(tc.Arguments)) {
			content := "[FAIL] user denied"
			l.history.Append(NewToolResult(tc.ID, content))
			if sender != nil {
				sender(StreamEvent{Kind: EventToolStatus, ToolName: tc.Name, ToolStatus: ToolFailed, ToolDetail: "user denied"})
			}
			return
		}
	}

	res, err := tool.Execute(ctx, tc.Arguments, l.Policy)

	var content string
	var failed bool
	var detail string
	switch {
	case err != nil:
		content = "[ERROR] " + err.Error()
		failed, detail = true, err.Error()
	case !res.Success:
		content = "[FAIL] " + res.Error
		if res.Output != "" {
			content += "\n" + res.Output
		}
		failed, detail = true, res.Error
	default:
		content = res.Output
		detail = summarize(res.Output)
	}

	scan := injection.ScanToolResult(content, l.Policy.InjectionCheck)
	l.history.Append(NewToolResult(tc.ID, scan.Sanitized))

	if sender != nil {
		if failed {
			sender(StreamEvent{Kind: EventToolStatus, ToolName: tc.Name, ToolStatus: ToolFailed, ToolDetail: head(detail)})
		} else {
			sender(StreamEvent{Kind: EventToolStatus, ToolName: tc.Name, ToolStatus: ToolSuccess, ToolDetail: detail})
		}
	}
}

// loadPreloadedSkills fetches the body of each named skill through the
// registered skill tool, so the phase-1 gate's choices land in the system
// prompt without the model having to call the skill tool itself first. A
// name that fails to load (unknown skill, no skill tool registered) is
// skipped with a warning rather than failing the turn.
func (l *Loop) loadPreloadedSkills(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	t, ok := l.Tools.Get("skill")
	if !ok {
		slog.Warn("phase-1 requested skill preload but no skill tool is registered", "skills", names)
		return nil
	}
	skillTool, ok := t.(*tools.SkillTool)
	if !ok {
		return nil
	}

	var out []string
	for _, name := range names {
		content, err := skills.LoadContent(name, skillTool.Skills())
		if err != nil {
			slog.Warn("phase-1 skill preload failed", "skill", name, "error", err)
			continue
		}
		out = append(out, fmt.Sprintf("### %s\n%s", name, content.Instructions))
	}
	return out
}

func (l *Loop) recall(ctx context.Context, userMsg string) []memory.Entry {
	if l.Memory == nil {
		return nil
	}
	entries, err := l.Memory.Recall(userMsg, recallLimit)
	if err != nil {
		slog.Warn("memory recall failed, continuing without recalled context", "error", err)
		return nil
	}
	return entries
}

// persistTurnSummary stores a short record of the turn in memory, keyed
// by a monotonically increasing timestamp so successive turns never
// collide.
func (l *Loop) persistTurnSummary(userMsg, reply string) {
	if l.Memory == nil {
		return
	}
	key := fmt.Sprintf("conversation:%d", time.Now().UnixNano())
	content := fmt.Sprintf("user: %s\nassistant: %s", truncateForStore(userMsg), truncateForStore(reply))
	if err := l.Memory.StoreEntry(key, content, memory.CategoryConversation); err != nil {
		slog.Warn("failed to persist turn summary", "error", err)
	}
}

func truncateForStore(s string) string {
	const max = 2000
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}

// compactIfNeeded keeps history bounded: once it reaches
// compactionThreshold messages, the older prefix (everything but the
// last keepLastOnCompact messages) is summarized via one provider call
// and replaced by a single system message. A failed summarization call
// falls back to a trivial, non-LLM summary rather than losing the turn.
func (l *Loop) compactIfNeeded(ctx context.Context) {
	msgs := l.history.Messages()
	if len(msgs) < compactionThreshold {
		return
	}

	keep := keepLastOnCompact
	if keep >= len(msgs) {
		return
	}
	prefix := msgs[:len(msgs)-keep]
	tail := msgs[len(msgs)-keep:]

	summary := l.summarize(ctx, prefix)

	replaced := make([]Message, 0, 1+len(tail))
	replaced = append(replaced, NewChat(RoleSystem, "[CONVERSATION SUMMARY] "+summary))
	replaced = append(replaced, tail...)
	l.history.SetHistory(replaced)
}

func (l *Loop) summarize(ctx context.Context, prefix []Message) string {
	var b strings.Builder
	for _, m := range prefix {
		switch m.Kind {
		case KindChat:
			fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
		case KindToolCalls:
			fmt.Fprintf(&b, "assistant (tool calls): %s\n", SanitizeAssistantText(m.Content))
		case KindToolResult:
			fmt.Fprintf(&b, "tool result: %s\n", summarize(m.Content))
		}
	}

	sctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	resp, err := l.Provider.Chat(sctx, providers.ChatRequest{
		Messages: []providers.Message{{
			Role:    "user",
			Content: "Summarize the following conversation concisely, preserving any facts, decisions, or open threads a continuation would need:\n\n" + b.String(),
		}},
		Model:   l.Model,
		Options: map[string]interface{}{"max_tokens": 512, "temperature": 0.3},
	})
	if err != nil {
		slog.Warn("history compaction summary call failed, using trivial summary", "error", err)
		return trivialSummary(prefix)
	}
	return SanitizeAssistantText(resp.Content)
}

func trivialSummary(prefix []Message) string {
	userTurns := 0
	for _, m := range prefix {
		if m.Kind == KindChat && m.Role == RoleUser {
			userTurns++
		}
	}
	return fmt.Sprintf("(summary unavailable — %d earlier message(s) spanning %d user turn(s) were dropped)", len(prefix), userTurns)
}

// --- provider message conversion ---

func toMessages(msgs []Message) []providers.Message {
	out := make([]providers.Message, 0, len(msgs))
	for _, m := range msgs {
		switch m.Kind {
		case KindChat:
			out = append(out, providers.Message{Role: string(m.Role), Content: m.Content})
		case KindToolCalls:
			out = append(out, providers.Message{Role: "assistant", Content: m.Content, ToolCalls: toProviderToolCalls(m.ToolCalls)})
		case KindToolResult:
			out = append(out, providers.Message{Role: "tool", Content: m.Content, ToolCallID: m.ToolCallID})
		}
	}
	return out
}

func toProviderToolCalls(calls []ToolCall) []providers.ToolCall {
	out := make([]providers.ToolCall, 0, len(calls))
	for _, c := range calls {
		var args map[string]interface{}
		_ = json.Unmarshal(c.Arguments, &args)
		out = append(out, providers.ToolCall{ID: c.ID, Name: c.Name, Arguments: args})
	}
	return out
}

func toAgentToolCalls(calls []providers.ToolCall) []ToolCall {
	out := make([]ToolCall, 0, len(calls))
	for _, c := range calls {
		raw, err := json.Marshal(c.Arguments)
		if err != nil {
			raw = json.RawMessage("{}")
		}
		out = append(out, ToolCall{ID: c.ID, Name: c.Name, Arguments: raw})
	}
	return out
}

func toolDefinitions(specs []tools.Spec) []providers.ToolDefinition {
	out := make([]providers.ToolDefinition, 0, len(specs))
	for _, s := range specs {
		out = append(out, providers.ToolDefinition{
			Type: "function",
			Function: providers.ToolFunctionSchema{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  s.Parameters,
			},
		})
	}
	return out
}

func briefArgs(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	return head(s)
}

func summarize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(empty output)"
	}
	return head(s)
}

func head(s string) string {
	const max = 120
	r := []rune(strings.ReplaceAll(s, "\n", " "))
	if len(r) <= max {
		return string(r)
	}
	return string(r[:max]) + "…"
}
