package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/localclaw/claw/internal/memory"
	"github.com/localclaw/claw/internal/providers"
	"github.com/localclaw/claw/internal/security"
	"github.com/localclaw/claw/internal/tools"
)

// echoTool is a minimal Tool double: it succeeds and echoes its "text" arg.
type echoTool struct{}

func (echoTool) Name() string        { return "echo" }
func (echoTool) Description() string { return "echoes its text argument" }
func (echoTool) ParametersSchema() map[string]interface{} {
	return map[string]interface{}{"type": "object", "properties": map[string]interface{}{"text": map[string]interface{}{"type": "string"}}}
}
func (echoTool) PreValidate(args json.RawMessage, policy security.Policy) string { return "" }
func (echoTool) Execute(ctx context.Context, args json.RawMessage, policy security.Policy) (tools.Result, error) {
	var a struct {
		Text string `json:"text"`
	}
	_ = json.Unmarshal(args, &a)
	return tools.Result{Success: true, Output: a.Text}, nil
}

// failingTool always reports a tool-level failure.
type failingTool struct{}

func (failingTool) Name() string                                                             { return "fail_always" }
func (failingTool) Description() string                                                       { return "always fails" }
func (failingTool) ParametersSchema() map[string]interface{}                                  { return map[string]interface{}{"type": "object"} }
func (failingTool) PreValidate(args json.RawMessage, policy security.Policy) string            { return "" }
func (failingTool) Execute(ctx context.Context, args json.RawMessage, policy security.Policy) (tools.Result, error) {
	return tools.Result{Success: false, Error: "boom"}, nil
}

func newTestLoop(t *testing.T, provider providers.Provider) *Loop {
	t.Helper()
	mem, err := memory.OpenInMemory(memory.TokenizerEN)
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	t.Cleanup(func() { mem.Close() })

	reg := tools.NewRegistry(echoTool{}, failingTool{})
	policy := security.Default("/workspace").WithAutonomy(security.Full)
	return NewLoop(provider, reg, mem, policy, "test-model", 0.2)
}

func TestProcessMessage_DirectReply(t *testing.T) {
	mock := &providers.MockProvider{
		NameValue: "mock",
		Responses: []providers.MockResponse{
			{Response: &providers.ChatResponse{Content: "hello there", FinishReason: "stop"}},
		},
	}
	l := newTestLoop(t, mock)

	reply, err := l.ProcessMessage(context.Background(), "hi")
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if reply != "hello there" {
		t.Fatalf("reply = %q, want %q", reply, "hello there")
	}
	if l.History().Len() != 2 {
		t.Fatalf("history len = %d, want 2 (user chat + assistant chat)", l.History().Len())
	}
}

func TestProcessMessage_ToolCallRoundTrip(t *testing.T) {
	mock := &providers.MockProvider{
		NameValue: "mock",
		Responses: []providers.MockResponse{
			{Response: &providers.ChatResponse{
				ToolCalls: []providers.ToolCall{
					{ID: "call_1", Name: "echo", Arguments: map[string]interface{}{"text": "round trip"}},
				},
				FinishReason: "tool_calls",
			}},
			{Response: &providers.ChatResponse{Content: "done: round trip", FinishReason: "stop"}},
		},
	}
	l := newTestLoop(t, mock)

	reply, err := l.ProcessMessage(context.Background(), "echo this")
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if reply != "done: round trip" {
		t.Fatalf("reply = %q", reply)
	}

	msgs := l.History().Messages()
	var sawToolCalls, sawToolResult bool
	for _, m := range msgs {
		if m.Kind == KindToolCalls {
			sawToolCalls = true
		}
		if m.Kind == KindToolResult {
			sawToolResult = true
			if m.Content != "round trip" {
				t.Fatalf("tool result content = %q, want %q", m.Content, "round trip")
			}
		}
	}
	if !sawToolCalls || !sawToolResult {
		t.Fatalf("history missing tool_calls/tool_result: %+v", msgs)
	}
	if err := Validate(msgs); err != nil {
		t.Fatalf("history invalid after tool round trip: %v", err)
	}
}

func TestProcessMessage_ToolFailurePrefixed(t *testing.T) {
	mock := &providers.MockProvider{
		NameValue: "mock",
		Responses: []providers.MockResponse{
			{Response: &providers.ChatResponse{
				ToolCalls: []providers.ToolCall{
					{ID: "call_1", Name: "fail_always", Arguments: map[string]interface{}{}},
				},
				FinishReason: "tool_calls",
			}},
			{Response: &providers.ChatResponse{Content: "handled the failure", FinishReason: "stop"}},
		},
	}
	l := newTestLoop(t, mock)

	if _, err := l.ProcessMessage(context.Background(), "try the failing tool"); err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}

	found := false
	for _, m := range l.History().Messages() {
		if m.Kind == KindToolResult {
			found = true
			if got := m.Content; got != "[FAIL] boom" {
				t.Fatalf("tool result content = %q, want %q", got, "[FAIL] boom")
			}
		}
	}
	if !found {
		t.Fatal("no ToolResult message found in history")
	}
}

func TestProcessMessage_UnknownToolRejected(t *testing.T) {
	mock := &providers.MockProvider{
		NameValue: "mock",
		Responses: []providers.MockResponse{
			{Response: &providers.ChatResponse{
				ToolCalls: []providers.ToolCall{
					{ID: "call_1", Name: "does_not_exist", Arguments: map[string]interface{}{}},
				},
				FinishReason: "tool_calls",
			}},
			{Response: &providers.ChatResponse{Content: "ok", FinishReason: "stop"}},
		},
	}
	l := newTestLoop(t, mock)

	if _, err := l.ProcessMessage(context.Background(), "call a bogus tool"); err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}

	for _, m := range l.History().Messages() {
		if m.Kind == KindToolResult && m.Content != `[FAIL] unknown tool "does_not_exist"` {
			t.Fatalf("unexpected tool result: %q", m.Content)
		}
	}
}

func TestProcessMessage_ReadOnlyRejectsExecution(t *testing.T) {
	mock := &providers.MockProvider{
		NameValue: "mock",
		Responses: []providers.MockResponse{
			{Response: &providers.ChatResponse{
				ToolCalls: []providers.ToolCall{
					{ID: "call_1", Name: "ro_aware", Arguments: map[string]interface{}{"text": "nope"}},
				},
				FinishReason: "tool_calls",
			}},
			{Response: &providers.ChatResponse{Content: "ok", FinishReason: "stop"}},
		},
	}
	l := newTestLoop(t, mock)
	l.Tools.Register(readOnlyAwareTool{})
	l.Policy = l.Policy.WithAutonomy(security.ReadOnly)

	if _, err := l.ProcessMessage(context.Background(), "try a side effect"); err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}

	for _, m := range l.History().Messages() {
		if m.Kind == KindToolResult && m.Content != "[FAIL] read-only mode" {
			t.Fatalf("unexpected tool result: %q", m.Content)
		}
	}
}

// readOnlyAwareTool rejects execution under ReadOnly, like the real tools do.
type readOnlyAwareTool struct{}

func (readOnlyAwareTool) Name() string        { return "ro_aware" }
func (readOnlyAwareTool) Description() string { return "rejects under read-only" }
func (readOnlyAwareTool) ParametersSchema() map[string]interface{} {
	return map[string]interface{}{"type": "object"}
}
func (readOnlyAwareTool) PreValidate(args json.RawMessage, policy security.Policy) string {
	if !policy.AllowsExecution() {
		return "read-only mode"
	}
	return ""
}
func (readOnlyAwareTool) Execute(ctx context.Context, args json.RawMessage, policy security.Policy) (tools.Result, error) {
	return tools.Result{Success: true, Output: "side effect performed"}, nil
}

func TestHistoryCompaction(t *testing.T) {
	mock := &providers.MockProvider{
		NameValue: "mock",
		Responses: []providers.MockResponse{
			{Response: &providers.ChatResponse{Content: "final reply", FinishReason: "stop"}},
			{Response: &providers.ChatResponse{Content: "a short summary", FinishReason: "stop"}},
		},
	}
	l := newTestLoop(t, mock)

	// Seed history right at the compaction threshold so the next turn's
	// two appended messages push it over and trigger a compaction pass.
	seeded := make([]Message, 0, compactionThreshold)
	for i := 0; i < compactionThreshold; i++ {
		if i%2 == 0 {
			seeded = append(seeded, NewChat(RoleUser, "seed message"))
		} else {
			seeded = append(seeded, NewChat(RoleAssistant, "seed reply"))
		}
	}
	l.SetHistory(seeded)

	if _, err := l.ProcessMessage(context.Background(), "one more"); err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}

	if l.History().Len() >= compactionThreshold {
		t.Fatalf("expected compaction to shrink history, got len=%d", l.History().Len())
	}
	msgs := l.History().Messages()
	if msgs[0].Kind != KindChat || msgs[0].Role != RoleSystem {
		t.Fatalf("expected a leading system summary message, got %+v", msgs[0])
	}
}
