package agent

import "testing"

func TestSanitizeDropsOrphanAtHead(t *testing.T) {
	messages := []Message{
		NewToolResult("call-1", "orphan at head"),
		NewChat(RoleUser, "hello"),
	}
	out := Sanitize(messages)
	if len(out) != 1 || out[0].Kind != KindChat {
		t.Fatalf("expected the orphan to be dropped, got %+v", out)
	}
}

func TestSanitizeDropsOrphanAfterChat(t *testing.T) {
	messages := []Message{
		NewChat(RoleUser, "hello"),
		NewToolResult("call-1", "orphan after chat"),
	}
	out := Sanitize(messages)
	if len(out) != 1 {
		t.Fatalf("expected orphan after chat to be dropped, got %+v", out)
	}
}

func TestSanitizeKeepsValidChain(t *testing.T) {
	messages := []Message{
		NewChat(RoleUser, "run echo hello"),
		NewAssistantToolCalls("", "", []ToolCall{{ID: "call-1", Name: "shell"}}),
		NewToolResult("call-1", "hello\n"),
		NewChat(RoleAssistant, "command output: hello"),
	}
	out := Sanitize(messages)
	if len(out) != 4 {
		t.Fatalf("expected all 4 messages kept, got %d: %+v", len(out), out)
	}
}

func TestSanitizeKeepsMultipleToolResultsInOrder(t *testing.T) {
	messages := []Message{
		NewAssistantToolCalls("", "", []ToolCall{{ID: "a"}, {ID: "b"}}),
		NewToolResult("a", "result a"),
		NewToolResult("b", "result b"),
	}
	out := Sanitize(messages)
	if len(out) != 3 {
		t.Fatalf("expected both tool results kept, got %+v", out)
	}
}

func TestSanitizeDropsToolResultWithUnknownID(t *testing.T) {
	messages := []Message{
		NewAssistantToolCalls("", "", []ToolCall{{ID: "a"}}),
		NewToolResult("b-not-requested", "result"),
	}
	out := Sanitize(messages)
	if len(out) != 1 {
		t.Fatalf("expected the mismatched tool result to be dropped, got %+v", out)
	}
}

func TestValidateReportsOrphans(t *testing.T) {
	messages := []Message{NewToolResult("x", "orphan")}
	if err := Validate(messages); err == nil {
		t.Error("expected Validate to report the orphaned ToolResult")
	}
}

func TestHistoryTrimResanitizes(t *testing.T) {
	h := NewHistory()
	h.SetHistory([]Message{
		NewAssistantToolCalls("", "", []ToolCall{{ID: "a"}}),
		NewToolResult("a", "result"),
		NewChat(RoleAssistant, "done"),
	})
	h.Trim(1) // keeps only the last message, "done" — no orphan risk there
	if h.Len() != 1 {
		t.Fatalf("expected 1 message after trim, got %d", h.Len())
	}
}

func TestHistoryTrimDropsNewlyOrphanedToolResult(t *testing.T) {
	h := NewHistory()
	h.SetHistory([]Message{
		NewChat(RoleUser, "hi"),
		NewAssistantToolCalls("", "", []ToolCall{{ID: "a"}}),
		NewToolResult("a", "result"),
	})
	h.Trim(1) // keeps only the ToolResult, which becomes orphaned
	if h.Len() != 0 {
		t.Fatalf("expected the orphaned tail ToolResult to be dropped, got %d messages", h.Len())
	}
}
