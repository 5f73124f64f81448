package daemonproto

// Push-event names a daemon transport would emit from server to client,
// mirroring the agent loop's StreamEvent kinds (spec.md §6) and the
// scheduler's firings. Trimmed from the teacher's broader event set the
// same way the method list is.
const (
	EventAgent     = "agent"
	EventChat      = "chat"
	EventHealth    = "health"
	EventRoutine   = "routine"
	EventHeartbeat = "heartbeat"
	EventShutdown  = "shutdown"
)

// Agent event subtypes, carried in the payload's "type" field. They cover
// agent.StreamEventKind (thinking, text, and one subtype per tool-status
// phase; run.completed stands for the final done event) plus run.started
// and run.failed, turn-level markers the in-process StreamEvent sequence
// does not have.
const (
	AgentEventRunStarted   = "run.started"
	AgentEventThinking     = "thinking"
	AgentEventTextChunk    = "text.chunk"
	AgentEventToolRunning  = "tool.running"
	AgentEventToolSuccess  = "tool.success"
	AgentEventToolFailed   = "tool.failed"
	AgentEventRunCompleted = "run.completed"
	AgentEventRunFailed    = "run.failed"
)

// Chat event subtypes.
const (
	ChatEventMessage = "message"
)

// Routine event subtypes, one per scheduler firing (§4.7).
const (
	RoutineEventStarted  = "started"
	RoutineEventSucceded = "succeeded"
	RoutineEventFailed   = "failed"
	RoutineEventSkipped  = "skipped"
)
