// Package daemonproto defines the wire vocabulary of the daemon IPC
// boundary that spec.md §1 places out of scope: it names the RPC methods,
// push events, and request/response payload shapes a concrete transport
// (unix socket, named pipe, local TCP — whichever the shell picks) would
// carry, without implementing that transport. Nothing in this module
// dials, listens, or serializes over a wire; cmd/ talks to the core
// packages directly in-process instead.
package daemonproto

// RPC method names a daemon transport would dispatch on, scoped to the
// core surfaces this module actually implements (agent turns, config,
// sessions, skills, routines, channel status). Trimmed from the teacher's
// much larger managed-mode method set (teams, delegations, device
// pairing, TTS, browser automation, Zalo QR login) — none of those have a
// SPEC_FULL.md component behind them.
const (
	MethodAgentRun         = "agent.run"
	MethodAgentRunStream   = "agent.run.stream"
	MethodAgentIdentityGet = "agent.identity.get"

	MethodChatSend    = "chat.send"
	MethodChatHistory = "chat.history"

	MethodConfigGet   = "config.get"
	MethodConfigApply = "config.apply"

	MethodSessionsList  = "sessions.list"
	MethodSessionsReset = "sessions.reset"

	MethodSkillsList = "skills.list"
	MethodSkillsGet  = "skills.get"

	MethodRoutinesList    = "routines.list"
	MethodRoutinesCreate  = "routines.create"
	MethodRoutinesDelete  = "routines.delete"
	MethodRoutinesEnable  = "routines.enable"
	MethodRoutinesDisable = "routines.disable"
	MethodRoutinesRun     = "routines.run"
	MethodRoutinesLogs    = "routines.logs"

	MethodChannelsStatus = "channels.status"

	MethodConnect = "connect"
	MethodHealth  = "health"
	MethodStatus  = "status"
)
