// Package scheduler implements the routines (cron-triggered proactive
// tasks) subsystem: a cron dispatcher that
// spawns ephemeral, Full-autonomy agent runs on a schedule and routes
// their output to a channel, grounded on original_source/src/routines/mod.rs.
package scheduler

import "time"

// RoutineSource records whether a Routine came from the static config
// file or was created dynamically via the routine tool. Config-sourced
// routines cannot be deleted or have their schedule changed through the
// tool — editing config.json is required.
type RoutineSource int

const (
	SourceConfig RoutineSource = iota
	SourceDynamic
)

func (s RoutineSource) String() string {
	if s == SourceDynamic {
		return "dynamic"
	}
	return "config"
}

// Routine is a single scheduled task: a cron expression, the message to
// send the ephemeral agent when it fires, and the channel its output is
// routed to.
type Routine struct {
	Name     string
	Schedule string
	Message  string
	Channel  string
	Enabled  bool
	Source   RoutineSource
}

// Execution is one completed (successful or exhausted-retries) run of a
// routine, persisted for the routine tool's logs action.
type Execution struct {
	RoutineName   string
	StartedAt     time.Time
	FinishedAt    time.Time
	Success       bool
	OutputPreview string
	Error         string
}

func truncatePreview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
