package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/localclaw/claw/internal/scheduler"
	"github.com/localclaw/claw/internal/security"
)

// RoutineEngine is the slice of *scheduler.Engine the tool needs.
type RoutineEngine interface {
	ListRoutines() []scheduler.Routine
	PersistAddRoutine(r scheduler.Routine) error
	PersistDeleteRoutine(name string) error
	PersistSetEnabled(name string, enabled bool) error
	ExecuteRoutine(ctx context.Context, name string) (string, error)
	GetRecentLogs(limit int) []scheduler.Execution
}

// RoutineTool lets the agent manage its own scheduled tasks: create,
// list, delete, enable/disable, trigger immediately, and inspect the
// execution log. It is deliberately excluded from the tool registry an
// ephemeral routine agent runs with, so a routine cannot schedule more
// routines recursively.
type RoutineTool struct {
	engine       RoutineEngine
	cronFallback scheduler.CronFallbackFunc
}

// NewRoutineTool builds a routine tool. cronFallback may be nil, in which
// case schedule parsing is limited to direct cron pass-through plus the
// deterministic natural-language table; a non-nil fallback is consulted
// as a last resort for phrases neither of those handle (see
// scheduler.ResolveSchedule).
func NewRoutineTool(engine RoutineEngine, cronFallback scheduler.CronFallbackFunc) *RoutineTool {
	return &RoutineTool{engine: engine, cronFallback: cronFallback}
}

func (t *RoutineTool) Name() string { return "routine" }
func (t *RoutineTool) Description() string {
	return "Manage scheduled tasks (routines): create, list, delete, enable/disable, run immediately, view logs.\n" +
		"The schedule parameter accepts:\n" +
		"1. Natural language: \"every 5 minutes\", \"every day at 9am\", \"every monday at 9am\"\n" +
		"2. A direct 5-field cron expression: \"0 8 * * *\" (daily at 8am), \"* * * * *\" (every minute)\n" +
		"Create/delete/enable/disable take effect immediately for list/run."
}

func (t *RoutineTool) ParametersSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"create", "list", "delete", "enable", "disable", "run", "logs"},
				"description": "Operation to perform",
			},
			"name": map[string]interface{}{
				"type":        "string",
				"description": "Routine name (required for create/delete/enable/disable/run); snake_case recommended",
			},
			"schedule": map[string]interface{}{
				"type":        "string",
				"description": "Cron expression or natural-language schedule phrase (required for create)",
			},
			"message": map[string]interface{}{
				"type":        "string",
				"description": "Prompt sent to the agent when the routine fires (required for create)",
			},
			"channel": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"cli", "bot"},
				"description": "Output channel for the result (cli: terminal, bot: the configured bot chat), defaults to cli",
			},
			"limit": map[string]interface{}{
				"type":        "integer",
				"description": "Max number of log entries to return (logs only, default 5)",
				"minimum":     1,
				"maximum":     50,
			},
		},
		"required": []string{"action"},
	}
}

type routineToolArgs struct {
	Action   string `json:"action"`
	Name     string `json:"name"`
	Schedule string `json:"schedule"`
	Message  string `json:"message"`
	Channel  string `json:"channel"`
	Limit    int    `json:"limit"`
}

func (t *RoutineTool) PreValidate(args json.RawMessage, policy security.Policy) string {
	return ""
}

func (t *RoutineTool) Execute(ctx context.Context, args json.RawMessage, policy security.Policy) (Result, error) {
	var a routineToolArgs
	if err := json.Unmarshal(args, &a); err != nil || a.Action == "" {
		return Result{Success: false, Error: "missing action parameter"}, nil
	}

	switch a.Action {
	case "create":
		return t.actionCreate(ctx, a)
	case "list":
		return t.actionList()
	case "delete":
		return t.actionDelete(a)
	case "enable":
		return t.actionSetEnabled(a, true)
	case "disable":
		return t.actionSetEnabled(a, false)
	case "run":
		return t.actionRun(ctx, a)
	case "logs":
		return t.actionLogs(a)
	default:
		return Result{Success: false, Error: fmt.Sprintf("unknown action: %s. available: create/list/delete/enable/disable/run/logs", a.Action)}, nil
	}
}

func (t *RoutineTool) actionCreate(ctx context.Context, a routineToolArgs) (Result, error) {
	if a.Name == "" {
		return Result{Success: false, Error: "create requires a name parameter"}, nil
	}
	if a.Schedule == "" {
		return Result{Success: false, Error: "create requires a schedule parameter"}, nil
	}
	if a.Message == "" {
		return Result{Success: false, Error: "create requires a message parameter"}, nil
	}

	schedule, err := scheduler.ResolveSchedule(ctx, a.Schedule, t.cronFallback)
	if err != nil {
		return Result{Success: false, Error: fmt.Sprintf(
			"schedule parsing failed: %v\nUse a 5-field cron expression instead, e.g. '0 8 * * *' (daily at 8am) or '0 * * * *' (hourly)", err)}, nil
	}

	channel := a.Channel
	if channel == "" {
		channel = "cli"
	}

	routine := scheduler.Routine{
		Name:     a.Name,
		Schedule: schedule,
		Message:  a.Message,
		Channel:  channel,
		Enabled:  true,
	}

	if err := t.engine.PersistAddRoutine(routine); err != nil {
		return Result{Success: false, Error: fmt.Sprintf("create failed: %v", err)}, nil
	}
	return Result{Success: true, Output: fmt.Sprintf("created routine %q (%s). Available immediately to list/run.", a.Name, schedule)}, nil
}

func (t *RoutineTool) actionList() (Result, error) {
	routines := t.engine.ListRoutines()
	if len(routines) == 0 {
		return Result{Success: true, Output: "No routines configured. Use action=create to add one."}, nil
	}

	lines := []string{"Configured routines:"}
	for _, r := range routines {
		status := "disabled"
		if r.Enabled {
			status = "enabled"
		}
		preview := r.Message
		if len(preview) > 60 {
			preview = string([]rune(preview)[:60])
		}
		lines = append(lines, fmt.Sprintf("- %s | %s | %s | %s | %s", r.Name, r.Schedule, status, r.Channel, preview))
	}
	return Result{Success: true, Output: strings.Join(lines, "\n")}, nil
}

func (t *RoutineTool) actionDelete(a routineToolArgs) (Result, error) {
	if a.Name == "" {
		return Result{Success: false, Error: "delete requires a name parameter"}, nil
	}
	if err := t.engine.PersistDeleteRoutine(a.Name); err != nil {
		return Result{Success: false, Error: fmt.Sprintf("delete failed: %v", err)}, nil
	}
	return Result{Success: true, Output: fmt.Sprintf("deleted routine %q.", a.Name)}, nil
}

func (t *RoutineTool) actionSetEnabled(a routineToolArgs, enabled bool) (Result, error) {
	verb := "enable"
	if !enabled {
		verb = "disable"
	}
	if a.Name == "" {
		return Result{Success: false, Error: fmt.Sprintf("%s requires a name parameter", verb)}, nil
	}
	if err := t.engine.PersistSetEnabled(a.Name, enabled); err != nil {
		return Result{Success: false, Error: fmt.Sprintf("%s failed: %v", verb, err)}, nil
	}
	return Result{Success: true, Output: fmt.Sprintf("%sd routine %q.", verb, a.Name)}, nil
}

func (t *RoutineTool) actionRun(ctx context.Context, a routineToolArgs) (Result, error) {
	if a.Name == "" {
		return Result{Success: false, Error: "run requires a name parameter"}, nil
	}
	output, err := t.engine.ExecuteRoutine(ctx, a.Name)
	if err != nil {
		return Result{Success: false, Error: fmt.Sprintf("run failed: %v", err)}, nil
	}
	return Result{Success: true, Output: output}, nil
}

func (t *RoutineTool) actionLogs(a routineToolArgs) (Result, error) {
	limit := a.Limit
	if limit <= 0 {
		limit = 5
	}
	logs := t.engine.GetRecentLogs(limit)
	if len(logs) == 0 {
		return Result{Success: true, Output: "No execution history yet."}, nil
	}

	lines := []string{fmt.Sprintf("Last %d executions:", len(logs))}
	for _, l := range logs {
		status := "success"
		if !l.Success {
			status = "failed"
		}
		lines = append(lines, fmt.Sprintf("%s | %s | %s | %s",
			l.StartedAt.Format("2006-01-02T15:04:05"), l.RoutineName, status, l.OutputPreview))
		if l.Error != "" {
			lines = append(lines, "  error: "+l.Error)
		}
	}
	return Result{Success: true, Output: strings.Join(lines, "\n")}, nil
}
