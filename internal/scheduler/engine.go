package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adhocore/gronx"
	_ "modernc.org/sqlite"

	"github.com/localclaw/claw/internal/memory"
	"github.com/localclaw/claw/internal/tracing"
)

const (
	maxRetries     = 3
	retryDelay     = 5 * time.Minute
	executeTimeout = 5 * time.Minute
	// tickInterval is second-resolution so that six-field (with-seconds)
	// cron expressions such as "* * * * * *" fire promptly instead of
	// waiting for a minute boundary.
	tickInterval   = time.Second
	approachKeyFmt = "routine:%s:approach"
	previewCharCap = 200
)

// MemoryStore is the slice of *memory.Store the scheduler needs: recalling
// a routine's last successful approach and nothing else. Declared here
// rather than imported as a concrete type so tests can fake it.
type MemoryStore interface {
	Recall(query string, limit int) ([]memory.Entry, error)
}

// AgentRunner is the single-turn entry point an ephemeral, Full-autonomy
// agent exposes to the scheduler. Constructing one is the caller's
// responsibility (see NewAgentFunc) so this package never imports the
// agent package — that would cycle, since the agent package registers the
// routine tool which in turn depends on this package.
type AgentRunner interface {
	Run(ctx context.Context, message string) (string, error)
}

// NewAgentFunc builds a fresh ephemeral agent for one routine firing.
type NewAgentFunc func(routineName string) (AgentRunner, error)

// ResultSink routes a routine's output to a named channel ("cli",
// "bot", ...). An unknown channel name degrades to whatever the
// implementation treats as its default (the terminal sink, normally).
type ResultSink interface {
	Send(channel, message string) error
}

// Engine owns the routine list, the cron tick loop, and the SQLite-backed
// persistence for dynamically created routines and their execution log.
type Engine struct {
	mu       sync.RWMutex
	routines []Routine

	db     *sql.DB
	gron   gronx.Gronx
	mem    MemoryStore
	newAgt NewAgentFunc
	sink   ResultSink

	stopCh chan struct{}
	wg     sync.WaitGroup

	// tickSchedule is the set of routines actually registered with the
	// cron tick loop, frozen at Start(). A routine added, enabled, or
	// disabled afterward via the dynamic Persist* API takes effect
	// immediately for List/Run/Logs, but will not be autofired by the
	// tick loop until the process restarts and Start runs again — this
	// is a known, documented limitation rather than genuine hot-reload
	// behavior.
	tickSchedule []Routine

	// triggerCount counts every routine fire the tick loop has dispatched
	// since startup, mirroring original_source's trigger_count: AtomicUsize.
	triggerCount atomic.Uint64
}

// TriggerCount reports how many times the tick loop has found a routine
// due and dispatched it, since the Engine was constructed.
func (e *Engine) TriggerCount() uint64 {
	return e.triggerCount.Load()
}

// New opens (or creates) the routines database at dbPath, merges any
// dynamically-created routines stored there with the statically
// configured ones, and returns a ready-to-Start Engine.
func New(dbPath string, configRoutines []Routine, mem MemoryStore, newAgt NewAgentFunc, sink ResultSink) (*Engine, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening routines database: %w", err)
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	dynamic, err := loadDynamicRoutines(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	normalizedConfig := make([]Routine, 0, len(configRoutines))
	for _, r := range configRoutines {
		normalized, err := normalizeSchedule(r.Schedule)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("routine %q: %w", r.Name, err)
		}
		r.Schedule = normalized
		normalizedConfig = append(normalizedConfig, r)
	}

	e := &Engine{
		routines: append(append([]Routine{}, normalizedConfig...), dynamic...),
		db:       db,
		gron:     gronx.New(),
		mem:      mem,
		newAgt:   newAgt,
		sink:     sink,
		stopCh:   make(chan struct{}),
	}
	return e, nil
}

// normalizeSchedule accepts a 5-field (minute resolution) or 6-field (with
// leading seconds field) cron expression and returns the 6-field form,
// prepending "0 " to a 5-field schedule. Per spec, the data model allows
// either form at rest; the tick loop always evaluates the normalized form.
func normalizeSchedule(schedule string) (string, error) {
	switch n := len(strings.Fields(schedule)); n {
	case 5:
		return "0 " + schedule, nil
	case 6:
		return schedule, nil
	default:
		return "", fmt.Errorf("schedule must be a 5- or 6-field cron expression, got %d fields: %q", n, schedule)
	}
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS routines (
			name       TEXT PRIMARY KEY,
			schedule   TEXT NOT NULL,
			message    TEXT NOT NULL,
			channel    TEXT NOT NULL DEFAULT 'cli',
			enabled    INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS routines_log (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			routine_name TEXT NOT NULL,
			started_at   TEXT NOT NULL,
			finished_at  TEXT NOT NULL,
			success      INTEGER NOT NULL,
			output       TEXT NOT NULL DEFAULT '',
			error        TEXT
		);
	`)
	if err != nil {
		return fmt.Errorf("initializing routines schema: %w", err)
	}
	return nil
}

func loadDynamicRoutines(db *sql.DB) ([]Routine, error) {
	rows, err := db.Query(`SELECT name, schedule, message, channel, enabled FROM routines`)
	if err != nil {
		return nil, fmt.Errorf("loading dynamic routines: %w", err)
	}
	defer rows.Close()

	var out []Routine
	for rows.Next() {
		var r Routine
		var enabled int
		if err := rows.Scan(&r.Name, &r.Schedule, &r.Message, &r.Channel, &enabled); err != nil {
			continue
		}
		r.Enabled = enabled != 0
		r.Source = SourceDynamic
		out = append(out, r)
	}
	return out, nil
}

// Start begins the second-resolution cron tick loop in a background
// goroutine. It returns immediately; call Stop to shut the loop down.
func (e *Engine) Start(ctx context.Context) {
	e.mu.RLock()
	e.tickSchedule = make([]Routine, len(e.routines))
	copy(e.tickSchedule, e.routines)
	e.mu.RUnlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-e.stopCh:
				return
			case now := <-ticker.C:
				e.tick(ctx, now)
			}
		}
	}()
}

// Stop signals the tick loop to exit and waits for it to finish.
func (e *Engine) Stop() {
	close(e.stopCh)
	e.wg.Wait()
}

func (e *Engine) tick(ctx context.Context, now time.Time) {
	e.mu.RLock()
	due := make([]Routine, 0, len(e.tickSchedule))
	for _, r := range e.tickSchedule {
		if !r.Enabled {
			continue
		}
		isDue, err := e.gron.IsDue(r.Schedule, now)
		if err != nil {
			slog.Warn("routine has an invalid schedule", "routine", r.Name, "schedule", r.Schedule, "error", err)
			continue
		}
		if isDue {
			due = append(due, r)
		}
	}
	e.mu.RUnlock()

	for _, r := range due {
		name := r.Name
		e.triggerCount.Add(1)
		go func() {
			if _, err := e.ExecuteRoutine(ctx, name); err != nil {
				slog.Error("routine execution failed", "routine", name, "error", err)
			}
		}()
	}
}

// ExecuteRoutine runs one routine immediately: up to maxRetries attempts,
// each bounded by executeTimeout, with a retryDelay pause between
// attempts. The outcome is logged to routines_log and routed to the
// routine's configured channel regardless of success.
func (e *Engine) ExecuteRoutine(ctx context.Context, name string) (string, error) {
	routine, ok := e.GetRoutine(name)
	if !ok {
		return "", fmt.Errorf("routine %q does not exist", name)
	}
	if !routine.Enabled {
		return fmt.Sprintf("routine %q is disabled, skipping", name), nil
	}

	startedAt := time.Now().UTC()
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			slog.Info("retrying routine", "routine", name, "attempt", attempt, "delay", retryDelay)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(retryDelay):
			}
		}

		runCtx, cancel := context.WithTimeout(ctx, executeTimeout)
		spanCtx, span := tracing.StartRoutineSpan(runCtx, name, attempt+1)
		output, err := e.runOnce(spanCtx, routine)
		tracing.EndWithError(span, err)
		cancel()

		if err == nil {
			finishedAt := time.Now().UTC()
			e.logExecution(Execution{
				RoutineName:   name,
				StartedAt:     startedAt,
				FinishedAt:    finishedAt,
				Success:       true,
				OutputPreview: truncatePreview(output, previewCharCap),
			})
			e.sendResult(routine, output)
			return output, nil
		}

		if runCtx.Err() == context.DeadlineExceeded {
			lastErr = fmt.Errorf("execution timed out (over %s)", executeTimeout)
		} else {
			lastErr = err
		}
		slog.Warn("routine attempt failed", "routine", name, "attempt", attempt+1, "error", lastErr)
	}

	finishedAt := time.Now().UTC()
	e.logExecution(Execution{
		RoutineName: name,
		StartedAt:   startedAt,
		FinishedAt:  finishedAt,
		Success:     false,
		Error:       lastErr.Error(),
	})
	errMsg := fmt.Sprintf("[routine: %s] failed after %d attempts: %v", name, maxRetries, lastErr)
	e.sendResult(routine, errMsg)
	return "", fmt.Errorf("%s", errMsg)
}

// runOnce spawns a fresh ephemeral agent, primes its message with the last
// recalled successful approach (if any), and runs it once.
func (e *Engine) runOnce(ctx context.Context, routine Routine) (string, error) {
	agent, err := e.newAgt(routine.Name)
	if err != nil {
		return "", fmt.Errorf("constructing routine agent: %w", err)
	}

	var recalled []memory.Entry
	if e.mem != nil {
		recalled, _ = e.mem.Recall(fmt.Sprintf(approachKeyFmt, routine.Name), 1)
	}
	message := buildEnhancedMessage(recalled, routine.Message)

	return agent.Run(ctx, message)
}

// buildEnhancedMessage prefixes message with the first recalled approach
// entry, if any, so the ephemeral agent can prefer a method that worked
// before over rediscovering one from scratch.
func buildEnhancedMessage(recalled []memory.Entry, message string) string {
	if len(recalled) == 0 {
		return message
	}
	return fmt.Sprintf("[Previously successful approach]\n%s\n\n---\n%s", recalled[0].Content, message)
}

func (e *Engine) sendResult(routine Routine, output string) {
	if e.sink == nil {
		return
	}
	message := fmt.Sprintf("\n[Routine: %s]\n%s\n", routine.Name, output)
	if err := e.sink.Send(routine.Channel, message); err != nil {
		slog.Warn("failed to deliver routine result", "routine", routine.Name, "channel", routine.Channel, "error", err)
	}
}

func (e *Engine) logExecution(exec Execution) {
	successInt := 0
	if exec.Success {
		successInt = 1
	}
	_, err := e.db.Exec(
		`INSERT INTO routines_log (routine_name, started_at, finished_at, success, output, error) VALUES (?, ?, ?, ?, ?, ?)`,
		exec.RoutineName, exec.StartedAt.Format(time.RFC3339), exec.FinishedAt.Format(time.RFC3339), successInt, exec.OutputPreview, exec.Error,
	)
	if err != nil {
		slog.Error("failed to write routine execution log", "error", err)
	}
}

// ListRoutines returns a snapshot of every routine (enabled or not).
func (e *Engine) ListRoutines() []Routine {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Routine, len(e.routines))
	copy(out, e.routines)
	return out
}

// GetRoutine returns a single routine by name.
func (e *Engine) GetRoutine(name string) (Routine, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, r := range e.routines {
		if r.Name == name {
			return r, true
		}
	}
	return Routine{}, false
}

// GetRecentLogs returns up to limit most recent execution log entries,
// newest first.
func (e *Engine) GetRecentLogs(limit int) []Execution {
	rows, err := e.db.Query(
		`SELECT routine_name, started_at, finished_at, success, output, error FROM routines_log ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var out []Execution
	for rows.Next() {
		var ex Execution
		var started, finished string
		var success int
		var errStr sql.NullString
		if err := rows.Scan(&ex.RoutineName, &started, &finished, &success, &ex.OutputPreview, &errStr); err != nil {
			continue
		}
		ex.StartedAt, _ = time.Parse(time.RFC3339, started)
		ex.FinishedAt, _ = time.Parse(time.RFC3339, finished)
		ex.Success = success != 0
		ex.Error = errStr.String
		out = append(out, ex)
	}
	return out
}

// PersistAddRoutine validates the schedule, writes the routine to SQLite,
// and adds it to the in-memory list. list_routines/get/run see it
// immediately, but it is not registered with the running tick loop's
// frozen schedule (captured once at Start) until the process restarts —
// a known limitation, documented rather than silently worked around.
func (e *Engine) PersistAddRoutine(r Routine) error {
	e.mu.Lock()
	for _, existing := range e.routines {
		if existing.Name == r.Name {
			e.mu.Unlock()
			return fmt.Errorf("routine %q already exists; delete it first", r.Name)
		}
	}
	e.mu.Unlock()

	normalized, err := normalizeSchedule(r.Schedule)
	if err != nil {
		return err
	}
	r.Schedule = normalized

	_, err = e.db.Exec(
		`INSERT OR REPLACE INTO routines (name, schedule, message, channel, enabled, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		r.Name, r.Schedule, r.Message, r.Channel, boolToInt(r.Enabled), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving routine: %w", err)
	}

	r.Source = SourceDynamic
	e.mu.Lock()
	e.routines = append(e.routines, r)
	e.mu.Unlock()
	return nil
}

// PersistDeleteRoutine removes a dynamically-created routine. Config-
// sourced routines must be removed by editing the config file.
func (e *Engine) PersistDeleteRoutine(name string) error {
	e.mu.RLock()
	var found *Routine
	for i := range e.routines {
		if e.routines[i].Name == name {
			found = &e.routines[i]
			break
		}
	}
	e.mu.RUnlock()
	if found == nil {
		return fmt.Errorf("routine %q does not exist", name)
	}
	if found.Source == SourceConfig {
		return fmt.Errorf("routine %q comes from the config file; remove it there instead", name)
	}

	if _, err := e.db.Exec(`DELETE FROM routines WHERE name = ?`, name); err != nil {
		return fmt.Errorf("deleting routine: %w", err)
	}

	e.mu.Lock()
	filtered := e.routines[:0]
	for _, r := range e.routines {
		if r.Name != name {
			filtered = append(filtered, r)
		}
	}
	e.routines = filtered
	e.mu.Unlock()
	return nil
}

// PersistSetEnabled toggles a routine's enabled flag, persisting the
// change for dynamic routines (config-sourced routines are toggled only
// in memory for the life of the process).
func (e *Engine) PersistSetEnabled(name string, enabled bool) error {
	e.mu.RLock()
	var found *Routine
	for i := range e.routines {
		if e.routines[i].Name == name {
			found = &e.routines[i]
			break
		}
	}
	e.mu.RUnlock()
	if found == nil {
		return fmt.Errorf("routine %q does not exist", name)
	}

	if found.Source == SourceDynamic {
		if _, err := e.db.Exec(`UPDATE routines SET enabled = ? WHERE name = ?`, boolToInt(enabled), name); err != nil {
			return fmt.Errorf("updating routine state: %w", err)
		}
	}

	e.mu.Lock()
	for i := range e.routines {
		if e.routines[i].Name == name {
			e.routines[i].Enabled = enabled
		}
	}
	e.mu.Unlock()
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

