package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/localclaw/claw/internal/scheduler"
	"github.com/localclaw/claw/internal/security"
)

type fakeRoutineEngine struct {
	routines []scheduler.Routine
	logs     []scheduler.Execution
	runErr   error
	runOut   string
}

func (f *fakeRoutineEngine) ListRoutines() []scheduler.Routine { return f.routines }

func (f *fakeRoutineEngine) PersistAddRoutine(r scheduler.Routine) error {
	for _, existing := range f.routines {
		if existing.Name == r.Name {
			return errors.New("routine already exists")
		}
	}
	f.routines = append(f.routines, r)
	return nil
}

func (f *fakeRoutineEngine) PersistDeleteRoutine(name string) error {
	for i, r := range f.routines {
		if r.Name == name {
			f.routines = append(f.routines[:i], f.routines[i+1:]...)
			return nil
		}
	}
	return errors.New("not found")
}

func (f *fakeRoutineEngine) PersistSetEnabled(name string, enabled bool) error {
	for i, r := range f.routines {
		if r.Name == name {
			f.routines[i].Enabled = enabled
			return nil
		}
	}
	return errors.New("not found")
}

func (f *fakeRoutineEngine) ExecuteRoutine(ctx context.Context, name string) (string, error) {
	return f.runOut, f.runErr
}

func (f *fakeRoutineEngine) GetRecentLogs(limit int) []scheduler.Execution { return f.logs }

func TestRoutineTool_CreateWithCronSchedule(t *testing.T) {
	engine := &fakeRoutineEngine{}
	tool := NewRoutineTool(engine, nil)
	args, _ := json.Marshal(map[string]string{
		"action": "create", "name": "morning_brief", "schedule": "0 8 * * *", "message": "summarize today",
	})

	result, err := tool.Execute(context.Background(), args, security.Default("/workspace"))
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if len(engine.routines) != 1 || engine.routines[0].Schedule != "0 8 * * *" {
		t.Fatalf("unexpected routines: %+v", engine.routines)
	}
}

func TestRoutineTool_CreateWithNaturalLanguageSchedule(t *testing.T) {
	engine := &fakeRoutineEngine{}
	tool := NewRoutineTool(engine, nil)
	args, _ := json.Marshal(map[string]string{
		"action": "create", "name": "hourly_check", "schedule": "every hour", "message": "check status",
	})

	result, err := tool.Execute(context.Background(), args, security.Default("/workspace"))
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success || engine.routines[0].Schedule != "0 * * * *" {
		t.Fatalf("unexpected result: %+v routines=%+v", result, engine.routines)
	}
}

func TestRoutineTool_CreateFallsBackToProviderForUnparseablePhrase(t *testing.T) {
	engine := &fakeRoutineEngine{}
	fallbackCalled := false
	tool := NewRoutineTool(engine, func(ctx context.Context, phrase string) (string, error) {
		fallbackCalled = true
		if phrase != "on the first sunny day" {
			t.Fatalf("unexpected phrase passed to fallback: %q", phrase)
		}
		return "0 8 * * 0", nil
	})
	args, _ := json.Marshal(map[string]string{
		"action": "create", "name": "sunny_reminder", "schedule": "on the first sunny day", "message": "go outside",
	})

	result, err := tool.Execute(context.Background(), args, security.Default("/workspace"))
	if err != nil {
		t.Fatal(err)
	}
	if !fallbackCalled {
		t.Fatal("expected provider fallback to be consulted for an unparseable phrase")
	}
	if !result.Success || len(engine.routines) != 1 || engine.routines[0].Schedule != "0 8 * * 0" {
		t.Fatalf("unexpected result: %+v routines=%+v", result, engine.routines)
	}
}

func TestRoutineTool_CreateMissingFields(t *testing.T) {
	tool := NewRoutineTool(&fakeRoutineEngine{}, nil)
	args, _ := json.Marshal(map[string]string{"action": "create"})
	result, err := tool.Execute(context.Background(), args, security.Default("/workspace"))
	if err != nil {
		t.Fatal(err)
	}
	if result.Success {
		t.Fatal("expected failure for missing name")
	}
}

func TestRoutineTool_List(t *testing.T) {
	engine := &fakeRoutineEngine{routines: []scheduler.Routine{
		{Name: "a", Schedule: "0 8 * * *", Message: "hi", Channel: "cli", Enabled: true},
	}}
	tool := NewRoutineTool(engine, nil)
	args, _ := json.Marshal(map[string]string{"action": "list"})
	result, _ := tool.Execute(context.Background(), args, security.Default("/workspace"))
	if !result.Success || !containsAll(result.Output, "a", "0 8 * * *") {
		t.Fatalf("unexpected output: %q", result.Output)
	}
}

func TestRoutineTool_UnknownAction(t *testing.T) {
	tool := NewRoutineTool(&fakeRoutineEngine{}, nil)
	args, _ := json.Marshal(map[string]string{"action": "bogus"})
	result, _ := tool.Execute(context.Background(), args, security.Default("/workspace"))
	if result.Success {
		t.Fatal("expected failure")
	}
}

func TestRoutineTool_Run(t *testing.T) {
	engine := &fakeRoutineEngine{runOut: "ran ok"}
	tool := NewRoutineTool(engine, nil)
	args, _ := json.Marshal(map[string]string{"action": "run", "name": "a"})
	result, _ := tool.Execute(context.Background(), args, security.Default("/workspace"))
	if !result.Success || result.Output != "ran ok" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestRoutineTool_Logs(t *testing.T) {
	engine := &fakeRoutineEngine{}
	tool := NewRoutineTool(engine, nil)
	args, _ := json.Marshal(map[string]string{"action": "logs"})
	result, _ := tool.Execute(context.Background(), args, security.Default("/workspace"))
	if !result.Success {
		t.Fatalf("unexpected result: %+v", result)
	}
}
