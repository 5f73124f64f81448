package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/localclaw/claw/internal/agent"
	"github.com/localclaw/claw/internal/scheduler"
	"github.com/localclaw/claw/internal/security"
)

// ephemeralRunner adapts *agent.Loop to scheduler.AgentRunner, whose Run
// method name differs from the loop's ProcessMessage. One is built fresh
// per routine firing.
type ephemeralRunner struct {
	loop *agent.Loop
}

func (r *ephemeralRunner) Run(ctx context.Context, message string) (string, error) {
	return r.loop.ProcessMessage(ctx, message)
}

// buildScheduler constructs the routines engine: its NewAgentFunc spawns
// an ephemeral, Full-autonomy agent per firing using every tool a's
// registry holds except "routine" itself (excluded to prevent a routine
// from scheduling more routines), no skills, no identity context, and
// the routine-context flag set.
func buildScheduler(a *app) (*scheduler.Engine, error) {
	var configRoutines []scheduler.Routine
	for _, job := range a.Cfg.Routines.Jobs {
		configRoutines = append(configRoutines, scheduler.Routine{
			Name:     job.Name,
			Schedule: job.Schedule,
			Message:  job.Message,
			Channel:  job.Channel,
			Enabled:  job.Enabled,
			Source:   scheduler.SourceConfig,
		})
	}

	ephemeralTools := a.Tools.Without("routine")
	ephemeralPolicy := a.Policy.WithAutonomy(security.Full)

	newAgent := func(routineName string) (scheduler.AgentRunner, error) {
		loop := agent.NewLoop(a.Provider, ephemeralTools, a.Memory, ephemeralPolicy, a.Cfg.Default.Model, a.Cfg.Default.Temperature)
		loop.IsRoutine = true
		loop.RoutineName = routineName
		return &ephemeralRunner{loop: loop}, nil
	}

	eng, err := scheduler.New(filepath.Join(a.DataDir, "routines.db"), configRoutines, a.Memory, newAgent, a.Channels)
	if err != nil {
		return nil, fmt.Errorf("build scheduler: %w", err)
	}
	return eng, nil
}
