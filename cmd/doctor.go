package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/localclaw/claw/internal/config"
	"github.com/localclaw/claw/internal/security"
)

// doctorCmd runs a set of health checks over the same collaborators
// buildApp wires, without starting a scheduler or REPL. The checks are
// not read-only: building the app creates the workspace and data dir if
// missing and opens and seeds the memory database.
// Runs a checklist over config, workspace, memory db, and provider
// resolution.
func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, workspace, and provider health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd.Context())
		},
	}
}

type checkResult struct {
	name string
	ok   bool
	note string
}

func runDoctor(ctx context.Context) error {
	var results []checkResult

	cfg, err := config.Load(resolveConfigPath())
	results = append(results, checkResult{"config file", err == nil, errOrPath(err, resolveConfigPath())})
	if err != nil {
		printDoctorReport(results)
		return fmt.Errorf("config load failed, skipping remaining checks: %w", err)
	}

	ws, err := resolveWorkspace()
	results = append(results, checkResult{"workspace resolvable", err == nil, ws})
	if err == nil {
		if info, statErr := os.Stat(ws); statErr != nil || !info.IsDir() {
			results = append(results, checkResult{"workspace exists", false, ws})
		} else {
			results = append(results, checkResult{"workspace exists", true, ws})
		}
	}

	dd, err := resolveDataDir()
	results = append(results, checkResult{"data dir resolvable", err == nil, dd})

	autonomy, ok := security.ParseAutonomyLevel(cfg.Security.Autonomy)
	results = append(results, checkResult{"security.autonomy valid", ok, autonomy.String()})

	if len(cfg.Providers) == 0 {
		results = append(results, checkResult{"providers configured", false, "no providers in config.json"})
	} else {
		results = append(results, checkResult{"providers configured", true, fmt.Sprintf("%d configured", len(cfg.Providers))})
	}
	if _, ok := cfg.Providers[cfg.Default.Provider]; !ok {
		results = append(results, checkResult{"default.provider resolves", false, cfg.Default.Provider + " not in providers{}"})
	} else {
		results = append(results, checkResult{"default.provider resolves", true, cfg.Default.Provider})
	}

	// Build and immediately tear down the full app: this exercises schema
	// init/tokenizer reconciliation on the real data dir, provider
	// resolution, and tool registration the same way chat/run do.
	a, appErr := buildApp(ctx)
	if appErr == nil {
		results = append(results, checkResult{"memory store opens", true, ""})
		results = append(results, checkResult{"tool registry built", true, fmt.Sprintf("%d tools", len(a.Tools.All()))})
		a.Close()
	} else {
		results = append(results, checkResult{"memory store opens", false, appErr.Error()})
	}

	printDoctorReport(results)
	for _, r := range results {
		if !r.ok {
			return fmt.Errorf("doctor: one or more checks failed")
		}
	}
	return nil
}

func errOrPath(err error, path string) string {
	if err != nil {
		return err.Error()
	}
	return path
}

func printDoctorReport(results []checkResult) {
	for _, r := range results {
		mark := "ok"
		if !r.ok {
			mark = "FAIL"
		}
		if r.note != "" {
			fmt.Printf("[%s] %-28s %s\n", mark, r.name, r.note)
		} else {
			fmt.Printf("[%s] %-28s\n", mark, r.name)
		}
	}
}
