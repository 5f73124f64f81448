package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/localclaw/claw/internal/channels"
	"github.com/localclaw/claw/internal/config"
	"github.com/localclaw/claw/internal/identity"
	"github.com/localclaw/claw/internal/memory"
	"github.com/localclaw/claw/internal/providers"
	"github.com/localclaw/claw/internal/security"
	"github.com/localclaw/claw/internal/skills"
	"github.com/localclaw/claw/internal/tools"
	"github.com/localclaw/claw/internal/tracing"
)

// app bundles the shared core every subcommand builds an agent loop or
// scheduler on top of: config, policy, memory, the base tool registry
// (everything except the routine tool, which needs a *scheduler.Engine
// that in turn needs this registry — wired by the caller), the skill
// list, identity context, and the channel sink. Grounded on the
// teacher's bootstrapStandaloneAgent (cmd/agent_chat_standalone.go),
// generalized from its single hardcoded agent to this repo's
// config-driven single-tenant core.
type app struct {
	Cfg       *config.Config
	Workspace string
	DataDir   string
	Policy    security.Policy
	Memory    *memory.Store
	Tools     *tools.Registry
	Provider  providers.Provider
	Skills    []skills.Meta
	Identity  string
	Channels  *channels.Engine

	stopWatch func()
}

func resolveWorkspace() (string, error) {
	if workspaceDir != "" {
		return filepath.Abs(workspaceDir)
	}
	return os.Getwd()
}

func resolveDataDir() (string, error) {
	if dataDir != "" {
		return filepath.Abs(dataDir)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".claw"), nil
}

func setupLogging() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// buildApp loads config and constructs every shared collaborator. It does
// not construct the routine tool or scheduler — callers that need
// scheduling wire those on top (see run.go and chat.go, both via
// scheduler.go's buildScheduler).
func buildApp(ctx context.Context) (*app, error) {
	setupLogging()
	tracing.Init()

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	ws, err := resolveWorkspace()
	if err != nil {
		return nil, fmt.Errorf("resolve workspace: %w", err)
	}
	if err := os.MkdirAll(ws, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	dd, err := resolveDataDir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dd, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	autonomy, ok := security.ParseAutonomyLevel(cfg.Security.Autonomy)
	if !ok {
		slog.Warn("unknown security.autonomy value, defaulting to supervised", "value", cfg.Security.Autonomy)
		autonomy = security.Supervised
	}
	policy := security.New(
		autonomy,
		[]string(cfg.Security.AllowedCommands),
		ws,
		nil,
		cfg.HTTPAllowedHosts(),
		cfg.Security.InjectionCheck,
	)

	tokenizer := memory.TokenizerEN
	if cfg.Language() == "zh" {
		tokenizer = memory.TokenizerZH
	}
	mem, err := memory.Open(filepath.Join(dd, "memory.db"), tokenizer)
	if err != nil {
		return nil, fmt.Errorf("open memory store: %w", err)
	}
	if err := mem.SeedCoreKnowledge(); err != nil {
		slog.Warn("seed_core_knowledge failed", "error", err)
	}

	providerReg, buildErrs := providers.BuildAll(cfg.Providers)
	for _, e := range buildErrs {
		slog.Warn("provider not available", "error", e)
	}
	primary, fallbacks, err := providerReg.Resolve(cfg.Default.Provider, []string(cfg.Reliability.FallbackProviders))
	if err != nil {
		mem.Close()
		return nil, fmt.Errorf("resolve default provider: %w", err)
	}
	retryCfg := providers.DefaultRetryConfig()
	if cfg.Reliability.MaxRetries > 0 {
		retryCfg.MaxRetries = cfg.Reliability.MaxRetries
	}
	if cfg.Reliability.InitialBackoffMs > 0 {
		retryCfg.InitialBackoff = time.Duration(cfg.Reliability.InitialBackoffMs) * time.Millisecond
	}
	var provider providers.Provider = providers.NewReliableProviderWithFallbacks(primary, fallbacks, retryCfg)
	provider = providers.NewRateLimitedProvider(provider, cfg.Reliability.RateLimitRPS)

	reg := tools.NewRegistry(
		tools.NewShellTool(ws),
		tools.NewFileReadTool(ws),
		tools.NewFileWriteTool(ws),
		tools.NewGitTool(ws),
		tools.NewHttpRequestTool(),
		tools.NewConfigTool(cfg),
		tools.NewSelfInfoTool(cfg, dd, dd, resolveConfigPath()),
		tools.NewMemoryStoreTool(mem),
		tools.NewMemoryRecallTool(mem),
		tools.NewMemoryForgetTool(mem),
	)

	globalSkillsDir := filepath.Join(dd, "skills")
	skillList := skills.Load(ws, globalSkillsDir)
	reg.Register(tools.NewSkillTool(skillList))

	remote := tools.NewRemoteAdapter()
	for _, t := range remote.Start(ctx, cfg.RemoteToolServers) {
		reg.Register(t)
	}

	idCtx := identity.Load(ws, dd)

	chanEngine := channels.NewEngine()
	if cfg.Bot.Token != "" {
		poster, err := channels.NewTelegramPoster(cfg.Bot.Token)
		if err != nil {
			slog.Warn("bot channel not available", "error", err)
		} else {
			chanEngine.RegisterBot("bot", poster, []string(cfg.Bot.AllowedChatIDs))
		}
	}

	stopWatch, err := cfg.WatchHotKeys()
	if err != nil {
		slog.Warn("config hot-reload watcher not started", "error", err)
		stopWatch = func() {}
	}

	return &app{
		Cfg:       cfg,
		Workspace: ws,
		DataDir:   dd,
		Policy:    policy,
		Memory:    mem,
		Tools:     reg,
		Provider:  provider,
		Skills:    skillList,
		Identity:  idCtx,
		Channels:  chanEngine,
		stopWatch: stopWatch,
	}, nil
}

func (a *app) Close() {
	if a.stopWatch != nil {
		a.stopWatch()
	}
	if a.Memory != nil {
		a.Memory.Close()
	}
	tracing.Shutdown(context.Background())
}
