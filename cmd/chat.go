package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/localclaw/claw/internal/agent"
	"github.com/localclaw/claw/internal/memory"
	"github.com/localclaw/claw/internal/providers"
	"github.com/localclaw/claw/internal/scheduler"
	"github.com/localclaw/claw/internal/sessions"
	"github.com/localclaw/claw/internal/tools"
)

// autoApprove tracks auto-approved confirmations for the session's
// interactive confirm callback, keyed "shell:<basename>" for shell calls
// or "<toolname>" otherwise.
type autoApprove struct {
	approved map[string]bool
}

func newAutoApprove() *autoApprove { return &autoApprove{approved: make(map[string]bool)} }

func (a *autoApprove) key(toolName, argsSummary string) string {
	if toolName == "shell" {
		cmdline := argsSummary
		var args struct {
			Command string `json:"command"`
		}
		if err := json.Unmarshal([]byte(argsSummary), &args); err == nil {
			cmdline = args.Command
		}
		fields := strings.Fields(cmdline)
		if len(fields) > 0 {
			return "shell:" + filepath.Base(fields[0])
		}
		return "shell:"
	}
	return toolName
}

// confirm implements agent.ConfirmFunc against the terminal.
func (a *autoApprove) confirm(toolName, argsSummary string) bool {
	k := a.key(toolName, argsSummary)
	if a.approved[k] {
		return true
	}
	fmt.Fprintf(os.Stderr, "\n[confirm] run %s(%s)? [y/N/a=always] ", toolName, argsSummary)
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	line = strings.ToLower(strings.TrimSpace(line))
	switch line {
	case "a", "always":
		a.approved[k] = true
		return true
	case "y", "yes":
		return true
	default:
		return false
	}
}

func chatCmd() *cobra.Command {
	var message string
	var session string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session with the agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), message, session)
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "send one message non-interactively and print the reply")
	cmd.Flags().StringVar(&session, "session", "", "session key to restore history from (default: today's terminal session)")
	return cmd
}

func runChat(ctx context.Context, message, sessionKey string) error {
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if sessionKey == "" {
		sessionKey = sessions.BuildSessionKey("local", "terminal", sessions.PeerDirect, time.Now().Format("2006-01-02"))
	}

	eng, err := buildScheduler(a)
	if err != nil {
		return err
	}
	fullTools := cloneWithRoutine(a.Tools, eng, a.Provider)

	loop := agent.NewLoop(a.Provider, fullTools, a.Memory, a.Policy, a.Cfg.Default.Model, a.Cfg.Default.Temperature)
	loop.Identity = a.Identity

	approver := newAutoApprove()
	loop.Confirm = approver.confirm

	restoreHistory(loop, a.Memory, sessionKey)

	if message != "" {
		reply, err := loop.ProcessMessage(ctx, message)
		persistHistory(loop, a.Memory, sessionKey)
		if err != nil {
			return err
		}
		fmt.Println(reply)
		return nil
	}

	fmt.Fprintln(os.Stderr, "claw interactive chat — type 'exit' to quit")
	fmt.Fprintf(os.Stderr, "session: %s | model: %s | autonomy: %s\n\n", sessionKey, a.Cfg.Default.Model, a.Policy.Autonomy)

	sigCtx, cancel := signal.NotifyContext(ctx, os.Interrupt)
	defer cancel()

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		select {
		case <-sigCtx.Done():
			fmt.Fprintln(os.Stderr, "\ngoodbye")
			return nil
		default:
		}

		fmt.Fprint(os.Stderr, "you: ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}

		reply, err := loop.ProcessMessageStream(sigCtx, input, func(evt agent.StreamEvent) {
			switch evt.Kind {
			case agent.EventThinking:
				fmt.Fprint(os.Stderr, ".")
			case agent.EventToolStatus:
				switch evt.ToolStatus {
				case agent.ToolRunning:
					fmt.Fprintf(os.Stderr, "\n  [%s] running: %s\n", evt.ToolName, evt.ToolDetail)
				case agent.ToolSuccess:
					fmt.Fprintf(os.Stderr, "  [%s] ok: %s\n", evt.ToolName, evt.ToolDetail)
				case agent.ToolFailed:
					fmt.Fprintf(os.Stderr, "  [%s] failed: %s\n", evt.ToolName, evt.ToolDetail)
				}
			}
		})
		persistHistory(loop, a.Memory, sessionKey)
		if err != nil {
			fmt.Fprintf(os.Stderr, "\nerror: %v\n\n", err)
			continue
		}
		fmt.Printf("\nassistant: %s\n\n", reply)
	}
	return nil
}

// cloneWithRoutine builds a fresh registry holding every tool in base plus
// a routine tool bound to eng — the routine tool itself is never part of
// base (it would need eng to exist first), so it is added here once both
// are available. The routine tool's natural-language schedule parser
// falls back to provider, a one-shot, tool-free translation of an
// unparseable phrase into a 5-field cron expression, consulted only when
// the deterministic phrase table can't resolve it.
func cloneWithRoutine(base *tools.Registry, eng *scheduler.Engine, provider providers.Provider) *tools.Registry {
	reg := tools.NewRegistry(base.All()...)
	reg.Register(tools.NewRoutineTool(eng, cronFallback(provider)))
	return reg
}

// cronFallback builds the routine tool's last-resort schedule resolver: a
// single non-streaming provider call, no tools, asking only for a 5-field
// cron expression back.
func cronFallback(provider providers.Provider) scheduler.CronFallbackFunc {
	return func(ctx context.Context, phrase string) (string, error) {
		resp, err := provider.Chat(ctx, providers.ChatRequest{
			Messages: []providers.Message{
				{Role: "system", Content: "You translate a natural-language schedule description into a 5-field cron " +
					"expression (minute hour day-of-month month day-of-week). Reply with ONLY the cron expression, " +
					"nothing else — no explanation, no markdown."},
				{Role: "user", Content: phrase},
			},
			Model:       provider.DefaultModel(),
			Temperature: 0,
		})
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(resp.Content), nil
	}
}

// restoreHistory loads and sanitizes a prior session's history, if any.
func restoreHistory(loop *agent.Loop, mem *memory.Store, sessionKey string) {
	records, err := mem.LoadConversationHistory(sessionKey)
	if err != nil || len(records) == 0 {
		return
	}
	messages := make([]agent.Message, 0, len(records))
	for _, r := range records {
		var m agent.Message
		if err := json.Unmarshal(r.Payload, &m); err != nil {
			continue
		}
		messages = append(messages, m)
	}
	loop.SetHistory(messages)
}

// persistHistory serializes the loop's current history back to the
// memory store under sessionKey after each user turn.
func persistHistory(loop *agent.Loop, mem *memory.Store, sessionKey string) {
	messages := loop.History().Messages()
	payloads := make([]json.RawMessage, 0, len(messages))
	for _, m := range messages {
		b, err := json.Marshal(m)
		if err != nil {
			continue
		}
		payloads = append(payloads, b)
	}
	if err := mem.SaveConversationHistory(sessionKey, payloads); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to persist history: %v\n", err)
	}
}
