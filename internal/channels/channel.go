// Package channels routes routine and notification output to an outward
// destination: the local terminal, or a configured bot chat. It is kept
// deliberately small compared to a multi-platform gateway — this repo
// has exactly two destinations, terminal and a single chat bot, not a
// pluggable bus of inbound/outbound adapters.
package channels

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Sink is the channels.Engine's contribution to scheduler.ResultSink: it
// routes a named channel to a concrete delivery mechanism, degrading to
// the terminal when the name is unknown or unconfigured.
type Sink interface {
	Send(channel, message string) error
}

// Terminal writes a framed message to stderr, the always-available
// fallback destination.
type Terminal struct {
	out *os.File
}

// NewTerminal returns a Terminal writing to stderr.
func NewTerminal() *Terminal { return &Terminal{out: os.Stderr} }

func (t *Terminal) Name() string { return "terminal" }

// Send frames message between a header/footer rule so routine output is
// visually distinct from ordinary interactive chat.
func (t *Terminal) Send(channel, message string) error {
	out := t.out
	if out == nil {
		out = os.Stderr
	}
	rule := strings.Repeat("-", 40)
	fmt.Fprintf(out, "\n%s\n[%s]\n%s\n%s\n", rule, channel, message, rule)
	return nil
}

// BotPoster is the narrow surface channels.Engine needs from a bot
// integration: post message to chatID, nothing else. TelegramPoster is
// the one concrete implementation.
type BotPoster interface {
	PostMessage(chatID, message string) error
}

// Engine is the concrete scheduler.ResultSink implementation: it dispatches
// a routine's named channel ("terminal", "bot", or anything else) to either
// the terminal or a registered bot poster, falling back to terminal when
// the requested channel has no poster or no allowed chat.
//
// Trimmed from a multi-platform message bus down to the single
// terminal-or-bot routing this repo actually needs.
type Engine struct {
	mu         sync.RWMutex
	terminal   *Terminal
	poster     BotPoster
	posterName string
	chatIDs    []string
}

// NewEngine builds a Sink with the terminal always available. Call
// RegisterBot to add a bot destination.
func NewEngine() *Engine {
	return &Engine{terminal: NewTerminal()}
}

// RegisterBot wires a bot poster (e.g. a TelegramPoster) under name,
// with the chat IDs allowed to receive routine output. The first entry in
// chatIDs is the one routine/notification sends target.
func (e *Engine) RegisterBot(name string, poster BotPoster, chatIDs []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.poster = poster
	e.posterName = name
	e.chatIDs = chatIDs
}

// Send implements scheduler.ResultSink. "terminal" (or any unrecognized
// channel name) always goes to the terminal. "bot" goes to the registered
// bot poster's first allowed chat id, if any is configured; otherwise it
// degrades to the terminal and logs the fallback.
func (e *Engine) Send(channel, message string) error {
	e.mu.RLock()
	poster, posterName, chatIDs := e.poster, e.posterName, e.chatIDs
	e.mu.RUnlock()

	if channel == "bot" || (posterName != "" && channel == posterName) {
		if poster == nil || len(chatIDs) == 0 {
			slog.Warn("bot channel requested but not configured, falling back to terminal", "channel", channel)
			return e.terminal.Send("terminal", message)
		}
		if err := poster.PostMessage(chatIDs[0], message); err != nil {
			slog.Warn("bot delivery failed, falling back to terminal", "channel", channel, "error", err)
			return e.terminal.Send("terminal", message)
		}
		return nil
	}
	return e.terminal.Send(channel, message)
}
