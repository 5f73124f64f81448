package providers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// RetryConfig controls ReliableProvider's exponential-backoff retry loop.
type RetryConfig struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	BackoffMultiplier float64
	MaxBackoff        time.Duration
}

// DefaultRetryConfig mirrors the source implementation's defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    500 * time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxBackoff:        10 * time.Second,
	}
}

// ReliableProvider wraps a primary provider with retry and an ordered
// fallback chain. Each attempt against the primary or a fallback gets the
// same retry budget.
type ReliableProvider struct {
	primary   Provider
	fallbacks []Provider
	config    RetryConfig
}

// NewReliableProvider wraps primary with no fallbacks.
func NewReliableProvider(primary Provider, config RetryConfig) *ReliableProvider {
	return &ReliableProvider{primary: primary, config: config}
}

// NewReliableProviderWithFallbacks wraps primary plus an ordered fallback chain.
func NewReliableProviderWithFallbacks(primary Provider, fallbacks []Provider, config RetryConfig) *ReliableProvider {
	return &ReliableProvider{primary: primary, fallbacks: fallbacks, config: config}
}

func (r *ReliableProvider) Name() string         { return r.primary.Name() }
func (r *ReliableProvider) DefaultModel() string { return r.primary.DefaultModel() }

// Chat tries the primary with retries, then each fallback in order with
// the same retry budget. On total failure it returns a combined error
// naming how many providers were attempted.
func (r *ReliableProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	providers := append([]Provider{r.primary}, r.fallbacks...)
	var lastErr error
	for i, p := range providers {
		resp, err := retryWithBackoff(ctx, r.config, func() (*ChatResponse, error) {
			return p.Chat(ctx, req)
		})
		if err == nil {
			return resp, nil
		}
		slog.Warn("provider attempt failed", "provider", p.Name(), "attempt_index", i, "error", truncateError(err.Error()))
		lastErr = err
	}
	return nil, fmt.Errorf("all %d provider(s) failed, last error: %w", len(providers), lastErr)
}

// ChatStream respects the same retry/fallback policy. A failed stream is
// restarted from scratch; onChunk may have already received partial
// events from a failed attempt, which is acceptable under a best-effort
// continue policy — the caller's renderer simply sees a restart.
func (r *ReliableProvider) ChatStream(ctx context.Context, req ChatRequest, onChunk func(StreamChunk)) (*ChatResponse, error) {
	providers := append([]Provider{r.primary}, r.fallbacks...)
	var lastErr error
	for i, p := range providers {
		resp, err := retryWithBackoff(ctx, r.config, func() (*ChatResponse, error) {
			return p.ChatStream(ctx, req, onChunk)
		})
		if err == nil {
			return resp, nil
		}
		slog.Warn("provider stream attempt failed", "provider", p.Name(), "attempt_index", i, "error", truncateError(err.Error()))
		lastErr = err
	}
	return nil, fmt.Errorf("all %d provider(s) failed, last error: %w", len(providers), lastErr)
}

func retryWithBackoff(ctx context.Context, cfg RetryConfig, call func() (*ChatResponse, error)) (*ChatResponse, error) {
	backoff := cfg.InitialBackoff
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		resp, err := call()
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if attempt == cfg.MaxRetries {
			break
		}
		if !isRetryable(err.Error()) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff = time.Duration(float64(backoff) * cfg.BackoffMultiplier)
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}
	return nil, lastErr
}

// nonRetryableMarkers are substrings of an error's lowercased string form
// that indicate the failure will not resolve itself by retrying: auth
// failures and the 400, 401, 403 and 404 status codes. Other 4xx codes
// are retried.
var nonRetryableMarkers = []string{"401", "403", "400", "404", "invalid_api_key", "authentication"}

func isRetryable(errMsg string) bool {
	lower := strings.ToLower(errMsg)
	for _, marker := range nonRetryableMarkers {
		if strings.Contains(lower, marker) {
			return false
		}
	}
	return true
}

func truncateError(s string) string {
	const maxLen = 150
	if len(s) <= maxLen {
		return s
	}
	// Truncate at a rune boundary.
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
