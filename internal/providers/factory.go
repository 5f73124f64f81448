package providers

import (
	"fmt"

	"github.com/localclaw/claw/internal/config"
)

// Build constructs a concrete Provider for name from cfg. AuthStyle
// "anthropic" selects the Messages-API adapter; anything else (including
// empty, for most OpenAI-compatible third-party endpoints, OpenRouter,
// Groq, DeepSeek, local vLLM/Ollama front-ends, etc.) selects the
// chat-completions adapter.
func Build(name string, cfg config.ProviderConfig) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("provider %q: no api key configured", name)
	}
	switch cfg.AuthStyle {
	case "anthropic":
		return NewAnthropicProvider(cfg.APIKey, cfg.BaseURL, cfg.Model), nil
	default:
		return NewOpenAIProvider(name, cfg.APIKey, cfg.BaseURL, cfg.Model), nil
	}
}

// BuildAll constructs every provider with a configured API key, skipping
// (and reporting) any that fail rather than aborting the whole set —
// one bad provider entry shouldn't prevent the rest from starting.
func BuildAll(cfgs map[string]config.ProviderConfig) (*Registry, []error) {
	reg := NewRegistry()
	var errs []error
	for name, cfg := range cfgs {
		p, err := Build(name, cfg)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		reg.Register(name, p)
	}
	return reg, errs
}

// Registry holds every successfully constructed provider by name, used to
// resolve the configured default provider plus an ordered fallback chain
// for ReliableProvider.
type Registry struct {
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

func (r *Registry) Register(name string, p Provider) { r.providers[name] = p }

func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

// Resolve looks up primary plus each name in fallbackNames, skipping any
// that failed to construct (logged by the caller) rather than erroring —
// a degraded fallback chain is still useful.
func (r *Registry) Resolve(primary string, fallbackNames []string) (Provider, []Provider, error) {
	p, ok := r.providers[primary]
	if !ok {
		return nil, nil, fmt.Errorf("no provider registered for %q", primary)
	}
	var fallbacks []Provider
	for _, name := range fallbackNames {
		if fp, ok := r.providers[name]; ok {
			fallbacks = append(fallbacks, fp)
		}
	}
	return p, fallbacks, nil
}
