package providers

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        2,
		InitialBackoff:    time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxBackoff:        5 * time.Millisecond,
	}
}

func TestReliableProviderFirstTrySuccess(t *testing.T) {
	p := &MockProvider{NameValue: "mock", Responses: []MockResponse{
		{Response: &ChatResponse{Content: "hi"}},
	}}
	rp := NewReliableProvider(p, fastConfig())
	resp, err := rp.Chat(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "hi" {
		t.Errorf("expected hi, got %q", resp.Content)
	}
	if p.CallCount() != 1 {
		t.Errorf("expected exactly 1 call, got %d", p.CallCount())
	}
}

func TestReliableProviderRetriesThenSucceeds(t *testing.T) {
	p := &MockProvider{NameValue: "mock", Responses: []MockResponse{
		{Err: errors.New("503 service unavailable")},
		{Err: errors.New("timeout")},
		{Response: &ChatResponse{Content: "recovered"}},
	}}
	rp := NewReliableProvider(p, fastConfig())
	resp, err := rp.Chat(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "recovered" {
		t.Errorf("expected recovered, got %q", resp.Content)
	}
}

func TestReliableProviderExhaustion(t *testing.T) {
	p := &MockProvider{NameValue: "mock", Responses: []MockResponse{
		{Err: errors.New("500")},
		{Err: errors.New("500")},
		{Err: errors.New("500")},
	}}
	rp := NewReliableProvider(p, fastConfig())
	_, err := rp.Chat(context.Background(), ChatRequest{})
	if err == nil {
		t.Fatal("expected exhaustion error")
	}
}

func TestReliableProviderNonRetryableFailsFast(t *testing.T) {
	p := &MockProvider{NameValue: "mock", Responses: []MockResponse{
		{Err: errors.New("401 invalid_api_key")},
	}}
	rp := NewReliableProvider(p, fastConfig())
	_, err := rp.Chat(context.Background(), ChatRequest{})
	if err == nil {
		t.Fatal("expected error")
	}
	if p.CallCount() != 1 {
		t.Errorf("expected exactly 1 attempt for a non-retryable error, got %d", p.CallCount())
	}
}

func TestReliableProviderFallbackChain(t *testing.T) {
	primary := &MockProvider{NameValue: "primary", Responses: []MockResponse{
		{Err: errors.New("500")},
		{Err: errors.New("500")},
		{Err: errors.New("500")},
	}}
	fallback := &MockProvider{NameValue: "fallback", Responses: []MockResponse{
		{Response: &ChatResponse{Content: "from fallback"}},
	}}
	rp := NewReliableProviderWithFallbacks(primary, []Provider{fallback}, fastConfig())
	resp, err := rp.Chat(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "from fallback" {
		t.Errorf("expected fallback response, got %q", resp.Content)
	}
}

func TestReliableProviderAllFail(t *testing.T) {
	primary := &MockProvider{NameValue: "primary", Responses: []MockResponse{
		{Err: errors.New("500")}, {Err: errors.New("500")}, {Err: errors.New("500")},
	}}
	fallback := &MockProvider{NameValue: "fallback", Responses: []MockResponse{
		{Err: errors.New("500")}, {Err: errors.New("500")}, {Err: errors.New("500")},
	}}
	rp := NewReliableProviderWithFallbacks(primary, []Provider{fallback}, fastConfig())
	_, err := rp.Chat(context.Background(), ChatRequest{})
	if err == nil {
		t.Fatal("expected combined failure error")
	}
}

func TestIsRetryableClassification(t *testing.T) {
	cases := map[string]bool{
		"500 internal server error": true,
		"timeout":                   true,
		"429 too many requests":     true,
		"connection refused":        true,
		"401 unauthorized":          false,
		"403 forbidden":             false,
		"400 bad request":           false,
		"404 not found":             false,
		"invalid_api_key":           false,
	}
	for msg, want := range cases {
		if got := isRetryable(msg); got != want {
			t.Errorf("isRetryable(%q) = %v, want %v", msg, got, want)
		}
	}
}

func TestDefaultRetryConfigValues(t *testing.T) {
	cfg := DefaultRetryConfig()
	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
	if cfg.InitialBackoff != 500*time.Millisecond {
		t.Errorf("InitialBackoff = %v, want 500ms", cfg.InitialBackoff)
	}
	if cfg.BackoffMultiplier != 2.0 {
		t.Errorf("BackoffMultiplier = %v, want 2.0", cfg.BackoffMultiplier)
	}
	if cfg.MaxBackoff != 10*time.Second {
		t.Errorf("MaxBackoff = %v, want 10s", cfg.MaxBackoff)
	}
}
