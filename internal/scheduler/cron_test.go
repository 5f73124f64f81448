package scheduler

import (
	"context"
	"testing"
)

func TestParseScheduleToCron_DailyMorning(t *testing.T) {
	got, err := ParseScheduleToCron("every day at 8am")
	if err != nil {
		t.Fatal(err)
	}
	if got != "0 8 * * *" {
		t.Fatalf("got %q", got)
	}
}

func TestParseScheduleToCron_DailyAfternoon(t *testing.T) {
	got, err := ParseScheduleToCron("every day at 3pm")
	if err != nil {
		t.Fatal(err)
	}
	if got != "0 15 * * *" {
		t.Fatalf("got %q", got)
	}
}

func TestParseScheduleToCron_DailyEvening(t *testing.T) {
	got, err := ParseScheduleToCron("every day at 8pm")
	if err != nil {
		t.Fatal(err)
	}
	if got != "0 20 * * *" {
		t.Fatalf("got %q", got)
	}
}

func TestParseScheduleToCron_Hourly(t *testing.T) {
	got, err := ParseScheduleToCron("every hour")
	if err != nil {
		t.Fatal(err)
	}
	if got != "0 * * * *" {
		t.Fatalf("got %q", got)
	}
}

func TestParseScheduleToCron_Every2Hours(t *testing.T) {
	got, err := ParseScheduleToCron("every 2 hours")
	if err != nil {
		t.Fatal(err)
	}
	if got != "0 */2 * * *" {
		t.Fatalf("got %q", got)
	}
}

func TestParseScheduleToCron_Every5Minutes(t *testing.T) {
	got, err := ParseScheduleToCron("every 5 minutes")
	if err != nil {
		t.Fatal(err)
	}
	if got != "*/5 * * * *" {
		t.Fatalf("got %q", got)
	}
}

func TestParseScheduleToCron_WeeklyMondayMorning(t *testing.T) {
	got, err := ParseScheduleToCron("every monday at 9am")
	if err != nil {
		t.Fatal(err)
	}
	if got != "0 9 * * 1" {
		t.Fatalf("got %q", got)
	}
}

func TestParseScheduleToCron_WeeklyFridayAfternoon(t *testing.T) {
	got, err := ParseScheduleToCron("every friday at 5pm")
	if err != nil {
		t.Fatal(err)
	}
	if got != "0 17 * * 5" {
		t.Fatalf("got %q", got)
	}
}

func TestParseScheduleToCron_Monthly(t *testing.T) {
	got, err := ParseScheduleToCron("every month on the 15th at 10am")
	if err != nil {
		t.Fatal(err)
	}
	if got != "0 10 15 * *" {
		t.Fatalf("got %q", got)
	}
}

func TestParseScheduleToCron_DirectCronPassthrough(t *testing.T) {
	got, err := ParseScheduleToCron("*/15 * * * *")
	if err != nil {
		t.Fatal(err)
	}
	if got != "*/15 * * * *" {
		t.Fatalf("got %q", got)
	}
}

func TestParseScheduleToCron_InvalidReturnsError(t *testing.T) {
	if _, err := ParseScheduleToCron("whenever you feel like it"); err == nil {
		t.Fatal("expected error")
	}
}

func TestResolveSchedule_DeterministicTierNeverCallsFallback(t *testing.T) {
	called := false
	fallback := func(ctx context.Context, phrase string) (string, error) {
		called = true
		return "", nil
	}
	got, err := ResolveSchedule(context.Background(), "every hour", fallback)
	if err != nil {
		t.Fatal(err)
	}
	if got != "0 * * * *" {
		t.Fatalf("got %q", got)
	}
	if called {
		t.Fatal("fallback must not be consulted when the deterministic tiers already resolved the phrase")
	}
}

func TestResolveSchedule_FallsBackOnUnparseablePhrase(t *testing.T) {
	got, err := ResolveSchedule(context.Background(), "whenever you feel like it", func(ctx context.Context, phrase string) (string, error) {
		return "0 9 * * *", nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if got != "0 9 * * *" {
		t.Fatalf("got %q", got)
	}
}

func TestResolveSchedule_NoFallbackPropagatesOriginalError(t *testing.T) {
	if _, err := ResolveSchedule(context.Background(), "whenever you feel like it", nil); err == nil {
		t.Fatal("expected error when fallback is nil and deterministic tiers fail")
	}
}

func TestResolveSchedule_RejectsNonFiveFieldFallbackResult(t *testing.T) {
	_, err := ResolveSchedule(context.Background(), "whenever you feel like it", func(ctx context.Context, phrase string) (string, error) {
		return "0 9 * * * *", nil
	})
	if err == nil {
		t.Fatal("expected fallback's 6-field answer to be rejected at the 5-field validation step")
	}
}
