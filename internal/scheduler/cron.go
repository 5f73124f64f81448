package scheduler

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var weekdayNumbers = map[string]int{
	"sunday": 0, "monday": 1, "tuesday": 2, "wednesday": 3,
	"thursday": 4, "friday": 5, "saturday": 6,
}

var (
	reDailyAt       = regexp.MustCompile(`^every day at (\d{1,2})\s*(am|pm)?$`)
	reEveryNMinutes = regexp.MustCompile(`^every (\d+) minutes?$`)
	reEveryNHours   = regexp.MustCompile(`^every (\d+) hours?$`)
	reWeeklyAt      = regexp.MustCompile(`^every (sunday|monday|tuesday|wednesday|thursday|friday|saturday) at (\d{1,2})\s*(am|pm)?$`)
	reMonthlyAt     = regexp.MustCompile(`^every month on the (\d{1,2})(?:st|nd|rd|th)?(?: at (\d{1,2})\s*(am|pm)?)?$`)
)

// to24Hour converts a 12-hour clock hour with an optional am/pm suffix to
// 24-hour form. With no suffix, the hour is assumed already 24-hour.
func to24Hour(hour int, suffix string) (int, error) {
	switch suffix {
	case "am":
		if hour == 12 {
			return 0, nil
		}
		return hour, nil
	case "pm":
		if hour == 12 {
			return 12, nil
		}
		return hour + 12, nil
	default:
		if hour > 23 {
			return 0, fmt.Errorf("invalid hour: %d", hour)
		}
		return hour, nil
	}
}

// ParseScheduleToCron converts a natural-language schedule phrase, or a
// 5-field cron expression passed straight through, into a standard
// 5-field cron expression (minute hour day-of-month month day-of-week).
func ParseScheduleToCron(desc string) (string, error) {
	trimmed := strings.TrimSpace(desc)

	if fields := strings.Fields(trimmed); len(fields) == 5 {
		return trimmed, nil
	}

	lower := strings.ToLower(trimmed)

	if lower == "every hour" || lower == "hourly" {
		return "0 * * * *", nil
	}

	if m := reEveryNMinutes.FindStringSubmatch(lower); m != nil {
		minutes, _ := strconv.Atoi(m[1])
		if minutes > 0 && minutes <= 59 {
			return fmt.Sprintf("*/%d * * * *", minutes), nil
		}
	}

	if m := reEveryNHours.FindStringSubmatch(lower); m != nil {
		hours, _ := strconv.Atoi(m[1])
		if hours > 0 && hours <= 24 {
			return fmt.Sprintf("0 */%d * * *", hours), nil
		}
	}

	if m := reDailyAt.FindStringSubmatch(lower); m != nil {
		hour, _ := strconv.Atoi(m[1])
		h24, err := to24Hour(hour, m[2])
		if err == nil && h24 < 24 {
			return fmt.Sprintf("0 %d * * *", h24), nil
		}
	}

	if m := reWeeklyAt.FindStringSubmatch(lower); m != nil {
		day := weekdayNumbers[m[1]]
		hour, _ := strconv.Atoi(m[2])
		h24, err := to24Hour(hour, m[3])
		if err == nil && h24 < 24 {
			return fmt.Sprintf("0 %d * * %d", h24, day), nil
		}
	}

	if m := reMonthlyAt.FindStringSubmatch(lower); m != nil {
		day, _ := strconv.Atoi(m[1])
		hour := 0
		if m[2] != "" {
			hour, _ = strconv.Atoi(m[2])
		}
		h24, err := to24Hour(hour, m[3])
		if err == nil && day <= 31 && h24 < 24 {
			return fmt.Sprintf("0 %d %d * *", h24, day), nil
		}
	}

	return "", fmt.Errorf(
		"could not parse schedule phrase %q. Supported formats:\n"+
			"- every 5 minutes / every 30 minutes\n"+
			"- every hour / every 2 hours\n"+
			"- every day at 8am / every day at 15\n"+
			"- every monday at 9am / every friday at 5pm\n"+
			"- every month on the 15th at 10am",
		desc,
	)
}

// CronFallbackFunc is the third and last schedule-resolution tier: a
// provider-backed translator consulted only when the phrase matches
// neither a direct cron expression nor the deterministic phrase table.
// A nil CronFallbackFunc means this tier is unavailable and resolution
// fails outright when the first two tiers do.
type CronFallbackFunc func(ctx context.Context, phrase string) (string, error)

// ResolveSchedule runs the full schedule-resolution pipeline: direct
// cron pass-through, then the deterministic natural-language table
// (ParseScheduleToCron), then — only if both fail and fallback is
// non-nil — the supplied provider-backed fallback. The fallback's
// answer is validated as a 5-field cron expression before being
// accepted, same as any other source.
func ResolveSchedule(ctx context.Context, desc string, fallback CronFallbackFunc) (string, error) {
	cron, err := ParseScheduleToCron(desc)
	if err == nil {
		return cron, nil
	}
	if fallback == nil {
		return "", err
	}

	resolved, fbErr := fallback(ctx, desc)
	if fbErr != nil {
		return "", fmt.Errorf("%w (llm fallback also failed: %v)", err, fbErr)
	}
	resolved = strings.TrimSpace(resolved)
	if n := len(strings.Fields(resolved)); n != 5 {
		return "", fmt.Errorf("llm fallback returned an invalid cron expression (expected 5 fields, got %d): %q", n, resolved)
	}
	return resolved, nil
}
