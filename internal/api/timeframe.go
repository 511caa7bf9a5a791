package api

import (
	"fmt"
	"strings"
	"time"

	"copytrade-ledger-go/internal/store"
)

const (
	TimeframeCurrent = "current"
	TimeframeDay     = "1d"
	TimeframeWeek    = "7d"
)

// ComparisonInstant maps a timeframe token to the instant equity is compared
// against. "current" compares against the net investment baseline and
// returns the zero time.
func ComparisonInstant(timeframe string, now time.Time) (time.Time, error) {
	switch normalizeTimeframe(timeframe) {
	case TimeframeCurrent:
		return time.Time{}, nil
	case TimeframeDay:
		return now.Add(-24 * time.Hour), nil
	case TimeframeWeek:
		return now.Add(-7 * 24 * time.Hour), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q (expected current, 1d or 7d)", store.ErrInvalidTimeframe, timeframe)
	}
}

func normalizeTimeframe(timeframe string) string {
	t := strings.ToLower(strings.TrimSpace(timeframe))
	if t == "" {
		return TimeframeCurrent
	}
	return t
}
