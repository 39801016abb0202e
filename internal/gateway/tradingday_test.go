package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTradingDayBeforeCutoffIsSameDay(t *testing.T) {
	// Friday 2026-07-31 at 14:00 local.
	now := time.Date(2026, 7, 31, 14, 0, 0, 0, time.UTC)
	require.Equal(t, "20260731", TradingDay(now))
}

func TestTradingDayAfterCutoffRollsToNextTradingDay(t *testing.T) {
	// Friday 2026-07-31 at 20:30 local rolls to Monday, skipping the weekend.
	now := time.Date(2026, 7, 31, 20, 30, 0, 0, time.UTC)
	require.Equal(t, "20260803", TradingDay(now))
}

func TestTradingDaySkipsWeekendWhenCalendarDayFallsOnIt(t *testing.T) {
	// Saturday after cutoff should still land on Monday.
	now := time.Date(2026, 8, 1, 21, 0, 0, 0, time.UTC)
	require.Equal(t, "20260803", TradingDay(now))
}
