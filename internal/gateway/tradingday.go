package gateway

import "time"

// TradingDay implements the roll-to-next-non-weekend-day rule from the
// Gateway capability contract: at or after 20:00 local, the trading day
// is the next trading day (skipping Saturday/Sunday), not the calendar
// day of now.
func TradingDay(now time.Time) string {
	day := now
	if now.Hour() >= 20 {
		day = day.AddDate(0, 0, 1)
	}
	for day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
		day = day.AddDate(0, 0, 1)
	}
	return day.Format("20060102")
}
