package sim

import "time"

// The simulated session mirrors NSE cash hours: one-minute bars from 09:15
// through 15:29 inclusive, weekdays only.
const (
	sessionOpenHour    = 9
	sessionOpenMinute  = 15
	sessionCloseHour   = 15
	sessionCloseMinute = 29

	// MinutesPerDay is the number of bars in one trading day.
	MinutesPerDay = 375
)

// DefaultSessionStart anchors the calendar when the caller does not supply
// a start timestamp.
var DefaultSessionStart = time.Date(2025, time.January, 3, sessionOpenHour, sessionOpenMinute, 0, 0, time.UTC)

// TradingMinutes returns n consecutive one-minute bar timestamps starting
// at start, skipping weekends and anything outside session hours. A start
// that falls outside a session is advanced to the next session open.
func TradingMinutes(start time.Time, n int) []time.Time {
	out := make([]time.Time, 0, n)
	t := alignToSession(start)
	for len(out) < n {
		out = append(out, t)
		t = nextTradingMinute(t)
	}
	return out
}

func alignToSession(t time.Time) time.Time {
	t = t.Truncate(time.Minute)
	for !isTradingMinute(t) {
		if afterClose(t) || isWeekend(t) {
			t = sessionOpen(t.AddDate(0, 0, 1))
		} else {
			t = sessionOpen(t)
		}
	}
	return t
}

func nextTradingMinute(t time.Time) time.Time {
	t = t.Add(time.Minute)
	if isTradingMinute(t) {
		return t
	}
	return alignToSession(t)
}

func isTradingMinute(t time.Time) bool {
	if isWeekend(t) {
		return false
	}
	hm := t.Hour()*60 + t.Minute()
	return hm >= sessionOpenHour*60+sessionOpenMinute && hm <= sessionCloseHour*60+sessionCloseMinute
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func afterClose(t time.Time) bool {
	hm := t.Hour()*60 + t.Minute()
	return hm > sessionCloseHour*60+sessionCloseMinute
}

func sessionOpen(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), sessionOpenHour, sessionOpenMinute, 0, 0, t.Location())
}

// expiryCutoff returns the moment options on the given date stop trading.
func expiryCutoff(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), sessionCloseHour, sessionCloseMinute, 0, 0, date.Location())
}

// tradingDay truncates a timestamp to its calendar date.
func tradingDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
