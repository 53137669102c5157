// Package markethours is the NSE session calendar used to decide which
// daily bar is final and when the next one will be.
package markethours

import "time"

// IST is the Indian Standard Time location (UTC+5:30).
var IST = time.FixedZone("IST", 5*3600+30*60)

// Regular session in IST.
const (
	OpenHour    = 9
	OpenMinute  = 15
	CloseHour   = 15
	CloseMinute = 30
)

// IsTradingDay reports whether t's IST date is a weekday and not a holiday.
func IsTradingDay(t time.Time) bool {
	ist := t.In(IST)
	wd := ist.Weekday()
	return wd != time.Saturday && wd != time.Sunday && !IsHoliday(ist)
}

// IsMarketOpen reports whether t falls inside the regular session.
func IsMarketOpen(t time.Time) bool {
	if !IsTradingDay(t) {
		return false
	}
	ist := t.In(IST)
	hm := ist.Hour()*60 + ist.Minute()
	return hm >= OpenHour*60+OpenMinute && hm < CloseHour*60+CloseMinute
}

// Close returns the session close on t's IST date.
func Close(t time.Time) time.Time {
	ist := t.In(IST)
	return time.Date(ist.Year(), ist.Month(), ist.Day(), CloseHour, CloseMinute, 0, 0, IST)
}

// LastCompletedSession returns the date, as UTC midnight like bar dates,
// of the newest trading day whose close is at or before t.
func LastCompletedSession(t time.Time) time.Time {
	d := t.In(IST)
	if d.Before(Close(d)) {
		d = d.AddDate(0, 0, -1)
	}
	for i := 0; i < 15 && !IsTradingDay(d); i++ {
		d = d.AddDate(0, 0, -1)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

// NextClose returns the first session close strictly after t.
func NextClose(t time.Time) time.Time {
	d := t.In(IST)
	if !d.Before(Close(d)) {
		d = d.AddDate(0, 0, 1)
	}
	for i := 0; i < 15 && !IsTradingDay(d); i++ {
		d = d.AddDate(0, 0, 1)
	}
	return Close(d)
}

// StatusString describes the session state at t.
func StatusString(t time.Time) string {
	switch {
	case IsMarketOpen(t):
		return "open"
	case !IsTradingDay(t) && IsHoliday(t):
		return "holiday"
	case !IsTradingDay(t):
		return "weekend"
	case t.Before(Close(t)):
		return "pre-open"
	default:
		return "closed"
	}
}
