// Package schedule turns wall-clock instants into recurring-timetable
// decisions. Everything here is pure: no storage, no clocks, no I/O.
package schedule

import "time"

// Occurrence identifies one recurring minute of the week, the key the
// timetable queries are driven by.
type Occurrence struct {
	Weekday time.Weekday
	Start   string // zero-padded "HH:MM", truncated to the minute
}

// At returns the occurrence the given instant falls in.
func At(t time.Time) Occurrence {
	return Occurrence{
		Weekday: t.Weekday(),
		Start:   t.Format("15:04"),
	}
}

// Target returns the occurrence lookahead from now. The target is computed
// with full date arithmetic so a lookahead that crosses midnight rolls the
// weekday forward correctly (Saturday 23:55 + 10min is Sunday 00:05).
func Target(now time.Time, lookahead time.Duration) Occurrence {
	return At(now.Add(lookahead))
}

// Matches reports whether a session recurring weekly on weekday at startHHMM
// begins exactly lookahead from now, to one-minute granularity.
func Matches(now time.Time, weekday time.Weekday, startHHMM string, lookahead time.Duration) bool {
	target := Target(now, lookahead)
	return target.Weekday == weekday && target.Start == startHHMM
}

// NextDay returns tomorrow's weekday relative to now, via date arithmetic
// rather than modular increment so DST transitions keep the calendar answer.
func NextDay(now time.Time) time.Weekday {
	return now.AddDate(0, 0, 1).Weekday()
}
