package tariff

import (
	"time"

	"github.com/gridtally/gridtally/pkg/types"
)

// Season boundaries and period windows for the R-1B time-of-use schedule.
// High Peak: 1pm-5pm weekdays (June-September).
// Low Peak: 10am-1pm and 5pm-8pm weekdays in summer, 10am-8pm weekdays in
// winter.
// Base: everything else, including all weekend hours.
const (
	summerStartMonth = time.June
	summerEndMonth   = time.September

	highPeakStartHour = 13
	highPeakEndHour   = 17

	lowPeakMorningStartHour = 10
	lowPeakMorningEndHour   = 13
	lowPeakEveningStartHour = 17
	lowPeakEveningEndHour   = 20

	lowPeakWinterStartHour = 10
	lowPeakWinterEndHour   = 20
)

// IsSummer reports whether t falls in the summer season (June-September).
func IsSummer(t time.Time) bool {
	m := t.Month()
	return m >= summerStartMonth && m <= summerEndMonth
}

// minuteOfDay converts a time to minutes since local midnight so window
// comparisons stay half-open at minute precision.
func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

func inWindow(t time.Time, startHour, endHour int) bool {
	m := minuteOfDay(t)
	return m >= startHour*60 && m < endHour*60
}

// PeriodFor classifies a local timestamp into its time-of-use period. It is a
// pure function of the timestamp; the caller is responsible for converting to
// the tariff's local time first.
func PeriodFor(t time.Time) types.Period {
	// Weekends are base, unconditionally.
	if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return types.PeriodBase
	}

	if IsSummer(t) {
		if inWindow(t, highPeakStartHour, highPeakEndHour) {
			return types.PeriodHighPeak
		}
		if inWindow(t, lowPeakMorningStartHour, lowPeakMorningEndHour) ||
			inWindow(t, lowPeakEveningStartHour, lowPeakEveningEndHour) {
			return types.PeriodLowPeak
		}
		return types.PeriodBase
	}

	if inWindow(t, lowPeakWinterStartHour, lowPeakWinterEndHour) {
		return types.PeriodLowPeak
	}
	return types.PeriodBase
}
