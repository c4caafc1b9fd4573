package meter

import (
	"fmt"
	"time"
)

// billingAnchor returns local midnight on the billing day of the given month,
// clipping the day to the month's length (billing day 31 in February anchors
// on the 28th or 29th).
func billingAnchor(billingDay, year int, month time.Month, loc *time.Location) time.Time {
	day := billingDay
	if last := daysIn(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, loc)
}

func daysIn(year int, month time.Month) int {
	// day 0 of the next month normalizes to the last day of this month
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// CycleStart returns the start of the billing cycle containing now: the most
// recent billing-day midnight not after now, in now's location.
func CycleStart(billingDay int, now time.Time) time.Time {
	if billingDay < 1 || billingDay > 31 {
		panic(fmt.Sprintf("invalid billing day: %d", billingDay))
	}
	start := billingAnchor(billingDay, now.Year(), now.Month(), now.Location())
	if start.After(now) {
		prev := now.AddDate(0, 0, -now.Day()) // last day of the previous month
		start = billingAnchor(billingDay, prev.Year(), prev.Month(), now.Location())
	}
	return start
}

// NextReset returns the first billing-day midnight strictly after now, in
// now's location. When now reaches this instant the ledger must be reset.
func NextReset(billingDay int, now time.Time) time.Time {
	if billingDay < 1 || billingDay > 31 {
		panic(fmt.Sprintf("invalid billing day: %d", billingDay))
	}
	next := billingAnchor(billingDay, now.Year(), now.Month(), now.Location())
	if !next.After(now) {
		// AddDate on the anchor could skip a short month; anchor off the
		// first of the next month instead
		firstOfNext := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, 1, 0)
		next = billingAnchor(billingDay, firstOfNext.Year(), firstOfNext.Month(), now.Location())
	}
	return next
}
