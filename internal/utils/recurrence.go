package utils

import (
	"time"

	"github.com/julianstephens/habitline/internal/constants"
)

// StepDays returns the number of calendar days between occurrences.
// Unknown recurrence types return 0 and never repeat.
func StepDays(rec constants.RecurrenceType) int {
	switch rec {
	case constants.RecurrenceDaily:
		return 1
	case constants.RecurrenceWeekly:
		return 7
	default:
		return 0
	}
}

// OccurrenceAt returns the k-th occurrence after first, at first's
// wall-clock time in loc. k=0 is first itself.
func OccurrenceAt(first time.Time, k int, rec constants.RecurrenceType, loc *time.Location) time.Time {
	step := StepDays(rec)
	if k == 0 || step == 0 {
		return first
	}
	return AddDays(first, k*step, loc)
}

// OccurrencesBetween returns the occurrences of a lineage starting at first
// that are due strictly after `after` and strictly before `before`, in order.
func OccurrencesBetween(first time.Time, rec constants.RecurrenceType, loc *time.Location, after, before time.Time) []time.Time {
	if StepDays(rec) == 0 || !before.After(after) {
		return nil
	}

	// Skip ahead close to `after`; the wall-clock walk below absorbs DST drift.
	k := 1
	if gap := int(after.Sub(first).Hours()/24) / StepDays(rec); gap > 2 {
		k = gap - 1
	}

	var out []time.Time
	for ; ; k++ {
		t := OccurrenceAt(first, k, rec, loc)
		if !t.Before(before) {
			break
		}
		if t.After(after) {
			out = append(out, t)
		}
	}
	return out
}
