// Package completion classifies the timing of a habit occurrence.
package completion

import (
	"time"

	"github.com/julianstephens/habitline/internal/models"
	"github.com/julianstephens/habitline/internal/utils"
)

// Status is one of four mutually exclusive completion timings.
type Status string

const (
	Pending Status = "pending"
	OnTime  Status = "on_time"
	Early   Status = "early"
	Late    Status = "late"
)

// All lists every status in display order.
var All = []Status{Pending, OnTime, Early, Late}

// Label is the human-readable name of the status.
func (s Status) Label() string {
	switch s {
	case OnTime:
		return "on time"
	case Early:
		return "early"
	case Late:
		return "late"
	default:
		return "pending"
	}
}

// Done reports whether the status counts as completed.
func (s Status) Done() bool {
	return s == OnTime || s == Early
}

// Classify returns the completion timing of h at now. Calendar days are taken
// in loc; a nil loc means UTC. All instant comparisons are absolute.
func Classify(h models.Habit, now time.Time, loc *time.Location) Status {
	if loc == nil {
		loc = time.UTC
	}

	if !h.IsComplete {
		if now.After(h.DueAt) {
			return Late
		}
		return Pending
	}

	// A complete row without a timestamp breaks the completion invariant;
	// read it as done at the due instant.
	completedAt := h.DueAt
	if h.CompletedAt != nil {
		completedAt = *h.CompletedAt
	}

	if completedAt.After(h.DueAt) {
		return Late
	}
	if utils.StartOfDay(completedAt, loc).Before(utils.StartOfDay(h.DueAt, loc)) {
		return Early
	}
	return OnTime
}

// Classified pairs a habit with its status.
type Classified struct {
	models.Habit
	Status Status `json:"status"`
}

// ClassifyAll classifies every habit at now.
func ClassifyAll(habits []models.Habit, now time.Time, loc *time.Location) []Classified {
	out := make([]Classified, 0, len(habits))
	for _, h := range habits {
		out = append(out, Classified{Habit: h, Status: Classify(h, now, loc)})
	}
	return out
}
