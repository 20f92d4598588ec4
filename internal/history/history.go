// Package history summarizes completions for charts: a rolling 7-day count
// and an all-time breakdown by completion timing.
package history

import (
	"context"
	"time"

	"github.com/julianstephens/habitline/internal/completion"
	"github.com/julianstephens/habitline/internal/constants"
	"github.com/julianstephens/habitline/internal/models"
	"github.com/julianstephens/habitline/internal/utils"
)

// Store is the slice of storage.Provider the aggregator reads from.
type Store interface {
	QueryByCompletedWindow(ctx context.Context, owner string, start, end time.Time) ([]models.Habit, error)
	QueryAll(ctx context.Context, owner string) ([]models.Habit, error)
}

// Entry is one calendar day of the rolling window.
type Entry struct {
	Day   string `json:"day"` // YYYY-MM-DD in the reference zone
	Label string `json:"day_label"`
	Count int    `json:"completed_count"`
}

// RateSummary counts habits by completion timing. Total includes pending and
// late habits.
type RateSummary struct {
	OnTime  int `json:"on_time"`
	Early   int `json:"early"`
	Late    int `json:"late"`
	Pending int `json:"pending"`
	Total   int `json:"total"`
}

// OnTimeRate is OnTime/Total, or 0 when there are no habits.
func (s RateSummary) OnTimeRate() float64 {
	return ratio(s.OnTime, s.Total)
}

// EarlyRate is Early/Total, or 0 when there are no habits.
func (s RateSummary) EarlyRate() float64 {
	return ratio(s.Early, s.Total)
}

func ratio(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}

type Aggregator struct {
	store Store
	loc   *time.Location
}

func NewAggregator(store Store, loc *time.Location) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{store: store, loc: loc}
}

// CompletionHistory returns exactly seven entries, oldest first, ending on
// now's calendar day.
func (a *Aggregator) CompletionHistory(ctx context.Context, owner string, now time.Time) ([]Entry, error) {
	start := utils.LastNDays(constants.HistoryDays, now, a.loc)
	// end is exclusive, so nudge it past now
	habits, err := a.store.QueryByCompletedWindow(ctx, owner, start, now.Add(time.Nanosecond))
	if err != nil {
		return nil, err
	}
	return Bucket(habits, now, a.loc), nil
}

// CompletionRateSummary classifies every habit the owner has.
func (a *Aggregator) CompletionRateSummary(ctx context.Context, owner string, now time.Time) (RateSummary, error) {
	habits, err := a.store.QueryAll(ctx, owner)
	if err != nil {
		return RateSummary{}, err
	}
	return Summarize(habits, now, a.loc), nil
}

// Bucket counts complete habits per calendar day over the seven days ending on
// now's day. Rows outside the window are ignored.
func Bucket(habits []models.Habit, now time.Time, loc *time.Location) []Entry {
	if loc == nil {
		loc = time.UTC
	}
	start := utils.LastNDays(constants.HistoryDays, now, loc)
	labels := utils.WeekdayLabels(now, loc)

	entries := make([]Entry, constants.HistoryDays)
	index := make(map[string]int, constants.HistoryDays)
	for i := range entries {
		day := utils.DayKey(time.Date(start.Year(), start.Month(), start.Day()+i, 12, 0, 0, 0, loc), loc)
		entries[i] = Entry{Day: day, Label: labels[i]}
		index[day] = i
	}

	for _, h := range habits {
		if !h.IsComplete || h.CompletedAt == nil || h.CompletedAt.After(now) {
			continue
		}
		if i, ok := index[utils.DayKey(*h.CompletedAt, loc)]; ok {
			entries[i].Count++
		}
	}
	return entries
}

// Summarize classifies habits at now and tallies them.
func Summarize(habits []models.Habit, now time.Time, loc *time.Location) RateSummary {
	var s RateSummary
	for _, h := range habits {
		switch completion.Classify(h, now, loc) {
		case completion.OnTime:
			s.OnTime++
		case completion.Early:
			s.Early++
		case completion.Late:
			s.Late++
		default:
			s.Pending++
		}
		s.Total++
	}
	return s
}
