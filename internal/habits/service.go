// Package habits is the read and write surface the CLI works against. Reads
// materialize due occurrences lazily and decorate each row with its
// completion timing.
package habits

import (
	"context"
	"strings"
	"time"

	"github.com/julianstephens/habitline/internal/completion"
	"github.com/julianstephens/habitline/internal/constants"
	apperrors "github.com/julianstephens/habitline/internal/errors"
	"github.com/julianstephens/habitline/internal/logger"
	"github.com/julianstephens/habitline/internal/models"
	"github.com/julianstephens/habitline/internal/recurrence"
	"github.com/julianstephens/habitline/internal/utils"
)

// Store is the slice of storage.Provider the service needs.
type Store interface {
	recurrence.Store
	GetHabit(ctx context.Context, owner, id string) (models.Habit, error)
	UpdateCompletion(ctx context.Context, owner, id string, isComplete bool, completedAt *time.Time) error
	UpdateText(ctx context.Context, owner, parentID, title, description string) error
	DeleteByParent(ctx context.Context, owner, parentID string) error
	DeleteOccurrence(ctx context.Context, owner, id string) error
	QueryByDueWindow(ctx context.Context, owner string, start, end time.Time) ([]models.Habit, error)
	QueryDueFrom(ctx context.Context, owner string, start time.Time) ([]models.Habit, error)
}

// Listing is a classified view. Rows that failed integrity checks are left
// out of Habits and reported in Flagged.
type Listing struct {
	Habits  []completion.Classified
	Flagged []*apperrors.ConsistencyError
}

// Group is a named slice of a listing, such as a month or a weekday.
type Group struct {
	Name   string
	Habits []completion.Classified
}

type Service struct {
	store    Store
	expander *recurrence.Expander
	loc      *time.Location
}

// NewService builds a service whose calendar days are taken in loc.
func NewService(store Store, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		store:    store,
		expander: recurrence.NewExpander(store),
		loc:      loc,
	}
}

// Location is the reference zone.
func (s *Service) Location() *time.Location {
	return s.loc
}

// Create stores a new parent habit.
func (s *Service) Create(ctx context.Context, owner string, req recurrence.Request) (models.Habit, error) {
	return s.expander.Create(ctx, owner, req)
}

// Today lists habits due on now's calendar day.
func (s *Service) Today(ctx context.Context, owner string, now time.Time) (Listing, error) {
	start, end := utils.DayWindow(now, s.loc)
	return s.window(ctx, owner, start, end, now)
}

// Week lists habits due in the Sunday-to-Saturday week containing now.
func (s *Service) Week(ctx context.Context, owner string, now time.Time) (Listing, error) {
	return s.window(ctx, owner, utils.StartOfWeek(now, s.loc), utils.WeekEndExclusive(now, s.loc), now)
}

// ThisWeekByDay is Week grouped by weekday, Sunday first. Every weekday is
// present even when empty.
func (s *Service) ThisWeekByDay(ctx context.Context, owner string, now time.Time) ([]Group, error) {
	l, err := s.Week(ctx, owner, now)
	if err != nil {
		return nil, err
	}
	groups := make([]Group, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		groups[d].Name = d.String()
	}
	for _, h := range l.Habits {
		d := h.DueAt.In(s.loc).Weekday()
		groups[d].Habits = append(groups[d].Habits, h)
	}
	return groups, nil
}

// Upcoming lists habits due from the start of today onwards, grouped by month.
// Recurring habits are materialized a fixed horizon ahead.
func (s *Service) Upcoming(ctx context.Context, owner string, now time.Time) ([]Group, error) {
	start := utils.StartOfDay(now, s.loc)
	s.materialize(ctx, owner, utils.AddDays(start, constants.UpcomingHorizonDays, s.loc))

	rows, err := s.store.QueryDueFrom(ctx, owner, start)
	if err != nil {
		return nil, err
	}
	l, err := s.decorate(ctx, owner, rows, now)
	if err != nil {
		return nil, err
	}

	var groups []Group
	for _, h := range l.Habits {
		name := h.DueAt.In(s.loc).Format("January 2006")
		if len(groups) == 0 || groups[len(groups)-1].Name != name {
			groups = append(groups, Group{Name: name})
		}
		groups[len(groups)-1].Habits = append(groups[len(groups)-1].Habits, h)
	}
	return groups, nil
}

// Parents lists the root of every lineage the owner has.
func (s *Service) Parents(ctx context.Context, owner string) ([]models.Habit, error) {
	return s.store.QueryParents(ctx, owner)
}

// SetComplete marks an occurrence done at now, or clears its completion.
func (s *Service) SetComplete(ctx context.Context, owner, id string, done bool, now time.Time) error {
	var at *time.Time
	if done {
		t := now.UTC()
		at = &t
	}
	return s.store.UpdateCompletion(ctx, owner, id, done, at)
}

// Edit changes the title and description of the lineage id belongs to.
func (s *Service) Edit(ctx context.Context, owner, id, title, description string) (string, error) {
	title = strings.TrimSpace(title)
	description = strings.TrimSpace(description)
	if title == "" {
		return "", apperrors.Invalid("title", "must not be empty")
	}
	if description == "" {
		return "", apperrors.Invalid("description", "must not be empty")
	}

	h, err := s.store.GetHabit(ctx, owner, id)
	if err != nil {
		return "", err
	}
	parentID := h.RootID()
	if err := s.store.UpdateText(ctx, owner, parentID, title, description); err != nil {
		return "", err
	}
	return parentID, nil
}

// Delete removes a whole lineage when id is a parent, or the single
// occurrence when id is a child. It reports whether the lineage went.
func (s *Service) Delete(ctx context.Context, owner, id string) (bool, error) {
	h, err := s.store.GetHabit(ctx, owner, id)
	if err != nil {
		return false, err
	}
	if h.IsParent() {
		return true, s.store.DeleteByParent(ctx, owner, h.ID)
	}
	return false, s.store.DeleteOccurrence(ctx, owner, h.ID)
}

func (s *Service) window(ctx context.Context, owner string, start, end, now time.Time) (Listing, error) {
	s.materialize(ctx, owner, end)

	rows, err := s.store.QueryByDueWindow(ctx, owner, start, end)
	if err != nil {
		return Listing{}, err
	}
	return s.decorate(ctx, owner, rows, now)
}

// materialize failures never block a read; the stored rows are still shown.
func (s *Service) materialize(ctx context.Context, owner string, through time.Time) {
	if _, err := s.expander.Materialize(ctx, owner, through); err != nil {
		logger.Warn("Failed to materialize occurrences", "owner", owner, "through", through, "error", err)
	}
}

func (s *Service) decorate(ctx context.Context, owner string, rows []models.Habit, now time.Time) (Listing, error) {
	parents, err := s.store.QueryParents(ctx, owner)
	if err != nil {
		return Listing{}, err
	}
	byID := make(map[string]models.Habit, len(parents))
	for _, p := range parents {
		byID[p.ID] = p
	}

	l := Listing{Habits: make([]completion.Classified, 0, len(rows))}
	for _, h := range rows {
		if !h.IsParent() {
			p, ok := byID[*h.ParentID]
			if !ok {
				cerr := &apperrors.ConsistencyError{HabitID: h.ID, ParentID: *h.ParentID, Reason: "parent habit is missing"}
				logger.Error("Omitting habit", "owner", owner, "error", cerr)
				l.Flagged = append(l.Flagged, cerr)
				continue
			}
			h.Title = p.Title
			h.Description = p.Description
		}
		l.Habits = append(l.Habits, completion.Classified{Habit: h, Status: completion.Classify(h, now, s.loc)})
	}
	return l, nil
}
