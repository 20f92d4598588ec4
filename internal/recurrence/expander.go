// Package recurrence turns habit requests into stored parents and appends
// daily or weekly occurrences as their due window is reached.
package recurrence

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/julianstephens/habitline/internal/constants"
	apperrors "github.com/julianstephens/habitline/internal/errors"
	"github.com/julianstephens/habitline/internal/logger"
	"github.com/julianstephens/habitline/internal/models"
	"github.com/julianstephens/habitline/internal/utils"
)

// Store is the slice of storage.Provider the expander needs.
type Store interface {
	InsertHabit(ctx context.Context, h models.Habit) (models.Habit, error)
	QueryParents(ctx context.Context, owner string) ([]models.Habit, error)
	AppendOccurrences(ctx context.Context, owner, parentID string, children []models.Habit, through time.Time) error
}

// Request is a user-submitted habit.
type Request struct {
	Title       string
	Description string
	// LocalDue is a wall-clock date-time in Timezone, e.g. 2024-03-10T17:00.
	// A bare date means 23:59 that day.
	LocalDue   string
	Timezone   string
	Recurrence constants.RecurrenceType
}

type Expander struct {
	store Store
}

func NewExpander(store Store) *Expander {
	return &Expander{store: store}
}

// Validate checks the request and resolves its due instant in UTC.
func (r Request) Validate() (time.Time, error) {
	if strings.TrimSpace(r.Title) == "" {
		return time.Time{}, apperrors.Invalid("title", "must not be empty")
	}
	if strings.TrimSpace(r.Description) == "" {
		return time.Time{}, apperrors.Invalid("description", "must not be empty")
	}
	// The zone is stored on the habit, so it must mean the same on every host.
	if tz := strings.TrimSpace(r.Timezone); tz == "" || tz == "Local" {
		return time.Time{}, apperrors.Invalid("timezone", "must be an IANA zone name, got "+strconv.Quote(r.Timezone))
	}
	if utils.StepDays(r.Recurrence) == 0 {
		return time.Time{}, apperrors.Invalid("recurrence", "must be daily or weekly")
	}

	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return time.Time{}, apperrors.Invalid("timezone", "unknown IANA zone "+r.Timezone)
	}
	due, err := utils.ParseLocalDateTime(strings.TrimSpace(r.LocalDue), loc)
	if err != nil {
		return time.Time{}, apperrors.Invalid("due date", err.Error())
	}
	return due.UTC(), nil
}

// Create validates req and stores it as a new parent habit. It performs
// exactly one store write and creates no future occurrences.
func (e *Expander) Create(ctx context.Context, owner string, req Request) (models.Habit, error) {
	if strings.TrimSpace(owner) == "" {
		return models.Habit{}, apperrors.Invalid("owner", "must not be empty")
	}
	due, err := req.Validate()
	if err != nil {
		return models.Habit{}, err
	}

	h, err := e.store.InsertHabit(ctx, models.Habit{
		OwnerID:        owner,
		Title:          strings.TrimSpace(req.Title),
		Description:    strings.TrimSpace(req.Description),
		DueAt:          due,
		Timezone:       req.Timezone,
		RecurrenceType: req.Recurrence,
	})
	if err != nil {
		return models.Habit{}, err
	}

	logger.Debug("Created habit", "owner", owner, "id", h.ID, "due", h.DueAt, "recurrence", h.RecurrenceType)
	return h, nil
}

// Pending returns the occurrences of parent due strictly after its last
// materialized occurrence and strictly before through.
func Pending(parent models.Habit, through time.Time) ([]models.Habit, error) {
	loc, err := utils.LoadLocation(parent.Timezone)
	if err != nil {
		return nil, &apperrors.ConsistencyError{HabitID: parent.ID, ParentID: parent.ID, Reason: "stored timezone is invalid: " + parent.Timezone}
	}

	after := parent.DueAt
	if parent.ExpandedThrough != nil && parent.ExpandedThrough.After(after) {
		after = *parent.ExpandedThrough
	}

	dues := utils.OccurrencesBetween(parent.DueAt, parent.RecurrenceType, loc, after, through)
	children := make([]models.Habit, 0, len(dues))
	for _, due := range dues {
		children = append(children, models.Habit{
			OwnerID:        parent.OwnerID,
			Title:          parent.Title,
			Description:    parent.Description,
			DueAt:          due.UTC(),
			Timezone:       parent.Timezone,
			RecurrenceType: parent.RecurrenceType,
		})
	}
	return children, nil
}

// Materialize appends the occurrences of every parent owned by owner that
// fall due before through. It returns how many occurrences were appended.
// Parents removed concurrently and parents with corrupt zones are skipped.
func (e *Expander) Materialize(ctx context.Context, owner string, through time.Time) (int, error) {
	parents, err := e.store.QueryParents(ctx, owner)
	if err != nil {
		return 0, err
	}

	appended := 0
	for _, parent := range parents {
		children, err := Pending(parent, through)
		if err != nil {
			logger.Error("Skipping habit during expansion", "owner", owner, "id", parent.ID, "error", err)
			continue
		}
		if len(children) == 0 {
			continue
		}

		last := children[len(children)-1].DueAt
		if err := e.store.AppendOccurrences(ctx, owner, parent.ID, children, last); err != nil {
			if apperrors.IsNotFound(err) {
				logger.Warn("Habit removed during expansion", "owner", owner, "id", parent.ID)
				continue
			}
			return appended, err
		}
		appended += len(children)
	}

	if appended > 0 {
		logger.Debug("Materialized occurrences", "owner", owner, "count", appended, "through", through)
	}
	return appended, nil
}
