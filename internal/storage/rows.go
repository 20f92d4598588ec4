package storage

import (
	"time"

	"github.com/google/uuid"

	"github.com/julianstephens/habitline/internal/constants"
	apperrors "github.com/julianstephens/habitline/internal/errors"
	"github.com/julianstephens/habitline/internal/models"
)

// EvaluateRun applies decide to a due-window snapshot. An owner without a
// streak row is never changed.
func EvaluateRun(initialized bool, current int, due []models.Habit, decide StreakDecider) StreakRunResult {
	res := StreakRunResult{
		Initialized: initialized,
		DueCount:    len(due),
		Previous:    current,
		Next:        current,
	}
	if !initialized {
		return res
	}

	next, changed := decide(current, due)
	if !changed {
		return res
	}
	res.Applied = true
	res.Next = next
	if next > current {
		res.Outcome = constants.StreakOutcomeIncremented
	} else {
		res.Outcome = constants.StreakOutcomeReset
	}
	return res
}

// ValidateRun checks a run before any store work.
func ValidateRun(run models.StreakRun) error {
	if run.OwnerID == "" {
		return apperrors.Invalid("owner", "must not be empty")
	}
	if _, err := time.Parse(constants.DateFormat, run.RunDay); err != nil {
		return apperrors.Invalid("run day", "expected YYYY-MM-DD")
	}
	if !run.WindowEnd.After(run.WindowStart) {
		return apperrors.Invalid("run window", "end must be after start")
	}
	return nil
}

// PrepareHabit fills store-assigned fields and validates the row invariants.
func PrepareHabit(h models.Habit, now time.Time) (models.Habit, error) {
	if h.OwnerID == "" {
		return h, apperrors.Invalid("owner", "must not be empty")
	}
	if h.Title == "" {
		return h, apperrors.Invalid("title", "must not be empty")
	}
	if h.Description == "" {
		return h, apperrors.Invalid("description", "must not be empty")
	}
	if h.IsComplete != (h.CompletedAt != nil) {
		return h, apperrors.Invalid("completed_date", "must be set exactly when the habit is complete")
	}
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = now.UTC()
	}
	h.DueAt = h.DueAt.UTC()
	return h, nil
}

// PrepareChildren assigns ids and lineage to materialized occurrences.
func PrepareChildren(owner, parentID string, children []models.Habit, now time.Time) ([]models.Habit, error) {
	out := make([]models.Habit, 0, len(children))
	for _, c := range children {
		pid := parentID
		c.ParentID = &pid
		c.OwnerID = owner
		c.ExpandedThrough = nil
		prepared, err := PrepareHabit(c, now)
		if err != nil {
			return nil, err
		}
		out = append(out, prepared)
	}
	return out, nil
}

// CompletionArgs validates a completion toggle and normalizes the timestamp.
func CompletionArgs(isComplete bool, completedAt *time.Time) (*time.Time, error) {
	if !isComplete {
		return nil, nil
	}
	if completedAt == nil {
		return nil, apperrors.Invalid("completed_date", "required when marking complete")
	}
	t := completedAt.UTC()
	return &t, nil
}
