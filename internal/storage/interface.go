package storage

import (
	"context"
	"time"

	"github.com/julianstephens/habitline/internal/models"
)

// StreakDecider computes the next streak value from the current count and a
// snapshot of the owner's habits due in the run window. changed=false leaves
// the counter and the run ledger untouched.
type StreakDecider func(current int, due []models.Habit) (next int, changed bool)

// StreakRunResult reports what ApplyStreakRun did for one owner.
type StreakRunResult struct {
	AlreadyApplied bool // a ledger row for (owner, run day) existed
	Initialized    bool // the owner has a streak row
	Applied        bool // the counter was written
	DueCount       int
	Previous       int
	Next           int
	Outcome        string
}

// Provider is the persistence contract. Every query is scoped by owner and
// every method may fail with a typed error from internal/errors.
type Provider interface {
	// Lifecycle
	Init(ctx context.Context) error
	Load(ctx context.Context) error
	Close() error

	// Settings
	GetSettings(ctx context.Context) (models.Settings, error)
	SaveSettings(ctx context.Context, settings models.Settings) error

	// Habits
	InsertHabit(ctx context.Context, h models.Habit) (models.Habit, error)
	GetHabit(ctx context.Context, owner, id string) (models.Habit, error)
	UpdateCompletion(ctx context.Context, owner, id string, isComplete bool, completedAt *time.Time) error
	// UpdateText applies to the parent record only.
	UpdateText(ctx context.Context, owner, parentID, title, description string) error
	// DeleteByParent removes a parent and all of its occurrences atomically.
	DeleteByParent(ctx context.Context, owner, parentID string) error
	// DeleteOccurrence removes a single child occurrence.
	DeleteOccurrence(ctx context.Context, owner, id string) error
	// QueryByDueWindow returns habits due in [start, end), ordered by due date.
	QueryByDueWindow(ctx context.Context, owner string, start, end time.Time) ([]models.Habit, error)
	// QueryDueFrom returns habits due at or after start, ordered by due date.
	QueryDueFrom(ctx context.Context, owner string, start time.Time) ([]models.Habit, error)
	// QueryByCompletedWindow returns complete habits with completedAt in [start, end).
	QueryByCompletedWindow(ctx context.Context, owner string, start, end time.Time) ([]models.Habit, error)
	QueryAll(ctx context.Context, owner string) ([]models.Habit, error)
	QueryParents(ctx context.Context, owner string) ([]models.Habit, error)
	// AppendOccurrences inserts children of parentID and advances the parent's
	// expanded_through to through, atomically. Rows already present for the
	// same (parent, due date) are skipped.
	AppendOccurrences(ctx context.Context, owner, parentID string, children []models.Habit, through time.Time) error

	// Streaks
	// InsertStreakIfAbsent creates a zero streak. created=false when a row exists.
	InsertStreakIfAbsent(ctx context.Context, owner string) (created bool, err error)
	GetStreak(ctx context.Context, owner string) (models.Streak, error)
	OwnersWithParents(ctx context.Context) ([]string, error)
	// ApplyStreakRun records the run in the ledger, snapshots the habits due in
	// the run window and applies decide, all in one transaction.
	ApplyStreakRun(ctx context.Context, run models.StreakRun, decide StreakDecider) (StreakRunResult, error)
	ListStreakRuns(ctx context.Context, owner string, limit int) ([]models.StreakRunRecord, error)

	// Utils
	GetConfigPath() string
}
