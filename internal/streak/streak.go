// Package streak maintains the per-user consecutive-day counter and runs the
// daily transition over every owner.
package streak

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/julianstephens/habitline/internal/constants"
	apperrors "github.com/julianstephens/habitline/internal/errors"
	"github.com/julianstephens/habitline/internal/logger"
	"github.com/julianstephens/habitline/internal/models"
	"github.com/julianstephens/habitline/internal/recurrence"
	"github.com/julianstephens/habitline/internal/storage"
	"github.com/julianstephens/habitline/internal/utils"
)

// ErrRunInProgress is returned when another process holds the run lock.
var ErrRunInProgress = errors.New("a streak run is already in progress")

// Store is the slice of storage.Provider the engine needs.
type Store interface {
	recurrence.Store
	InsertStreakIfAbsent(ctx context.Context, owner string) (bool, error)
	GetStreak(ctx context.Context, owner string) (models.Streak, error)
	OwnersWithParents(ctx context.Context) ([]string, error)
	ApplyStreakRun(ctx context.Context, run models.StreakRun, decide storage.StreakDecider) (storage.StreakRunResult, error)
	ListStreakRuns(ctx context.Context, owner string, limit int) ([]models.StreakRunRecord, error)
}

// State is a user's streak. Initialized=false means the streak was never
// started, which is distinct from an active streak of zero.
type State struct {
	Initialized bool
	Count       int
	UpdatedAt   time.Time
}

// Report summarizes one RunDaily invocation.
type Report struct {
	RunID         string
	Day           string
	Owners        int
	Incremented   int
	Reset         int
	Unchanged     int
	AlreadyRun    int
	Uninitialized int
	Failed        int
	Retryable     int // failures that were transient
	Materialized  int
	Duration      time.Duration
}

// Engine runs streak transitions against a store. Calendar days are taken in
// the reference zone.
type Engine struct {
	store    Store
	expander *recurrence.Expander
	loc      *time.Location
	locker   Locker
	metrics  *Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithLocker guards RunDaily with a cross-process lock.
func WithLocker(l Locker) Option {
	return func(e *Engine) { e.locker = l }
}

// WithMetrics records run outcomes.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func NewEngine(store Store, loc *time.Location, opts ...Option) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	e := &Engine{
		store:    store,
		expander: recurrence.NewExpander(store),
		loc:      loc,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Next is the transition rule. No due habits leaves the streak unchanged; all
// due habits complete increments it; anything else resets it to zero.
func Next(current int, due []models.Habit) (int, bool) {
	if len(due) == 0 {
		return current, false
	}
	for _, h := range due {
		if !h.IsComplete {
			return 0, true
		}
	}
	return current + 1, true
}

// Start initializes the owner's streak at zero. Starting an existing streak
// is a no-op.
func (e *Engine) Start(ctx context.Context, owner string) (bool, error) {
	if owner == "" {
		return false, apperrors.Invalid("owner", "must not be empty")
	}
	created, err := e.store.InsertStreakIfAbsent(ctx, owner)
	if err != nil {
		return false, err
	}
	if !created {
		logger.Warn("Streak already started", "owner", owner)
	}
	return created, nil
}

// Get returns the owner's streak state.
func (e *Engine) Get(ctx context.Context, owner string) (State, error) {
	st, err := e.store.GetStreak(ctx, owner)
	if apperrors.IsNotFound(err) {
		return State{}, nil
	}
	if err != nil {
		return State{}, err
	}
	return State{Initialized: true, Count: st.Count, UpdatedAt: st.UpdatedAt}, nil
}

// Runs lists the owner's most recent transitions.
func (e *Engine) Runs(ctx context.Context, owner string, limit int) ([]models.StreakRunRecord, error) {
	return e.store.ListStreakRuns(ctx, owner, limit)
}

// Window returns the run day and its [start, end) window for the calendar day
// before now in the reference zone.
func (e *Engine) Window(now time.Time) (string, time.Time, time.Time) {
	yesterday := utils.AddDays(utils.StartOfDay(now, e.loc), -1, e.loc)
	start, end := utils.DayWindow(yesterday, e.loc)
	return utils.DayKey(start, e.loc), start, end
}

// RunDaily evaluates yesterday for every owner with habits. Failures for one
// owner are logged and do not stop the others. Running twice for the same day
// changes nothing the second time.
func (e *Engine) RunDaily(ctx context.Context, now time.Time) (Report, error) {
	day, start, end := e.Window(now)
	report := Report{RunID: uuid.NewString(), Day: day}
	runLog := logger.With("run", report.RunID, "day", day)

	if e.locker != nil {
		key := constants.StreakLockKeyPrefix + day
		token, ok, err := e.locker.TryLock(ctx, key, constants.StreakLockTTL)
		if err != nil {
			return report, apperrors.Transient("acquire streak lock", err)
		}
		if !ok {
			return report, ErrRunInProgress
		}
		defer func() {
			if err := e.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
				runLog.Warn("Failed to release streak lock", "error", err)
			}
		}()
	}

	began := time.Now()
	defer func() {
		report.Duration = time.Since(began)
		e.metrics.observe(report)
	}()

	owners, err := e.store.OwnersWithParents(ctx)
	if err != nil {
		return report, err
	}
	report.Owners = len(owners)
	runLog.Info("Streak run started", "owners", len(owners), "window_start", start, "window_end", end)

	for _, owner := range owners {
		if err := ctx.Err(); err != nil {
			return report, apperrors.Transient("streak run", err)
		}
		e.runOwner(ctx, runLog, owner, models.StreakRun{OwnerID: owner, RunDay: day, WindowStart: start, WindowEnd: end}, &report)
	}

	runLog.Info("Streak run finished",
		"incremented", report.Incremented, "reset", report.Reset, "unchanged", report.Unchanged,
		"already_run", report.AlreadyRun, "failed", report.Failed, "retryable", report.Retryable)
	return report, nil
}

func (e *Engine) runOwner(ctx context.Context, runLog *log.Logger, owner string, run models.StreakRun, report *Report) {
	fail := func(stage string, err error) {
		report.Failed++
		if apperrors.IsTransient(err) {
			report.Retryable++
		}
		runLog.Error("Streak run failed for owner", "owner", owner, "stage", stage, "retryable", apperrors.IsTransient(err), "error", err)
	}

	n, err := e.expander.Materialize(ctx, owner, run.WindowEnd)
	if err != nil {
		fail("materialize", err)
		return
	}
	report.Materialized += n

	res, err := e.store.ApplyStreakRun(ctx, run, Next)
	if err != nil {
		fail("apply", err)
		return
	}

	switch {
	case res.AlreadyApplied:
		report.AlreadyRun++
	case !res.Initialized:
		report.Uninitialized++
	case !res.Applied:
		report.Unchanged++
	case res.Outcome == constants.StreakOutcomeIncremented:
		report.Incremented++
	default:
		report.Reset++
	}
	runLog.Debug("Streak evaluated", "owner", owner, "due", res.DueCount, "previous", res.Previous, "next", res.Next, "outcome", res.Outcome)
}
