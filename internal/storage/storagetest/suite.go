// Package storagetest holds the behavioural contract every storage.Provider
// must satisfy. Store packages run it against a fresh database.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julianstephens/habitline/internal/completion"
	"github.com/julianstephens/habitline/internal/constants"
	apperrors "github.com/julianstephens/habitline/internal/errors"
	"github.com/julianstephens/habitline/internal/models"
	"github.com/julianstephens/habitline/internal/storage"
)

// Factory returns an initialized, empty provider. Cleanup is the caller's job.
type Factory func(t *testing.T) storage.Provider

var base = time.Date(2024, 3, 10, 22, 0, 0, 0, time.UTC)

// NewParent returns an unsaved daily parent habit due at due.
func NewParent(owner, title string, due time.Time) models.Habit {
	return models.Habit{
		OwnerID:        owner,
		Title:          title,
		Description:    title + " description",
		DueAt:          due,
		Timezone:       "America/New_York",
		RecurrenceType: constants.RecurrenceDaily,
	}
}

// NewChild returns an unsaved occurrence of parent due at due.
func NewChild(parent models.Habit, due time.Time) models.Habit {
	c := parent
	c.ID = ""
	c.DueAt = due
	c.CreatedAt = time.Time{}
	c.ExpandedThrough = nil
	c.IsComplete = false
	c.CompletedAt = nil
	return c
}

func ids(habits []models.Habit) []string {
	out := make([]string, 0, len(habits))
	for _, h := range habits {
		out = append(out, h.ID)
	}
	return out
}

// Run executes the full contract against providers built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("Settings", func(t *testing.T) { testSettings(t, newStore(t)) })
	t.Run("InsertAndGet", func(t *testing.T) { testInsertAndGet(t, newStore(t)) })
	t.Run("OwnerScoping", func(t *testing.T) { testOwnerScoping(t, newStore(t)) })
	t.Run("Completion", func(t *testing.T) { testCompletion(t, newStore(t)) })
	t.Run("CompletionStampedOnce", func(t *testing.T) { testCompletionStampedOnce(t, newStore(t)) })
	t.Run("UpdateText", func(t *testing.T) { testUpdateText(t, newStore(t)) })
	t.Run("CascadeDelete", func(t *testing.T) { testCascadeDelete(t, newStore(t)) })
	t.Run("DeleteOccurrence", func(t *testing.T) { testDeleteOccurrence(t, newStore(t)) })
	t.Run("Windows", func(t *testing.T) { testWindows(t, newStore(t)) })
	t.Run("AppendOccurrences", func(t *testing.T) { testAppendOccurrences(t, newStore(t)) })
	t.Run("StreakLifecycle", func(t *testing.T) { testStreakLifecycle(t, newStore(t)) })
	t.Run("ApplyStreakRun", func(t *testing.T) { testApplyStreakRun(t, newStore(t)) })
	t.Run("Owners", func(t *testing.T) { testOwners(t, newStore(t)) })
}

func testSettings(t *testing.T, store storage.Provider) {
	ctx := context.Background()

	settings, err := store.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, constants.DefaultTimezone, settings.Timezone)

	require.NoError(t, store.SaveSettings(ctx, models.Settings{Timezone: "America/Chicago"}))
	settings, err = store.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "America/Chicago", settings.Timezone)
}

func testInsertAndGet(t *testing.T, store storage.Provider) {
	ctx := context.Background()

	created, err := store.InsertHabit(ctx, NewParent("alice", "Read", base))
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())
	assert.True(t, created.IsParent())

	got, err := store.GetHabit(ctx, "alice", created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "Read", got.Title)
	assert.True(t, base.Equal(got.DueAt))
	assert.Equal(t, constants.RecurrenceDaily, got.RecurrenceType)
	assert.Equal(t, "America/New_York", got.Timezone)
	assert.Nil(t, got.CompletedAt)

	_, err = store.InsertHabit(ctx, models.Habit{OwnerID: "alice", Description: "x", DueAt: base})
	assert.True(t, apperrors.IsValidation(err), "empty title must be rejected, got %v", err)
}

func testOwnerScoping(t *testing.T, store storage.Provider) {
	ctx := context.Background()

	h, err := store.InsertHabit(ctx, NewParent("alice", "Run", base))
	require.NoError(t, err)

	_, err = store.GetHabit(ctx, "bob", h.ID)
	assert.True(t, apperrors.IsNotFound(err), "expected not found, got %v", err)

	err = store.UpdateCompletion(ctx, "bob", h.ID, true, &base)
	assert.True(t, apperrors.IsNotFound(err), "expected not found, got %v", err)

	err = store.DeleteByParent(ctx, "bob", h.ID)
	assert.True(t, apperrors.IsNotFound(err), "expected not found, got %v", err)

	rows, err := store.QueryByDueWindow(ctx, "bob", base.Add(-time.Hour), base.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = store.GetHabit(ctx, "alice", "no-such-id")
	assert.True(t, apperrors.IsNotFound(err), "expected not found, got %v", err)
}

func testCompletion(t *testing.T, store storage.Provider) {
	ctx := context.Background()

	h, err := store.InsertHabit(ctx, NewParent("alice", "Stretch", base))
	require.NoError(t, err)

	at := base.Add(-time.Hour)
	require.NoError(t, store.UpdateCompletion(ctx, "alice", h.ID, true, &at))
	got, err := store.GetHabit(ctx, "alice", h.ID)
	require.NoError(t, err)
	assert.True(t, got.IsComplete)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, at.Equal(*got.CompletedAt))
	assert.True(t, base.Equal(got.DueAt), "completion must not move the due date")

	// clearing ignores any supplied timestamp
	require.NoError(t, store.UpdateCompletion(ctx, "alice", h.ID, false, &at))
	got, err = store.GetHabit(ctx, "alice", h.ID)
	require.NoError(t, err)
	assert.False(t, got.IsComplete)
	assert.Nil(t, got.CompletedAt)

	err = store.UpdateCompletion(ctx, "alice", h.ID, true, nil)
	assert.True(t, apperrors.IsValidation(err), "expected validation error, got %v", err)
}

func testCompletionStampedOnce(t *testing.T, store storage.Provider) {
	ctx := context.Background()

	h, err := store.InsertHabit(ctx, NewParent("alice", "Stretch", base))
	require.NoError(t, err)

	first := base.Add(-time.Hour)
	require.NoError(t, store.UpdateCompletion(ctx, "alice", h.ID, true, &first))

	// marking it done again after the due time must not make it late
	again := base.Add(2 * time.Hour)
	require.NoError(t, store.UpdateCompletion(ctx, "alice", h.ID, true, &again))
	got, err := store.GetHabit(ctx, "alice", h.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, first.Equal(*got.CompletedAt), "completed_date moved to %v", got.CompletedAt)
	assert.Equal(t, completion.OnTime, completion.Classify(got, again, time.UTC))

	// a fresh false -> true transition stamps the new time
	require.NoError(t, store.UpdateCompletion(ctx, "alice", h.ID, false, nil))
	require.NoError(t, store.UpdateCompletion(ctx, "alice", h.ID, true, &again))
	got, err = store.GetHabit(ctx, "alice", h.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, again.Equal(*got.CompletedAt))
	assert.Equal(t, completion.Late, completion.Classify(got, again, time.UTC))
}

func testUpdateText(t *testing.T, store storage.Provider) {
	ctx := context.Background()

	parent, err := store.InsertHabit(ctx, NewParent("alice", "Old", base))
	require.NoError(t, err)
	require.NoError(t, store.AppendOccurrences(ctx, "alice", parent.ID,
		[]models.Habit{NewChild(parent, base.AddDate(0, 0, 1))}, base.AddDate(0, 0, 1)))

	require.NoError(t, store.UpdateText(ctx, "alice", parent.ID, "New", "New description"))
	got, err := store.GetHabit(ctx, "alice", parent.ID)
	require.NoError(t, err)
	assert.Equal(t, "New", got.Title)
	assert.Equal(t, "New description", got.Description)

	children, err := store.QueryByDueWindow(ctx, "alice", base.Add(time.Hour), base.AddDate(0, 0, 2))
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "Old", children[0].Title, "child rows keep their stored text")

	err = store.UpdateText(ctx, "alice", children[0].ID, "x", "y")
	assert.True(t, apperrors.IsNotFound(err), "text edits apply to parents only, got %v", err)
}

func testCascadeDelete(t *testing.T, store storage.Provider) {
	ctx := context.Background()

	parent, err := store.InsertHabit(ctx, NewParent("alice", "Water", base))
	require.NoError(t, err)
	other, err := store.InsertHabit(ctx, NewParent("alice", "Walk", base))
	require.NoError(t, err)

	children := []models.Habit{
		NewChild(parent, base.AddDate(0, 0, 1)),
		NewChild(parent, base.AddDate(0, 0, 2)),
	}
	require.NoError(t, store.AppendOccurrences(ctx, "alice", parent.ID, children, base.AddDate(0, 0, 2)))

	require.NoError(t, store.DeleteByParent(ctx, "alice", parent.ID))

	all, err := store.QueryAll(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{other.ID}, ids(all))

	err = store.DeleteByParent(ctx, "alice", parent.ID)
	assert.True(t, apperrors.IsNotFound(err), "expected not found, got %v", err)
}

func testDeleteOccurrence(t *testing.T, store storage.Provider) {
	ctx := context.Background()

	parent, err := store.InsertHabit(ctx, NewParent("alice", "Journal", base))
	require.NoError(t, err)
	require.NoError(t, store.AppendOccurrences(ctx, "alice", parent.ID, []models.Habit{
		NewChild(parent, base.AddDate(0, 0, 1)),
		NewChild(parent, base.AddDate(0, 0, 2)),
	}, base.AddDate(0, 0, 2)))

	all, err := store.QueryAll(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, all, 3)
	first := all[1]

	require.NoError(t, store.DeleteOccurrence(ctx, "alice", first.ID))

	all, err = store.QueryAll(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.NotContains(t, ids(all), first.ID)
	assert.Contains(t, ids(all), parent.ID)

	err = store.DeleteOccurrence(ctx, "alice", parent.ID)
	assert.True(t, apperrors.IsNotFound(err), "a parent is not an occurrence, got %v", err)
}

func testWindows(t *testing.T, store storage.Provider) {
	ctx := context.Background()

	early, err := store.InsertHabit(ctx, NewParent("alice", "A", base))
	require.NoError(t, err)
	late, err := store.InsertHabit(ctx, NewParent("alice", "B", base.Add(24*time.Hour)))
	require.NoError(t, err)

	// [start, end) excludes the end instant
	rows, err := store.QueryByDueWindow(ctx, "alice", base, base.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{early.ID}, ids(rows))

	rows, err = store.QueryDueFrom(ctx, "alice", base.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, []string{late.ID}, ids(rows))

	done := base.Add(-2 * time.Hour)
	require.NoError(t, store.UpdateCompletion(ctx, "alice", early.ID, true, &done))

	rows, err = store.QueryByCompletedWindow(ctx, "alice", done, done.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []string{early.ID}, ids(rows))

	rows, err = store.QueryByCompletedWindow(ctx, "alice", done.Add(time.Second), done.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, rows)

	parents, err := store.QueryParents(ctx, "alice")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{early.ID, late.ID}, ids(parents))
}

func testAppendOccurrences(t *testing.T, store storage.Provider) {
	ctx := context.Background()

	parent, err := store.InsertHabit(ctx, NewParent("alice", "Meditate", base))
	require.NoError(t, err)

	day1 := base.AddDate(0, 0, 1)
	require.NoError(t, store.AppendOccurrences(ctx, "alice", parent.ID, []models.Habit{NewChild(parent, day1)}, day1))
	// same due date again is skipped
	require.NoError(t, store.AppendOccurrences(ctx, "alice", parent.ID, []models.Habit{NewChild(parent, day1)}, day1))

	all, err := store.QueryAll(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, all, 2)
	child := all[1]
	require.NotNil(t, child.ParentID)
	assert.Equal(t, parent.ID, *child.ParentID)
	assert.Equal(t, "alice", child.OwnerID)

	got, err := store.GetHabit(ctx, "alice", parent.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ExpandedThrough)
	assert.True(t, day1.Equal(*got.ExpandedThrough))

	// expanded_through never moves backwards
	require.NoError(t, store.AppendOccurrences(ctx, "alice", parent.ID, nil, base))
	got, err = store.GetHabit(ctx, "alice", parent.ID)
	require.NoError(t, err)
	assert.True(t, day1.Equal(*got.ExpandedThrough))

	err = store.AppendOccurrences(ctx, "bob", parent.ID, nil, day1)
	assert.True(t, apperrors.IsNotFound(err), "expected not found, got %v", err)
}

func testStreakLifecycle(t *testing.T, store storage.Provider) {
	ctx := context.Background()

	_, err := store.GetStreak(ctx, "alice")
	assert.True(t, apperrors.IsNotFound(err), "uninitialized streak must read as not found, got %v", err)

	created, err := store.InsertStreakIfAbsent(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = store.InsertStreakIfAbsent(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, created)

	st, err := store.GetStreak(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 0, st.Count)
	assert.Equal(t, "alice", st.OwnerID)
}

func allComplete(current int, due []models.Habit) (int, bool) {
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

func testApplyStreakRun(t *testing.T, store storage.Provider) {
	ctx := context.Background()

	start := time.Date(2024, 3, 10, 5, 0, 0, 0, time.UTC)
	run := models.StreakRun{OwnerID: "alice", RunDay: "2024-03-10", WindowStart: start, WindowEnd: start.Add(24 * time.Hour)}

	for i := 0; i < 3; i++ {
		h, err := store.InsertHabit(ctx, NewParent("alice", "H", start.Add(time.Duration(i+1)*time.Hour)))
		require.NoError(t, err)
		at := h.DueAt.Add(-time.Minute)
		require.NoError(t, store.UpdateCompletion(ctx, "alice", h.ID, true, &at))
	}

	// no streak row: untouched and no ledger entry
	res, err := store.ApplyStreakRun(ctx, run, allComplete)
	require.NoError(t, err)
	assert.False(t, res.Initialized)
	assert.False(t, res.Applied)
	runs, err := store.ListStreakRuns(ctx, "alice", 10)
	require.NoError(t, err)
	assert.Empty(t, runs)

	_, err = store.InsertStreakIfAbsent(ctx, "alice")
	require.NoError(t, err)

	res, err = store.ApplyStreakRun(ctx, run, allComplete)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, 3, res.DueCount)
	assert.Equal(t, 1, res.Next)
	assert.Equal(t, constants.StreakOutcomeIncremented, res.Outcome)

	// same day again is a no-op
	res, err = store.ApplyStreakRun(ctx, run, allComplete)
	require.NoError(t, err)
	assert.True(t, res.AlreadyApplied)
	assert.False(t, res.Applied)

	st, err := store.GetStreak(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, st.Count)

	runs, err = store.ListStreakRuns(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "2024-03-10", runs[0].RunDay)
	assert.Equal(t, 0, runs[0].Previous)
	assert.Equal(t, 1, runs[0].Next)

	// empty window on the next day leaves the counter and ledger alone
	empty := models.StreakRun{OwnerID: "alice", RunDay: "2024-03-11", WindowStart: run.WindowEnd, WindowEnd: run.WindowEnd.Add(24 * time.Hour)}
	res, err = store.ApplyStreakRun(ctx, empty, allComplete)
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, 0, res.DueCount)

	st, err = store.GetStreak(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, st.Count)

	_, err = store.ApplyStreakRun(ctx, models.StreakRun{OwnerID: "alice", RunDay: "bad"}, allComplete)
	assert.True(t, apperrors.IsValidation(err), "expected validation error, got %v", err)
}

func testOwners(t *testing.T, store storage.Provider) {
	ctx := context.Background()

	_, err := store.InsertHabit(ctx, NewParent("carol", "A", base))
	require.NoError(t, err)
	_, err = store.InsertHabit(ctx, NewParent("alice", "B", base.Add(48*time.Hour)))
	require.NoError(t, err)

	owners, err := store.OwnersWithParents(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "carol"}, owners)
}
