package habits

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julianstephens/habitline/internal/completion"
	"github.com/julianstephens/habitline/internal/constants"
	apperrors "github.com/julianstephens/habitline/internal/errors"
	"github.com/julianstephens/habitline/internal/models"
	"github.com/julianstephens/habitline/internal/recurrence"
	"github.com/julianstephens/habitline/internal/storage/sqlite"
)

func setup(t *testing.T) (*Service, *sqlite.Store, *time.Location) {
	t.Helper()
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	store := sqlite.NewStore(filepath.Join(t.TempDir(), "habitline.db"))
	require.NoError(t, store.Init(context.Background()))
	t.Cleanup(func() { store.Close() })
	return NewService(store, ny), store, ny
}

func create(t *testing.T, svc *Service, title, localDue string, rec constants.RecurrenceType) models.Habit {
	t.Helper()
	h, err := svc.Create(context.Background(), "alice", recurrence.Request{
		Title:       title,
		Description: title + " notes",
		LocalDue:    localDue,
		Timezone:    "America/New_York",
		Recurrence:  rec,
	})
	require.NoError(t, err)
	return h
}

func titles(habits []completion.Classified) []string {
	out := make([]string, 0, len(habits))
	for _, h := range habits {
		out = append(out, h.Title)
	}
	return out
}

func TestTodayMaterializesAndClassifies(t *testing.T) {
	ctx := context.Background()
	svc, _, ny := setup(t)

	create(t, svc, "Stretch", "2024-03-01T07:00", constants.RecurrenceDaily)
	create(t, svc, "Review", "2024-03-13T18:00", constants.RecurrenceWeekly)
	create(t, svc, "Later", "2024-03-14T07:00", constants.RecurrenceWeekly)

	now := time.Date(2024, 3, 13, 12, 0, 0, 0, ny)
	l, err := svc.Today(ctx, "alice", now)
	require.NoError(t, err)
	assert.Empty(t, l.Flagged)
	require.Equal(t, []string{"Stretch", "Review"}, titles(l.Habits))

	assert.Equal(t, completion.Late, l.Habits[0].Status, "07:00 has passed")
	assert.False(t, l.Habits[0].IsParent(), "today's Stretch is a materialized occurrence")
	assert.Equal(t, completion.Pending, l.Habits[1].Status)

	require.NoError(t, svc.SetComplete(ctx, "alice", l.Habits[1].ID, true, now))
	l, err = svc.Today(ctx, "alice", now)
	require.NoError(t, err)
	assert.Equal(t, completion.OnTime, l.Habits[1].Status)
	require.NotNil(t, l.Habits[1].CompletedAt)

	require.NoError(t, svc.SetComplete(ctx, "alice", l.Habits[1].ID, false, now))
	l, err = svc.Today(ctx, "alice", now)
	require.NoError(t, err)
	assert.Nil(t, l.Habits[1].CompletedAt)
}

func TestWeekAndByDay(t *testing.T) {
	ctx := context.Background()
	svc, _, ny := setup(t)

	create(t, svc, "Run", "2024-03-10T07:00", constants.RecurrenceDaily) // Sunday
	create(t, svc, "Call mom", "2024-03-16T19:00", constants.RecurrenceWeekly)

	now := time.Date(2024, 3, 13, 12, 0, 0, 0, ny)
	l, err := svc.Week(ctx, "alice", now)
	require.NoError(t, err)
	assert.Len(t, l.Habits, 8, "seven Runs and one call")

	groups, err := svc.ThisWeekByDay(ctx, "alice", now)
	require.NoError(t, err)
	require.Len(t, groups, 7)
	assert.Equal(t, "Sunday", groups[0].Name)
	assert.Equal(t, []string{"Run"}, titles(groups[0].Habits))
	assert.Equal(t, "Saturday", groups[6].Name)
	assert.Equal(t, []string{"Run", "Call mom"}, titles(groups[6].Habits))
}

func TestUpcomingGroupsByMonth(t *testing.T) {
	ctx := context.Background()
	svc, _, ny := setup(t)

	create(t, svc, "Plan", "2024-03-25T09:00", constants.RecurrenceWeekly)
	create(t, svc, "Old", "2024-03-01T09:00", constants.RecurrenceWeekly)

	now := time.Date(2024, 3, 20, 12, 0, 0, 0, ny)
	groups, err := svc.Upcoming(ctx, "alice", now)
	require.NoError(t, err)
	require.Len(t, groups, 2)

	assert.Equal(t, "March 2024", groups[0].Name)
	assert.Equal(t, []string{"Old", "Plan", "Old"}, titles(groups[0].Habits), "Mar 22, 25 and 29")
	assert.Equal(t, "April 2024", groups[1].Name)
	assert.Equal(t, []string{"Plan", "Old", "Plan", "Old", "Plan"}, titles(groups[1].Habits))

	horizon := now.AddDate(0, 0, constants.UpcomingHorizonDays)
	for _, h := range groups[1].Habits {
		assert.True(t, h.DueAt.Before(horizon))
	}
}

func TestEditResolvesToParent(t *testing.T) {
	ctx := context.Background()
	svc, store, ny := setup(t)

	parent := create(t, svc, "Read", "2024-03-10T21:00", constants.RecurrenceDaily)
	now := time.Date(2024, 3, 12, 12, 0, 0, 0, ny)
	l, err := svc.Today(ctx, "alice", now)
	require.NoError(t, err)
	require.Len(t, l.Habits, 1)
	child := l.Habits[0]

	parentID, err := svc.Edit(ctx, "alice", child.ID, "Read fiction", "one chapter")
	require.NoError(t, err)
	assert.Equal(t, parent.ID, parentID)

	l, err = svc.Today(ctx, "alice", now)
	require.NoError(t, err)
	assert.Equal(t, "Read fiction", l.Habits[0].Title, "children show the parent's text")

	stored, err := store.GetHabit(ctx, "alice", parent.ID)
	require.NoError(t, err)
	assert.Equal(t, "one chapter", stored.Description)

	_, err = svc.Edit(ctx, "alice", child.ID, " ", "x")
	assert.True(t, apperrors.IsValidation(err))
	_, err = svc.Edit(ctx, "bob", child.ID, "mine", "now")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	svc, store, ny := setup(t)

	create(t, svc, "Water", "2024-03-10T09:00", constants.RecurrenceDaily)
	now := time.Date(2024, 3, 13, 12, 0, 0, 0, ny)
	l, err := svc.Week(ctx, "alice", now)
	require.NoError(t, err)
	require.Len(t, l.Habits, 7)

	cascade, err := svc.Delete(ctx, "alice", l.Habits[3].ID)
	require.NoError(t, err)
	assert.False(t, cascade)

	l, err = svc.Week(ctx, "alice", now)
	require.NoError(t, err)
	assert.Len(t, l.Habits, 6, "a deleted occurrence is not regenerated")

	cascade, err = svc.Delete(ctx, "alice", l.Habits[0].ID)
	require.NoError(t, err)
	assert.True(t, cascade)

	all, err := store.QueryAll(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, all)

	_, err = svc.Delete(ctx, "alice", "missing")
	assert.True(t, apperrors.IsNotFound(err))
}

// orphanStore returns a child whose parent is gone alongside real rows.
type orphanStore struct {
	Store
	orphan models.Habit
}

func (s *orphanStore) QueryByDueWindow(ctx context.Context, owner string, start, end time.Time) ([]models.Habit, error) {
	rows, err := s.Store.QueryByDueWindow(ctx, owner, start, end)
	return append(rows, s.orphan), err
}

func TestOrphanIsFlaggedAndOmitted(t *testing.T) {
	ctx := context.Background()
	_, store, ny := setup(t)

	missing := "gone"
	now := time.Date(2024, 3, 13, 12, 0, 0, 0, ny)
	svc := NewService(&orphanStore{Store: store, orphan: models.Habit{ID: "orphan", ParentID: &missing, OwnerID: "alice", DueAt: now}}, ny)
	create(t, svc, "Walk", "2024-03-13T20:00", constants.RecurrenceWeekly)

	l, err := svc.Today(ctx, "alice", now)
	require.NoError(t, err)
	assert.Equal(t, []string{"Walk"}, titles(l.Habits))
	require.Len(t, l.Flagged, 1)
	assert.Equal(t, "orphan", l.Flagged[0].HabitID)
	assert.Equal(t, "gone", l.Flagged[0].ParentID)
}

func TestParents(t *testing.T) {
	ctx := context.Background()
	svc, _, ny := setup(t)

	create(t, svc, "A", "2024-03-10T09:00", constants.RecurrenceDaily)
	create(t, svc, "B", "2024-03-11T09:00", constants.RecurrenceWeekly)
	_, err := svc.Today(ctx, "alice", time.Date(2024, 3, 13, 12, 0, 0, 0, ny))
	require.NoError(t, err)

	parents, err := svc.Parents(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, parents, 2)
	for _, p := range parents {
		assert.True(t, p.IsParent())
	}
}
