package streak

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julianstephens/habitline/internal/constants"
	apperrors "github.com/julianstephens/habitline/internal/errors"
	"github.com/julianstephens/habitline/internal/models"
	"github.com/julianstephens/habitline/internal/recurrence"
	"github.com/julianstephens/habitline/internal/storage"
	"github.com/julianstephens/habitline/internal/storage/sqlite"
)

func newYork(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return loc
}

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store := sqlite.NewStore(filepath.Join(t.TempDir(), "habitline.db"))
	require.NoError(t, store.Init(context.Background()))
	t.Cleanup(func() { store.Close() })
	return store
}

func addHabit(t *testing.T, store Store, owner, localDue string, rec constants.RecurrenceType) models.Habit {
	t.Helper()
	h, err := recurrence.NewExpander(store).Create(context.Background(), owner, recurrence.Request{
		Title:       "habit " + localDue,
		Description: "desc",
		LocalDue:    localDue,
		Timezone:    "America/New_York",
		Recurrence:  rec,
	})
	require.NoError(t, err)
	return h
}

func complete(t *testing.T, store *sqlite.Store, h models.Habit) {
	t.Helper()
	at := h.DueAt.Add(-time.Hour)
	require.NoError(t, store.UpdateCompletion(context.Background(), h.OwnerID, h.ID, true, &at))
}

func TestNext(t *testing.T) {
	done := models.Habit{IsComplete: true}
	open := models.Habit{}

	tests := []struct {
		name        string
		current     int
		due         []models.Habit
		wantNext    int
		wantChanged bool
	}{
		{name: "no habits due", current: 4, due: nil, wantNext: 4, wantChanged: false},
		{name: "all complete", current: 4, due: []models.Habit{done, done, done}, wantNext: 5, wantChanged: true},
		{name: "one incomplete", current: 4, due: []models.Habit{done, open}, wantNext: 0, wantChanged: true},
		{name: "reset at zero", current: 0, due: []models.Habit{open}, wantNext: 0, wantChanged: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, changed := Next(tt.current, tt.due)
			assert.Equal(t, tt.wantNext, next)
			assert.Equal(t, tt.wantChanged, changed)
		})
	}
}

func TestWindowSpansReferenceDay(t *testing.T) {
	ny := newYork(t)
	e := NewEngine(nil, ny)

	day, start, end := e.Window(time.Date(2024, 3, 11, 0, 30, 0, 0, ny))
	assert.Equal(t, "2024-03-10", day)
	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, ny), start)
	assert.Equal(t, 23*time.Hour, end.Sub(start), "spring-forward day is 23 hours")
}

func TestStartAndGet(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(newStore(t), time.UTC)

	st, err := e.Get(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, st.Initialized)

	created, err := e.Start(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = e.Start(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, created, "second start is a no-op")

	st, err = e.Get(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, st.Initialized)
	assert.Equal(t, 0, st.Count)

	_, err = e.Start(ctx, "")
	assert.True(t, apperrors.IsValidation(err))
}

func TestRunDailyIncrementsWhenAllComplete(t *testing.T) {
	ctx := context.Background()
	ny := newYork(t)
	store := newStore(t)

	for _, due := range []string{"2024-03-10T08:00", "2024-03-10T12:00", "2024-03-10T20:00"} {
		complete(t, store, addHabit(t, store, "alice", due, constants.RecurrenceWeekly))
	}

	metrics := NewMetrics()
	e := NewEngine(store, ny, WithMetrics(metrics))
	_, err := e.Start(ctx, "alice")
	require.NoError(t, err)

	now := time.Date(2024, 3, 11, 9, 0, 0, 0, ny)
	report, err := e.RunDaily(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-10", report.Day)
	assert.Equal(t, 1, report.Owners)
	assert.Equal(t, 1, report.Incremented)
	assert.NotEmpty(t, report.RunID)

	st, err := e.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, st.Count)

	// same day again changes nothing
	report, err = e.RunDaily(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, report.AlreadyRun)
	assert.Equal(t, 0, report.Incremented)

	st, err = e.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, st.Count)

	runs, err := e.Runs(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, constants.StreakOutcomeIncremented, runs[0].Outcome)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.transitions.WithLabelValues("incremented")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.transitions.WithLabelValues("already_run")))
	assert.Greater(t, testutil.ToFloat64(metrics.lastSuccess), float64(0))
}

func TestRunDailyResetsOnMaterializedMiss(t *testing.T) {
	ctx := context.Background()
	ny := newYork(t)
	store := newStore(t)

	parent := addHabit(t, store, "alice", "2024-03-09T08:00", constants.RecurrenceDaily)
	complete(t, store, parent)

	e := NewEngine(store, ny)
	_, err := e.Start(ctx, "alice")
	require.NoError(t, err)

	report, err := e.RunDaily(ctx, time.Date(2024, 3, 10, 9, 0, 0, 0, ny))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Incremented)

	// the Mar 10 occurrence is created by the run itself and left incomplete
	report, err = e.RunDaily(ctx, time.Date(2024, 3, 11, 9, 0, 0, 0, ny))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Materialized)
	assert.Equal(t, 1, report.Reset)

	st, err := e.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 0, st.Count)
}

func TestRunDailyResetsWhenOneOfThreeMissed(t *testing.T) {
	ctx := context.Background()
	ny := newYork(t)
	store := newStore(t)

	complete(t, store, addHabit(t, store, "alice", "2024-03-09T08:00", constants.RecurrenceWeekly))

	e := NewEngine(store, ny)
	_, err := e.Start(ctx, "alice")
	require.NoError(t, err)

	report, err := e.RunDaily(ctx, time.Date(2024, 3, 10, 9, 0, 0, 0, ny))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Incremented)

	complete(t, store, addHabit(t, store, "alice", "2024-03-10T08:00", constants.RecurrenceWeekly))
	complete(t, store, addHabit(t, store, "alice", "2024-03-10T12:00", constants.RecurrenceWeekly))
	addHabit(t, store, "alice", "2024-03-10T18:00", constants.RecurrenceWeekly)

	report, err = e.RunDaily(ctx, time.Date(2024, 3, 11, 9, 0, 0, 0, ny))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Reset)
	assert.Equal(t, 0, report.Incremented)

	st, err := e.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 0, st.Count)

	runs, err := e.Runs(ctx, "alice", 10)
	require.NoError(t, err)
	var found bool
	for _, r := range runs {
		if r.RunDay == "2024-03-10" {
			found = true
			assert.Equal(t, constants.StreakOutcomeReset, r.Outcome)
			assert.Equal(t, 1, r.Previous)
			assert.Equal(t, 0, r.Next)
		}
	}
	assert.True(t, found, "no ledger row for 2024-03-10")
}

func TestRunDailyWithoutDueHabits(t *testing.T) {
	ctx := context.Background()
	ny := newYork(t)
	store := newStore(t)

	addHabit(t, store, "alice", "2024-03-20T08:00", constants.RecurrenceWeekly)
	addHabit(t, store, "bob", "2024-03-10T08:00", constants.RecurrenceWeekly)

	e := NewEngine(store, ny)
	_, err := e.Start(ctx, "alice")
	require.NoError(t, err)

	report, err := e.RunDaily(ctx, time.Date(2024, 3, 11, 9, 0, 0, 0, ny))
	require.NoError(t, err)
	assert.Equal(t, 2, report.Owners)
	assert.Equal(t, 1, report.Unchanged)
	assert.Equal(t, 1, report.Uninitialized, "bob never started a streak")

	runs, err := e.Runs(ctx, "alice", 0)
	require.NoError(t, err)
	assert.Empty(t, runs)

	bob, err := e.Get(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, bob.Initialized)
}

// flakyStore fails ApplyStreakRun for one owner.
type flakyStore struct {
	Store
	owner string
	err   error
}

func (s *flakyStore) ApplyStreakRun(ctx context.Context, run models.StreakRun, decide storage.StreakDecider) (storage.StreakRunResult, error) {
	if run.OwnerID == s.owner {
		return storage.StreakRunResult{}, s.err
	}
	return s.Store.ApplyStreakRun(ctx, run, decide)
}

func TestRunDailySkipsFailingOwner(t *testing.T) {
	ctx := context.Background()
	ny := newYork(t)
	store := newStore(t)

	complete(t, store, addHabit(t, store, "alice", "2024-03-10T08:00", constants.RecurrenceWeekly))
	complete(t, store, addHabit(t, store, "bob", "2024-03-10T08:00", constants.RecurrenceWeekly))

	metrics := NewMetrics()
	flaky := &flakyStore{Store: store, owner: "alice", err: apperrors.Transient("apply streak run", context.DeadlineExceeded)}
	e := NewEngine(flaky, ny, WithMetrics(metrics))
	for _, owner := range []string{"alice", "bob"} {
		_, err := e.Start(ctx, owner)
		require.NoError(t, err)
	}

	report, err := e.RunDaily(ctx, time.Date(2024, 3, 11, 9, 0, 0, 0, ny))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Retryable)
	assert.Equal(t, 1, report.Incremented)

	bob, err := e.Get(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, bob.Count)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.failures.WithLabelValues("true")))

	// once the failure clears, a rerun picks up the skipped owner only
	report, err = NewEngine(store, ny).RunDaily(ctx, time.Date(2024, 3, 11, 10, 0, 0, 0, ny))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Incremented)
	assert.Equal(t, 1, report.AlreadyRun)
}

type fakeLocker struct {
	held     bool
	err      error
	released []string
}

func (l *fakeLocker) TryLock(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	if l.err != nil {
		return "", false, l.err
	}
	if l.held {
		return "", false, nil
	}
	return "token-" + key, true, nil
}

func (l *fakeLocker) Release(_ context.Context, key, token string) error {
	l.released = append(l.released, key+"="+token)
	return nil
}

func TestRunDailyLocking(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)
	store := newStore(t)

	t.Run("held elsewhere", func(t *testing.T) {
		_, err := NewEngine(store, time.UTC, WithLocker(&fakeLocker{held: true})).RunDaily(ctx, now)
		assert.ErrorIs(t, err, ErrRunInProgress)
	})

	t.Run("lock backend down", func(t *testing.T) {
		_, err := NewEngine(store, time.UTC, WithLocker(&fakeLocker{err: errors.New("connection refused")})).RunDaily(ctx, now)
		assert.True(t, apperrors.IsTransient(err))
	})

	t.Run("acquired and released", func(t *testing.T) {
		l := &fakeLocker{}
		_, err := NewEngine(store, time.UTC, WithLocker(l)).RunDaily(ctx, now)
		require.NoError(t, err)
		key := constants.StreakLockKeyPrefix + "2024-03-10"
		assert.Equal(t, []string{key + "=token-" + key}, l.released)
	})
}

func TestNewRedisLockerNilClient(t *testing.T) {
	assert.Nil(t, NewRedisLocker(nil))

	var l *RedisLocker
	_, _, err := l.TryLock(context.Background(), "k", time.Second)
	assert.Error(t, err)
	assert.NoError(t, l.Release(context.Background(), "k", "t"))
}

func TestPusherSendsRegistry(t *testing.T) {
	var path, body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	metrics := NewMetrics()
	metrics.observe(Report{Incremented: 2, Duration: time.Second})

	p := NewPusher(srv.URL, constants.StreakMetricsJob, map[string]string{"instance": "cli", "": "skipped"})
	require.NoError(t, p.Push(context.Background(), metrics.Registry))
	assert.True(t, strings.HasPrefix(path, "/metrics/job/"+constants.StreakMetricsJob))
	assert.Contains(t, path, "/instance/cli")
	assert.NotEmpty(t, body)

	assert.Error(t, NewPusher("", "job", nil).Push(context.Background(), metrics.Registry))
	var nilPusher *Pusher
	assert.NoError(t, nilPusher.Push(context.Background(), metrics.Registry))
}
