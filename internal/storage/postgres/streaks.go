package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/julianstephens/habitline/internal/models"
	"github.com/julianstephens/habitline/internal/storage"
)

// isUUID guards uuid columns so a malformed id reads as not found instead of
// a driver syntax error.
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (s *Store) InsertStreakIfAbsent(ctx context.Context, owner string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO streaks (user_uid, streak) VALUES ($1, 0) ON CONFLICT (user_uid) DO NOTHING`, owner)
	if err != nil {
		return false, classify("start streak", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, classify("start streak", err)
	}
	return n > 0, nil
}

func (s *Store) GetStreak(ctx context.Context, owner string) (models.Streak, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var st models.Streak
	err := s.db.QueryRowContext(ctx,
		`SELECT user_uid, streak, created_at, updated_at FROM streaks WHERE user_uid = $1`, owner).
		Scan(&st.OwnerID, &st.Count, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		return models.Streak{}, classify(fmt.Sprintf("streak for %s", owner), err)
	}
	st.CreatedAt = st.CreatedAt.UTC()
	st.UpdatedAt = st.UpdatedAt.UTC()
	return st, nil
}

func (s *Store) queryOwners(ctx context.Context, op, query string, args ...interface{}) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	owners := []string{}
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, classify(op, err)
		}
		owners = append(owners, owner)
	}
	return owners, classify(op, rows.Err())
}

func (s *Store) OwnersWithParents(ctx context.Context) ([]string, error) {
	return s.queryOwners(ctx, "query owners with habits",
		`SELECT DISTINCT user_uid FROM habits WHERE parent_id IS NULL ORDER BY user_uid`)
}

func (s *Store) ApplyStreakRun(ctx context.Context, run models.StreakRun, decide storage.StreakDecider) (storage.StreakRunResult, error) {
	if err := storage.ValidateRun(run); err != nil {
		return storage.StreakRunResult{}, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.StreakRunResult{}, classify("apply streak run", err)
	}
	defer tx.Rollback()

	// A concurrent run for the same key blocks here until the first commits,
	// then conflicts.
	res, err := tx.ExecContext(ctx,
		`INSERT INTO streak_runs (user_uid, run_day, outcome, previous, next)
		 VALUES ($1, $2::date, 'pending', 0, 0) ON CONFLICT (user_uid, run_day) DO NOTHING`,
		run.OwnerID, run.RunDay)
	if err != nil {
		return storage.StreakRunResult{}, classify("record streak run", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return storage.StreakRunResult{}, classify("record streak run", err)
	} else if n == 0 {
		return storage.StreakRunResult{AlreadyApplied: true}, nil
	}

	current := 0
	initialized := true
	err = tx.QueryRowContext(ctx, `SELECT streak FROM streaks WHERE user_uid = $1 FOR UPDATE`, run.OwnerID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		initialized = false
	} else if err != nil {
		return storage.StreakRunResult{}, classify("read streak", err)
	}

	due, err := queryHabits(ctx, tx, `SELECT `+habitColumns+` FROM habits
		WHERE user_uid = $1 AND due_date >= $2 AND due_date < $3
		ORDER BY due_date`, run.OwnerID, run.WindowStart.UTC(), run.WindowEnd.UTC())
	if err != nil {
		return storage.StreakRunResult{}, classify("snapshot due habits", err)
	}

	result := storage.EvaluateRun(initialized, current, due, decide)
	if !result.Applied {
		// nothing changes, so the ledger row is discarded with the transaction
		return result, nil
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE streaks SET streak = $1, updated_at = now() WHERE user_uid = $2`,
		result.Next, run.OwnerID); err != nil {
		return storage.StreakRunResult{}, classify("update streak", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE streak_runs SET outcome = $1, previous = $2, next = $3 WHERE user_uid = $4 AND run_day = $5::date`,
		result.Outcome, result.Previous, result.Next, run.OwnerID, run.RunDay); err != nil {
		return storage.StreakRunResult{}, classify("record streak run", err)
	}

	if err := tx.Commit(); err != nil {
		return storage.StreakRunResult{}, classify("apply streak run", err)
	}
	return result, nil
}

func (s *Store) ListStreakRuns(ctx context.Context, owner string, limit int) ([]models.StreakRunRecord, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var limitArg interface{}
	if limit > 0 {
		limitArg = limit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_uid, to_char(run_day, 'YYYY-MM-DD'), outcome, previous, next, created_at FROM streak_runs
		 WHERE user_uid = $1 ORDER BY run_day DESC LIMIT $2`, owner, limitArg)
	if err != nil {
		return nil, classify("list streak runs", err)
	}
	defer rows.Close()

	records := []models.StreakRunRecord{}
	for rows.Next() {
		var r models.StreakRunRecord
		if err := rows.Scan(&r.OwnerID, &r.RunDay, &r.Outcome, &r.Previous, &r.Next, &r.CreatedAt); err != nil {
			return nil, classify("list streak runs", err)
		}
		r.CreatedAt = r.CreatedAt.UTC()
		records = append(records, r)
	}
	return records, classify("list streak runs", rows.Err())
}
