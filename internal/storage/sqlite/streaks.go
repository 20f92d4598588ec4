package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/julianstephens/habitline/internal/models"
	"github.com/julianstephens/habitline/internal/storage"
)

func (s *Store) InsertStreakIfAbsent(ctx context.Context, owner string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	now := formatTime(time.Now())
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO streaks (user_uid, streak, created_at, updated_at) VALUES (?, 0, ?, ?)
		 ON CONFLICT (user_uid) DO NOTHING`, owner, now, now)
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
	var createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT user_uid, streak, created_at, updated_at FROM streaks WHERE user_uid = ?`, owner).
		Scan(&st.OwnerID, &st.Count, &createdAt, &updatedAt)
	if err != nil {
		return models.Streak{}, classify(fmt.Sprintf("streak for %s", owner), err)
	}
	if st.CreatedAt, err = parseTime(createdAt); err != nil {
		return models.Streak{}, fmt.Errorf("failed to parse streak created_at: %w", err)
	}
	if st.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return models.Streak{}, fmt.Errorf("failed to parse streak updated_at: %w", err)
	}
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

	now := formatTime(time.Now())
	res, err := tx.ExecContext(ctx,
		`INSERT INTO streak_runs (user_uid, run_day, outcome, previous, next, created_at)
		 VALUES (?, ?, 'pending', 0, 0, ?) ON CONFLICT (user_uid, run_day) DO NOTHING`,
		run.OwnerID, run.RunDay, now)
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
	err = tx.QueryRowContext(ctx, `SELECT streak FROM streaks WHERE user_uid = ?`, run.OwnerID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		initialized = false
	} else if err != nil {
		return storage.StreakRunResult{}, classify("read streak", err)
	}

	due, err := queryHabits(ctx, tx, `SELECT `+habitColumns+` FROM habits
		WHERE user_uid = ? AND due_date >= ? AND due_date < ?
		ORDER BY due_date`, run.OwnerID, formatTime(run.WindowStart), formatTime(run.WindowEnd))
	if err != nil {
		return storage.StreakRunResult{}, classify("snapshot due habits", err)
	}

	result := storage.EvaluateRun(initialized, current, due, decide)
	if !result.Applied {
		// nothing changes, so the ledger row is discarded with the transaction
		return result, nil
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE streaks SET streak = ?, updated_at = ? WHERE user_uid = ?`,
		result.Next, now, run.OwnerID); err != nil {
		return storage.StreakRunResult{}, classify("update streak", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE streak_runs SET outcome = ?, previous = ?, next = ? WHERE user_uid = ? AND run_day = ?`,
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

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_uid, run_day, outcome, previous, next, created_at FROM streak_runs
		 WHERE user_uid = ? ORDER BY run_day DESC LIMIT ?`, owner, limit)
	if err != nil {
		return nil, classify("list streak runs", err)
	}
	defer rows.Close()

	records := []models.StreakRunRecord{}
	for rows.Next() {
		var r models.StreakRunRecord
		var createdAt string
		if err := rows.Scan(&r.OwnerID, &r.RunDay, &r.Outcome, &r.Previous, &r.Next, &createdAt); err != nil {
			return nil, classify("list streak runs", err)
		}
		if r.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse streak run created_at: %w", err)
		}
		records = append(records, r)
	}
	return records, classify("list streak runs", rows.Err())
}
