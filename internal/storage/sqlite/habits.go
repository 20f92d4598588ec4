package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/julianstephens/habitline/internal/constants"
	apperrors "github.com/julianstephens/habitline/internal/errors"
	"github.com/julianstephens/habitline/internal/models"
	"github.com/julianstephens/habitline/internal/storage"
)

const habitColumns = `id, parent_id, user_uid, title, description, due_date, timezone,
	recurrence_type, is_complete, completed_date, created_at, expanded_through`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func scanHabit(row rowScanner) (models.Habit, error) {
	var h models.Habit
	var parentID, completedAt, expandedThrough sql.NullString
	var dueAt, createdAt, recurrence string

	if err := row.Scan(&h.ID, &parentID, &h.OwnerID, &h.Title, &h.Description, &dueAt, &h.Timezone,
		&recurrence, &h.IsComplete, &completedAt, &createdAt, &expandedThrough); err != nil {
		return models.Habit{}, err
	}

	var err error
	if parentID.Valid {
		pid := parentID.String
		h.ParentID = &pid
	}
	h.RecurrenceType = constants.RecurrenceType(recurrence)
	if h.DueAt, err = parseTime(dueAt); err != nil {
		return models.Habit{}, fmt.Errorf("failed to parse due_date for habit %s: %w", h.ID, err)
	}
	if h.CreatedAt, err = parseTime(createdAt); err != nil {
		return models.Habit{}, fmt.Errorf("failed to parse created_at for habit %s: %w", h.ID, err)
	}
	if h.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return models.Habit{}, fmt.Errorf("failed to parse completed_date for habit %s: %w", h.ID, err)
	}
	if h.ExpandedThrough, err = parseNullTime(expandedThrough); err != nil {
		return models.Habit{}, fmt.Errorf("failed to parse expanded_through for habit %s: %w", h.ID, err)
	}
	return h, nil
}

func queryHabits(ctx context.Context, q querier, query string, args ...interface{}) ([]models.Habit, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	habits := []models.Habit{}
	for rows.Next() {
		h, err := scanHabit(rows)
		if err != nil {
			return nil, err
		}
		habits = append(habits, h)
	}
	return habits, rows.Err()
}

func insertHabit(ctx context.Context, tx *sql.Tx, h models.Habit, onConflictSkip bool) (int64, error) {
	var parentID interface{}
	if h.ParentID != nil {
		parentID = *h.ParentID
	}
	query := `INSERT INTO habits (` + habitColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if onConflictSkip {
		query += ` ON CONFLICT (parent_id, due_date) DO NOTHING`
	}
	res, err := tx.ExecContext(ctx, query,
		h.ID, parentID, h.OwnerID, h.Title, h.Description, formatTime(h.DueAt), h.Timezone,
		string(h.RecurrenceType), h.IsComplete, formatNullTime(h.CompletedAt), formatTime(h.CreatedAt),
		formatNullTime(h.ExpandedThrough))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) InsertHabit(ctx context.Context, h models.Habit) (models.Habit, error) {
	h, err := storage.PrepareHabit(h, time.Now())
	if err != nil {
		return models.Habit{}, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Habit{}, classify("insert habit", err)
	}
	defer tx.Rollback()

	if _, err := insertHabit(ctx, tx, h, false); err != nil {
		return models.Habit{}, classify("insert habit", err)
	}
	if err := tx.Commit(); err != nil {
		return models.Habit{}, classify("insert habit", err)
	}
	return h, nil
}

func (s *Store) GetHabit(ctx context.Context, owner, id string) (models.Habit, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `SELECT `+habitColumns+` FROM habits WHERE id = ? AND user_uid = ?`, id, owner)
	h, err := scanHabit(row)
	if err != nil {
		return models.Habit{}, classify(fmt.Sprintf("habit %s", id), err)
	}
	return h, nil
}

func (s *Store) UpdateCompletion(ctx context.Context, owner, id string, isComplete bool, completedAt *time.Time) error {
	at, err := storage.CompletionArgs(isComplete, completedAt)
	if err != nil {
		return err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	// An already complete row keeps its original completion time
	res, err := s.db.ExecContext(ctx,
		`UPDATE habits SET is_complete = ?, completed_date = CASE WHEN ? THEN COALESCE(completed_date, ?) END
		 WHERE id = ? AND user_uid = ?`,
		isComplete, isComplete, formatNullTime(at), id, owner)
	if err != nil {
		return classify("update completion", err)
	}
	return classify("update completion", storage.ExpectAffected(res, fmt.Sprintf("habit %s", id)))
}

func (s *Store) UpdateText(ctx context.Context, owner, parentID, title, description string) error {
	if title == "" {
		return apperrors.Invalid("title", "must not be empty")
	}
	if description == "" {
		return apperrors.Invalid("description", "must not be empty")
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		`UPDATE habits SET title = ?, description = ? WHERE id = ? AND user_uid = ? AND parent_id IS NULL`,
		title, description, parentID, owner)
	if err != nil {
		return classify("update habit text", err)
	}
	return classify("update habit text", storage.ExpectAffected(res, fmt.Sprintf("parent habit %s", parentID)))
}

func (s *Store) DeleteByParent(ctx context.Context, owner, parentID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("delete habit", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM habits WHERE parent_id = ? AND user_uid = ?`, parentID, owner); err != nil {
		return classify("delete habit occurrences", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM habits WHERE id = ? AND user_uid = ? AND parent_id IS NULL`, parentID, owner)
	if err != nil {
		return classify("delete habit", err)
	}
	if err := storage.ExpectAffected(res, fmt.Sprintf("parent habit %s", parentID)); err != nil {
		return err
	}
	return classify("delete habit", tx.Commit())
}

func (s *Store) DeleteOccurrence(ctx context.Context, owner, id string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM habits WHERE id = ? AND user_uid = ? AND parent_id IS NOT NULL`, id, owner)
	if err != nil {
		return classify("delete occurrence", err)
	}
	return classify("delete occurrence", storage.ExpectAffected(res, fmt.Sprintf("occurrence %s", id)))
}

func (s *Store) QueryByDueWindow(ctx context.Context, owner string, start, end time.Time) ([]models.Habit, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	habits, err := queryHabits(ctx, s.db, `SELECT `+habitColumns+` FROM habits
		WHERE user_uid = ? AND due_date >= ? AND due_date < ?
		ORDER BY due_date, created_at`, owner, formatTime(start), formatTime(end))
	return habits, classify("query habits by due window", err)
}

func (s *Store) QueryDueFrom(ctx context.Context, owner string, start time.Time) ([]models.Habit, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	habits, err := queryHabits(ctx, s.db, `SELECT `+habitColumns+` FROM habits
		WHERE user_uid = ? AND due_date >= ?
		ORDER BY due_date, created_at`, owner, formatTime(start))
	return habits, classify("query upcoming habits", err)
}

func (s *Store) QueryByCompletedWindow(ctx context.Context, owner string, start, end time.Time) ([]models.Habit, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	habits, err := queryHabits(ctx, s.db, `SELECT `+habitColumns+` FROM habits
		WHERE user_uid = ? AND is_complete = 1 AND completed_date >= ? AND completed_date < ?
		ORDER BY completed_date`, owner, formatTime(start), formatTime(end))
	return habits, classify("query habits by completion window", err)
}

func (s *Store) QueryAll(ctx context.Context, owner string) ([]models.Habit, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	habits, err := queryHabits(ctx, s.db, `SELECT `+habitColumns+` FROM habits
		WHERE user_uid = ? ORDER BY due_date, created_at`, owner)
	return habits, classify("query all habits", err)
}

func (s *Store) QueryParents(ctx context.Context, owner string) ([]models.Habit, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	habits, err := queryHabits(ctx, s.db, `SELECT `+habitColumns+` FROM habits
		WHERE user_uid = ? AND parent_id IS NULL ORDER BY created_at, id`, owner)
	return habits, classify("query parent habits", err)
}

func (s *Store) AppendOccurrences(ctx context.Context, owner, parentID string, children []models.Habit, through time.Time) error {
	prepared, err := storage.PrepareChildren(owner, parentID, children, time.Now())
	if err != nil {
		return err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("append occurrences", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM habits WHERE id = ? AND user_uid = ? AND parent_id IS NULL`, parentID, owner).Scan(&exists)
	if err != nil {
		return classify(fmt.Sprintf("parent habit %s", parentID), err)
	}

	for _, child := range prepared {
		if _, err := insertHabit(ctx, tx, child, true); err != nil {
			return classify("append occurrences", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE habits SET expanded_through = ?
		 WHERE id = ? AND (expanded_through IS NULL OR expanded_through < ?)`,
		formatTime(through), parentID, formatTime(through)); err != nil {
		return classify("advance expansion", err)
	}

	return classify("append occurrences", tx.Commit())
}
