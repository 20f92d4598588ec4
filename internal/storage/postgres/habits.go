package postgres

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
	var parentID sql.NullString
	var completedAt, expandedThrough sql.NullTime
	var recurrence string

	if err := row.Scan(&h.ID, &parentID, &h.OwnerID, &h.Title, &h.Description, &h.DueAt, &h.Timezone,
		&recurrence, &h.IsComplete, &completedAt, &h.CreatedAt, &expandedThrough); err != nil {
		return models.Habit{}, err
	}

	if parentID.Valid {
		pid := parentID.String
		h.ParentID = &pid
	}
	h.RecurrenceType = constants.RecurrenceType(recurrence)
	h.DueAt = h.DueAt.UTC()
	h.CreatedAt = h.CreatedAt.UTC()
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		h.CompletedAt = &t
	}
	if expandedThrough.Valid {
		t := expandedThrough.Time.UTC()
		h.ExpandedThrough = &t
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

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func insertHabit(ctx context.Context, tx *sql.Tx, h models.Habit, onConflictSkip bool) error {
	var parentID interface{}
	if h.ParentID != nil {
		parentID = *h.ParentID
	}
	query := `INSERT INTO habits (` + habitColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	if onConflictSkip {
		query += ` ON CONFLICT (parent_id, due_date) DO NOTHING`
	}
	_, err := tx.ExecContext(ctx, query,
		h.ID, parentID, h.OwnerID, h.Title, h.Description, h.DueAt.UTC(), h.Timezone,
		string(h.RecurrenceType), h.IsComplete, nullTime(h.CompletedAt), h.CreatedAt.UTC(),
		nullTime(h.ExpandedThrough))
	return err
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

	if err := insertHabit(ctx, tx, h, false); err != nil {
		return models.Habit{}, classify("insert habit", err)
	}
	if err := tx.Commit(); err != nil {
		return models.Habit{}, classify("insert habit", err)
	}
	return h, nil
}

func (s *Store) GetHabit(ctx context.Context, owner, id string) (models.Habit, error) {
	if !isUUID(id) {
		return models.Habit{}, apperrors.NotFoundf("habit %s", id)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `SELECT `+habitColumns+` FROM habits WHERE id = $1 AND user_uid = $2`, id, owner)
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
	if !isUUID(id) {
		return apperrors.NotFoundf("habit %s", id)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	// An already complete row keeps its original completion time
	res, err := s.db.ExecContext(ctx,
		`UPDATE habits SET is_complete = $1, completed_date = CASE WHEN $1 THEN COALESCE(completed_date, $2::timestamptz) END
		 WHERE id = $3 AND user_uid = $4`,
		isComplete, nullTime(at), id, owner)
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
	if !isUUID(parentID) {
		return apperrors.NotFoundf("parent habit %s", parentID)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		`UPDATE habits SET title = $1, description = $2 WHERE id = $3 AND user_uid = $4 AND parent_id IS NULL`,
		title, description, parentID, owner)
	if err != nil {
		return classify("update habit text", err)
	}
	return classify("update habit text", storage.ExpectAffected(res, fmt.Sprintf("parent habit %s", parentID)))
}

// DeleteByParent runs the delete_habit function, which removes the lineage in
// a single statement.
func (s *Store) DeleteByParent(ctx context.Context, owner, parentID string) error {
	if !isUUID(parentID) {
		return apperrors.NotFoundf("parent habit %s", parentID)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var removed int
	if err := s.db.QueryRowContext(ctx, `SELECT delete_habit($1, $2)`, parentID, owner).Scan(&removed); err != nil {
		return classify("delete habit", err)
	}
	if removed == 0 {
		return apperrors.NotFoundf("parent habit %s", parentID)
	}
	return nil
}

func (s *Store) DeleteOccurrence(ctx context.Context, owner, id string) error {
	if !isUUID(id) {
		return apperrors.NotFoundf("occurrence %s", id)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM habits WHERE id = $1 AND user_uid = $2 AND parent_id IS NOT NULL`, id, owner)
	if err != nil {
		return classify("delete occurrence", err)
	}
	return classify("delete occurrence", storage.ExpectAffected(res, fmt.Sprintf("occurrence %s", id)))
}

func (s *Store) QueryByDueWindow(ctx context.Context, owner string, start, end time.Time) ([]models.Habit, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	habits, err := queryHabits(ctx, s.db, `SELECT `+habitColumns+` FROM habits
		WHERE user_uid = $1 AND due_date >= $2 AND due_date < $3
		ORDER BY due_date, created_at`, owner, start.UTC(), end.UTC())
	return habits, classify("query habits by due window", err)
}

func (s *Store) QueryDueFrom(ctx context.Context, owner string, start time.Time) ([]models.Habit, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	habits, err := queryHabits(ctx, s.db, `SELECT `+habitColumns+` FROM habits
		WHERE user_uid = $1 AND due_date >= $2
		ORDER BY due_date, created_at`, owner, start.UTC())
	return habits, classify("query upcoming habits", err)
}

func (s *Store) QueryByCompletedWindow(ctx context.Context, owner string, start, end time.Time) ([]models.Habit, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	habits, err := queryHabits(ctx, s.db, `SELECT `+habitColumns+` FROM habits
		WHERE user_uid = $1 AND is_complete AND completed_date >= $2 AND completed_date < $3
		ORDER BY completed_date`, owner, start.UTC(), end.UTC())
	return habits, classify("query habits by completion window", err)
}

func (s *Store) QueryAll(ctx context.Context, owner string) ([]models.Habit, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	habits, err := queryHabits(ctx, s.db, `SELECT `+habitColumns+` FROM habits
		WHERE user_uid = $1 ORDER BY due_date, created_at`, owner)
	return habits, classify("query all habits", err)
}

func (s *Store) QueryParents(ctx context.Context, owner string) ([]models.Habit, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	habits, err := queryHabits(ctx, s.db, `SELECT `+habitColumns+` FROM habits
		WHERE user_uid = $1 AND parent_id IS NULL ORDER BY created_at, id`, owner)
	return habits, classify("query parent habits", err)
}

func (s *Store) AppendOccurrences(ctx context.Context, owner, parentID string, children []models.Habit, through time.Time) error {
	if !isUUID(parentID) {
		return apperrors.NotFoundf("parent habit %s", parentID)
	}
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

	// Row lock serializes concurrent expansions of the same lineage
	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM habits WHERE id = $1 AND user_uid = $2 AND parent_id IS NULL FOR UPDATE`,
		parentID, owner).Scan(&exists)
	if err != nil {
		return classify(fmt.Sprintf("parent habit %s", parentID), err)
	}

	for _, child := range prepared {
		if err := insertHabit(ctx, tx, child, true); err != nil {
			return classify("append occurrences", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE habits SET expanded_through = $1
		 WHERE id = $2 AND (expanded_through IS NULL OR expanded_through < $1)`,
		through.UTC(), parentID); err != nil {
		return classify("advance expansion", err)
	}

	return classify("append occurrences", tx.Commit())
}
