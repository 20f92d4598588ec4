package sqlite

import (
	"context"

	"github.com/julianstephens/habitline/internal/models"
)

func (s *Store) GetSettings(ctx context.Context) (models.Settings, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM settings")
	if err != nil {
		return models.Settings{}, classify("read settings", err)
	}
	defer rows.Close()

	data := map[string]string{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return models.Settings{}, classify("read settings", err)
		}
		data[key] = value
	}
	if err := rows.Err(); err != nil {
		return models.Settings{}, classify("read settings", err)
	}

	return settingsOrDefault(models.MapToSettings(data)), nil
}

func (s *Store) SaveSettings(ctx context.Context, settings models.Settings) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("save settings", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "INSERT OR REPLACE INTO settings (key, value) VALUES (?, ?)")
	if err != nil {
		return classify("save settings", err)
	}
	defer stmt.Close()

	for key, value := range models.SettingsToMap(settingsOrDefault(settings)) {
		if _, err := stmt.ExecContext(ctx, key, value); err != nil {
			return classify("save settings", err)
		}
	}

	return classify("save settings", tx.Commit())
}
