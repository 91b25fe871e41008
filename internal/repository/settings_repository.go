package repository

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog"
)

// SettingsRepository is the key/value configuration store used to resolve
// notification flow identifiers at runtime.
type SettingsRepository interface {
	Get(ctx context.Context, key string) (string, bool, error)
}

type settingsRepository struct {
	*PostgresRepository
}

func NewSettingsRepository(db *sql.DB, logger zerolog.Logger) SettingsRepository {
	return &settingsRepository{
		PostgresRepository: NewPostgresRepository(db, logger),
	}
}

func (r *settingsRepository) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}
