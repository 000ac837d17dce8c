package repositories

import (
	"database/sql"
	"time"

	"github.com/rs/zerolog"

	"github.com/sentineltrading/execution-core/internal/database"
)

// SettingsStore is the key/value override table config.Config consults
// for credentials and toggles that should survive without a redeploy. It
// satisfies config.SettingsStore by structural typing.
type SettingsStore struct {
	base
}

// NewSettingsStore wraps db, which must already have the config schema
// migrated (db.Migrate with Config.Name == "config").
func NewSettingsStore(db *database.DB, log zerolog.Logger) *SettingsStore {
	return &SettingsStore{base: newBase(db.Conn(), log.With().Str("component", "settings_store").Logger())}
}

// Get returns nil if key has no row, matching config.SettingsStore's
// "absent means keep the environment fallback" contract.
func (s *SettingsStore) Get(key string) (*string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}

// Set upserts key, stamping updated_at with now.
func (s *SettingsStore) Set(key, value string, now time.Time) error {
	_, err := s.db.Exec(`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now.UTC().Format(time.RFC3339))
	return err
}
