package repositories

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentineltrading/execution-core/internal/database"
)

func newTestSettingsStore(t *testing.T) *SettingsStore {
	t.Helper()
	db, err := database.New(database.Config{Path: ":memory:", Profile: database.ProfileStandard, Name: "config"})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return NewSettingsStore(db, zerolog.Nop())
}

func TestSettingsGetReturnsNilForMissingKey(t *testing.T) {
	s := newTestSettingsStore(t)
	v, err := s.Get("polygon_api_key")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestSettingsSetThenGetRoundTrips(t *testing.T) {
	s := newTestSettingsStore(t)
	require.NoError(t, s.Set("polygon_api_key", "abc123", time.Now()))

	v, err := s.Get("polygon_api_key")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "abc123", *v)
}

func TestSettingsSetOverwritesExistingValue(t *testing.T) {
	s := newTestSettingsStore(t)
	require.NoError(t, s.Set("polygon_api_key", "first", time.Now()))
	require.NoError(t, s.Set("polygon_api_key", "second", time.Now()))

	v, err := s.Get("polygon_api_key")
	require.NoError(t, err)
	assert.Equal(t, "second", *v)
}
