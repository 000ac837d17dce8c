// Package reliability covers the engine's self-protection concerns:
// startup reconciliation of in-memory state against the ledger, and
// ongoing database integrity checks. It is the home for what the ledger
// and risk packages only describe: "flag cross-component inconsistencies
// and block activation until reconciled."
package reliability

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sentineltrading/execution-core/internal/database"
)

// HealthService runs periodic integrity checks against a database,
// grounded on the same PRAGMA integrity_check used for WAL recovery
// decisions, without the shell-out-to-sqlite3/backup-restore machinery
// that accompanies it in that form: this engine has nothing yet worth
// restoring a backup for, so CheckIntegrity only ever reports, it never
// attempts a repair.
type HealthService struct {
	db   *database.DB
	name string
	log  zerolog.Logger
}

// NewHealthService wraps db for periodic integrity checks under name
// (used only for logging/metrics labelling).
func NewHealthService(db *database.DB, name string, log zerolog.Logger) *HealthService {
	return &HealthService{db: db, name: name, log: log.With().Str("component", "health_service").Str("database", name).Logger()}
}

// CheckIntegrity runs PRAGMA integrity_check and returns an error if the
// database reports anything other than "ok".
func (s *HealthService) CheckIntegrity() error {
	var result string
	if err := s.db.Conn().QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("reliability: integrity check query failed for %s: %w", s.name, err)
	}
	if result != "ok" {
		return fmt.Errorf("reliability: integrity check failed for %s: %s", s.name, result)
	}
	return nil
}

// Run performs one check, logging but not returning the error — it is
// meant to be scheduled (e.g. daily, alongside the yield engine's cron)
// rather than gate any single request.
func (s *HealthService) Run() {
	if err := s.CheckIntegrity(); err != nil {
		s.log.Error().Err(err).Msg("database integrity check failed")
		return
	}
	s.log.Debug().Msg("database integrity check passed")
}
