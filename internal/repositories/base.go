// Package repositories is the concrete write/read side the engine
// aggregate wires into the risk pipeline, order book, and yield engine:
// asset records, holder positions, bot accounts, and user compliance
// flags, all backed by the universe SQLite database.
package repositories

import (
	"database/sql"

	"github.com/rs/zerolog"
)

// base gives every repository a shared connection and logger via
// embedding.
type base struct {
	db  *sql.DB
	log zerolog.Logger
}

func newBase(db *sql.DB, log zerolog.Logger) base {
	return base{db: db, log: log}
}
