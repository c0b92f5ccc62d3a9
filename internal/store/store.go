package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store persists built cross-reference databases in SQLite, one unit per
// indexed source file.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates all tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	if _, err := s.db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Symbol rows keep the per-unit dense id (local_id) so that a unit loads
// back into exactly the database it was saved from. Use and edge rows are
// ordered by ordinal within their owning list.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS units (
  id              INTEGER PRIMARY KEY,
  path            TEXT NOT NULL UNIQUE,
  hash            TEXT NOT NULL,
  build_id        TEXT NOT NULL,
  built_at        TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS symbols (
  unit_id         INTEGER NOT NULL REFERENCES units(id),
  kind            TEXT NOT NULL,
  local_id        INTEGER NOT NULL,
  usr             TEXT NOT NULL,
  short_name      TEXT NOT NULL,
  qualified_name  TEXT NOT NULL,
  declaration     TEXT,
  definition      TEXT,
  PRIMARY KEY (unit_id, kind, local_id)
);

CREATE TABLE IF NOT EXISTS uses (
  unit_id         INTEGER NOT NULL REFERENCES units(id),
  kind            TEXT NOT NULL,
  local_id        INTEGER NOT NULL,
  ordinal         INTEGER NOT NULL,
  position        TEXT NOT NULL,
  PRIMARY KEY (unit_id, kind, local_id, ordinal)
);

CREATE TABLE IF NOT EXISTS call_edges (
  unit_id         INTEGER NOT NULL REFERENCES units(id),
  caller_id       INTEGER NOT NULL,
  callee_id       INTEGER NOT NULL,
  caller_ordinal  INTEGER NOT NULL,
  callee_ordinal  INTEGER NOT NULL,
  position        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS metadata (
  key             TEXT PRIMARY KEY,
  value           TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_symbols_usr ON symbols(usr);
CREATE INDEX IF NOT EXISTS idx_symbols_short_name ON symbols(short_name);
CREATE INDEX IF NOT EXISTS idx_call_edges_unit ON call_edges(unit_id);
`

// DeleteUnit transactionally removes a unit and everything built from it.
// Deleting an unknown unit is not an error.
func (s *Store) DeleteUnit(unitID int64) error {
	return s.DeleteUnits([]int64{unitID})
}

// DeleteUnits removes several units in one transaction.
func (s *Store) DeleteUnits(unitIDs []int64) error {
	if len(unitIDs) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteUnitsTx(tx, unitIDs); err != nil {
		return err
	}
	return tx.Commit()
}

// deleteUnitsTx deletes children before the units rows they reference.
func deleteUnitsTx(tx *sql.Tx, unitIDs []int64) error {
	placeholders := placeholderList(len(unitIDs))
	args := int64sToArgs(unitIDs)
	for _, q := range []string{
		"DELETE FROM call_edges WHERE unit_id IN (" + placeholders + ")",
		"DELETE FROM uses WHERE unit_id IN (" + placeholders + ")",
		"DELETE FROM symbols WHERE unit_id IN (" + placeholders + ")",
		"DELETE FROM units WHERE id IN (" + placeholders + ")",
	} {
		if _, err := tx.Exec(q, args...); err != nil {
			return fmt.Errorf("delete unit data: %w", err)
		}
	}
	return nil
}
