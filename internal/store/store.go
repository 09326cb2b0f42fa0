// Package store implements the zData Schema Cache adapter contract
// (spec.md §6 "_zdata_migrations") on top of SQLite: a live connection
// satisfying the Cache Orchestrator's schema tier, plus the declarative
// migration history table the original framework keeps in the same
// database. Grounded on the teacher's internal/store/local.go (SQLite
// via database/sql, table-creation-then-migrate ordering).
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ZoloAi/zolo-zcli-sub008/internal/logging"
)

// Adapter is what internal/wizard's zData dispatch needs beyond the bare
// cache.ConnHandle: the ability to actually run statements. Every schema
// backend (only SQLite is shipped here) implements this.
type Adapter interface {
	Begin() error
	Commit() error
	Rollback() error
	Disconnect() error
	BackendKind() string

	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// SQLiteAdapter is the reference Adapter implementation. It runs
// statements against db directly when no transaction is active, and
// against tx once Begin has been called — matching the Schema Cache's
// invariant that at most one transaction is active per alias at a time.
type SQLiteAdapter struct {
	db  *sql.DB
	tx  *sql.Tx
	log *logging.Logger
}

// Open connects to a SQLite database file at path, creating it if absent.
func Open(path string) (*SQLiteAdapter, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	return &SQLiteAdapter{db: db, log: logging.Get(logging.CategoryStore)}, nil
}

func (a *SQLiteAdapter) BackendKind() string { return "sqlite3" }

// Begin starts a transaction. Calling Begin while one is already active is
// rejected — spec.md §5's "transactions ... nesting is undefined and
// rejected."
func (a *SQLiteAdapter) Begin() error {
	if a.tx != nil {
		return fmt.Errorf("sqlite adapter: transaction already active")
	}
	tx, err := a.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	a.tx = tx
	return nil
}

func (a *SQLiteAdapter) Commit() error {
	if a.tx == nil {
		return fmt.Errorf("sqlite adapter: no active transaction")
	}
	err := a.tx.Commit()
	a.tx = nil
	return err
}

func (a *SQLiteAdapter) Rollback() error {
	if a.tx == nil {
		return fmt.Errorf("sqlite adapter: no active transaction")
	}
	err := a.tx.Rollback()
	a.tx = nil
	return err
}

func (a *SQLiteAdapter) Disconnect() error {
	if a.tx != nil {
		a.log.Warn("disconnect: rolling back abandoned transaction")
		_ = a.tx.Rollback()
		a.tx = nil
	}
	return a.db.Close()
}

func (a *SQLiteAdapter) Exec(query string, args ...interface{}) (sql.Result, error) {
	if a.tx != nil {
		return a.tx.Exec(query, args...)
	}
	return a.db.Exec(query, args...)
}

func (a *SQLiteAdapter) Query(query string, args ...interface{}) (*sql.Rows, error) {
	if a.tx != nil {
		return a.tx.Query(query, args...)
	}
	return a.db.Query(query, args...)
}

func (a *SQLiteAdapter) QueryRow(query string, args ...interface{}) *sql.Row {
	if a.tx != nil {
		return a.tx.QueryRow(query, args...)
	}
	return a.db.QueryRow(query, args...)
}

// DB exposes the underlying connection for collaborators that need raw
// access (migrations, introspection) outside the Adapter contract.
func (a *SQLiteAdapter) DB() *sql.DB { return a.db }
