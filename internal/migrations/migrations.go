// Package migrations embeds the SQL schema for the memory and routines
// SQLite databases and applies it through golang-migrate's source
// abstraction (the same migration-file parsing/ordering golang-migrate
// normally drives through a database driver), here wired to a small
// self-contained runner instead of golang-migrate's database driver
// layer: golang-migrate ships a sqlite3 database driver, but it is built
// on the cgo mattn/go-sqlite3 bindings, while this repo deliberately uses
// the pure-Go modernc.org/sqlite driver everywhere else (internal/memory,
// internal/scheduler) to keep the binary cgo-free. Running golang-migrate's
// own ReadUp/ReadDown/Next iteration against an already-open modernc
// connection gets the same ordered-migration behavior without that
// conflict. The stores themselves still init their schema directly on
// Open (idempotent CREATE TABLE IF NOT EXISTS); this package exists for
// operators who want the "migrate" CLI's inspect/step-through workflow.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed memory/*.sql
var memoryFS embed.FS

//go:embed routines/*.sql
var routinesFS embed.FS

// MemorySource returns a golang-migrate source driver over the embedded
// memory-database migrations.
func MemorySource() (source.Driver, error) {
	d, err := iofs.New(memoryFS, "memory")
	if err != nil {
		return nil, fmt.Errorf("memory migration source: %w", err)
	}
	return d, nil
}

// RoutinesSource returns a golang-migrate source driver over the embedded
// routines-database migrations.
func RoutinesSource() (source.Driver, error) {
	d, err := iofs.New(routinesFS, "routines")
	if err != nil {
		return nil, fmt.Errorf("routines migration source: %w", err)
	}
	return d, nil
}

// Runner applies a source.Driver's ordered migrations against a *sql.DB,
// tracking the applied version in a schema_migrations table it owns.
type Runner struct {
	db  *sql.DB
	src source.Driver
}

// NewRunner wraps db and src. Callers get src from MemorySource/RoutinesSource.
func NewRunner(db *sql.DB, src source.Driver) (*Runner, error) {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		dirty   INTEGER NOT NULL DEFAULT 0
	)`); err != nil {
		return nil, fmt.Errorf("init schema_migrations: %w", err)
	}
	return &Runner{db: db, src: src}, nil
}

// Version returns the currently applied migration version (0 if none) and
// whether the last transition left it dirty (a prior failure mid-apply).
func (r *Runner) Version() (version uint, dirty bool, err error) {
	row := r.db.QueryRow(`SELECT version, dirty FROM schema_migrations ORDER BY version DESC LIMIT 1`)
	var v int
	var d int
	if err := row.Scan(&v, &d); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint(v), d != 0, nil
}

func (r *Runner) setVersion(version uint, dirty bool) error {
	dirtyInt := 0
	if dirty {
		dirtyInt = 1
	}
	_, err := r.db.Exec(`DELETE FROM schema_migrations`)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(`INSERT INTO schema_migrations(version, dirty) VALUES (?, ?)`, version, dirtyInt)
	return err
}

// Up applies every pending up-migration in order, stopping (and marking
// dirty) at the first failure.
func (r *Runner) Up() error {
	current, dirty, err := r.Version()
	if err != nil {
		return err
	}
	if dirty {
		return fmt.Errorf("database is in a dirty state at version %d, fix manually", current)
	}

	next, err := r.firstPending(current)
	if err != nil {
		return err
	}

	for next != 0 {
		if err := r.applyUp(next); err != nil {
			return err
		}
		n, err := r.src.Next(next)
		if errors.Is(err, os.ErrNotExist) {
			break
		}
		if err != nil {
			return err
		}
		next = n
	}
	return nil
}

// firstPending finds the first migration version strictly after current,
// or 0 if there is none.
func (r *Runner) firstPending(current uint) (uint, error) {
	if current == 0 {
		v, err := r.src.First()
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return v, err
	}
	v, err := r.src.Next(current)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	return v, err
}

func (r *Runner) applyUp(version uint) error {
	rc, _, err := r.src.ReadUp(version)
	if err != nil {
		return fmt.Errorf("read migration %d: %w", version, err)
	}
	defer rc.Close()

	if err := r.setVersion(version, true); err != nil {
		return err
	}
	if err := r.exec(rc); err != nil {
		return fmt.Errorf("apply migration %d: %w", version, err)
	}
	return r.setVersion(version, false)
}

// Down rolls back up to steps applied migrations, most recent first.
func (r *Runner) Down(steps int) error {
	for i := 0; i < steps; i++ {
		current, dirty, err := r.Version()
		if err != nil {
			return err
		}
		if current == 0 {
			return nil
		}
		if dirty {
			return fmt.Errorf("database is in a dirty state at version %d, fix manually", current)
		}

		rc, _, err := r.src.ReadDown(current)
		if err != nil {
			return fmt.Errorf("read down-migration %d: %w", current, err)
		}
		if err := r.setVersion(current, true); err != nil {
			rc.Close()
			return err
		}
		execErr := r.exec(rc)
		rc.Close()
		if execErr != nil {
			return fmt.Errorf("apply down-migration %d: %w", current, execErr)
		}

		prev, err := r.src.Prev(current)
		if errors.Is(err, os.ErrNotExist) {
			// current was the first migration; rolling it back leaves no
			// applied version at all.
			if _, err := r.db.Exec(`DELETE FROM schema_migrations`); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}
		if err := r.setVersion(prev, false); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) exec(rc io.Reader) error {
	body, err := io.ReadAll(rc)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(string(body))
	return err
}
