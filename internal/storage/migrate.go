package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"budgettracker/internal/core"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// LegacyOwnerID owns every budget and expense written before rows were
// scoped per user.
const LegacyOwnerID int64 = 1

// LatestSchemaVersion is the newest migration embedded in this build.
const LatestSchemaVersion uint = 2

const migrationsTable = "schema_migrations"

// Columns that early single-tenant stores may lack. They are added before
// the versioned migrations run so the baseline sees one shape.
var legacyColumns = []struct {
	table, column, definition string
}{
	{"budget", "user_id", "user_id INTEGER"},
	{"expenses", "quantity", "quantity INTEGER DEFAULT 1"},
	{"expenses", "user_id", "user_id INTEGER"},
}

// RunMigrations brings the store at dbPath to LatestSchemaVersion. It is
// safe to call on every start: a current store is left untouched, a legacy
// store without a version marker is adopted, and a store left dirty by an
// interrupted run is rolled back to the last clean version and retried once.
func RunMigrations(ctx context.Context, dbPath string) error {
	// Separate connection so the migrator can close it without touching the repository pool
	migrateDB, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return fmt.Errorf("%w: open migration database: %w", core.ErrMigrationFailure, err)
	}
	defer migrateDB.Close()
	migrateDB.SetMaxOpenConns(1)

	if err := adoptLegacyLayout(ctx, migrateDB); err != nil {
		return fmt.Errorf("%w: adopt legacy layout: %w", core.ErrMigrationFailure, err)
	}

	driver, err := sqlite.WithInstance(migrateDB, &sqlite.Config{MigrationsTable: migrationsTable})
	if err != nil {
		return fmt.Errorf("%w: create sqlite driver: %w", core.ErrMigrationFailure, err)
	}

	d, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("%w: create iofs source: %w", core.ErrMigrationFailure, err)
	}

	m, err := migrate.NewWithInstance("iofs", d, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("%w: create migrate instance: %w", core.ErrMigrationFailure, err)
	}
	defer m.Close()

	if err := migrateUp(ctx, m, d); err != nil {
		return fmt.Errorf("%w: run migrations: %w", core.ErrMigrationFailure, err)
	}

	version, _, err := m.Version()
	if err != nil {
		return fmt.Errorf("%w: read schema version: %w", core.ErrMigrationFailure, err)
	}
	slog.InfoContext(ctx, "Database schema ready", "path", dbPath, "version", version)
	return nil
}

func migrateUp(ctx context.Context, m *migrate.Migrate, src source.Driver) error {
	err := m.Up()

	var dirty migrate.ErrDirty
	if errors.As(err, &dirty) {
		prev, perr := previousVersion(src, uint(dirty.Version))
		if perr != nil {
			return fmt.Errorf("resolve version before %d: %w", dirty.Version, perr)
		}
		slog.WarnContext(ctx, "Schema left dirty by an interrupted migration, retrying",
			"dirty_version", dirty.Version,
			"forced_version", prev)
		if err := m.Force(prev); err != nil {
			return fmt.Errorf("force version %d: %w", prev, err)
		}
		err = m.Up()
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// previousVersion returns the clean version below v, or database.NilVersion
// when v is the first migration.
func previousVersion(src source.Driver, v uint) (int, error) {
	prev, err := src.Prev(v)
	if errors.Is(err, fs.ErrNotExist) {
		return database.NilVersion, nil
	}
	if err != nil {
		return 0, err
	}
	return int(prev), nil
}

// adoptLegacyLayout adds the columns the baseline migration expects to
// tables created before the store carried a version marker. Stores that
// already have the marker are skipped entirely.
func adoptLegacyLayout(ctx context.Context, db *sql.DB) error {
	versioned, err := tableExists(ctx, db, migrationsTable)
	if err != nil || versioned {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, c := range legacyColumns {
		present, err := tableExists(ctx, tx, c.table)
		if err != nil {
			return err
		}
		if !present {
			continue
		}
		has, err := columnExists(ctx, tx, c.table, c.column)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		// Identifiers come from legacyColumns, never from input
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", c.table, c.definition)); err != nil {
			return fmt.Errorf("add %s.%s: %w", c.table, c.column, err)
		}
		slog.InfoContext(ctx, "Added missing legacy column", "table", c.table, "column", c.column)
	}

	return tx.Commit()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func tableExists(ctx context.Context, q queryer, table string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&n)
	return n > 0, err
}

func columnExists(ctx context.Context, q queryer, table, column string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?", table, column).Scan(&n)
	return n > 0, err
}

// SchemaVersion reports the version marker of the store at dbPath without
// migrating it. A store that has never been migrated reports ok=false.
func SchemaVersion(ctx context.Context, dbPath string) (version uint, dirty bool, ok bool, err error) {
	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return 0, false, false, fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	versioned, err := tableExists(ctx, db, migrationsTable)
	if err != nil || !versioned {
		return 0, false, false, err
	}

	var v int64
	err = db.QueryRowContext(ctx, "SELECT version, dirty FROM "+migrationsTable+" LIMIT 1").Scan(&v, &dirty)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, false, nil
	}
	if err != nil {
		return 0, false, false, fmt.Errorf("read version marker: %w", err)
	}
	return uint(v), dirty, true, nil
}
