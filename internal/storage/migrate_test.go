package storage

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"budgettracker/internal/core"
)

func openRaw(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func execAll(t *testing.T, db *sql.DB, stmts ...string) {
	t.Helper()
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("exec %q: %v", s, err)
		}
	}
}

func assertVersion(t *testing.T, path string, want uint) {
	t.Helper()
	version, dirty, ok, err := SchemaVersion(context.Background(), path)
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if !ok || dirty || version != want {
		t.Fatalf("schema version = %d (dirty=%v, ok=%v), want clean %d", version, dirty, ok, want)
	}
}

func TestRunMigrationsFreshStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fresh.db")

	if err := RunMigrations(context.Background(), path); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}
	assertVersion(t, path, LatestSchemaVersion)

	db := openRaw(t, path)
	for _, table := range []string{"users", "budgets", "expenses"} {
		ok, err := tableExists(context.Background(), db, table)
		if err != nil || !ok {
			t.Fatalf("expected table %s (err=%v)", table, err)
		}
	}
	if ok, _ := tableExists(context.Background(), db, "budget"); ok {
		t.Fatal("legacy budget table should be gone")
	}
}

func TestRunMigrationsIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twice.db")
	ctx := context.Background()

	repo, err := NewSQLiteRepository(ctx, path)
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	repo.UpsertBudget(ctx, 1, march, core.Money{Cents: 1234})
	repo.Close()

	for i := 0; i < 2; i++ {
		if err := RunMigrations(ctx, path); err != nil {
			t.Fatalf("RunMigrations run %d: %v", i, err)
		}
	}
	assertVersion(t, path, LatestSchemaVersion)

	reopened, err := NewSQLiteRepository(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	got, _ := reopened.GetBudget(ctx, 1, march)
	if got.Cents != 1234 {
		t.Fatalf("data lost across migrations, budget = %d", got.Cents)
	}
}

func TestSchemaVersionUnmigrated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.db")
	openRaw(t, path).Exec("CREATE TABLE notes (id INTEGER)")

	_, _, ok, err := SchemaVersion(context.Background(), path)
	if err != nil || ok {
		t.Fatalf("expected no version marker, got ok=%v err=%v", ok, err)
	}

	// Reading the version must not create the marker.
	if exists, _ := tableExists(context.Background(), openRaw(t, path), migrationsTable); exists {
		t.Fatal("SchemaVersion created the migrations table")
	}
}

func TestRunMigrationsAdoptsLegacyStore(t *testing.T) {
	tests := []struct {
		name         string
		expenseTable string
		insert       string
		wantQuantity int
	}{
		{
			name:         "without quantity column",
			expenseTable: "CREATE TABLE expenses (id INTEGER PRIMARY KEY AUTOINCREMENT, item TEXT NOT NULL, cost REAL NOT NULL, date_added TIMESTAMP DEFAULT CURRENT_TIMESTAMP)",
			insert:       "INSERT INTO expenses (item, cost, date_added) VALUES ('Coffee', 4.5, '2024-03-05 08:00:00'), ('Old', 3.333, '2024-02-28 10:00:00')",
			wantQuantity: 1,
		},
		{
			name:         "with quantity column",
			expenseTable: "CREATE TABLE expenses (id INTEGER PRIMARY KEY AUTOINCREMENT, item TEXT NOT NULL, cost REAL NOT NULL, quantity INTEGER DEFAULT 1, date_added TIMESTAMP DEFAULT CURRENT_TIMESTAMP)",
			insert:       "INSERT INTO expenses (item, cost, quantity, date_added) VALUES ('Coffee', 4.5, 3, '2024-03-05 08:00:00'), ('Old', 3.333, 3, '2024-02-28 10:00:00')",
			wantQuantity: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "legacy.db")
			ctx := context.Background()

			legacy := openRaw(t, path)
			execAll(t, legacy,
				"CREATE TABLE budget (id INTEGER PRIMARY KEY AUTOINCREMENT, amount REAL NOT NULL, month_str TEXT UNIQUE NOT NULL)",
				"INSERT INTO budget (amount, month_str) VALUES (500.0, '2024-03')",
				tt.expenseTable,
				tt.insert,
			)
			legacy.Close()

			repo, err := NewSQLiteRepository(ctx, path)
			if err != nil {
				t.Fatalf("NewSQLiteRepository on legacy store: %v", err)
			}
			defer repo.Close()
			assertVersion(t, path, LatestSchemaVersion)

			budget, spent, err := repo.MonthTotals(ctx, LegacyOwnerID, march)
			if err != nil {
				t.Fatalf("MonthTotals: %v", err)
			}
			if budget.Cents != 50000 || spent.Cents != 450 {
				t.Fatalf("legacy totals = (%d, %d), want (50000, 450)", budget.Cents, spent.Cents)
			}

			expenses, err := repo.ListExpenses(ctx, LegacyOwnerID)
			if err != nil {
				t.Fatalf("ListExpenses: %v", err)
			}
			if len(expenses) != 2 {
				t.Fatalf("expected 2 legacy expenses, got %d", len(expenses))
			}
			if expenses[0].Item != "Coffee" || expenses[1].Cost.Cents != 333 {
				t.Fatalf("unexpected legacy expenses %+v", expenses)
			}
			for _, e := range expenses {
				if e.Quantity != tt.wantQuantity {
					t.Fatalf("quantity = %d, want %d", e.Quantity, tt.wantQuantity)
				}
			}
			want := time.Date(2024, time.March, 5, 8, 0, 0, 0, time.Local)
			if !expenses[0].AddedAt.Equal(want) {
				t.Fatalf("AddedAt = %v, want %v", expenses[0].AddedAt, want)
			}

			// The second user starts empty.
			other, _ := repo.ListExpenses(ctx, LegacyOwnerID+1)
			if len(other) != 0 {
				t.Fatalf("legacy rows leaked to another user: %+v", other)
			}
		})
	}
}

func TestRunMigrationsRecoversDirtyVersion(t *testing.T) {
	tests := []struct {
		name         string
		dirtyVersion int
	}{
		{"interrupted second migration", 2},
		{"interrupted baseline", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "dirty.db")
			ctx := context.Background()

			// State left behind when the process dies after marking a
			// migration dirty: its transaction never committed.
			db := openRaw(t, path)
			execAll(t, db,
				"CREATE TABLE budget (id INTEGER PRIMARY KEY AUTOINCREMENT, amount REAL NOT NULL, month_str TEXT UNIQUE NOT NULL, user_id INTEGER)",
				"CREATE TABLE expenses (id INTEGER PRIMARY KEY AUTOINCREMENT, item TEXT NOT NULL, cost REAL NOT NULL, quantity INTEGER DEFAULT 1, date_added TIMESTAMP DEFAULT CURRENT_TIMESTAMP, user_id INTEGER)",
				"INSERT INTO budget (amount, month_str) VALUES (12.34, '2024-03')",
				"CREATE TABLE schema_migrations (version uint64, dirty bool)",
				"CREATE UNIQUE INDEX version_unique ON schema_migrations (version)",
			)
			if _, err := db.Exec("INSERT INTO schema_migrations (version, dirty) VALUES (?, 1)", tt.dirtyVersion); err != nil {
				t.Fatal(err)
			}
			db.Close()

			if err := RunMigrations(ctx, path); err != nil {
				t.Fatalf("RunMigrations on dirty store: %v", err)
			}
			assertVersion(t, path, LatestSchemaVersion)

			repo, err := NewSQLiteRepository(ctx, path)
			if err != nil {
				t.Fatalf("NewSQLiteRepository: %v", err)
			}
			defer repo.Close()
			got, _ := repo.GetBudget(ctx, LegacyOwnerID, march)
			if got.Cents != 1234 {
				t.Fatalf("budget after recovery = %d, want 1234", got.Cents)
			}
		})
	}
}

func TestRunMigrationsFailedCopyKeepsLegacyTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.db")
	ctx := context.Background()

	// A NULL item cannot be copied into the NOT NULL multi-tenant column.
	legacy := openRaw(t, path)
	execAll(t, legacy,
		"CREATE TABLE budget (id INTEGER PRIMARY KEY AUTOINCREMENT, amount REAL NOT NULL, month_str TEXT UNIQUE NOT NULL)",
		"INSERT INTO budget (amount, month_str) VALUES (500.0, '2024-03')",
		"CREATE TABLE expenses (id INTEGER PRIMARY KEY AUTOINCREMENT, item TEXT, cost REAL NOT NULL, date_added TIMESTAMP DEFAULT CURRENT_TIMESTAMP)",
		"INSERT INTO expenses (item, cost, date_added) VALUES (NULL, 4.5, '2024-03-05 08:00:00')",
	)
	legacy.Close()

	for i := 0; i < 2; i++ {
		err := RunMigrations(ctx, path)
		if !errors.Is(err, core.ErrMigrationFailure) {
			t.Fatalf("run %d: expected ErrMigrationFailure, got %v", i, err)
		}
	}

	db := openRaw(t, path)
	for _, table := range []string{"budget", "expenses"} {
		var n int
		if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
			t.Fatalf("count %s: %v", table, err)
		}
		if n != 1 {
			t.Fatalf("%s rows = %d, want 1", table, n)
		}
	}
	if ok, _ := tableExists(ctx, db, "budgets"); ok {
		t.Fatal("budgets table must not exist after a failed copy")
	}

	version, dirty, ok, err := SchemaVersion(ctx, path)
	if err != nil || !ok {
		t.Fatalf("SchemaVersion: ok=%v err=%v", ok, err)
	}
	if version != LatestSchemaVersion || !dirty {
		t.Fatalf("version = %d (dirty=%v), want dirty %d", version, dirty, LatestSchemaVersion)
	}
}
