// Command migrate brings the ledger database to the latest schema and
// reports the resulting version. It is safe to run repeatedly.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"budgettracker/internal/cli"
	"budgettracker/internal/config"
	applog "budgettracker/internal/log"
	"budgettracker/internal/storage"
)

func main() {
	cli.LoadEnvFile()
	cfg := config.Load()
	logger := cli.SetupLogger(cfg, applog.ComponentMigrate)

	dbPath := flag.String("db", cfg.SQLiteDBPath, "path of the SQLite database")
	statusOnly := flag.Bool("status", false, "print the schema version without migrating")
	flag.Parse()

	ctx := context.Background()

	if !*statusOnly {
		if err := os.MkdirAll(filepath.Dir(*dbPath), 0755); err != nil {
			logger.Error("Failed to create database directory", applog.FieldError, err.Error(), "path", *dbPath)
			os.Exit(1)
		}
		if err := storage.RunMigrations(ctx, *dbPath); err != nil {
			logger.Error("Migration failed", applog.FieldError, err.Error(), "path", *dbPath)
			os.Exit(1)
		}
	}

	version, dirty, ok, err := storage.SchemaVersion(ctx, *dbPath)
	if err != nil {
		logger.Error("Failed to read schema version", applog.FieldError, err.Error(), "path", *dbPath)
		os.Exit(1)
	}
	if !ok {
		fmt.Printf("%s: unversioned (latest is %d)\n", *dbPath, storage.LatestSchemaVersion)
		return
	}
	fmt.Printf("%s: schema version %d (latest %d, dirty %t)\n", *dbPath, version, storage.LatestSchemaVersion, dirty)
}
