package main

// Run database migrations for the configured SQL store:
//   go run ./cmd/migrate

import (
	"context"
	"os"

	"resumate/internal/shared/config"
	"resumate/internal/shared/storage/db"
	"resumate/internal/shared/telemetry"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	dialect, dsn := db.DialectSQLite, cfg.SQLitePath
	switch cfg.StoreDriver {
	case "postgres":
		dialect, dsn = db.DialectPostgres, cfg.DatabaseURL
	case "memory":
		telemetry.Info("migrate.skipped", map[string]any{"store_driver": cfg.StoreDriver})
		return
	}

	opts := db.OptionsFromEnv(db.DefaultMigrateOptions())
	if dialect == db.DialectSQLite {
		opts = db.DefaultSQLiteOptions()
	}
	sqlDB, err := db.Connect(ctx, dialect, dsn, opts)
	if err != nil {
		telemetry.Error("migrate.connect_failed", map[string]any{"error": err})
		os.Exit(1)
	}
	defer sqlDB.Close()

	if err := db.RunMigrations(ctx, sqlDB, dialect); err != nil {
		telemetry.Error("migrate.failed", map[string]any{"error": err})
		os.Exit(1)
	}
	telemetry.Info("migrate.done", map[string]any{"dialect": string(dialect)})
}
