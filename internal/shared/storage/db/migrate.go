package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationFiles embed.FS

// goose keeps its base FS and dialect in package state.
var gooseMu sync.Mutex

// RunMigrations applies embedded SQL migrations via goose. If database is nil, it's a no-op.
func RunMigrations(ctx context.Context, database *sql.DB, dialect Dialect) error {
	if database == nil {
		return nil
	}

	var gooseDialect, dir string
	switch dialect {
	case DialectSQLite:
		gooseDialect, dir = "sqlite3", "migrations/sqlite"
	case DialectPostgres:
		gooseDialect, dir = "postgres", "migrations/postgres"
	default:
		return fmt.Errorf("unsupported dialect %q", dialect)
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrationFiles)
	if err := goose.SetDialect(gooseDialect); err != nil {
		return err
	}
	return goose.UpContext(ctx, database, dir)
}
