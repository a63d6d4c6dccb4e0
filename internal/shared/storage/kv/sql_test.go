package kv

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"resumate/internal/shared/storage/db"
)

func openSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	ctx := context.Background()
	database, err := db.Connect(ctx, db.DialectSQLite, filepath.Join(t.TempDir(), "kv.db"), db.DefaultSQLiteOptions())
	if err != nil {
		t.Fatalf("connect sqlite: %v", err)
	}
	if err := db.RunMigrations(ctx, database, db.DialectSQLite); err != nil {
		database.Close()
		t.Fatalf("migrate sqlite: %v", err)
	}
	store := NewSQLStore(database, projectSchema, settingsSchema)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLStoreSQLite(t *testing.T) {
	exerciseStore(t, openSQLiteStore(t))
}

func TestSQLStoreSQLiteBatch(t *testing.T) {
	exerciseBatch(t, openSQLiteStore(t))
}

func TestSQLStoreAddUsesSequence(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer mockDB.Close()

	store := NewSQLStore(mockDB, projectSchema)
	c, err := store.Collection("ResuMateMain", "project")
	if err != nil {
		t.Fatalf("Collection: %v", err)
	}

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO kv_sequences (namespace, collection, next_key) VALUES ($1, $2, 2)")).
		WithArgs("ResuMateMain", "project").
		WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(int64(5)))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO kv_records (namespace, collection, record_key, num_key, value)")).
		WithArgs("ResuMateMain", "project", "5", int64(5), `{"id":5,"name":"alpha"}`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	key, err := c.Add(context.Background(), json.RawMessage(`{"name":"alpha"}`))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if string(key) != "5" {
		t.Fatalf("expected key 5, got %s", key)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSQLStoreGetNotFound(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer mockDB.Close()

	store := NewSQLStore(mockDB, settingsSchema)
	c, err := store.Collection("svelte-persist", "persist")
	if err != nil {
		t.Fatalf("Collection: %v", err)
	}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT value FROM kv_records")).
		WithArgs("svelte-persist", "persist", `"jobName"`).
		WillReturnError(sql.ErrNoRows)

	if _, err := c.Get(context.Background(), StringKey("jobName")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSQLStoreUpdateRollsBack(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer mockDB.Close()

	store := NewSQLStore(mockDB, settingsSchema)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM kv_records WHERE namespace = $1 AND collection = $2")).
		WithArgs("svelte-persist", "persist").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO kv_records")).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err = store.Update(context.Background(), func(tx Tx) error {
		c, err := tx.Collection("svelte-persist", "persist")
		if err != nil {
			return err
		}
		if err := c.Clear(context.Background()); err != nil {
			return err
		}
		return c.Put(context.Background(), StringKey("name"), json.RawMessage(`"Ada"`))
	})
	if err == nil {
		t.Fatal("expected error from batch")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
