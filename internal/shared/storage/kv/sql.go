package kv

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// SQLStore keeps collections in the kv_records table. The queries are plain
// enough to run unchanged on SQLite and Postgres.
type SQLStore struct {
	DB      *sql.DB
	schemas schemaSet
}

// NewSQLStore wraps an open, migrated database.
func NewSQLStore(db *sql.DB, schemas ...Schema) *SQLStore {
	return &SQLStore{DB: db, schemas: newSchemaSet(schemas)}
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLStore) Schemas() []Schema {
	return s.schemas.all()
}

func (s *SQLStore) Collection(namespace, name string) (Collection, error) {
	schema, err := s.schemas.lookup(namespace, name)
	if err != nil {
		return nil, err
	}
	return &sqlCollection{q: s.DB, schema: schema}, nil
}

// Update runs fn inside one database transaction.
func (s *SQLStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin kv batch: %w", err)
	}
	if err := fn(&sqlTx{store: s, tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit kv batch: %w", err)
	}
	return nil
}

func (s *SQLStore) Close() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

type sqlTx struct {
	store *SQLStore
	tx    *sql.Tx
}

func (t *sqlTx) Collection(namespace, name string) (Collection, error) {
	schema, err := t.store.schemas.lookup(namespace, name)
	if err != nil {
		return nil, err
	}
	return &sqlCollection{q: t.tx, schema: schema}, nil
}

type sqlCollection struct {
	q      querier
	schema Schema
}

func (c *sqlCollection) Schema() Schema {
	return c.schema
}

func (c *sqlCollection) Get(ctx context.Context, key json.RawMessage) (json.RawMessage, error) {
	info, err := normalizeKey(key)
	if err != nil {
		return nil, err
	}
	var value string
	err = c.q.QueryRowContext(ctx,
		`SELECT value FROM kv_records WHERE namespace = $1 AND collection = $2 AND record_key = $3`,
		c.schema.Namespace, c.schema.Collection, info.text,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s %s", ErrNotFound, c.schema.ID(), info.text)
		}
		return nil, fmt.Errorf("get %s: %w", c.schema.ID(), err)
	}
	return json.RawMessage(value), nil
}

func (c *sqlCollection) Put(ctx context.Context, key json.RawMessage, value json.RawMessage) error {
	info, err := normalizeKey(key)
	if err != nil {
		return err
	}
	if err := validateValue(value); err != nil {
		return err
	}
	if c.schema.AutoIncrement && info.numeric {
		if value, err = withKeyField(value, c.schema.KeyField, info.num); err != nil {
			return err
		}
		if err := c.bumpSequence(ctx, info.num+1); err != nil {
			return err
		}
	}
	return c.upsert(ctx, info, value)
}

func (c *sqlCollection) Add(ctx context.Context, value json.RawMessage) (json.RawMessage, error) {
	if !c.schema.AutoIncrement {
		return nil, fmt.Errorf("%w: %s requires explicit keys", ErrInvalidKey, c.schema.ID())
	}
	if err := validateValue(value); err != nil {
		return nil, err
	}

	var id int64
	err := c.q.QueryRowContext(ctx,
		`INSERT INTO kv_sequences (namespace, collection, next_key) VALUES ($1, $2, 2)
		 ON CONFLICT (namespace, collection) DO UPDATE SET next_key = kv_sequences.next_key + 1
		 RETURNING next_key - 1`,
		c.schema.Namespace, c.schema.Collection,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("next key %s: %w", c.schema.ID(), err)
	}

	stored, err := withKeyField(value, c.schema.KeyField, id)
	if err != nil {
		return nil, err
	}
	info := keyInfo{text: string(IntKey(id)), num: id, numeric: true}
	if err := c.upsert(ctx, info, stored); err != nil {
		return nil, err
	}
	return IntKey(id), nil
}

func (c *sqlCollection) Delete(ctx context.Context, key json.RawMessage) error {
	info, err := normalizeKey(key)
	if err != nil {
		return err
	}
	_, err = c.q.ExecContext(ctx,
		`DELETE FROM kv_records WHERE namespace = $1 AND collection = $2 AND record_key = $3`,
		c.schema.Namespace, c.schema.Collection, info.text,
	)
	if err != nil {
		return fmt.Errorf("delete %s: %w", c.schema.ID(), err)
	}
	return nil
}

// Clear removes every record. The key sequence is kept.
func (c *sqlCollection) Clear(ctx context.Context) error {
	_, err := c.q.ExecContext(ctx,
		`DELETE FROM kv_records WHERE namespace = $1 AND collection = $2`,
		c.schema.Namespace, c.schema.Collection,
	)
	if err != nil {
		return fmt.Errorf("clear %s: %w", c.schema.ID(), err)
	}
	return nil
}

// Iterate reads the collection fully before calling fn, so fn may issue
// queries on a single-connection pool.
func (c *sqlCollection) Iterate(ctx context.Context, fn func(Record) error) error {
	rows, err := c.q.QueryContext(ctx,
		`SELECT record_key, value FROM kv_records WHERE namespace = $1 AND collection = $2
		 ORDER BY CASE WHEN num_key IS NULL THEN 1 ELSE 0 END, num_key, record_key`,
		c.schema.Namespace, c.schema.Collection,
	)
	if err != nil {
		return fmt.Errorf("iterate %s: %w", c.schema.ID(), err)
	}

	var records []Record
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			rows.Close()
			return fmt.Errorf("iterate %s: %w", c.schema.ID(), err)
		}
		records = append(records, Record{Key: json.RawMessage(key), Value: json.RawMessage(value)})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterate %s: %w", c.schema.ID(), err)
	}
	rows.Close()

	for _, r := range records {
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

func (c *sqlCollection) Count(ctx context.Context) (int, error) {
	var n int
	err := c.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM kv_records WHERE namespace = $1 AND collection = $2`,
		c.schema.Namespace, c.schema.Collection,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", c.schema.ID(), err)
	}
	return n, nil
}

func (c *sqlCollection) upsert(ctx context.Context, info keyInfo, value json.RawMessage) error {
	num := sql.NullInt64{Int64: info.num, Valid: info.numeric}
	_, err := c.q.ExecContext(ctx,
		`INSERT INTO kv_records (namespace, collection, record_key, num_key, value) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (namespace, collection, record_key) DO UPDATE SET num_key = excluded.num_key, value = excluded.value`,
		c.schema.Namespace, c.schema.Collection, info.text, num, string(value),
	)
	if err != nil {
		return fmt.Errorf("put %s: %w", c.schema.ID(), err)
	}
	return nil
}

func (c *sqlCollection) bumpSequence(ctx context.Context, next int64) error {
	_, err := c.q.ExecContext(ctx,
		`INSERT INTO kv_sequences (namespace, collection, next_key) VALUES ($1, $2, $3)
		 ON CONFLICT (namespace, collection) DO UPDATE SET next_key = CASE WHEN excluded.next_key > kv_sequences.next_key THEN excluded.next_key ELSE kv_sequences.next_key END`,
		c.schema.Namespace, c.schema.Collection, next,
	)
	if err != nil {
		return fmt.Errorf("bump key %s: %w", c.schema.ID(), err)
	}
	return nil
}

var _ Store = (*SQLStore)(nil)
