package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore keeps collections in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	schemas schemaSet
	tables  map[string]*memTable
}

type memTable struct {
	rows map[string]memRow
	next int64
}

type memRow struct {
	key   keyInfo
	value json.RawMessage
}

// NewMemoryStore builds an empty store with the given collections.
func NewMemoryStore(schemas ...Schema) *MemoryStore {
	s := &MemoryStore{
		schemas: newSchemaSet(schemas),
		tables:  make(map[string]*memTable),
	}
	for _, schema := range s.schemas.list {
		s.tables[schema.ID()] = &memTable{rows: make(map[string]memRow), next: 1}
	}
	return s
}

func (s *MemoryStore) Schemas() []Schema {
	return s.schemas.all()
}

func (s *MemoryStore) Collection(namespace, name string) (Collection, error) {
	schema, err := s.schemas.lookup(namespace, name)
	if err != nil {
		return nil, err
	}
	return &memCollection{store: s, schema: schema}, nil
}

// Update applies fn to a copy of every table and swaps it in on success.
func (s *MemoryStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	draft := make(map[string]*memTable, len(s.tables))
	for id, t := range s.tables {
		draft[id] = t.clone()
	}
	if err := fn(&memTx{store: s, tables: draft}); err != nil {
		return err
	}
	s.tables = draft
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func (t *memTable) clone() *memTable {
	rows := make(map[string]memRow, len(t.rows))
	for k, v := range t.rows {
		rows[k] = v
	}
	return &memTable{rows: rows, next: t.next}
}

type memTx struct {
	store  *MemoryStore
	tables map[string]*memTable
}

func (tx *memTx) Collection(namespace, name string) (Collection, error) {
	schema, err := tx.store.schemas.lookup(namespace, name)
	if err != nil {
		return nil, err
	}
	return &memCollection{store: tx.store, schema: schema, tables: tx.tables}, nil
}

type memCollection struct {
	store  *MemoryStore
	schema Schema
	// tables is set when the handle belongs to an Update batch; the batch
	// already holds the store lock.
	tables map[string]*memTable
}

func (c *memCollection) Schema() Schema {
	return c.schema
}

func (c *memCollection) with(ctx context.Context, fn func(t *memTable) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.tables != nil {
		return fn(c.tables[c.schema.ID()])
	}
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	return fn(c.store.tables[c.schema.ID()])
}

func (c *memCollection) Get(ctx context.Context, key json.RawMessage) (json.RawMessage, error) {
	info, err := normalizeKey(key)
	if err != nil {
		return nil, err
	}
	var out json.RawMessage
	err = c.with(ctx, func(t *memTable) error {
		row, ok := t.rows[info.text]
		if !ok {
			return fmt.Errorf("%w: %s %s", ErrNotFound, c.schema.ID(), info.text)
		}
		out = row.value
		return nil
	})
	return out, err
}

func (c *memCollection) Put(ctx context.Context, key json.RawMessage, value json.RawMessage) error {
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
	}
	stored := append(json.RawMessage(nil), value...)
	return c.with(ctx, func(t *memTable) error {
		t.rows[info.text] = memRow{key: info, value: stored}
		if info.numeric && info.num >= t.next {
			t.next = info.num + 1
		}
		return nil
	})
}

func (c *memCollection) Add(ctx context.Context, value json.RawMessage) (json.RawMessage, error) {
	if !c.schema.AutoIncrement {
		return nil, fmt.Errorf("%w: %s requires explicit keys", ErrInvalidKey, c.schema.ID())
	}
	if err := validateValue(value); err != nil {
		return nil, err
	}
	var key json.RawMessage
	err := c.with(ctx, func(t *memTable) error {
		id := t.next
		stored, err := withKeyField(value, c.schema.KeyField, id)
		if err != nil {
			return err
		}
		info := keyInfo{text: string(IntKey(id)), num: id, numeric: true}
		t.rows[info.text] = memRow{key: info, value: stored}
		t.next = id + 1
		key = IntKey(id)
		return nil
	})
	return key, err
}

func (c *memCollection) Delete(ctx context.Context, key json.RawMessage) error {
	info, err := normalizeKey(key)
	if err != nil {
		return err
	}
	return c.with(ctx, func(t *memTable) error {
		delete(t.rows, info.text)
		return nil
	})
}

// Clear removes every record. The key generator is not reset.
func (c *memCollection) Clear(ctx context.Context) error {
	return c.with(ctx, func(t *memTable) error {
		t.rows = make(map[string]memRow)
		return nil
	})
}

func (c *memCollection) Iterate(ctx context.Context, fn func(Record) error) error {
	var rows []memRow
	err := c.with(ctx, func(t *memTable) error {
		rows = make([]memRow, 0, len(t.rows))
		for _, r := range t.rows {
			rows = append(rows, r)
		}
		return nil
	})
	if err != nil {
		return err
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i].key, rows[j].key
		if a.numeric != b.numeric {
			return a.numeric
		}
		if a.numeric && a.num != b.num {
			return a.num < b.num
		}
		return a.text < b.text
	})
	for _, r := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(Record{Key: json.RawMessage(r.key.text), Value: r.value}); err != nil {
			return err
		}
	}
	return nil
}

func (c *memCollection) Count(ctx context.Context) (int, error) {
	n := 0
	err := c.with(ctx, func(t *memTable) error {
		n = len(t.rows)
		return nil
	})
	return n, err
}

var _ Store = (*MemoryStore)(nil)
