// Package kv stores JSON records in named collections grouped by namespace.
// Collections either use explicit keys or auto-increment integer keys.
package kv

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrUnknownCollection = errors.New("unknown collection")
	ErrInvalidKey        = errors.New("invalid record key")
	ErrInvalidValue      = errors.New("invalid record value")
)

// Schema declares one collection.
type Schema struct {
	Namespace  string
	Collection string
	// AutoIncrement collections assign integer keys on Add.
	AutoIncrement bool
	// KeyField, when set on an auto-increment collection, receives the key
	// inside the stored JSON object.
	KeyField string
}

// ID returns "namespace/collection".
func (s Schema) ID() string {
	return s.Namespace + "/" + s.Collection
}

// Record is one stored entry. Keys are JSON scalars: integers for
// auto-increment collections, strings otherwise.
type Record struct {
	Key   json.RawMessage `json:"key"`
	Value json.RawMessage `json:"value"`
}

// Collection is a handle on one collection, either standalone or bound to a transaction.
type Collection interface {
	Schema() Schema
	Get(ctx context.Context, key json.RawMessage) (json.RawMessage, error)
	Put(ctx context.Context, key json.RawMessage, value json.RawMessage) error
	Add(ctx context.Context, value json.RawMessage) (json.RawMessage, error)
	Delete(ctx context.Context, key json.RawMessage) error
	Clear(ctx context.Context) error
	Iterate(ctx context.Context, fn func(Record) error) error
	Count(ctx context.Context) (int, error)
}

// Tx resolves collections inside an atomic batch.
type Tx interface {
	Collection(namespace, name string) (Collection, error)
}

// Store is the keyed collection store.
type Store interface {
	Tx
	Schemas() []Schema
	// Update runs fn atomically: either every write made through tx lands or none does.
	// fn must only use collections obtained from tx.
	Update(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

// IntKey encodes an integer key.
func IntKey(n int64) json.RawMessage {
	return json.RawMessage(strconv.FormatInt(n, 10))
}

// StringKey encodes a string key.
func StringKey(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

// ParseIntKey decodes an integer key.
func ParseIntKey(raw json.RawMessage) (int64, error) {
	info, err := normalizeKey(raw)
	if err != nil {
		return 0, err
	}
	if !info.numeric {
		return 0, fmt.Errorf("%w: %s is not an integer", ErrInvalidKey, info.text)
	}
	return info.num, nil
}

type keyInfo struct {
	text    string
	num     int64
	numeric bool
}

func normalizeKey(raw json.RawMessage) (keyInfo, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return keyInfo{}, fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return keyInfo{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	info := keyInfo{text: buf.String()}
	if n, err := strconv.ParseInt(info.text, 10, 64); err == nil {
		info.num = n
		info.numeric = true
	}
	return info, nil
}

func validateValue(value json.RawMessage) error {
	if len(bytes.TrimSpace(value)) == 0 || !json.Valid(value) {
		return fmt.Errorf("%w: not valid JSON", ErrInvalidValue)
	}
	return nil
}

// withKeyField writes key into field of a JSON object value.
func withKeyField(value json.RawMessage, field string, key int64) (json.RawMessage, error) {
	if field == "" {
		return value, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(value, &obj); err != nil {
		return nil, fmt.Errorf("%w: auto-key value must be an object", ErrInvalidValue)
	}
	if obj == nil {
		obj = map[string]json.RawMessage{}
	}
	obj[field] = IntKey(key)
	out, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return out, nil
}

type schemaSet struct {
	list []Schema
	byID map[string]Schema
}

func newSchemaSet(schemas []Schema) schemaSet {
	set := schemaSet{byID: make(map[string]Schema, len(schemas))}
	for _, s := range schemas {
		if _, ok := set.byID[s.ID()]; ok {
			continue
		}
		set.byID[s.ID()] = s
		set.list = append(set.list, s)
	}
	return set
}

func (s schemaSet) lookup(namespace, name string) (Schema, error) {
	schema, ok := s.byID[namespace+"/"+name]
	if !ok {
		return Schema{}, fmt.Errorf("%w: %s/%s", ErrUnknownCollection, namespace, name)
	}
	return schema, nil
}

func (s schemaSet) all() []Schema {
	out := make([]Schema, len(s.list))
	copy(out, s.list)
	return out
}
