package projects

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"resumate/internal/shared/storage/kv"
	"resumate/internal/shared/telemetry"
)

// KVRepo stores projects in the keyed collection store.
type KVRepo struct {
	Coll kv.Collection
}

// NewKVRepo binds a repo to the project collection of store.
func NewKVRepo(store kv.Store) (*KVRepo, error) {
	coll, err := store.Collection(Namespace, CollectionName)
	if err != nil {
		return nil, fmt.Errorf("project collection: %w", err)
	}
	return &KVRepo{Coll: coll}, nil
}

func (r *KVRepo) Insert(ctx context.Context, p Project) (int64, error) {
	p.ID = 0
	value, err := json.Marshal(p)
	if err != nil {
		return 0, err
	}
	key, err := r.Coll.Add(ctx, value)
	if err != nil {
		return 0, fmt.Errorf("insert project: %w", err)
	}
	return kv.ParseIntKey(key)
}

func (r *KVRepo) Update(ctx context.Context, p Project) error {
	if p.ID <= 0 {
		return fmt.Errorf("update project: %w", ErrNotFound)
	}
	value, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := r.Coll.Put(ctx, kv.IntKey(p.ID), value); err != nil {
		return fmt.Errorf("update project %d: %w", p.ID, err)
	}
	return nil
}

func (r *KVRepo) Get(ctx context.Context, id int64) (Project, error) {
	raw, err := r.Coll.Get(ctx, kv.IntKey(id))
	if errors.Is(err, kv.ErrNotFound) {
		return Project{}, ErrNotFound
	}
	if err != nil {
		return Project{}, fmt.Errorf("get project %d: %w", id, err)
	}
	var p Project
	if err := json.Unmarshal(raw, &p); err != nil {
		return Project{}, fmt.Errorf("decode project %d: %w", id, err)
	}
	p.ID = id
	return p, nil
}

func (r *KVRepo) List(ctx context.Context) ([]Project, error) {
	var out []Project
	err := r.Coll.Iterate(ctx, func(rec kv.Record) error {
		id, err := kv.ParseIntKey(rec.Key)
		if err != nil {
			telemetry.Warn("projects.list.bad_key", map[string]any{"key": string(rec.Key)})
			return nil
		}
		var p Project
		if err := json.Unmarshal(rec.Value, &p); err != nil {
			telemetry.Warn("projects.list.bad_value", map[string]any{"id": id, "error": err})
			return nil
		}
		p.ID = id
		out = append(out, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return out, nil
}

var _ Repo = (*KVRepo)(nil)
