package appstate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"resumate/internal/shared/storage/kv"
	"resumate/internal/shared/telemetry"
)

// debouncedKey is written at most once per debounce window; the resume body
// changes on every keystroke.
const debouncedKey = "resumeMd"

// DefaultDebounce is the resume body write delay.
const DefaultDebounce = 500 * time.Millisecond

var ErrUnknownField = errors.New("unknown setting")

// State is the single owner of the editor state. It is safe for concurrent use.
type State struct {
	mu       sync.Mutex
	values   Values
	settings kv.Collection
	debounce time.Duration

	pending      *time.Timer
	pendingValue json.RawMessage

	subs    map[int]func(Values)
	nextSub int
}

// Option configures a State.
type Option func(*State)

// WithDebounce overrides the resume body write delay. Zero writes through.
func WithDebounce(d time.Duration) Option {
	return func(s *State) {
		s.debounce = d
	}
}

// New binds a State to the settings collection of store. Values start at
// their defaults until Load is called.
func New(store kv.Store, opts ...Option) (*State, error) {
	settings, err := store.Collection(Namespace, CollectionName)
	if err != nil {
		return nil, fmt.Errorf("settings collection: %w", err)
	}
	s := &State{
		values:   Defaults(),
		settings: settings,
		debounce: DefaultDebounce,
		subs:     make(map[int]func(Values)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Load replaces the in-memory values with what the store holds. Missing or
// undecodable keys fall back to their defaults. Any pending debounced write
// is discarded.
func (s *State) Load(ctx context.Context) error {
	loaded := Defaults()
	err := s.settings.Iterate(ctx, func(r kv.Record) error {
		var key string
		if err := json.Unmarshal(r.Key, &key); err != nil {
			telemetry.Warn("state.load.bad_key", map[string]any{"key": string(r.Key)})
			return nil
		}
		if err := loaded.applyField(key, r.Value); err != nil {
			telemetry.Warn("state.load.bad_value", map[string]any{"key": key, "error": err})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}

	s.mu.Lock()
	s.dropPendingLocked()
	s.values = loaded
	snapshot, subs := s.values.Clone(), s.subscribersLocked()
	s.mu.Unlock()

	notify(subs, snapshot)
	return nil
}

// Snapshot returns a copy of the current values.
func (s *State) Snapshot() Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values.Clone()
}

// Update applies fn to a copy of the values, persists every changed field
// and notifies subscribers.
func (s *State) Update(ctx context.Context, fn func(v *Values)) error {
	s.mu.Lock()
	next := s.values.Clone()
	fn(&next)
	err := s.commitLocked(ctx, next)
	snapshot, subs := s.values.Clone(), s.subscribersLocked()
	s.mu.Unlock()

	notify(subs, snapshot)
	return err
}

// Patch sets fields by their persisted names, e.g. {"name":"Ada"}.
func (s *State) Patch(ctx context.Context, patch map[string]json.RawMessage) error {
	known, err := Defaults().fields()
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(patch))
	for k := range patch {
		if _, ok := known[k]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownField, k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	s.mu.Lock()
	next := s.values.Clone()
	for _, k := range keys {
		if err := next.applyField(k, patch[k]); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("setting %s: %w", k, err)
		}
	}
	err = s.commitLocked(ctx, next)
	snapshot, subs := s.values.Clone(), s.subscribersLocked()
	s.mu.Unlock()

	notify(subs, snapshot)
	return err
}

// ResetDefaults sets every field back to its default and writes all of them.
func (s *State) ResetDefaults(ctx context.Context) error {
	s.mu.Lock()
	s.dropPendingLocked()
	s.values = Defaults()
	fields, err := s.values.fields()
	if err == nil {
		_, err = s.writeLocked(ctx, fields)
	}
	snapshot, subs := s.values.Clone(), s.subscribersLocked()
	s.mu.Unlock()

	notify(subs, snapshot)
	return err
}

// Seed fills the derived fields a fresh or sparse store lacks: an empty
// keyword list gets dictionary and an empty header gets render's output.
// It reports whether anything was written.
func (s *State) Seed(ctx context.Context, dictionary []string, render func(Values) string) (bool, error) {
	s.mu.Lock()
	next := s.values.Clone()
	if len(next.Keywords) == 0 && len(dictionary) > 0 {
		next.Keywords = append([]string{}, dictionary...)
	}
	if next.Header == "" && render != nil {
		next.Header = render(next)
	}
	if len(next.Keywords) == len(s.values.Keywords) && next.Header == s.values.Header {
		s.mu.Unlock()
		return false, nil
	}
	err := s.commitLocked(ctx, next)
	snapshot, subs := s.values.Clone(), s.subscribersLocked()
	s.mu.Unlock()

	notify(subs, snapshot)
	return err == nil, err
}

// Flush writes any pending debounced value now.
func (s *State) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writePendingLocked(ctx)
}

// Close flushes pending writes.
func (s *State) Close() error {
	return s.Flush(context.Background())
}

// Subscribe registers fn to receive a copy of the values after every change.
// The returned func removes the subscription.
func (s *State) Subscribe(fn func(Values)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// commitLocked persists the fields that differ between the current values
// and next, then adopts next. A failed write puts back the fields already
// written and keeps the current values, so memory never runs ahead of the store.
func (s *State) commitLocked(ctx context.Context, next Values) error {
	before, err := s.values.fields()
	if err != nil {
		return err
	}
	after, err := next.fields()
	if err != nil {
		return err
	}

	changed := map[string]json.RawMessage{}
	var debounced json.RawMessage
	for k, raw := range after {
		if bytes.Equal(before[k], raw) {
			continue
		}
		if k == debouncedKey && s.debounce > 0 {
			debounced = raw
			continue
		}
		changed[k] = raw
	}
	if written, err := s.writeLocked(ctx, changed); err != nil {
		s.revertLocked(written, before)
		return err
	}

	s.values = next
	if debounced != nil {
		s.scheduleLocked(debounced)
	}
	return nil
}

// writeLocked puts fields in key order and returns the keys that landed.
func (s *State) writeLocked(ctx context.Context, fields map[string]json.RawMessage) ([]string, error) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		if err := s.settings.Put(ctx, kv.StringKey(k), fields[k]); err != nil {
			telemetry.Error("state.persist_failed", map[string]any{"key": k, "error": err})
			return keys[:i], fmt.Errorf("persist %s: %w", k, err)
		}
	}
	return keys, nil
}

func (s *State) revertLocked(keys []string, before map[string]json.RawMessage) {
	for _, k := range keys {
		if err := s.settings.Put(context.Background(), kv.StringKey(k), before[k]); err != nil {
			telemetry.Error("state.revert_failed", map[string]any{"key": k, "error": err})
		}
	}
}

func (s *State) scheduleLocked(raw json.RawMessage) {
	s.pendingValue = raw
	if s.pending != nil {
		s.pending.Stop()
	}
	s.pending = time.AfterFunc(s.debounce, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		_ = s.writePendingLocked(context.Background())
	})
}

func (s *State) writePendingLocked(ctx context.Context) error {
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
	if s.pendingValue == nil {
		return nil
	}
	raw := s.pendingValue
	s.pendingValue = nil
	_, err := s.writeLocked(ctx, map[string]json.RawMessage{debouncedKey: raw})
	return err
}

func (s *State) dropPendingLocked() {
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
	s.pendingValue = nil
}

func (s *State) subscribersLocked() []func(Values) {
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]func(Values), 0, len(ids))
	for _, id := range ids {
		out = append(out, s.subs[id])
	}
	return out
}

func notify(subs []func(Values), v Values) {
	for _, fn := range subs {
		fn(v.Clone())
	}
}
