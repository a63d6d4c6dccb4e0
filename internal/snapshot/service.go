// Package snapshot exports, imports and resets every persisted collection.
package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"resumate/internal/appstate"
	"resumate/internal/header"
	"resumate/internal/projects"
	"resumate/internal/scoring"
	"resumate/internal/shared/metrics"
	"resumate/internal/shared/storage/kv"
	"resumate/internal/shared/storage/object"
	"resumate/internal/shared/telemetry"
	"resumate/internal/shared/util"
)

const backupPrefix = "snapshots"

// ErrNoBackupStore is returned by backup operations when no object store is configured.
var ErrNoBackupStore = errors.New("no backup store configured")

// ImportReport summarizes an applied import.
type ImportReport struct {
	Collections int      `json:"collections"`
	Records     int      `json:"records"`
	Skipped     []string `json:"skipped"`
}

// Service owns whole-store operations.
type Service struct {
	Store    kv.Store
	State    *appstate.State
	Projects *projects.Service
	// Keywords seeds the dictionary after a reset or an import that lacks one.
	Keywords []string
	Backups  object.Store
	Now      func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

// Export reads every collection of every namespace. Pending state writes are
// flushed first so the snapshot matches what the editor shows.
func (s *Service) Export(ctx context.Context) (Payload, error) {
	if err := s.State.Flush(ctx); err != nil {
		return nil, fmt.Errorf("flush state: %w", err)
	}
	out := Payload{}
	for _, schema := range s.Store.Schemas() {
		coll, err := s.Store.Collection(schema.Namespace, schema.Collection)
		if err != nil {
			return nil, err
		}
		entries := []Entry{}
		err = coll.Iterate(ctx, func(r kv.Record) error {
			entries = append(entries, Entry{Key: r.Key, Value: r.Value})
			return nil
		})
		if err != nil {
			metrics.SnapshotOperationsTotal.WithLabelValues("export", "error").Inc()
			return nil, fmt.Errorf("export %s: %w", schema.ID(), err)
		}
		if out[schema.Namespace] == nil {
			out[schema.Namespace] = map[string][]Entry{}
		}
		out[schema.Namespace][schema.Collection] = entries
	}
	metrics.SnapshotOperationsTotal.WithLabelValues("export", "ok").Inc()
	telemetry.Debug("snapshot.exported", map[string]any{"records": out.Count()})
	return out, nil
}

// ExportJSON exports and encodes in one step.
func (s *Service) ExportJSON(ctx context.Context, indent bool) ([]byte, error) {
	p, err := s.Export(ctx)
	if err != nil {
		return nil, err
	}
	return p.Encode(indent)
}

// Import decodes data and applies it. See ImportPayload.
func (s *Service) Import(ctx context.Context, data []byte) (ImportReport, error) {
	p, err := Decode(data)
	if err != nil {
		metrics.SnapshotOperationsTotal.WithLabelValues("import", "rejected").Inc()
		telemetry.Warn("snapshot.import.rejected", map[string]any{"error": err})
		return ImportReport{}, err
	}
	return s.ImportPayload(ctx, p)
}

// ImportPayload replaces every collection named in p with its entries. All
// collections are replaced in one store transaction; a failure leaves the
// store as it was. Collections unknown to this store are skipped. Afterwards
// the state is reloaded and the project index rebuilt.
func (s *Service) ImportPayload(ctx context.Context, p Payload) (ImportReport, error) {
	if err := p.Validate(); err != nil {
		metrics.SnapshotOperationsTotal.WithLabelValues("import", "rejected").Inc()
		return ImportReport{}, err
	}
	if err := s.State.Flush(ctx); err != nil {
		return ImportReport{}, fmt.Errorf("flush state: %w", err)
	}

	known := map[string]bool{}
	for _, schema := range s.Store.Schemas() {
		known[schema.ID()] = true
	}

	type target struct {
		ns, coll string
		entries  []Entry
	}
	var targets []target
	report := ImportReport{Skipped: []string{}}
	for ns, colls := range p {
		for coll, entries := range colls {
			id := ns + "/" + coll
			if !known[id] {
				telemetry.Warn("snapshot.import.unknown_collection", map[string]any{"collection": id})
				report.Skipped = append(report.Skipped, id)
				continue
			}
			targets = append(targets, target{ns: ns, coll: coll, entries: entries})
		}
	}
	sort.Strings(report.Skipped)
	sort.Slice(targets, func(i, j int) bool {
		if targets[i].ns != targets[j].ns {
			return targets[i].ns < targets[j].ns
		}
		return targets[i].coll < targets[j].coll
	})

	err := s.Store.Update(ctx, func(tx kv.Tx) error {
		for _, t := range targets {
			c, err := tx.Collection(t.ns, t.coll)
			if err != nil {
				return err
			}
			if err := c.Clear(ctx); err != nil {
				return fmt.Errorf("clear %s/%s: %w", t.ns, t.coll, err)
			}
			for i, e := range t.entries {
				if hasKey(e.Key) {
					err = c.Put(ctx, e.Key, e.Value)
				} else {
					_, err = c.Add(ctx, e.Value)
				}
				if err != nil {
					return fmt.Errorf("%s/%s entry %d: %w", t.ns, t.coll, i, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		metrics.SnapshotOperationsTotal.WithLabelValues("import", "error").Inc()
		telemetry.Error("snapshot.import.failed", map[string]any{"error": err})
		if errors.Is(err, kv.ErrInvalidKey) || errors.Is(err, kv.ErrInvalidValue) {
			return ImportReport{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return ImportReport{}, err
	}

	for _, t := range targets {
		report.Collections++
		report.Records += len(t.entries)
	}

	if err := s.State.Load(ctx); err != nil {
		return report, err
	}
	// Older or hand-trimmed exports may lack the dictionary or the header.
	if _, err := s.State.Seed(ctx, s.Keywords, header.Render); err != nil {
		return report, err
	}
	if _, err := scoring.Rescore(ctx, s.State); err != nil {
		return report, err
	}
	if _, err := s.Projects.ListNames(ctx); err != nil {
		return report, err
	}

	metrics.SnapshotOperationsTotal.WithLabelValues("import", "ok").Inc()
	telemetry.Info("snapshot.imported", map[string]any{
		"collections": report.Collections,
		"records":     report.Records,
		"offered":     p.Count(),
		"skipped":     len(report.Skipped),
	})
	return report, nil
}

// Reset clears every collection, restores default settings and rebuilds
// the header.
func (s *Service) Reset(ctx context.Context) error {
	err := s.Store.Update(ctx, func(tx kv.Tx) error {
		for _, schema := range s.Store.Schemas() {
			c, err := tx.Collection(schema.Namespace, schema.Collection)
			if err != nil {
				return err
			}
			if err := c.Clear(ctx); err != nil {
				return fmt.Errorf("clear %s: %w", schema.ID(), err)
			}
		}
		return nil
	})
	if err != nil {
		metrics.SnapshotOperationsTotal.WithLabelValues("reset", "error").Inc()
		return err
	}

	if err := s.State.ResetDefaults(ctx); err != nil {
		return err
	}
	if _, err := s.State.Seed(ctx, s.Keywords, header.Render); err != nil {
		return err
	}

	metrics.SnapshotOperationsTotal.WithLabelValues("reset", "ok").Inc()
	telemetry.Info("snapshot.reset", nil)
	return nil
}

// Backup writes an indented export to the backup store and returns its key.
func (s *Service) Backup(ctx context.Context, label string) (string, error) {
	if s.Backups == nil {
		return "", ErrNoBackupStore
	}
	data, err := s.ExportJSON(ctx, true)
	if err != nil {
		return "", err
	}

	name := "resumate"
	if strings.TrimSpace(label) != "" {
		clean, err := util.SanitizeFileName(label)
		if err != nil {
			return "", fmt.Errorf("%w: bad backup label", ErrInvalidPayload)
		}
		name = clean
	}
	key := fmt.Sprintf("%s/%s-%s-%s.json", backupPrefix, name, s.now().Format("20060102T150405Z"), util.ContentHash(data, 12))

	if _, err := s.Backups.Put(ctx, key, "application/json", bytes.NewReader(data)); err != nil {
		metrics.SnapshotOperationsTotal.WithLabelValues("backup", "error").Inc()
		return "", fmt.Errorf("write backup: %w", err)
	}
	metrics.SnapshotOperationsTotal.WithLabelValues("backup", "ok").Inc()
	telemetry.Info("snapshot.backup", map[string]any{"key": key, "bytes": len(data)})
	return key, nil
}

// ListBackups returns stored backup keys, oldest first.
func (s *Service) ListBackups(ctx context.Context) ([]string, error) {
	if s.Backups == nil {
		return nil, ErrNoBackupStore
	}
	return s.Backups.List(ctx, backupPrefix)
}

// Restore imports a stored backup.
func (s *Service) Restore(ctx context.Context, key string) (ImportReport, error) {
	if s.Backups == nil {
		return ImportReport{}, ErrNoBackupStore
	}
	rc, err := s.Backups.Open(ctx, key)
	if err != nil {
		return ImportReport{}, fmt.Errorf("open backup: %w", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return ImportReport{}, fmt.Errorf("read backup: %w", err)
	}
	return s.Import(ctx, data)
}
