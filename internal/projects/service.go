// Package projects saves and restores the active resume/job pairing.
package projects

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"resumate/internal/appstate"
	"resumate/internal/scoring"
	"resumate/internal/shared/telemetry"
)

// Service moves projects between the repo and the application state.
type Service struct {
	Repo  Repo
	State *appstate.State
	Now   func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repo, st *appstate.State) *Service {
	return &Service{Repo: repo, State: st, Now: time.Now}
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

// Save writes the active project. The first save of a draft inserts a record
// and binds its id to the session; later saves update that record.
func (s *Service) Save(ctx context.Context) (SaveResult, error) {
	v := s.State.Snapshot()
	name := strings.TrimSpace(v.JobName)
	if name == "" || name == appstate.DefaultJobName {
		if err := s.setSaveState(ctx, SaveFailed); err != nil {
			return SaveFailed, err
		}
		return SaveFailed, ErrNoName
	}

	now := s.now()
	p := Project{
		ID:             v.ProjectID,
		Name:           v.JobName,
		ResumeMarkdown: v.ResumeMd,
		ResumeKeywords: v.ResumeKeywords,
		JobURL:         v.JobURL,
		JobDescription: v.JobDescription,
		JobKeywords:    v.JobKeywords,
		Score:          v.CombinedScore,
		SaveCount:      v.SaveCount,
		Created:        now,
		Modified:       now,
	}

	result := SaveUpdated
	if v.ProjectID <= 0 || v.SaveCount == 0 {
		result = SaveCreated
	} else {
		existing, err := s.Repo.Get(ctx, v.ProjectID)
		switch {
		case errors.Is(err, ErrNotFound):
			telemetry.Warn("projects.save.missing_record", map[string]any{"project_id": v.ProjectID})
			result = SaveCreated
		case err != nil:
			_ = s.setSaveState(ctx, SaveFailed)
			return SaveFailed, err
		default:
			if !existing.Created.IsZero() {
				p.Created = existing.Created
			}
		}
	}

	if result == SaveCreated {
		p.SaveCount = 1
		id, err := s.Repo.Insert(ctx, p)
		if err != nil {
			_ = s.setSaveState(ctx, SaveFailed)
			return SaveFailed, err
		}
		p.ID = id
	} else if err := s.Repo.Update(ctx, p); err != nil {
		_ = s.setSaveState(ctx, SaveFailed)
		return SaveFailed, err
	}

	err := s.State.Update(ctx, func(v *appstate.Values) {
		v.ProjectID = p.ID
		v.SaveCount = p.SaveCount
		v.SaveState = int(result)
		v.CreatedTime = p.Created
		v.UpdatedTime = p.Modified
	})
	if err != nil {
		return result, err
	}
	if _, err := s.ListNames(ctx); err != nil {
		return result, err
	}

	telemetry.Info("projects.saved", map[string]any{"project_id": p.ID, "result": int(result)})
	return result, nil
}

// Load hydrates the active session from project id and rescores it.
func (s *Service) Load(ctx context.Context, id int64) (Project, error) {
	p, err := s.Repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			telemetry.Warn("projects.load.not_found", map[string]any{"project_id": id})
		}
		return Project{}, err
	}

	now := s.now()
	err = s.State.Update(ctx, func(v *appstate.Values) {
		v.JobName = p.Name
		v.ResumeMd = p.ResumeMarkdown
		v.ResumeKeywords = p.ResumeKeywords
		v.JobURL = p.JobURL
		v.JobDescription = p.JobDescription
		v.JobKeywords = p.JobKeywords
		v.CombinedScore = p.Score
		v.CreatedTime = orNow(p.Created, now)
		v.UpdatedTime = orNow(p.Modified, now)
		// A stored record has been saved at least once, whatever it recorded.
		v.SaveCount = max(p.SaveCount, 1)
		v.ProjectID = id
	})
	if err != nil {
		return Project{}, fmt.Errorf("hydrate project %d: %w", id, err)
	}
	if _, err := scoring.Rescore(ctx, s.State); err != nil {
		return p, err
	}
	return p, nil
}

// ListNames returns (name, id) pairs newest first and refreshes the index
// kept in state.
func (s *Service) ListNames(ctx context.Context) ([]appstate.ProjectRef, error) {
	all, err := s.Repo.List(ctx)
	if err != nil {
		return nil, err
	}
	refs := make([]appstate.ProjectRef, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		refs = append(refs, appstate.ProjectRef{Name: all[i].Name, ID: all[i].ID})
	}
	if err := s.State.Update(ctx, func(v *appstate.Values) {
		v.AvailableProjects = refs
	}); err != nil {
		return refs, err
	}
	return refs, nil
}

// Clear resets the active session to a fresh draft. Stored projects are kept.
func (s *Service) Clear(ctx context.Context) error {
	now := s.now()
	return s.State.Update(ctx, func(v *appstate.Values) {
		v.JobName = appstate.DefaultJobName
		v.ResumeMd = v.ResumeTemplate
		v.ResumeKeywords = []string{}
		v.JobURL = appstate.DefaultJobURL
		v.JobDescription = appstate.DefaultJobDesc
		v.JobKeywords = []string{}
		v.OverlappingKeywords = []string{}
		v.CombinedScore = 0
		v.CreatedTime = now
		v.UpdatedTime = now
		v.SaveCount = 0
		v.ProjectID = -1
	})
}

func (s *Service) setSaveState(ctx context.Context, r SaveResult) error {
	return s.State.Update(ctx, func(v *appstate.Values) {
		v.SaveState = int(r)
	})
}

func orNow(t, now time.Time) time.Time {
	if t.IsZero() {
		return now
	}
	return t
}
