package projects

import (
	"time"

	"resumate/internal/shared/storage/kv"
)

const (
	Namespace      = "ResuMateMain"
	CollectionName = "project"
)

// Schema is the project collection. Keys are assigned on insert and mirrored
// into the record's "id" field.
var Schema = kv.Schema{Namespace: Namespace, Collection: CollectionName, AutoIncrement: true, KeyField: "id"}

// Project is one saved resume/job pairing. JSON names match exported snapshots.
type Project struct {
	ID             int64     `json:"id,omitempty"`
	Name           string    `json:"name"`
	ResumeMarkdown string    `json:"md"`
	ResumeKeywords []string  `json:"mdKeywords"`
	JobURL         string    `json:"jobUrl"`
	JobDescription string    `json:"jobDesc"`
	JobKeywords    []string  `json:"jobKeywords"`
	Score          float64   `json:"score"`
	SaveCount      int       `json:"saves"`
	Created        time.Time `json:"created"`
	Modified       time.Time `json:"modified"`
}

// SaveResult mirrors the saveState values shown by the editor.
type SaveResult int

const (
	SaveFailed  SaveResult = -1
	SaveCreated SaveResult = 1
	SaveUpdated SaveResult = 2
)
