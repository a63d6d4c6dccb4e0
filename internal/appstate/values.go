// Package appstate holds the editor's working state: profile settings, the
// active project and UI flags. Every field is persisted under its JSON name in
// the settings collection.
package appstate

import (
	"encoding/json"
	"fmt"
	"time"

	"resumate/internal/shared/storage/kv"
)

const (
	Namespace      = "svelte-persist"
	CollectionName = "persist"

	DefaultJobName = "Change Me"
	DefaultResume  = "# Go to settings and fetch my resume template from the settings! Also Update your info!"
	DefaultJobDesc = "Paste your job description here, or paste a link and try to fetch it"
	DefaultJobURL  = "https://example.com/"
)

// Schema is the settings collection. Keys are setting names.
var Schema = kv.Schema{Namespace: Namespace, Collection: CollectionName}

// ProjectRef is one entry of the saved-project index. It encodes as [name, id].
type ProjectRef struct {
	Name string
	ID   int64
}

func (p ProjectRef) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{p.Name, p.ID})
}

func (p *ProjectRef) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("project ref: expected [name, id], got %d elements", len(pair))
	}
	if err := json.Unmarshal(pair[0], &p.Name); err != nil {
		return fmt.Errorf("project ref name: %w", err)
	}
	if err := json.Unmarshal(pair[1], &p.ID); err != nil {
		return fmt.Errorf("project ref id: %w", err)
	}
	return nil
}

// Values is the full state. JSON names double as persistence keys and must
// stay stable for exported snapshots.
type Values struct {
	ResumeMd            string       `json:"resumeMd"`
	JobDescription      string       `json:"jobDescription"`
	JobURL              string       `json:"jobUrl"`
	ModalState          string       `json:"navstate"`
	EditingStage        string       `json:"pagestate"`
	JobName             string       `json:"jobName"`
	ResumeKeywords      []string     `json:"resumeKeywords"`
	JobKeywords         []string     `json:"jobKeywords"`
	OverlappingKeywords []string     `json:"overlappingKeywords"`
	CombinedScore       float64      `json:"combinedScore"`
	CreatedTime         time.Time    `json:"createdTime"`
	UpdatedTime         time.Time    `json:"updatedTime"`
	Keywords            []string     `json:"keywords"`
	SaveCount           int          `json:"saveCount"`
	SaveState           int          `json:"saveState"`
	ProjectID           int64        `json:"projectId"`
	AvailableProjects   []ProjectRef `json:"availableProjects"`
	Header              string       `json:"header"`
	ResumeTemplate      string       `json:"resumeTemplate"`

	Name              string `json:"name"`
	Email             string `json:"email"`
	Phone             string `json:"phone"`
	Website           string `json:"website"`
	Linkedin          string `json:"linkedin"`
	Github            string `json:"github"`
	Address           string `json:"address"`
	CSSTheme          string `json:"cssTheme"`
	OpenRouterKey     string `json:"openRouterKey"`
	OpenRouterAIModel string `json:"openRouterAIModel"`
	KnowledgeBase     string `json:"knowlegeBase"`

	EnableEmail        bool   `json:"enableEmail"`
	EnablePhone        bool   `json:"enablePhone"`
	EnableWebsite      bool   `json:"enableWebsite"`
	EnableGithub       bool   `json:"enableGithub"`
	EnableLinkedin     bool   `json:"enableLinkedin"`
	EnableAddress      bool   `json:"enableAddress"`
	EnableAddressLink  bool   `json:"enableAddressLink"`
	ShowUSCitizenship  bool   `json:"showUSCitizenship"`
	CustomHeader       string `json:"customHeader"`
	EnableCustomHeader bool   `json:"enableCustomHeader"`
	CustomCSS          string `json:"customCSS"`
	EnableCustomCSS    bool   `json:"enableCustomCSS"`
	HasSeenWelcome     bool   `json:"hasSeenWelcome"`
}

// Defaults returns a fresh state with every field at its initial value.
func Defaults() Values {
	return Values{
		ResumeMd:            DefaultResume,
		JobDescription:      DefaultJobDesc,
		JobURL:              DefaultJobURL,
		ModalState:          "None",
		EditingStage:        "Content",
		JobName:             DefaultJobName,
		ResumeKeywords:      []string{},
		JobKeywords:         []string{},
		OverlappingKeywords: []string{},
		Keywords:            []string{},
		ProjectID:           -1,
		AvailableProjects:   []ProjectRef{},
		ResumeTemplate:      DefaultResume,

		Name:              "John Doe",
		Email:             "example@gmail.com",
		Phone:             "999-999-9999",
		Website:           "example.com",
		Linkedin:          "linkedin.com/in/example",
		Github:            "github.com/example",
		Address:           "Moon Street 123",
		CSSTheme:          "/ResuMate/style.css",
		OpenRouterKey:     "your_api_key_here",
		OpenRouterAIModel: "openai/gpt-4.1",
		KnowledgeBase:     "Fetch some example knowlege to see what it looks like",

		EnableEmail:       true,
		EnablePhone:       true,
		EnableWebsite:     true,
		EnableGithub:      true,
		EnableAddress:     true,
		EnableAddressLink: true,
	}
}

// Clone returns a deep copy.
func (v Values) Clone() Values {
	out := v
	out.ResumeKeywords = cloneStrings(v.ResumeKeywords)
	out.JobKeywords = cloneStrings(v.JobKeywords)
	out.OverlappingKeywords = cloneStrings(v.OverlappingKeywords)
	out.Keywords = cloneStrings(v.Keywords)
	out.AvailableProjects = append([]ProjectRef{}, v.AvailableProjects...)
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return append([]string{}, in...)
}

// fields flattens v into its persisted key/value pairs.
func (v Values) fields() (map[string]json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// applyField decodes one persisted setting into v. An undecodable value
// leaves the field untouched.
func (v *Values) applyField(key string, raw json.RawMessage) error {
	wrapped, err := json.Marshal(map[string]json.RawMessage{key: raw})
	if err != nil {
		return err
	}
	next := v.Clone()
	if err := json.Unmarshal(wrapped, &next); err != nil {
		return err
	}
	*v = next
	return nil
}

// SettingKeys are the profile fields edited on the settings screen.
var SettingKeys = []string{
	"name", "email", "phone", "website", "linkedin", "github", "address",
	"cssTheme", "openRouterKey", "openRouterAIModel", "knowlegeBase", "resumeTemplate",
	"enableEmail", "enablePhone", "enableWebsite", "enableGithub", "enableLinkedin",
	"enableAddress", "enableAddressLink", "showUSCitizenship",
	"customHeader", "enableCustomHeader", "customCSS", "enableCustomCSS", "hasSeenWelcome",
}

// IsSetting reports whether key is one of SettingKeys.
func IsSetting(key string) bool {
	for _, k := range SettingKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Settings returns the profile settings of v keyed by persisted name.
func (v Values) Settings() (map[string]json.RawMessage, error) {
	all, err := v.fields()
	if err != nil {
		return nil, err
	}
	out := make(map[string]json.RawMessage, len(SettingKeys))
	for _, k := range SettingKeys {
		out[k] = all[k]
	}
	return out, nil
}
