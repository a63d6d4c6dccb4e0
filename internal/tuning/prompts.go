package tuning

import (
	_ "embed"
	"encoding/json"
	"strconv"
	"strings"
	"text/template"

	"resumate/internal/appstate"
)

var (
	//go:embed prompts/system.txt
	systemPrompt string
	//go:embed prompts/user.tmpl
	userPromptText string

	userPrompt = template.Must(template.New("user").Parse(userPromptText))
)

type userPromptData struct {
	JobDescription string
	JobKeywords    string
	KnowledgeBase  string
	Resume         string
	ResumeKeywords string
	Score          string
	Instructions   string
}

// BuildPrompts renders the system and user prompts for the current state.
func BuildPrompts(v appstate.Values, instructions string) (string, string, error) {
	jobKeys, err := json.Marshal(nonNil(v.JobKeywords))
	if err != nil {
		return "", "", err
	}
	resumeKeys, err := json.Marshal(nonNil(v.ResumeKeywords))
	if err != nil {
		return "", "", err
	}

	var b strings.Builder
	err = userPrompt.Execute(&b, userPromptData{
		JobDescription: v.JobDescription,
		JobKeywords:    string(jobKeys),
		KnowledgeBase:  v.KnowledgeBase,
		Resume:         v.ResumeMd,
		ResumeKeywords: string(resumeKeys),
		Score:          strconv.FormatFloat(v.CombinedScore, 'f', -1, 64),
		Instructions:   strings.TrimSpace(instructions),
	})
	if err != nil {
		return "", "", err
	}
	return strings.TrimSpace(systemPrompt), b.String(), nil
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
