// Package scoring computes keyword overlap between a job description and a resume.
package scoring

import (
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"resumate/internal/keywords"
)

// Snapshot is the result of one scoring pass.
type Snapshot struct {
	JobKeywords    []string `json:"jobKeywords"`
	ResumeKeywords []string `json:"resumeKeywords"`
	Overlap        []string `json:"overlap"`
	Score          float64  `json:"score"`
}

// Score matches both texts against the dictionary and returns the overlap
// percentage. Keyword lists are sorted with English collation and then the
// overlapping keywords are moved to the front, preserving their order.
func Score(jobText, resumeText string, dictionary []string) Snapshot {
	jobKeys := keywords.Match(jobText, dictionary)
	resumeKeys := keywords.Match(resumeText, dictionary)

	inResume := make(map[string]struct{}, len(resumeKeys))
	for _, k := range resumeKeys {
		inResume[strings.ToLower(k)] = struct{}{}
	}

	overlap := []string{}
	score := 0.0
	if len(jobKeys) > 0 {
		increment := 100.0 / float64(len(jobKeys))
		for _, k := range jobKeys {
			if _, ok := inResume[strings.ToLower(k)]; ok {
				overlap = append(overlap, k)
				score += increment
			}
		}
	}
	if score > 99.95 {
		score = 100
	}

	sortLocale(jobKeys)
	sortLocale(resumeKeys)
	sortLocale(overlap)

	return Snapshot{
		JobKeywords:    promote(jobKeys, overlap),
		ResumeKeywords: promote(resumeKeys, overlap),
		Overlap:        overlap,
		Score:          score,
	}
}

func sortLocale(list []string) {
	if len(list) < 2 {
		return
	}
	// Collators keep internal buffers, so each call gets its own.
	collate.New(language.English).SortStrings(list)
}

// promote returns list with members of front moved ahead of everything else.
// Both partitions keep their relative order.
func promote(list, front []string) []string {
	members := make(map[string]struct{}, len(front))
	for _, k := range front {
		members[strings.ToLower(k)] = struct{}{}
	}
	head := make([]string, 0, len(list))
	tail := make([]string, 0, len(list))
	for _, k := range list {
		if _, ok := members[strings.ToLower(k)]; ok {
			head = append(head, k)
		} else {
			tail = append(tail, k)
		}
	}
	return append(head, tail...)
}
