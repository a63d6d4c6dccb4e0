// Package keywords finds dictionary keywords inside free text.
package keywords

import (
	"regexp"
	"strings"
	"sync"
)

// placeholder replaces every consumed occurrence so that a shorter keyword
// cannot match inside text already claimed by a longer one.
const placeholder = " __MATCHED__ "

var (
	commentRe = regexp.MustCompile(`<!--[\s\S]*?-->`)
	symbolRe  = regexp.MustCompile(`[^\w\s]`)

	patterns sync.Map // lower-cased keyword -> *regexp.Regexp
)

// Match returns the keywords that occur in text, in keyword-list order and
// with the keyword list's casing. Callers pass the dictionary sorted by
// descending length so longer phrases win over their substrings.
func Match(text string, keywords []string) []string {
	found := []string{}
	if strings.TrimSpace(text) == "" || len(keywords) == 0 {
		return found
	}

	clean := commentRe.ReplaceAllString(strings.ToLower(text), "")
	for _, kw := range keywords {
		re := patternFor(kw)
		if re == nil {
			continue
		}
		if re.MatchString(clean) {
			found = append(found, kw)
			clean = re.ReplaceAllLiteralString(clean, placeholder)
		}
	}
	return found
}

func patternFor(kw string) *regexp.Regexp {
	lower := strings.ToLower(strings.TrimSpace(kw))
	if lower == "" {
		return nil
	}
	if cached, ok := patterns.Load(lower); ok {
		return cached.(*regexp.Regexp)
	}

	escaped := regexp.QuoteMeta(lower)
	var expr string
	if loose(lower) {
		expr = `(?i)(?:^|\s)` + escaped + `(?:\s|$|\.|,|;|:|\))`
	} else {
		expr = `(?i)\b` + escaped + `\b`
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil
	}
	actual, _ := patterns.LoadOrStore(lower, re)
	return actual.(*regexp.Regexp)
}

// loose reports whether kw needs whitespace/punctuation boundaries instead of
// word boundaries: phrases, and tokens such as "c++", "c#" or "node.js".
func loose(kw string) bool {
	return strings.Contains(kw, " ") || strings.Contains(kw, ".") || symbolRe.MatchString(kw)
}
