package tuning

import (
	"regexp"
	"strings"
)

var (
	wholeFenceRe = regexp.MustCompile("(?s)^\\s*```[a-zA-Z0-9_-]*[ \\t]*\\n(.*?)\\n?```\\s*$")
	blankRunRe   = regexp.MustCompile(`\n{3,}`)
	headingRe    = regexp.MustCompile(`(?m)^#{1,6}\s`)

	typography = strings.NewReplacer(
		// dashes
		"\u2010", "-", "\u2011", "-", "\u2012", "-", "\u2013", "-", "\u2014", "-", "\u2015", "-", "\u2212", "-",
		// quotes
		"\u2018", "'", "\u2019", "'", "\u201a", "'", "\u201b", "'", "\u2032", "'",
		"\u201c", "\"", "\u201d", "\"", "\u201e", "\"", "\u201f", "\"", "\u2033", "\"",
		// spaces
		"\u00a0", " ", "\u2002", " ", "\u2003", " ", "\u2004", " ", "\u2005", " ", "\u2006", " ",
		"\u2007", " ", "\u2008", " ", "\u2009", " ", "\u200a", " ", "\u202f", " ", "\u205f", " ", "\u3000", " ",
		// zero width
		"\u200b", "", "\u200c", "", "\u200d", "", "\u2060", "", "\ufeff", "",
		// bullets
		"\u2022", "-", "\u2023", "-", "\u2043", "-", "\u25cf", "-", "\u25e6", "-", "\u2219", "-",
		// ellipsis
		"\u2026", "...",
		// superscripts
		"\u00b9", "1", "\u00b2", "2", "\u00b3", "3", "\u2070", "0", "\u2074", "4", "\u2075", "5",
		"\u2076", "6", "\u2077", "7", "\u2078", "8", "\u2079", "9", "\u207a", "+",
	)
)

// lightSanitize is applied to partial output while it streams.
func lightSanitize(content string) string {
	if strings.TrimSpace(content) == "" {
		return content
	}
	cleaned := strings.ReplaceAll(content, "```", "")
	if !strings.HasPrefix(cleaned, "##") {
		if i := strings.Index(cleaned, "##"); i >= 0 {
			cleaned = cleaned[i:]
		}
	}
	return cleaned
}

// Sanitize normalizes a finished model answer into resume markdown. It
// returns "" when nothing usable remains.
func Sanitize(content string) string {
	if m := wholeFenceRe.FindStringSubmatch(content); m != nil {
		content = m[1]
	}
	content = strings.ReplaceAll(content, "```", "")
	content = typography.Replace(content)
	content = strings.ReplaceAll(content, "\r\n", "\n")

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.Trim(line, " \t")
	}
	content = strings.Join(lines, "\n")
	content = blankRunRe.ReplaceAllString(content, "\n\n")

	if loc := headingRe.FindStringIndex(content); loc != nil {
		content = content[loc[0]:]
	}
	return strings.TrimSpace(content)
}
