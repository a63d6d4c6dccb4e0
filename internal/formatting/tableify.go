// Package formatting holds markdown rewrites applied before rendering.
package formatting

import "strings"

const alignRow = "\n|:-|-:|\n"

// Tableify turns every "left || right" line into a two-column table with the
// right cell right-aligned. Lines starting with an HTML comment are left alone
// and anything after a second "||" is dropped.
func Tableify(md string) string {
	lines := strings.Split(md, "\n")
	for i, line := range lines {
		if strings.HasPrefix(line, "<!--") || !strings.Contains(line, "||") {
			continue
		}
		parts := strings.Split(line, "||")
		if len(parts) > 2 {
			parts = parts[:2]
		}
		lines[i] = "| " + strings.Join(parts, " | ") + " |" + alignRow
	}
	return strings.Join(lines, "\n")
}
