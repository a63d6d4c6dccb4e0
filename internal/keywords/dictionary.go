package keywords

import (
	"bufio"
	_ "embed"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"unicode/utf8"
)

//go:embed data/keywords.txt
var defaultList string

// ParseDictionary reads one keyword per line. Entries are trimmed and
// lower-cased; blanks and duplicates are dropped. The result is ordered by
// descending length, ties broken lexicographically.
func ParseDictionary(r io.Reader) ([]string, error) {
	seen := make(map[string]struct{})
	out := []string{}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		kw := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if kw == "" {
			continue
		}
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read dictionary: %w", err)
	}

	sort.SliceStable(out, func(i, j int) bool {
		li, lj := utf8.RuneCountInString(out[i]), utf8.RuneCountInString(out[j])
		if li != lj {
			return li > lj
		}
		return out[i] < out[j]
	})
	return out, nil
}

// LoadDictionary parses the dictionary file at path.
func LoadDictionary(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dictionary %s: %w", path, err)
	}
	defer f.Close()
	return ParseDictionary(f)
}

// Default returns the dictionary shipped with the binary.
func Default() []string {
	list, err := ParseDictionary(strings.NewReader(defaultList))
	if err != nil {
		return []string{}
	}
	return list
}
