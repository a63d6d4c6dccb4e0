package util

import (
	"errors"
	"strings"
	"unicode/utf8"
)

const maxLabelLen = 64

var errBadName = errors.New("invalid file name")

// SanitizeFileName turns a user label into a single object-key segment:
// separators become "_", inner whitespace becomes "-", and the result is
// capped at 64 characters. Traversal and blank labels are rejected.
func SanitizeFileName(name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", errBadName
	}
	s := strings.NewReplacer("/", "_", "\\", "_").Replace(strings.TrimSpace(name))
	s = strings.Join(strings.Fields(s), "-")
	if s == "" {
		return "", errBadName
	}
	for utf8.RuneCountInString(s) > maxLabelLen {
		_, size := utf8.DecodeLastRuneInString(s)
		s = s[:len(s)-size]
	}
	return s, nil
}
