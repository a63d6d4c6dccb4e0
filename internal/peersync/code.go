package peersync

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
)

var codeWords = []string{"cat", "dog", "fish", "bird", "tree", "star", "moon", "sun", "rock", "wave"}

var codeRe = regexp.MustCompile(`^[a-z]+-[a-z]+-[0-9]{2}$`)

// NewCode returns a pairing code such as "moon-fish-07".
func NewCode() string {
	return fmt.Sprintf("%s-%s-%02d",
		codeWords[rand.IntN(len(codeWords))],
		codeWords[rand.IntN(len(codeWords))],
		rand.IntN(99))
}

// NormalizeCode trims and lower-cases a typed code and reports whether it has
// the word-word-NN shape.
func NormalizeCode(code string) (string, bool) {
	code = strings.ToLower(strings.TrimSpace(code))
	return code, codeRe.MatchString(code)
}
