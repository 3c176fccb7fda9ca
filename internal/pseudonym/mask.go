package pseudonym

import (
	"strings"
	"unicode"
)

// Mask keeps the first two characters of every whitespace-separated word and
// replaces each later letter with '*'. Punctuation and digits stay where they
// are, and words of one or two characters are left as they are. Runs of
// whitespace collapse to one space.
func Mask(name string) string {
	words := strings.Fields(name)
	for i, w := range words {
		runes := []rune(w)
		if len(runes) <= 2 {
			continue
		}
		for j := 2; j < len(runes); j++ {
			if unicode.IsLetter(runes[j]) {
				runes[j] = '*'
			}
		}
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
