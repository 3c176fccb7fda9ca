// Package textrepair fixes text that Meta export tooling writes as UTF-8 bytes
// reinterpreted as Latin-1 code points.
package textrepair

import (
	"regexp"
	"strconv"
	"unicode/utf8"

	"github.com/tidwall/gjson"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"
)

var escapeRe = regexp.MustCompile(`\\u([0-9a-fA-F]{4})`)

// Decode resolves literal \uXXXX escapes and, when the Latin-1-as-UTF-8
// signature is present, re-decodes the low bytes as UTF-8. When re-decoding
// fails the escape-resolved text is returned unchanged.
func Decode(input string) string {
	if input == "" {
		return input
	}

	resolved := escapeRe.ReplaceAllStringFunc(input, func(m string) string {
		n, err := strconv.ParseUint(m[2:], 16, 32)
		if err != nil {
			return m
		}
		return string(rune(n))
	})

	if !hasMojibake(resolved) {
		return resolved
	}

	raw, err := charmap.ISO8859_1.NewEncoder().String(resolved)
	if err != nil || !utf8.ValidString(raw) {
		return resolved
	}
	return norm.NFC.String(raw)
}

// hasMojibake reports whether a code point in U+00C0..U+00FF is directly
// followed by one in U+0080..U+00BF, the shape of a UTF-8 lead byte and
// continuation byte read as Latin-1.
func hasMojibake(s string) bool {
	var prev rune = -1
	for _, r := range s {
		if prev >= 0xC0 && prev <= 0xFF && r >= 0x80 && r <= 0xBF {
			return true
		}
		prev = r
	}
	return false
}

// String returns the repaired string form of a gjson result. Extractors read
// every JSON string value through it.
func String(r gjson.Result) string {
	return Decode(r.String())
}
