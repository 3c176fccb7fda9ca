package whatsapp

import (
	"regexp"
	"strings"
)

const datetimePrefix = `^\[?(\d{1,2}[-/.]\d{1,2}[-/.]\d{2,4}),? (\d{1,2}[.:]\d{1,2}(?:[.:]\d{1,2})?)(?: ([ap]\.?m\.?))?\]?`

var (
	recordRe    = regexp.MustCompile(`(?is)` + datetimePrefix + `(?: -|:)? ([^\n]+?): (.*)$`)
	systemRe    = regexp.MustCompile(`(?is)` + datetimePrefix + `(?: -|:)? (.+)$`)
	datetimeRe  = regexp.MustCompile(`(?i)` + datetimePrefix)
	lineCleaner = strings.NewReplacer("\u200e", "", "\u200f", "", "\ufeff", "", "\u202f", " ", "\u00a0", " ", "\r", "")
)

// Line is one logical record of a text export, after multi-line folding.
type Line struct {
	Date   string
	Clock  string
	AMPM   string
	Author string
	Body   string
	System bool
}

type folded struct {
	system bool
	text   string
}

// SplitLines splits raw export text and strips the invisible direction marks
// and narrow spaces some exporters insert.
func SplitLines(raw string) []string {
	return strings.Split(lineCleaner.Replace(raw), "\n")
}

// ParseLines folds continuation lines into the preceding record and splits
// each record into its fields. Lines before the first record are dropped.
func ParseLines(lines []string) []Line {
	var records []folded
	for _, line := range lines {
		switch {
		case recordRe.MatchString(line):
			records = append(records, folded{text: line})
		case datetimeRe.MatchString(line) && systemRe.MatchString(line):
			records = append(records, folded{system: true, text: line})
		case len(records) == 0:
			continue
		default:
			last := &records[len(records)-1]
			last.text += "\n" + line
		}
	}

	out := make([]Line, 0, len(records))
	for _, r := range records {
		if r.system {
			m := systemRe.FindStringSubmatch(r.text)
			if m == nil {
				continue
			}
			out = append(out, Line{Date: m[1], Clock: m[2], AMPM: m[3], Body: m[4], System: true})
			continue
		}
		m := recordRe.FindStringSubmatch(r.text)
		if m == nil {
			continue
		}
		out = append(out, Line{Date: m[1], Clock: m[2], AMPM: m[3], Author: m[4], Body: m[5]})
	}
	return out
}

// Authors returns distinct non-system authors in order of first appearance.
func Authors(lines []Line) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, l := range lines {
		if l.System {
			continue
		}
		if _, ok := seen[l.Author]; ok {
			continue
		}
		seen[l.Author] = struct{}{}
		out = append(out, l.Author)
	}
	return out
}
