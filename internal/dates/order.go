// Package dates infers the day/month order of ambiguous numeric dates and
// turns text-export date and time fields into epoch milliseconds.
package dates

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Triple is a numeric date as written: [first, second, year].
type Triple [3]int

// Order is the outcome of day/month inference.
type Order int

const (
	Indeterminate Order = iota
	DayFirst
	MonthFirst
)

func (o Order) String() string {
	switch o {
	case DayFirst:
		return "day_first"
	case MonthFirst:
		return "month_first"
	default:
		return "indeterminate"
	}
}

// Heuristic inspects one sequence of distinct triples per file and reports
// whether the day is written first. ok is false when it cannot decide.
type Heuristic func(seqs [][]Triple) (dayFirst, ok bool)

// Cascade is tried in order; the first decisive heuristic wins.
var Cascade = []Heuristic{AboveTwelve, Decreasing, ChangeFrequency}

// Infer runs the cascade. Indeterminate is returned when no heuristic decides;
// callers treat that as month-first and should flag it.
func Infer(seqs [][]Triple) Order {
	for _, h := range Cascade {
		if dayFirst, ok := h(seqs); ok {
			if dayFirst {
				return DayFirst
			}
			return MonthFirst
		}
	}
	return Indeterminate
}

// AboveTwelve decides by a component that cannot be a month.
func AboveTwelve(seqs [][]Triple) (bool, bool) {
	for _, seq := range seqs {
		for _, t := range seq {
			if t[0] > 12 {
				return true, true
			}
		}
	}
	for _, seq := range seqs {
		for _, t := range seq {
			if t[1] > 12 {
				return false, true
			}
		}
	}
	return false, false
}

// Decreasing groups each sequence by year. Within a year, export order is
// chronological, so a position that goes backwards must be the day.
func Decreasing(seqs [][]Triple) (bool, bool) {
	anyTrue, anyFalse := false, false
	for _, seq := range seqs {
		for _, group := range groupByYear(seq) {
			switch {
			case decreases(group, 0):
				anyTrue = true
			case decreases(group, 1):
				anyFalse = true
			}
		}
	}
	if anyTrue {
		return true, true
	}
	if anyFalse {
		return false, true
	}
	return false, false
}

// ChangeFrequency treats the position that varies more between consecutive
// dates as the day.
func ChangeFrequency(seqs [][]Triple) (bool, bool) {
	first, second := 0, 0
	for _, seq := range seqs {
		for i := 1; i < len(seq); i++ {
			first += abs(seq[i][0] - seq[i-1][0])
			second += abs(seq[i][1] - seq[i-1][1])
		}
	}
	switch {
	case first > second:
		return true, true
	case first < second:
		return false, true
	default:
		return false, false
	}
}

func groupByYear(seq []Triple) [][]Triple {
	index := make(map[int]int)
	var groups [][]Triple
	for _, t := range seq {
		i, ok := index[t[2]]
		if !ok {
			i = len(groups)
			index[t[2]] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], t)
	}
	return groups
}

func decreases(seq []Triple, pos int) bool {
	for i := 1; i < len(seq); i++ {
		if seq[i][pos] < seq[i-1][pos] {
			return true
		}
	}
	return false
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// ParseTriple splits a date such as "01/02/2020", "1.2.20" or "1-2-2020".
func ParseTriple(date string) (Triple, error) {
	parts := splitDate(date)
	if len(parts) != 3 {
		return Triple{}, errors.Errorf("invalid date %q", date)
	}
	var t Triple
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Triple{}, errors.Wrapf(err, "invalid date %q", date)
		}
		t[i] = n
	}
	return t, nil
}

// Distinct parses dates and keeps the first occurrence of each, in order.
func Distinct(dates []string) ([]Triple, error) {
	seen := make(map[string]struct{}, len(dates))
	out := make([]Triple, 0)
	for _, d := range dates {
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		t, err := ParseTriple(d)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func splitDate(date string) []string {
	return strings.FieldsFunc(date, func(r rune) bool {
		return r == '-' || r == '/' || r == '.'
	})
}
