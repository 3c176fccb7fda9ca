package dates

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// NormalizeAMPM reduces "a.m.", "pm", "P.M." and similar to "AM" or "PM".
func NormalizeAMPM(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		switch r {
		case 'a', 'A', 'p', 'P', 'm', 'M':
			b.WriteRune(r)
		}
	}
	return strings.ToUpper(b.String())
}

// To24Hour converts a 12-hour clock reading. 12 maps to 00 before the PM shift,
// so 12 AM is midnight and 12 PM is noon.
func To24Hour(clock, ampm string) string {
	parts := splitClock(clock)
	if len(parts) == 0 {
		return clock
	}
	hours := parts[0]
	if hours == "12" {
		hours = "00"
	}
	if ampm == "PM" {
		if h, err := strconv.Atoi(hours); err == nil {
			hours = strconv.Itoa(h + 12)
		}
	}
	parts[0] = hours
	return strings.Join(parts, ":")
}

// NormalizeTime pads hours to two digits and fills missing minutes and seconds.
func NormalizeTime(clock string) string {
	parts := splitClock(clock)
	for len(parts) < 3 {
		parts = append(parts, "00")
	}
	if len(parts[0]) == 1 {
		parts[0] = "0" + parts[0]
	}
	return strings.Join(parts[:3], ":")
}

// NormalizeDate pads a year to four digits ("20" becomes "2020") and month and
// day to two.
func NormalizeDate(year, month, day string) (string, string, string) {
	if len(year) < 4 {
		year = "2000"[:4-len(year)] + year
	}
	return year, pad2(month), pad2(day)
}

// EpochMillis interprets a text-export date and time in loc. Indeterminate
// order is read month-first.
func EpochMillis(date, clock, ampm string, order Order, loc *time.Location) (int64, error) {
	parts := splitDate(date)
	if len(parts) != 3 {
		return 0, errors.Errorf("invalid date %q", date)
	}
	day, month, year := parts[0], parts[1], parts[2]
	if order != DayFirst {
		day, month = month, day
	}
	year, month, day = NormalizeDate(year, month, day)

	if ampm != "" {
		clock = To24Hour(clock, NormalizeAMPM(ampm))
	}
	hms := splitClock(NormalizeTime(clock))

	nums := make([]int, 0, 6)
	for _, field := range []string{year, month, day, hms[0], hms[1], hms[2]} {
		n, err := strconv.Atoi(field)
		if err != nil {
			return 0, errors.Wrapf(err, "invalid datetime %q %q", date, clock)
		}
		nums = append(nums, n)
	}
	if loc == nil {
		loc = time.UTC
	}
	ts := time.Date(nums[0], time.Month(nums[1]), nums[2], nums[3], nums[4], nums[5], 0, loc)
	return ts.UnixMilli(), nil
}

func splitClock(clock string) []string {
	return strings.FieldsFunc(clock, func(r rune) bool { return r == ':' || r == '.' })
}

func pad2(s string) string {
	if len(s) < 2 {
		return strings.Repeat("0", 2-len(s)) + s
	}
	return s
}
