package extraction

import (
	"regexp"
	"strconv"
	"time"
)

// datePattern is one date form. Patterns are tried in order; a span matched by
// an earlier pattern is not matched again by a later one.
type datePattern struct {
	kind  DateKind
	regex *regexp.Regexp
}

var defaultDatePatterns = []datePattern{
	{kind: DateKindDeadline, regex: regexp.MustCompile(`(?i)до (\d{1,2})[./](\d{1,2})[./]?(\d{2,4})?`)},
	{kind: DateKindDeadline, regex: regexp.MustCompile(`(?i)к (\d{1,2})[./](\d{1,2})`)},
	{kind: DateKindDate, regex: regexp.MustCompile(`(\d{1,2})[./](\d{1,2})[./]?(\d{2,4})?`)},
}

type span struct{ start, end int }

func (s span) overlaps(o span) bool {
	return s.start < o.end && o.start < s.end
}

// findDates returns date candidates for one message in pattern priority order.
func findDates(patterns []datePattern, msg Message, now time.Time) []DateCandidate {
	var (
		claimed []span
		out     []DateCandidate
	)
	for _, p := range patterns {
		for _, idx := range p.regex.FindAllStringSubmatchIndex(msg.Text, -1) {
			s := span{start: idx[0], end: idx[1]}
			if overlapsAny(claimed, s) {
				continue
			}
			claimed = append(claimed, s)

			day := group(msg.Text, idx, 1)
			month := group(msg.Text, idx, 2)
			year := group(msg.Text, idx, 3)
			d, ok := resolveDate(day, month, year, now)
			if !ok {
				continue
			}
			out = append(out, DateCandidate{Date: d, Kind: p.kind, SourceIndex: msg.Ordinal})
		}
	}
	return out
}

func overlapsAny(claimed []span, s span) bool {
	for _, c := range claimed {
		if c.overlaps(s) {
			return true
		}
	}
	return false
}

func group(text string, idx []int, n int) string {
	if 2*n+1 >= len(idx) || idx[2*n] < 0 {
		return ""
	}
	return text[idx[2*n]:idx[2*n+1]]
}

// resolveDate validates the numeric parts and builds a UTC date. A two-digit
// year gets 2000 added; a missing year takes the year of now.
func resolveDate(dayStr, monthStr, yearStr string, now time.Time) (time.Time, bool) {
	day, err := strconv.Atoi(dayStr)
	if err != nil {
		return time.Time{}, false
	}
	month, err := strconv.Atoi(monthStr)
	if err != nil {
		return time.Time{}, false
	}

	year := now.Year()
	if yearStr != "" {
		year, err = strconv.Atoi(yearStr)
		if err != nil {
			return time.Time{}, false
		}
		switch {
		case len(yearStr) == 2:
			year += 2000
		case year < 1000:
			return time.Time{}, false
		}
	}

	if month < 1 || month > 12 || day < 1 {
		return time.Time{}, false
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if d.Day() != day || int(d.Month()) != month {
		// 31.02 and friends normalize into the next month.
		return time.Time{}, false
	}
	return d, true
}
