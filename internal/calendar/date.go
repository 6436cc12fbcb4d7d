// Package calendar resolves the free-form slot date strings stored on
// appointments into a naive calendar day that can be compared for equality.
package calendar

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrUnresolvable is matched by every *UnresolvableError.
var ErrUnresolvable = errors.New("date unresolvable")

// UnresolvableError carries the original input that could not be resolved.
type UnresolvableError struct {
	Input  string
	Reason string
}

func (e *UnresolvableError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("date unresolvable: %q", e.Input)
	}
	return fmt.Sprintf("date unresolvable: %q: %s", e.Input, e.Reason)
}

func (e *UnresolvableError) Is(target error) bool {
	return target == ErrUnresolvable
}

// Date is a naive calendar day. Month is 0-based (0=Jan .. 11=Dec).
type Date struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

// FromTime takes the calendar day of t as written in t's own location.
func FromTime(t time.Time) Date {
	return Date{Year: t.Year(), Month: int(t.Month()) - 1, Day: t.Day()}
}

func (d Date) Equal(other Date) bool {
	return d == other
}

// Time returns midnight UTC of the day.
func (d Date) Time() time.Time {
	return time.Date(d.Year, time.Month(d.Month+1), d.Day, 0, 0, 0, 0, time.UTC)
}

// String formats the day as YYYY-MM-DD.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month+1, d.Day)
}

// SlotString formats the day the way bookings store it (D_M_YYYY).
// Writers must go through this so that stored and filtered dates share one path.
func (d Date) SlotString() string {
	return fmt.Sprintf("%d_%d_%d", d.Day, d.Month+1, d.Year)
}

var (
	isoPattern        = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	dayFirstPattern   = regexp.MustCompile(`^\d{2}-\d{2}-\d{4}$`)
	underscorePattern = regexp.MustCompile(`^\d{1,2}_\d{1,2}_\d{4}$`)
	leadingIntPattern = regexp.MustCompile(`^[+-]?\d+`)
	textYearPattern   = regexp.MustCompile(`^\d{4,}$`)
)

var monthAbbrevs = [12]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

// fallbackLayouts are tried in order once none of the known slot formats match.
var fallbackLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-1-2",
	"2006/1/2",
	"1/2/2006",
	"January 2, 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"2 Jan 2006",
	"2 January 2006",
	"Mon Jan 2 2006",
	"Mon, 02 Jan 2006",
	time.RFC1123,
	time.RFC1123Z,
	time.RFC850,
	time.ANSIC,
}

// Resolve converts s into a Date. Forms are tried in this order:
//
//	YYYY-MM-DD
//	DD-MM-YYYY
//	D_M_YYYY / DD_MM_YYYY
//	"<day> <Mon> <year>" (e.g. "23 May 2025")
//	generic layouts (RFC 3339, "January 2, 2006", ...)
//
// The returned error is always an *UnresolvableError.
func Resolve(s string) (Date, error) {
	v := strings.TrimSpace(s)
	if v == "" {
		return Date{}, &UnresolvableError{Input: s, Reason: "empty"}
	}

	switch {
	case isoPattern.MatchString(v):
		p := strings.Split(v, "-")
		return fromParts(s, p[0], p[1], p[2])
	case dayFirstPattern.MatchString(v):
		p := strings.Split(v, "-")
		return fromParts(s, p[2], p[1], p[0])
	case underscorePattern.MatchString(v):
		p := strings.Split(v, "_")
		return fromParts(s, p[2], p[1], p[0])
	}

	if d, ok, err := resolveText(s, v); ok {
		return d, err
	}

	for _, layout := range fallbackLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return FromTime(t), nil
		}
	}

	return Date{}, &UnresolvableError{Input: s, Reason: "unrecognised format"}
}

// MustResolve is Resolve for literals known to be valid.
func MustResolve(s string) Date {
	d, err := Resolve(s)
	if err != nil {
		panic(err)
	}
	return d
}

// resolveText handles "<day> <Mon> <year>". ok is false when the input does not
// have that shape, so the caller can keep trying other forms. The last token must
// be a bare year; anything trailing it (a time, a zone) is not this form.
func resolveText(input, v string) (Date, bool, error) {
	fields := strings.Fields(v)
	if len(fields) < 3 {
		return Date{}, false, nil
	}

	last := strings.TrimRight(fields[len(fields)-1], ",")
	if !textYearPattern.MatchString(last) {
		return Date{}, false, nil
	}

	day, okDay := leadingInt(fields[0])
	year, okYear := leadingInt(last)

	month := -1
	for i, abbrev := range monthAbbrevs {
		if strings.Contains(v, abbrev) {
			month = i
			break
		}
	}

	if !okDay || !okYear || month < 0 {
		return Date{}, false, nil
	}

	d, err := validate(input, year, month+1, day)
	return d, true, err
}

func fromParts(input, year, month, day string) (Date, error) {
	y, err := strconv.Atoi(year)
	if err != nil {
		return Date{}, &UnresolvableError{Input: input, Reason: "bad year"}
	}
	m, err := strconv.Atoi(month)
	if err != nil {
		return Date{}, &UnresolvableError{Input: input, Reason: "bad month"}
	}
	d, err := strconv.Atoi(day)
	if err != nil {
		return Date{}, &UnresolvableError{Input: input, Reason: "bad day"}
	}
	return validate(input, y, m, d)
}

// validate takes a 1-based month and rejects anything that is not a real day.
func validate(input string, year, month, day int) (Date, error) {
	if year < 1 || year > 9999 {
		return Date{}, &UnresolvableError{Input: input, Reason: "year out of range"}
	}
	if month < 1 || month > 12 {
		return Date{}, &UnresolvableError{Input: input, Reason: "month out of range"}
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if day < 1 || t.Day() != day || int(t.Month()) != month {
		return Date{}, &UnresolvableError{Input: input, Reason: "no such day"}
	}
	return Date{Year: year, Month: month - 1, Day: day}, nil
}

// leadingInt parses the leading digits of s ("23," -> 23, "23rd" -> 23).
func leadingInt(s string) (int, bool) {
	m := leadingIntPattern.FindString(s)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return n, true
}
