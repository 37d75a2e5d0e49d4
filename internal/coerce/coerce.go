// Package coerce converts loosely-typed OCR extraction output into canonical
// values. Every function in this package accepts arbitrary input and returns
// a concrete value; malformed or placeholder input maps to the type's zero
// value instead of an error.
package coerce

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// NotFound is the canonical sentinel for fields the extraction could not read.
const NotFound = "Nicht gefunden"

var placeholders = map[string]struct{}{
	"":               {},
	"nicht gefunden": {},
	"not found":      {},
	"unsicher":       {},
	"none":           {},
	"null":           {},
	"n/a":            {},
}

// IsPlaceholder reports whether s is one of the known "could not read" tokens.
func IsPlaceholder(s string) bool {
	_, ok := placeholders[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// Float parses a money-like value. It disambiguates European ("1.234,56") and
// US ("1,234.56") separator conventions by the position of the last comma and
// the last dot. Placeholders and unparseable input return 0.
func Float(v any) float64 {
	switch n := v.(type) {
	case nil:
		return 0
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}

	s := strings.TrimSpace(fmt.Sprint(v))
	if IsPlaceholder(s) {
		return 0
	}

	s = strings.TrimSpace(strings.TrimSuffix(s, "€"))
	s = strings.TrimSpace(strings.TrimPrefix(s, "€"))

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0 && lastComma > lastDot:
		// European: dot is the thousands separator.
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	case lastComma >= 0 && lastDot >= 0:
		// US: comma is the thousands separator.
		s = strings.ReplaceAll(s, ",", "")
	case lastComma >= 0:
		s = strings.ReplaceAll(s, ",", ".")
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// Int parses an integer, stripping thousands separators. Placeholders and
// unparseable input return 0.
func Int(v any) int {
	switch n := v.(type) {
	case nil:
		return 0
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}

	s := strings.TrimSpace(fmt.Sprint(v))
	if IsPlaceholder(s) {
		return 0
	}
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", "")

	i, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return i
}

// DateLayout is the canonical document date format.
const DateLayout = "02.01.2006"

var (
	weekPattern = regexp.MustCompile(`(?i)KW\s*(\d{1,2})`)
	yearPattern = regexp.MustCompile(`20\d{2}`)
)

// nowFunc is swapped in tests that depend on the current year.
var nowFunc = time.Now

// SmartDate parses "dd.mm.yyyy" (also with '#', '/' or '-' separators) and
// ISO calendar-week tokens like "KW 40" or "KW40 2025", which resolve to the
// Monday of that week. The current year is assumed when none is given.
// Placeholders and anything unparseable return nil.
func SmartDate(v any) *time.Time {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(fmt.Sprint(v))
	if IsPlaceholder(s) {
		return nil
	}

	if m := weekPattern.FindStringSubmatch(s); m != nil {
		week, _ := strconv.Atoi(m[1])
		year := nowFunc().Year()
		if ym := yearPattern.FindString(s); ym != "" {
			year, _ = strconv.Atoi(ym)
		}
		return mondayOfISOWeek(year, week)
	}

	s = strings.NewReplacer("#", ".", "/", ".", "-", ".").Replace(s)
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return nil
	}
	return &t
}

// mondayOfISOWeek returns the Monday of the given ISO week, or nil when the
// week number is outside the year's range.
func mondayOfISOWeek(year, week int) *time.Time {
	if week < 1 || week > 53 {
		return nil
	}
	// Jan 4 is always in ISO week 1.
	t := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	monday := t.AddDate(0, 0, 1-weekday).AddDate(0, 0, (week-1)*7)
	if y, w := monday.ISOWeek(); y != year || w != week {
		return nil
	}
	return &monday
}

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// Currency normalizes a currency code to three uppercase letters, falling
// back to the given default.
func Currency(v any, fallback string) string {
	s := strings.ToUpper(strings.TrimSpace(fmt.Sprint(v)))
	if v == nil || IsPlaceholder(s) {
		return fallback
	}
	switch s {
	case "€", "EURO":
		return "EUR"
	case "$":
		return "USD"
	}
	if currencyPattern.MatchString(s) {
		return s
	}
	return fallback
}

// Discount is a normalized discount: either a percentage or an absolute
// amount.
type Discount struct {
	IsPercent bool    `json:"isPercent"`
	Value     float64 `json:"value"`
}

// ParseDiscount parses "10 %", "10,5%" or an absolute amount like "25,00".
// Placeholders return a zero discount.
func ParseDiscount(v any) Discount {
	if v == nil {
		return Discount{}
	}
	if f, ok := v.(float64); ok {
		return Discount{Value: f}
	}
	s := strings.TrimSpace(fmt.Sprint(v))
	if IsPlaceholder(s) {
		return Discount{}
	}
	if strings.Contains(s, "%") {
		return Discount{IsPercent: true, Value: Float(strings.TrimSpace(strings.ReplaceAll(s, "%", "")))}
	}
	return Discount{Value: Float(s)}
}

// Reference trims a business reference number, mapping placeholders to the
// NotFound sentinel.
func Reference(v any) string {
	if v == nil {
		return NotFound
	}
	s := strings.TrimSpace(fmt.Sprint(v))
	if IsPlaceholder(s) {
		return NotFound
	}
	return s
}

// Round2 rounds to two decimal places, the resolution of all money values.
func Round2(f float64) float64 {
	return math.Round(f*100) / 100
}
