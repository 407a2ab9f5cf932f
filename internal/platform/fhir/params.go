package fhir

import (
	"fmt"
	"strings"
	"time"
)

// TokenParam is a token search parameter of the form "value" or
// "system|value". A nil System matches any system.
type TokenParam struct {
	System *string
	Value  string
}

// ParseToken splits a raw token parameter into system and value. A bare
// value leaves System nil; "system|value" pins the system ("|value" pins it
// to the empty system).
func ParseToken(raw string) TokenParam {
	if i := strings.Index(raw, "|"); i >= 0 {
		system := raw[:i]
		return TokenParam{System: &system, Value: raw[i+1:]}
	}
	return TokenParam{Value: raw}
}

// MatchesCoding reports whether the token matches a single coding pair.
func (t TokenParam) MatchesCoding(system, code string) bool {
	if t.System != nil && *t.System != system {
		return false
	}
	return t.Value == code
}

// DateRange is a closed range built from one or more prefixed date
// parameters (ge/gt/le/lt/eq). Both bounds are inclusive, so gt and lt
// behave like ge and le. Nil bounds are unbounded.
type DateRange struct {
	Lower *time.Time
	Upper *time.Time
}

// dateLayouts lists the precision levels accepted for date parameters,
// from most to least precise.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006-01",
	"2006",
}

func parseDateValue(raw string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", raw)
}

// ParseDateRange builds a DateRange from the repeated values of a date
// search parameter. An unprefixed or eq-prefixed value sets both bounds to
// the day it names.
func ParseDateRange(values []string) (*DateRange, error) {
	if len(values) == 0 {
		return nil, nil
	}
	r := &DateRange{}
	for _, raw := range values {
		prefix := "eq"
		rest := raw
		if len(raw) > 2 {
			switch raw[:2] {
			case "ge", "gt", "le", "lt", "eq":
				prefix = raw[:2]
				rest = raw[2:]
			}
		}
		t, err := parseDateValue(rest)
		if err != nil {
			return nil, err
		}
		switch prefix {
		case "ge", "gt":
			tt := t
			r.Lower = &tt
		case "le", "lt":
			tt := t
			r.Upper = &tt
		case "eq":
			lo := t
			hi := t.AddDate(0, 0, 1)
			r.Lower = &lo
			r.Upper = &hi
		}
	}
	return r, nil
}

// Contains reports whether the instant falls inside the range. A resource
// without the relevant timestamp never matches a range query; callers
// handle that before calling Contains.
func (r *DateRange) Contains(t time.Time) bool {
	if r == nil {
		return true
	}
	if r.Lower != nil && t.Before(*r.Lower) {
		return false
	}
	if r.Upper != nil && t.After(*r.Upper) {
		return false
	}
	return true
}

// MatchesReference reports whether a stored reference matches a reference
// search value. The query may be "Type/id" or a bare "id"; the stored
// reference is compared as written, so a bare stored id matches only an
// identical query. "Patient" is the default subject type.
func MatchesReference(stored, query string) bool {
	if stored == "" || query == "" {
		return false
	}
	return stored == query ||
		strings.HasSuffix(stored, "/"+query) ||
		stored == "Patient/"+query
}

// ParseResourceTimestamp parses a FHIR dateTime or date element value.
func ParseResourceTimestamp(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	t, err := parseDateValue(raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
