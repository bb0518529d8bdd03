package ratespec

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Unit is the time unit a Time value is expressed in.
type Unit int

const (
	Second Unit = iota
	Minute
	Hour
)

// Kind tells whether a Time is a rate (items per unit) or a span (units per item).
type Kind int

const (
	KindRate Kind = iota
	KindDuration
)

// ErrNotPositive is returned for zero, negative or non-finite magnitudes.
var ErrNotPositive = errors.New("value must be a positive number")

// Time is a numeric magnitude tagged with a unit and a kind. "5/s" is a rate of
// five per second; "2s" is one item every two seconds.
type Time struct {
	Numeric float64
	Unit    Unit
	Kind    Kind
}

// PerSecond builds a rate Time of n items per second.
func PerSecond(n float64) Time {
	return Time{Numeric: n, Unit: Second, Kind: KindRate}
}

// ParseTime parses a single time token. Rates are written "<n>/<unit>" and spans
// "<n><unit>", where unit is one of s, m or h.
func ParseTime(s string) (Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Time{}, errors.New("empty time value")
	}

	kind := KindDuration
	numeric, suffix := s, ""
	if idx := strings.Index(s, "/"); idx != -1 {
		kind = KindRate
		numeric, suffix = s[:idx], s[idx+1:]
	} else {
		numeric, suffix = s[:len(s)-1], s[len(s)-1:]
	}

	unit, err := parseUnit(suffix)
	if err != nil {
		return Time{}, err
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(numeric), 64)
	if err != nil {
		return Time{}, fmt.Errorf("invalid number %q: %w", numeric, err)
	}
	t := Time{Numeric: value, Unit: unit, Kind: kind}
	if err := t.validate(); err != nil {
		return Time{}, err
	}
	return t, nil
}

// parseToken accepts a full time token and falls back to a bare number, which is
// read as a rate per second.
func parseToken(s string) (Time, error) {
	t, err := ParseTime(s)
	if err == nil {
		return t, nil
	}
	if errors.Is(err, ErrNotPositive) {
		return Time{}, err
	}
	value, ferr := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if ferr != nil {
		return Time{}, err
	}
	t = PerSecond(value)
	if verr := t.validate(); verr != nil {
		return Time{}, verr
	}
	return t, nil
}

func parseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "s":
		return Second, nil
	case "m":
		return Minute, nil
	case "h":
		return Hour, nil
	default:
		return 0, fmt.Errorf("unknown time unit %q (use s, m or h)", s)
	}
}

func (t Time) validate() error {
	if math.IsNaN(t.Numeric) || math.IsInf(t.Numeric, 0) || t.Numeric <= 0 {
		return ErrNotPositive
	}
	return nil
}

func (u Unit) millis() float64 {
	switch u {
	case Hour:
		return 3_600_000
	case Minute:
		return 60_000
	default:
		return 1000
	}
}

func (u Unit) String() string {
	switch u {
	case Hour:
		return "h"
	case Minute:
		return "m"
	default:
		return "s"
	}
}

// Millis returns the time in milliseconds. For a rate this is the time between
// two consecutive items.
func (t Time) Millis() float64 {
	if t.Kind == KindRate {
		return t.Unit.millis() / t.Numeric
	}
	return t.Numeric * t.Unit.millis()
}

// PerSecond returns the number of items per second the value represents.
func (t Time) PerSecond() float64 {
	return 1000 / t.Millis()
}

// Interval returns the wait between two items.
func (t Time) Interval() time.Duration {
	return time.Duration(t.Millis() * float64(time.Millisecond))
}

// Duration returns the value as a span of wall-clock time.
func (t Time) Duration() time.Duration {
	return t.Interval()
}

func (t Time) String() string {
	num := strconv.FormatFloat(t.Numeric, 'f', -1, 64)
	if t.Kind == KindRate {
		return num + "/" + t.Unit.String()
	}
	return num + t.Unit.String()
}
