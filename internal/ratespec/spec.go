// Package ratespec parses submission rate expressions and run durations.
//
// A rate expression is either a single time token ("5/s", "2s", "10") or a
// range of two tokens separated by a dash ("5/s-10/s"). Bare numbers are read as
// submissions per second.
package ratespec

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// DefaultRate is used when no rate expression is supplied.
const DefaultRate = "1/s"

// Field names identify which part of an expression failed to parse.
const (
	FieldRate     = "target rate"
	FieldMinRate  = "min target rate"
	FieldMaxRate  = "max target rate"
	FieldDuration = "duration"
)

// ErrRangeInverted is returned when the minimum of a range is faster than its maximum.
var ErrRangeInverted = errors.New("min target rate is greater than max target rate")

// ParseError reports an expression that could not be parsed.
type ParseError struct {
	Field string
	Input string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unable to parse provided %s %q: %v", e.Field, e.Input, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Spec is a fixed rate or an inclusive range of rates. A fixed rate has Min == Max.
type Spec struct {
	Min Time
	Max Time
}

// Fixed returns a Spec that always yields t.
func Fixed(t Time) Spec {
	return Spec{Min: t, Max: t}
}

// Parse turns a rate expression into a Spec.
func Parse(s string) (Spec, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		s = DefaultRate
	}

	if !strings.Contains(s, "-") {
		t, err := parseToken(s)
		if err != nil {
			return Spec{}, &ParseError{Field: FieldRate, Input: s, Err: err}
		}
		return Fixed(t), nil
	}

	parts := strings.Split(s, "-")
	if len(parts) != 2 {
		return Spec{}, &ParseError{Field: FieldRate, Input: s, Err: errors.New("expected exactly one '-' separating min and max")}
	}

	min, err := parseToken(parts[0])
	if err != nil {
		return Spec{}, &ParseError{Field: FieldMinRate, Input: parts[0], Err: err}
	}
	max, err := parseToken(parts[1])
	if err != nil {
		return Spec{}, &ParseError{Field: FieldMaxRate, Input: parts[1], Err: err}
	}
	if min.PerSecond() > max.PerSecond() {
		return Spec{}, &ParseError{Field: FieldRate, Input: s, Err: ErrRangeInverted}
	}
	return Spec{Min: min, Max: max}, nil
}

// IsFixed reports whether the spec collapses to a single rate.
func (s Spec) IsFixed() bool {
	return s.Min == s.Max || s.Min.Millis() == s.Max.Millis()
}

// Sample picks the rate a worker runs at. Fixed specs return Min unchanged. Ranges
// draw a wait uniformly from [Max.Millis(), Min.Millis()], both ends inclusive, and
// invert it to submissions per second.
func (s Spec) Sample(rng *rand.Rand) Time {
	if s.IsFixed() || rng == nil {
		return s.Min
	}
	lo, hi := s.Max.Millis(), s.Min.Millis()
	const steps = 1 << 53
	u := float64(rng.Int63n(steps+1)) / steps
	wait := lo + u*(hi-lo)
	return PerSecond(1000 / wait)
}

func (s Spec) String() string {
	if s.IsFixed() {
		return s.Min.String()
	}
	return s.Min.String() + "-" + s.Max.String()
}

// ParseDuration parses an optional run duration. An empty string yields 0, which
// means the run continues until it is stopped.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	t, err := ParseTime(s)
	if err != nil {
		return 0, &ParseError{Field: FieldDuration, Input: s, Err: err}
	}
	if t.Kind != KindDuration {
		return 0, &ParseError{Field: FieldDuration, Input: s, Err: errors.New("expected a span such as 30s, 5m or 1h, got a rate")}
	}
	return t.Duration(), nil
}
