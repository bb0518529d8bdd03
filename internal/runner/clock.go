package runner

import "time"

// Clock is the time source workers pace themselves against.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SystemClock reads the wall clock.
var SystemClock Clock = systemClock{}
