package engine

import "time"

// Clock abstracts time.Now() so callers can pin "now" for deterministic ranking.
// The pure scoring functions never consult a Clock; they take "now" as a parameter.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the standard time package.
type RealClock struct{}

// Now returns the current local time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// FixedClock always reports the same instant.
type FixedClock time.Time

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time {
	return time.Time(c)
}
