// Package worldtime derives simulation WorldTime from the real wall clock in
// a fixed IANA timezone, per spec.md S3/S4.5.
package worldtime

import (
	"fmt"
	"time"
)

// WorldTime is the simulation's notion of the current moment.
type WorldTime struct {
	Hour   int // 0-23
	Minute int // 0-59
	Day    int // >= 1
}

func (t WorldTime) String() string {
	return fmt.Sprintf("day %d %02d:%02d", t.Day, t.Hour, t.Minute)
}

// Clock derives WorldTime from the real clock, anchored at ServerStart, in a
// fixed timezone. It is the sole source of truth for "now" in the engine.
type Clock struct {
	Location    *time.Location
	ServerStart time.Time
}

// NewClock loads the given IANA timezone and anchors the clock at start.
func NewClock(timezone string, start time.Time) (*Clock, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	return &Clock{Location: loc, ServerStart: start}, nil
}

// Now returns the current WorldTime, deriving Day as
// floor((now-serverStart)/24h)+1.
func (c *Clock) Now() WorldTime {
	now := time.Now().In(c.Location)
	elapsed := now.Sub(c.ServerStart)
	day := int(elapsed/(24*time.Hour)) + 1
	if day < 1 {
		day = 1
	}
	return WorldTime{Hour: now.Hour(), Minute: now.Minute(), Day: day}
}

// RealNow returns the real wall-clock instant in the clock's timezone,
// needed by callers that want sub-minute precision (decay elapsed time).
func (c *Clock) RealNow() time.Time {
	return time.Now().In(c.Location)
}
