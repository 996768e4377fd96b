// Package system supplies the wall-clock implementation of leads.Clock.
package system

import "time"

// Clock reads real time. Timestamps are normalized to UTC so job rows and
// snapshots compare consistently across hosts.
type Clock struct{}

// New returns a wall clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
