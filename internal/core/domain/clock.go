// Package domain defines the core domain models for KeyMesh.
package domain

import "time"

// Clock supplies the current time. Services take a Clock rather than
// calling time.Now directly so expiry behavior is testable.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall-clock implementation of Clock.
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time {
	return time.Now()
}
