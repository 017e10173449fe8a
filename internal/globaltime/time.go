// Package globaltime is the process-wide clock. Tests can freeze it with
// SetMockTime and restore it with ResetTime.
package globaltime

import (
	"sync"
	"time"
)

var (
	mu     sync.RWMutex
	frozen *time.Time
)

// Now returns the current time or the mocked time when one is set.
func Now() time.Time {
	mu.RLock()
	defer mu.RUnlock()
	if frozen != nil {
		return *frozen
	}
	return time.Now()
}

// UTC returns Now in UTC.
func UTC() time.Time {
	return Now().UTC()
}

// SetMockTime freezes the clock at t until ResetTime is called.
func SetMockTime(t time.Time) {
	mu.Lock()
	defer mu.Unlock()
	frozen = &t
}

// ResetTime restores the real clock.
func ResetTime() {
	mu.Lock()
	defer mu.Unlock()
	frozen = nil
}
