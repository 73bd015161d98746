// Package utils provides utility functions for the application.
package utils

import (
	"sync"
	"time"
)

// UTCNow returns the current time in UTC
func UTCNow() time.Time {
	return time.Now().UTC()
}

var (
	jakartaOnce sync.Once
	jakartaLoc  *time.Location
)

// JakartaLocation returns the ad platform's home timezone. Scheduled-times
// rules are interpreted in this zone because that is what sellers see in the
// platform dashboard. Falls back to a fixed UTC+7 when tzdata is absent.
func JakartaLocation() *time.Location {
	jakartaOnce.Do(func() {
		loc, err := time.LoadLocation("Asia/Jakarta")
		if err != nil {
			loc = time.FixedZone("WIB", 7*60*60)
		}
		jakartaLoc = loc
	})
	return jakartaLoc
}
