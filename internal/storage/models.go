package storage

import "time"

// Session is one recorded capture run: a stable UUID for cross-database
// identity, the device label the host supplied, and the serialized sweep
// configuration, when one was recorded.
type Session struct {
	ID        int64
	UUID      string
	StartTime time.Time
	Device    string
	Config    *string
}
