package server

import "github.com/reactorgo/gio"

// Re-exported so callers of this package never need to import the root
// gio package directly for the types that cross this package's boundary.
type (
	EventLoop = gio.EventLoop
	Buffer    = gio.Buffer
	TimePoint = gio.TimePoint
)
