package gio

import "errors"

// Programmer-error sentinels (spec ERROR HANDLING DESIGN, "Programmer
// errors"): returned to the caller or logged, never panicked.
var (
	// ErrNilLoop is returned when a component is constructed against a nil
	// EventLoop.
	ErrNilLoop = errors.New("gio: event loop is nil")

	// ErrLoopExists is returned by NewEventLoop when the calling goroutine
	// already owns one (spec: "at most one EventLoop per OS thread").
	ErrLoopExists = errors.New("gio: an EventLoop already exists on this thread")

	// ErrInvalidAddress is returned for an address that cannot be resolved
	// to a single IPv4 endpoint.
	ErrInvalidAddress = errors.New("gio: invalid or unresolvable address")

	// ErrThreadNumAfterStart is logged at Error level when SetThreadNum is
	// called after Start; the call is then ignored.
	ErrThreadNumAfterStart = errors.New("gio: SetThreadNum must be called before Start")

	// ErrLoopClosed is logged at Warn level when QueueInLoop is called on an
	// EventLoop that has already been told to quit; the task is still
	// queued and may or may not run.
	ErrLoopClosed = errors.New("gio: event loop has quit")
)
