// Package gid extracts the calling goroutine's runtime-assigned id. It
// exists for exactly one purpose: letting an EventLoop tell whether the
// code calling RunInLoop/QueueInLoop is already running on the loop's own
// goroutine, which is the Go-native stand-in for the core's "owner thread
// id" check (spec.md's CurrentThread / "at most one EventLoop per OS
// thread"). This is not a hot-path primitive — it is read once per
// cross-goroutine task submission, not per byte.
package gid

import (
	"bytes"
	"runtime"
	"strconv"
)

// Get returns the current goroutine's id by parsing the header line of its
// own stack trace ("goroutine 123 [running]:...").
func Get() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseUint(string(b), 10, 64)
	return id
}
