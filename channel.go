package gio

import (
	"github.com/reactorgo/gio/internal/poller"
)

// Interest bits a Channel can register, re-exported from the poller
// package's platform-neutral event space so callers never need to import
// internal/poller directly.
const (
	EventNone  = poller.EventNone
	EventRead  = poller.EventRead
	EventWrite = poller.EventWrite
)

// Channel couples a single file descriptor's OS-level readiness to
// user-level callbacks. A Channel is owned by exactly one EventLoop and
// must only be touched from that loop's thread; handleEvent is the sole
// entry point the loop's dispatch pass uses.
type Channel struct {
	loop *EventLoop
	fd   int

	interest uint32
	ready    uint32
	index    int

	tied     bool
	tieGuard func() bool

	readCallback  func(t TimePoint)
	writeCallback func()
	closeCallback func()
	errorCallback func()
}

func newChannel(loop *EventLoop, fd int) *Channel {
	return &Channel{loop: loop, fd: fd, index: poller.StateNew}
}

// NewChannel constructs a Channel for fd on loop. The Channel starts with
// no interest registered; callers enable reading/writing once callbacks
// are wired.
func NewChannel(loop *EventLoop, fd int) *Channel {
	return newChannel(loop, fd)
}

// FD returns the underlying descriptor.
func (c *Channel) FD() int { return c.fd }

// Interest implements poller.Channel.
func (c *Channel) Interest() uint32 { return c.interest }

// SetReady implements poller.Channel; only the Demultiplexer calls this.
func (c *Channel) SetReady(mask uint32) { c.ready = mask }

// Index implements poller.Channel.
func (c *Channel) Index() int { return c.index }

// SetIndex implements poller.Channel.
func (c *Channel) SetIndex(i int) { c.index = i }

// SetReadCallback installs the callback fired for readable/priority-read
// readiness, receiving the TimePoint the enclosing poll call returned.
func (c *Channel) SetReadCallback(cb func(t TimePoint)) { c.readCallback = cb }

// SetWriteCallback installs the callback fired for writable readiness.
func (c *Channel) SetWriteCallback(cb func()) { c.writeCallback = cb }

// SetCloseCallback installs the callback fired on hang-up.
func (c *Channel) SetCloseCallback(cb func()) { c.closeCallback = cb }

// SetErrorCallback installs the callback fired on a reported socket error.
func (c *Channel) SetErrorCallback(cb func()) { c.errorCallback = cb }

// Tie attaches a lifetime guard: handleEvent only dispatches to callbacks
// while guard() returns true. This stands in for the source's weak
// back-reference ("tie") — Go's GC already prevents the dangling-pointer
// hazard the original worried about, so the guard's only job is ordering:
// it must return false once the owning Connection has been torn down, so
// a readiness event racing with connectDestroyed is dropped rather than
// reaching user code.
func (c *Channel) Tie(guard func() bool) {
	c.tied = true
	c.tieGuard = guard
}

// EnableReading registers READ interest.
func (c *Channel) EnableReading() { c.update(c.interest | EventRead) }

// DisableReading clears READ interest.
func (c *Channel) DisableReading() { c.update(c.interest &^ EventRead) }

// EnableWriting registers WRITE interest.
func (c *Channel) EnableWriting() { c.update(c.interest | EventWrite) }

// DisableWriting clears WRITE interest.
func (c *Channel) DisableWriting() { c.update(c.interest &^ EventWrite) }

// DisableAll clears every interest.
func (c *Channel) DisableAll() { c.update(EventNone) }

// IsWriting reports whether WRITE interest is currently registered.
func (c *Channel) IsWriting() bool { return c.interest&EventWrite != 0 }

// IsReading reports whether READ interest is currently registered.
func (c *Channel) IsReading() bool { return c.interest&EventRead != 0 }

func (c *Channel) update(interest uint32) {
	c.interest = interest
	c.loop.updateChannel(c)
}

// Remove unregisters the Channel from its owner loop's Demultiplexer.
func (c *Channel) Remove() {
	c.loop.removeChannel(c)
}

// handleEvent is the loop's sole dispatch entry point for this Channel,
// invoked once per pass for every Channel the Demultiplexer reported
// ready. Dispatch order: hang-up (without pending read) first, then
// error, then read, then write — matching the core's priority.
func (c *Channel) handleEvent(t TimePoint) {
	if c.tied && !c.tieGuard() {
		return
	}
	if c.ready&poller.EventHangup != 0 && c.ready&poller.EventRead == 0 {
		if c.closeCallback != nil {
			c.closeCallback()
		}
	}
	if c.ready&poller.EventError != 0 {
		if c.errorCallback != nil {
			c.errorCallback()
		}
	}
	if c.ready&poller.EventRead != 0 {
		if c.readCallback != nil {
			c.readCallback(t)
		}
	}
	if c.ready&poller.EventWrite != 0 {
		if c.writeCallback != nil {
			c.writeCallback()
		}
	}
}
