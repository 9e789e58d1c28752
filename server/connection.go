package server

import (
	"errors"
	"fmt"

	uatomic "go.uber.org/atomic"
	"golang.org/x/sys/unix"

	"github.com/reactorgo/gio"
	"github.com/reactorgo/gio/internal/logging"
	"github.com/reactorgo/gio/internal/netutil"
)

type connState int32

const (
	stateConnecting connState = iota
	stateConnected
	stateDisconnecting
	stateDisconnected
)

// Connection is a per-client state machine: it owns a connected socket, a
// Channel on its assigned worker loop, and its own input/output Buffers.
// Every method except Send and Shutdown must only be called from the
// owning loop's thread; Send and Shutdown are the thread-safe entry
// points foreign goroutines use.
type Connection struct {
	loop *EventLoop
	name string
	fd   int

	local netutil.Address
	peer  netutil.Address

	channel *gio.Channel
	input   *Buffer
	output  *Buffer

	state         uatomic.Int32
	highWaterMark int
	alive         uatomic.Bool

	sink logging.Sink

	connectionCallback    func(*Connection)
	messageCallback       func(*Connection, *Buffer, TimePoint)
	writeCompleteCallback func(*Connection)
	highWaterMarkCallback func(*Connection, int)
	closeCallback         func(*Connection) // internal: bound to Server.removeConnection
}

func newConnection(loop *EventLoop, name string, fd int, local, peer netutil.Address, highWaterMark int, sink logging.Sink) *Connection {
	c := &Connection{
		loop:          loop,
		name:          name,
		fd:            fd,
		local:         local,
		peer:          peer,
		input:         gio.NewBuffer(),
		output:        gio.NewBuffer(),
		highWaterMark: highWaterMark,
		sink:          sink,
	}
	c.state.Store(int32(stateConnecting))
	c.channel = gio.NewChannel(loop, fd)
	c.channel.SetReadCallback(c.handleRead)
	c.channel.SetWriteCallback(c.handleWrite)
	c.channel.SetCloseCallback(c.handleClose)
	c.channel.SetErrorCallback(c.handleError)
	netutil.SetKeepAlive(fd, true)
	return c
}

// Name returns the connection's unique "<server>-<peer>#<id>" identifier.
func (c *Connection) Name() string { return c.name }

// Connected reports whether the connection is currently in the connected
// state.
func (c *Connection) Connected() bool { return connState(c.state.Load()) == stateConnected }

// LocalAddress returns the locally bound address.
func (c *Connection) LocalAddress() netutil.Address { return c.local }

// PeerAddress returns the remote peer's address.
func (c *Connection) PeerAddress() netutil.Address { return c.peer }

// Loop returns the EventLoop this Connection is pinned to.
func (c *Connection) Loop() *EventLoop { return c.loop }

func (c *Connection) setConnectionCallback(cb func(*Connection))                 { c.connectionCallback = cb }
func (c *Connection) setMessageCallback(cb func(*Connection, *Buffer, TimePoint)) { c.messageCallback = cb }
func (c *Connection) setWriteCompleteCallback(cb func(*Connection))              { c.writeCompleteCallback = cb }
func (c *Connection) setHighWaterMarkCallback(cb func(*Connection, int))         { c.highWaterMarkCallback = cb }
func (c *Connection) setCloseCallback(cb func(*Connection))                      { c.closeCallback = cb }

// connectEstablished runs on the worker loop once Server has wired every
// callback: it ties the Channel's lifetime guard to this connection,
// enables reading, and fires the user connection callback.
func (c *Connection) connectEstablished() {
	c.state.Store(int32(stateConnected))
	c.alive.Store(true)
	c.channel.Tie(c.alive.Load)
	c.channel.EnableReading()
	if c.connectionCallback != nil {
		c.connectionCallback(c)
	}
}

// connectDestroyed runs on the worker loop as the final step of teardown.
// It always removes the Channel from the loop and closes the fd.
func (c *Connection) connectDestroyed() {
	if connState(c.state.Load()) == stateConnected {
		c.state.Store(int32(stateDisconnected))
		c.channel.DisableAll()
		if c.connectionCallback != nil {
			c.connectionCallback(c)
		}
	}
	c.alive.Store(false)
	c.channel.Remove()
	unix.Close(c.fd)
}

// Send is the thread-safe entry point user code calls to write bytes to
// the peer. It is a no-op once the connection has left the connected
// state.
func (c *Connection) Send(data []byte) {
	if connState(c.state.Load()) != stateConnected {
		return
	}
	if c.loop.IsInLoopThread() {
		c.sendInLoop(data)
		return
	}
	buf := append([]byte(nil), data...)
	c.loop.QueueInLoop(func() { c.sendInLoop(buf) })
}

func (c *Connection) sendInLoop(data []byte) {
	if connState(c.state.Load()) == stateDisconnected {
		c.sink.Log(logging.Warn, "connection %s: sendInLoop after disconnect, dropping %d bytes", c.name, len(data))
		return
	}
	var nwrote int
	var fault bool
	if !c.channel.IsWriting() && c.output.ReadableBytes() == 0 {
		n, err := unix.Write(c.fd, data)
		if err != nil {
			nwrote = 0
			if !errors.Is(err, unix.EAGAIN) && !errors.Is(err, unix.EWOULDBLOCK) {
				if errors.Is(err, unix.EPIPE) || errors.Is(err, unix.ECONNRESET) {
					fault = true
				} else {
					c.sink.Log(logging.Error, "connection %s: write: %v", c.name, err)
				}
			}
		} else {
			nwrote = n
			if nwrote == len(data) && c.writeCompleteCallback != nil {
				cb := c.writeCompleteCallback
				c.loop.QueueInLoop(func() { cb(c) })
			}
		}
	}
	if fault {
		return
	}
	remaining := len(data) - nwrote
	if remaining <= 0 {
		return
	}
	oldLen := c.output.ReadableBytes()
	if oldLen+remaining >= c.highWaterMark && oldLen < c.highWaterMark && c.highWaterMarkCallback != nil {
		cb := c.highWaterMarkCallback
		total := oldLen + remaining
		c.loop.QueueInLoop(func() { cb(c, total) })
	}
	c.output.Append(data[nwrote:])
	if !c.channel.IsWriting() {
		c.channel.EnableWriting()
	}
}

// Shutdown requests a half-close: once the output buffer drains, the
// write side of the socket is closed (a FIN is sent to the peer).
func (c *Connection) Shutdown() {
	if connState(c.state.Load()) != stateConnected {
		return
	}
	c.state.Store(int32(stateDisconnecting))
	c.loop.RunInLoop(c.shutdownInLoop)
}

func (c *Connection) shutdownInLoop() {
	if !c.channel.IsWriting() {
		if err := netutil.ShutdownWrite(c.fd); err != nil {
			c.sink.Log(logging.Error, "connection %s: shutdown write: %v", c.name, err)
		}
	}
}

func (c *Connection) handleRead(t TimePoint) {
	n, err := c.input.ReadFromFd(c.fd)
	switch {
	case n > 0:
		if c.messageCallback != nil {
			c.messageCallback(c, c.input, t)
		}
	case n == 0:
		c.handleClose()
	default:
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EINTR) {
			return
		}
		c.sink.Log(logging.Error, "connection %s: read: %v", c.name, err)
		c.handleError()
	}
}

func (c *Connection) handleWrite() {
	if !c.channel.IsWriting() {
		return
	}
	n, err := unix.Write(c.fd, c.output.Peek())
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			return
		}
		c.sink.Log(logging.Error, "connection %s: write: %v", c.name, err)
		return
	}
	if n <= 0 {
		return
	}
	c.output.Retrieve(n)
	if c.output.ReadableBytes() == 0 {
		c.channel.DisableWriting()
		if c.writeCompleteCallback != nil {
			c.writeCompleteCallback(c)
		}
		if connState(c.state.Load()) == stateDisconnecting {
			c.shutdownInLoop()
		}
	}
}

func (c *Connection) handleClose() {
	c.state.Store(int32(stateDisconnected))
	c.channel.DisableAll()
	if c.connectionCallback != nil {
		c.connectionCallback(c)
	}
	if c.closeCallback != nil {
		c.closeCallback(c)
	}
}

func (c *Connection) handleError() {
	err := netutil.SocketError(c.fd)
	c.sink.Log(logging.Error, "connection %s: socket error: %v", c.name, err)
}

// String renders a short diagnostic identifier.
func (c *Connection) String() string {
	return fmt.Sprintf("Connection{%s %s<->%s}", c.name, c.local, c.peer)
}
