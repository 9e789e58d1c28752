package server

import (
	"fmt"

	"github.com/reactorgo/gio"
	"github.com/reactorgo/gio/internal/logging"
	"github.com/reactorgo/gio/internal/netutil"
)

// NewConnectionCallback is invoked on the base loop once Acceptor accepts
// a pending connection. If nil, the accepted fd is closed immediately.
type NewConnectionCallback func(connFD int, peer netutil.Address)

// Acceptor owns the listening socket and its Channel on the base loop; it
// never itself constructs a Connection — that is Server's job, reached
// through the NewConnectionCallback.
type Acceptor struct {
	baseLoop *EventLoop
	sink     logging.Sink

	listenFD  int
	channel   *gio.Channel
	listening bool

	newConnectionCallback NewConnectionCallback
}

// NewAcceptor creates a non-blocking, close-on-exec listening socket bound
// to address, with SO_REUSEADDR always on and SO_REUSEPORT per reusePort.
func NewAcceptor(baseLoop *EventLoop, address string, reusePort bool, sink logging.Sink) (*Acceptor, error) {
	if baseLoop == nil {
		return nil, gio.ErrNilLoop
	}
	addr, err := netutil.ParseAddress(address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gio.ErrInvalidAddress, err)
	}
	fd, err := netutil.CreateNonblockingSocket()
	if err != nil {
		return nil, err
	}
	if err := netutil.SetReuseAddr(fd, true); err != nil {
		netutil.Close(fd)
		return nil, err
	}
	if err := netutil.SetReusePort(fd, reusePort); err != nil {
		netutil.Close(fd)
		return nil, err
	}
	if err := netutil.Bind(fd, addr); err != nil {
		netutil.Close(fd)
		return nil, err
	}
	a := &Acceptor{baseLoop: baseLoop, sink: sink, listenFD: fd}
	a.channel = gio.NewChannel(baseLoop, fd)
	a.channel.SetReadCallback(a.handleRead)
	return a, nil
}

// SetNewConnectionCallback installs the callback Server uses to take
// ownership of each accepted connection.
func (a *Acceptor) SetNewConnectionCallback(cb NewConnectionCallback) {
	a.newConnectionCallback = cb
}

// Listen must run on the base loop's thread: it enters the OS-level
// listening state and enables the Channel's READ interest.
func (a *Acceptor) Listen() {
	a.listening = true
	if err := netutil.Listen(a.listenFD); err != nil {
		a.sink.Log(logging.Fatal, "acceptor: listen %v: %v", a.listenFD, err)
		return
	}
	a.channel.EnableReading()
}

// handleRead accepts one pending connection. On EMFILE (per-process fd
// exhaustion) it logs and leaves the listen Channel armed; there is no
// reserved idle-fd mitigation here.
func (a *Acceptor) handleRead(TimePoint) {
	connFD, peer, err := netutil.Accept(a.listenFD)
	if err != nil {
		a.sink.Log(logging.Error, "acceptor: accept: %v", err)
		return
	}
	if a.newConnectionCallback != nil {
		a.newConnectionCallback(connFD, peer)
	} else {
		netutil.Close(connFD)
	}
}
