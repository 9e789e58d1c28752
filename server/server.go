package server

import (
	"fmt"
	"sync"

	"github.com/reactorgo/gio"
	"github.com/reactorgo/gio/internal/logging"
	"github.com/reactorgo/gio/internal/netutil"
)

// Server is the top-level façade: it owns the Acceptor, the LoopPool, and
// the connection table. The connection map is only ever mutated on the
// base loop.
type Server struct {
	cfg  Config
	cb   Callbacks
	sink logging.Sink

	baseLoop *gio.EventLoop
	pool     *gio.LoopPool
	acceptor *Acceptor

	nextConnID uint64
	conns      map[string]*Connection

	startOnce sync.Once
	started   bool
}

// New constructs a Server bound to cfg.ListenAddress, with the given
// baseLoop hosting its Acceptor. baseLoop must not yet be running.
func New(baseLoop *gio.EventLoop, cfg Config, cb Callbacks) (*Server, error) {
	sink := cfg.sink()
	acceptor, err := NewAcceptor(baseLoop, cfg.ListenAddress, cfg.ReusePort, sink)
	if err != nil {
		return nil, err
	}
	s := &Server{
		cfg:      cfg,
		cb:       cb,
		sink:     sink,
		baseLoop: baseLoop,
		pool:     gio.NewLoopPool(baseLoop, cfg.Name, sink),
		acceptor: acceptor,
		conns:    make(map[string]*Connection),
	}
	s.pool.SetThreadNum(cfg.ThreadNum)
	acceptor.SetNewConnectionCallback(s.newConnection)
	return s, nil
}

// Start is idempotent: a second call has the same observable effect as
// the first. It starts the worker pool, then schedules the Acceptor's
// listen() on the base loop.
func (s *Server) Start() {
	s.startOnce.Do(func() {
		s.started = true
		s.pool.Start(s.cb.OnThreadInit)
		s.baseLoop.RunInLoop(s.acceptor.Listen)
	})
}

// newConnection is invoked by the Acceptor on the base loop for every
// accepted fd.
func (s *Server) newConnection(connFD int, peer netutil.Address) {
	ioLoop := s.pool.NextLoop()
	s.nextConnID++
	connName := fmt.Sprintf("%s-%s#%d", s.cfg.Name, peer.String(), s.nextConnID)

	local, err := netutil.GetSockName(connFD)
	if err != nil {
		s.sink.Log(logging.Error, "server: getsockname fd=%d: %v", connFD, err)
		netutil.Close(connFD)
		return
	}

	conn := newConnection(ioLoop, connName, connFD, local, peer, s.cfg.highWaterMark(), s.sink)
	conn.setConnectionCallback(s.cb.OnConnection)
	conn.setMessageCallback(s.cb.OnMessage)
	conn.setWriteCompleteCallback(s.cb.OnWriteComplete)
	conn.setHighWaterMarkCallback(s.cb.OnHighWaterMark)
	conn.setCloseCallback(s.removeConnection)

	s.conns[connName] = conn
	s.sink.Log(logging.Info, "server: connection UP %s", connName)
	ioLoop.RunInLoop(conn.connectEstablished)
}

// removeConnection is the Connection's internal close callback: it hops
// back to the base loop so the table mutation stays single-threaded.
func (s *Server) removeConnection(conn *Connection) {
	s.baseLoop.RunInLoop(func() { s.removeConnectionInLoop(conn) })
}

func (s *Server) removeConnectionInLoop(conn *Connection) {
	delete(s.conns, conn.Name())
	s.sink.Log(logging.Info, "server: connection DOWN %s", conn.Name())
	conn.Loop().QueueInLoop(conn.connectDestroyed)
}

// ConnectionCount returns the number of connections currently in the
// table. Must be called from the base loop's thread.
func (s *Server) ConnectionCount() int { return len(s.conns) }
