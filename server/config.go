// Package server assembles the core Reactor primitives (gio.EventLoop,
// gio.Channel, gio.LoopPool) into the Acceptor/Connection/Server state
// machines: the listener, the per-client lifecycle, and the top-level
// façade a caller actually constructs.
package server

import (
	"github.com/reactorgo/gio/internal/logging"
)

// defaultHighWaterMark is the output-buffer byte threshold above which a
// Connection's high-watermark callback fires, per the core's default.
const defaultHighWaterMark = 64 << 20

// Callbacks groups the four user hooks a Server dispatches, plus the
// per-worker-thread init hook LoopPool.Start runs. Grouping them as a
// tagged record rather than independent setters makes a missing callback
// an explicit, visible zero value instead of a silently-unused setter.
type Callbacks struct {
	// OnConnection fires once a Connection becomes connected and again
	// when it becomes disconnected (distinguish via conn.Connected()).
	OnConnection func(conn *Connection)
	// OnMessage fires whenever handleRead appends to the input buffer.
	OnMessage func(conn *Connection, buf *Buffer, t TimePoint)
	// OnWriteComplete fires once a send's bytes have all reached the
	// socket: after a direct write that takes every byte, or once a
	// buffered remainder has fully drained the output buffer.
	OnWriteComplete func(conn *Connection)
	// OnHighWaterMark fires at most once per monotonic crossing of the
	// configured threshold.
	OnHighWaterMark func(conn *Connection, outputBytes int)
	// OnThreadInit runs once per worker loop (and once on the base loop
	// if ThreadNum is 0), before that loop starts serving connections.
	OnThreadInit func(loop *EventLoop)
}

// Config holds everything Server needs to bind its listening socket and
// size its worker pool.
type Config struct {
	ListenAddress string
	Name          string
	ReusePort     bool
	ThreadNum     int
	HighWaterMark int
	Sink          logging.Sink
}

func (c Config) highWaterMark() int {
	if c.HighWaterMark > 0 {
		return c.HighWaterMark
	}
	return defaultHighWaterMark
}

func (c Config) sink() logging.Sink {
	if c.Sink != nil {
		return c.Sink
	}
	return logging.NewStdSink()
}
