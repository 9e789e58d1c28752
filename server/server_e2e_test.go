package server

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/reactorgo/gio"
)

// newTestServer builds a Server on a fresh base loop listening on an
// ephemeral loopback port, returning the Server, its base loop, and the
// resolved listen address so the test's client can dial it.
func newTestServer(t *testing.T, threadNum int, cb Callbacks) (*Server, *gio.EventLoop, string) {
	t.Helper()
	base, err := gio.NewEventLoop(nil)
	if err != nil {
		t.Fatalf("NewEventLoop: %v", err)
	}

	// Bind to an OS-assigned port by asking for :0 through a throwaway
	// net.Listener first, then handing that exact address to the Acceptor.
	probe, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("probe listen: %v", err)
	}
	addr := probe.Addr().String()
	probe.Close()

	cfg := Config{ListenAddress: addr, Name: "test", ThreadNum: threadNum}
	s, err := New(base, cfg, cb)
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	s.Start()

	go base.Loop()
	t.Cleanup(func() {
		s.pool.Stop()
		base.Quit()
		time.Sleep(10 * time.Millisecond)
	})

	// Start() was called on the goroutine that constructed base, so its
	// RunInLoop ran Listen synchronously; the pause lets the loop goroutine
	// reach its first poll before the test dials it.
	time.Sleep(20 * time.Millisecond)
	return s, base, addr
}

// TestServerEchoRoundTrip is scenario S1: a client connects, sends
// "hello", the server's message callback echoes it back and shuts down;
// the client must observe exactly "hello" then EOF, and once the client
// closes its side the server must report one UP and one DOWN.
func TestServerEchoRoundTrip(t *testing.T) {
	var upCount, downCount int
	var mu sync.Mutex

	cb := Callbacks{
		OnConnection: func(c *Connection) {
			mu.Lock()
			defer mu.Unlock()
			if c.Connected() {
				upCount++
			} else {
				downCount++
			}
		},
		OnMessage: func(c *Connection, buf *Buffer, t TimePoint) {
			c.Send([]byte(buf.RetrieveAllAsString()))
			c.Shutdown()
		},
	}

	_, _, addr := newTestServer(t, 2, cb)

	conn, err := net.DialTimeout("tcp4", addr, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 64)
	n, err := readFull(conn, buf, 5)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := string(buf[:n]); got != "hello" {
		t.Fatalf("echoed payload = %q, want %q", got, "hello")
	}

	// The server half-closed after echoing; the next read must see EOF.
	n, err = conn.Read(buf)
	if n != 0 || err == nil {
		t.Fatalf("expected EOF after shutdown, got n=%d err=%v", n, err)
	}

	// Shutdown only half-closes; the server's DOWN transition follows its
	// read of our own FIN.
	conn.Close()

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if upCount != 1 || downCount != 1 {
		t.Fatalf("expected exactly one UP and one DOWN, got up=%d down=%d", upCount, downCount)
	}
}

// TestServerHighWaterMarkFiresOnce is scenario S2: a client connects but
// never reads; the server writes past the configured high-water mark and
// the callback must fire exactly once.
func TestServerHighWaterMarkFiresOnce(t *testing.T) {
	var hwmFires int
	var writeCompleteFires int
	var mu sync.Mutex
	connected := make(chan *Connection, 1)

	cb := Callbacks{
		OnConnection: func(c *Connection) {
			if c.Connected() {
				connected <- c
			}
		},
		OnHighWaterMark: func(c *Connection, n int) {
			mu.Lock()
			defer mu.Unlock()
			hwmFires++
			if n < 1024 {
				t.Errorf("high-water callback fired with total=%d, want >= 1024", n)
			}
		},
		OnWriteComplete: func(c *Connection) {
			mu.Lock()
			defer mu.Unlock()
			writeCompleteFires++
		},
	}

	base, err := gio.NewEventLoop(nil)
	if err != nil {
		t.Fatalf("NewEventLoop: %v", err)
	}
	probe, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("probe listen: %v", err)
	}
	addr := probe.Addr().String()
	probe.Close()

	s, err := New(base, Config{ListenAddress: addr, Name: "hwm", ThreadNum: 1, HighWaterMark: 1024}, cb)
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	s.Start()
	go base.Loop()
	defer func() {
		s.pool.Stop()
		base.Quit()
	}()
	time.Sleep(20 * time.Millisecond)

	conn, err := net.DialTimeout("tcp4", addr, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if tc, ok := conn.(*net.TCPConn); ok {
		// Shrink the receive window as far as the kernel allows so the
		// peer's unread bytes can't be acked away; combined with never
		// reading, this forces the server's send buffer to fill well
		// before the payload below is exhausted.
		tc.SetReadBuffer(1)
	}

	c := <-connected
	// Large enough to exceed any realistic kernel send-buffer size while
	// the peer never drains it, so sendInLoop's direct write is
	// guaranteed to leave a remainder bigger than the 1024-byte
	// high-water mark configured above.
	const payload = 32 << 20
	c.Send(make([]byte, payload))

	time.Sleep(300 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if hwmFires != 1 {
		t.Fatalf("high-water callback fired %d times, want exactly 1", hwmFires)
	}
	if writeCompleteFires != 0 {
		t.Fatalf("write-complete fired %d times while the peer never reads, want 0", writeCompleteFires)
	}
}

// TestServerPeerResetRemovesConnectionOnce is scenario S3: the peer
// aborts immediately after writing a few bytes; the server must observe a
// single DOWN transition and remove the connection from its table exactly
// once.
func TestServerPeerResetRemovesConnectionOnce(t *testing.T) {
	var downCount int
	var mu sync.Mutex
	closed := make(chan struct{})

	cb := Callbacks{
		OnConnection: func(c *Connection) {
			if !c.Connected() {
				mu.Lock()
				downCount++
				mu.Unlock()
				close(closed)
			}
		},
	}

	_, _, addr := newTestServer(t, 1, cb)

	conn, err := net.DialTimeout("tcp4", addr, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetLinger(0) // force RST on close instead of a graceful FIN
	}
	conn.Write([]byte("abc"))
	conn.Close()

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatalf("server never observed the peer's close")
	}

	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if downCount != 1 {
		t.Fatalf("downCount = %d, want exactly 1", downCount)
	}
}

// TestServerCrossThreadSend is scenario S4: a goroutine unrelated to any
// loop calls Connection.Send; the bytes must still reach the peer.
func TestServerCrossThreadSend(t *testing.T) {
	connected := make(chan *Connection, 1)
	cb := Callbacks{
		OnConnection: func(c *Connection) {
			if c.Connected() {
				connected <- c
			}
		},
	}
	_, _, addr := newTestServer(t, 1, cb)

	conn, err := net.DialTimeout("tcp4", addr, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	c := <-connected
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.Send([]byte("x"))
	}()
	wg.Wait()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if _, err := readFull(conn, buf, 1); err != nil {
		t.Fatalf("read: %v", err)
	}
	if buf[0] != 'x' {
		t.Fatalf("got byte %q, want 'x'", buf[0])
	}
}

func readFull(conn net.Conn, buf []byte, want int) (int, error) {
	total := 0
	for total < want {
		n, err := conn.Read(buf[total:want])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
