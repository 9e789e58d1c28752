// Package client is a minimal blocking TCP driver for the protocol
// package's framing. Nothing else in this repository imports it; the
// server's own end-to-end tests dial with plain net.Dial. It sits outside
// the core: the core never initiates outbound connections (Non-goal).
package client

import (
	"log"
	"net"
	"sync"

	"github.com/reactorgo/gio"
	"github.com/reactorgo/gio/protocol"
)

// Handler receives a Client's lifecycle and decoded messages.
type Handler interface {
	OnOpen(c *Client)
	OnMessage(c *Client, api uint16, msg []byte)
	OnClose(c *Client, err error)
}

// Client wraps a plain net.Conn with protocol framing. Partial frames
// across reads accumulate in a gio.Buffer, the same read-side cursor
// discipline the core's own Connection uses for its input buffer — the
// demonstration layer reuses the core's domain type rather than rolling
// its own slice bookkeeping.
type Client struct {
	conn net.Conn
	enc  *protocol.Encoder
	prs  *protocol.Parser

	writeMu sync.Mutex
	inbox   *gio.Buffer
}

// Dial connects to address and starts a background read loop.
func Dial(network, address string, h Handler) (*Client, error) {
	nc, err := net.Dial(network, address)
	if err != nil {
		return nil, err
	}
	enc, _ := protocol.NewEncoder()
	prs, _ := protocol.NewParser()
	c := &Client{conn: nc, enc: enc, prs: prs, inbox: gio.NewBuffer()}
	go h.OnOpen(c)
	go c.readLoop(h)
	return c, nil
}

func (c *Client) readLoop(h Handler) {
	scratch := make([]byte, 64<<10)
	for {
		n, err := c.conn.Read(scratch)
		if n > 0 {
			c.inbox.Append(scratch[:n])
			c.drainFrames(h)
		}
		if err != nil {
			c.prs.Close()
			c.enc.Close()
			h.OnClose(c, err)
			return
		}
	}
}

// drainFrames hands every complete frame currently sitting in inbox to
// the parser, retiring the bytes each Parse call consumed so a partial
// frame at the tail stays put for the next read.
func (c *Client) drainFrames(h Handler) {
	for {
		consumed, err := c.prs.Parse(c.inbox.Peek(), func(api uint16, payload []byte) error {
			h.OnMessage(c, api, payload)
			return nil
		})
		if err != nil {
			log.Printf("client: parse error: %v", err)
			return
		}
		if consumed == 0 {
			return
		}
		c.inbox.Retrieve(consumed)
	}
}

// Write frames and sends one message.
func (c *Client) Write(api uint16, msg []byte) error {
	frame, err := c.enc.EncodeSingle(api, msg, false)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err = c.conn.Write(frame)
	return err
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }
