package wireproto

import (
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultIdleTimeout is the connection idle timeout applied when a server
// is built without an explicit one.
const DefaultIdleTimeout = 5 * time.Minute

// DefaultQueueSize bounds each connection's pending-request queue. A full
// queue is the back-pressure signal: the connection's reader stops pulling
// frames off the socket until a worker drains one, letting TCP flow
// control do the rest.
const DefaultQueueSize = 256

// DefaultRequestDeadline is the implicit per-request deadline.
const DefaultRequestDeadline = 30 * time.Second

// job is one queued request paired with the connection it arrived on, so
// a shared worker pool can write its response back without knowing
// anything about the connection beyond "write frames to it, one at a
// time".
type job struct {
	conn    net.Conn
	writeMu *sync.Mutex
	frame   Frame
}

// conn owns one accepted TCP connection: a reader goroutine that frames
// incoming bytes into a bounded per-connection queue, and a forwarder that
// hands queued frames to the server's shared worker pool.
type conn struct {
	net.Conn
	pending     chan Frame
	writeMu     sync.Mutex
	idleTimeout time.Duration
	logger      *zap.Logger
}

func newConn(c net.Conn, idleTimeout time.Duration, queueSize int, logger *zap.Logger) *conn {
	return &conn{Conn: c, pending: make(chan Frame, queueSize), idleTimeout: idleTimeout, logger: logger}
}

// readLoop frames bytes off the socket until it closes or goes idle,
// pushing each frame onto pending. A full pending channel blocks the
// send, which in turn stops reading from the socket — the bounded queue
// is the entire back-pressure mechanism.
func (c *conn) readLoop() {
	defer close(c.pending)
	for {
		if c.idleTimeout > 0 {
			_ = c.SetReadDeadline(time.Now().Add(c.idleTimeout))
		}
		frame, err := ReadFrame(c)
		if err != nil {
			return
		}
		c.pending <- frame
	}
}

func (c *conn) writeFrame(f Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return WriteFrame(c, f)
}

// ConnOptions configures the per-connection lifecycle a Server applies to
// every accepted connection.
type ConnOptions struct {
	IdleTimeout time.Duration
	QueueSize   int
	Logger      *zap.Logger
}

func (o ConnOptions) withDefaults() ConnOptions {
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = DefaultIdleTimeout
	}
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// handlePing answers a ping inline without touching the worker pool;
// ping doubles as the connection keep-alive.
func handlePing(c *conn, f Frame) {
	_ = c.writeFrame(response(f, encode(PingResponse{})))
}
