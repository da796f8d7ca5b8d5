package wireproto

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Client is a single multiplexed TCP connection to a storage node: many
// in-flight requests share it, matched to their response by request id.
type Client struct {
	conn net.Conn

	writeMu sync.Mutex
	nextID  uint32

	mu      sync.Mutex
	waiters map[uint16]chan Frame
	closed  bool
	closeCh chan struct{}
}

// Dial connects to addr and starts the background read loop that routes
// responses to their waiting callers.
func Dial(addr string, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	cl := &Client{conn: c, waiters: make(map[uint16]chan Frame), closeCh: make(chan struct{})}
	go cl.readLoop()
	return cl, nil
}

// DialTLS connects like Dial but completes a TLS handshake before any
// application frame is exchanged.
func DialTLS(addr string, timeout time.Duration, cfg *tls.Config) (*Client, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	d := &tls.Dialer{NetDialer: &net.Dialer{Timeout: timeout}, Config: cfg}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	cl := &Client{conn: c, waiters: make(map[uint16]chan Frame), closeCh: make(chan struct{})}
	go cl.readLoop()
	return cl, nil
}

func (cl *Client) readLoop() {
	for {
		f, err := ReadFrame(cl.conn)
		if err != nil {
			cl.shutdown()
			return
		}
		cl.mu.Lock()
		ch, ok := cl.waiters[f.RequestID]
		if ok {
			delete(cl.waiters, f.RequestID)
		}
		cl.mu.Unlock()
		if ok {
			ch <- f
		}
	}
}

func (cl *Client) shutdown() {
	cl.mu.Lock()
	if cl.closed {
		cl.mu.Unlock()
		return
	}
	cl.closed = true
	waiters := cl.waiters
	cl.waiters = nil
	cl.mu.Unlock()
	close(cl.closeCh)
	for _, ch := range waiters {
		close(ch)
	}
}

// Close closes the underlying connection and fails any in-flight call.
func (cl *Client) Close() error {
	cl.shutdown()
	return cl.conn.Close()
}

// Call sends a request of the given opcode with the msgpack-encoded
// payload produced by encode(reqBody) and blocks for the matching
// response, honoring ctx's deadline. It returns the raw response payload
// and, separately, a non-nil error built from an ErrorPayload if the
// server answered with FlagError.
func (cl *Client) Call(ctx context.Context, opcode Opcode, reqBody any) ([]byte, error) {
	id := uint16(atomic.AddUint32(&cl.nextID, 1))
	ch := make(chan Frame, 1)

	cl.mu.Lock()
	if cl.closed {
		cl.mu.Unlock()
		return nil, fmt.Errorf("wireproto: client is closed")
	}
	cl.waiters[id] = ch
	cl.mu.Unlock()

	req := Frame{Opcode: opcode, RequestID: id, Payload: encode(reqBody)}
	cl.writeMu.Lock()
	err := WriteFrame(cl.conn, req)
	cl.writeMu.Unlock()
	if err != nil {
		cl.mu.Lock()
		delete(cl.waiters, id)
		cl.mu.Unlock()
		return nil, err
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("wireproto: connection closed while awaiting response")
		}
		if resp.IsError() {
			ep, _ := DecodeError(resp.Payload)
			return nil, fmt.Errorf("wireproto: %s: %s", ep.Code, ep.Message)
		}
		return resp.Payload, nil
	case <-ctx.Done():
		cl.mu.Lock()
		delete(cl.waiters, id)
		cl.mu.Unlock()
		return nil, ctx.Err()
	case <-cl.closeCh:
		return nil, fmt.Errorf("wireproto: connection closed while awaiting response")
	}
}

// Ping sends a keep-alive frame and waits for its echo.
func (cl *Client) Ping(ctx context.Context) error {
	_, err := cl.Call(ctx, OpPing, PingRequest{})
	return err
}
