package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsChannel is the WebSocket transport: a single duplex connection
// carrying one JSON-RPC message per text frame.
type wsChannel struct {
	conn   *websocket.Conn
	logger *slog.Logger

	incoming chan []byte

	writeMu sync.Mutex // guards conn writes

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// OpenWebSocket dials the endpoint and returns a connected channel.
// http/https URLs are rewritten to their ws/wss equivalents.
func OpenWebSocket(ctx context.Context, ep Endpoint, headers map[string]string, opts ...Option) (Channel, error) {
	o := buildOptions(opts)

	u, err := url.Parse(ep.URL)
	if err != nil {
		return nil, protocolError("open", "invalid endpoint url: %v", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return nil, protocolError("open", "unsupported url scheme %q", u.Scheme)
	}

	dialer := o.dialer
	if dialer == nil {
		d := *websocket.DefaultDialer
		dialer = &d
	}
	if dialer.HandshakeTimeout == 0 {
		dialer.HandshakeTimeout = ep.timeout()
	}

	hdr := make(http.Header, len(headers))
	for k, v := range headers {
		hdr.Set(k, v)
	}

	conn, resp, err := dialer.DialContext(ctx, u.String(), hdr)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
			return nil, protocolError("open", "dial %s: status %s: %v", u, resp.Status, err)
		}
		return nil, newError("open", err)
	}
	if resp != nil {
		resp.Body.Close()
	}

	c := &wsChannel{
		conn:     conn,
		logger:   o.logger,
		incoming: make(chan []byte, 100),
		done:     make(chan struct{}),
	}

	// The reader is the sole producer and closes incoming on exit.
	go func() {
		defer close(c.incoming)
		defer c.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if !c.isClosed() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.logger.Debug("websocket read ended", "error", err)
				}
				return
			}
			select {
			case c.incoming <- data:
			case <-c.done:
				return
			}
		}
	}()

	return c, nil
}

// Messages returns the inbound message stream.
func (c *wsChannel) Messages() <-chan []byte {
	return c.incoming
}

// Send writes one message as a text frame.
func (c *wsChannel) Send(ctx context.Context, data []byte) error {
	if c.isClosed() {
		return &Error{Kind: ErrorOther, Op: "send", Err: ErrClosed}
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
	} else {
		_ = c.conn.SetWriteDeadline(time.Now().Add(DefaultTimeout))
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return newError("send", fmt.Errorf("write frame: %w", err))
	}
	return nil
}

// Close performs the close handshake and tears down the connection.
// Safe to call more than once; later calls are no-ops.
func (c *wsChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)

	c.writeMu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()

	return c.conn.Close()
}

func (c *wsChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
