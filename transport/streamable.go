package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const sessionIDHeader = "Mcp-Session-Id"

// streamableChannel multiplexes the session over HTTP request/response
// streaming. Writes are POSTs; the response body — a single JSON
// message or an SSE stream — feeds the inbound channel. Once a session
// id is negotiated, a hanging GET picks up server-initiated messages.
type streamableChannel struct {
	url     *url.URL
	headers map[string]string
	httpc   *http.Client
	logger  *slog.Logger

	sessionID atomic.Value // string

	incoming chan []byte

	mu        sync.Mutex
	closed    bool
	done      chan struct{}
	cancelGet context.CancelFunc
	listening bool
}

// OpenStreamable opens the streaming-HTTP channel. The variant is lazy:
// no network traffic happens until the first Send, so dial-level
// failures surface from the first call rather than from open.
func OpenStreamable(ctx context.Context, ep Endpoint, headers map[string]string, opts ...Option) (Channel, error) {
	o := buildOptions(opts)

	u, err := url.Parse(ep.URL)
	if err != nil {
		return nil, protocolError("open", "invalid endpoint url: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, protocolError("open", "unsupported url scheme %q", u.Scheme)
	}

	c := &streamableChannel{
		url:      u,
		headers:  headers,
		httpc:    o.httpClient,
		logger:   o.logger,
		incoming: make(chan []byte, 100),
		done:     make(chan struct{}),
	}
	c.sessionID.Store("")
	return c, nil
}

// SessionID returns the negotiated session identifier; empty when the
// server is stateless or the session has not been established yet.
func (c *streamableChannel) SessionID() string {
	return c.sessionID.Load().(string)
}

// Messages returns the inbound message stream.
func (c *streamableChannel) Messages() <-chan []byte {
	return c.incoming
}

// Send POSTs one message. A JSON response body is queued inbound
// directly; an SSE response body is drained in the background.
func (c *streamableChannel) Send(ctx context.Context, data []byte) error {
	if c.isClosed() {
		return &Error{Kind: ErrorOther, Op: "send", Err: ErrClosed}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url.String(), bytes.NewReader(data))
	if err != nil {
		return newError("send", err)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if sid := c.SessionID(); sid != "" {
		req.Header.Set(sessionIDHeader, sid)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return newError("send", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		resp.Body.Close()
		return &Error{Kind: ErrorOther, Op: "send", Err: fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(body)))}
	}

	if sid := resp.Header.Get(sessionIDHeader); sid != "" && c.SessionID() == "" {
		c.sessionID.Store(sid)
		c.listenOnce()
	}

	switch ct := resp.Header.Get("Content-Type"); {
	case strings.HasPrefix(ct, "text/event-stream"):
		go c.drainEvents(resp.Body)
	case strings.HasPrefix(ct, "application/json"):
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return newError("send", err)
		}
		if len(body) > 0 {
			c.push(body)
		}
	default:
		// 202 Accepted for notifications carries no body.
		resp.Body.Close()
	}
	return nil
}

func (c *streamableChannel) push(data []byte) {
	select {
	case c.incoming <- data:
	case <-c.done:
	}
}

func (c *streamableChannel) drainEvents(body io.ReadCloser) {
	defer body.Close()
	scanner := newEventScanner(body)
	for {
		evt, err := scanner.next()
		if err != nil {
			if err != io.EOF && !c.isClosed() {
				c.logger.Debug("response stream ended", "error", err)
			}
			return
		}
		if len(evt.data) > 0 {
			c.push(evt.data)
		}
	}
}

// listenOnce starts the hanging GET for server-initiated messages the
// first time a session id is negotiated. Servers that do not offer a
// message stream answer 405 and the listener exits quietly.
func (c *streamableChannel) listenOnce() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listening || c.closed {
		return
	}
	c.listening = true

	ctx, cancel := context.WithCancel(context.Background())
	c.cancelGet = cancel
	go c.listen(ctx)
}

func (c *streamableChannel) listen(ctx context.Context) {
	backoff := time.Second
	for attempt := 0; attempt < 3; attempt++ {
		if c.isClosed() {
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url.String(), nil)
		if err != nil {
			return
		}
		for k, v := range c.headers {
			req.Header.Set(k, v)
		}
		req.Header.Set("Accept", "text/event-stream")
		req.Header.Set(sessionIDHeader, c.SessionID())

		resp, err := c.httpc.Do(req)
		if err != nil {
			if c.isClosed() {
				return
			}
			c.logger.Debug("message stream attempt failed", "error", err)
		} else {
			switch {
			case resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotFound:
				// Server does not offer a standalone message stream.
				resp.Body.Close()
				return
			case resp.StatusCode == http.StatusOK:
				c.drainEvents(resp.Body)
				attempt = 0
				backoff = time.Second
			default:
				resp.Body.Close()
			}
		}

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-c.done:
			return
		case <-ctx.Done():
			return
		}
	}
	c.logger.Debug("giving up on message stream")
}

// Close releases the channel: it stops the listener and issues a
// best-effort DELETE to terminate the server-side session. Safe to call
// more than once.
func (c *streamableChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	if c.cancelGet != nil {
		c.cancelGet()
	}
	c.mu.Unlock()

	if sid := c.SessionID(); sid != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.url.String(), nil)
		if err == nil {
			for k, v := range c.headers {
				req.Header.Set(k, v)
			}
			req.Header.Set(sessionIDHeader, sid)
			if resp, err := c.httpc.Do(req); err != nil {
				c.logger.Debug("session delete failed", "error", err)
			} else {
				resp.Body.Close()
			}
		}
	}
	return nil
}

func (c *streamableChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
