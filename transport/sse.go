package transport

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// event is a single server-sent event.
type event struct {
	name string
	id   string
	data []byte
}

// eventScanner reads server-sent events off a response body.
//
//   - `key: value` line records; consecutive data fields join with \n.
//   - Records terminate on a blank line.
//   - Comment lines (leading ':') and unknown fields are ignored.
type eventScanner struct {
	s *bufio.Scanner
}

func newEventScanner(r io.Reader) *eventScanner {
	return &eventScanner{s: bufio.NewScanner(r)}
}

func (es *eventScanner) next() (event, error) {
	var (
		evt         event
		lastWasData bool
	)
	for es.s.Scan() {
		line := es.s.Bytes()
		if len(line) == 0 {
			if evt.name != "" || len(evt.data) > 0 {
				return evt, nil
			}
			continue
		}
		if line[0] == ':' {
			continue
		}
		before, after, found := bytes.Cut(line, []byte{':'})
		if !found {
			continue
		}
		switch string(before) {
		case "event":
			evt.name = strings.TrimSpace(string(after))
		case "id":
			evt.id = strings.TrimSpace(string(after))
		case "data":
			data := bytes.TrimSpace(after)
			if lastWasData {
				evt.data = append(append(evt.data, '\n'), data...)
			} else {
				evt.data = append([]byte(nil), data...)
			}
			lastWasData = true
		}
	}
	if err := es.s.Err(); err != nil {
		return event{}, err
	}
	return event{}, io.EOF
}

// sseChannel is the event-stream transport: reads arrive as 'message'
// events on a hanging GET, writes are POSTs to the endpoint the server
// announced in its first event.
type sseChannel struct {
	msgURL  *url.URL
	headers map[string]string
	httpc   *http.Client
	logger  *slog.Logger

	incoming chan []byte

	mu     sync.Mutex
	body   io.ReadCloser // hanging GET body
	closed bool
	done   chan struct{}
}

// OpenSSE opens the event-stream channel. It blocks until the server
// has accepted the stream and announced its message endpoint, or until
// the endpoint timeout elapses, whichever comes first.
func OpenSSE(ctx context.Context, ep Endpoint, headers map[string]string, opts ...Option) (Channel, error) {
	o := buildOptions(opts)

	sseURL, err := url.Parse(ep.URL)
	if err != nil {
		return nil, protocolError("open", "invalid endpoint url: %v", err)
	}

	// The hanging GET must outlive the open phase, so it gets its own
	// cancelable context; the open deadline is enforced by the select
	// below.
	reqCtx, cancelReq := context.WithCancel(context.WithoutCancel(ctx))

	type result struct {
		ch  *sseChannel
		err error
	}
	resCh := make(chan result, 1)
	go func() {
		ch, err := openSSE(reqCtx, cancelReq, sseURL, headers, o)
		resCh <- result{ch, err}
	}()

	timer := time.NewTimer(ep.timeout())
	defer timer.Stop()

	select {
	case res := <-resCh:
		if res.err != nil {
			cancelReq()
			return nil, res.err
		}
		return res.ch, nil
	case <-ctx.Done():
		cancelReq()
		if res := <-resCh; res.ch != nil {
			_ = res.ch.Close()
		}
		return nil, newError("open", ctx.Err())
	case <-timer.C:
		cancelReq()
		if res := <-resCh; res.ch != nil {
			_ = res.ch.Close()
		}
		return nil, &Error{Kind: ErrorTimeout, Op: "open", Err: fmt.Errorf("no endpoint event within %s", ep.timeout())}
	}
}

func openSSE(ctx context.Context, cancel context.CancelFunc, sseURL *url.URL, headers map[string]string, o options) (*sseChannel, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sseURL.String(), nil)
	if err != nil {
		return nil, newError("open", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, newError("open", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		resp.Body.Close()
		return nil, &Error{Kind: ErrorOther, Op: "open", Err: fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(body)))}
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		resp.Body.Close()
		return nil, protocolError("open", "unexpected content type %q", ct)
	}

	scanner := newEventScanner(resp.Body)

	// The first event must announce the message endpoint.
	evt, err := scanner.next()
	if err != nil {
		resp.Body.Close()
		return nil, protocolError("open", "reading endpoint event: %v", err)
	}
	if evt.name != "endpoint" {
		resp.Body.Close()
		return nil, protocolError("open", "first event is %q, want %q", evt.name, "endpoint")
	}
	msgURL, err := sseURL.Parse(string(evt.data))
	if err != nil {
		resp.Body.Close()
		return nil, protocolError("open", "invalid message endpoint %q: %v", evt.data, err)
	}

	c := &sseChannel{
		msgURL:   msgURL,
		headers:  headers,
		httpc:    o.httpClient,
		logger:   o.logger,
		incoming: make(chan []byte, 100),
		body:     resp.Body,
		done:     make(chan struct{}),
	}

	// From here the channel owns resp.Body; closing the channel cancels
	// the hanging GET. The reader is the sole producer and closes
	// incoming on exit.
	go func() {
		defer cancel()
		defer close(c.incoming)
		defer c.Close()
		for {
			evt, err := scanner.next()
			if err != nil {
				if err != io.EOF && !c.isClosed() {
					c.logger.Debug("sse stream ended", "error", err)
				}
				return
			}
			select {
			case c.incoming <- evt.data:
			case <-c.done:
				return
			}
		}
	}()

	return c, nil
}

// Messages returns the inbound message stream.
func (c *sseChannel) Messages() <-chan []byte {
	return c.incoming
}

// Send POSTs one message to the announced message endpoint.
func (c *sseChannel) Send(ctx context.Context, data []byte) error {
	if c.isClosed() {
		return &Error{Kind: ErrorOther, Op: "send", Err: ErrClosed}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.msgURL.String(), bytes.NewReader(data))
	if err != nil {
		return newError("send", err)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return newError("send", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &Error{Kind: ErrorOther, Op: "send", Err: fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(body)))}
	}
	return nil
}

// Close terminates the hanging GET and the inbound stream. Safe to call
// more than once; later calls are no-ops.
func (c *sseChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		_ = c.body.Close()
		close(c.done)
	}
	return nil
}

func (c *sseChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
