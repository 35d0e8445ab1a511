package transport

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tidewell/agentdeck/log"
)

// SSETransport implements Transport over a single streaming HTTP request.
// It issues the prepared request on Connect, then feeds the response body
// through a FrameDecoder until the stream closes, the terminal sentinel
// arrives, or the transport is aborted.
type SSETransport struct {
	client *http.Client
	req    *http.Request

	body io.ReadCloser

	// Channels for event payloads and transport failures
	messages chan []byte
	errors   chan error

	// State
	connected bool
	closed    bool
	mu        sync.RWMutex

	// Context for abort
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSSETransport creates a transport for one streaming request. The request
// body and target are prepared by the caller; the transport owns the
// response lifecycle.
func NewSSETransport(client *http.Client, req *http.Request) *SSETransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &SSETransport{
		client:   client,
		req:      req,
		messages: make(chan []byte, 100),
		errors:   make(chan error, 10),
	}
}

// Connect issues the request and starts the read loop
func (t *SSETransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.connected {
		return ErrAlreadyConnected
	}
	if t.closed {
		return ErrConnectionClosed
	}

	t.ctx, t.cancel = context.WithCancel(ctx)

	req := t.req.WithContext(t.ctx)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	log.Debug().
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Msg("transport: opening event stream")

	resp, err := t.client.Do(req)
	if err != nil {
		t.cancel()
		return &ConnectionError{Message: "request failed", Cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		t.cancel()
		return &HTTPStatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	t.body = resp.Body
	t.connected = true

	log.Debug().
		Int("status", resp.StatusCode).
		Str("contentType", resp.Header.Get("Content-Type")).
		Msg("transport: event stream open")

	t.wg.Add(1)
	go t.readLoop()

	return nil
}

// readLoop reads response chunks and emits decoded payloads until the
// stream ends
func (t *SSETransport) readLoop() {
	defer t.wg.Done()
	defer close(t.messages)
	defer func() {
		t.mu.Lock()
		t.connected = false
		t.mu.Unlock()
	}()

	decoder := NewFrameDecoder()
	buf := make([]byte, 4096)

	for {
		n, err := t.body.Read(buf)
		if n > 0 {
			payloads, derr := decoder.Feed(buf[:n])
			for _, p := range payloads {
				select {
				case t.messages <- p:
				case <-t.ctx.Done():
					return
				}
			}
			if derr != nil {
				t.reportError(&ConnectionError{Message: "frame decode failed", Cause: derr})
				return
			}
			if decoder.Done() {
				log.Debug().Msg("transport: terminal sentinel received")
				return
			}
		}
		if err != nil {
			if err == io.EOF {
				log.Debug().Msg("transport: stream closed by server")
				return
			}
			if t.ctx.Err() != nil {
				// Aborted locally, not a failure
				log.Debug().Msg("transport: stream aborted")
				return
			}
			t.reportError(&ConnectionError{Message: "stream read failed", Cause: err})
			return
		}
	}
}

// reportError delivers a transport failure without blocking
func (t *SSETransport) reportError(err error) {
	select {
	case t.errors <- err:
	default:
	}
}

// ReadMessages returns the channel for receiving event payloads
func (t *SSETransport) ReadMessages() <-chan []byte {
	return t.messages
}

// Errors returns the channel for receiving transport failures
func (t *SSETransport) Errors() <-chan error {
	return t.errors
}

// Close aborts the stream. Safe to call more than once and before Connect.
func (t *SSETransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	body := t.body
	t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}
	if body != nil {
		body.Close()
	}

	// The read loop may take a moment to observe the closed body
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		log.Warn().Msg("transport: read loop did not finish in time")
	}

	t.mu.Lock()
	t.connected = false
	t.mu.Unlock()

	return nil
}

// IsConnected returns whether the stream is currently open
func (t *SSETransport) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected && !t.closed
}
