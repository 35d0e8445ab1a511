package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// newStreamServer starts an httptest server whose handler writes SSE frames
func newStreamServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, func()) {
	t.Helper()
	srv := httptest.NewServer(handler)
	return srv, srv.Close
}

// newTestTransport prepares a transport pointed at the server
func newTestTransport(t *testing.T, srv *httptest.Server) *SSETransport {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader(`{"agent_id":"a1"}`))
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return NewSSETransport(srv.Client(), req)
}

// collectPayloads drains ReadMessages until it closes or the timeout fires
func collectPayloads(t *testing.T, tr *SSETransport, timeout time.Duration) []string {
	t.Helper()

	var payloads []string
	deadline := time.After(timeout)
	for {
		select {
		case p, ok := <-tr.ReadMessages():
			if !ok {
				return payloads
			}
			payloads = append(payloads, string(p))
		case <-deadline:
			t.Fatal("timeout draining transport messages")
			return nil
		}
	}
}

func writeFrame(w http.ResponseWriter, payload string) {
	fmt.Fprintf(w, "data: %s\n\n", payload)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// =============================================================================
// Streaming
// =============================================================================

func TestSSETransport_ReceivesEvents(t *testing.T) {
	srv, cleanup := newStreamServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		writeFrame(w, `{"type":"session_start","sessionId":"S1"}`)
		writeFrame(w, `{"type":"result","session_id":"S1"}`)
		writeFrame(w, "[DONE]")
	})
	defer cleanup()

	tr := newTestTransport(t, srv)
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer tr.Close()

	payloads := collectPayloads(t, tr, 2*time.Second)
	if len(payloads) != 2 {
		t.Fatalf("expected 2 payloads, got %d: %v", len(payloads), payloads)
	}
	if payloads[0] != `{"type":"session_start","sessionId":"S1"}` {
		t.Errorf("unexpected first payload: %q", payloads[0])
	}

	// No transport error on a clean end
	select {
	case err := <-tr.Errors():
		t.Fatalf("unexpected transport error: %v", err)
	default:
	}
}

func TestSSETransport_SendsPreparedRequest(t *testing.T) {
	gotBody := make(chan string, 1)

	srv, cleanup := newStreamServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if accept := r.Header.Get("Accept"); accept != "text/event-stream" {
			t.Errorf("expected Accept text/event-stream, got %q", accept)
		}
		body, _ := io.ReadAll(r.Body)
		gotBody <- string(body)
		w.Header().Set("Content-Type", "text/event-stream")
		writeFrame(w, "[DONE]")
	})
	defer cleanup()

	tr := newTestTransport(t, srv)
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer tr.Close()

	select {
	case body := <-gotBody:
		if body != `{"agent_id":"a1"}` {
			t.Errorf("unexpected request body: %q", body)
		}
	case <-time.After(time.Second):
		t.Fatal("server never received the request")
	}
}

func TestSSETransport_ChunkSplitMidEvent(t *testing.T) {
	srv, cleanup := newStreamServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		f, _ := w.(http.Flusher)

		// Flush half an event, then the rest
		io.WriteString(w, "data: {\"type\":\"assi")
		if f != nil {
			f.Flush()
		}
		time.Sleep(20 * time.Millisecond)
		io.WriteString(w, "stant\"}\n\n")
		if f != nil {
			f.Flush()
		}
		writeFrame(w, "[DONE]")
	})
	defer cleanup()

	tr := newTestTransport(t, srv)
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer tr.Close()

	payloads := collectPayloads(t, tr, 2*time.Second)
	if len(payloads) != 1 {
		t.Fatalf("expected 1 payload, got %d: %v", len(payloads), payloads)
	}
	if payloads[0] != `{"type":"assistant"}` {
		t.Errorf("unexpected payload: %q", payloads[0])
	}
}

func TestSSETransport_StreamEndsOnServerClose(t *testing.T) {
	srv, cleanup := newStreamServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		writeFrame(w, `{"type":"assistant"}`)
		// No sentinel: handler returns, closing the stream
	})
	defer cleanup()

	tr := newTestTransport(t, srv)
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer tr.Close()

	payloads := collectPayloads(t, tr, 2*time.Second)
	if len(payloads) != 1 {
		t.Fatalf("expected 1 payload, got %d", len(payloads))
	}

	select {
	case err := <-tr.Errors():
		t.Fatalf("server close is a clean end, got error: %v", err)
	default:
	}
}

// =============================================================================
// Failures
// =============================================================================

func TestSSETransport_HTTPErrorStatus(t *testing.T) {
	srv, cleanup := newStreamServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"agent not found"}`, http.StatusNotFound)
	})
	defer cleanup()

	tr := newTestTransport(t, srv)
	err := tr.Connect(context.Background())
	if err == nil {
		t.Fatal("expected Connect to fail on 404")
	}

	var statusErr *HTTPStatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected HTTPStatusError, got %T: %v", err, err)
	}
	if statusErr.StatusCode != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", statusErr.StatusCode)
	}
	if !strings.Contains(statusErr.Body, "agent not found") {
		t.Errorf("expected body detail preserved, got %q", statusErr.Body)
	}
}

func TestSSETransport_ServerAbortMidStream(t *testing.T) {
	srv, cleanup := newStreamServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		writeFrame(w, `{"type":"assistant"}`)

		// Kill the connection without a clean end
		hj, ok := w.(http.Hijacker)
		if !ok {
			return
		}
		conn, _, err := hj.Hijack()
		if err != nil {
			return
		}
		conn.Close()
	})
	defer cleanup()

	tr := newTestTransport(t, srv)
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer tr.Close()

	payloads := collectPayloads(t, tr, 2*time.Second)
	if len(payloads) != 1 {
		t.Fatalf("expected 1 payload before abort, got %d", len(payloads))
	}

	select {
	case err := <-tr.Errors():
		var connErr *ConnectionError
		if !errors.As(err, &connErr) {
			t.Errorf("expected ConnectionError, got %T: %v", err, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for transport error")
	}
}

// =============================================================================
// Lifecycle
// =============================================================================

func TestSSETransport_CloseAbortsStream(t *testing.T) {
	srv, cleanup := newStreamServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		writeFrame(w, `{"type":"assistant"}`)

		// Stream heartbeats until the client goes away
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
				writeFrame(w, `{"type":"heartbeat"}`)
			}
		}
	})
	defer cleanup()

	tr := newTestTransport(t, srv)
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	// Wait for the first payload, then abort
	select {
	case <-tr.ReadMessages():
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for first payload")
	}

	if err := tr.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Channel must close and abort must not surface as an error
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-tr.ReadMessages():
			if !ok {
				select {
				case err := <-tr.Errors():
					t.Fatalf("local abort must not produce an error, got: %v", err)
				default:
				}
				if tr.IsConnected() {
					t.Error("transport still reports connected after Close")
				}
				return
			}
		case <-deadline:
			t.Fatal("timeout waiting for message channel to close")
		}
	}
}

func TestSSETransport_CloseIsIdempotent(t *testing.T) {
	srv, cleanup := newStreamServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		writeFrame(w, "[DONE]")
	})
	defer cleanup()

	tr := newTestTransport(t, srv)
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if err := tr.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}

func TestSSETransport_ConnectTwice(t *testing.T) {
	srv, cleanup := newStreamServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
				writeFrame(w, `{"type":"heartbeat"}`)
			}
		}
	})
	defer cleanup()

	tr := newTestTransport(t, srv)
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer tr.Close()

	if err := tr.Connect(context.Background()); err != ErrAlreadyConnected {
		t.Errorf("expected ErrAlreadyConnected, got %v", err)
	}
}

func TestSSETransport_ConnectAfterClose(t *testing.T) {
	srv, cleanup := newStreamServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		writeFrame(w, "[DONE]")
	})
	defer cleanup()

	tr := newTestTransport(t, srv)
	if err := tr.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := tr.Connect(context.Background()); err != ErrConnectionClosed {
		t.Errorf("expected ErrConnectionClosed, got %v", err)
	}
}
