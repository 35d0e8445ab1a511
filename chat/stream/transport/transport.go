// Package transport provides the byte-level streaming layer for the chat
// client: a decoder for SSE data frames and an HTTP transport that feeds it.
package transport

import (
	"context"
)

// Transport is the interface for receiving one streamed turn from the agent
// runtime. Implementations handle the actual I/O (HTTP SSE, mock, etc.)
type Transport interface {
	// Connect opens the stream
	Connect(ctx context.Context) error

	// ReadMessages returns a channel that yields raw JSON event payloads.
	// The channel is closed when the stream ends, for any reason.
	ReadMessages() <-chan []byte

	// Errors returns a channel that yields transport-level errors
	Errors() <-chan error

	// Close aborts the stream and releases resources
	Close() error

	// IsConnected returns whether the stream is currently open
	IsConnected() bool
}
