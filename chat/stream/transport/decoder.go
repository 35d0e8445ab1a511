package transport

import (
	"bytes"
)

const (
	// DefaultMaxFrameSize is the default maximum size of a single event line (1MB)
	DefaultMaxFrameSize = 1024 * 1024

	// doneSentinel is the payload that terminates the event stream
	doneSentinel = "[DONE]"

	dataPrefix = "data:"
)

// FrameDecoder turns a raw byte stream into discrete event payloads.
//
// The wire format is SSE-shaped: events arrive as "data: <json>" lines,
// newline-delimited, terminated by a line whose payload is the literal
// "[DONE]" sentinel. Chunks may split a line at any byte offset; the
// decoder holds the trailing partial line back until it completes.
// Non-data lines (blank separators, comments, other SSE fields) are
// skipped. Decoding is synchronous per chunk.
type FrameDecoder struct {
	maxFrameSize int
	buf          []byte
	done         bool
}

// NewFrameDecoder creates a decoder with the default frame size limit
func NewFrameDecoder() *FrameDecoder {
	return &FrameDecoder{maxFrameSize: DefaultMaxFrameSize}
}

// Feed appends a chunk and returns the payloads of all data lines the chunk
// completed, in arrival order. Once the terminal sentinel has been seen,
// Feed consumes input without emitting anything further.
func (d *FrameDecoder) Feed(chunk []byte) ([][]byte, error) {
	if d.done {
		return nil, nil
	}

	d.buf = append(d.buf, chunk...)

	var payloads [][]byte
	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			break
		}
		line := bytes.TrimSuffix(d.buf[:i], []byte("\r"))
		d.buf = d.buf[i+1:]

		payload, ok := dataPayload(line)
		if !ok {
			continue
		}

		if string(payload) == doneSentinel {
			d.done = true
			d.buf = nil
			return payloads, nil
		}

		// Copy: payload aliases the internal buffer
		cp := make([]byte, len(payload))
		copy(cp, payload)
		payloads = append(payloads, cp)
	}

	if len(d.buf) > d.maxFrameSize {
		return payloads, ErrFrameTooLarge
	}

	return payloads, nil
}

// Done reports whether the terminal sentinel has been seen
func (d *FrameDecoder) Done() bool {
	return d.done
}

// dataPayload extracts the payload of a "data:" line, stripping at most one
// leading space after the colon. Any other line returns false.
func dataPayload(line []byte) ([]byte, bool) {
	if !bytes.HasPrefix(line, []byte(dataPrefix)) {
		return nil, false
	}
	p := line[len(dataPrefix):]
	if len(p) > 0 && p[0] == ' ' {
		p = p[1:]
	}
	return p, true
}
