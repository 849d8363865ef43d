// Package codec implements the wire framing from spec.md §4.1:
// newline-delimited text frames over a byte stream. Each frame is one
// logical unit — either the JSON text of an envelope (plaintext mode)
// or a base64-encoded ciphertext blob (once a peer's secure channel is
// Active, see the secure package) — the codec itself never inspects
// frame contents. Grounded on engine/acp/conn.go's bufio.Scanner +
// capped buffer pattern, and on the atomic single-write-per-frame
// requirement from spec.md §5.
package codec

import (
	"bufio"
	"fmt"
	"io"
	"sync"
)

// DefaultMaxFrameSize caps a single frame, matching the order of
// magnitude engine/acp/options.go uses for its JSON-RPC scanner
// (defaultMaxMessageSize = 4 << 20).
const DefaultMaxFrameSize = 4 << 20

// Reader reads newline-delimited frames from an underlying stream.
type Reader struct {
	scanner *bufio.Scanner
}

// NewReader wraps r with a scanner capped at maxFrameSize bytes per
// frame. maxFrameSize <= 0 selects DefaultMaxFrameSize.
func NewReader(r io.Reader, maxFrameSize int) *Reader {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	s := bufio.NewScanner(r)
	initCap := 4096
	if initCap > maxFrameSize {
		initCap = maxFrameSize
	}
	s.Buffer(make([]byte, 0, initCap), maxFrameSize)
	return &Reader{scanner: s}
}

// ReadFrame returns the next frame's bytes, with the trailing newline
// stripped. Returns io.EOF when the stream ends cleanly.
func (r *Reader) ReadFrame() ([]byte, error) {
	if r.scanner.Scan() {
		// The scanner reuses its internal buffer across calls; copy out
		// so callers can retain the slice past the next ReadFrame.
		line := r.scanner.Bytes()
		out := make([]byte, len(line))
		copy(out, line)
		return out, nil
	}
	if err := r.scanner.Err(); err != nil {
		return nil, fmt.Errorf("codec: read frame: %w", err)
	}
	return nil, io.EOF
}

// Writer writes newline-delimited frames to an underlying stream.
// Writes are serialized so that each frame is written atomically even
// under concurrent callers (spec.md §5's write-atomicity requirement).
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter wraps w for frame-atomic writes.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteFrame writes data followed by a single newline, holding the
// writer's lock for the whole operation so concurrent WriteFrame calls
// never interleave their bytes.
func (w *Writer) WriteFrame(data []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	buf := make([]byte, 0, len(data)+1)
	buf = append(buf, data...)
	buf = append(buf, '\n')

	n, err := w.w.Write(buf)
	if err != nil {
		return n, fmt.Errorf("codec: write frame: %w", err)
	}
	return n, nil
}
