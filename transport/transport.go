package transport

import (
	"errors"
	"time"
)

// DefaultPollTimeout is the default upper bound for a single Read call.
// It trades off between CPU usage and the latency of noticing new reply
// bytes or a shutdown request.
const DefaultPollTimeout = 50 * time.Millisecond

// Sentinel errors shared by all transport implementations.
var (
	// ErrNotOpen is returned by Read/Write/endpoint operations when the
	// transport has not been opened or has already been closed.
	ErrNotOpen = errors.New("transport: not open")

	// ErrAlreadyOpen is returned by Open when the transport already owns
	// an open OS resource.
	ErrAlreadyOpen = errors.New("transport: already open")
)

// Transport is a byte-stream endpoint to a single instrument.
//
// Implementations are safe for one concurrent reader plus one concurrent
// writer, which is the access pattern of the line package: the listener
// goroutine reads while the dispatcher writes.
type Transport interface {
	// Open acquires the underlying OS resource (serial fd or socket).
	Open() error

	// Close releases the resource. It is safe to call multiple times and
	// after a failed Read/Write; subsequent I/O returns ErrNotOpen.
	Close() error

	// Write writes all of p to the endpoint.
	Write(p []byte) error

	// Read reads available bytes into p, blocking for at most the poll
	// interval. It returns n == 0 with a nil error when no data arrived
	// within the interval. A non-nil error indicates the endpoint failed
	// and the transport is no longer usable.
	Read(p []byte) (int, error)

	// String describes the endpoint for logging, e.g. "serial:/dev/ttyUSB0"
	// or "tcp:192.168.1.20:4001".
	String() string
}
