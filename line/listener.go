package line

import (
	"bytes"
	"errors"

	"github.com/labio/labline/logger"
	"github.com/labio/labline/transport"
)

// readChunkSize is the size of the listener's per-iteration read buffer.
// Serial instrument replies are short; the buffer only needs to keep up
// with one poll interval of traffic.
const readChunkSize = 256

// listener drains the transport in the background, frames the byte stream
// on the line terminator, and delivers each complete frame to the
// dispatcher.
//
// One listener belongs to exactly one Connection and runs as a TaskManager
// loop between Open and Close. It is the only reader of the transport.
type listener struct {
	tr         transport.Transport
	terminator []byte
	maxBuf     int
	logger     logger.Logger

	// deliver hands a complete frame (terminator stripped) to the
	// dispatcher. onFault reports an unrecoverable transport read error.
	deliver func(frame []byte)
	onFault func(err error)

	chunk []byte
	buf   []byte
}

func newListener(
	tr transport.Transport,
	cfg *ConnectionConfig,
	l logger.Logger,
	deliver func(frame []byte),
	onFault func(err error),
) *listener {
	return &listener{
		tr:         tr,
		terminator: cfg.terminator,
		maxBuf:     cfg.maxFrameSize,
		logger:     l,
		deliver:    deliver,
		onFault:    onFault,
		chunk:      make([]byte, readChunkSize),
	}
}

// iteration performs a single poll-read of the transport. It returns false
// when the listener should stop: on shutdown or transport fault.
func (ln *listener) iteration() bool {
	n, err := ln.tr.Read(ln.chunk)
	if err != nil {
		if errors.Is(err, transport.ErrNotOpen) {
			// Transport closed under us - normal shutdown path.
			ln.logger.Debug("listener: transport closed, stopping")

			return false
		}

		ln.logger.Error("listener: transport read failed", "error", err)
		ln.onFault(err)

		return false
	}

	if n == 0 {
		// Poll interval elapsed with no data.
		return true
	}

	ln.buf = append(ln.buf, ln.chunk[:n]...)
	ln.extractFrames()

	if len(ln.buf) > ln.maxBuf {
		// A device streaming bytes without ever terminating a line would
		// otherwise grow the buffer unboundedly.
		ln.logger.Warn("listener: discarding oversized unterminated buffer",
			"size", len(ln.buf), "max", ln.maxBuf)
		ln.buf = ln.buf[:0]
	}

	return true
}

// extractFrames splits the accumulated buffer on the terminator and delivers
// each complete frame. Partial trailing data stays in the buffer.
func (ln *listener) extractFrames() {
	for {
		idx := bytes.Index(ln.buf, ln.terminator)
		if idx < 0 {
			return
		}

		frame := make([]byte, idx)
		copy(frame, ln.buf[:idx])
		ln.buf = ln.buf[idx+len(ln.terminator):]

		ln.deliver(frame)
	}
}
