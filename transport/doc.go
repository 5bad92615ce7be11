// Package transport abstracts the byte-stream endpoint a lab instrument is
// reached through: a serial port (RS-232/RS-485 via USB adapters) or a
// TCP/UDP socket (terminal servers, Ethernet-enabled instruments).
//
// A Transport owns exactly one OS resource and knows nothing about the line
// protocol spoken over it. Framing, request/reply correlation, and timeout
// bookkeeping live one level up in the line package.
//
// Reads are short-poll: Read blocks for at most the configured poll interval
// and returns n == 0 with a nil error when no data arrived. This lets the
// listener goroutine keep draining the endpoint without ever blocking
// indefinitely, so a close request is observed promptly.
package transport
