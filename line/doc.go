// Package line implements the connection and command-dispatch core for
// ASCII line-protocol lab instruments (stirrers, hotplates, pumps, balances,
// detectors).
//
// A Connection owns one transport.Transport and one background listener
// goroutine. The listener continuously drains the transport, frames incoming
// bytes on the line terminator, and hands each complete frame to the
// dispatcher through a single-slot delivery channel. Send writes a command
// and blocks until the listener delivers a reply, the caller's timeout
// elapses, or the connection is closed or faults.
//
// Commands on one Connection are strictly serialized: there is at most one
// in-flight command, and concurrent Send callers queue on the in-flight slot.
// Replies are therefore matched to commands purely by temporal ordering:
// the instrument dialects carry no command identifiers, so no content-based
// correlation is possible.
//
// # Known protocol limitation
//
// Because correlation is purely temporal, a stray reply to a command that
// already timed out can in principle be attributed to the next command if
// that command is issued before the stray arrives. Frames that arrive with
// no command in flight are logged and dropped, which narrows but does not
// close this window. This is inherent to the wire protocols and is left as
// documented behavior; callers that need stronger guarantees should leave a
// quiet period after a timeout before retrying.
package line
