package line

import "errors"

var (
	// ErrConfigNil indicates that a nil ConnectionConfig was provided.
	ErrConfigNil = errors.New("line: connection config is nil")

	// ErrTransportNil indicates that a nil Transport was provided.
	ErrTransportNil = errors.New("line: transport is nil")

	// ErrConnect indicates that establishing the connection failed.
	// The underlying transport error is wrapped alongside it.
	ErrConnect = errors.New("line: connect failed")

	// ErrTimeout indicates that no reply arrived within the caller-specified
	// bound. The command may still be processed by the instrument; a late
	// reply is dropped.
	ErrTimeout = errors.New("line: reply timeout")

	// ErrConnectionLost indicates that an operation was attempted while the
	// connection is closed or faulted, or that the connection was closed or
	// faulted while the operation was in flight. The caller must Close and
	// Open again before retrying.
	ErrConnectionLost = errors.New("line: connection lost")

	// ErrInvalidTransition is returned when an attempt is made to transition
	// the connection state to an invalid state.
	ErrInvalidTransition = errors.New("line: invalid state transition")
)
