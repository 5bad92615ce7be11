package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownCommand indicates a command name that is not in the
	// device's registry.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrDuplicateCommand indicates a registry name collision.
	ErrDuplicateCommand = errors.New("duplicate command")
	// ErrInvalidCommand indicates a malformed command definition.
	ErrInvalidCommand = errors.New("invalid command definition")
	// ErrArgRejected indicates a command argument that failed the
	// command's validation rule before anything was sent.
	ErrArgRejected = errors.New("argument rejected")
)

// DecodeError indicates a reply that could not be decoded by the command's
// parser. Raw preserves the reply as received for diagnostics.
type DecodeError struct {
	Raw    string
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode reply %q: %s: %v", e.Raw, e.Reason, e.Err)
	}

	return fmt.Sprintf("decode reply %q: %s", e.Raw, e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func newDecodeError(raw string, reason string, args ...any) *DecodeError {
	return &DecodeError{Raw: raw, Reason: fmt.Sprintf(reason, args...)}
}
