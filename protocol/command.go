package protocol

import (
	"fmt"
	"slices"
	"strconv"
)

// ParseFunc extracts the value of interest from a trimmed reply line.
// Parsers compose with Chain; building blocks live in parsers.go.
type ParseFunc func(s string) (string, error)

// ArgCheck validates a command argument before it is sent.
//
// When Values is non-empty the argument must match one of them literally.
// Otherwise the argument must parse as a number within [Min, Max].
type ArgCheck struct {
	Min    float64
	Max    float64
	Values []string
}

// Validate reports whether arg satisfies the check.
func (ck *ArgCheck) Validate(arg string) error {
	if len(ck.Values) > 0 {
		if slices.Contains(ck.Values, arg) {
			return nil
		}

		return fmt.Errorf("%w: %q not in %v", ErrArgRejected, arg, ck.Values)
	}

	v, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return fmt.Errorf("%w: %q is not numeric", ErrArgRejected, arg)
	}

	if v < ck.Min || v > ck.Max {
		return fmt.Errorf("%w: %v outside [%v, %v]", ErrArgRejected, v, ck.Min, ck.Max)
	}

	return nil
}

// Command describes one instrument verb.
type Command struct {
	// Name is the registry key, a stable logical identifier.
	Name string
	// Verb is what actually goes on the wire, e.g. "IN_PV_1" or "S".
	Verb string
	// NoReply marks fire-and-forget commands; Execute transmits them
	// without waiting for a reply.
	NoReply bool
	// Check, when set, validates the argument before sending.
	Check *ArgCheck
	// Parse, when set, extracts the value from the trimmed reply line.
	Parse ParseFunc
}

func (c *Command) validate() error {
	if c == nil {
		return fmt.Errorf("%w: nil command", ErrInvalidCommand)
	}

	if c.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidCommand)
	}

	if c.Verb == "" {
		return fmt.Errorf("%w: %s has empty verb", ErrInvalidCommand, c.Name)
	}

	if c.NoReply && c.Parse != nil {
		return fmt.Errorf("%w: %s is no-reply but has a parser", ErrInvalidCommand, c.Name)
	}

	return nil
}
