package protocol

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/labio/labline/logger"
)

// Conn is the connection surface a Device needs. *line.Connection
// satisfies it.
type Conn interface {
	Send(cmd []byte, timeout time.Duration) ([]byte, error)
	Transmit(cmd []byte) error
}

// Dialect describes how a command and its arguments are laid out on the
// wire for one instrument family.
type Dialect struct {
	// ArgSeparator joins the verb and its arguments. Defaults to a
	// single space.
	ArgSeparator string
	// Terminator ends every outgoing command. It must match the frame
	// terminator configured on the connection.
	Terminator string
	// ReplyCheck, when set, vets every reply before the command's parser
	// runs. Instrument families with in-band status codes reject error
	// replies here.
	ReplyCheck func(verb, reply string) error
}

func (d *Dialect) separator() string {
	if d.ArgSeparator == "" {
		return " "
	}

	return d.ArgSeparator
}

// format builds the wire form of a command.
func (d *Dialect) format(verb string, args []string) []byte {
	if len(args) == 0 {
		return []byte(verb + d.Terminator)
	}

	return []byte(verb + d.separator() + strings.Join(args, d.separator()) + d.Terminator)
}

// Device executes registry commands over a connection according to a
// dialect. It is safe for concurrent use; the underlying connection
// serializes the actual exchanges.
type Device struct {
	conn     Conn
	dialect  Dialect
	registry *Registry
	timeout  time.Duration
	logger   logger.Logger
}

// NewDevice binds a registry and a dialect to a connection.
//
// replyTimeout applies to every Execute exchange; a non-positive value
// defers to the connection's configured default.
func NewDevice(conn Conn, dialect Dialect, registry *Registry, replyTimeout time.Duration, l logger.Logger) (*Device, error) {
	if conn == nil {
		return nil, fmt.Errorf("%w: nil connection", ErrInvalidCommand)
	}

	if registry == nil {
		return nil, fmt.Errorf("%w: nil registry", ErrInvalidCommand)
	}

	if dialect.Terminator == "" {
		return nil, fmt.Errorf("%w: dialect has empty terminator", ErrInvalidCommand)
	}

	if l == nil {
		l = logger.GetLogger()
	}

	return &Device{
		conn:     conn,
		dialect:  dialect,
		registry: registry,
		timeout:  replyTimeout,
		logger:   l,
	}, nil
}

// Registry returns the device's command registry.
func (d *Device) Registry() *Registry { return d.registry }

// Execute runs the named command with the given arguments and returns the
// decoded reply value.
//
// Arguments are validated against the command's check before anything is
// sent. For no-reply commands the returned value is empty. The reply is
// trimmed of surrounding whitespace, vetted by the dialect's ReplyCheck,
// and finally passed through the command's parser.
func (d *Device) Execute(name string, args ...string) (string, error) {
	cmd, ok := d.registry.Lookup(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}

	if cmd.Check != nil {
		for _, arg := range args {
			if err := cmd.Check.Validate(arg); err != nil {
				return "", fmt.Errorf("%s: %w", name, err)
			}
		}
	}

	wire := d.dialect.format(cmd.Verb, args)

	if cmd.NoReply {
		if err := d.conn.Transmit(wire); err != nil {
			return "", fmt.Errorf("%s: %w", name, err)
		}

		return "", nil
	}

	raw, err := d.conn.Send(wire, d.timeout)
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}

	reply := strings.TrimSpace(string(raw))

	if d.dialect.ReplyCheck != nil {
		if err := d.dialect.ReplyCheck(cmd.Verb, reply); err != nil {
			return "", fmt.Errorf("%s: %w", name, err)
		}
	}

	if cmd.Parse != nil {
		value, err := cmd.Parse(reply)
		if err != nil {
			return "", fmt.Errorf("%s: %w", name, err)
		}

		return value, nil
	}

	return reply, nil
}

// ExecuteFloat runs Execute and decodes the result as a float64.
func (d *Device) ExecuteFloat(name string, args ...string) (float64, error) {
	s, err := d.Execute(name, args...)
	if err != nil {
		return 0, err
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &DecodeError{Raw: s, Reason: "not a float", Err: err}
	}

	return v, nil
}

// ExecuteInt runs Execute and decodes the result as an int.
func (d *Device) ExecuteInt(name string, args ...string) (int, error) {
	s, err := d.Execute(name, args...)
	if err != nil {
		return 0, err
	}

	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, &DecodeError{Raw: s, Reason: "not an integer", Err: err}
	}

	return v, nil
}
