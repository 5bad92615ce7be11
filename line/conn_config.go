package line

import (
	"errors"
	"fmt"
	"time"

	"github.com/labio/labline/logger"
)

// Default configuration values.
const (
	// DefaultTerminator is the line delimiter used by the vast majority of
	// instrument dialects.
	DefaultTerminator = "\r\n"

	// DefaultReplyTimeout is used by Send when the caller passes a
	// non-positive timeout.
	DefaultReplyTimeout = 2 * time.Second

	// DefaultMaxFrameSize bounds how many bytes the listener accumulates
	// without seeing a terminator before discarding the buffer.
	DefaultMaxFrameSize = 4096

	// MinMaxFrameSize is the smallest accepted frame-size bound.
	MinMaxFrameSize = 16
)

// StrayFrameHandler is invoked for frames that arrive with no command in
// flight (unsolicited device pushes, or replies that lost their waiter to a
// timeout). The frame has already been logged and will be discarded after
// the handler returns; the handler must not retain the slice.
type StrayFrameHandler func(frame []byte)

// ConnectionConfig holds all configuration for a line-protocol connection.
type ConnectionConfig struct {
	terminator   []byte
	commandDelay time.Duration
	replyTimeout time.Duration
	maxFrameSize int

	strayHandler  StrayFrameHandler
	stateHandlers []ConnStateChangeHandler

	logger logger.Logger
}

// NewConnectionConfig creates a new connection configuration.
//
// opts are functional options applied in order; see With* functions.
func NewConnectionConfig(opts ...ConnOption) (*ConnectionConfig, error) {
	cfg := &ConnectionConfig{
		terminator:   []byte(DefaultTerminator),
		replyTimeout: DefaultReplyTimeout,
		maxFrameSize: DefaultMaxFrameSize,
		logger:       logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Terminator returns the configured line delimiter.
func (cfg *ConnectionConfig) Terminator() string { return string(cfg.terminator) }

// CommandDelay returns the minimum spacing enforced between consecutive
// commands.
func (cfg *ConnectionConfig) CommandDelay() time.Duration { return cfg.commandDelay }

// ReplyTimeout returns the default reply timeout.
func (cfg *ConnectionConfig) ReplyTimeout() time.Duration { return cfg.replyTimeout }

// MaxFrameSize returns the listener's accumulation bound.
func (cfg *ConnectionConfig) MaxFrameSize() int { return cfg.maxFrameSize }

// GetLogger returns the configured logger.
func (cfg *ConnectionConfig) GetLogger() logger.Logger { return cfg.logger }

// ConnOption is a functional option for configuring a ConnectionConfig.
type ConnOption interface {
	apply(*ConnectionConfig) error
}

type connOptFunc func(*ConnectionConfig) error

func (f connOptFunc) apply(cfg *ConnectionConfig) error {
	if cfg == nil {
		return ErrConfigNil
	}

	return f(cfg)
}

// WithTerminator sets the line delimiter that both terminates outbound
// commands (the device layer appends it) and frames inbound replies.
// Defaults to "\r\n".
func WithTerminator(term string) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		if term == "" {
			return errors.New("line: terminator must not be empty")
		}
		cfg.terminator = []byte(term)

		return nil
	})
}

// WithCommandDelay sets a minimum spacing between consecutive commands on
// this connection.
//
// Low-level serial instruments without hardware flow control may need time
// to process a command before the next one arrives; the dispatcher delays a
// Send that follows the previous command too closely. Defaults to zero
// (no delay).
func WithCommandDelay(d time.Duration) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		if d < 0 {
			return errors.New("line: command delay must not be negative")
		}
		cfg.commandDelay = d

		return nil
	})
}

// WithReplyTimeout sets the default reply timeout used when Send is called
// with a non-positive timeout.
func WithReplyTimeout(d time.Duration) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		if d <= 0 {
			return errors.New("line: reply timeout must be positive")
		}
		cfg.replyTimeout = d

		return nil
	})
}

// WithMaxFrameSize bounds how many bytes the listener accumulates without
// seeing a terminator before discarding the buffer as garbage.
func WithMaxFrameSize(n int) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		if n < MinMaxFrameSize {
			return fmt.Errorf("line: max frame size %d below minimum %d", n, MinMaxFrameSize)
		}
		cfg.maxFrameSize = n

		return nil
	})
}

// WithStrayFrameHandler registers a handler for frames that arrive with no
// command in flight.
func WithStrayFrameHandler(h StrayFrameHandler) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		cfg.strayHandler = h

		return nil
	})
}

// WithConnStateChangeHandler registers handlers invoked on connection state
// transitions.
func WithConnStateChangeHandler(handlers ...ConnStateChangeHandler) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		cfg.stateHandlers = append(cfg.stateHandlers, handlers...)

		return nil
	})
}

// WithLogger sets the logger for the connection.
func WithLogger(l logger.Logger) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		if l == nil {
			return errors.New("line: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
