package transport

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
)

// Parity is the serial parity setting, using the conventional single-letter
// notation found in instrument manuals.
type Parity byte

const (
	ParityNone  Parity = 'N'
	ParityEven  Parity = 'E'
	ParityOdd   Parity = 'O'
	ParityMark  Parity = 'M'
	ParitySpace Parity = 'S'
)

// StopBits is the serial stop-bit setting.
type StopBits int

const (
	StopBitsOne StopBits = iota
	StopBitsOnePointFive
	StopBitsTwo
)

// SerialConfig holds the parameters of a serial endpoint.
type SerialConfig struct {
	// Port is the OS port identifier, e.g. "/dev/ttyUSB0" or "COM3".
	Port string

	// BaudRate in bits per second, e.g. 9600.
	BaudRate int

	// DataBits per character: 5 to 8.
	DataBits int

	Parity   Parity
	StopBits StopBits

	// PollTimeout bounds a single Read call. Zero selects DefaultPollTimeout.
	PollTimeout time.Duration
}

// Validate checks the configuration ranges.
func (cfg *SerialConfig) Validate() error {
	if cfg.Port == "" {
		return errors.New("transport: serial port identifier is empty")
	}
	if cfg.BaudRate <= 0 {
		return fmt.Errorf("transport: invalid baud rate %d", cfg.BaudRate)
	}
	if cfg.DataBits < 5 || cfg.DataBits > 8 {
		return fmt.Errorf("transport: data bits %d out of range [5, 8]", cfg.DataBits)
	}

	switch cfg.Parity {
	case ParityNone, ParityEven, ParityOdd, ParityMark, ParitySpace:
	default:
		return fmt.Errorf("transport: invalid parity %q", string(cfg.Parity))
	}

	switch cfg.StopBits {
	case StopBitsOne, StopBitsOnePointFive, StopBitsTwo:
	default:
		return fmt.Errorf("transport: invalid stop bits %d", cfg.StopBits)
	}

	return nil
}

func (cfg *SerialConfig) mode() *serial.Mode {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
	}

	switch cfg.Parity {
	case ParityEven:
		mode.Parity = serial.EvenParity
	case ParityOdd:
		mode.Parity = serial.OddParity
	case ParityMark:
		mode.Parity = serial.MarkParity
	case ParitySpace:
		mode.Parity = serial.SpaceParity
	default:
		mode.Parity = serial.NoParity
	}

	switch cfg.StopBits {
	case StopBitsOnePointFive:
		mode.StopBits = serial.OnePointFiveStopBits
	case StopBitsTwo:
		mode.StopBits = serial.TwoStopBits
	default:
		mode.StopBits = serial.OneStopBit
	}

	return mode
}

// serialTransport implements Transport over a local serial port via
// go.bug.st/serial.
type serialTransport struct {
	cfg  SerialConfig
	poll time.Duration

	mu   sync.Mutex
	port serial.Port
}

// NewSerial creates a serial Transport from cfg. The port is not opened
// until Open is called.
func NewSerial(cfg SerialConfig) (Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	poll := cfg.PollTimeout
	if poll <= 0 {
		poll = DefaultPollTimeout
	}

	return &serialTransport{cfg: cfg, poll: poll}, nil
}

func (st *serialTransport) Open() error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.port != nil {
		return ErrAlreadyOpen
	}

	port, err := serial.Open(st.cfg.Port, st.cfg.mode())
	if err != nil {
		return fmt.Errorf("transport: open serial port %s: %w", st.cfg.Port, err)
	}

	// Short-poll reads; go.bug.st/serial returns n == 0 with a nil error
	// when the timeout expires with no data.
	if err := port.SetReadTimeout(st.poll); err != nil {
		_ = port.Close()

		return fmt.Errorf("transport: set read timeout on %s: %w", st.cfg.Port, err)
	}

	st.port = port

	return nil
}

func (st *serialTransport) Close() error {
	st.mu.Lock()
	port := st.port
	st.port = nil
	st.mu.Unlock()

	if port == nil {
		return nil
	}

	if err := port.Close(); err != nil {
		return fmt.Errorf("transport: close serial port %s: %w", st.cfg.Port, err)
	}

	return nil
}

func (st *serialTransport) Write(p []byte) error {
	port := st.getPort()
	if port == nil {
		return ErrNotOpen
	}

	for written := 0; written < len(p); {
		n, err := port.Write(p[written:])
		written += n

		if err != nil {
			return fmt.Errorf("transport: write to %s: %w", st.cfg.Port, err)
		}
	}

	return nil
}

func (st *serialTransport) Read(p []byte) (int, error) {
	port := st.getPort()
	if port == nil {
		return 0, ErrNotOpen
	}

	n, err := port.Read(p)
	if err != nil {
		// A Read failing because Close raced it is a normal shutdown path.
		var portErr *serial.PortError
		if st.getPort() == nil || (errors.As(err, &portErr) && portErr.Code() == serial.PortClosed) {
			return n, ErrNotOpen
		}

		return n, fmt.Errorf("transport: read from %s: %w", st.cfg.Port, err)
	}

	return n, nil
}

func (st *serialTransport) String() string {
	return "serial:" + st.cfg.Port
}

func (st *serialTransport) getPort() serial.Port {
	st.mu.Lock()
	defer st.mu.Unlock()

	return st.port
}
