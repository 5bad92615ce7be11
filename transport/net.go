package transport

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"
)

// NetKind selects the transport-layer protocol of a network endpoint.
type NetKind int

const (
	// Stream is TCP.
	Stream NetKind = iota
	// Datagram is UDP. Some instrument gateways only expose datagram mode.
	Datagram
)

func (k NetKind) network() string {
	if k == Datagram {
		return "udp"
	}

	return "tcp"
}

// DefaultDialTimeout is the default timeout for establishing a network
// connection.
const DefaultDialTimeout = 3 * time.Second

// NetConfig holds the parameters of a network endpoint.
type NetConfig struct {
	// Host is the instrument's address, an IP or resolvable name.
	Host string

	// Port is the TCP/UDP port.
	Port int

	Kind NetKind

	// DialTimeout bounds connection establishment. Zero selects
	// DefaultDialTimeout.
	DialTimeout time.Duration

	// PollTimeout bounds a single Read call. Zero selects DefaultPollTimeout.
	PollTimeout time.Duration
}

// Validate checks the configuration ranges.
func (cfg *NetConfig) Validate() error {
	if cfg.Host == "" {
		return errors.New("transport: host address is empty")
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("transport: port %d out of range [1, 65535]", cfg.Port)
	}

	switch cfg.Kind {
	case Stream, Datagram:
	default:
		return fmt.Errorf("transport: invalid network kind %d", cfg.Kind)
	}

	return nil
}

// Addr returns "host:port".
func (cfg *NetConfig) Addr() string {
	return net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
}

// netTransport implements Transport over a TCP or UDP socket.
type netTransport struct {
	cfg  NetConfig
	poll time.Duration
	dial time.Duration

	mu   sync.Mutex
	conn net.Conn
}

// NewNet creates a network Transport from cfg. The socket is not dialed
// until Open is called.
func NewNet(cfg NetConfig) (Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	poll := cfg.PollTimeout
	if poll <= 0 {
		poll = DefaultPollTimeout
	}

	dial := cfg.DialTimeout
	if dial <= 0 {
		dial = DefaultDialTimeout
	}

	return &netTransport{cfg: cfg, poll: poll, dial: dial}, nil
}

func (nt *netTransport) Open() error {
	nt.mu.Lock()
	defer nt.mu.Unlock()

	if nt.conn != nil {
		return ErrAlreadyOpen
	}

	conn, err := net.DialTimeout(nt.cfg.Kind.network(), nt.cfg.Addr(), nt.dial)
	if err != nil {
		return fmt.Errorf("transport: dial %s %s: %w", nt.cfg.Kind.network(), nt.cfg.Addr(), err)
	}

	nt.conn = conn

	return nil
}

func (nt *netTransport) Close() error {
	nt.mu.Lock()
	conn := nt.conn
	nt.conn = nil
	nt.mu.Unlock()

	if conn == nil {
		return nil
	}

	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("transport: close %s: %w", nt.cfg.Addr(), err)
	}

	return nil
}

func (nt *netTransport) Write(p []byte) error {
	conn := nt.getConn()
	if conn == nil {
		return ErrNotOpen
	}

	return writeAll(conn, p, nt.cfg.Addr())
}

func (nt *netTransport) Read(p []byte) (int, error) {
	conn := nt.getConn()
	if conn == nil {
		return 0, ErrNotOpen
	}

	return pollRead(conn, p, nt.poll, nt.cfg.Addr(), nt.getConn)
}

func (nt *netTransport) String() string {
	return nt.cfg.Kind.network() + ":" + nt.cfg.Addr()
}

func (nt *netTransport) getConn() net.Conn {
	nt.mu.Lock()
	defer nt.mu.Unlock()

	return nt.conn
}

// connTransport wraps an already-established net.Conn as a Transport.
// Open is a no-op; ownership of the conn passes to the transport.
type connTransport struct {
	poll time.Duration

	mu   sync.Mutex
	conn net.Conn
	name string
}

// FromConn wraps an existing net.Conn (or net.Pipe end, for tests) as a
// Transport. poll bounds a single Read call; zero selects DefaultPollTimeout.
func FromConn(conn net.Conn, poll time.Duration) Transport {
	if poll <= 0 {
		poll = DefaultPollTimeout
	}

	name := "conn"
	if conn.RemoteAddr() != nil {
		name = conn.RemoteAddr().String()
	}

	return &connTransport{poll: poll, conn: conn, name: name}
}

func (ct *connTransport) Open() error { return nil }

func (ct *connTransport) Close() error {
	ct.mu.Lock()
	conn := ct.conn
	ct.conn = nil
	ct.mu.Unlock()

	if conn == nil {
		return nil
	}

	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("transport: close %s: %w", ct.name, err)
	}

	return nil
}

func (ct *connTransport) Write(p []byte) error {
	conn := ct.getConn()
	if conn == nil {
		return ErrNotOpen
	}

	return writeAll(conn, p, ct.name)
}

func (ct *connTransport) Read(p []byte) (int, error) {
	conn := ct.getConn()
	if conn == nil {
		return 0, ErrNotOpen
	}

	return pollRead(conn, p, ct.poll, ct.name, ct.getConn)
}

func (ct *connTransport) String() string {
	return "conn:" + ct.name
}

func (ct *connTransport) getConn() net.Conn {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	return ct.conn
}

// writeAll writes all of p to conn.
func writeAll(conn net.Conn, p []byte, name string) error {
	for written := 0; written < len(p); {
		n, err := conn.Write(p[written:])
		written += n

		if err != nil {
			return fmt.Errorf("transport: write to %s: %w", name, err)
		}
	}

	return nil
}

// pollRead performs a single deadline-bounded read. A deadline expiry is
// reported as n == 0 with a nil error; a conn closed concurrently by Close
// is reported as ErrNotOpen.
func pollRead(conn net.Conn, p []byte, poll time.Duration, name string, current func() net.Conn) (int, error) {
	if err := conn.SetReadDeadline(time.Now().Add(poll)); err != nil {
		return 0, fmt.Errorf("transport: set read deadline on %s: %w", name, err)
	}

	n, err := conn.Read(p)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return n, nil
		}

		if errors.Is(err, net.ErrClosed) || current() == nil {
			return n, ErrNotOpen
		}

		return n, fmt.Errorf("transport: read from %s: %w", name, err)
	}

	return n, nil
}
