package protocol

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeConn scripts replies and records everything sent.
type fakeConn struct {
	sent    []string
	replies map[string]string
	err     error
}

func newFakeConn() *fakeConn {
	return &fakeConn{replies: make(map[string]string)}
}

func (f *fakeConn) Send(cmd []byte, timeout time.Duration) ([]byte, error) {
	f.sent = append(f.sent, string(cmd))

	if f.err != nil {
		return nil, f.err
	}

	reply, ok := f.replies[string(cmd)]
	if !ok {
		return nil, errors.New("unexpected command")
	}

	return []byte(reply), nil
}

func (f *fakeConn) Transmit(cmd []byte) error {
	f.sent = append(f.sent, string(cmd))

	return f.err
}

func newTestDevice(t *testing.T, conn Conn, reg *Registry, dialect Dialect) *Device {
	t.Helper()

	if dialect.Terminator == "" {
		dialect.Terminator = "\r\n"
	}

	dev, err := NewDevice(conn, dialect, reg, time.Second, nil)
	require.NoError(t, err)

	return dev
}

func TestNewDevice_Validation(t *testing.T) {
	require := require.New(t)

	reg := NewRegistry()
	dialect := Dialect{Terminator: "\r\n"}

	_, err := NewDevice(nil, dialect, reg, 0, nil)
	require.Error(err)

	_, err = NewDevice(newFakeConn(), dialect, nil, 0, nil)
	require.Error(err)

	_, err = NewDevice(newFakeConn(), Dialect{}, reg, 0, nil)
	require.Error(err)
}

func TestDevice_Execute(t *testing.T) {
	require := require.New(t)

	t.Run("Formats Command And Parses Reply", func(t *testing.T) {
		reg := NewRegistry()
		reg.MustRegister(&Command{Name: "speed", Verb: "IN_PV_4", Parse: Field(0, "")})

		conn := newFakeConn()
		conn.replies["IN_PV_4\r\n"] = "300 4\r\n"

		dev := newTestDevice(t, conn, reg, Dialect{})

		v, err := dev.Execute("speed")
		require.NoError(err)
		require.Equal("300", v)
		require.Equal([]string{"IN_PV_4\r\n"}, conn.sent)
	})

	t.Run("Arguments Joined By Separator", func(t *testing.T) {
		reg := NewRegistry()
		reg.MustRegister(&Command{Name: "set", Verb: "OUT_SP_1", NoReply: true})

		conn := newFakeConn()
		dev := newTestDevice(t, conn, reg, Dialect{})

		_, err := dev.Execute("set", "50")
		require.NoError(err)
		require.Equal([]string{"OUT_SP_1 50\r\n"}, conn.sent)
	})

	t.Run("Unknown Command", func(t *testing.T) {
		dev := newTestDevice(t, newFakeConn(), NewRegistry(), Dialect{})

		_, err := dev.Execute("bogus")
		require.ErrorIs(err, ErrUnknownCommand)
	})

	t.Run("Argument Check Blocks Send", func(t *testing.T) {
		reg := NewRegistry()
		reg.MustRegister(&Command{
			Name: "set", Verb: "OUT_SP_1", NoReply: true,
			Check: &ArgCheck{Min: 20, Max: 310},
		})

		conn := newFakeConn()
		dev := newTestDevice(t, conn, reg, Dialect{})

		_, err := dev.Execute("set", "400")
		require.ErrorIs(err, ErrArgRejected)
		require.Empty(conn.sent, "rejected argument must not reach the wire")
	})

	t.Run("Reply Check Runs Before Parser", func(t *testing.T) {
		errBusy := errors.New("busy")

		reg := NewRegistry()
		reg.MustRegister(&Command{Name: "weight", Verb: "S", Parse: Field(2, "")})

		conn := newFakeConn()
		conn.replies["S\r\n"] = "S I\r\n"

		dev := newTestDevice(t, conn, reg, Dialect{
			ReplyCheck: func(verb, reply string) error {
				if reply == "S I" {
					return errBusy
				}

				return nil
			},
		})

		_, err := dev.Execute("weight")
		require.ErrorIs(err, errBusy)
	})

	t.Run("Unparsed Reply Returned Trimmed", func(t *testing.T) {
		reg := NewRegistry()
		reg.MustRegister(&Command{Name: "name", Verb: "IN_NAME"})

		conn := newFakeConn()
		conn.replies["IN_NAME\r\n"] = "  IKARET  "

		dev := newTestDevice(t, conn, reg, Dialect{})

		v, err := dev.Execute("name")
		require.NoError(err)
		require.Equal("IKARET", v)
	})

	t.Run("Send Error Propagates", func(t *testing.T) {
		reg := NewRegistry()
		reg.MustRegister(&Command{Name: "name", Verb: "IN_NAME"})

		conn := newFakeConn()
		conn.err = errors.New("connection lost")

		dev := newTestDevice(t, conn, reg, Dialect{})

		_, err := dev.Execute("name")
		require.ErrorContains(err, "connection lost")
	})
}

func TestDevice_ExecuteTyped(t *testing.T) {
	require := require.New(t)

	reg := NewRegistry()
	reg.MustRegister(
		&Command{Name: "temp", Verb: "IN_PV_1", Parse: Field(0, "")},
		&Command{Name: "count", Verb: "COUNT"},
	)

	conn := newFakeConn()
	conn.replies["IN_PV_1\r\n"] = "25.4 1"
	conn.replies["COUNT\r\n"] = "42"

	dev := newTestDevice(t, conn, reg, Dialect{})

	f, err := dev.ExecuteFloat("temp")
	require.NoError(err)
	require.InDelta(25.4, f, 0.001)

	n, err := dev.ExecuteInt("count")
	require.NoError(err)
	require.Equal(42, n)

	conn.replies["IN_PV_1\r\n"] = "hot 1"
	_, err = dev.ExecuteFloat("temp")

	var decodeErr *DecodeError
	require.ErrorAs(err, &decodeErr)
}
