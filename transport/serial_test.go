package transport

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validSerialConfig() SerialConfig {
	return SerialConfig{
		Port:     "/dev/ttyUSB0",
		BaudRate: 9600,
		DataBits: 7,
		Parity:   ParityEven,
		StopBits: StopBitsOne,
	}
}

func TestSerialConfig_Validate(t *testing.T) {
	require := require.New(t)

	t.Run("Valid Configuration", func(t *testing.T) {
		cfg := validSerialConfig()
		require.NoError(cfg.Validate())
	})

	t.Run("Empty Port", func(t *testing.T) {
		cfg := validSerialConfig()
		cfg.Port = ""
		require.Error(cfg.Validate())
	})

	t.Run("Invalid Baud Rate", func(t *testing.T) {
		cfg := validSerialConfig()
		cfg.BaudRate = 0
		require.Error(cfg.Validate())

		cfg.BaudRate = -9600
		require.Error(cfg.Validate())
	})

	t.Run("Invalid Data Bits", func(t *testing.T) {
		cfg := validSerialConfig()
		cfg.DataBits = 4
		require.Error(cfg.Validate())

		cfg.DataBits = 9
		require.Error(cfg.Validate())
	})

	t.Run("Invalid Parity", func(t *testing.T) {
		cfg := validSerialConfig()
		cfg.Parity = 'X'
		require.Error(cfg.Validate())
	})

	t.Run("Invalid Stop Bits", func(t *testing.T) {
		cfg := validSerialConfig()
		cfg.StopBits = StopBits(42)
		require.Error(cfg.Validate())
	})
}

func TestNewSerial(t *testing.T) {
	require := require.New(t)

	t.Run("Invalid Configuration", func(t *testing.T) {
		_, err := NewSerial(SerialConfig{})
		require.Error(err)
	})

	t.Run("Unopened Transport", func(t *testing.T) {
		tr, err := NewSerial(validSerialConfig())
		require.NoError(err)
		require.Equal("serial:/dev/ttyUSB0", tr.String())

		// no port is held before Open
		require.ErrorIs(tr.Write([]byte("IN_NAME\r\n")), ErrNotOpen)

		buf := make([]byte, 16)
		_, err = tr.Read(buf)
		require.ErrorIs(err, ErrNotOpen)

		require.NoError(tr.Close())
	})
}
