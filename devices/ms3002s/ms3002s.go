// Package ms3002s drives Mettler Toledo MS3002S precision balances over
// the MT-SICS command set.
//
// Every reply echoes the command verb followed by a status code, e.g.
// "S S 123.45 g" for a stable weight or "S I" when the balance cannot
// execute the command. Status codes are translated to package errors
// before the value is extracted, so callers only see a weight when the
// balance actually produced one.
package ms3002s

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/labio/labline/logger"
	"github.com/labio/labline/protocol"
	"github.com/labio/labline/transport"
)

// Command names.
const (
	CmdWeight          = "S"
	CmdWeightImmediate = "SI"
	CmdZero            = "Z"
	CmdZeroImmediate   = "ZI"
	CmdTare            = "T"
	CmdTareValue       = "TA"
	CmdClearTare       = "TAC"
	CmdInfo            = "I2"
	CmdSerialNumber    = "I4"
	CmdModel           = "I11"
	CmdReset           = "@"
)

// Terminator is the MT-SICS line terminator.
const Terminator = "\r\n"

// Balance status errors, mapped from MT-SICS reply codes.
var (
	// ErrBusy indicates the balance could not execute the command, e.g.
	// the pan was still in motion when a stable value was requested.
	ErrBusy = errors.New("balance busy or command not executable")
	// ErrOverload indicates a weight above the balance's range.
	ErrOverload = errors.New("balance overload")
	// ErrUnderload indicates a weight below the balance's range.
	ErrUnderload = errors.New("balance underload")
	// ErrSyntax indicates the balance rejected the command as malformed.
	ErrSyntax = errors.New("balance syntax error")
	// ErrTransmission indicates a serial parameter mismatch.
	ErrTransmission = errors.New("balance transmission error")
	// ErrLogical indicates a command the balance cannot execute in its
	// current mode.
	ErrLogical = errors.New("balance logical error")
)

var quoted = regexp.MustCompile(`"([^"]*)"`)

// echoVerb returns the verb the balance echoes in its reply. Immediate
// variants are answered with the base verb: SI replies start with "S" and
// ZI replies with "Z".
func echoVerb(verb string) string {
	switch verb {
	case "SI":
		return "S"
	case "ZI":
		return "Z"
	}

	return verb
}

// checkReply translates MT-SICS status codes into errors. The verb echo is
// not enforced strictly: a reset, for instance, is answered with an I4
// line.
func checkReply(verb, reply string) error {
	fields := strings.Fields(reply)
	if len(fields) == 0 {
		return &protocol.DecodeError{Raw: reply, Reason: "empty reply"}
	}

	switch fields[0] {
	case "ES":
		return ErrSyntax
	case "ET":
		return ErrTransmission
	case "EL":
		return ErrLogical
	}

	if fields[0] != echoVerb(verb) || len(fields) < 2 {
		return nil
	}

	switch fields[1] {
	case "I":
		return fmt.Errorf("%s: %w", verb, ErrBusy)
	case "+":
		return fmt.Errorf("%s: %w", verb, ErrOverload)
	case "-":
		return fmt.Errorf("%s: %w", verb, ErrUnderload)
	}

	return nil
}

func newRegistry() *protocol.Registry {
	// Weight replies look like "S S 123.45 g"; the value is the third
	// field. Identification replies carry the payload in quotes.
	weight := protocol.Field(2, "")
	ident := protocol.Match(quoted, 1)

	reg := protocol.NewRegistry()
	reg.MustRegister(
		&protocol.Command{Name: CmdWeight, Verb: "S", Parse: weight},
		&protocol.Command{Name: CmdWeightImmediate, Verb: "SI", Parse: weight},
		&protocol.Command{Name: CmdZero, Verb: "Z"},
		&protocol.Command{Name: CmdZeroImmediate, Verb: "ZI"},
		&protocol.Command{Name: CmdTare, Verb: "T", Parse: weight},
		&protocol.Command{Name: CmdTareValue, Verb: "TA", Parse: weight},
		&protocol.Command{Name: CmdClearTare, Verb: "TAC"},
		&protocol.Command{Name: CmdInfo, Verb: "I2", Parse: ident},
		&protocol.Command{Name: CmdSerialNumber, Verb: "I4", Parse: ident},
		&protocol.Command{Name: CmdModel, Verb: "I11", Parse: ident},
		&protocol.Command{Name: CmdReset, Verb: "@"},
	)

	return reg
}

// DefaultSerialConfig returns the balance's factory serial settings:
// 9600 baud, 8 data bits, no parity, one stop bit.
func DefaultSerialConfig(port string) transport.SerialConfig {
	return transport.SerialConfig{
		Port:     port,
		BaudRate: 9600,
		DataBits: 8,
		Parity:   transport.ParityNone,
		StopBits: transport.StopBitsOne,
	}
}

// Balance is a typed driver for one MS3002S instrument.
type Balance struct {
	dev *protocol.Device
}

// New binds a balance driver to an open connection. replyTimeout of zero
// defers to the connection's default; note that stable-weight commands can
// legitimately take several seconds on a settling pan.
func New(conn protocol.Conn, replyTimeout time.Duration, l logger.Logger) (*Balance, error) {
	dialect := protocol.Dialect{Terminator: Terminator, ReplyCheck: checkReply}

	dev, err := protocol.NewDevice(conn, dialect, newRegistry(), replyTimeout, l)
	if err != nil {
		return nil, err
	}

	return &Balance{dev: dev}, nil
}

// Device exposes the underlying command executor, for commands not covered
// by the typed methods.
func (b *Balance) Device() *protocol.Device { return b.dev }

// Weight returns the next stable weight in grams.
func (b *Balance) Weight() (float64, error) {
	return b.dev.ExecuteFloat(CmdWeight)
}

// WeightImmediate returns the current weight in grams regardless of
// stability.
func (b *Balance) WeightImmediate() (float64, error) {
	return b.dev.ExecuteFloat(CmdWeightImmediate)
}

// Zero zeroes the balance after stability is reached.
func (b *Balance) Zero() error {
	_, err := b.dev.Execute(CmdZero)

	return err
}

// ZeroImmediate zeroes the balance immediately.
func (b *Balance) ZeroImmediate() error {
	_, err := b.dev.Execute(CmdZeroImmediate)

	return err
}

// Tare tares the balance and returns the stored tare weight in grams.
func (b *Balance) Tare() (float64, error) {
	return b.dev.ExecuteFloat(CmdTare)
}

// TareValue returns the current tare weight in grams.
func (b *Balance) TareValue() (float64, error) {
	return b.dev.ExecuteFloat(CmdTareValue)
}

// ClearTare clears the tare memory.
func (b *Balance) ClearTare() error {
	_, err := b.dev.Execute(CmdClearTare)

	return err
}

// Model returns the balance model designation.
func (b *Balance) Model() (string, error) {
	return b.dev.Execute(CmdModel)
}

// SerialNumber returns the balance serial number.
func (b *Balance) SerialNumber() (string, error) {
	return b.dev.Execute(CmdSerialNumber)
}

// Reset restarts the balance without zeroing it.
func (b *Balance) Reset() error {
	_, err := b.dev.Execute(CmdReset)

	return err
}
