// Package ikaret drives IKA RET control-visc hotplate stirrers over their
// NAMUR serial command set.
//
// Query replies carry the channel number after the value, e.g. "0.0 4" for
// a stirring speed query on channel 4; the parsers here validate that
// suffix before extracting the value. Set and start/stop commands are not
// acknowledged by the instrument.
package ikaret

import (
	"strconv"
	"strings"
	"time"

	"github.com/labio/labline/logger"
	"github.com/labio/labline/protocol"
	"github.com/labio/labline/transport"
)

// Command names.
const (
	CmdName          = "IN_NAME"
	CmdTempPV        = "IN_PV_1"
	CmdPlateTempPV   = "IN_PV_2"
	CmdSpeedPV       = "IN_PV_4"
	CmdTempSP        = "IN_SP_1"
	CmdSpeedSP       = "IN_SP_4"
	CmdSetTemp       = "OUT_SP_1"
	CmdSetSpeed      = "OUT_SP_4"
	CmdStartHeating  = "START_1"
	CmdStopHeating   = "STOP_1"
	CmdStartStirring = "START_4"
	CmdStopStirring  = "STOP_4"
	CmdReset         = "RESET"
)

// Operating limits of the RET control-visc.
const (
	MinTemperature = 20.0
	MaxTemperature = 310.0
	MinSpeed       = 0
	MaxSpeed       = 1700
)

// Terminator is the line terminator of the NAMUR serial dialect.
const Terminator = "\r\n"

// channelValue parses a "<value> <channel>" reply, checking that the
// channel suffix matches the queried channel.
func channelValue(channel string) protocol.ParseFunc {
	return func(s string) (string, error) {
		fields := strings.Fields(s)
		if len(fields) != 2 {
			return "", &protocol.DecodeError{Raw: s, Reason: "want value and channel suffix"}
		}

		if fields[1] != channel {
			return "", &protocol.DecodeError{Raw: s, Reason: "reply for channel " + fields[1] + ", want " + channel}
		}

		return fields[0], nil
	}
}

func newRegistry() *protocol.Registry {
	reg := protocol.NewRegistry()
	reg.MustRegister(
		&protocol.Command{Name: CmdName, Verb: "IN_NAME"},
		&protocol.Command{Name: CmdTempPV, Verb: "IN_PV_1", Parse: channelValue("1")},
		&protocol.Command{Name: CmdPlateTempPV, Verb: "IN_PV_2", Parse: channelValue("2")},
		&protocol.Command{Name: CmdSpeedPV, Verb: "IN_PV_4", Parse: channelValue("4")},
		&protocol.Command{Name: CmdTempSP, Verb: "IN_SP_1", Parse: channelValue("1")},
		&protocol.Command{Name: CmdSpeedSP, Verb: "IN_SP_4", Parse: channelValue("4")},
		&protocol.Command{
			Name: CmdSetTemp, Verb: "OUT_SP_1", NoReply: true,
			Check: &protocol.ArgCheck{Min: MinTemperature, Max: MaxTemperature},
		},
		&protocol.Command{
			Name: CmdSetSpeed, Verb: "OUT_SP_4", NoReply: true,
			Check: &protocol.ArgCheck{Min: MinSpeed, Max: MaxSpeed},
		},
		&protocol.Command{Name: CmdStartHeating, Verb: "START_1", NoReply: true},
		&protocol.Command{Name: CmdStopHeating, Verb: "STOP_1", NoReply: true},
		&protocol.Command{Name: CmdStartStirring, Verb: "START_4", NoReply: true},
		&protocol.Command{Name: CmdStopStirring, Verb: "STOP_4", NoReply: true},
		&protocol.Command{Name: CmdReset, Verb: "RESET", NoReply: true},
	)

	return reg
}

// DefaultSerialConfig returns the instrument's factory serial settings:
// 9600 baud, 7 data bits, even parity, one stop bit.
func DefaultSerialConfig(port string) transport.SerialConfig {
	return transport.SerialConfig{
		Port:     port,
		BaudRate: 9600,
		DataBits: 7,
		Parity:   transport.ParityEven,
		StopBits: transport.StopBitsOne,
	}
}

// Hotplate is a typed driver for one RET control-visc instrument.
type Hotplate struct {
	dev *protocol.Device
}

// New binds a hotplate driver to an open connection. replyTimeout of zero
// defers to the connection's default.
func New(conn protocol.Conn, replyTimeout time.Duration, l logger.Logger) (*Hotplate, error) {
	dev, err := protocol.NewDevice(conn, protocol.Dialect{Terminator: Terminator}, newRegistry(), replyTimeout, l)
	if err != nil {
		return nil, err
	}

	return &Hotplate{dev: dev}, nil
}

// Device exposes the underlying command executor, for commands not covered
// by the typed methods.
func (h *Hotplate) Device() *protocol.Device { return h.dev }

// Name queries the instrument's name, typically "IKARET".
func (h *Hotplate) Name() (string, error) {
	return h.dev.Execute(CmdName)
}

// Temperature reads the process (medium) temperature in degrees Celsius.
func (h *Hotplate) Temperature() (float64, error) {
	return h.dev.ExecuteFloat(CmdTempPV)
}

// PlateTemperature reads the hotplate surface temperature in degrees
// Celsius.
func (h *Hotplate) PlateTemperature() (float64, error) {
	return h.dev.ExecuteFloat(CmdPlateTempPV)
}

// StirringSpeed reads the current stirring speed in RPM.
func (h *Hotplate) StirringSpeed() (float64, error) {
	return h.dev.ExecuteFloat(CmdSpeedPV)
}

// TemperatureSetpoint reads the temperature setpoint in degrees Celsius.
func (h *Hotplate) TemperatureSetpoint() (float64, error) {
	return h.dev.ExecuteFloat(CmdTempSP)
}

// SpeedSetpoint reads the stirring speed setpoint in RPM.
func (h *Hotplate) SpeedSetpoint() (float64, error) {
	return h.dev.ExecuteFloat(CmdSpeedSP)
}

// SetTemperature sets the temperature setpoint in degrees Celsius.
func (h *Hotplate) SetTemperature(celsius float64) error {
	_, err := h.dev.Execute(CmdSetTemp, strconv.FormatFloat(celsius, 'f', -1, 64))

	return err
}

// SetSpeed sets the stirring speed setpoint in RPM.
func (h *Hotplate) SetSpeed(rpm int) error {
	_, err := h.dev.Execute(CmdSetSpeed, strconv.Itoa(rpm))

	return err
}

// StartHeating starts the heater.
func (h *Hotplate) StartHeating() error {
	_, err := h.dev.Execute(CmdStartHeating)

	return err
}

// StopHeating stops the heater.
func (h *Hotplate) StopHeating() error {
	_, err := h.dev.Execute(CmdStopHeating)

	return err
}

// StartStirring starts the stirrer.
func (h *Hotplate) StartStirring() error {
	_, err := h.dev.Execute(CmdStartStirring)

	return err
}

// StopStirring stops the stirrer.
func (h *Hotplate) StopStirring() error {
	_, err := h.dev.Execute(CmdStopStirring)

	return err
}

// Reset switches the instrument back to local control and clears both
// setpoints.
func (h *Hotplate) Reset() error {
	_, err := h.dev.Execute(CmdReset)

	return err
}
