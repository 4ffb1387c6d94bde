// Package glitchproto encodes the command/response protocol spoken to an
// external glitcher unit. The protocol is transport independent; packets are
// bounded in size and every response carries a status byte.
package glitchproto

import (
	"encoding/binary"
	"fmt"
	"math"

	"faultline/internal/model"
)

// Command IDs
const (
	CmdConfigure     = 0x01
	CmdArm           = 0x02
	CmdTriggerStatus = 0x03
	CmdPulse         = 0x04
	CmdPowerCycle    = 0x05
	CmdStatus        = 0x06
)

// Status codes
const (
	StatusOK             = 0x00
	StatusNotReady       = 0x01
	StatusOutOfRange     = 0x02
	StatusTriggerTimeout = 0x03
	StatusPulseFault     = 0x04
	StatusPowerFault     = 0x05
	StatusUnsupported    = 0x06
	StatusError          = 0xFF
)

// Device states reported by STATUS
const (
	StateDisconnected = 0x00
	StateIdle         = 0x01
	StateArmed        = 0x02
	StateTriggered    = 0x03
	StatePulsing      = 0x04
	StateCooldown     = 0x05
)

// MaxDimensions bounds a CONFIGURE packet to one transport frame.
const MaxDimensions = 7

// StatusName returns a human-readable status code name.
func StatusName(code byte) string {
	switch code {
	case StatusOK:
		return "ok"
	case StatusNotReady:
		return "not ready"
	case StatusOutOfRange:
		return "out of range"
	case StatusTriggerTimeout:
		return "trigger timeout"
	case StatusPulseFault:
		return "pulse fault"
	case StatusPowerFault:
		return "power fault"
	case StatusUnsupported:
		return "unsupported"
	default:
		return fmt.Sprintf("error 0x%02X", code)
	}
}

// Protocol handles encoding and decoding of glitcher commands.
type Protocol struct {
	PacketSize int
}

func NewProtocol(packetSize int) *Protocol {
	return &Protocol{PacketSize: packetSize}
}

// EncodeConfigure builds a CONFIGURE command carrying the concrete
// per-dimension values for the next trial.
func (p *Protocol) EncodeConfigure(params []float64) ([]byte, error) {
	if len(params) == 0 || len(params) > MaxDimensions {
		return nil, fmt.Errorf("configure: %d dimensions, supported range is 1..%d", len(params), MaxDimensions)
	}
	cmd := make([]byte, 2+8*len(params))
	cmd[0] = CmdConfigure
	cmd[1] = byte(len(params))
	for i, v := range params {
		binary.LittleEndian.PutUint64(cmd[2+8*i:], math.Float64bits(v))
	}
	return cmd, nil
}

// DecodeConfigure parses a CONFIGURE response.
func (p *Protocol) DecodeConfigure(resp []byte) error {
	return decodeAck(resp, CmdConfigure, "configure")
}

// EncodeArm builds an ARM command with the trigger timeout in milliseconds.
func (p *Protocol) EncodeArm(timeoutMS uint32) []byte {
	cmd := make([]byte, 5)
	cmd[0] = CmdArm
	binary.LittleEndian.PutUint32(cmd[1:], timeoutMS)
	return cmd
}

// DecodeArm parses an ARM response.
func (p *Protocol) DecodeArm(resp []byte) error {
	return decodeAck(resp, CmdArm, "arm")
}

// EncodeTriggerStatus builds a TRIGGER_STATUS poll.
func (p *Protocol) EncodeTriggerStatus() []byte {
	return []byte{CmdTriggerStatus}
}

// DecodeTriggerStatus parses a TRIGGER_STATUS response. On StatusOK the
// response carries the hardware tick count at which the trigger latched and
// the trigger source. StatusTriggerTimeout is reported through the returned
// status, not an error.
func (p *Protocol) DecodeTriggerStatus(resp []byte) (byte, model.TriggerEvent, error) {
	if len(resp) < 2 {
		return 0, model.TriggerEvent{}, fmt.Errorf("response too short")
	}
	if resp[0] != CmdTriggerStatus {
		return 0, model.TriggerEvent{}, fmt.Errorf("invalid command ID: 0x%02X", resp[0])
	}
	status := resp[1]
	if status != StatusOK {
		return status, model.TriggerEvent{}, nil
	}
	if len(resp) < 11 {
		return 0, model.TriggerEvent{}, fmt.Errorf("incomplete trigger event")
	}
	ev := model.TriggerEvent{
		Ticks:  binary.LittleEndian.Uint64(resp[2:10]),
		Source: model.TriggerSource(resp[10]),
	}
	return status, ev, nil
}

// EncodePulse builds a PULSE command.
func (p *Protocol) EncodePulse() []byte {
	return []byte{CmdPulse}
}

// DecodePulse parses a PULSE response.
func (p *Protocol) DecodePulse(resp []byte) error {
	return decodeAck(resp, CmdPulse, "pulse")
}

// EncodePowerCycle builds a POWER_CYCLE command with the off time in
// milliseconds before power is restored.
func (p *Protocol) EncodePowerCycle(offMS uint32) []byte {
	cmd := make([]byte, 5)
	cmd[0] = CmdPowerCycle
	binary.LittleEndian.PutUint32(cmd[1:], offMS)
	return cmd
}

// DecodePowerCycle parses a POWER_CYCLE response.
func (p *Protocol) DecodePowerCycle(resp []byte) error {
	return decodeAck(resp, CmdPowerCycle, "power cycle")
}

// EncodeStatus builds a STATUS query.
func (p *Protocol) EncodeStatus() []byte {
	return []byte{CmdStatus}
}

// DecodeStatus parses a STATUS response and returns the device state byte.
func (p *Protocol) DecodeStatus(resp []byte) (byte, error) {
	if len(resp) < 3 {
		return 0, fmt.Errorf("response too short")
	}
	if resp[0] != CmdStatus {
		return 0, fmt.Errorf("invalid command ID: 0x%02X", resp[0])
	}
	if resp[1] != StatusOK {
		return 0, fmt.Errorf("status query failed: %s", StatusName(resp[1]))
	}
	return resp[2], nil
}

func decodeAck(resp []byte, cmd byte, name string) error {
	if len(resp) < 2 {
		return fmt.Errorf("response too short")
	}
	if resp[0] != cmd {
		return fmt.Errorf("invalid command ID: 0x%02X", resp[0])
	}
	if resp[1] != StatusOK {
		return &FaultError{Op: name, Code: resp[1]}
	}
	return nil
}

// FaultError carries the device fault code from a rejected command.
type FaultError struct {
	Op   string
	Code byte
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Op, StatusName(e.Code))
}
