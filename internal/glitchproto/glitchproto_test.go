package glitchproto

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"faultline/internal/model"
)

func TestEncodeConfigure(t *testing.T) {
	p := NewProtocol(64)

	cmd, err := p.EncodeConfigure([]float64{1250, 80.5})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if cmd[0] != CmdConfigure || cmd[1] != 2 {
		t.Fatalf("bad header: % X", cmd[:2])
	}
	if len(cmd) != 2+16 {
		t.Fatalf("bad length: %d", len(cmd))
	}
	v := math.Float64frombits(binary.LittleEndian.Uint64(cmd[10:18]))
	if v != 80.5 {
		t.Fatalf("second dimension decoded as %v", v)
	}
}

func TestEncodeConfigureLimits(t *testing.T) {
	p := NewProtocol(64)
	if _, err := p.EncodeConfigure(nil); err == nil {
		t.Fatal("expected error for zero dimensions")
	}
	if _, err := p.EncodeConfigure(make([]float64, MaxDimensions+1)); err == nil {
		t.Fatal("expected error for too many dimensions")
	}
}

func TestDecodeAckFaults(t *testing.T) {
	p := NewProtocol(64)

	if err := p.DecodeConfigure([]byte{CmdConfigure, StatusOK}); err != nil {
		t.Fatalf("ok response rejected: %v", err)
	}

	err := p.DecodeArm([]byte{CmdArm, StatusNotReady})
	var fault *FaultError
	if !errors.As(err, &fault) {
		t.Fatalf("got %v, want FaultError", err)
	}
	if fault.Code != StatusNotReady {
		t.Fatalf("fault code: 0x%02X", fault.Code)
	}

	if err := p.DecodePulse([]byte{CmdArm, StatusOK}); err == nil {
		t.Fatal("expected error for mismatched command ID")
	}
	if err := p.DecodePulse([]byte{CmdPulse}); err == nil {
		t.Fatal("expected error for short response")
	}
}

func TestTriggerStatusRoundTrip(t *testing.T) {
	p := NewProtocol(64)

	resp := make([]byte, 11)
	resp[0] = CmdTriggerStatus
	resp[1] = StatusOK
	binary.LittleEndian.PutUint64(resp[2:], 987654)
	resp[10] = byte(model.PatternTrigger)

	status, ev, err := p.DecodeTriggerStatus(resp)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status != StatusOK || ev.Ticks != 987654 || ev.Source != model.PatternTrigger {
		t.Fatalf("unexpected event: status=0x%02X ev=%+v", status, ev)
	}
}

func TestTriggerStatusTimeout(t *testing.T) {
	p := NewProtocol(64)
	status, _, err := p.DecodeTriggerStatus([]byte{CmdTriggerStatus, StatusTriggerTimeout})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status != StatusTriggerTimeout {
		t.Fatalf("status: 0x%02X", status)
	}
}

func TestDecodeStatus(t *testing.T) {
	p := NewProtocol(64)
	state, err := p.DecodeStatus([]byte{CmdStatus, StatusOK, StateCooldown})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if state != StateCooldown {
		t.Fatalf("state: 0x%02X", state)
	}
	if _, err := p.DecodeStatus([]byte{CmdStatus, StatusError, 0}); err == nil {
		t.Fatal("expected error for failed status query")
	}
}

func TestEncodeArmCarriesTimeout(t *testing.T) {
	p := NewProtocol(64)
	cmd := p.EncodeArm(10)
	if cmd[0] != CmdArm {
		t.Fatalf("bad command ID: 0x%02X", cmd[0])
	}
	if binary.LittleEndian.Uint32(cmd[1:]) != 10 {
		t.Fatalf("timeout encoded as %d", binary.LittleEndian.Uint32(cmd[1:]))
	}
}

func TestStatusName(t *testing.T) {
	if StatusName(StatusPulseFault) != "pulse fault" {
		t.Fatalf("got %q", StatusName(StatusPulseFault))
	}
	if StatusName(0xEE) != "error 0xEE" {
		t.Fatalf("got %q", StatusName(0xEE))
	}
}
