package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"faultline/internal/glitchproto"
	"faultline/internal/model"
	"faultline/internal/transport"
)

// Remote drives an external glitcher unit over the wire protocol. The unit
// owns its own timing engine and trigger detection; the host configures,
// arms, and polls.
type Remote struct {
	machine
	proto *glitchproto.Protocol
	tr    transport.Transport

	// PollInterval paces TRIGGER_STATUS polling while armed.
	PollInterval time.Duration

	configured bool
}

func NewRemote(tr transport.Transport, packetSize int) *Remote {
	return &Remote{
		machine:      machine{state: StateIdle},
		proto:        glitchproto.NewProtocol(packetSize),
		tr:           tr,
		PollInterval: time.Millisecond,
	}
}

// faultErr maps a device fault code onto the backend error taxonomy.
func faultErr(err error) error {
	var fault *glitchproto.FaultError
	if !errors.As(err, &fault) {
		return err
	}
	switch fault.Code {
	case glitchproto.StatusNotReady:
		return fmt.Errorf("%w: %v", ErrNotReady, err)
	case glitchproto.StatusOutOfRange:
		return fmt.Errorf("%w: %v", ErrOutOfRange, err)
	case glitchproto.StatusTriggerTimeout:
		return ErrTriggerTimeout
	case glitchproto.StatusPulseFault:
		return fmt.Errorf("%w: %v", ErrPulseFault, err)
	case glitchproto.StatusPowerFault:
		return fmt.Errorf("%w: %v", ErrPowerFault, err)
	case glitchproto.StatusUnsupported:
		return fmt.Errorf("%w: %v", ErrUnsupported, err)
	default:
		return err
	}
}

func (r *Remote) transact(cmd []byte) ([]byte, error) {
	resp, err := r.tr.WriteRead(cmd)
	if err != nil {
		r.set(StateDisconnected)
		return nil, fmt.Errorf("transport: %w", err)
	}
	return resp, nil
}

func (r *Remote) Configure(cfg TrialConfig) error {
	if cfg.Shape != nil {
		return fmt.Errorf("%w: pulse shaping over the wire protocol", ErrUnsupported)
	}
	if cfg.Rail != "" {
		return fmt.Errorf("%w: voltage rail selection over the wire protocol", ErrUnsupported)
	}

	cmd, err := r.proto.EncodeConfigure([]float64{float64(cfg.Delay), float64(cfg.Length)})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOutOfRange, err)
	}
	resp, err := r.transact(cmd)
	if err != nil {
		return err
	}
	if err := r.proto.DecodeConfigure(resp); err != nil {
		return faultErr(err)
	}
	r.configured = true
	return nil
}

func (r *Remote) Arm(ctx context.Context, timeout time.Duration) (model.TriggerEvent, error) {
	if !r.configured {
		return model.TriggerEvent{}, ErrNotConfigured
	}
	if !r.compareAndSet(StateArmed, StateIdle, StateCooldown) {
		return model.TriggerEvent{}, fmt.Errorf("%w: cannot arm while %s", ErrNotReady, r.State())
	}

	resp, err := r.transact(r.proto.EncodeArm(uint32(timeout / time.Millisecond)))
	if err != nil {
		return model.TriggerEvent{}, err
	}
	if err := r.proto.DecodeArm(resp); err != nil {
		r.set(StateIdle)
		return model.TriggerEvent{}, faultErr(err)
	}

	interval := r.PollInterval
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			resp, err := r.transact(r.proto.EncodeTriggerStatus())
			if err != nil {
				return model.TriggerEvent{}, err
			}
			status, ev, err := r.proto.DecodeTriggerStatus(resp)
			if err != nil {
				r.set(StateIdle)
				return model.TriggerEvent{}, err
			}
			switch status {
			case glitchproto.StatusOK:
				ev.Observed = time.Now()
				r.set(StateTriggered)
				return ev, nil
			case glitchproto.StatusNotReady:
				// still waiting
			case glitchproto.StatusTriggerTimeout:
				r.set(StateIdle)
				return model.TriggerEvent{}, ErrTriggerTimeout
			default:
				r.set(StateIdle)
				return model.TriggerEvent{}, fmt.Errorf("trigger poll failed: %s", glitchproto.StatusName(status))
			}
		case <-ctx.Done():
			r.set(StateIdle)
			return model.TriggerEvent{}, ctx.Err()
		}
	}
}

func (r *Remote) Pulse(ctx context.Context) error {
	if !r.compareAndSet(StatePulsing, StateTriggered) {
		return fmt.Errorf("%w: pulse requires a trigger, state is %s", ErrNotReady, r.State())
	}
	resp, err := r.transact(r.proto.EncodePulse())
	if err != nil {
		return err
	}
	if err := r.proto.DecodePulse(resp); err != nil {
		r.set(StateIdle)
		return faultErr(err)
	}
	// the unit manages its own recharge window and reports NotReady until
	// it is safe to re-arm
	r.set(StateCooldown)
	return nil
}

func (r *Remote) PowerCycle(ctx context.Context) error {
	resp, err := r.transact(r.proto.EncodePowerCycle(50))
	if err != nil {
		return err
	}
	if err := r.proto.DecodePowerCycle(resp); err != nil {
		r.set(StateIdle)
		return faultErr(err)
	}
	r.set(StateIdle)
	return nil
}

// DeviceState queries the unit's own state machine.
func (r *Remote) DeviceState() (State, error) {
	resp, err := r.transact(r.proto.EncodeStatus())
	if err != nil {
		return StateDisconnected, err
	}
	raw, err := r.proto.DecodeStatus(resp)
	if err != nil {
		return StateDisconnected, err
	}
	switch raw {
	case glitchproto.StateIdle:
		return StateIdle, nil
	case glitchproto.StateArmed:
		return StateArmed, nil
	case glitchproto.StateTriggered:
		return StateTriggered, nil
	case glitchproto.StatePulsing:
		return StatePulsing, nil
	case glitchproto.StateCooldown:
		return StateCooldown, nil
	default:
		return StateDisconnected, nil
	}
}

// Close releases the transport.
func (r *Remote) Close() error {
	r.set(StateDisconnected)
	return r.tr.Close()
}
