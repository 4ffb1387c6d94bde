// Package backend presents one uniform contract over heterogeneous glitch
// hardware. Variants (crowbar switch, voltage multiplexer, shaped-pulse
// generator, remote unit) implement the same interface; the campaign loop is
// written once against it.
package backend

import (
	"context"
	"errors"
	"sync"
	"time"

	"faultline/internal/model"
	"faultline/internal/pulseshape"
	"faultline/internal/timing"
)

// State is the backend's finite machine state. Transitions:
// Disconnected -> Idle -> Armed -> Triggered -> Pulsing -> Cooldown -> Idle.
type State int

const (
	StateDisconnected State = iota
	StateIdle
	StateArmed
	StateTriggered
	StatePulsing
	StateCooldown
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateTriggered:
		return "triggered"
	case StatePulsing:
		return "pulsing"
	case StateCooldown:
		return "cooldown"
	default:
		return "unknown"
	}
}

var (
	// ErrNotReady reports an operation in a state that cannot accept it,
	// such as arming during cooldown or while a pulse is in flight.
	ErrNotReady = errors.New("backend: not ready")
	// ErrOutOfRange reports a configured value outside the hardware's
	// physical capability, even if within the logical parameter space.
	ErrOutOfRange = errors.New("backend: parameter out of range")
	// ErrUnsupported reports a capability this hardware variant lacks.
	ErrUnsupported = errors.New("backend: capability not supported")
	// ErrTriggerTimeout reports that no trigger arrived within the window.
	ErrTriggerTimeout = errors.New("backend: trigger timeout")
	// ErrPulseFault reports abnormal pulse emission, e.g. over-current.
	ErrPulseFault = errors.New("backend: pulse fault")
	// ErrPowerFault reports a failed power cycle.
	ErrPowerFault = errors.New("backend: power fault")
	// ErrNotConfigured reports arming before any trial was configured.
	ErrNotConfigured = errors.New("backend: not configured")
)

// TrialConfig carries the concrete per-trial values. Fields beyond Delay and
// Length apply only to variants with the matching capability.
type TrialConfig struct {
	Delay  timing.Ticks
	Length timing.Ticks

	// Rail selects the supply voltage on multiplexer hardware.
	Rail string
	// Shape is the pulse profile on shaped-pulse hardware. Nil selects the
	// variant's native flat pulse.
	Shape pulseshape.Shape

	// HighPowerDrive engages the high-power MOSFET stage in addition to the
	// low-power one on crowbar hardware.
	HighPowerDrive bool

	// BurstCount emits a train of pulses instead of a single one. Zero and
	// one both mean a single pulse.
	BurstCount int
	// BurstGap is the pause between burst pulses in engine ticks.
	BurstGap timing.Ticks
}

// Backend is the capability interface all glitch hardware satisfies.
type Backend interface {
	// Configure validates and stores the values for the next trial.
	Configure(cfg TrialConfig) error
	// Arm transitions to Armed and blocks until a trigger or the timeout.
	Arm(ctx context.Context, timeout time.Duration) (model.TriggerEvent, error)
	// Pulse is valid only after a trigger; it returns when the hardware
	// reports pulse completion.
	Pulse(ctx context.Context) error
	// PowerCycle forces target power off, waits a settle time, powers on.
	// Valid from any state.
	PowerCycle(ctx context.Context) error
	// State reports the machine state without blocking.
	State() State
}

// machine holds the observable state under a lock. Operations take the lock
// only for transitions, never across blocking calls.
type machine struct {
	mu    sync.Mutex
	state State
}

func (m *machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *machine) set(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// compareAndSet transitions from one of the allowed states to next and
// reports whether it did.
func (m *machine) compareAndSet(next State, allowed ...State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range allowed {
		if m.state == s {
			m.state = next
			return true
		}
	}
	return false
}
