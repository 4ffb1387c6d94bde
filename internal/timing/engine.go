// Package timing generates the delay-then-pulse waveform for a trial.
//
// The engine runs in a timing domain decoupled from the host: after Arm the
// host takes no further part. The countdown and the pulse emission happen
// autonomously once the trigger is latched, so host-side scheduling jitter
// cannot perturb the waveform. The host only programs parameters up front
// and observes completion.
package timing

import (
	"context"
	"errors"

	"faultline/internal/pulseshape"
)

// Ticks counts periods of the engine's fixed high-resolution clock.
type Ticks uint64

// Status is the observable engine state.
type Status int

const (
	StatusIdle Status = iota
	StatusArmed
	StatusCounting
	StatusPulsing
	StatusDone
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusArmed:
		return "armed"
	case StatusCounting:
		return "counting"
	case StatusPulsing:
		return "pulsing"
	case StatusDone:
		return "done"
	default:
		return "unknown"
	}
}

var (
	// ErrInvalidParameter reports a program that cannot be generated: zero
	// pulse length, or delay+length exceeding the counter width. This is a
	// programming-error-class failure; it is never silently truncated.
	ErrInvalidParameter = errors.New("timing: invalid parameter")
	// ErrAlreadyArmed reports an Arm or Program call while a countdown may
	// still fire.
	ErrAlreadyArmed = errors.New("timing: already armed")
)

// Engine is the hardware timing contract. Program validates and stores the
// waveform, Arm hands control to the timing domain, and the engine fires
// autonomously when the trigger input is latched.
type Engine interface {
	// Program sets delay and length in ticks plus the pulse profile for the
	// next arming. Fails with ErrInvalidParameter before arming if the
	// waveform cannot be generated.
	Program(delay, length Ticks, shape pulseshape.Shape) error
	// Arm transfers the programmed waveform into the timing domain.
	Arm() error
	// Status reports the engine state without blocking.
	Status() Status
	// Wait blocks until the armed waveform has completed or ctx is done.
	Wait(ctx context.Context) error
}
