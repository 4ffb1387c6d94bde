package backend

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// PowerDriver switches the target's supply rail.
type PowerDriver interface {
	SetPower(on bool) error
}

// PowerCycler performs the off/settle/on sequence used both for recovery and
// as an explicit campaign operation.
type PowerCycler struct {
	Driver PowerDriver
	// SettleTime is how long the target stays unpowered. Too short and
	// residual charge keeps the target state alive across the cycle.
	SettleTime time.Duration
}

func (p *PowerCycler) Cycle(ctx context.Context) error {
	if err := p.Driver.SetPower(false); err != nil {
		return fmt.Errorf("%w: power off: %v", ErrPowerFault, err)
	}
	settle := p.SettleTime
	if settle <= 0 {
		settle = 50 * time.Millisecond
	}
	select {
	case <-time.After(settle):
	case <-ctx.Done():
		// restore power before giving up, the target should not be left dark
		if err := p.Driver.SetPower(true); err != nil {
			return fmt.Errorf("%w: power on after cancel: %v", ErrPowerFault, err)
		}
		return ctx.Err()
	}
	if err := p.Driver.SetPower(true); err != nil {
		return fmt.Errorf("%w: power on: %v", ErrPowerFault, err)
	}
	return nil
}

// SimPower is an in-process power driver for tests and the simulated rig.
type SimPower struct {
	mu     sync.Mutex
	on     bool
	cycles int
	// Fail makes the next SetPower call report a driver fault.
	Fail error
}

func NewSimPower() *SimPower {
	return &SimPower{on: true}
}

func (s *SimPower) SetPower(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		err := s.Fail
		s.Fail = nil
		return err
	}
	if on && !s.on {
		s.cycles++
	}
	s.on = on
	return nil
}

func (s *SimPower) On() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.on
}

func (s *SimPower) Cycles() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cycles
}

// SerialSupply drives an external programmable power supply over a serial
// byte channel using its text command set.
type SerialSupply struct {
	Port io.Writer
	// Channel selects the supply output, most bench supplies number from 1.
	Channel int
}

func (s *SerialSupply) SetPower(on bool) error {
	ch := s.Channel
	if ch <= 0 {
		ch = 1
	}
	state := "OFF"
	if on {
		state = "ON"
	}
	if _, err := fmt.Fprintf(s.Port, "OUTP%d %s\n", ch, state); err != nil {
		return fmt.Errorf("supply command failed: %w", err)
	}
	return nil
}
