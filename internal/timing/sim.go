package timing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"faultline/internal/pulseshape"
)

const (
	// DefaultTickPeriod matches a 200 MHz timing clock (5ns per tick).
	DefaultTickPeriod = 5 * time.Nanosecond
	// DefaultCounterBits is the countdown register width.
	DefaultCounterBits = 32
)

// Pulse describes one emitted waveform, reported on the output line.
type Pulse struct {
	Delay  Ticks
	Length Ticks
	Shape  pulseshape.Shape
	// TriggerTicks is the hardware counter value latched at the trigger.
	TriggerTicks uint64
}

// SimEngine emulates the dedicated timing hardware. Once armed, a latch on
// the trigger input starts the countdown in the engine's own goroutine; the
// host cannot influence the waveform anymore. Emission is reported through
// OnPulse, which runs in the timing domain and must not block.
type SimEngine struct {
	TickPeriod  time.Duration
	CounterBits uint
	OnPulse     func(Pulse)

	mu      sync.Mutex
	status  Status
	delay   Ticks
	length  Ticks
	shape   pulseshape.Shape
	trigger chan uint64
	done    chan struct{}
}

// NewSimEngine returns an idle engine with default clock and counter width.
func NewSimEngine() *SimEngine {
	return &SimEngine{
		TickPeriod:  DefaultTickPeriod,
		CounterBits: DefaultCounterBits,
	}
}

func (e *SimEngine) maxCount() Ticks {
	bits := e.CounterBits
	if bits == 0 || bits > 64 {
		bits = DefaultCounterBits
	}
	if bits == 64 {
		return Ticks(^uint64(0))
	}
	return Ticks(uint64(1)<<bits - 1)
}

func (e *SimEngine) Program(delay, length Ticks, shape pulseshape.Shape) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status == StatusArmed || e.status == StatusCounting || e.status == StatusPulsing {
		return ErrAlreadyArmed
	}
	if length == 0 {
		return fmt.Errorf("%w: pulse length must be positive", ErrInvalidParameter)
	}
	if shape == nil {
		return fmt.Errorf("%w: pulse shape is required", ErrInvalidParameter)
	}
	max := e.maxCount()
	if delay > max || length > max-delay {
		return fmt.Errorf("%w: delay %d + length %d exceeds %d-bit counter", ErrInvalidParameter, delay, length, e.CounterBits)
	}
	e.delay = delay
	e.length = length
	e.shape = shape
	if e.status != StatusDone {
		e.status = StatusIdle
	}
	return nil
}

func (e *SimEngine) Arm() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.status {
	case StatusArmed, StatusCounting, StatusPulsing:
		return ErrAlreadyArmed
	}
	if e.shape == nil {
		return fmt.Errorf("%w: engine is not programmed", ErrInvalidParameter)
	}
	e.status = StatusArmed
	e.trigger = make(chan uint64, 1)
	e.done = make(chan struct{})
	go e.run(e.trigger, e.done, e.delay, e.length, e.shape)
	return nil
}

// Latch asserts the trigger input. The countdown is latched under the state
// lock before this returns, so a zero-tick delay cannot race the trigger.
// Latching while not armed is ignored, like an edge on an unarmed input.
func (e *SimEngine) Latch(triggerTicks uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status != StatusArmed {
		return
	}
	e.status = StatusCounting
	e.trigger <- triggerTicks
}

func (e *SimEngine) run(trigger <-chan uint64, done chan<- struct{}, delay, length Ticks, shape pulseshape.Shape) {
	triggerTicks, ok := <-trigger
	if !ok {
		// disarmed before the trigger latched
		close(done)
		return
	}

	if delay > 0 {
		time.Sleep(time.Duration(delay) * e.tickPeriod())
	}

	e.setStatus(StatusPulsing)
	if e.OnPulse != nil {
		e.OnPulse(Pulse{
			Delay:        delay,
			Length:       length,
			Shape:        shape,
			TriggerTicks: triggerTicks,
		})
	}
	time.Sleep(time.Duration(length) * e.tickPeriod())

	e.setStatus(StatusDone)
	close(done)
}

func (e *SimEngine) tickPeriod() time.Duration {
	if e.TickPeriod <= 0 {
		return DefaultTickPeriod
	}
	return e.TickPeriod
}

func (e *SimEngine) setStatus(s Status) {
	e.mu.Lock()
	e.status = s
	e.mu.Unlock()
}

func (e *SimEngine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Wait blocks until the armed waveform completed. Waiting on an engine that
// is idle or already done returns immediately.
func (e *SimEngine) Wait(ctx context.Context) error {
	e.mu.Lock()
	done := e.done
	status := e.status
	e.mu.Unlock()

	if done == nil || status == StatusIdle || status == StatusDone {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Disarm aborts an armed engine that never triggered. A countdown that has
// already latched cannot be aborted, mirroring the hardware.
func (e *SimEngine) Disarm() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.status {
	case StatusArmed:
		// never triggered; drop the waiting goroutine
		close(e.trigger)
		e.status = StatusIdle
		e.done = nil
		return nil
	case StatusCounting, StatusPulsing:
		return fmt.Errorf("timing: countdown already latched")
	default:
		return nil
	}
}

// Reset returns a done engine to idle, keeping the program.
func (e *SimEngine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status == StatusDone {
		e.status = StatusIdle
		e.done = nil
	}
}
