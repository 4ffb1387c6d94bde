package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"faultline/internal/model"
	"faultline/internal/pulseshape"
	"faultline/internal/timing"
	"faultline/internal/trigger"
)

// DefaultMaxBurst bounds the pulse train length on local hardware.
const DefaultMaxBurst = 8

// local implements the state machine shared by the in-process hardware
// variants. Each variant supplies a validate hook that checks capability
// limits and produces the pulse profile to program.
type local struct {
	machine
	engine   *timing.SimEngine
	detector trigger.Detector
	cycler   *PowerCycler
	cooldown time.Duration
	maxBurst int

	validate func(*TrialConfig) (pulseshape.Shape, error)
	// overCurrent simulates the hardware current sensor.
	overCurrent func() bool

	cfg           TrialConfig
	event         model.TriggerEvent
	configured    bool
	cooldownUntil time.Time
}

func newLocal(engine *timing.SimEngine, detector trigger.Detector, cycler *PowerCycler, cooldown time.Duration) local {
	return local{
		machine:  machine{state: StateIdle},
		engine:   engine,
		detector: detector,
		cycler:   cycler,
		cooldown: cooldown,
		maxBurst: DefaultMaxBurst,
	}
}

func (l *local) pulseDuration(length timing.Ticks) int64 {
	tick := l.engine.TickPeriod
	if tick <= 0 {
		tick = timing.DefaultTickPeriod
	}
	return (time.Duration(length) * tick).Nanoseconds()
}

func (l *local) Configure(cfg TrialConfig) error {
	if cfg.BurstCount > l.maxBurst {
		return fmt.Errorf("%w: burst of %d pulses exceeds maximum %d", ErrOutOfRange, cfg.BurstCount, l.maxBurst)
	}
	shape, err := l.validate(&cfg)
	if err != nil {
		return err
	}
	if err := l.engine.Program(cfg.Delay, cfg.Length, shape); err != nil {
		return err
	}
	l.cfg = cfg
	l.configured = true
	return nil
}

func (l *local) Arm(ctx context.Context, timeout time.Duration) (model.TriggerEvent, error) {
	if !l.configured {
		return model.TriggerEvent{}, ErrNotConfigured
	}

	l.mu.Lock()
	if l.state == StateCooldown {
		if time.Now().Before(l.cooldownUntil) {
			l.mu.Unlock()
			return model.TriggerEvent{}, fmt.Errorf("%w: cooling down", ErrNotReady)
		}
		l.state = StateIdle
	}
	if l.state != StateIdle {
		state := l.state
		l.mu.Unlock()
		return model.TriggerEvent{}, fmt.Errorf("%w: cannot arm while %s", ErrNotReady, state)
	}
	l.state = StateArmed
	l.mu.Unlock()

	if err := l.engine.Arm(); err != nil {
		l.set(StateIdle)
		return model.TriggerEvent{}, err
	}

	ev, err := l.detector.Wait(ctx, timeout)
	if err != nil {
		l.engine.Disarm()
		l.set(StateIdle)
		if errors.Is(err, trigger.ErrTimeout) {
			return model.TriggerEvent{}, ErrTriggerTimeout
		}
		return model.TriggerEvent{}, err
	}

	l.engine.Latch(ev.Ticks)
	l.event = ev
	l.set(StateTriggered)
	return ev, nil
}

func (l *local) Pulse(ctx context.Context) error {
	if !l.compareAndSet(StatePulsing, StateTriggered) {
		return fmt.Errorf("%w: pulse requires a trigger, state is %s", ErrNotReady, l.State())
	}

	if err := l.engine.Wait(ctx); err != nil {
		l.set(StateIdle)
		return err
	}

	// remaining pulses of a burst re-arm back to back
	count := l.cfg.BurstCount
	tick := l.engine.TickPeriod
	if tick <= 0 {
		tick = timing.DefaultTickPeriod
	}
	for i := 1; i < count; i++ {
		if l.cfg.BurstGap > 0 {
			time.Sleep(time.Duration(l.cfg.BurstGap) * tick)
		}
		l.engine.Reset()
		if err := l.engine.Arm(); err != nil {
			l.set(StateIdle)
			return err
		}
		l.engine.Latch(l.event.Ticks)
		if err := l.engine.Wait(ctx); err != nil {
			l.set(StateIdle)
			return err
		}
	}

	if l.overCurrent != nil && l.overCurrent() {
		l.engine.Reset()
		l.set(StateIdle)
		return ErrPulseFault
	}

	l.engine.Reset()
	if l.cooldown > 0 {
		l.mu.Lock()
		l.state = StateCooldown
		l.cooldownUntil = time.Now().Add(l.cooldown)
		l.mu.Unlock()
	} else {
		l.set(StateIdle)
	}
	return nil
}

func (l *local) PowerCycle(ctx context.Context) error {
	l.engine.Disarm()
	err := l.cycler.Cycle(ctx)
	l.set(StateIdle)
	return err
}

// Crowbar drives a MOSFET that briefly shorts the target's supply rail. The
// pulse profile is always flat at ground; a high-power drive stage can be
// engaged for stiff rails.
type Crowbar struct {
	local
}

func NewCrowbar(engine *timing.SimEngine, detector trigger.Detector, cycler *PowerCycler, cooldown time.Duration) *Crowbar {
	c := &Crowbar{local: newLocal(engine, detector, cycler, cooldown)}
	c.local.validate = c.validateTrial
	return c
}

func (c *Crowbar) validateTrial(cfg *TrialConfig) (pulseshape.Shape, error) {
	if cfg.Shape != nil {
		return nil, fmt.Errorf("%w: pulse shaping", ErrUnsupported)
	}
	if cfg.Rail != "" {
		return nil, fmt.Errorf("%w: voltage rail selection", ErrUnsupported)
	}
	return pulseshape.Flat{DurationNS: c.pulseDuration(cfg.Length)}, nil
}

// Mux selects among pre-set supply rails; the glitch swaps the target onto
// the configured rail for the pulse duration.
type Mux struct {
	local
	rails map[string]float64
}

func NewMux(engine *timing.SimEngine, detector trigger.Detector, cycler *PowerCycler, cooldown time.Duration, rails map[string]float64) *Mux {
	m := &Mux{local: newLocal(engine, detector, cycler, cooldown), rails: rails}
	m.local.validate = m.validateTrial
	return m
}

func (m *Mux) validateTrial(cfg *TrialConfig) (pulseshape.Shape, error) {
	if cfg.Shape != nil {
		return nil, fmt.Errorf("%w: pulse shaping", ErrUnsupported)
	}
	if cfg.HighPowerDrive {
		return nil, fmt.Errorf("%w: high-power drive stage", ErrUnsupported)
	}
	voltage, ok := m.rails[cfg.Rail]
	if !ok {
		return nil, fmt.Errorf("%w: unknown rail %q", ErrOutOfRange, cfg.Rail)
	}
	shape, err := pulseshape.NewSegments(pulseshape.Segment{
		DurationNS: m.pulseDuration(cfg.Length),
		Voltage:    voltage,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: rail %q: %v", ErrOutOfRange, cfg.Rail, err)
	}
	return shape, nil
}

// Rails lists the configured rail names.
func (m *Mux) Rails() []string {
	names := make([]string, 0, len(m.rails))
	for name := range m.rails {
		names = append(names, name)
	}
	return names
}

// Shaper emits an interpolated voltage profile instead of a flat pulse. A
// nil shape in the trial config falls back to a flat ground pulse.
type Shaper struct {
	local
	resolutionNS int64
}

func NewShaper(engine *timing.SimEngine, detector trigger.Detector, cycler *PowerCycler, cooldown time.Duration, resolutionNS int64) *Shaper {
	if resolutionNS < pulseshape.MinResolution {
		resolutionNS = pulseshape.MinResolution
	}
	s := &Shaper{local: newLocal(engine, detector, cycler, cooldown), resolutionNS: resolutionNS}
	s.local.validate = s.validateTrial
	return s
}

func (s *Shaper) validateTrial(cfg *TrialConfig) (pulseshape.Shape, error) {
	if cfg.Rail != "" {
		return nil, fmt.Errorf("%w: voltage rail selection", ErrUnsupported)
	}
	if cfg.Shape == nil {
		return pulseshape.Flat{DurationNS: s.pulseDuration(cfg.Length)}, nil
	}
	// render once up front so an out-of-range profile fails at configure
	// time, not mid-trial
	if _, err := cfg.Shape.Samples(s.resolutionNS); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOutOfRange, err)
	}
	return cfg.Shape, nil
}
