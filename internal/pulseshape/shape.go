// Package pulseshape defines the voltage profiles a glitch pulse can take:
// a flat crowbar pulse, a stepped multiplexer profile, an interpolated
// point list, or a time-function expression.
package pulseshape

import (
	"errors"
	"fmt"
)

const (
	// MaxPoints bounds the sample buffer a shaping DAC can hold.
	MaxPoints = 4096
	// MaxVoltage is the full-scale output of the shaping stage.
	MaxVoltage = 5.0
	// MinResolution is the smallest supported sample spacing in nanoseconds.
	MinResolution = 6
)

var (
	// ErrTooLong reports a shape that does not fit the DAC sample buffer at
	// the requested resolution.
	ErrTooLong = errors.New("pulseshape: pulse exceeds sample buffer")
	// ErrVoltage reports a sample outside [0, MaxVoltage].
	ErrVoltage = errors.New("pulseshape: voltage out of range")
)

// Shape describes one pulse profile. Duration is in nanoseconds. Samples
// renders the profile at the given resolution (nanoseconds per sample) for
// shaping backends; crowbar backends only consume Duration.
type Shape interface {
	Kind() string
	Duration() int64
	Samples(resolutionNS int64) ([]float64, error)
}

func checkResolution(resolutionNS int64) error {
	if resolutionNS < MinResolution {
		return fmt.Errorf("pulseshape: resolution %dns below minimum %dns", resolutionNS, MinResolution)
	}
	return nil
}

func checkVoltage(v float64) error {
	if v < 0 || v > MaxVoltage {
		return fmt.Errorf("%w: %v not in [0, %v]", ErrVoltage, v, MaxVoltage)
	}
	return nil
}

// Flat is the plain crowbar profile: the output transistor shorts the rail
// for the whole duration.
type Flat struct {
	DurationNS int64
}

func (f Flat) Kind() string { return "flat" }

func (f Flat) Duration() int64 { return f.DurationNS }

func (f Flat) Samples(resolutionNS int64) ([]float64, error) {
	if err := checkResolution(resolutionNS); err != nil {
		return nil, err
	}
	n := int(f.DurationNS / resolutionNS)
	if n > MaxPoints {
		return nil, fmt.Errorf("%w: %d points at %dns", ErrTooLong, n, resolutionNS)
	}
	samples := make([]float64, n)
	return samples, nil
}

// Segment is one step of a multiplexer profile: hold Voltage for DurationNS.
type Segment struct {
	DurationNS int64   `json:"duration_ns"`
	Voltage    float64 `json:"voltage"`
}

// Segments is a stepped profile, e.g. GND for 10ns, 1.8V for 20ns, GND for
// 30ns. Used by the voltage-multiplexer backend.
type Segments struct {
	Steps []Segment
}

// NewSegments validates the step list.
func NewSegments(steps ...Segment) (Segments, error) {
	if len(steps) == 0 {
		return Segments{}, errors.New("pulseshape: at least one segment is required")
	}
	for i, s := range steps {
		if s.DurationNS <= 0 {
			return Segments{}, fmt.Errorf("pulseshape: segment %d: duration %dns must be positive", i, s.DurationNS)
		}
		if err := checkVoltage(s.Voltage); err != nil {
			return Segments{}, fmt.Errorf("segment %d: %w", i, err)
		}
	}
	return Segments{Steps: append([]Segment(nil), steps...)}, nil
}

func (s Segments) Kind() string { return "segments" }

func (s Segments) Duration() int64 {
	var total int64
	for _, step := range s.Steps {
		total += step.DurationNS
	}
	return total
}

func (s Segments) Samples(resolutionNS int64) ([]float64, error) {
	if err := checkResolution(resolutionNS); err != nil {
		return nil, err
	}
	var samples []float64
	for _, step := range s.Steps {
		n := int(step.DurationNS / resolutionNS)
		for i := 0; i < n; i++ {
			samples = append(samples, step.Voltage)
		}
	}
	if len(samples) > MaxPoints {
		return nil, fmt.Errorf("%w: %d points at %dns", ErrTooLong, len(samples), resolutionNS)
	}
	return samples, nil
}

// Spline is an interpolated profile defined by (time, voltage) anchor
// points. Values between anchors are linearly interpolated.
type Spline struct {
	TimesNS []int64
	Volts   []float64
}

// NewSpline validates anchors: matching lengths, strictly increasing times
// starting at 0, voltages in range.
func NewSpline(timesNS []int64, volts []float64) (Spline, error) {
	if len(timesNS) != len(volts) {
		return Spline{}, fmt.Errorf("pulseshape: %d time points vs %d voltage points", len(timesNS), len(volts))
	}
	if len(timesNS) < 2 {
		return Spline{}, errors.New("pulseshape: a spline needs at least two anchor points")
	}
	if timesNS[0] != 0 {
		return Spline{}, fmt.Errorf("pulseshape: first anchor must be at t=0, got %dns", timesNS[0])
	}
	for i := 1; i < len(timesNS); i++ {
		if timesNS[i] <= timesNS[i-1] {
			return Spline{}, fmt.Errorf("pulseshape: anchor times must be strictly increasing (%dns after %dns)", timesNS[i], timesNS[i-1])
		}
	}
	for i, v := range volts {
		if err := checkVoltage(v); err != nil {
			return Spline{}, fmt.Errorf("anchor %d: %w", i, err)
		}
	}
	return Spline{
		TimesNS: append([]int64(nil), timesNS...),
		Volts:   append([]float64(nil), volts...),
	}, nil
}

func (s Spline) Kind() string { return "spline" }

func (s Spline) Duration() int64 {
	if len(s.TimesNS) == 0 {
		return 0
	}
	return s.TimesNS[len(s.TimesNS)-1]
}

// At interpolates the voltage at time t.
func (s Spline) At(tNS int64) float64 {
	if len(s.TimesNS) == 0 {
		return 0
	}
	if tNS <= s.TimesNS[0] {
		return s.Volts[0]
	}
	last := len(s.TimesNS) - 1
	if tNS >= s.TimesNS[last] {
		return s.Volts[last]
	}
	for i := 1; i <= last; i++ {
		if tNS <= s.TimesNS[i] {
			t0, t1 := s.TimesNS[i-1], s.TimesNS[i]
			v0, v1 := s.Volts[i-1], s.Volts[i]
			frac := float64(tNS-t0) / float64(t1-t0)
			return v0 + frac*(v1-v0)
		}
	}
	return s.Volts[last]
}

func (s Spline) Samples(resolutionNS int64) ([]float64, error) {
	if err := checkResolution(resolutionNS); err != nil {
		return nil, err
	}
	n := int(s.Duration() / resolutionNS)
	if n > MaxPoints {
		return nil, fmt.Errorf("%w: %d points at %dns", ErrTooLong, n, resolutionNS)
	}
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = s.At(int64(i) * resolutionNS)
	}
	return samples, nil
}
