package pulseshape

import (
	"errors"
	"math"
	"testing"
)

func TestFlatSamples(t *testing.T) {
	f := Flat{DurationNS: 100}
	if f.Duration() != 100 {
		t.Fatalf("duration = %d", f.Duration())
	}
	samples, err := f.Samples(10)
	if err != nil {
		t.Fatalf("samples: %v", err)
	}
	if len(samples) != 10 {
		t.Fatalf("got %d samples, want 10", len(samples))
	}
	for i, v := range samples {
		if v != 0 {
			t.Fatalf("sample %d = %v, crowbar profile must sit at GND", i, v)
		}
	}
}

func TestFlatTooLong(t *testing.T) {
	f := Flat{DurationNS: int64(MaxPoints+1) * MinResolution}
	if _, err := f.Samples(MinResolution); !errors.Is(err, ErrTooLong) {
		t.Fatalf("got %v, want ErrTooLong", err)
	}
}

func TestResolutionFloor(t *testing.T) {
	f := Flat{DurationNS: 100}
	if _, err := f.Samples(5); err == nil {
		t.Fatal("expected error for resolution below minimum")
	}
}

func TestSegmentsValidation(t *testing.T) {
	if _, err := NewSegments(); err == nil {
		t.Fatal("expected error for empty segment list")
	}
	if _, err := NewSegments(Segment{DurationNS: 0, Voltage: 1}); err == nil {
		t.Fatal("expected error for zero duration")
	}
	if _, err := NewSegments(Segment{DurationNS: 10, Voltage: 6.0}); !errors.Is(err, ErrVoltage) {
		t.Fatal("expected ErrVoltage for over-range segment")
	}
}

func TestSegmentsProfile(t *testing.T) {
	s, err := NewSegments(
		Segment{DurationNS: 30, Voltage: 0},
		Segment{DurationNS: 30, Voltage: 1.8},
	)
	if err != nil {
		t.Fatalf("new segments: %v", err)
	}
	if s.Duration() != 60 {
		t.Fatalf("duration = %d, want 60", s.Duration())
	}
	samples, err := s.Samples(10)
	if err != nil {
		t.Fatalf("samples: %v", err)
	}
	if len(samples) != 6 {
		t.Fatalf("got %d samples, want 6", len(samples))
	}
	if samples[0] != 0 || samples[2] != 0 || samples[3] != 1.8 || samples[5] != 1.8 {
		t.Fatalf("unexpected profile: %v", samples)
	}
}

func TestSplineValidation(t *testing.T) {
	if _, err := NewSpline([]int64{0, 10}, []float64{1}); err == nil {
		t.Fatal("expected error for mismatched lengths")
	}
	if _, err := NewSpline([]int64{5, 10}, []float64{1, 2}); err == nil {
		t.Fatal("expected error for first anchor not at zero")
	}
	if _, err := NewSpline([]int64{0, 10, 10}, []float64{1, 2, 3}); err == nil {
		t.Fatal("expected error for non-increasing times")
	}
}

func TestSplineInterpolation(t *testing.T) {
	s, err := NewSpline(
		[]int64{0, 100, 200},
		[]float64{3.0, 1.0, 3.0},
	)
	if err != nil {
		t.Fatalf("new spline: %v", err)
	}
	if got := s.At(0); got != 3.0 {
		t.Fatalf("At(0) = %v", got)
	}
	if got := s.At(50); math.Abs(got-2.0) > 1e-9 {
		t.Fatalf("At(50) = %v, want 2.0", got)
	}
	if got := s.At(150); math.Abs(got-2.0) > 1e-9 {
		t.Fatalf("At(150) = %v, want 2.0", got)
	}
	if got := s.At(500); got != 3.0 {
		t.Fatalf("At past end = %v, want last anchor", got)
	}

	samples, err := s.Samples(10)
	if err != nil {
		t.Fatalf("samples: %v", err)
	}
	if len(samples) != 20 {
		t.Fatalf("got %d samples, want 20", len(samples))
	}
}

func TestExprProfile(t *testing.T) {
	e, err := ParseExpr("t < 100 ? 3.3 : t < 200 ? 1.8 : 0", 300)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := e.At(0); got != 3.3 {
		t.Fatalf("At(0) = %v", got)
	}
	if got := e.At(150); got != 1.8 {
		t.Fatalf("At(150) = %v", got)
	}
	if got := e.At(250); got != 0 {
		t.Fatalf("At(250) = %v", got)
	}
	samples, err := e.Samples(10)
	if err != nil {
		t.Fatalf("samples: %v", err)
	}
	if len(samples) != 30 {
		t.Fatalf("got %d samples, want 30", len(samples))
	}
}

func TestExprArithmetic(t *testing.T) {
	e, err := ParseExpr("(2 + 4) * t / 3 - 1", 100)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := e.At(2); math.Abs(got-3.0) > 1e-9 {
		t.Fatalf("At(2) = %v, want 3", got)
	}
}

func TestExprRampMatchesOriginalLambda(t *testing.T) {
	// -1/(2*length)*t + 3.0 while t < 2*length, then a 2.0 plateau
	e, err := ParseExpr("t < 200 ? 0 - 1.0/200*t + 3.0 : 2.0", 400)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := e.At(0); math.Abs(got-3.0) > 1e-9 {
		t.Fatalf("At(0) = %v, want 3.0", got)
	}
	if got := e.At(100); math.Abs(got-2.5) > 1e-9 {
		t.Fatalf("At(100) = %v, want 2.5", got)
	}
	if got := e.At(300); math.Abs(got-2.0) > 1e-9 {
		t.Fatalf("At(300) = %v, want 2.0", got)
	}
}

func TestExprRejectsUnknownVariable(t *testing.T) {
	if _, err := ParseExpr("x + 1", 100); err == nil {
		t.Fatal("expected error for unknown variable")
	}
}

func TestExprRejectsOutOfRangeSample(t *testing.T) {
	e, err := ParseExpr("t", 2000)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := e.Samples(10); !errors.Is(err, ErrVoltage) {
		t.Fatalf("got %v, want ErrVoltage", err)
	}
}
