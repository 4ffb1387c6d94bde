package trigger

import (
	"context"
	"sync"
	"time"

	"faultline/internal/model"
)

// EdgeKind selects the transition direction to latch on.
type EdgeKind int

const (
	RisingEdge EdgeKind = iota
	FallingEdge
)

func (k EdgeKind) String() string {
	if k == FallingEdge {
		return "falling"
	}
	return "rising"
}

type edgeEvent struct {
	rising   bool
	ticks    uint64
	observed time.Time
}

// Line is a monitored digital input. Whatever drives the line (a simulated
// reset output, a hardware bridge) calls Set on level changes; at most one
// detector listens at a time.
type Line struct {
	mu    sync.Mutex
	level bool
	sub   chan edgeEvent
}

// NewLine returns a line at logic low.
func NewLine() *Line {
	return &Line{}
}

// Set drives the line to a level. A transition is reported to the active
// subscriber with the hardware tick count at which it was latched.
func (l *Line) Set(level bool, ticks uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level == l.level {
		return
	}
	l.level = level
	if l.sub != nil {
		select {
		case l.sub <- edgeEvent{rising: level, ticks: ticks, observed: time.Now()}:
		default:
			// subscriber not draining; edge is lost like on real hardware
		}
	}
}

func (l *Line) subscribe() chan edgeEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sub = make(chan edgeEvent, 8)
	return l.sub
}

func (l *Line) unsubscribe() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sub = nil
}

// EdgeDetector latches a rising or falling edge on a line. DeadTime is an
// optional rejection window: edges within DeadTime of the wait start are
// discarded, excluding false trigger conditions right after a power cycle
// or reset.
type EdgeDetector struct {
	Line     *Line
	Edge     EdgeKind
	DeadTime time.Duration
}

func (d *EdgeDetector) Wait(ctx context.Context, timeout time.Duration) (model.TriggerEvent, error) {
	sub := d.Line.subscribe()
	defer d.Line.unsubscribe()

	start := time.Now()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case ev := <-sub:
			if ev.rising != (d.Edge == RisingEdge) {
				continue
			}
			if d.DeadTime > 0 && ev.observed.Sub(start) < d.DeadTime {
				continue
			}
			return model.TriggerEvent{
				Ticks:    ev.ticks,
				Source:   model.EdgeTrigger,
				Observed: ev.observed,
			}, nil
		case <-timer.C:
			return model.TriggerEvent{}, ErrTimeout
		case <-ctx.Done():
			return model.TriggerEvent{}, ctx.Err()
		}
	}
}
