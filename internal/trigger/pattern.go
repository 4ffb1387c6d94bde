package trigger

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"faultline/internal/model"
)

// PatternDetector reports a trigger the instant a byte pattern is fully
// received on the monitored channel. Matching is byte-by-byte against a
// rolling window no larger than the pattern, so detection latency is
// bounded by transport latency only.
type PatternDetector struct {
	pattern []byte
	bytes   chan byte
	errs    chan error
}

// NewPatternDetector starts streaming from the monitored channel. The
// reader goroutine lives for the detector's lifetime.
func NewPatternDetector(r io.Reader, pattern []byte) (*PatternDetector, error) {
	if len(pattern) == 0 {
		return nil, errors.New("trigger: pattern must not be empty")
	}
	d := &PatternDetector{
		pattern: append([]byte(nil), pattern...),
		bytes:   make(chan byte, 64),
		errs:    make(chan error, 1),
	}
	go d.pump(r)
	return d, nil
}

func (d *PatternDetector) pump(r io.Reader) {
	buf := make([]byte, 1)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			d.bytes <- buf[0]
		}
		if err != nil {
			d.errs <- err
			return
		}
	}
}

func (d *PatternDetector) Wait(ctx context.Context, timeout time.Duration) (model.TriggerEvent, error) {
	// drop bytes left over from a previous trial
	for {
		select {
		case <-d.bytes:
			continue
		default:
		}
		break
	}

	window := make([]byte, 0, len(d.pattern))
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case b := <-d.bytes:
			if len(window) == len(d.pattern) {
				copy(window, window[1:])
				window = window[:len(window)-1]
			}
			window = append(window, b)
			if bytes.Equal(window, d.pattern) {
				return model.TriggerEvent{
					Source:   model.PatternTrigger,
					Observed: time.Now(),
				}, nil
			}
		case err := <-d.errs:
			if errors.Is(err, io.EOF) {
				return model.TriggerEvent{}, ErrTimeout
			}
			return model.TriggerEvent{}, err
		case <-timer.C:
			return model.TriggerEvent{}, ErrTimeout
		case <-ctx.Done():
			return model.TriggerEvent{}, ctx.Err()
		}
	}
}
