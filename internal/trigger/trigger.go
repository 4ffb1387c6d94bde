// Package trigger recognizes the time-zero event of a trial: either a logic
// edge on a monitored line or a byte pattern on a monitored channel. One
// source is active per campaign; switching is a configuration-time decision.
package trigger

import (
	"context"
	"errors"
	"time"

	"faultline/internal/model"
)

// ErrTimeout reports that no trigger was observed within the window.
var ErrTimeout = errors.New("trigger: timeout")

// Detector waits for the configured trigger condition.
type Detector interface {
	// Wait blocks until the trigger fires, the timeout elapses, or ctx is
	// done. The timeout is mandatory: an unresponsive target is an expected
	// outcome, not an exceptional one.
	Wait(ctx context.Context, timeout time.Duration) (model.TriggerEvent, error)
}
