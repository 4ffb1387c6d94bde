// Package campaign drives the per-trial control loop: obtain parameters from
// the search engine, program the backend, wait for the trigger, pulse, read
// the target, classify, persist, feed the outcome back. The loop is
// single-threaded and synchronous per trial; glitch hardware and target are
// shared singleton resources, so at most one trial is ever in flight.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"faultline/internal/backend"
	"faultline/internal/classify"
	"faultline/internal/model"
	"faultline/internal/paramspace"
	"faultline/internal/search"
	"faultline/internal/store"
	"faultline/internal/timing"
)

// Target is the byte channel to the device under attack, used for the
// post-glitch read path.
type Target interface {
	// Read returns whatever the target emitted within the timeout. A
	// timeout or transport error is an expected outcome after a destructive
	// glitch; it yields an empty response, not a campaign failure.
	Read(ctx context.Context, timeout time.Duration) ([]byte, error)
}

// Binder maps a parameter tuple from the search engine onto a concrete trial
// configuration for the backend.
type Binder func(params []float64) backend.TrialConfig

// DefaultBinder treats the first dimension as delay ticks and the second as
// pulse length ticks. Values truncate toward zero; a sub-tick length is
// clamped to one tick so every engine-produced tuple stays programmable.
func DefaultBinder(params []float64) backend.TrialConfig {
	cfg := backend.TrialConfig{}
	if len(params) > 0 {
		cfg.Delay = timing.Ticks(params[0])
	}
	if len(params) > 1 {
		cfg.Length = timing.Ticks(params[1])
		if cfg.Length == 0 {
			cfg.Length = 1
		}
	}
	return cfg
}

// Config tunes the trial loop.
type Config struct {
	// Trials bounds the campaign. Zero runs until the context is canceled.
	Trials int
	// ArmTimeout bounds the wait for a trigger. Mandatory.
	ArmTimeout time.Duration
	// ReadTimeout bounds the post-glitch response read. Mandatory.
	ReadTimeout time.Duration
	// StoreRetries bounds append retries before a trial record is dropped
	// with a warning. Defaults to 3.
	StoreRetries int
	// PowerCycleAfterFault inserts a power cycle after a pulse fault.
	PowerCycleAfterFault bool
	// FailLimit trips the recovery gate after this many unexpected
	// responses inside FailWindow trials. Zero disables the gate.
	FailLimit  int
	FailWindow int
}

// Deps are the collaborating components, threaded explicitly.
type Deps struct {
	Backend    backend.Backend
	Search     *search.Engine
	Store      store.Store
	Classifier classify.Classifier
	Target     Target
	Reporter   Reporter
	Binder     Binder
	// Recover is the mandatory recovery action for suspected target
	// corruption, typically a reflash. Also invoked when the failure gate
	// trips.
	Recover func(ctx context.Context) error
}

// Campaign owns one glitching run.
type Campaign struct {
	ID   uuid.UUID
	cfg  Config
	deps Deps
	gate *failGate

	trials  int64
	started time.Time
}

func New(cfg Config, deps Deps) (*Campaign, error) {
	if deps.Backend == nil {
		return nil, errors.New("campaign: backend is required")
	}
	if deps.Search == nil {
		return nil, errors.New("campaign: search engine is required")
	}
	if deps.Store == nil {
		return nil, errors.New("campaign: store is required")
	}
	if deps.Classifier == nil {
		return nil, errors.New("campaign: classifier is required")
	}
	if deps.Target == nil {
		return nil, errors.New("campaign: target channel is required")
	}
	if cfg.ArmTimeout <= 0 {
		return nil, errors.New("campaign: arm timeout is mandatory")
	}
	if cfg.ReadTimeout <= 0 {
		return nil, errors.New("campaign: read timeout is mandatory")
	}
	if cfg.StoreRetries <= 0 {
		cfg.StoreRetries = 3
	}
	if deps.Reporter == nil {
		deps.Reporter = NopReporter{}
	}
	if deps.Binder == nil {
		deps.Binder = DefaultBinder
	}
	return &Campaign{
		ID:   uuid.New(),
		cfg:  cfg,
		deps: deps,
		gate: newFailGate(cfg.FailLimit, cfg.FailWindow),
	}, nil
}

// Trials reports how many trials completed so far.
func (c *Campaign) Trials() int64 { return c.trials }

// Speed reports completed trials per second since Run started.
func (c *Campaign) Speed() float64 {
	if c.started.IsZero() {
		return 0
	}
	elapsed := time.Since(c.started).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(c.trials) / elapsed
}

// isProgrammingError reports faults that indicate a logic bug rather than an
// operating condition. These terminate the campaign; continuing would
// produce meaningless data.
func isProgrammingError(err error) bool {
	return errors.Is(err, paramspace.ErrOutOfBounds) ||
		errors.Is(err, paramspace.ErrDimensionMismatch) ||
		errors.Is(err, timing.ErrInvalidParameter) ||
		errors.Is(err, backend.ErrOutOfRange) ||
		errors.Is(err, backend.ErrUnsupported) ||
		errors.Is(err, backend.ErrNotConfigured)
}

// Run executes the trial loop until the configured trial count is reached,
// the context is canceled, or a programming-error-class fault surfaces.
// Every completed trial yields exactly one persisted experiment.
func (c *Campaign) Run(ctx context.Context) error {
	c.started = time.Now()
	defer func() {
		c.deps.Reporter.Summary(c.trials, time.Since(c.started))
	}()

	for c.cfg.Trials == 0 || c.trials < int64(c.cfg.Trials) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.runTrial(ctx); err != nil {
			return err
		}
		c.trials++
	}
	return nil
}

// Seed records a manually chosen experiment, marked as such so analysis can
// distinguish it from engine-produced trials. The outcome still feeds the
// search engine.
func (c *Campaign) Seed(ctx context.Context, weight float64, cat model.Category, response []byte, params ...float64) error {
	if err := c.deps.Search.AddExperiment(weight, params...); err != nil {
		return err
	}
	c.persist(ctx, model.Experiment{
		Params:   params,
		Response: response,
		Category: cat,
		Weight:   weight,
		Seeded:   true,
	})
	return nil
}

func (c *Campaign) runTrial(ctx context.Context) error {
	params, err := c.deps.Search.Step()
	if err != nil {
		return fmt.Errorf("search step: %w", err)
	}

	if err := c.deps.Backend.Configure(c.deps.Binder(params)); err != nil {
		if isProgrammingError(err) {
			return fmt.Errorf("configure: %w", err)
		}
		return c.finishTrial(ctx, params, nil, model.Classification{Category: model.CategoryError})
	}

	if _, err := c.arm(ctx); err != nil {
		switch {
		case errors.Is(err, backend.ErrTriggerTimeout):
			return c.finishTrial(ctx, params, nil, model.Classification{Category: model.CategoryTimeout, Weight: -1})
		case isProgrammingError(err), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return fmt.Errorf("arm: %w", err)
		default:
			c.deps.Reporter.Warn("arm failed: %v", err)
			return c.finishTrial(ctx, params, nil, model.Classification{Category: model.CategoryError})
		}
	}

	if err := c.deps.Backend.Pulse(ctx); err != nil {
		if isProgrammingError(err) {
			return fmt.Errorf("pulse: %w", err)
		}
		c.deps.Reporter.Warn("pulse fault: %v", err)
		if c.cfg.PowerCycleAfterFault {
			if perr := c.deps.Backend.PowerCycle(ctx); perr != nil {
				c.deps.Reporter.Warn("recovery power cycle failed: %v", perr)
			}
		}
		return c.finishTrial(ctx, params, nil, model.Classification{Category: model.CategoryError})
	}

	response, err := c.deps.Target.Read(ctx, c.cfg.ReadTimeout)
	if err != nil {
		// an unresponsive target after a destructive glitch is expected
		response = nil
	}

	return c.finishTrial(ctx, params, response, c.deps.Classifier(response))
}

// arm retries briefly while the backend cools down; cooldown between pulses
// is an operating condition, not an error.
func (c *Campaign) arm(ctx context.Context) (model.TriggerEvent, error) {
	var ev model.TriggerEvent
	var err error
	for attempt := 0; attempt < 10; attempt++ {
		ev, err = c.deps.Backend.Arm(ctx, c.cfg.ArmTimeout)
		if !errors.Is(err, backend.ErrNotReady) {
			return ev, err
		}
		select {
		case <-time.After(10 * time.Millisecond):
		case <-ctx.Done():
			return model.TriggerEvent{}, ctx.Err()
		}
	}
	return ev, err
}

// finishTrial persists the record, feeds the search engine, and runs any
// required recovery. The returned error is nil except for programming-error
// faults.
func (c *Campaign) finishTrial(ctx context.Context, params []float64, response []byte, cls model.Classification) error {
	c.persist(ctx, model.Experiment{
		Params:   params,
		Response: response,
		Category: cls.Category,
		Weight:   cls.Weight,
	})

	if err := c.deps.Search.AddExperiment(cls.Weight, params...); err != nil {
		return fmt.Errorf("add experiment: %w", err)
	}

	if cls.Category == model.CategoryCorruption {
		if err := c.recoverTarget(ctx, "suspected target corruption"); err != nil {
			return err
		}
	} else if c.gate.observe(cls.Category) {
		if err := c.recoverTarget(ctx, "successive failure limit reached"); err != nil {
			return err
		}
	}

	c.deps.Reporter.TrialDone(c.trials+1, params, cls)
	return nil
}

// recoverTarget runs the injected recovery action, falling back to a power
// cycle when none is configured. Recovery is mandatory for corruption: the
// campaign must not keep glitching a target whose memory looks erased.
func (c *Campaign) recoverTarget(ctx context.Context, reason string) error {
	c.deps.Reporter.Warn("%s, running recovery", reason)
	if c.deps.Recover != nil {
		if err := c.deps.Recover(ctx); err != nil {
			return fmt.Errorf("recovery after %s: %w", reason, err)
		}
		return nil
	}
	if err := c.deps.Backend.PowerCycle(ctx); err != nil {
		return fmt.Errorf("recovery power cycle after %s: %w", reason, err)
	}
	return nil
}

// persist appends with bounded retries. Exhausted retries drop the record
// with an explicit warning instead of crashing the campaign.
func (c *Campaign) persist(ctx context.Context, exp model.Experiment) {
	var err error
	for attempt := 0; attempt < c.cfg.StoreRetries; attempt++ {
		if _, err = c.deps.Store.Append(ctx, exp); err == nil {
			return
		}
	}
	c.deps.Reporter.Warn("experiment dropped after %d append attempts: %v", c.cfg.StoreRetries, err)
}
