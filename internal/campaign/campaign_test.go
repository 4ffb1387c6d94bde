package campaign

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"faultline/internal/backend"
	"faultline/internal/classify"
	"faultline/internal/model"
	"faultline/internal/paramspace"
	"faultline/internal/search"
	"faultline/internal/store"
)

type fakeBackend struct {
	configureErr error
	armErr       func(trial int) error
	pulseErr     func(trial int) error

	trial       int
	powerCycles int
}

func (f *fakeBackend) Configure(backend.TrialConfig) error { return f.configureErr }

func (f *fakeBackend) Arm(ctx context.Context, timeout time.Duration) (model.TriggerEvent, error) {
	f.trial++
	if f.armErr != nil {
		if err := f.armErr(f.trial); err != nil {
			return model.TriggerEvent{}, err
		}
	}
	return model.TriggerEvent{Ticks: uint64(f.trial), Source: model.EdgeTrigger}, nil
}

func (f *fakeBackend) Pulse(ctx context.Context) error {
	if f.pulseErr != nil {
		return f.pulseErr(f.trial)
	}
	return nil
}

func (f *fakeBackend) PowerCycle(ctx context.Context) error {
	f.powerCycles++
	return nil
}

func (f *fakeBackend) State() backend.State { return backend.StateIdle }

type fakeTarget struct {
	respond func(trial int) ([]byte, error)
	trial   int
}

func (f *fakeTarget) Read(ctx context.Context, timeout time.Duration) ([]byte, error) {
	f.trial++
	if f.respond != nil {
		return f.respond(f.trial)
	}
	return []byte("read-out protection enabled\r\n"), nil
}

type recordingReporter struct {
	mu        sync.Mutex
	trials    []model.Classification
	warnings  []string
	summaries int
}

func (r *recordingReporter) TrialDone(id int64, params []float64, cls model.Classification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trials = append(r.trials, cls)
}

func (r *recordingReporter) Warn(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings = append(r.warnings, fmt.Sprintf(format, args...))
}

func (r *recordingReporter) Summary(int64, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summaries++
}

type flakyStore struct {
	store.Store
	failures int
	appends  int
}

func (s *flakyStore) Append(ctx context.Context, exp model.Experiment) (int64, error) {
	s.appends++
	if s.failures > 0 {
		s.failures--
		return 0, store.ErrStorageFault
	}
	return s.Store.Append(ctx, exp)
}

func newTestEngine(t *testing.T) *search.Engine {
	t.Helper()
	space, err := paramspace.New(
		paramspace.Dimension{Name: "delay", Lower: 0, Upper: 1000, Bins: 10},
		paramspace.Dimension{Name: "length", Lower: 0, Upper: 100, Bins: 10},
	)
	if err != nil {
		t.Fatalf("new space: %v", err)
	}
	eng, err := search.New(space, search.Config{}, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return eng
}

func newTestCampaign(t *testing.T, cfg Config, deps Deps) (*Campaign, *store.MemoryStore, *recordingReporter) {
	t.Helper()
	mem := store.NewMemoryStore()
	rep := &recordingReporter{}
	if deps.Backend == nil {
		deps.Backend = &fakeBackend{}
	}
	if deps.Search == nil {
		deps.Search = newTestEngine(t)
	}
	if deps.Store == nil {
		deps.Store = mem
	}
	if deps.Classifier == nil {
		deps.Classifier = classify.RDP
	}
	if deps.Target == nil {
		deps.Target = &fakeTarget{}
	}
	if deps.Reporter == nil {
		deps.Reporter = rep
	}
	if cfg.ArmTimeout == 0 {
		cfg.ArmTimeout = 10 * time.Millisecond
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Millisecond
	}
	c, err := New(cfg, deps)
	if err != nil {
		t.Fatalf("new campaign: %v", err)
	}
	return c, mem, rep
}

func TestRunPersistsEveryTrial(t *testing.T) {
	c, mem, rep := newTestCampaign(t, Config{Trials: 20}, Deps{})

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	n, _ := mem.Count(context.Background())
	if n != 20 {
		t.Fatalf("stored %d experiments, want 20", n)
	}
	if len(rep.trials) != 20 {
		t.Fatalf("reported %d trials", len(rep.trials))
	}
	for i, cls := range rep.trials {
		if cls.Category != model.CategoryExpected {
			t.Fatalf("trial %d classified %s", i, cls.Category)
		}
	}
	if rep.summaries != 1 {
		t.Fatalf("summary called %d times", rep.summaries)
	}
}

func TestDefaultBinderClampsSubTickLength(t *testing.T) {
	cfg := DefaultBinder([]float64{7.9, 0.3})
	if cfg.Delay != 7 {
		t.Fatalf("delay: %d", cfg.Delay)
	}
	if cfg.Length != 1 {
		t.Fatalf("sub-tick length bound to %d ticks, want 1", cfg.Length)
	}
	cfg = DefaultBinder([]float64{0, 42.6})
	if cfg.Length != 42 {
		t.Fatalf("length: %d", cfg.Length)
	}
}

func TestTriggerTimeoutIsAnOutcome(t *testing.T) {
	fb := &fakeBackend{armErr: func(trial int) error {
		if trial == 2 {
			return backend.ErrTriggerTimeout
		}
		return nil
	}}
	c, mem, _ := newTestCampaign(t, Config{Trials: 3}, Deps{Backend: fb})

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	all, _ := mem.All(context.Background())
	if len(all) != 3 {
		t.Fatalf("stored %d experiments", len(all))
	}
	if all[1].Category != model.CategoryTimeout || all[1].Weight != -1 {
		t.Fatalf("timeout trial recorded as %+v", all[1])
	}
}

func TestPulseFaultRecoversAndContinues(t *testing.T) {
	fb := &fakeBackend{pulseErr: func(trial int) error {
		if trial == 1 {
			return backend.ErrPulseFault
		}
		return nil
	}}
	c, mem, rep := newTestCampaign(t, Config{Trials: 2, PowerCycleAfterFault: true}, Deps{Backend: fb})

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if fb.powerCycles != 1 {
		t.Fatalf("power cycles: %d", fb.powerCycles)
	}
	all, _ := mem.All(context.Background())
	if all[0].Category != model.CategoryError {
		t.Fatalf("fault trial recorded as %+v", all[0])
	}
	if len(rep.warnings) == 0 {
		t.Fatal("pulse fault not surfaced")
	}
}

func TestStorageFaultRetriesThenDrops(t *testing.T) {
	mem := store.NewMemoryStore()
	flaky := &flakyStore{Store: mem, failures: 100}
	c, _, rep := newTestCampaign(t, Config{Trials: 1, StoreRetries: 3}, Deps{Store: flaky})

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if flaky.appends != 3 {
		t.Fatalf("append attempts: %d", flaky.appends)
	}
	if len(rep.warnings) == 0 {
		t.Fatal("dropped record not surfaced")
	}
	n, _ := mem.Count(context.Background())
	if n != 0 {
		t.Fatalf("dropped record still stored: %d", n)
	}
}

func TestStorageFaultRetrySucceeds(t *testing.T) {
	mem := store.NewMemoryStore()
	flaky := &flakyStore{Store: mem, failures: 1}
	c, _, rep := newTestCampaign(t, Config{Trials: 1}, Deps{Store: flaky})

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(rep.warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", rep.warnings)
	}
	n, _ := mem.Count(context.Background())
	if n != 1 {
		t.Fatalf("stored %d experiments", n)
	}
}

func TestCorruptionTriggersRecovery(t *testing.T) {
	var recovered int
	target := &fakeTarget{respond: func(trial int) ([]byte, error) {
		if trial == 1 {
			return []byte("flash erased"), nil
		}
		return []byte("read-out protection enabled"), nil
	}}
	corruption := func(response []byte) model.Classification {
		if len(response) > 0 && string(response) == "flash erased" {
			return model.Classification{Category: model.CategoryCorruption, Weight: 0}
		}
		return classify.RDP(response)
	}
	c, _, _ := newTestCampaign(t, Config{Trials: 2}, Deps{
		Target:     target,
		Classifier: corruption,
		Recover: func(ctx context.Context) error {
			recovered++
			return nil
		},
	})

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if recovered != 1 {
		t.Fatalf("recovery ran %d times", recovered)
	}
}

func TestFailureGateTripsRecovery(t *testing.T) {
	var recovered int
	// every response is unexpected garbage
	target := &fakeTarget{respond: func(int) ([]byte, error) {
		return nil, nil
	}}
	c, _, _ := newTestCampaign(t, Config{Trials: 6, FailLimit: 3, FailWindow: 5}, Deps{
		Target: target,
		Recover: func(ctx context.Context) error {
			recovered++
			return nil
		},
	})

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if recovered != 2 {
		t.Fatalf("gate tripped %d times, want 2", recovered)
	}
}

func TestProgrammingErrorTerminates(t *testing.T) {
	fb := &fakeBackend{configureErr: backend.ErrUnsupported}
	c, mem, _ := newTestCampaign(t, Config{Trials: 10}, Deps{Backend: fb})

	err := c.Run(context.Background())
	if !errors.Is(err, backend.ErrUnsupported) {
		t.Fatalf("got %v, want ErrUnsupported", err)
	}
	n, _ := mem.Count(context.Background())
	if n != 0 {
		t.Fatalf("trials persisted after fatal fault: %d", n)
	}
}

func TestSeedExperimentMarked(t *testing.T) {
	c, mem, _ := newTestCampaign(t, Config{Trials: 1}, Deps{})

	if err := c.Seed(context.Background(), 2, model.CategorySuccess, []byte("leak"), 500, 50); err != nil {
		t.Fatalf("seed: %v", err)
	}
	all, _ := mem.All(context.Background())
	if len(all) != 1 || !all[0].Seeded {
		t.Fatalf("seed not marked: %+v", all)
	}
	if all[0].Category != model.CategorySuccess {
		t.Fatalf("seed category: %s", all[0].Category)
	}
}

func TestSeedOutOfBoundsRejected(t *testing.T) {
	c, _, _ := newTestCampaign(t, Config{Trials: 1}, Deps{})
	err := c.Seed(context.Background(), 1, model.CategoryOK, nil, 5000, 50)
	if !errors.Is(err, paramspace.ErrOutOfBounds) {
		t.Fatalf("got %v, want ErrOutOfBounds", err)
	}
}

func TestContextCancelStopsLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c, _, _ := newTestCampaign(t, Config{}, Deps{})
	if err := c.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}
