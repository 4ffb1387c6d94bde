package search

import (
	"errors"
	"math/rand"
	"testing"

	"faultline/internal/paramspace"
)

func testSpace(t *testing.T, dims ...paramspace.Dimension) *paramspace.Space {
	t.Helper()
	if len(dims) == 0 {
		dims = []paramspace.Dimension{{Name: "delay", Lower: 0, Upper: 100, Bins: 10}}
	}
	space, err := paramspace.New(dims...)
	if err != nil {
		t.Fatalf("new space: %v", err)
	}
	return space
}

func TestNewValidation(t *testing.T) {
	space := testSpace(t)
	rng := rand.New(rand.NewSource(1))

	if _, err := New(nil, Config{}, rng); err == nil {
		t.Fatal("expected error for nil space")
	}
	if _, err := New(space, Config{}, nil); err == nil {
		t.Fatal("expected error for nil rng")
	}
	if _, err := New(space, Config{PopulationSize: 4}, rng); err == nil {
		t.Fatal("expected error for tiny population")
	}
	if _, err := New(space, Config{MalusFactor: 1.5}, rng); err == nil {
		t.Fatal("expected error for malus factor out of range")
	}
}

func TestStepProducesInBoundsTuples(t *testing.T) {
	space := testSpace(t,
		paramspace.Dimension{Name: "delay", Lower: 100, Upper: 200, Bins: 5},
		paramspace.Dimension{Name: "length", Lower: 0, Upper: 50, Bins: 4},
	)
	e, err := New(space, Config{}, rand.New(rand.NewSource(7)))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	for i := 0; i < 500; i++ {
		params, err := e.Step()
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if len(params) != 2 {
			t.Fatalf("step %d: got %d parameters", i, len(params))
		}
		if err := e.AddExperiment(0, params...); err != nil {
			t.Fatalf("step %d produced out-of-bounds tuple %v: %v", i, params, err)
		}
	}
}

func TestNoBinStarvedUnderZeroWeights(t *testing.T) {
	space := testSpace(t)
	e, err := New(space, Config{}, rand.New(rand.NewSource(42)))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	visited := make(map[int]bool)
	for i := 0; i < 5000; i++ {
		params, err := e.Step()
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		bin, err := space.BinOf(params...)
		if err != nil {
			t.Fatalf("bin of %v: %v", params, err)
		}
		visited[bin] = true
		if err := e.AddExperiment(0, params...); err != nil {
			t.Fatalf("add experiment: %v", err)
		}
	}
	for bin := 0; bin < space.Cardinality(); bin++ {
		if !visited[bin] {
			t.Fatalf("bin %d never explored in %d generations", bin, e.Generation())
		}
	}
}

func TestAddExperimentAccumulates(t *testing.T) {
	space := testSpace(t)
	e, err := New(space, Config{}, rand.New(rand.NewSource(3)))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	if err := e.AddExperiment(2, 15); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := e.AddExperiment(3, 15); err != nil {
		t.Fatalf("add: %v", err)
	}

	coord := paramspace.Coordinate{1}
	visits, err := e.VisitCount(coord)
	if err != nil || visits != 2 {
		t.Fatalf("visits: %d, %v", visits, err)
	}
	weight, err := e.AccumulatedWeight(coord)
	if err != nil || weight != 5 {
		t.Fatalf("weight: %v, %v", weight, err)
	}
}

func TestAddExperimentOutOfBounds(t *testing.T) {
	space := testSpace(t)
	e, err := New(space, Config{}, rand.New(rand.NewSource(3)))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := e.AddExperiment(1, 150); !errors.Is(err, paramspace.ErrOutOfBounds) {
		t.Fatalf("got %v, want ErrOutOfBounds", err)
	}
	if err := e.AddExperiment(1, 100); !errors.Is(err, paramspace.ErrOutOfBounds) {
		t.Fatalf("upper bound accepted: %v", err)
	}
}

func TestVisitMalusDemotesExhaustedBins(t *testing.T) {
	space := testSpace(t)
	e, err := New(space, Config{MalusFactor: 1}, rand.New(rand.NewSource(3)))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	// same accumulated weight, very different visit counts
	e.AddExperiment(10, 5) // bin 0, one visit
	for i := 0; i < 10; i++ {
		e.AddExperiment(1, 15) // bin 1, ten visits
	}

	best, err := e.BestPerformingBins(2)
	if err != nil {
		t.Fatalf("best bins: %v", err)
	}
	if best[0].Coordinate[0] != 0 {
		t.Fatalf("expected bin 0 on top, got %+v", best)
	}
	if best[0].Weight != 9 { // 10 - 1*1
		t.Fatalf("effective weight: %v", best[0].Weight)
	}
}

func TestBestPerformingBinsReadOnly(t *testing.T) {
	space := testSpace(t)
	e, err := New(space, Config{}, rand.New(rand.NewSource(9)))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	e.AddExperiment(4, 25)
	e.AddExperiment(1, 75)

	a, err := e.BestPerformingBins(3)
	if err != nil {
		t.Fatalf("best bins: %v", err)
	}
	b, err := e.BestPerformingBins(3)
	if err != nil {
		t.Fatalf("best bins: %v", err)
	}
	for i := range a {
		if a[i].Weight != b[i].Weight || a[i].Visits != b[i].Visits {
			t.Fatalf("query mutated state: %+v vs %+v", a[i], b[i])
		}
	}
	if a[0].Coordinate[0] != 2 {
		t.Fatalf("expected bin 2 on top, got %+v", a[0])
	}
}

func TestGenerationAdvancesOnRoundRobinWrap(t *testing.T) {
	space := testSpace(t)
	cfg := Config{PopulationSize: 10, GenomeLength: 2}
	e, err := New(space, cfg, rand.New(rand.NewSource(5)))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	steps := cfg.PopulationSize * cfg.GenomeLength
	var last []float64
	for i := 0; i < steps; i++ {
		if e.Generation() != 0 {
			t.Fatalf("generation advanced early at step %d", i)
		}
		params, err := e.Step()
		if err != nil {
			t.Fatalf("step: %v", err)
		}
		last = params
		if i < steps-1 {
			if err := e.AddExperiment(0, params...); err != nil {
				t.Fatalf("add: %v", err)
			}
		}
	}
	// the pass is complete but its final result is still outstanding
	if e.Generation() != 0 {
		t.Fatalf("generation advanced before the last result was reported: %d", e.Generation())
	}
	if err := e.AddExperiment(0, last...); err != nil {
		t.Fatalf("add: %v", err)
	}
	if e.Generation() != 1 {
		t.Fatalf("generation after wrap: %d", e.Generation())
	}
}

func TestGenerationCadence(t *testing.T) {
	space := testSpace(t)
	e, err := New(space, Config{GenerationCadence: 5}, rand.New(rand.NewSource(5)))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	for i := 0; i < 5; i++ {
		if _, err := e.Step(); err != nil {
			t.Fatalf("step: %v", err)
		}
		if err := e.AddExperiment(0, 10); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	if e.Generation() != 1 {
		t.Fatalf("generation after cadence: %d", e.Generation())
	}
}

func TestSelectorByName(t *testing.T) {
	for _, name := range []string{"", "elite", "tournament"} {
		if _, err := SelectorByName(name); err != nil {
			t.Fatalf("selector %q: %v", name, err)
		}
	}
	if _, err := SelectorByName("roulette"); err == nil {
		t.Fatal("expected error for unknown selector")
	}
}

func TestTournamentSelectorPrefersHealthy(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	ranked := []*genome{
		{genes: []float64{0.1}, health: 10},
		{genes: []float64{0.2}, health: 5},
		{genes: []float64{0.3}, health: 1},
		{genes: []float64{0.4}, health: 0},
	}
	s := TournamentSelector{TournamentSize: 4, PoolSize: 4}
	for i := 0; i < 20; i++ {
		p, err := s.PickParent(rng, ranked, 4)
		if err != nil {
			t.Fatalf("pick: %v", err)
		}
		if p.health != 10 {
			t.Fatalf("full tournament must pick the healthiest, got %v", p.health)
		}
	}
}
