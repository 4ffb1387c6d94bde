// Package search decides which parameter tuple to try next. A fixed-size
// population of genomes tracks bins of the discretized parameter space;
// outcome weights reported per experiment steer the population toward
// productive regions while a visit malus deprioritizes exhausted ones.
package search

import (
	"fmt"
	"math/rand"
	"sort"

	"faultline/internal/paramspace"
)

const breedCount = 4

// Config tunes the population. Zero values select the defaults.
type Config struct {
	// PopulationSize is the number of genomes evolved simultaneously.
	// Minimum 10 so a generation step has distinct slots for children,
	// mutants, and random replacements.
	PopulationSize int
	// GenomeLength is the number of bins each genome tracks. Larger
	// parameter spaces warrant longer genomes.
	GenomeLength int
	// MalusFactor in [0, 1] penalizes revisits: a bin's effective weight is
	// its accumulated weight minus MalusFactor times its visit count. The
	// same factor, renormalized by genome length, penalizes genomes that
	// track one bin more than once.
	MalusFactor float64
	// MaxAge is the generation count after which a genome is replaced with
	// a random one.
	MaxAge int
	// GenerationCadence, when positive, advances the generation every
	// GenerationCadence reported experiments. When zero the generation
	// advances once the experiment closing a full round-robin pass over all
	// genomes and genes is reported.
	GenerationCadence int
	// Selector picks breeding parents. Defaults to EliteSelector.
	Selector Selector
}

func (c *Config) applyDefaults() {
	if c.PopulationSize == 0 {
		c.PopulationSize = 10
	}
	if c.GenomeLength == 0 {
		c.GenomeLength = 20
	}
	if c.MaxAge == 0 {
		c.MaxAge = 10
	}
	if c.Selector == nil {
		c.Selector = EliteSelector{}
	}
}

// BinStat reports one bin's standing for progress queries.
type BinStat struct {
	Coordinate paramspace.Coordinate
	Weight     float64 // effective weight, malus applied
	Visits     int64
}

// Engine is the adaptive sampler. It is not safe for concurrent use; the
// campaign loop is single-threaded and owns it exclusively.
type Engine struct {
	space *paramspace.Space
	cfg   Config
	rng   *rand.Rand

	weights []float64 // accumulated weight per flat bin
	visits  []int64

	pop         []*genome
	curGenome   int
	curGene     int
	reported    int
	generation  int
	wrapPending bool
}

func New(space *paramspace.Space, cfg Config, rng *rand.Rand) (*Engine, error) {
	if space == nil {
		return nil, fmt.Errorf("parameter space is required")
	}
	if rng == nil {
		return nil, fmt.Errorf("random source is required")
	}
	cfg.applyDefaults()
	if cfg.PopulationSize < 10 {
		return nil, fmt.Errorf("population size %d too small, need at least 10", cfg.PopulationSize)
	}
	if cfg.GenomeLength < 1 {
		return nil, fmt.Errorf("genome length must be positive, got %d", cfg.GenomeLength)
	}
	if cfg.MalusFactor < 0 || cfg.MalusFactor > 1 {
		return nil, fmt.Errorf("malus factor %v out of range [0, 1]", cfg.MalusFactor)
	}

	e := &Engine{
		space:   space,
		cfg:     cfg,
		rng:     rng,
		weights: make([]float64, space.Cardinality()),
		visits:  make([]int64, space.Cardinality()),
		pop:     make([]*genome, cfg.PopulationSize),
	}
	for i := range e.pop {
		e.pop[i] = randomGenome(cfg.GenomeLength, rng)
	}
	return e, nil
}

// Step returns the parameter tuple for the next trial: the current genome's
// current gene is expressed into a bin and a uniformly jittered point inside
// that bin is returned. Step never incorporates results itself; outcomes
// enter through AddExperiment only.
func (e *Engine) Step() ([]float64, error) {
	g := e.pop[e.curGenome]
	bin := e.expressGene(g.genes[e.curGene])
	coord, err := e.space.CoordinateOf(bin)
	if err != nil {
		return nil, fmt.Errorf("express gene: %w", err)
	}
	params, err := e.space.PointIn(coord, e.rng)
	if err != nil {
		return nil, fmt.Errorf("sample bin: %w", err)
	}

	e.curGene++
	if e.curGene >= e.cfg.GenomeLength {
		e.curGene = 0
		e.curGenome++
		if e.curGenome >= e.cfg.PopulationSize {
			e.curGenome = 0
			// the population is only replaced once the result of this
			// step's experiment has been reported
			if e.cfg.GenerationCadence <= 0 {
				e.wrapPending = true
			}
		}
	}
	return params, nil
}

// AddExperiment accumulates an outcome weight into the bin the parameters
// fall in. An out-of-bounds tuple is a caller bug: tuples produced by Step
// are always in bounds, so the error is returned rather than swallowed and
// should abort the campaign.
func (e *Engine) AddExperiment(weight float64, params ...float64) error {
	bin, err := e.space.BinOf(params...)
	if err != nil {
		return fmt.Errorf("add experiment: %w", err)
	}
	e.weights[bin] += weight
	e.visits[bin]++

	if e.cfg.GenerationCadence > 0 {
		e.reported++
		if e.reported%e.cfg.GenerationCadence == 0 {
			return e.advanceGeneration()
		}
	} else if e.wrapPending {
		e.wrapPending = false
		return e.advanceGeneration()
	}
	return nil
}

// Generation reports how many population replacements have occurred.
func (e *Engine) Generation() int { return e.generation }

// VisitCount reports how many experiments landed in the bin at coord.
func (e *Engine) VisitCount(coord paramspace.Coordinate) (int64, error) {
	flat, err := e.space.FlatOf(coord)
	if err != nil {
		return 0, err
	}
	return e.visits[flat], nil
}

// AccumulatedWeight reports the raw weight sum of the bin at coord.
func (e *Engine) AccumulatedWeight(coord paramspace.Coordinate) (float64, error) {
	flat, err := e.space.FlatOf(coord)
	if err != nil {
		return 0, err
	}
	return e.weights[flat], nil
}

// BestPerformingBins returns the n bins with the highest effective weight,
// best first. It never mutates engine state.
func (e *Engine) BestPerformingBins(n int) ([]BinStat, error) {
	if n <= 0 || n > e.space.Cardinality() {
		n = e.space.Cardinality()
	}
	order := make([]int, e.space.Cardinality())
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return e.effectiveWeight(order[a]) > e.effectiveWeight(order[b])
	})

	out := make([]BinStat, 0, n)
	for _, flat := range order[:n] {
		coord, err := e.space.CoordinateOf(flat)
		if err != nil {
			return nil, err
		}
		out = append(out, BinStat{
			Coordinate: coord,
			Weight:     e.effectiveWeight(flat),
			Visits:     e.visits[flat],
		})
	}
	return out, nil
}

// expressGene maps a gene in [0, 1) to a flat bin index.
func (e *Engine) expressGene(gene float64) int {
	bin := int(gene * float64(e.space.Cardinality()))
	if bin >= e.space.Cardinality() {
		bin = e.space.Cardinality() - 1
	}
	if bin < 0 {
		bin = 0
	}
	return bin
}

func (e *Engine) effectiveWeight(flat int) float64 {
	return e.weights[flat] - e.cfg.MalusFactor*float64(e.visits[flat])
}

// health sums the effective weights of the bins a genome tracks, then
// penalizes bins tracked more than once so the population spreads out.
func (e *Engine) health(g *genome) float64 {
	counts := make(map[int]int, len(g.genes))
	var h float64
	for _, gene := range g.genes {
		bin := e.expressGene(gene)
		h += e.effectiveWeight(bin)
		counts[bin]++
	}
	var duplicates int
	for _, c := range counts {
		if c > 1 {
			duplicates += c - 1
		}
	}
	h -= (e.cfg.MalusFactor / float64(e.cfg.GenomeLength)) * float64(duplicates) * h
	return h
}

func (e *Engine) rank() {
	for _, g := range e.pop {
		g.health = e.health(g)
	}
	sort.SliceStable(e.pop, func(a, b int) bool {
		return e.pop[a].health > e.pop[b].health
	})
}

// advanceGeneration is the explicit generation boundary: children of
// selected parents replace the worst genomes, two children are mutated, two
// weak genomes are replaced with random ones, and genomes past MaxAge are
// retired.
func (e *Engine) advanceGeneration() error {
	for _, g := range e.pop {
		g.age++
	}
	e.rank()

	n := len(e.pop)
	for i := 0; i < breedCount; i++ {
		a, err := e.cfg.Selector.PickParent(e.rng, e.pop, breedCount)
		if err != nil {
			return fmt.Errorf("pick parent: %w", err)
		}
		b, err := e.cfg.Selector.PickParent(e.rng, e.pop, breedCount)
		if err != nil {
			return fmt.Errorf("pick parent: %w", err)
		}
		e.pop[n-1-i] = breed(a, b, e.rng)
	}
	e.pop[n-1].mutate(e.rng)
	e.pop[n-3].mutate(e.rng)
	e.pop[n-breedCount-1] = randomGenome(e.cfg.GenomeLength, e.rng)
	e.pop[n-breedCount-2] = randomGenome(e.cfg.GenomeLength, e.rng)
	for i, g := range e.pop {
		if g.age > e.cfg.MaxAge {
			e.pop[i] = randomGenome(e.cfg.GenomeLength, e.rng)
		}
	}

	e.rank()
	e.generation++
	return nil
}
