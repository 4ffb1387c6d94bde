package search

import "math/rand"

// genome is one candidate exploration strategy. Each gene is a value in
// [0, 1) expressing one flat bin of the parameter space; the genome length
// is independent of the bin count, so crossover and mutation recombine bin
// selections rather than raw parameter values.
type genome struct {
	genes  []float64
	health float64
	age    int
}

func randomGenome(length int, rng *rand.Rand) *genome {
	g := &genome{genes: make([]float64, length)}
	for i := range g.genes {
		g.genes[i] = rng.Float64()
	}
	return g
}

// breed performs uniform crossover: the child starts as a copy of a and
// takes each gene from b with probability one half.
func breed(a, b *genome, rng *rand.Rand) *genome {
	child := &genome{genes: append([]float64(nil), a.genes...)}
	for i := range child.genes {
		if rng.Intn(2) == 1 {
			child.genes[i] = b.genes[i]
		}
	}
	return child
}

// mutate rerolls a single randomly chosen gene.
func (g *genome) mutate(rng *rand.Rand) {
	g.genes[rng.Intn(len(g.genes))] = rng.Float64()
}
