package search

import (
	"fmt"
	"math/rand"
)

// Selector chooses breeding parents from genomes ranked best-first by health.
type Selector interface {
	Name() string
	PickParent(rng *rand.Rand, ranked []*genome, eliteCount int) (*genome, error)
}

// EliteSelector picks uniformly from the top elite set.
type EliteSelector struct{}

func (EliteSelector) Name() string {
	return "elite"
}

func (EliteSelector) PickParent(rng *rand.Rand, ranked []*genome, eliteCount int) (*genome, error) {
	if rng == nil {
		return nil, fmt.Errorf("random source is required")
	}
	if eliteCount <= 0 || eliteCount > len(ranked) {
		return nil, fmt.Errorf("invalid elite count: %d", eliteCount)
	}
	return ranked[rng.Intn(eliteCount)], nil
}

// TournamentSelector samples candidates and picks the best health among them.
type TournamentSelector struct {
	PoolSize       int
	TournamentSize int
}

func (TournamentSelector) Name() string {
	return "tournament"
}

func (s TournamentSelector) PickParent(rng *rand.Rand, ranked []*genome, eliteCount int) (*genome, error) {
	if rng == nil {
		return nil, fmt.Errorf("random source is required")
	}
	if eliteCount <= 0 || eliteCount > len(ranked) {
		return nil, fmt.Errorf("invalid elite count: %d", eliteCount)
	}

	poolSize := s.PoolSize
	if poolSize <= 0 {
		poolSize = eliteCount * 2
	}
	if poolSize < eliteCount {
		poolSize = eliteCount
	}
	if poolSize > len(ranked) {
		poolSize = len(ranked)
	}

	tournamentSize := s.TournamentSize
	if tournamentSize <= 0 {
		tournamentSize = 3
	}
	if tournamentSize > poolSize {
		tournamentSize = poolSize
	}

	// sample without replacement: a full tournament scans the whole pool
	entrants := rng.Perm(poolSize)[:tournamentSize]
	best := ranked[entrants[0]]
	for _, idx := range entrants[1:] {
		if ranked[idx].health > best.health {
			best = ranked[idx]
		}
	}
	return best, nil
}

// SelectorByName resolves the configured selection scheme.
func SelectorByName(name string) (Selector, error) {
	switch name {
	case "", "elite":
		return EliteSelector{}, nil
	case "tournament":
		return TournamentSelector{}, nil
	default:
		return nil, fmt.Errorf("unknown selector %q", name)
	}
}
