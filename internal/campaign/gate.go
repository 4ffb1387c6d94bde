package campaign

import "faultline/internal/model"

// failGate watches recent outcomes and trips when too many unexpected
// responses accumulate within a look-back window. A tripped gate signals
// that the target is likely wedged and needs a recovery action.
type failGate struct {
	limit  int
	recent []bool // true = unexpected outcome
	next   int
	filled int
}

func newFailGate(limit, window int) *failGate {
	if limit <= 0 {
		return nil
	}
	if window < limit {
		window = limit
	}
	return &failGate{limit: limit, recent: make([]bool, window)}
}

// observe records one outcome and reports whether the gate tripped. Expected
// and ok responses count as healthy; everything else counts against the
// limit. A trip clears the window.
func (g *failGate) observe(cat model.Category) bool {
	if g == nil {
		return false
	}
	unexpected := cat != model.CategoryExpected && cat != model.CategoryOK
	g.recent[g.next] = unexpected
	g.next = (g.next + 1) % len(g.recent)
	if g.filled < len(g.recent) {
		g.filled++
	}

	var fails int
	for i := 0; i < g.filled; i++ {
		if g.recent[i] {
			fails++
		}
	}
	if fails >= g.limit {
		g.reset()
		return true
	}
	return false
}

func (g *failGate) reset() {
	for i := range g.recent {
		g.recent[i] = false
	}
	g.next = 0
	g.filled = 0
}
