package model

import "time"

// Category tags a trial outcome. The single-letter values double as the
// color identifiers used by the progress reporter and external analyzers.
type Category string

const (
	// CategoryExpected marks the normal, unglitched target behavior.
	CategoryExpected Category = "G"
	// CategoryOK marks an error-free response that is not the expected one.
	CategoryOK Category = "C"
	// CategoryError marks a communication error or an empty response.
	CategoryError Category = "M"
	// CategoryTimeout marks a trial where the target never answered in time.
	CategoryTimeout Category = "Y"
	// CategoryWarning marks a degraded but recoverable condition.
	CategoryWarning Category = "O"
	// CategorySuccess marks a response that indicates a successful glitch.
	CategorySuccess Category = "R"
	// CategoryCorruption marks a response suggesting non-volatile memory was
	// damaged; the orchestrator must run target recovery before the next
	// trial.
	CategoryCorruption Category = "B"
)

// Classification is the result of mapping a raw target response to an
// outcome category and a fitness weight for the search engine.
type Classification struct {
	Category Category `json:"category"`
	Weight   float64  `json:"weight"`
}

// TriggerSource identifies which detector latched the trigger event.
type TriggerSource int

const (
	EdgeTrigger TriggerSource = iota
	PatternTrigger
)

func (s TriggerSource) String() string {
	switch s {
	case EdgeTrigger:
		return "edge"
	case PatternTrigger:
		return "pattern"
	default:
		return "unknown"
	}
}

// TriggerEvent is the zero-reference instant for a trial's delay countdown.
// Ticks is the hardware counter value at the latch; Observed is the host
// time the event was reported and is informational only.
type TriggerEvent struct {
	Ticks    uint64        `json:"ticks"`
	Source   TriggerSource `json:"source"`
	Observed time.Time     `json:"observed"`
}

// Experiment is the immutable record of one trial. It is created exactly
// once by the orchestrator and never mutated afterwards.
type Experiment struct {
	ID        int64     `json:"id"`
	Params    []float64 `json:"params"`
	Response  []byte    `json:"response"`
	Category  Category  `json:"category"`
	Weight    float64   `json:"weight"`
	Seeded    bool      `json:"seeded"`
	CreatedAt time.Time `json:"created_at"`
}
