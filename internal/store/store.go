// Package store persists the append-only experiment log of a campaign.
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"faultline/internal/model"
)

// ErrStorageFault wraps append failures. Storage faults are recoverable:
// the orchestrator retries and, if retries exhaust, drops the record with
// an explicit warning instead of crashing the campaign.
var ErrStorageFault = errors.New("store: storage fault")

// Store is the append-only experiment log. Append assigns the monotonic id
// and returns it; All returns records in insertion order.
type Store interface {
	Init(ctx context.Context) error
	Append(ctx context.Context, exp model.Experiment) (int64, error)
	All(ctx context.Context) ([]model.Experiment, error)
	Count(ctx context.Context) (int64, error)
	LastID(ctx context.Context) (int64, error)
}

var columnName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidateColumns checks the per-dimension column names used by persistent
// backends.
func ValidateColumns(columns []string) error {
	if len(columns) == 0 {
		return errors.New("store: at least one parameter column is required")
	}
	seen := make(map[string]bool, len(columns))
	for _, c := range columns {
		if !columnName.MatchString(c) {
			return fmt.Errorf("store: invalid column name %q", c)
		}
		if seen[c] {
			return fmt.Errorf("store: duplicate column name %q", c)
		}
		seen[c] = true
	}
	return nil
}
