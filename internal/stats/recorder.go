package stats

import (
	"context"
	"time"
)

// Event describes one admission decision.
type Event struct {
	Key      string
	Admitted bool
	Method   string
	Path     string
	At       time.Time
}

// Totals holds cumulative decision counts.
type Totals struct {
	Allowed int64 `json:"allowed"`
	Denied  int64 `json:"denied"`
}

// Recorder defines the interface for decision counters.
type Recorder interface {
	Record(ctx context.Context, event Event) error
	Totals(ctx context.Context) (Totals, error)
}
