package stats

import (
	"context"
	"sync/atomic"
)

// MemoryRecorder keeps process-local decision counters.
type MemoryRecorder struct {
	allowed atomic.Int64
	denied  atomic.Int64
}

// NewMemoryRecorder creates a new in-memory recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

func (m *MemoryRecorder) Record(_ context.Context, event Event) error {
	if event.Admitted {
		m.allowed.Add(1)
	} else {
		m.denied.Add(1)
	}

	return nil
}

func (m *MemoryRecorder) Totals(_ context.Context) (Totals, error) {
	return Totals{
		Allowed: m.allowed.Load(),
		Denied:  m.denied.Load(),
	}, nil
}
