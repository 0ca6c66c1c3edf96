package ratelimit

import "time"

// Resolution tells how the record used for an admission was obtained.
type Resolution int

const (
	// ResolutionFound means a live record already existed for the key.
	ResolutionFound Resolution = iota
	// ResolutionCreated means no record existed and a fresh one was opened.
	ResolutionCreated
	// ResolutionReplaced means the stored record had expired and was renewed.
	ResolutionReplaced
)

func (r Resolution) String() string {
	switch r {
	case ResolutionFound:
		return "found"
	case ResolutionCreated:
		return "created"
	case ResolutionReplaced:
		return "replaced"
	default:
		return "unknown"
	}
}

// Admission is the outcome of a single check-and-decrement.
type Admission struct {
	Admitted       bool
	RemainingAfter uint64
	ResetSeconds   int
	Resolution     Resolution
}

// Entry is one key/record pair from a store snapshot.
type Entry struct {
	Key    string
	Record Record
}

// Store defines the interface for quota record storage.
type Store interface {
	// TryAdmit resolves the record for key, renewing it when absent or expired,
	// consumes one unit if any remain and publishes the result. The whole
	// sequence is atomic with respect to other callers using the same key.
	TryAdmit(key string, limit uint64, refreshInterval time.Duration, now time.Time) Admission

	// Snapshot returns a point-in-time copy of every stored record.
	Snapshot() []Entry

	// Remove deletes the record for key. Removing a missing key is a no-op.
	Remove(key string)

	// RemoveExpired deletes the record for key only if it is still expired at now.
	RemoveExpired(key string, now time.Time) bool

	// Len returns the number of stored records.
	Len() int
}

// Admit is the resolve-or-create and check-and-decrement step shared by store
// implementations. Callers must hold whatever exclusion protects current and
// publish the returned record before releasing it.
func Admit(current Record, found bool, limit uint64, refreshInterval time.Duration, now time.Time) (Record, Admission) {
	resolution := ResolutionFound

	switch {
	case !found:
		current = NewRecord(limit, refreshInterval, now)
		resolution = ResolutionCreated
	case current.IsExpired(now):
		current = NewRecord(limit, refreshInterval, now)
		resolution = ResolutionReplaced
	}

	if current.Remaining == 0 {
		return current, Admission{
			Admitted:     false,
			ResetSeconds: current.ResetSeconds(now),
			Resolution:   resolution,
		}
	}

	current.Remaining--

	return current, Admission{
		Admitted:       true,
		RemainingAfter: current.Remaining,
		ResetSeconds:   current.ResetSeconds(now),
		Resolution:     resolution,
	}
}
