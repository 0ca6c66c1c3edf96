package store

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/serroba/quota-gate/internal/ratelimit"
)

// DefaultShards is the shard count used when a non-positive count is requested.
const DefaultShards = 64

// QuotaMemoryStore is an in-memory implementation of ratelimit.Store.
// Keys are spread over shards; each shard's mutex covers the full
// read-decide-write sequence for its keys.
type QuotaMemoryStore struct {
	shards []*quotaShard
}

type quotaShard struct {
	mu      sync.Mutex
	records map[string]ratelimit.Record
}

// NewQuotaMemoryStore creates a new in-memory quota store with the given shard count.
func NewQuotaMemoryStore(shards int) *QuotaMemoryStore {
	if shards <= 0 {
		shards = DefaultShards
	}

	s := &QuotaMemoryStore{shards: make([]*quotaShard, shards)}
	for i := range s.shards {
		s.shards[i] = &quotaShard{records: make(map[string]ratelimit.Record)}
	}

	return s
}

func (s *QuotaMemoryStore) TryAdmit(
	key string,
	limit uint64,
	refreshInterval time.Duration,
	now time.Time,
) ratelimit.Admission {
	shard := s.shardFor(key)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	current, found := shard.records[key]
	next, adm := ratelimit.Admit(current, found, limit, refreshInterval, now)
	shard.records[key] = next

	return adm
}

func (s *QuotaMemoryStore) Snapshot() []ratelimit.Entry {
	entries := make([]ratelimit.Entry, 0, s.Len())

	for _, shard := range s.shards {
		shard.mu.Lock()
		for key, rec := range shard.records {
			entries = append(entries, ratelimit.Entry{Key: key, Record: rec})
		}
		shard.mu.Unlock()
	}

	return entries
}

func (s *QuotaMemoryStore) Remove(key string) {
	shard := s.shardFor(key)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	delete(shard.records, key)
}

func (s *QuotaMemoryStore) RemoveExpired(key string, now time.Time) bool {
	shard := s.shardFor(key)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	rec, ok := shard.records[key]
	if !ok || !rec.IsExpired(now) {
		return false
	}

	delete(shard.records, key)

	return true
}

func (s *QuotaMemoryStore) Len() int {
	n := 0

	for _, shard := range s.shards {
		shard.mu.Lock()
		n += len(shard.records)
		shard.mu.Unlock()
	}

	return n
}

func (s *QuotaMemoryStore) shardFor(key string) *quotaShard {
	return s.shards[xxhash.Sum64String(key)%uint64(len(s.shards))]
}
