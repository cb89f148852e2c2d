package common

import (
	"sync"
)

// Stats is a set of named counters safe for concurrent use.
type Stats struct {
	counts map[string]int64
	mu     sync.Mutex
}

func NewStats() *Stats {
	return &Stats{
		counts: map[string]int64{},
		mu:     sync.Mutex{},
	}
}

func (s *Stats) Incr(key string) {
	s.Add(key, 1)
}

func (s *Stats) Add(key string, val int64) {
	s.mu.Lock()
	s.counts[key] += val
	s.mu.Unlock()
}

func (s *Stats) Get(key string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[key]
}

// Snapshot returns a copy of all counters.
func (s *Stats) Snapshot() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := make(map[string]int64, len(s.counts))
	for k, v := range s.counts {
		res[k] = v
	}
	return res
}
