// Package stats tracks per-server operation counters.
package stats

import "go.uber.org/atomic"

type Stats struct {
	gets    atomic.Int64
	sets    atomic.Int64
	deletes atomic.Int64
	hits    atomic.Int64
	misses  atomic.Int64
	errors  atomic.Int64
}

func New() *Stats {
	return &Stats{}
}

func (s *Stats) RecordGet(hit bool) {
	s.gets.Inc()
	if hit {
		s.hits.Inc()
	} else {
		s.misses.Inc()
	}
}

func (s *Stats) RecordSet() {
	s.sets.Inc()
}

func (s *Stats) RecordDelete() {
	s.deletes.Inc()
}

func (s *Stats) RecordError() {
	s.errors.Inc()
}

// Snapshot returns a point-in-time copy of all counters. It is not atomic
// across counters.
func (s *Stats) Snapshot() map[string]int64 {
	return map[string]int64{
		"gets":    s.gets.Load(),
		"sets":    s.sets.Load(),
		"deletes": s.deletes.Load(),
		"hits":    s.hits.Load(),
		"misses":  s.misses.Load(),
		"errors":  s.errors.Load(),
	}
}
