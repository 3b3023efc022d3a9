package cache

import "sync/atomic"

// stats tracks cache counters.
type stats struct {
	hits               atomic.Int64
	misses             atomic.Int64
	sourceCalls        atomic.Int64
	coalesced          atomic.Int64
	staleWrites        atomic.Int64
	evictions          atomic.Int64
	flushes            atomic.Int64
	flushShortCircuits atomic.Int64
	rootsCleared       atomic.Int64
}

// Stats is a point-in-time copy of cache statistics.
type Stats struct {
	Hits        int64
	Misses      int64
	SourceCalls int64
	// Coalesced counts misses answered by a sub-request already in flight.
	Coalesced          int64
	StaleWrites        int64
	Evictions          int64
	Flushes            int64
	FlushShortCircuits int64
	RootsCleared       int64

	// Slots is the number of occupied slots; the per-kind counts add up to it.
	Slots        int
	DataEntries  int
	FlushMarkers int
	RootMarkers  int
}

// HitRate returns the cache hit rate as a value between 0 and 1.
// Returns 0 if there have been no accesses.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

func (s *stats) snapshot() Stats {
	return Stats{
		Hits:               s.hits.Load(),
		Misses:             s.misses.Load(),
		SourceCalls:        s.sourceCalls.Load(),
		Coalesced:          s.coalesced.Load(),
		StaleWrites:        s.staleWrites.Load(),
		Evictions:          s.evictions.Load(),
		Flushes:            s.flushes.Load(),
		FlushShortCircuits: s.flushShortCircuits.Load(),
		RootsCleared:       s.rootsCleared.Load(),
	}
}
