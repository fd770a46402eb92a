package store

import (
	"sort"
	"sync"
	"time"
)

// shard holds the time-ordered records of a single source.
// Records are kept sorted by timestamp; out-of-order inserts are placed
// by binary search, in-order inserts take the append fast path.
type shard[T any] struct {
	mu      sync.RWMutex
	records []T
}

// series is a source-sharded, time-ordered collection. Writers to
// different sources contend only on their own shard lock; the outer
// lock is held briefly to resolve the shard.
type series[T any] struct {
	mu     sync.RWMutex
	shards map[string]*shard[T]

	// ts and src extract the ordering key and shard key of a record.
	ts  func(*T) time.Time
	src func(*T) string
}

func newSeries[T any](ts func(*T) time.Time, src func(*T) string) *series[T] {
	return &series[T]{
		shards: make(map[string]*shard[T]),
		ts:     ts,
		src:    src,
	}
}

// getShard returns the shard for a source, creating it if needed.
func (s *series[T]) getShard(source string) *shard[T] {
	s.mu.RLock()
	sh, ok := s.shards[source]
	s.mu.RUnlock()
	if ok {
		return sh
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sh, ok = s.shards[source]; ok {
		return sh
	}
	sh = &shard[T]{}
	s.shards[source] = sh
	return sh
}

// insert places a record at its timestamp position within its source shard.
func (s *series[T]) insert(rec T) {
	sh := s.getShard(s.src(&rec))
	t := s.ts(&rec)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	n := len(sh.records)
	if n == 0 || !t.Before(s.ts(&sh.records[n-1])) {
		sh.records = append(sh.records, rec)
		return
	}

	// First position whose timestamp is strictly after t; equal timestamps
	// keep arrival order.
	idx := sort.Search(n, func(i int) bool {
		return s.ts(&sh.records[i]).After(t)
	})

	sh.records = append(sh.records, rec)
	copy(sh.records[idx+1:], sh.records[idx:])
	sh.records[idx] = rec
}

// window returns a copy of the records of one shard with from <= ts <= to.
// Zero bounds mean unbounded. Cost is proportional to the matched window.
func (sh *shard[T]) window(s *series[T], from, to time.Time) []T {
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	n := len(sh.records)
	lo := 0
	if !from.IsZero() {
		lo = sort.Search(n, func(i int) bool {
			return !s.ts(&sh.records[i]).Before(from)
		})
	}
	hi := n
	if !to.IsZero() {
		hi = sort.Search(n, func(i int) bool {
			return s.ts(&sh.records[i]).After(to)
		})
	}
	if lo >= hi {
		return nil
	}

	out := make([]T, hi-lo)
	copy(out, sh.records[lo:hi])
	return out
}

// collect gathers the [from, to] window across the selected shards and
// returns the union ordered ascending by timestamp. An empty source selects
// every shard.
func (s *series[T]) collect(source string, from, to time.Time) []T {
	if source != "" {
		s.mu.RLock()
		sh, ok := s.shards[source]
		s.mu.RUnlock()
		if !ok {
			return nil
		}
		return sh.window(s, from, to)
	}

	s.mu.RLock()
	shards := make([]*shard[T], 0, len(s.shards))
	for _, sh := range s.shards {
		shards = append(shards, sh)
	}
	s.mu.RUnlock()

	var out []T
	for _, sh := range shards {
		out = append(out, sh.window(s, from, to)...)
	}

	// Each shard window is sorted; a stable sort keeps per-source arrival
	// order among equal timestamps.
	sort.SliceStable(out, func(i, j int) bool {
		return s.ts(&out[i]).Before(s.ts(&out[j]))
	})
	return out
}

// len returns the total number of records across all shards.
func (s *series[T]) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		total += len(sh.records)
		sh.mu.RUnlock()
	}
	return total
}

// timeRange returns the oldest and newest timestamps present.
// ok is false when the series is empty.
func (s *series[T]) timeRange() (oldest, newest time.Time, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sh := range s.shards {
		sh.mu.RLock()
		if len(sh.records) > 0 {
			first := s.ts(&sh.records[0])
			last := s.ts(&sh.records[len(sh.records)-1])
			if !ok || first.Before(oldest) {
				oldest = first
			}
			if !ok || last.After(newest) {
				newest = last
			}
			ok = true
		}
		sh.mu.RUnlock()
	}
	return oldest, newest, ok
}

// evictBefore drops all records older than the cutoff.
// Returns the number of records removed.
func (s *series[T]) evictBefore(cutoff time.Time) int {
	s.mu.RLock()
	shards := make([]*shard[T], 0, len(s.shards))
	for _, sh := range s.shards {
		shards = append(shards, sh)
	}
	s.mu.RUnlock()

	evicted := 0
	for _, sh := range shards {
		sh.mu.Lock()
		idx := sort.Search(len(sh.records), func(i int) bool {
			return !s.ts(&sh.records[i]).Before(cutoff)
		})
		if idx > 0 {
			remaining := make([]T, len(sh.records)-idx)
			copy(remaining, sh.records[idx:])
			sh.records = remaining
			evicted += idx
		}
		sh.mu.Unlock()
	}
	return evicted
}
