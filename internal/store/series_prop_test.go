package store

import (
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/xtxerr/vigil/internal/types"
)

// Property: whatever order entries arrive in, queries return them sorted
// ascending by timestamp and never lose or invent records.
func TestQueryLogs_SortedUnderArbitraryInsertion(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := New()
		sources := []string{"api", "db", "cache"}

		n := rapid.IntRange(0, 200).Draw(t, "n")
		for i := 0; i < n; i++ {
			s.InsertLog(types.LogEntry{
				Source:    rapid.SampledFrom(sources).Draw(t, "source"),
				Timestamp: base.Add(time.Duration(rapid.IntRange(0, 3600).Draw(t, "offset")) * time.Second),
				Level:     types.LevelInfo,
				Message:   "x",
			})
		}

		got := s.QueryLogs(LogFilter{})
		if len(got) != n {
			t.Fatalf("result count = %d, want %d", len(got), n)
		}
		for i := 1; i < len(got); i++ {
			if got[i].Timestamp.Before(got[i-1].Timestamp) {
				t.Fatalf("order violated at %d", i)
			}
		}
	})
}

// Property: a window query equals filtering the full result by the bounds.
func TestQueryLogs_WindowMatchesLinearScan(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := New()
		n := rapid.IntRange(0, 100).Draw(t, "n")
		for i := 0; i < n; i++ {
			s.InsertLog(types.LogEntry{
				Source:    "api",
				Timestamp: base.Add(time.Duration(rapid.IntRange(0, 600).Draw(t, "offset")) * time.Second),
				Level:     types.LevelInfo,
				Message:   "x",
			})
		}

		fromOff := rapid.IntRange(0, 600).Draw(t, "from")
		toOff := rapid.IntRange(fromOff, 600).Draw(t, "to")
		from := base.Add(time.Duration(fromOff) * time.Second)
		to := base.Add(time.Duration(toOff) * time.Second)

		var want int
		for _, e := range s.QueryLogs(LogFilter{}) {
			if !e.Timestamp.Before(from) && !e.Timestamp.After(to) {
				want++
			}
		}

		got := s.QueryLogs(LogFilter{From: from, To: to})
		if len(got) != want {
			t.Fatalf("window count = %d, want %d", len(got), want)
		}
	})
}
