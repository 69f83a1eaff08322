package edit

import (
	"fmt"
	"sort"
	"sync"
)

// MinSampleSize is the minimum number of recorded attempts for a path before
// HighFailureRate may trigger. Below it the monitor stays silent.
const MinSampleSize = 3

// Stats holds the per-path rolling counters. Counters are monotonic for the
// process lifetime and reset only by an explicit Clear.
type Stats struct {
	FailureCount           int            `json:"failureCount"`
	TotalAttempts          int            `json:"totalAttempts"`
	FuzzyMatchSuccessCount int            `json:"fuzzyMatchSuccessCount"`
	FuzzyAttempts          int            `json:"fuzzyAttempts"`
	FailureReasons         map[string]int `json:"failureReasons"`
}

func newStats() *Stats {
	return &Stats{FailureReasons: make(map[string]int)}
}

func (s *Stats) copy() Stats {
	out := *s
	out.FailureReasons = make(map[string]int, len(s.FailureReasons))
	for k, v := range s.FailureReasons {
		out.FailureReasons[k] = v
	}
	return out
}

// Monitor tracks edit outcomes per path. Safe for concurrent use; updates
// are atomic per entry, there is no global coordination beyond the map lock.
type Monitor struct {
	mu     sync.RWMutex
	byPath map[string]*Stats
}

// NewMonitor creates an empty monitor.
func NewMonitor() *Monitor {
	return &Monitor{byPath: make(map[string]*Stats)}
}

func (m *Monitor) stats(path string) *Stats {
	st, ok := m.byPath[path]
	if !ok {
		st = newStats()
		m.byPath[path] = st
	}
	return st
}

// RecordFailure records a failed edit attempt with a short machine-readable
// reason ("no_match", "not_unique", "fuzzy_below_threshold", ...).
func (m *Monitor) RecordFailure(path, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.stats(path)
	st.TotalAttempts++
	st.FailureCount++
	st.FailureReasons[reason]++
}

// RecordSuccess records an exact-match edit success.
func (m *Monitor) RecordSuccess(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats(path).TotalAttempts++
}

// RecordFuzzyMatchSuccess records an edit that only succeeded through
// approximate matching, with the similarity score that was accepted.
func (m *Monitor) RecordFuzzyMatchSuccess(path string, similarity float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.stats(path)
	st.TotalAttempts++
	st.FuzzyMatchSuccessCount++
	_ = similarity // retained in the call signature for trace consumers
}

// RecordFuzzyAttempt counts one fuzzy matching attempt for path and returns
// the running total, letting callers enforce an explicit cap.
func (m *Monitor) RecordFuzzyAttempt(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.stats(path)
	st.FuzzyAttempts++
	return st.FuzzyAttempts
}

// HighFailureRate reports whether edits against path are failing at or above
// threshold. It requires at least MinSampleSize attempts before triggering,
// so a single early failure cannot flip it.
func (m *Monitor) HighFailureRate(path string, threshold float64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.byPath[path]
	if !ok || st.TotalAttempts < MinSampleSize {
		return false
	}
	return float64(st.FailureCount)/float64(st.TotalAttempts) >= threshold
}

// StatsFor returns a copy of the counters for path.
func (m *Monitor) StatsFor(path string) (Stats, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.byPath[path]
	if !ok {
		return Stats{}, false
	}
	return st.copy(), true
}

// Paths returns every tracked path, sorted for stable output.
func (m *Monitor) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	paths := make([]string, 0, len(m.byPath))
	for p := range m.byPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Recommendations returns ordered textual hints for path, most relevant
// first. An empty path aggregates over every tracked path.
func (m *Monitor) Recommendations(path string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	agg := newStats()
	if path == "" {
		for _, st := range m.byPath {
			agg.FailureCount += st.FailureCount
			agg.TotalAttempts += st.TotalAttempts
			agg.FuzzyMatchSuccessCount += st.FuzzyMatchSuccessCount
			for r, c := range st.FailureReasons {
				agg.FailureReasons[r] += c
			}
		}
	} else if st, ok := m.byPath[path]; ok {
		agg = st
	} else {
		return nil
	}

	var recs []string
	for _, reason := range reasonsByCount(agg.FailureReasons) {
		switch reason {
		case "no_match":
			recs = append(recs, "old text was not found; re-read the file and copy the exact text to replace")
		case "not_unique":
			recs = append(recs, "old text matched more than once; include more surrounding context or set replace_all")
		case "fuzzy_below_threshold":
			recs = append(recs, "closest fuzzy match was below the similarity threshold; the file content has likely changed")
		case "fuzzy_exhausted":
			recs = append(recs, "fuzzy matching attempts are exhausted for this file; rewrite the region with write_file instead")
		default:
			recs = append(recs, fmt.Sprintf("repeated edit failures (%s); consider re-reading the file", reason))
		}
	}
	if agg.FuzzyMatchSuccessCount > 0 {
		recs = append(recs, "recent edits only matched approximately; quoted text drifts from the file, re-read before further edits")
	}
	return recs
}

// Clear resets all counters. Intended for test isolation.
func (m *Monitor) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byPath = make(map[string]*Stats)
}

// reasonsByCount orders failure reasons by descending count, ties broken
// lexicographically for deterministic output.
func reasonsByCount(reasons map[string]int) []string {
	out := make([]string, 0, len(reasons))
	for r := range reasons {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if reasons[out[i]] != reasons[out[j]] {
			return reasons[out[i]] > reasons[out[j]]
		}
		return out[i] < out[j]
	})
	return out
}
