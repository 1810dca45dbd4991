package batch

import (
	"sort"
	"sync"
	"time"
)

// Quality aggregates data-quality gaps across the run.
type Quality struct {
	MissingLabels   int `json:"missing_labels"`
	MissingContexts int `json:"missing_contexts"`
	NoUsableContent int `json:"no_usable_content"`
	XBRLFallbacks   int `json:"xbrl_fallbacks"` // bad instance, spreadsheet used instead
}

// Summary is produced by every run, including runs that abort.
type Summary struct {
	RunID     string         `json:"run_id"`
	Input     int            `json:"input"`
	Processed int            `json:"processed"`
	Persisted int            `json:"persisted"`
	Replaced  int            `json:"replaced"`
	Skipped   int            `json:"skipped"`
	Rejected  int            `json:"rejected"`
	Resumed   int            `json:"resumed"`
	Reasons   map[string]int `json:"reasons"`
	Sources   map[string]int `json:"sources"`
	Quality   Quality        `json:"quality"`
	Aborted   string         `json:"aborted,omitempty"`
	Started   time.Time      `json:"started"`
	Finished  time.Time      `json:"finished"`
}

// Duration is the wall time of the run.
func (s Summary) Duration() time.Duration { return s.Finished.Sub(s.Started) }

// SortedReasons returns reason keys ordered by descending count, then name.
func (s Summary) SortedReasons() []string {
	keys := make([]string, 0, len(s.Reasons))
	for k := range s.Reasons {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if s.Reasons[keys[i]] != s.Reasons[keys[j]] {
			return s.Reasons[keys[i]] > s.Reasons[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}

type tally struct {
	mu  sync.Mutex
	sum Summary
}

func (t *tally) add(o Outcome, replaced bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := &t.sum
	s.Processed++
	s.Quality.MissingLabels += o.MissingLabels
	s.Quality.MissingContexts += o.MissingContexts
	switch o.State {
	case Persisted:
		s.Persisted++
		if replaced {
			s.Replaced++
		}
		s.Sources[string(o.Source)]++
	case Rejected:
		s.Rejected++
		s.Reasons["rejected:"+o.Reason]++
	default:
		s.Skipped++
		s.Reasons[o.Reason]++
		if o.Reason == ReasonNoUsableContent {
			s.Quality.NoUsableContent++
		}
	}
}

func (t *tally) persisted() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sum.Persisted
}

func (t *tally) fallback() {
	t.mu.Lock()
	t.sum.Quality.XBRLFallbacks++
	t.mu.Unlock()
}

func (t *tally) snapshot() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.sum
	s.Reasons = make(map[string]int, len(t.sum.Reasons))
	for k, v := range t.sum.Reasons {
		s.Reasons[k] = v
	}
	s.Sources = make(map[string]int, len(t.sum.Sources))
	for k, v := range t.sum.Sources {
		s.Sources[k] = v
	}
	return s
}
