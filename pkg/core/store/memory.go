package store

import (
	"context"
	"sort"
	"sync"

	"edgar_facts/pkg/models"
)

// MemorySink keeps records in a map. Used for dry runs and tests.
type MemorySink struct {
	mu      sync.Mutex
	records map[string]*models.FilingRecord
	writes  int
}

func NewMemorySink() *MemorySink {
	return &MemorySink{records: make(map[string]*models.FilingRecord)}
}

func (s *MemorySink) Upsert(ctx context.Context, rec *models.FilingRecord) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return 0, sinkErr(rec.Identity, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := rec.Identity.Key()
	var stored *models.Version
	if cur, ok := s.records[key]; ok {
		v := cur.Version()
		stored = &v
	}
	outcome := decide(stored, rec.Version())
	if outcome != Unchanged {
		cp := *rec
		s.records[key] = &cp
		s.writes++
	}
	return outcome, nil
}

// Get returns the stored record for id.
func (s *MemorySink) Get(id models.FilingIdentity) (*models.FilingRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id.Key()]
	return rec, ok
}

// Len returns the number of identities stored.
func (s *MemorySink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Writes counts upserts that changed the store.
func (s *MemorySink) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// All returns the stored records ordered by identity key.
func (s *MemorySink) All() []*models.FilingRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.FilingRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity.Key() < out[j].Identity.Key() })
	return out
}

func (s *MemorySink) Close() error { return nil }
