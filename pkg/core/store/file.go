package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"edgar_facts/pkg/models"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// FileSink stores one JSON file per identity under
// <dir>/<cik>/<form>_<period>.json. It is the local fallback when no
// database is configured.
type FileSink struct {
	dir    string
	logger *zap.Logger

	mu sync.Mutex
}

// fileEntry wraps the record with bookkeeping written alongside it.
type fileEntry struct {
	Identity  models.FilingIdentity `json:"identity"`
	Version   models.Version        `json:"version"`
	Record    *models.FilingRecord  `json:"record"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// NewFileSink creates dir if needed. An unwritable directory is ErrSinkUnavailable.
func NewFileSink(dir string, logger *zap.Logger) (*FileSink, error) {
	if dir == "" {
		dir = filepath.Join(".cache", "edgar", "filings")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, eris.Wrapf(ErrSinkUnavailable, "create %s: %v", dir, err)
	}
	return &FileSink{dir: dir, logger: logger.With(zap.String("component", "file_sink"))}, nil
}

func (s *FileSink) Upsert(ctx context.Context, rec *models.FilingRecord) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return 0, sinkErr(rec.Identity, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.identityPath(rec.Identity)
	var stored *models.Version
	entry, err := s.loadEntry(path)
	switch {
	case err == nil:
		stored = &entry.Version
	case errors.Is(err, os.ErrNotExist):
	default:
		// unreadable entries are overwritten
		s.logger.Warn("discarding unreadable entry", zap.String("path", path), zap.Error(err))
	}

	outcome := decide(stored, rec.Version())
	if outcome == Unchanged {
		return outcome, nil
	}

	data, err := json.MarshalIndent(fileEntry{
		Identity:  rec.Identity,
		Version:   rec.Version(),
		Record:    rec,
		UpdatedAt: time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return 0, sinkErr(rec.Identity, eris.Wrap(err, "marshal record"))
	}
	if err := writeAtomic(path, data); err != nil {
		if _, statErr := os.Stat(s.dir); statErr != nil {
			return 0, sinkErr(rec.Identity, eris.Wrapf(ErrSinkUnavailable, "%s: %v", s.dir, statErr))
		}
		return 0, sinkErr(rec.Identity, err)
	}
	return outcome, nil
}

// Get loads the stored record for id.
func (s *FileSink) Get(id models.FilingIdentity) (*models.FilingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, err := s.loadEntry(s.identityPath(id))
	if err != nil {
		return nil, err
	}
	return entry.Record, nil
}

// List returns every stored record of cik, or of all companies when cik is empty.
func (s *FileSink) List(cik string) ([]*models.FilingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pattern := filepath.Join(s.dir, "*", "*.json")
	if cik != "" {
		pattern = filepath.Join(s.dir, cik, "*.json")
	}
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, eris.Wrap(err, "store: list entries")
	}
	var out []*models.FilingRecord
	for _, f := range files {
		entry, err := s.loadEntry(f)
		if err != nil {
			continue
		}
		out = append(out, entry.Record)
	}
	return out, nil
}

func (s *FileSink) Close() error { return nil }

func (s *FileSink) identityPath(id models.FilingIdentity) string {
	cik := sanitize(id.CIK)
	if cik == "" {
		cik = "unknown"
	}
	name := sanitize(id.FormType) + "_" + sanitize(id.PeriodOfReport) + ".json"
	return filepath.Join(s.dir, cik, name)
}

func (s *FileSink) loadEntry(path string) (*fileEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entry fileEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, eris.Wrapf(err, "store: decode %s", path)
	}
	return &entry, nil
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ', '.':
			return '_'
		}
		return r
	}, s)
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return eris.Wrap(err, "store: create entry dir")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return eris.Wrap(err, "store: write entry")
	}
	return eris.Wrap(os.Rename(tmp, path), "store: commit entry")
}
