package ingest

import (
	"os"
	"path/filepath"
	"strings"

	"edgar_facts/pkg/models"

	"github.com/rotisserie/eris"
)

// SubmissionCache keeps raw submissions on disk so a re-run does not hit the
// archive again.
type SubmissionCache struct {
	cacheDir string
}

// NewSubmissionCache creates a cache rooted at dir.
func NewSubmissionCache(dir string) *SubmissionCache {
	os.MkdirAll(dir, 0755)
	return &SubmissionCache{cacheDir: dir}
}

// filePath mirrors the archive path under the cache directory
func (c *SubmissionCache) filePath(id models.FilingID) string {
	rel := strings.TrimPrefix(string(id), "/")
	rel = strings.ReplaceAll(rel, "..", "_")
	return filepath.Join(c.cacheDir, filepath.FromSlash(rel))
}

// Get returns the cached bytes of a submission.
func (c *SubmissionCache) Get(id models.FilingID) ([]byte, bool) {
	data, err := os.ReadFile(c.filePath(id))
	if err != nil || len(data) == 0 {
		return nil, false
	}
	return data, true
}

// Set stores a submission. The write goes through a temp file so a crash never
// leaves a truncated entry behind.
func (c *SubmissionCache) Set(id models.FilingID, data []byte) error {
	path := c.filePath(id)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return eris.Wrap(err, "ingest: create cache dir")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return eris.Wrap(err, "ingest: write cache entry")
	}
	return eris.Wrap(os.Rename(tmp, path), "ingest: commit cache entry")
}

// Has checks if a submission is cached.
func (c *SubmissionCache) Has(id models.FilingID) bool {
	_, err := os.Stat(c.filePath(id))
	return err == nil
}

// Dir returns the cache directory path.
func (c *SubmissionCache) Dir() string {
	return c.cacheDir
}
