// Package ingest loads raw submission bundles from the EDGAR archive, a local
// mirror or object storage, and enumerates filings from the archive's form indexes.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"edgar_facts/pkg/core/filing"
	"edgar_facts/pkg/models"

	"github.com/rotisserie/eris"
)

var (
	// ErrNotFound marks a filing that does not exist at the source. The filing is skipped.
	ErrNotFound = eris.New("ingest: filing not found")
	// ErrUnavailable marks a source that cannot serve any filing. The batch aborts.
	ErrUnavailable = eris.New("ingest: source unavailable")
)

// Loader fetches the raw bytes of one submission.
type Loader interface {
	Load(ctx context.Context, id models.FilingID) (*filing.FileContent, error)
}

// LoaderError carries the filing and whether a retry may succeed.
type LoaderError struct {
	FilingID  models.FilingID
	Retryable bool
	Err       error
}

func (e *LoaderError) Error() string {
	kind := "permanent"
	if e.Retryable {
		kind = "retryable"
	}
	return fmt.Sprintf("ingest: load %s (%s): %v", e.FilingID, kind, e.Err)
}

func (e *LoaderError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a LoaderError worth retrying.
func IsRetryable(err error) bool {
	var le *LoaderError
	return errors.As(err, &le) && le.Retryable
}

func retryable(id models.FilingID, err error) error {
	return &LoaderError{FilingID: id, Retryable: true, Err: err}
}

func permanent(id models.FilingID, err error) error {
	return &LoaderError{FilingID: id, Err: err}
}

// =============================================================================
// DIRECTORY LOADER - local mirror of the archive layout
// =============================================================================

// DirLoader reads filings from a directory laid out like the archive
// (<root>/edgar/data/<cik>/<accession>.txt).
type DirLoader struct {
	root string
}

// NewDirLoader returns a loader rooted at dir. A missing directory makes every
// load fail with ErrUnavailable.
func NewDirLoader(dir string) *DirLoader {
	return &DirLoader{root: dir}
}

func (l *DirLoader) Load(ctx context.Context, id models.FilingID) (*filing.FileContent, error) {
	if err := ctx.Err(); err != nil {
		return nil, retryable(id, err)
	}
	if _, err := os.Stat(l.root); err != nil {
		return nil, permanent(id, eris.Wrapf(ErrUnavailable, "root %s: %v", l.root, err))
	}
	data, err := os.ReadFile(l.path(id))
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, permanent(id, ErrNotFound)
	case err != nil:
		return nil, retryable(id, eris.Wrap(err, "ingest: read file"))
	}
	return filing.NewFileContent(string(id), data), nil
}

func (l *DirLoader) path(id models.FilingID) string {
	rel := filepath.FromSlash(strings.TrimPrefix(string(id), "/"))
	return filepath.Join(l.root, rel)
}

// List returns every .txt submission under the loader's root, sorted by path.
func (l *DirLoader) List() ([]models.FilingID, error) {
	var ids []models.FilingID
	err := filepath.WalkDir(l.root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".txt") {
			return nil
		}
		rel, err := filepath.Rel(l.root, p)
		if err != nil {
			return err
		}
		ids = append(ids, models.FilingID(filepath.ToSlash(rel)))
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: list %s", l.root)
	}
	return ids, nil
}
