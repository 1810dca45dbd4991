// Package store persists FilingRecords keyed by FilingIdentity. Every sink
// applies the same amendment rule: a submission replaces the stored record
// unless it is older, in which case the upsert reports Unchanged.
package store

import (
	"context"
	"fmt"

	"edgar_facts/pkg/models"

	"github.com/rotisserie/eris"
)

// ErrSinkUnavailable marks the loss of the backing store. The batch aborts on it.
var ErrSinkUnavailable = eris.New("store: sink unavailable")

// Outcome is the effect of one upsert.
type Outcome int

const (
	Inserted Outcome = iota + 1
	Replaced
	Unchanged
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Replaced:
		return "replaced"
	case Unchanged:
		return "unchanged"
	}
	return "unknown"
}

// Sink stores one record per FilingIdentity. Upsert is atomic per call.
type Sink interface {
	Upsert(ctx context.Context, rec *models.FilingRecord) (Outcome, error)
	Close() error
}

// SinkError is a failed write for one identity.
type SinkError struct {
	Identity models.FilingIdentity
	Err      error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("store: upsert %s: %v", e.Identity, e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }

func sinkErr(id models.FilingIdentity, err error) error {
	return &SinkError{Identity: id, Err: err}
}

// decide applies the version rule. An equal version is rewritten so repeated
// upserts of the same submission are idempotent.
func decide(stored *models.Version, incoming models.Version) Outcome {
	if stored == nil {
		return Inserted
	}
	if incoming.Compare(*stored) < 0 {
		return Unchanged
	}
	return Replaced
}
