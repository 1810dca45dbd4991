package batch

import (
	"edgar_facts/pkg/models"

	"github.com/rotisserie/eris"
)

// ErrNoUsableContent marks a filing whose XBRL and spreadsheet data both came up empty.
var ErrNoUsableContent = eris.New("batch: no usable content")

// State is the position of one filing in its lifecycle:
// Pending -> Loaded -> Scanned -> Rejected | Accepted -> Extracted -> Persisted | Skipped.
// Skipped may also follow any earlier state on error.
type State int

const (
	Pending State = iota
	Loaded
	Scanned
	Rejected
	Accepted
	Extracted
	Persisted
	Skipped
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Loaded:
		return "loaded"
	case Scanned:
		return "scanned"
	case Rejected:
		return "rejected"
	case Accepted:
		return "accepted"
	case Extracted:
		return "extracted"
	case Persisted:
		return "persisted"
	case Skipped:
		return "skipped"
	}
	return "unknown"
}

// Terminal reports whether no further transition follows s.
func (s State) Terminal() bool {
	return s == Rejected || s == Persisted || s == Skipped
}

// Skip reasons.
const (
	ReasonNotFound        = "not_found"
	ReasonLoadFailed      = "load_failed"
	ReasonMalformedHeader = "malformed_header"
	ReasonBadXML          = "bad_xml"
	ReasonNoUsableContent = "no_usable_content"
	ReasonSuperseded      = "superseded"
	ReasonMaxCount        = "max_count_reached"
	ReasonSinkError       = "sink_error"
	ReasonAborted         = "aborted"
)

// Outcome is the terminal result of processing one filing.
type Outcome struct {
	FilingID models.FilingID
	State    State
	Reason   string // skip reason, or the rejecting predicate's name
	Err      error
	Identity models.FilingIdentity
	Source   models.DataSource

	MissingLabels   int
	MissingContexts int
	Attempts        int
}
