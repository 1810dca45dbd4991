// Package filter decides which scanned filings are worth extracting.
package filter

import (
	"strings"
	"time"

	"edgar_facts/pkg/core/filing"
	"edgar_facts/pkg/models"
)

// Predicate is one yes/no test over a scanned filing.
type Predicate interface {
	Name() string
	Evaluate(fields filing.HeaderFields, sections []filing.DocumentSection) bool
}

type predicateFunc struct {
	name string
	fn   func(filing.HeaderFields, []filing.DocumentSection) bool
}

func (p predicateFunc) Name() string { return p.name }

func (p predicateFunc) Evaluate(fields filing.HeaderFields, sections []filing.DocumentSection) bool {
	return p.fn(fields, sections)
}

// New wraps a function as a named predicate.
func New(name string, fn func(filing.HeaderFields, []filing.DocumentSection) bool) Predicate {
	return predicateFunc{name: name, fn: fn}
}

// HasExtractableContent accepts filings with an XBRL instance or an embedded workbook.
func HasExtractableContent() Predicate {
	return New("HasExtractableContent", func(_ filing.HeaderFields, sections []filing.DocumentSection) bool {
		for _, s := range sections {
			if s.Type == filing.XBRLInstance || s.Type == filing.XLSBinary {
				return true
			}
		}
		return false
	})
}

// HasFormType accepts filings whose normalized form type is in forms. Members
// are normalized too, so "10-K/A" and "10-K_A" are the same entry. An amendment
// only matches its literal "_A" form. An empty set accepts everything.
func HasFormType(forms ...string) Predicate {
	set := make(map[string]struct{}, len(forms))
	for _, f := range forms {
		if f = filing.NormalizeFormType(f); f != "" {
			set[f] = struct{}{}
		}
	}
	return New("HasFormType", func(fields filing.HeaderFields, _ []filing.DocumentSection) bool {
		if len(set) == 0 {
			return true
		}
		_, ok := set[filing.NormalizeFormType(fields.FormType)]
		return ok
	})
}

// WithinDateRange accepts filings whose chosen date lies in [lo, hi]. A zero
// bound is open. A filing without the chosen date is rejected.
func WithinDateRange(lo, hi time.Time, field models.DateField) Predicate {
	lo, hi = day(lo), day(hi)
	return New("WithinDateRange", func(fields filing.HeaderFields, _ []filing.DocumentSection) bool {
		d := fields.FilingDate
		if field == models.DateFieldPeriod {
			d = fields.PeriodOfReport
		}
		if d.IsZero() {
			return false
		}
		d = day(d)
		if !lo.IsZero() && d.Before(lo) {
			return false
		}
		if !hi.IsZero() && d.After(hi) {
			return false
		}
		return true
	})
}

// HasCIK accepts filings from the given registrants. CIKs compare zero-padded.
func HasCIK(ciks ...string) Predicate {
	set := make(map[string]struct{}, len(ciks))
	for _, c := range ciks {
		if c = strings.TrimSpace(c); c != "" {
			set[filing.PadCIK(c)] = struct{}{}
		}
	}
	return New("HasCIK", func(fields filing.HeaderFields, _ []filing.DocumentSection) bool {
		if len(set) == 0 {
			return true
		}
		_, ok := set[filing.PadCIK(fields.CIK)]
		return ok
	})
}

// Apply is a short-circuit AND over predicates. An empty list accepts.
func Apply(fields filing.HeaderFields, sections []filing.DocumentSection, predicates []Predicate) bool {
	ok, _ := Pipeline{Predicates: predicates}.Evaluate(fields, sections)
	return ok
}

// Pipeline is an ordered predicate list.
type Pipeline struct {
	Predicates []Predicate
}

// Evaluate runs the predicates in order and returns the name of the first one
// that rejected the filing.
func (p Pipeline) Evaluate(fields filing.HeaderFields, sections []filing.DocumentSection) (bool, string) {
	for _, pred := range p.Predicates {
		if !pred.Evaluate(fields, sections) {
			return false, pred.Name()
		}
	}
	return true, ""
}

// FromSpec builds the run's pipeline. The content check always runs first;
// empty sets and zero dates add nothing.
func FromSpec(spec models.FilterSpec) Pipeline {
	p := Pipeline{Predicates: []Predicate{HasExtractableContent()}}
	if len(spec.FormTypes) > 0 {
		p.Predicates = append(p.Predicates, HasFormType(spec.FormTypes...))
	}
	if len(spec.CIKs) > 0 {
		p.Predicates = append(p.Predicates, HasCIK(spec.CIKs...))
	}
	if !spec.Begin.IsZero() || !spec.End.IsZero() {
		field := spec.DateField
		if field == "" {
			field = models.DateFieldFiling
		}
		p.Predicates = append(p.Predicates, WithinDateRange(spec.Begin, spec.End, field))
	}
	return p
}

func day(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
