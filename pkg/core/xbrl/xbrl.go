// Package xbrl extracts GAAP facts, labels and contexts from the XBRL instance
// and label linkbases embedded in a submission.
package xbrl

import (
	"bytes"
	"fmt"

	"edgar_facts/pkg/core/filing"
	"edgar_facts/pkg/models"

	"github.com/rotisserie/eris"
)

var (
	ErrNoInstanceDocument = eris.New("xbrl: no instance document")
	ErrBadXML             = eris.New("xbrl: malformed XML")
)

// BadXMLError reports an instance document that could not be parsed.
type BadXMLError struct {
	Filing   string
	Identity models.FilingIdentity
	Document string
	Err      error
}

func (e *BadXMLError) Error() string {
	id := e.Filing
	if e.Identity.CIK != "" {
		id = e.Identity.Key()
	}
	return fmt.Sprintf("xbrl: malformed XML in %s (%s): %v", e.Document, id, e.Err)
}

func (e *BadXMLError) Unwrap() error { return e.Err }

func (e *BadXMLError) Is(target error) bool { return target == ErrBadXML }

// Result is the extracted triple plus data-quality counters. Facts whose label
// or context did not resolve stay in Facts and are also listed in Unresolved.
type Result struct {
	Facts            []models.GAAPFact
	Labels           models.LabelTable
	Contexts         models.ContextTable
	MissingLabels    int
	MissingContexts  int
	UnresolvedFacts  []models.GAAPFact
	SkippedLinkbases []string
}

// MissingValues is the total count of unresolved references.
func (r Result) MissingValues() int { return r.MissingLabels + r.MissingContexts }

// Data converts the result into the persisted form.
func (r Result) Data() *models.XBRLData {
	return &models.XBRLData{
		Facts:           r.Facts,
		Labels:          r.Labels,
		Contexts:        r.Contexts,
		MissingLabels:   r.MissingLabels,
		MissingContexts: r.MissingContexts,
	}
}

// Extract parses the first XBRL instance of a scanned filing and merges every
// label linkbase in document order, later linkbases overriding earlier ones.
func Extract(c *filing.FileContent, sections []filing.DocumentSection) (Result, error) {
	inst, ok := filing.Find(sections, filing.XBRLInstance)
	if !ok {
		return Result{}, ErrNoInstanceDocument
	}
	body, err := c.Body(inst)
	if err != nil {
		return Result{}, eris.Wrap(err, "xbrl: read instance")
	}

	var linkbases []linkbaseDoc
	for _, sec := range filing.FindAll(sections, filing.LabelLinkbase) {
		lb, err := c.Body(sec)
		if err != nil {
			return Result{}, eris.Wrap(err, "xbrl: read linkbase")
		}
		linkbases = append(linkbases, linkbaseDoc{name: sec.Filename, data: lb})
	}
	return extract(c.Name(), inst.Filename, body, linkbases)
}

// ExtractFromBytes runs the extractor over standalone documents.
func ExtractFromBytes(name string, instance []byte, linkbases ...[]byte) (Result, error) {
	docs := make([]linkbaseDoc, len(linkbases))
	for i, lb := range linkbases {
		docs[i] = linkbaseDoc{name: fmt.Sprintf("linkbase-%d", i+1), data: lb}
	}
	return extract(name, name, instance, docs)
}

type linkbaseDoc struct {
	name string
	data []byte
}

func extract(filingName, docName string, instance []byte, linkbases []linkbaseDoc) (Result, error) {
	facts, contexts, err := parseInstance(unwrap(instance))
	if err != nil {
		return Result{}, &BadXMLError{Filing: filingName, Document: docName, Err: err}
	}

	res := Result{
		Facts:    facts,
		Labels:   make(models.LabelTable),
		Contexts: contexts,
	}
	for _, lb := range linkbases {
		labels, err := parseLabelLinkbase(unwrap(lb.data))
		if err != nil {
			res.SkippedLinkbases = append(res.SkippedLinkbases, lb.name)
			continue
		}
		for tag, text := range labels {
			res.Labels[tag] = text
		}
	}

	for _, f := range res.Facts {
		_, hasLabel := res.Labels[f.Label]
		_, hasContext := res.Contexts[f.ContextID]
		if !hasLabel {
			res.MissingLabels++
		}
		if !hasContext {
			res.MissingContexts++
		}
		if !hasLabel || !hasContext {
			res.UnresolvedFacts = append(res.UnresolvedFacts, f)
		}
	}
	return res, nil
}

// unwrap removes the archive's <XBRL>...</XBRL> wrapper around XML documents.
func unwrap(b []byte) []byte {
	t := bytes.TrimSpace(b)
	if !bytes.HasPrefix(t, []byte("<XBRL>")) {
		return b
	}
	t = bytes.TrimPrefix(t, []byte("<XBRL>"))
	t = bytes.TrimSuffix(bytes.TrimSpace(t), []byte("</XBRL>"))
	return bytes.TrimSpace(t)
}
