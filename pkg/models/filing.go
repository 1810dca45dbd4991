// Package models holds the records that flow between the scanner, the extractors,
// the batch controller and the persistence sinks.
package models

import (
	"strings"
	"time"
)

// FilingID identifies one raw submission for a content loader. For EDGAR archives
// it is the archive path, e.g. "edgar/data/320193/0001193125-13-168288.txt".
type FilingID string

// DataSource tags which extraction engine produced a record.
type DataSource string

const (
	SourceXBRL DataSource = "XBRL"
	SourceXLS  DataSource = "XLS"
)

// FilingIdentity is the logical key used to correlate an original submission
// with its amendments. FormType is the normalized base form ("10-K", never "10-K_A").
type FilingIdentity struct {
	CIK            string `json:"cik" bson:"cik"`
	FormType       string `json:"form_type" bson:"form_type"`
	PeriodOfReport string `json:"period_of_report" bson:"period_of_report"` // YYYY-MM-DD
}

// Key returns a stable single-string form of the identity.
func (id FilingIdentity) Key() string {
	return id.CIK + "|" + id.FormType + "|" + id.PeriodOfReport
}

func (id FilingIdentity) String() string { return id.Key() }

// GAAPFact is one reported fact from an XBRL instance document.
type GAAPFact struct {
	Label     string `json:"label" bson:"label"`
	ContextID string `json:"context_id" bson:"context_id"`
	Value     string `json:"value" bson:"value"`
	Decimals  string `json:"decimals,omitempty" bson:"decimals,omitempty"`
	Unit      string `json:"unit,omitempty" bson:"unit,omitempty"`
}

// Period is either an instant or a start/end duration.
type Period struct {
	Instant   string `json:"instant,omitempty" bson:"instant,omitempty"`
	StartDate string `json:"start_date,omitempty" bson:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty" bson:"end_date,omitempty"`
}

// IsInstant reports whether the period is a point in time.
func (p Period) IsInstant() bool { return p.Instant != "" }

// IsDuration reports whether the period has both bounds.
func (p Period) IsDuration() bool { return p.StartDate != "" && p.EndDate != "" }

// DimensionMember is one explicit or typed member of a context segment.
type DimensionMember struct {
	Dimension string `json:"dimension" bson:"dimension"`
	Member    string `json:"member" bson:"member"`
	Typed     bool   `json:"typed,omitempty" bson:"typed,omitempty"`
}

// Context is a named period/dimension definition referenced by facts.
type Context struct {
	ID      string            `json:"id" bson:"id"`
	Entity  string            `json:"entity,omitempty" bson:"entity,omitempty"`
	Period  Period            `json:"period" bson:"period"`
	Segment []DimensionMember `json:"segment,omitempty" bson:"segment,omitempty"`
}

// LabelTable maps a tag identifier (element local name) to its display label.
type LabelTable map[string]string

// ContextTable maps a context id to its definition.
type ContextTable map[string]Context

// XBRLData is the GAAP/label/context triple of one filing plus the
// counters for facts that did not resolve.
type XBRLData struct {
	Facts           []GAAPFact   `json:"facts" bson:"facts"`
	Labels          LabelTable   `json:"labels" bson:"labels"`
	Contexts        ContextTable `json:"contexts" bson:"contexts"`
	MissingLabels   int          `json:"missing_labels" bson:"missing_labels"`
	MissingContexts int          `json:"missing_contexts" bson:"missing_contexts"`
}

// LineItem is one (label, value) row lifted from a statement sheet.
type LineItem struct {
	Label    string  `json:"label" bson:"label"`
	Value    float64 `json:"value" bson:"value"`
	Raw      string  `json:"raw,omitempty" bson:"raw,omitempty"`
	Footnote string  `json:"footnote,omitempty" bson:"footnote,omitempty"`
	Row      int     `json:"row" bson:"row"`
}

// Statement is one financial statement identified inside a workbook.
type Statement struct {
	Sheet   string     `json:"sheet" bson:"sheet"`
	Heading string     `json:"heading,omitempty" bson:"heading,omitempty"`
	Scale   string     `json:"scale,omitempty" bson:"scale,omitempty"` // "thousands", "millions"
	Items   []LineItem `json:"items" bson:"items"`
}

// SpreadsheetFacts is the line-item triple extracted from an embedded workbook.
type SpreadsheetFacts struct {
	BalanceSheet      *Statement `json:"balance_sheet,omitempty" bson:"balance_sheet,omitempty"`
	IncomeStatement   *Statement `json:"income_statement,omitempty" bson:"income_statement,omitempty"`
	CashFlow          *Statement `json:"cash_flow,omitempty" bson:"cash_flow,omitempty"`
	SharesOutstanding *float64   `json:"shares_outstanding,omitempty" bson:"shares_outstanding,omitempty"`
	SharesSheet       string     `json:"shares_sheet,omitempty" bson:"shares_sheet,omitempty"`
}

// HasData reports whether any statement or share count was found.
func (s SpreadsheetFacts) HasData() bool {
	return s.BalanceSheet != nil || s.IncomeStatement != nil || s.CashFlow != nil || s.SharesOutstanding != nil
}

// FilingRecord is the extracted result for one filing.
type FilingRecord struct {
	Identity        FilingIdentity    `json:"identity" bson:"identity"`
	FilingID        FilingID          `json:"filing_id" bson:"filing_id"`
	AccessionNumber string            `json:"accession_number" bson:"accession_number"`
	CIK             string            `json:"cik" bson:"cik"`
	CompanyName     string            `json:"company_name" bson:"company_name"`
	FormType        string            `json:"form_type" bson:"form_type"` // normalized, e.g. "10-K_A"
	FileNumber      string            `json:"file_number,omitempty" bson:"file_number,omitempty"`
	FilingDate      time.Time         `json:"filing_date" bson:"filing_date"`
	PeriodOfReport  time.Time         `json:"period_of_report" bson:"period_of_report"`
	Amendment       bool              `json:"amendment" bson:"amendment"`
	Source          DataSource        `json:"source" bson:"source"`
	XBRL            *XBRLData         `json:"xbrl,omitempty" bson:"xbrl,omitempty"`
	Spreadsheet     *SpreadsheetFacts `json:"spreadsheet,omitempty" bson:"spreadsheet,omitempty"`
	ExtractedAt     time.Time         `json:"extracted_at" bson:"extracted_at"`
}

// Version orders submissions that share a FilingIdentity.
type Version struct {
	FilingDate time.Time `json:"filing_date" bson:"filing_date"`
	Amendment  bool      `json:"amendment" bson:"amendment"`
	Accession  string    `json:"accession" bson:"accession"`
}

// Version returns the ordering key of the record.
func (r *FilingRecord) Version() Version {
	return Version{FilingDate: r.FilingDate, Amendment: r.Amendment, Accession: r.AccessionNumber}
}

// Compare returns -1, 0 or 1 as v is older than, equal to or newer than o.
// Filing date decides first, then an amendment outranks an original filed the
// same day, then the accession number (sequence assigned by the archive).
func (v Version) Compare(o Version) int {
	switch {
	case v.FilingDate.Before(o.FilingDate):
		return -1
	case v.FilingDate.After(o.FilingDate):
		return 1
	}
	if v.Amendment != o.Amendment {
		if v.Amendment {
			return 1
		}
		return -1
	}
	return strings.Compare(v.Accession, o.Accession)
}

// Newer reports whether a should replace b in storage.
func Newer(a, b *FilingRecord) bool {
	return a.Version().Compare(b.Version()) > 0
}
