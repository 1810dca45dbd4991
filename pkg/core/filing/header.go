package filing

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"edgar_facts/pkg/models"

	"github.com/rotisserie/eris"
)

// ErrMalformedHeader is returned when the header lacks a CIK, a form type, or
// any date an identity can be keyed on.
var ErrMalformedHeader = eris.New("filing: malformed header")

const headerDateLayout = "20060102"

// HeaderFields are the submission header values used for filtering and identity.
type HeaderFields struct {
	CIK             string
	FormType        string // normalized: upper case, "/" replaced by "_"
	FilingDate      time.Time
	PeriodOfReport  time.Time
	CompanyName     string
	FileNumber      string
	AccessionNumber string
	Raw             map[string]string
}

// header tags in the order they are looked up; the first present key wins
var (
	cikKeys       = []string{"CENTRAL INDEX KEY"}
	formKeys      = []string{"CONFORMED SUBMISSION TYPE", "FORM TYPE"}
	filedKeys     = []string{"FILED AS OF DATE"}
	periodKeys    = []string{"CONFORMED PERIOD OF REPORT"}
	companyKeys   = []string{"COMPANY CONFORMED NAME"}
	fileNumKeys   = []string{"SEC FILE NUMBER", "FILE NUMBER"}
	accessionKeys = []string{"ACCESSION NUMBER"}
)

// ParseHeader reads the tagged lines of a header section.
func ParseHeader(c *FileContent, sec DocumentSection) (HeaderFields, error) {
	if sec.Type != Header {
		return HeaderFields{}, eris.Wrapf(ErrMalformedHeader, "section %s is not a header", sec.Type)
	}
	body, err := c.Body(sec)
	if err != nil {
		return HeaderFields{}, eris.Wrap(err, "filing: read header")
	}
	return ParseHeaderBytes(body)
}

// ParseHeaderBytes parses header lines of the form "KEY:\tvalue". Nested
// blocks repeat keys (filer, subject company); the first occurrence wins.
func ParseHeaderBytes(body []byte) (HeaderFields, error) {
	raw := make(map[string]string)
	for _, line := range bytes.Split(body, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 || line[0] == '<' {
			continue
		}
		colon := bytes.IndexByte(line, ':')
		if colon <= 0 {
			continue
		}
		key := strings.ToUpper(strings.TrimSpace(string(line[:colon])))
		value := strings.TrimSpace(string(line[colon+1:]))
		if value == "" {
			continue
		}
		if _, seen := raw[key]; !seen {
			raw[key] = value
		}
	}

	h := HeaderFields{Raw: raw}
	h.CIK = first(raw, cikKeys)
	h.FormType = NormalizeFormType(first(raw, formKeys))
	if h.CIK == "" || h.FormType == "" {
		return h, eris.Wrapf(ErrMalformedHeader, "cik=%q form=%q", h.CIK, h.FormType)
	}
	h.CIK = PadCIK(h.CIK)
	h.CompanyName = first(raw, companyKeys)
	h.FileNumber = first(raw, fileNumKeys)
	h.AccessionNumber = first(raw, accessionKeys)
	h.FilingDate = parseHeaderDate(first(raw, filedKeys))
	h.PeriodOfReport = parseHeaderDate(first(raw, periodKeys))
	if h.PeriodOfReport.IsZero() && h.FilingDate.IsZero() {
		return h, eris.Wrapf(ErrMalformedHeader, "cik=%s form=%s has no period of report or filing date", h.CIK, h.FormType)
	}
	return h, nil
}

// Get returns a raw header value by tag name, case-insensitively.
func (h HeaderFields) Get(name string) (string, bool) {
	v, ok := h.Raw[strings.ToUpper(strings.TrimSpace(name))]
	return v, ok
}

// IsAmendment reports whether the form type is an amendment ("10-K_A").
func (h HeaderFields) IsAmendment() bool { return IsAmendment(h.FormType) }

// Identity derives the key shared by a submission and its amendments. A
// header without a period of report falls back to the filing date.
func (h HeaderFields) Identity() models.FilingIdentity {
	period := h.PeriodOfReport
	if period.IsZero() {
		period = h.FilingDate
	}
	id := models.FilingIdentity{CIK: h.CIK, FormType: BaseFormType(h.FormType)}
	if !period.IsZero() {
		id.PeriodOfReport = period.Format("2006-01-02")
	}
	return id
}

func first(raw map[string]string, keys []string) string {
	for _, k := range keys {
		if v, ok := raw[k]; ok {
			return v
		}
	}
	return ""
}

func parseHeaderDate(s string) time.Time {
	if len(s) < len(headerDateLayout) {
		return time.Time{}
	}
	t, err := time.Parse(headerDateLayout, s[:len(headerDateLayout)])
	if err != nil {
		return time.Time{}
	}
	return t
}

// PadCIK left-pads a numeric CIK to the archive's ten digits.
func PadCIK(cik string) string {
	cik = strings.TrimSpace(cik)
	if len(cik) >= 10 {
		return cik
	}
	return fmt.Sprintf("%010s", cik)
}
