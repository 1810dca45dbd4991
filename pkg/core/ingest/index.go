package ingest

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"edgar_facts/pkg/core/filing"
	"edgar_facts/pkg/models"

	"github.com/rotisserie/eris"
)

// IndexEntry is one line of a form index.
type IndexEntry struct {
	FormType  string // normalized
	Company   string
	CIK       string // zero-padded
	DateFiled time.Time
	FileName  string // edgar/data/<cik>/<accession>.txt
}

// ID returns the loader id of the entry.
func (e IndexEntry) ID() models.FilingID { return models.FilingID(e.FileName) }

// ParseFormIndex reads a daily form.YYYYMMDD.idx or quarterly form.idx file.
// Lines before the dashed separator are the preamble; each following line
// ends with CIK, date filed and file name. Form types may contain spaces, so
// the form/company split uses the "Company Name" column of the header.
func ParseFormIndex(r io.Reader) ([]IndexEntry, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	companyCol := -1
	inBody := false
	var entries []IndexEntry
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")
		if !inBody {
			if k := strings.Index(line, "Company Name"); k >= 0 && strings.Contains(line, "Form Type") {
				companyCol = k
			}
			if strings.HasPrefix(line, "---") {
				inBody = true
			}
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		entry, err := parseIndexLine(line, companyCol)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: index line %d", lineNo)
		}
		entries = append(entries, entry)
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "ingest: read index")
	}
	if !inBody {
		return nil, eris.New("ingest: index has no separator line")
	}
	return entries, nil
}

func parseIndexLine(line string, companyCol int) (IndexEntry, error) {
	fields := strings.Fields(line)
	if len(fields) < 5 {
		return IndexEntry{}, eris.Errorf("expected at least 5 fields, got %d", len(fields))
	}
	n := len(fields)
	file, dateStr, cik := fields[n-1], fields[n-2], fields[n-3]

	date, err := parseIndexDate(dateStr)
	if err != nil {
		return IndexEntry{}, err
	}

	head := line[:strings.LastIndex(line, file)]
	head = head[:strings.LastIndex(head, dateStr)]
	head = head[:strings.LastIndex(head, cik)]
	var form, company string
	if companyCol > 0 && companyCol < len(head) {
		form, company = head[:companyCol], head[companyCol:]
	} else {
		parts := strings.Fields(head)
		form, company = parts[0], strings.Join(parts[1:], " ")
	}

	return IndexEntry{
		FormType:  filing.NormalizeFormType(form),
		Company:   strings.Join(strings.Fields(company), " "),
		CIK:       filing.PadCIK(cik),
		DateFiled: date,
		FileName:  file,
	}, nil
}

func parseIndexDate(s string) (time.Time, error) {
	for _, layout := range []string{"20060102", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, eris.Errorf("bad date %q", s)
}

// FilterIndex keeps entries whose form type and CIK are in the given sets.
// Empty sets keep everything.
func FilterIndex(entries []IndexEntry, forms, ciks []string) []IndexEntry {
	formSet := make(map[string]bool)
	for _, f := range forms {
		formSet[filing.NormalizeFormType(f)] = true
	}
	cikSet := make(map[string]bool)
	for _, c := range ciks {
		cikSet[filing.PadCIK(c)] = true
	}

	var out []IndexEntry
	for _, e := range entries {
		if len(formSet) > 0 && !formSet[e.FormType] {
			continue
		}
		if len(cikSet) > 0 && !cikSet[e.CIK] {
			continue
		}
		out = append(out, e)
	}
	return out
}

// IDs returns the loader ids of entries in index order.
func IDs(entries []IndexEntry) []models.FilingID {
	ids := make([]models.FilingID, len(entries))
	for i, e := range entries {
		ids[i] = e.ID()
	}
	return ids
}

// =============================================================================
// INDEX PATHS
// =============================================================================

// Quarter is a calendar quarter of the full index.
type Quarter struct {
	Year int
	Q    int
}

// IndexPath returns the quarterly form index path.
func (q Quarter) IndexPath() string {
	return fmt.Sprintf("edgar/full-index/%d/QTR%d/form.idx", q.Year, q.Q)
}

func quarterOf(t time.Time) Quarter {
	return Quarter{Year: t.Year(), Q: (int(t.Month())-1)/3 + 1}
}

// QuartersBetween lists the quarters touched by [begin, end], inclusive.
func QuartersBetween(begin, end time.Time) []Quarter {
	if end.Before(begin) {
		return nil
	}
	first, last := quarterOf(begin), quarterOf(end)
	var out []Quarter
	for q := first; ; {
		out = append(out, q)
		if q == last {
			break
		}
		q.Q++
		if q.Q > 4 {
			q.Q = 1
			q.Year++
		}
	}
	return out
}

// DailyIndexPath returns the daily form index path for day.
func DailyIndexPath(day time.Time) string {
	q := quarterOf(day)
	return fmt.Sprintf("edgar/daily-index/%d/QTR%d/form.%s.idx", q.Year, q.Q, day.Format("20060102"))
}
