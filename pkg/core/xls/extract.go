package xls

import (
	"regexp"
	"strconv"
	"strings"

	"edgar_facts/pkg/core/filing"
	"edgar_facts/pkg/models"

	"github.com/rotisserie/eris"
)

// ErrNoWorkbook is returned when a filing has no embedded workbook section.
var ErrNoWorkbook = eris.New("xls: no embedded workbook")

// DefaultHeadingRows is how many leading rows are searched for statement titles
// and magnitude declarations.
const DefaultHeadingRows = 10

// Classification maps statement kinds to the sheets chosen for them.
type Classification struct {
	sheets map[StatementKind]*Sheet
}

// Get returns the sheet chosen for kind, or nil.
func (c Classification) Get(kind StatementKind) *Sheet { return c.sheets[kind] }

// Len returns how many statements were identified.
func (c Classification) Len() int { return len(c.sheets) }

// ClassifySheets picks one sheet per statement. Exact sheet names are tried
// first; remaining sheets are searched for heading phrases in their first
// headingRows rows, in workbook order. A sheet is used for at most one statement.
func ClassifySheets(wb *Workbook, headingRows int) Classification {
	m := NewStatementMatcher()
	cls := Classification{sheets: make(map[StatementKind]*Sheet)}
	used := make(map[int]bool)

	byName := wb.Sheets()
	byHeading := byName.Clone()
	for {
		s, ok := byName.Next()
		if !ok {
			break
		}
		kind := m.MatchName(s.Name)
		if kind != KindUnknown && cls.sheets[kind] == nil {
			cls.sheets[kind] = s
			used[s.Index] = true
		}
	}

	for len(cls.sheets) < len(statementKinds) {
		s, ok := byHeading.Next()
		if !ok {
			break
		}
		if used[s.Index] {
			continue
		}
		if kind := headingKind(m, s, headingRows, cls.sheets); kind != KindUnknown {
			cls.sheets[kind] = s
			used[s.Index] = true
		}
	}
	return cls
}

func headingKind(m *StatementMatcher, s *Sheet, headingRows int, taken map[StatementKind]*Sheet) StatementKind {
	rows := s.Rows()
	for i := 0; i < headingRows; i++ {
		row, ok := rows.Next()
		if !ok {
			break
		}
		for _, text := range row.Texts() {
			if kind := m.MatchHeading(text); kind != KindUnknown && taken[kind] == nil {
				return kind
			}
		}
	}
	return KindUnknown
}

// Extract decodes the first embedded workbook of a scanned filing.
func Extract(c *filing.FileContent, sections []filing.DocumentSection) (models.SpreadsheetFacts, error) {
	sec, ok := filing.Find(sections, filing.XLSBinary)
	if !ok {
		return models.SpreadsheetFacts{}, ErrNoWorkbook
	}
	body, err := c.Body(sec)
	if err != nil {
		return models.SpreadsheetFacts{}, eris.Wrap(err, "xls: read workbook section")
	}
	_, data, err := filing.DecodeEmbedded(body)
	if err != nil {
		return models.SpreadsheetFacts{}, eris.Wrapf(err, "xls: decode %s", sec.Filename)
	}
	return ExtractWorkbook(data)
}

// ExtractWorkbook lifts the statements and the share count out of an xlsx
// package. A workbook without statement sheets yields an empty result.
func ExtractWorkbook(data []byte) (models.SpreadsheetFacts, error) {
	wb, err := OpenWorkbook(data)
	if err != nil {
		return models.SpreadsheetFacts{}, err
	}

	var facts models.SpreadsheetFacts
	cls := ClassifySheets(wb, DefaultHeadingRows)
	for _, kind := range statementKinds {
		sheet := cls.Get(kind)
		if sheet == nil {
			continue
		}
		st, err := readStatement(sheet, DefaultHeadingRows)
		if err != nil {
			return models.SpreadsheetFacts{}, err
		}
		if len(st.Items) == 0 {
			continue
		}
		switch kind {
		case KindBalanceSheet:
			facts.BalanceSheet = st
		case KindIncomeStatement:
			facts.IncomeStatement = st
		case KindCashFlow:
			facts.CashFlow = st
		}
	}

	if shares, sheet, ok := findSharesOutstanding(wb, DefaultHeadingRows); ok {
		facts.SharesOutstanding = &shares
		facts.SharesSheet = sheet
	}
	return facts, nil
}

func readStatement(s *Sheet, headingRows int) (*models.Statement, error) {
	rows := s.Rows()
	heading, sc := readHeadings(rows.Clone(), headingRows)

	st := &models.Statement{Sheet: s.Name, Heading: heading, Scale: sc.name}
	for {
		row, ok := rows.Next()
		if !ok {
			break
		}
		if item, ok := lineItem(row); ok {
			st.Items = append(st.Items, item)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return st, nil
}

func readHeadings(rows RowCursor, n int) (string, scale) {
	var texts []string
	for i := 0; i < n; i++ {
		row, ok := rows.Next()
		if !ok {
			break
		}
		texts = append(texts, row.Texts()...)
	}
	heading := ""
	if len(texts) > 0 {
		heading = texts[0]
	}
	return heading, detectScale(strings.Join(texts, " "))
}

func findSharesOutstanding(wb *Workbook, headingRows int) (float64, string, bool) {
	cur := wb.Sheets()
	for {
		s, ok := cur.Next()
		if !ok {
			return 0, "", false
		}
		rows := s.Rows()
		_, sc := readHeadings(rows.Clone(), headingRows)
		for {
			row, ok := rows.Next()
			if !ok {
				break
			}
			item, ok := lineItem(row)
			if !ok || item.Value == 0 {
				continue
			}
			if strings.Contains(strings.ToLower(item.Label), "shares outstanding") {
				return item.Value * sc.shareFactor, s.Name, true
			}
		}
	}
}

var footnotePattern = regexp.MustCompile(`\[\d+\]`)

// lineItem turns a row into (label, value). Rows without a label or a value,
// section headers and zero values without a footnote marker are skipped.
func lineItem(row Row) (models.LineItem, bool) {
	item := models.LineItem{Row: row.Index}
	labelCol := -1
	for _, c := range row.Cells {
		if !c.Numeric {
			if _, isAmount := parseAmount(c.Value); !isAmount {
				item.Label = c.Value
				labelCol = c.Col
				break
			}
		}
	}
	if labelCol < 0 || isHeaderLabel(item.Label) {
		return item, false
	}

	found := false
	for _, c := range row.Cells {
		if c.Col <= labelCol {
			continue
		}
		if m := footnotePattern.FindString(c.Value); m != "" && !c.Numeric {
			item.Footnote = m
			continue
		}
		if v, ok := parseAmount(c.Value); ok && !found {
			item.Value = v
			item.Raw = c.Value
			found = true
		}
	}
	if m := footnotePattern.FindString(item.Label); m != "" {
		item.Footnote = m
	}
	if !found {
		return item, false
	}
	if item.Value == 0 && item.Footnote == "" {
		return item, false
	}
	return item, true
}

// parseAmount reads "1,234", "$ 5.2", "(1,234)" and "-7" as numbers.
func parseAmount(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" || s == "-" || s == "—" {
		return 0, false
	}
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = "-" + s[1:len(s)-1]
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

type scale struct {
	name        string
	factor      float64
	shareFactor float64
}

var sharesScalePattern = regexp.MustCompile(`shares?(\s+data)?\s+in\s+(thousands|millions|billions)`)

// detectScale reads magnitude declarations such as "In Millions, except Share
// data in Thousands" from heading text.
func detectScale(text string) scale {
	lower := strings.ToLower(text)
	sc := scale{factor: 1}
	switch {
	case strings.Contains(lower, "in billions"):
		sc.name, sc.factor = "billions", 1e9
	case strings.Contains(lower, "in millions"):
		sc.name, sc.factor = "millions", 1e6
	case strings.Contains(lower, "in thousands"):
		sc.name, sc.factor = "thousands", 1e3
	}

	sc.shareFactor = sc.factor
	if m := sharesScalePattern.FindStringSubmatch(lower); m != nil {
		sc.shareFactor = magnitude(m[2])
	} else if strings.Contains(lower, "except share") {
		sc.shareFactor = 1
	}
	return sc
}

func magnitude(word string) float64 {
	switch word {
	case "billions":
		return 1e9
	case "millions":
		return 1e6
	case "thousands":
		return 1e3
	}
	return 1
}
