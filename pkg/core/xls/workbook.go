// Package xls reads the workbook embedded in pre-XBRL submissions and lifts
// the balance sheet, income statement and cash flow line items out of it.
package xls

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"io"
	"path"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/matchers"
	"github.com/rotisserie/eris"
	"golang.org/x/net/html/charset"
)

var (
	// ErrLegacyWorkbook is returned for OLE2 (.xls) workbooks.
	ErrLegacyWorkbook = eris.New("xls: legacy binary workbook not supported")
	// ErrNotWorkbook is returned when the payload is not an xlsx package.
	ErrNotWorkbook = eris.New("xls: payload is not a workbook")
)

var oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// Workbook is an opened xlsx package. Worksheets and shared strings are
// decoded on first use.
type Workbook struct {
	zr     *zip.Reader
	sheets []sheetRef

	sharedOnce sync.Once
	shared     []string
}

type sheetRef struct {
	name string
	path string
}

// OpenWorkbook opens an in-memory xlsx package.
func OpenWorkbook(data []byte) (*Workbook, error) {
	kind, _ := filetype.Match(data)
	if kind == matchers.TypeXls || bytes.HasPrefix(data, oleMagic) {
		return nil, ErrLegacyWorkbook
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, eris.Wrap(ErrNotWorkbook, err.Error())
	}

	wb := &Workbook{zr: zr}
	var book struct {
		Sheets []struct {
			Name string `xml:"name,attr"`
			RID  string `xml:"id,attr"`
		} `xml:"sheets>sheet"`
	}
	if err := wb.decodePart("xl/workbook.xml", &book); err != nil {
		return nil, eris.Wrap(err, "xls: read workbook.xml")
	}

	targets := map[string]string{}
	var rels struct {
		Items []struct {
			ID     string `xml:"Id,attr"`
			Target string `xml:"Target,attr"`
		} `xml:"Relationship"`
	}
	if err := wb.decodePart("xl/_rels/workbook.xml.rels", &rels); err == nil {
		for _, r := range rels.Items {
			targets[r.ID] = resolveTarget(r.Target)
		}
	}

	for i, s := range book.Sheets {
		p, ok := targets[s.RID]
		if !ok {
			p = "xl/worksheets/sheet" + strconv.Itoa(i+1) + ".xml"
		}
		wb.sheets = append(wb.sheets, sheetRef{name: s.Name, path: p})
	}
	return wb, nil
}

func resolveTarget(target string) string {
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(target, "/")
	}
	return path.Clean(path.Join("xl", target))
}

func (wb *Workbook) readPart(name string) ([]byte, error) {
	for _, f := range wb.zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, eris.Errorf("xls: part %s not found", name)
}

func (wb *Workbook) decodePart(name string, v any) error {
	data, err := wb.readPart(name)
	if err != nil {
		return err
	}
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = charset.NewReaderLabel
	return dec.Decode(v)
}

func (wb *Workbook) sharedStrings() []string {
	wb.sharedOnce.Do(func() {
		var sst struct {
			Items []struct {
				T    string `xml:"t"`
				Runs []struct {
					T string `xml:"t"`
				} `xml:"r"`
			} `xml:"si"`
		}
		if err := wb.decodePart("xl/sharedStrings.xml", &sst); err != nil {
			// a workbook without strings is valid
			return
		}
		wb.shared = make([]string, len(sst.Items))
		for i, si := range sst.Items {
			if si.T != "" || len(si.Runs) == 0 {
				wb.shared[i] = si.T
				continue
			}
			var b strings.Builder
			for _, r := range si.Runs {
				b.WriteString(r.T)
			}
			wb.shared[i] = b.String()
		}
	})
	return wb.shared
}

// SheetNames lists the worksheets in workbook order.
func (wb *Workbook) SheetNames() []string {
	names := make([]string, len(wb.sheets))
	for i, s := range wb.sheets {
		names[i] = s.name
	}
	return names
}

// Sheets returns a forward cursor over the worksheets.
func (wb *Workbook) Sheets() SheetCursor {
	return SheetCursor{wb: wb}
}

// SheetCursor walks worksheets in workbook order. Copies advance independently.
type SheetCursor struct {
	wb   *Workbook
	next int
}

// Next returns the next worksheet. Its rows are not read until Rows is called.
func (c *SheetCursor) Next() (*Sheet, bool) {
	if c.wb == nil || c.next >= len(c.wb.sheets) {
		return nil, false
	}
	ref := c.wb.sheets[c.next]
	s := &Sheet{Name: ref.name, Index: c.next, wb: c.wb, path: ref.path}
	c.next++
	return s, true
}

// Clone returns an independent cursor at the same position.
func (c SheetCursor) Clone() SheetCursor { return c }

// Sheet is one worksheet.
type Sheet struct {
	Name  string
	Index int

	wb   *Workbook
	path string
	once sync.Once
	data []byte
	err  error
}

func (s *Sheet) load() ([]byte, error) {
	s.once.Do(func() {
		s.data, s.err = s.wb.readPart(s.path)
	})
	return s.data, s.err
}

// Rows returns a cursor positioned before the first row.
func (s *Sheet) Rows() RowCursor {
	_, err := s.load()
	return RowCursor{sheet: s, err: err}
}

// Cell is one non-empty cell.
type Cell struct {
	Col     int // zero-based
	Value   string
	Numeric bool
}

// Row is one worksheet row with its non-empty cells in column order.
type Row struct {
	Index int // one-based, as in the sheet
	Cells []Cell
}

// Texts returns the non-numeric cell values.
func (r Row) Texts() []string {
	var out []string
	for _, c := range r.Cells {
		if !c.Numeric {
			out = append(out, c.Value)
		}
	}
	return out
}

// RowCursor reads rows lazily from the worksheet XML. It is a value: copies
// share the decoded sheet bytes but advance independently.
type RowCursor struct {
	sheet  *Sheet
	offset int
	index  int
	err    error
}

var rowStart = regexp.MustCompile(`<(?:\w+:)?row[\s>/]`)

type xmlCell struct {
	Ref    string `xml:"r,attr"`
	Type   string `xml:"t,attr"`
	V      string `xml:"v"`
	Inline struct {
		T    string `xml:"t"`
		Runs []struct {
			T string `xml:"t"`
		} `xml:"r"`
	} `xml:"is"`
}

type xmlRow struct {
	R     int       `xml:"r,attr"`
	Cells []xmlCell `xml:"c"`
}

// Next decodes the next row. It returns false at the end of the sheet or on
// error; Err tells the two apart.
func (c *RowCursor) Next() (Row, bool) {
	if c.err != nil || c.sheet == nil {
		return Row{}, false
	}
	data := c.sheet.data
	if c.offset >= len(data) {
		return Row{}, false
	}
	loc := rowStart.FindIndex(data[c.offset:])
	if loc == nil {
		c.offset = len(data)
		return Row{}, false
	}
	start := c.offset + loc[0]

	dec := xml.NewDecoder(bytes.NewReader(data[start:]))
	var xr xmlRow
	if err := dec.Decode(&xr); err != nil {
		c.err = eris.Wrapf(err, "xls: decode row in sheet %q", c.sheet.Name)
		return Row{}, false
	}
	c.offset = start + int(dec.InputOffset())
	c.index++

	row := Row{Index: xr.R}
	if row.Index == 0 {
		row.Index = c.index
	}
	shared := c.sheet.wb.sharedStrings()
	for i, xc := range xr.Cells {
		cell := Cell{Col: i}
		if xc.Ref != "" {
			cell.Col = columnIndex(xc.Ref)
		}
		switch xc.Type {
		case "s":
			idx, err := strconv.Atoi(strings.TrimSpace(xc.V))
			if err == nil && idx >= 0 && idx < len(shared) {
				cell.Value = shared[idx]
			}
		case "inlineStr":
			cell.Value = xc.Inline.T
			for _, r := range xc.Inline.Runs {
				cell.Value += r.T
			}
		case "str", "b", "e":
			cell.Value = xc.V
		default:
			cell.Value = xc.V
			cell.Numeric = xc.V != ""
		}
		cell.Value = strings.TrimSpace(cell.Value)
		if cell.Value != "" {
			row.Cells = append(row.Cells, cell)
		}
	}
	return row, true
}

// Clone returns an independent cursor at the same position.
func (c RowCursor) Clone() RowCursor { return c }

// Err returns the error that stopped the cursor, if any.
func (c RowCursor) Err() error { return c.err }

// columnIndex converts "AB12" into 27.
func columnIndex(ref string) int {
	n := 0
	for _, r := range ref {
		if r < 'A' || r > 'Z' {
			break
		}
		n = n*26 + int(r-'A'+1)
	}
	return n - 1
}
