package filing

import (
	"bytes"
	"fmt"
	"path"
	"strings"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/matchers"
	"github.com/rotisserie/eris"
)

// SectionType tags what a section holds.
type SectionType int

const (
	Other SectionType = iota
	Header
	XBRLInstance
	LabelLinkbase
	XLSBinary
)

func (t SectionType) String() string {
	switch t {
	case Header:
		return "Header"
	case XBRLInstance:
		return "XBRLInstance"
	case LabelLinkbase:
		return "LabelLinkbase"
	case XLSBinary:
		return "XLSBinary"
	default:
		return "Other"
	}
}

// DocumentSection is a view into a FileContent. It carries offsets only; the
// bytes are reached through the owning FileContent.
type DocumentSection struct {
	Type        SectionType
	Start       int
	End         int
	BodyStart   int
	BodyEnd     int
	DocType     string
	Sequence    string
	Filename    string
	Description string

	owner uint64
}

// Len returns the size of the full range.
func (s DocumentSection) Len() int { return s.End - s.Start }

func (s DocumentSection) String() string {
	return fmt.Sprintf("%s[%d:%d] %s %s", s.Type, s.Start, s.End, s.DocType, s.Filename)
}

var (
	markSECHeader    = []byte("<SEC-HEADER>")
	markIMSHeader    = []byte("<IMS-HEADER>")
	markSECHeaderEnd = []byte("</SEC-HEADER>")
	markIMSHeaderEnd = []byte("</IMS-HEADER>")
	markDocument     = []byte("<DOCUMENT>")
	markDocumentEnd  = []byte("</DOCUMENT>")
	markText         = []byte("<TEXT>")
	markTextEnd      = []byte("</TEXT>")
	markXBRLWrapper  = []byte("XBRL>")
)

// sniffWindow bounds how much of a document body the classifier looks at.
const sniffWindow = 64 << 10

type boundary struct {
	pos    int
	header bool
}

// Scan splits content into sections in one forward pass. Sections tile the
// buffer: every byte belongs to exactly one section. Bytes before the first
// marker form an Other section; a buffer without markers is one Other section.
func Scan(c *FileContent) []DocumentSection {
	if c.Released() {
		return nil
	}
	data := c.data
	marks := findBoundaries(data)

	if len(marks) == 0 {
		return []DocumentSection{c.other(0, len(data))}
	}

	sections := make([]DocumentSection, 0, len(marks)+1)
	if marks[0].pos > 0 {
		sections = append(sections, c.other(0, marks[0].pos))
	}
	for i, m := range marks {
		end := len(data)
		if i+1 < len(marks) {
			end = marks[i+1].pos
		}
		if m.header {
			sections = append(sections, c.header(m.pos, end))
		} else {
			sections = append(sections, c.document(m.pos, end))
		}
	}
	return sections
}

// findBoundaries returns the start offsets of header and document markers.
// A marker counts only at the start of a line.
func findBoundaries(data []byte) []boundary {
	var marks []boundary
	for i := 0; i < len(data); {
		j := bytes.IndexByte(data[i:], '<')
		if j < 0 {
			break
		}
		p := i + j
		i = p + 1
		if p > 0 && data[p-1] != '\n' {
			continue
		}
		rest := data[p:]
		switch {
		case bytes.HasPrefix(rest, markSECHeader), bytes.HasPrefix(rest, markIMSHeader):
			marks = append(marks, boundary{pos: p, header: true})
		case bytes.HasPrefix(rest, markDocument):
			marks = append(marks, boundary{pos: p})
		}
	}
	return marks
}

func (c *FileContent) other(start, end int) DocumentSection {
	return DocumentSection{Type: Other, Start: start, End: end, BodyStart: start, BodyEnd: end, owner: c.token}
}

func (c *FileContent) header(start, end int) DocumentSection {
	sec := DocumentSection{Type: Header, Start: start, End: end, owner: c.token}
	sec.BodyStart = start + len(markSECHeader)
	sec.BodyEnd = end
	region := c.data[sec.BodyStart:end]
	if k := bytes.Index(region, markSECHeaderEnd); k >= 0 {
		sec.BodyEnd = sec.BodyStart + k
	} else if k := bytes.Index(region, markIMSHeaderEnd); k >= 0 {
		sec.BodyEnd = sec.BodyStart + k
	}
	// the rest of the marker line carries the header file name, not a field
	if nl := bytes.IndexByte(region, '\n'); nl >= 0 && sec.BodyStart+nl < sec.BodyEnd {
		sec.BodyStart += nl + 1
	}
	return sec
}

func (c *FileContent) document(start, end int) DocumentSection {
	sec := DocumentSection{Type: Other, Start: start, End: end, owner: c.token}
	region := c.data[start:end]

	closeAt := len(region)
	if k := bytes.Index(region, markDocumentEnd); k >= 0 {
		closeAt = k
	}

	metaEnd := closeAt
	bodyStart := len(markDocument)
	bodyEnd := closeAt
	if k := bytes.Index(region[:closeAt], markText); k >= 0 {
		metaEnd = k
		bodyStart = k + len(markText)
		if bodyStart < closeAt && region[bodyStart] == '\r' {
			bodyStart++
		}
		if bodyStart < closeAt && region[bodyStart] == '\n' {
			bodyStart++
		}
		if e := bytes.Index(region[bodyStart:closeAt], markTextEnd); e >= 0 {
			bodyEnd = bodyStart + e
		}
	}
	parseDocumentMeta(&sec, region[len(markDocument):max(metaEnd, len(markDocument))])

	sec.BodyStart = start + bodyStart
	sec.BodyEnd = start + bodyEnd
	if sec.BodyStart > sec.BodyEnd {
		sec.BodyStart = sec.BodyEnd
	}
	sec.Type = classify(sec, c.data[sec.BodyStart:sec.BodyEnd])
	return sec
}

func parseDocumentMeta(sec *DocumentSection, meta []byte) {
	for _, line := range bytes.Split(meta, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 || line[0] != '<' {
			continue
		}
		end := bytes.IndexByte(line, '>')
		if end < 0 {
			continue
		}
		tag := string(line[1:end])
		value := strings.TrimSpace(string(line[end+1:]))
		switch tag {
		case "TYPE":
			sec.DocType = value
		case "SEQUENCE":
			sec.Sequence = value
		case "FILENAME":
			sec.Filename = value
		case "DESCRIPTION":
			sec.Description = value
		}
	}
}

func classify(sec DocumentSection, body []byte) SectionType {
	docType := strings.ToUpper(sec.DocType)
	switch docType {
	case "EX-101.INS", "EX-100.INS":
		return XBRLInstance
	case "EX-101.LAB", "EX-100.LAB":
		return LabelLinkbase
	}

	if docType == "XML" || strings.HasPrefix(docType, "EX-10") {
		window := body
		if len(window) > sniffWindow {
			window = window[:sniffWindow]
		}
		switch localName(rootElement(window)) {
		case "xbrl":
			return XBRLInstance
		case "linkbase":
			if bytes.Contains(body, []byte("labelLink")) {
				return LabelLinkbase
			}
		}
	}

	if isSpreadsheetBlock(sec.Filename, body) {
		return XLSBinary
	}
	return Other
}

// rootElement returns the qualified name of the first element, skipping the
// XML prolog, comments, doctype and the archive's <XBRL> wrapper.
func rootElement(window []byte) string {
	for i := 0; i < len(window); {
		j := bytes.IndexByte(window[i:], '<')
		if j < 0 {
			return ""
		}
		p := i + j
		rest := window[p+1:]
		switch {
		case bytes.HasPrefix(rest, []byte("!--")):
			k := bytes.Index(rest, []byte("-->"))
			if k < 0 {
				return ""
			}
			i = p + 1 + k + 3
		case len(rest) > 0 && (rest[0] == '?' || rest[0] == '!'):
			k := bytes.IndexByte(rest, '>')
			if k < 0 {
				return ""
			}
			i = p + 1 + k + 1
		case bytes.HasPrefix(rest, markXBRLWrapper):
			i = p + 1 + len(markXBRLWrapper)
		default:
			end := bytes.IndexAny(rest, " \t\r\n/>")
			if end < 0 {
				return string(rest)
			}
			return string(rest[:end])
		}
	}
	return ""
}

func localName(qname string) string {
	if k := strings.LastIndexByte(qname, ':'); k >= 0 {
		return qname[k+1:]
	}
	return qname
}

var oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// isSpreadsheetBlock decodes the head of an embedded binary block and checks
// it for workbook magic bytes.
func isSpreadsheetBlock(filename string, body []byte) bool {
	head := decodeHead(body, 16<<10)
	if len(head) < 8 {
		return false
	}
	kind, _ := filetype.Match(head)
	if kind == matchers.TypeXlsx || kind == matchers.TypeXls {
		return true
	}
	ext := strings.ToLower(path.Ext(filename))
	switch {
	case ext == ".xlsx" && kind == matchers.TypeZip:
		return true
	case ext == ".xls" && bytes.HasPrefix(head, oleMagic):
		return true
	}
	return false
}

// Find returns the first section of type t.
func Find(sections []DocumentSection, t SectionType) (DocumentSection, bool) {
	for _, s := range sections {
		if s.Type == t {
			return s, true
		}
	}
	return DocumentSection{}, false
}

// FindAll returns every section of type t in document order.
func FindAll(sections []DocumentSection, t SectionType) []DocumentSection {
	var out []DocumentSection
	for _, s := range sections {
		if s.Type == t {
			out = append(out, s)
		}
	}
	return out
}

// VerifyCoverage checks that sections tile [0, n) without gaps or overlaps.
func VerifyCoverage(sections []DocumentSection, n int) error {
	pos := 0
	for i, s := range sections {
		if s.Start != pos {
			return eris.Errorf("filing: section %d starts at %d, expected %d", i, s.Start, pos)
		}
		if s.End < s.Start {
			return eris.Errorf("filing: section %d has negative length", i)
		}
		pos = s.End
	}
	if pos != n {
		return eris.Errorf("filing: sections end at %d, buffer has %d bytes", pos, n)
	}
	return nil
}
