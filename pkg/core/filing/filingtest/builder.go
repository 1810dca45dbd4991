// Package filingtest builds synthetic submission bundles, XBRL documents and
// workbooks for tests.
package filingtest

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strings"
)

// Document is one <DOCUMENT> of a submission.
type Document struct {
	Type        string
	Filename    string
	Description string
	Body        string
}

// Submission describes a full SGML bundle.
type Submission struct {
	Accession  string
	CIK        string
	Form       string
	Company    string
	Filed      string // YYYYMMDD
	Period     string // YYYYMMDD
	FileNumber string
	Documents  []Document
}

// Bytes renders the bundle the way the archive's full submission .txt files look.
func (s Submission) Bytes() []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "<SEC-DOCUMENT>%s.txt : %s\n", s.Accession, s.Filed)
	fmt.Fprintf(&b, "<SEC-HEADER>%s.hdr.sgml : %s\n", s.Accession, s.Filed)
	fmt.Fprintf(&b, "<ACCEPTANCE-DATETIME>%s163111\n", s.Filed)
	fmt.Fprintf(&b, "ACCESSION NUMBER:\t\t%s\n", s.Accession)
	fmt.Fprintf(&b, "CONFORMED SUBMISSION TYPE:\t%s\n", s.Form)
	fmt.Fprintf(&b, "PUBLIC DOCUMENT COUNT:\t\t%d\n", len(s.Documents))
	if s.Period != "" {
		fmt.Fprintf(&b, "CONFORMED PERIOD OF REPORT:\t%s\n", s.Period)
	}
	fmt.Fprintf(&b, "FILED AS OF DATE:\t\t%s\n", s.Filed)
	b.WriteString("\nFILER:\n\n\tCOMPANY DATA:\t\n")
	fmt.Fprintf(&b, "\t\tCOMPANY CONFORMED NAME:\t\t\t%s\n", s.Company)
	fmt.Fprintf(&b, "\t\tCENTRAL INDEX KEY:\t\t\t%s\n", s.CIK)
	b.WriteString("\n\tFILING VALUES:\n")
	fmt.Fprintf(&b, "\t\tFORM TYPE:\t\t%s\n", s.Form)
	if s.FileNumber != "" {
		fmt.Fprintf(&b, "\t\tSEC FILE NUMBER:\t%s\n", s.FileNumber)
	}
	b.WriteString("</SEC-HEADER>\n")
	for i, d := range s.Documents {
		b.WriteString("<DOCUMENT>\n")
		fmt.Fprintf(&b, "<TYPE>%s\n<SEQUENCE>%d\n<FILENAME>%s\n", d.Type, i+1, d.Filename)
		if d.Description != "" {
			fmt.Fprintf(&b, "<DESCRIPTION>%s\n", d.Description)
		}
		b.WriteString("<TEXT>\n")
		b.WriteString(d.Body)
		if !strings.HasSuffix(d.Body, "\n") {
			b.WriteString("\n")
		}
		b.WriteString("</TEXT>\n</DOCUMENT>\n")
	}
	b.WriteString("</SEC-DOCUMENT>\n")
	return []byte(b.String())
}

// UUEncode encodes data the way the archive embeds binary documents.
func UUEncode(name string, data []byte) string {
	var b strings.Builder
	fmt.Fprintf(&b, "begin 644 %s\n", name)
	enc := func(c byte) byte {
		if c == 0 {
			return '`'
		}
		return c + ' '
	}
	for i := 0; i < len(data); i += 45 {
		chunk := data[i:min(i+45, len(data))]
		b.WriteByte(enc(byte(len(chunk))))
		for j := 0; j < len(chunk); j += 3 {
			var t [3]byte
			copy(t[:], chunk[j:])
			b.WriteByte(enc(t[0] >> 2))
			b.WriteByte(enc((t[0]<<4 | t[1]>>4) & 0x3f))
			b.WriteByte(enc((t[1]<<2 | t[2]>>6) & 0x3f))
			b.WriteByte(enc(t[2] & 0x3f))
		}
		b.WriteByte('\n')
	}
	b.WriteString("`\nend\n")
	return b.String()
}

// Fact is one instance fact in the us-gaap namespace.
type Fact struct {
	Name     string
	Context  string
	Value    string
	Decimals string
	Unit     string
}

// Context is an instance context. Instant wins over Start/End.
type Context struct {
	ID        string
	Instant   string
	Start     string
	End       string
	Dimension string
	Member    string
}

// Label is one us-gaap label resource.
type Label struct {
	Name string
	Text string
	Role string // empty means the standard label role
}

// Instance renders an XBRL instance with the us-gaap and xbrli prefixes. When
// prefixed is false the root and context elements use the default namespace.
func Instance(contexts []Context, facts []Fact, prefixed bool) string {
	root, ctx := "xbrli:xbrl", "xbrli:"
	if !prefixed {
		root, ctx = "xbrl", ""
	}
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="utf-8"?>` + "\n")
	fmt.Fprintf(&b, `<%s xmlns="http://www.xbrl.org/2003/instance" xmlns:xbrli="http://www.xbrl.org/2003/instance" `, root)
	b.WriteString(`xmlns:us-gaap="http://fasb.org/us-gaap/2012-01-31" xmlns:link="http://www.xbrl.org/2003/linkbase" `)
	b.WriteString(`xmlns:xlink="http://www.w3.org/1999/xlink" xmlns:xbrldi="http://xbrl.org/2006/xbrldi" xmlns:iso4217="http://www.xbrl.org/2003/iso4217">` + "\n")
	b.WriteString(`  <link:schemaRef xlink:type="simple" xlink:href="test-20130330.xsd"/>` + "\n")
	for _, c := range contexts {
		fmt.Fprintf(&b, "  <%scontext id=%q>\n", ctx, c.ID)
		fmt.Fprintf(&b, "    <%sentity><%sidentifier scheme=\"http://www.sec.gov/CIK\">0000320193</%sidentifier>", ctx, ctx, ctx)
		if c.Dimension != "" {
			fmt.Fprintf(&b, "<%ssegment><xbrldi:explicitMember dimension=%q>%s</xbrldi:explicitMember></%ssegment>", ctx, c.Dimension, c.Member, ctx)
		}
		fmt.Fprintf(&b, "</%sentity>\n", ctx)
		if c.Instant != "" {
			fmt.Fprintf(&b, "    <%speriod><%sinstant>%s</%sinstant></%speriod>\n", ctx, ctx, c.Instant, ctx, ctx)
		} else {
			fmt.Fprintf(&b, "    <%speriod><%sstartDate>%s</%sstartDate><%sendDate>%s</%sendDate></%speriod>\n",
				ctx, ctx, c.Start, ctx, ctx, c.End, ctx, ctx)
		}
		fmt.Fprintf(&b, "  </%scontext>\n", ctx)
	}
	fmt.Fprintf(&b, "  <%sunit id=\"USD\"><%smeasure>iso4217:USD</%smeasure></%sunit>\n", ctx, ctx, ctx, ctx)
	for _, f := range facts {
		attrs := fmt.Sprintf(` contextRef=%q`, f.Context)
		if f.Unit != "" {
			attrs += fmt.Sprintf(` unitRef=%q`, f.Unit)
		}
		if f.Decimals != "" {
			attrs += fmt.Sprintf(` decimals=%q`, f.Decimals)
		}
		fmt.Fprintf(&b, "  <us-gaap:%s%s>%s</us-gaap:%s>\n", f.Name, attrs, f.Value, f.Name)
	}
	fmt.Fprintf(&b, "</%s>\n", root)
	return b.String()
}

// LabelLinkbase renders a label linkbase with loc/labelArc/label triples.
func LabelLinkbase(labels []Label) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="utf-8"?>` + "\n")
	b.WriteString(`<link:linkbase xmlns:link="http://www.xbrl.org/2003/linkbase" xmlns:xlink="http://www.w3.org/1999/xlink" xmlns:xml="http://www.w3.org/XML/1998/namespace">` + "\n")
	b.WriteString(`  <link:labelLink xlink:type="extended" xlink:role="http://www.xbrl.org/2003/role/link">` + "\n")
	for i, l := range labels {
		role := l.Role
		if role == "" {
			role = "http://www.xbrl.org/2003/role/label"
		}
		loc := fmt.Sprintf("us-gaap_%s", l.Name)
		lab := fmt.Sprintf("lab_us-gaap_%s_%d", l.Name, i)
		fmt.Fprintf(&b, `    <link:loc xlink:type="locator" xlink:href="http://xbrl.fasb.org/us-gaap/2012/elts/us-gaap-2012-01-31.xsd#%s" xlink:label=%q/>`+"\n", loc, loc)
		fmt.Fprintf(&b, `    <link:labelArc xlink:type="arc" xlink:arcrole="http://www.xbrl.org/2003/arcrole/concept-label" xlink:from=%q xlink:to=%q/>`+"\n", loc, lab)
		fmt.Fprintf(&b, `    <link:label xlink:type="resource" xlink:label=%q xlink:role=%q xml:lang="en-US" id=%q>%s</link:label>`+"\n", lab, role, lab, l.Text)
	}
	b.WriteString("  </link:labelLink>\n</link:linkbase>\n")
	return b.String()
}

// Sheet is one worksheet of a generated workbook. Cells that parse as numbers
// are written as numeric cells, everything else as shared strings.
type Sheet struct {
	Name string
	Rows [][]string
}

// Workbook builds a minimal xlsx package.
func Workbook(sheets ...Sheet) []byte {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	write := func(name, body string) {
		w, err := zw.Create(name)
		if err != nil {
			panic(err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			panic(err)
		}
	}

	write("[Content_Types].xml", `<?xml version="1.0" encoding="UTF-8"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Override PartName="/xl/workbook.xml" ContentType="application/vnd.openxmlformats-officedocument.spreadsheetml.sheet.main+xml"/></Types>`)

	var shared []string
	index := map[string]int{}
	intern := func(s string) int {
		if i, ok := index[s]; ok {
			return i
		}
		index[s] = len(shared)
		shared = append(shared, s)
		return index[s]
	}

	var wb, rels strings.Builder
	wb.WriteString(`<?xml version="1.0" encoding="UTF-8"?><workbook xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"><sheets>`)
	rels.WriteString(`<?xml version="1.0" encoding="UTF-8"?><Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`)
	for i, s := range sheets {
		fmt.Fprintf(&wb, `<sheet name=%q sheetId="%d" r:id="rId%d"/>`, s.Name, i+1, i+1)
		fmt.Fprintf(&rels, `<Relationship Id="rId%d" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/worksheet" Target="worksheets/sheet%d.xml"/>`, i+1, i+1)

		var sb strings.Builder
		sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?><worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"><sheetData>`)
		for r, row := range s.Rows {
			fmt.Fprintf(&sb, `<row r="%d">`, r+1)
			for c, cell := range row {
				if cell == "" {
					continue
				}
				ref := fmt.Sprintf("%c%d", 'A'+c, r+1)
				if isNumber(cell) {
					fmt.Fprintf(&sb, `<c r=%q><v>%s</v></c>`, ref, cell)
				} else {
					fmt.Fprintf(&sb, `<c r=%q t="s"><v>%d</v></c>`, ref, intern(cell))
				}
			}
			sb.WriteString(`</row>`)
		}
		sb.WriteString(`</sheetData></worksheet>`)
		write(fmt.Sprintf("xl/worksheets/sheet%d.xml", i+1), sb.String())
	}
	wb.WriteString(`</sheets></workbook>`)
	rels.WriteString(`</Relationships>`)
	write("xl/workbook.xml", wb.String())
	write("xl/_rels/workbook.xml.rels", rels.String())

	var ss strings.Builder
	fmt.Fprintf(&ss, `<?xml version="1.0" encoding="UTF-8"?><sst xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" count="%d" uniqueCount="%d">`, len(shared), len(shared))
	for _, s := range shared {
		ss.WriteString("<si><t>")
		ss.WriteString(xmlEscape(s))
		ss.WriteString("</t></si>")
	}
	ss.WriteString("</sst>")
	write("xl/sharedStrings.xml", ss.String())

	if err := zw.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func isNumber(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		if (c < '0' || c > '9') && c != '.' && !(c == '-' && i == 0) {
			return false
		}
	}
	return true
}

func xmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}
