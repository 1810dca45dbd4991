package filing

import (
	"bytes"
	"encoding/base64"
	"errors"
	"testing"

	"edgar_facts/pkg/core/filing/filingtest"
)

func sampleSubmission() filingtest.Submission {
	workbook := filingtest.Workbook(filingtest.Sheet{Name: "Sheet1", Rows: [][]string{{"Balance Sheet"}}})
	return filingtest.Submission{
		Accession: "0001193125-13-168288",
		CIK:       "320193",
		Form:      "10-Q",
		Company:   "APPLE INC",
		Filed:     "20130424",
		Period:    "20130330",
		Documents: []filingtest.Document{
			{Type: "10-Q", Filename: "d486465d10q.htm", Body: "<html><body>quarterly report</body></html>"},
			{Type: "EX-101.INS", Filename: "aapl-20130330.xml", Body: filingtest.Instance(
				[]filingtest.Context{{ID: "FI2013Q2", Instant: "2013-03-30"}},
				[]filingtest.Fact{{Name: "Assets", Context: "FI2013Q2", Value: "194743000000", Decimals: "-6", Unit: "USD"}},
				true)},
			{Type: "EX-101.LAB", Filename: "aapl-20130330_lab.xml", Body: filingtest.LabelLinkbase([]filingtest.Label{{Name: "Assets", Text: "Total assets"}})},
			{Type: "EX-101.PRE", Filename: "aapl-20130330_pre.xml", Body: `<link:linkbase xmlns:link="http://www.xbrl.org/2003/linkbase"><link:presentationLink/></link:linkbase>`},
			{Type: "EXCEL", Filename: "Financial_Report.xlsx", Body: filingtest.UUEncode("Financial_Report.xlsx", workbook)},
		},
	}
}

func TestScanClassifiesSections(t *testing.T) {
	data := sampleSubmission().Bytes()
	content := NewFileContent("sample", data)
	sections := Scan(content)

	wantTypes := []SectionType{Other, Header, Other, XBRLInstance, LabelLinkbase, Other, XLSBinary}
	if len(sections) != len(wantTypes) {
		t.Fatalf("got %d sections, want %d: %v", len(sections), len(wantTypes), sections)
	}
	for i, want := range wantTypes {
		if sections[i].Type != want {
			t.Errorf("section %d: got %s, want %s", i, sections[i].Type, want)
		}
	}
	if err := VerifyCoverage(sections, len(data)); err != nil {
		t.Fatalf("coverage: %v", err)
	}

	inst, ok := Find(sections, XBRLInstance)
	if !ok {
		t.Fatal("instance not found")
	}
	if inst.Filename != "aapl-20130330.xml" || inst.Sequence != "2" {
		t.Errorf("unexpected metadata: %+v", inst)
	}
	body, err := content.Body(inst)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(body, []byte("<?xml")) {
		t.Errorf("instance body should start with the prolog, got %q", body[:20])
	}
	if bytes.Contains(body, []byte("</TEXT>")) {
		t.Error("body must stop before </TEXT>")
	}
}

func TestScanXMLTypeByRootElement(t *testing.T) {
	tests := []struct {
		name string
		body string
		want SectionType
	}{
		{"prefixed instance", `<?xml version="1.0"?><!-- generated --><xbrli:xbrl xmlns:xbrli="x"></xbrli:xbrl>`, XBRLInstance},
		{"wrapped instance", "<XBRL>\n<?xml version=\"1.0\"?>\n<xbrl xmlns=\"x\"></xbrl>\n</XBRL>", XBRLInstance},
		{"label linkbase", `<linkbase xmlns="x"><labelLink/></linkbase>`, LabelLinkbase},
		{"calculation linkbase", `<linkbase xmlns="x"><calculationLink/></linkbase>`, Other},
		{"schema", `<xsd:schema xmlns:xsd="x"/>`, Other},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := filingtest.Submission{Accession: "a", CIK: "1", Form: "10-K", Filed: "20130101",
				Documents: []filingtest.Document{{Type: "XML", Filename: "doc.xml", Body: tt.body}}}
			sections := Scan(NewFileContent("x", s.Bytes()))
			if got := sections[len(sections)-1].Type; got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestScanWithoutMarkers(t *testing.T) {
	data := []byte("just some text\nwith <TAGS> that are not markers\n")
	sections := Scan(NewFileContent("plain", data))
	if len(sections) != 1 || sections[0].Type != Other {
		t.Fatalf("expected one Other section, got %v", sections)
	}
	if err := VerifyCoverage(sections, len(data)); err != nil {
		t.Error(err)
	}

	empty := Scan(NewFileContent("empty", nil))
	if len(empty) != 1 || empty[0].Len() != 0 {
		t.Fatalf("empty buffer should produce one empty Other section, got %v", empty)
	}
}

func TestScanMarkerMustStartLine(t *testing.T) {
	data := []byte("<SEC-HEADER>\nCENTRAL INDEX KEY: 1\n</SEC-HEADER>\n<DOCUMENT>\n<TYPE>10-K\n<TEXT>\nquoted inline <DOCUMENT> marker\n</TEXT>\n</DOCUMENT>\n")
	sections := Scan(NewFileContent("x", data))
	if len(sections) != 2 {
		t.Fatalf("got %d sections, want 2", len(sections))
	}
	if err := VerifyCoverage(sections, len(data)); err != nil {
		t.Error(err)
	}
}

func TestSectionOwnership(t *testing.T) {
	a := NewFileContent("a", sampleSubmission().Bytes())
	b := NewFileContent("b", sampleSubmission().Bytes())
	sections := Scan(a)

	if _, err := b.Bytes(sections[1]); !errors.Is(err, ErrForeignSection) {
		t.Errorf("expected ErrForeignSection, got %v", err)
	}
	a.Release()
	if _, err := a.Body(sections[1]); !errors.Is(err, ErrReleased) {
		t.Errorf("expected ErrReleased, got %v", err)
	}
	if Scan(a) != nil {
		t.Error("scanning a released buffer should return nil")
	}
}

func TestDecodeEmbedded(t *testing.T) {
	payload := make([]byte, 1000)
	for i := range payload {
		payload[i] = byte(i * 7)
	}

	t.Run("uuencode", func(t *testing.T) {
		name, data, err := DecodeEmbedded([]byte(filingtest.UUEncode("Financial_Report.xlsx", payload)))
		if err != nil {
			t.Fatal(err)
		}
		if name != "Financial_Report.xlsx" {
			t.Errorf("name = %q", name)
		}
		if !bytes.Equal(data, payload) {
			t.Error("decoded payload differs")
		}
	})

	t.Run("base64", func(t *testing.T) {
		enc := base64.StdEncoding.EncodeToString(payload)
		var lines []byte
		for i := 0; i < len(enc); i += 76 {
			lines = append(lines, enc[i:min(i+76, len(enc))]...)
			lines = append(lines, '\n')
		}
		_, data, err := DecodeEmbedded(lines)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(data, payload) {
			t.Error("decoded payload differs")
		}
	})

	t.Run("plain text", func(t *testing.T) {
		if _, _, err := DecodeEmbedded([]byte("<html>hello</html>")); !errors.Is(err, ErrNotEmbedded) {
			t.Errorf("expected ErrNotEmbedded, got %v", err)
		}
	})
}
