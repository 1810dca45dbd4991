package xbrl

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"edgar_facts/pkg/core/filing"
	"edgar_facts/pkg/core/filing/filingtest"
)

// quarterlyFixture models a 10-Q with 37 contexts, 125 concepts and 194 facts,
// every fact resolving against one label linkbase.
func quarterlyFixture() ([]filingtest.Context, []filingtest.Fact, []filingtest.Label) {
	var contexts []filingtest.Context
	for i := 0; i < 37; i++ {
		c := filingtest.Context{ID: fmt.Sprintf("D2013Q2_%02d", i)}
		switch {
		case i%3 == 0:
			c.Instant = "2013-03-30"
		case i%3 == 1:
			c.Start, c.End = "2012-12-30", "2013-03-30"
		default:
			c.Instant = "2012-09-29"
			c.Dimension = "us-gaap:StatementBusinessSegmentsAxis"
			c.Member = fmt.Sprintf("aapl:Segment%dMember", i)
		}
		contexts = append(contexts, c)
	}

	var labels []filingtest.Label
	for i := 0; i < 125; i++ {
		name := fmt.Sprintf("Concept%03d", i)
		labels = append(labels, filingtest.Label{Name: name, Text: fmt.Sprintf("Concept number %d", i)})
		if i%10 == 0 {
			labels = append(labels, filingtest.Label{Name: name, Text: "terse", Role: "http://www.xbrl.org/2003/role/terseLabel"})
		}
	}

	var facts []filingtest.Fact
	for i := 0; i < 194; i++ {
		facts = append(facts, filingtest.Fact{
			Name:     fmt.Sprintf("Concept%03d", i%125),
			Context:  contexts[i%37].ID,
			Value:    fmt.Sprintf("%d", (i+1)*1000),
			Decimals: "-6",
			Unit:     "USD",
		})
	}
	return contexts, facts, labels
}

func TestExtractQuarterlyFixture(t *testing.T) {
	contexts, facts, labels := quarterlyFixture()
	sub := filingtest.Submission{
		Accession: "0001193125-13-168288", CIK: "320193", Form: "10-Q", Company: "APPLE INC",
		Filed: "20130424", Period: "20130330",
		Documents: []filingtest.Document{
			{Type: "10-Q", Filename: "d486465d10q.htm", Body: "<html></html>"},
			{Type: "EX-101.INS", Filename: "aapl-20130330.xml", Body: filingtest.Instance(contexts, facts, true)},
			{Type: "EX-101.LAB", Filename: "aapl-20130330_lab.xml", Body: filingtest.LabelLinkbase(labels)},
		},
	}
	content := filing.NewFileContent("aapl", sub.Bytes())

	res, err := Extract(content, filing.Scan(content))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(res.Facts) != 194 {
		t.Errorf("facts = %d, want 194", len(res.Facts))
	}
	if len(res.Labels) != 125 {
		t.Errorf("labels = %d, want 125", len(res.Labels))
	}
	if len(res.Contexts) != 37 {
		t.Errorf("contexts = %d, want 37", len(res.Contexts))
	}
	if res.MissingValues() != 0 || len(res.UnresolvedFacts) != 0 {
		t.Errorf("expected every fact to resolve, missing labels=%d contexts=%d", res.MissingLabels, res.MissingContexts)
	}
	if got := res.Labels["Concept000"]; got != "Concept number 0" {
		t.Errorf("standard role should win over terse label, got %q", got)
	}

	first := res.Facts[0]
	if first.Label != "Concept000" || first.ContextID != "D2013Q2_00" || first.Value != "1000" || first.Decimals != "-6" || first.Unit != "USD" {
		t.Errorf("unexpected first fact %+v", first)
	}
	seg := res.Contexts["D2013Q2_02"]
	if len(seg.Segment) != 1 || seg.Segment[0].Member != "aapl:Segment2Member" {
		t.Errorf("segment not parsed: %+v", seg)
	}
	if !res.Contexts["D2013Q2_01"].Period.IsDuration() {
		t.Error("duration context not parsed")
	}
}

func TestNamespaceStrippingRoundTrip(t *testing.T) {
	contexts, facts, _ := quarterlyFixture()
	prefixed := filingtest.Instance(contexts, facts, true)
	stripped := strings.NewReplacer("us-gaap:", "", "xbrli:", "", "xbrldi:", "", "link:", "").Replace(prefixed)

	a, err := ExtractFromBytes("prefixed", []byte(prefixed))
	if err != nil {
		t.Fatal(err)
	}
	b, err := ExtractFromBytes("stripped", []byte(stripped))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a.Facts, b.Facts) {
		t.Error("facts differ after stripping namespace prefixes")
	}
	if len(a.Contexts) != len(b.Contexts) {
		t.Errorf("contexts differ: %d vs %d", len(a.Contexts), len(b.Contexts))
	}
}

func TestUnresolvedFactsAreCounted(t *testing.T) {
	instance := filingtest.Instance(
		[]filingtest.Context{{ID: "c1", Instant: "2013-03-30"}},
		[]filingtest.Fact{
			{Name: "Assets", Context: "c1", Value: "10"},
			{Name: "Liabilities", Context: "c1", Value: "5"},
			{Name: "Assets", Context: "c9", Value: "7"},
		}, true)
	lb := filingtest.LabelLinkbase([]filingtest.Label{{Name: "Assets", Text: "Total assets"}})

	res, err := ExtractFromBytes("x", []byte(instance), []byte(lb))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Facts) != 3 {
		t.Fatalf("unresolved facts must not be dropped, got %d facts", len(res.Facts))
	}
	if res.MissingLabels != 1 || res.MissingContexts != 1 {
		t.Errorf("missing labels=%d contexts=%d, want 1 and 1", res.MissingLabels, res.MissingContexts)
	}
	if len(res.UnresolvedFacts) != 2 {
		t.Errorf("unresolved = %d, want 2", len(res.UnresolvedFacts))
	}
}

func TestLaterLinkbaseWins(t *testing.T) {
	instance := filingtest.Instance(nil, nil, true)
	first := filingtest.LabelLinkbase([]filingtest.Label{{Name: "Assets", Text: "Assets"}, {Name: "Revenues", Text: "Revenue"}})
	second := filingtest.LabelLinkbase([]filingtest.Label{{Name: "Assets", Text: "Total assets"}})

	res, err := ExtractFromBytes("x", []byte(instance), []byte(first), []byte(second))
	if err != nil {
		t.Fatal(err)
	}
	if res.Labels["Assets"] != "Total assets" {
		t.Errorf("Assets = %q, want the later linkbase's label", res.Labels["Assets"])
	}
	if res.Labels["Revenues"] != "Revenue" {
		t.Errorf("Revenues = %q", res.Labels["Revenues"])
	}
}

func TestLabelIDFallback(t *testing.T) {
	lb := `<linkbase xmlns="http://www.xbrl.org/2003/linkbase" xmlns:xlink="http://www.w3.org/1999/xlink">
<labelLink>
<label xlink:label="lab_us-gaap_NetIncomeLoss_terseLabel_en-US" xlink:role="http://www.xbrl.org/2003/role/terseLabel">Net income</label>
<label id="aapl_ProductsAndServicesAxis_lbl_3f9a">Products and Services</label>
</labelLink>
</linkbase>`
	labels, err := parseLabelLinkbase([]byte(lb))
	if err != nil {
		t.Fatal(err)
	}
	if labels["NetIncomeLoss"] != "Net income" {
		t.Errorf("NetIncomeLoss = %q", labels["NetIncomeLoss"])
	}
	if labels["ProductsAndServicesAxis"] != "Products and Services" {
		t.Errorf("ProductsAndServicesAxis = %q", labels["ProductsAndServicesAxis"])
	}
}

func TestDecimalsINFAndCharset(t *testing.T) {
	instance := "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?>\n" +
		"<xbrl xmlns:dei=\"http://xbrl.sec.gov/dei/2012-01-31\">" +
		"<context id=\"c1\"><entity><identifier>1</identifier></entity><period><instant>2013-03-30</instant></period></context>" +
		"<dei:EntityRegistrantName contextRef=\"c1\">Soci\xe9t\xe9 G\xe9n\xe9rale</dei:EntityRegistrantName>" +
		"<dei:EntityCommonStockSharesOutstanding contextRef=\"c1\" unitRef=\"shares\" decimals=\"INF\">938649000</dei:EntityCommonStockSharesOutstanding>" +
		"</xbrl>"

	res, err := ExtractFromBytes("x", []byte(instance))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Facts) != 2 {
		t.Fatalf("facts = %d", len(res.Facts))
	}
	if res.Facts[0].Value != "Société Générale" {
		t.Errorf("charset not decoded: %q", res.Facts[0].Value)
	}
	if res.Facts[1].Decimals != "INF" {
		t.Errorf("decimals = %q, want INF", res.Facts[1].Decimals)
	}
}

func TestExtractErrors(t *testing.T) {
	t.Run("no instance", func(t *testing.T) {
		content := filing.NewFileContent("x", []byte("plain text"))
		_, err := Extract(content, filing.Scan(content))
		if !errors.Is(err, ErrNoInstanceDocument) {
			t.Errorf("expected ErrNoInstanceDocument, got %v", err)
		}
	})

	t.Run("truncated instance", func(t *testing.T) {
		_, err := ExtractFromBytes("aapl-20130330.xml", []byte(`<xbrli:xbrl xmlns:xbrli="x"><us-gaap:Assets contextRef="c1">10`))
		if !errors.Is(err, ErrBadXML) {
			t.Fatalf("expected ErrBadXML, got %v", err)
		}
		var bad *BadXMLError
		if !errors.As(err, &bad) || bad.Document != "aapl-20130330.xml" {
			t.Errorf("expected BadXMLError naming the document, got %v", err)
		}
	})

	t.Run("wrong root", func(t *testing.T) {
		_, err := ExtractFromBytes("x", []byte(`<html><body/></html>`))
		if !errors.Is(err, ErrBadXML) {
			t.Errorf("expected ErrBadXML, got %v", err)
		}
	})

	t.Run("archive wrapper", func(t *testing.T) {
		wrapped := "<XBRL>\n" + filingtest.Instance([]filingtest.Context{{ID: "c1", Instant: "2013-03-30"}},
			[]filingtest.Fact{{Name: "Assets", Context: "c1", Value: "1"}}, true) + "</XBRL>\n"
		res, err := ExtractFromBytes("x", []byte(wrapped))
		if err != nil || len(res.Facts) != 1 {
			t.Errorf("wrapped instance: facts=%d err=%v", len(res.Facts), err)
		}
	})
}
