package xbrl

import (
	"bytes"
	"encoding/xml"
	"io"
	"regexp"
	"strings"

	"edgar_facts/pkg/models"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html/charset"
)

func newDecoder(data []byte) *xml.Decoder {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = charset.NewReaderLabel
	dec.Entity = xml.HTMLEntity
	return dec
}

// getAttr matches by local name so prefixed and unprefixed attributes are equal.
func getAttr(se xml.StartElement, local string) string {
	for _, a := range se.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

type xmlMember struct {
	Dimension string `xml:"dimension,attr"`
	Value     string `xml:",innerxml"`
}

type xmlSegment struct {
	Explicit []xmlMember `xml:"explicitMember"`
	Typed    []xmlMember `xml:"typedMember"`
}

type xmlContext struct {
	ID     string `xml:"id,attr"`
	Entity struct {
		Identifier string     `xml:"identifier"`
		Segment    xmlSegment `xml:"segment"`
	} `xml:"entity"`
	Period struct {
		Instant   string `xml:"instant"`
		StartDate string `xml:"startDate"`
		EndDate   string `xml:"endDate"`
	} `xml:"period"`
	Scenario xmlSegment `xml:"scenario"`
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

func (xc xmlContext) model() models.Context {
	ctx := models.Context{
		ID:     xc.ID,
		Entity: strings.TrimSpace(xc.Entity.Identifier),
		Period: models.Period{
			Instant:   strings.TrimSpace(xc.Period.Instant),
			StartDate: strings.TrimSpace(xc.Period.StartDate),
			EndDate:   strings.TrimSpace(xc.Period.EndDate),
		},
	}
	for _, seg := range []xmlSegment{xc.Entity.Segment, xc.Scenario} {
		for _, m := range seg.Explicit {
			ctx.Segment = append(ctx.Segment, models.DimensionMember{
				Dimension: m.Dimension,
				Member:    strings.TrimSpace(m.Value),
			})
		}
		for _, m := range seg.Typed {
			ctx.Segment = append(ctx.Segment, models.DimensionMember{
				Dimension: m.Dimension,
				Member:    strings.TrimSpace(tagPattern.ReplaceAllString(m.Value, "")),
				Typed:     true,
			})
		}
	}
	return ctx
}

// children of the root that never carry facts
var infrastructure = map[string]bool{
	"unit":         true,
	"schemaRef":    true,
	"linkbaseRef":  true,
	"roleRef":      true,
	"arcroleRef":   true,
	"footnoteLink": true,
}

// parseInstance walks the instance token stream once. Elements are matched by
// local name, so documents with or without namespace prefixes parse the same.
// Elements without a contextRef are containers (the root, tuples) and are
// descended into.
func parseInstance(data []byte) ([]models.GAAPFact, models.ContextTable, error) {
	dec := newDecoder(data)
	contexts := make(models.ContextTable)
	var facts []models.GAAPFact
	rootSeen := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if !rootSeen {
			rootSeen = true
			if se.Name.Local != "xbrl" {
				return nil, nil, eris.Errorf("root element is %q, not xbrl", se.Name.Local)
			}
			continue
		}

		switch {
		case se.Name.Local == "context":
			var xc xmlContext
			if err := dec.DecodeElement(&xc, &se); err != nil {
				return nil, nil, err
			}
			contexts[xc.ID] = xc.model()
		case infrastructure[se.Name.Local]:
			if err := dec.Skip(); err != nil {
				return nil, nil, err
			}
		default:
			ref := getAttr(se, "contextRef")
			if ref == "" {
				continue
			}
			var v struct {
				Text string `xml:",chardata"`
			}
			if err := dec.DecodeElement(&v, &se); err != nil {
				return nil, nil, err
			}
			facts = append(facts, models.GAAPFact{
				Label:     se.Name.Local,
				ContextID: ref,
				Value:     strings.TrimSpace(v.Text),
				Decimals:  getAttr(se, "decimals"),
				Unit:      getAttr(se, "unitRef"),
			})
		}
	}
	if !rootSeen {
		return nil, nil, eris.New("no root element")
	}
	return facts, contexts, nil
}
