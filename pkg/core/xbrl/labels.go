package xbrl

import (
	"encoding/xml"
	"io"
	"strings"
	"unicode"

	"edgar_facts/pkg/models"
)

const standardLabelRole = "http://www.xbrl.org/2003/role/label"

type labelResource struct {
	label string
	role  string
	id    string
	text  string
}

type labelArc struct{ from, to string }

type labelLink struct {
	locs      map[string]string // xlink:label -> tag id
	arcs      []labelArc
	resources []labelResource
}

type labelChoice struct {
	text     string
	standard bool
}

// parseLabelLinkbase returns the labels of one linkbase keyed by tag id. Labels
// are reached through loc -> labelArc -> label; resources no arc points at are
// keyed by the tag id encoded in their id or xlink:label. Within one linkbase
// the standard label role wins over other roles.
func parseLabelLinkbase(data []byte) (models.LabelTable, error) {
	dec := newDecoder(data)
	chosen := make(map[string]labelChoice)
	var link *labelLink

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "labelLink":
				link = &labelLink{locs: make(map[string]string)}
			case "loc":
				if link != nil {
					link.locs[getAttr(t, "label")] = tagFromHref(getAttr(t, "href"))
				}
			case "labelArc":
				if link != nil {
					link.arcs = append(link.arcs, labelArc{from: getAttr(t, "from"), to: getAttr(t, "to")})
				}
			case "label":
				if link == nil {
					continue
				}
				var v struct {
					Text string `xml:",chardata"`
				}
				if err := dec.DecodeElement(&v, &t); err != nil {
					return nil, err
				}
				link.resources = append(link.resources, labelResource{
					label: getAttr(t, "label"),
					role:  getAttr(t, "role"),
					id:    getAttr(t, "id"),
					text:  strings.TrimSpace(v.Text),
				})
			}
		case xml.EndElement:
			if t.Name.Local == "labelLink" && link != nil {
				link.resolve(chosen)
				link = nil
			}
		}
	}

	out := make(models.LabelTable, len(chosen))
	for tag, c := range chosen {
		out[tag] = c.text
	}
	return out, nil
}

func (l *labelLink) resolve(chosen map[string]labelChoice) {
	byLabel := make(map[string][]int)
	for i, r := range l.resources {
		byLabel[r.label] = append(byLabel[r.label], i)
	}

	used := make([]bool, len(l.resources))
	for _, arc := range l.arcs {
		tag := l.locs[arc.from]
		if tag == "" {
			continue
		}
		for _, i := range byLabel[arc.to] {
			choose(chosen, tag, l.resources[i])
			used[i] = true
		}
	}

	for i, r := range l.resources {
		if used[i] {
			continue
		}
		tag := tagFromLabelID(r.id)
		if tag == "" {
			tag = tagFromLabelID(r.label)
		}
		if tag != "" {
			choose(chosen, tag, r)
		}
	}
}

func choose(chosen map[string]labelChoice, tag string, r labelResource) {
	standard := r.role == "" || r.role == standardLabelRole
	prev, ok := chosen[tag]
	if !ok || (standard && !prev.standard) {
		chosen[tag] = labelChoice{text: r.text, standard: standard}
	}
}

// tagFromHref turns "...us-gaap-2012-01-31.xsd#us-gaap_Assets" into "Assets".
func tagFromHref(href string) string {
	frag := href
	if k := strings.LastIndexByte(href, '#'); k >= 0 {
		frag = href[k+1:]
	}
	if k := strings.IndexByte(frag, '_'); k >= 0 && k+1 < len(frag) {
		return frag[k+1:]
	}
	return frag
}

// tagFromLabelID recovers the tag id from label ids such as
// "lab_us-gaap_Assets_label_en-US" or "aapl_ProductsAndServicesAxis_lbl": the
// "lab_"/"label_" prefix, the namespace prefix and the role/hash suffix are dropped.
func tagFromLabelID(id string) string {
	id = strings.TrimPrefix(id, "lab_")
	id = strings.TrimPrefix(id, "label_")
	parts := strings.Split(id, "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		if startsUpper(p) {
			return p
		}
		if i > 0 {
			break
		}
	}
	return ""
}

func startsUpper(s string) bool {
	for _, r := range s {
		return unicode.IsUpper(r)
	}
	return false
}
