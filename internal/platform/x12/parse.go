package x12

import (
	"fmt"
	"strings"
)

// Interchange is a parsed X12 document. Segments holds every segment in
// document order, envelope included.
type Interchange struct {
	SenderID           string
	ReceiverID         string
	ControlNumber      string
	GroupControl       string
	TransactionType    TransactionType
	TransactionControl string
	Segments           []Segment
}

// Parse splits raw into segments. When raw starts with a full ISA header the
// delimiters declared there are honoured, otherwise the defaults are assumed.
// Line breaks around terminators are ignored. Control totals are not checked.
func Parse(raw string) (*Interchange, error) {
	text := strings.TrimLeft(raw, " \t\r\n")
	if text == "" {
		return nil, fmt.Errorf("x12: document is empty")
	}

	elemSep, segTerm, compSep := ElementSep, SegmentTerm, ComponentSep
	if strings.HasPrefix(text, "ISA") && len(text) > 105 {
		elemSep, compSep, segTerm = text[3:4], text[104:105], text[105:106]
	}

	ic := &Interchange{}
	for _, chunk := range strings.Split(text, segTerm) {
		chunk = strings.Trim(chunk, " \t\r\n")
		if chunk == "" {
			continue
		}
		parts := strings.Split(chunk, elemSep)
		seg := Segment{ID: parts[0], Elements: parts[1:]}
		if compSep != ComponentSep && seg.ID != "ISA" {
			for i, e := range seg.Elements {
				seg.Elements[i] = strings.ReplaceAll(e, compSep, ComponentSep)
			}
		}
		ic.Segments = append(ic.Segments, seg)
	}
	if len(ic.Segments) == 0 {
		return nil, fmt.Errorf("x12: no segments found")
	}

	if isa := ic.First("ISA"); isa != nil {
		ic.SenderID = strings.TrimSpace(isa.Element(6))
		ic.ReceiverID = strings.TrimSpace(isa.Element(8))
		ic.ControlNumber = isa.Element(13)
	}
	if gs := ic.First("GS"); gs != nil {
		ic.GroupControl = gs.Element(6)
		if ic.SenderID == "" {
			ic.SenderID = gs.Element(2)
			ic.ReceiverID = gs.Element(3)
		}
	}
	if st := ic.First("ST"); st != nil {
		ic.TransactionType = TransactionType(st.Element(1))
		ic.TransactionControl = st.Element(2)
	}
	return ic, nil
}

// First returns the first segment with the given id.
func (ic *Interchange) First(id string) *Segment {
	for i := range ic.Segments {
		if ic.Segments[i].ID == id {
			return &ic.Segments[i]
		}
	}
	return nil
}

func (ic *Interchange) All(id string) []Segment {
	var out []Segment
	for _, s := range ic.Segments {
		if s.ID == id {
			out = append(out, s)
		}
	}
	return out
}

// Body returns the segments between ST and SE. A document without ST is all
// body.
func (ic *Interchange) Body() []Segment {
	start, end := -1, len(ic.Segments)
	for i, s := range ic.Segments {
		switch s.ID {
		case "ST":
			if start < 0 {
				start = i
			}
		case "SE":
			if start >= 0 {
				end = i
				return ic.Segments[start+1 : end]
			}
		}
	}
	if start < 0 {
		return ic.Segments
	}
	return ic.Segments[start+1 : end]
}

// IDs lists segment identifiers in document order.
func (ic *Interchange) IDs() []string {
	ids := make([]string, len(ic.Segments))
	for i, s := range ic.Segments {
		ids[i] = s.ID
	}
	return ids
}
