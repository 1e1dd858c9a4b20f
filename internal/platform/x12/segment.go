// Package x12 renders and parses ASC X12 005010 interchanges: envelope
// framing, the 270/276/837P/835/277 bodies this service exchanges with its
// clearinghouse, and typed readers for inbound 835 and 277 content.
package x12

import (
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	ElementSep    = "*"
	SegmentTerm   = "~"
	ComponentSep  = ":"
	RepetitionSep = "^"
)

// TransactionType is an X12 transaction set identifier (ST01).
type TransactionType string

const (
	Type837 TransactionType = "837"
	Type835 TransactionType = "835"
	Type270 TransactionType = "270"
	Type271 TransactionType = "271"
	Type276 TransactionType = "276"
	Type277 TransactionType = "277"
)

var transactionTypes = map[TransactionType]struct {
	functionalID string
	version      string
}{
	Type270: {"HS", "005010X279A1"},
	Type271: {"HB", "005010X279A1"},
	Type276: {"HR", "005010X212"},
	Type277: {"HN", "005010X212"},
	Type837: {"HC", "005010X222A1"},
	Type835: {"HP", "005010X221A1"},
}

func IsValidType(s string) bool {
	_, ok := transactionTypes[TransactionType(s)]
	return ok
}

// FunctionalID is the GS01 code for the transaction set.
func (t TransactionType) FunctionalID() string { return transactionTypes[t].functionalID }

// Version is the implementation guide reference used in GS08 and ST03.
func (t TransactionType) Version() string { return transactionTypes[t].version }

// Segment is one X12 segment: its identifier and elements, 1-based as in the
// implementation guides (Elements[0] is element 01).
type Segment struct {
	ID       string
	Elements []string
}

// Seg builds a segment, scrubbing delimiter characters out of element values.
// Only elements built with comp keep their component separators.
func Seg(id string, elements ...string) Segment {
	clean := make([]string, len(elements))
	for i, e := range elements {
		if !strings.Contains(e, compositeMark) {
			clean[i] = scrub(e)
			continue
		}
		parts := strings.Split(e, compositeMark)
		for j, p := range parts {
			parts[j] = scrub(p)
		}
		clean[i] = strings.Join(parts, ComponentSep)
	}
	return Segment{ID: id, Elements: clean}
}

// compositeMark stands in for ComponentSep between comp and Seg so that a
// literal ":" in free text is never taken for a component boundary.
const compositeMark = "\x1f"

var delimiterReplacer = strings.NewReplacer(
	ElementSep, " ", SegmentTerm, " ", RepetitionSep, " ", ComponentSep, " ",
	compositeMark, " ", "\r", " ", "\n", " ",
)

// scrub removes delimiters from free-text values. X12 has no escape syntax.
func scrub(v string) string {
	return delimiterReplacer.Replace(v)
}

// String renders the segment without its terminator. Trailing empty elements
// are dropped.
func (s Segment) String() string {
	els := s.Elements
	for len(els) > 0 && els[len(els)-1] == "" {
		els = els[:len(els)-1]
	}
	if len(els) == 0 {
		return s.ID
	}
	return s.ID + ElementSep + strings.Join(els, ElementSep)
}

// Element returns element i (1-based) or "".
func (s Segment) Element(i int) string {
	if i < 1 || i > len(s.Elements) {
		return ""
	}
	return s.Elements[i-1]
}

// Component returns component j (1-based) of element i.
func (s Segment) Component(i, j int) string {
	parts := strings.Split(s.Element(i), ComponentSep)
	if j < 1 || j > len(parts) {
		return ""
	}
	return parts[j-1]
}

// Composite joins components with the component separator. The result is
// for display; segment builders use comp so Seg can tell the two apart.
func Composite(parts ...string) string {
	parts = trimEmpty(parts)
	clean := make([]string, len(parts))
	for i, p := range parts {
		clean[i] = scrub(p)
	}
	return strings.Join(clean, ComponentSep)
}

// comp marks a composite element for Seg.
func comp(parts ...string) string {
	parts = trimEmpty(parts)
	clean := make([]string, len(parts))
	for i, p := range parts {
		clean[i] = strings.ReplaceAll(p, compositeMark, " ")
	}
	return strings.Join(clean, compositeMark)
}

func trimEmpty(parts []string) []string {
	for len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return parts
}

// Date renders CCYYMMDD.
func Date(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("20060102")
}

// Amount renders a monetary value with at most two decimals and no trailing
// zeros, the way X12 R-type elements are written.
func Amount(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}

// ParseDate reads a CCYYMMDD (D8) value.
func ParseDate(s string) (time.Time, bool) {
	t, err := time.Parse("20060102", strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ParseAmount reads an R-type element; empty or malformed values are 0.
func ParseAmount(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
