package communication

import "fmt"

// MarkType is a kind of inline formatting.
type MarkType string

const (
	Bold      MarkType = "bold"
	Italic    MarkType = "italic"
	Underline MarkType = "underline"
)

// MarkTypes lists every known mark type in canonical order
var MarkTypes = []MarkType{Bold, Italic, Underline}

func (m MarkType) Valid() bool {
	switch m {
	case Bold, Italic, Underline:
		return true
	}
	return false
}

// ParseMarkType returns the mark type named s
func ParseMarkType(s string) (MarkType, error) {
	m := MarkType(s)
	if !m.Valid() {
		return "", fmt.Errorf("unknown mark type %q", s)
	}
	return m, nil
}

// Side says which edge of a character a span marker is attached to.
type Side string

const (
	Before Side = "before"
	After  Side = "after"
)

// SpanMarker anchors a formatting boundary to an inserted character rather than to an index,
// so the boundary follows the character through concurrent edits.
type SpanMarker struct {
	Side Side `json:"side"`
	ID   OpID `json:"id"`
}

func BeforeID(id OpID) SpanMarker { return SpanMarker{Side: Before, ID: id} }

func AfterID(id OpID) SpanMarker { return SpanMarker{Side: After, ID: id} }

func (m SpanMarker) String() string {
	return string(m.Side) + "(" + m.ID.String() + ")"
}
