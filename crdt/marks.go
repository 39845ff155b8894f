package crdt

import (
	"fmt"

	"quilt/packages/communication"

	mapset "github.com/deckarep/golang-set/v2"
)

// Span is a resolved formatting range over live character indices, both ends inclusive.
type Span struct {
	Mark  communication.MarkType
	Start int
	End   int
}

func (s Span) Covers(i int) bool {
	return s.Start <= i && i <= s.End
}

// Run is a maximal stretch of text sharing one set of marks
type Run struct {
	Start int
	Text  string
	Marks []communication.MarkType
}

type markRange struct {
	mark       communication.MarkType
	start, end communication.SpanMarker
}

// Project resolves the AddMark and RemoveMark operations of a log against its content.
//
// Operations are taken in log order. A RemoveMark cancels every earlier AddMark with the
// same mark type and identical boundaries. Marks whose boundaries are not live characters
// are inactive.
func Project(content *Content, ops []communication.Operation) []Span {
	var active []markRange
	for _, op := range ops {
		switch k := op.Kind.(type) {
		case communication.AddMark:
			active = append(active, markRange{mark: k.Mark, start: k.Start, end: k.End})
		case communication.RemoveMark:
			cancel := markRange{mark: k.Mark, start: k.Start, end: k.End}
			kept := active[:0]
			for _, r := range active {
				if r != cancel {
					kept = append(kept, r)
				}
			}
			active = kept
		case communication.Insert, communication.Remove:
		default:
			panic(fmt.Sprintf("unknown operation kind %T", op.Kind))
		}
	}
	if len(active) == 0 {
		return nil
	}

	positions := make(map[communication.OpID]int, content.Len())
	for i, item := range content.Live() {
		positions[item.ID] = i
	}
	spans := make([]Span, 0, len(active))
	for _, r := range active {
		start, ok := positions[r.start.ID]
		if !ok {
			continue
		}
		end, ok := positions[r.end.ID]
		if !ok || end < start {
			continue
		}
		spans = append(spans, Span{Mark: r.mark, Start: start, End: end})
	}
	return spans
}

// MarksAt returns the mark types active at live index i, in canonical order
func MarksAt(spans []Span, i int) []communication.MarkType {
	set := mapset.NewThreadUnsafeSet[communication.MarkType]()
	for _, s := range spans {
		if s.Covers(i) {
			set.Add(s.Mark)
		}
	}
	return ordered(set)
}

// Runs splits the live text into runs of characters carrying the same marks
func Runs(content *Content, spans []Span) []Run {
	var runs []Run
	var current *Run
	for i, item := range content.Live() {
		marks := MarksAt(spans, i)
		if current == nil || !sameMarks(current.Marks, marks) {
			runs = append(runs, Run{Start: i, Marks: marks})
			current = &runs[len(runs)-1]
		}
		current.Text += item.Content
	}
	return runs
}

func ordered(set mapset.Set[communication.MarkType]) []communication.MarkType {
	marks := []communication.MarkType{}
	for _, m := range communication.MarkTypes {
		if set.Contains(m) {
			marks = append(marks, m)
		}
	}
	return marks
}

func sameMarks(a, b []communication.MarkType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
