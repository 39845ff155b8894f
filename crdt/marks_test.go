package crdt

import (
	"reflect"
	"testing"

	"quilt/packages/communication"
)

func TestProjectInclusiveSpan(t *testing.T) {
	w := newWriter("a")
	w.typeText("Hello World", 0)
	w.mark(bold, 0, 10)

	spans := Project(w.content, w.log.Resolved())
	want := []Span{{Mark: communication.Bold, Start: 0, End: 10}}
	if !reflect.DeepEqual(spans, want) {
		t.Errorf("spans = %v, want %v", spans, want)
	}
	for i := 0; i < 11; i++ {
		if got := MarksAt(spans, i); !reflect.DeepEqual(got, []communication.MarkType{communication.Bold}) {
			t.Errorf("MarksAt(%d) = %v", i, got)
		}
	}
}

func TestRemoveMarkCancelsIdenticalSpanOnly(t *testing.T) {
	w := newWriter("a")
	w.typeText("Hello World", 0)
	w.mark(bold, 0, 4)
	w.mark(bold, 6, 10)
	w.mark(unbold, 0, 3) // not an exact match, cancels nothing
	w.mark(unbold, 6, 10)

	spans := Project(w.content, w.log.Resolved())
	want := []Span{{Mark: communication.Bold, Start: 0, End: 4}}
	if !reflect.DeepEqual(spans, want) {
		t.Errorf("spans = %v, want %v", spans, want)
	}
}

func TestRemoveMarkBeforeAddMark(t *testing.T) {
	w := newWriter("a")
	w.typeText("abc", 0)
	w.mark(unbold, 0, 2)
	w.mark(bold, 0, 2)

	if spans := Project(w.content, w.log.Resolved()); len(spans) != 1 {
		t.Errorf("a later AddMark must survive an earlier RemoveMark, got %v", spans)
	}
}

func TestMarksFollowCharacters(t *testing.T) {
	w := newWriter("a")
	w.typeText("abcdef", 0)
	w.mark(italic, 2, 3)
	w.typeText("XY", 0)

	spans := Project(w.content, w.log.Resolved())
	want := []Span{{Mark: communication.Italic, Start: 4, End: 5}}
	if !reflect.DeepEqual(spans, want) {
		t.Errorf("spans = %v, want %v", spans, want)
	}

	// removing a boundary character deactivates the span
	w.remove(5)
	if spans := Project(w.content, w.log.Resolved()); len(spans) != 0 {
		t.Errorf("span with a removed boundary still active: %v", spans)
	}
}

func TestProjectSkipsUnresolvedAndInverted(t *testing.T) {
	w := newWriter("a")
	w.typeText("abc", 0)
	first, _ := w.content.At(0)
	last, _ := w.content.At(2)
	missing := communication.OpID{Counter: 99, Replica: "z"}

	w.stamp(communication.AddMark{Mark: communication.Bold, Start: communication.BeforeID(last), End: communication.BeforeID(first)}, communication.OpID{})
	w.stamp(communication.AddMark{Mark: communication.Underline, Start: communication.BeforeID(first), End: communication.BeforeID(missing)}, communication.OpID{})

	if spans := Project(w.content, w.log.Resolved()); len(spans) != 0 {
		t.Errorf("spans = %v, want none", spans)
	}
	if spans := Project(NewContent(), nil); spans != nil {
		t.Errorf("empty log projected %v", spans)
	}
}

func TestRuns(t *testing.T) {
	w := newWriter("a")
	w.typeText("Hello World", 0)
	w.mark(bold, 0, 4)
	w.mark(italic, 4, 6)

	runs := Runs(w.content, Project(w.content, w.log.Resolved()))
	want := []Run{
		{Start: 0, Text: "Hell", Marks: []communication.MarkType{communication.Bold}},
		{Start: 4, Text: "o", Marks: []communication.MarkType{communication.Bold, communication.Italic}},
		{Start: 5, Text: " W", Marks: []communication.MarkType{communication.Italic}},
		{Start: 7, Text: "orld", Marks: []communication.MarkType{}},
	}
	if !reflect.DeepEqual(runs, want) {
		t.Errorf("runs = %+v, want %+v", runs, want)
	}
}

func TestMarksConvergeAfterMerge(t *testing.T) {
	a, b := synced("Hello World")
	a.mark(bold, 0, 4)
	b.mark(italic, 6, 10)
	b.typeText("!", 11)

	a.merge(b)
	b.merge(a)
	sa := Project(a.content, a.log.Resolved())
	sb := Project(b.content, b.log.Resolved())
	if !reflect.DeepEqual(sa, sb) || len(sa) != 2 {
		t.Errorf("a = %v, b = %v", sa, sb)
	}
}
