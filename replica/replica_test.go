package replica

import (
	"errors"
	"io"
	"log"
	"reflect"
	"testing"

	"quilt/packages/communication"
)

const (
	idA communication.ReplicaID = "00000000-0000-0000-0000-00000000000a"
	idB communication.ReplicaID = "00000000-0000-0000-0000-00000000000b"
)

var quiet = WithLogger(log.New(io.Discard, "", 0))

func pair(text string) (*Replica, *Replica) {
	a := NewReplica(idA, quiet)
	b := NewReplica(idB, quiet)
	a.SetText(text)
	b.Merge(a.Log())
	return a, b
}

func TestInsertRemove(t *testing.T) {
	r := NewReplica(idA, quiet)
	if err := r.Insert("T", 0); err != nil {
		t.Fatal(err)
	}
	if err := r.Insert("H", 1); err != nil {
		t.Fatal(err)
	}
	if r.Text() != "TH" {
		t.Fatalf("Text = %q, want %q", r.Text(), "TH")
	}
	r.Remove(1)
	if r.Text() != "T" || r.Len() != 1 {
		t.Errorf("Text = %q, want %q", r.Text(), "T")
	}
	if r.Counter() != 3 || len(r.Log()) != 3 {
		t.Errorf("counter %d with %d operations, want 3", r.Counter(), len(r.Log()))
	}
}

func TestInsertClampsIndex(t *testing.T) {
	r := NewReplica(idA, quiet)
	_ = r.Insert("b", 10)
	_ = r.Insert("a", -3)
	_ = r.Insert("c", 99)
	if r.Text() != "abc" {
		t.Errorf("Text = %q, want %q", r.Text(), "abc")
	}
}

func TestInsertRejectsNonCharacters(t *testing.T) {
	r := NewReplica(idA, quiet)
	for _, content := range []string{"", "ab"} {
		if err := r.Insert(content, 0); !errors.Is(err, ErrInvalidCharacter) {
			t.Errorf("Insert(%q) error = %v", content, err)
		}
	}
	if err := r.Insert("🇳🇿", 0); err != nil {
		t.Errorf("a flag is one character: %v", err)
	}
	if len(r.Log()) != 1 {
		t.Errorf("rejected inserts were logged: %v", r.Log())
	}
}

func TestRemoveEdgeCases(t *testing.T) {
	r := NewReplica(idA, quiet)
	r.Remove(0)
	if len(r.Log()) != 0 {
		t.Error("removing from empty content logged an operation")
	}

	_ = r.InsertText("abc", 0)
	r.Remove(7)
	if r.Text() != "bc" {
		t.Errorf("out of range remove: Text = %q, want %q", r.Text(), "bc")
	}
	r.Remove(-1)
	if r.Text() != "c" {
		t.Errorf("negative remove: Text = %q, want %q", r.Text(), "c")
	}
}

func TestMergeConcurrentWords(t *testing.T) {
	a, b := pair("The quick brown fox")
	a.RemoveRange(16, 19)
	_ = a.InsertText("dog", 16)
	b.RemoveRange(16, 19)
	_ = b.InsertText("cat", 16)

	a.Merge(b.Log())
	b.Merge(a.Log())
	want := "The quick brown catdog"
	if a.Text() != want || b.Text() != want {
		t.Errorf("a = %q, b = %q, want %q", a.Text(), b.Text(), want)
	}
	if a.Counter() != 25 || b.Counter() != 25 {
		t.Errorf("counters %d and %d, want 25", a.Counter(), b.Counter())
	}
}

func TestMergeIdenticalWords(t *testing.T) {
	a, b := pair("The quick brown fox")
	for _, r := range []*Replica{a, b} {
		r.RemoveRange(16, 19)
		_ = r.InsertText("cat", 16)
	}

	res := a.Merge(b.Log())
	b.Merge(a.Log())
	if res.Discarded != 3 {
		t.Errorf("Discarded = %d, want 3", res.Discarded)
	}
	if a.Text() != "The quick brown cat" || b.Text() != a.Text() {
		t.Errorf("a = %q, b = %q", a.Text(), b.Text())
	}
}

func TestMergeSameLetterTwice(t *testing.T) {
	a, b := pair("Hel")
	_ = a.Insert("l", 3)
	b.Merge(a.Log())
	_ = b.Insert("l", 3)
	a.Merge(b.Log())
	if a.Text() != "Hell" {
		t.Fatalf("Text = %q", a.Text())
	}
	_ = a.Insert("o", 4)
	b.Merge(a.Log())
	if a.Text() != "Hello" || b.Text() != "Hello" {
		t.Errorf("a = %q, b = %q, want %q", a.Text(), b.Text(), "Hello")
	}
}

func TestEditMerging(t *testing.T) {
	a, b := pair("The fox jumped.")
	if a.Text() != "The fox jumped." || b.Text() != a.Text() {
		t.Fatalf("a = %q, b = %q", a.Text(), b.Text())
	}

	a.SetText("The quick fox jumped.")
	b.SetText("The fox jumped over the dog.")
	a.Merge(b.Log())
	b.Merge(a.Log())

	want := "The quick fox jumped over the dog."
	if a.Text() != want || b.Text() != want {
		t.Errorf("a = %q, b = %q, want %q", a.Text(), b.Text(), want)
	}

	a.SetText("The quick fox sprang over the dog.")
	b.Merge(a.Log())
	want = "The quick fox sprang over the dog."
	if a.Text() != want || b.Text() != want {
		t.Errorf("a = %q, b = %q, want %q", a.Text(), b.Text(), want)
	}
}

func TestMergeAdvancesCounter(t *testing.T) {
	a := NewReplica(idA, quiet)
	b := NewReplica(idB, quiet)
	_ = b.InsertText("hello", 0)

	a.Merge(b.Log())
	if a.Counter() != 5 {
		t.Errorf("counter = %d, want 5", a.Counter())
	}
	_ = a.Insert("!", 5)
	last := a.Log()[len(a.Log())-1]
	if last.ID != (communication.OpID{Counter: 5, Replica: idA}) {
		t.Errorf("new operation id = %v", last.ID)
	}
	if a.Version()[idB] != 4 || a.Version()[idA] != 5 {
		t.Errorf("version = %v", a.Version())
	}

	before := a.Counter()
	a.Merge(nil)
	if a.Counter() != before {
		t.Error("merging nothing moved the counter")
	}
}

func TestMarks(t *testing.T) {
	r := NewReplica(idA, quiet)
	r.SetText("Hello World")
	if err := r.AddMark(communication.Underline, 0, 10); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < r.Len(); i++ {
		if got := r.MarksAt(i); !reflect.DeepEqual(got, []communication.MarkType{communication.Underline}) {
			t.Errorf("MarksAt(%d) = %v", i, got)
		}
	}

	if err := r.RemoveMark(communication.Underline, 0, 9); err != nil {
		t.Fatal(err)
	}
	if len(r.Marks()) != 1 {
		t.Error("RemoveMark over a different span cancelled the mark")
	}
	if err := r.RemoveMark(communication.Underline, 0, 10); err != nil {
		t.Fatal(err)
	}
	if len(r.Marks()) != 0 {
		t.Errorf("marks left after exact RemoveMark: %v", r.Marks())
	}

	runs := r.Runs()
	if len(runs) != 1 || runs[0].Text != "Hello World" {
		t.Errorf("runs = %+v", runs)
	}
}

func TestMarkErrors(t *testing.T) {
	r := NewReplica(idA, quiet)
	r.SetText("Hello")
	count := len(r.Log())

	cases := []struct {
		mark     communication.MarkType
		from, to int
		err      error
	}{
		{communication.Bold, 0, 5, ErrIndexOutOfRange},
		{communication.Bold, -1, 2, ErrIndexOutOfRange},
		{communication.Bold, 3, 1, ErrRangeInvalid},
		{communication.MarkType("strike"), 0, 1, ErrUnknownMark},
	}
	for _, c := range cases {
		if err := r.AddMark(c.mark, c.from, c.to); !errors.Is(err, c.err) {
			t.Errorf("AddMark(%s, %d, %d) error = %v, want %v", c.mark, c.from, c.to, err, c.err)
		}
		if err := r.RemoveMark(c.mark, c.from, c.to); !errors.Is(err, c.err) {
			t.Errorf("RemoveMark(%s, %d, %d) error = %v, want %v", c.mark, c.from, c.to, err, c.err)
		}
	}
	if len(r.Log()) != count {
		t.Error("failed mark operations were logged")
	}
}

func TestMarksSurviveMerge(t *testing.T) {
	a, b := pair("Hello World")
	_ = a.AddMark(communication.Bold, 0, 4)
	_ = b.InsertText(">> ", 0)

	b.Merge(a.Log())
	spans := b.Marks()
	if len(spans) != 1 || spans[0].Start != 3 || spans[0].End != 7 {
		t.Errorf("spans = %v", spans)
	}
}

func TestRestore(t *testing.T) {
	a, _ := pair("restore me")
	r := Restore(idA, 2, a.Log(), quiet)
	if r.Text() != a.Text() {
		t.Errorf("Text = %q, want %q", r.Text(), a.Text())
	}
	if r.Counter() != a.Counter() {
		t.Errorf("counter = %d, want %d", r.Counter(), a.Counter())
	}
	if r.GetID() != idA {
		t.Errorf("id = %s", r.GetID())
	}
}

func TestCausalLog(t *testing.T) {
	a, _ := pair("abc")
	ops, err := a.CausalLog()
	if err != nil {
		t.Fatal(err)
	}
	if len(ops) != len(a.Log()) {
		t.Errorf("causal log has %d operations, want %d", len(ops), len(a.Log()))
	}
	if a.OperationLog().Len() != 3 || a.Content().Len() != 3 {
		t.Error("log and content out of step")
	}
}
