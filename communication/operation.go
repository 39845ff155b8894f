package communication

import "fmt"

// OperationKind is the closed set of things an operation can do:
// Insert, Remove, AddMark and RemoveMark. Consumers switch on the concrete type.
type OperationKind interface {
	kind() string
}

// Insert places one character immediately after the operation's causal reference.
type Insert struct {
	Content string
}

// Remove deletes the character inserted by Target.
type Remove struct {
	Target OpID
}

// AddMark declares a formatting range between two span markers.
type AddMark struct {
	Mark  MarkType
	Start SpanMarker
	End   SpanMarker
}

// RemoveMark cancels AddMarks with the same mark type and identical boundaries.
type RemoveMark struct {
	Mark  MarkType
	Start SpanMarker
	End   SpanMarker
}

func (Insert) kind() string { return "insert" }
func (Remove) kind() string { return "remove" }
func (AddMark) kind() string { return "addMark" }
func (RemoveMark) kind() string { return "removeMark" }

type Operation struct {
	ID      OpID          // identity of the operation
	Kind    OperationKind // what the operation does
	After   OpID          // causal reference for inserts, zero means start of sequence
	Version VClock        // vector clock of the creating replica, own counter included
}

// Compares two operations to see if they are concurrent
func (e *Operation) Concurrent(other Operation) bool {
	return e.Version.Compare(other.Version) == Concurrent
}

// References lists the ids this operation depends on
func (e *Operation) References() []OpID {
	var refs []OpID
	if !e.After.IsZero() {
		refs = append(refs, e.After)
	}
	switch k := e.Kind.(type) {
	case Insert:
	case Remove:
		refs = append(refs, k.Target)
	case AddMark:
		refs = append(refs, k.Start.ID, k.End.ID)
	case RemoveMark:
		refs = append(refs, k.Start.ID, k.End.ID)
	default:
		panic(fmt.Sprintf("unknown operation kind %T", e.Kind))
	}
	return refs
}

// MapReferences returns a copy of the operation with every referenced id passed through f.
// The operation's own id and version are kept.
func (e *Operation) MapReferences(f func(OpID) OpID) Operation {
	op := *e
	if !op.After.IsZero() {
		op.After = f(op.After)
	}
	switch k := e.Kind.(type) {
	case Insert:
	case Remove:
		op.Kind = Remove{Target: f(k.Target)}
	case AddMark:
		op.Kind = AddMark{Mark: k.Mark, Start: SpanMarker{k.Start.Side, f(k.Start.ID)}, End: SpanMarker{k.End.Side, f(k.End.ID)}}
	case RemoveMark:
		op.Kind = RemoveMark{Mark: k.Mark, Start: SpanMarker{k.Start.Side, f(k.Start.ID)}, End: SpanMarker{k.End.Side, f(k.End.ID)}}
	default:
		panic(fmt.Sprintf("unknown operation kind %T", e.Kind))
	}
	return op
}

func (e Operation) String() string {
	switch k := e.Kind.(type) {
	case Insert:
		if e.After.IsZero() {
			return fmt.Sprintf("%s insert %q at start", e.ID, k.Content)
		}
		return fmt.Sprintf("%s insert %q after %s", e.ID, k.Content, e.After)
	case Remove:
		return fmt.Sprintf("%s remove %s", e.ID, k.Target)
	case AddMark:
		return fmt.Sprintf("%s addMark %s %s..%s", e.ID, k.Mark, k.Start, k.End)
	case RemoveMark:
		return fmt.Sprintf("%s removeMark %s %s..%s", e.ID, k.Mark, k.Start, k.End)
	}
	return fmt.Sprintf("%s %T", e.ID, e.Kind)
}
