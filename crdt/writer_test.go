package crdt

import "quilt/packages/communication"

// writer stamps operations the way a replica does, without the replica package
type writer struct {
	id      communication.ReplicaID
	counter uint64
	version communication.VClock
	log     *Log
	content *Content
}

func newWriter(id communication.ReplicaID) *writer {
	return &writer{
		id:      id,
		version: communication.NewVClock(),
		log:     NewLog(),
		content: NewContent(),
	}
}

func (w *writer) stamp(kind communication.OperationKind, after communication.OpID) communication.Operation {
	id := communication.OpID{Counter: w.counter, Replica: w.id}
	w.counter++
	w.version.Observe(w.id, id.Counter)
	op := communication.Operation{ID: id, Kind: kind, After: after, Version: w.version.Copy()}
	w.log.Append(op)
	w.content.Apply(op)
	return op
}

func (w *writer) insert(s string, at int) communication.Operation {
	var after communication.OpID
	if at > 0 {
		after, _ = w.content.At(at - 1)
	}
	return w.stamp(communication.Insert{Content: s}, after)
}

func (w *writer) typeText(s string, at int) {
	for i, r := range s {
		w.insert(string(r), at+i)
	}
}

func (w *writer) remove(at int) communication.Operation {
	target, _ := w.content.At(at)
	return w.stamp(communication.Remove{Target: target}, communication.OpID{})
}

func (w *writer) mark(kind func(start, end communication.SpanMarker) communication.OperationKind, from, to int) communication.Operation {
	start, _ := w.content.At(from)
	end, _ := w.content.At(to)
	return w.stamp(kind(communication.BeforeID(start), communication.BeforeID(end)), communication.OpID{})
}

func (w *writer) merge(other *writer) MergeResult {
	res := Merge(w.log, other.log.Operations())
	if w.log.Len() > 0 && res.MaxCounter >= w.counter {
		w.counter = res.MaxCounter + 1
	}
	w.version.Merge(w.log.Version())
	w.content = Materialize(w.log.Resolved())
	return res
}

func (w *writer) text() string {
	return w.content.Text()
}

func bold(start, end communication.SpanMarker) communication.OperationKind {
	return communication.AddMark{Mark: communication.Bold, Start: start, End: end}
}

func unbold(start, end communication.SpanMarker) communication.OperationKind {
	return communication.RemoveMark{Mark: communication.Bold, Start: start, End: end}
}

func italic(start, end communication.SpanMarker) communication.OperationKind {
	return communication.AddMark{Mark: communication.Italic, Start: start, End: end}
}
