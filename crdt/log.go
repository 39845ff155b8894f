package crdt

import (
	"sort"

	"quilt/packages/communication"

	mapset "github.com/deckarep/golang-set/v2"
)

// Log is a replica's append-only operation history, in arrival order.
// Operations are unique by id and are never modified once logged.
type Log struct {
	operations []communication.Operation
	ids        mapset.Set[communication.OpID]

	// resolved view, nil until computed and whenever operations change
	resolved   []communication.Operation
	duplicates int
}

// NewLog builds a log from ops, skipping ids that repeat
func NewLog(ops ...communication.Operation) *Log {
	l := &Log{ids: mapset.NewThreadUnsafeSet[communication.OpID]()}
	for _, op := range ops {
		l.Append(op)
	}
	return l
}

// Append adds op unless an operation with the same id is already logged
func (l *Log) Append(op communication.Operation) bool {
	if !l.ids.Add(op.ID) {
		return false
	}
	l.operations = append(l.operations, op)
	l.resolved = nil
	return true
}

func (l *Log) Contains(id communication.OpID) bool {
	return l.ids.Contains(id)
}

func (l *Log) Len() int {
	return len(l.operations)
}

// Operations returns a copy of the logged operations in log order
func (l *Log) Operations() []communication.Operation {
	ops := make([]communication.Operation, len(l.operations))
	copy(ops, l.operations)
	return ops
}

// Get returns the operation with the given id
func (l *Log) Get(id communication.OpID) (communication.Operation, bool) {
	if !l.ids.Contains(id) {
		return communication.Operation{}, false
	}
	for _, op := range l.operations {
		if op.ID == id {
			return op, true
		}
	}
	return communication.Operation{}, false
}

// MaxCounter returns the highest counter in the log; false if the log is empty
func (l *Log) MaxCounter() (uint64, bool) {
	if len(l.operations) == 0 {
		return 0, false
	}
	var highest uint64
	for _, op := range l.operations {
		if op.ID.Counter > highest {
			highest = op.ID.Counter
		}
	}
	return highest, true
}

// Version is the pointwise maximum of every logged operation's vector clock and id
func (l *Log) Version() communication.VClock {
	vc := communication.NewVClock()
	for _, op := range l.operations {
		vc.Merge(op.Version)
		vc.Observe(op.ID.Replica, op.ID.Counter)
	}
	return vc
}

// Sort orders the log by operation id
func (l *Log) Sort() {
	sort.Slice(l.operations, func(i, j int) bool {
		return l.operations[i].ID.Less(l.operations[j].ID)
	})
	l.resolved = nil
}

// Resolved returns the log with concurrent duplicate insertions collapsed, in log order.
// Among identical insertions (same content and anchor) made concurrently on different
// replicas only the one with the smallest id is kept, and references to the others are
// redirected to it. This is the view content and marks are built from. The dropped
// insertions stay in the log itself so that operations referencing them, and replicas that
// have not seen the survivor yet, can still resolve them.
func (l *Log) Resolved() []communication.Operation {
	l.resolve()
	ops := make([]communication.Operation, len(l.resolved))
	copy(ops, l.resolved)
	return ops
}

// Duplicates returns the number of insertions the resolved view leaves out
func (l *Log) Duplicates() int {
	l.resolve()
	return l.duplicates
}

func (l *Log) resolve() {
	if l.resolved != nil {
		return
	}
	ops, discarded := deduplicate(l.Operations())
	if ops == nil {
		ops = []communication.Operation{}
	}
	l.resolved, l.duplicates = ops, discarded
}
