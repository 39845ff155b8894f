package replica

import (
	"errors"
	"fmt"
	"log"

	"quilt/packages/communication"
	"quilt/packages/crdt"

	"github.com/rivo/uniseg"
)

// Errors returned for precondition violations. Nothing is logged when they are returned.
var (
	// ErrIndexOutOfRange indicates an index outside the live content.
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrRangeInvalid indicates a range whose end precedes its start.
	ErrRangeInvalid = errors.New("invalid range")

	// ErrInvalidCharacter indicates insert content that is not exactly one character.
	ErrInvalidCharacter = errors.New("content is not a single character")

	// ErrUnknownMark indicates a mark type outside the known set.
	ErrUnknownMark = errors.New("unknown mark type")
)

// Replica is one user's copy of the document. It is not safe for concurrent use.
type Replica struct {
	id            communication.ReplicaID
	counter       uint64 // next counter to stamp
	log           *crdt.Log
	content       *crdt.Content
	VersionVector communication.VClock // highest counter observed per replica
	logger        *log.Logger
}

type Option func(*Replica)

// WithLogger sends the replica's log lines to l
func WithLogger(l *log.Logger) Option {
	return func(r *Replica) {
		r.logger = l
	}
}

// New creates a replica with a random id
func New(opts ...Option) *Replica {
	return NewReplica(communication.NewReplicaID(), opts...)
}

// NewReplica creates an empty replica with the given id
func NewReplica(id communication.ReplicaID, opts ...Option) *Replica {
	r := &Replica{
		id:            id,
		log:           crdt.NewLog(),
		content:       crdt.NewContent(),
		VersionVector: communication.NewVClock(),
		logger:        log.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Restore rebuilds a replica from a stored log and counter
func Restore(id communication.ReplicaID, counter uint64, ops []communication.Operation, opts ...Option) *Replica {
	r := NewReplica(id, opts...)
	r.log = crdt.NewLog(ops...)
	r.VersionVector = r.log.Version()
	r.counter = counter
	if highest, ok := r.log.MaxCounter(); ok && highest >= r.counter {
		r.counter = highest + 1
	}
	r.content = crdt.Materialize(r.log.Resolved())
	return r
}

func (r *Replica) GetID() communication.ReplicaID {
	return r.id
}

// Counter returns the counter the next local operation will be stamped with
func (r *Replica) Counter() uint64 {
	return r.counter
}

// Version returns a copy of the replica's version vector
func (r *Replica) Version() communication.VClock {
	return r.VersionVector.Copy()
}

// Log returns a snapshot of the operation log, suitable as input to another replica's Merge
func (r *Replica) Log() []communication.Operation {
	return r.log.Operations()
}

// CausalLog returns the log ordered so that references precede the operations using them
func (r *Replica) CausalLog() ([]communication.Operation, error) {
	return r.log.CausalOrder()
}

// Content exposes the materialized view
func (r *Replica) Content() *crdt.Content {
	return r.content
}

// OperationLog exposes the underlying log
func (r *Replica) OperationLog() *crdt.Log {
	return r.log
}

// Text returns the visible text
func (r *Replica) Text() string {
	return r.content.Text()
}

// Len returns the number of visible characters
func (r *Replica) Len() int {
	return r.content.Len()
}

// prepare stamps a new local operation, appends it to the log and replays it on the content
func (r *Replica) prepare(kind communication.OperationKind, after communication.OpID) communication.Operation {
	id := communication.OpID{Counter: r.counter, Replica: r.id}
	r.counter++
	r.VersionVector.Observe(r.id, id.Counter)
	op := communication.Operation{ID: id, Kind: kind, After: after, Version: r.VersionVector.Copy()}
	r.log.Append(op)
	r.content.Apply(op)
	r.logger.Println("[ REPLICA", r.id, "] PREPARED", op)
	return op
}

// Insert places one character so that it becomes the character at index at.
// Indices past the end append; negative indices insert at the start.
func (r *Replica) Insert(content string, at int) error {
	if uniseg.GraphemeClusterCount(content) != 1 {
		return fmt.Errorf("insert %q: %w", content, ErrInvalidCharacter)
	}
	if at > r.content.Len() {
		at = r.content.Len()
	}
	var after communication.OpID
	if at > 0 {
		after, _ = r.content.At(at - 1)
	}
	r.prepare(communication.Insert{Content: content}, after)
	return nil
}

// Remove deletes the character at index at. Removing from empty content does nothing;
// an index outside the content removes the first character instead.
func (r *Replica) Remove(at int) {
	if r.content.Len() == 0 {
		return
	}
	target, ok := r.content.At(at)
	if !ok {
		target, _ = r.content.At(0)
	}
	r.prepare(communication.Remove{Target: target}, communication.OpID{})
}

// AddMark formats the characters from index from through index to
func (r *Replica) AddMark(mark communication.MarkType, from, to int) error {
	start, end, err := r.markers(mark, from, to)
	if err != nil {
		return fmt.Errorf("add %s mark: %w", mark, err)
	}
	r.prepare(communication.AddMark{Mark: mark, Start: start, End: end}, communication.OpID{})
	return nil
}

// RemoveMark cancels an AddMark of the same type over exactly the same characters
func (r *Replica) RemoveMark(mark communication.MarkType, from, to int) error {
	start, end, err := r.markers(mark, from, to)
	if err != nil {
		return fmt.Errorf("remove %s mark: %w", mark, err)
	}
	r.prepare(communication.RemoveMark{Mark: mark, Start: start, End: end}, communication.OpID{})
	return nil
}

func (r *Replica) markers(mark communication.MarkType, from, to int) (communication.SpanMarker, communication.SpanMarker, error) {
	var start, end communication.SpanMarker
	if !mark.Valid() {
		return start, end, fmt.Errorf("%q: %w", mark, ErrUnknownMark)
	}
	if to < from {
		return start, end, fmt.Errorf("%d..%d: %w", from, to, ErrRangeInvalid)
	}
	startID, ok := r.content.At(from)
	if !ok {
		return start, end, fmt.Errorf("start %d of %d: %w", from, r.content.Len(), ErrIndexOutOfRange)
	}
	endID, ok := r.content.At(to)
	if !ok {
		return start, end, fmt.Errorf("end %d of %d: %w", to, r.content.Len(), ErrIndexOutOfRange)
	}
	return communication.BeforeID(startID), communication.BeforeID(endID), nil
}

// Merge folds a snapshot of a remote log into this replica and re-materializes.
// The counter moves past every counter seen so later local ids cannot collide.
func (r *Replica) Merge(remote []communication.Operation) crdt.MergeResult {
	res := crdt.Merge(r.log, remote)
	if res.MaxCounter >= r.counter && r.log.Len() > 0 {
		r.counter = res.MaxCounter + 1
	}
	r.VersionVector.Merge(r.log.Version())
	r.content = crdt.Materialize(r.log.Resolved())
	r.logger.Println("[ REPLICA", r.id, "] MERGED", res.Added, "operations, discarded", res.Discarded, "duplicates, counter", r.counter)
	return res
}

// Marks returns the resolved formatting spans
func (r *Replica) Marks() []crdt.Span {
	return crdt.Project(r.content, r.log.Resolved())
}

// MarksAt returns the mark types active at index i
func (r *Replica) MarksAt(i int) []communication.MarkType {
	return crdt.MarksAt(r.Marks(), i)
}

// Runs splits the text into runs of equally formatted characters
func (r *Replica) Runs() []crdt.Run {
	return crdt.Runs(r.content, r.Marks())
}
