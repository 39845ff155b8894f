package communication

import (
	"maps"
	"slices"
	"strconv"
	"strings"
)

// Condition is the result of comparing two version vectors. Values are distinct bits.
type Condition int

const (
	Equal Condition = 1 << iota
	Ancestor
	Descendant
	Concurrent
)

// VClock maps a replica to the highest counter of that replica that has been observed.
// Missing entries read as zero.
type VClock map[ReplicaID]uint64

func NewVClock() VClock {
	return VClock{}
}

// FindTicks returns the entry for id and whether it is present
func (vc VClock) FindTicks(id ReplicaID) (uint64, bool) {
	ticks, ok := vc[id]
	return ticks, ok
}

func (vc VClock) Copy() VClock {
	if vc == nil {
		return VClock{}
	}
	return maps.Clone(vc)
}

// Observe raises the entry for id to ticks if it is lower
func (vc VClock) Observe(id ReplicaID, ticks uint64) {
	if cur, ok := vc[id]; !ok || cur < ticks {
		vc[id] = ticks
	}
}

// Merge raises every entry to the pointwise maximum with other
func (vc VClock) Merge(other VClock) {
	for id, ticks := range other {
		vc.Observe(id, ticks)
	}
}

// LastUpdate returns the largest entry
func (vc VClock) LastUpdate() uint64 {
	var last uint64
	for _, ticks := range vc {
		last = max(last, ticks)
	}
	return last
}

// Dominates reports whether the clock has observed counter of replica id
func (vc VClock) Dominates(id OpID) bool {
	return vc[id.Replica] >= id.Counter
}

// String renders the clock with replicas in sorted order, e.g. {"a":1, "b":2}
func (vc VClock) String() string {
	ids := make([]ReplicaID, 0, len(vc))
	for id := range vc {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	var b strings.Builder
	b.WriteByte('{')
	for i, id := range ids {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strconv.Quote(string(id)))
		b.WriteByte(':')
		b.WriteString(strconv.FormatUint(vc[id], 10))
	}
	b.WriteByte('}')
	return b.String()
}

func (vc VClock) Equal(other VClock) bool {
	return vc.Compare(other) == Equal
}

// Compare relates the clock to other. Descendant means the clock is behind other,
// Ancestor that it is ahead, Concurrent that each has seen something the other has not.
func (vc VClock) Compare(other VClock) Condition {
	behind, ahead := false, false
	for id, ticks := range other {
		switch mine := vc[id]; {
		case mine < ticks:
			behind = true
		case mine > ticks:
			ahead = true
		}
	}
	for id, ticks := range vc {
		if _, found := other[id]; !found && ticks > 0 {
			ahead = true
		}
	}

	switch {
	case behind && ahead:
		return Concurrent
	case behind:
		return Descendant
	case ahead:
		return Ancestor
	}
	return Equal
}
