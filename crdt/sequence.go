package crdt

import (
	"fmt"
	"sort"
	"strings"

	"quilt/packages/communication"

	mapset "github.com/deckarep/golang-set/v2"
)

// Item is a live character of the materialized content
type Item struct {
	ID      communication.OpID
	Content string
}

// vertex is a placed insertion. Removed vertices stay in place as tombstones so that
// inserts anchored to them keep the position the removed character occupied.
type vertex struct {
	Item
	removed bool
}

// anchorCache remembers where the last insertion was placed. Text is mostly typed in
// runs, so the next insertion is usually anchored to it.
type anchorCache struct {
	id    communication.OpID
	index int
	valid bool
}

// Content is the materialized view of a log: inserted characters in document order.
type Content struct {
	vertices []vertex
	last     anchorCache
	live     int
}

func NewContent() *Content {
	return &Content{}
}

// Materialize rebuilds the content of a log from scratch.
//
// Inserts form a tree through their causal references. Siblings are ordered by descending
// id, so a new local insertion, which always carries the largest id its replica has seen,
// lands right after its anchor, and concurrent insertions at one anchor come out in the same
// order on every replica. Inserts whose anchor is not in ops are left unplaced until it is.
func Materialize(ops []communication.Operation) *Content {
	children := make(map[communication.OpID][]communication.Operation)
	removed := mapset.NewThreadUnsafeSet[communication.OpID]()
	for _, op := range ops {
		switch k := op.Kind.(type) {
		case communication.Insert:
			children[op.After] = append(children[op.After], op)
		case communication.Remove:
			removed.Add(k.Target)
		case communication.AddMark, communication.RemoveMark:
			// projected on demand
		default:
			panic(fmt.Sprintf("unknown operation kind %T", op.Kind))
		}
	}
	for _, siblings := range children {
		sort.Slice(siblings, func(i, j int) bool {
			return siblings[j].ID.Less(siblings[i].ID)
		})
	}

	c := NewContent()
	placed := mapset.NewThreadUnsafeSet[communication.OpID]()
	var stack []communication.Operation
	push := func(parent communication.OpID) {
		siblings := children[parent]
		for i := len(siblings) - 1; i >= 0; i-- {
			stack = append(stack, siblings[i])
		}
	}

	push(communication.OpID{})
	for len(stack) > 0 {
		op := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !placed.Add(op.ID) {
			continue
		}
		v := vertex{Item: Item{ID: op.ID, Content: op.Kind.(communication.Insert).Content}, removed: removed.Contains(op.ID)}
		c.vertices = append(c.vertices, v)
		if !v.removed {
			c.live++
		}
		push(op.ID)
	}
	return c
}

// Apply replays a single operation on top of the content and reports whether it changed
// anything. An insert whose anchor has not been placed, or a remove whose target has not,
// is dropped from the view; it stays in the log and is placed by the next full rebuild
// after its reference arrives.
func (c *Content) Apply(op communication.Operation) bool {
	switch k := op.Kind.(type) {
	case communication.Insert:
		index := 0
		if !op.After.IsZero() {
			pos, ok := c.locate(op.After)
			if !ok {
				return false
			}
			index = pos + 1
		}
		// skip over siblings with greater ids and their subtrees
		for index < len(c.vertices) && op.ID.Less(c.vertices[index].ID) {
			index++
		}
		c.vertices = append(c.vertices, vertex{})
		copy(c.vertices[index+1:], c.vertices[index:])
		c.vertices[index] = vertex{Item: Item{ID: op.ID, Content: k.Content}}
		c.live++
		c.last = anchorCache{id: op.ID, index: index, valid: true}
		return true
	case communication.Remove:
		pos, ok := c.locate(k.Target)
		if !ok || c.vertices[pos].removed {
			return false
		}
		c.vertices[pos].removed = true
		c.live--
		if c.last.valid && c.last.id == k.Target {
			c.last.valid = false
		}
		return true
	case communication.AddMark, communication.RemoveMark:
		return false
	default:
		panic(fmt.Sprintf("unknown operation kind %T", op.Kind))
	}
}

// locate finds the position of a placed insertion, tombstones included
func (c *Content) locate(id communication.OpID) (int, bool) {
	if c.last.valid && c.last.id == id {
		return c.last.index, true
	}
	for i, v := range c.vertices {
		if v.ID == id {
			return i, true
		}
	}
	return -1, false
}

// Len returns the number of live characters
func (c *Content) Len() int {
	return c.live
}

// Text concatenates the live characters
func (c *Content) Text() string {
	var b strings.Builder
	for _, v := range c.vertices {
		if !v.removed {
			b.WriteString(v.Content)
		}
	}
	return b.String()
}

// Live returns the live characters in document order
func (c *Content) Live() []Item {
	items := make([]Item, 0, c.live)
	for _, v := range c.vertices {
		if !v.removed {
			items = append(items, v.Item)
		}
	}
	return items
}

// At returns the id of the live character at index i
func (c *Content) At(i int) (communication.OpID, bool) {
	if i < 0 || i >= c.live {
		return communication.OpID{}, false
	}
	for _, v := range c.vertices {
		if v.removed {
			continue
		}
		if i == 0 {
			return v.ID, true
		}
		i--
	}
	return communication.OpID{}, false
}

// IndexOf returns the live index of the character inserted by id. It fails if the
// character was removed or has not been placed.
func (c *Content) IndexOf(id communication.OpID) (int, bool) {
	i := 0
	for _, v := range c.vertices {
		if v.ID == id {
			if v.removed {
				return -1, false
			}
			return i, true
		}
		if !v.removed {
			i++
		}
	}
	return -1, false
}

// Placed reports whether the insertion id is part of the content, live or removed
func (c *Content) Placed(id communication.OpID) bool {
	_, ok := c.locate(id)
	return ok
}

// Resolve turns a span marker into the live index of the character it is anchored to
func (c *Content) Resolve(m communication.SpanMarker) (int, bool) {
	return c.IndexOf(m.ID)
}
