package replica

import (
	"github.com/rivo/uniseg"
)

// Graphemes splits s into user-perceived characters
func Graphemes(s string) []string {
	var chars []string
	g := uniseg.NewGraphemes(s)
	for g.Next() {
		chars = append(chars, g.Str())
	}
	return chars
}

// InsertText inserts every character of s starting at index at
func (r *Replica) InsertText(s string, at int) error {
	if at < 0 {
		at = 0
	}
	if at > r.content.Len() {
		at = r.content.Len()
	}
	for i, ch := range Graphemes(s) {
		if err := r.Insert(ch, at+i); err != nil {
			return err
		}
	}
	return nil
}

// RemoveRange removes the characters from index from up to, not including, index to.
// The range is clipped to the content.
func (r *Replica) RemoveRange(from, to int) {
	if from < 0 {
		from = 0
	}
	if to > r.content.Len() {
		to = r.content.Len()
	}
	for i := to - 1; i >= from; i-- {
		r.Remove(i)
	}
}

// SetText turns the visible text into s with per-character removes and inserts,
// touching only the characters that differ.
func (r *Replica) SetText(s string) {
	oldChars := Graphemes(r.content.Text())
	newChars := Graphemes(s)

	script := diff(oldChars, newChars)
	for i := len(script) - 1; i >= 0; i-- {
		if script[i].op == editDelete {
			r.Remove(script[i].oldIndex)
		}
	}
	for _, e := range script {
		if e.op == editInsert {
			// single graphemes by construction
			_ = r.Insert(newChars[e.newIndex], e.newIndex)
		}
	}
}

type editType uint8

const (
	editEqual editType = iota
	editInsert
	editDelete
)

type edit struct {
	op       editType
	oldIndex int
	newIndex int
}

// diff computes a shortest edit script from a to b with the Myers algorithm
func diff(a, b []string) []edit {
	n, m := len(a), len(b)
	if n == 0 && m == 0 {
		return nil
	}

	maxD := n + m
	offset := maxD
	v := make([]int, 2*maxD+2)
	var trace [][]int

outer:
	for d := 0; d <= maxD; d++ {
		vCopy := make([]int, len(v))
		copy(vCopy, v)
		trace = append(trace, vCopy)

		for k := -d; k <= d; k += 2 {
			var x int
			if k == -d || (k != d && v[offset+k-1] < v[offset+k+1]) {
				x = v[offset+k+1]
			} else {
				x = v[offset+k-1] + 1
			}
			y := x - k
			for x < n && y < m && a[x] == b[y] {
				x++
				y++
			}
			v[offset+k] = x
			if x >= n && y >= m {
				break outer
			}
		}
	}

	// walk the trace backwards
	x, y := n, m
	var script []edit
	for d := len(trace) - 1; d >= 0; d-- {
		v := trace[d]
		k := x - y

		var prevK int
		if k == -d || (k != d && v[offset+k-1] < v[offset+k+1]) {
			prevK = k + 1
		} else {
			prevK = k - 1
		}
		prevX := v[offset+prevK]
		prevY := prevX - prevK

		for x > prevX && y > prevY {
			x--
			y--
			script = append(script, edit{op: editEqual, oldIndex: x, newIndex: y})
		}
		if d > 0 {
			if x > prevX {
				x--
				script = append(script, edit{op: editDelete, oldIndex: x})
			} else if y > prevY {
				y--
				script = append(script, edit{op: editInsert, newIndex: y})
			}
		}
	}

	for i, j := 0, len(script)-1; i < j; i, j = i+1, j-1 {
		script[i], script[j] = script[j], script[i]
	}
	return script
}
