package communication

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rivo/uniseg"
)

// ErrMalformedOperation is returned when an encoded operation cannot be decoded.
var ErrMalformedOperation = errors.New("malformed operation")

// wireOperation is the flat tagged record an Operation travels as.
type wireOperation struct {
	ID      OpID        `json:"id"`
	Type    string      `json:"type"`
	After   *OpID       `json:"after,omitempty"`
	Content string      `json:"content,omitempty"`
	Target  *OpID       `json:"target,omitempty"`
	Mark    MarkType    `json:"mark,omitempty"`
	Start   *SpanMarker `json:"start,omitempty"`
	End     *SpanMarker `json:"end,omitempty"`
	Version VClock      `json:"version,omitempty"`
}

func (e Operation) MarshalJSON() ([]byte, error) {
	w := wireOperation{ID: e.ID, Version: e.Version}
	if !e.After.IsZero() {
		after := e.After
		w.After = &after
	}
	switch k := e.Kind.(type) {
	case Insert:
		w.Type = k.kind()
		w.Content = k.Content
	case Remove:
		w.Type = k.kind()
		w.Target = &k.Target
	case AddMark:
		w.Type = k.kind()
		w.Mark, w.Start, w.End = k.Mark, &k.Start, &k.End
	case RemoveMark:
		w.Type = k.kind()
		w.Mark, w.Start, w.End = k.Mark, &k.Start, &k.End
	default:
		return nil, fmt.Errorf("%w: unknown kind %T", ErrMalformedOperation, e.Kind)
	}
	return json.Marshal(w)
}

func (e *Operation) UnmarshalJSON(data []byte) error {
	var w wireOperation
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedOperation, err)
	}
	if w.ID.IsZero() {
		return fmt.Errorf("%w: missing id", ErrMalformedOperation)
	}

	op := Operation{ID: w.ID, Version: w.Version}
	if w.After != nil {
		op.After = *w.After
	}
	switch w.Type {
	case "insert":
		if uniseg.GraphemeClusterCount(w.Content) != 1 {
			return fmt.Errorf("%w: insert %s content %q is not one character", ErrMalformedOperation, w.ID, w.Content)
		}
		op.Kind = Insert{Content: w.Content}
	case "remove":
		if w.Target == nil {
			return fmt.Errorf("%w: remove %s has no target", ErrMalformedOperation, w.ID)
		}
		op.Kind = Remove{Target: *w.Target}
	case "addMark", "removeMark":
		if !w.Mark.Valid() {
			return fmt.Errorf("%w: unknown mark type %q", ErrMalformedOperation, w.Mark)
		}
		if w.Start == nil || w.End == nil {
			return fmt.Errorf("%w: %s %s is missing a span marker", ErrMalformedOperation, w.Type, w.ID)
		}
		if !validSide(w.Start.Side) || !validSide(w.End.Side) {
			return fmt.Errorf("%w: %s %s has an unknown marker side", ErrMalformedOperation, w.Type, w.ID)
		}
		if w.Type == "addMark" {
			op.Kind = AddMark{Mark: w.Mark, Start: *w.Start, End: *w.End}
		} else {
			op.Kind = RemoveMark{Mark: w.Mark, Start: *w.Start, End: *w.End}
		}
	default:
		return fmt.Errorf("%w: unknown op type %q", ErrMalformedOperation, w.Type)
	}

	*e = op
	return nil
}

func validSide(s Side) bool {
	return s == Before || s == After
}

// EncodeLog encodes operations as an ordered JSON array
func EncodeLog(ops []Operation) ([]byte, error) {
	if ops == nil {
		ops = []Operation{}
	}
	data, err := json.Marshal(ops)
	if err != nil {
		return nil, fmt.Errorf("encode log: %w", err)
	}
	return data, nil
}

// DecodeLog decodes a JSON array produced by EncodeLog, preserving order
func DecodeLog(data []byte) ([]Operation, error) {
	var ops []Operation
	if err := json.Unmarshal(data, &ops); err != nil {
		return nil, fmt.Errorf("decode log: %w", err)
	}
	return ops, nil
}
