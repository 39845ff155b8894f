package crdt

import (
	"errors"
	"fmt"
	"io"

	"quilt/packages/communication"

	"github.com/dominikbraun/graph"
	"github.com/dominikbraun/graph/draw"
)

func opHash(op communication.Operation) string {
	return op.ID.String()
}

// Graph returns the causal dependency graph of the log: every operation is a vertex and
// an edge runs from each referenced operation to the operation referencing it.
// References to operations that are not logged yet are left out. A well-formed log is
// acyclic; cycles in a corrupt one are reported by CausalOrder.
func (l *Log) Graph() (graph.Graph[string, communication.Operation], error) {
	g := graph.New(opHash, graph.Directed(), graph.Acyclic())
	for _, op := range l.operations {
		if err := g.AddVertex(op, graph.VertexAttribute("label", op.String())); err != nil {
			return nil, fmt.Errorf("add %s: %w", op.ID, err)
		}
	}
	for _, op := range l.operations {
		for _, ref := range op.References() {
			if !l.ids.Contains(ref) {
				continue
			}
			err := g.AddEdge(ref.String(), opHash(op))
			if err != nil && !errors.Is(err, graph.ErrEdgeAlreadyExists) {
				return nil, fmt.Errorf("link %s to %s: %w", ref, op.ID, err)
			}
		}
	}
	return g, nil
}

// CausalOrder returns the logged operations so that every operation comes after the
// operations it references, breaking ties by id. A peer replaying the result in
// arrival order can place every operation whose references are logged.
func (l *Log) CausalOrder() ([]communication.Operation, error) {
	g, err := l.Graph()
	if err != nil {
		return nil, err
	}
	ids := make(map[string]communication.OpID, len(l.operations))
	for _, op := range l.operations {
		ids[opHash(op)] = op.ID
	}
	order, err := graph.StableTopologicalSort(g, func(a, b string) bool {
		return ids[a].Less(ids[b])
	})
	if err != nil {
		return nil, fmt.Errorf("causal order: %w", err)
	}

	ops := make([]communication.Operation, 0, len(order))
	for _, hash := range order {
		op, err := g.Vertex(hash)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// WriteDOT writes the causal graph in Graphviz DOT format
func (l *Log) WriteDOT(w io.Writer) error {
	g, err := l.Graph()
	if err != nil {
		return err
	}
	return draw.DOT(g, w)
}
