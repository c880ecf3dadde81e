package routing

import (
	"fmt"

	"github.com/tijuhasz/osm/graph"
)

// PathSegment is a walk along the membership edges of one way, in one
// direction, from Start to End.
type PathSegment struct {
	Start     graph.NodeID
	Direction graph.Direction
	Way       graph.WayID
	First     graph.Edge
	Last      graph.Edge
	End       graph.NodeID
	Distance  float64
	Length    int // edges walked
	Count     int // nodes visited, both ends included
	// Junction is set when End is an intersection.
	Junction bool

	next []graph.Edge
}

// NextEdges returns the membership edges leaving End in the walk direction.
// It is empty at a dead end and has one element on a simple continuation.
func (s *PathSegment) NextEdges() []graph.Edge {
	return s.next
}

func (s *PathSegment) String() string {
	return fmt.Sprintf("PathSegment[%d -> %d %s way %d](length %d, %.1fm, %d next)",
		s.Start, s.End, s.Direction, s.Way, s.Length, s.Distance, len(s.next))
}

// IsJunction reports whether node has more than one outgoing or more than
// one incoming membership edge.
func IsJunction(tx *graph.Tx, node graph.NodeID) (bool, error) {
	out, err := tx.Degree(node, graph.Membership, graph.Outgoing)
	if err != nil {
		return false, err
	}
	in, err := tx.Degree(node, graph.Membership, graph.Incoming)
	if err != nil {
		return false, err
	}
	return out > 1 || in > 1, nil
}

// Walk follows the single membership edge leaving start in dir.
func Walk(tx *graph.Tx, start graph.NodeID, dir graph.Direction) (*PathSegment, error) {
	edges, err := tx.Edges(start, graph.Membership, dir)
	if err != nil {
		return nil, err
	}
	if len(edges) != 1 {
		return nil, fmt.Errorf("%w: node %d has %d %s membership edges", ErrChainUnresolved, start, len(edges), dir)
	}
	return WalkEdge(tx, start, edges[0], dir)
}

// WalkEdge walks from start along first and then along first's way until a
// junction, a dead end, or the end of the way is reached.
func WalkEdge(tx *graph.Tx, start graph.NodeID, first graph.Edge, dir graph.Direction) (*PathSegment, error) {
	return walkEdge(tx, start, first, dir, map[graph.NodeID]struct{}{start: {}})
}

func walkEdge(tx *graph.Tx, start graph.NodeID, first graph.Edge, dir graph.Direction, visited map[graph.NodeID]struct{}) (*PathSegment, error) {
	if ahead(first, dir) == start || behind(first, dir) != start {
		return nil, fmt.Errorf("%w: edge %d does not leave node %d %s", ErrChainUnresolved, first.ID, start, dir)
	}
	seg := &PathSegment{
		Start:     start,
		Direction: dir,
		Way:       first.Way,
		First:     first,
		Count:     1,
	}
	edge := first
	for {
		current := ahead(edge, dir)
		if _, seen := visited[current]; seen {
			return nil, fmt.Errorf("%w: node %d revisited on way %d", ErrChainUnresolved, current, seg.Way)
		}
		visited[current] = struct{}{}
		seg.Distance += edge.Distance()
		seg.Length++
		seg.Count++
		seg.Last = edge
		seg.End = current

		junction, err := IsJunction(tx, current)
		if err != nil {
			return nil, err
		}
		next, err := tx.Edges(current, graph.Membership, dir)
		if err != nil {
			return nil, err
		}
		if junction || len(next) != 1 || next[0].Way != seg.Way {
			seg.Junction = junction
			seg.next = next
			return seg, nil
		}
		edge = next[0]
	}
}

// ahead is the node an edge leads to when walked in dir.
func ahead(e graph.Edge, dir graph.Direction) graph.NodeID {
	if dir == graph.Incoming {
		return e.From
	}
	return e.To
}

func behind(e graph.Edge, dir graph.Direction) graph.NodeID {
	return ahead(e, dir.Reverse())
}
