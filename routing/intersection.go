package routing

import (
	"fmt"

	"github.com/tijuhasz/osm/graph"
)

// IntersectionRoute summarizes the chain between an intersection and the
// next intersection.
type IntersectionRoute struct {
	FromNode graph.NodeID
	FromRel  graph.Edge
	// WayNode is the first node of the chain after FromNode.
	WayNode  graph.NodeID
	ToNode   graph.NodeID
	ToRel    graph.Edge
	Distance float64
	Length   int
	Count    int
	Segments int
	// Edge is the route edge written for this route, 0 when none was written.
	Edge graph.EdgeID
}

func (r IntersectionRoute) String() string {
	return fmt.Sprintf("IntersectionRoute[%d -> %d](%.1fm, length %d, count %d)",
		r.FromNode, r.ToNode, r.Distance, r.Length, r.Count)
}

func (r IntersectionRoute) props() map[string]float64 {
	return map[string]float64{
		graph.PropDistance: r.Distance,
		graph.PropLength:   float64(r.Length),
		graph.PropCount:    float64(r.Count),
	}
}

// ExistingRoutes returns the route edges already connecting the route's
// endpoints, in either direction.
func (r IntersectionRoute) ExistingRoutes(tx *graph.Tx) ([]graph.Edge, error) {
	return tx.EdgesBetween(r.FromNode, r.ToNode, graph.Route)
}

// IntersectionRoutes searches for the route leaving an intersection along one
// of its membership edges.
type IntersectionRoutes struct {
	From      graph.NodeID
	Rel       graph.Edge
	Direction graph.Direction
	AddLabels bool

	Segments []*PathSegment
	Route    *IntersectionRoute
}

// NewIntersectionRoutes prepares a search from node along rel. Incoming
// membership edges are walked backwards, outgoing ones forwards.
func NewIntersectionRoutes(node graph.NodeID, rel graph.Edge, addLabels bool) *IntersectionRoutes {
	dir := graph.Outgoing
	if rel.To == node && rel.From != node {
		dir = graph.Incoming
	}
	return &IntersectionRoutes{From: node, Rel: rel, Direction: dir, AddLabels: addLabels}
}

func (r *IntersectionRoutes) String() string {
	return fmt.Sprintf("IntersectionRoutes[%d via edge %d %s]", r.From, r.Rel.ID, r.Direction)
}

// Process walks path segments across simple continuations until a junction,
// then builds the route. A chain that stops at a dead end is unresolved.
func (r *IntersectionRoutes) Process(tx *graph.Tx) error {
	visited := map[graph.NodeID]struct{}{r.From: {}}
	seg, err := walkEdge(tx, r.From, r.Rel, r.Direction, visited)
	if err != nil {
		return &ChainError{From: r.From, Rel: r.Rel, Err: err}
	}
	r.Segments = []*PathSegment{seg}
	for !seg.Junction && len(seg.NextEdges()) == 1 {
		seg, err = walkEdge(tx, seg.End, seg.NextEdges()[0], r.Direction, visited)
		if err != nil {
			return &ChainError{From: r.From, Rel: r.Rel, Err: err}
		}
		r.Segments = append(r.Segments, seg)
	}
	if !seg.Junction {
		return &ChainError{From: r.From, Rel: r.Rel, Err: fmt.Errorf("%w: dead end at node %d", ErrChainUnresolved, seg.End)}
	}

	route := &IntersectionRoute{
		FromNode: r.From,
		FromRel:  r.Rel,
		WayNode:  ahead(r.Rel, r.Direction),
		ToNode:   seg.End,
		ToRel:    seg.Last,
		Segments: len(r.Segments),
	}
	for _, s := range r.Segments {
		route.Distance += s.Distance
		route.Length += s.Length
	}
	route.Count = route.Length + 1
	r.Route = route

	if r.AddLabels {
		if err := labelIntersection(tx, r.From); err != nil {
			return err
		}
		if err := tx.AddLabel(seg.End, graph.LabelIntersection); err != nil {
			return err
		}
	}
	return nil
}

func labelIntersection(tx *graph.Tx, node graph.NodeID) error {
	junction, err := IsJunction(tx, node)
	if err != nil || !junction {
		return err
	}
	return tx.AddLabel(node, graph.LabelIntersection)
}
