package routing

import (
	"fmt"

	"github.com/paulmach/orb"

	"github.com/tijuhasz/osm/geom"
	"github.com/tijuhasz/osm/graph"
	"github.com/tijuhasz/osm/osm"
)

// DefaultSnapMeters is how close a projected point must be to an existing
// way node for that node to be reused.
const DefaultSnapMeters = 1.0

// LocationKind selects how a point of interest is attached to a way.
type LocationKind int

const (
	// LocationExists reuses a way node the projection coincides with.
	LocationExists LocationKind = iota + 1
	// LocationIsPoint reuses a segment endpoint because the projection falls
	// outside the segment.
	LocationIsPoint
	// LocationInterpolated splices a new node into the way at the projection.
	LocationInterpolated
)

func (k LocationKind) String() string {
	switch k {
	case LocationExists:
		return "exists"
	case LocationIsPoint:
		return "is-point"
	case LocationInterpolated:
		return "interpolated"
	}
	return "unknown"
}

// Location is the decision of where a point of interest joins the network.
//
// For LocationExists and LocationIsPoint, Node is the reused way node. For
// LocationIsPoint, Left and Right are its neighbors on the way (nil at the
// ends of the way). For LocationInterpolated, Left and Right are the
// segment endpoints and Node is set once Process has created the new node.
type Location struct {
	Kind     LocationKind
	POI      osm.LocatedNode
	Way      *osm.OsmWay
	Node     osm.LocatedNode
	Left     *osm.LocatedNode
	Right    *osm.LocatedNode
	Point    orb.Point
	Distance float64

	segment int
	calc    geom.Calculator
}

func (l *Location) String() string {
	return fmt.Sprintf("Location[%s](%s on %s at %g,%g)", l.Kind, l.POI, l.Way.Name, l.Point.Lon(), l.Point.Lat())
}

// Locate turns a closest-way result into a location decision.
func Locate(d *osm.OsmWayDistance, snapMeters float64) *Location {
	r := d.Closest
	nodes := d.Way.Nodes
	loc := &Location{
		POI:     d.Point,
		Way:     d.Way,
		segment: r.SegmentIndex,
		calc:    d.Calculator,
	}

	if !r.Projection.Interior() {
		idx := r.SegmentIndex
		if r.Projection.T > 1 {
			idx++
		}
		loc.Kind = LocationIsPoint
		loc.Node = nodes[idx]
		if idx > 0 {
			loc.Left = &nodes[idx-1]
		}
		if idx < len(nodes)-1 {
			loc.Right = &nodes[idx+1]
		}
		loc.Point = loc.Node.Point
		loc.Distance = d.Calculator.Distance(d.Point.Point, loc.Point)
		return loc
	}

	p := r.Projection.Point
	near, far := r.SegmentIndex, r.SegmentIndex+1
	if r.ClosestNodeIndex == far {
		near, far = far, near
	}
	for _, idx := range []int{near, far} {
		if d.Calculator.Distance(p, nodes[idx].Point) <= snapMeters {
			loc.Kind = LocationExists
			loc.Node = nodes[idx]
			loc.Point = nodes[idx].Point
			loc.Distance = d.Calculator.Distance(d.Point.Point, loc.Point)
			return loc
		}
	}

	loc.Kind = LocationInterpolated
	loc.Left = &nodes[r.SegmentIndex]
	loc.Right = &nodes[r.SegmentIndex+1]
	loc.Point = p
	loc.Distance = r.Distance
	return loc
}

// Process applies the decision to the graph and returns the routable node.
// Either all of its changes are applied or none.
func (l *Location) Process(tx *graph.Tx) (graph.NodeID, error) {
	sp := tx.Savepoint()
	node, err := l.process(tx)
	if err != nil {
		if rerr := tx.RollbackTo(sp); rerr != nil {
			return 0, fmt.Errorf("%w (rollback: %v)", err, rerr)
		}
		return 0, err
	}
	return node, nil
}

func (l *Location) process(tx *graph.Tx) (graph.NodeID, error) {
	switch l.Kind {
	case LocationExists, LocationIsPoint:
	case LocationInterpolated:
		node, err := l.splice(tx)
		if err != nil {
			return 0, err
		}
		l.Node = node
	default:
		return 0, fmt.Errorf("unknown location kind %d", l.Kind)
	}

	if l.POI.ID != l.Node.ID {
		props := map[string]float64{graph.PropDistance: l.calc.Distance(l.POI.Point, l.Node.Point)}
		if _, err := mergeRoute(tx, l.POI.ID, l.Node.ID, props); err != nil {
			return 0, err
		}
	}
	return l.Node.ID, nil
}

// splice creates a node at the projected point and replaces the membership
// edge Left -> Right with Left -> new -> Right. The new node is also linked
// to both neighbors with route edges.
func (l *Location) splice(tx *graph.Tx) (osm.LocatedNode, error) {
	old := l.Way.Edges[l.segment]
	if _, err := tx.Edge(old.ID); err != nil {
		return osm.LocatedNode{}, degenerate(fmt.Errorf("segment %d of %s: %w", l.segment, l.Way, err))
	}
	id, err := tx.CreateLocatedNode(l.Point, graph.LabelNode, graph.LabelInterpolated)
	if err != nil {
		return osm.LocatedNode{}, err
	}
	created := osm.LocatedNode{ID: id, Point: l.Point}
	if err := tx.DeleteEdge(old.ID); err != nil {
		return osm.LocatedNode{}, err
	}

	toLeft := l.calc.Distance(l.Left.Point, l.Point)
	toRight := l.calc.Distance(l.Point, l.Right.Point)
	edges := []struct {
		kind     graph.Kind
		from, to graph.NodeID
		way      graph.WayID
		dist     float64
	}{
		{graph.Membership, l.Left.ID, id, old.Way, toLeft},
		{graph.Membership, id, l.Right.ID, old.Way, toRight},
		{graph.Route, id, l.Left.ID, 0, toLeft},
		{graph.Route, id, l.Right.ID, 0, toRight},
	}
	for _, e := range edges {
		if _, err := tx.CreateEdge(e.kind, e.from, e.to, e.way, map[string]float64{graph.PropDistance: e.dist}); err != nil {
			return osm.LocatedNode{}, err
		}
	}
	return created, nil
}

// mergeRoute creates the route edge from -> to, or updates the properties of
// an existing one.
func mergeRoute(tx *graph.Tx, from, to graph.NodeID, props map[string]float64) (graph.EdgeID, error) {
	edges, err := tx.Edges(from, graph.Route, graph.Outgoing)
	if err != nil {
		return 0, err
	}
	for _, e := range edges {
		if e.To == to {
			return e.ID, tx.SetEdgeProps(e.ID, props)
		}
	}
	return tx.CreateEdge(graph.Route, from, to, 0, props)
}
