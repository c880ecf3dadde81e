package osm

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"

	"github.com/tijuhasz/osm/geom"
	"github.com/tijuhasz/osm/graph"
)

var (
	// ErrNoLocation is returned for nodes without a location property.
	ErrNoLocation = errors.New("osm: node has no location")
	// ErrNoSegments is returned when a way has fewer than two located nodes.
	ErrNoSegments = errors.New("osm: way has no segments")
)

// LocatedNode is a graph node paired with its point.
type LocatedNode struct {
	ID    graph.NodeID
	Point orb.Point
}

func (n LocatedNode) String() string {
	return fmt.Sprintf("Node[%d](%g,%g)", n.ID, n.Point.Lon(), n.Point.Lat())
}

// Located reads node id and its location.
func Located(tx *graph.Tx, id graph.NodeID) (LocatedNode, error) {
	n, err := tx.Node(id)
	if err != nil {
		return LocatedNode{}, err
	}
	if n.Location == nil {
		return LocatedNode{}, fmt.Errorf("node %d: %w", id, ErrNoLocation)
	}
	return LocatedNode{ID: id, Point: *n.Location}, nil
}

// OsmWay is one stored way segment with its nodes in way order.
// Edges[i] is the membership edge from Nodes[i] to Nodes[i+1].
type OsmWay struct {
	ID      graph.WayID
	OsmID   int64
	Name    string
	Highway string
	Nodes   []LocatedNode
	Edges   []graph.Edge
}

// LoadWay reads way id by following its membership edges from the first node.
func LoadWay(tx *graph.Tx, id graph.WayID) (*OsmWay, error) {
	w, err := tx.Way(id)
	if err != nil {
		return nil, err
	}
	way := &OsmWay{
		ID:      w.ID,
		OsmID:   w.OsmID,
		Name:    w.Name,
		Highway: w.Tags["highway"],
	}
	first, err := Located(tx, w.First)
	if err != nil {
		return nil, fmt.Errorf("way %q: %w", w.Name, err)
	}
	way.Nodes = append(way.Nodes, first)

	used := make(map[graph.EdgeID]struct{})
	current := w.First
	for {
		next, ok, err := wayEdge(tx, current, id, used)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		used[next.ID] = struct{}{}
		node, err := Located(tx, next.To)
		if err != nil {
			return nil, fmt.Errorf("way %q: %w", w.Name, err)
		}
		way.Nodes = append(way.Nodes, node)
		way.Edges = append(way.Edges, next)
		if next.To == w.First {
			// closed ways end where they started
			break
		}
		current = next.To
	}
	return way, nil
}

// wayEdge returns the first outgoing membership edge of node that belongs to
// way and has not been followed yet. A way passing through a node twice
// leaves it by its edges in creation order.
func wayEdge(tx *graph.Tx, node graph.NodeID, way graph.WayID, used map[graph.EdgeID]struct{}) (graph.Edge, bool, error) {
	edges, err := tx.Edges(node, graph.Membership, graph.Outgoing)
	if err != nil {
		return graph.Edge{}, false, err
	}
	for _, e := range edges {
		if _, done := used[e.ID]; done {
			continue
		}
		if e.Way == way {
			return e, true, nil
		}
	}
	return graph.Edge{}, false, nil
}

// Geometry returns the way as a line string.
func (w *OsmWay) Geometry() orb.LineString {
	ls := make(orb.LineString, len(w.Nodes))
	for i, n := range w.Nodes {
		ls[i] = n.Point
	}
	return ls
}

// Bound returns the bounding box of the way.
func (w *OsmWay) Bound() orb.Bound {
	return w.Geometry().Bound()
}

// LengthMeters sums the segment lengths using calc.
func (w *OsmWay) LengthMeters(calc geom.Calculator) float64 {
	var total float64
	for i := 0; i < len(w.Nodes)-1; i++ {
		total += calc.Distance(w.Nodes[i].Point, w.Nodes[i+1].Point)
	}
	return total
}

// IndexOf returns the position of node id in the way, or -1.
func (w *OsmWay) IndexOf(id graph.NodeID) int {
	for i, n := range w.Nodes {
		if n.ID == id {
			return i
		}
	}
	return -1
}

func (w *OsmWay) String() string {
	return fmt.Sprintf("Way[%d:%s](%d nodes)", w.ID, w.Name, len(w.Nodes))
}
