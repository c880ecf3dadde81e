// Package graph is a small in-memory property graph: nodes with labels and
// an optional location, typed directed edges with numeric properties, and
// named ways. All access goes through transactions.
package graph

import (
	"errors"
	"slices"

	"github.com/paulmach/orb"
)

type NodeID int64

type EdgeID int64

type WayID int64

// Kind distinguishes the two relationship types the routing engine uses.
type Kind uint8

const (
	// Membership links consecutive nodes of a way in way order.
	Membership Kind = iota + 1
	// Route links two routable endpoints directly.
	Route
)

func (k Kind) String() string {
	switch k {
	case Membership:
		return "NEXT"
	case Route:
		return "ROUTE"
	}
	return "UNKNOWN"
}

type Direction uint8

const (
	Outgoing Direction = iota + 1
	Incoming
	Both
)

// Reverse returns the opposite direction. Both is its own reverse.
func (d Direction) Reverse() Direction {
	switch d {
	case Outgoing:
		return Incoming
	case Incoming:
		return Outgoing
	}
	return d
}

func (d Direction) String() string {
	switch d {
	case Outgoing:
		return "OUTGOING"
	case Incoming:
		return "INCOMING"
	}
	return "BOTH"
}

// Node labels used across the module.
const (
	LabelNode            = "OSMNode"
	LabelPointOfInterest = "PointOfInterest"
	LabelInterpolated    = "Interpolated"
	LabelIntersection    = "Intersection"
)

// Edge property keys.
const (
	PropDistance = "distance"
	PropLength   = "length"
	PropCount    = "count"
)

var (
	ErrNotFound   = errors.New("graph: not found")
	ErrTxDone     = errors.New("graph: transaction already committed or rolled back")
	ErrTxReadOnly = errors.New("graph: write in read-only transaction")
)

// Node is a snapshot of a stored node.
type Node struct {
	ID       NodeID
	OsmID    int64
	Labels   []string
	Location *orb.Point
	Tags     map[string]string
}

func (n Node) HasLabel(label string) bool {
	return slices.Contains(n.Labels, label)
}

// Edge is a snapshot of a stored relationship.
type Edge struct {
	ID    EdgeID
	Kind  Kind
	From  NodeID
	To    NodeID
	Way   WayID // membership edges only
	Props map[string]float64
}

// Other returns the endpoint of e that is not n.
func (e Edge) Other(n NodeID) NodeID {
	if e.From == n {
		return e.To
	}
	return e.From
}

// Distance returns the cached distance property, or 0.
func (e Edge) Distance() float64 {
	return e.Props[PropDistance]
}

// Way is a named path. Its node order is given by its membership edges,
// starting at First.
type Way struct {
	ID    WayID
	OsmID int64
	Name  string
	First NodeID
	Tags  map[string]string
}

type nodeRecord struct {
	id       NodeID
	osmID    int64
	labels   []string
	location *orb.Point
	tags     map[string]string
	out      []EdgeID
	in       []EdgeID
}

type edgeRecord struct {
	id    EdgeID
	kind  Kind
	from  NodeID
	to    NodeID
	way   WayID
	props map[string]float64
}

func (n *nodeRecord) snapshot() Node {
	node := Node{
		ID:     n.id,
		OsmID:  n.osmID,
		Labels: slices.Clone(n.labels),
		Tags:   n.tags,
	}
	if n.location != nil {
		p := *n.location
		node.Location = &p
	}
	return node
}

func (e *edgeRecord) snapshot() Edge {
	props := make(map[string]float64, len(e.props))
	for k, v := range e.props {
		props[k] = v
	}
	return Edge{ID: e.id, Kind: e.kind, From: e.from, To: e.to, Way: e.way, Props: props}
}
