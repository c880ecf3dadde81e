// Package osmtest builds small synthetic road networks for tests.
package osmtest

import (
	"fmt"
	"math"
	"testing"

	"github.com/paulmach/orb"

	"github.com/tijuhasz/osm/geom"
	"github.com/tijuhasz/osm/graph"
)

// ChainStep is the coordinate step between consecutive chain nodes, in degrees.
const ChainStep = 0.1

// Builder writes ways into a transaction. Way nodes at the same coordinate
// are shared, so ways that touch are connected.
type Builder struct {
	t     testing.TB
	tx    *graph.Tx
	calc  geom.Calculator
	nodes map[[2]int64]graph.NodeID
	ways  map[string]graph.WayID
}

func NewBuilder(t testing.TB, tx *graph.Tx, calc geom.Calculator) *Builder {
	return &Builder{
		t:     t,
		tx:    tx,
		calc:  calc,
		nodes: make(map[[2]int64]graph.NodeID),
		ways:  make(map[string]graph.WayID),
	}
}

func key(p orb.Point) [2]int64 {
	return [2]int64{int64(math.Round(p.Lon() * 1e7)), int64(math.Round(p.Lat() * 1e7))}
}

// Node returns the way node at p, creating it on first use.
func (b *Builder) Node(p orb.Point) graph.NodeID {
	b.t.Helper()
	if id, ok := b.nodes[key(p)]; ok {
		return id
	}
	id, err := b.tx.CreateLocatedNode(p, graph.LabelNode)
	if err != nil {
		b.t.Fatalf("create node at %v: %v", p, err)
	}
	b.nodes[key(p)] = id
	return id
}

// Way creates a way through points, linking them with membership edges.
func (b *Builder) Way(name string, points ...orb.Point) graph.WayID {
	b.t.Helper()
	if len(points) == 0 {
		b.t.Fatalf("way %s has no points", name)
	}
	prev := b.Node(points[0])
	id, err := b.tx.CreateWay(graph.Way{Name: name, First: prev})
	if err != nil {
		b.t.Fatalf("create way %s: %v", name, err)
	}
	for i := 1; i < len(points); i++ {
		next := b.Node(points[i])
		dist := b.calc.Distance(points[i-1], points[i])
		if _, err := b.tx.CreateEdge(graph.Membership, prev, next, id, map[string]float64{graph.PropDistance: dist}); err != nil {
			b.t.Fatalf("link way %s: %v", name, err)
		}
		prev = next
	}
	b.ways[name] = id
	return id
}

// POI creates a point of interest node that is not part of any way.
func (b *Builder) POI(p orb.Point) graph.NodeID {
	b.t.Helper()
	id, err := b.tx.CreateLocatedNode(p, graph.LabelPointOfInterest)
	if err != nil {
		b.t.Fatalf("create poi at %v: %v", p, err)
	}
	return id
}

// BuildSquare creates the ways "Bottom", "Right", "Top" and "Left" around a
// square with one node per degree. Bottom and Top run west to east, Left
// and Right south to north, so node index i sits at coordinate i.
func (b *Builder) BuildSquare(size int) {
	b.t.Helper()
	line := func(name string, at func(i int) orb.Point) {
		points := make([]orb.Point, size+1)
		for i := range points {
			points[i] = at(i)
		}
		b.Way(name, points...)
	}
	s := float64(size)
	line("Bottom", func(i int) orb.Point { return orb.Point{float64(i), 0} })
	line("Right", func(i int) orb.Point { return orb.Point{s, float64(i)} })
	line("Top", func(i int) orb.Point { return orb.Point{float64(i), s} })
	line("Left", func(i int) orb.Point { return orb.Point{0, float64(i)} })
}

// BuildMultiChain creates count linked ways named name-0 .. name-(count-1),
// each of hops edges, starting at (x, y) and heading along (dx, dy). The last
// chain ends in a fork of two ways, name-<count>u and name-<count>d.
func (b *Builder) BuildMultiChain(name string, x, y float64, hops, count int, dx, dy float64) {
	b.t.Helper()
	at := orb.Point{x, y}
	walk := func(from orb.Point, sx, sy float64) []orb.Point {
		points := make([]orb.Point, hops+1)
		for i := range points {
			points[i] = orb.Point{from.Lon() + float64(i)*sx*ChainStep, from.Lat() + float64(i)*sy*ChainStep}
		}
		return points
	}
	for c := 0; c < count; c++ {
		points := walk(at, dx, dy)
		b.Way(fmt.Sprintf("%s-%d", name, c), points...)
		at = points[len(points)-1]
	}
	b.Way(fmt.Sprintf("%s-%du", name, count), walk(at, dx, 1)...)
	b.Way(fmt.Sprintf("%s-%dd", name, count), walk(at, dx, -1)...)
}

// LabelIntersections marks every node with more than one incoming or more
// than one outgoing membership edge.
func (b *Builder) LabelIntersections() {
	b.t.Helper()
	for _, id := range b.nodes {
		out, err := b.tx.Degree(id, graph.Membership, graph.Outgoing)
		if err != nil {
			b.t.Fatal(err)
		}
		in, err := b.tx.Degree(id, graph.Membership, graph.Incoming)
		if err != nil {
			b.t.Fatal(err)
		}
		if out > 1 || in > 1 {
			if err := b.tx.AddLabel(id, graph.LabelIntersection); err != nil {
				b.t.Fatal(err)
			}
		}
	}
}

// WayID returns the id of the way created under name.
func (b *Builder) WayID(name string) graph.WayID {
	b.t.Helper()
	id, ok := b.ways[name]
	if !ok {
		b.t.Fatalf("no way named %s", name)
	}
	return id
}

// Standard builds the shared test network: a 10 degree square with a
// five-segment chain leaving each corner diagonally outwards.
func Standard(t testing.TB, calc geom.Calculator) *graph.Store {
	t.Helper()
	store := graph.NewStore()
	tx := store.Begin(true)
	defer tx.Rollback()

	b := NewBuilder(t, tx, calc)
	b.BuildSquare(10)
	b.BuildMultiChain("ChainTopRight", 10, 10, 10, 5, 1, 1)
	b.BuildMultiChain("ChainBottomRight", 10, 0, 10, 5, 1, -1)
	b.BuildMultiChain("ChainTopLeft", 0, 10, 10, 5, -1, 1)
	b.BuildMultiChain("ChainBottomLeft", 0, 0, 10, 5, -1, -1)
	b.LabelIntersections()
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	return store
}
