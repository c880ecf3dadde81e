package routing

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/paulmach/orb"

	"github.com/tijuhasz/osm/geom"
	"github.com/tijuhasz/osm/graph"
	"github.com/tijuhasz/osm/osm/osmtest"
)

func TestIntersectionRoutesAlongChain(t *testing.T) {
	store := osmtest.Standard(t, geom.Haversine{})
	tx := store.Begin(true)
	defer tx.Rollback()

	corner := loadWay(t, tx, "Top").Nodes[10].ID
	out, err := tx.Edges(corner, graph.Membership, graph.Outgoing)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 {
		t.Fatalf("corner has %d outgoing edges, want 1", len(out))
	}

	search := NewIntersectionRoutes(corner, out[0], false)
	if search.Direction != graph.Outgoing {
		t.Errorf("direction = %s, want outgoing", search.Direction)
	}
	if err := search.Process(tx); err != nil {
		t.Fatal(err)
	}
	route := search.Route
	fork := loadWay(t, tx, "ChainTopRight-5u").Nodes[0].ID
	if other := loadWay(t, tx, "ChainTopRight-5d").Nodes[0].ID; other != fork {
		t.Fatalf("fork ways start at %d and %d", fork, other)
	}
	if route.FromNode != corner || route.ToNode != fork {
		t.Errorf("route %s, want %d -> %d", route, corner, fork)
	}
	if route.Length != 50 || route.Count != 51 || route.Segments != 5 {
		t.Errorf("route %s has %d segments, want length 50, count 51, 5 segments", route, route.Segments)
	}
	if route.WayNode != out[0].To {
		t.Errorf("way node = %d, want %d", route.WayNode, out[0].To)
	}

	var want float64
	for i := 0; i < 5; i++ {
		want += loadWay(t, tx, fmt.Sprintf("ChainTopRight-%d", i)).LengthMeters(geom.Haversine{})
	}
	if math.Abs(route.Distance-want) > 1e-6 {
		t.Errorf("distance = %f, want %f", route.Distance, want)
	}
}

func TestRouteIntersection(t *testing.T) {
	store := osmtest.Standard(t, geom.Haversine{})
	r := newTestRouter()
	tx := store.Begin(true)
	defer tx.Rollback()

	top := loadWay(t, tx, "Top")
	right := loadWay(t, tx, "Right")
	corner := top.Nodes[10].ID
	fork := loadWay(t, tx, "ChainTopRight-5u").Nodes[0].ID
	wantTo := []graph.NodeID{fork, top.Nodes[0].ID, right.Nodes[0].ID}

	res, err := r.RouteIntersection(tx, corner, IntersectionOptions{CreateNewRoutes: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Routes) != len(wantTo) || len(res.Covered) != 0 || len(res.Unresolved) != 0 {
		t.Fatalf("got %d routes, %d covered, %d unresolved; want 3, 0, 0",
			len(res.Routes), len(res.Covered), len(res.Unresolved))
	}
	for i, route := range res.Routes {
		if route.FromNode != corner || route.ToNode != wantTo[i] {
			t.Errorf("route %d = %s, want %d -> %d", i, route, corner, wantTo[i])
		}
		if route.Edge == 0 {
			t.Errorf("route %d has no edge", i)
			continue
		}
		e, err := tx.Edge(route.Edge)
		if err != nil {
			t.Fatal(err)
		}
		if e.Kind != graph.Route || e.From != corner || e.To != wantTo[i] {
			t.Errorf("route %d edge = %+v", i, e)
		}
		if e.Props[graph.PropLength] != float64(route.Length) || e.Props[graph.PropCount] != float64(route.Count) {
			t.Errorf("route %d edge props = %v, want length %d count %d", i, e.Props, route.Length, route.Count)
		}
		if e.Distance() != route.Distance {
			t.Errorf("route %d edge distance = %f, want %f", i, e.Distance(), route.Distance)
		}
	}
	if res.Routes[1].Length != 10 || res.Routes[2].Length != 10 {
		t.Errorf("square side routes have lengths %d and %d, want 10", res.Routes[1].Length, res.Routes[2].Length)
	}
	edges := tx.Stats().Edges

	t.Run("idempotent", func(t *testing.T) {
		again, err := r.RouteIntersection(tx, corner, IntersectionOptions{CreateNewRoutes: true})
		if err != nil {
			t.Fatal(err)
		}
		if len(again.Routes) != 0 || len(again.Covered) != 3 {
			t.Errorf("got %d routes and %d covered, want 0 and 3", len(again.Routes), len(again.Covered))
		}
		if got := tx.Stats().Edges; got != edges {
			t.Errorf("edge count changed from %d to %d", edges, got)
		}
	})

	t.Run("replace", func(t *testing.T) {
		again, err := r.RouteIntersection(tx, corner, IntersectionOptions{DeleteExistingRoutes: true, CreateNewRoutes: true})
		if err != nil {
			t.Fatal(err)
		}
		if len(again.Routes) != 3 {
			t.Fatalf("got %d routes, want 3", len(again.Routes))
		}
		for _, route := range again.Routes {
			existing, err := route.ExistingRoutes(tx)
			if err != nil {
				t.Fatal(err)
			}
			if len(existing) != 1 || existing[0].ID != route.Edge {
				t.Errorf("%s: existing routes %v, want only edge %d", route, existing, route.Edge)
			}
		}
		if got := tx.Stats().Edges; got != edges {
			t.Errorf("edge count changed from %d to %d", edges, got)
		}
	})

	t.Run("delete only", func(t *testing.T) {
		again, err := r.RouteIntersection(tx, corner, IntersectionOptions{DeleteExistingRoutes: true})
		if err != nil {
			t.Fatal(err)
		}
		for _, route := range again.Routes {
			if route.Edge != 0 {
				t.Errorf("%s: created edge %d", route, route.Edge)
			}
			existing, err := route.ExistingRoutes(tx)
			if err != nil {
				t.Fatal(err)
			}
			if len(existing) != 0 {
				t.Errorf("%s: %d route edges left", route, len(existing))
			}
		}
		if got := tx.Stats().Edges; got != edges-3 {
			t.Errorf("edge count = %d, want %d", got, edges-3)
		}
	})
}

func TestRouteIntersectionSkipsUnresolvedChains(t *testing.T) {
	store := graph.NewStore()
	tx := store.Begin(true)
	defer tx.Rollback()

	b := osmtest.NewBuilder(t, tx, geom.Haversine{})
	b.Way("Loop", orb.Point{0, 0}, orb.Point{0.001, 0}, orb.Point{0.001, 0.001}, orb.Point{0, 0})
	b.Way("Spur", orb.Point{0, 0}, orb.Point{1, 0}, orb.Point{2, 0})
	b.Way("Cross", orb.Point{2, -1}, orb.Point{2, 0}, orb.Point{2, 1})
	b.Way("Stub", orb.Point{0, 0}, orb.Point{0, -1})
	junction := b.Node(orb.Point{0, 0})
	before := tx.Stats()

	res, err := newTestRouter().RouteIntersection(tx, junction, IntersectionOptions{CreateNewRoutes: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Routes) != 1 {
		t.Fatalf("got %d routes, want 1", len(res.Routes))
	}
	if end := b.Node(orb.Point{2, 0}); res.Routes[0].ToNode != end || res.Routes[0].Length != 2 {
		t.Errorf("route = %s, want junction %d after 2 edges", res.Routes[0], end)
	}
	// the loop in both directions and the dead end of the stub
	if len(res.Unresolved) != 3 {
		t.Fatalf("got %d unresolved chains, want 3", len(res.Unresolved))
	}
	for _, ce := range res.Unresolved {
		if ce.From != junction || !errors.Is(ce, ErrChainUnresolved) {
			t.Errorf("unresolved = %v", ce)
		}
	}
	if after := tx.Stats(); after.Edges != before.Edges+1 {
		t.Errorf("edges %d -> %d, want one route edge", before.Edges, after.Edges)
	}
	stubEnd := b.Node(orb.Point{0, -1})
	if routes, _ := tx.EdgesBetween(junction, stubEnd, graph.Route); len(routes) != 0 {
		t.Errorf("route edge written to dead end: %v", routes)
	}
}

func TestRouteIntersectionLabels(t *testing.T) {
	store := graph.NewStore()
	tx := store.Begin(true)
	defer tx.Rollback()

	b := osmtest.NewBuilder(t, tx, geom.Haversine{})
	b.Way("Main", orb.Point{0, 0}, orb.Point{1, 0}, orb.Point{2, 0})
	b.Way("Side", orb.Point{1, 0}, orb.Point{1, 1})
	b.Way("Cross", orb.Point{2, -1}, orb.Point{2, 0}, orb.Point{2, 1})
	a, mid, c, d := b.Node(orb.Point{0, 0}), b.Node(orb.Point{1, 0}), b.Node(orb.Point{2, 0}), b.Node(orb.Point{1, 1})

	labeled := func(id graph.NodeID) bool {
		t.Helper()
		n, err := tx.Node(id)
		if err != nil {
			t.Fatal(err)
		}
		return n.HasLabel(graph.LabelIntersection)
	}

	// a non-junction start is not labeled, the junction it reaches is
	rel, err := tx.Edges(a, graph.Membership, graph.Outgoing)
	if err != nil {
		t.Fatal(err)
	}
	search := NewIntersectionRoutes(a, rel[0], true)
	if err := search.Process(tx); err != nil {
		t.Fatal(err)
	}
	if search.Route.ToNode != mid || labeled(a) || !labeled(mid) {
		t.Errorf("route %s: labels a=%t mid=%t", search.Route, labeled(a), labeled(mid))
	}

	res, err := newTestRouter().RouteIntersection(tx, mid, IntersectionOptions{AddLabels: true, CreateNewRoutes: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Routes) != 1 || res.Routes[0].ToNode != c {
		t.Fatalf("routes = %v, want a single route to %d", res.Routes, c)
	}
	if len(res.Unresolved) != 2 {
		t.Errorf("got %d unresolved chains, want the dead ends at %d and %d", len(res.Unresolved), a, d)
	}
	for _, id := range []graph.NodeID{a, d} {
		if labeled(id) {
			t.Errorf("dead end %d labeled as intersection", id)
		}
		if routes, _ := tx.EdgesBetween(mid, id, graph.Route); len(routes) != 0 {
			t.Errorf("route edge written to dead end %d", id)
		}
	}
	if !labeled(mid) || !labeled(c) {
		t.Errorf("junction labels mid=%t c=%t, want both", labeled(mid), labeled(c))
	}
}

func TestRouteIntersectionRollsBackOnFailure(t *testing.T) {
	store := osmtest.Standard(t, geom.Haversine{})
	r := newTestRouter()
	corner := func(tx *graph.Tx) graph.NodeID { return loadWay(t, tx, "Top").Nodes[10].ID }

	err := store.Update(func(tx *graph.Tx) error {
		_, err := r.RouteIntersection(tx, corner(tx), IntersectionOptions{CreateNewRoutes: true})
		return err
	})
	if err != nil {
		t.Fatal(err)
	}

	tx := store.Begin(false)
	defer tx.Rollback()
	before := tx.Stats()
	_, err = r.RouteIntersection(tx, corner(tx), IntersectionOptions{DeleteExistingRoutes: true, CreateNewRoutes: true, AddLabels: true})
	if !errors.Is(err, graph.ErrTxReadOnly) {
		t.Fatalf("got %v, want ErrTxReadOnly", err)
	}
	if after := tx.Stats(); after != before {
		t.Errorf("stats %+v -> %+v after failure", before, after)
	}
	if got, _ := tx.EdgesBetween(corner(tx), loadWay(t, tx, "ChainTopRight-5u").Nodes[0].ID, graph.Route); len(got) != 1 {
		t.Errorf("got %d route edges to the fork, want the committed one", len(got))
	}
}
