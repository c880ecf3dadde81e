package routing

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"

	"github.com/tijuhasz/osm/geom"
	"github.com/tijuhasz/osm/graph"
	"github.com/tijuhasz/osm/osm"
	"github.com/tijuhasz/osm/osm/osmtest"
)

func TestRoutePointOfInterestErrors(t *testing.T) {
	store := osmtest.Standard(t, geom.Haversine{})
	r := newTestRouter()

	t.Run("no candidates", func(t *testing.T) {
		tx := store.Begin(true)
		defer tx.Rollback()
		poi := makePOI(t, tx, orb.Point{5, 1})
		before := tx.Stats()
		if _, err := r.RoutePointOfInterest(tx, poi.ID, nil); !errors.Is(err, ErrNoClosestWay) {
			t.Errorf("got %v, want ErrNoClosestWay", err)
		}
		if diff := cmp.Diff(before, tx.Stats()); diff != "" {
			t.Errorf("graph changed (-before +after):\n%s", diff)
		}
	})

	t.Run("poi without location", func(t *testing.T) {
		tx := store.Begin(true)
		defer tx.Rollback()
		id, err := tx.CreateNode(graph.NodeSpec{Labels: []string{graph.LabelPointOfInterest}})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := r.RoutePointOfInterest(tx, id, allWays(tx)); !errors.Is(err, ErrDegenerateGeometry) {
			t.Errorf("got %v, want ErrDegenerateGeometry", err)
		}
	})

	t.Run("unknown way", func(t *testing.T) {
		tx := store.Begin(true)
		defer tx.Rollback()
		poi := makePOI(t, tx, orb.Point{5, 1})
		if _, err := r.RoutePointOfInterest(tx, poi.ID, []graph.WayID{999}); !errors.Is(err, ErrDegenerateGeometry) {
			t.Errorf("got %v, want ErrDegenerateGeometry", err)
		}
	})

	t.Run("way without segments", func(t *testing.T) {
		tx := store.Begin(true)
		defer tx.Rollback()
		b := osmtest.NewBuilder(t, tx, geom.Haversine{})
		stub := b.Way("Stub", orb.Point{20, 20})
		poi := makePOI(t, tx, orb.Point{20, 21})
		if _, err := r.RoutePointOfInterest(tx, poi.ID, []graph.WayID{stub}); !errors.Is(err, ErrNoClosestWay) {
			t.Errorf("got %v, want ErrNoClosestWay", err)
		}
	})
}

func TestRoutePointOfInterestReadOnly(t *testing.T) {
	store := osmtest.Standard(t, geom.Haversine{})
	var poi graph.NodeID
	err := store.Update(func(tx *graph.Tx) error {
		poi = makePOI(t, tx, orb.Point{4.5, 1}).ID
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	tx := store.Begin(false)
	defer tx.Rollback()
	if tx.Writable() {
		t.Fatal("read transaction reports writable")
	}
	if _, err := newTestRouter().RoutePointOfInterest(tx, poi, allWays(tx)); !errors.Is(err, graph.ErrTxReadOnly) {
		t.Errorf("got %v, want ErrTxReadOnly", err)
	}
}

func TestClosestWayTieBreak(t *testing.T) {
	store := graph.NewStore()
	tx := store.Begin(true)
	defer tx.Rollback()

	b := osmtest.NewBuilder(t, tx, geom.Haversine{})
	first := b.Way("A", orb.Point{0, 0}, orb.Point{1, 0})
	second := b.Way("B", orb.Point{0, 0}, orb.Point{1, 0})
	at := orb.Point{0.5, 0.5}
	poi := osm.LocatedNode{ID: b.POI(at), Point: at}
	r := newTestRouter()

	for _, order := range [][]graph.WayID{{first, second}, {second, first}} {
		closest, err := r.ClosestWay(tx, poi, order)
		if err != nil {
			t.Fatal(err)
		}
		if closest.Way.ID != order[0] {
			t.Errorf("candidates %v: closest way %d, want %d", order, closest.Way.ID, order[0])
		}
	}
}

func TestRoutePointOfInterest(t *testing.T) {
	store := osmtest.Standard(t, geom.Haversine{})
	r := newTestRouter()
	tx := store.Begin(true)
	defer tx.Rollback()

	poi := makePOI(t, tx, orb.Point{4.5, 1})
	res, err := r.RoutePointOfInterest(tx, poi.ID, allWays(tx))
	if err != nil {
		t.Fatal(err)
	}
	if res.Location.Kind != LocationInterpolated || res.Location.Way.Name != "Bottom" {
		t.Fatalf("location = %s, want interpolated on Bottom", res.Location)
	}
	n, err := tx.Node(res.Node)
	if err != nil {
		t.Fatal(err)
	}
	if !n.HasLabel(graph.LabelInterpolated) || !n.HasLabel(graph.LabelNode) {
		t.Errorf("new node labels = %v", n.Labels)
	}
	if d := geom.GreatCircleDistance(n.Location.Lon(), n.Location.Lat(), 4.5, 0); d > 1 {
		t.Errorf("new node at %v, %fm from (4.5, 0)", *n.Location, d)
	}
	routes, err := tx.EdgesBetween(poi.ID, res.Node, graph.Route)
	if err != nil {
		t.Fatal(err)
	}
	if len(routes) != 1 || routes[0].From != poi.ID {
		t.Errorf("routes between poi and node = %v", routes)
	}

	bottom := loadWay(t, tx, "Bottom")
	if got := bottom.IndexOf(res.Node); got != 5 {
		t.Errorf("new node at index %d of Bottom, want 5", got)
	}
	if len(bottom.Nodes) != 12 {
		t.Errorf("Bottom has %d nodes, want 12", len(bottom.Nodes))
	}

	// routing the same point again reuses the interpolated node
	again, err := r.RoutePointOfInterest(tx, poi.ID, allWays(tx))
	if err != nil {
		t.Fatal(err)
	}
	if again.Node != res.Node || again.Location.Kind != LocationExists {
		t.Errorf("second route = %s to %d, want exists at %d", again.Location, again.Node, res.Node)
	}
	if routes, _ := tx.EdgesBetween(poi.ID, res.Node, graph.Route); len(routes) != 1 {
		t.Errorf("got %d route edges after second call, want 1", len(routes))
	}
}

func TestCandidateFinder(t *testing.T) {
	store := osmtest.Standard(t, geom.Haversine{})
	tx := store.Begin(false)
	defer tx.Rollback()

	index, err := osm.IndexWays(tx, allWays(tx))
	if err != nil {
		t.Fatal(err)
	}
	bottom, err := tx.WayByName("Bottom")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		finder *CandidateFinder
		point  orb.Point
		want   []graph.WayID
	}{
		{name: "indexed", finder: NewCandidateFinder(index), point: orb.Point{4.5, 0.001}, want: []graph.WayID{bottom.ID}},
		{name: "brute force", finder: NewCandidateFinder(nil), point: orb.Point{4.5, 0.001}, want: []graph.WayID{bottom.ID}},
		{name: "out of range", finder: NewCandidateFinder(index), point: orb.Point{4.5, 1}, want: []graph.WayID{}},
		{
			name:   "nearest",
			finder: &CandidateFinder{Index: index, MaxCandidates: 1},
			point:  orb.Point{4.5, 1},
			want:   []graph.WayID{bottom.ID},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.finder.Find(tx, tc.point, geom.Haversine{})
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Find() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
