package routing

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/tijuhasz/osm/geom"
	"github.com/tijuhasz/osm/graph"
	"github.com/tijuhasz/osm/osm"
)

// Router connects points of interest to the way network and materializes
// routes between intersections. It keeps no state between calls; every call
// runs inside the caller's transaction.
type Router struct {
	calc       geom.Calculator
	snapMeters float64
	logger     *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithCalculator sets the distance calculator. Defaults to geom.Haversine.
func WithCalculator(c geom.Calculator) Option {
	return func(r *Router) { r.calc = c }
}

// WithSnapMeters sets the tolerance within which an existing way node is
// reused instead of interpolating a new one.
func WithSnapMeters(m float64) Option {
	return func(r *Router) { r.snapMeters = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// NewRouter creates a Router with default settings overridden by opts.
func NewRouter(opts ...Option) *Router {
	r := &Router{
		calc:       geom.Haversine{},
		snapMeters: DefaultSnapMeters,
		logger:     slog.Default().With("component", "routing"),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Calculator returns the distance calculator in use.
func (r *Router) Calculator() geom.Calculator { return r.calc }

// PointRouteResult is the outcome of RoutePointOfInterest.
type PointRouteResult struct {
	Node     graph.NodeID
	Location *Location
}

// ClosestWay projects poi onto every candidate way and returns the nearest.
// Candidates without segments are skipped; on equal distances the earlier
// candidate wins.
func (r *Router) ClosestWay(tx *graph.Tx, poi osm.LocatedNode, ways []graph.WayID) (*osm.OsmWayDistance, error) {
	candidates := make([]*osm.OsmWayDistance, 0, len(ways))
	for _, id := range ways {
		way, err := osm.LoadWay(tx, id)
		if err != nil {
			return nil, degenerate(fmt.Errorf("way %d: %w", id, err))
		}
		d, err := way.CloseTo(poi, r.calc)
		if errors.Is(err, osm.ErrNoSegments) {
			r.logger.Warn("skipping candidate way", "way", way.Name, "error", err)
			continue
		} else if err != nil {
			return nil, err
		}
		r.logger.Debug("candidate way", "way", way.Name, "segment", d.Closest.SegmentIndex, "distance", d.Closest.Distance)
		candidates = append(candidates, d)
	}
	closest := osm.ClosestWay(candidates)
	if closest == nil {
		return nil, fmt.Errorf("%w: from list of %d ways to node %d", ErrNoClosestWay, len(ways), poi.ID)
	}
	return closest, nil
}

// RoutePointOfInterest finds the way closest to poi among the candidate
// ways, finds or creates the way node closest to it, and connects poi to that
// node with a route edge. Nothing is written when an error is returned.
func (r *Router) RoutePointOfInterest(tx *graph.Tx, poi graph.NodeID, ways []graph.WayID) (*PointRouteResult, error) {
	if !tx.Writable() {
		return nil, graph.ErrTxReadOnly
	}
	located, err := osm.Located(tx, poi)
	if err != nil {
		err = degenerate(err)
		r.logger.Error("cannot locate point of interest", "node", poi, "error", err)
		return nil, err
	}
	closest, err := r.ClosestWay(tx, located, ways)
	if err != nil {
		r.logger.Error("no closest way", "node", poi, "ways", len(ways), "error", err)
		return nil, err
	}
	r.logger.Info("located closest way", "node", poi, "closest", closest.String())

	loc := Locate(closest, r.snapMeters)
	connected, err := loc.Process(tx)
	if err != nil {
		r.logger.Error("failed to connect point of interest", "node", poi, "location", loc.String(), "error", err)
		return nil, err
	}
	r.logger.Info("created connected node", "node", poi, "connected", connected, "kind", loc.Kind.String())
	return &PointRouteResult{Node: connected, Location: loc}, nil
}

// IntersectionOptions controls how RouteIntersection writes routes.
type IntersectionOptions struct {
	DeleteExistingRoutes bool
	CreateNewRoutes      bool
	AddLabels            bool
}

// IntersectionResult lists the routes found from one node.
type IntersectionResult struct {
	// Routes were emitted, in reverse order of discovery.
	Routes []IntersectionRoute
	// Covered already had route edges and were left alone.
	Covered []IntersectionRoute
	// Unresolved chains were dropped.
	Unresolved []*ChainError
}

// RouteIntersection discovers the routes from node to the next intersection
// along each of its way memberships and, depending on opts, replaces or
// creates the matching route edges.
func (r *Router) RouteIntersection(tx *graph.Tx, node graph.NodeID, opts IntersectionOptions) (*IntersectionResult, error) {
	memberships, err := tx.Edges(node, graph.Membership, graph.Both)
	if err != nil {
		return nil, degenerate(err)
	}
	searches := make([]*IntersectionRoutes, 0, len(memberships))
	for _, rel := range memberships {
		searches = append(searches, NewIntersectionRoutes(node, rel, opts.AddLabels))
	}
	slices.Reverse(searches)

	// a surfaced failure undoes the writes of every search, not only the failing one
	sp := tx.Savepoint()
	fail := func(err error) (*IntersectionResult, error) {
		if rerr := tx.RollbackTo(sp); rerr != nil {
			return nil, fmt.Errorf("%w (rollback: %v)", err, rerr)
		}
		return nil, err
	}

	result := &IntersectionResult{}
	for _, search := range searches {
		if err := search.Process(tx); err != nil {
			var chainErr *ChainError
			if errors.As(err, &chainErr) {
				r.logger.Warn("failed to find a route", "search", search.String(), "error", err)
				result.Unresolved = append(result.Unresolved, chainErr)
				continue
			}
			return fail(err)
		}
		route := *search.Route
		covered, err := r.materialize(tx, &route, opts)
		if err != nil {
			return fail(err)
		}
		if covered {
			r.logger.Warn("already have existing routes", "from", route.FromNode, "to", route.ToNode)
			result.Covered = append(result.Covered, route)
			continue
		}
		result.Routes = append(result.Routes, route)
	}
	r.logger.Info("found routes", "node", node, "routes", len(result.Routes),
		"covered", len(result.Covered), "unresolved", len(result.Unresolved))
	return result, nil
}

func (r *Router) materialize(tx *graph.Tx, route *IntersectionRoute, opts IntersectionOptions) (bool, error) {
	existing, err := route.ExistingRoutes(tx)
	if err != nil {
		return false, err
	}
	if !opts.DeleteExistingRoutes && len(existing) > 0 {
		return true, nil
	}
	if opts.DeleteExistingRoutes {
		for _, e := range existing {
			if err := tx.DeleteEdge(e.ID); err != nil {
				return false, err
			}
		}
	}
	if opts.CreateNewRoutes {
		id, err := mergeRoute(tx, route.FromNode, route.ToNode, route.props())
		if err != nil {
			return false, err
		}
		route.Edge = id
	}
	return false, nil
}
