package osm

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/tijuhasz/osm/geom"
)

// DistanceResult describes the segment of a way closest to a point.
type DistanceResult struct {
	// SegmentIndex is i for the segment Nodes[i] - Nodes[i+1].
	SegmentIndex int
	// ClosestNodeIndex is the segment endpoint nearest to the projection.
	ClosestNodeIndex int
	Projection       geom.Projection
	// Distance is from the point to the closest point on the segment.
	Distance float64
	// NodeDistance is from the point to Nodes[ClosestNodeIndex].
	NodeDistance float64
}

// OsmWayDistance is the result of projecting a point onto a way.
type OsmWayDistance struct {
	Way        *OsmWay
	Point      LocatedNode
	Closest    DistanceResult
	Calculator geom.Calculator
}

func (d *OsmWayDistance) String() string {
	return fmt.Sprintf("%s to %s: segment %d, node %d, %.1fm",
		d.Point, d.Way, d.Closest.SegmentIndex, d.Closest.ClosestNodeIndex, d.Closest.Distance)
}

// CloseTo finds the segment of w closest to poi. Equal distances keep the
// earlier segment.
func (w *OsmWay) CloseTo(poi LocatedNode, calc geom.Calculator) (*OsmWayDistance, error) {
	if len(w.Nodes) < 2 {
		return nil, fmt.Errorf("%s: %w", w, ErrNoSegments)
	}
	var best *DistanceResult
	for i := 0; i < len(w.Nodes)-1; i++ {
		a, b := w.Nodes[i].Point, w.Nodes[i+1].Point
		proj := geom.Project(poi.Point, a, b)
		d := calc.Distance(poi.Point, proj.Clamped())
		if best != nil && d >= best.Distance {
			continue
		}
		closest := i
		if calc.Distance(proj.Clamped(), b) < calc.Distance(proj.Clamped(), a) {
			closest = i + 1
		}
		best = &DistanceResult{
			SegmentIndex:     i,
			ClosestNodeIndex: closest,
			Projection:       proj,
			Distance:         d,
			NodeDistance:     calc.Distance(poi.Point, w.Nodes[closest].Point),
		}
	}
	return &OsmWayDistance{Way: w, Point: poi, Closest: *best, Calculator: calc}, nil
}

// CompareWayDistance orders way distances by distance to the point.
func CompareWayDistance(a, b *OsmWayDistance) int {
	return cmp.Compare(a.Closest.Distance, b.Closest.Distance)
}

// ClosestWay returns the nearest of the candidates, preferring the earliest
// candidate on ties. It returns nil for an empty slice.
func ClosestWay(candidates []*OsmWayDistance) *OsmWayDistance {
	if len(candidates) == 0 {
		return nil
	}
	return slices.MinFunc(candidates, CompareWayDistance)
}
