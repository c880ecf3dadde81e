package routing

import (
	"cmp"
	"slices"

	"github.com/paulmach/orb"

	"github.com/tijuhasz/osm/geom"
	"github.com/tijuhasz/osm/graph"
	"github.com/tijuhasz/osm/osm"
)

// CandidateFinder picks the ways worth projecting a point onto.
type CandidateFinder struct {
	Index            *geom.WayIndex
	MaxCandidates    int
	MaxCandidateDist float64 // meters
}

// NewCandidateFinder creates a finder with default limits.
func NewCandidateFinder(index *geom.WayIndex) *CandidateFinder {
	return &CandidateFinder{
		Index:            index,
		MaxCandidates:    8,
		MaxCandidateDist: 500,
	}
}

type candidate struct {
	id   graph.WayID
	dist float64
}

// Find returns up to MaxCandidates ways within MaxCandidateDist of p, nearest
// first. Without a distance limit the index is asked for the nearest boxes.
func (f *CandidateFinder) Find(tx *graph.Tx, p orb.Point, calc geom.Calculator) ([]graph.WayID, error) {
	var ids []graph.WayID
	// Use the spatial index for fast lookup if available
	if f.Index != nil {
		var found []int64
		if f.MaxCandidateDist > 0 {
			found = f.Index.SearchNearPoint(p.Lon(), p.Lat(), f.MaxCandidateDist)
		} else {
			found = f.Index.Nearest(p.Lon(), p.Lat(), f.MaxCandidates, 0)
		}
		for _, id := range found {
			ids = append(ids, graph.WayID(id))
		}
	} else {
		// Fallback to brute force search
		for _, w := range tx.Ways() {
			ids = append(ids, w.ID)
		}
	}

	candidates := make([]candidate, 0, len(ids))
	poi := osm.LocatedNode{Point: p}
	for _, id := range ids {
		way, err := osm.LoadWay(tx, id)
		if err != nil {
			return nil, err
		}
		d, err := way.CloseTo(poi, calc)
		if err != nil {
			continue
		}
		if f.MaxCandidateDist <= 0 || d.Closest.Distance <= f.MaxCandidateDist {
			candidates = append(candidates, candidate{id: id, dist: d.Closest.Distance})
		}
	}
	slices.SortStableFunc(candidates, func(a, b candidate) int {
		if c := cmp.Compare(a.dist, b.dist); c != 0 {
			return c
		}
		return cmp.Compare(a.id, b.id)
	})
	if f.MaxCandidates > 0 && len(candidates) > f.MaxCandidates {
		candidates = candidates[:f.MaxCandidates]
	}

	result := make([]graph.WayID, len(candidates))
	for i, c := range candidates {
		result[i] = c.id
	}
	return result, nil
}
