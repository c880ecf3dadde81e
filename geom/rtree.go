package geom

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/tidwall/geoindex"
	"github.com/tidwall/rtree"
)

// WayIndex is a spatial index of way bounding boxes, keyed by way id.
type WayIndex struct {
	index *geoindex.Index
}

// NewWayIndex creates an empty index.
func NewWayIndex() *WayIndex {
	return &WayIndex{
		index: geoindex.Wrap(&rtree.RTree{}),
	}
}

// Insert adds a way with the given bounding box
func (w *WayIndex) Insert(id int64, bound orb.Bound) {
	w.index.Insert(
		[2]float64{bound.Min.Lon(), bound.Min.Lat()},
		[2]float64{bound.Max.Lon(), bound.Max.Lat()},
		id,
	)
}

// Search returns all way ids whose bounding boxes intersect with the query bbox
func (w *WayIndex) Search(minLon, minLat, maxLon, maxLat float64) []int64 {
	result := make([]int64, 0)
	w.index.Search(
		[2]float64{minLon, minLat},
		[2]float64{maxLon, maxLat},
		func(min, max [2]float64, data interface{}) bool {
			result = append(result, data.(int64))
			return true // continue searching
		},
	)
	return result
}

// SearchNearPoint returns all way ids within a distance (in meters) of a point
func (w *WayIndex) SearchNearPoint(lon, lat, distanceMeters float64) []int64 {
	deltaLon, deltaLat := degreesAround(lat, distanceMeters)
	return w.Search(lon-deltaLon, lat-deltaLat, lon+deltaLon, lat+deltaLat)
}

// Nearest returns up to k way ids ordered by bounding box distance to the point.
// Ways whose boxes are farther than maxMeters are left out; maxMeters <= 0 disables the limit.
func (w *WayIndex) Nearest(lon, lat float64, k int, maxMeters float64) []int64 {
	result := make([]int64, 0, k)
	if k <= 0 {
		return result
	}
	var deltaLon, deltaLat float64
	if maxMeters > 0 {
		deltaLon, deltaLat = degreesAround(lat, maxMeters)
	}
	target := [2]float64{lon, lat}
	w.index.Nearby(
		func(min, max [2]float64, _ interface{}, _ bool) float64 {
			return boxDist(target, min, max)
		},
		func(min, max [2]float64, data interface{}, dist float64) bool {
			// results arrive nearest first, so the first box out of range ends the scan
			if maxMeters > 0 && (lon < min[0]-deltaLon || lon > max[0]+deltaLon ||
				lat < min[1]-deltaLat || lat > max[1]+deltaLat) {
				return false
			}
			result = append(result, data.(int64))
			return len(result) < k
		},
	)
	return result
}

// boxDist is the squared planar distance in degrees from p to a box, zero inside it.
func boxDist(p, min, max [2]float64) float64 {
	dx := math.Max(0, math.Max(min[0]-p[0], p[0]-max[0]))
	dy := math.Max(0, math.Max(min[1]-p[1], p[1]-max[1]))
	return dx*dx + dy*dy
}

// Size returns the number of ways in the index
func (w *WayIndex) Size() int {
	return w.index.Len()
}

// degreesAround converts a distance to approximate degrees, adjusted for latitude
func degreesAround(lat, distanceMeters float64) (deltaLon, deltaLat float64) {
	latRad := toRad(lat)
	metersPerDegreeLon := EarthRadiusMeters * math.Pi / 180.0 * math.Cos(latRad)
	metersPerDegreeLat := EarthRadiusMeters * math.Pi / 180.0

	return distanceMeters / metersPerDegreeLon, distanceMeters / metersPerDegreeLat
}
