package geom

import (
	"fmt"
	"math"

	"github.com/golang/geo/s2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

const EarthRadiusMeters = 6371000.0

// Calculator measures the distance in meters between two lon/lat points.
// Implementations must be symmetric and return zero only for equal points.
type Calculator interface {
	Distance(a, b orb.Point) float64
}

// Haversine uses the orb haversine implementation (WGS84 equatorial radius).
// This is the default calculator.
type Haversine struct{}

func (Haversine) Distance(a, b orb.Point) float64 {
	return geo.DistanceHaversine(a, b)
}

func (Haversine) String() string { return "haversine" }

// GreatCircle uses the mean earth radius.
type GreatCircle struct{}

func (GreatCircle) Distance(a, b orb.Point) float64 {
	return GreatCircleDistance(a.Lon(), a.Lat(), b.Lon(), b.Lat())
}

func (GreatCircle) String() string { return "greatcircle" }

// S2 measures the angle between the points on the unit sphere.
type S2 struct{}

func (S2) Distance(a, b orb.Point) float64 {
	la := s2.LatLngFromDegrees(a.Lat(), a.Lon())
	lb := s2.LatLngFromDegrees(b.Lat(), b.Lon())
	return la.Distance(lb).Radians() * EarthRadiusMeters
}

func (S2) String() string { return "s2" }

// CalculatorByName returns the calculator registered under name.
func CalculatorByName(name string) (Calculator, error) {
	switch name {
	case "", "haversine":
		return Haversine{}, nil
	case "greatcircle":
		return GreatCircle{}, nil
	case "s2":
		return S2{}, nil
	}
	return nil, fmt.Errorf("unknown distance calculator %q", name)
}

// GreatCircleDistance calculates the distance between two points in meters using the Haversine formula
func GreatCircleDistance(lon1, lat1, lon2, lat2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	lat1Rad := toRad(lat1)
	lat2Rad := toRad(lat2)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMeters * c
}

// PointToSegmentDistance returns the shortest distance in meters from point p to the line segment ab.
// The closest point is found in a local equirectangular frame; the distance itself uses calc.
func PointToSegmentDistance(calc Calculator, p, a, b orb.Point) float64 {
	return calc.Distance(p, Project(p, a, b).Clamped())
}

func toRad(deg float64) float64 { return deg * math.Pi / 180.0 }
