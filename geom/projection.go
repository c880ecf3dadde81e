package geom

import (
	"math"

	"github.com/paulmach/orb"
)

// ProjectionEpsilon is the slack allowed on T before a projection is
// considered to fall outside its segment.
const ProjectionEpsilon = 1e-9

// Projection is the foot of the perpendicular from a point onto the infinite
// line through segment A-B.
type Projection struct {
	A, B  orb.Point
	Point orb.Point // on the line, not necessarily on the segment
	T     float64   // 0 at A, 1 at B
}

// Project projects p onto the line through a and b.
// Uses equirectangular projection around a (accurate for short distances).
func Project(p, a, b orb.Point) Projection {
	cosLat := math.Cos(toRad(a.Lat()))
	ax, ay := toRad(a.Lon())*cosLat, toRad(a.Lat())
	bx, by := toRad(b.Lon())*cosLat, toRad(b.Lat())
	px, py := toRad(p.Lon())*cosLat, toRad(p.Lat())

	dx := bx - ax
	dy := by - ay
	if dx == 0 && dy == 0 {
		// a and b are the same point
		return Projection{A: a, B: b, Point: a, T: 0}
	}
	t := ((px-ax)*dx + (py-ay)*dy) / (dx*dx + dy*dy)

	// the frame is linear in lon/lat, so t interpolates degrees directly
	return Projection{A: a, B: b}.at(t)
}

func (p Projection) at(t float64) Projection {
	p.T = t
	p.Point = orb.Point{
		p.A.Lon() + t*(p.B.Lon()-p.A.Lon()),
		p.A.Lat() + t*(p.B.Lat()-p.A.Lat()),
	}
	return p
}

// Interior reports whether the projection lies on the segment itself.
func (p Projection) Interior() bool {
	return p.T >= -ProjectionEpsilon && p.T <= 1+ProjectionEpsilon
}

// Clamped returns the closest point to the projected point that lies on the segment.
func (p Projection) Clamped() orb.Point {
	switch {
	case p.T <= 0:
		return p.A
	case p.T >= 1:
		return p.B
	}
	return p.Point
}
