package geom

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// Triangle is used to check that an apex point lies on the line between
// Left and Right: the apex angle is then close to 180 degrees.
type Triangle struct {
	Apex  orb.Point
	Left  orb.Point
	Right orb.Point
}

// ApexAngle returns the angle at Apex in degrees, in [0, 180].
// It is 0 when Apex coincides with one of the other corners.
func (t Triangle) ApexAngle() float64 {
	if t.Apex.Equal(t.Left) || t.Apex.Equal(t.Right) {
		return 0
	}
	angle := math.Abs(geo.Bearing(t.Apex, t.Left) - geo.Bearing(t.Apex, t.Right))
	if angle > 180 {
		angle = 360 - angle
	}
	return angle
}
