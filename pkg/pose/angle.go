package pose

import "math"

// AngleDegrees returns the interior angle at vertex formed by the rays
// vertex→p1 and vertex→p3, in degrees within [0, 180]. Only X and Y are
// used.
//
// If any point is nil the result is 0. A zero-length ray has direction
// atan2(0, 0) = 0, so the result is the other ray's angle from the +X
// axis. Callers are expected to gate on keypoint presence and confidence
// before relying on the value.
func AngleDegrees(p1, vertex, p3 *Keypoint) float64 {
	if p1 == nil || vertex == nil || p3 == nil {
		return 0
	}
	ax, ay := p1.X-vertex.X, p1.Y-vertex.Y
	bx, by := p3.X-vertex.X, p3.Y-vertex.Y
	rad := math.Atan2(by, bx) - math.Atan2(ay, ax)
	deg := math.Abs(rad * 180 / math.Pi)
	if deg > 180 {
		deg = 360 - deg
	}
	return deg
}
