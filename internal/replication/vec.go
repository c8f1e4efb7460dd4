package replication

import "math"

// Vec3 is a position or velocity in world space.
type Vec3 struct {
	X, Y, Z float64
}

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }

func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

func (v Vec3) Scale(s float64) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }

// Len returns the euclidean length.
func (v Vec3) Len() float64 { return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z) }

// Dist returns the distance between two points.
func (v Vec3) Dist(o Vec3) float64 { return v.Sub(o).Len() }

// Lerp moves t of the way from v to o. t is clamped to [0, 1].
func (v Vec3) Lerp(o Vec3, t float64) Vec3 {
	t = clamp01(t)
	return v.Add(o.Sub(v).Scale(t))
}

// Array converts to the wire representation.
func (v Vec3) Array() [3]float64 { return [3]float64{v.X, v.Y, v.Z} }

// Vec3From converts from the wire representation.
func Vec3From(a [3]float64) Vec3 { return Vec3{a[0], a[1], a[2]} }

// Quat is a rotation. The zero value is treated as identity.
type Quat struct {
	X, Y, Z, W float64
}

// Identity is the no-rotation quaternion.
func Identity() Quat { return Quat{W: 1} }

// YawQuat returns a rotation around the vertical axis.
func YawQuat(radians float64) Quat {
	s, c := math.Sincos(radians / 2)
	return Quat{Y: s, W: c}
}

func (q Quat) Dot(o Quat) float64 { return q.X*o.X + q.Y*o.Y + q.Z*o.Z + q.W*o.W }

// Normalize returns the unit quaternion, or identity for a degenerate input.
func (q Quat) Normalize() Quat {
	n := math.Sqrt(q.Dot(q))
	if n < 1e-12 {
		return Identity()
	}
	return Quat{q.X / n, q.Y / n, q.Z / n, q.W / n}
}

// Lerp interpolates along the shorter arc and renormalizes.
func (q Quat) Lerp(o Quat, t float64) Quat {
	t = clamp01(t)
	q = q.Normalize()
	o = o.Normalize()
	if q.Dot(o) < 0 {
		o = Quat{-o.X, -o.Y, -o.Z, -o.W}
	}
	return Quat{
		q.X + (o.X-q.X)*t,
		q.Y + (o.Y-q.Y)*t,
		q.Z + (o.Z-q.Z)*t,
		q.W + (o.W-q.W)*t,
	}.Normalize()
}

// Angle returns the rotation angle in radians between two orientations.
func (q Quat) Angle(o Quat) float64 {
	d := math.Abs(q.Normalize().Dot(o.Normalize()))
	if d > 1 {
		d = 1
	}
	return 2 * math.Acos(d)
}

// Array converts to the wire representation.
func (q Quat) Array() [4]float64 { return [4]float64{q.X, q.Y, q.Z, q.W} }

// QuatFrom converts from the wire representation.
func QuatFrom(a [4]float64) Quat { return Quat{a[0], a[1], a[2], a[3]}.Normalize() }

func clamp01(t float64) float64 {
	switch {
	case t < 0:
		return 0
	case t > 1:
		return 1
	default:
		return t
	}
}
