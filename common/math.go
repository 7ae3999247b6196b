package common

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Epsilon is the length below which vectors are treated as degenerate.
const Epsilon float32 = 1e-6

// TwoPi is a full revolution in radians.
const TwoPi = 2 * math32.Pi

// WrapAngle maps an angle in radians into [0, 2π).
//
// Parameters:
//   - angle: the angle in radians
//
// Returns:
//   - float32: the equivalent angle in [0, 2π)
func WrapAngle(angle float32) float32 {
	a := math32.Mod(angle, TwoPi)
	if a < 0 {
		a += TwoPi
	}
	if a >= TwoPi {
		a = 0
	}
	return a
}

// ClampAngle constrains an angle to the range [lo, hi] (normal mode) or out of the range (lo, hi) (inverted mode).
// The angle is first mapped into [0, 2π). Bounds may be negative, in which case the angle is compared one
// revolution lower as well. In normal mode an angle outside the range snaps to the bound nearest on the circle;
// in inverted mode an angle strictly inside the range snaps to the nearer bound.
//
// Parameters:
//   - angle: the angle in radians
//   - lo: the lower bound in radians
//   - hi: the upper bound in radians
//   - invert: whether the range is forbidden instead of allowed
//
// Returns:
//   - float32: the constrained angle
func ClampAngle(angle, lo, hi float32, invert bool) float32 {
	if lo > hi {
		lo, hi = hi, lo
	}
	angle = WrapAngle(angle)

	inside := func(a float32) bool { return a >= lo && a <= hi }
	rep := angle
	if !inside(rep) && inside(angle-TwoPi) {
		rep = angle - TwoPi
	}

	if !invert {
		if inside(rep) {
			return rep
		}
		if circularDistance(angle, lo) <= circularDistance(angle, hi) {
			return lo
		}
		return hi
	}

	if rep > lo && rep < hi {
		if rep-lo < hi-rep {
			return lo
		}
		return hi
	}
	return rep
}

// circularDistance returns the unsigned angular distance between two angles.
func circularDistance(a, b float32) float32 {
	d := WrapAngle(a - b)
	if d > math32.Pi {
		d = TwoPi - d
	}
	return d
}

// SignedAngle returns the signed angle that rotates from onto to about axis, in (-π, π].
// Both vectors are expected to lie in the plane orthogonal to axis.
//
// Parameters:
//   - from: the start direction
//   - to: the end direction
//   - axis: the rotation axis (unit length)
//
// Returns:
//   - float32: the signed angle in radians
func SignedAngle(from, to, axis mgl32.Vec3) float32 {
	return math32.Atan2(from.Cross(to).Dot(axis), from.Dot(to))
}

// ProjectOnPlane removes the component of v along the unit normal n.
func ProjectOnPlane(v, n mgl32.Vec3) mgl32.Vec3 {
	return v.Sub(n.Mul(v.Dot(n)))
}

// SwingTwist decomposes q into a twist about axis and the remaining swing so that q = swing * twist.
//
// Parameters:
//   - q: the rotation to decompose
//   - axis: the twist axis (unit length)
//
// Returns:
//   - mgl32.Quat: the swing part
//   - mgl32.Quat: the twist part
func SwingTwist(q mgl32.Quat, axis mgl32.Vec3) (mgl32.Quat, mgl32.Quat) {
	p := axis.Mul(q.V.Dot(axis))
	twist := mgl32.Quat{W: q.W, V: p}
	if twist.Len() < Epsilon {
		// 180 degree swing, the twist is undefined
		twist = mgl32.QuatIdent()
	} else {
		twist = twist.Normalize()
	}
	swing := q.Mul(twist.Conjugate())
	return swing, twist
}

// TwistAngle returns the signed rotation angle of q about axis in (-π, π].
//
// Parameters:
//   - q: the rotation
//   - axis: the twist axis (unit length)
//
// Returns:
//   - float32: the signed twist angle in radians
func TwistAngle(q mgl32.Quat, axis mgl32.Vec3) float32 {
	_, twist := SwingTwist(q, axis)
	angle := 2 * math32.Atan2(twist.V.Dot(axis), twist.W)
	if angle > math32.Pi {
		angle -= TwoPi
	} else if angle <= -math32.Pi {
		angle += TwoPi
	}
	return angle
}

// QuatAngle returns the rotation angle of q in [0, π].
func QuatAngle(q mgl32.Quat) float32 {
	w := mgl32.Clamp(math32.Abs(q.Normalize().W), 0, 1)
	return 2 * math32.Acos(w)
}

// QuatFromEulerDegrees builds a rotation from XYZ Euler angles in degrees applied in X, then Y, then Z order.
//
// Parameters:
//   - deg: the Euler angles in degrees
//
// Returns:
//   - mgl32.Quat: the rotation
func QuatFromEulerDegrees(deg mgl32.Vec3) mgl32.Quat {
	qx := mgl32.QuatRotate(mgl32.DegToRad(deg[0]), mgl32.Vec3{1, 0, 0})
	qy := mgl32.QuatRotate(mgl32.DegToRad(deg[1]), mgl32.Vec3{0, 1, 0})
	qz := mgl32.QuatRotate(mgl32.DegToRad(deg[2]), mgl32.Vec3{0, 0, 1})
	return qz.Mul(qy).Mul(qx)
}
