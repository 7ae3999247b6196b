package common

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Transform is a 3D affine transform made of a 3x3 linear basis (rotation and scale) and a translation.
// Transforms compose right-to-left: a.Mul(b) applies b first and then a.
type Transform struct {
	// Basis holds the rotation and scale of the transform. Its columns are the transformed local axes.
	Basis mgl32.Mat3
	// Origin is the translation applied after the basis.
	Origin mgl32.Vec3
}

// IdentityTransform returns the transform that leaves every point unchanged.
//
// Returns:
//   - Transform: the identity transform
func IdentityTransform() Transform {
	return Transform{Basis: mgl32.Ident3()}
}

// NewTransform builds a transform from a rotation, a per-axis scale and a translation.
// The resulting transform scales first, then rotates, then translates.
//
// Parameters:
//   - rotation: the rotation quaternion (normalized internally)
//   - scale: the per-axis scale
//   - origin: the translation
//
// Returns:
//   - Transform: the composed transform
func NewTransform(rotation mgl32.Quat, scale, origin mgl32.Vec3) Transform {
	r := rotation.Normalize().Mat4().Mat3()
	return Transform{
		Basis:  r.Mul3(mgl32.Diag3(scale)),
		Origin: origin,
	}
}

// TranslationTransform returns a transform with an identity basis and the given origin.
//
// Parameters:
//   - origin: the translation
//
// Returns:
//   - Transform: the translation-only transform
func TranslationTransform(origin mgl32.Vec3) Transform {
	return Transform{Basis: mgl32.Ident3(), Origin: origin}
}

// RotationTransform returns a transform with the given rotation and a zero origin.
//
// Parameters:
//   - rotation: the rotation quaternion
//
// Returns:
//   - Transform: the rotation-only transform
func RotationTransform(rotation mgl32.Quat) Transform {
	return Transform{Basis: rotation.Normalize().Mat4().Mat3()}
}

// Mul composes two transforms so that the result applies o first and then t.
//
// Parameters:
//   - o: the right-hand transform
//
// Returns:
//   - Transform: t * o
func (t Transform) Mul(o Transform) Transform {
	return Transform{
		Basis:  t.Basis.Mul3(o.Basis),
		Origin: t.Basis.Mul3x1(o.Origin).Add(t.Origin),
	}
}

// Xform transforms a point.
//
// Parameters:
//   - v: the point to transform
//
// Returns:
//   - mgl32.Vec3: the transformed point
func (t Transform) Xform(v mgl32.Vec3) mgl32.Vec3 {
	return t.Basis.Mul3x1(v).Add(t.Origin)
}

// XformDirection transforms a direction, ignoring the origin.
//
// Parameters:
//   - v: the direction to transform
//
// Returns:
//   - mgl32.Vec3: the transformed direction
func (t Transform) XformDirection(v mgl32.Vec3) mgl32.Vec3 {
	return t.Basis.Mul3x1(v)
}

// AffineInverse returns the inverse of an affine transform. A singular basis yields a zero basis.
//
// Returns:
//   - Transform: the inverse transform
func (t Transform) AffineInverse() Transform {
	inv := t.Basis.Inv()
	return Transform{
		Basis:  inv,
		Origin: inv.Mul3x1(t.Origin).Mul(-1),
	}
}

// Scale returns the per-axis scale encoded in the basis. A mirrored basis reports negative scale on every axis.
//
// Returns:
//   - mgl32.Vec3: the scale
func (t Transform) Scale() mgl32.Vec3 {
	s := mgl32.Vec3{t.Basis.Col(0).Len(), t.Basis.Col(1).Len(), t.Basis.Col(2).Len()}
	if t.Basis.Det() < 0 {
		s = s.Mul(-1)
	}
	return s
}

// Rotation returns the rotation encoded in the basis with scale removed.
//
// Returns:
//   - mgl32.Quat: the normalized rotation
func (t Transform) Rotation() mgl32.Quat {
	return mgl32.Mat4ToQuat(t.Orthonormalized().Basis.Mat4()).Normalize()
}

// Orthonormalized returns a copy of the transform whose basis has its scale removed.
//
// Returns:
//   - Transform: the transform with a pure rotation basis
func (t Transform) Orthonormalized() Transform {
	s := t.Scale()
	cols := [3]mgl32.Vec3{t.Basis.Col(0), t.Basis.Col(1), t.Basis.Col(2)}
	for i := range cols {
		if s[i] != 0 {
			cols[i] = cols[i].Mul(1 / s[i])
		}
	}
	return Transform{Basis: mgl32.Mat3FromCols(cols[0], cols[1], cols[2]), Origin: t.Origin}
}

// WithRotation returns a copy of the transform with its rotation replaced and its scale and origin kept.
//
// Parameters:
//   - rotation: the new rotation
//
// Returns:
//   - Transform: the updated transform
func (t Transform) WithRotation(rotation mgl32.Quat) Transform {
	return NewTransform(rotation, t.Scale(), t.Origin)
}

// InterpolateWith blends towards o by weight. Rotation is spherically interpolated along the shortest arc
// while scale and origin are interpolated linearly. A weight of 0 returns t and a weight of 1 returns o exactly.
//
// Parameters:
//   - o: the transform to blend towards
//   - weight: the blend weight in [0, 1]
//
// Returns:
//   - Transform: the blended transform
func (t Transform) InterpolateWith(o Transform, weight float32) Transform {
	if weight <= 0 {
		return t
	}
	if weight >= 1 {
		return o
	}

	ra, rb := t.Rotation(), o.Rotation()
	if ra.Dot(rb) < 0 {
		rb = rb.Scale(-1)
	}
	rot := mgl32.QuatSlerp(ra, rb, weight)
	scale := LerpVec3(t.Scale(), o.Scale(), weight)
	origin := LerpVec3(t.Origin, o.Origin, weight)
	return NewTransform(rot, scale, origin)
}

// ApproxEqual reports whether two transforms match component-wise within the given threshold.
//
// Parameters:
//   - o: the transform to compare against
//   - threshold: the absolute tolerance per component
//
// Returns:
//   - bool: true if every basis and origin component is within threshold
func (t Transform) ApproxEqual(o Transform, threshold float32) bool {
	return t.Basis.ApproxEqualThreshold(o.Basis, threshold) && t.Origin.ApproxEqualThreshold(o.Origin, threshold)
}

// Mat4 returns the transform as a column-major 4x4 matrix.
//
// Returns:
//   - mgl32.Mat4: the homogeneous matrix
func (t Transform) Mat4() mgl32.Mat4 {
	m := t.Basis.Mat4()
	m[12], m[13], m[14] = t.Origin[0], t.Origin[1], t.Origin[2]
	return m
}

// TransformFromMat4 extracts the affine part of a column-major 4x4 matrix.
//
// Parameters:
//   - m: the homogeneous matrix
//
// Returns:
//   - Transform: the affine transform
func TransformFromMat4(m mgl32.Mat4) Transform {
	return Transform{Basis: m.Mat3(), Origin: mgl32.Vec3{m[12], m[13], m[14]}}
}

// LookingAt returns a copy of t rotated in place so that its forward axis points at target.
// The rotation applied is the minimal arc between the current forward direction and the target direction.
// If target coincides with the origin, t is returned unchanged.
//
// Parameters:
//   - target: the point to face, in the same space as t
//   - forward: the local axis that should face the target
//
// Returns:
//   - Transform: the re-oriented transform
func (t Transform) LookingAt(target, forward mgl32.Vec3) Transform {
	dir := target.Sub(t.Origin)
	if dir.Len() < Epsilon {
		return t
	}
	current := t.Basis.Mul3x1(forward)
	if current.Len() < Epsilon {
		return t
	}
	delta := mgl32.QuatBetweenVectors(current.Normalize(), dir.Normalize())
	return Transform{Basis: delta.Mat4().Mat3().Mul3(t.Basis), Origin: t.Origin}
}

// LerpVec3 linearly interpolates between two vectors.
//
// Parameters:
//   - a: the start vector
//   - b: the end vector
//   - w: the interpolation weight
//
// Returns:
//   - mgl32.Vec3: a + (b - a) * w
func LerpVec3(a, b mgl32.Vec3, w float32) mgl32.Vec3 {
	return a.Add(b.Sub(a).Mul(w))
}

// SafeNormalize returns the normalized vector, or fallback when v has near-zero length.
func SafeNormalize(v, fallback mgl32.Vec3) mgl32.Vec3 {
	l := v.Len()
	if l < Epsilon || math32.IsNaN(l) {
		return fallback
	}
	return v.Mul(1 / l)
}
