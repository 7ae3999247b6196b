package common

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestTransformMulAndInverse(t *testing.T) {
	a := NewTransform(mgl32.QuatRotate(0.7, mgl32.Vec3{0, 0, 1}), mgl32.Vec3{2, 2, 2}, mgl32.Vec3{1, 2, 3})
	b := NewTransform(mgl32.QuatRotate(-0.3, mgl32.Vec3{1, 0, 0}), mgl32.Vec3{1, 1, 1}, mgl32.Vec3{0, 1, 0})

	ab := a.Mul(b)
	p := mgl32.Vec3{0.5, -1, 2}
	assert.True(t, ab.Xform(p).ApproxEqualThreshold(a.Xform(b.Xform(p)), 1e-5))

	ident := a.Mul(a.AffineInverse())
	assert.True(t, ident.ApproxEqual(IdentityTransform(), 1e-5))
}

func TestTransformDecompose(t *testing.T) {
	rot := mgl32.QuatRotate(1.1, mgl32.Vec3{0, 1, 0})
	tr := NewTransform(rot, mgl32.Vec3{1, 3, 2}, mgl32.Vec3{4, 5, 6})

	s := tr.Scale()
	assert.InDelta(t, 1, s[0], 1e-5)
	assert.InDelta(t, 3, s[1], 1e-5)
	assert.InDelta(t, 2, s[2], 1e-5)
	assert.InDelta(t, 1, math32.Abs(tr.Rotation().Dot(rot)), 1e-5)
}

func TestInterpolateWithEndpoints(t *testing.T) {
	a := NewTransform(mgl32.QuatRotate(0.2, mgl32.Vec3{0, 0, 1}), mgl32.Vec3{1, 1, 1}, mgl32.Vec3{0, 0, 0})
	b := NewTransform(mgl32.QuatRotate(1.2, mgl32.Vec3{0, 0, 1}), mgl32.Vec3{1, 1, 1}, mgl32.Vec3{2, 0, 0})

	assert.Equal(t, a, a.InterpolateWith(b, 0))
	assert.Equal(t, b, a.InterpolateWith(b, 1))

	mid := a.InterpolateWith(b, 0.5)
	assert.InDelta(t, 1, mid.Origin[0], 1e-5)
	assert.InDelta(t, 0.7, TwistAngle(mid.Rotation(), mgl32.Vec3{0, 0, 1}), 1e-4)
}

func TestLookingAt(t *testing.T) {
	tr := TranslationTransform(mgl32.Vec3{1, 0, 0})
	out := tr.LookingAt(mgl32.Vec3{1, 0, 5}, mgl32.Vec3{0, 1, 0})

	fwd := out.XformDirection(mgl32.Vec3{0, 1, 0})
	assert.True(t, fwd.ApproxEqualThreshold(mgl32.Vec3{0, 0, 1}, 1e-5))
	assert.Equal(t, tr.Origin, out.Origin)
}

func TestClampAngle(t *testing.T) {
	tests := []struct {
		name          string
		angle, lo, hi float32
		invert        bool
		expected      float32
	}{
		{"inside", 0.5, 0, 1, false, 0.5},
		{"above", 1.5, 0, 1, false, 1},
		{"wrapped negative", -0.1, 0, 1, false, 0},
		{"negative bound", -0.2, -0.5, 0.5, false, -0.2},
		{"saturate", 2.0, 0.8, 0.8, false, 0.8},
		{"inverted inside near lo", 0.2, 0, 1, true, 0},
		{"inverted inside near hi", 0.9, 0, 1, true, 1},
		{"inverted outside", 2, 0, 1, true, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, ClampAngle(tt.angle, tt.lo, tt.hi, tt.invert), 1e-5)
		})
	}
}

func TestSwingTwist(t *testing.T) {
	axis := mgl32.Vec3{0, 1, 0}
	twist := mgl32.QuatRotate(0.6, axis)
	swing := mgl32.QuatRotate(0.4, mgl32.Vec3{1, 0, 0})
	q := swing.Mul(twist)

	s, tw := SwingTwist(q, axis)
	assert.InDelta(t, 0.6, TwistAngle(tw, axis), 1e-4)
	assert.InDelta(t, 1, math32.Abs(s.Dot(swing)), 1e-4)
	assert.InDelta(t, 0.6, TwistAngle(q, axis), 1e-4)
}

func TestParseAxis(t *testing.T) {
	a, ok := ParseAxis("-Z")
	assert.True(t, ok)
	assert.Equal(t, AxisNegativeZ, a)
	assert.Equal(t, mgl32.Vec3{0, 0, -1}, a.Vector())

	_, ok = ParseAxis("w")
	assert.False(t, ok)
}
