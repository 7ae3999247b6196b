package modification

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-rig/common"
	"github.com/Carmen-Shannon/oxy-rig/engine/skeleton"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCCDIKConvergesOnReachableTarget(t *testing.T) {
	target := mgl32.Vec3{1.5, 0.5, 0}
	ik := NewCCDIK("/target",
		WithCCDIKTipBone("b2"),
		WithCCDIKJoints(
			CCDIKJoint{Bone: "b1", Mode: RotateFromTip, Axis: mgl32.Vec3{0, 0, 1}},
			CCDIKJoint{Bone: "b0", Mode: RotateFromTip, Axis: mgl32.Vec3{0, 0, 1}},
		),
	)
	r := newRig(t, 3, ik)
	r.reg.Set("/target", common.TranslationTransform(target))
	r.stack.Setup()

	for i := 0; i < 30; i++ {
		r.stack.Execute(0.016)
	}
	require.Equal(t, StateExecuting, ik.State())

	tip := r.global(t, "b2").Origin
	assert.Less(t, tip.Sub(target).Len(), float32(0.01))
	// rotation about +Z keeps the chain in the XY plane
	assert.InDelta(t, 0, tip.Z(), 1e-5)
}

func TestCCDIKFreeModeSingleJoint(t *testing.T) {
	ik := NewCCDIK("/target",
		WithCCDIKTipBone("b1"),
		WithCCDIKJoints(CCDIKJoint{Bone: "b0", Mode: RotateFree}),
	)
	r := newRig(t, 2, ik)
	r.reg.Set("/target", common.TranslationTransform(mgl32.Vec3{0, 0, 4}))
	r.stack.Setup()
	r.stack.Execute(0.016)

	tip := r.global(t, "b1").Origin
	assert.True(t, tip.ApproxEqualThreshold(mgl32.Vec3{0, 0, 1}, 1e-4), "tip %v", tip)
}

func TestCCDIKFromJointUsesForwardAxis(t *testing.T) {
	ik := NewCCDIK("/target",
		WithCCDIKTipBone("b1"),
		WithCCDIKJoints(CCDIKJoint{Bone: "b1", Mode: RotateFromJoint, Axis: mgl32.Vec3{0, 0, 1}}),
	)
	r := newRig(t, 2, ik)
	r.reg.Set("/target", common.TranslationTransform(mgl32.Vec3{-2, 1, 0}))
	r.stack.Setup()
	r.stack.Execute(0.016)

	assert.Less(t, angleBetween(r.forward(t, "b1"), mgl32.Vec3{-1, 0, 0}), float32(1e-4))
}

func TestCCDIKTwistConstraintRelativeToRest(t *testing.T) {
	ik := NewCCDIK("/target",
		WithCCDIKTipBone("b2"),
		WithCCDIKJoints(CCDIKJoint{
			Bone:       "b0",
			Mode:       RotateFromTip,
			Axis:       mgl32.Vec3{0, 0, 1},
			Constraint: Constraint{Enabled: true, Min: 0.5, Max: 0.5},
		}),
	)
	r := newRig(t, 3, ik)
	r.reg.Set("/target", common.TranslationTransform(mgl32.Vec3{2, 1, 0}))
	r.stack.Setup()
	r.stack.Execute(0.016)

	local, err := r.sk.BoneEffectiveLocalPose(0)
	require.NoError(t, err)
	rest, err := r.sk.BoneRest(0)
	require.NoError(t, err)
	rel := rest.Rotation().Inverse().Mul(local.Rotation())
	assert.InDelta(t, 0.5, common.TwistAngle(rel, mgl32.Vec3{0, 0, 1}), 1e-4)
}

func TestCCDIKMissingTip(t *testing.T) {
	ik := NewCCDIK("/target", WithCCDIKJoints(CCDIKJoint{Bone: "b0", Axis: mgl32.Vec3{0, 0, 1}}))
	r := newRig(t, 2, ik)
	r.reg.Set("/target", common.TranslationTransform(mgl32.Vec3{1, 1, 0}))
	r.stack.Setup()

	err := ik.Execute(0.016)
	assert.True(t, errors.Is(err, skeleton.ErrInvalidReference))
	assert.Equal(t, StateCacheStale, ik.State())
}

func TestCCDIKJointEditing(t *testing.T) {
	ik := NewCCDIK("/target")
	assert.True(t, errors.Is(ik.SetJoints([]CCDIKJoint{{Bone: ""}}), skeleton.ErrConfiguration))
	z := mgl32.Vec3{0, 0, 1}
	require.NoError(t, ik.SetJoints([]CCDIKJoint{{Bone: "b0", Axis: z}, {Bone: "b1", Axis: z}}))
	require.NoError(t, ik.SetJoint(1, CCDIKJoint{Bone: "b2", Mode: RotateFree}))
	assert.True(t, errors.Is(ik.SetJoint(2, CCDIKJoint{Bone: "b3"}), skeleton.ErrIndexOutOfRange))

	joints := ik.Joints()
	require.Len(t, joints, 2)
	assert.Equal(t, "b2", joints[1].Bone)
	assert.Equal(t, RotateFree, joints[1].Mode)

	ik.SetTipPath("/tip")
	assert.Equal(t, "/tip", string(ik.TipPath()))
	ik.SetTipBone("b1")
	assert.Equal(t, "", string(ik.TipPath()))
}

func TestCCDIKRejectsZeroAxis(t *testing.T) {
	z := mgl32.Vec3{0, 0, 1}
	ik := NewCCDIK("/target")
	require.NoError(t, ik.SetJoints([]CCDIKJoint{{Bone: "b0", Axis: z}}))

	err := ik.SetJoints([]CCDIKJoint{{Bone: "b0", Axis: z}, {Bone: "b1", Mode: RotateFromTip}})
	assert.True(t, errors.Is(err, skeleton.ErrConfiguration))
	require.Len(t, ik.Joints(), 1)

	err = ik.SetJoint(0, CCDIKJoint{Bone: "b0", Mode: RotateFromJoint})
	assert.True(t, errors.Is(err, skeleton.ErrConfiguration))
	err = ik.SetJoint(0, CCDIKJoint{Bone: "b0", Mode: RotateFree, Constraint: Constraint{Enabled: true, Max: 1}})
	assert.True(t, errors.Is(err, skeleton.ErrConfiguration))
	assert.Equal(t, RotateFromTip, ik.Joints()[0].Mode)

	// free joints without a constraint do not need an axis
	require.NoError(t, ik.SetJoint(0, CCDIKJoint{Bone: "b0", Mode: RotateFree}))

	assert.True(t, errors.Is(ik.SetForwardAxis(mgl32.Vec3{}), skeleton.ErrConfiguration))
}

func TestCCDIKBuilderRejectsInvalidJoint(t *testing.T) {
	z := mgl32.Vec3{0, 0, 1}
	ik := NewCCDIK("/target",
		WithCCDIKTipBone("b2"),
		WithCCDIKJoints(
			CCDIKJoint{Bone: "b1", Axis: z},
			CCDIKJoint{Bone: "b0", Mode: RotateFromJoint},
			CCDIKJoint{Bone: "b0", Axis: z},
		),
	)
	assert.Empty(t, ik.Joints())

	r := newRig(t, 3)
	r.reg.Set("/target", common.TranslationTransform(mgl32.Vec3{1, 1, 0}))
	assert.True(t, errors.Is(ik.Setup(r.stack), skeleton.ErrConfiguration))
	assert.True(t, errors.Is(ik.Execute(0.016), skeleton.ErrConfiguration))

	bad := NewCCDIK("/target", WithCCDIKForwardAxis(mgl32.Vec3{}))
	assert.True(t, errors.Is(bad.Setup(r.stack), skeleton.ErrConfiguration))
}

func TestCCDIKInvertedConstraint(t *testing.T) {
	// the target sits 0.2 rad counterclockwise of the chain, inside the excluded range
	target := mgl32.Vec3{-2 * math32.Sin(0.2), 2 * math32.Cos(0.2), 0}
	for _, tc := range []struct {
		name   string
		invert bool
		want   float64
	}{
		{name: "plain", invert: false, want: 0.2},
		{name: "inverted", invert: true, want: 0.5},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ik := NewCCDIK("/target",
				WithCCDIKTipBone("b2"),
				WithCCDIKJoints(CCDIKJoint{
					Bone:       "b0",
					Mode:       RotateFromTip,
					Axis:       mgl32.Vec3{0, 0, 1},
					Constraint: Constraint{Enabled: true, Min: -0.5, Max: 0.5, Invert: tc.invert},
				}),
			)
			r := newRig(t, 3, ik)
			r.reg.Set("/target", common.TranslationTransform(target))
			r.stack.Setup()
			r.stack.Execute(0.016)

			local, err := r.sk.BoneEffectiveLocalPose(0)
			require.NoError(t, err)
			assert.InDelta(t, tc.want, common.TwistAngle(local.Rotation(), mgl32.Vec3{0, 0, 1}), 1e-4)
		})
	}
}

func TestCCDIKConstraintSpace(t *testing.T) {
	for _, tc := range []struct {
		name  string
		local bool
		want  float64
	}{
		// the parent's 0.4 rad counts towards the skeleton-space limit
		{name: "global", local: false, want: 0.1},
		{name: "local", local: true, want: 0.5},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ik := NewCCDIK("/target",
				WithCCDIKTipBone("b2"),
				WithCCDIKJoints(CCDIKJoint{
					Bone:                   "b1",
					Mode:                   RotateFromTip,
					Axis:                   mgl32.Vec3{0, 0, 1},
					Constraint:             Constraint{Enabled: true, Min: 0.5, Max: 0.5},
					ConstraintInLocalSpace: tc.local,
				}),
			)
			r := newRig(t, 3, ik)
			parent := common.NewTransform(mgl32.QuatRotate(0.4, mgl32.Vec3{0, 0, 1}), mgl32.Vec3{1, 1, 1}, mgl32.Vec3{})
			require.NoError(t, r.sk.SetBonePose(0, parent))
			r.reg.Set("/target", common.TranslationTransform(mgl32.Vec3{2, 1, 0}))
			r.stack.Setup()
			r.stack.Execute(0.016)

			local, err := r.sk.BoneEffectiveLocalPose(1)
			require.NoError(t, err)
			assert.InDelta(t, tc.want, common.TwistAngle(local.Rotation(), mgl32.Vec3{0, 0, 1}), 1e-4)
		})
	}
}
