package skeleton

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-rig/common"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quarterTurn = mgl32.QuatRotate(mgl32.DegToRad(90), mgl32.Vec3{0, 0, 1})

func origin(t *testing.T, s Skeleton, idx int) mgl32.Vec3 {
	t.Helper()
	g, err := s.BoneGlobalPose(idx)
	require.NoError(t, err)
	return g.Origin
}

func TestGlobalPoseOverride(t *testing.T) {
	s := newAttached(t)
	chain(t, s, 3)

	turned := common.NewTransform(quarterTurn, mgl32.Vec3{1, 1, 1}, mgl32.Vec3{0, 1, 0})
	err := s.SetBoneGlobalPoseOverride(1, turned, -0.1, false)
	assert.True(t, errors.Is(err, ErrConfiguration))
	require.NoError(t, s.SetBoneGlobalPoseOverride(1, turned, 1, false))

	o, err := s.BoneGlobalPoseOverride(1)
	require.NoError(t, err)
	assert.Equal(t, float32(1), o.Amount)
	assert.False(t, o.Persistent)

	g, err := s.BoneGlobalPose(1)
	require.NoError(t, err)
	assert.True(t, g.ApproxEqual(turned, 1e-5))
	// descendants inherit the overridden global pose
	assert.True(t, origin(t, s, 2).ApproxEqualThreshold(mgl32.Vec3{-1, 1, 0}, 1e-5))

	s.ClearNonPersistentOverrides()
	assert.True(t, origin(t, s, 2).ApproxEqualThreshold(mgl32.Vec3{0, 2, 0}, 1e-5))

	require.NoError(t, s.SetBoneGlobalPoseOverride(1, turned, 1, true))
	s.ClearNonPersistentOverrides()
	assert.True(t, origin(t, s, 2).ApproxEqualThreshold(mgl32.Vec3{-1, 1, 0}, 1e-5))

	s.ClearGlobalPoseOverrides()
	assert.True(t, origin(t, s, 2).ApproxEqualThreshold(mgl32.Vec3{0, 2, 0}, 1e-5))

	_, err = s.BoneGlobalPoseOverride(5)
	assert.True(t, errors.Is(err, ErrIndexOutOfRange))
}

func TestGlobalPoseOverrideBlends(t *testing.T) {
	s := newAttached(t)
	chain(t, s, 2)

	require.NoError(t, s.SetBoneGlobalPoseOverride(1, common.TranslationTransform(mgl32.Vec3{0, 3, 0}), 0.5, true))
	assert.InDelta(t, 2, origin(t, s, 1).Y(), 1e-5)

	s.ClearAllOverrides()
	o, err := s.BoneGlobalPoseOverride(1)
	require.NoError(t, err)
	assert.Zero(t, o.Amount)
	assert.InDelta(t, 1, origin(t, s, 1).Y(), 1e-5)
}

func TestCustomPose(t *testing.T) {
	s := newAttached(t)
	chain(t, s, 3)

	custom := common.NewTransform(quarterTurn, mgl32.Vec3{1, 1, 1}, mgl32.Vec3{})
	require.NoError(t, s.SetBoneCustomPose(1, custom))
	got, err := s.BoneCustomPose(1)
	require.NoError(t, err)
	assert.True(t, got.ApproxEqual(custom, 1e-6))

	// the custom pose composes after the animated pose in bone-local space
	assert.True(t, origin(t, s, 1).ApproxEqualThreshold(mgl32.Vec3{0, 1, 0}, 1e-5))
	assert.True(t, origin(t, s, 2).ApproxEqualThreshold(mgl32.Vec3{-1, 1, 0}, 1e-5))

	require.NoError(t, s.SetBoneCustomPose(1, common.IdentityTransform()))
	assert.True(t, origin(t, s, 2).ApproxEqualThreshold(mgl32.Vec3{0, 2, 0}, 1e-5))

	assert.True(t, errors.Is(s.SetBoneCustomPose(3, custom), ErrIndexOutOfRange))
}

func TestDisableRest(t *testing.T) {
	s := newAttached(t)
	chain(t, s, 2)

	disabled, err := s.BoneDisableRest(1)
	require.NoError(t, err)
	assert.False(t, disabled)

	require.NoError(t, s.SetBoneDisableRest(1, true))
	disabled, _ = s.BoneDisableRest(1)
	assert.True(t, disabled)

	gr, err := s.GlobalRest(1)
	require.NoError(t, err)
	assert.True(t, gr.Origin.ApproxEqualThreshold(mgl32.Vec3{}, 1e-6))
	rest, err := s.BoneRest(1)
	require.NoError(t, err)
	assert.InDelta(t, 1, rest.Origin.Y(), 1e-6)

	// the pose is no longer measured against the rest, so the skin transform carries the full pose
	final, err := s.FinalSkinTransform(1)
	require.NoError(t, err)
	assert.InDelta(t, 1, final.Origin.Y(), 1e-5)

	s.ResetPoses()
	assert.True(t, origin(t, s, 1).ApproxEqualThreshold(mgl32.Vec3{}, 1e-6))

	require.NoError(t, s.SetBonePose(1, common.TranslationTransform(mgl32.Vec3{0, 4, 0})))
	require.NoError(t, s.SetBoneEnabled(1, false))
	assert.True(t, origin(t, s, 1).ApproxEqualThreshold(mgl32.Vec3{}, 1e-6))

	assert.True(t, errors.Is(s.SetBoneDisableRest(2, true), ErrIndexOutOfRange))
}

func TestForceUpdateBoneChildrenTransforms(t *testing.T) {
	s := newAttached(t)
	chain(t, s, 3)
	s.EnsurePose()
	before := s.Stats()

	turned := common.NewTransform(quarterTurn, mgl32.Vec3{1, 1, 1}, mgl32.Vec3{0, 1, 0})
	require.NoError(t, s.SetBonePose(1, turned))
	require.NoError(t, s.ForceUpdateBoneChildrenTransforms(1))
	assert.Equal(t, before.BranchRecomputes+1, s.Stats().BranchRecomputes)

	assert.True(t, origin(t, s, 2).ApproxEqualThreshold(mgl32.Vec3{-1, 1, 0}, 1e-5))
	assert.Equal(t, before.PoseRecomputes, s.Stats().PoseRecomputes)

	// a dirty ancestor outside the branch still forces a full recompute on the next query
	require.NoError(t, s.SetBonePose(0, common.TranslationTransform(mgl32.Vec3{5, 0, 0})))
	require.NoError(t, s.ForceUpdateBoneChildrenTransforms(2))
	assert.True(t, origin(t, s, 2).ApproxEqualThreshold(mgl32.Vec3{4, 1, 0}, 1e-5))
	assert.Equal(t, before.PoseRecomputes+1, s.Stats().PoseRecomputes)

	assert.True(t, errors.Is(s.ForceUpdateBoneChildrenTransforms(3), ErrIndexOutOfRange))
}

func TestRemoveBoneReparentsPose(t *testing.T) {
	s := newAttached(t)
	chain(t, s, 3)
	require.NoError(t, s.SetBonePose(0, common.NewTransform(quarterTurn, mgl32.Vec3{1, 1, 1}, mgl32.Vec3{})))
	require.NoError(t, s.SetBonePose(2, common.TranslationTransform(mgl32.Vec3{0, 1, 0})))

	require.NoError(t, s.RemoveBone(1))
	c := s.FindBone("c")
	p, err := s.BoneParent(c)
	require.NoError(t, err)
	assert.Equal(t, s.FindBone("a"), p)

	// c keeps its local pose under its new parent
	assert.True(t, origin(t, s, c).ApproxEqualThreshold(mgl32.Vec3{-1, 0, 0}, 1e-5))
	gr, err := s.GlobalRest(c)
	require.NoError(t, err)
	assert.True(t, gr.Origin.ApproxEqualThreshold(mgl32.Vec3{0, 1, 0}, 1e-6))
}
