package modification

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-rig/common"
	"github.com/Carmen-Shannon/oxy-rig/engine/skeleton"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookAtAlreadyAligned(t *testing.T) {
	look := NewLookAt("/target", "b1")
	r := newRig(t, 3, look)
	r.reg.Set("/target", common.TranslationTransform(mgl32.Vec3{0, 5, 0}))
	r.stack.Setup()
	r.stack.Execute(0.016)

	o, err := r.sk.BoneLocalPoseOverride(1)
	require.NoError(t, err)
	pose, err := r.sk.BoneLocalPose(1)
	require.NoError(t, err)
	assert.True(t, o.Transform.ApproxEqual(pose, 1e-5))
}

func TestLookAtPointsForwardAxisAtTarget(t *testing.T) {
	look := NewLookAt("/target", "b1")
	r := newRig(t, 3, look)
	r.reg.Set("/target", common.TranslationTransform(mgl32.Vec3{1, 2, 0}))
	r.stack.Setup()
	r.stack.Execute(0.016)

	assert.Equal(t, StateExecuting, look.State())
	assert.Less(t, angleBetween(r.forward(t, "b1"), mgl32.Vec3{1, 1, 0}), float32(1e-4))

	// the child follows its rotated parent
	b2 := r.global(t, "b2").Origin
	assert.InDelta(t, 0.7071, b2.X(), 1e-3)
	assert.InDelta(t, 1.7071, b2.Y(), 1e-3)
}

func TestLookAtRespectsWorldTransform(t *testing.T) {
	look := NewLookAt("/target", "b0")
	r := newRig(t, 2, look)
	r.sk.SetWorldTransform(common.TranslationTransform(mgl32.Vec3{10, 0, 0}))
	r.reg.Set("/target", common.TranslationTransform(mgl32.Vec3{13, 0, 0}))
	r.stack.Setup()
	r.stack.Execute(0.016)

	assert.Less(t, angleBetween(r.forward(t, "b0"), mgl32.Vec3{1, 0, 0}), float32(1e-4))
}

func TestLookAtConstraintLimitsAngle(t *testing.T) {
	look := NewLookAt("/target", "b1", WithLookAtConstraint(Constraint{Enabled: true, Min: 0, Max: 0.3}))
	r := newRig(t, 2, look)
	r.reg.Set("/target", common.TranslationTransform(mgl32.Vec3{4, 1, 0}))
	r.stack.Setup()
	r.stack.Execute(0.016)

	assert.InDelta(t, 0.3, angleBetween(r.forward(t, "b1"), mgl32.Vec3{0, 1, 0}), 1e-4)
}

func TestLookAtAdditionalRotationAboutForward(t *testing.T) {
	spin := mgl32.QuatRotate(1.2, mgl32.Vec3{0, 1, 0})
	look := NewLookAt("/target", "b1", WithLookAtAdditionalRotation(spin))
	r := newRig(t, 2, look)
	r.reg.Set("/target", common.TranslationTransform(mgl32.Vec3{0, 1, 3}))
	r.stack.Setup()
	r.stack.Execute(0.016)

	assert.Less(t, angleBetween(r.forward(t, "b1"), mgl32.Vec3{0, 0, 1}), float32(1e-4))
}

func TestLookAtStaleTargetRecovers(t *testing.T) {
	look := NewLookAt("/target", "b1")
	r := newRig(t, 2, look)
	r.stack.Setup()
	assert.Equal(t, StateCacheStale, look.State())

	err := look.Execute(0.016)
	assert.True(t, errors.Is(err, skeleton.ErrCacheStale))

	r.reg.Set("/target", common.TranslationTransform(mgl32.Vec3{1, 1, 0}))
	// the first tick after the node appears only revalidates the cache
	err = look.Execute(0.016)
	assert.True(t, errors.Is(err, skeleton.ErrCacheStale))
	require.NoError(t, look.Execute(0.016))
	assert.Equal(t, StateExecuting, look.State())

	r.reg.Remove("/target")
	err = look.Execute(0.016)
	assert.True(t, errors.Is(err, skeleton.ErrCacheStale))
	assert.Equal(t, StateCacheStale, look.State())
}

func TestLookAtRejectsSelfAndMissingBone(t *testing.T) {
	self := NewLookAt(skeletonPath, "b1")
	missing := NewLookAt("/target", "nope")
	r := newRig(t, 2)
	r.reg.Set("/target", common.TranslationTransform(mgl32.Vec3{1, 1, 0}))

	assert.True(t, errors.Is(self.Setup(r.stack), skeleton.ErrInvalidReference))
	assert.True(t, errors.Is(missing.Setup(r.stack), skeleton.ErrInvalidReference))
	assert.True(t, errors.Is(missing.Execute(0.016), skeleton.ErrInvalidReference))
}

func TestLookAtNotSetUp(t *testing.T) {
	look := NewLookAt("/target", "b1")
	assert.False(t, look.IsSetup())
	assert.True(t, errors.Is(look.Execute(0.016), skeleton.ErrNotReady))
}

func TestLookAtTipOfChain(t *testing.T) {
	look := NewLookAt("/target", "b2")
	r := newRig(t, 3, look)
	r.reg.Set("/target", common.TranslationTransform(mgl32.Vec3{1, 3, 0}))
	r.stack.Setup()
	r.stack.Execute(0.016)

	require.Equal(t, StateExecuting, look.State())
	assert.Less(t, angleBetween(r.forward(t, "b2"), mgl32.Vec3{1, 1, 0}), float32(1e-4))
	assert.True(t, r.global(t, "b2").Origin.ApproxEqualThreshold(mgl32.Vec3{0, 2, 0}, 1e-5))
	for _, name := range []string{"b0", "b1"} {
		assert.Less(t, angleBetween(r.forward(t, name), mgl32.Vec3{0, 1, 0}), float32(1e-5), name)
	}
}

func TestLookAtLockedAxes(t *testing.T) {
	look := NewLookAt("/target", "b1", WithLookAtLockedAxes(false, false, true))
	r := newRig(t, 2, look)
	r.stack.Setup()

	// turning towards +X is a rotation about the locked Z axis
	r.reg.Set("/target", common.TranslationTransform(mgl32.Vec3{1, 2, 0}))
	r.stack.Execute(0.016)
	assert.Less(t, angleBetween(r.forward(t, "b1"), mgl32.Vec3{0, 1, 0}), float32(1e-4))

	r.reg.Set("/target", common.TranslationTransform(mgl32.Vec3{0, 2, 1}))
	r.stack.Execute(0.016)
	assert.Less(t, angleBetween(r.forward(t, "b1"), mgl32.Vec3{0, 1, 1}), float32(1e-4))
}

func TestLookAtPropagateInstantly(t *testing.T) {
	for _, tc := range []struct {
		name      string
		propagate bool
	}{
		{name: "lazy", propagate: false},
		{name: "instant", propagate: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			look := NewLookAt("/target", "b1")
			look.SetPropagateInstantly(tc.propagate)
			assert.Equal(t, tc.propagate, look.PropagateInstantly())
			r := newRig(t, 3, look)
			r.reg.Set("/target", common.TranslationTransform(mgl32.Vec3{1, 2, 0}))
			r.stack.Setup()
			r.stack.Execute(0.016)

			before := r.sk.Stats()
			b2 := r.global(t, "b2").Origin
			assert.InDelta(t, 0.7071, b2.X(), 1e-3)
			assert.InDelta(t, 1.7071, b2.Y(), 1e-3)

			after := r.sk.Stats()
			if tc.propagate {
				assert.Equal(t, uint64(1), before.BranchRecomputes)
				assert.Equal(t, before.PoseRecomputes, after.PoseRecomputes)
			} else {
				assert.Zero(t, before.BranchRecomputes)
				assert.Equal(t, before.PoseRecomputes+1, after.PoseRecomputes)
			}
		})
	}
}

func TestLookAtConstraintInLocalSpace(t *testing.T) {
	for _, tc := range []struct {
		name  string
		local bool
		want  float64
	}{
		// the 0.2 rad animated pose is added on top of the limited look rotation
		{name: "look", local: false, want: 0.5},
		{name: "local", local: true, want: 0.3},
	} {
		t.Run(tc.name, func(t *testing.T) {
			opts := []LookAtBuilderOption{WithLookAtConstraint(Constraint{Enabled: true, Min: 0, Max: 0.3})}
			if tc.local {
				opts = append(opts, WithLookAtConstraintInLocalSpace())
			}
			look := NewLookAt("/target", "b1", opts...)
			assert.Equal(t, tc.local, look.ConstraintInLocalSpace())
			r := newRig(t, 2, look)
			pose := common.NewTransform(mgl32.QuatRotate(0.2, mgl32.Vec3{0, 0, 1}), mgl32.Vec3{1, 1, 1}, mgl32.Vec3{0, 1, 0})
			require.NoError(t, r.sk.SetBonePose(1, pose))
			r.reg.Set("/target", common.TranslationTransform(mgl32.Vec3{-4, 1, 0}))
			r.stack.Setup()
			r.stack.Execute(0.016)

			assert.InDelta(t, tc.want, angleBetween(r.forward(t, "b1"), mgl32.Vec3{0, 1, 0}), 1e-4)
		})
	}
}

func TestLookAtRejectsZeroForwardAxis(t *testing.T) {
	look := NewLookAt("/target", "b1")
	assert.True(t, errors.Is(look.SetForwardAxis(mgl32.Vec3{}), skeleton.ErrConfiguration))
	assert.Equal(t, mgl32.Vec3{0, 1, 0}, look.ForwardAxis())
	require.NoError(t, look.SetForwardAxis(mgl32.Vec3{0, 0, 2}))
	assert.Equal(t, mgl32.Vec3{0, 0, 1}, look.ForwardAxis())

	bad := NewLookAt("/target", "b1", WithLookAtForwardAxis(mgl32.Vec3{}))
	r := newRig(t, 2)
	r.reg.Set("/target", common.TranslationTransform(mgl32.Vec3{1, 1, 0}))
	assert.True(t, errors.Is(bad.Setup(r.stack), skeleton.ErrConfiguration))
	assert.True(t, errors.Is(bad.Execute(0.016), skeleton.ErrConfiguration))
}
