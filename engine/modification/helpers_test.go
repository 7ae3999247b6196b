package modification

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-rig/common"
	"github.com/Carmen-Shannon/oxy-rig/engine/nodecache"
	"github.com/Carmen-Shannon/oxy-rig/engine/skeleton"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

const skeletonPath nodecache.NodePath = "/rig"

// rig is a skeleton of bones "b0".."bN-1" laid out one unit apart along +Y, a node registry and a stack.
type rig struct {
	sk    skeleton.Skeleton
	reg   nodecache.Registry
	stack Stack
}

func newRig(t *testing.T, bones int, modifiers ...Modifier) *rig {
	t.Helper()
	sk := skeleton.NewSkeleton(skeleton.WithName("rig"), skeleton.WithWorldTransform(common.IdentityTransform()))
	for i := 0; i < bones; i++ {
		rest := common.IdentityTransform()
		if i > 0 {
			rest = common.TranslationTransform(mgl32.Vec3{0, 1, 0})
		}
		idx, err := sk.AddBone(boneName(i), rest)
		require.NoError(t, err)
		if i > 0 {
			require.NoError(t, sk.SetParent(idx, idx-1))
		}
	}

	reg := nodecache.NewRegistry()
	reg.AddSkeleton(skeletonPath, sk)
	st := NewStack(WithSkeleton(sk, skeletonPath), WithResolver(reg), WithModifiers(modifiers...))
	return &rig{sk: sk, reg: reg, stack: st}
}

func boneName(i int) string {
	return "b" + string(rune('0'+i))
}

func (r *rig) global(t *testing.T, bone string) common.Transform {
	t.Helper()
	g, err := r.sk.BoneGlobalPose(r.sk.FindBone(bone))
	require.NoError(t, err)
	return g
}

// forward returns the skeleton-space +Y direction of a bone.
func (r *rig) forward(t *testing.T, bone string) mgl32.Vec3 {
	t.Helper()
	return r.global(t, bone).XformDirection(mgl32.Vec3{0, 1, 0}).Normalize()
}

func angleBetween(a, b mgl32.Vec3) float32 {
	return math32.Atan2(a.Cross(b).Len(), a.Dot(b))
}
