package skeleton

import "github.com/Carmen-Shannon/oxy-rig/common"

// LocalPoseOverride is a procedural replacement for a bone's animated local pose.
// The effective local pose is the animated pose blended towards Transform by Amount.
type LocalPoseOverride struct {
	Transform  common.Transform
	Amount     float32
	Persistent bool // survives ClearNonPersistentOverrides
}

// GlobalPoseOverride replaces a bone's skeleton-space pose after propagation. The bone's global pose is
// blended towards Transform by Amount and its descendants inherit the result.
type GlobalPoseOverride struct {
	Transform  common.Transform
	Amount     float32
	Persistent bool // survives ClearNonPersistentOverrides
}

// TopologyEvent is delivered to topology listeners after the bone array has been re-sorted.
type TopologyEvent struct {
	// Version is the topology version after the rebuild.
	Version uint64
	// Remap maps every bone index from the previous resolution to its new index, or -1 if the bone was removed.
	// Bones added since then are keyed by the index AddBone returned, unless a bone of the previous
	// resolution already holds that key.
	Remap map[int]int
}

// Stats counts the recomputations performed by the skeleton. Tests and the profiler read it.
type Stats struct {
	TopologyRebuilds uint64
	PoseRecomputes   uint64
	BranchRecomputes uint64 // ForceUpdateBoneChildrenTransforms calls
}

// SkinConsumer receives the final skinning transforms after every Update.
// The finals slice is owned by the skeleton and is only valid for the duration of the call.
type SkinConsumer interface {
	// UpdateSkin is called once per Update with the skeleton's world transform and one final transform per bone.
	//
	// Parameters:
	//   - base: the skeleton's world transform
	//   - finals: global pose times inverse global rest, indexed by bone
	UpdateSkin(base common.Transform, finals []common.Transform)
}
