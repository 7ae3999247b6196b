package skeleton

import (
	"github.com/Carmen-Shannon/oxy-rig/common"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// bone is a single rigid element of the hierarchy. Bones reference their parent by index into the
// skeleton's bone array; after topology resolution parent < index always holds.
type bone struct {
	name    string
	seq     uint64 // insertion order, used as the topological tie-break
	enabled bool
	parent  int

	rest        common.Transform
	disableRest bool
	restInverse common.Transform // inverse of the global rest, derived during topology resolution
	pose        common.Transform
	override    LocalPoseOverride

	customPose        common.Transform
	customPoseEnabled bool

	globalOverride GlobalPoseOverride

	global common.Transform
	final  common.Transform
	dirty  bool
}

// restOrIdentity returns the rest transform, or identity when the bone ignores its rest.
func (b *bone) restOrIdentity() common.Transform {
	if b.disableRest {
		return common.IdentityTransform()
	}
	return b.rest
}

// addedBone is a bone added since the last topology resolution and the index AddBone returned for it.
type addedBone struct {
	seq uint64
	idx int
}

// skeleton implements the Skeleton interface.
// It is single-threaded: callers must not mutate or query a skeleton from more than one goroutine at a time.
type skeleton struct {
	name   string
	bones  []bone
	byName map[string]int
	seq    uint64

	topologyDirty   bool
	poseDirty       bool
	topologyVersion uint64
	lastOrder       []uint64 // bone seqs in the order of the last resolution
	added           []addedBone

	world    common.Transform
	attached bool
	active   bool

	listeners      map[int]func(TopologyEvent)
	nextListenerID int

	consumer     SkinConsumer
	finalScratch []common.Transform

	stats Stats

	baseLogger *logrus.Logger
	log        *logrus.Entry
	warned     map[string]bool
}

// Skeleton is a hierarchy of bones with lazily recomputed global and final skinning transforms.
// Bone indices are positions in the bone array. Mutating the hierarchy may reorder the array on the next
// topology resolution; listeners registered with OnTopologyChanged receive the old-to-new index mapping.
type Skeleton interface {
	// Name returns the skeleton's identifier.
	Name() string

	// AddBone appends a new root bone whose animated pose starts at its rest transform.
	//
	// Parameters:
	//   - name: the unique, non-empty bone name
	//   - rest: the local bind transform relative to the parent
	//
	// Returns:
	//   - int: the index of the new bone
	//   - error: ErrConfiguration if the name is empty or already taken
	AddBone(name string, rest common.Transform) (int, error)

	// RemoveBone removes a bone. Its children are re-parented to the removed bone's parent.
	//
	// Parameters:
	//   - idx: the bone index
	//
	// Returns:
	//   - error: ErrIndexOutOfRange if idx is invalid
	RemoveBone(idx int) error

	// SetParent changes a bone's parent. Pass -1 to make the bone a root.
	// The hierarchy is left untouched on error.
	//
	// Parameters:
	//   - idx: the bone index
	//   - parent: the new parent index or -1
	//
	// Returns:
	//   - error: ErrIndexOutOfRange for an invalid idx, ErrInvalidReference for a missing parent,
	//     a self reference or a cycle
	SetParent(idx, parent int) error

	// Clear removes every bone.
	Clear()

	// BoneCount returns the number of bones.
	BoneCount() int

	// FindBone returns the index of the bone with the given name, or -1 if none exists.
	//
	// Parameters:
	//   - name: the bone name
	//
	// Returns:
	//   - int: the bone index or -1
	FindBone(name string) int

	// BoneName returns the name of a bone.
	BoneName(idx int) (string, error)

	// BoneParent returns the parent index of a bone, -1 for roots.
	BoneParent(idx int) (int, error)

	// BoneChildren returns the indices of a bone's direct children in ascending order.
	BoneChildren(idx int) ([]int, error)

	// BoneRest returns the local rest transform of a bone.
	BoneRest(idx int) (common.Transform, error)

	// SetBoneRest replaces the local rest transform of a bone and schedules a topology resolution.
	//
	// Parameters:
	//   - idx: the bone index
	//   - rest: the new local rest transform
	//
	// Returns:
	//   - error: ErrIndexOutOfRange if idx is invalid
	SetBoneRest(idx int, rest common.Transform) error

	// GlobalRest returns the composition of rest transforms from the root down to the bone.
	GlobalRest(idx int) (common.Transform, error)

	// BoneDisableRest reports whether a bone ignores its rest transform.
	BoneDisableRest(idx int) (bool, error)

	// SetBoneDisableRest makes a bone treat its rest as identity: global rests, inverse binds, the pose held
	// while disabled and ResetPoses all use identity instead. BoneRest still returns the stored rest.
	//
	// Parameters:
	//   - idx: the bone index
	//   - disable: whether the rest is ignored
	//
	// Returns:
	//   - error: ErrIndexOutOfRange if idx is invalid
	SetBoneDisableRest(idx int, disable bool) error

	// BoneEnabled reports whether a bone follows its pose and override. Disabled bones hold their rest transform.
	BoneEnabled(idx int) (bool, error)

	// SetBoneEnabled enables or disables a bone.
	SetBoneEnabled(idx int, enabled bool) error

	// EnsureTopology re-sorts the bone array parent-before-child if the hierarchy changed since the last call.
	// Ties are broken by insertion order. Recomputes inverse global rests and notifies topology listeners.
	EnsureTopology()

	// TopologyVersion returns a counter incremented on every topology resolution.
	TopologyVersion() uint64

	// OnTopologyChanged registers a listener called after every topology resolution.
	//
	// Parameters:
	//   - fn: the listener
	//
	// Returns:
	//   - int: a handle for RemoveTopologyListener
	OnTopologyChanged(fn func(TopologyEvent)) int

	// RemoveTopologyListener unregisters a topology listener.
	RemoveTopologyListener(id int)

	// SetBonePose writes the animated local pose of a bone.
	//
	// Parameters:
	//   - idx: the bone index
	//   - pose: the local pose relative to the parent
	//
	// Returns:
	//   - error: ErrIndexOutOfRange if idx is invalid
	SetBonePose(idx int, pose common.Transform) error

	// BoneLocalPose returns the animated local pose of a bone, without overrides.
	BoneLocalPose(idx int) (common.Transform, error)

	// BoneEffectiveLocalPose returns the animated local pose, adjusted by the custom pose and blended with the
	// bone's override.
	BoneEffectiveLocalPose(idx int) (common.Transform, error)

	// SetBoneCustomPose sets a bone-local adjustment applied after the animated pose. Identity disables it.
	//
	// Parameters:
	//   - idx: the bone index
	//   - t: the adjustment, composed as pose * t
	//
	// Returns:
	//   - error: ErrIndexOutOfRange if idx is invalid
	SetBoneCustomPose(idx int, t common.Transform) error

	// BoneCustomPose returns the custom pose of a bone, identity when none is set.
	BoneCustomPose(idx int) (common.Transform, error)

	// BoneGlobalPose returns the skeleton-space pose of a bone, recomputing dirty poses first.
	//
	// Parameters:
	//   - idx: the bone index
	//
	// Returns:
	//   - common.Transform: the global pose, or identity if the skeleton is not attached
	//   - error: ErrIndexOutOfRange for an invalid idx, ErrNotReady if never attached
	BoneGlobalPose(idx int) (common.Transform, error)

	// FinalSkinTransform returns the global pose times the inverse global rest of a bone.
	//
	// Parameters:
	//   - idx: the bone index
	//
	// Returns:
	//   - common.Transform: the skinning transform, or identity if the skeleton is not attached
	//   - error: ErrIndexOutOfRange for an invalid idx, ErrNotReady if never attached
	FinalSkinTransform(idx int) (common.Transform, error)

	// EnsurePose recomputes global and final transforms if anything changed since the last recompute.
	EnsurePose()

	// ForceUpdateBoneTransforms recomputes every global and final transform immediately.
	ForceUpdateBoneTransforms()

	// ForceUpdateBoneChildrenTransforms recomputes the global and final transforms of a bone and its
	// descendants immediately, using the current global pose of its parent. Poses outside the branch
	// that are still dirty are recomputed by the next query.
	//
	// Parameters:
	//   - idx: the bone index
	//
	// Returns:
	//   - error: ErrIndexOutOfRange if idx is invalid
	ForceUpdateBoneChildrenTransforms(idx int) error

	// ResetPoses sets every animated pose back to its rest transform.
	ResetPoses()

	// Update recomputes dirty poses and hands the final transforms to the skin consumer.
	Update()

	// SetBoneLocalPoseOverride writes a procedural override for a bone. The last write wins.
	//
	// Parameters:
	//   - idx: the bone index
	//   - t: the override transform in the bone's local space
	//   - amount: the blend weight in [0, 1]
	//   - persistent: whether the override survives ClearNonPersistentOverrides
	//
	// Returns:
	//   - error: ErrIndexOutOfRange for an invalid idx, ErrConfiguration if amount is outside [0, 1]
	SetBoneLocalPoseOverride(idx int, t common.Transform, amount float32, persistent bool) error

	// BoneLocalPoseOverride returns the current override of a bone.
	BoneLocalPoseOverride(idx int) (LocalPoseOverride, error)

	// SetBoneGlobalPoseOverride writes a skeleton-space override for a bone. It is applied after
	// propagation, so descendants follow the overridden pose.
	//
	// Parameters:
	//   - idx: the bone index
	//   - t: the override transform in skeleton space
	//   - amount: the blend weight in [0, 1]
	//   - persistent: whether the override survives ClearNonPersistentOverrides
	//
	// Returns:
	//   - error: ErrIndexOutOfRange for an invalid idx, ErrConfiguration if amount is outside [0, 1]
	SetBoneGlobalPoseOverride(idx int, t common.Transform, amount float32, persistent bool) error

	// BoneGlobalPoseOverride returns the current global override of a bone.
	BoneGlobalPoseOverride(idx int) (GlobalPoseOverride, error)

	// ClearGlobalPoseOverrides resets every global override.
	ClearGlobalPoseOverrides()

	// ClearNonPersistentOverrides resets the amount of every local and global override not marked persistent.
	ClearNonPersistentOverrides()

	// ClearAllOverrides resets every local and global override.
	ClearAllOverrides()

	// WorldTransform returns the skeleton's world transform and whether it has been attached.
	WorldTransform() (common.Transform, bool)

	// SetWorldTransform attaches the skeleton to the world with the given transform.
	SetWorldTransform(t common.Transform)

	// Detach removes the skeleton from the world. Pose queries report ErrNotReady until it is attached again.
	Detach()

	// Active reports whether the skeleton is attached and enabled for processing.
	Active() bool

	// SetActive enables or disables processing for an attached skeleton.
	SetActive(active bool)

	// WorldToSkeleton converts a world-space transform into skeleton space.
	WorldToSkeleton(t common.Transform) common.Transform

	// SkeletonToWorld converts a skeleton-space transform into world space.
	SkeletonToWorld(t common.Transform) common.Transform

	// GlobalToLocalPose converts a skeleton-space transform into the local space of a bone's parent,
	// i.e. the space in which the bone's pose is expressed.
	GlobalToLocalPose(idx int, global common.Transform) (common.Transform, error)

	// LocalToGlobalPose converts a transform expressed in a bone's parent space into skeleton space.
	LocalToGlobalPose(idx int, local common.Transform) (common.Transform, error)

	// SetSkinConsumer registers the consumer notified on every Update. Pass nil to remove it.
	SetSkinConsumer(c SkinConsumer)

	// Stats returns the recompute counters.
	Stats() Stats
}

var _ Skeleton = &skeleton{}

// NewSkeleton creates an empty skeleton.
//
// Parameters:
//   - options: functional options for skeleton configuration
//
// Returns:
//   - Skeleton: the newly created skeleton
func NewSkeleton(options ...SkeletonBuilderOption) Skeleton {
	s := &skeleton{
		name:       "skeleton",
		byName:     make(map[string]int),
		world:      common.IdentityTransform(),
		active:     true,
		listeners:  make(map[int]func(TopologyEvent)),
		baseLogger: logrus.StandardLogger(),
		warned:     make(map[string]bool),
	}

	for _, opt := range options {
		opt(s)
	}

	s.log = s.baseLogger.WithFields(logrus.Fields{"component": "skeleton", "skeleton": s.name})
	return s
}

func (s *skeleton) Name() string {
	return s.name
}

func (s *skeleton) AddBone(name string, rest common.Transform) (int, error) {
	if name == "" {
		return -1, errors.Wrap(ErrConfiguration, "bone name must not be empty")
	}
	if _, ok := s.byName[name]; ok {
		return -1, errors.Wrapf(ErrConfiguration, "bone %q already exists", name)
	}

	s.seq++
	s.bones = append(s.bones, bone{
		name:           name,
		seq:            s.seq,
		enabled:        true,
		parent:         -1,
		rest:           rest,
		restInverse:    common.IdentityTransform(),
		pose:           rest,
		override:       LocalPoseOverride{Transform: common.IdentityTransform()},
		customPose:     common.IdentityTransform(),
		globalOverride: GlobalPoseOverride{Transform: common.IdentityTransform()},
		global:         rest,
		final:          common.IdentityTransform(),
		dirty:          true,
	})
	idx := len(s.bones) - 1
	s.byName[name] = idx
	s.added = append(s.added, addedBone{seq: s.seq, idx: idx})
	s.markTopologyDirty()
	return idx, nil
}

func (s *skeleton) RemoveBone(idx int) error {
	if err := s.checkIndex(idx); err != nil {
		return err
	}

	grandparent := s.bones[idx].parent
	for i := range s.bones {
		if s.bones[i].parent == idx {
			s.bones[i].parent = grandparent
		}
	}

	seq := s.bones[idx].seq
	s.bones = append(s.bones[:idx], s.bones[idx+1:]...)
	for i := range s.bones {
		if s.bones[i].parent > idx {
			s.bones[i].parent--
		}
	}
	added := s.added[:0]
	for _, a := range s.added {
		if a.seq == seq {
			continue
		}
		if a.idx > idx {
			a.idx--
		}
		added = append(added, a)
	}
	s.added = added
	s.rebuildNameIndex()
	s.markTopologyDirty()
	return nil
}

func (s *skeleton) SetParent(idx, parent int) error {
	if err := s.checkIndex(idx); err != nil {
		return err
	}
	if parent < -1 || parent >= len(s.bones) {
		return errors.Wrapf(ErrInvalidReference, "parent %d does not exist", parent)
	}
	if parent == idx {
		return errors.Wrapf(ErrInvalidReference, "bone %q cannot be its own parent", s.bones[idx].name)
	}
	for p := parent; p >= 0; p = s.bones[p].parent {
		if p == idx {
			return errors.Wrapf(ErrInvalidReference, "parenting %q under %q would create a cycle",
				s.bones[idx].name, s.bones[parent].name)
		}
	}

	if s.bones[idx].parent == parent {
		return nil
	}
	s.bones[idx].parent = parent
	s.markTopologyDirty()
	return nil
}

func (s *skeleton) Clear() {
	s.bones = nil
	s.byName = make(map[string]int)
	s.added = nil
	s.markTopologyDirty()
}

func (s *skeleton) BoneCount() int {
	return len(s.bones)
}

func (s *skeleton) FindBone(name string) int {
	if idx, ok := s.byName[name]; ok {
		return idx
	}
	return -1
}

func (s *skeleton) BoneName(idx int) (string, error) {
	if err := s.checkIndex(idx); err != nil {
		return "", err
	}
	return s.bones[idx].name, nil
}

func (s *skeleton) BoneParent(idx int) (int, error) {
	if err := s.checkIndex(idx); err != nil {
		return -1, err
	}
	return s.bones[idx].parent, nil
}

func (s *skeleton) BoneChildren(idx int) ([]int, error) {
	if err := s.checkIndex(idx); err != nil {
		return nil, err
	}
	var children []int
	for i := range s.bones {
		if s.bones[i].parent == idx {
			children = append(children, i)
		}
	}
	return children, nil
}

func (s *skeleton) BoneRest(idx int) (common.Transform, error) {
	if err := s.checkIndex(idx); err != nil {
		return common.IdentityTransform(), err
	}
	return s.bones[idx].rest, nil
}

func (s *skeleton) SetBoneRest(idx int, rest common.Transform) error {
	if err := s.checkIndex(idx); err != nil {
		return err
	}
	s.bones[idx].rest = rest
	s.markTopologyDirty()
	return nil
}

func (s *skeleton) GlobalRest(idx int) (common.Transform, error) {
	if err := s.checkIndex(idx); err != nil {
		return common.IdentityTransform(), err
	}
	t := s.bones[idx].restOrIdentity()
	for p := s.bones[idx].parent; p >= 0; p = s.bones[p].parent {
		t = s.bones[p].restOrIdentity().Mul(t)
	}
	return t, nil
}

func (s *skeleton) BoneDisableRest(idx int) (bool, error) {
	if err := s.checkIndex(idx); err != nil {
		return false, err
	}
	return s.bones[idx].disableRest, nil
}

func (s *skeleton) SetBoneDisableRest(idx int, disable bool) error {
	if err := s.checkIndex(idx); err != nil {
		return err
	}
	if s.bones[idx].disableRest == disable {
		return nil
	}
	s.bones[idx].disableRest = disable
	s.markTopologyDirty()
	return nil
}

func (s *skeleton) BoneEnabled(idx int) (bool, error) {
	if err := s.checkIndex(idx); err != nil {
		return false, err
	}
	return s.bones[idx].enabled, nil
}

func (s *skeleton) SetBoneEnabled(idx int, enabled bool) error {
	if err := s.checkIndex(idx); err != nil {
		return err
	}
	s.bones[idx].enabled = enabled
	s.markBoneDirty(idx)
	return nil
}

func (s *skeleton) WorldTransform() (common.Transform, bool) {
	return s.world, s.attached
}

func (s *skeleton) SetWorldTransform(t common.Transform) {
	s.world = t
	s.attached = true
}

func (s *skeleton) Detach() {
	s.attached = false
}

func (s *skeleton) Active() bool {
	return s.attached && s.active
}

func (s *skeleton) SetActive(active bool) {
	s.active = active
}

func (s *skeleton) WorldToSkeleton(t common.Transform) common.Transform {
	return s.world.AffineInverse().Mul(t)
}

func (s *skeleton) SkeletonToWorld(t common.Transform) common.Transform {
	return s.world.Mul(t)
}

func (s *skeleton) SetSkinConsumer(c SkinConsumer) {
	s.consumer = c
}

func (s *skeleton) Stats() Stats {
	return s.stats
}

// checkIndex validates a bone index against the current bone array.
func (s *skeleton) checkIndex(idx int) error {
	if idx < 0 || idx >= len(s.bones) {
		return indexError(idx, len(s.bones))
	}
	return nil
}

func (s *skeleton) markTopologyDirty() {
	s.topologyDirty = true
	s.markAllDirty()
}

// markBoneDirty schedules a recompute after a bone's local inputs changed.
func (s *skeleton) markBoneDirty(idx int) {
	s.bones[idx].dirty = true
	s.poseDirty = true
}

func (s *skeleton) markAllDirty() {
	for i := range s.bones {
		s.bones[i].dirty = true
	}
	s.poseDirty = true
}

func (s *skeleton) rebuildNameIndex() {
	s.byName = make(map[string]int, len(s.bones))
	for i := range s.bones {
		s.byName[s.bones[i].name] = i
	}
}

// warnOnce logs a warning the first time a given key is seen.
func (s *skeleton) warnOnce(key, format string, args ...any) {
	if s.warned[key] {
		return
	}
	s.warned[key] = true
	s.log.Warnf(format, args...)
}
