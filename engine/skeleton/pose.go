package skeleton

import (
	"github.com/Carmen-Shannon/oxy-rig/common"
	"github.com/pkg/errors"
)

func (s *skeleton) SetBonePose(idx int, pose common.Transform) error {
	if err := s.checkIndex(idx); err != nil {
		return err
	}
	s.bones[idx].pose = pose
	s.markBoneDirty(idx)
	return nil
}

func (s *skeleton) ResetPoses() {
	for i := range s.bones {
		s.bones[i].pose = s.bones[i].restOrIdentity()
	}
	s.markAllDirty()
}

func (s *skeleton) SetBoneCustomPose(idx int, t common.Transform) error {
	if err := s.checkIndex(idx); err != nil {
		return err
	}
	b := &s.bones[idx]
	b.customPose = t
	b.customPoseEnabled = !t.ApproxEqual(common.IdentityTransform(), common.Epsilon)
	s.markBoneDirty(idx)
	return nil
}

func (s *skeleton) BoneCustomPose(idx int) (common.Transform, error) {
	if err := s.checkIndex(idx); err != nil {
		return common.IdentityTransform(), err
	}
	return s.bones[idx].customPose, nil
}

func (s *skeleton) BoneLocalPose(idx int) (common.Transform, error) {
	if err := s.checkIndex(idx); err != nil {
		return common.IdentityTransform(), err
	}
	return s.bones[idx].pose, nil
}

func (s *skeleton) BoneEffectiveLocalPose(idx int) (common.Transform, error) {
	if err := s.checkIndex(idx); err != nil {
		return common.IdentityTransform(), err
	}
	return effectiveLocal(&s.bones[idx]), nil
}

func (s *skeleton) BoneGlobalPose(idx int) (common.Transform, error) {
	if err := s.readyForQuery(); err != nil {
		return common.IdentityTransform(), err
	}
	s.EnsurePose()
	if err := s.checkIndex(idx); err != nil {
		return common.IdentityTransform(), err
	}
	return s.bones[idx].global, nil
}

func (s *skeleton) FinalSkinTransform(idx int) (common.Transform, error) {
	if err := s.readyForQuery(); err != nil {
		return common.IdentityTransform(), err
	}
	s.EnsurePose()
	if err := s.checkIndex(idx); err != nil {
		return common.IdentityTransform(), err
	}
	return s.bones[idx].final, nil
}

func (s *skeleton) GlobalToLocalPose(idx int, global common.Transform) (common.Transform, error) {
	parent, err := s.parentGlobal(idx)
	if err != nil {
		return common.IdentityTransform(), err
	}
	return parent.AffineInverse().Mul(global), nil
}

func (s *skeleton) LocalToGlobalPose(idx int, local common.Transform) (common.Transform, error) {
	parent, err := s.parentGlobal(idx)
	if err != nil {
		return common.IdentityTransform(), err
	}
	return parent.Mul(local), nil
}

func (s *skeleton) EnsurePose() {
	s.EnsureTopology()
	if !s.poseDirty {
		return
	}
	s.recompute()
}

func (s *skeleton) ForceUpdateBoneTransforms() {
	s.EnsureTopology()
	s.recompute()
}

func (s *skeleton) ForceUpdateBoneChildrenTransforms(idx int) error {
	s.EnsureTopology()
	if err := s.checkIndex(idx); err != nil {
		return err
	}

	// descendants sit after idx once sorted
	branch := make([]bool, len(s.bones))
	for i := idx; i < len(s.bones); i++ {
		p := s.bones[i].parent
		if i != idx && (p < idx || !branch[p]) {
			continue
		}
		branch[i] = true
		s.updateBone(i)
	}

	s.poseDirty = false
	for i := range s.bones {
		if s.bones[i].dirty {
			s.poseDirty = true
			break
		}
	}
	s.stats.BranchRecomputes++
	return nil
}

func (s *skeleton) Update() {
	s.EnsurePose()
	if s.consumer == nil {
		return
	}
	if !s.attached {
		s.warnOnce("update-detached", "update on detached skeleton, skin consumer not notified")
		return
	}

	s.finalScratch = s.finalScratch[:0]
	for i := range s.bones {
		s.finalScratch = append(s.finalScratch, s.bones[i].final)
	}
	s.consumer.UpdateSkin(s.world, s.finalScratch)
}

// recompute propagates local poses down the sorted hierarchy. It relies on parent < index.
func (s *skeleton) recompute() {
	for i := range s.bones {
		s.updateBone(i)
	}
	s.poseDirty = false
	s.stats.PoseRecomputes++
}

// updateBone recomputes one bone from its parent's current global pose.
func (s *skeleton) updateBone(i int) {
	b := &s.bones[i]
	local := effectiveLocal(b)
	if b.parent >= 0 {
		b.global = s.bones[b.parent].global.Mul(local)
	} else {
		b.global = local
	}
	if o := b.globalOverride; o.Amount > 0 {
		b.global = b.global.InterpolateWith(o.Transform, o.Amount)
	}
	b.final = b.global.Mul(b.restInverse)
	b.dirty = false
}

// parentGlobal returns the skeleton-space pose of a bone's parent, identity for roots.
func (s *skeleton) parentGlobal(idx int) (common.Transform, error) {
	s.EnsurePose()
	if err := s.checkIndex(idx); err != nil {
		return common.IdentityTransform(), err
	}
	if p := s.bones[idx].parent; p >= 0 {
		return s.bones[p].global, nil
	}
	return common.IdentityTransform(), nil
}

func (s *skeleton) readyForQuery() error {
	if s.attached {
		return nil
	}
	s.warnOnce("not-ready", "pose queried before the skeleton was attached to a world transform")
	return errors.Wrapf(ErrNotReady, "skeleton %q", s.name)
}

// effectiveLocal applies the custom pose to a bone's animated pose and blends in its override.
// Disabled bones hold their rest.
func effectiveLocal(b *bone) common.Transform {
	if !b.enabled {
		return b.restOrIdentity()
	}
	pose := b.pose
	if b.customPoseEnabled {
		pose = pose.Mul(b.customPose)
	}
	return pose.InterpolateWith(b.override.Transform, b.override.Amount)
}
