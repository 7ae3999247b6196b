package skeleton

import (
	"github.com/Carmen-Shannon/oxy-rig/common"
	"github.com/pkg/errors"
)

func (s *skeleton) SetBoneLocalPoseOverride(idx int, t common.Transform, amount float32, persistent bool) error {
	if err := s.checkIndex(idx); err != nil {
		return err
	}
	if amount < 0 || amount > 1 {
		return errors.Wrapf(ErrConfiguration, "override amount %v outside [0, 1]", amount)
	}
	s.bones[idx].override = LocalPoseOverride{Transform: t, Amount: amount, Persistent: persistent}
	s.markBoneDirty(idx)
	return nil
}

func (s *skeleton) BoneLocalPoseOverride(idx int) (LocalPoseOverride, error) {
	if err := s.checkIndex(idx); err != nil {
		return LocalPoseOverride{}, err
	}
	return s.bones[idx].override, nil
}

func (s *skeleton) SetBoneGlobalPoseOverride(idx int, t common.Transform, amount float32, persistent bool) error {
	if err := s.checkIndex(idx); err != nil {
		return err
	}
	if amount < 0 || amount > 1 {
		return errors.Wrapf(ErrConfiguration, "global override amount %v outside [0, 1]", amount)
	}
	s.bones[idx].globalOverride = GlobalPoseOverride{Transform: t, Amount: amount, Persistent: persistent}
	s.markBoneDirty(idx)
	return nil
}

func (s *skeleton) BoneGlobalPoseOverride(idx int) (GlobalPoseOverride, error) {
	if err := s.checkIndex(idx); err != nil {
		return GlobalPoseOverride{}, err
	}
	return s.bones[idx].globalOverride, nil
}

func (s *skeleton) ClearGlobalPoseOverrides() {
	for i := range s.bones {
		if s.bones[i].globalOverride.Amount != 0 {
			s.markBoneDirty(i)
		}
		s.bones[i].globalOverride = GlobalPoseOverride{Transform: common.IdentityTransform()}
	}
}

func (s *skeleton) ClearNonPersistentOverrides() {
	for i := range s.bones {
		b := &s.bones[i]
		if !b.override.Persistent && b.override.Amount != 0 {
			b.override.Amount = 0
			s.markBoneDirty(i)
		}
		if !b.globalOverride.Persistent && b.globalOverride.Amount != 0 {
			b.globalOverride.Amount = 0
			s.markBoneDirty(i)
		}
	}
}

func (s *skeleton) ClearAllOverrides() {
	for i := range s.bones {
		s.bones[i].override = LocalPoseOverride{Transform: common.IdentityTransform()}
		s.bones[i].globalOverride = GlobalPoseOverride{Transform: common.IdentityTransform()}
	}
	s.markAllDirty()
}
