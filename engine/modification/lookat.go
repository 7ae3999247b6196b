package modification

import (
	"github.com/Carmen-Shannon/oxy-rig/common"
	"github.com/Carmen-Shannon/oxy-rig/engine/nodecache"
	"github.com/go-gl/mathgl/mgl32"
)

// lookAt implements the LookAt interface.
type lookAt struct {
	modifierBase

	target *nodecache.Ref
	bone   BoneRef

	forward            mgl32.Vec3
	constraint         Constraint
	constraintLocal    bool
	additionalRotation mgl32.Quat

	lockX, lockY, lockZ bool
}

// LookAt rotates a single bone so that its forward axis points at a target node.
// The rotation is computed in the bone's parent space from the animated pose, so the bone's
// scale and translation are preserved.
type LookAt interface {
	Modifier

	// TargetPath returns the path of the node to face.
	TargetPath() nodecache.NodePath

	// SetTargetPath changes the node to face. The reference re-resolves on the next tick.
	SetTargetPath(path nodecache.NodePath)

	// BoneName returns the name of the rotated bone.
	BoneName() string

	// SetBoneName changes the rotated bone.
	SetBoneName(name string)

	// ForwardAxis returns the bone-local axis that faces the target.
	ForwardAxis() mgl32.Vec3

	// SetForwardAxis changes the bone-local axis that faces the target.
	//
	// Parameters:
	//   - axis: the forward axis, normalized internally
	//
	// Returns:
	//   - error: ErrConfiguration for a zero-length axis; the previous axis is kept
	SetForwardAxis(axis mgl32.Vec3) error

	// Constraint returns the limit applied to the look rotation angle.
	Constraint() Constraint

	// SetConstraint changes the limit applied to the look rotation angle.
	SetConstraint(c Constraint)

	// ConstraintInLocalSpace reports whether the constraint limits the bone's local rotation away from its
	// rest orientation rather than the look rotation applied this tick.
	ConstraintInLocalSpace() bool

	// SetConstraintInLocalSpace selects the space the constraint is measured in.
	SetConstraintInLocalSpace(local bool)

	// SetLockedAxes discards the look rotation's twist about the given parent-space axes.
	SetLockedAxes(x, y, z bool)

	// AdditionalRotation returns the rotation applied in bone-local space after looking at the target.
	AdditionalRotation() mgl32.Quat

	// SetAdditionalRotation changes the rotation applied in bone-local space after looking at the target.
	SetAdditionalRotation(q mgl32.Quat)

	// SetPropagateInstantly makes Execute recompute the bone and its descendants right after writing its
	// override. Without it the recompute happens on the next pose query.
	SetPropagateInstantly(enabled bool)

	// PropagateInstantly reports whether Execute recomputes the bone's branch immediately.
	PropagateInstantly() bool
}

var _ LookAt = &lookAt{}

// NewLookAt creates a LookAt modifier. The forward axis defaults to +Y.
//
// Parameters:
//   - target: the path of the node to face
//   - bone: the name of the bone to rotate
//   - options: functional options for modifier configuration
//
// Returns:
//   - LookAt: the modifier
func NewLookAt(target nodecache.NodePath, bone string, options ...LookAtBuilderOption) LookAt {
	m := &lookAt{
		modifierBase:       newModifierBase("lookat"),
		target:             nodecache.NewRef(target),
		bone:               NewBoneRef(bone),
		forward:            mgl32.Vec3{0, 1, 0},
		additionalRotation: mgl32.QuatIdent(),
	}

	for _, opt := range options {
		opt(m)
	}

	return m
}

func (m *lookAt) Setup(stack Stack) error {
	if err := m.bind(stack); err != nil || stack == nil {
		return err
	}
	if err := m.resolveRef(m.target); err != nil {
		return m.stale(err)
	}
	if sk := stack.Skeleton(); sk != nil {
		if _, err := m.bone.Resolve(sk); err != nil {
			return m.stale(err)
		}
	}
	return nil
}

func (m *lookAt) Execute(delta float32) error {
	sk, err := m.begin()
	if err != nil {
		return err
	}
	idx, err := m.bone.Resolve(sk)
	if err != nil {
		return m.stale(err)
	}
	target, err := m.nodeInSkeleton(sk, m.target)
	if err != nil {
		return err
	}

	pose, err := sk.BoneLocalPose(idx)
	if err != nil {
		return err
	}
	// target position expressed in the space the bone's local pose lives in
	parentGlobal, err := sk.LocalToGlobalPose(idx, common.IdentityTransform())
	if err != nil {
		return err
	}
	goal := parentGlobal.AffineInverse().Xform(target.Origin)

	dir := goal.Sub(pose.Origin)
	current := pose.XformDirection(m.forward)
	if dir.Len() < common.Epsilon || current.Len() < common.Epsilon {
		m.state = StateExecuting
		return nil
	}

	look := mgl32.QuatBetweenVectors(current.Normalize(), dir.Normalize())
	if m.constraint.Enabled && !m.constraintLocal {
		look = limitAngle(look, m.constraint)
	}
	rot := m.lockAxes(look).Mul(pose.Rotation())
	if m.constraint.Enabled && m.constraintLocal {
		rest, err := sk.BoneRest(idx)
		if err != nil {
			return err
		}
		restRot := rest.Rotation()
		rot = restRot.Mul(limitAngle(restRot.Inverse().Mul(rot), m.constraint))
	}
	rot = rot.Mul(m.additionalRotation).Normalize()

	if err := m.writeOverride(sk, idx, pose.WithRotation(rot)); err != nil {
		return err
	}
	m.state = StateExecuting
	return nil
}

// limitAngle clamps the rotation angle of q with c, keeping its axis.
func limitAngle(q mgl32.Quat, c Constraint) mgl32.Quat {
	angle := common.QuatAngle(q)
	if angle <= common.Epsilon {
		return q
	}
	axis := q.V.Normalize()
	if q.W < 0 {
		axis = axis.Mul(-1)
	}
	return mgl32.QuatRotate(c.Apply(angle), axis)
}

// lockAxes discards the twist of a parent-space look rotation about every locked axis.
func (m *lookAt) lockAxes(q mgl32.Quat) mgl32.Quat {
	locks := [3]bool{m.lockX, m.lockY, m.lockZ}
	for i, locked := range locks {
		if !locked {
			continue
		}
		var axis mgl32.Vec3
		axis[i] = 1
		swing, _ := common.SwingTwist(q, axis)
		q = swing
	}
	return q.Normalize()
}

func (m *lookAt) TargetPath() nodecache.NodePath {
	return m.target.Path()
}

func (m *lookAt) SetTargetPath(path nodecache.NodePath) {
	m.target.SetPath(path)
}

func (m *lookAt) BoneName() string {
	return m.bone.Name()
}

func (m *lookAt) SetBoneName(name string) {
	m.bone.SetName(name)
}

func (m *lookAt) ForwardAxis() mgl32.Vec3 {
	return m.forward
}

func (m *lookAt) SetForwardAxis(axis mgl32.Vec3) error {
	forward, err := validAxis(axis, "lookat forward axis")
	if err != nil {
		return err
	}
	m.forward = forward
	return nil
}

func (m *lookAt) Constraint() Constraint {
	return m.constraint
}

func (m *lookAt) SetConstraint(c Constraint) {
	m.constraint = c
}

func (m *lookAt) ConstraintInLocalSpace() bool {
	return m.constraintLocal
}

func (m *lookAt) SetConstraintInLocalSpace(local bool) {
	m.constraintLocal = local
}

func (m *lookAt) SetLockedAxes(x, y, z bool) {
	m.lockX, m.lockY, m.lockZ = x, y, z
}

func (m *lookAt) AdditionalRotation() mgl32.Quat {
	return m.additionalRotation
}

func (m *lookAt) SetAdditionalRotation(q mgl32.Quat) {
	m.additionalRotation = q.Normalize()
}

func (m *lookAt) SetPropagateInstantly(enabled bool) {
	m.propagate = enabled
}

func (m *lookAt) PropagateInstantly() bool {
	return m.propagate
}
