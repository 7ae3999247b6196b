package modification

import (
	"github.com/Carmen-Shannon/oxy-rig/common"
	"github.com/Carmen-Shannon/oxy-rig/engine/nodecache"
	"github.com/Carmen-Shannon/oxy-rig/engine/skeleton"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
)

// RotateMode selects how a CCDIK joint measures the rotation it applies.
type RotateMode int

const (
	// RotateFromTip rotates the joint about its axis so the joint-to-tip vector swings towards the target.
	RotateFromTip RotateMode = iota
	// RotateFromJoint rotates the joint about its axis so its forward axis swings towards the target.
	RotateFromJoint
	// RotateFree applies the minimal rotation taking the joint-to-tip vector onto the joint-to-target vector.
	RotateFree
)

func (m RotateMode) String() string {
	switch m {
	case RotateFromTip:
		return "from-tip"
	case RotateFromJoint:
		return "from-joint"
	case RotateFree:
		return "free"
	}
	return "unknown"
}

// CCDIKJoint configures one joint of a CCDIK chain.
type CCDIKJoint struct {
	// Bone is the name of the joint's bone.
	Bone string
	// Mode selects how the rotation is measured.
	Mode RotateMode
	// Axis is the bone-local rotation axis. Required for RotateFromTip, RotateFromJoint and constrained joints.
	Axis mgl32.Vec3
	// Constraint limits the joint's twist about Axis relative to its rest orientation.
	Constraint Constraint
	// ConstraintInLocalSpace measures the twist of the local rotation against the local rest. Otherwise the
	// skeleton-space rotation is measured against the global rest, so parent motion counts towards the limit.
	ConstraintInLocalSpace bool
}

// validate checks a joint's configuration and returns its normalized axis.
func (j CCDIKJoint) validate(i int) (mgl32.Vec3, error) {
	if j.Bone == "" {
		return j.Axis, errors.Wrapf(skeleton.ErrConfiguration, "ccdik joint %d has no bone", i)
	}
	if j.Mode == RotateFree && !j.Constraint.Enabled {
		return j.Axis, nil
	}
	axis, err := validAxis(j.Axis, "ccdik joint axis")
	if err != nil {
		return j.Axis, errors.WithMessagef(err, "ccdik joint %d", i)
	}
	return axis, nil
}

type ccdikJointState struct {
	CCDIKJoint
	ref  BoneRef
	axis mgl32.Vec3 // normalized Axis
}

// ccdik implements the CCDIK interface.
type ccdik struct {
	modifierBase

	target  *nodecache.Ref
	tip     *nodecache.Ref
	tipBone BoneRef
	forward mgl32.Vec3
	joints  []ccdikJointState
}

// CCDIK is a cyclic coordinate descent IK solver. Every Execute runs one relaxation pass from the
// first joint to the last, each joint rotating so the tip moves towards the target.
// The tip is either a node path or a bone of the same skeleton.
type CCDIK interface {
	Modifier

	// TargetPath returns the path of the target node.
	TargetPath() nodecache.NodePath

	// SetTargetPath changes the target node.
	SetTargetPath(path nodecache.NodePath)

	// TipPath returns the path of the tip node, "" when the tip is a bone.
	TipPath() nodecache.NodePath

	// SetTipPath makes the chain tip a node.
	SetTipPath(path nodecache.NodePath)

	// SetTipBone makes the chain tip the origin of a bone.
	SetTipBone(name string)

	// Joints returns a copy of the joint chain.
	Joints() []CCDIKJoint

	// SetJoints replaces the joint chain. The chain is left untouched on error.
	//
	// Parameters:
	//   - joints: the joints ordered from root to tip
	//
	// Returns:
	//   - error: ErrConfiguration if a joint has no bone name, or a zero-length axis where one is required
	SetJoints(joints []CCDIKJoint) error

	// SetJoint replaces one joint.
	//
	// Returns:
	//   - error: ErrIndexOutOfRange for an invalid i, ErrConfiguration as for SetJoints
	SetJoint(i int, joint CCDIKJoint) error

	// SetForwardAxis sets the bone-local forward axis used by RotateFromJoint joints.
	//
	// Returns:
	//   - error: ErrConfiguration for a zero-length axis; the previous axis is kept
	SetForwardAxis(axis mgl32.Vec3) error
}

var _ CCDIK = &ccdik{}

// NewCCDIK creates a CCDIK modifier with no joints and a +Y forward axis.
//
// Parameters:
//   - target: the path of the target node
//   - options: functional options for modifier configuration
//
// Returns:
//   - CCDIK: the modifier
func NewCCDIK(target nodecache.NodePath, options ...CCDIKBuilderOption) CCDIK {
	m := &ccdik{
		modifierBase: newModifierBase("ccdik"),
		target:       nodecache.NewRef(target),
		tip:          nodecache.NewRef(""),
		forward:      mgl32.Vec3{0, 1, 0},
	}

	for _, opt := range options {
		opt(m)
	}

	return m
}

func (m *ccdik) Setup(stack Stack) error {
	if err := m.bind(stack); err != nil || stack == nil {
		return err
	}
	if err := m.resolveRef(m.target); err != nil {
		return m.stale(err)
	}
	if err := m.resolveRef(m.tip); err != nil {
		return m.stale(err)
	}
	if sk := stack.Skeleton(); sk != nil {
		for i := range m.joints {
			if _, err := m.joints[i].ref.Resolve(sk); err != nil {
				return m.stale(err)
			}
		}
	}
	return nil
}

func (m *ccdik) Execute(delta float32) error {
	sk, err := m.begin()
	if err != nil {
		return err
	}
	if len(m.joints) == 0 {
		return nil
	}
	target, err := m.nodeInSkeleton(sk, m.target)
	if err != nil {
		return err
	}

	for i := range m.joints {
		if err := m.solveJoint(sk, &m.joints[i], target.Origin); err != nil {
			return m.stale(err)
		}
	}
	m.state = StateExecuting
	return nil
}

// solveJoint rotates one joint towards the target and writes its override.
func (m *ccdik) solveJoint(sk skeleton.Skeleton, j *ccdikJointState, target mgl32.Vec3) error {
	idx, err := j.ref.Resolve(sk)
	if err != nil {
		return err
	}
	global, err := sk.BoneGlobalPose(idx)
	if err != nil {
		return err
	}
	toLocal := global.AffineInverse()

	var reference mgl32.Vec3
	if j.Mode == RotateFromJoint {
		reference = m.forward
	} else {
		tip, err := m.tipPosition(sk)
		if err != nil {
			return err
		}
		reference = toLocal.Xform(tip)
	}
	goal := toLocal.Xform(target)

	var rot mgl32.Quat
	if j.Mode == RotateFree {
		if reference.Len() < common.Epsilon || goal.Len() < common.Epsilon {
			return nil
		}
		rot = mgl32.QuatBetweenVectors(reference.Normalize(), goal.Normalize())
	} else {
		from := common.ProjectOnPlane(reference, j.axis)
		to := common.ProjectOnPlane(goal, j.axis)
		if from.Len() < common.Epsilon || to.Len() < common.Epsilon {
			return nil
		}
		rot = mgl32.QuatRotate(common.SignedAngle(from, to, j.axis), j.axis)
	}

	local, err := sk.BoneEffectiveLocalPose(idx)
	if err != nil {
		return err
	}
	newRot := local.Rotation().Mul(rot).Normalize()
	if j.Constraint.Enabled {
		if newRot, err = constrainJoint(sk, idx, j, newRot); err != nil {
			return err
		}
	}

	return m.writeOverride(sk, idx, local.WithRotation(newRot))
}

// constrainJoint clamps a joint's new local rotation in the space the joint's constraint is measured in.
func constrainJoint(sk skeleton.Skeleton, idx int, j *ccdikJointState, rot mgl32.Quat) (mgl32.Quat, error) {
	if j.ConstraintInLocalSpace {
		rest, err := sk.BoneRest(idx)
		if err != nil {
			return rot, err
		}
		return constrainTwist(rest.Rotation(), rot, j.axis, j.Constraint), nil
	}

	parent, err := sk.LocalToGlobalPose(idx, common.IdentityTransform())
	if err != nil {
		return rot, err
	}
	globalRest, err := sk.GlobalRest(idx)
	if err != nil {
		return rot, err
	}
	parentRot := parent.Rotation()
	global := constrainTwist(globalRest.Rotation(), parentRot.Mul(rot), j.axis, j.Constraint)
	return parentRot.Inverse().Mul(global).Normalize(), nil
}

// constrainTwist clamps the twist of rot about axis, measured relative to restRot.
func constrainTwist(restRot, rot mgl32.Quat, axis mgl32.Vec3, c Constraint) mgl32.Quat {
	rel := restRot.Inverse().Mul(rot)
	swing, _ := common.SwingTwist(rel, axis)
	angle := c.Apply(common.TwistAngle(rel, axis))
	return restRot.Mul(swing).Mul(mgl32.QuatRotate(angle, axis)).Normalize()
}

// tipPosition returns the skeleton-space position of the chain tip.
func (m *ccdik) tipPosition(sk skeleton.Skeleton) (mgl32.Vec3, error) {
	if !m.tip.Empty() {
		t, err := m.nodeInSkeleton(sk, m.tip)
		return t.Origin, err
	}
	if m.tipBone.Name() == "" {
		return mgl32.Vec3{}, errors.Wrap(skeleton.ErrInvalidReference, "ccdik modifier has no tip")
	}
	idx, err := m.tipBone.Resolve(sk)
	if err != nil {
		return mgl32.Vec3{}, err
	}
	g, err := sk.BoneGlobalPose(idx)
	return g.Origin, err
}

func (m *ccdik) TargetPath() nodecache.NodePath {
	return m.target.Path()
}

func (m *ccdik) SetTargetPath(path nodecache.NodePath) {
	m.target.SetPath(path)
}

func (m *ccdik) TipPath() nodecache.NodePath {
	return m.tip.Path()
}

func (m *ccdik) SetTipPath(path nodecache.NodePath) {
	m.tip.SetPath(path)
	m.tipBone.SetName("")
}

func (m *ccdik) SetTipBone(name string) {
	m.tip.SetPath("")
	m.tipBone.SetName(name)
}

func (m *ccdik) Joints() []CCDIKJoint {
	out := make([]CCDIKJoint, len(m.joints))
	for i := range m.joints {
		out[i] = m.joints[i].CCDIKJoint
	}
	return out
}

func (m *ccdik) SetJoints(joints []CCDIKJoint) error {
	states := make([]ccdikJointState, len(joints))
	for i, j := range joints {
		axis, err := j.validate(i)
		if err != nil {
			return err
		}
		states[i] = ccdikJointState{CCDIKJoint: j, ref: NewBoneRef(j.Bone), axis: axis}
	}
	m.joints = states
	return nil
}

func (m *ccdik) SetJoint(i int, joint CCDIKJoint) error {
	if i < 0 || i >= len(m.joints) {
		return errors.Wrapf(skeleton.ErrIndexOutOfRange, "ccdik joint %d, count %d", i, len(m.joints))
	}
	axis, err := joint.validate(i)
	if err != nil {
		return err
	}
	m.joints[i] = ccdikJointState{CCDIKJoint: joint, ref: NewBoneRef(joint.Bone), axis: axis}
	return nil
}

func (m *ccdik) SetForwardAxis(axis mgl32.Vec3) error {
	forward, err := validAxis(axis, "ccdik forward axis")
	if err != nil {
		return err
	}
	m.forward = forward
	return nil
}
