package modification

import (
	"github.com/Carmen-Shannon/oxy-rig/common"
	"github.com/Carmen-Shannon/oxy-rig/engine/nodecache"
	"github.com/Carmen-Shannon/oxy-rig/engine/skeleton"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
)

// JiggleParams are the spring parameters of a jiggle joint.
type JiggleParams struct {
	Stiffness  float32
	Mass       float32
	Damping    float32
	UseGravity bool
	Gravity    mgl32.Vec3
}

// DefaultJiggleParams returns the stack-wide defaults used by joints that do not override them.
func DefaultJiggleParams() JiggleParams {
	return JiggleParams{
		Stiffness: 3,
		Mass:      0.75,
		Damping:   0.75,
		Gravity:   mgl32.Vec3{0, -6, 0},
	}
}

func (p JiggleParams) validate() error {
	if p.Stiffness < 0 {
		return errors.Wrapf(skeleton.ErrConfiguration, "jiggle stiffness %v is negative", p.Stiffness)
	}
	if p.Mass <= 0 {
		return errors.Wrapf(skeleton.ErrConfiguration, "jiggle mass %v must be positive", p.Mass)
	}
	if p.Damping < 0 || p.Damping > 1 {
		return errors.Wrapf(skeleton.ErrConfiguration, "jiggle damping %v outside [0, 1]", p.Damping)
	}
	return nil
}

// JiggleJoint configures one jiggle joint.
type JiggleJoint struct {
	// Bone is the name of the joint's bone.
	Bone string
	// OverrideDefaults makes the joint use Params instead of the modifier defaults.
	OverrideDefaults bool
	// Params are the joint's own spring parameters.
	Params JiggleParams
}

type jiggleJointState struct {
	JiggleJoint
	ref BoneRef

	initialized     bool
	dynamicPosition mgl32.Vec3
	velocity        mgl32.Vec3
	lastPosition    mgl32.Vec3
}

// jiggle implements the Jiggle interface.
type jiggle struct {
	modifierBase

	target   *nodecache.Ref
	forward  mgl32.Vec3
	defaults JiggleParams
	joints   []jiggleJointState
}

// Jiggle is a per-joint damped spring. Each joint tracks a dynamic point pulled towards the target and
// carried along by the bone's own motion, and the bone's forward axis is pointed at that point.
// Joint state persists across ticks.
type Jiggle interface {
	Modifier

	// TargetPath returns the path of the node the springs are pulled towards.
	TargetPath() nodecache.NodePath

	// SetTargetPath changes the spring target.
	SetTargetPath(path nodecache.NodePath)

	// Defaults returns the stack-wide spring parameters.
	Defaults() JiggleParams

	// SetDefaults replaces the stack-wide spring parameters.
	//
	// Returns:
	//   - error: ErrConfiguration if a parameter is out of range; the previous defaults are kept
	SetDefaults(p JiggleParams) error

	// Joints returns a copy of the joint list.
	Joints() []JiggleJoint

	// SetJoints replaces the joint list and resets the spring state.
	//
	// Returns:
	//   - error: ErrConfiguration if a joint has no bone or invalid overriding parameters
	SetJoints(joints []JiggleJoint) error

	// JointState returns the dynamic position and velocity of a joint in skeleton space.
	JointState(i int) (mgl32.Vec3, mgl32.Vec3, error)

	// ResetState re-initializes every joint's spring on the next tick.
	ResetState()

	// SetForwardAxis sets the bone-local axis pointed at the dynamic position.
	//
	// Returns:
	//   - error: ErrConfiguration for a zero-length axis; the previous axis is kept
	SetForwardAxis(axis mgl32.Vec3) error
}

var _ Jiggle = &jiggle{}

// NewJiggle creates a Jiggle modifier with the default spring parameters and a +Y forward axis.
//
// Parameters:
//   - target: the path of the node the springs are pulled towards
//   - options: functional options for modifier configuration
//
// Returns:
//   - Jiggle: the modifier
func NewJiggle(target nodecache.NodePath, options ...JiggleBuilderOption) Jiggle {
	m := &jiggle{
		modifierBase: newModifierBase("jiggle"),
		target:       nodecache.NewRef(target),
		forward:      mgl32.Vec3{0, 1, 0},
		defaults:     DefaultJiggleParams(),
	}

	for _, opt := range options {
		opt(m)
	}

	return m
}

func (m *jiggle) Setup(stack Stack) error {
	m.ResetState()
	if err := m.bind(stack); err != nil || stack == nil {
		return err
	}
	if err := m.resolveRef(m.target); err != nil {
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

func (m *jiggle) Execute(delta float32) error {
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
		if err := m.stepJoint(sk, &m.joints[i], target.Origin, delta); err != nil {
			return m.stale(err)
		}
	}
	m.state = StateExecuting
	return nil
}

// stepJoint advances one spring and points its bone at the dynamic position.
func (m *jiggle) stepJoint(sk skeleton.Skeleton, j *jiggleJointState, target mgl32.Vec3, delta float32) error {
	idx, err := j.ref.Resolve(sk)
	if err != nil {
		return err
	}
	g, err := sk.BoneGlobalPose(idx)
	if err != nil {
		return err
	}
	bonePos := g.Origin
	forward := common.SafeNormalize(g.XformDirection(m.forward), m.forward)

	if !j.initialized {
		j.dynamicPosition = bonePos.Add(forward)
		j.velocity = mgl32.Vec3{}
		j.lastPosition = bonePos
		j.initialized = true
	}

	p := m.defaults
	if j.OverrideDefaults {
		p = j.Params
	}

	force := target.Sub(j.dynamicPosition).Mul(p.Stiffness * delta)
	if p.UseGravity {
		force = force.Add(p.Gravity.Mul(delta))
	}
	acceleration := force.Mul(1 / p.Mass)
	j.velocity = j.velocity.Add(acceleration.Mul(1 - p.Damping))
	j.dynamicPosition = j.dynamicPosition.Add(j.velocity).Add(force)
	j.dynamicPosition = j.dynamicPosition.Add(bonePos.Sub(j.lastPosition))
	j.lastPosition = bonePos

	to := j.dynamicPosition.Sub(bonePos)
	if to.Len() < common.Epsilon {
		return nil
	}
	base, err := sk.BoneEffectiveLocalPose(idx)
	if err != nil {
		return err
	}
	local, err := rotateGlobal(sk, idx, base, mgl32.QuatBetweenVectors(forward, to.Normalize()))
	if err != nil {
		return err
	}
	return m.writeOverride(sk, idx, local)
}

func (m *jiggle) TargetPath() nodecache.NodePath {
	return m.target.Path()
}

func (m *jiggle) SetTargetPath(path nodecache.NodePath) {
	m.target.SetPath(path)
}

func (m *jiggle) Defaults() JiggleParams {
	return m.defaults
}

func (m *jiggle) SetDefaults(p JiggleParams) error {
	if err := p.validate(); err != nil {
		return err
	}
	m.defaults = p
	return nil
}

func (m *jiggle) Joints() []JiggleJoint {
	out := make([]JiggleJoint, len(m.joints))
	for i := range m.joints {
		out[i] = m.joints[i].JiggleJoint
	}
	return out
}

func (m *jiggle) SetJoints(joints []JiggleJoint) error {
	states, err := newJiggleJointStates(joints)
	if err != nil {
		return err
	}
	m.joints = states
	return nil
}

func newJiggleJointStates(joints []JiggleJoint) ([]jiggleJointState, error) {
	states := make([]jiggleJointState, len(joints))
	for i, j := range joints {
		if j.Bone == "" {
			return nil, errors.Wrapf(skeleton.ErrConfiguration, "jiggle joint %d has no bone", i)
		}
		if j.OverrideDefaults {
			if err := j.Params.validate(); err != nil {
				return nil, errors.WithMessagef(err, "jiggle joint %d", i)
			}
		}
		states[i] = jiggleJointState{JiggleJoint: j, ref: NewBoneRef(j.Bone)}
	}
	return states, nil
}

func (m *jiggle) JointState(i int) (mgl32.Vec3, mgl32.Vec3, error) {
	if i < 0 || i >= len(m.joints) {
		return mgl32.Vec3{}, mgl32.Vec3{}, errors.Wrapf(skeleton.ErrIndexOutOfRange, "jiggle joint %d, count %d", i, len(m.joints))
	}
	return m.joints[i].dynamicPosition, m.joints[i].velocity, nil
}

func (m *jiggle) ResetState() {
	for i := range m.joints {
		m.joints[i].initialized = false
	}
}

func (m *jiggle) SetForwardAxis(axis mgl32.Vec3) error {
	forward, err := validAxis(axis, "jiggle forward axis")
	if err != nil {
		return err
	}
	m.forward = forward
	return nil
}
