package modification

import (
	"github.com/Carmen-Shannon/oxy-rig/common"
	"github.com/Carmen-Shannon/oxy-rig/engine/nodecache"
	"github.com/Carmen-Shannon/oxy-rig/engine/skeleton"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
)

const (
	// DefaultChainTolerance is the tip-to-target distance at which FABRIK stops iterating.
	DefaultChainTolerance float32 = 0.01
	// DefaultMaxIterations bounds the FABRIK passes per tick.
	DefaultMaxIterations = 10
)

// FABRIKJoint configures one joint of a FABRIK chain.
type FABRIKJoint struct {
	// Bone is the name of the joint's bone.
	Bone string
	// Length is the distance to the next joint (or the tip for the last joint). Zero derives it automatically.
	Length float32
	// TipPath optionally names a node marking the end of this joint's segment. Only used on the last joint.
	TipPath nodecache.NodePath
	// Magnet is a skeleton-space offset added to the joint position before solving, biasing the bend direction.
	Magnet mgl32.Vec3
	// UseTargetBasis copies the target's orientation onto the last joint after solving.
	UseTargetBasis bool
}

type fabrikJointState struct {
	FABRIKJoint
	ref    BoneRef
	tip    *nodecache.Ref
	length float32 // effective length, fixed or derived
}

// fabrik implements the FABRIK interface.
type fabrik struct {
	modifierBase

	target        *nodecache.Ref
	forward       mgl32.Vec3
	tolerance     float32
	maxIterations int
	joints        []fabrikJointState

	lengthsVersion uint64
	lengthsValid   bool

	positions []mgl32.Vec3
	lastError float32
	lastIters int
}

// FABRIK is a forward-and-backward-reaching IK solver over an ordered chain of joints.
// Unreachable targets straighten the chain towards the target; otherwise the solver iterates until
// the tip is within tolerance or the iteration budget is spent, then re-orients each joint.
type FABRIK interface {
	Modifier

	// TargetPath returns the path of the target node.
	TargetPath() nodecache.NodePath

	// SetTargetPath changes the target node.
	SetTargetPath(path nodecache.NodePath)

	// Joints returns a copy of the joint chain with the configured lengths.
	Joints() []FABRIKJoint

	// SetJoints replaces the joint chain.
	//
	// Parameters:
	//   - joints: the joints ordered from root to tip
	//
	// Returns:
	//   - error: ErrConfiguration if a joint has no bone name or a negative length
	SetJoints(joints []FABRIKJoint) error

	// JointLength returns the effective length of a joint after automatic derivation.
	JointLength(i int) (float32, error)

	// ChainTolerance returns the convergence distance.
	ChainTolerance() float32

	// SetChainTolerance sets the convergence distance.
	//
	// Returns:
	//   - error: ErrConfiguration if tolerance is not positive
	SetChainTolerance(tolerance float32) error

	// MaxIterations returns the iteration budget per tick.
	MaxIterations() int

	// SetMaxIterations sets the iteration budget per tick.
	//
	// Returns:
	//   - error: ErrConfiguration if n is less than 1
	SetMaxIterations(n int) error

	// SetForwardAxis sets the bone-local axis along which a joint's segment extends when it has no successor.
	//
	// Returns:
	//   - error: ErrConfiguration for a zero-length axis; the previous axis is kept
	SetForwardAxis(axis mgl32.Vec3) error

	// LastSolve returns the remaining tip-to-target distance and the iterations used by the last Execute.
	LastSolve() (float32, int)
}

var _ FABRIK = &fabrik{}

// NewFABRIK creates a FABRIK modifier with the default tolerance and iteration budget.
//
// Parameters:
//   - target: the path of the target node
//   - options: functional options for modifier configuration
//
// Returns:
//   - FABRIK: the modifier
func NewFABRIK(target nodecache.NodePath, options ...FABRIKBuilderOption) FABRIK {
	m := &fabrik{
		modifierBase:  newModifierBase("fabrik"),
		target:        nodecache.NewRef(target),
		forward:       mgl32.Vec3{0, 1, 0},
		tolerance:     DefaultChainTolerance,
		maxIterations: DefaultMaxIterations,
	}

	for _, opt := range options {
		opt(m)
	}

	return m
}

func (m *fabrik) Setup(stack Stack) error {
	m.lengthsValid = false
	if err := m.bind(stack); err != nil || stack == nil {
		return err
	}
	if err := m.resolveRef(m.target); err != nil {
		return m.stale(err)
	}
	for i := range m.joints {
		if err := m.resolveRef(m.joints[i].tip); err != nil {
			return m.stale(err)
		}
	}
	if sk := stack.Skeleton(); sk != nil {
		if err := m.deriveLengths(sk); err != nil {
			return err
		}
	}
	return nil
}

func (m *fabrik) Execute(delta float32) error {
	sk, err := m.begin()
	if err != nil {
		return err
	}
	n := len(m.joints)
	if n == 0 {
		return nil
	}
	target, err := m.nodeInSkeleton(sk, m.target)
	if err != nil {
		return err
	}
	if err := m.deriveLengths(sk); err != nil {
		return err
	}

	// positions[0..n-1] are joint origins, positions[n] is the chain tip
	m.positions = m.positions[:0]
	lastIdx := -1
	for i := range m.joints {
		idx, err := m.joints[i].ref.Resolve(sk)
		if err != nil {
			return m.stale(err)
		}
		lastIdx = idx
		g, err := sk.BoneGlobalPose(idx)
		if err != nil {
			return err
		}
		p := g.Origin
		if i > 0 {
			p = p.Add(m.joints[i].Magnet)
		}
		m.positions = append(m.positions, p)
	}
	tip, err := m.segmentEnd(sk, n-1)
	if err != nil {
		return err
	}
	m.positions = append(m.positions, tip)

	m.solve(target.Origin)

	for i := range m.joints {
		if err := m.orientJoint(sk, i, m.positions[i+1]); err != nil {
			return err
		}
	}

	if m.joints[n-1].UseTargetBasis {
		g, err := sk.BoneGlobalPose(lastIdx)
		if err != nil {
			return err
		}
		aligned := common.NewTransform(target.Rotation(), g.Scale(), g.Origin)
		local, err := sk.GlobalToLocalPose(lastIdx, aligned)
		if err != nil {
			return err
		}
		base, err := sk.BoneEffectiveLocalPose(lastIdx)
		if err != nil {
			return err
		}
		if err := m.writeOverride(sk, lastIdx, base.WithRotation(local.Rotation())); err != nil {
			return err
		}
	}

	m.state = StateExecuting
	return nil
}

// solve runs FABRIK on m.positions in place.
func (m *fabrik) solve(target mgl32.Vec3) {
	n := len(m.joints)
	root := m.positions[0]

	var total float32
	for i := range m.joints {
		total += m.joints[i].length
	}

	if target.Sub(root).Len() >= total {
		dir := common.SafeNormalize(target.Sub(root), m.positions[n].Sub(root))
		for i := 0; i < n; i++ {
			m.positions[i+1] = m.positions[i].Add(dir.Mul(m.joints[i].length))
		}
		m.lastIters = 0
		m.lastError = m.positions[n].Sub(target).Len()
		return
	}

	iters := 0
	for ; iters < m.maxIterations && m.positions[n].Sub(target).Len() > m.tolerance; iters++ {
		m.positions[n] = target
		for i := n - 1; i >= 0; i-- {
			dir := common.SafeNormalize(m.positions[i].Sub(m.positions[i+1]), mgl32.Vec3{0, -1, 0})
			m.positions[i] = m.positions[i+1].Add(dir.Mul(m.joints[i].length))
		}
		m.positions[0] = root
		for i := 0; i < n; i++ {
			dir := common.SafeNormalize(m.positions[i+1].Sub(m.positions[i]), mgl32.Vec3{0, 1, 0})
			m.positions[i+1] = m.positions[i].Add(dir.Mul(m.joints[i].length))
		}
	}
	m.lastIters = iters
	m.lastError = m.positions[n].Sub(target).Len()
}

// orientJoint rotates joint i so that the end of its segment lies on the direction to goal.
func (m *fabrik) orientJoint(sk skeleton.Skeleton, i int, goal mgl32.Vec3) error {
	idx, err := m.joints[i].ref.Resolve(sk)
	if err != nil {
		return err
	}
	g, err := sk.BoneGlobalPose(idx)
	if err != nil {
		return err
	}
	end, err := m.segmentEnd(sk, i)
	if err != nil {
		return err
	}
	from := end.Sub(g.Origin)
	to := goal.Sub(g.Origin)
	if from.Len() < common.Epsilon || to.Len() < common.Epsilon {
		return nil
	}

	base, err := sk.BoneEffectiveLocalPose(idx)
	if err != nil {
		return err
	}
	local, err := rotateGlobal(sk, idx, base, mgl32.QuatBetweenVectors(from.Normalize(), to.Normalize()))
	if err != nil {
		return err
	}
	return m.writeOverride(sk, idx, local)
}

// segmentEnd returns the current skeleton-space end point of joint i's segment: the next joint's origin,
// the tip node for the last joint, or the joint origin extended along its forward axis.
func (m *fabrik) segmentEnd(sk skeleton.Skeleton, i int) (mgl32.Vec3, error) {
	if i+1 < len(m.joints) {
		idx, err := m.joints[i+1].ref.Resolve(sk)
		if err != nil {
			return mgl32.Vec3{}, err
		}
		g, err := sk.BoneGlobalPose(idx)
		return g.Origin, err
	}

	j := &m.joints[i]
	if !j.tip.Empty() {
		t, err := m.nodeInSkeleton(sk, j.tip)
		return t.Origin, err
	}
	idx, err := j.ref.Resolve(sk)
	if err != nil {
		return mgl32.Vec3{}, err
	}
	g, err := sk.BoneGlobalPose(idx)
	if err != nil {
		return mgl32.Vec3{}, err
	}
	dir := common.SafeNormalize(g.XformDirection(m.forward), m.forward)
	return g.Origin.Add(dir.Mul(j.length)), nil
}

// deriveLengths fills automatic joint lengths. It is recomputed when the skeleton topology changes.
// A joint whose length cannot be derived keeps its previous length and the call reports ErrConfiguration.
func (m *fabrik) deriveLengths(sk skeleton.Skeleton) error {
	sk.EnsureTopology()
	if m.lengthsValid && m.lengthsVersion == sk.TopologyVersion() {
		return nil
	}

	var firstErr error
	for i := range m.joints {
		j := &m.joints[i]
		if j.Length > 0 {
			j.length = j.Length
			continue
		}
		l, err := m.autoLength(sk, j)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		j.length = l
	}
	if firstErr != nil {
		return firstErr
	}
	m.lengthsVersion = sk.TopologyVersion()
	m.lengthsValid = true
	return nil
}

// autoLength derives a joint length from its tip node, else from the mean rest distance to its child bones.
func (m *fabrik) autoLength(sk skeleton.Skeleton, j *fabrikJointState) (float32, error) {
	idx, err := j.ref.Resolve(sk)
	if err != nil {
		return 0, err
	}
	global, err := sk.BoneGlobalPose(idx)
	if err != nil {
		return 0, err
	}

	if !j.tip.Empty() {
		if !j.tip.Resolved() {
			if err := m.resolveRef(j.tip); err != nil {
				return 0, err
			}
		}
		t, err := m.nodeInSkeleton(sk, j.tip)
		if err != nil {
			return 0, err
		}
		return t.Origin.Sub(global.Origin).Len(), nil
	}

	children, err := sk.BoneChildren(idx)
	if err != nil {
		return 0, err
	}
	if len(children) == 0 {
		return 0, errors.Wrapf(skeleton.ErrConfiguration, "fabrik joint %q has no children and no tip to derive a length from", j.Bone)
	}
	restGlobal, err := sk.GlobalRest(idx)
	if err != nil {
		return 0, err
	}
	var sum float32
	for _, c := range children {
		cr, err := sk.GlobalRest(c)
		if err != nil {
			return 0, err
		}
		sum += cr.Origin.Sub(restGlobal.Origin).Len()
	}
	return sum / float32(len(children)), nil
}

func (m *fabrik) TargetPath() nodecache.NodePath {
	return m.target.Path()
}

func (m *fabrik) SetTargetPath(path nodecache.NodePath) {
	m.target.SetPath(path)
}

func (m *fabrik) Joints() []FABRIKJoint {
	out := make([]FABRIKJoint, len(m.joints))
	for i := range m.joints {
		out[i] = m.joints[i].FABRIKJoint
	}
	return out
}

func (m *fabrik) SetJoints(joints []FABRIKJoint) error {
	states, err := newFABRIKJointStates(joints)
	if err != nil {
		return err
	}
	m.joints = states
	m.lengthsValid = false
	return nil
}

func newFABRIKJointStates(joints []FABRIKJoint) ([]fabrikJointState, error) {
	states := make([]fabrikJointState, len(joints))
	for i, j := range joints {
		if j.Bone == "" {
			return nil, errors.Wrapf(skeleton.ErrConfiguration, "fabrik joint %d has no bone", i)
		}
		if j.Length < 0 {
			return nil, errors.Wrapf(skeleton.ErrConfiguration, "fabrik joint %d has negative length %v", i, j.Length)
		}
		states[i] = fabrikJointState{FABRIKJoint: j, ref: NewBoneRef(j.Bone), tip: nodecache.NewRef(j.TipPath), length: j.Length}
	}
	return states, nil
}

func (m *fabrik) JointLength(i int) (float32, error) {
	if i < 0 || i >= len(m.joints) {
		return 0, errors.Wrapf(skeleton.ErrIndexOutOfRange, "fabrik joint %d, count %d", i, len(m.joints))
	}
	return m.joints[i].length, nil
}

func (m *fabrik) ChainTolerance() float32 {
	return m.tolerance
}

func (m *fabrik) SetChainTolerance(tolerance float32) error {
	if tolerance <= 0 {
		return errors.Wrapf(skeleton.ErrConfiguration, "chain tolerance %v must be positive", tolerance)
	}
	m.tolerance = tolerance
	return nil
}

func (m *fabrik) MaxIterations() int {
	return m.maxIterations
}

func (m *fabrik) SetMaxIterations(n int) error {
	if n < 1 {
		return errors.Wrapf(skeleton.ErrConfiguration, "max iterations %d must be at least 1", n)
	}
	m.maxIterations = n
	return nil
}

func (m *fabrik) SetForwardAxis(axis mgl32.Vec3) error {
	forward, err := validAxis(axis, "fabrik forward axis")
	if err != nil {
		return err
	}
	m.forward = forward
	return nil
}

func (m *fabrik) LastSolve() (float32, int) {
	return m.lastError, m.lastIters
}
