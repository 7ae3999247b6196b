// Package modification implements the ordered stack of procedural pose modifiers applied on top of a
// skeleton's animated pose, and the built-in modifiers (LookAt, CCDIK, FABRIK, Jiggle).
package modification

import (
	"github.com/Carmen-Shannon/oxy-rig/common"
	"github.com/Carmen-Shannon/oxy-rig/engine/nodecache"
	"github.com/Carmen-Shannon/oxy-rig/engine/skeleton"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// State is the lifecycle state of a modifier.
type State int

const (
	// StateUnbound means the modifier has not been set up against a stack.
	StateUnbound State = iota
	// StateSetup means the modifier is bound and its references were resolved at least once.
	StateSetup
	// StateExecuting means the last Execute call wrote its overrides.
	StateExecuting
	// StateCacheStale means a referenced node or bone failed to resolve; resolution is retried every tick.
	StateCacheStale
)

func (s State) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StateSetup:
		return "setup"
	case StateExecuting:
		return "executing"
	case StateCacheStale:
		return "cache-stale"
	}
	return "unknown"
}

// Modifier is a procedural pose step executed by a Stack once per tick.
type Modifier interface {
	// Type returns a short identifier of the modifier kind, e.g. "lookat".
	Type() string

	// Setup binds the modifier to a stack and resolves its references. Calling Setup again rebinds.
	//
	// Parameters:
	//   - stack: the owning stack
	//
	// Returns:
	//   - error: ErrConfiguration if a builder option was rejected, or a resolution error; the modifier
	//     stays bound and retries resolution on Execute
	Setup(stack Stack) error

	// IsSetup reports whether the modifier is bound to a stack.
	IsSetup() bool

	// Execute reads the current global poses and writes local pose overrides.
	//
	// Parameters:
	//   - delta: seconds elapsed since the previous tick
	//
	// Returns:
	//   - error: ErrNotReady if unbound, ErrConfiguration if a builder option was rejected, ErrCacheStale or
	//     ErrInvalidReference if a reference is unusable this tick
	Execute(delta float32) error

	// Enabled reports whether the stack should execute this modifier.
	Enabled() bool

	// SetEnabled enables or disables the modifier.
	SetEnabled(enabled bool)

	// State returns the lifecycle state.
	State() State
}

// Constraint limits a rotation angle to [Min, Max] radians, or out of (Min, Max) when Invert is set.
type Constraint struct {
	Enabled bool
	Min     float32
	Max     float32
	Invert  bool
}

// Apply clamps angle when the constraint is enabled.
func (c Constraint) Apply(angle float32) float32 {
	if !c.Enabled {
		return angle
	}
	return common.ClampAngle(angle, c.Min, c.Max, c.Invert)
}

// BoneRef names a bone and caches its index for the current skeleton topology.
type BoneRef struct {
	name    string
	index   int
	version uint64
	valid   bool
}

// NewBoneRef creates a reference to the named bone.
func NewBoneRef(name string) BoneRef {
	return BoneRef{name: name, index: -1}
}

// Name returns the referenced bone name.
func (r *BoneRef) Name() string {
	return r.name
}

// SetName changes the referenced bone and invalidates the cached index.
func (r *BoneRef) SetName(name string) {
	r.name = name
	r.valid = false
	r.index = -1
}

// Index returns the cached index, -1 if the reference has never resolved.
func (r *BoneRef) Index() int {
	return r.index
}

// Resolve returns the bone index, re-resolving by name whenever the skeleton topology changed.
//
// Parameters:
//   - sk: the skeleton
//
// Returns:
//   - int: the bone index
//   - error: ErrInvalidReference if no bone has the referenced name
func (r *BoneRef) Resolve(sk skeleton.Skeleton) (int, error) {
	sk.EnsureTopology()
	if r.valid && r.version == sk.TopologyVersion() {
		return r.index, nil
	}
	idx := sk.FindBone(r.name)
	if idx < 0 {
		r.valid = false
		r.index = -1
		return -1, errors.Wrapf(skeleton.ErrInvalidReference, "bone %q not found in skeleton %q", r.name, sk.Name())
	}
	r.index = idx
	r.version = sk.TopologyVersion()
	r.valid = true
	return idx, nil
}

// modifierBase carries the state shared by every built-in modifier.
type modifierBase struct {
	kind    string
	enabled bool
	stack   Stack
	state   State
	log     *logrus.Entry

	// propagate recomputes the overridden bone's branch right after each override write.
	propagate bool
	// configErr is the first error raised by a builder option.
	configErr error
}

func newModifierBase(kind string) modifierBase {
	return modifierBase{kind: kind, enabled: true, state: StateUnbound}
}

func (b *modifierBase) Type() string {
	return b.kind
}

func (b *modifierBase) IsSetup() bool {
	return b.stack != nil
}

func (b *modifierBase) Enabled() bool {
	return b.enabled
}

func (b *modifierBase) SetEnabled(enabled bool) {
	b.enabled = enabled
}

func (b *modifierBase) State() State {
	return b.state
}

// bind attaches the modifier to a stack and returns the error of a rejected builder option, if any.
func (b *modifierBase) bind(stack Stack) error {
	b.stack = stack
	b.state = StateSetup
	if stack != nil {
		b.log = stack.Logger().WithField("modifier", b.kind)
	} else {
		b.state = StateUnbound
	}
	return b.configErr
}

// reject records an invalid builder option. The modifier then refuses to set up or execute.
func (b *modifierBase) reject(err error) {
	if b.configErr == nil {
		b.configErr = err
	}
}

// begin validates that the modifier can run this tick and returns the bound skeleton.
func (b *modifierBase) begin() (skeleton.Skeleton, error) {
	if b.configErr != nil {
		return nil, b.configErr
	}
	if b.stack == nil {
		return nil, errors.Wrapf(skeleton.ErrNotReady, "%s modifier is not set up", b.kind)
	}
	sk := b.stack.Skeleton()
	if sk == nil {
		return nil, errors.Wrapf(skeleton.ErrNotReady, "%s modifier has no skeleton", b.kind)
	}
	return sk, nil
}

// stale records a failed resolution and returns err unchanged.
func (b *modifierBase) stale(err error) error {
	b.state = StateCacheStale
	return err
}

// resolveRef resolves a node reference against the stack's resolver.
func (b *modifierBase) resolveRef(ref *nodecache.Ref) error {
	if ref == nil || ref.Empty() {
		return nil
	}
	return ref.Resolve(b.stack.Resolver(), b.stack.SkeletonPath())
}

// nodeInSkeleton reads a node's world transform and converts it into skeleton space.
func (b *modifierBase) nodeInSkeleton(sk skeleton.Skeleton, ref *nodecache.Ref) (common.Transform, error) {
	if ref == nil || ref.Empty() {
		return common.IdentityTransform(), errors.Wrapf(skeleton.ErrInvalidReference, "%s modifier has no node path", b.kind)
	}
	world, err := ref.Transform(b.stack.Resolver(), b.stack.SkeletonPath())
	if errors.Is(err, nodecache.ErrRevalidated) {
		if b.log != nil {
			b.log.WithField("node", ref.Path()).Debug("node cache updated")
		}
		return common.IdentityTransform(), b.stale(err)
	}
	if err != nil {
		if ref.ShouldWarn() && b.log != nil {
			b.log.WithError(err).Warn("node cache is out of date, updating")
		}
		return common.IdentityTransform(), b.stale(err)
	}
	return sk.WorldToSkeleton(world), nil
}

// writeOverride stores a persistent override with the stack's strength. The overridden branch is recomputed
// immediately when propagate is set, otherwise by the next pose query.
func (b *modifierBase) writeOverride(sk skeleton.Skeleton, idx int, local common.Transform) error {
	if err := sk.SetBoneLocalPoseOverride(idx, local, b.stack.Strength(), true); err != nil {
		return err
	}
	if b.propagate {
		return sk.ForceUpdateBoneChildrenTransforms(idx)
	}
	return nil
}

// validAxis normalizes a configuration axis, rejecting zero-length vectors.
func validAxis(axis mgl32.Vec3, what string) (mgl32.Vec3, error) {
	if axis.Len() < common.Epsilon {
		return axis, errors.Wrapf(skeleton.ErrConfiguration, "%s must not be a zero-length vector", what)
	}
	return axis.Normalize(), nil
}

// rotateGlobal applies a skeleton-space rotation to a bone about its own origin and returns the
// corresponding local pose. The local scale and origin of base are preserved.
func rotateGlobal(sk skeleton.Skeleton, idx int, base common.Transform, delta mgl32.Quat) (common.Transform, error) {
	global, err := sk.BoneGlobalPose(idx)
	if err != nil {
		return base, err
	}
	rotated := common.Transform{
		Basis:  delta.Normalize().Mat4().Mat3().Mul3(global.Basis),
		Origin: global.Origin,
	}
	local, err := sk.GlobalToLocalPose(idx, rotated)
	if err != nil {
		return base, err
	}
	return base.WithRotation(local.Rotation()), nil
}
