package modification

import (
	"github.com/Carmen-Shannon/oxy-rig/engine/nodecache"
	"github.com/go-gl/mathgl/mgl32"
)

// CCDIKBuilderOption is a functional option for configuring a CCDIK modifier.
type CCDIKBuilderOption func(m *ccdik)

// WithCCDIKTipPath makes the chain tip a node.
//
// Parameters:
//   - path: the tip node path
//
// Returns:
//   - CCDIKBuilderOption: option function to apply
func WithCCDIKTipPath(path nodecache.NodePath) CCDIKBuilderOption {
	return func(m *ccdik) {
		m.SetTipPath(path)
	}
}

// WithCCDIKTipBone makes the chain tip the origin of a bone.
//
// Parameters:
//   - name: the tip bone name
//
// Returns:
//   - CCDIKBuilderOption: option function to apply
func WithCCDIKTipBone(name string) CCDIKBuilderOption {
	return func(m *ccdik) {
		m.SetTipBone(name)
	}
}

// WithCCDIKJoints sets the joint chain. An invalid joint rejects the whole chain and the modifier reports
// ErrConfiguration from Setup and Execute.
//
// Parameters:
//   - joints: the joints ordered from root to tip
//
// Returns:
//   - CCDIKBuilderOption: option function to apply
func WithCCDIKJoints(joints ...CCDIKJoint) CCDIKBuilderOption {
	return func(m *ccdik) {
		if err := m.SetJoints(joints); err != nil {
			m.reject(err)
		}
	}
}

// WithCCDIKForwardAxis sets the bone-local forward axis used by RotateFromJoint joints. A zero-length axis
// is rejected.
//
// Parameters:
//   - axis: the forward axis
//
// Returns:
//   - CCDIKBuilderOption: option function to apply
func WithCCDIKForwardAxis(axis mgl32.Vec3) CCDIKBuilderOption {
	return func(m *ccdik) {
		if err := m.SetForwardAxis(axis); err != nil {
			m.reject(err)
		}
	}
}
