package modification

import "github.com/go-gl/mathgl/mgl32"

// JiggleBuilderOption is a functional option for configuring a Jiggle modifier.
type JiggleBuilderOption func(m *jiggle)

// WithJiggleDefaults sets the stack-wide spring parameters. Invalid parameters are rejected and the modifier
// reports ErrConfiguration from Setup and Execute.
//
// Parameters:
//   - p: the spring parameters
//
// Returns:
//   - JiggleBuilderOption: option function to apply
func WithJiggleDefaults(p JiggleParams) JiggleBuilderOption {
	return func(m *jiggle) {
		if err := m.SetDefaults(p); err != nil {
			m.reject(err)
		}
	}
}

// WithJiggleJoints sets the joint list. An invalid joint rejects the whole list.
//
// Parameters:
//   - joints: the jiggle joints
//
// Returns:
//   - JiggleBuilderOption: option function to apply
func WithJiggleJoints(joints ...JiggleJoint) JiggleBuilderOption {
	return func(m *jiggle) {
		if err := m.SetJoints(joints); err != nil {
			m.reject(err)
		}
	}
}

// WithJiggleForwardAxis sets the bone-local axis pointed at the dynamic position. A zero-length axis is rejected.
//
// Parameters:
//   - axis: the forward axis
//
// Returns:
//   - JiggleBuilderOption: option function to apply
func WithJiggleForwardAxis(axis mgl32.Vec3) JiggleBuilderOption {
	return func(m *jiggle) {
		if err := m.SetForwardAxis(axis); err != nil {
			m.reject(err)
		}
	}
}
