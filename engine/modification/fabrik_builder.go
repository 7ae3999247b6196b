package modification

import "github.com/go-gl/mathgl/mgl32"

// FABRIKBuilderOption is a functional option for configuring a FABRIK modifier.
type FABRIKBuilderOption func(m *fabrik)

// WithFABRIKJoints sets the joint chain. An invalid joint (no bone name, negative length) rejects the whole
// chain and the modifier reports ErrConfiguration from Setup and Execute.
//
// Parameters:
//   - joints: the joints ordered from root to tip
//
// Returns:
//   - FABRIKBuilderOption: option function to apply
func WithFABRIKJoints(joints ...FABRIKJoint) FABRIKBuilderOption {
	return func(m *fabrik) {
		if err := m.SetJoints(joints); err != nil {
			m.reject(err)
		}
	}
}

// WithFABRIKChainTolerance sets the convergence distance. Non-positive values are rejected.
//
// Parameters:
//   - tolerance: the tip-to-target distance at which iteration stops
//
// Returns:
//   - FABRIKBuilderOption: option function to apply
func WithFABRIKChainTolerance(tolerance float32) FABRIKBuilderOption {
	return func(m *fabrik) {
		if err := m.SetChainTolerance(tolerance); err != nil {
			m.reject(err)
		}
	}
}

// WithFABRIKMaxIterations sets the iteration budget per tick. Values below 1 are rejected.
//
// Parameters:
//   - n: the iteration budget
//
// Returns:
//   - FABRIKBuilderOption: option function to apply
func WithFABRIKMaxIterations(n int) FABRIKBuilderOption {
	return func(m *fabrik) {
		if err := m.SetMaxIterations(n); err != nil {
			m.reject(err)
		}
	}
}

// WithFABRIKForwardAxis sets the bone-local axis along which the last joint extends when it has no tip node.
// A zero-length axis is rejected.
//
// Parameters:
//   - axis: the forward axis
//
// Returns:
//   - FABRIKBuilderOption: option function to apply
func WithFABRIKForwardAxis(axis mgl32.Vec3) FABRIKBuilderOption {
	return func(m *fabrik) {
		if err := m.SetForwardAxis(axis); err != nil {
			m.reject(err)
		}
	}
}
