package modification

import "github.com/go-gl/mathgl/mgl32"

// LookAtBuilderOption is a functional option for configuring a LookAt modifier.
type LookAtBuilderOption func(m *lookAt)

// WithLookAtForwardAxis sets the bone-local axis that faces the target. A zero-length axis is rejected and
// the modifier reports ErrConfiguration from Setup and Execute.
//
// Parameters:
//   - axis: the forward axis, normalized internally
//
// Returns:
//   - LookAtBuilderOption: option function to apply
func WithLookAtForwardAxis(axis mgl32.Vec3) LookAtBuilderOption {
	return func(m *lookAt) {
		if err := m.SetForwardAxis(axis); err != nil {
			m.reject(err)
		}
	}
}

// WithLookAtConstraint limits the look rotation angle.
//
// Parameters:
//   - c: the constraint
//
// Returns:
//   - LookAtBuilderOption: option function to apply
func WithLookAtConstraint(c Constraint) LookAtBuilderOption {
	return func(m *lookAt) {
		m.constraint = c
	}
}

// WithLookAtConstraintInLocalSpace measures the constraint against the bone's rest orientation.
//
// Returns:
//   - LookAtBuilderOption: option function to apply
func WithLookAtConstraintInLocalSpace() LookAtBuilderOption {
	return func(m *lookAt) {
		m.constraintLocal = true
	}
}

// WithLookAtLockedAxes discards the look rotation's twist about the given parent-space axes.
//
// Parameters:
//   - x, y, z: whether each axis is locked
//
// Returns:
//   - LookAtBuilderOption: option function to apply
func WithLookAtLockedAxes(x, y, z bool) LookAtBuilderOption {
	return func(m *lookAt) {
		m.SetLockedAxes(x, y, z)
	}
}

// WithLookAtAdditionalRotation sets the bone-local rotation applied after looking at the target.
//
// Parameters:
//   - q: the additional rotation
//
// Returns:
//   - LookAtBuilderOption: option function to apply
func WithLookAtAdditionalRotation(q mgl32.Quat) LookAtBuilderOption {
	return func(m *lookAt) {
		m.SetAdditionalRotation(q)
	}
}

// WithLookAtPropagateInstantly recomputes the bone and its descendants right after the override is written.
//
// Returns:
//   - LookAtBuilderOption: option function to apply
func WithLookAtPropagateInstantly() LookAtBuilderOption {
	return func(m *lookAt) {
		m.propagate = true
	}
}
