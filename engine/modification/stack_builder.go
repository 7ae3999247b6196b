package modification

import (
	"github.com/Carmen-Shannon/oxy-rig/engine/nodecache"
	"github.com/Carmen-Shannon/oxy-rig/engine/skeleton"
	"github.com/sirupsen/logrus"
)

// StackBuilderOption is a functional option for configuring a Stack.
// Use the With* functions to create options.
type StackBuilderOption func(s *stack)

// WithSkeleton binds the stack to a skeleton.
//
// Parameters:
//   - sk: the skeleton
//   - path: the skeleton's node path, or "" if it has none
//
// Returns:
//   - StackBuilderOption: option function to apply
func WithSkeleton(sk skeleton.Skeleton, path nodecache.NodePath) StackBuilderOption {
	return func(s *stack) {
		s.sk = sk
		s.skPath = path
	}
}

// WithResolver sets the node resolver used by modifiers.
//
// Parameters:
//   - r: the resolver
//
// Returns:
//   - StackBuilderOption: option function to apply
func WithResolver(r nodecache.Resolver) StackBuilderOption {
	return func(s *stack) {
		s.resolver = r
	}
}

// WithStrength sets the initial override amount. Values outside [0, 1] are clamped.
//
// Parameters:
//   - strength: the override amount
//
// Returns:
//   - StackBuilderOption: option function to apply
func WithStrength(strength float32) StackBuilderOption {
	return func(s *stack) {
		s.strength = min(max(strength, 0), 1)
	}
}

// WithEnabled sets whether the stack executes.
//
// Parameters:
//   - enabled: whether the stack is enabled
//
// Returns:
//   - StackBuilderOption: option function to apply
func WithEnabled(enabled bool) StackBuilderOption {
	return func(s *stack) {
		s.enabled = enabled
	}
}

// WithModifiers appends initial modifier slots. They are set up when Setup is called.
//
// Parameters:
//   - modifiers: the modifiers, nil entries reserve empty slots
//
// Returns:
//   - StackBuilderOption: option function to apply
func WithModifiers(modifiers ...Modifier) StackBuilderOption {
	return func(s *stack) {
		s.modifiers = append(s.modifiers, modifiers...)
	}
}

// WithLogger sets the logger used for diagnostics. Defaults to the logrus standard logger.
//
// Parameters:
//   - l: the logger
//
// Returns:
//   - StackBuilderOption: option function to apply
func WithLogger(l *logrus.Logger) StackBuilderOption {
	return func(s *stack) {
		if l != nil {
			s.baseLogger = l
		}
	}
}
